package circuit_breaker_test

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/libris/borrow-service/pkg/circuit_breaker"
)

func Test_circuitBreaker_Call(t *testing.T) {
	successfulService := func() error {
		return nil
	}
	failingService := func() error {
		return errors.New("service error")
	}

	const (
		recordLength     = 10
		timeout          = 50 * time.Millisecond
		percentile       = 0.5
		recoveryRequests = 3
	)

	cb := circuit_breaker.New(recordLength, timeout, percentile, recoveryRequests)

	for i := 0; i < 20; i++ {
		require.NoError(t, cb.Call(successfulService))
	}

	// enough failures to exceed the percentile and trip the breaker
	for i := 0; i < recordLength; i++ {
		_ = cb.Call(failingService)
	}
	err := cb.Call(successfulService)
	require.ErrorIs(t, err, circuit_breaker.ErrOpenCB)

	// after the timeout the breaker probes in half-open and recovers
	time.Sleep(timeout + 20*time.Millisecond)
	for i := 0; i < recoveryRequests+2; i++ {
		require.NoError(t, cb.Call(successfulService))
	}
	require.NoError(t, cb.Call(successfulService))

	// a failure while half-open reopens immediately
	for i := 0; i < recordLength; i++ {
		_ = cb.Call(failingService)
	}
	time.Sleep(timeout + 20*time.Millisecond)
	require.Error(t, cb.Call(failingService))
	require.ErrorIs(t, cb.Call(successfulService), circuit_breaker.ErrOpenCB)

	cb.Reset()
	require.NoError(t, cb.Call(successfulService))
}
