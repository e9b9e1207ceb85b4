package overdue_test

import (
	"context"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/libris/borrow-service/internal/metrics"
	"github.com/libris/borrow-service/internal/model"
	"github.com/libris/borrow-service/internal/overdue"
)

type fakeLister struct {
	items []model.OverdueBorrowing
	calls []int
}

func (f *fakeLister) FindOverdue(_ context.Context, _ model.Date, afterID, limit int) ([]model.OverdueBorrowing, error) {
	f.calls = append(f.calls, afterID)
	var out []model.OverdueBorrowing
	for _, item := range f.items {
		if item.ID > afterID {
			out = append(out, item)
		}
		if len(out) == limit {
			break
		}
	}
	return out, nil
}

type fakeNotifier struct {
	digests [][]model.OverdueBorrowing
}

func (f *fakeNotifier) OverdueDigest(_ model.Date, items []model.OverdueBorrowing) {
	f.digests = append(f.digests, items)
}

func overdueItem(id int, title string) model.OverdueBorrowing {
	return model.OverdueBorrowing{
		Borrowing: model.Borrowing{
			ID:                 id,
			Username:           "reader",
			BorrowDate:         model.NewDate(2023, time.April, 1),
			ExpectedReturnDate: model.NewDate(2023, time.April, 10),
		},
		BookTitle: title,
	}
}

func TestScanner_Sweep_PagesThroughAll(t *testing.T) {
	lister := &fakeLister{items: []model.OverdueBorrowing{
		overdueItem(1, "a"), overdueItem(2, "b"), overdueItem(3, "c"),
		overdueItem(4, "d"), overdueItem(5, "e"),
	}}
	notifier := &fakeNotifier{}

	s := overdue.NewScanner(lister, notifier, metrics.New(prometheus.NewRegistry()), time.Hour, 2, zap.NewNop())
	s.Sweep(context.Background())

	// three pages: after 0, after 2, after 4
	require.Equal(t, []int{0, 2, 4}, lister.calls)
	require.Len(t, notifier.digests, 1)
	require.Len(t, notifier.digests[0], 5)
}

func TestScanner_Sweep_EmptyStillNotifies(t *testing.T) {
	lister := &fakeLister{}
	notifier := &fakeNotifier{}

	s := overdue.NewScanner(lister, notifier, metrics.New(prometheus.NewRegistry()), time.Hour, 10, zap.NewNop())
	s.Sweep(context.Background())

	require.Len(t, notifier.digests, 1)
	require.Empty(t, notifier.digests[0])
}
