package checkout

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"go.uber.org/zap"

	"github.com/libris/borrow-service/config"
	"github.com/libris/borrow-service/internal/errs"
	"github.com/libris/borrow-service/internal/model"
	"github.com/libris/borrow-service/pkg/circuit_breaker"
)

// Service is the client for the external checkout provider. Every call is
// bounded by the configured timeout and goes through a circuit breaker; a
// failed or rejected call surfaces errs.ErrPaymentSession so the enclosing
// borrow/return transaction aborts.
type Service struct {
	log    *zap.Logger
	client *http.Client
	cfg    config.Checkout
	cb     circuit_breaker.CircuitBreaker
}

func NewService(log *zap.Logger, cfg config.Checkout) *Service {
	const (
		cbRecordLength     = 20
		cbTimeout          = 30 * time.Second
		cbPercentile       = 0.5
		cbRecoveryRequests = 5
	)
	return &Service{
		log:    log.Named("checkout"),
		client: &http.Client{Timeout: cfg.Timeout},
		cfg:    cfg,
		cb:     circuit_breaker.New(cbRecordLength, cbTimeout, cbPercentile, cbRecoveryRequests),
	}
}

type createSessionRequest struct {
	AmountCents int64  `json:"amountCents"`
	Currency    string `json:"currency"`
	Description string `json:"description"`
	SuccessURL  string `json:"successUrl"`
	CancelURL   string `json:"cancelUrl"`
	Reference   string `json:"reference"`
}

// CreateSession opens a checkout session for the given amount in the
// smallest currency unit.
func (s *Service) CreateSession(ctx context.Context, amountCents int64, description string) (model.CheckoutSession, error) {
	reqBody := createSessionRequest{
		AmountCents: amountCents,
		Currency:    s.cfg.Currency,
		Description: description,
		SuccessURL:  s.cfg.SuccessURL,
		CancelURL:   s.cfg.CancelURL,
		Reference:   uuid.NewString(),
	}

	var session model.CheckoutSession
	if err := s.cb.Call(func() error {
		b := bytes.NewBuffer(nil)
		if err := json.NewEncoder(b).Encode(reqBody); err != nil {
			return err
		}
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.cfg.BaseURL+"/v1/checkout/sessions", b)
		if err != nil {
			return err
		}
		req.Header.Set("Authorization", "Bearer "+s.cfg.APIKey)
		req.Header.Set("Content-Type", "application/json")

		resp, err := s.client.Do(req)
		if err != nil {
			return err
		}
		defer resp.Body.Close()
		if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusCreated {
			return fmt.Errorf("create session: status %d", resp.StatusCode)
		}
		return json.NewDecoder(resp.Body).Decode(&session)
	}); err != nil {
		s.log.Error("CreateSession", zap.Int64("amountCents", amountCents), zap.Error(err))
		return model.CheckoutSession{}, errors.Wrap(errs.ErrPaymentSession, err.Error())
	}

	return session, nil
}

// RetrieveSession polls the provider for the session status. Safe to
// re-issue; the provider treats it as a read.
func (s *Service) RetrieveSession(ctx context.Context, sessionID string) (model.CheckoutSession, error) {
	var session model.CheckoutSession
	if err := s.cb.Call(func() error {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.cfg.BaseURL+"/v1/checkout/sessions/"+sessionID, http.NoBody)
		if err != nil {
			return err
		}
		req.Header.Set("Authorization", "Bearer "+s.cfg.APIKey)

		resp, err := s.client.Do(req)
		if err != nil {
			return err
		}
		defer resp.Body.Close()
		if resp.StatusCode == http.StatusNotFound {
			return errs.ErrPaymentNotFound
		}
		if resp.StatusCode != http.StatusOK {
			return fmt.Errorf("retrieve session: status %d", resp.StatusCode)
		}
		return json.NewDecoder(resp.Body).Decode(&session)
	}); err != nil {
		if errors.Is(err, errs.ErrPaymentNotFound) {
			return model.CheckoutSession{}, err
		}
		return model.CheckoutSession{}, errors.Wrap(errs.ErrPaymentSession, err.Error())
	}

	return session, nil
}
