package overdue

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/libris/borrow-service/internal/metrics"
	"github.com/libris/borrow-service/internal/model"
)

// Lister pages through open borrowings past due.
type Lister interface {
	FindOverdue(ctx context.Context, asOf model.Date, afterID, limit int) ([]model.OverdueBorrowing, error)
}

type Notifier interface {
	OverdueDigest(asOf model.Date, items []model.OverdueBorrowing)
}

// Scanner periodically sweeps for overdue borrowings and hands the digest to
// the notifier. Read-only, so it is safe next to live borrow/return traffic.
type Scanner struct {
	log       *zap.Logger
	lister    Lister
	notifier  Notifier
	metrics   *metrics.Metrics
	period    time.Duration
	batchSize int
}

func NewScanner(lister Lister, notifier Notifier, m *metrics.Metrics, period time.Duration, batchSize int, log *zap.Logger) *Scanner {
	return &Scanner{
		log:       log.Named("overdue"),
		lister:    lister,
		notifier:  notifier,
		metrics:   m,
		period:    period,
		batchSize: batchSize,
	}
}

// Run sweeps once immediately, then on every tick until ctx is done.
func (s *Scanner) Run(ctx context.Context) {
	ticker := time.NewTicker(s.period)
	defer ticker.Stop()

	s.Sweep(ctx)
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.Sweep(ctx)
		}
	}
}

// Sweep collects the full overdue set in keyset-paged batches. Idempotent;
// a failed sweep is retried whole on the next tick.
func (s *Scanner) Sweep(ctx context.Context) {
	asOf := model.Today()

	var all []model.OverdueBorrowing
	afterID := 0
	for {
		batch, err := s.lister.FindOverdue(ctx, asOf, afterID, s.batchSize)
		if err != nil {
			s.log.Error("sweep", zap.Int("afterID", afterID), zap.Error(err))
			return
		}
		all = append(all, batch...)
		if len(batch) < s.batchSize {
			break
		}
		afterID = batch[len(batch)-1].ID
	}

	s.notifier.OverdueDigest(asOf, all)
	s.metrics.OverdueSwept.Inc()
	s.metrics.OverdueOpen.Set(float64(len(all)))
	s.log.Debug("sweep done", zap.Int("overdue", len(all)))
}
