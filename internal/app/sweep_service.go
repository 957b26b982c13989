package app

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/adityash8/proofport/internal/clock"
	"github.com/adityash8/proofport/internal/domain"
	"github.com/adityash8/proofport/internal/metrics"
	"github.com/adityash8/proofport/internal/notify"
)

type SweepRepository interface {
	WithTx(ctx context.Context, fn func(ctx context.Context) error) error
	GetOrderForUpdate(ctx context.Context, id string) (domain.Order, error)
	UpdateStatus(ctx context.Context, id string, status domain.OrderStatus, reason string, updatedAt time.Time) error
	ListPastExpiry(ctx context.Context, asOf time.Time) ([]domain.Order, error)
	ListExpiring(ctx context.Context, now time.Time, within time.Duration) ([]domain.Order, error)
	MarkWarned(ctx context.Context, id string, warnedAt time.Time) error
}

// HoldReleaser is the slice of the coordinator the sweeper needs.
type HoldReleaser interface {
	Release(ctx context.Context, confirmations map[domain.ProductKind]string)
}

type SweepFailure struct {
	OrderID string
	Err     error
}

// SweepReport summarizes one sweep run. Per-order failures are
// collected here rather than aborting the batch.
type SweepReport struct {
	Cancelled int
	Warned    int
	Failures  []SweepFailure
}

const (
	cancelReasonExpired = "expired"
	defaultWarnWindow   = 48 * time.Hour
)

type SweepService struct {
	repo       SweepRepository
	holds      HoldReleaser
	dispatcher notify.Dispatcher
	clock      clock.Clock
	log        *zap.Logger
	warnWindow time.Duration
}

type SweepServiceOption func(*SweepService)

// WithWarnWindow sets how far ahead of expiry a warning event fires.
func WithWarnWindow(d time.Duration) SweepServiceOption {
	return func(s *SweepService) {
		if d > 0 {
			s.warnWindow = d
		}
	}
}

func NewSweepService(
	repo SweepRepository,
	holds HoldReleaser,
	dispatcher notify.Dispatcher,
	clk clock.Clock,
	log *zap.Logger,
	opts ...SweepServiceOption,
) *SweepService {
	svc := &SweepService{
		repo:       repo,
		holds:      holds,
		dispatcher: dispatcher,
		clock:      clk,
		log:        log,
		warnWindow: defaultWarnWindow,
	}
	for _, opt := range opts {
		opt(svc)
	}
	return svc
}

// Run performs one sweep: past-expiry orders have their holds released
// best effort and are then cancelled under a guarded transition. The
// sweep is at-least-once; a crash mid-run re-discovers the same
// candidates because cancellation is idempotent.
func (s *SweepService) Run(ctx context.Context) (SweepReport, error) {
	now := s.clock.Now()
	var report SweepReport

	candidates, err := s.repo.ListPastExpiry(ctx, now)
	if err != nil {
		return report, err
	}

	for _, order := range candidates {
		// Release failures never block status cleanup; the coordinator
		// logs and counts them.
		s.holds.Release(ctx, order.Confirmations)

		cancelled, err := s.cancelPastExpiry(ctx, order.ID, now)
		if err != nil {
			report.Failures = append(report.Failures, SweepFailure{OrderID: order.ID, Err: err})
			s.log.Warn("sweep cancellation failed",
				zap.String("order_id", order.ID),
				zap.Error(err),
			)
			continue
		}
		if cancelled {
			report.Cancelled++
			metrics.SweepCancelledTotal.Inc()
		}
	}

	report.Warned = s.warnExpiring(ctx, now)

	s.log.Info("expiry sweep finished",
		zap.Int("candidates", len(candidates)),
		zap.Int("cancelled", report.Cancelled),
		zap.Int("warned", report.Warned),
		zap.Int("failures", len(report.Failures)),
	)
	return report, nil
}

// cancelPastExpiry applies the guarded transition for one candidate.
// The expiry is re-checked under the same row lock as the update, so an
// order extended after the snapshot read is left alone.
func (s *SweepService) cancelPastExpiry(ctx context.Context, orderID string, asOf time.Time) (bool, error) {
	var cancelled bool
	err := s.repo.WithTx(ctx, func(txCtx context.Context) error {
		order, err := s.repo.GetOrderForUpdate(txCtx, orderID)
		if err != nil {
			return err
		}
		if order.Status != domain.OrderStatusActive {
			return nil
		}
		if !order.ExpiresAt.Before(asOf) {
			// Extended concurrently with the sweep snapshot.
			return nil
		}
		if err := s.repo.UpdateStatus(txCtx, order.ID, domain.OrderStatusCancelled, cancelReasonExpired, asOf); err != nil {
			return err
		}
		cancelled = true
		return nil
	})
	return cancelled, err
}

// warnExpiring emits one expiry-warning event per order entering the
// warning window. Failures are logged; warnings are advisory.
func (s *SweepService) warnExpiring(ctx context.Context, now time.Time) int {
	expiring, err := s.repo.ListExpiring(ctx, now, s.warnWindow)
	if err != nil {
		s.log.Warn("list expiring orders failed", zap.Error(err))
		return 0
	}

	warned := 0
	for _, order := range expiring {
		if order.WarnedAt != nil {
			continue
		}
		if err := s.repo.MarkWarned(ctx, order.ID, now); err != nil {
			s.log.Warn("mark warned failed", zap.String("order_id", order.ID), zap.Error(err))
			continue
		}
		s.dispatcher.Dispatch(ctx, notify.Event{
			Type:          notify.EventExpiryWarning,
			OrderID:       order.ID,
			Owner:         order.Owner,
			Confirmations: order.Confirmations,
			ExpiresAt:     order.ExpiresAt,
			OccurredAt:    now,
		})
		warned++
	}
	return warned
}

// RunLoop drives Run on a fixed interval until the context is done.
func (s *SweepService) RunLoop(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	s.log.Info("expiry sweeper started", zap.Duration("interval", interval))
	for {
		select {
		case <-ticker.C:
			if _, err := s.Run(ctx); err != nil {
				s.log.Error("expiry sweep failed", zap.Error(err))
			}
		case <-ctx.Done():
			s.log.Info("expiry sweeper stopped")
			return
		}
	}
}
