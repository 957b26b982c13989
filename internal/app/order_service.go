package app

import (
	"context"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/adityash8/proofport/internal/clock"
	"github.com/adityash8/proofport/internal/domain"
	"github.com/adityash8/proofport/internal/hold"
	"github.com/adityash8/proofport/internal/metrics"
	"github.com/adityash8/proofport/internal/notify"
	"github.com/adityash8/proofport/internal/risk"
)

type OrderRepository interface {
	WithTx(ctx context.Context, fn func(ctx context.Context) error) error
	CreateOrder(ctx context.Context, order domain.Order) error
	GetOrder(ctx context.Context, id string) (domain.Order, error)
	GetOrderForUpdate(ctx context.Context, id string) (domain.Order, error)
	UpdateExtension(ctx context.Context, id string, confirmations map[domain.ProductKind]string, expiresAt, updatedAt time.Time) error
	UpdateStatus(ctx context.Context, id string, status domain.OrderStatus, reason string, updatedAt time.Time) error
	ListActive(ctx context.Context) ([]domain.Order, error)
}

// HoldCoordinator is the slice of the coordinator the order flows need.
type HoldCoordinator interface {
	Acquire(ctx context.Context, bundle []domain.ProductKind, trip domain.TripDetails) hold.Result
	Release(ctx context.Context, confirmations map[domain.ProductKind]string)
	Extend(ctx context.Context, confirmations map[domain.ProductKind]string, trip domain.TripDetails) hold.Result
}

type OrderService struct {
	repo       OrderRepository
	evaluator  *risk.Evaluator
	holds      HoldCoordinator
	dispatcher notify.Dispatcher
	clock      clock.Clock
	log        *zap.Logger
	ttlDays    int
}

const defaultTTLDays = 14

type OrderServiceOption func(*OrderService)

// WithDefaultTTLDays overrides the validity window applied when a
// submission does not name one.
func WithDefaultTTLDays(days int) OrderServiceOption {
	return func(s *OrderService) {
		if days > 0 {
			s.ttlDays = days
		}
	}
}

func NewOrderService(
	repo OrderRepository,
	evaluator *risk.Evaluator,
	holds HoldCoordinator,
	dispatcher notify.Dispatcher,
	clk clock.Clock,
	log *zap.Logger,
	opts ...OrderServiceOption,
) *OrderService {
	svc := &OrderService{
		repo:       repo,
		evaluator:  evaluator,
		holds:      holds,
		dispatcher: dispatcher,
		clock:      clk,
		log:        log,
		ttlDays:    defaultTTLDays,
	}
	for _, opt := range opts {
		opt(svc)
	}
	return svc
}

type SubmitOrderInput struct {
	Owner   string
	Bundle  []domain.ProductKind
	Trip    domain.TripDetails
	TTLDays int

	// Purchaser signals feeding the risk gate.
	Email   string
	Amount  float64
	Country string
	IP      string
	Device  *risk.DeviceSignal
}

type SubmitOrderResult struct {
	Order domain.Order
	// FailedKinds lists requested kinds that could not be confirmed.
	// The order was still created for the kinds that succeeded.
	FailedKinds []domain.ProductKind
}

// SubmitOrder gates the purchase on risk, acquires provider holds and
// persists the resulting order. A blocked assessment never creates an
// order; a partial acquisition creates one for the confirmed kinds only.
func (s *OrderService) SubmitOrder(ctx context.Context, in SubmitOrderInput) (SubmitOrderResult, error) {
	if in.Owner == "" {
		return SubmitOrderResult{}, domain.ErrOwnerRequired
	}
	if len(in.Bundle) == 0 {
		return SubmitOrderResult{}, domain.ErrEmptyBundle
	}
	for _, kind := range in.Bundle {
		if !kind.Valid() {
			return SubmitOrderResult{}, domain.ErrUnknownProduct
		}
	}
	ttlDays := in.TTLDays
	if ttlDays == 0 {
		ttlDays = s.ttlDays
	}
	if ttlDays < 0 {
		return SubmitOrderResult{}, domain.ErrInvalidTTL
	}

	now := s.clock.Now()

	assessment := s.evaluator.Evaluate(risk.Input{
		Device:  in.Device,
		Email:   in.Email,
		Amount:  in.Amount,
		Country: in.Country,
		IP:      in.IP,
		Trip:    in.Trip,
	}, now)
	if assessment.Block {
		metrics.OrdersBlockedTotal.Inc()
		s.log.Info("submission blocked by risk gate",
			zap.String("owner", in.Owner),
			zap.Float64("score", assessment.Score),
			zap.Strings("reasons", assessment.Reasons),
		)
		return SubmitOrderResult{}, &domain.RiskBlockedError{Assessment: assessment}
	}

	acquired := s.holds.Acquire(ctx, in.Bundle, in.Trip)
	if len(acquired.Confirmations) == 0 {
		return SubmitOrderResult{}, &domain.ProviderFailureError{Failed: acquired.Failed}
	}

	order := domain.Order{
		ID:            uuid.NewString(),
		Owner:         in.Owner,
		Bundle:        in.Bundle,
		Confirmations: acquired.Confirmations,
		CreatedAt:     now,
		ExpiresAt:     now.AddDate(0, 0, ttlDays),
		Status:        domain.OrderStatusActive,
		Risk:          assessment,
		Trip:          in.Trip,
		UpdatedAt:     now,
	}

	if err := s.repo.CreateOrder(ctx, order); err != nil {
		// Creation is all-or-nothing: a persisted-nothing failure must
		// not leave external holds dangling.
		s.holds.Release(ctx, acquired.Confirmations)
		return SubmitOrderResult{}, err
	}

	metrics.OrdersCreatedTotal.Inc()
	s.dispatcher.Dispatch(ctx, notify.Event{
		Type:          notify.EventOrderCreated,
		OrderID:       order.ID,
		Owner:         order.Owner,
		Confirmations: order.Confirmations,
		FailedKinds:   acquired.Failed,
		ExpiresAt:     order.ExpiresAt,
		OccurredAt:    now,
	})

	return SubmitOrderResult{Order: order, FailedKinds: acquired.Failed}, nil
}

type ExtendOrderResult struct {
	Order domain.Order
	// FailedKinds lists held kinds whose provider could not issue a
	// successor confirmation; they keep their previous one.
	FailedKinds []domain.ProductKind
}

// ExtendOrder pushes an active order's expiry forward by addedDays,
// counted from the later of now and the current expiry, and obtains
// successor confirmations from the providers. The row lock taken for
// the read serializes extensions against concurrent cancellation.
func (s *OrderService) ExtendOrder(ctx context.Context, orderID string, addedDays int) (ExtendOrderResult, error) {
	if addedDays <= 0 {
		return ExtendOrderResult{}, domain.ErrInvalidExtension
	}

	now := s.clock.Now()
	var result ExtendOrderResult

	err := s.repo.WithTx(ctx, func(txCtx context.Context) error {
		order, err := s.repo.GetOrderForUpdate(txCtx, orderID)
		if err != nil {
			return err
		}
		if order.Status.Terminal() {
			return domain.ErrInvalidState
		}

		from := order.ExpiresAt
		if now.After(from) {
			from = now
		}
		newExpiry := from.AddDate(0, 0, addedDays)

		extended := s.holds.Extend(txCtx, order.Confirmations, order.Trip)
		if err := s.repo.UpdateExtension(txCtx, order.ID, extended.Confirmations, newExpiry, now); err != nil {
			return err
		}

		order.Confirmations = extended.Confirmations
		order.ExpiresAt = newExpiry
		order.WarnedAt = nil
		order.UpdatedAt = now
		result = ExtendOrderResult{Order: order, FailedKinds: extended.Failed}
		return nil
	})
	if err != nil {
		return ExtendOrderResult{}, err
	}

	metrics.OrdersExtendedTotal.Inc()
	s.dispatcher.Dispatch(ctx, notify.Event{
		Type:          notify.EventOrderExtended,
		OrderID:       result.Order.ID,
		Owner:         result.Order.Owner,
		Confirmations: result.Order.Confirmations,
		FailedKinds:   result.FailedKinds,
		ExpiresAt:     result.Order.ExpiresAt,
		OccurredAt:    now,
	})

	return result, nil
}

// ExpireOrder transitions an active order to expired. Expiring an
// already-expired order is a no-op; a cancelled order cannot expire.
func (s *OrderService) ExpireOrder(ctx context.Context, orderID string) (domain.Order, error) {
	return s.transition(ctx, orderID, domain.OrderStatusExpired, "")
}

// CancelOrder transitions an active order to cancelled. Cancelling an
// already-cancelled order is a no-op; an expired order cannot be
// cancelled. The reason is recorded for audit only.
func (s *OrderService) CancelOrder(ctx context.Context, orderID, reason string) (domain.Order, error) {
	return s.transition(ctx, orderID, domain.OrderStatusCancelled, reason)
}

func (s *OrderService) transition(ctx context.Context, orderID string, target domain.OrderStatus, reason string) (domain.Order, error) {
	now := s.clock.Now()
	var result domain.Order

	err := s.repo.WithTx(ctx, func(txCtx context.Context) error {
		order, err := s.repo.GetOrderForUpdate(txCtx, orderID)
		if err != nil {
			return err
		}
		if order.Status == target {
			result = order
			return nil
		}
		if order.Status.Terminal() {
			return domain.ErrInvalidState
		}

		if err := s.repo.UpdateStatus(txCtx, order.ID, target, reason, now); err != nil {
			return err
		}
		order.Status = target
		order.CancelReason = reason
		order.UpdatedAt = now
		result = order
		return nil
	})
	if err != nil {
		return domain.Order{}, err
	}
	return result, nil
}

func (s *OrderService) GetOrder(ctx context.Context, orderID string) (domain.Order, error) {
	return s.repo.GetOrder(ctx, orderID)
}

func (s *OrderService) ListActive(ctx context.Context) ([]domain.Order, error) {
	return s.repo.ListActive(ctx)
}
