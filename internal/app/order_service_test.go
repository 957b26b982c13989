package app

import (
	"context"
	"errors"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/adityash8/proofport/internal/clock"
	"github.com/adityash8/proofport/internal/domain"
	"github.com/adityash8/proofport/internal/notify"
	"github.com/adityash8/proofport/internal/risk"
)

var testNow = time.Date(2025, 4, 1, 10, 0, 0, 0, time.UTC)

func lowRiskSubmit(bundle ...domain.ProductKind) SubmitOrderInput {
	return SubmitOrderInput{
		Owner:  "user-1",
		Bundle: bundle,
		Trip: domain.TripDetails{
			Origin:      "BER",
			Destination: "LIS",
			TravelDate:  testNow.AddDate(0, 0, 21),
			Passengers:  1,
			VisaType:    "schengen",
		},
		Email:   "alice@example.com",
		Amount:  27,
		Country: "DE",
		IP:      "203.0.113.7",
		Device:  &risk.DeviceSignal{VisitorID: "v-1", Confidence: 0.9},
	}
}

func newTestOrderService(repo *fakeOrderRepo, coord *fakeCoordinator, disp notify.Dispatcher, opts ...OrderServiceOption) *OrderService {
	if disp == nil {
		disp = notify.Nop{}
	}
	evaluator := risk.NewEvaluator(risk.DefaultPolicy())
	return NewOrderService(repo, evaluator, coord, disp, clock.NewFixed(testNow), zap.NewNop(), opts...)
}

func TestOrderService_SubmitOrder(t *testing.T) {
	t.Parallel()

	t.Run("creates active order with full bundle", func(t *testing.T) {
		repo := newFakeOrderRepo()
		coord := newFakeCoordinator()
		disp := &recordingDispatcher{}
		svc := newTestOrderService(repo, coord, disp, WithDefaultTTLDays(7))

		res, err := svc.SubmitOrder(context.Background(), lowRiskSubmit(domain.ProductFlight, domain.ProductLodging))
		if err != nil {
			t.Fatalf("expected no error, got %v", err)
		}

		if res.Order.ID == "" {
			t.Fatalf("expected order ID to be set")
		}
		if res.Order.Status != domain.OrderStatusActive {
			t.Fatalf("expected status active, got %s", res.Order.Status)
		}
		if got, want := res.Order.ExpiresAt, testNow.AddDate(0, 0, 7); !got.Equal(want) {
			t.Fatalf("expected expires_at %v, got %v", want, got)
		}
		if len(res.Order.Confirmations) != 2 {
			t.Fatalf("expected 2 confirmations, got %d", len(res.Order.Confirmations))
		}
		if len(res.FailedKinds) != 0 {
			t.Fatalf("expected no failed kinds, got %v", res.FailedKinds)
		}
		if res.Order.Risk.Level != domain.RiskLevelLow {
			t.Fatalf("expected recorded low risk, got %s", res.Order.Risk.Level)
		}
		if repo.count() != 1 {
			t.Fatalf("expected 1 persisted order, got %d", repo.count())
		}
		if got := disp.byType(notify.EventOrderCreated); len(got) != 1 {
			t.Fatalf("expected 1 order-created event, got %d", len(got))
		}
	})

	t.Run("respects explicit ttl days", func(t *testing.T) {
		repo := newFakeOrderRepo()
		svc := newTestOrderService(repo, newFakeCoordinator(), nil)

		in := lowRiskSubmit(domain.ProductFlight)
		in.TTLDays = 3
		res, err := svc.SubmitOrder(context.Background(), in)
		if err != nil {
			t.Fatalf("expected no error, got %v", err)
		}
		if got, want := res.Order.ExpiresAt, testNow.AddDate(0, 0, 3); !got.Equal(want) {
			t.Fatalf("expected expires_at %v, got %v", want, got)
		}
	})

	t.Run("blocked submission never creates an order", func(t *testing.T) {
		repo := newFakeOrderRepo()
		svc := newTestOrderService(repo, newFakeCoordinator(), nil)

		in := lowRiskSubmit(domain.ProductFlight)
		in.Email = "bob@mailinator.com"
		in.Amount = 600
		in.Trip.TravelDate = testNow

		_, err := svc.SubmitOrder(context.Background(), in)
		if !errors.Is(err, domain.ErrRiskBlocked) {
			t.Fatalf("expected ErrRiskBlocked, got %v", err)
		}

		var blocked *domain.RiskBlockedError
		if !errors.As(err, &blocked) {
			t.Fatalf("expected RiskBlockedError, got %T", err)
		}
		if len(blocked.Assessment.Reasons) == 0 {
			t.Fatalf("expected reasons on blocked assessment")
		}
		if repo.count() != 0 {
			t.Fatalf("expected no persisted orders, got %d", repo.count())
		}
	})

	t.Run("partial acquisition keeps confirmed kinds", func(t *testing.T) {
		repo := newFakeOrderRepo()
		coord := newFakeCoordinator(domain.ProductFlight)
		svc := newTestOrderService(repo, coord, nil)

		res, err := svc.SubmitOrder(context.Background(), lowRiskSubmit(domain.ProductFlight, domain.ProductLodging))
		if err != nil {
			t.Fatalf("expected no error, got %v", err)
		}
		if _, held := res.Order.Confirmations[domain.ProductFlight]; held {
			t.Fatalf("expected no flight confirmation")
		}
		if _, held := res.Order.Confirmations[domain.ProductLodging]; !held {
			t.Fatalf("expected lodging confirmation")
		}
		if len(res.FailedKinds) != 1 || res.FailedKinds[0] != domain.ProductFlight {
			t.Fatalf("expected failed kinds [flight], got %v", res.FailedKinds)
		}
	})

	t.Run("total provider failure creates nothing", func(t *testing.T) {
		repo := newFakeOrderRepo()
		coord := newFakeCoordinator(domain.ProductFlight, domain.ProductLodging)
		svc := newTestOrderService(repo, coord, nil)

		_, err := svc.SubmitOrder(context.Background(), lowRiskSubmit(domain.ProductFlight, domain.ProductLodging))
		if !errors.Is(err, domain.ErrAllHoldsFailed) {
			t.Fatalf("expected ErrAllHoldsFailed, got %v", err)
		}
		if repo.count() != 0 {
			t.Fatalf("expected no persisted orders, got %d", repo.count())
		}
	})

	t.Run("persistence failure releases acquired holds", func(t *testing.T) {
		repo := newFakeOrderRepo()
		repo.createErr = errors.New("store unreachable")
		coord := newFakeCoordinator()
		svc := newTestOrderService(repo, coord, nil)

		_, err := svc.SubmitOrder(context.Background(), lowRiskSubmit(domain.ProductFlight))
		if err == nil {
			t.Fatalf("expected persistence error")
		}
		if len(coord.released) != 1 {
			t.Fatalf("expected acquired holds released, got %d release calls", len(coord.released))
		}
	})

	t.Run("input validation", func(t *testing.T) {
		svc := newTestOrderService(newFakeOrderRepo(), newFakeCoordinator(), nil)

		in := lowRiskSubmit(domain.ProductFlight)
		in.Owner = ""
		if _, err := svc.SubmitOrder(context.Background(), in); err != domain.ErrOwnerRequired {
			t.Fatalf("expected ErrOwnerRequired, got %v", err)
		}

		if _, err := svc.SubmitOrder(context.Background(), lowRiskSubmit()); err != domain.ErrEmptyBundle {
			t.Fatalf("expected ErrEmptyBundle, got %v", err)
		}

		if _, err := svc.SubmitOrder(context.Background(), lowRiskSubmit("cruise")); err != domain.ErrUnknownProduct {
			t.Fatalf("expected ErrUnknownProduct, got %v", err)
		}
	})
}

func TestOrderService_ExtendOrder(t *testing.T) {
	t.Parallel()

	submit := func(t *testing.T, svc *OrderService) domain.Order {
		t.Helper()
		res, err := svc.SubmitOrder(context.Background(), lowRiskSubmit(domain.ProductFlight, domain.ProductLodging))
		if err != nil {
			t.Fatalf("submit: %v", err)
		}
		return res.Order
	}

	t.Run("extends from current expiry, not from now", func(t *testing.T) {
		repo := newFakeOrderRepo()
		coord := newFakeCoordinator()
		disp := &recordingDispatcher{}
		svc := newTestOrderService(repo, coord, disp, WithDefaultTTLDays(14))
		order := submit(t, svc)

		res, err := svc.ExtendOrder(context.Background(), order.ID, 7)
		if err != nil {
			t.Fatalf("expected no error, got %v", err)
		}

		want := order.ExpiresAt.AddDate(0, 0, 7)
		if !res.Order.ExpiresAt.Equal(want) {
			t.Fatalf("expected expires_at %v, got %v", want, res.Order.ExpiresAt)
		}
		if res.Order.Confirmations[domain.ProductFlight] == order.Confirmations[domain.ProductFlight] {
			t.Fatalf("expected successor flight confirmation")
		}
		if got := disp.byType(notify.EventOrderExtended); len(got) != 1 {
			t.Fatalf("expected 1 order-extended event, got %d", len(got))
		}
	})

	t.Run("extends a lapsed but still active order from now", func(t *testing.T) {
		repo := newFakeOrderRepo()
		svc := newTestOrderService(repo, newFakeCoordinator(), nil)
		order := submit(t, svc)

		// Push the stored expiry into the past; the sweeper has not run.
		order.ExpiresAt = testNow.AddDate(0, 0, -3)
		repo.put(order)

		res, err := svc.ExtendOrder(context.Background(), order.ID, 5)
		if err != nil {
			t.Fatalf("expected no error, got %v", err)
		}
		if want := testNow.AddDate(0, 0, 5); !res.Order.ExpiresAt.Equal(want) {
			t.Fatalf("expected expires_at %v, got %v", want, res.Order.ExpiresAt)
		}
	})

	t.Run("failed successor keeps old confirmation", func(t *testing.T) {
		repo := newFakeOrderRepo()
		coord := newFakeCoordinator()
		svc := newTestOrderService(repo, coord, nil)
		order := submit(t, svc)

		coord.failKinds[domain.ProductLodging] = true
		res, err := svc.ExtendOrder(context.Background(), order.ID, 7)
		if err != nil {
			t.Fatalf("expected no error, got %v", err)
		}
		if got := res.Order.Confirmations[domain.ProductLodging]; got != order.Confirmations[domain.ProductLodging] {
			t.Fatalf("expected lodging confirmation kept, got %s", got)
		}
		if len(res.FailedKinds) != 1 || res.FailedKinds[0] != domain.ProductLodging {
			t.Fatalf("expected failed kinds [lodging], got %v", res.FailedKinds)
		}
	})

	t.Run("terminal and missing orders", func(t *testing.T) {
		repo := newFakeOrderRepo()
		svc := newTestOrderService(repo, newFakeCoordinator(), nil)
		order := submit(t, svc)

		if _, err := svc.CancelOrder(context.Background(), order.ID, "customer request"); err != nil {
			t.Fatalf("cancel: %v", err)
		}
		if _, err := svc.ExtendOrder(context.Background(), order.ID, 7); err != domain.ErrInvalidState {
			t.Fatalf("expected ErrInvalidState, got %v", err)
		}
		if _, err := svc.ExtendOrder(context.Background(), "missing", 7); err != domain.ErrOrderNotFound {
			t.Fatalf("expected ErrOrderNotFound, got %v", err)
		}
		if _, err := svc.ExtendOrder(context.Background(), order.ID, 0); err != domain.ErrInvalidExtension {
			t.Fatalf("expected ErrInvalidExtension, got %v", err)
		}
	})
}

func TestOrderService_StateMachine(t *testing.T) {
	t.Parallel()

	newOrder := func(t *testing.T) (*OrderService, domain.Order) {
		t.Helper()
		repo := newFakeOrderRepo()
		svc := newTestOrderService(repo, newFakeCoordinator(), nil)
		res, err := svc.SubmitOrder(context.Background(), lowRiskSubmit(domain.ProductFlight))
		if err != nil {
			t.Fatalf("submit: %v", err)
		}
		return svc, res.Order
	}

	t.Run("cancel twice is an idempotent no-op", func(t *testing.T) {
		svc, order := newOrder(t)

		first, err := svc.CancelOrder(context.Background(), order.ID, "expired")
		if err != nil {
			t.Fatalf("first cancel: %v", err)
		}
		second, err := svc.CancelOrder(context.Background(), order.ID, "expired")
		if err != nil {
			t.Fatalf("second cancel: %v", err)
		}
		if first.Status != domain.OrderStatusCancelled || second.Status != domain.OrderStatusCancelled {
			t.Fatalf("expected cancelled, got %s then %s", first.Status, second.Status)
		}
	})

	t.Run("expire twice is an idempotent no-op", func(t *testing.T) {
		svc, order := newOrder(t)

		if _, err := svc.ExpireOrder(context.Background(), order.ID); err != nil {
			t.Fatalf("first expire: %v", err)
		}
		got, err := svc.ExpireOrder(context.Background(), order.ID)
		if err != nil {
			t.Fatalf("second expire: %v", err)
		}
		if got.Status != domain.OrderStatusExpired {
			t.Fatalf("expected expired, got %s", got.Status)
		}
	})

	t.Run("expire after cancel is invalid", func(t *testing.T) {
		svc, order := newOrder(t)

		if _, err := svc.CancelOrder(context.Background(), order.ID, "test"); err != nil {
			t.Fatalf("cancel: %v", err)
		}
		if _, err := svc.ExpireOrder(context.Background(), order.ID); err != domain.ErrInvalidState {
			t.Fatalf("expected ErrInvalidState, got %v", err)
		}
	})

	t.Run("cancel after expire is invalid", func(t *testing.T) {
		svc, order := newOrder(t)

		if _, err := svc.ExpireOrder(context.Background(), order.ID); err != nil {
			t.Fatalf("expire: %v", err)
		}
		if _, err := svc.CancelOrder(context.Background(), order.ID, "test"); err != domain.ErrInvalidState {
			t.Fatalf("expected ErrInvalidState, got %v", err)
		}
	})
}
