package hold

import (
	"context"
	"sort"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/adityash8/proofport/internal/domain"
	"github.com/adityash8/proofport/internal/metrics"
)

// Provider is the capability a reservation backend exposes for one
// product kind. Implementations must honor context cancellation.
type Provider interface {
	RequestHold(ctx context.Context, trip domain.TripDetails) (string, error)
	CancelHold(ctx context.Context, confirmation string) error
}

// Result is the per-kind outcome of an acquisition. A kind appears in
// exactly one of Confirmations or Failed; a failed provider call never
// fabricates a confirmation.
type Result struct {
	Confirmations map[domain.ProductKind]string
	Failed        []domain.ProductKind
}

// Complete reports whether every requested kind was confirmed.
func (r Result) Complete() bool {
	return len(r.Failed) == 0
}

// Coordinator fans requests out to the configured reservation providers.
// It holds no mutable state and is safe for concurrent use.
type Coordinator struct {
	providers   map[domain.ProductKind]Provider
	callTimeout time.Duration
	log         *zap.Logger
}

const defaultCallTimeout = 10 * time.Second

type CoordinatorOption func(*Coordinator)

// WithCallTimeout bounds each individual provider call.
func WithCallTimeout(d time.Duration) CoordinatorOption {
	return func(c *Coordinator) {
		if d > 0 {
			c.callTimeout = d
		}
	}
}

func NewCoordinator(providers map[domain.ProductKind]Provider, log *zap.Logger, opts ...CoordinatorOption) *Coordinator {
	c := &Coordinator{
		providers:   providers,
		callTimeout: defaultCallTimeout,
		log:         log,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Acquire requests one hold per bundle kind. Provider calls run in
// parallel and fail independently; a timeout or error for one kind is
// reported in Failed without aborting the others.
func (c *Coordinator) Acquire(ctx context.Context, bundle []domain.ProductKind, trip domain.TripDetails) Result {
	res := Result{Confirmations: make(map[domain.ProductKind]string, len(bundle))}
	var mu sync.Mutex
	var g errgroup.Group

	// Kinds with no provider are collected separately and merged after
	// Wait; res.Failed must not be touched while the goroutines run.
	var unconfigured []domain.ProductKind

	seen := make(map[domain.ProductKind]struct{}, len(bundle))
	for _, kind := range bundle {
		if _, dup := seen[kind]; dup {
			continue
		}
		seen[kind] = struct{}{}

		kind := kind
		provider, ok := c.providers[kind]
		if !ok {
			c.log.Warn("no provider configured for kind", zap.String("kind", string(kind)))
			unconfigured = append(unconfigured, kind)
			continue
		}

		g.Go(func() error {
			callCtx, cancel := context.WithTimeout(ctx, c.callTimeout)
			defer cancel()

			confirmation, err := provider.RequestHold(callCtx, trip)
			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				metrics.ProviderFailuresTotal.WithLabelValues(string(kind), "request").Inc()
				c.log.Warn("provider hold request failed",
					zap.String("kind", string(kind)),
					zap.Error(err),
				)
				res.Failed = append(res.Failed, kind)
				return nil
			}
			res.Confirmations[kind] = confirmation
			return nil
		})
	}
	_ = g.Wait()

	res.Failed = append(res.Failed, unconfigured...)
	sortKinds(res.Failed)
	return res
}

// Release cancels every held confirmation, best effort. Cancelling an
// already-void reservation is not an error; failures are logged and
// counted, never returned.
func (c *Coordinator) Release(ctx context.Context, confirmations map[domain.ProductKind]string) {
	var g errgroup.Group
	for kind, confirmation := range confirmations {
		kind, confirmation := kind, confirmation
		provider, ok := c.providers[kind]
		if !ok {
			continue
		}
		g.Go(func() error {
			callCtx, cancel := context.WithTimeout(ctx, c.callTimeout)
			defer cancel()

			if err := provider.CancelHold(callCtx, confirmation); err != nil {
				metrics.ProviderFailuresTotal.WithLabelValues(string(kind), "cancel").Inc()
				c.log.Warn("provider hold release failed",
					zap.String("kind", string(kind)),
					zap.String("confirmation", confirmation),
					zap.Error(err),
				)
			}
			return nil
		})
	}
	_ = g.Wait()
}

// Extend obtains a successor confirmation for each held kind. The
// external providers issue fresh holds rather than mutating old ones,
// so a successful re-acquire releases the predecessor best effort. A
// kind that cannot be re-confirmed keeps its old confirmation and is
// reported in Failed.
func (c *Coordinator) Extend(ctx context.Context, confirmations map[domain.ProductKind]string, trip domain.TripDetails) Result {
	kinds := make([]domain.ProductKind, 0, len(confirmations))
	for kind := range confirmations {
		kinds = append(kinds, kind)
	}

	res := c.Acquire(ctx, kinds, trip)

	// Release superseded holds for the kinds that got a successor.
	superseded := make(map[domain.ProductKind]string, len(res.Confirmations))
	for kind := range res.Confirmations {
		superseded[kind] = confirmations[kind]
	}
	if len(superseded) > 0 {
		c.Release(ctx, superseded)
	}

	// Failed kinds keep their previous confirmation.
	for _, kind := range res.Failed {
		res.Confirmations[kind] = confirmations[kind]
	}
	return res
}

func sortKinds(kinds []domain.ProductKind) {
	sort.Slice(kinds, func(i, j int) bool { return kinds[i] < kinds[j] })
}
