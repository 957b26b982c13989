package postgres

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/adityash8/proofport/internal/domain"
)

type OrderRepository struct {
	pool *pgxpool.Pool
}

func NewOrderRepository(pool *pgxpool.Pool) *OrderRepository {
	return &OrderRepository{pool: pool}
}

func (r *OrderRepository) WithTx(ctx context.Context, fn func(ctx context.Context) error) error {
	return withTx(ctx, r.pool, fn)
}

const orderColumns = `
id, owner_id, bundle, confirmations, created_at, expires_at, status,
risk_score, risk_level, risk_reasons, risk_blocked, trip,
cancel_reason, warned_at, updated_at`

// tripRecord is the stored shape of domain.TripDetails. The domain
// struct stays free of serialization tags.
type tripRecord struct {
	Origin      string    `json:"origin"`
	Destination string    `json:"destination"`
	TravelDate  time.Time `json:"travel_date"`
	Passengers  int       `json:"passengers"`
	VisaType    string    `json:"visa_type,omitempty"`
}

func (r *OrderRepository) CreateOrder(ctx context.Context, order domain.Order) error {
	confirmations, trip, err := encodeOrder(order)
	if err != nil {
		return err
	}

	bundle := make([]string, len(order.Bundle))
	for i, kind := range order.Bundle {
		bundle[i] = string(kind)
	}

	const stmt = `
INSERT INTO orders (
	id, owner_id, bundle, confirmations, created_at, expires_at, status,
	risk_score, risk_level, risk_reasons, risk_blocked, trip,
	cancel_reason, warned_at, updated_at
)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, NULLIF($13, ''), $14, $15)`

	_, err = r.exec(ctx, stmt,
		order.ID,
		order.Owner,
		bundle,
		confirmations,
		order.CreatedAt,
		order.ExpiresAt,
		string(order.Status),
		order.Risk.Score,
		string(order.Risk.Level),
		order.Risk.Reasons,
		order.Risk.Block,
		trip,
		order.CancelReason,
		order.WarnedAt,
		order.UpdatedAt,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("create order %s: duplicate id: %w", order.ID, err)
		}
		if isInvalidUUID(err) {
			return domain.ErrInvalidID
		}
		return fmt.Errorf("create order: %w", err)
	}
	return nil
}

func (r *OrderRepository) GetOrder(ctx context.Context, id string) (domain.Order, error) {
	query := `SELECT ` + orderColumns + ` FROM orders WHERE id = $1`
	return r.scanOne(r.queryRow(ctx, query, id))
}

func (r *OrderRepository) GetOrderForUpdate(ctx context.Context, id string) (domain.Order, error) {
	query := `SELECT ` + orderColumns + ` FROM orders WHERE id = $1 FOR UPDATE`
	return r.scanOne(r.queryRow(ctx, query, id))
}

func (r *OrderRepository) UpdateExtension(ctx context.Context, id string, confirmations map[domain.ProductKind]string, expiresAt, updatedAt time.Time) error {
	raw, err := encodeConfirmations(confirmations)
	if err != nil {
		return err
	}

	const stmt = `
UPDATE orders
SET confirmations = $2, expires_at = $3, warned_at = NULL, updated_at = $4
WHERE id = $1`

	tag, err := r.exec(ctx, stmt, id, raw, expiresAt, updatedAt)
	if err != nil {
		if isInvalidUUID(err) {
			return domain.ErrInvalidID
		}
		return fmt.Errorf("update extension: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrOrderNotFound
	}
	return nil
}

func (r *OrderRepository) UpdateStatus(ctx context.Context, id string, status domain.OrderStatus, reason string, updatedAt time.Time) error {
	const stmt = `
UPDATE orders
SET status = $2, cancel_reason = COALESCE(NULLIF($3, ''), cancel_reason), updated_at = $4
WHERE id = $1`

	tag, err := r.exec(ctx, stmt, id, string(status), reason, updatedAt)
	if err != nil {
		if isInvalidUUID(err) {
			return domain.ErrInvalidID
		}
		return fmt.Errorf("update status: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrOrderNotFound
	}
	return nil
}

func (r *OrderRepository) MarkWarned(ctx context.Context, id string, warnedAt time.Time) error {
	const stmt = `UPDATE orders SET warned_at = $2 WHERE id = $1`

	tag, err := r.exec(ctx, stmt, id, warnedAt)
	if err != nil {
		if isInvalidUUID(err) {
			return domain.ErrInvalidID
		}
		return fmt.Errorf("mark warned: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrOrderNotFound
	}
	return nil
}

func (r *OrderRepository) ListActive(ctx context.Context) ([]domain.Order, error) {
	query := `SELECT ` + orderColumns + ` FROM orders WHERE status = 'active' ORDER BY created_at`
	return r.scanMany(ctx, query)
}

// ListExpiring returns active orders whose expiry falls between now and
// now+within. Orders already past expiry are deliberately excluded: the
// sweeper cancels those in the same run, so warning about them would be
// noise.
func (r *OrderRepository) ListExpiring(ctx context.Context, now time.Time, within time.Duration) ([]domain.Order, error) {
	query := `SELECT ` + orderColumns + `
FROM orders
WHERE status = 'active' AND expires_at >= $1 AND expires_at <= $2
ORDER BY expires_at`
	return r.scanMany(ctx, query, now, now.Add(within))
}

func (r *OrderRepository) ListPastExpiry(ctx context.Context, asOf time.Time) ([]domain.Order, error) {
	query := `SELECT ` + orderColumns + `
FROM orders
WHERE status = 'active' AND expires_at < $1
ORDER BY expires_at`
	return r.scanMany(ctx, query, asOf)
}

func (r *OrderRepository) scanOne(row pgx.Row) (domain.Order, error) {
	order, err := scanOrder(row)
	if err != nil {
		if isInvalidUUID(err) {
			return domain.Order{}, domain.ErrInvalidID
		}
		if err == pgx.ErrNoRows {
			return domain.Order{}, domain.ErrOrderNotFound
		}
		return domain.Order{}, fmt.Errorf("get order: %w", err)
	}
	return order, nil
}

func (r *OrderRepository) scanMany(ctx context.Context, query string, args ...any) ([]domain.Order, error) {
	rows, err := r.query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list orders: %w", err)
	}
	defer rows.Close()

	var out []domain.Order
	for rows.Next() {
		order, err := scanOrder(rows)
		if err != nil {
			return nil, fmt.Errorf("scan order: %w", err)
		}
		out = append(out, order)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list orders: %w", err)
	}
	return out, nil
}

func scanOrder(row pgx.Row) (domain.Order, error) {
	var (
		o             domain.Order
		bundle        []string
		confirmations []byte
		status        string
		level         string
		reasons       []string
		trip          []byte
		cancelReason  *string
	)

	err := row.Scan(
		&o.ID, &o.Owner, &bundle, &confirmations, &o.CreatedAt, &o.ExpiresAt, &status,
		&o.Risk.Score, &level, &reasons, &o.Risk.Block, &trip,
		&cancelReason, &o.WarnedAt, &o.UpdatedAt,
	)
	if err != nil {
		return domain.Order{}, err
	}

	o.Status = domain.OrderStatus(status)
	o.Risk.Level = domain.RiskLevel(level)
	o.Risk.Reasons = reasons
	if cancelReason != nil {
		o.CancelReason = *cancelReason
	}

	o.Bundle = make([]domain.ProductKind, len(bundle))
	for i, kind := range bundle {
		o.Bundle[i] = domain.ProductKind(kind)
	}

	raw := make(map[string]string)
	if len(confirmations) > 0 {
		if err := json.Unmarshal(confirmations, &raw); err != nil {
			return domain.Order{}, fmt.Errorf("decode confirmations: %w", err)
		}
	}
	o.Confirmations = make(map[domain.ProductKind]string, len(raw))
	for kind, confirmation := range raw {
		o.Confirmations[domain.ProductKind(kind)] = confirmation
	}

	var tr tripRecord
	if len(trip) > 0 {
		if err := json.Unmarshal(trip, &tr); err != nil {
			return domain.Order{}, fmt.Errorf("decode trip: %w", err)
		}
	}
	o.Trip = domain.TripDetails{
		Origin:      tr.Origin,
		Destination: tr.Destination,
		TravelDate:  tr.TravelDate,
		Passengers:  tr.Passengers,
		VisaType:    tr.VisaType,
	}

	return o, nil
}

func encodeOrder(order domain.Order) (confirmations, trip []byte, err error) {
	confirmations, err = encodeConfirmations(order.Confirmations)
	if err != nil {
		return nil, nil, err
	}

	trip, err = json.Marshal(tripRecord{
		Origin:      order.Trip.Origin,
		Destination: order.Trip.Destination,
		TravelDate:  order.Trip.TravelDate,
		Passengers:  order.Trip.Passengers,
		VisaType:    order.Trip.VisaType,
	})
	if err != nil {
		return nil, nil, fmt.Errorf("encode trip: %w", err)
	}
	return confirmations, trip, nil
}

func encodeConfirmations(confirmations map[domain.ProductKind]string) ([]byte, error) {
	raw := make(map[string]string, len(confirmations))
	for kind, confirmation := range confirmations {
		raw[string(kind)] = confirmation
	}
	encoded, err := json.Marshal(raw)
	if err != nil {
		return nil, fmt.Errorf("encode confirmations: %w", err)
	}
	return encoded, nil
}

func (r *OrderRepository) exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error) {
	if tx := txFromContext(ctx); tx != nil {
		return tx.Exec(ctx, sql, args...)
	}
	return r.pool.Exec(ctx, sql, args...)
}

func (r *OrderRepository) query(ctx context.Context, sql string, args ...any) (pgx.Rows, error) {
	if tx := txFromContext(ctx); tx != nil {
		return tx.Query(ctx, sql, args...)
	}
	return r.pool.Query(ctx, sql, args...)
}

func (r *OrderRepository) queryRow(ctx context.Context, sql string, args ...any) pgx.Row {
	if tx := txFromContext(ctx); tx != nil {
		return tx.QueryRow(ctx, sql, args...)
	}
	return r.pool.QueryRow(ctx, sql, args...)
}
