package receiving

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/noven-pro/receiving/internal/platform/db"
)

// Repository provides PostgreSQL backed persistence.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs a repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

const deliveryColumns = `id, supplier, reference, status, received_qty, version, created_at, updated_at`

// CreateDelivery inserts a delivery header.
func (r *Repository) CreateDelivery(ctx context.Context, d Delivery) error {
	_, err := r.pool.Exec(ctx, `
		INSERT INTO receiving_deliveries (`+deliveryColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		d.ID, d.Supplier, d.Reference, string(d.Status), d.ReceivedQty, d.Version, d.CreatedAt, d.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("receiving: insert delivery: %w", err)
	}
	return nil
}

// Load reads the delivery and its items from one snapshot.
func (r *Repository) Load(ctx context.Context, id uuid.UUID) (Snapshot, error) {
	var snap Snapshot
	err := db.WithReadOnlyTx(ctx, r.pool, func(tx pgx.Tx) error {
		row := tx.QueryRow(ctx, `SELECT `+deliveryColumns+` FROM receiving_deliveries WHERE id = $1`, id)
		d, err := scanDelivery(row)
		if err != nil {
			if errors.Is(err, pgx.ErrNoRows) {
				return fmt.Errorf("%w: delivery %s", ErrNotFound, id)
			}
			return err
		}
		items, err := r.loadItems(ctx, tx, id)
		if err != nil {
			return err
		}
		snap = Snapshot{Delivery: d, Items: items}
		return nil
	})
	if err != nil {
		return Snapshot{}, err
	}
	return snap, nil
}

func (r *Repository) loadItems(ctx context.Context, tx pgx.Tx, deliveryID uuid.UUID) ([]Item, error) {
	rows, err := tx.Query(ctx, `
		SELECT id, delivery_id, line_no, expected_qty, received_qty, status, created_at
		FROM receiving_items
		WHERE delivery_id = $1
		ORDER BY line_no`, deliveryID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var items []Item
	for rows.Next() {
		var (
			it     Item
			status string
		)
		if err := rows.Scan(&it.ID, &it.DeliveryID, &it.LineNo, &it.ExpectedQty, &it.ReceivedQty, &status, &it.CreatedAt); err != nil {
			return nil, err
		}
		it.Status = ItemStatus(status)
		items = append(items, it)
	}
	return items, rows.Err()
}

// ListDeliveries returns deliveries in the given statuses, newest first.
func (r *Repository) ListDeliveries(ctx context.Context, statuses []Status) ([]Delivery, error) {
	filter := make([]string, len(statuses))
	for i, s := range statuses {
		filter[i] = string(s)
	}
	rows, err := r.pool.Query(ctx, `
		SELECT `+deliveryColumns+`
		FROM receiving_deliveries
		WHERE cardinality($1::text[]) = 0 OR status = ANY($1::text[])
		ORDER BY created_at DESC, id DESC`, filter)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := []Delivery{}
	for rows.Next() {
		d, err := scanDelivery(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, d)
	}
	return out, rows.Err()
}

// ListPostings returns the receipt history of a delivery, oldest first.
func (r *Repository) ListPostings(ctx context.Context, deliveryID uuid.UUID) ([]Posting, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT id, delivery_id, item_id, batch_id, qty, posted_at
		FROM receiving_postings
		WHERE delivery_id = $1
		ORDER BY seq`, deliveryID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := []Posting{}
	for rows.Next() {
		var p Posting
		if err := rows.Scan(&p.ID, &p.DeliveryID, &p.ItemID, &p.BatchID, &p.Qty, &p.PostedAt); err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

// Commit writes the change in one transaction guarded by the delivery version.
func (r *Repository) Commit(ctx context.Context, change Change) error {
	d := change.Delivery
	err := db.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		tag, err := tx.Exec(ctx, `
			UPDATE receiving_deliveries
			SET status = $3, received_qty = $4, updated_at = $5, version = version + 1
			WHERE id = $1 AND version = $2`,
			d.ID, change.Version, string(d.Status), d.ReceivedQty, d.UpdatedAt,
		)
		if err != nil {
			return err
		}
		if tag.RowsAffected() == 0 {
			var exists bool
			if err := tx.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM receiving_deliveries WHERE id = $1)`, d.ID).Scan(&exists); err != nil {
				return err
			}
			if !exists {
				return fmt.Errorf("%w: delivery %s", ErrNotFound, d.ID)
			}
			return fmt.Errorf("%w: delivery %s moved past version %d", ErrConflict, d.ID, change.Version)
		}

		batch := &pgx.Batch{}
		for _, it := range change.NewItems {
			batch.Queue(`
				INSERT INTO receiving_items (id, delivery_id, line_no, expected_qty, received_qty, status, created_at)
				VALUES ($1, $2, $3, $4, $5, $6, $7)`,
				it.ID, it.DeliveryID, it.LineNo, it.ExpectedQty, it.ReceivedQty, string(it.Status), it.CreatedAt)
		}
		for _, it := range change.Updated {
			batch.Queue(`
				UPDATE receiving_items SET received_qty = $3, status = $4
				WHERE id = $1 AND delivery_id = $2`,
				it.ID, it.DeliveryID, it.ReceivedQty, string(it.Status))
		}
		for _, p := range change.Postings {
			batch.Queue(`
				INSERT INTO receiving_postings (id, delivery_id, item_id, batch_id, qty, posted_at)
				VALUES ($1, $2, $3, $4, $5, $6)`,
				p.ID, p.DeliveryID, p.ItemID, p.BatchID, p.Qty, p.PostedAt)
		}
		if batch.Len() == 0 {
			return nil
		}
		return tx.SendBatch(ctx, batch).Close()
	})
	return mapCommitError(err)
}

// Concurrent writers on the same row surface as serialization failures under
// RepeatableRead; those are version conflicts from the engine's point of view.
func mapCommitError(err error) error {
	if err == nil {
		return nil
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case "40001", "40P01", "23505":
			return fmt.Errorf("%w: %s", ErrConflict, pgErr.Message)
		}
	}
	return err
}

func scanDelivery(row pgx.Row) (Delivery, error) {
	var (
		d      Delivery
		status string
	)
	if err := row.Scan(&d.ID, &d.Supplier, &d.Reference, &status, &d.ReceivedQty, &d.Version, &d.CreatedAt, &d.UpdatedAt); err != nil {
		return Delivery{}, err
	}
	d.Status = Status(status)
	return d, nil
}
