package inventory

import (
	"context"
	"fmt"
	"sort"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/ehr/clinic/internal/platform/db"
	"github.com/ehr/clinic/pkg/pagination"
)

type queryable interface {
	Exec(ctx context.Context, sql string, args ...interface{}) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...interface{}) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...interface{}) pgx.Row
}

type itemRepoPG struct {
	pool *pgxpool.Pool
}

func NewItemRepo(pool *pgxpool.Pool) Repository {
	return &itemRepoPG{pool: pool}
}

func (r *itemRepoPG) conn(ctx context.Context) queryable {
	if tx := db.TxFromContext(ctx); tx != nil {
		return tx
	}
	if c := db.ConnFromContext(ctx); c != nil {
		return c
	}
	return r.pool
}

const itemColumns = `id, sku, name, description, batch_number, expiry_date, unit,
	quantity, location, created_at, updated_at`

func (r *itemRepoPG) Create(ctx context.Context, item *Item) error {
	item.ID = uuid.New()
	return r.conn(ctx).QueryRow(ctx, `
		INSERT INTO inventory (
			id, sku, name, description, batch_number, expiry_date, unit, quantity, location
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		RETURNING created_at, updated_at`,
		item.ID, item.SKU, item.Name, item.Description, item.BatchNumber,
		item.ExpiryDate, item.Unit, item.Quantity, item.Location,
	).Scan(&item.CreatedAt, &item.UpdatedAt)
}

func (r *itemRepoPG) GetByID(ctx context.Context, id uuid.UUID) (*Item, error) {
	return scanItem(r.conn(ctx).QueryRow(ctx, `SELECT `+itemColumns+` FROM inventory WHERE id = $1`, id))
}

func (r *itemRepoPG) GetBySKU(ctx context.Context, sku string) (*Item, error) {
	return scanItem(r.conn(ctx).QueryRow(ctx, `SELECT `+itemColumns+` FROM inventory WHERE sku = $1`, sku))
}

func (r *itemRepoPG) Update(ctx context.Context, id uuid.UUID, ch Changes) error {
	set := ``
	var args []interface{}
	idx := 1

	add := func(col string, v interface{}) {
		set += fmt.Sprintf(`%s = $%d, `, col, idx)
		args = append(args, v)
		idx++
	}
	if ch.SKU != nil {
		add("sku", *ch.SKU)
	}
	if ch.Name != nil {
		add("name", *ch.Name)
	}
	if ch.Description != nil {
		add("description", *ch.Description)
	}
	if ch.BatchNumber != nil {
		add("batch_number", *ch.BatchNumber)
	}
	if ch.ExpiryDate != nil {
		add("expiry_date", *ch.ExpiryDate)
	}
	if ch.Unit != nil {
		add("unit", *ch.Unit)
	}
	if ch.Quantity != nil {
		add("quantity", *ch.Quantity)
	}
	if ch.Location != nil {
		add("location", *ch.Location)
	}
	args = append(args, id)

	tag, err := r.conn(ctx).Exec(ctx,
		`UPDATE inventory SET `+set+`updated_at = NOW()`+fmt.Sprintf(` WHERE id = $%d`, idx), args...)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return pgx.ErrNoRows
	}
	return nil
}

// Delete removes the row; prescription_items.inventory_id is cleared by the
// foreign key.
func (r *itemRepoPG) Delete(ctx context.Context, id uuid.UUID) error {
	tag, err := r.conn(ctx).Exec(ctx, `DELETE FROM inventory WHERE id = $1`, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return pgx.ErrNoRows
	}
	return nil
}

func (r *itemRepoPG) List(ctx context.Context, f Filter, p pagination.Params) ([]*Item, int, error) {
	where := ` WHERE 1=1`
	var args []interface{}
	idx := 1

	if f.Search != "" {
		where += fmt.Sprintf(` AND (name ILIKE $%d ESCAPE '\' OR sku ILIKE $%d ESCAPE '\' OR description ILIKE $%d ESCAPE '\')`, idx, idx, idx)
		args = append(args, db.ContainsPattern(f.Search))
		idx++
	}
	if f.LowStockBelow > 0 {
		where += fmt.Sprintf(` AND quantity < $%d`, idx)
		args = append(args, f.LowStockBelow)
		idx++
	}
	if f.ExpiringWithinDays > 0 {
		where += fmt.Sprintf(` AND expiry_date IS NOT NULL AND expiry_date <= CURRENT_DATE + $%d::int`, idx)
		args = append(args, f.ExpiringWithinDays)
		idx++
	}

	var total int
	if err := r.conn(ctx).QueryRow(ctx, `SELECT COUNT(*) FROM inventory`+where, args...).Scan(&total); err != nil {
		return nil, 0, err
	}

	query := `SELECT ` + itemColumns + ` FROM inventory` + where +
		` ORDER BY ` + p.OrderBy() + `, id` +
		fmt.Sprintf(` LIMIT $%d OFFSET $%d`, idx, idx+1)
	args = append(args, p.Limit, p.Offset())

	rows, err := r.conn(ctx).Query(ctx, query, args...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	var items []*Item
	for rows.Next() {
		item, err := scanItem(rows)
		if err != nil {
			return nil, 0, err
		}
		items = append(items, item)
	}
	return items, total, rows.Err()
}

func (r *itemRepoPG) LockByIDs(ctx context.Context, ids []uuid.UUID) (map[uuid.UUID]*Item, error) {
	out := make(map[uuid.UUID]*Item, len(ids))
	if len(ids) == 0 {
		return out, nil
	}
	sorted := append([]uuid.UUID(nil), ids...)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].String() < sorted[j].String() })

	rows, err := r.conn(ctx).Query(ctx,
		`SELECT `+itemColumns+` FROM inventory WHERE id = ANY($1) ORDER BY id FOR UPDATE`, sorted)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	for rows.Next() {
		item, err := scanItem(rows)
		if err != nil {
			return nil, err
		}
		out[item.ID] = item
	}
	return out, rows.Err()
}

func (r *itemRepoPG) Decrement(ctx context.Context, id uuid.UUID, qty int) (int, bool, error) {
	var remaining int
	err := r.conn(ctx).QueryRow(ctx, `
		UPDATE inventory SET quantity = quantity - $2, updated_at = NOW()
		WHERE id = $1 AND quantity >= $2
		RETURNING quantity`, id, qty).Scan(&remaining)
	if err == pgx.ErrNoRows {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, err
	}
	return remaining, true, nil
}

func scanItem(row pgx.Row) (*Item, error) {
	var it Item
	err := row.Scan(
		&it.ID, &it.SKU, &it.Name, &it.Description, &it.BatchNumber, &it.ExpiryDate,
		&it.Unit, &it.Quantity, &it.Location, &it.CreatedAt, &it.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &it, nil
}
