package order

import (
	"context"
	"fmt"

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

type orderRepoPG struct {
	pool *pgxpool.Pool
}

func NewOrderRepo(pool *pgxpool.Pool) Repository {
	return &orderRepoPG{pool: pool}
}

func (r *orderRepoPG) conn(ctx context.Context) queryable {
	if tx := db.TxFromContext(ctx); tx != nil {
		return tx
	}
	if c := db.ConnFromContext(ctx); c != nil {
		return c
	}
	return r.pool
}

func (r *orderRepoPG) GetPatient(ctx context.Context, id uuid.UUID) (*PatientHeader, error) {
	lock := ""
	if db.TxFromContext(ctx) != nil {
		lock = " FOR SHARE"
	}
	var p PatientHeader
	err := r.conn(ctx).QueryRow(ctx, `
		SELECT id, first_name, last_name, dob, gender, allergies, known_conditions
		FROM patients WHERE id = $1 AND deleted_at IS NULL`+lock, id,
	).Scan(&p.ID, &p.FirstName, &p.LastName, &p.DOB, &p.Gender, &p.Allergies, &p.KnownConditions)
	if err != nil {
		return nil, err
	}
	return &p, nil
}

func (r *orderRepoPG) GetClinicianName(ctx context.Context, id uuid.UUID) (string, error) {
	var name string
	err := r.conn(ctx).QueryRow(ctx, `
		SELECT u.name FROM clinicians c JOIN users u ON u.id = c.user_id
		WHERE c.id = $1`, id).Scan(&name)
	return name, err
}

func (r *orderRepoPG) Insert(ctx context.Context, o *Order) error {
	o.ID = uuid.New()
	return r.conn(ctx).QueryRow(ctx, `
		INSERT INTO prescriptions (id, patient_id, clinician_id, notes, status)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING issue_date, created_at, updated_at`,
		o.ID, o.PatientID, o.ClinicianID, o.Notes, string(o.Status),
	).Scan(&o.IssueDate, &o.CreatedAt, &o.UpdatedAt)
}

func (r *orderRepoPG) InsertItem(ctx context.Context, it *Item) error {
	it.ID = uuid.New()
	return r.conn(ctx).QueryRow(ctx, `
		INSERT INTO prescription_items (
			id, prescription_id, position, inventory_id, med_name,
			dose, frequency, route, quantity, instructions
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		RETURNING created_at`,
		it.ID, it.OrderID, it.Position, it.InventoryID, it.MedName,
		it.Dose, it.Frequency, it.Route, it.Quantity, it.Instructions,
	).Scan(&it.CreatedAt)
}

const orderSelect = `SELECT p.id, p.patient_id, p.clinician_id, p.issue_date, p.notes, p.status,
	p.created_at, p.updated_at, pt.first_name || ' ' || pt.last_name, u.name, c.specialization
	FROM prescriptions p
	JOIN patients pt ON pt.id = p.patient_id
	JOIN clinicians c ON c.id = p.clinician_id
	JOIN users u ON u.id = c.user_id`

func (r *orderRepoPG) GetByID(ctx context.Context, id uuid.UUID) (*Order, error) {
	return scanOrder(r.conn(ctx).QueryRow(ctx, orderSelect+` WHERE p.id = $1`, id))
}

func (r *orderRepoPG) ItemsFor(ctx context.Context, orderIDs []uuid.UUID) (map[uuid.UUID][]*Item, error) {
	out := make(map[uuid.UUID][]*Item, len(orderIDs))
	if len(orderIDs) == 0 {
		return out, nil
	}
	rows, err := r.conn(ctx).Query(ctx, `
		SELECT i.id, i.prescription_id, i.position, i.inventory_id, i.med_name, i.dose,
			i.frequency, i.route, i.quantity, i.instructions, i.created_at,
			inv.sku, inv.batch_number
		FROM prescription_items i
		LEFT JOIN inventory inv ON inv.id = i.inventory_id
		WHERE i.prescription_id = ANY($1)
		ORDER BY i.prescription_id, i.position`, orderIDs)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	for rows.Next() {
		var it Item
		if err := rows.Scan(
			&it.ID, &it.OrderID, &it.Position, &it.InventoryID, &it.MedName, &it.Dose,
			&it.Frequency, &it.Route, &it.Quantity, &it.Instructions, &it.CreatedAt,
			&it.SKU, &it.BatchNumber,
		); err != nil {
			return nil, err
		}
		out[it.OrderID] = append(out[it.OrderID], &it)
	}
	return out, rows.Err()
}

func (r *orderRepoPG) Update(ctx context.Context, id uuid.UUID, notes *string, status *Status) error {
	set := ``
	var args []interface{}
	idx := 1

	if notes != nil {
		set += fmt.Sprintf(`notes = $%d, `, idx)
		args = append(args, *notes)
		idx++
	}
	if status != nil {
		set += fmt.Sprintf(`status = $%d, `, idx)
		args = append(args, string(*status))
		idx++
	}
	args = append(args, id)

	tag, err := r.conn(ctx).Exec(ctx,
		`UPDATE prescriptions SET `+set+`updated_at = NOW()`+fmt.Sprintf(` WHERE id = $%d`, idx), args...)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return pgx.ErrNoRows
	}
	return nil
}

var sortColumns = map[string]string{
	"issue_date": "p.issue_date",
	"created_at": "p.created_at",
	"status":     "p.status",
}

func (r *orderRepoPG) List(ctx context.Context, f ListFilter, p pagination.Params) ([]*Summary, int, error) {
	from := ` FROM prescriptions p
		JOIN patients pt ON pt.id = p.patient_id
		JOIN clinicians c ON c.id = p.clinician_id
		JOIN users u ON u.id = c.user_id
		WHERE 1=1`
	var args []interface{}
	idx := 1

	if f.Status != "" {
		from += fmt.Sprintf(` AND p.status = $%d`, idx)
		args = append(args, string(f.Status))
		idx++
	}
	if f.PatientID != nil {
		from += fmt.Sprintf(` AND p.patient_id = $%d`, idx)
		args = append(args, *f.PatientID)
		idx++
	}
	if f.ClinicianID != nil {
		from += fmt.Sprintf(` AND p.clinician_id = $%d`, idx)
		args = append(args, *f.ClinicianID)
		idx++
	}
	if f.DateFrom != nil {
		from += fmt.Sprintf(` AND p.issue_date >= $%d`, idx)
		args = append(args, *f.DateFrom)
		idx++
	}
	if f.DateTo != nil {
		from += fmt.Sprintf(` AND p.issue_date <= $%d`, idx)
		args = append(args, *f.DateTo)
		idx++
	}
	if f.Search != "" {
		from += fmt.Sprintf(` AND (pt.first_name ILIKE $%d ESCAPE '\' OR pt.last_name ILIKE $%d ESCAPE '\'
			OR (pt.first_name || ' ' || pt.last_name) ILIKE $%d ESCAPE '\')`, idx, idx, idx)
		args = append(args, db.ContainsPattern(f.Search))
		idx++
	}

	var total int
	if err := r.conn(ctx).QueryRow(ctx, `SELECT COUNT(*)`+from, args...).Scan(&total); err != nil {
		return nil, 0, err
	}

	col, ok := sortColumns[p.Sort]
	if !ok {
		col = sortColumns["created_at"]
	}
	query := `SELECT p.id, p.patient_id, p.clinician_id, p.issue_date, p.status,
		pt.first_name || ' ' || pt.last_name, u.name, p.created_at,
		(SELECT COUNT(*) FROM prescription_items i WHERE i.prescription_id = p.id)` + from +
		fmt.Sprintf(` ORDER BY %s %s, p.id LIMIT $%d OFFSET $%d`, col, p.Direction(), idx, idx+1)
	args = append(args, p.Limit, p.Offset())

	rows, err := r.conn(ctx).Query(ctx, query, args...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	var out []*Summary
	for rows.Next() {
		var s Summary
		var status string
		if err := rows.Scan(&s.ID, &s.PatientID, &s.ClinicianID, &s.IssueDate, &status,
			&s.PatientName, &s.ClinicianName, &s.CreatedAt, &s.ItemsCount); err != nil {
			return nil, 0, err
		}
		s.Status = Status(status)
		out = append(out, &s)
	}
	return out, total, rows.Err()
}

func (r *orderRepoPG) ListByPatient(ctx context.Context, patientID uuid.UUID) ([]*Order, error) {
	rows, err := r.conn(ctx).Query(ctx,
		orderSelect+` WHERE p.patient_id = $1 ORDER BY p.issue_date DESC, p.id`, patientID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*Order
	for rows.Next() {
		o, err := scanOrder(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, o)
	}
	return out, rows.Err()
}

func scanOrder(row pgx.Row) (*Order, error) {
	var o Order
	var status string
	err := row.Scan(&o.ID, &o.PatientID, &o.ClinicianID, &o.IssueDate, &o.Notes, &status,
		&o.CreatedAt, &o.UpdatedAt, &o.PatientName, &o.ClinicianName, &o.Specialization)
	if err != nil {
		return nil, err
	}
	o.Status = Status(status)
	return &o, nil
}
