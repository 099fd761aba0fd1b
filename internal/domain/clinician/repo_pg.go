package clinician

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

type clinicianRepoPG struct {
	pool *pgxpool.Pool
}

func NewClinicianRepo(pool *pgxpool.Pool) Repository {
	return &clinicianRepoPG{pool: pool}
}

func (r *clinicianRepoPG) conn(ctx context.Context) queryable {
	if tx := db.TxFromContext(ctx); tx != nil {
		return tx
	}
	if c := db.ConnFromContext(ctx); c != nil {
		return c
	}
	return r.pool
}

const clinicianSelect = `SELECT c.id, c.user_id, c.department_id, c.license_number,
	c.specialization, c.phone, c.created_at, c.updated_at,
	u.name, u.email, d.name
	FROM clinicians c
	JOIN users u ON u.id = c.user_id
	LEFT JOIN departments d ON d.id = c.department_id
	WHERE u.deleted_at IS NULL`

// sortColumns maps public sort names onto qualified columns.
var sortColumns = map[string]string{
	"name":           "u.name",
	"specialization": "c.specialization",
	"created_at":     "c.created_at",
}

func (r *clinicianRepoPG) Create(ctx context.Context, c *Clinician) error {
	c.ID = uuid.New()
	return r.conn(ctx).QueryRow(ctx, `
		INSERT INTO clinicians (id, user_id, department_id, license_number, specialization, phone)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING created_at, updated_at`,
		c.ID, c.UserID, c.DepartmentID, c.LicenseNumber, c.Specialization, c.Phone,
	).Scan(&c.CreatedAt, &c.UpdatedAt)
}

func (r *clinicianRepoPG) GetByID(ctx context.Context, id uuid.UUID) (*Clinician, error) {
	return scanClinician(r.conn(ctx).QueryRow(ctx, clinicianSelect+` AND c.id = $1`, id))
}

func (r *clinicianRepoPG) GetByUserID(ctx context.Context, userID uuid.UUID) (*Clinician, error) {
	return scanClinician(r.conn(ctx).QueryRow(ctx, clinicianSelect+` AND c.user_id = $1`, userID))
}

func (r *clinicianRepoPG) Delete(ctx context.Context, id uuid.UUID) error {
	tag, err := r.conn(ctx).Exec(ctx, `DELETE FROM clinicians WHERE id = $1`, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return pgx.ErrNoRows
	}
	return nil
}

func (r *clinicianRepoPG) List(ctx context.Context, p pagination.Params) ([]*Clinician, int, error) {
	var total int
	err := r.conn(ctx).QueryRow(ctx, `
		SELECT COUNT(*) FROM clinicians c JOIN users u ON u.id = c.user_id
		WHERE u.deleted_at IS NULL`).Scan(&total)
	if err != nil {
		return nil, 0, err
	}

	col, ok := sortColumns[p.Sort]
	if !ok {
		col = sortColumns["name"]
	}
	query := clinicianSelect + fmt.Sprintf(` ORDER BY %s %s, c.id LIMIT $1 OFFSET $2`, col, p.Direction())
	rows, err := r.conn(ctx).Query(ctx, query, p.Limit, p.Offset())
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	var out []*Clinician
	for rows.Next() {
		c, err := scanClinician(rows)
		if err != nil {
			return nil, 0, err
		}
		out = append(out, c)
	}
	return out, total, rows.Err()
}

func (r *clinicianRepoPG) GetStaffAccount(ctx context.Context, userID uuid.UUID) (*StaffAccount, error) {
	var a StaffAccount
	err := r.conn(ctx).QueryRow(ctx,
		`SELECT id, name, role FROM users WHERE id = $1 AND deleted_at IS NULL`, userID,
	).Scan(&a.ID, &a.Name, &a.Role)
	if err != nil {
		return nil, err
	}
	return &a, nil
}

func (r *clinicianRepoPG) DepartmentExists(ctx context.Context, id uuid.UUID) (bool, error) {
	var exists bool
	err := r.conn(ctx).QueryRow(ctx, `SELECT EXISTS(SELECT 1 FROM departments WHERE id = $1)`, id).Scan(&exists)
	return exists, err
}

func (r *clinicianRepoPG) CountOrders(ctx context.Context, id uuid.UUID) (int, error) {
	var n int
	err := r.conn(ctx).QueryRow(ctx, `SELECT COUNT(*) FROM prescriptions WHERE clinician_id = $1`, id).Scan(&n)
	return n, err
}

func scanClinician(row pgx.Row) (*Clinician, error) {
	var c Clinician
	err := row.Scan(
		&c.ID, &c.UserID, &c.DepartmentID, &c.LicenseNumber, &c.Specialization, &c.Phone,
		&c.CreatedAt, &c.UpdatedAt, &c.Name, &c.Email, &c.DepartmentName,
	)
	if err != nil {
		return nil, err
	}
	return &c, nil
}
