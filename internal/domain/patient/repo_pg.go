package patient

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

type patientRepoPG struct {
	pool *pgxpool.Pool
}

func NewPatientRepo(pool *pgxpool.Pool) Repository {
	return &patientRepoPG{pool: pool}
}

func (r *patientRepoPG) conn(ctx context.Context) queryable {
	if tx := db.TxFromContext(ctx); tx != nil {
		return tx
	}
	if c := db.ConnFromContext(ctx); c != nil {
		return c
	}
	return r.pool
}

const patientColumns = `id, first_name, last_name, dob, gender, national_id, phone, email,
	address, emergency_contact_name, emergency_contact_phone, allergies, known_conditions,
	created_at, updated_at, deleted_at`

func (r *patientRepoPG) Create(ctx context.Context, p *Patient) error {
	p.ID = uuid.New()
	return r.conn(ctx).QueryRow(ctx, `
		INSERT INTO patients (
			id, first_name, last_name, dob, gender, national_id, phone, email,
			address, emergency_contact_name, emergency_contact_phone, allergies, known_conditions
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
		RETURNING created_at, updated_at`,
		p.ID, p.FirstName, p.LastName, p.DOB, string(p.Gender), p.NationalID, p.Phone, p.Email,
		p.Address, p.EmergencyContactName, p.EmergencyContactPhone, p.Allergies, p.KnownConditions,
	).Scan(&p.CreatedAt, &p.UpdatedAt)
}

func (r *patientRepoPG) GetByID(ctx context.Context, id uuid.UUID) (*Patient, error) {
	return scanPatient(r.conn(ctx).QueryRow(ctx,
		`SELECT `+patientColumns+` FROM patients WHERE id = $1 AND deleted_at IS NULL`, id))
}

func (r *patientRepoPG) Update(ctx context.Context, p *Patient) error {
	tag, err := r.conn(ctx).Exec(ctx, `
		UPDATE patients SET
			first_name = $2, last_name = $3, dob = $4, gender = $5, national_id = $6,
			phone = $7, email = $8, address = $9, emergency_contact_name = $10,
			emergency_contact_phone = $11, allergies = $12, known_conditions = $13,
			updated_at = NOW()
		WHERE id = $1 AND deleted_at IS NULL`,
		p.ID, p.FirstName, p.LastName, p.DOB, string(p.Gender), p.NationalID,
		p.Phone, p.Email, p.Address, p.EmergencyContactName,
		p.EmergencyContactPhone, p.Allergies, p.KnownConditions,
	)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return pgx.ErrNoRows
	}
	return nil
}

func (r *patientRepoPG) SoftDelete(ctx context.Context, id uuid.UUID) error {
	tag, err := r.conn(ctx).Exec(ctx,
		`UPDATE patients SET deleted_at = NOW(), updated_at = NOW() WHERE id = $1 AND deleted_at IS NULL`, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return pgx.ErrNoRows
	}
	return nil
}

func (r *patientRepoPG) List(ctx context.Context, search string, p pagination.Params) ([]*Patient, int, error) {
	where := ` WHERE deleted_at IS NULL`
	var args []interface{}
	idx := 1

	if search != "" {
		where += fmt.Sprintf(` AND (first_name ILIKE $%[1]d ESCAPE '\' OR last_name ILIKE $%[1]d ESCAPE '\'
			OR phone ILIKE $%[1]d ESCAPE '\' OR email ILIKE $%[1]d ESCAPE '\')`, idx)
		args = append(args, db.ContainsPattern(search))
		idx++
	}

	var total int
	if err := r.conn(ctx).QueryRow(ctx, `SELECT COUNT(*) FROM patients`+where, args...).Scan(&total); err != nil {
		return nil, 0, err
	}

	query := `SELECT ` + patientColumns + ` FROM patients` + where +
		` ORDER BY ` + p.OrderBy() + `, id` +
		fmt.Sprintf(` LIMIT $%d OFFSET $%d`, idx, idx+1)
	args = append(args, p.Limit, p.Offset())

	rows, err := r.conn(ctx).Query(ctx, query, args...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	var patients []*Patient
	for rows.Next() {
		pt, err := scanPatient(rows)
		if err != nil {
			return nil, 0, err
		}
		patients = append(patients, pt)
	}
	return patients, total, rows.Err()
}

func scanPatient(row pgx.Row) (*Patient, error) {
	var p Patient
	var gender string
	err := row.Scan(
		&p.ID, &p.FirstName, &p.LastName, &p.DOB, &gender, &p.NationalID, &p.Phone, &p.Email,
		&p.Address, &p.EmergencyContactName, &p.EmergencyContactPhone, &p.Allergies, &p.KnownConditions,
		&p.CreatedAt, &p.UpdatedAt, &p.DeletedAt,
	)
	if err != nil {
		return nil, err
	}
	p.Gender = Gender(gender)
	return &p, nil
}
