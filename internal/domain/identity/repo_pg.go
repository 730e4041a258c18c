package identity

import (
	"context"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/medconsult/medconsult/internal/platform/apperr"
	"github.com/medconsult/medconsult/internal/platform/db"
)

// translateWrite maps unique violations onto Conflict. Constraint names
// follow <table>_<column>_key.
func translateWrite(err error, notFound string) error {
	if constraint, ok := db.UniqueViolation(err); ok {
		switch {
		case strings.HasSuffix(constraint, "_email_key"):
			return apperr.Conflict("email is already registered")
		case strings.HasSuffix(constraint, "_phone_key"):
			return apperr.Conflict("phone is already registered")
		default:
			return apperr.Conflict("record already exists")
		}
	}
	return db.Translate(err, notFound)
}

// -- Doctor Repository --

type doctorRepoPG struct {
	pool *pgxpool.Pool
}

func NewDoctorRepo(pool *pgxpool.Pool) DoctorRepository {
	return &doctorRepoPG{pool: pool}
}

func (r *doctorRepoPG) conn(ctx context.Context) db.Querier {
	return db.Conn(ctx, r.pool)
}

const doctorCols = `id, name, email, phone, specialty, years_of_experience, profile_picture,
	password_hash, created_at, updated_at`

func (r *doctorRepoPG) Create(ctx context.Context, d *Doctor) error {
	d.ID = uuid.New()
	now := time.Now().UTC()
	d.CreatedAt, d.UpdatedAt = now, now

	_, err := r.conn(ctx).Exec(ctx, `
		INSERT INTO doctor (`+doctorCols+`)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10)`,
		d.ID, d.Name, d.Email, d.Phone, d.Specialty, d.YearsOfExperience, d.ProfilePicture,
		d.PasswordHash, d.CreatedAt, d.UpdatedAt,
	)
	return translateWrite(err, "doctor not found")
}

func (r *doctorRepoPG) GetByID(ctx context.Context, id uuid.UUID) (*Doctor, error) {
	d, err := scanDoctor(r.conn(ctx).QueryRow(ctx, `SELECT `+doctorCols+` FROM doctor WHERE id = $1`, id))
	if err != nil {
		return nil, db.Translate(err, "doctor not found")
	}
	return d, nil
}

func (r *doctorRepoPG) GetByEmail(ctx context.Context, email string) (*Doctor, error) {
	d, err := scanDoctor(r.conn(ctx).QueryRow(ctx, `SELECT `+doctorCols+` FROM doctor WHERE email = $1`, email))
	if err != nil {
		return nil, db.Translate(err, "doctor not found")
	}
	return d, nil
}

func (r *doctorRepoPG) ExistsByEmailOrPhone(ctx context.Context, email, phone string) (bool, error) {
	var exists bool
	err := r.conn(ctx).QueryRow(ctx,
		`SELECT EXISTS (SELECT 1 FROM doctor WHERE email = $1 OR phone = $2)`, email, phone,
	).Scan(&exists)
	if err != nil {
		return false, apperr.Persistence(err)
	}
	return exists, nil
}

func (r *doctorRepoPG) Update(ctx context.Context, d *Doctor) error {
	d.UpdatedAt = time.Now().UTC()
	tag, err := r.conn(ctx).Exec(ctx, `
		UPDATE doctor SET name = $2, email = $3, phone = $4, specialty = $5,
			years_of_experience = $6, profile_picture = $7, password_hash = $8, updated_at = $9
		WHERE id = $1`,
		d.ID, d.Name, d.Email, d.Phone, d.Specialty, d.YearsOfExperience, d.ProfilePicture,
		d.PasswordHash, d.UpdatedAt,
	)
	if err != nil {
		return translateWrite(err, "doctor not found")
	}
	if tag.RowsAffected() == 0 {
		return apperr.NotFound("doctor not found")
	}
	return nil
}

func (r *doctorRepoPG) Delete(ctx context.Context, id uuid.UUID) error {
	tag, err := r.conn(ctx).Exec(ctx, `DELETE FROM doctor WHERE id = $1`, id)
	if err != nil {
		return apperr.Persistence(err)
	}
	if tag.RowsAffected() == 0 {
		return apperr.NotFound("doctor not found")
	}
	return nil
}

func (r *doctorRepoPG) List(ctx context.Context, limit, offset int) ([]*Doctor, int, error) {
	var total int
	if err := r.conn(ctx).QueryRow(ctx, `SELECT COUNT(*) FROM doctor`).Scan(&total); err != nil {
		return nil, 0, apperr.Persistence(err)
	}

	rows, err := r.conn(ctx).Query(ctx, `SELECT `+doctorCols+` FROM doctor ORDER BY created_at, id LIMIT $1 OFFSET $2`, limit, offset)
	if err != nil {
		return nil, 0, apperr.Persistence(err)
	}
	defer rows.Close()

	var items []*Doctor
	for rows.Next() {
		d, err := scanDoctor(rows)
		if err != nil {
			return nil, 0, apperr.Persistence(err)
		}
		items = append(items, d)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, apperr.Persistence(err)
	}
	return items, total, nil
}

func scanDoctor(row pgx.Row) (*Doctor, error) {
	var d Doctor
	err := row.Scan(
		&d.ID, &d.Name, &d.Email, &d.Phone, &d.Specialty, &d.YearsOfExperience, &d.ProfilePicture,
		&d.PasswordHash, &d.CreatedAt, &d.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &d, nil
}

// -- Patient Repository --

type patientRepoPG struct {
	pool *pgxpool.Pool
}

func NewPatientRepo(pool *pgxpool.Pool) PatientRepository {
	return &patientRepoPG{pool: pool}
}

func (r *patientRepoPG) conn(ctx context.Context) db.Querier {
	return db.Conn(ctx, r.pool)
}

const patientCols = `id, name, age, email, phone, history_of_surgery, history_of_illness, profile_picture,
	password_hash, created_at, updated_at`

const replyCols = `message_id, doctor_id, doctor_name, care_to_be_taken, medicines, reply_date`

func (r *patientRepoPG) Create(ctx context.Context, p *Patient) error {
	p.ID = uuid.New()
	now := time.Now().UTC()
	p.CreatedAt, p.UpdatedAt = now, now
	p.Replies = []Reply{}

	_, err := r.conn(ctx).Exec(ctx, `
		INSERT INTO patient (`+patientCols+`)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11)`,
		p.ID, p.Name, p.Age, p.Email, p.Phone, p.HistoryOfSurgery, p.HistoryOfIllness, p.ProfilePicture,
		p.PasswordHash, p.CreatedAt, p.UpdatedAt,
	)
	return translateWrite(err, "patient not found")
}

func (r *patientRepoPG) GetByID(ctx context.Context, id uuid.UUID) (*Patient, error) {
	p, err := scanPatient(r.conn(ctx).QueryRow(ctx, `SELECT `+patientCols+` FROM patient WHERE id = $1`, id))
	if err != nil {
		return nil, db.Translate(err, "patient not found")
	}
	if p.Replies, err = r.replies(ctx, id); err != nil {
		return nil, err
	}
	return p, nil
}

func (r *patientRepoPG) replies(ctx context.Context, patientID uuid.UUID) ([]Reply, error) {
	rows, err := r.conn(ctx).Query(ctx,
		`SELECT `+replyCols+` FROM patient_reply WHERE patient_id = $1 ORDER BY seq`, patientID)
	if err != nil {
		return nil, apperr.Persistence(err)
	}
	defer rows.Close()

	out := []Reply{}
	for rows.Next() {
		var rp Reply
		if err := rows.Scan(&rp.MessageID, &rp.DoctorID, &rp.DoctorName, &rp.CareToBeTaken, &rp.Medicines, &rp.ReplyDate); err != nil {
			return nil, apperr.Persistence(err)
		}
		out = append(out, rp)
	}
	if err := rows.Err(); err != nil {
		return nil, apperr.Persistence(err)
	}
	return out, nil
}

func (r *patientRepoPG) GetByEmail(ctx context.Context, email string) (*Patient, error) {
	p, err := scanPatient(r.conn(ctx).QueryRow(ctx, `SELECT `+patientCols+` FROM patient WHERE email = $1`, email))
	if err != nil {
		return nil, db.Translate(err, "patient not found")
	}
	return p, nil
}

func (r *patientRepoPG) GetByIDs(ctx context.Context, ids []uuid.UUID) ([]*Patient, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	keys := make([]string, len(ids))
	for i, id := range ids {
		keys[i] = id.String()
	}
	rows, err := r.conn(ctx).Query(ctx, `SELECT `+patientCols+` FROM patient WHERE id = ANY($1::uuid[])`, keys)
	if err != nil {
		return nil, apperr.Persistence(err)
	}
	defer rows.Close()

	var items []*Patient
	for rows.Next() {
		p, err := scanPatient(rows)
		if err != nil {
			return nil, apperr.Persistence(err)
		}
		items = append(items, p)
	}
	if err := rows.Err(); err != nil {
		return nil, apperr.Persistence(err)
	}
	return items, nil
}

func (r *patientRepoPG) ExistsByEmailOrPhone(ctx context.Context, email, phone string) (bool, error) {
	var exists bool
	err := r.conn(ctx).QueryRow(ctx,
		`SELECT EXISTS (SELECT 1 FROM patient WHERE email = $1 OR phone = $2)`, email, phone,
	).Scan(&exists)
	if err != nil {
		return false, apperr.Persistence(err)
	}
	return exists, nil
}

func (r *patientRepoPG) Update(ctx context.Context, p *Patient) error {
	p.UpdatedAt = time.Now().UTC()
	tag, err := r.conn(ctx).Exec(ctx, `
		UPDATE patient SET name = $2, age = $3, email = $4, phone = $5, history_of_surgery = $6,
			history_of_illness = $7, profile_picture = $8, password_hash = $9, updated_at = $10
		WHERE id = $1`,
		p.ID, p.Name, p.Age, p.Email, p.Phone, p.HistoryOfSurgery, p.HistoryOfIllness, p.ProfilePicture,
		p.PasswordHash, p.UpdatedAt,
	)
	if err != nil {
		return translateWrite(err, "patient not found")
	}
	if tag.RowsAffected() == 0 {
		return apperr.NotFound("patient not found")
	}
	return nil
}

// Delete removes the patient; patient_reply rows go with it by cascade.
func (r *patientRepoPG) Delete(ctx context.Context, id uuid.UUID) error {
	tag, err := r.conn(ctx).Exec(ctx, `DELETE FROM patient WHERE id = $1`, id)
	if err != nil {
		return apperr.Persistence(err)
	}
	if tag.RowsAffected() == 0 {
		return apperr.NotFound("patient not found")
	}
	return nil
}

func (r *patientRepoPG) List(ctx context.Context, limit, offset int) ([]*Patient, int, error) {
	var total int
	if err := r.conn(ctx).QueryRow(ctx, `SELECT COUNT(*) FROM patient`).Scan(&total); err != nil {
		return nil, 0, apperr.Persistence(err)
	}

	rows, err := r.conn(ctx).Query(ctx, `SELECT `+patientCols+` FROM patient ORDER BY created_at, id LIMIT $1 OFFSET $2`, limit, offset)
	if err != nil {
		return nil, 0, apperr.Persistence(err)
	}
	defer rows.Close()

	var items []*Patient
	for rows.Next() {
		p, err := scanPatient(rows)
		if err != nil {
			return nil, 0, apperr.Persistence(err)
		}
		items = append(items, p)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, apperr.Persistence(err)
	}
	return items, total, nil
}

func scanPatient(row pgx.Row) (*Patient, error) {
	var p Patient
	err := row.Scan(
		&p.ID, &p.Name, &p.Age, &p.Email, &p.Phone, &p.HistoryOfSurgery, &p.HistoryOfIllness, &p.ProfilePicture,
		&p.PasswordHash, &p.CreatedAt, &p.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &p, nil
}

// -- Admin Repository --

type adminRepoPG struct {
	pool *pgxpool.Pool
}

func NewAdminRepo(pool *pgxpool.Pool) AdminRepository {
	return &adminRepoPG{pool: pool}
}

func (r *adminRepoPG) conn(ctx context.Context) db.Querier {
	return db.Conn(ctx, r.pool)
}

const adminCols = `id, name, email, password_hash, created_at`

func (r *adminRepoPG) Create(ctx context.Context, a *Admin) error {
	a.ID = uuid.New()
	a.CreatedAt = time.Now().UTC()

	_, err := r.conn(ctx).Exec(ctx,
		`INSERT INTO admin_user (`+adminCols+`) VALUES ($1,$2,$3,$4,$5)`,
		a.ID, a.Name, a.Email, a.PasswordHash, a.CreatedAt,
	)
	return translateWrite(err, "admin not found")
}

func (r *adminRepoPG) GetByEmail(ctx context.Context, email string) (*Admin, error) {
	var a Admin
	err := r.conn(ctx).QueryRow(ctx, `SELECT `+adminCols+` FROM admin_user WHERE email = $1`, email).Scan(&a.ID, &a.Name, &a.Email, &a.PasswordHash, &a.CreatedAt)
	if err != nil {
		return nil, db.Translate(err, "admin not found")
	}
	return &a, nil
}
