package consultation

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/medconsult/medconsult/internal/domain/identity"
	"github.com/medconsult/medconsult/internal/platform/apperr"
	"github.com/medconsult/medconsult/internal/platform/db"
)

// -- Message Repository --

type messageRepoPG struct {
	pool *pgxpool.Pool
}

func NewMessageRepo(pool *pgxpool.Pool) MessageRepository {
	return &messageRepoPG{pool: pool}
}

func (r *messageRepoPG) conn(ctx context.Context) db.Querier {
	return db.Conn(ctx, r.pool)
}

const messageCols = `id, doctor_id, patient_id, illness_history, recent_surgery, is_diabetic,
	allergies, others, sent_at, reply_care_to_be_taken, reply_medicines, reply_date,
	reply_doctor_id, reply_doctor_name`

func scanMessage(row pgx.Row) (*Message, error) {
	var (
		m          Message
		care, meds *string
		replyDate  *time.Time
		replyDocID *uuid.UUID
		replyName  *string
	)
	err := row.Scan(&m.ID, &m.DoctorID, &m.PatientID, &m.IllnessHistory, &m.RecentSurgery, &m.IsDiabetic,
		&m.Allergies, &m.Others, &m.SentAt, &care, &meds, &replyDate, &replyDocID, &replyName)
	if err != nil {
		return nil, err
	}
	if replyDate != nil {
		m.Reply = &Reply{ReplyDate: *replyDate}
		if care != nil {
			m.Reply.CareToBeTaken = *care
		}
		if meds != nil {
			m.Reply.Medicines = *meds
		}
		if replyDocID != nil {
			m.Reply.DoctorID = *replyDocID
		}
		if replyName != nil {
			m.Reply.DoctorName = *replyName
		}
	}
	return &m, nil
}

func (r *messageRepoPG) Create(ctx context.Context, m *Message) error {
	m.ID = uuid.New()
	if m.SentAt.IsZero() {
		m.SentAt = time.Now().UTC()
	}
	_, err := r.conn(ctx).Exec(ctx, `
		INSERT INTO consultation_message (id, doctor_id, patient_id, illness_history, recent_surgery,
			is_diabetic, allergies, others, sent_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9)`,
		m.ID, m.DoctorID, m.PatientID, m.IllnessHistory, m.RecentSurgery,
		m.IsDiabetic, m.Allergies, m.Others, m.SentAt,
	)
	return db.Translate(err, "message not found")
}

func (r *messageRepoPG) GetByID(ctx context.Context, id uuid.UUID) (*Message, error) {
	m, err := scanMessage(r.conn(ctx).QueryRow(ctx, `SELECT `+messageCols+` FROM consultation_message WHERE id = $1`, id))
	if err != nil {
		return nil, db.Translate(err, "message not found")
	}
	return m, nil
}

func (r *messageRepoPG) ListByDoctor(ctx context.Context, doctorID uuid.UUID, status Status) ([]*Message, error) {
	q := `SELECT ` + messageCols + ` FROM consultation_message WHERE doctor_id = $1`
	switch status {
	case StatusUnanswered:
		q += ` AND reply_date IS NULL`
	case StatusAnswered:
		q += ` AND reply_date IS NOT NULL`
	}
	q += ` ORDER BY seq`

	rows, err := r.conn(ctx).Query(ctx, q, doctorID)
	if err != nil {
		return nil, apperr.Persistence(err)
	}
	defer rows.Close()

	items := []*Message{}
	for rows.Next() {
		m, err := scanMessage(rows)
		if err != nil {
			return nil, apperr.Persistence(err)
		}
		items = append(items, m)
	}
	if err := rows.Err(); err != nil {
		return nil, apperr.Persistence(err)
	}
	return items, nil
}

const setReplySQL = `
	UPDATE consultation_message SET reply_care_to_be_taken=$2, reply_medicines=$3, reply_date=$4,
		reply_doctor_id=$5, reply_doctor_name=$6
	WHERE id = $1`

func (r *messageRepoPG) SetReply(ctx context.Context, id uuid.UUID, rp Reply) error {
	tag, err := r.conn(ctx).Exec(ctx, setReplySQL,
		id, rp.CareToBeTaken, rp.Medicines, rp.ReplyDate, rp.DoctorID, rp.DoctorName)
	if err != nil {
		return apperr.Persistence(err)
	}
	if tag.RowsAffected() == 0 {
		return apperr.NotFound("message not found")
	}
	return nil
}

func (r *messageRepoPG) SetFirstReply(ctx context.Context, id uuid.UUID, rp Reply) error {
	tag, err := r.conn(ctx).Exec(ctx, setReplySQL+` AND reply_date IS NULL`,
		id, rp.CareToBeTaken, rp.Medicines, rp.ReplyDate, rp.DoctorID, rp.DoctorName)
	if err != nil {
		return apperr.Persistence(err)
	}
	if tag.RowsAffected() > 0 {
		return nil
	}

	var exists bool
	if err := r.conn(ctx).QueryRow(ctx,
		`SELECT EXISTS (SELECT 1 FROM consultation_message WHERE id = $1)`, id).Scan(&exists); err != nil {
		return apperr.Persistence(err)
	}
	if !exists {
		return apperr.NotFound("message not found")
	}
	return apperr.AlreadyAnswered("message has already been answered")
}

// -- Patient Reply History --

type replyAppenderPG struct {
	pool *pgxpool.Pool
}

func NewReplyAppender(pool *pgxpool.Pool) ReplyAppender {
	return &replyAppenderPG{pool: pool}
}

func (r *replyAppenderPG) AppendReply(ctx context.Context, patientID uuid.UUID, rp identity.Reply) error {
	_, err := db.Conn(ctx, r.pool).Exec(ctx, `
		INSERT INTO patient_reply (patient_id, message_id, doctor_id, doctor_name, care_to_be_taken,
			medicines, reply_date)
		VALUES ($1,$2,$3,$4,$5,$6,$7)`,
		patientID, rp.MessageID, rp.DoctorID, rp.DoctorName, rp.CareToBeTaken, rp.Medicines, rp.ReplyDate,
	)
	return db.Translate(err, "patient not found")
}
