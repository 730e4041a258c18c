package consultation

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/medconsult/medconsult/internal/domain/identity"
	"github.com/medconsult/medconsult/internal/platform/apperr"
	"github.com/medconsult/medconsult/internal/platform/auth"
	"github.com/medconsult/medconsult/internal/platform/report"
)

// ReplyPolicy decides what a second reply to the same message does.
type ReplyPolicy string

const (
	// PolicyOverwrite replaces the message's reply and still appends to the
	// patient's history, so the two copies can diverge.
	PolicyOverwrite ReplyPolicy = "overwrite"
	// PolicyReject refuses a reply to an answered message.
	PolicyReject ReplyPolicy = "reject"
)

type Service struct {
	messages  MessageRepository
	replies   ReplyAppender
	directory Directory
	tx        Transactor
	policy    ReplyPolicy
	logger    zerolog.Logger
	now       func() time.Time
}

func NewService(messages MessageRepository, replies ReplyAppender, directory Directory, tx Transactor, policy ReplyPolicy, logger zerolog.Logger) *Service {
	if policy == "" {
		policy = PolicyOverwrite
	}
	return &Service{
		messages:  messages,
		replies:   replies,
		directory: directory,
		tx:        tx,
		policy:    policy,
		logger:    logger,
		now:       func() time.Time { return time.Now().UTC() },
	}
}

// -- Intake --

// SubmitConsultation records a new unanswered message from patientID to
// doctorID.
func (s *Service) SubmitConsultation(ctx context.Context, doctorID, patientID uuid.UUID, in Intake) (*Message, error) {
	m := &Message{
		DoctorID:       doctorID,
		PatientID:      &patientID,
		IllnessHistory: strings.TrimSpace(in.IllnessHistory),
		RecentSurgery:  strings.TrimSpace(in.RecentSurgery),
		IsDiabetic:     strings.TrimSpace(in.IsDiabetic),
		Allergies:      strings.TrimSpace(in.Allergies),
		Others:         strings.TrimSpace(in.Others),
	}
	var missing []string
	for _, f := range []struct{ name, value string }{
		{"illnessHistory", m.IllnessHistory},
		{"recentSurgery", m.RecentSurgery},
		{"isDiabetic", m.IsDiabetic},
		{"allergies", m.Allergies},
		{"others", m.Others},
	} {
		if f.value == "" {
			missing = append(missing, f.name)
		}
	}
	if len(missing) > 0 {
		return nil, apperr.Validation("missing required fields: %s", strings.Join(missing, ", "))
	}
	if m.IsDiabetic != Diabetic && m.IsDiabetic != NonDiabetic {
		return nil, apperr.Validation("isDiabetic must be %q or %q", Diabetic, NonDiabetic)
	}

	if _, err := s.directory.GetDoctor(ctx, doctorID); err != nil {
		return nil, err
	}

	m.SentAt = s.now()
	if err := s.messages.Create(ctx, m); err != nil {
		return nil, err
	}
	return m, nil
}

// -- Directory --

// ListMessagesForDoctor returns the doctor's messages in the order they
// arrived, each with its patient resolved. A failed patient lookup leaves
// Patient nil rather than failing the listing.
func (s *Service) ListMessagesForDoctor(ctx context.Context, doctorID uuid.UUID, status Status) ([]MessageView, error) {
	switch status {
	case "", StatusUnanswered, StatusAnswered:
	default:
		return nil, apperr.Validation("status must be %q or %q", StatusUnanswered, StatusAnswered)
	}

	msgs, err := s.messages.ListByDoctor(ctx, doctorID, status)
	if err != nil {
		return nil, err
	}

	seen := make(map[uuid.UUID]bool)
	var ids []uuid.UUID
	for _, m := range msgs {
		if m.PatientID != nil && !seen[*m.PatientID] {
			seen[*m.PatientID] = true
			ids = append(ids, *m.PatientID)
		}
	}
	patients, err := s.directory.PatientsByID(ctx, ids)
	if err != nil {
		s.logger.Warn().Err(err).Str("doctor_id", doctorID.String()).Msg("resolving message patients failed")
		patients = nil
	}

	views := make([]MessageView, 0, len(msgs))
	for _, m := range msgs {
		v := MessageView{Message: *m, State: m.Status()}
		if m.PatientID != nil {
			if p, ok := patients[*m.PatientID]; ok {
				v.Patient = summarize(p)
			}
		}
		views = append(views, v)
	}
	return views, nil
}

func summarize(p *identity.Patient) *PatientSummary {
	return &PatientSummary{
		ID: p.ID, Name: p.Name, Age: p.Age, Email: p.Email, Phone: p.Phone,
		HistoryOfSurgery: p.HistoryOfSurgery, HistoryOfIllness: p.HistoryOfIllness,
	}
}

// ListRepliesForPatient returns the patient's reply history, most recent
// first. A patient with no replies yields an empty slice.
func (s *Service) ListRepliesForPatient(ctx context.Context, patientID uuid.UUID) ([]identity.Reply, error) {
	p, err := s.directory.GetPatient(ctx, patientID)
	if err != nil {
		return nil, err
	}
	out := make([]identity.Reply, len(p.Replies))
	copy(out, p.Replies)
	sort.SliceStable(out, func(i, j int) bool { return out[i].ReplyDate.After(out[j].ReplyDate) })
	return out, nil
}

// -- Reply Workflow --

// SubmitReply answers a message as doctorID. The message's reply and the
// patient's copy are written in one transaction.
func (s *Service) SubmitReply(ctx context.Context, doctorID, messageID uuid.UUID, in ReplyInput) (*Message, error) {
	care := strings.TrimSpace(in.CareToBeTaken)
	meds := strings.TrimSpace(in.Medicines)
	var missing []string
	if care == "" {
		missing = append(missing, "careToBeTaken")
	}
	if meds == "" {
		missing = append(missing, "medicines")
	}
	if len(missing) > 0 {
		return nil, apperr.Validation("missing required fields: %s", strings.Join(missing, ", "))
	}

	doctor, err := s.directory.GetDoctor(ctx, doctorID)
	if err != nil {
		return nil, err
	}
	reply := Reply{
		CareToBeTaken: care,
		Medicines:     meds,
		ReplyDate:     s.now(),
		DoctorID:      doctorID,
		DoctorName:    doctor.Name,
	}
	if reply.DoctorName == "" {
		reply.DoctorName = strings.TrimSpace(in.DoctorName)
	}
	if in.ReplyDate != nil && !in.ReplyDate.IsZero() {
		reply.ReplyDate = in.ReplyDate.UTC()
	}

	var answered *Message
	err = s.tx.WithinTx(ctx, func(ctx context.Context) error {
		m, err := s.messages.GetByID(ctx, messageID)
		if err != nil {
			return err
		}
		if m.DoctorID != doctorID {
			return apperr.Forbidden("message is addressed to another doctor")
		}

		patientID, err := replyPatient(m, in.PatientID)
		if err != nil {
			return err
		}
		if _, err := s.directory.GetPatient(ctx, patientID); err != nil {
			return err
		}

		if s.policy == PolicyReject {
			err = s.messages.SetFirstReply(ctx, messageID, reply)
		} else {
			err = s.messages.SetReply(ctx, messageID, reply)
		}
		if err != nil {
			return err
		}

		if err := s.replies.AppendReply(ctx, patientID, identity.Reply{
			MessageID:     messageID,
			DoctorID:      reply.DoctorID,
			DoctorName:    reply.DoctorName,
			CareToBeTaken: reply.CareToBeTaken,
			Medicines:     reply.Medicines,
			ReplyDate:     reply.ReplyDate,
		}); err != nil {
			return err
		}

		m.Reply = &reply
		answered = m
		return nil
	})
	if err != nil {
		return nil, err
	}
	return answered, nil
}

// replyPatient picks the patient a reply is delivered to. A supplied id
// must agree with the message.
func replyPatient(m *Message, supplied *uuid.UUID) (uuid.UUID, error) {
	switch {
	case m.PatientID == nil && supplied == nil:
		return uuid.Nil, apperr.Validation("patientId is required for a message without a patient")
	case m.PatientID == nil:
		return *supplied, nil
	case supplied != nil && *supplied != *m.PatientID:
		return uuid.Nil, apperr.Validation("patientId does not match the message")
	}
	return *m.PatientID, nil
}

// -- Prescription --

// PrescriptionPDF renders an answered message as a PDF. Admins, the
// message's doctor and its patient may read it.
func (s *Service) PrescriptionPDF(ctx context.Context, sess auth.Session, messageID uuid.UUID) ([]byte, error) {
	m, err := s.messages.GetByID(ctx, messageID)
	if err != nil {
		return nil, err
	}
	if !canRead(sess, m) {
		return nil, apperr.Forbidden("access denied")
	}
	if m.Reply == nil {
		return nil, apperr.NotFound("message has no reply")
	}

	p := report.Prescription{
		MessageID:      m.ID.String(),
		DoctorName:     m.Reply.DoctorName,
		IllnessHistory: m.IllnessHistory,
		RecentSurgery:  m.RecentSurgery,
		IsDiabetic:     m.IsDiabetic,
		Allergies:      m.Allergies,
		Others:         m.Others,
		SentAt:         m.SentAt,
		CareToBeTaken:  m.Reply.CareToBeTaken,
		Medicines:      m.Reply.Medicines,
		ReplyDate:      m.Reply.ReplyDate,
	}
	if d, err := s.directory.GetDoctor(ctx, m.DoctorID); err == nil {
		p.DoctorSpecialty = d.Specialty
	} else if !errors.Is(err, apperr.ErrNotFound) {
		return nil, err
	}
	if m.PatientID != nil {
		pt, err := s.directory.GetPatient(ctx, *m.PatientID)
		switch {
		case err == nil:
			p.PatientName, p.PatientAge, p.PatientEmail = pt.Name, pt.Age, pt.Email
		case !errors.Is(err, apperr.ErrNotFound):
			return nil, err
		}
	}

	var buf bytes.Buffer
	if err := report.RenderPrescription(&buf, p); err != nil {
		return nil, apperr.Persistence(fmt.Errorf("render prescription: %w", err))
	}
	return buf.Bytes(), nil
}

func canRead(sess auth.Session, m *Message) bool {
	switch {
	case sess.IsAdmin():
		return true
	case sess.Role == auth.RoleDoctor:
		return sess.UserID == m.DoctorID || (m.Reply != nil && sess.UserID == m.Reply.DoctorID)
	case sess.Role == auth.RolePatient:
		return m.PatientID != nil && sess.UserID == *m.PatientID
	}
	return false
}
