package integration

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog"

	"github.com/medconsult/medconsult/internal/domain/consultation"
	"github.com/medconsult/medconsult/internal/domain/identity"
	"github.com/medconsult/medconsult/internal/platform/apperr"
	"github.com/medconsult/medconsult/internal/platform/db"
)

var baseTime = time.Date(2024, 3, 1, 9, 0, 0, 0, time.UTC)

func newTestMessage(doctorID uuid.UUID, patientID *uuid.UUID, n int) *consultation.Message {
	return &consultation.Message{
		DoctorID:       doctorID,
		PatientID:      patientID,
		IllnessHistory: "asthma",
		RecentSurgery:  "none",
		IsDiabetic:     consultation.NonDiabetic,
		Allergies:      "pollen",
		Others:         "-",
		SentAt:         baseTime.Add(time.Duration(n) * time.Minute),
	}
}

func testReply(doctorID uuid.UUID, medicines string) consultation.Reply {
	return consultation.Reply{
		CareToBeTaken: "rest",
		Medicines:     medicines,
		ReplyDate:     baseTime.Add(time.Hour),
		DoctorID:      doctorID,
		DoctorName:    "Dr. Test",
	}
}

func TestMessageRepo_CreateAndList(t *testing.T) {
	pool := newSchemaPool(t)
	ctx := context.Background()
	repo := consultation.NewMessageRepo(pool)

	doctorID, otherDoctor, patientID := uuid.New(), uuid.New(), uuid.New()

	var ids []uuid.UUID
	// Later sentAt first: listing follows insertion order, not timestamps.
	for _, n := range []int{3, 1, 2} {
		m := newTestMessage(doctorID, &patientID, n)
		if err := repo.Create(ctx, m); err != nil {
			t.Fatalf("Create: %v", err)
		}
		ids = append(ids, m.ID)
	}
	anonymous := newTestMessage(otherDoctor, nil, 0)
	if err := repo.Create(ctx, anonymous); err != nil {
		t.Fatalf("Create: %v", err)
	}

	t.Run("GetByID", func(t *testing.T) {
		got, err := repo.GetByID(ctx, ids[0])
		if err != nil {
			t.Fatalf("GetByID: %v", err)
		}
		if got.PatientID == nil || *got.PatientID != patientID {
			t.Errorf("expected patient %s, got %v", patientID, got.PatientID)
		}
		if !got.SentAt.Equal(baseTime.Add(3 * time.Minute)) {
			t.Errorf("unexpected sentAt %s", got.SentAt)
		}
		if got.Reply != nil {
			t.Errorf("expected no reply, got %+v", got.Reply)
		}

		got, err = repo.GetByID(ctx, anonymous.ID)
		if err != nil {
			t.Fatalf("GetByID: %v", err)
		}
		if got.PatientID != nil {
			t.Errorf("expected no patient, got %s", got.PatientID)
		}

		if _, err := repo.GetByID(ctx, uuid.New()); apperr.KindOf(err) != apperr.KindNotFound {
			t.Errorf("expected not found, got %v", err)
		}
	})

	t.Run("ListByDoctor", func(t *testing.T) {
		items, err := repo.ListByDoctor(ctx, doctorID, "")
		if err != nil {
			t.Fatalf("ListByDoctor: %v", err)
		}
		if len(items) != 3 {
			t.Fatalf("expected 3 messages, got %d", len(items))
		}
		for i, m := range items {
			if m.ID != ids[i] {
				t.Errorf("position %d: expected %s, got %s", i, ids[i], m.ID)
			}
		}

		none, err := repo.ListByDoctor(ctx, uuid.New(), "")
		if err != nil {
			t.Fatalf("ListByDoctor: %v", err)
		}
		if none == nil || len(none) != 0 {
			t.Errorf("expected empty non-nil list, got %v", none)
		}
	})
}

func TestMessageRepo_Replies(t *testing.T) {
	pool := newSchemaPool(t)
	ctx := context.Background()
	repo := consultation.NewMessageRepo(pool)
	doctorID := uuid.New()

	first := newTestMessage(doctorID, nil, 1)
	second := newTestMessage(doctorID, nil, 2)
	for _, m := range []*consultation.Message{first, second} {
		if err := repo.Create(ctx, m); err != nil {
			t.Fatalf("Create: %v", err)
		}
	}

	t.Run("SetReply", func(t *testing.T) {
		if err := repo.SetReply(ctx, first.ID, testReply(doctorID, "ors")); err != nil {
			t.Fatalf("SetReply: %v", err)
		}
		if err := repo.SetReply(ctx, first.ID, testReply(doctorID, "zinc")); err != nil {
			t.Fatalf("SetReply overwrite: %v", err)
		}
		got, err := repo.GetByID(ctx, first.ID)
		if err != nil {
			t.Fatalf("GetByID: %v", err)
		}
		if got.Reply == nil || got.Reply.Medicines != "zinc" || got.Reply.DoctorID != doctorID {
			t.Errorf("expected overwritten reply, got %+v", got.Reply)
		}
		if !got.Reply.ReplyDate.Equal(baseTime.Add(time.Hour)) {
			t.Errorf("unexpected reply date %s", got.Reply.ReplyDate)
		}

		if err := repo.SetReply(ctx, uuid.New(), testReply(doctorID, "ors")); apperr.KindOf(err) != apperr.KindNotFound {
			t.Errorf("expected not found, got %v", err)
		}
	})

	t.Run("StatusFilter", func(t *testing.T) {
		answered, err := repo.ListByDoctor(ctx, doctorID, consultation.StatusAnswered)
		if err != nil {
			t.Fatalf("ListByDoctor: %v", err)
		}
		if len(answered) != 1 || answered[0].ID != first.ID {
			t.Errorf("expected only %s answered, got %v", first.ID, answered)
		}
		unanswered, err := repo.ListByDoctor(ctx, doctorID, consultation.StatusUnanswered)
		if err != nil {
			t.Fatalf("ListByDoctor: %v", err)
		}
		if len(unanswered) != 1 || unanswered[0].ID != second.ID {
			t.Errorf("expected only %s unanswered, got %v", second.ID, unanswered)
		}
	})

	t.Run("SetFirstReply", func(t *testing.T) {
		if err := repo.SetFirstReply(ctx, second.ID, testReply(doctorID, "ors")); err != nil {
			t.Fatalf("SetFirstReply: %v", err)
		}
		err := repo.SetFirstReply(ctx, second.ID, testReply(doctorID, "zinc"))
		if apperr.KindOf(err) != apperr.KindAlreadyAnswered {
			t.Errorf("expected already answered, got %v", err)
		}
		got, err := repo.GetByID(ctx, second.ID)
		if err != nil {
			t.Fatalf("GetByID: %v", err)
		}
		if got.Reply.Medicines != "ors" {
			t.Errorf("expected the first reply to stand, got %q", got.Reply.Medicines)
		}

		if err := repo.SetFirstReply(ctx, uuid.New(), testReply(doctorID, "ors")); apperr.KindOf(err) != apperr.KindNotFound {
			t.Errorf("expected not found, got %v", err)
		}
	})
}

func TestReplyAppender_AppendReply(t *testing.T) {
	pool := newSchemaPool(t)
	ctx := context.Background()
	patients := identity.NewPatientRepo(pool)
	appender := consultation.NewReplyAppender(pool)

	p := createTestPatient(t, ctx, patients, 1)
	doctorID := uuid.New()
	msgs := []uuid.UUID{uuid.New(), uuid.New()}

	for i, msgID := range msgs {
		err := appender.AppendReply(ctx, p.ID, identity.Reply{
			MessageID: msgID, DoctorID: doctorID, DoctorName: "Dr. Test",
			CareToBeTaken: "rest", Medicines: "ors",
			// Older date second: history keeps insertion order.
			ReplyDate: baseTime.Add(-time.Duration(i) * time.Hour),
		})
		if err != nil {
			t.Fatalf("AppendReply: %v", err)
		}
	}

	got, err := patients.GetByID(ctx, p.ID)
	if err != nil {
		t.Fatalf("GetByID: %v", err)
	}
	if len(got.Replies) != 2 || got.Replies[0].MessageID != msgs[0] || got.Replies[1].MessageID != msgs[1] {
		t.Errorf("expected replies in insertion order, got %+v", got.Replies)
	}

	err = appender.AppendReply(ctx, uuid.New(), identity.Reply{MessageID: uuid.New(), DoctorID: doctorID, ReplyDate: baseTime})
	if apperr.KindOf(err) != apperr.KindNotFound || err.Error() != "patient not found" {
		t.Errorf("expected patient not found, got %v", err)
	}

	if err := patients.Delete(ctx, p.ID); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	var left int
	if err := pool.QueryRow(ctx, `SELECT COUNT(*) FROM patient_reply WHERE patient_id = $1`, p.ID).Scan(&left); err != nil {
		t.Fatalf("count replies: %v", err)
	}
	if left != 0 {
		t.Errorf("expected replies to be removed with the patient, %d left", left)
	}
}

func TestTransactor_ReplyRollsBackWithHistory(t *testing.T) {
	pool := newSchemaPool(t)
	ctx := context.Background()
	messages := consultation.NewMessageRepo(pool)
	appender := consultation.NewReplyAppender(pool)
	tx := db.NewTransactor(pool)

	doctorID := uuid.New()
	m := newTestMessage(doctorID, nil, 1)
	if err := messages.Create(ctx, m); err != nil {
		t.Fatalf("Create: %v", err)
	}

	err := tx.WithinTx(ctx, func(ctx context.Context) error {
		if err := messages.SetReply(ctx, m.ID, testReply(doctorID, "ors")); err != nil {
			return err
		}
		return appender.AppendReply(ctx, uuid.New(), identity.Reply{MessageID: m.ID, DoctorID: doctorID, ReplyDate: baseTime})
	})
	if apperr.KindOf(err) != apperr.KindNotFound {
		t.Fatalf("expected not found from the history write, got %v", err)
	}

	got, err := messages.GetByID(ctx, m.ID)
	if err != nil {
		t.Fatalf("GetByID: %v", err)
	}
	if got.Reply != nil {
		t.Errorf("expected the message reply to be rolled back, got %+v", got.Reply)
	}
}

func newConsultationService(pool *pgxpool.Pool, policy consultation.ReplyPolicy) (*consultation.Service, *identity.Service) {
	identitySvc := identity.NewService(identity.NewDoctorRepo(pool), identity.NewPatientRepo(pool), identity.NewAdminRepo(pool), nil)
	svc := consultation.NewService(consultation.NewMessageRepo(pool), consultation.NewReplyAppender(pool),
		identitySvc, db.NewTransactor(pool), policy, zerolog.Nop())
	return svc, identitySvc
}

func TestService_ReplyWorkflow(t *testing.T) {
	intake := consultation.Intake{
		IllnessHistory: "asthma", RecentSurgery: "none", IsDiabetic: consultation.Diabetic,
		Allergies: "pollen", Others: "-",
	}

	t.Run("reject policy", func(t *testing.T) {
		pool := newSchemaPool(t)
		ctx := context.Background()
		svc, _ := newConsultationService(pool, consultation.PolicyReject)
		doctor := createTestDoctor(t, ctx, identity.NewDoctorRepo(pool), 1)
		patient := createTestPatient(t, ctx, identity.NewPatientRepo(pool), 1)

		m, err := svc.SubmitConsultation(ctx, doctor.ID, patient.ID, intake)
		if err != nil {
			t.Fatalf("SubmitConsultation: %v", err)
		}
		answered, err := svc.SubmitReply(ctx, doctor.ID, m.ID, consultation.ReplyInput{CareToBeTaken: "rest", Medicines: "ors"})
		if err != nil {
			t.Fatalf("SubmitReply: %v", err)
		}
		if answered.Reply.DoctorName != doctor.Name {
			t.Errorf("expected doctor name %q, got %q", doctor.Name, answered.Reply.DoctorName)
		}

		_, err = svc.SubmitReply(ctx, doctor.ID, m.ID, consultation.ReplyInput{CareToBeTaken: "rest", Medicines: "zinc"})
		if !errors.Is(err, apperr.ErrAlreadyAnswered) {
			t.Fatalf("expected already answered, got %v", err)
		}

		replies, err := svc.ListRepliesForPatient(ctx, patient.ID)
		if err != nil {
			t.Fatalf("ListRepliesForPatient: %v", err)
		}
		if len(replies) != 1 || replies[0].MessageID != m.ID || replies[0].Medicines != "ors" {
			t.Errorf("expected one history entry for the first reply, got %+v", replies)
		}
	})

	t.Run("overwrite policy", func(t *testing.T) {
		pool := newSchemaPool(t)
		ctx := context.Background()
		svc, _ := newConsultationService(pool, consultation.PolicyOverwrite)
		doctor := createTestDoctor(t, ctx, identity.NewDoctorRepo(pool), 1)
		patient := createTestPatient(t, ctx, identity.NewPatientRepo(pool), 1)

		m, err := svc.SubmitConsultation(ctx, doctor.ID, patient.ID, intake)
		if err != nil {
			t.Fatalf("SubmitConsultation: %v", err)
		}
		for _, meds := range []string{"ors", "zinc"} {
			if _, err := svc.SubmitReply(ctx, doctor.ID, m.ID, consultation.ReplyInput{CareToBeTaken: "rest", Medicines: meds}); err != nil {
				t.Fatalf("SubmitReply(%s): %v", meds, err)
			}
		}

		views, err := svc.ListMessagesForDoctor(ctx, doctor.ID, consultation.StatusAnswered)
		if err != nil {
			t.Fatalf("ListMessagesForDoctor: %v", err)
		}
		if len(views) != 1 || views[0].Message.Reply.Medicines != "zinc" {
			t.Errorf("expected the latest reply on the message, got %+v", views)
		}

		replies, err := svc.ListRepliesForPatient(ctx, patient.ID)
		if err != nil {
			t.Fatalf("ListRepliesForPatient: %v", err)
		}
		if len(replies) != 2 {
			t.Errorf("expected both replies in history, got %d", len(replies))
		}
	})

	t.Run("deleted patient leaves message unanswered", func(t *testing.T) {
		pool := newSchemaPool(t)
		ctx := context.Background()
		svc, identitySvc := newConsultationService(pool, consultation.PolicyReject)
		doctor := createTestDoctor(t, ctx, identity.NewDoctorRepo(pool), 1)
		patient := createTestPatient(t, ctx, identity.NewPatientRepo(pool), 1)

		m, err := svc.SubmitConsultation(ctx, doctor.ID, patient.ID, intake)
		if err != nil {
			t.Fatalf("SubmitConsultation: %v", err)
		}
		if err := identitySvc.DeletePatient(ctx, patient.ID); err != nil {
			t.Fatalf("DeletePatient: %v", err)
		}

		_, err = svc.SubmitReply(ctx, doctor.ID, m.ID, consultation.ReplyInput{CareToBeTaken: "rest", Medicines: "ors"})
		if apperr.KindOf(err) != apperr.KindNotFound {
			t.Fatalf("expected not found, got %v", err)
		}
		views, err := svc.ListMessagesForDoctor(ctx, doctor.ID, consultation.StatusUnanswered)
		if err != nil {
			t.Fatalf("ListMessagesForDoctor: %v", err)
		}
		if len(views) != 1 || views[0].Message.ID != m.ID {
			t.Errorf("expected the message to stay unanswered, got %+v", views)
		}
	})
}
