package consultation

import (
	"context"

	"github.com/google/uuid"

	"github.com/medconsult/medconsult/internal/domain/identity"
)

type MessageRepository interface {
	Create(ctx context.Context, m *Message) error
	GetByID(ctx context.Context, id uuid.UUID) (*Message, error)
	// ListByDoctor returns messages in insertion order. An empty status
	// matches every message.
	ListByDoctor(ctx context.Context, doctorID uuid.UUID, status Status) ([]*Message, error)
	// SetReply replaces the message's reply.
	SetReply(ctx context.Context, id uuid.UUID, r Reply) error
	// SetFirstReply stores r only on an unanswered message and returns
	// apperr.AlreadyAnswered otherwise.
	SetFirstReply(ctx context.Context, id uuid.UUID, r Reply) error
}

// ReplyAppender appends to a patient's reply history.
type ReplyAppender interface {
	AppendReply(ctx context.Context, patientID uuid.UUID, r identity.Reply) error
}

// Transactor runs fn so that every store write made through its ctx
// commits or fails together.
type Transactor interface {
	WithinTx(ctx context.Context, fn func(ctx context.Context) error) error
}

// Directory resolves the doctors and patients messages refer to.
type Directory interface {
	GetDoctor(ctx context.Context, id uuid.UUID) (*identity.Doctor, error)
	GetPatient(ctx context.Context, id uuid.UUID) (*identity.Patient, error)
	PatientsByID(ctx context.Context, ids []uuid.UUID) (map[uuid.UUID]*identity.Patient, error)
}
