package consultation

import (
	"time"

	"github.com/google/uuid"
)

// Status is derived from whether a message carries a reply.
type Status string

const (
	StatusUnanswered Status = "unanswered"
	StatusAnswered   Status = "answered"
)

// Accepted values of the intake isDiabetic field.
const (
	Diabetic    = "Diabetic"
	NonDiabetic = "Non-Diabetic"
)

// Message is one consultation submitted by a patient to a doctor. It holds
// at most one reply.
type Message struct {
	ID             uuid.UUID  `json:"id"`
	DoctorID       uuid.UUID  `json:"doctorId"`
	PatientID      *uuid.UUID `json:"patientId"`
	IllnessHistory string     `json:"illnessHistory"`
	RecentSurgery  string     `json:"recentSurgery"`
	IsDiabetic     string     `json:"isDiabetic"`
	Allergies      string     `json:"allergies"`
	Others         string     `json:"others"`
	SentAt         time.Time  `json:"sentAt"`
	Reply          *Reply     `json:"reply"`
}

func (m *Message) Status() Status {
	if m.Reply == nil {
		return StatusUnanswered
	}
	return StatusAnswered
}

// Reply is the message's own copy of the doctor's answer. DoctorName is
// captured when the reply is written.
type Reply struct {
	CareToBeTaken string    `json:"careToBeTaken"`
	Medicines     string    `json:"medicines"`
	ReplyDate     time.Time `json:"replyDate"`
	DoctorID      uuid.UUID `json:"doctorId"`
	DoctorName    string    `json:"doctorName"`
}

// Intake is the patient's questionnaire.
type Intake struct {
	IllnessHistory string
	RecentSurgery  string
	IsDiabetic     string
	Allergies      string
	Others         string
}

// ReplyInput is a doctor's answer to one message. PatientID and ReplyDate
// are optional.
type ReplyInput struct {
	PatientID     *uuid.UUID
	CareToBeTaken string
	Medicines     string
	DoctorName    string
	ReplyDate     *time.Time
}

// PatientSummary is the patient identity shown next to a message.
type PatientSummary struct {
	ID               uuid.UUID `json:"id"`
	Name             string    `json:"name"`
	Age              int       `json:"age"`
	Email            string    `json:"email"`
	Phone            string    `json:"phone"`
	HistoryOfSurgery string    `json:"historyOfSurgery"`
	HistoryOfIllness string    `json:"historyOfIllness"`
}

// MessageView is a message as listed to its doctor. Patient is nil when
// the patient reference could not be resolved.
type MessageView struct {
	Message
	State   Status          `json:"status"`
	Patient *PatientSummary `json:"patient"`
}
