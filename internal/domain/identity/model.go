package identity

import (
	"time"

	"github.com/google/uuid"
)

// Doctor is a registered practitioner. PasswordHash never leaves the server.
type Doctor struct {
	ID                uuid.UUID `json:"id"`
	Name              string    `json:"name"`
	Email             string    `json:"email"`
	Phone             string    `json:"phone"`
	Specialty         string    `json:"specialty"`
	YearsOfExperience int       `json:"yearsOfExperience"`
	ProfilePicture    string    `json:"profilePicture,omitempty"`
	PasswordHash      string    `json:"-"`
	CreatedAt         time.Time `json:"createdAt"`
	UpdatedAt         time.Time `json:"updatedAt"`
}

// Patient is a registered patient together with the replies doctors have
// sent them. Replies only grow; entries are never edited or removed.
type Patient struct {
	ID               uuid.UUID `json:"id"`
	Name             string    `json:"name"`
	Age              int       `json:"age"`
	Email            string    `json:"email"`
	Phone            string    `json:"phone"`
	HistoryOfSurgery string    `json:"historyOfSurgery"`
	HistoryOfIllness string    `json:"historyOfIllness"`
	ProfilePicture   string    `json:"profilePicture,omitempty"`
	PasswordHash     string    `json:"-"`
	Replies          []Reply   `json:"replies"`
	CreatedAt        time.Time `json:"createdAt"`
	UpdatedAt        time.Time `json:"updatedAt"`
}

// Reply is the patient's own copy of a doctor's answer to one consultation.
// It is copied at reply time and shares nothing with the message's copy.
type Reply struct {
	MessageID     uuid.UUID `json:"messageId"`
	DoctorID      uuid.UUID `json:"doctorId"`
	DoctorName    string    `json:"doctorName"`
	CareToBeTaken string    `json:"careToBeTaken"`
	Medicines     string    `json:"medicines"`
	ReplyDate     time.Time `json:"replyDate"`
}

type Admin struct {
	ID           uuid.UUID `json:"id"`
	Name         string    `json:"name"`
	Email        string    `json:"email"`
	PasswordHash string    `json:"-"`
	CreatedAt    time.Time `json:"createdAt"`
}

// Summary is the identity returned with a login token.
type Summary struct {
	ID             uuid.UUID `json:"id"`
	Name           string    `json:"name"`
	Email          string    `json:"email"`
	ProfilePicture *string   `json:"profilePicture"`
}

func (d *Doctor) Summary() Summary {
	return Summary{ID: d.ID, Name: d.Name, Email: d.Email, ProfilePicture: optional(d.ProfilePicture)}
}

func (p *Patient) Summary() Summary {
	return Summary{ID: p.ID, Name: p.Name, Email: p.Email, ProfilePicture: optional(p.ProfilePicture)}
}

func (a *Admin) Summary() Summary {
	return Summary{ID: a.ID, Name: a.Name, Email: a.Email}
}

func optional(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

// DoctorRegistration is the input to RegisterDoctor.
type DoctorRegistration struct {
	Name              string
	Email             string
	Phone             string
	Specialty         string
	YearsOfExperience int
	Password          string
	ProfilePicture    string
}

// PatientRegistration is the input to RegisterPatient.
type PatientRegistration struct {
	Name             string
	Age              int
	Email            string
	Phone            string
	HistoryOfSurgery string
	HistoryOfIllness string
	Password         string
	ProfilePicture   string
}

// DoctorUpdate carries an admin edit. Nil fields are left unchanged.
type DoctorUpdate struct {
	Name              *string `json:"name"`
	Email             *string `json:"email"`
	Phone             *string `json:"phone"`
	Specialty         *string `json:"specialty"`
	YearsOfExperience *int    `json:"yearsOfExperience"`
	ProfilePicture    *string `json:"profilePicture"`
	Password          *string `json:"password"`
}

// PatientUpdate carries an admin edit. Nil fields are left unchanged;
// replies cannot be edited.
type PatientUpdate struct {
	Name             *string `json:"name"`
	Age              *int    `json:"age"`
	Email            *string `json:"email"`
	Phone            *string `json:"phone"`
	HistoryOfSurgery *string `json:"historyOfSurgery"`
	HistoryOfIllness *string `json:"historyOfIllness"`
	ProfilePicture   *string `json:"profilePicture"`
	Password         *string `json:"password"`
}
