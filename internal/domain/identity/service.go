package identity

import (
	"context"
	"errors"
	"fmt"
	"net/mail"
	"strings"
	"sync"

	"github.com/google/uuid"

	"github.com/medconsult/medconsult/internal/platform/apperr"
	"github.com/medconsult/medconsult/internal/platform/auth"
)

const (
	minPasswordLength = 6
	maxAge            = 150
)

type Service struct {
	doctors  DoctorRepository
	patients PatientRepository
	admins   AdminRepository
	issuer   *auth.Issuer

	hashPassword func(string) (string, error)

	dummyOnce sync.Once
	dummyHash string
}

func NewService(doctors DoctorRepository, patients PatientRepository, admins AdminRepository, issuer *auth.Issuer) *Service {
	return &Service{
		doctors:      doctors,
		patients:     patients,
		admins:       admins,
		issuer:       issuer,
		hashPassword: auth.HashPassword,
	}
}

// -- Registration --

func (s *Service) RegisterDoctor(ctx context.Context, in DoctorRegistration) (*Doctor, error) {
	d := &Doctor{
		Name:              strings.TrimSpace(in.Name),
		Email:             normalizeEmail(in.Email),
		Phone:             strings.TrimSpace(in.Phone),
		Specialty:         strings.TrimSpace(in.Specialty),
		YearsOfExperience: in.YearsOfExperience,
		ProfilePicture:    strings.TrimSpace(in.ProfilePicture),
	}
	if err := requireFields(map[string]string{
		"name": d.Name, "email": d.Email, "phone": d.Phone, "specialty": d.Specialty, "password": in.Password,
	}); err != nil {
		return nil, err
	}
	if err := validateDoctor(d); err != nil {
		return nil, err
	}
	if err := validatePassword(in.Password); err != nil {
		return nil, err
	}

	exists, err := s.doctors.ExistsByEmailOrPhone(ctx, d.Email, d.Phone)
	if err != nil {
		return nil, err
	}
	if exists {
		return nil, apperr.Conflict("Doctor already exists")
	}

	if d.PasswordHash, err = s.hashPassword(in.Password); err != nil {
		return nil, err
	}
	if err := s.doctors.Create(ctx, d); err != nil {
		return nil, err
	}
	return d, nil
}

func (s *Service) RegisterPatient(ctx context.Context, in PatientRegistration) (*Patient, error) {
	p := &Patient{
		Name:             strings.TrimSpace(in.Name),
		Age:              in.Age,
		Email:            normalizeEmail(in.Email),
		Phone:            strings.TrimSpace(in.Phone),
		HistoryOfSurgery: strings.TrimSpace(in.HistoryOfSurgery),
		HistoryOfIllness: strings.TrimSpace(in.HistoryOfIllness),
		ProfilePicture:   strings.TrimSpace(in.ProfilePicture),
	}
	if err := requireFields(map[string]string{
		"name": p.Name, "email": p.Email, "phone": p.Phone, "password": in.Password,
		"historyOfSurgery": p.HistoryOfSurgery, "historyOfIllness": p.HistoryOfIllness,
	}); err != nil {
		return nil, err
	}
	if err := validatePatient(p); err != nil {
		return nil, err
	}
	if err := validatePassword(in.Password); err != nil {
		return nil, err
	}

	exists, err := s.patients.ExistsByEmailOrPhone(ctx, p.Email, p.Phone)
	if err != nil {
		return nil, err
	}
	if exists {
		return nil, apperr.Conflict("Patient with this email or phone already exists")
	}

	if p.PasswordHash, err = s.hashPassword(in.Password); err != nil {
		return nil, err
	}
	if err := s.patients.Create(ctx, p); err != nil {
		return nil, err
	}
	return p, nil
}

// CreateAdmin seeds an administrator account.
func (s *Service) CreateAdmin(ctx context.Context, name, email, password string) (*Admin, error) {
	a := &Admin{Name: strings.TrimSpace(name), Email: normalizeEmail(email)}
	if err := requireFields(map[string]string{"name": a.Name, "email": a.Email, "password": password}); err != nil {
		return nil, err
	}
	if err := validateEmail(a.Email); err != nil {
		return nil, err
	}
	if err := validatePassword(password); err != nil {
		return nil, err
	}

	var err error
	if a.PasswordHash, err = s.hashPassword(password); err != nil {
		return nil, err
	}
	if err := s.admins.Create(ctx, a); err != nil {
		return nil, err
	}
	return a, nil
}

// -- Authentication --

// LoginDoctor verifies credentials and issues a doctor token. Unknown email
// and wrong password are indistinguishable to the caller.
func (s *Service) LoginDoctor(ctx context.Context, email, password string) (*Doctor, auth.Token, error) {
	if err := requireCredentials(email, password); err != nil {
		return nil, auth.Token{}, err
	}
	d, err := s.doctors.GetByEmail(ctx, normalizeEmail(email))
	if err := s.verify(d, password, err); err != nil {
		return nil, auth.Token{}, err
	}
	tok, err := s.issue(d.ID, auth.RoleDoctor)
	return d, tok, err
}

func (s *Service) LoginPatient(ctx context.Context, email, password string) (*Patient, auth.Token, error) {
	if err := requireCredentials(email, password); err != nil {
		return nil, auth.Token{}, err
	}
	p, err := s.patients.GetByEmail(ctx, normalizeEmail(email))
	if err := s.verify(p, password, err); err != nil {
		return nil, auth.Token{}, err
	}
	tok, err := s.issue(p.ID, auth.RolePatient)
	return p, tok, err
}

func (s *Service) LoginAdmin(ctx context.Context, email, password string) (*Admin, auth.Token, error) {
	if err := requireCredentials(email, password); err != nil {
		return nil, auth.Token{}, err
	}
	a, err := s.admins.GetByEmail(ctx, normalizeEmail(email))
	if err := s.verify(a, password, err); err != nil {
		return nil, auth.Token{}, err
	}
	tok, err := s.issue(a.ID, auth.RoleAdmin)
	return a, tok, err
}

type credential interface{ passwordHash() string }

func (d *Doctor) passwordHash() string  { return d.PasswordHash }
func (p *Patient) passwordHash() string { return p.PasswordHash }
func (a *Admin) passwordHash() string   { return a.PasswordHash }

// verify checks password against the account found by the email lookup.
// A miss still pays for one bcrypt comparison so response timing does not
// reveal registered emails.
func (s *Service) verify(account credential, password string, lookupErr error) error {
	if lookupErr != nil {
		if !errors.Is(lookupErr, apperr.ErrNotFound) {
			return lookupErr
		}
		auth.CheckPassword(s.dummy(), password)
		return apperr.Auth(errors.New("unknown email"))
	}
	if hash := account.passwordHash(); !auth.CheckPassword(hash, password) {
		return apperr.Auth(errors.New("password mismatch"))
	}
	return nil
}

func (s *Service) dummy() string {
	s.dummyOnce.Do(func() {
		s.dummyHash, _ = s.hashPassword(uuid.NewString())
	})
	return s.dummyHash
}

func (s *Service) issue(id uuid.UUID, role auth.Role) (auth.Token, error) {
	tok, err := s.issuer.Issue(id, role)
	if err != nil {
		return auth.Token{}, fmt.Errorf("issue token: %w", err)
	}
	return tok, nil
}

// -- Doctors --

func (s *Service) GetDoctor(ctx context.Context, id uuid.UUID) (*Doctor, error) {
	return s.doctors.GetByID(ctx, id)
}

func (s *Service) ListDoctors(ctx context.Context, limit, offset int) ([]*Doctor, int, error) {
	return s.doctors.List(ctx, limit, offset)
}

func (s *Service) UpdateDoctor(ctx context.Context, id uuid.UUID, u DoctorUpdate) (*Doctor, error) {
	d, err := s.doctors.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	setString(&d.Name, u.Name)
	setString(&d.Phone, u.Phone)
	setString(&d.Specialty, u.Specialty)
	setString(&d.ProfilePicture, u.ProfilePicture)
	if u.Email != nil {
		d.Email = normalizeEmail(*u.Email)
	}
	if u.YearsOfExperience != nil {
		d.YearsOfExperience = *u.YearsOfExperience
	}
	if err := requireFields(map[string]string{
		"name": d.Name, "email": d.Email, "phone": d.Phone, "specialty": d.Specialty,
	}); err != nil {
		return nil, err
	}
	if err := validateDoctor(d); err != nil {
		return nil, err
	}
	if err := s.applyPassword(&d.PasswordHash, u.Password); err != nil {
		return nil, err
	}

	if err := s.doctors.Update(ctx, d); err != nil {
		return nil, err
	}
	return d, nil
}

func (s *Service) DeleteDoctor(ctx context.Context, id uuid.UUID) error {
	return s.doctors.Delete(ctx, id)
}

// -- Patients --

func (s *Service) GetPatient(ctx context.Context, id uuid.UUID) (*Patient, error) {
	return s.patients.GetByID(ctx, id)
}

// PatientsByID resolves ids to patients. Missing ids are absent from the map.
func (s *Service) PatientsByID(ctx context.Context, ids []uuid.UUID) (map[uuid.UUID]*Patient, error) {
	out := make(map[uuid.UUID]*Patient, len(ids))
	if len(ids) == 0 {
		return out, nil
	}
	patients, err := s.patients.GetByIDs(ctx, ids)
	if err != nil {
		return nil, err
	}
	for _, p := range patients {
		out[p.ID] = p
	}
	return out, nil
}

// ProfilePictureURL returns the absolute URL of the patient's picture.
func (s *Service) ProfilePictureURL(ctx context.Context, id uuid.UUID, baseURL string) (string, error) {
	p, err := s.patients.GetByID(ctx, id)
	if errors.Is(err, apperr.ErrNotFound) {
		return "", apperr.NotFound("Patient not found")
	}
	if err != nil {
		return "", err
	}
	if p.ProfilePicture == "" {
		return "", apperr.NotFound("No profile picture available")
	}
	if strings.HasPrefix(p.ProfilePicture, "http://") || strings.HasPrefix(p.ProfilePicture, "https://") {
		return p.ProfilePicture, nil
	}
	return strings.TrimRight(baseURL, "/") + p.ProfilePicture, nil
}

func (s *Service) ListPatients(ctx context.Context, limit, offset int) ([]*Patient, int, error) {
	return s.patients.List(ctx, limit, offset)
}

func (s *Service) UpdatePatient(ctx context.Context, id uuid.UUID, u PatientUpdate) (*Patient, error) {
	p, err := s.patients.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	setString(&p.Name, u.Name)
	setString(&p.Phone, u.Phone)
	setString(&p.HistoryOfSurgery, u.HistoryOfSurgery)
	setString(&p.HistoryOfIllness, u.HistoryOfIllness)
	setString(&p.ProfilePicture, u.ProfilePicture)
	if u.Email != nil {
		p.Email = normalizeEmail(*u.Email)
	}
	if u.Age != nil {
		p.Age = *u.Age
	}
	if err := requireFields(map[string]string{
		"name": p.Name, "email": p.Email, "phone": p.Phone,
		"historyOfSurgery": p.HistoryOfSurgery, "historyOfIllness": p.HistoryOfIllness,
	}); err != nil {
		return nil, err
	}
	if err := validatePatient(p); err != nil {
		return nil, err
	}
	if err := s.applyPassword(&p.PasswordHash, u.Password); err != nil {
		return nil, err
	}

	if err := s.patients.Update(ctx, p); err != nil {
		return nil, err
	}
	return p, nil
}

func (s *Service) DeletePatient(ctx context.Context, id uuid.UUID) error {
	return s.patients.Delete(ctx, id)
}

// -- Validation --

func (s *Service) applyPassword(dst *string, pw *string) error {
	if pw == nil {
		return nil
	}
	if err := validatePassword(*pw); err != nil {
		return err
	}
	h, err := s.hashPassword(*pw)
	if err != nil {
		return err
	}
	*dst = h
	return nil
}

func setString(dst *string, v *string) {
	if v != nil {
		*dst = strings.TrimSpace(*v)
	}
}

func normalizeEmail(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}

// fieldOrder fixes the order missing fields are reported in.
var fieldOrder = []string{
	"name", "email", "phone", "specialty", "historyOfSurgery", "historyOfIllness", "password",
}

func requireFields(fields map[string]string) error {
	var missing []string
	for _, name := range fieldOrder {
		if v, ok := fields[name]; ok && v == "" {
			missing = append(missing, name)
		}
	}
	if len(missing) > 0 {
		return apperr.Validation("missing required fields: %s", strings.Join(missing, ", "))
	}
	return nil
}

func requireCredentials(email, password string) error {
	if strings.TrimSpace(email) == "" || password == "" {
		return apperr.Validation("Email and password are required")
	}
	return nil
}

func validateEmail(email string) error {
	addr, err := mail.ParseAddress(email)
	if err != nil || addr.Address != email {
		return apperr.Validation("invalid email address %q", email)
	}
	return nil
}

func validatePassword(pw string) error {
	if len(pw) < minPasswordLength {
		return apperr.Validation("password must be at least %d characters", minPasswordLength)
	}
	return nil
}

func validateDoctor(d *Doctor) error {
	if err := validateEmail(d.Email); err != nil {
		return err
	}
	if d.YearsOfExperience < 0 {
		return apperr.Validation("yearsOfExperience must not be negative")
	}
	return nil
}

func validatePatient(p *Patient) error {
	if err := validateEmail(p.Email); err != nil {
		return err
	}
	if p.Age < 0 || p.Age > maxAge {
		return apperr.Validation("age must be between 0 and %d", maxAge)
	}
	return nil
}
