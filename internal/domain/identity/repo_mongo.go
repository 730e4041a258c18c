package identity

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/medconsult/medconsult/internal/platform/apperr"
	"github.com/medconsult/medconsult/internal/platform/mongostore"
)

// Documents keep the field names the portal has always stored, with the
// UUID as a string _id.

type doctorDocument struct {
	ID                string    `bson:"_id"`
	Name              string    `bson:"name"`
	Email             string    `bson:"email"`
	Phone             string    `bson:"phone"`
	Specialty         string    `bson:"specialty"`
	YearsOfExperience int       `bson:"yearsOfExperience"`
	ProfilePicture    string    `bson:"profilePicture,omitempty"`
	Password          string    `bson:"password"`
	CreatedAt         time.Time `bson:"createdAt"`
	UpdatedAt         time.Time `bson:"updatedAt"`
}

type replyDocument struct {
	MessageID     string    `bson:"messageId"`
	DoctorID      string    `bson:"doctorId"`
	DoctorName    string    `bson:"doctorName"`
	CareToBeTaken string    `bson:"careToBeTaken"`
	Medicines     string    `bson:"medicines"`
	ReplyDate     time.Time `bson:"replyDate"`
}

type patientDocument struct {
	ID               string          `bson:"_id"`
	Name             string          `bson:"name"`
	Age              int             `bson:"age"`
	Email            string          `bson:"email"`
	Phone            string          `bson:"phone"`
	HistoryOfSurgery string          `bson:"historyOfSurgery"`
	HistoryOfIllness string          `bson:"historyOfIllness"`
	ProfilePicture   string          `bson:"profilePicture,omitempty"`
	Password         string          `bson:"password"`
	Replies          []replyDocument `bson:"replies"`
	CreatedAt        time.Time       `bson:"createdAt"`
	UpdatedAt        time.Time       `bson:"updatedAt"`
}

type adminDocument struct {
	ID        string    `bson:"_id"`
	Name      string    `bson:"name"`
	Email     string    `bson:"email"`
	Password  string    `bson:"password"`
	CreatedAt time.Time `bson:"createdAt"`
}

func parseDocID(s string) (uuid.UUID, error) {
	id, err := uuid.Parse(s)
	if err != nil {
		return uuid.Nil, apperr.Persistence(fmt.Errorf("stored id %q: %w", s, err))
	}
	return id, nil
}

func (d *doctorDocument) model() (*Doctor, error) {
	id, err := parseDocID(d.ID)
	if err != nil {
		return nil, err
	}
	return &Doctor{
		ID: id, Name: d.Name, Email: d.Email, Phone: d.Phone, Specialty: d.Specialty,
		YearsOfExperience: d.YearsOfExperience, ProfilePicture: d.ProfilePicture,
		PasswordHash: d.Password, CreatedAt: d.CreatedAt, UpdatedAt: d.UpdatedAt,
	}, nil
}

func (p *patientDocument) model() (*Patient, error) {
	id, err := parseDocID(p.ID)
	if err != nil {
		return nil, err
	}
	out := &Patient{
		ID: id, Name: p.Name, Age: p.Age, Email: p.Email, Phone: p.Phone,
		HistoryOfSurgery: p.HistoryOfSurgery, HistoryOfIllness: p.HistoryOfIllness,
		ProfilePicture: p.ProfilePicture, PasswordHash: p.Password,
		CreatedAt: p.CreatedAt, UpdatedAt: p.UpdatedAt,
		Replies: make([]Reply, 0, len(p.Replies)),
	}
	for _, r := range p.Replies {
		msgID, err := parseDocID(r.MessageID)
		if err != nil {
			return nil, err
		}
		docID, err := parseDocID(r.DoctorID)
		if err != nil {
			return nil, err
		}
		out.Replies = append(out.Replies, Reply{
			MessageID: msgID, DoctorID: docID, DoctorName: r.DoctorName,
			CareToBeTaken: r.CareToBeTaken, Medicines: r.Medicines, ReplyDate: r.ReplyDate,
		})
	}
	return out, nil
}

func (a *adminDocument) model() (*Admin, error) {
	id, err := parseDocID(a.ID)
	if err != nil {
		return nil, err
	}
	return &Admin{ID: id, Name: a.Name, Email: a.Email, PasswordHash: a.Password, CreatedAt: a.CreatedAt}, nil
}

// translateMongoWrite maps duplicate keys onto Conflict using the index
// names created by mongostore.EnsureIndexes.
func translateMongoWrite(err error, notFound string) error {
	if mongostore.IsDuplicateKey(err) {
		switch msg := err.Error(); {
		case strings.Contains(msg, "email_unique"):
			return apperr.Conflict("email is already registered")
		case strings.Contains(msg, "phone_unique"):
			return apperr.Conflict("phone is already registered")
		default:
			return apperr.Conflict("record already exists")
		}
	}
	return mongostore.Translate(err, notFound)
}

func emailOrPhone(email, phone string) bson.M {
	return bson.M{"$or": bson.A{bson.M{"email": email}, bson.M{"phone": phone}}}
}

func existsMatching(ctx context.Context, coll *mongo.Collection, filter bson.M) (bool, error) {
	n, err := coll.CountDocuments(ctx, filter, options.Count().SetLimit(1))
	if err != nil {
		return false, apperr.Persistence(err)
	}
	return n > 0, nil
}

func pageOptions(limit, offset int) *options.FindOptions {
	return options.Find().
		SetSort(bson.D{{Key: "createdAt", Value: 1}, {Key: "_id", Value: 1}}).
		SetSkip(int64(offset)).
		SetLimit(int64(limit))
}

// -- Doctor Repository --

type doctorRepoMongo struct {
	coll *mongo.Collection
}

func NewDoctorRepoMongo(s *mongostore.Store) DoctorRepository {
	return &doctorRepoMongo{coll: s.Collection(mongostore.DoctorsCollection)}
}

func (r *doctorRepoMongo) Create(ctx context.Context, d *Doctor) error {
	d.ID = uuid.New()
	now := time.Now().UTC()
	d.CreatedAt, d.UpdatedAt = now, now

	_, err := r.coll.InsertOne(ctx, doctorDocument{
		ID: d.ID.String(), Name: d.Name, Email: d.Email, Phone: d.Phone, Specialty: d.Specialty,
		YearsOfExperience: d.YearsOfExperience, ProfilePicture: d.ProfilePicture,
		Password: d.PasswordHash, CreatedAt: d.CreatedAt, UpdatedAt: d.UpdatedAt,
	})
	return translateMongoWrite(err, "doctor not found")
}

func (r *doctorRepoMongo) findOne(ctx context.Context, filter bson.M) (*Doctor, error) {
	var doc doctorDocument
	if err := r.coll.FindOne(ctx, filter).Decode(&doc); err != nil {
		return nil, mongostore.Translate(err, "doctor not found")
	}
	return doc.model()
}

func (r *doctorRepoMongo) GetByID(ctx context.Context, id uuid.UUID) (*Doctor, error) {
	return r.findOne(ctx, bson.M{"_id": id.String()})
}

func (r *doctorRepoMongo) GetByEmail(ctx context.Context, email string) (*Doctor, error) {
	return r.findOne(ctx, bson.M{"email": email})
}

func (r *doctorRepoMongo) ExistsByEmailOrPhone(ctx context.Context, email, phone string) (bool, error) {
	return existsMatching(ctx, r.coll, emailOrPhone(email, phone))
}

func (r *doctorRepoMongo) Update(ctx context.Context, d *Doctor) error {
	d.UpdatedAt = time.Now().UTC()
	res, err := r.coll.UpdateOne(ctx, bson.M{"_id": d.ID.String()}, bson.M{"$set": bson.M{
		"name":              d.Name,
		"email":             d.Email,
		"phone":             d.Phone,
		"specialty":         d.Specialty,
		"yearsOfExperience": d.YearsOfExperience,
		"profilePicture":    d.ProfilePicture,
		"password":          d.PasswordHash,
		"updatedAt":         d.UpdatedAt,
	}})
	if err != nil {
		return translateMongoWrite(err, "doctor not found")
	}
	if res.MatchedCount == 0 {
		return apperr.NotFound("doctor not found")
	}
	return nil
}

func (r *doctorRepoMongo) Delete(ctx context.Context, id uuid.UUID) error {
	res, err := r.coll.DeleteOne(ctx, bson.M{"_id": id.String()})
	if err != nil {
		return apperr.Persistence(err)
	}
	if res.DeletedCount == 0 {
		return apperr.NotFound("doctor not found")
	}
	return nil
}

func (r *doctorRepoMongo) List(ctx context.Context, limit, offset int) ([]*Doctor, int, error) {
	total, err := r.coll.CountDocuments(ctx, bson.M{})
	if err != nil {
		return nil, 0, apperr.Persistence(err)
	}
	cur, err := r.coll.Find(ctx, bson.M{}, pageOptions(limit, offset))
	if err != nil {
		return nil, 0, apperr.Persistence(err)
	}
	var docs []doctorDocument
	if err := cur.All(ctx, &docs); err != nil {
		return nil, 0, apperr.Persistence(err)
	}

	items := make([]*Doctor, 0, len(docs))
	for i := range docs {
		d, err := docs[i].model()
		if err != nil {
			return nil, 0, err
		}
		items = append(items, d)
	}
	return items, int(total), nil
}

// -- Patient Repository --

type patientRepoMongo struct {
	coll *mongo.Collection
}

func NewPatientRepoMongo(s *mongostore.Store) PatientRepository {
	return &patientRepoMongo{coll: s.Collection(mongostore.PatientsCollection)}
}

func (r *patientRepoMongo) Create(ctx context.Context, p *Patient) error {
	p.ID = uuid.New()
	now := time.Now().UTC()
	p.CreatedAt, p.UpdatedAt = now, now
	p.Replies = []Reply{}

	_, err := r.coll.InsertOne(ctx, patientDocument{
		ID: p.ID.String(), Name: p.Name, Age: p.Age, Email: p.Email, Phone: p.Phone,
		HistoryOfSurgery: p.HistoryOfSurgery, HistoryOfIllness: p.HistoryOfIllness,
		ProfilePicture: p.ProfilePicture, Password: p.PasswordHash,
		Replies: []replyDocument{}, CreatedAt: p.CreatedAt, UpdatedAt: p.UpdatedAt,
	})
	return translateMongoWrite(err, "patient not found")
}

func (r *patientRepoMongo) findOne(ctx context.Context, filter bson.M, opts ...*options.FindOneOptions) (*Patient, error) {
	var doc patientDocument
	if err := r.coll.FindOne(ctx, filter, opts...).Decode(&doc); err != nil {
		return nil, mongostore.Translate(err, "patient not found")
	}
	return doc.model()
}

func (r *patientRepoMongo) GetByID(ctx context.Context, id uuid.UUID) (*Patient, error) {
	return r.findOne(ctx, bson.M{"_id": id.String()})
}

func (r *patientRepoMongo) GetByEmail(ctx context.Context, email string) (*Patient, error) {
	return r.findOne(ctx, bson.M{"email": email}, options.FindOne().SetProjection(bson.M{"replies": 0}))
}

func (r *patientRepoMongo) GetByIDs(ctx context.Context, ids []uuid.UUID) ([]*Patient, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	keys := make(bson.A, len(ids))
	for i, id := range ids {
		keys[i] = id.String()
	}

	cur, err := r.coll.Find(ctx, bson.M{"_id": bson.M{"$in": keys}}, options.Find().SetProjection(bson.M{"replies": 0}))
	if err != nil {
		return nil, apperr.Persistence(err)
	}
	var docs []patientDocument
	if err := cur.All(ctx, &docs); err != nil {
		return nil, apperr.Persistence(err)
	}

	items := make([]*Patient, 0, len(docs))
	for i := range docs {
		p, err := docs[i].model()
		if err != nil {
			return nil, err
		}
		items = append(items, p)
	}
	return items, nil
}

func (r *patientRepoMongo) ExistsByEmailOrPhone(ctx context.Context, email, phone string) (bool, error) {
	return existsMatching(ctx, r.coll, emailOrPhone(email, phone))
}

func (r *patientRepoMongo) Update(ctx context.Context, p *Patient) error {
	p.UpdatedAt = time.Now().UTC()
	res, err := r.coll.UpdateOne(ctx, bson.M{"_id": p.ID.String()}, bson.M{"$set": bson.M{
		"name":             p.Name,
		"age":              p.Age,
		"email":            p.Email,
		"phone":            p.Phone,
		"historyOfSurgery": p.HistoryOfSurgery,
		"historyOfIllness": p.HistoryOfIllness,
		"profilePicture":   p.ProfilePicture,
		"password":         p.PasswordHash,
		"updatedAt":        p.UpdatedAt,
	}})
	if err != nil {
		return translateMongoWrite(err, "patient not found")
	}
	if res.MatchedCount == 0 {
		return apperr.NotFound("patient not found")
	}
	return nil
}

func (r *patientRepoMongo) Delete(ctx context.Context, id uuid.UUID) error {
	res, err := r.coll.DeleteOne(ctx, bson.M{"_id": id.String()})
	if err != nil {
		return apperr.Persistence(err)
	}
	if res.DeletedCount == 0 {
		return apperr.NotFound("patient not found")
	}
	return nil
}

func (r *patientRepoMongo) List(ctx context.Context, limit, offset int) ([]*Patient, int, error) {
	total, err := r.coll.CountDocuments(ctx, bson.M{})
	if err != nil {
		return nil, 0, apperr.Persistence(err)
	}
	cur, err := r.coll.Find(ctx, bson.M{}, pageOptions(limit, offset).SetProjection(bson.M{"replies": 0}))
	if err != nil {
		return nil, 0, apperr.Persistence(err)
	}
	var docs []patientDocument
	if err := cur.All(ctx, &docs); err != nil {
		return nil, 0, apperr.Persistence(err)
	}

	items := make([]*Patient, 0, len(docs))
	for i := range docs {
		p, err := docs[i].model()
		if err != nil {
			return nil, 0, err
		}
		items = append(items, p)
	}
	return items, int(total), nil
}

// -- Admin Repository --

type adminRepoMongo struct {
	coll *mongo.Collection
}

func NewAdminRepoMongo(s *mongostore.Store) AdminRepository {
	return &adminRepoMongo{coll: s.Collection(mongostore.AdminsCollection)}
}

func (r *adminRepoMongo) Create(ctx context.Context, a *Admin) error {
	a.ID = uuid.New()
	a.CreatedAt = time.Now().UTC()

	_, err := r.coll.InsertOne(ctx, adminDocument{
		ID: a.ID.String(), Name: a.Name, Email: a.Email, Password: a.PasswordHash, CreatedAt: a.CreatedAt,
	})
	return translateMongoWrite(err, "admin not found")
}

func (r *adminRepoMongo) GetByEmail(ctx context.Context, email string) (*Admin, error) {
	var doc adminDocument
	if err := r.coll.FindOne(ctx, bson.M{"email": email}).Decode(&doc); err != nil {
		return nil, mongostore.Translate(err, "admin not found")
	}
	return doc.model()
}
