package consultation

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/medconsult/medconsult/internal/domain/identity"
	"github.com/medconsult/medconsult/internal/platform/apperr"
	"github.com/medconsult/medconsult/internal/platform/mongostore"
)

type replyDocument struct {
	CareToBeTaken string    `bson:"careToBeTaken"`
	Medicines     string    `bson:"medicines"`
	ReplyDate     time.Time `bson:"replyDate"`
	DoctorID      string    `bson:"doctorId"`
	DoctorName    string    `bson:"doctorName"`
}

type messageDocument struct {
	ID             string         `bson:"_id"`
	DoctorID       string         `bson:"doctorId"`
	PatientID      *string        `bson:"patientId,omitempty"`
	IllnessHistory string         `bson:"illnessHistory"`
	RecentSurgery  string         `bson:"recentSurgery"`
	IsDiabetic     string         `bson:"isDiabetic"`
	Allergies      string         `bson:"allergies"`
	Others         string         `bson:"others"`
	SentAt         time.Time      `bson:"sentAt"`
	Reply          *replyDocument `bson:"reply,omitempty"`
}

// patientReplyDocument matches the entries of patients.replies.
type patientReplyDocument struct {
	MessageID     string    `bson:"messageId"`
	DoctorID      string    `bson:"doctorId"`
	DoctorName    string    `bson:"doctorName"`
	CareToBeTaken string    `bson:"careToBeTaken"`
	Medicines     string    `bson:"medicines"`
	ReplyDate     time.Time `bson:"replyDate"`
}

func parseDocID(s string) (uuid.UUID, error) {
	id, err := uuid.Parse(s)
	if err != nil {
		return uuid.Nil, apperr.Persistence(fmt.Errorf("stored id %q: %w", s, err))
	}
	return id, nil
}

func (d *messageDocument) model() (*Message, error) {
	id, err := parseDocID(d.ID)
	if err != nil {
		return nil, err
	}
	doctorID, err := parseDocID(d.DoctorID)
	if err != nil {
		return nil, err
	}
	m := &Message{
		ID: id, DoctorID: doctorID, IllnessHistory: d.IllnessHistory, RecentSurgery: d.RecentSurgery,
		IsDiabetic: d.IsDiabetic, Allergies: d.Allergies, Others: d.Others, SentAt: d.SentAt,
	}
	if d.PatientID != nil && *d.PatientID != "" {
		pid, err := parseDocID(*d.PatientID)
		if err != nil {
			return nil, err
		}
		m.PatientID = &pid
	}
	if d.Reply != nil {
		m.Reply = &Reply{
			CareToBeTaken: d.Reply.CareToBeTaken, Medicines: d.Reply.Medicines,
			ReplyDate: d.Reply.ReplyDate, DoctorName: d.Reply.DoctorName,
		}
		if d.Reply.DoctorID != "" {
			if m.Reply.DoctorID, err = parseDocID(d.Reply.DoctorID); err != nil {
				return nil, err
			}
		}
	}
	return m, nil
}

func newReplyDocument(r Reply) *replyDocument {
	return &replyDocument{
		CareToBeTaken: r.CareToBeTaken, Medicines: r.Medicines, ReplyDate: r.ReplyDate,
		DoctorID: r.DoctorID.String(), DoctorName: r.DoctorName,
	}
}

// -- Message Repository --

type messageRepoMongo struct {
	coll *mongo.Collection
}

func NewMessageRepoMongo(s *mongostore.Store) MessageRepository {
	return &messageRepoMongo{coll: s.Collection(mongostore.MessagesCollection)}
}

func (r *messageRepoMongo) Create(ctx context.Context, m *Message) error {
	m.ID = uuid.New()
	if m.SentAt.IsZero() {
		m.SentAt = time.Now().UTC()
	}
	doc := messageDocument{
		ID: m.ID.String(), DoctorID: m.DoctorID.String(), IllnessHistory: m.IllnessHistory,
		RecentSurgery: m.RecentSurgery, IsDiabetic: m.IsDiabetic, Allergies: m.Allergies,
		Others: m.Others, SentAt: m.SentAt,
	}
	if m.PatientID != nil {
		pid := m.PatientID.String()
		doc.PatientID = &pid
	}
	_, err := r.coll.InsertOne(ctx, doc)
	return mongostore.Translate(err, "message not found")
}

func (r *messageRepoMongo) GetByID(ctx context.Context, id uuid.UUID) (*Message, error) {
	var doc messageDocument
	if err := r.coll.FindOne(ctx, bson.M{"_id": id.String()}).Decode(&doc); err != nil {
		return nil, mongostore.Translate(err, "message not found")
	}
	return doc.model()
}

func (r *messageRepoMongo) ListByDoctor(ctx context.Context, doctorID uuid.UUID, status Status) ([]*Message, error) {
	filter := bson.M{"doctorId": doctorID.String()}
	switch status {
	case StatusUnanswered:
		filter["reply"] = nil
	case StatusAnswered:
		filter["reply"] = bson.M{"$ne": nil}
	}
	opts := options.Find().SetSort(bson.D{{Key: "sentAt", Value: 1}, {Key: "_id", Value: 1}})

	cur, err := r.coll.Find(ctx, filter, opts)
	if err != nil {
		return nil, apperr.Persistence(err)
	}
	defer cur.Close(ctx)

	items := []*Message{}
	for cur.Next(ctx) {
		var doc messageDocument
		if err := cur.Decode(&doc); err != nil {
			return nil, apperr.Persistence(err)
		}
		m, err := doc.model()
		if err != nil {
			return nil, err
		}
		items = append(items, m)
	}
	if err := cur.Err(); err != nil {
		return nil, apperr.Persistence(err)
	}
	return items, nil
}

func (r *messageRepoMongo) SetReply(ctx context.Context, id uuid.UUID, rp Reply) error {
	res, err := r.coll.UpdateOne(ctx, bson.M{"_id": id.String()},
		bson.M{"$set": bson.M{"reply": newReplyDocument(rp)}})
	if err != nil {
		return apperr.Persistence(err)
	}
	if res.MatchedCount == 0 {
		return apperr.NotFound("message not found")
	}
	return nil
}

func (r *messageRepoMongo) SetFirstReply(ctx context.Context, id uuid.UUID, rp Reply) error {
	res, err := r.coll.UpdateOne(ctx, bson.M{"_id": id.String(), "reply": nil},
		bson.M{"$set": bson.M{"reply": newReplyDocument(rp)}})
	if err != nil {
		return apperr.Persistence(err)
	}
	if res.MatchedCount > 0 {
		return nil
	}

	n, err := r.coll.CountDocuments(ctx, bson.M{"_id": id.String()}, options.Count().SetLimit(1))
	if err != nil {
		return apperr.Persistence(err)
	}
	if n == 0 {
		return apperr.NotFound("message not found")
	}
	return apperr.AlreadyAnswered("message has already been answered")
}

// -- Patient Reply History --

type replyAppenderMongo struct {
	coll *mongo.Collection
}

func NewReplyAppenderMongo(s *mongostore.Store) ReplyAppender {
	return &replyAppenderMongo{coll: s.Collection(mongostore.PatientsCollection)}
}

func (r *replyAppenderMongo) AppendReply(ctx context.Context, patientID uuid.UUID, rp identity.Reply) error {
	res, err := r.coll.UpdateOne(ctx, bson.M{"_id": patientID.String()}, bson.M{
		"$push": bson.M{"replies": patientReplyDocument{
			MessageID: rp.MessageID.String(), DoctorID: rp.DoctorID.String(), DoctorName: rp.DoctorName,
			CareToBeTaken: rp.CareToBeTaken, Medicines: rp.Medicines, ReplyDate: rp.ReplyDate,
		}},
		"$currentDate": bson.M{"updatedAt": true},
	})
	if err != nil {
		return apperr.Persistence(err)
	}
	if res.MatchedCount == 0 {
		return apperr.NotFound("patient not found")
	}
	return nil
}
