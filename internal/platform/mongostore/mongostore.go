// Package mongostore connects to MongoDB and provides the session
// transactions and error translation used by the document repositories.
package mongostore

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.mongodb.org/mongo-driver/mongo/readpref"

	"github.com/medconsult/medconsult/internal/platform/apperr"
)

const (
	DoctorsCollection  = "doctors"
	PatientsCollection = "patients"
	AdminsCollection   = "admins"
	MessagesCollection = "messages"
)

type Store struct {
	client *mongo.Client
	db     *mongo.Database
}

// Connect dials uri and verifies the primary is reachable.
func Connect(ctx context.Context, uri, database string) (*Store, error) {
	client, err := mongo.Connect(ctx, options.Client().
		ApplyURI(uri).
		SetServerSelectionTimeout(10*time.Second))
	if err != nil {
		return nil, fmt.Errorf("connect mongo: %w", err)
	}

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx, readpref.Primary()); err != nil {
		_ = client.Disconnect(ctx)
		return nil, fmt.Errorf("ping mongo: %w", err)
	}

	return New(client, database), nil
}

// New wraps an already connected client.
func New(client *mongo.Client, database string) *Store {
	return &Store{client: client, db: client.Database(database)}
}

func (s *Store) Database() *mongo.Database { return s.db }

func (s *Store) Collection(name string) *mongo.Collection { return s.db.Collection(name) }

func (s *Store) Ping(ctx context.Context) error {
	return s.client.Ping(ctx, readpref.Primary())
}

func (s *Store) Close(ctx context.Context) error {
	return s.client.Disconnect(ctx)
}

type helloResult struct {
	SetName string `bson:"setName"`
	Msg     string `bson:"msg"`
}

// SupportsTransactions reports whether the deployment is a replica set or a
// sharded cluster. A standalone mongod rejects multi-document transactions.
func (s *Store) SupportsTransactions(ctx context.Context) (bool, error) {
	var res helloResult
	if err := s.client.Database("admin").RunCommand(ctx, bson.D{{Key: "hello", Value: 1}}).Decode(&res); err != nil {
		return false, fmt.Errorf("hello: %w", err)
	}
	return res.SetName != "" || res.Msg == "isdbgrid", nil
}

// EnsureIndexes creates the unique identity indexes and the message lookup
// index. It is safe to call on every start.
func (s *Store) EnsureIndexes(ctx context.Context) error {
	for coll, models := range indexModels() {
		if _, err := s.Collection(coll).Indexes().CreateMany(ctx, models); err != nil {
			return fmt.Errorf("create indexes on %s: %w", coll, err)
		}
	}
	return nil
}

func indexModels() map[string][]mongo.IndexModel {
	unique := func(field string) mongo.IndexModel {
		return mongo.IndexModel{
			Keys:    bson.D{{Key: field, Value: 1}},
			Options: options.Index().SetUnique(true).SetName(field + "_unique"),
		}
	}
	return map[string][]mongo.IndexModel{
		DoctorsCollection:  {unique("email"), unique("phone")},
		PatientsCollection: {unique("email"), unique("phone")},
		AdminsCollection:   {unique("email")},
		MessagesCollection: {{
			Keys:    bson.D{{Key: "doctorId", Value: 1}, {Key: "sentAt", Value: 1}},
			Options: options.Index().SetName("doctor_sent_at"),
		}},
	}
}

// Translate maps driver errors onto apperr kinds.
func Translate(err error, notFound string) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, mongo.ErrNoDocuments):
		return apperr.NotFound(notFound)
	default:
		return apperr.Persistence(err)
	}
}

// IsDuplicateKey reports whether err came from a unique index.
func IsDuplicateKey(err error) bool {
	return mongo.IsDuplicateKeyError(err)
}
