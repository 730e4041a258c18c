package mongostore

import (
	"context"
	"fmt"

	"go.mongodb.org/mongo-driver/mongo"

	"github.com/medconsult/medconsult/internal/platform/apperr"
)

// Transactor runs a unit of work inside a MongoDB session transaction.
// Transactions need a replica set; with enabled=false the work runs
// directly and multi-document writes are not atomic.
type Transactor struct {
	client  *mongo.Client
	enabled bool
}

func NewTransactor(s *Store, enabled bool) *Transactor {
	return &Transactor{client: s.client, enabled: enabled}
}

// DetectTransactor is NewTransactor with enabled narrowed to what the
// deployment supports: against a standalone mongod it returns a disabled
// Transactor instead of one whose every transaction fails.
func DetectTransactor(ctx context.Context, s *Store, enabled bool) (*Transactor, error) {
	if !enabled {
		return NewTransactor(s, false), nil
	}
	ok, err := s.SupportsTransactions(ctx)
	if err != nil {
		return nil, err
	}
	return NewTransactor(s, ok), nil
}

// Enabled reports whether work runs inside session transactions.
func (t *Transactor) Enabled() bool { return t.enabled }

func (t *Transactor) WithinTx(ctx context.Context, fn func(ctx context.Context) error) error {
	if !t.enabled || mongo.SessionFromContext(ctx) != nil {
		return fn(ctx)
	}

	sess, err := t.client.StartSession()
	if err != nil {
		return apperr.Persistence(fmt.Errorf("start session: %w", err))
	}
	defer sess.EndSession(ctx)

	_, err = sess.WithTransaction(ctx, func(sc mongo.SessionContext) (interface{}, error) {
		return nil, fn(sc)
	})
	return apperr.Persistence(err)
}
