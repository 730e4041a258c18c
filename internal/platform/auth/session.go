package auth

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/medconsult/medconsult/internal/platform/apperr"
)

type contextKey string

const SessionKey contextKey = "session"

// Session is the authenticated caller, derived from a verified token.
type Session struct {
	UserID    uuid.UUID
	Role      Role
	TokenID   string
	ExpiresAt time.Time
}

func (s Session) IsAdmin() bool { return s.Role == RoleAdmin }

// Is reports whether the session belongs to the given identity in the given role.
func (s Session) Is(role Role, id uuid.UUID) bool {
	return s.Role == role && s.UserID == id
}

func WithSession(ctx context.Context, s Session) context.Context {
	return context.WithValue(ctx, SessionKey, s)
}

func SessionFromContext(ctx context.Context) (Session, bool) {
	s, ok := ctx.Value(SessionKey).(Session)
	return s, ok
}

// RequireSession returns the caller's session or apperr.ErrAuth.
func RequireSession(ctx context.Context) (Session, error) {
	s, ok := SessionFromContext(ctx)
	if !ok {
		return Session{}, apperr.Auth(nil)
	}
	return s, nil
}

// RequireSelfOrAdmin allows admins and the identity id acting in role.
func RequireSelfOrAdmin(ctx context.Context, role Role, id uuid.UUID) (Session, error) {
	s, err := RequireSession(ctx)
	if err != nil {
		return s, err
	}
	if s.IsAdmin() || s.Is(role, id) {
		return s, nil
	}
	return s, apperr.Forbidden("access denied")
}
