package auth

import "context"

type contextKey string

const sessionKey contextKey = "session"

// Session is the authenticated caller of one request.
type Session struct {
	UserID string
	Email  string
}

// WithSession returns a copy of ctx carrying the session.
func WithSession(ctx context.Context, s Session) context.Context {
	return context.WithValue(ctx, sessionKey, s)
}

// SessionFrom returns the session stored in ctx, if any.
func SessionFrom(ctx context.Context) (Session, bool) {
	s, ok := ctx.Value(sessionKey).(Session)
	return s, ok && s.UserID != ""
}
