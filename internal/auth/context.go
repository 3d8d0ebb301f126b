package auth

import (
	"context"
	"net/http"
)

type contextKey string

const (
	userContextKey    contextKey = "user"
	sessionContextKey contextKey = "session"

	// SessionCookieName is the name of the session cookie
	SessionCookieName = "pptserver_session"
)

// WithUser stores the user and session in the context
func WithUser(ctx context.Context, user *User, session *UserSession) context.Context {
	ctx = context.WithValue(ctx, userContextKey, user)
	return context.WithValue(ctx, sessionContextKey, session)
}

// UserFromContext retrieves the user from the context
func UserFromContext(ctx context.Context) (*User, bool) {
	user, ok := ctx.Value(userContextKey).(*User)
	return user, ok
}

// SessionFromContext retrieves the session from the context
func SessionFromContext(ctx context.Context) (*UserSession, bool) {
	session, ok := ctx.Value(sessionContextKey).(*UserSession)
	return session, ok
}

// OwnerFromContext returns the user id workspaces are scoped to, or ""
// when nobody is signed in
func OwnerFromContext(ctx context.Context) string {
	if user, ok := UserFromContext(ctx); ok {
		return user.ID
	}
	return ""
}

// SetSessionCookie sets the session cookie
func SetSessionCookie(w http.ResponseWriter, session *UserSession, secure bool) {
	http.SetCookie(w, &http.Cookie{
		Name:     SessionCookieName,
		Value:    session.ID,
		Path:     "/",
		Expires:  session.Expiry,
		HttpOnly: true,
		Secure:   secure,
		SameSite: http.SameSiteLaxMode,
	})
}

// ClearSessionCookie clears the session cookie
func ClearSessionCookie(w http.ResponseWriter) {
	http.SetCookie(w, &http.Cookie{
		Name:     SessionCookieName,
		Value:    "",
		Path:     "/",
		HttpOnly: true,
		MaxAge:   -1,
	})
}

// GetSessionCookie gets the session ID from the cookie
func GetSessionCookie(r *http.Request) (string, bool) {
	cookie, err := r.Cookie(SessionCookieName)
	if err != nil || cookie.Value == "" {
		return "", false
	}
	return cookie.Value, true
}
