package httpserver

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/fairyhunter13/interview-prep/internal/domain"
)

// SessionCookie is the cookie carrying the session token.
const SessionCookie = "session"

const maxUserIDLen = 128

// SessionData is the verified content of a token.
type SessionData struct {
	UserID    string
	IssuedAt  time.Time
	ExpiresAt time.Time
}

// SessionManager issues and verifies HS256 session tokens whose subject is
// the user id.
type SessionManager struct {
	secret []byte
	ttl    time.Duration
	secure bool
	now    func() time.Time
}

// NewSessionManager creates a manager signing with secret. Cookies are marked
// Secure unless secure is false.
func NewSessionManager(secret string, secure bool) *SessionManager {
	return &SessionManager{secret: []byte(secret), ttl: 24 * time.Hour, secure: secure, now: time.Now}
}

// Enabled reports whether a signing secret is configured.
func (sm *SessionManager) Enabled() bool { return sm != nil && len(sm.secret) > 0 }

// Issue returns a token for userID.
func (sm *SessionManager) Issue(userID string) (string, error) {
	if !sm.Enabled() {
		return "", errors.New("session secret not configured")
	}
	if userID == "" || len(userID) > maxUserIDLen {
		return "", fmt.Errorf("%w: invalid user id", domain.ErrInvalidArgument)
	}
	now := sm.now()
	claims := jwt.RegisteredClaims{
		Subject:   userID,
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(sm.ttl)),
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(sm.secret)
}

// Verify checks signature and expiry of token.
func (sm *SessionManager) Verify(token string) (*SessionData, error) {
	if !sm.Enabled() {
		return nil, errors.New("session secret not configured")
	}
	var claims jwt.RegisteredClaims
	_, err := jwt.ParseWithClaims(token, &claims,
		func(*jwt.Token) (any, error) { return sm.secret, nil },
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(sm.now),
	)
	switch {
	case errors.Is(err, jwt.ErrTokenExpired):
		return nil, errors.New("session expired")
	case err != nil:
		return nil, fmt.Errorf("invalid session: %w", err)
	case claims.Subject == "":
		return nil, errors.New("invalid session: missing subject")
	}
	data := &SessionData{UserID: claims.Subject, ExpiresAt: claims.ExpiresAt.Time}
	if claims.IssuedAt != nil {
		data.IssuedAt = claims.IssuedAt.Time
	}
	return data, nil
}

// SetSessionCookie sets the session cookie on the response.
func (sm *SessionManager) SetSessionCookie(w http.ResponseWriter, token string) {
	http.SetCookie(w, &http.Cookie{
		Name:     SessionCookie,
		Value:    token,
		Path:     "/",
		HttpOnly: true,
		Secure:   sm.secure,
		SameSite: http.SameSiteLaxMode,
		MaxAge:   int(sm.ttl.Seconds()),
	})
}

type sessionKey struct{}

// UserFrom returns the session user id, or "".
func UserFrom(ctx context.Context) string {
	if d, ok := ctx.Value(sessionKey{}).(*SessionData); ok {
		return d.UserID
	}
	return ""
}

func tokenFrom(r *http.Request) string {
	if h := r.Header.Get("Authorization"); strings.HasPrefix(h, "Bearer ") {
		return strings.TrimSpace(strings.TrimPrefix(h, "Bearer "))
	}
	if c, err := r.Cookie(SessionCookie); err == nil {
		return c.Value
	}
	return ""
}

// Session attaches the session user to the request context when a valid
// token is present. Requests without one pass through anonymously.
func (sm *SessionManager) Session(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		tok := tokenFrom(r)
		if tok == "" || !sm.Enabled() {
			next.ServeHTTP(w, r)
			return
		}
		data, err := sm.Verify(tok)
		if err != nil {
			next.ServeHTTP(w, r)
			return
		}
		ctx := context.WithValue(r.Context(), sessionKey{}, data)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// RequireSession rejects requests without a session user with 401.
func RequireSession(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if UserFrom(r.Context()) == "" {
			writeError(w, r, fmt.Errorf("%w: sign in required", domain.ErrUnauthorized), nil)
			return
		}
		next.ServeHTTP(w, r)
	})
}
