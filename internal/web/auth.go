package web

import (
	"context"
	"fmt"
	"net/http"
	"strings"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// Identity is the authenticated caller extracted from the bearer token.
type Identity struct {
	CompanyID uuid.UUID
	UserID    string
}

type identityKey struct{}

// IdentityFrom returns the authenticated identity stored by the auth
// middleware.
func IdentityFrom(ctx context.Context) (Identity, bool) {
	id, ok := ctx.Value(identityKey{}).(Identity)
	return id, ok
}

type claims struct {
	CompanyID string `json:"company_id"`
	jwt.RegisteredClaims
}

// Authenticator verifies HS256 bearer tokens and attaches the caller identity
// to the request context. Requests without a verifiable token never reach the
// handler.
type Authenticator struct {
	secret []byte
}

// NewAuthenticator creates an Authenticator for the shared signing secret.
func NewAuthenticator(secret string) *Authenticator {
	return &Authenticator{secret: []byte(secret)}
}

// Middleware rejects unauthenticated requests with 401 before any store
// access happens.
func (a *Authenticator) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		identity, err := a.authenticate(r)
		if err != nil {
			writeJSONError(w, http.StatusUnauthorized, err.Error())
			return
		}
		ctx := context.WithValue(r.Context(), identityKey{}, identity)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func (a *Authenticator) authenticate(r *http.Request) (Identity, error) {
	header := r.Header.Get("Authorization")
	token, ok := strings.CutPrefix(header, "Bearer ")
	if !ok || token == "" {
		return Identity{}, fmt.Errorf("missing bearer token")
	}

	var c claims
	parsed, err := jwt.ParseWithClaims(token, &c, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method %q", t.Method.Alg())
		}
		return a.secret, nil
	}, jwt.WithValidMethods([]string{"HS256"}))
	if err != nil || !parsed.Valid {
		return Identity{}, fmt.Errorf("invalid token")
	}

	companyID, err := uuid.Parse(c.CompanyID)
	if err != nil {
		return Identity{}, fmt.Errorf("invalid token: bad company claim")
	}

	return Identity{CompanyID: companyID, UserID: c.Subject}, nil
}
