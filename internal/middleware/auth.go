package middleware

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/golang-jwt/jwt/v5"
	"go.uber.org/zap"

	"atstore-api/internal/logging"
	"atstore-api/pkg/apierror"
)

// identityKey is the key for storing the caller identity in request context.
const identityKey contextKey = "identity"

// Identity is the authenticated caller. UserID identifies both buyers and
// listing owners.
type Identity struct {
	UserID string
	Email  string
	Role   string
}

// RoleAdmin is the role claim that grants access to store-wide order queries.
const RoleAdmin = "admin"

// IsAdmin reports whether the identity carries the admin role.
func (i *Identity) IsAdmin() bool {
	return i != nil && i.Role == RoleAdmin
}

// Claims are the bearer token claims issued by the identity provider.
type Claims struct {
	Email string `json:"email,omitempty"`
	Role  string `json:"role,omitempty"`
	jwt.RegisteredClaims
}

// AuthConfig holds configuration for the auth middleware.
type AuthConfig struct {
	// Secret is the HS256 signing key. An empty secret rejects every token.
	Secret string
	Logger *zap.Logger
}

// Authenticator verifies bearer tokens. Secret is passed in, never read from
// the environment.
type Authenticator struct {
	secret []byte
	parser *jwt.Parser
	logger *zap.Logger
}

// NewAuthenticator creates an authenticator from cfg.
func NewAuthenticator(cfg AuthConfig) *Authenticator {
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Authenticator{
		secret: []byte(cfg.Secret),
		parser: jwt.NewParser(jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()})),
		logger: logger,
	}
}

// Verify parses a token and returns the identity it carries.
func (a *Authenticator) Verify(tokenString string) (*Identity, error) {
	if len(a.secret) == 0 {
		return nil, errors.New("token verification is not configured")
	}

	claims := &Claims{}
	token, err := a.parser.ParseWithClaims(tokenString, claims, func(*jwt.Token) (interface{}, error) {
		return a.secret, nil
	})
	if err != nil {
		return nil, err
	}
	if !token.Valid || claims.Subject == "" {
		return nil, errors.New("token has no subject")
	}
	if claims.ExpiresAt == nil {
		return nil, errors.New("token has no expiry")
	}
	return &Identity{UserID: claims.Subject, Email: claims.Email, Role: claims.Role}, nil
}

// Required rejects requests without a valid bearer token.
func (a *Authenticator) Required(next http.Handler) http.Handler {
	return a.handler(next, true)
}

// Optional attaches the identity when a bearer token is present. A request
// without a token passes through anonymously; a bad token is still rejected.
func (a *Authenticator) Optional(next http.Handler) http.Handler {
	return a.handler(next, false)
}

// Admin rejects requests unless the bearer token carries the admin role.
func (a *Authenticator) Admin(next http.Handler) http.Handler {
	return a.handler(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !IdentityFromContext(r.Context()).IsAdmin() {
			writeError(w, apierror.Forbidden("Admin role required"))
			return
		}
		next.ServeHTTP(w, r)
	}), true)
}

func (a *Authenticator) handler(next http.Handler, required bool) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		auth := r.Header.Get("Authorization")
		if auth == "" {
			if required {
				writeError(w, apierror.Unauthorized("Authentication required. Use a Bearer token."))
				return
			}
			next.ServeHTTP(w, r)
			return
		}

		tokenString, ok := strings.CutPrefix(auth, "Bearer ")
		if !ok || tokenString == "" {
			writeError(w, apierror.Unauthorized("Malformed Authorization header"))
			return
		}

		identity, err := a.Verify(tokenString)
		if err != nil {
			logging.FromContext(r.Context(), a.logger).Debug("bearer token rejected", zap.Error(err))
			writeError(w, apierror.Unauthorized("Invalid or expired token"))
			return
		}

		ctx := context.WithValue(r.Context(), identityKey, identity)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// writeError writes an API error response.
func writeError(w http.ResponseWriter, err *apierror.Error) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(err.StatusCode)
	w.Write(err.ToJSON())
}

// IdentityFromContext retrieves the caller identity from request context.
func IdentityFromContext(ctx context.Context) *Identity {
	if id, ok := ctx.Value(identityKey).(*Identity); ok {
		return id
	}
	return nil
}

// UserID returns the authenticated user id, or "" for anonymous requests.
func UserID(ctx context.Context) string {
	if id := IdentityFromContext(ctx); id != nil {
		return id.UserID
	}
	return ""
}
