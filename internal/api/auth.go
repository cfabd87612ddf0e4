package api

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"strings"

	"masterhand/internal/config"

	"github.com/golang-jwt/jwt/v5"
)

const (
	RoleCustomer  = "customer"
	RoleCraftsman = "craftsman"

	// Trusted identity headers, honoured only when token auth is disabled.
	headerUserID   = "X-User-ID"
	headerUserRole = "X-User-Role"
)

// Claims are issued by the account service. Subject carries the user id.
type Claims struct {
	Role string `json:"role"`
	jwt.RegisteredClaims
}

// Principal is the authenticated caller.
type Principal struct {
	UserID int64
	Role   string
}

type principalKey struct{}

func withPrincipal(ctx context.Context, p Principal) context.Context {
	return context.WithValue(ctx, principalKey{}, p)
}

// PrincipalFrom returns the caller attached by the auth middleware.
func PrincipalFrom(ctx context.Context) (Principal, bool) {
	p, ok := ctx.Value(principalKey{}).(Principal)
	return p, ok
}

var (
	errMissingToken = errors.New("missing bearer token")
	errInvalidToken = errors.New("invalid token")
)

type authenticator struct {
	cfg    config.APIAuthConfig
	secret []byte
}

func newAuthenticator(cfg config.APIAuthConfig) *authenticator {
	return &authenticator{cfg: cfg, secret: []byte(cfg.JWTSecret)}
}

func (a *authenticator) middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var (
			p   Principal
			err error
		)
		if a.cfg.Required() {
			p, err = a.fromToken(r)
		} else {
			p, err = fromHeaders(r)
		}
		if err != nil {
			writeMessage(w, http.StatusUnauthorized, err.Error())
			return
		}
		next.ServeHTTP(w, r.WithContext(withPrincipal(r.Context(), p)))
	})
}

func (a *authenticator) fromToken(r *http.Request) (Principal, error) {
	header := strings.TrimSpace(r.Header.Get("Authorization"))
	parts := strings.SplitN(header, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") || strings.TrimSpace(parts[1]) == "" {
		return Principal{}, errMissingToken
	}

	claims := &Claims{}
	token, err := jwt.ParseWithClaims(strings.TrimSpace(parts[1]), claims, func(*jwt.Token) (interface{}, error) {
		return a.secret, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
	if err != nil || !token.Valid {
		return Principal{}, errInvalidToken
	}
	return principal(claims.Subject, claims.Role)
}

func fromHeaders(r *http.Request) (Principal, error) {
	if r.Header.Get(headerUserID) == "" {
		return Principal{}, errors.New("missing caller identity")
	}
	return principal(r.Header.Get(headerUserID), r.Header.Get(headerUserRole))
}

func principal(subject, role string) (Principal, error) {
	id, err := strconv.ParseInt(strings.TrimSpace(subject), 10, 64)
	if err != nil || id <= 0 {
		return Principal{}, errInvalidToken
	}
	role = strings.ToLower(strings.TrimSpace(role))
	if role != RoleCustomer && role != RoleCraftsman {
		return Principal{}, errInvalidToken
	}
	return Principal{UserID: id, Role: role}, nil
}

func requireRole(role string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			p, ok := PrincipalFrom(r.Context())
			if !ok {
				writeMessage(w, http.StatusUnauthorized, "unauthenticated")
				return
			}
			if p.Role != role {
				writeMessage(w, http.StatusForbidden, "permission denied")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
