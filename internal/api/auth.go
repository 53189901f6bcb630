package api

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/wondertwin-ai/loyaltypay/internal/apperr"
)

type buyerKey struct{}

// BuyerFrom returns the authenticated buyer id stored by the auth middleware.
func BuyerFrom(ctx context.Context) (string, bool) {
	id, ok := ctx.Value(buyerKey{}).(string)
	return id, ok && id != ""
}

// Authenticator verifies HS256 bearer tokens. The token's sub claim is the
// buyer id. A nil Authenticator, or one with an empty secret, lets every
// request through unauthenticated.
type Authenticator struct {
	secret []byte
	leeway time.Duration
}

// NewAuthenticator creates an Authenticator for secret. It returns nil when
// secret is empty.
func NewAuthenticator(secret string) *Authenticator {
	if secret == "" {
		return nil
	}
	return &Authenticator{secret: []byte(secret), leeway: 30 * time.Second}
}

// Enabled reports whether requests must carry a token.
func (a *Authenticator) Enabled() bool {
	return a != nil && len(a.secret) > 0
}

// Verify parses and validates token and returns its subject.
func (a *Authenticator) Verify(token string) (string, error) {
	claims := &jwt.RegisteredClaims{}
	_, err := jwt.ParseWithClaims(token, claims,
		func(*jwt.Token) (any, error) { return a.secret, nil },
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithLeeway(a.leeway),
	)
	if err != nil {
		return "", fmt.Errorf("%w: %v", apperr.ErrUnauthorized, err)
	}
	if claims.Subject == "" {
		return "", fmt.Errorf("%w: token has no subject", apperr.ErrUnauthorized)
	}
	return claims.Subject, nil
}

// Middleware rejects requests without a valid "Authorization: Bearer" token
// and stores the buyer id in the request context.
func (a *Authenticator) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !a.Enabled() {
			next.ServeHTTP(w, r)
			return
		}

		header := r.Header.Get("Authorization")
		if header == "" {
			writeError(w, fmt.Errorf("%w: no authorization header provided", apperr.ErrUnauthorized))
			return
		}
		token := strings.TrimPrefix(header, "Bearer ")
		if token == header || token == "" {
			writeError(w, fmt.Errorf("%w: authorization header must use the Bearer scheme", apperr.ErrUnauthorized))
			return
		}

		sub, err := a.Verify(token)
		if err != nil {
			writeError(w, err)
			return
		}
		next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), buyerKey{}, sub)))
	})
}

// errForbiddenUser is returned when a request names a different buyer than
// the token's subject.
var errForbiddenUser = errors.New("request user does not match authenticated user")

// resolveUser returns the buyer a request acts for. With authentication on,
// an empty requested id means the token's subject and any other id is
// forbidden. With authentication off the requested id is used as given.
func resolveUser(ctx context.Context, requested string) (string, error) {
	buyer, ok := BuyerFrom(ctx)
	if !ok {
		return requested, nil
	}
	if requested == "" || requested == buyer {
		return buyer, nil
	}
	return "", fmt.Errorf("%w: %w", apperr.ErrForbidden, errForbiddenUser)
}
