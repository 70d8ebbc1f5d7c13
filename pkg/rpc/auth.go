package rpc

import (
	"fmt"

	"github.com/golang-jwt/jwt/v5"

	"github.com/gatos-project/gatos/pkg/gatoserr"
)

// CallerClaims is the JWT claim set gatosd expects on messages.publish
// requests, mirroring the teacher's auth.HelmClaims shape (RegisteredClaims
// plus a small set of GATOS-specific fields).
type CallerClaims struct {
	jwt.RegisteredClaims
	Namespace string `json:"namespace"`
}

// CallerAuthenticator validates a request's bearer token and resolves the
// caller identity recorded in PolicyAuditEntry/AppendContext.Caller.
// Grounded on the teacher's pkg/auth.JWTValidator: a keyFunc closure handed
// to jwt.ParseWithClaims, never a hand-rolled signature check.
type CallerAuthenticator struct {
	keyFunc jwt.Keyfunc
}

// NewCallerAuthenticator builds an authenticator using keyFunc to resolve
// the verification key for a given token (HMAC secret, RSA/EC public key,
// or a JWKS lookup — the caller decides).
func NewCallerAuthenticator(keyFunc jwt.Keyfunc) *CallerAuthenticator {
	return &CallerAuthenticator{keyFunc: keyFunc}
}

// Authenticate validates tokenStr and returns the caller's subject. A
// missing or invalid token is always an error: messages.publish has no
// anonymous-caller mode (fail closed, matching Policy Guard's audit-first
// discipline for writes).
func (a *CallerAuthenticator) Authenticate(tokenStr string) (string, error) {
	if a == nil || a.keyFunc == nil {
		return "", fmt.Errorf("%w: no caller authenticator configured", gatoserr.ErrUnauthorized)
	}
	if tokenStr == "" {
		return "", fmt.Errorf("%w: missing bearer token", gatoserr.ErrUnauthorized)
	}

	claims := &CallerClaims{}
	token, err := jwt.ParseWithClaims(tokenStr, claims, a.keyFunc)
	if err != nil {
		return "", fmt.Errorf("%w: token validation failed: %v", gatoserr.ErrUnauthorized, err)
	}
	if !token.Valid {
		return "", fmt.Errorf("%w: token is not valid", gatoserr.ErrUnauthorized)
	}
	if claims.Subject == "" {
		return "", fmt.Errorf("%w: token subject is required", gatoserr.ErrUnauthorized)
	}
	return claims.Subject, nil
}
