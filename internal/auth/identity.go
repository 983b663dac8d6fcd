// Package auth derives the local user identity from a bearer credential.
package auth

import (
	"errors"
	"fmt"
	"strings"

	"github.com/golang-jwt/jwt/v5"
)

// ErrInvalidToken is returned when a credential is not a parseable JWT or
// carries no user id.
var ErrInvalidToken = errors.New("invalid token")

// Identity is the user a credential was issued to.
type Identity struct {
	UserID   string
	UserName string
}

var (
	idClaims   = []string{"sub", "user_id", "userId", "id"}
	nameClaims = []string{"name", "user_name", "username"}
)

// IdentityFromToken reads the identity claims of token without verifying its
// signature. The server remains the authority on the credential; the result
// only labels optimistic messages.
func IdentityFromToken(token string) (Identity, error) {
	token = strings.TrimSpace(strings.TrimPrefix(token, "Bearer "))
	if token == "" {
		return Identity{}, fmt.Errorf("%w: empty", ErrInvalidToken)
	}

	claims := jwt.MapClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(token, claims); err != nil {
		return Identity{}, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}

	id := firstString(claims, idClaims)
	if id == "" {
		if user, ok := claims["user"].(map[string]any); ok {
			id = firstString(user, []string{"id"})
			if name := firstString(user, []string{"name"}); name != "" {
				return Identity{UserID: id, UserName: name}, nil
			}
		}
	}
	if id == "" {
		return Identity{}, fmt.Errorf("%w: no user id claim", ErrInvalidToken)
	}

	name := firstString(claims, nameClaims)
	if name == "" {
		name = id
	}
	return Identity{UserID: id, UserName: name}, nil
}

func firstString(claims map[string]any, keys []string) string {
	for _, k := range keys {
		switch v := claims[k].(type) {
		case string:
			if v != "" {
				return v
			}
		case float64:
			return fmt.Sprintf("%.0f", v)
		}
	}
	return ""
}
