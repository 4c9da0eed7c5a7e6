package auth

import (
	"errors"
	"fmt"

	"github.com/golang-jwt/jwt/v5"

	"github.com/Excellence-arch/anonchat-go/internal/domain"
)

// Claims mirrors the access-token claims issued by the auth collaborator.
type Claims struct {
	jwt.RegisteredClaims
	UserID   string `json:"user_id"`
	Username string `json:"username"`
}

var ErrNoSubject = errors.New("credential carries no user id")

// LocalIdentity extracts the local user's identity from the session
// credential. The token is not verified here: the client never holds the
// signing key, and every collaborator re-validates the credential on its
// own side.
func LocalIdentity(credential string) (domain.Identity, error) {
	var claims Claims
	parser := jwt.NewParser()
	if _, _, err := parser.ParseUnverified(credential, &claims); err != nil {
		return domain.Identity{}, fmt.Errorf("parse credential: %w", err)
	}

	id := claims.UserID
	if id == "" {
		id = claims.Subject
	}
	if id == "" {
		return domain.Identity{}, ErrNoSubject
	}

	return domain.Identity{
		ID:          id,
		DisplayName: claims.Username,
	}, nil
}
