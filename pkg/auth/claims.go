package auth

import (
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/angelmondragon/marketplace-orders/pkg/enums"
)

// ActorPayload is what the identity provider vouches for when minting a token.
type ActorPayload struct {
	UserID uuid.UUID
	Role   enums.ActorRole
	Name   string
	JTI    string
}

// ActorClaims is the bearer token presented to the order API. The role
// decides which lifecycle moves the caller may request.
type ActorClaims struct {
	UserID uuid.UUID       `json:"user_id"`
	Role   enums.ActorRole `json:"role"`
	Name   string          `json:"name,omitempty"`
	jwt.RegisteredClaims
}
