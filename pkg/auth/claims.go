package auth

import (
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/angelmondragon/zenergy-backend/pkg/enums"
)

// AccessTokenPayload captures the identity asserted when minting a JWT.
type AccessTokenPayload struct {
	UserID        uuid.UUID
	ActiveStoreID *uuid.UUID
	Role          enums.UserRole
	JTI           string
}

// AccessTokenClaims is the typed JWT presented by callers. The identity
// service issues these; the API only verifies them.
type AccessTokenClaims struct {
	UserID        uuid.UUID      `json:"user_id"`
	ActiveStoreID *uuid.UUID     `json:"active_store_id,omitempty"`
	Role          enums.UserRole `json:"role"`
	jwt.RegisteredClaims
}
