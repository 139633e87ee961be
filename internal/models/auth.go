package models

import "github.com/golang-jwt/jwt/v5"

// JWTClaims is the token payload minted by the platform's identity service.
// Every authenticated call resolves to the (UserID, Role, TenantID) triple;
// this core trusts the triple and never verifies credentials itself.
type JWTClaims struct {
	UserID   string   `json:"user_id"`
	Role     UserRole `json:"role"`
	TenantID string   `json:"tenant_id"`
	Email    string   `json:"email"`
	FullName string   `json:"full_name"`
	jwt.RegisteredClaims
}
