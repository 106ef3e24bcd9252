package models

import (
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// TokenRequest holds credentials exchanged for an API token.
type TokenRequest struct {
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required"`
}

// TokenResponse returns the issued API token.
type TokenResponse struct {
	Token     string    `json:"token"`
	ExpiresAt time.Time `json:"expires_at"`
	User      UserInfo  `json:"user"`
}

// UserInfo describes the authenticated user in responses.
type UserInfo struct {
	ID       string     `json:"id"`
	Email    string     `json:"email"`
	FullName string     `json:"full_name"`
	Roles    []UserRole `json:"roles"`
}

// TokenClaims is the payload carried by API tokens.
type TokenClaims struct {
	UserID string     `json:"user_id"`
	Email  string     `json:"email"`
	SiteID string     `json:"site_id"`
	Roles  []UserRole `json:"roles"`
	jwt.RegisteredClaims
}

// HasRole reports whether the token was issued for a user holding role.
func (c *TokenClaims) HasRole(role UserRole) bool {
	if c == nil {
		return false
	}
	for _, r := range c.Roles {
		if r == role {
			return true
		}
	}
	return false
}
