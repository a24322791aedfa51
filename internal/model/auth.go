package model

import (
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

type Role string

const (
	RoleStudent Role = "student"
	RoleDoctor  Role = "doctor"
	RoleAdmin   Role = "admin"
)

func (r Role) Valid() bool {
	switch r {
	case RoleStudent, RoleDoctor, RoleAdmin:
		return true
	}
	return false
}

// Identity is the verified caller supplied by the identity provider.
type Identity struct {
	UserID uuid.UUID
	Role   Role
}

// TokenClaims represents JWT claims issued by the identity provider.
type TokenClaims struct {
	jwt.RegisteredClaims
	Role Role `json:"role"`
}
