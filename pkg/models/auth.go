package models

import (
	"github.com/golang-jwt/jwt/v5"
)

const (
	RoleClient = "client"
	RoleAdmin  = "admin"
)

type JWTClaims struct {
	Subject string `json:"sub_id"`
	Role    string `json:"role"` // client, admin
	jwt.RegisteredClaims
}
