package auth

import (
	"context"

	"github.com/golang-jwt/jwt/v4"
)

type Config struct {
	JWTKey string `envconfig:"JWT_KEY" default:"qwerty"`
}

const (
	RoleAdmin  = "admin"
	RoleReader = "reader"
)

type Profile struct {
	Username string `json:"username"`
	Role     string `json:"role"`
}

type Claims struct {
	jwt.RegisteredClaims
	Profile Profile `json:"profile"`
}

// Identity is the authenticated caller attached to the request context.
type Identity struct {
	Username string
	Role     string
}

func (i Identity) IsAdmin() bool {
	return i.Role == RoleAdmin
}

type ctxKey struct{}

func SetIdentity(ctx context.Context, id Identity) context.Context {
	return context.WithValue(ctx, ctxKey{}, id)
}

func GetIdentity(ctx context.Context) (Identity, bool) {
	id, ok := ctx.Value(ctxKey{}).(Identity)
	return id, ok
}
