package auth

import (
	"errors"
	"fmt"
	"slices"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/Exilon-Studios/exiloncms.fr-sub002/internal/hooks"
)

// RoleAdmin grants access to the plugin administration API.
const RoleAdmin = "admin"

const issuer = "exiloncms"

var ErrEmptySecret = errors.New("jwt secret is empty")

// Claims identify a CMS member.
type Claims struct {
	UserID   string   `json:"sub"`
	Username string   `json:"username"`
	Email    string   `json:"email,omitempty"`
	Roles    []string `json:"roles,omitempty"`
	jwt.RegisteredClaims
}

func (c *Claims) HasRole(role string) bool {
	return slices.Contains(c.Roles, role)
}

func (c *Claims) IsAdmin() bool { return c.HasRole(RoleAdmin) }

// User is the member as plugins see it through hooks.
func (c *Claims) User() hooks.User {
	return hooks.User{
		ID:       c.UserID,
		Username: c.Username,
		Email:    c.Email,
		Roles:    slices.Clone(c.Roles),
	}
}

type JWTService struct {
	secretKey      []byte
	accessDuration time.Duration
}

func NewJWTService(secretKey string, accessDuration time.Duration) *JWTService {
	if accessDuration <= 0 {
		accessDuration = 15 * time.Minute
	}
	return &JWTService{
		secretKey:      []byte(secretKey),
		accessDuration: accessDuration,
	}
}

// GenerateToken signs an access token for user.
func (j *JWTService) GenerateToken(user hooks.User) (string, error) {
	if len(j.secretKey) == 0 {
		return "", ErrEmptySecret
	}
	now := time.Now()
	claims := Claims{
		UserID:   user.ID,
		Username: user.Username,
		Email:    user.Email,
		Roles:    user.Roles,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    issuer,
			Subject:   user.ID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(j.accessDuration)),
		},
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(j.secretKey)
}

func (j *JWTService) ValidateToken(tokenString string) (*Claims, error) {
	if len(j.secretKey) == 0 {
		return nil, ErrEmptySecret
	}
	token, err := jwt.ParseWithClaims(tokenString, &Claims{}, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return j.secretKey, nil
	}, jwt.WithIssuer(issuer), jwt.WithExpirationRequired())
	if err != nil {
		return nil, fmt.Errorf("invalid token: %w", err)
	}
	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid {
		return nil, fmt.Errorf("invalid token claims")
	}
	return claims, nil
}
