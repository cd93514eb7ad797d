package httpapi

import (
	"errors"
	"strings"
	"time"

	jwtlib "github.com/golang-jwt/jwt/v5"
	"golang.org/x/crypto/bcrypt"

	"barbershop/backend/internal/domain"
)

var errInvalidCredentials = errors.New("invalid credentials")

// AuthManager exchanges the shop's shared passwords for short-lived role
// tokens. There are no user accounts: a token only says "owner" or "employee".
type AuthManager struct {
	secret   []byte
	tokenTTL time.Duration
	// bcrypt hashes per role; an empty hash means the role needs no password
	passwords map[string]string
	now       func() time.Time
}

type shopClaims struct {
	jwtlib.RegisteredClaims
	Role string `json:"role"`
}

func NewAuthManager(secret string, tokenTTL time.Duration, ownerPassword string, employeePassword string) *AuthManager {
	if secret == "" {
		secret = "dev-change-me"
	}
	if tokenTTL <= 0 {
		tokenTTL = 12 * time.Hour
	}

	ownerHash := "disabled"
	if strings.TrimSpace(ownerPassword) != "" {
		if hashed, err := hashPassword(ownerPassword); err == nil {
			ownerHash = hashed
		}
	}
	employeeHash := ""
	if strings.TrimSpace(employeePassword) != "" {
		if hashed, err := hashPassword(employeePassword); err == nil {
			employeeHash = hashed
		} else {
			employeeHash = "disabled"
		}
	}

	return &AuthManager{
		secret:   []byte(secret),
		tokenTTL: tokenTTL,
		passwords: map[string]string{
			domain.RoleOwner:    ownerHash,
			domain.RoleEmployee: employeeHash,
		},
		now: time.Now,
	}
}

func (a *AuthManager) Login(req domain.LoginRequest) (domain.LoginResponse, error) {
	role := strings.ToLower(strings.TrimSpace(req.Role))
	stored, ok := a.passwords[role]
	if !ok {
		return domain.LoginResponse{}, errInvalidCredentials
	}
	if stored != "" && !verifyPassword(stored, req.Password) {
		return domain.LoginResponse{}, errInvalidCredentials
	}

	expiresAt := a.now().UTC().Add(a.tokenTTL)
	token, err := a.sign(role, expiresAt)
	if err != nil {
		return domain.LoginResponse{}, err
	}

	return domain.LoginResponse{
		AccessToken: token,
		Role:        role,
		ExpiresAt:   expiresAt.Format(time.RFC3339),
	}, nil
}

func (a *AuthManager) ParseToken(tokenStr string) (domain.Actor, error) {
	claims := &shopClaims{}
	token, err := jwtlib.ParseWithClaims(tokenStr, claims, func(t *jwtlib.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwtlib.SigningMethodHMAC); !ok {
			return nil, errors.New("unexpected signing method")
		}
		return a.secret, nil
	}, jwtlib.WithValidMethods([]string{"HS256"}), jwtlib.WithTimeFunc(a.now))
	if err != nil || !token.Valid {
		return domain.Actor{}, errors.New("invalid or expired token")
	}
	if _, known := a.passwords[claims.Role]; !known {
		return domain.Actor{}, errors.New("invalid token role")
	}
	return domain.Actor{Role: claims.Role}, nil
}

func (a *AuthManager) sign(role string, expiresAt time.Time) (string, error) {
	claims := shopClaims{
		RegisteredClaims: jwtlib.RegisteredClaims{
			Subject:   role,
			IssuedAt:  jwtlib.NewNumericDate(a.now().UTC()),
			ExpiresAt: jwtlib.NewNumericDate(expiresAt),
			Issuer:    "barbershop",
		},
		Role: role,
	}
	token := jwtlib.NewWithClaims(jwtlib.SigningMethodHS256, claims)
	return token.SignedString(a.secret)
}

func verifyPassword(stored string, input string) bool {
	if stored == "" || strings.TrimSpace(input) == "" || !isPasswordHash(stored) {
		return false
	}
	return bcrypt.CompareHashAndPassword([]byte(stored), []byte(input)) == nil
}

func hashPassword(password string) (string, error) {
	bytes, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return "", err
	}
	return string(bytes), nil
}

func isPasswordHash(value string) bool {
	return strings.HasPrefix(value, "$2a$") || strings.HasPrefix(value, "$2b$") || strings.HasPrefix(value, "$2y$")
}
