package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"golang.org/x/crypto/bcrypt"
	"pharmapos-backend/internal/config"
	"pharmapos-backend/internal/domain"
	"pharmapos-backend/internal/ports"
)

var (
	ErrInvalidCredentials = errors.New("invalid credentials")
	ErrInvalidToken       = errors.New("invalid token")
)

type AuthService struct {
	Config config.Config
	Users  ports.UserFinder
	Logger *slog.Logger
	now    func() time.Time
}

type AuthResult struct {
	AccessToken string
	User        domain.User
	ExpiresAt   time.Time
}

type LoginInput struct {
	Email    string
	Password string
}

// Claims is what the access token carries about its holder.
type Claims struct {
	UserID     int64
	BusinessID int64
	Email      string
	Role       domain.UserRole
}

func (s AuthService) Login(ctx context.Context, in LoginInput) (*AuthResult, error) {
	user, err := s.Users.GetByEmail(ctx, strings.TrimSpace(in.Email))
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return nil, ErrInvalidCredentials
		}
		return nil, err
	}
	if user.PasswordHash == nil {
		return nil, ErrInvalidCredentials
	}
	if err := bcrypt.CompareHashAndPassword([]byte(*user.PasswordHash), []byte(in.Password)); err != nil {
		return nil, ErrInvalidCredentials
	}
	return s.issueToken(user)
}

func (s AuthService) issueToken(user *domain.User) (*AuthResult, error) {
	now := time.Now()
	if s.now != nil {
		now = s.now()
	}
	exp := now.Add(s.Config.AccessTokenTTL)

	access, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"sub":         fmt.Sprintf("%d", user.ID),
		"business_id": user.BusinessID,
		"email":       user.Email,
		"role":        user.Role,
		"token_type":  "access",
		"exp":         exp.Unix(),
		"iat":         now.Unix(),
	}).SignedString([]byte(s.Config.JWTSecret))
	if err != nil {
		return nil, fmt.Errorf("sign access token: %w", err)
	}

	return &AuthResult{AccessToken: access, User: *user, ExpiresAt: exp}, nil
}

// ParseAccessToken validates an access token signed with secret.
func ParseAccessToken(secret, tokenStr string) (*Claims, error) {
	token, err := jwt.Parse(tokenStr, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, jwt.ErrSignatureInvalid
		}
		return []byte(secret), nil
	})
	if err != nil || !token.Valid {
		return nil, ErrInvalidToken
	}
	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok || claims["token_type"] != "access" {
		return nil, ErrInvalidToken
	}
	sub, _ := claims["sub"].(string)
	var id int64
	if _, err := fmt.Sscan(sub, &id); err != nil || id <= 0 {
		return nil, ErrInvalidToken
	}
	biz, _ := claims["business_id"].(float64)
	if biz <= 0 {
		return nil, ErrInvalidToken
	}
	email, _ := claims["email"].(string)
	role, _ := claims["role"].(string)
	return &Claims{
		UserID:     id,
		BusinessID: int64(biz),
		Email:      email,
		Role:       domain.UserRole(role),
	}, nil
}
