// Package auth issues and validates the signed tokens used for sessions and
// e-mail confirmation links.
package auth

import (
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/Mouaddiguoug/feetflight/internal/errors"
)

const (
	PurposeAccess  = "access"
	PurposeConfirm = "confirm"

	issuer = "feetflight"
)

// Claims represents JWT claims
type Claims struct {
	UserID  string `json:"user_id"`
	Email   string `json:"email,omitempty"`
	Role    string `json:"role,omitempty"`
	RoleID  string `json:"role_id,omitempty"`
	Admin   bool   `json:"admin,omitempty"`
	Purpose string `json:"purpose"`
	jwt.RegisteredClaims
}

// Subject is the identity a token is issued for.
type Subject struct {
	UserID string
	Email  string
	Role   string
	RoleID string
	Admin  bool
}

// TokenManager signs tokens with HMAC-SHA256.
type TokenManager struct {
	secret     []byte
	accessTTL  time.Duration
	confirmTTL time.Duration
	now        func() time.Time
}

func NewTokenManager(secret string, accessTTL time.Duration) *TokenManager {
	if accessTTL <= 0 {
		accessTTL = 24 * time.Hour
	}
	return &TokenManager{
		secret:     []byte(secret),
		accessTTL:  accessTTL,
		confirmTTL: 72 * time.Hour,
		now:        time.Now,
	}
}

// AccessTTL is the lifetime of session tokens.
func (m *TokenManager) AccessTTL() time.Duration {
	return m.accessTTL
}

// Issue returns a session token for sub.
func (m *TokenManager) Issue(sub Subject) (string, error) {
	return m.sign(sub, PurposeAccess, m.accessTTL)
}

// IssueConfirmation returns a token for the e-mail confirmation link.
func (m *TokenManager) IssueConfirmation(userID, email string) (string, error) {
	return m.sign(Subject{UserID: userID, Email: email}, PurposeConfirm, m.confirmTTL)
}

func (m *TokenManager) sign(sub Subject, purpose string, ttl time.Duration) (string, error) {
	now := m.now()
	claims := &Claims{
		UserID:  sub.UserID,
		Email:   sub.Email,
		Role:    sub.Role,
		RoleID:  sub.RoleID,
		Admin:   sub.Admin,
		Purpose: purpose,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    issuer,
			Subject:   sub.UserID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(m.secret)
	if err != nil {
		return "", fmt.Errorf("sign token: %w", err)
	}
	return signed, nil
}

// Parse validates tokenString and checks it was issued for purpose.
// Every failure is reported as an InvalidToken service error.
func (m *TokenManager) Parse(tokenString, purpose string) (*Claims, error) {
	token, err := jwt.ParseWithClaims(tokenString, &Claims{}, func(token *jwt.Token) (interface{}, error) {
		// Verify signing method
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, errors.InvalidToken(nil).WithDetails("method", token.Header["alg"])
		}
		return m.secret, nil
	},
		jwt.WithIssuer(issuer),
		jwt.WithTimeFunc(m.now),
	)
	if err != nil {
		return nil, errors.InvalidToken(err)
	}
	if !token.Valid {
		return nil, errors.InvalidToken(nil)
	}

	claims, ok := token.Claims.(*Claims)
	if !ok {
		return nil, errors.InvalidToken(nil).WithDetails("reason", "invalid claims type")
	}
	if claims.Purpose != purpose {
		return nil, errors.InvalidToken(nil).WithDetails("reason", "wrong token purpose")
	}
	return claims, nil
}
