// Package auth implements JWT credential issuance and the request
// authenticator with transparent refresh-on-expiry.
package auth

import (
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/washdeskhq/washdesk/internal/common"
	"github.com/washdeskhq/washdesk/internal/models"
)

// Token types carried in the "typ" claim.
const (
	TypeAccess  = "access"
	TypeRefresh = "refresh"
)

// Parse failures. ErrExpired is the only failure the authenticator may
// recover from; everything else fails hard.
var (
	ErrExpired = errors.New("token expired")
	ErrInvalid = errors.New("token invalid")
)

// TokenClaims is the validated content of a Washdesk JWT.
type TokenClaims struct {
	UserID    int64
	Username  string
	Role      string
	JTI       string
	Type      string
	IssuedAt  time.Time
	ExpiresAt time.Time
}

// TokenIssuer mints and validates access and refresh credentials.
type TokenIssuer struct {
	cfg *common.AuthConfig
}

// NewTokenIssuer creates a TokenIssuer backed by the given auth config.
func NewTokenIssuer(cfg *common.AuthConfig) *TokenIssuer {
	return &TokenIssuer{cfg: cfg}
}

// SignAccess creates a signed short-lived access credential for the user.
func (i *TokenIssuer) SignAccess(user *models.User) (string, error) {
	token, _, err := i.sign(user, TypeAccess, i.cfg.GetAccessTokenExpiry())
	return token, err
}

// SignRefresh creates a signed long-lived refresh credential for the user,
// returning the token and its jti for revocation bookkeeping.
func (i *TokenIssuer) SignRefresh(user *models.User) (string, string, error) {
	return i.sign(user, TypeRefresh, i.cfg.GetRefreshTokenExpiry())
}

func (i *TokenIssuer) sign(user *models.User, typ string, expiry time.Duration) (string, string, error) {
	now := time.Now()
	jti := uuid.New().String()
	claims := jwt.MapClaims{
		"sub":      strconv.FormatInt(user.ID, 10),
		"username": user.Username,
		"role":     user.Role,
		"typ":      typ,
		"jti":      jti,
		"iss":      "washdesk-server",
		"iat":      now.Unix(),
		"exp":      now.Add(expiry).Unix(),
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString([]byte(i.cfg.JWTSecret))
	if err != nil {
		return "", "", err
	}
	return signed, jti, nil
}

// Parse validates a token string and checks its "typ" claim. Expired tokens
// return ErrExpired; all other failures (bad signature, malformed, wrong
// type) return ErrInvalid.
func (i *TokenIssuer) Parse(tokenString, wantType string) (*TokenClaims, error) {
	claims := jwt.MapClaims{}
	_, err := jwt.ParseWithClaims(tokenString, claims, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return []byte(i.cfg.JWTSecret), nil
	})
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, fmt.Errorf("%w: %v", ErrExpired, err)
		}
		return nil, fmt.Errorf("%w: %v", ErrInvalid, err)
	}

	tc, err := claimsFromMap(claims)
	if err != nil {
		return nil, err
	}
	if tc.Type != wantType {
		return nil, fmt.Errorf("%w: token type %q, want %q", ErrInvalid, tc.Type, wantType)
	}
	return tc, nil
}

func claimsFromMap(claims jwt.MapClaims) (*TokenClaims, error) {
	sub, _ := claims["sub"].(string)
	userID, err := strconv.ParseInt(sub, 10, 64)
	if err != nil || userID <= 0 {
		return nil, fmt.Errorf("%w: missing subject", ErrInvalid)
	}
	jti, _ := claims["jti"].(string)
	if jti == "" {
		return nil, fmt.Errorf("%w: missing jti", ErrInvalid)
	}
	typ, _ := claims["typ"].(string)
	username, _ := claims["username"].(string)
	role, _ := claims["role"].(string)
	iat, _ := claims["iat"].(float64)
	exp, _ := claims["exp"].(float64)

	return &TokenClaims{
		UserID:    userID,
		Username:  username,
		Role:      role,
		JTI:       jti,
		Type:      typ,
		IssuedAt:  time.Unix(int64(iat), 0),
		ExpiresAt: time.Unix(int64(exp), 0),
	}, nil
}
