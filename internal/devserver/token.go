package devserver

import (
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/hitoshi/carelink/internal/model"
)

// TokenService はHS256署名のアクセストークンを発行・検証する。
// middleware.TokenVerifierを実装する。
type TokenService struct {
	secret []byte
	ttl    time.Duration
}

// NewTokenService はTokenServiceを生成する。
func NewTokenService(secret string, ttl time.Duration) *TokenService {
	return &TokenService{secret: []byte(secret), ttl: ttl}
}

type accessClaims struct {
	Role string `json:"role"`
	jwt.RegisteredClaims
}

// Issue はユーザーIDをsubjectとするアクセストークンを発行する。
func (t *TokenService) Issue(userID string, role model.Role) (string, error) {
	now := time.Now()
	claims := accessClaims{
		Role: string(role),
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   userID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(t.ttl)),
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(t.secret)
	if err != nil {
		return "", fmt.Errorf("トークンの署名に失敗: %w", err)
	}
	return signed, nil
}

// Verify はトークンを検証し、ユーザーIDとロールを返す。
func (t *TokenService) Verify(tokenString string) (string, model.Role, error) {
	var claims accessClaims
	token, err := jwt.ParseWithClaims(tokenString, &claims, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("想定外の署名方式: %v", token.Header["alg"])
		}
		return t.secret, nil
	})
	if err != nil {
		return "", "", fmt.Errorf("トークンの検証に失敗: %w", err)
	}
	if !token.Valid {
		return "", "", fmt.Errorf("無効なトークン")
	}

	role := model.Role(claims.Role)
	if !role.IsValid() {
		return "", "", fmt.Errorf("不明なロール: %s", claims.Role)
	}
	return claims.Subject, role, nil
}
