package auth

import (
	"errors"
	"os"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/walidbk/assurexpert-backend/pkg/models"
)

// TokenTTL matches the legacy contract: 10080 minutes (7 days).
const TokenTTL = 10080 * time.Minute

// Claims is the JWT payload we issue and expect. The principal class is
// embedded in the token itself and verified against the route's required
// class; it is never trusted from a client-supplied header.
type Claims struct {
	Sub  string `json:"sub"`  // principal ID
	Type string `json:"type"` // principal class: "admin" | "client"
	jwt.RegisteredClaims
}

func secret() []byte { return []byte(os.Getenv("JWT_SECRET")) }

// IssueToken signs a token for the given principal. Every token carries a
// fresh jti so it can be individually revoked.
func IssueToken(principalID string, ptype models.PrincipalType) (string, error) {
	now := time.Now()
	claims := &Claims{
		Sub:  principalID,
		Type: string(ptype),
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        uuid.NewString(),
			ExpiresAt: jwt.NewNumericDate(now.Add(TokenTTL)),
			IssuedAt:  jwt.NewNumericDate(now),
		},
	}
	t := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return t.SignedString(secret())
}

// ParseToken validates a signed token and returns its claims.
func ParseToken(tokenStr string) (*Claims, error) {
	token, err := jwt.ParseWithClaims(tokenStr, &Claims{}, func(t *jwt.Token) (any, error) {
		return secret(), nil
	})
	if err != nil || !token.Valid {
		return nil, errors.New("invalid token")
	}
	claims, ok := token.Claims.(*Claims)
	if !ok {
		return nil, errors.New("invalid claims")
	}
	return claims, nil
}

/* ============================= Revocation =============================== */

// RevokeToken blacklists the token's jti until its natural expiry.
// Subsequent use of the same token fails validation.
func RevokeToken(db *gorm.DB, claims *Claims) error {
	exp := time.Now().Add(TokenTTL)
	if claims.ExpiresAt != nil {
		exp = claims.ExpiresAt.Time
	}
	return db.Create(&models.RevokedToken{JTI: claims.ID, ExpiresAt: exp}).Error
}

// IsRevoked reports whether the jti is blacklisted.
func IsRevoked(db *gorm.DB, jti string) (bool, error) {
	var count int64
	err := db.Model(&models.RevokedToken{}).Where("jti = ?", jti).Count(&count).Error
	return count > 0, err
}

// CleanupExpired removes blacklist rows whose tokens have expired anyway.
func CleanupExpired(db *gorm.DB) (int64, error) {
	res := db.Where("expires_at < ?", time.Now()).Delete(&models.RevokedToken{})
	return res.RowsAffected, res.Error
}
