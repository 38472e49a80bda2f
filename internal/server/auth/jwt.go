// Package auth issues and verifies the HS256 access tokens that identify a
// (user, device) pair on every sync request.
package auth

import (
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/owlivion-tech/owlivion-mail-sync/internal/common"
)

// Claims includes the registered claims plus the user and device identity.
// DeviceID matters for sync: conflicts and tombstones record which device
// produced a change.
type Claims struct {
	jwt.RegisteredClaims
	UserID   string
	DeviceID string
}

func GenerateToken(userID, deviceID string, secretKey []byte, validityDuration time.Duration) (string, error) {
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(validityDuration)),
		},
		UserID:   userID,
		DeviceID: deviceID,
	})

	tokenString, err := token.SignedString(secretKey)
	if err != nil {
		return "", err
	}

	return tokenString, nil
}

// GetIdentityFromToken validates the token and returns (userID, deviceID).
func GetIdentityFromToken(tokenString string, secretKey []byte) (string, string, error) {
	claims := &Claims{}

	token, err := jwt.ParseWithClaims(tokenString, claims, func(t *jwt.Token) (interface{}, error) {
		return secretKey, nil
	})
	if err != nil {
		return "", "", err
	}

	if !token.Valid {
		return "", "", common.ErrInvalidToken
	}

	return claims.UserID, claims.DeviceID, nil
}
