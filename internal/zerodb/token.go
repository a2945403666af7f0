package zerodb

import (
	"time"

	"github.com/golang-jwt/jwt/v5"
)

const serviceTokenTTL = 24 * time.Hour

// ServiceToken signs the admin token the platform expects on every request.
func ServiceToken(secret []byte, subject, email string, now time.Time) (string, error) {
	claims := jwt.MapClaims{
		"sub":   subject,
		"role":  "admin",
		"email": email,
		"iat":   now.Unix(),
		"exp":   now.Add(serviceTokenTTL).Unix(),
	}
	t := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return t.SignedString(secret)
}
