// Package billing generates checkout links for billing-reminder messages.
// The billing collaborator owns the checkout flow itself; this side only
// mints the signed link that identifies the user to it.
package billing

import (
	"fmt"
	"net/url"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

const checkoutTokenExpiry = 24 * time.Hour

// CheckoutClaims identify the user to the checkout flow.
type CheckoutClaims struct {
	UserID string `json:"sub"`
	Email  string `json:"email,omitempty"`
	jwt.RegisteredClaims
}

// CheckoutService signs checkout-link tokens
type CheckoutService struct {
	secret  []byte
	baseURL string
}

// NewCheckoutService creates a new checkout link generator
func NewCheckoutService(secret, baseURL string) *CheckoutService {
	return &CheckoutService{secret: []byte(secret), baseURL: baseURL}
}

// GenerateLink returns a checkout URL carrying a signed 24h token for the user.
func (s *CheckoutService) GenerateLink(userID uuid.UUID, email string) (string, error) {
	now := time.Now()
	claims := &CheckoutClaims{
		UserID: userID.String(),
		Email:  email,
		RegisteredClaims: jwt.RegisteredClaims{
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(checkoutTokenExpiry)),
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(s.secret)
	if err != nil {
		return "", fmt.Errorf("failed to sign checkout token: %w", err)
	}

	u, err := url.Parse(s.baseURL)
	if err != nil {
		return "", fmt.Errorf("invalid checkout base URL: %w", err)
	}
	q := u.Query()
	q.Set("token", signed)
	u.RawQuery = q.Encode()
	return u.String(), nil
}

// ParseToken validates a checkout token and returns its claims. Used by the
// checkout callback surface (and tests) to verify minted links.
func (s *CheckoutService) ParseToken(tokenString string) (*CheckoutClaims, error) {
	token, err := jwt.ParseWithClaims(tokenString, &CheckoutClaims{}, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return s.secret, nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to parse checkout token: %w", err)
	}
	claims, ok := token.Claims.(*CheckoutClaims)
	if !ok || !token.Valid {
		return nil, fmt.Errorf("invalid checkout token")
	}
	return claims, nil
}
