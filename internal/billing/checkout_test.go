package billing

import (
	"net/url"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGenerateLink_signedTokenRoundTrips(t *testing.T) {
	s := NewCheckoutService("checkout-secret", "https://billing.example/checkout")
	userID := uuid.New()

	link, err := s.GenerateLink(userID, "user@example.com")
	require.NoError(t, err)

	u, err := url.Parse(link)
	require.NoError(t, err)
	assert.Equal(t, "billing.example", u.Host)
	token := u.Query().Get("token")
	require.NotEmpty(t, token)

	claims, err := s.ParseToken(token)
	require.NoError(t, err)
	assert.Equal(t, userID.String(), claims.UserID)
	assert.Equal(t, "user@example.com", claims.Email)
}

func TestGenerateLink_freshTokenPerCall(t *testing.T) {
	s := NewCheckoutService("checkout-secret", "https://billing.example/checkout")
	userID := uuid.New()

	a, err := s.GenerateLink(userID, "")
	require.NoError(t, err)
	b, err := s.GenerateLink(userID, "")
	require.NoError(t, err)
	// Both valid; issued-at differs only at second resolution so the links
	// may match, but each must parse independently.
	for _, link := range []string{a, b} {
		u, err := url.Parse(link)
		require.NoError(t, err)
		_, err = s.ParseToken(u.Query().Get("token"))
		require.NoError(t, err)
	}
}

func TestParseToken_rejectsWrongSecret(t *testing.T) {
	s := NewCheckoutService("checkout-secret", "https://billing.example/checkout")
	other := NewCheckoutService("different-secret", "https://billing.example/checkout")

	link, err := s.GenerateLink(uuid.New(), "")
	require.NoError(t, err)
	u, err := url.Parse(link)
	require.NoError(t, err)

	_, err = other.ParseToken(u.Query().Get("token"))
	assert.Error(t, err)
}
