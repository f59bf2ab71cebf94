package service

import (
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/require"

	"github.com/and161185/storefront-sync/internal/errs"
)

func TestOperatorAuth_IssueVerify(t *testing.T) {
	t.Parallel()
	a := NewOperatorAuth([]byte("k"))

	tok, exp, err := a.Issue("ops", time.Hour)
	require.NoError(t, err)
	require.WithinDuration(t, time.Now().Add(time.Hour), exp, 5*time.Second)

	sub, err := a.Verify(tok)
	require.NoError(t, err)
	require.Equal(t, "ops", sub)

	_, _, err = a.Issue("", time.Hour)
	require.Error(t, err)
}

func TestOperatorAuth_Rejects(t *testing.T) {
	t.Parallel()
	a := NewOperatorAuth([]byte("k"))

	// wrong key
	tok, _, err := NewOperatorAuth([]byte("other")).Issue("ops", time.Hour)
	require.NoError(t, err)
	_, err = a.Verify(tok)
	require.ErrorIs(t, err, errs.ErrUnauthorized)

	// expired
	past := NewOperatorAuth([]byte("k"))
	past.now = func() time.Time { return time.Now().Add(-2 * time.Hour) }
	tok, _, err = past.Issue("ops", time.Hour)
	require.NoError(t, err)
	_, err = a.Verify(tok)
	require.ErrorIs(t, err, errs.ErrUnauthorized)

	// no expiry
	raw, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.RegisteredClaims{Subject: "ops"}).SignedString([]byte("k"))
	require.NoError(t, err)
	_, err = a.Verify(raw)
	require.ErrorIs(t, err, errs.ErrUnauthorized)

	// garbage
	_, err = a.Verify("not-a-token")
	require.ErrorIs(t, err, errs.ErrUnauthorized)
}
