package platform

import (
	"context"
	"net/http"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/and161185/storefront-sync/internal/errs"
)

const publicProfile = `<?xml version="1.0" encoding="UTF-8"?><profile><steamID64>76561198000000001</steamID64><privacyState>public</privacyState></profile>`
const privateProfile = `<?xml version="1.0" encoding="UTF-8"?><profile><steamID64>76561198000000001</steamID64><privacyState>private</privacyState></profile>`

type visibilityServer struct {
	profileStatus int
	profileBody   string
	invStatus     int
	legacyStatus  int

	invCalls    int32
	legacyCalls int32
}

func (p *visibilityServer) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	switch {
	case strings.HasSuffix(r.URL.Path, "/inventory/json/252490/2"):
		atomic.AddInt32(&p.legacyCalls, 1)
		w.WriteHeader(p.legacyStatus)
	case strings.HasPrefix(r.URL.Path, "/inventory/"):
		atomic.AddInt32(&p.invCalls, 1)
		w.WriteHeader(p.invStatus)
	case strings.HasPrefix(r.URL.Path, "/profiles/"):
		if p.profileStatus != 0 {
			w.WriteHeader(p.profileStatus)
			return
		}
		_, _ = w.Write([]byte(p.profileBody))
	default:
		w.WriteHeader(http.StatusNotFound)
	}
}

func TestCheckAccess_Public(t *testing.T) {
	t.Parallel()
	ps := &visibilityServer{profileBody: publicProfile, invStatus: 200}
	v := NewValidator(newTestClient(t, ps))

	res := v.CheckAccess(context.Background(), testID)
	require.True(t, res.Accessible)
	require.NoError(t, res.Err())
	require.Equal(t, int32(1), ps.invCalls)
	require.Equal(t, int32(0), ps.legacyCalls)
}

func TestCheckAccess_PrivateProfileSkipsInventory(t *testing.T) {
	t.Parallel()
	ps := &visibilityServer{profileBody: privateProfile, invStatus: 200}
	v := NewValidator(newTestClient(t, ps))

	res := v.CheckAccess(context.Background(), testID)
	require.False(t, res.Accessible)
	require.Equal(t, ReasonPrivateProfile, res.Reason)
	require.Equal(t, int32(0), ps.invCalls)
	require.Equal(t, errs.CategoryPrivacy, errs.CategoryOf(res.Err()))
}

func TestCheckAccess_PrivateInventory(t *testing.T) {
	t.Parallel()
	ps := &visibilityServer{profileBody: publicProfile, invStatus: 403, legacyStatus: 200}
	v := NewValidator(newTestClient(t, ps))

	res := v.CheckAccess(context.Background(), testID)
	require.Equal(t, ReasonPrivateInventory, res.Reason)
	require.Equal(t, int32(0), ps.legacyCalls)
}

func TestCheckAccess_FallsBackToSecondEndpoint(t *testing.T) {
	t.Parallel()
	ps := &visibilityServer{profileBody: publicProfile, invStatus: 500, legacyStatus: 200}
	v := NewValidator(newTestClient(t, ps))

	res := v.CheckAccess(context.Background(), testID)
	require.True(t, res.Accessible)
	require.Equal(t, int32(1), ps.legacyCalls)
}

func TestCheckAccess_RateLimited(t *testing.T) {
	t.Parallel()
	ps := &visibilityServer{profileBody: publicProfile, invStatus: 429}
	v := NewValidator(newTestClient(t, ps))

	res := v.CheckAccess(context.Background(), testID)
	require.Equal(t, ReasonRateLimited, res.Reason)
	require.Equal(t, errs.CategoryRateLimit, errs.CategoryOf(res.Err()))
}

func TestCheckAccess_UnreachableCarriesEveryError(t *testing.T) {
	t.Parallel()
	ps := &visibilityServer{profileBody: publicProfile, invStatus: 500, legacyStatus: 502}
	v := NewValidator(newTestClient(t, ps))

	res := v.CheckAccess(context.Background(), testID)
	require.Equal(t, ReasonUnreachable, res.Reason)
	require.Contains(t, res.Detail, "http 500")
	require.Contains(t, res.Detail, "http 502")
	require.Equal(t, errs.CategoryUnknown, errs.CategoryOf(res.Err()))
}

func TestCheckAccess_ProfileForbiddenAndMalformed(t *testing.T) {
	t.Parallel()
	ps := &visibilityServer{profileStatus: 403}
	v := NewValidator(newTestClient(t, ps))
	require.Equal(t, ReasonPrivateProfile, v.CheckAccess(context.Background(), testID).Reason)

	ps2 := &visibilityServer{profileBody: `<response><error>not found</error></response>`}
	v2 := NewValidator(newTestClient(t, ps2))
	require.Equal(t, ReasonUnreachable, v2.CheckAccess(context.Background(), testID).Reason)

	res := v2.CheckAccess(context.Background(), "123")
	require.Equal(t, ReasonBadExternalID, res.Reason)
	require.Equal(t, errs.CategoryConfiguration, errs.CategoryOf(res.Err()))
}
