package platform

import (
	"context"
	"encoding/xml"
	"strings"

	"go.uber.org/zap"

	"github.com/and161185/storefront-sync/internal/errs"
)

// Access rejection reasons.
const (
	ReasonPrivateProfile   = "PRIVATE_PROFILE"
	ReasonPrivateInventory = "PRIVATE_INVENTORY"
	ReasonRateLimited      = "RATE_LIMITED"
	ReasonUnreachable      = "UNREACHABLE"
	ReasonBadExternalID    = "BAD_EXTERNAL_ID"
)

// AccessResult is the outcome of a visibility probe.
type AccessResult struct {
	Accessible bool
	Reason     string
	Detail     string
}

// Err converts a rejected result into a classified error; nil when accessible.
func (r AccessResult) Err() error {
	if r.Accessible {
		return nil
	}
	switch r.Reason {
	case ReasonPrivateProfile, ReasonPrivateInventory:
		return errs.E(errs.KindPrivacy, 0, r.Reason, r.Detail, nil)
	case ReasonRateLimited:
		return errs.E(errs.KindRateLimit, 0, r.Reason, r.Detail, nil)
	case ReasonBadExternalID:
		return errs.E(errs.KindConfiguration, 0, r.Reason, r.Detail, nil)
	default:
		return errs.E(errs.KindUnknown, 0, r.Reason, r.Detail, nil)
	}
}

type profileXML struct {
	XMLName      xml.Name `xml:"profile"`
	PrivacyState string   `xml:"privacyState"`
}

// Validator checks that an account's profile and inventory are publicly readable.
type Validator struct {
	c *Client
}

// NewValidator constructs an access validator over a platform client.
func NewValidator(c *Client) *Validator { return &Validator{c: c} }

// CheckAccess runs the profile check, then probes inventory endpoints in order until one succeeds.
func (v *Validator) CheckAccess(ctx context.Context, externalID string) AccessResult {
	if !ValidExternalID(externalID) {
		return AccessResult{Reason: ReasonBadExternalID, Detail: "malformed external id"}
	}

	if res, ok := v.checkProfile(ctx, externalID); !ok {
		return res
	}

	endpoints := []string{
		v.c.inventoryURL(externalID, 1),
		v.c.legacyInventoryURL(externalID),
	}
	var failures []string
	for _, url := range endpoints {
		_, err := v.c.get(ctx, url)
		if err == nil {
			return AccessResult{Accessible: true}
		}
		ce, _ := errs.As(err)
		switch {
		case ce != nil && ce.Status == 403:
			return AccessResult{Reason: ReasonPrivateInventory, Detail: "inventory is not public"}
		case ce != nil && ce.Kind == errs.KindRateLimit:
			return AccessResult{Reason: ReasonRateLimited, Detail: "rate limited while probing inventory"}
		}
		v.c.log.Debug("inventory probe failed", zap.String("url", url), zap.Error(err))
		failures = append(failures, err.Error())
	}
	return AccessResult{Reason: ReasonUnreachable, Detail: strings.Join(failures, "; ")}
}

func (v *Validator) checkProfile(ctx context.Context, externalID string) (AccessResult, bool) {
	body, err := v.c.get(ctx, v.c.profileURL(externalID))
	if err != nil {
		ce, _ := errs.As(err)
		switch {
		case ce != nil && ce.Status == 403:
			return AccessResult{Reason: ReasonPrivateProfile, Detail: "profile is not public"}, false
		case ce != nil && ce.Kind == errs.KindRateLimit:
			return AccessResult{Reason: ReasonRateLimited, Detail: "rate limited while probing profile"}, false
		}
		return AccessResult{Reason: ReasonUnreachable, Detail: "profile: " + err.Error()}, false
	}

	var p profileXML
	if err := xml.Unmarshal(body, &p); err != nil {
		return AccessResult{Reason: ReasonUnreachable, Detail: "profile: unparsable response: " + err.Error()}, false
	}
	if !strings.EqualFold(strings.TrimSpace(p.PrivacyState), "public") {
		return AccessResult{Reason: ReasonPrivateProfile, Detail: "privacy state " + p.PrivacyState}, false
	}
	return AccessResult{}, true
}
