package pricing

import (
	"hash/fnv"
	"strings"

	"github.com/shopspring/decimal"
)

type fallbackTier struct {
	baseline decimal.Decimal
	keywords []string
}

// Tiers are checked in order; the first keyword found in the normalized name wins.
var fallbackTiers = []fallbackTier{
	{
		baseline: decimal.RequireFromString("35.00"),
		keywords: []string{"knife", "blade", "machete", "sword", "cleaver", "longsword", "katana", "dagger", "bayonet", "karambit", "salvaged sword"},
	},
	{
		baseline: decimal.RequireFromString("12.00"),
		keywords: []string{"rifle", "ak47", "ak-47", "assault", "lr-300", "lr300", "sar", "m39", "bolt", "l96", "m249", "mp5", "thompson", "smg", "custom smg", "shotgun"},
	},
	{
		baseline: decimal.RequireFromString("4.00"),
		keywords: []string{"pistol", "revolver", "python", "m92", "eoka", "nailgun", "handmade"},
	},
}

var residualBase = decimal.RequireFromString("1.00")

// FallbackPrice is a deterministic pre-markup estimate for an item the market has no data for.
// Unknown categories land in 1.00..5.00 by hashing the normalized name.
func FallbackPrice(name string) decimal.Decimal {
	key := NormalizeKey(name)
	for _, tier := range fallbackTiers {
		for _, kw := range tier.keywords {
			if containsWord(key, kw) {
				return tier.baseline
			}
		}
	}
	h := fnv.New32a()
	_, _ = h.Write([]byte(key))
	cents := int64(h.Sum32() % 401)
	return residualBase.Add(decimal.New(cents, -2))
}

// containsWord matches kw on token boundaries so "sar" does not hit "sarcophagus".
func containsWord(s, kw string) bool {
	for i := 0; ; {
		j := strings.Index(s[i:], kw)
		if j < 0 {
			return false
		}
		start := i + j
		end := start + len(kw)
		if (start == 0 || !isWordByte(s[start-1])) && (end == len(s) || !isWordByte(s[end])) {
			return true
		}
		i = start + 1
	}
}

func isWordByte(b byte) bool {
	return b >= 'a' && b <= 'z' || b >= '0' && b <= '9'
}
