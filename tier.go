package botledger

import (
	"fmt"
	"sort"
)

// Built-in tier names.
const (
	TierFree      = "free"
	TierBasic     = "basic"
	TierPro       = "pro"
	TierUltra     = "ultra"
	TierUnlimited = "unlimited"
)

// UnlimitedQuota is the per-model allowance of the unlimited tier. It is a
// large finite number so counters stay ordinary integers.
const UnlimitedQuota int64 = 999999

// TierDefinition describes an entitlement level.
type TierDefinition struct {
	Name   string           `yaml:"name" json:"name"`
	Price  string           `yaml:"price" json:"price"`
	Limits map[string]int64 `yaml:"limits" json:"limits"`
}

// TierInfo is display metadata for a tier. Limits is a private copy.
type TierInfo struct {
	Key    string
	Name   string
	Price  string
	Limits map[string]int64
}

// Tiers maps tier names to their definitions.
type Tiers map[string]TierDefinition

var tierOrder = []string{TierFree, TierBasic, TierPro, TierUltra, TierUnlimited}

// Lookup returns the definition of a tier.
func (t Tiers) Lookup(name string) (TierDefinition, error) {
	def, ok := t[name]
	if !ok {
		return TierDefinition{}, fmt.Errorf("%w: %q", ErrTierUnknown, name)
	}
	return def, nil
}

// Info returns display metadata with a copied quota table.
func (t Tiers) Info(name string) (TierInfo, error) {
	def, err := t.Lookup(name)
	if err != nil {
		return TierInfo{}, err
	}
	return TierInfo{
		Key:    name,
		Name:   def.Name,
		Price:  def.Price,
		Limits: copyLimits(def.Limits),
	}, nil
}

// Names returns tier names: built-in tiers in fixed order, then the rest sorted.
func (t Tiers) Names() []string {
	names := make([]string, 0, len(t))
	seen := make(map[string]bool, len(t))
	for _, n := range tierOrder {
		if _, ok := t[n]; ok {
			names = append(names, n)
			seen[n] = true
		}
	}
	var rest []string
	for n := range t {
		if !seen[n] {
			rest = append(rest, n)
		}
	}
	sort.Strings(rest)
	return append(names, rest...)
}

// Clone returns a deep copy, so callers cannot mutate a shared table.
func (t Tiers) Clone() Tiers {
	out := make(Tiers, len(t))
	for k, def := range t {
		def.Limits = copyLimits(def.Limits)
		out[k] = def
	}
	return out
}

func copyLimits(src map[string]int64) map[string]int64 {
	dst := make(map[string]int64, len(src))
	for k, v := range src {
		dst[k] = v
	}
	return dst
}

// DefaultTiers returns the built-in tier table.
func DefaultTiers() Tiers {
	return DefaultTiersFor(DefaultCatalog())
}

// DefaultTiersFor returns the built-in tier table with the unlimited tier
// covering every model in catalog.
func DefaultTiersFor(catalog Catalog) Tiers {
	unlimited := make(map[string]int64, len(catalog))
	for _, m := range catalog {
		unlimited[m.Key] = UnlimitedQuota
	}

	return Tiers{
		TierFree: {
			Name:  "Free",
			Price: "0",
			Limits: map[string]int64{
				"text": 5, "gemini": 3, "deepseek": 2, "claude": 2,
				"claude_sonnet": 2, "claude_haiku": 3, "claude_opus": 1,
				"qwen": 3, "llama": 4,
				"schnell": 2, "dev": 0, "kontext": 0,
			},
		},
		TierBasic: {
			Name:  "Basic",
			Price: "199 RUB",
			Limits: map[string]int64{
				"text": 30, "gemini": 25, "deepseek": 20, "claude": 15,
				"claude_sonnet": 18, "claude_haiku": 25, "claude_opus": 10,
				"qwen": 22, "llama": 28,
				"schnell": 5, "dev": 2, "sd3": 3, "kontext": 1,
			},
		},
		TierPro: {
			Name:  "Pro",
			Price: "499 RUB",
			Limits: map[string]int64{
				"text": 100, "gemini": 80, "deepseek": 60, "claude": 50,
				"claude_sonnet": 60, "claude_haiku": 80, "claude_opus": 40,
				"qwen": 70, "llama": 90,
				"schnell": 15, "dev": 8, "sd3": 10, "kontext": 5,
			},
		},
		TierUltra: {
			Name:  "Ultra",
			Price: "999 RUB",
			Limits: map[string]int64{
				"text": 250, "gemini": 200, "deepseek": 150, "claude": 120,
				"claude_sonnet": 150, "claude_haiku": 200, "claude_opus": 100,
				"qwen": 180, "llama": 220,
				"schnell": 40, "dev": 20, "sd3": 25, "kontext": 15,
			},
		},
		TierUnlimited: {
			Name:   "Unlimited",
			Price:  "free",
			Limits: unlimited,
		},
	}
}
