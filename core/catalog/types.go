package catalog

import "strings"

// GroupKey is the composite category key partitioning the catalog: one ordered
// template list exists per (item class, rarity) pair.
type GroupKey struct {
	Class  string
	Rarity string
}

// Normalize trims surrounding whitespace and lowercases both components so
// operator-supplied keys address the same group regardless of casing.
func (g GroupKey) Normalize() GroupKey {
	return GroupKey{
		Class:  strings.ToLower(strings.TrimSpace(g.Class)),
		Rarity: strings.ToLower(strings.TrimSpace(g.Rarity)),
	}
}

// Valid reports whether both components are present after normalisation.
func (g GroupKey) Valid() bool {
	normalized := g.Normalize()
	return normalized.Class != "" && normalized.Rarity != ""
}

func (g GroupKey) String() string {
	normalized := g.Normalize()
	return normalized.Class + "/" + normalized.Rarity
}

// ItemTemplate is an immutable catalog entry. Payload is an opaque metadata
// blob owned by the external minting collaborator; the catalog never inspects
// it.
type ItemTemplate struct {
	ID      uint64
	Payload []byte
	Tags    []string
}

// Quota caps how many items a group may hand out. Minted only ever increases;
// when Limited is false the counter is still maintained for audits but never
// enforced.
type Quota struct {
	Total   uint64
	Minted  uint64
	Limited bool
}

// Remaining returns how many mints the quota still allows. Unlimited quotas
// report the maximum uint64 value.
func (q Quota) Remaining() uint64 {
	if !q.Limited {
		return ^uint64(0)
	}
	if q.Minted >= q.Total {
		return 0
	}
	return q.Total - q.Minted
}
