// Package canonical computes content hashes over a record's canonical subset.
package canonical

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"

	"github.com/JakeFAU/bookwatch/internal/catalog"
)

// Hasher implements catalog.Hasher using SHA-256 over a key-sorted JSON
// encoding of the canonical subset. Metadata fields never participate, so the
// digest is a pure function of the record's content.
type Hasher struct{}

// New returns a canonical-subset hasher.
func New() *Hasher {
	return &Hasher{}
}

// HashRecord hashes the canonical subset and returns a hex digest. Encoding
// goes through a map so the JSON keys are emitted in sorted order regardless
// of how the record was populated.
func (h *Hasher) HashRecord(rec catalog.Record) (string, error) {
	subset := map[string]any{
		"name":                rec.Name,
		"description":         rec.Description,
		"category":            rec.Category,
		"price_including_tax": rec.PriceInclTax,
		"price_excluding_tax": rec.PriceExclTax,
		"availability":        rec.Availability,
		"number_of_reviews":   rec.ReviewCount,
		"rating":              rec.Rating,
	}
	data, err := json.Marshal(subset)
	if err != nil {
		return "", fmt.Errorf("marshal canonical subset: %w", err)
	}
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:]), nil
}
