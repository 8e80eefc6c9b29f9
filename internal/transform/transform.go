// Package transform maps raw snapshot records onto the canonical output
// model through a profile's alias table.
//
// Mapping and transformation are two stages. The mapper resolves
// aliases and normalizes values but never rejects a record: change
// detection needs a checksum for every row, valid or not, so
// unparseable values fall back to their trimmed raw text. The
// transformer then drops records carrying field issues and stamps the
// survivors with the transform-time timestamp.
package transform

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/cockroachdb/apd/v3"

	"github.com/roach88/shelfsync/internal/mapping"
	"github.com/roach88/shelfsync/internal/record"
	"github.com/roach88/shelfsync/internal/source"
)

// Mapped is the intermediate form between raw records and canonical
// ones: alias-resolved, normalized, checksummable, not yet validated.
type Mapped struct {
	Key string
	Row int64

	// PriceText and QuantityText are the canonical texts fed to the
	// checksum: "19.90" style decimals and base-10 integers. When a
	// value does not parse they hold the trimmed raw text instead.
	PriceText    string
	QuantityText string
	Ref          string

	Price    apd.Decimal
	Quantity int64

	// Issues lists validation failures. Empty means the record's
	// canonical form is publishable.
	Issues []string
}

// Valid reports whether the record passed validation.
func (m *Mapped) Valid() bool { return len(m.Issues) == 0 }

// ChecksumFields returns the normalized value fields for checksum
// computation. The transform-time timestamp is deliberately absent.
func (m *Mapped) ChecksumFields() map[string]string {
	return map[string]string{
		"key":      m.Key,
		"price":    m.PriceText,
		"quantity": m.QuantityText,
		"ref":      m.Ref,
	}
}

// Checksum digests the record's normalized value fields.
func (m *Mapped) Checksum() string {
	return record.Checksum(m.ChecksumFields())
}

// Mapper resolves one profile's alias table against raw records.
type Mapper struct {
	profile *mapping.Profile
}

// NewMapper builds a mapper for the given profile.
func NewMapper(p *mapping.Profile) *Mapper {
	return &Mapper{profile: p}
}

// Map resolves a raw record into its Mapped form. The first alias whose
// column exists in the record wins; excluded columns never resolve.
// Records without a usable key get a key issue and cannot be tracked.
func (mp *Mapper) Map(raw source.RawRecord) Mapped {
	m := Mapped{Row: raw.Row}

	key, ok := mp.resolve(raw.Values, mp.profile.Key)
	switch {
	case !ok:
		m.Issues = append(m.Issues, fmt.Sprintf("key: no column among %s", strings.Join(mp.profile.Key, ", ")))
	case key == "":
		m.Issues = append(m.Issues, "key: empty value")
	default:
		m.Key = key
	}

	if priceRaw, ok := mp.resolve(raw.Values, mp.profile.Price); !ok {
		m.Issues = append(m.Issues, fmt.Sprintf("price: no column among %s", strings.Join(mp.profile.Price, ", ")))
	} else if price, err := ParsePrice(priceRaw); err != nil {
		m.PriceText = strings.TrimSpace(priceRaw)
		m.Issues = append(m.Issues, fmt.Sprintf("price: %v", err))
	} else {
		m.Price = price
		m.PriceText = price.Text('f')
		if price.Negative && !price.IsZero() {
			m.Issues = append(m.Issues, fmt.Sprintf("price: negative value %s", m.PriceText))
		}
	}

	if qtyRaw, ok := mp.resolve(raw.Values, mp.profile.Quantity); !ok {
		m.Issues = append(m.Issues, fmt.Sprintf("quantity: no column among %s", strings.Join(mp.profile.Quantity, ", ")))
	} else if qty, err := ParseQuantity(qtyRaw); err != nil {
		m.QuantityText = strings.TrimSpace(qtyRaw)
		m.Issues = append(m.Issues, fmt.Sprintf("quantity: %v", err))
	} else {
		m.Quantity = qty
		m.QuantityText = strconv.FormatInt(qty, 10)
		if qty < 0 {
			m.Issues = append(m.Issues, fmt.Sprintf("quantity: negative value %d", qty))
		}
	}

	if ref, ok := mp.resolve(raw.Values, mp.profile.Ref); ok {
		m.Ref = ref
	}

	return m
}

// resolve returns the trimmed value of the first alias whose column
// exists in the record. The boolean reports column presence, not value
// presence: an empty cell still resolves.
func (mp *Mapper) resolve(values map[string]string, aliases []string) (string, bool) {
	for _, alias := range aliases {
		if mp.profile.Excluded(alias) {
			continue
		}
		if v, ok := values[alias]; ok {
			return strings.TrimSpace(v), true
		}
	}
	return "", false
}

// Build constructs the canonical record for a validated Mapped row,
// stamping it with the transform-time instant.
func Build(m Mapped, now time.Time) record.Canonical {
	return record.Canonical{
		Key:            m.Key,
		Price:          m.Price,
		Quantity:       m.Quantity,
		TransactionRef: m.Ref,
		TimestampUTC:   now.UTC(),
	}
}
