// Package record defines the canonical record model and the checksum
// serialization used for change detection.
package record

import (
	"time"

	"github.com/cockroachdb/apd/v3"
)

// Canonical is a fully mapped, validated output record.
type Canonical struct {
	// Key uniquely identifies the entity (e.g. a product SKU).
	Key string

	// Price is the current price, quantized to two decimal places.
	Price apd.Decimal

	// Quantity is the stock quantity. Never negative.
	Quantity int64

	// TransactionRef is an optional reference to the originating
	// transaction document. Empty when the source has none.
	TransactionRef string

	// TimestampUTC is assigned at transform time, never copied from
	// the source.
	TimestampUTC time.Time
}

// PriceText returns the canonical two-decimal price text, e.g. "19.90".
func (c *Canonical) PriceText() string {
	return c.Price.Text('f')
}
