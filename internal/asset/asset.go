// Package asset handles marketplace asset id parsing and validation, and
// notional-value computation for the reporting surface.
package asset

import (
	"errors"
	"fmt"
	"regexp"

	"github.com/shopspring/decimal"
)

// idRegex matches: {CLASS}-{symbol}-{serial}
// Example: ART-monolith-0042, BOND-us10y-000187
var idRegex = regexp.MustCompile(
	`^([A-Z]{2,8})-([a-z0-9]{1,24})-([0-9]{1,12})$`,
)

var (
	ErrInvalidID = errors.New("asset: invalid asset id format")
)

// ID is a parsed marketplace asset identifier.
type ID struct {
	Raw    string `json:"raw"`
	Class  string `json:"class"`
	Symbol string `json:"symbol"`
	Serial string `json:"serial"`
}

// ParseID parses and validates an asset id string.
// Format: {CLASS}-{symbol}-{serial}
func ParseID(id string) (*ID, error) {
	matches := idRegex.FindStringSubmatch(id)
	if matches == nil {
		return nil, fmt.Errorf("%w: %s (expected {CLASS}-{symbol}-{serial})",
			ErrInvalidID, id)
	}

	return &ID{
		Raw:    id,
		Class:  matches[1],
		Symbol: matches[2],
		Serial: matches[3],
	}, nil
}

// Notional computes pricePerUnit*quantity as an exact decimal. Used at the
// reporting edge, where a uint64 product could overflow for large supplies.
func Notional(pricePerUnit, quantity uint64) decimal.Decimal {
	p := decimal.NewFromUint64(pricePerUnit)
	q := decimal.NewFromUint64(quantity)
	return p.Mul(q)
}

// FeeRate is the protocol fee as a decimal fraction of total cost, for
// display. The executed fee is always the integer floor of cost/1000.
func FeeRate() decimal.Decimal {
	return decimal.NewFromInt(1).Div(decimal.NewFromInt(1000))
}
