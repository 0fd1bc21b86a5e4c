// Package model defines the core domain types shared across the marketplace
// engine. Quantities and prices are base-unit uint64 inside the ledger core;
// monetary fields use shopspring/decimal only at the reporting edge.
package model

import (
	"time"

	"github.com/shopspring/decimal"
)

// Address identifies an account: an issuer, seller, buyer, or the protocol
// treasury.
type Address string

// AssetKind distinguishes indivisible assets from divisible ones.
type AssetKind string

const (
	// KindWhole is an indivisible asset sold as a single item.
	KindWhole AssetKind = "whole"
	// KindFractional is a divisible asset with a declared total supply,
	// tradeable in partial quantities.
	KindFractional AssetKind = "fractional"
)

// WholeAsset is the physical record of an indivisible asset. The marketplace
// custodies it while listed and hands it back whole on buy-out or cancel.
type WholeAsset struct {
	ID       string  `json:"id"`
	Issuer   Address `json:"issuer"`
	Metadata string  `json:"metadata,omitempty"`
}

// FractionalAsset is the physical record of a divisible asset. The record is
// never split: once vaulted it stays in custody and ownership of its units is
// tracked purely in the per-asset ownership ledger.
type FractionalAsset struct {
	ID          string  `json:"id"`
	Issuer      Address `json:"issuer"`
	TotalSupply uint64  `json:"total_supply"`
	Metadata    string  `json:"metadata,omitempty"`
}

// Listing is an active offer to sell some quantity of an asset. At most one
// listing exists per asset id at any time.
//
// For a whole asset PricePerUnit is the total price and
// Available == TotalSupply == 1. For a fractional asset PricePerUnit is the
// per-unit price and Available is the quantity currently on the market.
type Listing struct {
	AssetID      string    `json:"asset_id"`
	Kind         AssetKind `json:"kind"`
	Seller       Address   `json:"seller"`
	PricePerUnit uint64    `json:"price_per_unit"`
	Available    uint64    `json:"available_quantity"`
	TotalSupply  uint64    `json:"total_supply"`
	ListedAt     time.Time `json:"listed_at"`
}

// TradeRecord is an immutable record of a completed marketplace operation.
// Once persisted, these are never modified or deleted. The history store is an
// observability sink: the ledger core never reads it back.
type TradeRecord struct {
	ID        string          `json:"id" db:"id"`
	AssetID   string          `json:"asset_id" db:"asset_id"`
	Kind      AssetKind       `json:"kind" db:"kind"`
	Op        string          `json:"op" db:"op"` // "list", "buy", "sell_back", "buy_all", "cancel", "withdraw"
	Actor     Address         `json:"actor" db:"actor"`
	Seller    Address         `json:"seller" db:"seller"`
	Quantity  uint64          `json:"quantity" db:"quantity"`
	Price     decimal.Decimal `json:"price" db:"price"` // per-unit price
	Cost      decimal.Decimal `json:"cost" db:"cost"`   // total cost settled
	Fee       decimal.Decimal `json:"fee" db:"fee"`     // protocol fee taken out of cost
	Timestamp time.Time       `json:"timestamp" db:"timestamp"`
}
