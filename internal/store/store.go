// Package store defines the trade-history persistence interface for the
// marketplace engine. Implementations include PostgreSQL (source of truth),
// Redis (read-through cache), and in-memory (for testing).
//
// History is append-only and observational: the ledger core never reads it
// back, so a history write failure cannot corrupt marketplace state.
package store

import (
	"context"

	"github.com/custodia/marketplace-engine/internal/model"
)

// Store is the trade-history persistence interface.
type Store interface {
	// InsertTrade appends an immutable trade record.
	InsertTrade(ctx context.Context, rec *model.TradeRecord) error

	// TradesByAsset returns all records for an asset, oldest first.
	TradesByAsset(ctx context.Context, assetID string) ([]model.TradeRecord, error)

	// TradesByActor returns all records initiated by an address, oldest first.
	TradesByActor(ctx context.Context, actor model.Address) ([]model.TradeRecord, error)
}
