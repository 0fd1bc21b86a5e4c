package store

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/custodia/marketplace-engine/internal/model"
)

// PostgresStore implements Store using PostgreSQL as the source of truth.
// Monetary values are stored as NUMERIC for exact decimal precision;
// quantities as BIGINT.
type PostgresStore struct {
	pool *pgxpool.Pool
}

// NewPostgresStore creates a new PostgreSQL-backed store.
func NewPostgresStore(pool *pgxpool.Pool) *PostgresStore {
	return &PostgresStore{pool: pool}
}

func (s *PostgresStore) InsertTrade(ctx context.Context, r *model.TradeRecord) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO trade_records (id, asset_id, kind, op, actor, seller, quantity, price, cost, fee, timestamp)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8::NUMERIC, $9::NUMERIC, $10::NUMERIC, $11)`,
		r.ID, r.AssetID, string(r.Kind), r.Op, string(r.Actor), string(r.Seller),
		int64(r.Quantity),
		r.Price.String(), r.Cost.String(), r.Fee.String(),
		r.Timestamp,
	)
	if err != nil {
		return fmt.Errorf("insert trade %s: %w", r.ID, err)
	}
	return nil
}

func (s *PostgresStore) TradesByAsset(ctx context.Context, assetID string) ([]model.TradeRecord, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT id, asset_id, kind, op, actor, seller, quantity,
		        price::TEXT, cost::TEXT, fee::TEXT, timestamp
		 FROM trade_records WHERE asset_id = $1 ORDER BY timestamp`, assetID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	return scanTradeRecords(rows)
}

func (s *PostgresStore) TradesByActor(ctx context.Context, actor model.Address) ([]model.TradeRecord, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT id, asset_id, kind, op, actor, seller, quantity,
		        price::TEXT, cost::TEXT, fee::TEXT, timestamp
		 FROM trade_records WHERE actor = $1 ORDER BY timestamp`, string(actor))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	return scanTradeRecords(rows)
}

// pgxRows keeps scanTradeRecords testable without a live pool.
type pgxRows interface {
	Next() bool
	Scan(dest ...interface{}) error
	Err() error
}

func scanTradeRecords(rows pgxRows) ([]model.TradeRecord, error) {
	var records []model.TradeRecord
	for rows.Next() {
		var r model.TradeRecord
		var kind, actor, seller string
		var qty int64
		var priceS, costS, feeS string

		if err := rows.Scan(&r.ID, &r.AssetID, &kind, &r.Op, &actor, &seller,
			&qty, &priceS, &costS, &feeS, &r.Timestamp); err != nil {
			return nil, err
		}

		r.Kind = model.AssetKind(kind)
		r.Actor = model.Address(actor)
		r.Seller = model.Address(seller)
		r.Quantity = uint64(qty)
		r.Price, _ = decimal.NewFromString(priceS)
		r.Cost, _ = decimal.NewFromString(costS)
		r.Fee, _ = decimal.NewFromString(feeS)

		records = append(records, r)
	}
	return records, rows.Err()
}
