package store

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"github.com/custodia/marketplace-engine/internal/model"
)

func record(id, assetID string, actor model.Address) *model.TradeRecord {
	return &model.TradeRecord{
		ID:        id,
		AssetID:   assetID,
		Kind:      model.KindFractional,
		Op:        "buy",
		Actor:     actor,
		Seller:    "issuer1",
		Quantity:  10,
		Price:     decimal.NewFromInt(10),
		Cost:      decimal.NewFromInt(100),
		Fee:       decimal.Zero,
		Timestamp: time.Unix(1700000000, 0).UTC(),
	}
}

func TestMemoryStore_InsertAndQuery(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()

	s.InsertTrade(ctx, record("t1", "BOND-us10y-0001", "alice"))
	s.InsertTrade(ctx, record("t2", "BOND-us10y-0001", "bob"))
	s.InsertTrade(ctx, record("t3", "ART-mono-0001", "alice"))

	byAsset, err := s.TradesByAsset(ctx, "BOND-us10y-0001")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(byAsset) != 2 {
		t.Errorf("expected 2 records, got %d", len(byAsset))
	}
	if byAsset[0].ID != "t1" || byAsset[1].ID != "t2" {
		t.Error("records must come back oldest first")
	}

	byActor, err := s.TradesByActor(ctx, "alice")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(byActor) != 2 {
		t.Errorf("expected 2 records, got %d", len(byActor))
	}
}

func TestMemoryStore_EmptyQueries(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()

	if recs, err := s.TradesByAsset(ctx, "BOND-none-0001"); err != nil || len(recs) != 0 {
		t.Errorf("expected no records, got %v (%v)", recs, err)
	}
	if recs, err := s.TradesByActor(ctx, "nobody"); err != nil || len(recs) != 0 {
		t.Errorf("expected no records, got %v (%v)", recs, err)
	}
}
