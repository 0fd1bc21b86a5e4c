package market_test

import (
	"errors"
	"testing"
	"time"

	"github.com/custodia/marketplace-engine/internal/ledger"
	"github.com/custodia/marketplace-engine/internal/market"
	"github.com/custodia/marketplace-engine/internal/model"
	"github.com/custodia/marketplace-engine/internal/token"
)

const (
	issuer   = model.Address("issuer1")
	buyerA   = model.Address("buyer-a")
	buyerB   = model.Address("buyer-b")
	treasury = model.Address("treasury")
	adminCap = "admin-secret"
)

// newTestMarket creates a marketplace with a fixed clock, an allow-list
// issuer registry, and a bank as the payment collaborator.
func newTestMarket(t *testing.T) (*market.Marketplace, *token.Bank) {
	t.Helper()
	bank := token.NewBank()
	m := market.New(market.Config{
		Issuers:  market.StaticIssuers{issuer: true},
		Admin:    market.StaticAdmin(adminCap),
		Payments: bank,
		Clock:    market.ClockFunc(func() time.Time { return time.Unix(1700000000, 0).UTC() }),
		Treasury: treasury,
	})
	return m, bank
}

func wholeAsset(id string) *model.WholeAsset {
	return &model.WholeAsset{ID: id, Issuer: issuer, Metadata: "one of one"}
}

func fractionalAsset(id string, supply uint64) *model.FractionalAsset {
	return &model.FractionalAsset{ID: id, Issuer: issuer, TotalSupply: supply}
}

// listFractional seeds a fractional listing and fails the test on error.
func listFractional(t *testing.T, m *market.Marketplace, id string, supply, price, qty uint64) {
	t.Helper()
	if _, err := m.ListFractionalAsset(fractionalAsset(id, supply), price, qty); err != nil {
		t.Fatalf("failed to list fractional asset: %v", err)
	}
}

// assertConservation checks available_quantity + Σ(ownership balances) ==
// total_supply for a fractional asset.
func assertConservation(t *testing.T, m *market.Marketplace, assetID string, totalSupply uint64) {
	t.Helper()
	var available uint64
	if l, err := m.GetListing(assetID); err == nil {
		available = l.Available
	}
	if got := available + m.OwnedTotal(assetID); got != totalSupply {
		t.Errorf("conservation violated: available+owned = %d, want %d", got, totalSupply)
	}
}

// --- Whole-asset listing ---

func TestListWholeAsset(t *testing.T) {
	m, _ := newTestMarket(t)

	rec, err := m.ListWholeAsset(wholeAsset("ART-mono-0001"), 5000)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if rec.Op != "list" || rec.Quantity != 1 {
		t.Errorf("unexpected receipt: %+v", rec)
	}

	l, err := m.GetListing("ART-mono-0001")
	if err != nil {
		t.Fatalf("listing not found: %v", err)
	}
	if l.Kind != model.KindWhole || l.Available != 1 || l.TotalSupply != 1 {
		t.Errorf("whole listing must have available == total_supply == 1, got %+v", l)
	}
	if l.Seller != issuer || l.PricePerUnit != 5000 {
		t.Errorf("unexpected listing fields: %+v", l)
	}
}

func TestListWholeAsset_UnknownIssuer(t *testing.T) {
	m, _ := newTestMarket(t)

	a := &model.WholeAsset{ID: "ART-mono-0001", Issuer: "impostor"}
	if _, err := m.ListWholeAsset(a, 100); !errors.Is(err, market.ErrNotAuthorized) {
		t.Errorf("expected ErrNotAuthorized, got %v", err)
	}
	if _, err := m.GetListing("ART-mono-0001"); !errors.Is(err, market.ErrNotFound) {
		t.Error("rejected listing must leave no state")
	}
}

func TestListWholeAsset_Duplicate(t *testing.T) {
	m, _ := newTestMarket(t)

	if _, err := m.ListWholeAsset(wholeAsset("ART-mono-0001"), 100); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if _, err := m.ListWholeAsset(wholeAsset("ART-mono-0001"), 200); !errors.Is(err, market.ErrAlreadyListed) {
		t.Errorf("expected ErrAlreadyListed, got %v", err)
	}
}

// --- Fractional listing ---

func TestListFractionalAsset(t *testing.T) {
	m, _ := newTestMarket(t)
	listFractional(t, m, "BOND-us10y-0001", 100, 10, 40)

	l, err := m.GetListing("BOND-us10y-0001")
	if err != nil {
		t.Fatalf("listing not found: %v", err)
	}
	if l.Available != 40 || l.TotalSupply != 100 || l.PricePerUnit != 10 {
		t.Errorf("unexpected listing: %+v", l)
	}
	// Seller retains the off-market portion.
	if got := m.BalanceOf("BOND-us10y-0001", issuer); got != 60 {
		t.Errorf("expected seller pre-credit 60, got %d", got)
	}
	assertConservation(t, m, "BOND-us10y-0001", 100)
}

func TestListFractionalAsset_FullSupply(t *testing.T) {
	m, _ := newTestMarket(t)
	listFractional(t, m, "BOND-us10y-0001", 100, 10, 100)

	// Listing the whole supply leaves the seller with no ledger entry.
	if got := m.BalanceOf("BOND-us10y-0001", issuer); got != 0 {
		t.Errorf("expected no seller balance, got %d", got)
	}
	assertConservation(t, m, "BOND-us10y-0001", 100)
}

func TestListFractionalAsset_Validation(t *testing.T) {
	m, _ := newTestMarket(t)

	if _, err := m.ListFractionalAsset(fractionalAsset("BOND-us10y-0001", 100), 0, 40); !errors.Is(err, market.ErrInvalidPrice) {
		t.Errorf("zero price: expected ErrInvalidPrice, got %v", err)
	}
	if _, err := m.ListFractionalAsset(fractionalAsset("BOND-us10y-0001", 100), 10, 0); !errors.Is(err, market.ErrInvalidQuantity) {
		t.Errorf("zero quantity: expected ErrInvalidQuantity, got %v", err)
	}
	if _, err := m.ListFractionalAsset(fractionalAsset("BOND-us10y-0001", 100), 10, 101); !errors.Is(err, market.ErrInvalidQuantity) {
		t.Errorf("quantity above supply: expected ErrInvalidQuantity, got %v", err)
	}
}

// --- buy_fractional ---

// Worked example: supply 100, 40 listed at 10/unit. A buys 25 for 250
// (fee floors to 0), B buys the remaining 15; the listing disappears and
// units are conserved across seller, A, and B.
func TestBuyFractional_DrainsListing(t *testing.T) {
	m, bank := newTestMarket(t)
	listFractional(t, m, "BOND-us10y-0001", 100, 10, 40)

	rec, err := m.BuyFractional(buyerA, "BOND-us10y-0001", 25, token.New(250))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if rec.Cost != 250 || rec.Fee != 0 || rec.Change != 0 {
		t.Errorf("expected cost=250 fee=0 change=0, got %+v", rec)
	}
	if got := bank.BalanceOf(issuer); got != 250 {
		t.Errorf("seller should receive full 250 (fee floors to 0), got %d", got)
	}
	if got := m.BalanceOf("BOND-us10y-0001", buyerA); got != 25 {
		t.Errorf("expected buyer balance 25, got %d", got)
	}
	l, _ := m.GetListing("BOND-us10y-0001")
	if l.Available != 15 {
		t.Errorf("expected available 15, got %d", l.Available)
	}

	if _, err := m.BuyFractional(buyerB, "BOND-us10y-0001", 15, token.New(150)); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if _, err := m.GetListing("BOND-us10y-0001"); !errors.Is(err, market.ErrNotFound) {
		t.Error("listing must be removed when available reaches 0")
	}
	if m.BalanceOf("BOND-us10y-0001", issuer) != 60 ||
		m.BalanceOf("BOND-us10y-0001", buyerA) != 25 ||
		m.BalanceOf("BOND-us10y-0001", buyerB) != 15 {
		t.Error("unexpected final ownership split")
	}
	assertConservation(t, m, "BOND-us10y-0001", 100)
}

func TestBuyFractional_FeeAndChange(t *testing.T) {
	m, bank := newTestMarket(t)
	listFractional(t, m, "BOND-us10y-0001", 1000, 1000, 500)

	// cost = 5*1000 = 5000, fee = 5000/1000 = 5, change = 1000.
	rec, err := m.BuyFractional(buyerA, "BOND-us10y-0001", 5, token.New(6000))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if rec.Cost != 5000 || rec.Fee != 5 || rec.Change != 1000 {
		t.Errorf("expected cost=5000 fee=5 change=1000, got %+v", rec)
	}
	if got := bank.BalanceOf(treasury); got != 5 {
		t.Errorf("expected treasury fee 5, got %d", got)
	}
	if got := bank.BalanceOf(issuer); got != 4995 {
		t.Errorf("expected seller share 4995, got %d", got)
	}
	if got := bank.BalanceOf(buyerA); got != 1000 {
		t.Errorf("expected buyer change 1000, got %d", got)
	}
}

func TestBuyFractional_FeeRemainderToSeller(t *testing.T) {
	m, bank := newTestMarket(t)
	listFractional(t, m, "BOND-us10y-0001", 100, 1999, 10)

	// cost = 1999, fee = floor(1999/1000) = 1, seller gets 1998.
	if _, err := m.BuyFractional(buyerA, "BOND-us10y-0001", 1, token.New(1999)); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got := bank.BalanceOf(issuer); got != 1998 {
		t.Errorf("expected seller share 1998, got %d", got)
	}
	if got := bank.BalanceOf(treasury); got != 1 {
		t.Errorf("expected treasury fee 1, got %d", got)
	}
}

func TestBuyFractional_Rejections(t *testing.T) {
	m, bank := newTestMarket(t)
	listFractional(t, m, "BOND-us10y-0001", 100, 10, 40)

	pay := token.New(10000)
	cases := []struct {
		name    string
		assetID string
		qty     uint64
		payment *token.Token
		want    error
	}{
		{"unknown asset", "BOND-none-0009", 1, pay, market.ErrNotFound},
		{"zero quantity", "BOND-us10y-0001", 0, pay, market.ErrInvalidQuantity},
		{"exceeds supply", "BOND-us10y-0001", 41, pay, market.ErrInsufficientSupply},
		{"short payment", "BOND-us10y-0001", 40, token.New(399), market.ErrInvalidPayment},
	}
	for _, tc := range cases {
		if _, err := m.BuyFractional(buyerA, tc.assetID, tc.qty, tc.payment); !errors.Is(err, tc.want) {
			t.Errorf("%s: expected %v, got %v", tc.name, tc.want, err)
		}
	}

	// No partial effects from any rejection.
	l, _ := m.GetListing("BOND-us10y-0001")
	if l.Available != 40 {
		t.Errorf("rejections must not change available, got %d", l.Available)
	}
	if m.BalanceOf("BOND-us10y-0001", buyerA) != 0 {
		t.Error("rejections must not credit the buyer")
	}
	if pay.Value() != 10000 {
		t.Errorf("rejections must not consume the payment, got %d", pay.Value())
	}
	if bank.BalanceOf(issuer) != 0 || bank.BalanceOf(treasury) != 0 {
		t.Error("rejections must not move payment value")
	}
}

func TestBuyFractional_WrongKind(t *testing.T) {
	m, _ := newTestMarket(t)
	if _, err := m.ListWholeAsset(wholeAsset("ART-mono-0001"), 100); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if _, err := m.BuyFractional(buyerA, "ART-mono-0001", 1, token.New(100)); !errors.Is(err, market.ErrWrongKind) {
		t.Errorf("expected ErrWrongKind, got %v", err)
	}
}

// --- sell_back_fractional ---

func TestSellBack_IntoLiveListing(t *testing.T) {
	m, _ := newTestMarket(t)
	listFractional(t, m, "BOND-us10y-0001", 100, 10, 40)
	if _, err := m.BuyFractional(buyerA, "BOND-us10y-0001", 25, token.New(250)); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	rec, err := m.SellBackFractional(buyerA, "BOND-us10y-0001", 10, 10)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if rec.Op != "sell_back" || rec.Quantity != 10 {
		t.Errorf("unexpected receipt: %+v", rec)
	}
	l, _ := m.GetListing("BOND-us10y-0001")
	if l.Available != 25 {
		t.Errorf("expected available 25, got %d", l.Available)
	}
	if got := m.BalanceOf("BOND-us10y-0001", buyerA); got != 15 {
		t.Errorf("expected balance 15, got %d", got)
	}
	assertConservation(t, m, "BOND-us10y-0001", 100)
}

func TestSellBack_PriceMismatch(t *testing.T) {
	m, _ := newTestMarket(t)
	listFractional(t, m, "BOND-us10y-0001", 100, 10, 40)
	if _, err := m.BuyFractional(buyerA, "BOND-us10y-0001", 25, token.New(250)); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if _, err := m.SellBackFractional(buyerA, "BOND-us10y-0001", 10, 12); !errors.Is(err, market.ErrPriceMismatch) {
		t.Errorf("expected ErrPriceMismatch, got %v", err)
	}
	l, _ := m.GetListing("BOND-us10y-0001")
	if l.Available != 15 || m.BalanceOf("BOND-us10y-0001", buyerA) != 25 {
		t.Error("rejected sell-back must not change state")
	}
}

// A sold-out listing disappears; selling back then creates a fresh listing
// at the new price, with the total supply recovered from the vaulted record.
func TestSellBack_CreatesNewListing(t *testing.T) {
	m, _ := newTestMarket(t)
	listFractional(t, m, "BOND-us10y-0001", 100, 10, 40)
	if _, err := m.BuyFractional(buyerA, "BOND-us10y-0001", 40, token.New(400)); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	rec, err := m.SellBackFractional(buyerA, "BOND-us10y-0001", 5, 12)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if rec.PricePerUnit != 12 {
		t.Errorf("unexpected receipt: %+v", rec)
	}
	l, err := m.GetListing("BOND-us10y-0001")
	if err != nil {
		t.Fatalf("expected new listing: %v", err)
	}
	if l.Seller != buyerA || l.Available != 5 || l.PricePerUnit != 12 {
		t.Errorf("unexpected listing: %+v", l)
	}
	if l.TotalSupply != 100 {
		t.Errorf("total supply must be recovered from escrow, got %d", l.TotalSupply)
	}
	assertConservation(t, m, "BOND-us10y-0001", 100)
}

func TestSellBack_Rejections(t *testing.T) {
	m, _ := newTestMarket(t)
	listFractional(t, m, "BOND-us10y-0001", 100, 10, 40)
	if _, err := m.BuyFractional(buyerA, "BOND-us10y-0001", 25, token.New(250)); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if _, err := m.SellBackFractional(buyerB, "BOND-us10y-0001", 1, 10); !errors.Is(err, market.ErrNotAuthorized) {
		t.Errorf("no ledger entry: expected ErrNotAuthorized, got %v", err)
	}
	if _, err := m.SellBackFractional(buyerA, "BOND-us10y-0001", 26, 10); !errors.Is(err, ledger.ErrInsufficientBalance) {
		t.Errorf("over balance: expected ErrInsufficientBalance, got %v", err)
	}
	if _, err := m.SellBackFractional(buyerA, "BOND-us10y-0001", 0, 10); !errors.Is(err, market.ErrInvalidQuantity) {
		t.Errorf("zero quantity: expected ErrInvalidQuantity, got %v", err)
	}
}

// --- buy_whole_or_full ---

func TestBuyAll_WholeAsset(t *testing.T) {
	m, bank := newTestMarket(t)
	a := wholeAsset("ART-mono-0001")
	if _, err := m.ListWholeAsset(a, 10000); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	bought, rec, err := m.BuyAll(buyerA, "ART-mono-0001", token.New(12000))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if bought != a {
		t.Error("buyer must receive the exact escrowed record")
	}
	// cost = 10000, fee = 10, seller share = 9990, change = 2000.
	if rec.Cost != 10000 || rec.Fee != 10 || rec.Change != 2000 {
		t.Errorf("unexpected receipt: %+v", rec)
	}
	if bank.BalanceOf(issuer) != 9990 || bank.BalanceOf(treasury) != 10 || bank.BalanceOf(buyerA) != 2000 {
		t.Error("unexpected settlement split")
	}
	if _, err := m.GetListing("ART-mono-0001"); !errors.Is(err, market.ErrNotFound) {
		t.Error("listing must be removed")
	}
	// Escrow is gone too: the same record can be listed again.
	if _, err := m.ListWholeAsset(a, 500); err != nil {
		t.Errorf("relisting after buy-out should succeed, got %v", err)
	}
}

func TestBuyAll_Fractional(t *testing.T) {
	m, bank := newTestMarket(t)
	listFractional(t, m, "BOND-us10y-0001", 100, 10, 40)

	// cost = 40*10 = 400, fee floors to 0.
	bought, rec, err := m.BuyAll(buyerA, "BOND-us10y-0001", token.New(400))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if bought != nil {
		t.Error("fractional buy-out must not release the escrowed record")
	}
	if rec.Quantity != 40 || rec.Cost != 400 {
		t.Errorf("unexpected receipt: %+v", rec)
	}
	if got := m.BalanceOf("BOND-us10y-0001", buyerA); got != 40 {
		t.Errorf("expected buyer credited 40, got %d", got)
	}
	if bank.BalanceOf(issuer) != 400 {
		t.Errorf("expected seller paid 400, got %d", bank.BalanceOf(issuer))
	}
	if _, err := m.GetListing("BOND-us10y-0001"); !errors.Is(err, market.ErrNotFound) {
		t.Error("listing must be removed")
	}
	assertConservation(t, m, "BOND-us10y-0001", 100)
}

func TestBuyAll_InsufficientPayment(t *testing.T) {
	m, _ := newTestMarket(t)
	listFractional(t, m, "BOND-us10y-0001", 100, 10, 40)

	pay := token.New(399)
	if _, _, err := m.BuyAll(buyerA, "BOND-us10y-0001", pay); !errors.Is(err, market.ErrInvalidPayment) {
		t.Errorf("expected ErrInvalidPayment, got %v", err)
	}
	if pay.Value() != 399 {
		t.Error("rejected buy-out must not consume the payment")
	}
	if _, err := m.GetListing("BOND-us10y-0001"); err != nil {
		t.Error("rejected buy-out must keep the listing")
	}
}

// --- cancel_listing ---

func TestCancel_WholeReturnsRecord(t *testing.T) {
	m, _ := newTestMarket(t)
	a := wholeAsset("ART-mono-0001")
	if _, err := m.ListWholeAsset(a, 100); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	returned, rec, err := m.CancelListing(issuer, "ART-mono-0001")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if returned != a {
		t.Error("cancel must return the exact escrowed record to the seller")
	}
	if rec.Op != "cancel" {
		t.Errorf("unexpected receipt: %+v", rec)
	}
	if _, err := m.GetListing("ART-mono-0001"); !errors.Is(err, market.ErrNotFound) {
		t.Error("listing must be removed")
	}
	// Escrow entry removed with the listing: the record lists cleanly again.
	if _, err := m.ListWholeAsset(a, 100); err != nil {
		t.Errorf("relisting after cancel should succeed, got %v", err)
	}
}

func TestCancel_FractionalReturnsUnitsToSeller(t *testing.T) {
	m, _ := newTestMarket(t)
	listFractional(t, m, "BOND-us10y-0001", 100, 10, 40)
	if _, err := m.BuyFractional(buyerA, "BOND-us10y-0001", 10, token.New(100)); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if _, _, err := m.CancelListing(issuer, "BOND-us10y-0001"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	// 60 retained + 30 unsold returned.
	if got := m.BalanceOf("BOND-us10y-0001", issuer); got != 90 {
		t.Errorf("expected seller balance 90, got %d", got)
	}
	assertConservation(t, m, "BOND-us10y-0001", 100)
}

func TestCancel_NotSeller(t *testing.T) {
	m, _ := newTestMarket(t)
	listFractional(t, m, "BOND-us10y-0001", 100, 10, 40)

	if _, _, err := m.CancelListing(buyerA, "BOND-us10y-0001"); !errors.Is(err, market.ErrNotSeller) {
		t.Errorf("expected ErrNotSeller, got %v", err)
	}
	if _, err := m.GetListing("BOND-us10y-0001"); err != nil {
		t.Error("rejected cancel must keep the listing")
	}
}

// --- withdraw ---

func TestWithdraw_FullOwnership(t *testing.T) {
	m, _ := newTestMarket(t)
	listFractional(t, m, "BOND-us10y-0001", 50, 10, 50)
	if _, _, err := m.BuyAll(buyerA, "BOND-us10y-0001", token.New(500)); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	extracted, rec, err := m.Withdraw(buyerA, "BOND-us10y-0001")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if extracted == nil || extracted.TotalSupply != 50 {
		t.Fatalf("expected the standalone record back, got %+v", extracted)
	}
	if rec.Quantity != 50 {
		t.Errorf("unexpected receipt: %+v", rec)
	}
	if m.BalanceOf("BOND-us10y-0001", buyerA) != 0 {
		t.Error("ownership ledger must be removed")
	}
	if len(m.HoldingsOf(buyerA)) != 0 {
		t.Error("reverse index must be cleared")
	}
	// Ledger gone entirely: a second withdraw finds nothing.
	if _, _, err := m.Withdraw(buyerA, "BOND-us10y-0001"); !errors.Is(err, market.ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

func TestWithdraw_PartialHolder(t *testing.T) {
	m, _ := newTestMarket(t)
	listFractional(t, m, "BOND-us10y-0001", 100, 10, 40)
	if _, err := m.BuyFractional(buyerA, "BOND-us10y-0001", 25, token.New(250)); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if _, _, err := m.Withdraw(buyerA, "BOND-us10y-0001"); !errors.Is(err, ledger.ErrInsufficientBalance) {
		t.Errorf("expected ErrInsufficientBalance, got %v", err)
	}
	if got := m.BalanceOf("BOND-us10y-0001", buyerA); got != 25 {
		t.Errorf("rejected withdraw must not change balance, got %d", got)
	}

	if _, _, err := m.Withdraw(buyerB, "BOND-us10y-0001"); !errors.Is(err, market.ErrNotAuthorized) {
		t.Errorf("no entry: expected ErrNotAuthorized, got %v", err)
	}
}

// --- balance_of / reverse index ---

func TestBalanceOf_NeverFails(t *testing.T) {
	m, _ := newTestMarket(t)
	if got := m.BalanceOf("BOND-none-0001", buyerA); got != 0 {
		t.Errorf("expected 0 for unknown asset, got %d", got)
	}
}

func TestHoldingsOf_TracksCreditsAndDebits(t *testing.T) {
	m, _ := newTestMarket(t)
	listFractional(t, m, "BOND-us10y-0001", 100, 10, 40)
	listFractional(t, m, "BOND-de30y-0002", 10, 5, 10)

	m.BuyFractional(buyerA, "BOND-us10y-0001", 5, token.New(50))
	m.BuyFractional(buyerA, "BOND-de30y-0002", 2, token.New(10))

	holdings := m.HoldingsOf(buyerA)
	if len(holdings) != 2 || holdings[0] != "BOND-de30y-0002" || holdings[1] != "BOND-us10y-0001" {
		t.Errorf("unexpected holdings: %v", holdings)
	}

	// Selling everything back drops the asset from the index.
	if _, err := m.SellBackFractional(buyerA, "BOND-de30y-0002", 2, 5); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	holdings = m.HoldingsOf(buyerA)
	if len(holdings) != 1 || holdings[0] != "BOND-us10y-0001" {
		t.Errorf("unexpected holdings after sell-back: %v", holdings)
	}
}

// --- pause gate ---

func TestPause_GatesMutatingOperations(t *testing.T) {
	m, _ := newTestMarket(t)
	listFractional(t, m, "BOND-us10y-0001", 100, 10, 40)

	if err := m.Pause("wrong-cap"); !errors.Is(err, market.ErrNotAuthorized) {
		t.Errorf("expected ErrNotAuthorized, got %v", err)
	}
	if err := m.Pause(adminCap); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if _, err := m.BuyFractional(buyerA, "BOND-us10y-0001", 1, token.New(10)); !errors.Is(err, market.ErrPaused) {
		t.Errorf("expected ErrPaused, got %v", err)
	}
	if _, err := m.SellBackFractional(issuer, "BOND-us10y-0001", 1, 10); !errors.Is(err, market.ErrPaused) {
		t.Errorf("expected ErrPaused, got %v", err)
	}
	if _, _, err := m.CancelListing(issuer, "BOND-us10y-0001"); !errors.Is(err, market.ErrPaused) {
		t.Errorf("expected ErrPaused, got %v", err)
	}
	// Reads still work.
	if got := m.BalanceOf("BOND-us10y-0001", issuer); got != 60 {
		t.Errorf("reads must work while paused, got %d", got)
	}

	if err := m.Unpause(adminCap); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if _, err := m.BuyFractional(buyerA, "BOND-us10y-0001", 1, token.New(10)); err != nil {
		t.Errorf("trading must resume after unpause, got %v", err)
	}
}

// --- conservation across a mixed sequence ---

func TestConservation_MixedSequence(t *testing.T) {
	m, _ := newTestMarket(t)
	const id = "BOND-us10y-0001"
	listFractional(t, m, id, 100, 10, 40)
	assertConservation(t, m, id, 100)

	m.BuyFractional(buyerA, id, 25, token.New(250))
	assertConservation(t, m, id, 100)

	m.SellBackFractional(buyerA, id, 10, 10)
	assertConservation(t, m, id, 100)

	m.BuyFractional(buyerB, id, 20, token.New(200))
	assertConservation(t, m, id, 100)

	m.CancelListing(issuer, id)
	assertConservation(t, m, id, 100)

	m.SellBackFractional(buyerB, id, 20, 15)
	assertConservation(t, m, id, 100)

	m.BuyAll(buyerA, id, token.New(300))
	assertConservation(t, m, id, 100)
}
