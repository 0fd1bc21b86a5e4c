// Package market implements the custodial marketplace ledger: the listing
// directory, escrow vault, per-asset ownership ledgers, and the trade
// executor that moves payment value against them.
//
// A Marketplace instance serializes every operation under one mutex, so the
// three structures are always observed in a mutually consistent state. Each
// operation validates all preconditions before mutating anything: a failed
// call leaves no partial effect. Payment transfers are issued only after the
// internal state is finalized.
package market

import (
	"math/bits"
	"sort"
	"sync"
	"time"

	"github.com/custodia/marketplace-engine/internal/ledger"
	"github.com/custodia/marketplace-engine/internal/model"
	"github.com/custodia/marketplace-engine/internal/token"
)

// FeeDivisor sets the protocol fee: cost/FeeDivisor, integer floor (0.1%).
// The division remainder accrues to the seller.
const FeeDivisor = 1000

// Config carries the external collaborators a Marketplace is built with.
type Config struct {
	Issuers  IssuerRegistry
	Admin    AdminAuthority
	Payments Payments
	Clock    Clock // nil → time.Now().UTC
	Treasury model.Address
}

// Marketplace is the singleton custodial ledger. Model it as an explicitly
// passed aggregate: tests run isolated instances.
type Marketplace struct {
	mu        sync.RWMutex
	listings  directory
	vault     vault
	ownership map[string]*ledger.Ledger             // asset id → holder balances
	holdings  map[model.Address]map[string]struct{} // reverse index: holder → asset ids
	paused    bool

	issuers  IssuerRegistry
	admin    AdminAuthority
	payments Payments
	clock    Clock
	treasury model.Address
}

// New creates an empty marketplace with the given collaborators.
func New(cfg Config) *Marketplace {
	clock := cfg.Clock
	if clock == nil {
		clock = ClockFunc(func() time.Time { return time.Now().UTC() })
	}
	return &Marketplace{
		listings:  newDirectory(),
		vault:     newVault(),
		ownership: make(map[string]*ledger.Ledger),
		holdings:  make(map[model.Address]map[string]struct{}),
		issuers:   cfg.Issuers,
		admin:     cfg.Admin,
		payments:  cfg.Payments,
		clock:     clock,
		treasury:  cfg.Treasury,
	}
}

// Receipt summarizes a completed operation for callers that record history
// or emit events. Monetary amounts are base units.
type Receipt struct {
	AssetID      string
	Kind         model.AssetKind
	Op           string
	Actor        model.Address
	Seller       model.Address
	Quantity     uint64
	PricePerUnit uint64
	Cost         uint64
	Fee          uint64
	Change       uint64
	Timestamp    time.Time
}

// ListWholeAsset takes the asset into custody and lists it at the given
// total price. The asset's issuer must pass the issuer-validity check and
// becomes the seller.
func (m *Marketplace) ListWholeAsset(asset *model.WholeAsset, price uint64) (*Receipt, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.paused {
		return nil, ErrPaused
	}
	if !m.issuers.IsValidIssuer(asset.Issuer) {
		return nil, ErrNotAuthorized
	}
	if _, err := m.listings.get(asset.ID); err == nil {
		return nil, ErrAlreadyListed
	}

	now := m.clock.Now()
	l := &model.Listing{
		AssetID:      asset.ID,
		Kind:         model.KindWhole,
		Seller:       asset.Issuer,
		PricePerUnit: price,
		Available:    1,
		TotalSupply:  1,
		ListedAt:     now,
	}
	if err := m.vault.putWhole(asset); err != nil {
		return nil, err
	}
	m.listings.create(l) // directory checked above, cannot fail

	return &Receipt{
		AssetID: asset.ID, Kind: model.KindWhole, Op: "list",
		Actor: asset.Issuer, Seller: asset.Issuer,
		Quantity: 1, PricePerUnit: price, Timestamp: now,
	}, nil
}

// ListFractionalAsset takes the asset into custody, lists qtyToList units at
// pricePerUnit, and pre-credits the issuer's ownership entry with the
// retained portion (total supply minus the listed quantity).
func (m *Marketplace) ListFractionalAsset(asset *model.FractionalAsset, pricePerUnit, qtyToList uint64) (*Receipt, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.paused {
		return nil, ErrPaused
	}
	if pricePerUnit == 0 {
		return nil, ErrInvalidPrice
	}
	if qtyToList == 0 || qtyToList > asset.TotalSupply {
		return nil, ErrInvalidQuantity
	}
	if _, err := m.listings.get(asset.ID); err == nil {
		return nil, ErrAlreadyListed
	}

	now := m.clock.Now()
	if err := m.vault.putFractional(asset); err != nil {
		return nil, err
	}
	m.ownership[asset.ID] = ledger.New()
	m.creditHolder(asset.ID, asset.Issuer, asset.TotalSupply-qtyToList)
	m.listings.create(&model.Listing{
		AssetID:      asset.ID,
		Kind:         model.KindFractional,
		Seller:       asset.Issuer,
		PricePerUnit: pricePerUnit,
		Available:    qtyToList,
		TotalSupply:  asset.TotalSupply,
		ListedAt:     now,
	})

	return &Receipt{
		AssetID: asset.ID, Kind: model.KindFractional, Op: "list",
		Actor: asset.Issuer, Seller: asset.Issuer,
		Quantity: qtyToList, PricePerUnit: pricePerUnit, Timestamp: now,
	}, nil
}

// BuyFractional purchases qty units from a live fractional listing. The
// payment token is consumed entirely: protocol fee to the treasury, the
// remainder of the cost to the seller, and any surplus back to the buyer.
// The listing is removed once its available quantity reaches zero; escrow
// and the ownership ledger stay intact.
func (m *Marketplace) BuyFractional(buyer model.Address, assetID string, qty uint64, payment *token.Token) (*Receipt, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.paused {
		return nil, ErrPaused
	}
	l, err := m.listings.get(assetID)
	if err != nil {
		return nil, err
	}
	if l.Kind != model.KindFractional {
		return nil, ErrWrongKind
	}
	if qty == 0 {
		return nil, ErrInvalidQuantity
	}
	if qty > l.Available {
		return nil, ErrInsufficientSupply
	}
	cost, err := mulCost(l.PricePerUnit, qty)
	if err != nil {
		return nil, err
	}
	if payment.Value() < cost {
		return nil, ErrInvalidPayment
	}

	l.Available -= qty
	m.creditHolder(assetID, buyer, qty)
	if l.Available == 0 {
		m.listings.remove(assetID)
	}
	change := payment.Value() - cost
	fee := m.settle(payment, cost, l.Seller, buyer)

	return &Receipt{
		AssetID: assetID, Kind: model.KindFractional, Op: "buy",
		Actor: buyer, Seller: l.Seller,
		Quantity: qty, PricePerUnit: l.PricePerUnit,
		Cost: cost, Fee: fee, Change: change,
		Timestamp: m.clock.Now(),
	}, nil
}

// SellBackFractional returns qty units from the seller's ownership entry to
// the market. If a listing is live its price must match exactly and its
// available quantity grows; otherwise a fresh listing is created at the
// given price, recovering the total supply from the vaulted record. No
// payment moves here — the units earn proceeds when someone buys them.
func (m *Marketplace) SellBackFractional(seller model.Address, assetID string, qty, pricePerUnit uint64) (*Receipt, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.paused {
		return nil, ErrPaused
	}
	if qty == 0 {
		return nil, ErrInvalidQuantity
	}
	led := m.ownership[assetID]
	if led == nil || led.BalanceOf(seller) == 0 {
		return nil, ErrNotAuthorized
	}
	if led.BalanceOf(seller) < qty {
		return nil, ledger.ErrInsufficientBalance
	}

	now := m.clock.Now()
	l, err := m.listings.get(assetID)
	if err == nil {
		if l.Kind != model.KindFractional {
			return nil, ErrWrongKind
		}
		if pricePerUnit != l.PricePerUnit {
			return nil, ErrPriceMismatch
		}
		m.debitHolder(assetID, seller, qty)
		l.Available += qty
	} else {
		if pricePerUnit == 0 {
			return nil, ErrInvalidPrice
		}
		fa, err := m.vault.getFractional(assetID)
		if err != nil {
			return nil, err
		}
		m.debitHolder(assetID, seller, qty)
		m.listings.create(&model.Listing{
			AssetID:      assetID,
			Kind:         model.KindFractional,
			Seller:       seller,
			PricePerUnit: pricePerUnit,
			Available:    qty,
			TotalSupply:  fa.TotalSupply,
			ListedAt:     now,
		})
	}

	return &Receipt{
		AssetID: assetID, Kind: model.KindFractional, Op: "sell_back",
		Actor: seller, Seller: seller,
		Quantity: qty, PricePerUnit: pricePerUnit, Timestamp: now,
	}, nil
}

// BuyAll executes a single-step full buy-out of either kind. The listing is
// removed; a whole asset leaves escrow and is returned to the buyer, while a
// fractional buy-out credits the buyer with the entire remaining available
// quantity and leaves the record vaulted.
func (m *Marketplace) BuyAll(buyer model.Address, assetID string, payment *token.Token) (*model.WholeAsset, *Receipt, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.paused {
		return nil, nil, ErrPaused
	}
	l, err := m.listings.get(assetID)
	if err != nil {
		return nil, nil, err
	}

	cost := l.PricePerUnit
	if l.Kind == model.KindFractional {
		if cost, err = mulCost(l.PricePerUnit, l.Available); err != nil {
			return nil, nil, err
		}
	}
	if payment.Value() < cost {
		return nil, nil, ErrInvalidPayment
	}

	m.listings.remove(assetID)
	var asset *model.WholeAsset
	if l.Kind == model.KindWhole {
		asset, _ = m.vault.takeWhole(assetID) // escrowed for every listed whole asset
	} else {
		m.creditHolder(assetID, buyer, l.Available)
	}
	change := payment.Value() - cost
	fee := m.settle(payment, cost, l.Seller, buyer)

	return asset, &Receipt{
		AssetID: assetID, Kind: l.Kind, Op: "buy_all",
		Actor: buyer, Seller: l.Seller,
		Quantity: l.Available, PricePerUnit: l.PricePerUnit,
		Cost: cost, Fee: fee, Change: change,
		Timestamp: m.clock.Now(),
	}, nil
}

// CancelListing removes the listing. Only the original seller may cancel. A
// whole asset leaves escrow and is returned; a fractional cancel credits the
// market-facing quantity back to the seller's ownership entry without
// touching escrow.
func (m *Marketplace) CancelListing(caller model.Address, assetID string) (*model.WholeAsset, *Receipt, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.paused {
		return nil, nil, ErrPaused
	}
	l, err := m.listings.get(assetID)
	if err != nil {
		return nil, nil, err
	}
	if caller != l.Seller {
		return nil, nil, ErrNotSeller
	}

	m.listings.remove(assetID)
	var asset *model.WholeAsset
	if l.Kind == model.KindWhole {
		asset, _ = m.vault.takeWhole(assetID)
	} else {
		m.creditHolder(assetID, l.Seller, l.Available)
	}

	return asset, &Receipt{
		AssetID: assetID, Kind: l.Kind, Op: "cancel",
		Actor: caller, Seller: l.Seller,
		Quantity: l.Available, PricePerUnit: l.PricePerUnit,
		Timestamp: m.clock.Now(),
	}, nil
}

// Withdraw converts a fully-owned fractional asset back into a standalone
// record: the caller must hold the asset's entire total supply. The
// ownership ledger and escrow entry are removed together and the record is
// returned. Partial holders fail with ErrInsufficientBalance. Holding the
// full supply implies no live listing: a listing's available units are not
// owned by anyone.
func (m *Marketplace) Withdraw(caller model.Address, assetID string) (*model.FractionalAsset, *Receipt, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.paused {
		return nil, nil, ErrPaused
	}
	led := m.ownership[assetID]
	if led == nil {
		return nil, nil, ErrNotFound
	}
	bal := led.BalanceOf(caller)
	if bal == 0 {
		return nil, nil, ErrNotAuthorized
	}
	fa, err := m.vault.getFractional(assetID)
	if err != nil {
		return nil, nil, err
	}
	if bal != fa.TotalSupply {
		return nil, nil, ledger.ErrInsufficientBalance
	}

	m.debitHolder(assetID, caller, bal)
	delete(m.ownership, assetID)
	m.vault.takeFractional(assetID)

	return fa, &Receipt{
		AssetID: assetID, Kind: model.KindFractional, Op: "withdraw",
		Actor: caller, Seller: caller,
		Quantity: bal, Timestamp: m.clock.Now(),
	}, nil
}

// BalanceOf returns the owner's ownership balance for the asset. Pure read:
// returns 0 for unknown assets or holders, never an error.
func (m *Marketplace) BalanceOf(assetID string, owner model.Address) uint64 {
	m.mu.RLock()
	defer m.mu.RUnlock()

	led := m.ownership[assetID]
	if led == nil {
		return 0
	}
	return led.BalanceOf(owner)
}

// HoldingsOf returns the ids of every fractional asset the owner holds a
// nonzero balance in, sorted.
func (m *Marketplace) HoldingsOf(owner model.Address) []string {
	m.mu.RLock()
	defer m.mu.RUnlock()

	ids := make([]string, 0, len(m.holdings[owner]))
	for id := range m.holdings[owner] {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// Listings returns copies of all live listings, sorted by asset id.
func (m *Marketplace) Listings() []model.Listing {
	m.mu.RLock()
	defer m.mu.RUnlock()

	return m.listings.all()
}

// GetListing returns a copy of the live listing for the asset.
func (m *Marketplace) GetListing(assetID string) (model.Listing, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	l, err := m.listings.get(assetID)
	if err != nil {
		return model.Listing{}, err
	}
	return *l, nil
}

// Holders returns the addresses holding a nonzero balance in the asset.
func (m *Marketplace) Holders(assetID string) []model.Address {
	m.mu.RLock()
	defer m.mu.RUnlock()

	led := m.ownership[assetID]
	if led == nil {
		return nil
	}
	return led.Holders()
}

// OwnedTotal returns the sum of all ownership balances for the asset.
func (m *Marketplace) OwnedTotal(assetID string) uint64 {
	m.mu.RLock()
	defer m.mu.RUnlock()

	led := m.ownership[assetID]
	if led == nil {
		return 0
	}
	return led.Total()
}

// Stats is a point-in-time snapshot used by metrics and the health surface.
type Stats struct {
	ActiveListings      int  `json:"active_listings"`
	WholeInCustody      int  `json:"whole_in_custody"`
	FractionalInCustody int  `json:"fractional_in_custody"`
	Paused              bool `json:"paused"`
}

// Snapshot returns current marketplace stats.
func (m *Marketplace) Snapshot() Stats {
	m.mu.RLock()
	defer m.mu.RUnlock()

	return Stats{
		ActiveListings:      len(m.listings.byAsset),
		WholeInCustody:      m.vault.countWhole(),
		FractionalInCustody: m.vault.countFractional(),
		Paused:              m.paused,
	}
}

// Paused reports whether mutating operations are currently rejected.
func (m *Marketplace) Paused() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()

	return m.paused
}

// Pause rejects all mutating trade operations until Unpause. Requires a
// valid admin capability.
func (m *Marketplace) Pause(capability string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if !m.admin.VerifyAdmin(capability) {
		return ErrNotAuthorized
	}
	m.paused = true
	return nil
}

// Unpause re-enables trading. Requires a valid admin capability.
func (m *Marketplace) Unpause(capability string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if !m.admin.VerifyAdmin(capability) {
		return ErrNotAuthorized
	}
	m.paused = false
	return nil
}

// --- internal helpers (called with m.mu held) ---

// creditHolder updates the ownership ledger and the reverse index together.
func (m *Marketplace) creditHolder(assetID string, holder model.Address, qty uint64) {
	if qty == 0 {
		return
	}
	m.ownership[assetID].Credit(holder, qty)
	set := m.holdings[holder]
	if set == nil {
		set = make(map[string]struct{})
		m.holdings[holder] = set
	}
	set[assetID] = struct{}{}
}

// debitHolder mirrors creditHolder. Callers validate the balance first; a
// failed debit here would mean the precondition checks are broken.
func (m *Marketplace) debitHolder(assetID string, holder model.Address, qty uint64) {
	led := m.ownership[assetID]
	led.Debit(holder, qty)
	if led.BalanceOf(holder) == 0 {
		delete(m.holdings[holder], assetID)
		if len(m.holdings[holder]) == 0 {
			delete(m.holdings, holder)
		}
	}
}

// settle distributes a validated payment: fee to the treasury, the rest of
// the cost to the seller, surplus back to the buyer. The payment's value was
// checked against cost, so the splits cannot fail.
func (m *Marketplace) settle(payment *token.Token, cost uint64, seller, buyer model.Address) uint64 {
	fee := cost / FeeDivisor
	if fee > 0 {
		feeTok, _ := payment.Split(fee)
		m.payments.Transfer(feeTok, m.treasury)
	}
	sellerTok, _ := payment.Split(cost - fee)
	m.payments.Transfer(sellerTok, seller)
	m.payments.Transfer(payment, buyer)
	return fee
}

// mulCost computes pricePerUnit*qty, rejecting uint64 overflow — no payment
// could cover such a cost anyway.
func mulCost(pricePerUnit, qty uint64) (uint64, error) {
	hi, lo := bits.Mul64(pricePerUnit, qty)
	if hi != 0 {
		return 0, ErrInvalidPayment
	}
	return lo, nil
}
