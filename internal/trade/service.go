// Package trade provides the HTTP handlers wiring the marketplace ledger to
// the outside world: listing, trade execution, balances, portfolio and
// history queries, and the admin pause gate.
package trade

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/custodia/marketplace-engine/internal/asset"
	"github.com/custodia/marketplace-engine/internal/ledger"
	"github.com/custodia/marketplace-engine/internal/market"
	"github.com/custodia/marketplace-engine/internal/metrics"
	"github.com/custodia/marketplace-engine/internal/model"
	"github.com/custodia/marketplace-engine/internal/store"
	"github.com/custodia/marketplace-engine/internal/token"
)

// Service handles marketplace operations over HTTP. The Marketplace itself
// serializes execution; the service adds history recording, metrics, and
// WebSocket broadcasts around each completed operation.
type Service struct {
	market *market.Marketplace
	store  store.Store
	bank   *token.Bank
	wsHub  *WSHub // optional hub for real-time broadcasts
}

// NewService creates a new trade service.
// Pass nil for hub if WebSocket broadcasting is not needed.
func NewService(m *market.Marketplace, st store.Store, bank *token.Bank, hub *WSHub) *Service {
	return &Service{
		market: m,
		store:  st,
		bank:   bank,
		wsHub:  hub,
	}
}

// --- Request/Response types ---

// ListWholeRequest is the JSON body for POST /listings/whole.
type ListWholeRequest struct {
	AssetID  string        `json:"asset_id"`
	Issuer   model.Address `json:"issuer"`
	Metadata string        `json:"metadata"`
	Price    uint64        `json:"price"`
}

// ListFractionalRequest is the JSON body for POST /listings/fractional.
type ListFractionalRequest struct {
	AssetID      string        `json:"asset_id"`
	Issuer       model.Address `json:"issuer"`
	Metadata     string        `json:"metadata"`
	TotalSupply  uint64        `json:"total_supply"`
	PricePerUnit uint64        `json:"price_per_unit"`
	Quantity     uint64        `json:"quantity"` // units to put on the market
}

// BuyRequest is the JSON body for POST /trade/buy.
type BuyRequest struct {
	Buyer    model.Address `json:"buyer"`
	AssetID  string        `json:"asset_id"`
	Quantity uint64        `json:"quantity"`
	Payment  uint64        `json:"payment"` // base units withdrawn from the buyer's account
}

// BuyAllRequest is the JSON body for POST /trade/buy-all.
type BuyAllRequest struct {
	Buyer   model.Address `json:"buyer"`
	AssetID string        `json:"asset_id"`
	Payment uint64        `json:"payment"`
}

// SellBackRequest is the JSON body for POST /trade/sell-back.
type SellBackRequest struct {
	Seller       model.Address `json:"seller"`
	AssetID      string        `json:"asset_id"`
	Quantity     uint64        `json:"quantity"`
	PricePerUnit uint64        `json:"price_per_unit"`
}

// CallerRequest carries the acting address for cancel and withdraw.
type CallerRequest struct {
	Caller model.Address `json:"caller"`
}

// FaucetRequest is the JSON body for POST /faucet (development funding).
type FaucetRequest struct {
	Address model.Address `json:"address"`
	Amount  uint64        `json:"amount"`
}

// TradeResponse is returned from every mutating trade endpoint.
type TradeResponse struct {
	TradeID      string          `json:"trade_id"`
	AssetID      string          `json:"asset_id"`
	Kind         model.AssetKind `json:"kind"`
	Op           string          `json:"op"`
	Actor        model.Address   `json:"actor"`
	Seller       model.Address   `json:"seller"`
	Quantity     uint64          `json:"quantity"`
	PricePerUnit uint64          `json:"price_per_unit"`
	Cost         uint64          `json:"cost"`
	Fee          uint64          `json:"fee"`
	Change       uint64          `json:"change"`
	Asset        interface{}     `json:"asset,omitempty"` // returned record on buy-out/cancel/withdraw
}

// Holding is one entry in a portfolio response.
type Holding struct {
	AssetID  string          `json:"asset_id"`
	Balance  uint64          `json:"balance"`
	Notional decimal.Decimal `json:"notional"` // balance at the live listing price, 0 if unlisted
}

// PortfolioResponse aggregates an address's fractional holdings and account
// balance.
type PortfolioResponse struct {
	Owner       model.Address `json:"owner"`
	Holdings    []Holding     `json:"holdings"`
	BankBalance uint64        `json:"bank_balance"`
}

// AssetSummary is returned from GET /assets/{assetID}.
type AssetSummary struct {
	AssetID    string          `json:"asset_id"`
	Listing    *model.Listing  `json:"listing,omitempty"`
	Holders    []model.Address `json:"holders,omitempty"`
	OwnedTotal uint64          `json:"owned_total"`
	Notional   decimal.Decimal `json:"notional"` // available quantity at the listing price
	FeeRate    decimal.Decimal `json:"fee_rate"`
}

// --- HTTP Handlers ---

// ListWhole handles POST /api/v1/listings/whole
func (s *Service) ListWhole(w http.ResponseWriter, r *http.Request) {
	var req ListWholeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, "invalid request body", http.StatusBadRequest)
		return
	}
	if _, err := asset.ParseID(req.AssetID); err != nil {
		writeError(w, err.Error(), http.StatusBadRequest)
		return
	}

	rec, err := s.market.ListWholeAsset(&model.WholeAsset{
		ID:       req.AssetID,
		Issuer:   req.Issuer,
		Metadata: req.Metadata,
	}, req.Price)
	if err != nil {
		s.reject(w, "list", err)
		return
	}

	record := s.completed(r, rec)
	writeJSON(w, http.StatusCreated, s.response(record.ID, rec, nil))
}

// ListFractional handles POST /api/v1/listings/fractional
func (s *Service) ListFractional(w http.ResponseWriter, r *http.Request) {
	var req ListFractionalRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, "invalid request body", http.StatusBadRequest)
		return
	}
	if _, err := asset.ParseID(req.AssetID); err != nil {
		writeError(w, err.Error(), http.StatusBadRequest)
		return
	}

	rec, err := s.market.ListFractionalAsset(&model.FractionalAsset{
		ID:          req.AssetID,
		Issuer:      req.Issuer,
		TotalSupply: req.TotalSupply,
		Metadata:    req.Metadata,
	}, req.PricePerUnit, req.Quantity)
	if err != nil {
		s.reject(w, "list", err)
		return
	}

	record := s.completed(r, rec)
	writeJSON(w, http.StatusCreated, s.response(record.ID, rec, nil))
}

// Buy handles POST /api/v1/trade/buy — partial purchase from a fractional
// listing. The payment amount is withdrawn from the buyer's account; on
// rejection the withdrawn value is returned untouched.
func (s *Service) Buy(w http.ResponseWriter, r *http.Request) {
	var req BuyRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, "invalid request body", http.StatusBadRequest)
		return
	}

	payment, err := s.bank.Withdraw(req.Buyer, req.Payment)
	if err != nil {
		s.reject(w, "buy", err)
		return
	}

	rec, err := s.market.BuyFractional(req.Buyer, req.AssetID, req.Quantity, payment)
	if err != nil {
		s.bank.Transfer(payment, req.Buyer) // refund the untouched payment
		s.reject(w, "buy", err)
		return
	}

	record := s.completed(r, rec)
	writeJSON(w, http.StatusOK, s.response(record.ID, rec, nil))
}

// BuyAll handles POST /api/v1/trade/buy-all — full buy-out of either kind.
func (s *Service) BuyAll(w http.ResponseWriter, r *http.Request) {
	var req BuyAllRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, "invalid request body", http.StatusBadRequest)
		return
	}

	payment, err := s.bank.Withdraw(req.Buyer, req.Payment)
	if err != nil {
		s.reject(w, "buy_all", err)
		return
	}

	bought, rec, err := s.market.BuyAll(req.Buyer, req.AssetID, payment)
	if err != nil {
		s.bank.Transfer(payment, req.Buyer)
		s.reject(w, "buy_all", err)
		return
	}

	record := s.completed(r, rec)
	var returned interface{}
	if bought != nil {
		returned = bought
	}
	writeJSON(w, http.StatusOK, s.response(record.ID, rec, returned))
}

// SellBack handles POST /api/v1/trade/sell-back
func (s *Service) SellBack(w http.ResponseWriter, r *http.Request) {
	var req SellBackRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, "invalid request body", http.StatusBadRequest)
		return
	}

	rec, err := s.market.SellBackFractional(req.Seller, req.AssetID, req.Quantity, req.PricePerUnit)
	if err != nil {
		s.reject(w, "sell_back", err)
		return
	}

	record := s.completed(r, rec)
	writeJSON(w, http.StatusOK, s.response(record.ID, rec, nil))
}

// Cancel handles POST /api/v1/listings/{assetID}/cancel
func (s *Service) Cancel(w http.ResponseWriter, r *http.Request) {
	assetID := chi.URLParam(r, "assetID")
	var req CallerRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, "invalid request body", http.StatusBadRequest)
		return
	}

	returned, rec, err := s.market.CancelListing(req.Caller, assetID)
	if err != nil {
		s.reject(w, "cancel", err)
		return
	}

	record := s.completed(r, rec)
	var ret interface{}
	if returned != nil {
		ret = returned
	}
	writeJSON(w, http.StatusOK, s.response(record.ID, rec, ret))
}

// Withdraw handles POST /api/v1/assets/{assetID}/withdraw — full extraction
// of a fractional record by a holder owning the entire supply.
func (s *Service) Withdraw(w http.ResponseWriter, r *http.Request) {
	assetID := chi.URLParam(r, "assetID")
	var req CallerRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, "invalid request body", http.StatusBadRequest)
		return
	}

	extracted, rec, err := s.market.Withdraw(req.Caller, assetID)
	if err != nil {
		s.reject(w, "withdraw", err)
		return
	}

	record := s.completed(r, rec)
	writeJSON(w, http.StatusOK, s.response(record.ID, rec, extracted))
}

// ListListings handles GET /api/v1/listings
func (s *Service) ListListings(w http.ResponseWriter, r *http.Request) {
	listings := s.market.Listings()
	if listings == nil {
		listings = []model.Listing{}
	}
	writeJSON(w, http.StatusOK, listings)
}

// GetListing handles GET /api/v1/listings/{assetID}
func (s *Service) GetListing(w http.ResponseWriter, r *http.Request) {
	assetID := chi.URLParam(r, "assetID")
	l, err := s.market.GetListing(assetID)
	if err != nil {
		writeError(w, "listing not found", http.StatusNotFound)
		return
	}
	writeJSON(w, http.StatusOK, l)
}

// GetAsset handles GET /api/v1/assets/{assetID}
func (s *Service) GetAsset(w http.ResponseWriter, r *http.Request) {
	assetID := chi.URLParam(r, "assetID")

	summary := AssetSummary{
		AssetID:    assetID,
		Holders:    s.market.Holders(assetID),
		OwnedTotal: s.market.OwnedTotal(assetID),
		Notional:   decimal.Zero,
		FeeRate:    asset.FeeRate(),
	}
	if l, err := s.market.GetListing(assetID); err == nil {
		summary.Listing = &l
		summary.Notional = asset.Notional(l.PricePerUnit, l.Available)
	}
	writeJSON(w, http.StatusOK, summary)
}

// GetBalance handles GET /api/v1/assets/{assetID}/balance/{owner}
// Pure read: returns 0 for unknown assets or owners, never an error.
func (s *Service) GetBalance(w http.ResponseWriter, r *http.Request) {
	assetID := chi.URLParam(r, "assetID")
	owner := model.Address(chi.URLParam(r, "owner"))

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"asset_id": assetID,
		"owner":    owner,
		"balance":  s.market.BalanceOf(assetID, owner),
	})
}

// GetHistory handles GET /api/v1/assets/{assetID}/history
func (s *Service) GetHistory(w http.ResponseWriter, r *http.Request) {
	assetID := chi.URLParam(r, "assetID")

	records, err := s.store.TradesByAsset(r.Context(), assetID)
	if err != nil {
		writeError(w, "failed to load trade history", http.StatusInternalServerError)
		return
	}
	if records == nil {
		records = []model.TradeRecord{}
	}
	writeJSON(w, http.StatusOK, records)
}

// GetPortfolio handles GET /api/v1/portfolio/{owner}
// Uses the reverse index maintained alongside every ledger credit/debit.
func (s *Service) GetPortfolio(w http.ResponseWriter, r *http.Request) {
	owner := model.Address(chi.URLParam(r, "owner"))

	holdings := []Holding{}
	for _, assetID := range s.market.HoldingsOf(owner) {
		h := Holding{
			AssetID:  assetID,
			Balance:  s.market.BalanceOf(assetID, owner),
			Notional: decimal.Zero,
		}
		if l, err := s.market.GetListing(assetID); err == nil {
			h.Notional = asset.Notional(l.PricePerUnit, h.Balance)
		}
		holdings = append(holdings, h)
	}

	writeJSON(w, http.StatusOK, PortfolioResponse{
		Owner:       owner,
		Holdings:    holdings,
		BankBalance: s.bank.BalanceOf(owner),
	})
}

// GetAccount handles GET /api/v1/accounts/{owner}
func (s *Service) GetAccount(w http.ResponseWriter, r *http.Request) {
	owner := model.Address(chi.URLParam(r, "owner"))
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"owner":   owner,
		"balance": s.bank.BalanceOf(owner),
	})
}

// Faucet handles POST /api/v1/faucet — development account funding.
func (s *Service) Faucet(w http.ResponseWriter, r *http.Request) {
	var req FaucetRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, "invalid request body", http.StatusBadRequest)
		return
	}
	if err := s.bank.Mint(req.Address, req.Amount); err != nil {
		writeError(w, err.Error(), http.StatusBadRequest)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"address": req.Address,
		"balance": s.bank.BalanceOf(req.Address),
	})
}

// Pause handles POST /api/v1/admin/pause. The admin capability comes from
// the Authorization bearer token.
func (s *Service) Pause(w http.ResponseWriter, r *http.Request) {
	if err := s.market.Pause(bearerToken(r)); err != nil {
		s.reject(w, "pause", err)
		return
	}
	metrics.PausedState.Set(1)
	slog.Warn("marketplace paused")
	writeJSON(w, http.StatusOK, map[string]bool{"paused": true})
}

// Unpause handles POST /api/v1/admin/unpause.
func (s *Service) Unpause(w http.ResponseWriter, r *http.Request) {
	if err := s.market.Unpause(bearerToken(r)); err != nil {
		s.reject(w, "unpause", err)
		return
	}
	metrics.PausedState.Set(0)
	slog.Info("marketplace unpaused")
	writeJSON(w, http.StatusOK, map[string]bool{"paused": false})
}

// --- helpers ---

// completed records history, metrics, logging, and broadcasts for a
// successful operation, returning the persisted record. History writes are
// best-effort: the operation has already settled.
func (s *Service) completed(r *http.Request, rec *market.Receipt) *model.TradeRecord {
	record := &model.TradeRecord{
		ID:        uuid.New().String(),
		AssetID:   rec.AssetID,
		Kind:      rec.Kind,
		Op:        rec.Op,
		Actor:     rec.Actor,
		Seller:    rec.Seller,
		Quantity:  rec.Quantity,
		Price:     decimal.NewFromUint64(rec.PricePerUnit),
		Cost:      decimal.NewFromUint64(rec.Cost),
		Fee:       decimal.NewFromUint64(rec.Fee),
		Timestamp: rec.Timestamp,
	}
	if err := s.store.InsertTrade(r.Context(), record); err != nil {
		slog.Error("failed to record trade", "op", rec.Op, "asset", rec.AssetID, "err", err)
	}

	metrics.TradesTotal.WithLabelValues(rec.Op, string(rec.Kind)).Inc()
	metrics.TradeVolume.WithLabelValues(rec.Op, string(rec.Kind)).Add(float64(rec.Quantity))
	if rec.Fee > 0 {
		metrics.ProtocolFees.Add(float64(rec.Fee))
	}
	snap := s.market.Snapshot()
	metrics.ActiveListings.Set(float64(snap.ActiveListings))
	metrics.AssetsInCustody.WithLabelValues(string(model.KindWhole)).Set(float64(snap.WholeInCustody))
	metrics.AssetsInCustody.WithLabelValues(string(model.KindFractional)).Set(float64(snap.FractionalInCustody))

	slog.Info("operation completed",
		"op", rec.Op,
		"asset", rec.AssetID,
		"kind", rec.Kind,
		"actor", rec.Actor,
		"qty", rec.Quantity,
		"cost", rec.Cost,
		"fee", rec.Fee,
	)

	if s.wsHub != nil {
		s.wsHub.Broadcast(WSMessage{
			Type:         "trade_executed",
			AssetID:      rec.AssetID,
			Kind:         string(rec.Kind),
			Op:           rec.Op,
			Quantity:     rec.Quantity,
			PricePerUnit: rec.PricePerUnit,
			Cost:         rec.Cost,
		})
	}
	return record
}

func (s *Service) response(tradeID string, rec *market.Receipt, returned interface{}) TradeResponse {
	return TradeResponse{
		TradeID:      tradeID,
		AssetID:      rec.AssetID,
		Kind:         rec.Kind,
		Op:           rec.Op,
		Actor:        rec.Actor,
		Seller:       rec.Seller,
		Quantity:     rec.Quantity,
		PricePerUnit: rec.PricePerUnit,
		Cost:         rec.Cost,
		Fee:          rec.Fee,
		Change:       rec.Change,
		Asset:        returned,
	}
}

// reject maps a validation failure to its HTTP status and counts it.
func (s *Service) reject(w http.ResponseWriter, op string, err error) {
	metrics.RejectedOperations.WithLabelValues(op).Inc()
	writeError(w, err.Error(), errStatus(err))
}

// errStatus maps the marketplace error taxonomy onto HTTP status codes.
func errStatus(err error) int {
	switch {
	case errors.Is(err, market.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, market.ErrNotAuthorized), errors.Is(err, market.ErrNotSeller):
		return http.StatusForbidden
	case errors.Is(err, market.ErrPaused):
		return http.StatusServiceUnavailable
	case errors.Is(err, market.ErrInvalidPayment), errors.Is(err, token.ErrInsufficientFunds):
		return http.StatusPaymentRequired
	case errors.Is(err, market.ErrAlreadyListed),
		errors.Is(err, market.ErrPriceMismatch),
		errors.Is(err, market.ErrInsufficientSupply),
		errors.Is(err, ledger.ErrInsufficientBalance):
		return http.StatusConflict
	case errors.Is(err, market.ErrInvalidQuantity),
		errors.Is(err, market.ErrInvalidPrice),
		errors.Is(err, market.ErrWrongKind):
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}

func bearerToken(r *http.Request) string {
	auth := r.Header.Get("Authorization")
	return strings.TrimPrefix(auth, "Bearer ")
}

// writeJSON writes a JSON response with the given status.
func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

// writeError writes a JSON error response.
func writeError(w http.ResponseWriter, message string, status int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(map[string]string{"error": message})
}
