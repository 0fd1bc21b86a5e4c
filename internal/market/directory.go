package market

import (
	"sort"

	"github.com/custodia/marketplace-engine/internal/model"
)

// directory is the listing directory: at most one active listing per asset
// id. This is the mechanism that prevents double-selling the same escrowed
// unit. Access is serialized by the owning Marketplace.
type directory struct {
	byAsset map[string]*model.Listing
}

func newDirectory() directory {
	return directory{byAsset: make(map[string]*model.Listing)}
}

// create registers a listing, failing with ErrAlreadyListed if the asset
// already has one.
func (d directory) create(l *model.Listing) error {
	if _, ok := d.byAsset[l.AssetID]; ok {
		return ErrAlreadyListed
	}
	d.byAsset[l.AssetID] = l
	return nil
}

// get returns the live listing for the asset, or ErrNotFound.
func (d directory) get(assetID string) (*model.Listing, error) {
	l, ok := d.byAsset[assetID]
	if !ok {
		return nil, ErrNotFound
	}
	return l, nil
}

// remove deletes and returns the listing, or ErrNotFound.
func (d directory) remove(assetID string) (*model.Listing, error) {
	l, ok := d.byAsset[assetID]
	if !ok {
		return nil, ErrNotFound
	}
	delete(d.byAsset, assetID)
	return l, nil
}

// all returns copies of every live listing, sorted by asset id.
func (d directory) all() []model.Listing {
	listings := make([]model.Listing, 0, len(d.byAsset))
	for _, l := range d.byAsset {
		listings = append(listings, *l)
	}
	sort.Slice(listings, func(i, j int) bool { return listings[i].AssetID < listings[j].AssetID })
	return listings
}
