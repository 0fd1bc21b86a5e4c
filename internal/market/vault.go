package market

import "github.com/custodia/marketplace-engine/internal/model"

// vault is the escrow vault: it custodies the physical asset records while
// they are on the market. Whole and fractional records are kept apart
// because their withdrawal semantics differ — a whole record is handed back
// to a buyer or cancelling seller, while a fractional record stays vaulted
// and ownership of its units moves through the ownership ledger instead.
// Access is serialized by the owning Marketplace.
type vault struct {
	whole      map[string]*model.WholeAsset
	fractional map[string]*model.FractionalAsset
}

func newVault() vault {
	return vault{
		whole:      make(map[string]*model.WholeAsset),
		fractional: make(map[string]*model.FractionalAsset),
	}
}

func (v vault) putWhole(a *model.WholeAsset) error {
	if _, ok := v.whole[a.ID]; ok {
		return ErrAlreadyListed
	}
	v.whole[a.ID] = a
	return nil
}

// takeWhole removes the record from custody and returns it.
func (v vault) takeWhole(assetID string) (*model.WholeAsset, error) {
	a, ok := v.whole[assetID]
	if !ok {
		return nil, ErrNotFound
	}
	delete(v.whole, assetID)
	return a, nil
}

func (v vault) putFractional(a *model.FractionalAsset) error {
	if _, ok := v.fractional[a.ID]; ok {
		return ErrAlreadyListed
	}
	v.fractional[a.ID] = a
	return nil
}

// getFractional returns the vaulted record without releasing custody.
func (v vault) getFractional(assetID string) (*model.FractionalAsset, error) {
	a, ok := v.fractional[assetID]
	if !ok {
		return nil, ErrNotFound
	}
	return a, nil
}

// takeFractional releases custody entirely. Only a full withdrawal does this.
func (v vault) takeFractional(assetID string) (*model.FractionalAsset, error) {
	a, ok := v.fractional[assetID]
	if !ok {
		return nil, ErrNotFound
	}
	delete(v.fractional, assetID)
	return a, nil
}

func (v vault) countWhole() int      { return len(v.whole) }
func (v vault) countFractional() int { return len(v.fractional) }
