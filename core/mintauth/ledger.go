package mintauth

import "dropforge/crypto"

// Ledger is the in-repo minting collaborator: it records every item minted for
// a recipient. Deployments integrating a real token contract substitute their
// own Minter; the authority's verification ladder is identical either way.
type Ledger struct {
	state KV
}

func NewLedger(state KV) *Ledger {
	return &Ledger{state: state}
}

// Mint appends the item to the recipient's minted list.
func (l *Ledger) Mint(recipient crypto.Address, itemID uint64) error {
	items, err := l.MintedItems(recipient)
	if err != nil {
		return err
	}
	items = append(items, itemID)
	return l.state.KVPut(ledgerKeyBytes(recipient.Bytes()), items)
}

// MintedItems lists the item ids minted for a recipient, oldest first.
func (l *Ledger) MintedItems(recipient crypto.Address) ([]uint64, error) {
	var items []uint64
	if _, err := l.state.KVGet(ledgerKeyBytes(recipient.Bytes()), &items); err != nil {
		return nil, err
	}
	return items, nil
}
