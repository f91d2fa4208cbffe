package mintauth

import (
	"bytes"
	"fmt"
	"time"

	"dropforge/crypto"
)

// Minter is the external collaborator that performs the actual mint once an
// instruction has been verified and consumed.
type Minter interface {
	Mint(recipient crypto.Address, itemID uint64) error
}

// KV is the narrow slice of the state manager the authority needs.
type KV interface {
	KVPut(key []byte, value interface{}) error
	KVGet(key []byte, out interface{}) (bool, error)
	KVHas(key []byte) (bool, error)
}

// Authority verifies delegated-mint instructions and enforces exactly-once
// execution through a per-recipient nonce plus a global used-digest cache.
type Authority struct {
	state   KV
	chainID uint64
	minter  Minter
	now     func() time.Time
}

func NewAuthority(state KV, chainID uint64, minter Minter) *Authority {
	return &Authority{state: state, chainID: chainID, minter: minter, now: time.Now}
}

// SetAuthority configures the trusted signer address.
func (a *Authority) SetAuthority(addr crypto.Address) error {
	return a.state.KVPut(authorityKey, addr.Bytes())
}

// AuthorityAddress returns the configured trusted signer, if any.
func (a *Authority) AuthorityAddress() (crypto.Address, bool, error) {
	var raw []byte
	ok, err := a.state.KVGet(authorityKey, &raw)
	if err != nil {
		return crypto.Address{}, false, err
	}
	if !ok || len(raw) != 20 {
		return crypto.Address{}, false, nil
	}
	return crypto.NewAddress(crypto.DropPrefix, raw), true, nil
}

// CurrentNonce returns the next expected nonce for a recipient.
func (a *Authority) CurrentNonce(recipient crypto.Address) (uint64, error) {
	var nonce uint64
	if _, err := a.state.KVGet(nonceKeyBytes(recipient.Bytes()), &nonce); err != nil {
		return 0, err
	}
	return nonce, nil
}

// IsDigestUsed reports whether an instruction digest is in the replay cache.
func (a *Authority) IsDigestUsed(digest []byte) (bool, error) {
	return a.state.KVHas(usedDigestKeyBytes(digest))
}

// SubmitInstruction runs the full verification ladder and, on success,
// consumes the instruction and invokes the minter. The digest is recorded and
// the nonce advanced before the minter runs, so a failing mint can never be
// retried with the same signature; the caller must obtain a fresh instruction
// with the incremented nonce. Returns the consumed digest.
func (a *Authority) SubmitInstruction(ins Instruction, sig []byte) ([]byte, error) {
	if ins.ChainID != a.chainID {
		return nil, fmt.Errorf("%w: got %d want %d", ErrInvalidChainID, ins.ChainID, a.chainID)
	}
	if ins.Deadline < a.now().Unix() {
		return nil, fmt.Errorf("%w: deadline %d", ErrExpired, ins.Deadline)
	}

	recipient, err := ins.RecipientAddress()
	if err != nil {
		return nil, err
	}
	expectedNonce, err := a.CurrentNonce(recipient)
	if err != nil {
		return nil, err
	}
	if ins.Nonce != expectedNonce {
		return nil, fmt.Errorf("%w: got %d want %d", ErrInvalidNonce, ins.Nonce, expectedNonce)
	}

	digest, err := ins.Digest()
	if err != nil {
		return nil, err
	}
	signer, err := RecoverSigner(ins, sig)
	if err != nil {
		return nil, err
	}
	authority, ok, err := a.AuthorityAddress()
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, ErrNoAuthority
	}
	if !bytes.Equal(signer, authority.Bytes()) {
		return nil, ErrInvalidSignature
	}

	used, err := a.IsDigestUsed(digest)
	if err != nil {
		return nil, err
	}
	if used {
		return nil, ErrSignatureUsed
	}

	// Consume before invoking the collaborator.
	if err := a.state.KVPut(usedDigestKeyBytes(digest), true); err != nil {
		return nil, err
	}
	if err := a.state.KVPut(nonceKeyBytes(recipient.Bytes()), expectedNonce+1); err != nil {
		return nil, err
	}

	if a.minter != nil {
		if err := a.minter.Mint(recipient, ins.ItemID); err != nil {
			return digest, fmt.Errorf("mintauth: minter failed after consumption: %w", err)
		}
	}
	return digest, nil
}
