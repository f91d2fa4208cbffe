package mintauth

import (
	"encoding/json"
	"fmt"
	"strings"

	ethcrypto "github.com/ethereum/go-ethereum/crypto"

	"dropforge/crypto"
)

// SchemeTag versions the signing scheme. It is folded into every digest so a
// signature produced for one scheme revision can never satisfy another.
const SchemeTag = "DROPFORGE_MINT_V1"

// Instruction is the canonical payload signed off-chain by the mint authority.
// One signed instruction authorises exactly one mint for the recipient. Class
// and Rarity bind the instruction to a catalog group so quota bookkeeping
// covers delegated mints the same way it covers reservations.
type Instruction struct {
	Recipient string `json:"recipient"`
	Class     string `json:"class"`
	Rarity    string `json:"rarity"`
	ItemID    uint64 `json:"itemId"`
	Nonce     uint64 `json:"nonce"`
	Deadline  int64  `json:"deadline"`
	ChainID   uint64 `json:"chainId"`
}

// TrimmedRecipient returns the trimmed recipient address string.
func (ins Instruction) TrimmedRecipient() string {
	return strings.TrimSpace(ins.Recipient)
}

// RecipientAddress decodes the recipient into a dropforge address.
func (ins Instruction) RecipientAddress() (crypto.Address, error) {
	addr, err := crypto.DecodeAddress(ins.TrimmedRecipient())
	if err != nil {
		return crypto.Address{}, fmt.Errorf("%w: %v", ErrInvalidPayload, err)
	}
	return addr, nil
}

// CanonicalJSON returns the canonical encoding used for signing. The scheme
// tag and chain id are part of the encoded payload, binding every signature to
// this deployment and scheme revision.
func (ins Instruction) CanonicalJSON() ([]byte, error) {
	canonical := struct {
		Scheme    string `json:"scheme"`
		ChainID   uint64 `json:"chainId"`
		Recipient string `json:"recipient"`
		Class     string `json:"class"`
		Rarity    string `json:"rarity"`
		ItemID    uint64 `json:"itemId"`
		Nonce     uint64 `json:"nonce"`
		Deadline  int64  `json:"deadline"`
	}{
		Scheme:    SchemeTag,
		ChainID:   ins.ChainID,
		Recipient: ins.TrimmedRecipient(),
		Class:     strings.ToLower(strings.TrimSpace(ins.Class)),
		Rarity:    strings.ToLower(strings.TrimSpace(ins.Rarity)),
		ItemID:    ins.ItemID,
		Nonce:     ins.Nonce,
		Deadline:  ins.Deadline,
	}
	if canonical.Recipient == "" {
		return nil, fmt.Errorf("%w: recipient required", ErrInvalidPayload)
	}
	if canonical.Class == "" || canonical.Rarity == "" {
		return nil, fmt.Errorf("%w: class and rarity required", ErrInvalidPayload)
	}
	if canonical.ChainID == 0 {
		return nil, fmt.Errorf("%w: chainId required", ErrInvalidPayload)
	}
	if canonical.Deadline == 0 {
		return nil, fmt.Errorf("%w: deadline required", ErrInvalidPayload)
	}
	return json.Marshal(canonical)
}

// Digest computes the keccak256 hash over the canonical JSON representation.
func (ins Instruction) Digest() ([]byte, error) {
	canonical, err := ins.CanonicalJSON()
	if err != nil {
		return nil, err
	}
	return ethcrypto.Keccak256(canonical), nil
}

// Sign produces a 65-byte recoverable signature over the instruction digest.
// Used by the relayer tooling; the node only ever verifies.
func Sign(ins Instruction, key *crypto.PrivateKey) ([]byte, error) {
	digest, err := ins.Digest()
	if err != nil {
		return nil, err
	}
	return ethcrypto.Sign(digest, key.PrivateKey)
}

// RecoverSigner recovers the 20-byte signer address from a signature over the
// instruction digest.
func RecoverSigner(ins Instruction, sig []byte) ([]byte, error) {
	digest, err := ins.Digest()
	if err != nil {
		return nil, err
	}
	if len(sig) != 65 {
		return nil, fmt.Errorf("%w: signature must be 65 bytes", ErrInvalidSignature)
	}
	normalized := make([]byte, 65)
	copy(normalized, sig)
	if normalized[64] >= 27 {
		normalized[64] -= 27
	}
	pub, err := ethcrypto.SigToPub(digest, normalized)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidSignature, err)
	}
	return ethcrypto.PubkeyToAddress(*pub).Bytes(), nil
}
