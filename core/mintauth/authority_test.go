package mintauth

import (
	"errors"
	"testing"
	"time"

	"dropforge/core/state"
	"dropforge/crypto"
	"dropforge/storage"
)

const testChainID uint64 = 90021

func newTestAuthority(t *testing.T) (*Authority, *Ledger, *crypto.PrivateKey) {
	t.Helper()
	db := storage.NewMemDB()
	t.Cleanup(func() { db.Close() })
	manager := state.NewManager(db)
	ledger := NewLedger(manager)
	authority := NewAuthority(manager, testChainID, ledger)

	signerKey, err := crypto.GeneratePrivateKey()
	if err != nil {
		t.Fatalf("signer key: %v", err)
	}
	if err := authority.SetAuthority(signerKey.PubKey().Address()); err != nil {
		t.Fatalf("set authority: %v", err)
	}
	return authority, ledger, signerKey
}

func newRecipient(t *testing.T) crypto.Address {
	t.Helper()
	key, err := crypto.GeneratePrivateKey()
	if err != nil {
		t.Fatalf("recipient key: %v", err)
	}
	return key.PubKey().Address()
}

func signInstruction(t *testing.T, key *crypto.PrivateKey, ins Instruction) []byte {
	t.Helper()
	sig, err := Sign(ins, key)
	if err != nil {
		t.Fatalf("sign: %v", err)
	}
	return sig
}

func TestSubmitInstructionAcceptsAndConsumes(t *testing.T) {
	authority, ledger, signerKey := newTestAuthority(t)
	recipient := newRecipient(t)

	ins := Instruction{
		Recipient: recipient.String(),
		Class:     "relic",
		Rarity:    "epic",
		ItemID:    7,
		Nonce:     0,
		Deadline:  time.Now().Add(time.Hour).Unix(),
		ChainID:   testChainID,
	}
	sig := signInstruction(t, signerKey, ins)

	digest, err := authority.SubmitInstruction(ins, sig)
	if err != nil {
		t.Fatalf("submit: %v", err)
	}
	if len(digest) != 32 {
		t.Fatalf("expected 32-byte digest, got %d", len(digest))
	}

	nonce, err := authority.CurrentNonce(recipient)
	if err != nil {
		t.Fatalf("nonce: %v", err)
	}
	if nonce != 1 {
		t.Fatalf("expected nonce 1, got %d", nonce)
	}
	used, err := authority.IsDigestUsed(digest)
	if err != nil {
		t.Fatalf("used: %v", err)
	}
	if !used {
		t.Fatalf("digest must be in the replay cache")
	}
	items, err := ledger.MintedItems(recipient)
	if err != nil {
		t.Fatalf("minted: %v", err)
	}
	if len(items) != 1 || items[0] != 7 {
		t.Fatalf("expected minted item 7, got %v", items)
	}

	// Resubmitting the identical pair hits the nonce check first.
	if _, err := authority.SubmitInstruction(ins, sig); !errors.Is(err, ErrInvalidNonce) {
		t.Fatalf("expected ErrInvalidNonce on replay, got %v", err)
	}
}

func TestNonceMonotonicity(t *testing.T) {
	authority, _, signerKey := newTestAuthority(t)
	recipient := newRecipient(t)
	deadline := time.Now().Add(time.Hour).Unix()

	const submissions = 5
	for n := uint64(0); n < submissions; n++ {
		ins := Instruction{
			Recipient: recipient.String(),
			Class:     "relic",
			Rarity:    "epic",
			ItemID:    100 + n,
			Nonce:     n,
			Deadline:  deadline,
			ChainID:   testChainID,
		}
		if _, err := authority.SubmitInstruction(ins, signInstruction(t, signerKey, ins)); err != nil {
			t.Fatalf("submit %d: %v", n, err)
		}
	}
	nonce, err := authority.CurrentNonce(recipient)
	if err != nil {
		t.Fatalf("nonce: %v", err)
	}
	if nonce != submissions {
		t.Fatalf("expected nonce %d, got %d", submissions, nonce)
	}

	// Any stale nonce is rejected, even with a fresh signature.
	stale := Instruction{
		Recipient: recipient.String(),
		Class:     "relic",
		Rarity:    "epic",
		ItemID:    999,
		Nonce:     2,
		Deadline:  deadline,
		ChainID:   testChainID,
	}
	if _, err := authority.SubmitInstruction(stale, signInstruction(t, signerKey, stale)); !errors.Is(err, ErrInvalidNonce) {
		t.Fatalf("expected ErrInvalidNonce for stale nonce, got %v", err)
	}
}

func TestSubmitInstructionRejectsRogueSigner(t *testing.T) {
	authority, _, _ := newTestAuthority(t)
	recipient := newRecipient(t)

	rogueKey, err := crypto.GeneratePrivateKey()
	if err != nil {
		t.Fatalf("rogue key: %v", err)
	}
	ins := Instruction{
		Recipient: recipient.String(),
		Class:     "relic",
		Rarity:    "epic",
		ItemID:    1,
		Nonce:     0,
		Deadline:  time.Now().Add(time.Hour).Unix(),
		ChainID:   testChainID,
	}
	if _, err := authority.SubmitInstruction(ins, signInstruction(t, rogueKey, ins)); !errors.Is(err, ErrInvalidSignature) {
		t.Fatalf("expected ErrInvalidSignature, got %v", err)
	}
	nonce, err := authority.CurrentNonce(recipient)
	if err != nil {
		t.Fatalf("nonce: %v", err)
	}
	if nonce != 0 {
		t.Fatalf("rejected submission must not advance the nonce, got %d", nonce)
	}
}

func TestSubmitInstructionExpired(t *testing.T) {
	authority, _, signerKey := newTestAuthority(t)
	recipient := newRecipient(t)

	now := time.Unix(1_700_000_000, 0)
	authority.now = func() time.Time { return now }

	ins := Instruction{
		Recipient: recipient.String(),
		Class:     "relic",
		Rarity:    "epic",
		ItemID:    1,
		Nonce:     0,
		Deadline:  now.Unix() - 1,
		ChainID:   testChainID,
	}
	if _, err := authority.SubmitInstruction(ins, signInstruction(t, signerKey, ins)); !errors.Is(err, ErrExpired) {
		t.Fatalf("expected ErrExpired, got %v", err)
	}

	// A deadline equal to the current time is still valid.
	ins.Deadline = now.Unix()
	if _, err := authority.SubmitInstruction(ins, signInstruction(t, signerKey, ins)); err != nil {
		t.Fatalf("deadline == now must be accepted: %v", err)
	}
}

func TestSubmitInstructionWrongChain(t *testing.T) {
	authority, _, signerKey := newTestAuthority(t)
	recipient := newRecipient(t)

	ins := Instruction{
		Recipient: recipient.String(),
		Class:     "relic",
		Rarity:    "epic",
		ItemID:    1,
		Nonce:     0,
		Deadline:  time.Now().Add(time.Hour).Unix(),
		ChainID:   testChainID + 1,
	}
	if _, err := authority.SubmitInstruction(ins, signInstruction(t, signerKey, ins)); !errors.Is(err, ErrInvalidChainID) {
		t.Fatalf("expected ErrInvalidChainID, got %v", err)
	}
}

func TestSubmitInstructionReplayCache(t *testing.T) {
	authority, _, signerKey := newTestAuthority(t)
	recipient := newRecipient(t)

	ins := Instruction{
		Recipient: recipient.String(),
		Class:     "relic",
		Rarity:    "epic",
		ItemID:    1,
		Nonce:     0,
		Deadline:  time.Now().Add(time.Hour).Unix(),
		ChainID:   testChainID,
	}
	digest, err := ins.Digest()
	if err != nil {
		t.Fatalf("digest: %v", err)
	}
	// Seed the replay cache without touching the nonce: the used-signature
	// check must fire even though the nonce still matches.
	if err := authority.state.KVPut(usedDigestKeyBytes(digest), true); err != nil {
		t.Fatalf("seed cache: %v", err)
	}
	if _, err := authority.SubmitInstruction(ins, signInstruction(t, signerKey, ins)); !errors.Is(err, ErrSignatureUsed) {
		t.Fatalf("expected ErrSignatureUsed, got %v", err)
	}
}

func TestSubmitInstructionNoAuthorityConfigured(t *testing.T) {
	db := storage.NewMemDB()
	t.Cleanup(func() { db.Close() })
	manager := state.NewManager(db)
	authority := NewAuthority(manager, testChainID, NewLedger(manager))

	key, err := crypto.GeneratePrivateKey()
	if err != nil {
		t.Fatalf("key: %v", err)
	}
	recipient := newRecipient(t)
	ins := Instruction{
		Recipient: recipient.String(),
		Class:     "relic",
		Rarity:    "epic",
		ItemID:    1,
		Nonce:     0,
		Deadline:  time.Now().Add(time.Hour).Unix(),
		ChainID:   testChainID,
	}
	if _, err := authority.SubmitInstruction(ins, signInstruction(t, key, ins)); !errors.Is(err, ErrNoAuthority) {
		t.Fatalf("expected ErrNoAuthority, got %v", err)
	}
}

func TestCanonicalJSONValidation(t *testing.T) {
	ins := Instruction{Recipient: "", Class: "relic", Rarity: "epic", ChainID: testChainID, Deadline: 1}
	if _, err := ins.CanonicalJSON(); !errors.Is(err, ErrInvalidPayload) {
		t.Fatalf("expected ErrInvalidPayload for empty recipient, got %v", err)
	}
	ins = Instruction{Recipient: "drop1xyz", Rarity: "epic", ChainID: testChainID, Deadline: 1}
	if _, err := ins.CanonicalJSON(); !errors.Is(err, ErrInvalidPayload) {
		t.Fatalf("expected ErrInvalidPayload for missing class, got %v", err)
	}
	ins = Instruction{Recipient: "drop1xyz", Class: "relic", ChainID: testChainID, Deadline: 1}
	if _, err := ins.CanonicalJSON(); !errors.Is(err, ErrInvalidPayload) {
		t.Fatalf("expected ErrInvalidPayload for missing rarity, got %v", err)
	}
	ins = Instruction{Recipient: "drop1xyz", Class: "relic", Rarity: "epic", ChainID: 0, Deadline: 1}
	if _, err := ins.CanonicalJSON(); !errors.Is(err, ErrInvalidPayload) {
		t.Fatalf("expected ErrInvalidPayload for zero chain id, got %v", err)
	}
}

func TestDigestBindsAllFields(t *testing.T) {
	recipient := newRecipient(t)
	base := Instruction{
		Recipient: recipient.String(),
		Class:     "relic",
		Rarity:    "epic",
		ItemID:    1,
		Nonce:     0,
		Deadline:  100,
		ChainID:   testChainID,
	}
	baseDigest, err := base.Digest()
	if err != nil {
		t.Fatalf("digest: %v", err)
	}
	variants := []Instruction{
		{Recipient: recipient.String(), Class: "totem", Rarity: "epic", ItemID: 1, Nonce: 0, Deadline: 100, ChainID: testChainID},
		{Recipient: recipient.String(), Class: "relic", Rarity: "rare", ItemID: 1, Nonce: 0, Deadline: 100, ChainID: testChainID},
		{Recipient: recipient.String(), Class: "relic", Rarity: "epic", ItemID: 2, Nonce: 0, Deadline: 100, ChainID: testChainID},
		{Recipient: recipient.String(), Class: "relic", Rarity: "epic", ItemID: 1, Nonce: 1, Deadline: 100, ChainID: testChainID},
		{Recipient: recipient.String(), Class: "relic", Rarity: "epic", ItemID: 1, Nonce: 0, Deadline: 101, ChainID: testChainID},
		{Recipient: recipient.String(), Class: "relic", Rarity: "epic", ItemID: 1, Nonce: 0, Deadline: 100, ChainID: testChainID + 1},
	}
	for i, variant := range variants {
		digest, err := variant.Digest()
		if err != nil {
			t.Fatalf("variant %d digest: %v", i, err)
		}
		if string(digest) == string(baseDigest) {
			t.Fatalf("variant %d must produce a distinct digest", i)
		}
	}
}
