package core

import (
	"encoding/binary"
	"errors"
	"fmt"
	"sync"

	ethcrypto "github.com/ethereum/go-ethereum/crypto"

	"dropforge/core/catalog"
	"dropforge/core/mintauth"
	"dropforge/core/sampler"
	"dropforge/core/sequence"
	"dropforge/core/state"
	"dropforge/crypto"
	"dropforge/storage"
)

// DefaultChainID is the deployment identifier bound into every signed mint
// instruction unless the configuration overrides it.
const DefaultChainID uint64 = 90021

// ErrFallbackRequiresWeights indicates a reservation fell through to the
// weighted sampler but no table is configured for the class.
var ErrFallbackRequiresWeights = errors.New("core: fallback requires configured weights")

// Node wires the engines over one durable state store and serialises every
// state transition: each operation takes stateMu, runs to completion, and only
// then can the next begin. That single lock is what makes the engines'
// read-modify-write steps atomic at operation granularity.
type Node struct {
	db      storage.Database
	stateMu sync.Mutex

	state     *state.Manager
	catalog   *catalog.Engine
	sequence  *sequence.Engine
	sampler   *sampler.Engine
	authority *mintauth.Authority
	ledger    *mintauth.Ledger

	chainID uint64
}

// NewNode opens the state store, verifies the schema version, and constructs
// the engine set. allowMigrate tolerates a schema mismatch for manual
// migrations.
func NewNode(db storage.Database, chainID uint64, allowMigrate bool) (*Node, error) {
	if db == nil {
		return nil, fmt.Errorf("core: database must not be nil")
	}
	if chainID == 0 {
		chainID = DefaultChainID
	}
	if err := state.EnsureStateVersion(db, allowMigrate); err != nil {
		return nil, err
	}
	manager := state.NewManager(db)
	cat := catalog.NewEngine(manager)
	ledger := mintauth.NewLedger(manager)
	node := &Node{
		db:        db,
		state:     manager,
		catalog:   cat,
		sequence:  sequence.NewEngine(manager, cat),
		sampler:   sampler.NewEngine(manager),
		authority: mintauth.NewAuthority(manager, chainID, ledger),
		ledger:    ledger,
		chainID:   chainID,
	}
	return node, nil
}

// ChainID returns the deployment identifier instructions must target.
func (n *Node) ChainID() uint64 {
	return n.chainID
}

// --- Configuration operations (operator capability enforced at the API boundary) ---

func (n *Node) AppendCatalog(group catalog.GroupKey, templates []catalog.ItemTemplate) ([]uint64, error) {
	n.stateMu.Lock()
	defer n.stateMu.Unlock()
	return n.catalog.Append(group, templates)
}

func (n *Node) SetQuota(group catalog.GroupKey, total uint64, limited bool) error {
	n.stateMu.Lock()
	defer n.stateMu.Unlock()
	return n.catalog.SetQuota(group, total, limited)
}

func (n *Node) InitializeSequence(group catalog.GroupKey, expectedLength uint64) error {
	n.stateMu.Lock()
	defer n.stateMu.Unlock()
	return n.sequence.Initialize(group, expectedLength)
}

func (n *Node) AppendSequence(group catalog.GroupKey, indices []uint64) error {
	n.stateMu.Lock()
	defer n.stateMu.Unlock()
	return n.sequence.Append(group, indices)
}

func (n *Node) FinalizeSequence(group catalog.GroupKey) error {
	n.stateMu.Lock()
	defer n.stateMu.Unlock()
	return n.sequence.Finalize(group)
}

func (n *Node) ConfigureWeights(class string, buckets []sampler.Bucket) error {
	n.stateMu.Lock()
	defer n.stateMu.Unlock()
	return n.sampler.ConfigureWeights(class, buckets)
}

func (n *Node) SetMintAuthority(addr crypto.Address) error {
	n.stateMu.Lock()
	defer n.stateMu.Unlock()
	return n.authority.SetAuthority(addr)
}

// --- Consumption operations ---

// ReservationResult carries the granted window plus the already-resolved
// templates so one call covers the common reserve-and-resolve flow.
type ReservationResult struct {
	Start  uint64
	Count  uint64
	Length uint64
	Items  []catalog.ItemTemplate
}

// Reserve claims count positions from the group's finalized sequence, enforces
// the group quota, and resolves the window to templates. Quota is validated
// before any state is written so a failed reservation leaves the cursor
// untouched.
func (n *Node) Reserve(group catalog.GroupKey, count uint64) (*ReservationResult, error) {
	n.stateMu.Lock()
	defer n.stateMu.Unlock()

	quota, err := n.catalog.Quota(group)
	if err != nil {
		return nil, err
	}
	if quota.Limited && quota.Remaining() < count {
		return nil, fmt.Errorf("%w: requested %d remaining %d", catalog.ErrQuotaExhausted, count, quota.Remaining())
	}

	res, err := n.sequence.Reserve(group, count)
	if err != nil {
		return nil, err
	}
	items, err := n.sequence.Resolve(res.Group, res.Start, res.Count)
	if err != nil {
		return nil, err
	}
	if err := n.catalog.ConsumeQuota(res.Group, res.Count); err != nil {
		return nil, err
	}
	return &ReservationResult{Start: res.Start, Count: res.Count, Length: res.Length, Items: items}, nil
}

// Resolve re-resolves a previously granted window without advancing the cursor.
func (n *Node) Resolve(group catalog.GroupKey, start, count uint64) ([]catalog.ItemTemplate, error) {
	n.stateMu.Lock()
	defer n.stateMu.Unlock()
	return n.sequence.Resolve(group, start, count)
}

// FallbackDraw samples count rarity values for a class from its weight table,
// deriving per-draw entropy by hashing the caller's seed with the draw offset.
// Each sampled group's quota is consumed; a draw landing on an exhausted group
// fails the whole call with no partial bookkeeping committed beforehand.
func (n *Node) FallbackDraw(class string, seed uint64, count uint64) ([]string, error) {
	if count == 0 {
		return nil, sequence.ErrZeroCount
	}
	n.stateMu.Lock()
	defer n.stateMu.Unlock()

	rarities := make([]string, 0, count)
	for i := uint64(0); i < count; i++ {
		rarity, err := n.sampler.Sample(class, deriveRoll(seed, i))
		if err != nil {
			if errors.Is(err, sampler.ErrNoWeights) {
				return nil, fmt.Errorf("%w: class %s", ErrFallbackRequiresWeights, class)
			}
			return nil, err
		}
		rarities = append(rarities, rarity)
	}
	// Validate every quota before consuming any, so a failure commits nothing.
	perGroup := make(map[string]uint64)
	for _, rarity := range rarities {
		perGroup[rarity]++
	}
	for rarity, drawn := range perGroup {
		quota, err := n.catalog.Quota(catalog.GroupKey{Class: class, Rarity: rarity})
		if err != nil {
			return nil, err
		}
		if quota.Limited && quota.Remaining() < drawn {
			return nil, fmt.Errorf("%w: group %s/%s", catalog.ErrQuotaExhausted, class, rarity)
		}
	}
	for rarity, drawn := range perGroup {
		if err := n.catalog.ConsumeQuota(catalog.GroupKey{Class: class, Rarity: rarity}, drawn); err != nil {
			return nil, err
		}
	}
	return rarities, nil
}

// deriveRoll expands one caller-supplied seed into per-draw entropy.
func deriveRoll(seed, offset uint64) uint64 {
	var buf [16]byte
	binary.BigEndian.PutUint64(buf[:8], seed)
	binary.BigEndian.PutUint64(buf[8:], offset)
	digest := ethcrypto.Keccak256(buf[:])
	return binary.BigEndian.Uint64(digest[:8])
}

// --- Delegated-mint operations ---

// SubmitMintInstruction enforces the group quota around the authority's
// verification ladder: capacity is validated before the ladder runs, so an
// exhausted quota rejects the instruction without consuming its nonce or
// digest, and Minted is incremented only after the instruction executes.
func (n *Node) SubmitMintInstruction(ins mintauth.Instruction, sig []byte) ([]byte, error) {
	n.stateMu.Lock()
	defer n.stateMu.Unlock()

	group := catalog.GroupKey{Class: ins.Class, Rarity: ins.Rarity}
	quota, err := n.catalog.Quota(group)
	if err != nil {
		return nil, err
	}
	if quota.Limited && quota.Remaining() < 1 {
		return nil, fmt.Errorf("%w: group %s", catalog.ErrQuotaExhausted, group)
	}

	digest, err := n.authority.SubmitInstruction(ins, sig)
	if err != nil {
		return digest, err
	}
	if err := n.catalog.ConsumeQuota(group, 1); err != nil {
		return digest, err
	}
	return digest, nil
}

func (n *Node) MintNonce(recipient crypto.Address) (uint64, error) {
	n.stateMu.Lock()
	defer n.stateMu.Unlock()
	return n.authority.CurrentNonce(recipient)
}

func (n *Node) IsSignatureUsed(digest []byte) (bool, error) {
	n.stateMu.Lock()
	defer n.stateMu.Unlock()
	return n.authority.IsDigestUsed(digest)
}

func (n *Node) MintedItems(recipient crypto.Address) ([]uint64, error) {
	n.stateMu.Lock()
	defer n.stateMu.Unlock()
	return n.ledger.MintedItems(recipient)
}

func (n *Node) MintAuthority() (crypto.Address, bool, error) {
	n.stateMu.Lock()
	defer n.stateMu.Unlock()
	return n.authority.AuthorityAddress()
}

// --- Read-only queries ---

func (n *Node) CatalogLength(group catalog.GroupKey) (uint64, error) {
	n.stateMu.Lock()
	defer n.stateMu.Unlock()
	return n.catalog.Length(group)
}

func (n *Node) CatalogItem(group catalog.GroupKey, index uint64) (catalog.ItemTemplate, error) {
	n.stateMu.Lock()
	defer n.stateMu.Unlock()
	return n.catalog.Get(group, index)
}

func (n *Node) Quota(group catalog.GroupKey) (catalog.Quota, error) {
	n.stateMu.Lock()
	defer n.stateMu.Unlock()
	return n.catalog.Quota(group)
}

func (n *Node) SequenceStatus(group catalog.GroupKey) (sequence.Cursor, bool, error) {
	n.stateMu.Lock()
	defer n.stateMu.Unlock()
	return n.sequence.Status(group)
}

func (n *Node) Weights(class string) ([]sampler.Bucket, error) {
	n.stateMu.Lock()
	defer n.stateMu.Unlock()
	return n.sampler.Weights(class)
}
