package catalog

import "fmt"

// KV is the narrow slice of the state manager the catalog engine needs.
type KV interface {
	KVPut(key []byte, value interface{}) error
	KVGet(key []byte, out interface{}) (bool, error)
}

// Engine manages the append-only template store and per-group quotas. Templates
// are immutable once appended so finalized sequences can reference them by
// index forever.
type Engine struct {
	state KV
}

func NewEngine(state KV) *Engine {
	return &Engine{state: state}
}

func (e *Engine) loadGroup(group GroupKey) ([]ItemTemplate, error) {
	var templates []ItemTemplate
	if _, err := e.state.KVGet(groupKeyBytes(group), &templates); err != nil {
		return nil, err
	}
	return templates, nil
}

// Append adds templates to the end of a group and returns the indices they were
// assigned, monotonically increasing from the group's prior length. There is no
// delete or mutate counterpart.
func (e *Engine) Append(group GroupKey, templates []ItemTemplate) ([]uint64, error) {
	if !group.Valid() {
		return nil, ErrInvalidGroup
	}
	if len(templates) == 0 {
		return nil, ErrNoTemplates
	}
	group = group.Normalize()
	existing, err := e.loadGroup(group)
	if err != nil {
		return nil, err
	}
	indices := make([]uint64, len(templates))
	for i, tpl := range templates {
		indices[i] = uint64(len(existing)) + uint64(i)
		copied := ItemTemplate{
			ID:      tpl.ID,
			Payload: append([]byte(nil), tpl.Payload...),
			Tags:    append([]string(nil), tpl.Tags...),
		}
		existing = append(existing, copied)
	}
	if err := e.state.KVPut(groupKeyBytes(group), existing); err != nil {
		return nil, err
	}
	return indices, nil
}

// Get resolves a single template by its group-local index.
func (e *Engine) Get(group GroupKey, index uint64) (ItemTemplate, error) {
	if !group.Valid() {
		return ItemTemplate{}, ErrInvalidGroup
	}
	group = group.Normalize()
	templates, err := e.loadGroup(group)
	if err != nil {
		return ItemTemplate{}, err
	}
	if index >= uint64(len(templates)) {
		return ItemTemplate{}, fmt.Errorf("%w: index %d length %d", ErrIndexOutOfRange, index, len(templates))
	}
	return templates[index], nil
}

// Length returns the number of templates stored for the group.
func (e *Engine) Length(group GroupKey) (uint64, error) {
	if !group.Valid() {
		return 0, ErrInvalidGroup
	}
	group = group.Normalize()
	templates, err := e.loadGroup(group)
	if err != nil {
		return 0, err
	}
	return uint64(len(templates)), nil
}

// SetQuota configures the mint cap for a group. The minted counter carries over
// so reconfiguring a live group cannot reset its bookkeeping.
func (e *Engine) SetQuota(group GroupKey, total uint64, limited bool) error {
	if !group.Valid() {
		return ErrInvalidGroup
	}
	group = group.Normalize()
	quota, err := e.Quota(group)
	if err != nil {
		return err
	}
	quota.Total = total
	quota.Limited = limited
	return e.state.KVPut(quotaKeyBytes(group), quota)
}

// Quota returns the quota record for a group. Groups without a configured quota
// report an unlimited zero record.
func (e *Engine) Quota(group GroupKey) (Quota, error) {
	if !group.Valid() {
		return Quota{}, ErrInvalidGroup
	}
	group = group.Normalize()
	var quota Quota
	if _, err := e.state.KVGet(quotaKeyBytes(group), &quota); err != nil {
		return Quota{}, err
	}
	return quota, nil
}

// ConsumeQuota increments the minted counter by count, failing with
// ErrQuotaExhausted when a limited group lacks the remaining capacity. The
// counter is advanced even for unlimited groups so audits can track volume.
func (e *Engine) ConsumeQuota(group GroupKey, count uint64) error {
	if !group.Valid() {
		return ErrInvalidGroup
	}
	if count == 0 {
		return nil
	}
	group = group.Normalize()
	quota, err := e.Quota(group)
	if err != nil {
		return err
	}
	if quota.Limited && quota.Remaining() < count {
		return fmt.Errorf("%w: requested %d remaining %d", ErrQuotaExhausted, count, quota.Remaining())
	}
	quota.Minted += count
	return e.state.KVPut(quotaKeyBytes(group), quota)
}
