package channel

import (
	"sync"

	"github.com/veilmesh/torchan/pkg/padding"
)

// ParamsUpdate carries the subset of ChannelsParams that changed. Fields
// left nil were unaffected by the update that produced it.
type ParamsUpdate struct {
	PaddingParameters *padding.Parameters
}

// ChannelsParams is the cluster of parameters every live channel agrees
// on. It is mutated only through StartUpdate, which yields a diff exactly
// when the effective value changed — the fan-out shortcut that lets
// ReconfigureGeneral skip pushing to every channel when nothing moved.
type ChannelsParams struct {
	mu      sync.Mutex
	padding padding.Parameters
}

// NewChannelsParams returns a ChannelsParams with padding disabled, the
// conservative starting point before any consensus has been applied.
func NewChannelsParams() *ChannelsParams {
	return &ChannelsParams{padding: padding.AllZeroes()}
}

// Snapshot returns the current padding parameters. Used by
// Map.ReplaceWithParams, which must hand a caller-supplied builder a
// consistent view of the params in effect at the moment it derives a new
// transport, since params can otherwise change between lock release and
// channel attachment.
func (p *ChannelsParams) Snapshot() padding.Parameters {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.padding
}

// ParamsUpdateBuilder accumulates proposed changes before Finish commits
// them.
type ParamsUpdateBuilder struct {
	target  *ChannelsParams
	padding *padding.Parameters
}

// StartUpdate begins a new builder-style update.
func (p *ChannelsParams) StartUpdate() *ParamsUpdateBuilder {
	return &ParamsUpdateBuilder{target: p}
}

// PaddingParameters proposes a new padding parameter value.
func (b *ParamsUpdateBuilder) PaddingParameters(p padding.Parameters) *ParamsUpdateBuilder {
	b.padding = &p
	return b
}

// Finish applies the proposed changes under the params lock and returns the
// diff, or nil if nothing proposed actually differs from the current
// value.
func (b *ParamsUpdateBuilder) Finish() *ParamsUpdate {
	b.target.mu.Lock()
	defer b.target.mu.Unlock()

	var update ParamsUpdate
	changed := false

	if b.padding != nil && *b.padding != b.target.padding {
		b.target.padding = *b.padding
		update.PaddingParameters = b.padding
		changed = true
	}

	if !changed {
		return nil
	}
	return &update
}
