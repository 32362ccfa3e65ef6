package nn

import (
	"sync"
)

// ForwardEvent is passed to forward hooks after a layer has produced its output
type ForwardEvent struct {
	LayerIdx int
	Layer    string
	Input    []float32
	Output   []float32
}

// BackwardEvent is passed to backward hooks after a layer has computed the
// gradient with respect to its input.
type BackwardEvent struct {
	LayerIdx   int
	Layer      string
	Input      []float32 // forward input of the layer
	Output     []float32 // forward output of the layer
	GradOutput []float32 // gradient arriving at the layer output
	GradInput  []float32 // gradient leaving toward the layer input
}

// ForwardHook may return a replacement output; nil keeps the current one.
type ForwardHook func(ev *ForwardEvent) []float32

// BackwardHook may return a replacement input gradient; nil keeps the current one.
type BackwardHook func(ev *BackwardEvent) []float32

// Hooks is the set of callbacks one manager keeps on one layer. Fused runs
// only on conv and dense layers, before the kernel: its event carries the
// gradient at the pre-activation in GradInput, and a non-nil return
// replaces that gradient.
type Hooks struct {
	Forward  ForwardHook
	Fused    BackwardHook
	Backward BackwardHook
}

// HookHandle identifies one attached hook set
type HookHandle struct {
	owner uint64
	layer int
	seq   uint64
}

// Layer returns the forward index the handle is attached to, or -1
func (h HookHandle) Layer() int {
	if h.seq == 0 {
		return -1
	}
	return h.layer
}

type hookEntry struct {
	owner    uint64
	seq      uint64
	forward  ForwardHook
	fused    BackwardHook
	backward BackwardHook
}

// hookTable is the network's interception table: per layer, the hook sets in
// attach order. The forward and backward passes consult it at every layer.
type hookTable struct {
	mu        sync.Mutex
	entries   map[int][]*hookEntry
	nextOwner uint64
	nextSeq   uint64
}

func newHookTable() *hookTable {
	return &hookTable{entries: make(map[int][]*hookEntry)}
}

func (t *hookTable) newOwner() uint64 {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.nextOwner++
	return t.nextOwner
}

// set installs or replaces the owner's hook set at layer
func (t *hookTable) set(owner uint64, layer int, hooks Hooks) HookHandle {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.nextSeq++
	for _, e := range t.entries[layer] {
		if e.owner == owner {
			e.seq = t.nextSeq
			e.forward = hooks.Forward
			e.fused = hooks.Fused
			e.backward = hooks.Backward
			return HookHandle{owner: owner, layer: layer, seq: e.seq}
		}
	}
	t.entries[layer] = append(t.entries[layer], &hookEntry{
		owner:    owner,
		seq:      t.nextSeq,
		forward:  hooks.Forward,
		fused:    hooks.Fused,
		backward: hooks.Backward,
	})
	return HookHandle{owner: owner, layer: layer, seq: t.nextSeq}
}

// remove deletes the entry matching h; stale or unknown handles are ignored
func (t *hookTable) remove(h HookHandle) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	list := t.entries[h.layer]
	for i, e := range list {
		if e.owner == h.owner && e.seq == h.seq {
			list = append(list[:i], list[i+1:]...)
			if len(list) == 0 {
				delete(t.entries, h.layer)
			} else {
				t.entries[h.layer] = list
			}
			return true
		}
	}
	return false
}

func (t *hookTable) snapshot(layer int) []hookEntry {
	t.mu.Lock()
	defer t.mu.Unlock()
	list := t.entries[layer]
	if len(list) == 0 {
		return nil
	}
	out := make([]hookEntry, len(list))
	for i, e := range list {
		out[i] = *e
	}
	return out
}

func (t *hookTable) count() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	total := 0
	for _, list := range t.entries {
		total += len(list)
	}
	return total
}

func (t *hookTable) countAt(layer int) int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.entries[layer])
}

// HookCount returns the number of hook sets currently attached to the network
func (n *Network) HookCount() int {
	return n.hooks.count()
}

// HooksAt returns the number of hook sets attached to layer idx
func (n *Network) HooksAt(idx int) int {
	return n.hooks.countAt(idx)
}

// HookManager owns a set of hooks on one network. Each manager holds at most
// one Hooks set per layer; attaching to a layer again replaces the previous set.
type HookManager struct {
	net     *Network
	owner   uint64
	handles map[int]HookHandle
}

// NewHookManager returns an empty manager bound to n
func (n *Network) NewHookManager() *HookManager {
	return &HookManager{
		net:     n,
		owner:   n.hooks.newOwner(),
		handles: make(map[int]HookHandle),
	}
}

// Attach installs fwd and bwd (either may be nil) on the layer at idx.
// An out-of-range index yields a zero handle and installs nothing.
func (m *HookManager) Attach(idx int, fwd ForwardHook, bwd BackwardHook) HookHandle {
	return m.AttachSet(idx, Hooks{Forward: fwd, Backward: bwd})
}

// AttachSet is Attach with a full hook set
func (m *HookManager) AttachSet(idx int, hooks Hooks) HookHandle {
	if idx < 0 || idx >= len(m.net.Layers) {
		return HookHandle{layer: -1}
	}
	h := m.net.hooks.set(m.owner, idx, hooks)
	m.handles[idx] = h
	return h
}

// Detach removes the hook set behind h. Repeated or stale handles are no-ops.
func (m *HookManager) Detach(h HookHandle) {
	if h.seq == 0 || h.owner != m.owner {
		return
	}
	m.net.hooks.remove(h)
	if cur, ok := m.handles[h.layer]; ok && cur == h {
		delete(m.handles, h.layer)
	}
}

// DetachAll removes every hook set this manager attached
func (m *HookManager) DetachAll() {
	for layer, h := range m.handles {
		m.net.hooks.remove(h)
		delete(m.handles, layer)
	}
}

// Len returns the number of layers this manager currently has hooks on
func (m *HookManager) Len() int {
	return len(m.handles)
}
