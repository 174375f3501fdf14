package store

import (
	"context"
	"slices"
	"sort"

	"github.com/sasha-s/go-deadlock"
)

// Memory is a volatile Store for tests, scenarios and one-shot runs.
// Each Update works on a copy of the state that replaces the original only
// when fn succeeds.
type Memory struct {
	mu     deadlock.RWMutex
	state  *memState
	closed bool
}

var _ Store = (*Memory)(nil)

type memState struct {
	scalars map[string][]byte
	maps    map[string]map[string][]byte
	sets    map[string]map[uint64]struct{}
	logs    map[string][][]byte
}

func newMemState() *memState {
	return &memState{
		scalars: make(map[string][]byte),
		maps:    make(map[string]map[string][]byte),
		sets:    make(map[string]map[uint64]struct{}),
		logs:    make(map[string][][]byte),
	}
}

// clone copies the containers. Byte slices are shared because they are
// never mutated in place once stored.
func (s *memState) clone() *memState {
	c := newMemState()
	for k, v := range s.scalars {
		c.scalars[k] = v
	}
	for name, m := range s.maps {
		cm := make(map[string][]byte, len(m))
		for k, v := range m {
			cm[k] = v
		}
		c.maps[name] = cm
	}
	for name, set := range s.sets {
		cs := make(map[uint64]struct{}, len(set))
		for k := range set {
			cs[k] = struct{}{}
		}
		c.sets[name] = cs
	}
	for name, l := range s.logs {
		c.logs[name] = slices.Clone(l)
	}
	return c
}

// NewMemory returns an empty in-memory store.
func NewMemory() *Memory {
	return &Memory{state: newMemState()}
}

// Update runs fn against a private copy and publishes it on success.
func (m *Memory) Update(ctx context.Context, fn func(tx Tx) error) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return ErrClosed
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	work := m.state.clone()
	if err := fn(&memTx{state: work}); err != nil {
		return err
	}
	m.state = work
	return nil
}

// View runs fn against the current state.
func (m *Memory) View(ctx context.Context, fn func(tx Tx) error) error {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.closed {
		return ErrClosed
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	return fn(&memTx{state: m.state, readOnly: true})
}

// Close drops the state. Later calls fail with ErrClosed.
func (m *Memory) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closed = true
	m.state = newMemState()
	return nil
}

type memTx struct {
	state    *memState
	readOnly bool
}

func (t *memTx) writable() error {
	if t.readOnly {
		return ErrReadOnly
	}
	return nil
}

func (t *memTx) Get(_ context.Context, key string) ([]byte, bool, error) {
	v, ok := t.state.scalars[key]
	return slices.Clone(v), ok, nil
}

func (t *memTx) Put(_ context.Context, key string, value []byte) error {
	if err := t.writable(); err != nil {
		return err
	}
	t.state.scalars[key] = slices.Clone(value)
	return nil
}

func (t *memTx) MapGet(_ context.Context, m, key string) ([]byte, bool, error) {
	v, ok := t.state.maps[m][key]
	return slices.Clone(v), ok, nil
}

func (t *memTx) MapPut(_ context.Context, m, key string, value []byte) error {
	if err := t.writable(); err != nil {
		return err
	}
	entries, ok := t.state.maps[m]
	if !ok {
		entries = make(map[string][]byte)
		t.state.maps[m] = entries
	}
	entries[key] = slices.Clone(value)
	return nil
}

func (t *memTx) MapDelete(_ context.Context, m, key string) error {
	if err := t.writable(); err != nil {
		return err
	}
	delete(t.state.maps[m], key)
	return nil
}

func (t *memTx) MapClear(_ context.Context, m string) error {
	if err := t.writable(); err != nil {
		return err
	}
	delete(t.state.maps, m)
	return nil
}

func (t *memTx) MapRange(_ context.Context, m string, fn func(key string, value []byte) error) error {
	entries := t.state.maps[m]
	keys := make([]string, 0, len(entries))
	for k := range entries {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		if err := fn(k, slices.Clone(entries[k])); err != nil {
			return err
		}
	}
	return nil
}

func (t *memTx) SetAdd(_ context.Context, s string, member uint64) error {
	if err := t.writable(); err != nil {
		return err
	}
	set, ok := t.state.sets[s]
	if !ok {
		set = make(map[uint64]struct{})
		t.state.sets[s] = set
	}
	set[member] = struct{}{}
	return nil
}

func (t *memTx) SetRemove(_ context.Context, s string, member uint64) error {
	if err := t.writable(); err != nil {
		return err
	}
	delete(t.state.sets[s], member)
	return nil
}

func (t *memTx) SetContains(_ context.Context, s string, member uint64) (bool, error) {
	_, ok := t.state.sets[s][member]
	return ok, nil
}

func (t *memTx) SetMembers(_ context.Context, s string) ([]uint64, error) {
	set := t.state.sets[s]
	out := make([]uint64, 0, len(set))
	for member := range set {
		out = append(out, member)
	}
	slices.Sort(out)
	return out, nil
}

func (t *memTx) LogAppend(_ context.Context, l string, entry []byte) (uint64, error) {
	if err := t.writable(); err != nil {
		return 0, err
	}
	idx := uint64(len(t.state.logs[l]))
	t.state.logs[l] = append(t.state.logs[l], slices.Clone(entry))
	return idx, nil
}

func (t *memTx) LogGet(_ context.Context, l string, index uint64) ([]byte, bool, error) {
	entries := t.state.logs[l]
	if index >= uint64(len(entries)) {
		return nil, false, nil
	}
	return slices.Clone(entries[index]), true, nil
}

func (t *memTx) LogLen(_ context.Context, l string) (uint64, error) {
	return uint64(len(t.state.logs[l])), nil
}
