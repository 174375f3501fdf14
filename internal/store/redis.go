package store

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"sort"
	"strconv"

	"github.com/go-redis/redis/v8"
	"github.com/sasha-s/go-deadlock"
)

// Redis is a shared Store backend.
//
// Writes made inside Update are buffered in an overlay and applied with a
// single MULTI/EXEC when fn succeeds, so a failed step writes nothing.
// Reads go through the overlay first. Only one process may write under a
// given prefix; the mutex serializes steps within that process.
type Redis struct {
	client *redis.Client
	prefix string
	mu     deadlock.RWMutex
}

var _ Store = (*Redis)(nil)

// NewRedis wraps an existing client. Keys are namespaced under prefix.
func NewRedis(client *redis.Client, prefix string) *Redis {
	if prefix == "" {
		prefix = "tiplink"
	}
	return &Redis{client: client, prefix: prefix}
}

// OpenRedis connects to addr and verifies the connection.
func OpenRedis(ctx context.Context, addr, prefix string) (*Redis, error) {
	client := redis.NewClient(&redis.Options{Addr: addr})
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to connect to redis at %s: %w", addr, err)
	}
	return NewRedis(client, prefix), nil
}

// Close closes the client.
func (r *Redis) Close() error {
	return r.client.Close()
}

// Update runs fn and applies its buffered writes atomically.
func (r *Redis) Update(ctx context.Context, fn func(tx Tx) error) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	tx := newRedisTx(r, false)
	if err := fn(tx); err != nil {
		return err
	}
	if len(tx.ops) == 0 {
		return nil
	}
	_, err := r.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		for _, op := range tx.ops {
			op(ctx, pipe)
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("redis exec: %w", err)
	}
	return nil
}

// View runs fn with writes refused.
func (r *Redis) View(ctx context.Context, fn func(tx Tx) error) error {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return fn(newRedisTx(r, true))
}

func (r *Redis) scalarKey(key string) string { return r.prefix + ":scalar:" + key }
func (r *Redis) mapKey(m string) string      { return r.prefix + ":map:" + m }
func (r *Redis) setKey(s string) string      { return r.prefix + ":set:" + s }
func (r *Redis) logKey(l string) string      { return r.prefix + ":log:" + l }

type pipeOp func(ctx context.Context, pipe redis.Pipeliner)

type mapOverlay struct {
	cleared bool
	puts    map[string][]byte
	deletes map[string]bool
}

type logOverlay struct {
	base     uint64
	appended [][]byte
}

type redisTx struct {
	r        *Redis
	readOnly bool
	ops      []pipeOp

	scalars map[string][]byte
	maps    map[string]*mapOverlay
	sets    map[string]map[uint64]bool // true = added, false = removed
	logs    map[string]*logOverlay
}

func newRedisTx(r *Redis, readOnly bool) *redisTx {
	return &redisTx{
		r:        r,
		readOnly: readOnly,
		scalars:  make(map[string][]byte),
		maps:     make(map[string]*mapOverlay),
		sets:     make(map[string]map[uint64]bool),
		logs:     make(map[string]*logOverlay),
	}
}

func (t *redisTx) writable() error {
	if t.readOnly {
		return ErrReadOnly
	}
	return nil
}

func (t *redisTx) Get(ctx context.Context, key string) ([]byte, bool, error) {
	if v, ok := t.scalars[key]; ok {
		return slices.Clone(v), true, nil
	}
	v, err := t.r.client.Get(ctx, t.r.scalarKey(key)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("get %q: %w", key, err)
	}
	return v, true, nil
}

func (t *redisTx) Put(_ context.Context, key string, value []byte) error {
	if err := t.writable(); err != nil {
		return err
	}
	v := slices.Clone(value)
	t.scalars[key] = v
	rk := t.r.scalarKey(key)
	t.ops = append(t.ops, func(ctx context.Context, pipe redis.Pipeliner) {
		pipe.Set(ctx, rk, v, 0)
	})
	return nil
}

func (t *redisTx) mapFor(m string) *mapOverlay {
	o, ok := t.maps[m]
	if !ok {
		o = &mapOverlay{puts: make(map[string][]byte), deletes: make(map[string]bool)}
		t.maps[m] = o
	}
	return o
}

func (t *redisTx) MapGet(ctx context.Context, m, key string) ([]byte, bool, error) {
	if o, ok := t.maps[m]; ok {
		if v, ok := o.puts[key]; ok {
			return slices.Clone(v), true, nil
		}
		if o.cleared || o.deletes[key] {
			return nil, false, nil
		}
	}
	v, err := t.r.client.HGet(ctx, t.r.mapKey(m), key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("map get %s[%q]: %w", m, key, err)
	}
	return v, true, nil
}

func (t *redisTx) MapPut(_ context.Context, m, key string, value []byte) error {
	if err := t.writable(); err != nil {
		return err
	}
	o := t.mapFor(m)
	v := slices.Clone(value)
	o.puts[key] = v
	delete(o.deletes, key)
	rk := t.r.mapKey(m)
	t.ops = append(t.ops, func(ctx context.Context, pipe redis.Pipeliner) {
		pipe.HSet(ctx, rk, key, v)
	})
	return nil
}

func (t *redisTx) MapDelete(_ context.Context, m, key string) error {
	if err := t.writable(); err != nil {
		return err
	}
	o := t.mapFor(m)
	delete(o.puts, key)
	o.deletes[key] = true
	rk := t.r.mapKey(m)
	t.ops = append(t.ops, func(ctx context.Context, pipe redis.Pipeliner) {
		pipe.HDel(ctx, rk, key)
	})
	return nil
}

func (t *redisTx) MapClear(_ context.Context, m string) error {
	if err := t.writable(); err != nil {
		return err
	}
	t.maps[m] = &mapOverlay{cleared: true, puts: make(map[string][]byte), deletes: make(map[string]bool)}
	rk := t.r.mapKey(m)
	t.ops = append(t.ops, func(ctx context.Context, pipe redis.Pipeliner) {
		pipe.Del(ctx, rk)
	})
	return nil
}

func (t *redisTx) MapRange(ctx context.Context, m string, fn func(key string, value []byte) error) error {
	entries := make(map[string][]byte)
	o := t.maps[m]
	if o == nil || !o.cleared {
		all, err := t.r.client.HGetAll(ctx, t.r.mapKey(m)).Result()
		if err != nil {
			return fmt.Errorf("map range %s: %w", m, err)
		}
		for k, v := range all {
			entries[k] = []byte(v)
		}
	}
	if o != nil {
		for k := range o.deletes {
			delete(entries, k)
		}
		for k, v := range o.puts {
			entries[k] = slices.Clone(v)
		}
	}

	keys := make([]string, 0, len(entries))
	for k := range entries {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		if err := fn(k, entries[k]); err != nil {
			return err
		}
	}
	return nil
}

func (t *redisTx) setFor(s string) map[uint64]bool {
	o, ok := t.sets[s]
	if !ok {
		o = make(map[uint64]bool)
		t.sets[s] = o
	}
	return o
}

func (t *redisTx) SetAdd(_ context.Context, s string, member uint64) error {
	if err := t.writable(); err != nil {
		return err
	}
	t.setFor(s)[member] = true
	rk := t.r.setKey(s)
	t.ops = append(t.ops, func(ctx context.Context, pipe redis.Pipeliner) {
		pipe.SAdd(ctx, rk, FormatIndex(member))
	})
	return nil
}

func (t *redisTx) SetRemove(_ context.Context, s string, member uint64) error {
	if err := t.writable(); err != nil {
		return err
	}
	t.setFor(s)[member] = false
	rk := t.r.setKey(s)
	t.ops = append(t.ops, func(ctx context.Context, pipe redis.Pipeliner) {
		pipe.SRem(ctx, rk, FormatIndex(member))
	})
	return nil
}

func (t *redisTx) SetContains(ctx context.Context, s string, member uint64) (bool, error) {
	if present, ok := t.sets[s][member]; ok {
		return present, nil
	}
	ok, err := t.r.client.SIsMember(ctx, t.r.setKey(s), FormatIndex(member)).Result()
	if err != nil {
		return false, fmt.Errorf("set contains %s{%d}: %w", s, member, err)
	}
	return ok, nil
}

func (t *redisTx) SetMembers(ctx context.Context, s string) ([]uint64, error) {
	raw, err := t.r.client.SMembers(ctx, t.r.setKey(s)).Result()
	if err != nil {
		return nil, fmt.Errorf("set members %s: %w", s, err)
	}
	members := make(map[uint64]bool, len(raw))
	for _, m := range raw {
		n, err := strconv.ParseUint(m, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("set members %s: bad member %q: %w", s, m, err)
		}
		members[n] = true
	}
	for n, present := range t.sets[s] {
		if present {
			members[n] = true
		} else {
			delete(members, n)
		}
	}
	out := make([]uint64, 0, len(members))
	for n := range members {
		out = append(out, n)
	}
	slices.Sort(out)
	return out, nil
}

func (t *redisTx) logFor(ctx context.Context, l string) (*logOverlay, error) {
	if o, ok := t.logs[l]; ok {
		return o, nil
	}
	n, err := t.r.client.LLen(ctx, t.r.logKey(l)).Result()
	if err != nil {
		return nil, fmt.Errorf("log len %s: %w", l, err)
	}
	o := &logOverlay{base: uint64(n)}
	t.logs[l] = o
	return o, nil
}

func (t *redisTx) LogAppend(ctx context.Context, l string, entry []byte) (uint64, error) {
	if err := t.writable(); err != nil {
		return 0, err
	}
	o, err := t.logFor(ctx, l)
	if err != nil {
		return 0, err
	}
	idx := o.base + uint64(len(o.appended))
	v := slices.Clone(entry)
	o.appended = append(o.appended, v)
	rk := t.r.logKey(l)
	t.ops = append(t.ops, func(ctx context.Context, pipe redis.Pipeliner) {
		pipe.RPush(ctx, rk, v)
	})
	return idx, nil
}

func (t *redisTx) LogGet(ctx context.Context, l string, index uint64) ([]byte, bool, error) {
	o, err := t.logFor(ctx, l)
	if err != nil {
		return nil, false, err
	}
	if index >= o.base {
		rel := index - o.base
		if rel >= uint64(len(o.appended)) {
			return nil, false, nil
		}
		return slices.Clone(o.appended[rel]), true, nil
	}
	v, err := t.r.client.LIndex(ctx, t.r.logKey(l), int64(index)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("log get %s[%d]: %w", l, index, err)
	}
	return v, true, nil
}

func (t *redisTx) LogLen(ctx context.Context, l string) (uint64, error) {
	o, err := t.logFor(ctx, l)
	if err != nil {
		return 0, err
	}
	return o.base + uint64(len(o.appended)), nil
}
