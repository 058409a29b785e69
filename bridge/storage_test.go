package bridge

import (
	"errors"
	"fmt"
	"path/filepath"
	"sync"
	"testing"

	"github.com/MeteorsLiu/kvbridge/adapter"
	"github.com/MeteorsLiu/kvbridge/storage/boltdb"
	"github.com/MeteorsLiu/kvbridge/storage/memory"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type delivery struct {
	id  string
	env adapter.Envelope
}

type recorder struct {
	mu   sync.Mutex
	sent []delivery
}

func (r *recorder) PerformCallback(id string, env adapter.Envelope) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sent = append(r.sent, delivery{id, env})
}

func (r *recorder) last(t *testing.T, id string) adapter.Envelope {
	t.Helper()
	r.mu.Lock()
	defer r.mu.Unlock()
	require.NotEmpty(t, r.sent)
	d := r.sent[len(r.sent)-1]
	require.Equal(t, id, d.id)
	return d.env
}

// failingStore rejects every write the way a full browser store does.
type failingStore struct {
	*memory.Memory
}

func (failingStore) SetItem(string, string) error {
	return errors.New("QuotaExceededError")
}

// positionalStore hides memory.Memory's Keys so enumeration goes through Key(i).
type positionalStore struct {
	m *memory.Memory
}

func (p positionalStore) SetItem(k, v string) error       { return p.m.SetItem(k, v) }
func (p positionalStore) GetItem(k string) (string, bool) { return p.m.GetItem(k) }
func (p positionalStore) RemoveItem(k string)             { p.m.RemoveItem(k) }
func (p positionalStore) Length() int                     { return p.m.Length() }
func (p positionalStore) Key(i int) (string, bool)        { return p.m.Key(i) }
func (p positionalStore) Close() error                    { return p.m.Close() }

var (
	successUndefined = adapter.Envelope{Result: adapter.Success, Data: adapter.Undefined}
	failedUndefined  = adapter.Envelope{Result: adapter.Failed, Data: adapter.Undefined}
)

func newTestStorage(store adapter.Store, opts ...Option) (*Storage, *recorder) {
	rec := &recorder{}
	return New(store, rec, opts...), rec
}

func TestScenario(t *testing.T) {
	backends := []struct {
		name string
		open func(t *testing.T) adapter.Store
	}{
		{"memory", func(t *testing.T) adapter.Store { return memory.New() }},
		{"bolt", func(t *testing.T) adapter.Store {
			db, err := boltdb.NewBoltDB(filepath.Join(t.TempDir(), "s.db"))
			require.NoError(t, err)
			t.Cleanup(func() { db.Close() })
			return db
		}},
	}
	for _, b := range backends {
		t.Run(b.name, func(t *testing.T) {
			s, rec := newTestStorage(b.open(t))

			s.SetItem("a", "1", "cb1")
			assert.Equal(t, successUndefined, rec.last(t, "cb1"))
			s.SetItem("b", "2", "cb2")
			assert.Equal(t, successUndefined, rec.last(t, "cb2"))
			s.Length("cb3")
			assert.Equal(t, adapter.Envelope{Result: adapter.Success, Data: 2}, rec.last(t, "cb3"))
			s.GetAllKeys("cb4")
			assert.Equal(t, adapter.Envelope{Result: adapter.Success, Data: []string{"a", "b"}}, rec.last(t, "cb4"))
			s.RemoveItem("a", "cb5")
			assert.Equal(t, successUndefined, rec.last(t, "cb5"))
			s.GetItem("a", "cb6")
			assert.Equal(t, failedUndefined, rec.last(t, "cb6"))

			assert.Len(t, rec.sent, 6)
		})
	}
}

func TestSetThenGet(t *testing.T) {
	s, rec := newTestStorage(memory.New())
	for i := 0; i < 20; i++ {
		k, v := fmt.Sprintf("key-%d", i), fmt.Sprintf("value %d", i)
		env, delivered := s.SetItem(k, v, "set")
		require.True(t, delivered)
		require.Equal(t, successUndefined, env)

		s.GetItem(k, "get")
		assert.Equal(t, adapter.Envelope{Result: adapter.Success, Data: v}, rec.last(t, "get"))
	}
}

func TestSetItemInvalidParam(t *testing.T) {
	store := memory.New()
	s, rec := newTestStorage(store)
	invalid := adapter.Envelope{Result: adapter.InvalidParam, Data: adapter.Undefined}

	s.SetItem("", "v", "cb")
	assert.Equal(t, invalid, rec.last(t, "cb"))
	s.SetItem("k", "", "cb")
	assert.Equal(t, invalid, rec.last(t, "cb"))
	assert.Equal(t, 0, store.Length())
}

func TestSetItemStoreFailure(t *testing.T) {
	s, rec := newTestStorage(failingStore{memory.New()})
	s.SetItem("k", "v", "cb")
	assert.Equal(t, failedUndefined, rec.last(t, "cb"))
}

func TestSetItemQuota(t *testing.T) {
	s, rec := newTestStorage(memory.New(memory.WithQuota(4)))
	s.SetItem("ab", "cd", "cb")
	assert.Equal(t, successUndefined, rec.last(t, "cb"))
	s.SetItem("e", "f", "cb")
	assert.Equal(t, failedUndefined, rec.last(t, "cb"))
}

func TestGetItem(t *testing.T) {
	store := memory.New()
	s, rec := newTestStorage(store)

	s.GetItem("", "cb")
	assert.Equal(t, adapter.Envelope{Result: adapter.Failed, Data: adapter.InvalidParamData}, rec.last(t, "cb"))

	s.GetItem("missing-key", "cb")
	assert.Equal(t, failedUndefined, rec.last(t, "cb"))

	// an empty value written behind the bridge's back reads as absent
	require.NoError(t, store.SetItem("empty", ""))
	s.GetItem("empty", "cb")
	assert.Equal(t, failedUndefined, rec.last(t, "cb"))
}

func TestRemoveItem(t *testing.T) {
	store := memory.New()
	s, rec := newTestStorage(store)

	s.RemoveItem("", "cb")
	assert.Equal(t, adapter.Envelope{Result: adapter.Failed, Data: adapter.InvalidParamData}, rec.last(t, "cb"))

	s.RemoveItem("never-set", "cb")
	assert.Equal(t, successUndefined, rec.last(t, "cb"))

	s.SetItem("k", "v", "cb")
	s.SetItem("other", "v", "cb")
	s.RemoveItem("k", "cb")
	assert.Equal(t, successUndefined, rec.last(t, "cb"))
	assert.Equal(t, 1, store.Length())
	s.GetItem("k", "cb")
	assert.Equal(t, failedUndefined, rec.last(t, "cb"))
}

func TestLengthTracksWrites(t *testing.T) {
	s, rec := newTestStorage(memory.New())
	length := func() int {
		s.Length("len")
		n, ok := rec.last(t, "len").Count()
		require.True(t, ok)
		return n
	}

	require.Equal(t, 0, length())
	s.SetItem("a", "1", "cb")
	require.Equal(t, 1, length())
	s.SetItem("a", "2", "cb")
	require.Equal(t, 1, length())
	s.SetItem("b", "1", "cb")
	require.Equal(t, 2, length())
	s.RemoveItem("a", "cb")
	require.Equal(t, 1, length())
}

func TestGetAllKeysMatchesLength(t *testing.T) {
	fast, fastRec := newTestStorage(memory.New())
	m := memory.New()
	slow, slowRec := newTestStorage(positionalStore{m})

	for _, k := range []string{"x", "b", "a", "c"} {
		fast.SetItem(k, "v", "cb")
		slow.SetItem(k, "v", "cb")
	}
	fast.RemoveItem("b", "cb")
	slow.RemoveItem("b", "cb")

	fast.GetAllKeys("keys")
	slow.GetAllKeys("keys")
	fastKeys, ok := fastRec.last(t, "keys").Keys()
	require.True(t, ok)
	slowKeys, ok := slowRec.last(t, "keys").Keys()
	require.True(t, ok)

	assert.Equal(t, []string{"x", "a", "c"}, fastKeys)
	assert.Equal(t, fastKeys, slowKeys)
	assert.Len(t, slowKeys, m.Length())
}

func TestGetAllKeysEmpty(t *testing.T) {
	s, rec := newTestStorage(memory.New())
	s.GetAllKeys("cb")
	assert.Equal(t, adapter.Envelope{Result: adapter.Success, Data: []string{}}, rec.last(t, "cb"))
}

func TestUnavailableDropsCommand(t *testing.T) {
	absent := adapter.CapabilityFunc(func() bool { return false })
	s, rec := newTestStorage(memory.New(), WithCapability(absent))

	ops := []func() (adapter.Envelope, bool){
		func() (adapter.Envelope, bool) { return s.SetItem("k", "v", "cb") },
		func() (adapter.Envelope, bool) { return s.GetItem("k", "cb") },
		func() (adapter.Envelope, bool) { return s.RemoveItem("k", "cb") },
		func() (adapter.Envelope, bool) { return s.Length("cb") },
		func() (adapter.Envelope, bool) { return s.GetAllKeys("cb") },
	}
	for _, op := range ops {
		_, delivered := op()
		assert.False(t, delivered)
	}
	assert.Empty(t, rec.sent)
}

func TestNilStoreIsUnavailable(t *testing.T) {
	s, rec := newTestStorage(nil)
	_, delivered := s.Length("cb")
	assert.False(t, delivered)
	assert.Empty(t, rec.sent)
}

func TestUnavailableOutcome(t *testing.T) {
	absent := adapter.CapabilityFunc(func() bool { return false })
	s, rec := newTestStorage(memory.New(), WithCapability(absent), WithUnavailableOutcome())

	env, delivered := s.SetItem("k", "v", "cb")
	require.True(t, delivered)
	want := adapter.Envelope{Result: adapter.Unavailable, Data: adapter.Undefined}
	assert.Equal(t, want, env)
	assert.Equal(t, want, rec.last(t, "cb"))
	assert.Len(t, rec.sent, 1)
}

func TestCapabilityQueriedPerCall(t *testing.T) {
	up := true
	s, rec := newTestStorage(memory.New(), WithCapability(adapter.CapabilityFunc(func() bool { return up })))

	_, delivered := s.Length("cb")
	require.True(t, delivered)
	up = false
	_, delivered = s.Length("cb")
	require.False(t, delivered)
	assert.Len(t, rec.sent, 1)
}
