package citycache

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"sort"
	"sync"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordingSuggestions struct {
	items  []string
	clears int
}

func (r *recordingSuggestions) Clear() {
	r.clears++
	r.items = nil
}

func (r *recordingSuggestions) Add(city string) {
	r.items = append(r.items, city)
}

type failingStore struct {
	getErr error
	setErr error
}

func (f *failingStore) Get(ctx context.Context, key string) (string, bool, error) {
	return "", false, f.getErr
}

func (f *failingStore) Set(ctx context.Context, key, value string) error {
	return f.setErr
}

// flakyStore wraps a MemoryStore and fails reads while getErr is set.
type flakyStore struct {
	*MemoryStore
	getErr error
}

func (f *flakyStore) Get(ctx context.Context, key string) (string, bool, error) {
	if f.getErr != nil {
		return "", false, f.getErr
	}
	return f.MemoryStore.Get(ctx, key)
}

func TestCache_LoadEmpty(t *testing.T) {
	c := New(NewMemoryStore(), nil, nil)
	got := c.Load(context.Background())
	assert.NotNil(t, got)
	assert.Empty(t, got)
}

func TestCache_LoadUnparseable(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()
	require.NoError(t, store.Set(ctx, Key, "{not json"))

	c := New(store, nil, nil)
	assert.Empty(t, c.Load(ctx))
}

func TestCache_LoadJSONNull(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()
	require.NoError(t, store.Set(ctx, Key, "null"))

	c := New(store, nil, nil)
	assert.Equal(t, []string{}, c.Load(ctx))
}

func TestCache_LoadReadError(t *testing.T) {
	c := New(&failingStore{getErr: errors.New("disk gone")}, nil, nil)
	assert.Empty(t, c.Load(context.Background()))
}

func TestCache_SaveIdempotent(t *testing.T) {
	ctx := context.Background()
	c := New(NewMemoryStore(), nil, nil)

	require.NoError(t, c.Save(ctx, "Paris"))
	require.NoError(t, c.Save(ctx, "Paris"))

	assert.Equal(t, []string{"Paris"}, c.Load(ctx))
}

func TestCache_SavePreservesOrder(t *testing.T) {
	ctx := context.Background()
	c := New(NewMemoryStore(), nil, nil)

	require.NoError(t, c.Save(ctx, "Paris"))
	require.NoError(t, c.Save(ctx, "Tokyo"))
	require.NoError(t, c.Save(ctx, "Paris"))
	require.NoError(t, c.Save(ctx, "Lima"))

	assert.Equal(t, []string{"Paris", "Tokyo", "Lima"}, c.Load(ctx))
}

func TestCache_SaveIsCaseSensitive(t *testing.T) {
	ctx := context.Background()
	c := New(NewMemoryStore(), nil, nil)

	require.NoError(t, c.Save(ctx, "Paris"))
	require.NoError(t, c.Save(ctx, "paris"))

	assert.Equal(t, []string{"Paris", "paris"}, c.Load(ctx))
}

func TestCache_SaveOverUnparseableData(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()
	require.NoError(t, store.Set(ctx, Key, "garbage"))
	c := New(store, nil, nil)

	require.NoError(t, c.Save(ctx, "Oslo"))
	assert.Equal(t, []string{"Oslo"}, c.Load(ctx))
}

func TestCache_SaveRefreshesSuggestions(t *testing.T) {
	ctx := context.Background()
	s := &recordingSuggestions{}
	c := New(NewMemoryStore(), s, nil)

	require.NoError(t, c.Save(ctx, "Paris"))
	require.NoError(t, c.Save(ctx, "Tokyo"))
	assert.Equal(t, []string{"Paris", "Tokyo"}, s.items)
	assert.Equal(t, 2, s.clears)

	// no-op save leaves the list untouched
	require.NoError(t, c.Save(ctx, "Tokyo"))
	assert.Equal(t, 2, s.clears)
}

func TestCache_SaveReadErrorKeepsHistory(t *testing.T) {
	ctx := context.Background()
	store := &flakyStore{MemoryStore: NewMemoryStore()}
	s := &recordingSuggestions{}
	c := New(store, s, nil)

	require.NoError(t, c.Save(ctx, "Paris"))
	require.NoError(t, c.Save(ctx, "Tokyo"))
	clears := s.clears

	store.getErr = errors.New("database is locked")
	err := c.Save(ctx, "Rome")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "database is locked")
	assert.Equal(t, clears, s.clears, "failed save must not touch suggestions")

	store.getErr = nil
	assert.Equal(t, []string{"Paris", "Tokyo"}, c.Load(ctx))

	require.NoError(t, c.Save(ctx, "Rome"))
	assert.Equal(t, []string{"Paris", "Tokyo", "Rome"}, c.Load(ctx))
}

func TestCache_SaveWriteError(t *testing.T) {
	s := &recordingSuggestions{}
	c := New(&failingStore{setErr: errors.New("read-only")}, s, nil)

	err := c.Save(context.Background(), "Paris")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "persist city cache")
	assert.Zero(t, s.clears)
}

func TestCache_RefreshSuggestions(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()
	require.NoError(t, store.Set(ctx, Key, `["Rome","Cairo"]`))

	s := &recordingSuggestions{items: []string{"stale"}}
	c := New(store, s, nil)
	c.RefreshSuggestions(ctx)

	assert.Equal(t, []string{"Rome", "Cairo"}, s.items)
	assert.Equal(t, 1, s.clears)
}

func TestSQLiteStore(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "cities.db")

	store, err := NewSQLiteStore(path)
	require.NoError(t, err)

	_, ok, err := store.Get(ctx, Key)
	require.NoError(t, err)
	assert.False(t, ok)

	c := New(store, nil, nil)
	require.NoError(t, c.Save(ctx, "Paris"))
	require.NoError(t, c.Save(ctx, "Tokyo"))
	require.NoError(t, store.Close())

	// reopen to prove persistence
	reopened, err := NewSQLiteStore(path)
	require.NoError(t, err)
	defer reopened.Close()
	assert.Equal(t, []string{"Paris", "Tokyo"}, New(reopened, nil, nil).Load(ctx))
}

func TestRedisStore(t *testing.T) {
	ctx := context.Background()
	mr := miniredis.RunT(t)

	store, err := NewRedisStore(ctx, mr.Addr(), "", 0, "alice")
	require.NoError(t, err)
	defer store.Close()

	c := New(store, nil, nil)
	require.NoError(t, c.Save(ctx, "Paris"))
	require.NoError(t, c.Save(ctx, "Paris"))

	raw, err := mr.Get("citycache:alice:" + Key)
	require.NoError(t, err)
	assert.JSONEq(t, `["Paris"]`, raw)

	other, err := NewRedisStore(ctx, mr.Addr(), "", 0, "bob")
	require.NoError(t, err)
	defer other.Close()
	assert.Empty(t, New(other, nil, nil).Load(ctx))
}

func TestNewRedisStore_Unreachable(t *testing.T) {
	mr := miniredis.RunT(t)
	addr := mr.Addr()
	mr.Close()

	_, err := NewRedisStore(context.Background(), addr, "", 0, "")
	assert.Error(t, err)
}

func TestRedisStore_ConcurrentSavesFromSeparateClients(t *testing.T) {
	ctx := context.Background()
	mr := miniredis.RunT(t)

	const terminals = 8
	var wg sync.WaitGroup
	errs := make(chan error, terminals)
	for i := 0; i < terminals; i++ {
		store, err := NewRedisStore(ctx, mr.Addr(), "", 0, "shared")
		require.NoError(t, err)
		t.Cleanup(func() { _ = store.Close() })

		// each Cache has its own mutex, like separate processes
		c := New(store, nil, nil)
		city := fmt.Sprintf("City%d", i)
		wg.Add(1)
		go func() {
			defer wg.Done()
			errs <- c.Save(ctx, city)
		}()
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		require.NoError(t, err)
	}

	reader, err := NewRedisStore(ctx, mr.Addr(), "", 0, "shared")
	require.NoError(t, err)
	defer reader.Close()
	got := New(reader, nil, nil).Load(ctx)
	sort.Strings(got)
	want := make([]string, terminals)
	for i := range want {
		want[i] = fmt.Sprintf("City%d", i)
	}
	assert.Equal(t, want, got)
}

func TestRedisStore_UpdateSkipsWrite(t *testing.T) {
	ctx := context.Background()
	mr := miniredis.RunT(t)
	store, err := NewRedisStore(ctx, mr.Addr(), "", 0, "")
	require.NoError(t, err)
	defer store.Close()

	err = store.Update(ctx, Key, func(raw string, ok bool) (string, bool, error) {
		assert.False(t, ok)
		assert.Empty(t, raw)
		return "ignored", false, nil
	})
	require.NoError(t, err)
	assert.False(t, mr.Exists("citycache:default:"+Key))
}
