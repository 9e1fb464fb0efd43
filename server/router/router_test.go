package router

import (
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLongestPrefix(t *testing.T) {
	tab := New[string]()
	for _, p := range []string{"/", "/test", "/test/item", "/team", "/api/v1/user"} {
		require.NoError(t, tab.Insert(p, p))
	}

	tests := []struct {
		name      string
		path      string
		want      string
		wantMatch bool
	}{
		{"root", "/", "/", true},
		{"exact", "/test", "/test", true},
		{"longest wins", "/test/item/42", "/test/item", true},
		{"literal prefix not segment", "/testing", "/test", true},
		{"split sibling", "/team/a", "/team", true},
		{"falls back to root", "/te", "/", true},
		{"deep static", "/api/v1/user", "/api/v1/user", true},
		{"partial static", "/api/v1", "/", true},
		{"no slash", "test", "", false},
		{"empty", "", "", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := tab.Match(tt.path)
			assert.Equal(t, tt.wantMatch, ok)
			assert.Equal(t, tt.want, got)
		})
	}
	assert.Equal(t, 5, tab.Len())
}

func TestInsertDuplicate(t *testing.T) {
	tab := New[int]()
	require.NoError(t, tab.Insert("/a", 1))
	assert.ErrorIs(t, tab.Insert("/a", 2), ErrExists)

	v, ok := tab.Match("/a/b")
	require.True(t, ok)
	assert.Equal(t, 1, v)
}

func TestRemove(t *testing.T) {
	tab := New[int]()
	require.NoError(t, tab.Insert("/test", 1))
	require.NoError(t, tab.Insert("/test/item", 2))

	require.NoError(t, tab.Remove("/test/item"))
	assert.ErrorIs(t, tab.Remove("/test/item"), ErrNotFound)
	assert.ErrorIs(t, tab.Remove("/tes"), ErrNotFound)

	v, ok := tab.Match("/test/item")
	require.True(t, ok)
	assert.Equal(t, 1, v)

	require.NoError(t, tab.Remove("/test"))
	_, ok = tab.Match("/test")
	assert.False(t, ok)
	assert.Zero(t, tab.Len())

	// removed key can be registered again
	require.NoError(t, tab.Insert("/test", 3))
}

func TestConcurrentMatch(t *testing.T) {
	tab := New[int]()
	var wg sync.WaitGroup
	for i := range 8 {
		wg.Add(2)
		go func() {
			defer wg.Done()
			tab.Insert(fmt.Sprintf("/p%d", i), i)
		}()
		go func() {
			defer wg.Done()
			tab.Match(fmt.Sprintf("/p%d/x", i))
		}()
	}
	wg.Wait()
	assert.Equal(t, 8, tab.Len())
}

func BenchmarkRouterMatch(b *testing.B) {
	tab := New[int]()
	for i := range 50 {
		tab.Insert(fmt.Sprintf("/api/v1/resource%d", i), i)
	}
	tab.Insert("/api/v1/user/profile", 1)

	b.ReportAllocs()
	b.ResetTimer()
	for b.Loop() {
		tab.Match("/api/v1/user/profile/settings")
	}
}
