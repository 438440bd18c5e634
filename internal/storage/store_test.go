package storage

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestObjectKey_Layout(t *testing.T) {
	key := ObjectKey("owner-1", "documents", "carte grise.jpg")
	require.True(t, strings.HasPrefix(key, "dossiers/owner-1/documents/"))
	require.True(t, strings.HasSuffix(key, "_carte grise.jpg"))

	// The random prefix keeps same-name re-uploads apart.
	other := ObjectKey("owner-1", "documents", "carte grise.jpg")
	require.NotEqual(t, key, other)
}

func TestMemory_RoundTrip(t *testing.T) {
	m := NewMemory()
	require.NoError(t, m.Upload("k1", strings.NewReader("hello"), "text/plain", 5))

	data, ct, err := m.Download("k1")
	require.NoError(t, err)
	require.Equal(t, "hello", string(data))
	require.Equal(t, "text/plain", ct)

	_, _, err = m.Download("missing")
	require.ErrorIs(t, err, ErrNotFound)
}

func TestMemory_DeleteIsIdempotent(t *testing.T) {
	m := NewMemory()
	require.NoError(t, m.Upload("k1", strings.NewReader("x"), "text/plain", 1))
	require.NoError(t, m.Delete("k1"))
	require.NoError(t, m.Delete("k1"))
	require.Equal(t, 0, m.Len())
}

func TestMemory_BulkDelete(t *testing.T) {
	m := NewMemory()
	require.NoError(t, m.Upload("a", strings.NewReader("1"), "text/plain", 1))
	require.NoError(t, m.Upload("b", strings.NewReader("2"), "text/plain", 1))
	require.NoError(t, m.BulkDelete([]string{"a", "b", "never-existed"}))
	require.Equal(t, 0, m.Len())
}
