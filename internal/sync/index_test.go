package sync

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hostmirror/hostmirror/internal/store"
)

func TestBuildIndex_Lookups(t *testing.T) {
	idx := buildIndex([]store.IndexEntry{
		{LocalID: 1, RemoteID: "r1", Hash: "AABB"},
		{LocalID: 2, RemoteID: "r2", Hash: ""},
	})

	id, ok := idx.lookupRemoteID("r1")
	require.True(t, ok)
	assert.Equal(t, int64(1), id)

	_, ok = idx.lookupRemoteID("r9")
	assert.False(t, ok)

	// Hash lookup is case and whitespace insensitive.
	id, ok = idx.lookupHash("aabb")
	require.True(t, ok)
	assert.Equal(t, int64(1), id)

	id, ok = idx.lookupHash("  AABB ")
	require.True(t, ok)
	assert.Equal(t, int64(1), id)
}

func TestLookupHash_EmptyNeverMatches(t *testing.T) {
	idx := buildIndex([]store.IndexEntry{
		{LocalID: 1, RemoteID: "r1", Hash: ""},
		{LocalID: 2, RemoteID: "r2", Hash: ""},
	})

	_, ok := idx.lookupHash("")
	assert.False(t, ok, "records without hashes must not collapse into each other")

	_, ok = idx.lookupHash("   ")
	assert.False(t, ok)
}

func TestIndex_AddMakesLaterFilesMatch(t *testing.T) {
	idx := buildIndex(nil)

	idx.add("r1", "HASH1", 7)

	id, ok := idx.lookupRemoteID("r1")
	require.True(t, ok)
	assert.Equal(t, int64(7), id)

	id, ok = idx.lookupHash("hash1")
	require.True(t, ok)
	assert.Equal(t, int64(7), id)
}

func TestNormalizeName_NFC(t *testing.T) {
	// "é" as the decomposed pair (e + combining acute) normalizes to the
	// single precomposed code point.
	decomposed := "Café.txt"
	precomposed := "Café.txt"

	assert.Equal(t, precomposed, normalizeName(decomposed))
	assert.Equal(t, precomposed, normalizeName(precomposed))
	assert.Equal(t, "plain.txt", normalizeName("plain.txt"))
}
