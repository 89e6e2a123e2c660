package sync

import (
	"strings"

	"golang.org/x/text/unicode/norm"

	"github.com/hostmirror/hostmirror/internal/store"
)

// localIndex is the in-memory lookup built once per job from the stored
// file index. It classifies each incoming remote file in O(1): by remote
// id first, then by normalized content hash.
type localIndex struct {
	byRemoteID map[string]int64
	byHash     map[string]int64
}

func buildIndex(entries []store.IndexEntry) *localIndex {
	idx := &localIndex{
		byRemoteID: make(map[string]int64, len(entries)),
		byHash:     make(map[string]int64, len(entries)),
	}

	for _, e := range entries {
		idx.byRemoteID[e.RemoteID] = e.LocalID

		if h := normalizeHash(e.Hash); h != "" {
			idx.byHash[h] = e.LocalID
		}
	}

	return idx
}

// add records a freshly inserted file so later files in the same batch can
// match it (two identical-hash files in one listing collapse into one row).
func (idx *localIndex) add(remoteID, hash string, localID int64) {
	idx.byRemoteID[remoteID] = localID

	if h := normalizeHash(hash); h != "" {
		idx.byHash[h] = localID
	}
}

func (idx *localIndex) lookupRemoteID(remoteID string) (int64, bool) {
	id, ok := idx.byRemoteID[remoteID]
	return id, ok
}

// lookupHash never matches an empty hash: fallback-listing records carry
// no hash and must not collapse into each other.
func (idx *localIndex) lookupHash(hash string) (int64, bool) {
	h := normalizeHash(hash)
	if h == "" {
		return 0, false
	}

	id, ok := idx.byHash[h]

	return id, ok
}

// normalizeHash lowercases and trims a content hash so case and whitespace
// differences from the API never defeat duplicate detection.
func normalizeHash(h string) string {
	return strings.ToLower(strings.TrimSpace(h))
}

// normalizeName applies Unicode NFC so visually identical names compare
// equal regardless of which decomposition the API returned.
func normalizeName(name string) string {
	return norm.NFC.String(name)
}
