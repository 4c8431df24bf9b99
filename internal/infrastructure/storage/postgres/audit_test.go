package postgres

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAuditStore_Compression(t *testing.T) {
	store, err := NewAuditStore(nil)
	require.NoError(t, err)

	small := []byte(`{"status":{"old":"pending","new":"approved"}}`)
	changes, compressed, algo := store.encode(small)
	assert.Equal(t, CompressionNone, algo)
	assert.Nil(t, compressed)
	assert.Equal(t, small, []byte(changes))

	large := append([]byte(`{"note":"`), bytes.Repeat([]byte("x"), 20*1024)...)
	large = append(large, []byte(`"}`)...)
	changes, compressed, algo = store.encode(large)
	assert.Equal(t, CompressionZstd, algo)
	assert.Nil(t, changes)
	assert.Less(t, len(compressed), len(large))

	rec := AuditRecord{ChangesCompressed: compressed, CompressionAlgo: algo}
	require.NoError(t, store.decode(&rec))
	assert.Equal(t, large, []byte(rec.Changes))
	assert.Nil(t, rec.ChangesCompressed)
}
