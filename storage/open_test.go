package storage

import (
	"path/filepath"
	"testing"

	"github.com/MeteorsLiu/kvbridge/config"
	"github.com/MeteorsLiu/kvbridge/storage/boltdb"
	"github.com/MeteorsLiu/kvbridge/storage/memory"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOpenMemory(t *testing.T) {
	store, err := Open(config.Storage{Backend: "memory"}, nil)
	require.NoError(t, err)
	assert.IsType(t, &memory.Memory{}, store)
	assert.True(t, CapabilityOf(store).Available())
	require.NoError(t, store.Close())
	assert.False(t, CapabilityOf(store).Available())
}

func TestOpenBolt(t *testing.T) {
	store, err := Open(config.Storage{Backend: "bolt", Path: filepath.Join(t.TempDir(), "s.db")}, nil)
	require.NoError(t, err)
	defer store.Close()
	assert.IsType(t, &boltdb.Bolt{}, store)
	require.NoError(t, store.SetItem("k", "v"))
	assert.Equal(t, 1, store.Length())
}

func TestOpenUnsupported(t *testing.T) {
	_, err := Open(config.Storage{Backend: "etcd"}, nil)
	assert.Error(t, err)
}
