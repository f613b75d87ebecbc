package memory

import (
	"testing"

	"github.com/stretchr/testify/require"

	"recon-dashboard/internal/store"
	"recon-dashboard/internal/store/storetest"
)

func TestMemoryStore(t *testing.T) {
	storetest.Run(t, func(t *testing.T) store.Store {
		ids, err := store.NewIDGenerator(1)
		require.NoError(t, err)
		return New(ids)
	})
}
