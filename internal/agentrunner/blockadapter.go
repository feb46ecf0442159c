package agentrunner

import "github.com/tutord/tutor-runtime/internal/blockstore"

// blockStoreAdapter narrows *blockstore.Store's (*Block, error) ReadBlock
// shape to the (title, body, error) shape memorycontext.BlockReader and
// this package's own blockReader interface expect.
type blockStoreAdapter struct {
	store *blockstore.Store
}

func (a blockStoreAdapter) ListBlocks(userID string) ([]string, error) {
	return a.store.ListBlocks(userID)
}

func (a blockStoreAdapter) ReadBlock(userID, label string) (string, string, error) {
	block, err := a.store.ReadBlock(userID, label)
	if err != nil {
		return "", "", err
	}
	return block.Title, block.Body, nil
}
