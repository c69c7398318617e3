package blob

import (
	memorystore "eiscore/internal/infra/blob/memory"
)

// MemoryStore is the in-process recovery area. It adds failure injection on
// top of Store.
type MemoryStore = memorystore.Store

// NewMemory returns an empty in-process recovery area.
func NewMemory() *MemoryStore { return memorystore.New() }
