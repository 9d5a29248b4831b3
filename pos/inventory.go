/*
Package pos provides the point-of-sale surroundings of the ledger engine:
the stock adapter, the best-effort sync queue, snapshot export/import, and
the receipt projection used for (re)printing documents.

The ledger package owns the money; this package owns everything the counter
needs around it.
*/
package pos

import (
	"context"
	"sync"
)

// =============================================================================
// MEMORY INVENTORY
// =============================================================================

// MemoryInventory is an in-process stock table implementing ledger.Inventory.
// The engine pushes deltas (negative on sale, positive on return/void); it
// never reads stock back, so availability checks stay with the caller.
type MemoryInventory struct {
	mu    sync.RWMutex
	stock map[string]int
}

func NewMemoryInventory() *MemoryInventory {
	return &MemoryInventory{stock: make(map[string]int)}
}

// Seed sets the on-hand quantity for a product.
func (m *MemoryInventory) Seed(productID string, quantity int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.stock[productID] = quantity
}

// Adjust applies a stock delta. Stock may go negative: the ledger commit has
// already happened and a miscount is an inventory problem, not a money one.
func (m *MemoryInventory) Adjust(_ context.Context, productID string, delta int) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.stock[productID] += delta
	return nil
}

// OnHand returns the current quantity for a product.
func (m *MemoryInventory) OnHand(productID string) int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.stock[productID]
}
