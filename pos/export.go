/*
export.go - Snapshot export and import

PURPOSE:
  Serializes the full ledger state (customers, invoices, entries, settings)
  to a single JSON archive and restores it wholesale. The three collections
  travel together: restoring invoices without their entries, or customers
  without the history behind their totals, would break the debt invariant.
  An archive missing any collection is rejected with ErrSnapshotShape.
*/
package pos

import (
	"context"
	"encoding/json"
	"fmt"
	"io"

	"github.com/warp/pos-ledger/ledger"
)

// =============================================================================
// SNAPSHOT
// =============================================================================

const snapshotVersion = 1

// Snapshot is the exchange format for a full ledger state.
type Snapshot struct {
	Version   int                  `json:"version"`
	Settings  ledger.Settings      `json:"settings"`
	Customers []ledger.Customer    `json:"customers"`
	Invoices  []ledger.Invoice     `json:"invoices"`
	Entries   []ledger.LedgerEntry `json:"entries"`
}

// Export collects the full state into a snapshot.
func Export(ctx context.Context, store ledger.Store, settings ledger.Settings) (*Snapshot, error) {
	customers, err := store.ListCustomers(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to export customers: %w", err)
	}
	invoices, err := store.ListInvoices(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to export invoices: %w", err)
	}
	entries, err := store.ListEntries(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to export entries: %w", err)
	}

	// The archive always carries concrete (possibly empty) collections, so a
	// round-trip through Import never trips the shape check.
	if customers == nil {
		customers = []ledger.Customer{}
	}
	if invoices == nil {
		invoices = []ledger.Invoice{}
	}
	if entries == nil {
		entries = []ledger.LedgerEntry{}
	}

	return &Snapshot{
		Version:   snapshotVersion,
		Settings:  settings,
		Customers: customers,
		Invoices:  invoices,
		Entries:   entries,
	}, nil
}

// WriteSnapshot exports the full state as indented JSON.
func WriteSnapshot(ctx context.Context, w io.Writer, store ledger.Store, settings ledger.Settings) error {
	snap, err := Export(ctx, store, settings)
	if err != nil {
		return err
	}
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(snap)
}

// =============================================================================
// IMPORT
// =============================================================================

// rawSnapshot distinguishes "collection absent" from "collection empty":
// a missing key decodes to a nil pointer, an empty array to a non-nil one.
type rawSnapshot struct {
	Version   int                   `json:"version"`
	Settings  *ledger.Settings      `json:"settings"`
	Customers *[]ledger.Customer    `json:"customers"`
	Invoices  *[]ledger.Invoice     `json:"invoices"`
	Entries   *[]ledger.LedgerEntry `json:"entries"`
}

// ReadSnapshot decodes and shape-checks an archive without restoring it.
func ReadSnapshot(r io.Reader) (*Snapshot, error) {
	var raw rawSnapshot
	if err := json.NewDecoder(r).Decode(&raw); err != nil {
		return nil, fmt.Errorf("failed to decode snapshot: %w", err)
	}
	if raw.Customers == nil || raw.Invoices == nil || raw.Entries == nil {
		return nil, ledger.ErrSnapshotShape
	}

	snap := &Snapshot{
		Version:   raw.Version,
		Customers: *raw.Customers,
		Invoices:  *raw.Invoices,
		Entries:   *raw.Entries,
	}
	if raw.Settings != nil {
		snap.Settings = *raw.Settings
	} else {
		snap.Settings = ledger.DefaultSettings()
	}
	return snap, nil
}

// Import restores an archive into the store, replacing everything. The
// restore is all-or-nothing through ledger.Restorer. Returns the snapshot's
// settings so the caller can adopt them.
func Import(ctx context.Context, r io.Reader, restorer ledger.Restorer) (ledger.Settings, error) {
	snap, err := ReadSnapshot(r)
	if err != nil {
		return ledger.Settings{}, err
	}
	if err := restorer.ReplaceAll(ctx, snap.Customers, snap.Invoices, snap.Entries); err != nil {
		return ledger.Settings{}, fmt.Errorf("failed to restore snapshot: %w", err)
	}
	return snap.Settings, nil
}
