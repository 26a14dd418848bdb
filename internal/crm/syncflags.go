package crm

import (
	"context"
	"time"

	"github.com/vendaflow/sdr-platform/internal/contextstore"
)

// SyncFlags records CRM sync outcomes on conversation context documents.
type SyncFlags struct {
	contexts contextstore.Store
}

// NewSyncFlags creates a sync-flag updater over the given context store.
func NewSyncFlags(contexts contextstore.Store) *SyncFlags {
	return &SyncFlags{contexts: contexts}
}

// SetSyncStatus writes the crm_synced flag and deal id onto the conversation
// document, creating the document when none exists yet.
func (f *SyncFlags) SetSyncStatus(ctx context.Context, phone string, synced bool, dealID int64) error {
	doc, err := f.contexts.Get(ctx, phone)
	if err != nil {
		return err
	}
	if doc == nil {
		doc = make(map[string]any)
	}

	doc["crm_synced"] = synced
	doc["crm_synced_at"] = time.Now().UTC().Format(time.RFC3339)
	if dealID != 0 {
		doc["crm_deal_id"] = dealID
	}

	return f.contexts.Set(ctx, phone, doc)
}
