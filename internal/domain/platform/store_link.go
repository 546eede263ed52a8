package platform

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// ---------------------------------------------------------------------------
// ProductStoreLink Entity
// ---------------------------------------------------------------------------

// SyncStatus represents the synchronization state of one product-store link.
type SyncStatus string

const (
	// SyncStatusPending indicates the link has never been synced
	SyncStatusPending SyncStatus = "pending"
	// SyncStatusSynced indicates local and remote state agree
	SyncStatusSynced SyncStatus = "synced"
	// SyncStatusOutdated indicates local changes await a push
	SyncStatusOutdated SyncStatus = "outdated"
	// SyncStatusConflict indicates a divergence requiring manual resolution;
	// this is ambiguity, not failure
	SyncStatusConflict SyncStatus = "conflict"
	// SyncStatusError indicates the last sync attempt failed
	SyncStatusError SyncStatus = "error"
)

// IsValid returns true if the sync status is one of the known states.
func (s SyncStatus) IsValid() bool {
	switch s {
	case SyncStatusPending, SyncStatusSynced, SyncStatusOutdated, SyncStatusConflict, SyncStatusError:
		return true
	}
	return false
}

// String returns the string representation of the sync status.
func (s SyncStatus) String() string {
	return string(s)
}

// PendingConflict records one field divergence awaiting manual resolution,
// persisted on the link until a human decides.
type PendingConflict struct {
	Field       string    `json:"field"`
	LocalValue  string    `json:"local_value"`
	RemoteValue string    `json:"remote_value"`
	DetectedAt  time.Time `json:"detected_at"`
}

// ProductStoreLink is the durable association between a local product and a
// product on one remote store. The sync engine reads and updates the link but
// does not own the wider product or store schemas.
type ProductStoreLink struct {
	ID                uuid.UUID
	OwnerID           uuid.UUID
	ProductID         uuid.UUID
	StoreID           uuid.UUID
	ExternalProductID string
	SyncStatus        SyncStatus
	PendingConflicts  []PendingConflict
	LastSyncAt        *time.Time
	LastError         string
	CreatedAt         time.Time
	UpdatedAt         time.Time
}

// NewProductStoreLink creates a link between a local product and a store.
func NewProductStoreLink(ownerID, productID, storeID uuid.UUID) (*ProductStoreLink, error) {
	if ownerID == uuid.Nil {
		return nil, ErrInvalidOwnerID
	}
	if productID == uuid.Nil {
		return nil, ErrInvalidProductID
	}
	if storeID == uuid.Nil {
		return nil, ErrInvalidStoreID
	}

	now := time.Now()
	return &ProductStoreLink{
		ID:         uuid.New(),
		OwnerID:    ownerID,
		ProductID:  productID,
		StoreID:    storeID,
		SyncStatus: SyncStatusPending,
		CreatedAt:  now,
		UpdatedAt:  now,
	}, nil
}

// RecordSyncSuccess marks the link synced, persisting the platform-assigned
// external id and clearing any previous error and pending conflicts.
func (l *ProductStoreLink) RecordSyncSuccess(externalID string) {
	now := time.Now()
	if externalID != "" {
		l.ExternalProductID = externalID
	}
	l.SyncStatus = SyncStatusSynced
	l.PendingConflicts = nil
	l.LastSyncAt = &now
	l.LastError = ""
	l.UpdatedAt = now
}

// RecordSyncError marks the link errored with a truncated message. The error
// is scoped to this link; it never aborts the surrounding batch.
func (l *ProductStoreLink) RecordSyncError(errMsg string) {
	now := time.Now()
	l.SyncStatus = SyncStatusError
	if len(errMsg) > 500 {
		errMsg = errMsg[:500]
	}
	l.LastError = errMsg
	l.LastSyncAt = &now
	l.UpdatedAt = now
}

// RecordConflicts marks the link as conflicted and stores the disputed fields
// for manual review. Pushes are skipped while a field is under dispute.
func (l *ProductStoreLink) RecordConflicts(conflicts []PendingConflict) {
	now := time.Now()
	l.SyncStatus = SyncStatusConflict
	l.PendingConflicts = conflicts
	l.LastSyncAt = &now
	l.UpdatedAt = now
}

// MarkOutdated flags the link so that the next push picks up the
// authoritative local value.
func (l *ProductStoreLink) MarkOutdated() {
	l.SyncStatus = SyncStatusOutdated
	l.UpdatedAt = time.Now()
}

// IsLinked returns true once the remote side has assigned an external id.
func (l *ProductStoreLink) IsLinked() bool {
	return l.ExternalProductID != ""
}

// ---------------------------------------------------------------------------
// Repository
// ---------------------------------------------------------------------------

// LinkFilter narrows link queries for a sync batch.
type LinkFilter struct {
	// StoreID limits to one store (optional)
	StoreID *uuid.UUID
	// ProductIDs limits to specific products (optional)
	ProductIDs []uuid.UUID
	// SyncStatus limits to links in one state (optional)
	SyncStatus *SyncStatus
}

// LinkRepository persists product-store links.
type LinkRepository interface {
	// FindByID finds a link by id.
	FindByID(ctx context.Context, id uuid.UUID) (*ProductStoreLink, error)

	// FindForOwner lists links matching the filter scoped to an owner.
	FindForOwner(ctx context.Context, ownerID uuid.UUID, filter LinkFilter) ([]ProductStoreLink, error)

	// FindByProductAndStore finds the link for one product on one store.
	FindByProductAndStore(ctx context.Context, ownerID, productID, storeID uuid.UUID) (*ProductStoreLink, error)

	// Save creates or updates a link.
	Save(ctx context.Context, link *ProductStoreLink) error
}
