package pairing

import "time"

// SyncStatus is the legacy reconciliation lifecycle of a record. A record is
// created pending and transitions to success or failure exactly once.
type SyncStatus string

const (
	SyncPending SyncStatus = "pending"
	SyncSuccess SyncStatus = "success"
	SyncFailure SyncStatus = "failure"
)

// Valid reports whether the value is inside the closed status set.
func (s SyncStatus) Valid() bool {
	switch s {
	case SyncPending, SyncSuccess, SyncFailure:
		return true
	}
	return false
}

// Record is a committed platform/product association. Records are never
// deleted; the only later mutations are a newer record flipping Overwrite on
// this one, and the reconciliation worker setting the terminal sync status.
type Record struct {
	ID          int64      `json:"id"`
	IdentityKey string     `json:"identity"`
	Platform    int64      `json:"platform"`
	Product     int64      `json:"product"`
	ScannedAt   time.Time  `json:"scannedAt"`
	Overwrite   bool       `json:"overwrite"`
	SyncStatus  SyncStatus `json:"syncStatus"`
	SyncError   *string    `json:"syncError,omitempty"`
}

// Prior identifies the record superseded by a new commit.
type Prior struct {
	ID       int64
	Platform int64
}

// Filter narrows history listings and chart aggregations.
type Filter struct {
	ID          *int64
	Platform    *int64
	IdentityKey string
	Product     *int64
	SyncStatus  *SyncStatus
	Overwrite   *bool
	From        *time.Time
	To          *time.Time

	SortField string
	SortAsc   bool
	Limit     int
	Offset    int
}

// ChartData aggregates pairing activity for the dashboard charts.
type ChartData struct {
	Summary    ChartSummary    `json:"summary"`
	ByDate     []DateCount     `json:"byDate"`
	ByIdentity []IdentityCount `json:"byIdentity"`
	ByPlatform []PlatformCount `json:"byPlatform"`
}

type ChartSummary struct {
	Total      int `json:"total"`
	Overwrites int `json:"overwrites"`
	Errors     int `json:"errors"`
}

type DateCount struct {
	Date  string `json:"date"`
	Count int    `json:"count"`
}

type IdentityCount struct {
	Identity string `json:"identity"`
	Count    int    `json:"count"`
}

type PlatformCount struct {
	Platform int64 `json:"platform"`
	Count    int   `json:"count"`
}
