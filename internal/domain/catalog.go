package domain

import "time"

// Cache source tags
const (
	SourceDatabase  = "database"
	SourceStaffSync = "staff-sync"
	SourceFallback  = "fallback"
)

// CatalogSnapshot is an immutable view of the server-side catalog. A new
// snapshot is built for every mutation and swapped in as a whole.
type CatalogSnapshot struct {
	Products  []Product `json:"products"`
	Timestamp time.Time `json:"timestamp"`
	Signature string    `json:"signature"`
	Source    string    `json:"source"`
}

// CatalogStats summarises the current snapshot
type CatalogStats struct {
	Count            int             `json:"count"`
	LastUpdated      time.Time       `json:"lastUpdated"`
	Signature        string          `json:"signature"`
	Source           string          `json:"source"`
	CountryBreakdown map[Country]int `json:"countryBreakdown"`
}

// ChangeAction names the mutation that produced a snapshot
type ChangeAction string

const (
	ChangeReplace ChangeAction = "replace"
	ChangeCreate  ChangeAction = "create"
	ChangeUpdate  ChangeAction = "update"
	ChangeDelete  ChangeAction = "delete"
)

// ChangeEvent is delivered to catalog listeners after a mutation
type ChangeEvent struct {
	Action    ChangeAction `json:"action"`
	ProductID string       `json:"productId,omitempty"`
	Count     int          `json:"count"`
	Signature string       `json:"signature"`
	Timestamp time.Time    `json:"timestamp"`
}

// WindowInfo describes the fetch-window state at a point in time
type WindowInfo struct {
	IsAllowed  bool      `json:"isAllowed"`
	NextWindow time.Time `json:"nextWindow"`
	Reason     string    `json:"reason"`
}

// CacheMetadata is written together with the cached product list
type CacheMetadata struct {
	ProductCount int         `json:"productCount"`
	Source       string      `json:"source"`
	FetchTime    time.Time   `json:"fetchTime"`
	Signature    string      `json:"signature,omitempty"`
	Window       *WindowInfo `json:"window,omitempty"`
}

// CacheStats reports the state of the client-side cache. LastFetchTime and
// CacheAge are nil when nothing is cached.
type CacheStats struct {
	HasCache      bool           `json:"hasCache"`
	Count         int            `json:"count"`
	LastFetchTime *time.Time     `json:"lastFetchTime"`
	Source        string         `json:"source,omitempty"`
	CacheAge      *time.Duration `json:"cacheAge"`
}
