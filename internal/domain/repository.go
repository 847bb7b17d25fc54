package domain

import (
	"context"
	"time"
)

// KVStore is the durable key/value store behind the client-side cache.
// Get returns ErrCacheMiss when the key is absent.
type KVStore interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
	Delete(ctx context.Context, key string) error
}

// StaffClient defines the interface for reading the upstream product catalog
type StaffClient interface {
	// FetchPayload returns the decoded JSON body without shape checks
	FetchPayload(ctx context.Context) (any, error)
	// FetchProducts accepts {"products": [...]} or a bare array
	FetchProducts(ctx context.Context) ([]RawRecord, error)
}

// ChangeNotifier is told about every catalog mutation
type ChangeNotifier interface {
	Notify(ctx context.Context, event ChangeEvent)
}

// Clock abstracts time so schedules can be tested
type Clock interface {
	Now() time.Time
}

// SystemClock reads the wall clock
type SystemClock struct{}

// Now returns the current time
func (SystemClock) Now() time.Time { return time.Now() }
