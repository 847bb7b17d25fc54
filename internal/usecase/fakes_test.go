package usecase

import (
	"context"
	"sync"
	"time"

	"github.com/lendmatch/backend/internal/domain"
)

// fakeClock is a settable clock
type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock(t time.Time) *fakeClock {
	return &fakeClock{now: t}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Set(t time.Time) {
	c.mu.Lock()
	c.now = t
	c.mu.Unlock()
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

// fakeStaffClient serves canned payloads
type fakeStaffClient struct {
	mu      sync.Mutex
	payload any
	records []domain.RawRecord
	err     error
	calls   int
}

func (f *fakeStaffClient) FetchPayload(ctx context.Context) (any, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	return f.payload, nil
}

func (f *fakeStaffClient) FetchProducts(ctx context.Context) ([]domain.RawRecord, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	return f.records, nil
}

func (f *fakeStaffClient) Calls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

// fakeKV is an in-memory KV store that can be told to fail
type fakeKV struct {
	mu     sync.Mutex
	data   map[string][]byte
	setErr error
}

func newFakeKV() *fakeKV {
	return &fakeKV{data: make(map[string][]byte)}
}

func (f *fakeKV) Get(ctx context.Context, key string) ([]byte, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	v, ok := f.data[key]
	if !ok {
		return nil, domain.ErrCacheMiss
	}
	return v, nil
}

func (f *fakeKV) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.setErr != nil {
		return f.setErr
	}
	f.data[key] = value
	return nil
}

func (f *fakeKV) Delete(ctx context.Context, key string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.data, key)
	return nil
}

func rawProduct(id, name string, country string, category string, min, max float64) map[string]any {
	return map[string]any{
		"id":          id,
		"name":        name,
		"lender_name": "Test Lender",
		"country":     country,
		"category":    category,
		"min_amount":  min,
		"max_amount":  max,
	}
}

func product(id string, country domain.Country, category domain.Category, min, max float64) domain.Product {
	return domain.Product{
		ID:         id,
		Name:       "Product " + id,
		LenderName: "Test Lender",
		Country:    country,
		Category:   category,
		MinAmount:  min,
		MaxAmount:  max,
		Active:     true,
		UpdatedAt:  time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC),
	}
}
