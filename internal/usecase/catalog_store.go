package usecase

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"slices"
	"sort"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/lendmatch/backend/internal/domain"
	"github.com/lendmatch/backend/internal/infrastructure/staff"
	"github.com/lendmatch/backend/internal/logging"
	"github.com/lendmatch/backend/internal/metrics"
)

// ReplaceResult reports the outcome of a full catalog replacement
type ReplaceResult struct {
	Saved          int                    `json:"saved"`
	Dropped        int                    `json:"dropped"`
	CountByCountry map[domain.Country]int `json:"countByCountry"`
	Signature      string                 `json:"signature"`
	Changed        bool                   `json:"changed"`
}

// CatalogStore is the authoritative in-memory catalog. Readers load the
// current snapshot through one atomic pointer and never lock; writers are
// serialized so read-modify-write CRUD cannot lose updates.
type CatalogStore struct {
	current atomic.Pointer[domain.CatalogSnapshot]
	writeMu sync.Mutex

	listenersMu sync.RWMutex
	listeners   map[uint64]func(domain.ChangeEvent)
	nextID      uint64

	client domain.StaffClient
	clock  domain.Clock
	logger *zap.Logger
}

// NewCatalogStore creates an empty store. client may be nil when the process
// never pulls from upstream.
func NewCatalogStore(client domain.StaffClient, clock domain.Clock, logger *zap.Logger) *CatalogStore {
	if clock == nil {
		clock = domain.SystemClock{}
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	s := &CatalogStore{
		listeners: make(map[uint64]func(domain.ChangeEvent)),
		client:    client,
		clock:     clock,
		logger:    logger,
	}
	s.current.Store(&domain.CatalogSnapshot{
		Products:  []domain.Product{},
		Timestamp: clock.Now(),
		Signature: Signature(nil),
	})
	return s
}

// Snapshot returns the current snapshot. Its product slice is shared and
// must not be modified.
func (s *CatalogStore) Snapshot() *domain.CatalogSnapshot {
	return s.current.Load()
}

// GetAll returns a copy of the current product list, sorted by name
func (s *CatalogStore) GetAll() []domain.Product {
	return slices.Clone(s.current.Load().Products)
}

// Get returns one product by id
func (s *CatalogStore) Get(id string) (domain.Product, error) {
	snap := s.current.Load()
	if i := indexOf(snap.Products, id); i >= 0 {
		return snap.Products[i], nil
	}
	return domain.Product{}, domain.ErrProductNotFound
}

// GetStats summarises the current snapshot
func (s *CatalogStore) GetStats() domain.CatalogStats {
	snap := s.current.Load()
	return domain.CatalogStats{
		Count:            len(snap.Products),
		LastUpdated:      snap.Timestamp,
		Signature:        snap.Signature,
		Source:           snap.Source,
		CountryBreakdown: countByCountry(snap.Products),
	}
}

// Subscribe registers fn for every change event. Listeners run on the
// writer's goroutine and must not block or mutate the store.
func (s *CatalogStore) Subscribe(fn func(domain.ChangeEvent)) (unsubscribe func()) {
	s.listenersMu.Lock()
	id := s.nextID
	s.nextID++
	s.listeners[id] = fn
	s.listenersMu.Unlock()

	return func() {
		s.listenersMu.Lock()
		delete(s.listeners, id)
		s.listenersMu.Unlock()
	}
}

// ReplaceAll maps incoming records to canonical products and swaps them in
// as one snapshot. Records that cannot be mapped are dropped and logged.
// A non-empty batch in which every record is dropped leaves the catalog
// untouched and returns ErrEmptyCatalog.
func (s *CatalogStore) ReplaceAll(ctx context.Context, incoming []domain.RawRecord) (ReplaceResult, error) {
	return s.replace(ctx, incoming, domain.SourceStaffSync)
}

// Pull fetches the upstream catalog and replaces the snapshot with it.
// Upstream failures are returned as is; the current snapshot is kept.
func (s *CatalogStore) Pull(ctx context.Context) (ReplaceResult, error) {
	if s.client == nil {
		return ReplaceResult{}, fmt.Errorf("%w: no upstream configured", domain.ErrUpstreamFailure)
	}

	records, err := s.client.FetchProducts(ctx)
	if err != nil {
		s.logger.Error("Catalog pull failed", zap.Error(err))
		return ReplaceResult{}, err
	}
	return s.replace(ctx, records, domain.SourceDatabase)
}

// Seed installs a known-good product list, used when the first pull fails.
// Products that do not pass validation are skipped.
func (s *CatalogStore) Seed(products []domain.Product, source string) ReplaceResult {
	valid := make([]domain.Product, 0, len(products))
	for _, p := range products {
		if issues := domain.ValidateProduct(p); len(issues) > 0 {
			logging.DataQuality(s.logger, p.ID, strings.Join(issues, "; "), "warning")
			continue
		}
		valid = append(valid, p)
	}
	valid = dedupe(valid, s.logger)

	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	snap, changed := s.commit(domain.ChangeReplace, "", valid, source, false)
	return ReplaceResult{
		Saved:          len(snap.Products),
		Dropped:        len(products) - len(snap.Products),
		CountByCountry: countByCountry(snap.Products),
		Signature:      snap.Signature,
		Changed:        changed,
	}
}

// Add creates products from raw. A record covering both markets yields two
// products. A missing id is generated.
func (s *CatalogStore) Add(ctx context.Context, raw domain.RawRecord) ([]domain.Product, error) {
	if raw.String("id") == "" {
		raw = raw.Merge(domain.RawRecord{"id": uuid.NewString()})
	}

	products, issues := staff.MapRecord(raw, s.clock.Now())
	if len(issues) > 0 {
		return nil, fmt.Errorf("%w: %s", domain.ErrInvalidProduct, strings.Join(issues, "; "))
	}

	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	current := s.current.Load()
	for _, p := range products {
		if indexOf(current.Products, p.ID) >= 0 {
			return nil, fmt.Errorf("%w: %s", domain.ErrProductExists, p.ID)
		}
	}

	next := append(slices.Clone(current.Products), products...)
	s.commit(domain.ChangeCreate, products[0].ID, next, current.Source, true)

	s.logger.Info("Product created", zap.String("id", products[0].ID), zap.Int("products", len(products)))
	return products, nil
}

// Update applies a partial patch to the product with the given id
func (s *CatalogStore) Update(ctx context.Context, id string, patch domain.RawRecord) (domain.Product, error) {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	current := s.current.Load()
	i := indexOf(current.Products, id)
	if i < 0 {
		return domain.Product{}, domain.ErrProductNotFound
	}

	merged := staff.MergePatch(current.Products[i].ToRaw(), patch)
	merged["id"] = id

	products, issues := staff.MapRecord(merged, s.clock.Now())
	if len(issues) > 0 {
		return domain.Product{}, fmt.Errorf("%w: %s", domain.ErrInvalidProduct, strings.Join(issues, "; "))
	}
	if len(products) != 1 {
		return domain.Product{}, fmt.Errorf("%w: an update cannot split a product across markets", domain.ErrInvalidProduct)
	}

	updated := products[0]
	updated.UpdatedAt = s.clock.Now()

	next := slices.Clone(current.Products)
	next[i] = updated
	s.commit(domain.ChangeUpdate, id, next, current.Source, true)

	s.logger.Info("Product updated", zap.String("id", id))
	return updated, nil
}

// Delete removes the product with the given id
func (s *CatalogStore) Delete(ctx context.Context, id string) error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	current := s.current.Load()
	i := indexOf(current.Products, id)
	if i < 0 {
		return domain.ErrProductNotFound
	}

	next := slices.Delete(slices.Clone(current.Products), i, i+1)
	s.commit(domain.ChangeDelete, id, next, current.Source, true)

	s.logger.Info("Product deleted", zap.String("id", id))
	return nil
}

func (s *CatalogStore) replace(ctx context.Context, incoming []domain.RawRecord, source string) (ReplaceResult, error) {
	now := s.clock.Now()
	products := make([]domain.Product, 0, len(incoming))
	dropped := 0

	for i, raw := range incoming {
		mapped, issues := staff.MapRecord(raw, now)
		if len(issues) > 0 {
			dropped++
			metrics.RecordsDropped.WithLabelValues("store").Inc()
			name := raw.String("name", "product_name", "productName", "product")
			logging.DataQuality(s.logger, fmt.Sprintf("record #%d %s", i, name), strings.Join(issues, "; "), "warning")
			continue
		}
		products = append(products, mapped...)
	}

	if len(incoming) > 0 && len(products) == 0 {
		s.logger.Error("Refusing to replace catalog: every record was dropped", zap.Int("records", len(incoming)))
		return ReplaceResult{Dropped: dropped}, domain.ErrEmptyCatalog
	}

	products = dedupe(products, s.logger)

	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	snap, changed := s.commit(domain.ChangeReplace, "", products, source, false)

	s.logger.Info("Catalog replaced",
		zap.Int("saved", len(snap.Products)),
		zap.Int("dropped", dropped),
		zap.Bool("changed", changed),
		zap.String("signature", snap.Signature))

	return ReplaceResult{
		Saved:          len(snap.Products),
		Dropped:        dropped,
		CountByCountry: countByCountry(snap.Products),
		Signature:      snap.Signature,
		Changed:        changed,
	}, nil
}

// commit builds and swaps in the next snapshot. Callers hold writeMu.
// Listeners are told when the signature changed, or always when notifyAlways.
func (s *CatalogStore) commit(action domain.ChangeAction, productID string, products []domain.Product, source string, notifyAlways bool) (*domain.CatalogSnapshot, bool) {
	sortByName(products)

	prev := s.current.Load()
	snap := &domain.CatalogSnapshot{
		Products:  products,
		Timestamp: s.clock.Now(),
		Signature: Signature(products),
		Source:    source,
	}
	s.current.Store(snap)

	changed := snap.Signature != prev.Signature
	metrics.RecordMutation(string(action), changed)

	breakdown := make(map[string]int)
	for country, n := range countByCountry(products) {
		breakdown[string(country)] = n
	}
	metrics.RecordCatalog(breakdown)

	if changed || notifyAlways {
		s.emit(domain.ChangeEvent{
			Action:    action,
			ProductID: productID,
			Count:     len(products),
			Signature: snap.Signature,
			Timestamp: snap.Timestamp,
		})
	}
	return snap, changed
}

func (s *CatalogStore) emit(event domain.ChangeEvent) {
	s.listenersMu.RLock()
	defer s.listenersMu.RUnlock()
	for _, fn := range s.listeners {
		fn(event)
	}
}

// Signature fingerprints the fields that matter for change detection. It is
// independent of product order.
func Signature(products []domain.Product) string {
	lines := make([]string, len(products))
	for i, p := range products {
		lines[i] = strings.Join([]string{
			p.ID,
			string(p.Country),
			string(p.Category),
			strconv.FormatFloat(p.MinAmount, 'f', -1, 64),
			strconv.FormatFloat(p.MaxAmount, 'f', -1, 64),
			strconv.FormatBool(p.Active),
		}, "|")
	}
	sort.Strings(lines)

	sum := sha256.Sum256([]byte(strings.Join(lines, "\n")))
	return hex.EncodeToString(sum[:])
}

func sortByName(products []domain.Product) {
	sort.SliceStable(products, func(i, j int) bool {
		if products[i].Name != products[j].Name {
			return products[i].Name < products[j].Name
		}
		return products[i].ID < products[j].ID
	})
}

// dedupe keeps the first product for every id
func dedupe(products []domain.Product, logger *zap.Logger) []domain.Product {
	seen := make(map[string]bool, len(products))
	out := products[:0]
	for _, p := range products {
		if seen[p.ID] {
			metrics.RecordsDropped.WithLabelValues("duplicate").Inc()
			logging.DataQuality(logger, p.ID, "duplicate product id", "warning")
			continue
		}
		seen[p.ID] = true
		out = append(out, p)
	}
	return out
}

func indexOf(products []domain.Product, id string) int {
	for i := range products {
		if products[i].ID == id {
			return i
		}
	}
	return -1
}

func countByCountry(products []domain.Product) map[domain.Country]int {
	counts := make(map[domain.Country]int)
	for _, p := range products {
		counts[p.Country]++
	}
	return counts
}
