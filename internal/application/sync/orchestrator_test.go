package sync

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/dropcraft/backend/internal/domain/catalog"
	"github.com/dropcraft/backend/internal/domain/job"
	"github.com/dropcraft/backend/internal/domain/platform"
	syncdomain "github.com/dropcraft/backend/internal/domain/sync"
)

// ---------------------------------------------------------------------------
// Fakes
// ---------------------------------------------------------------------------

type fakeLinkRepo struct {
	mu    sync.Mutex
	links map[uuid.UUID]*platform.ProductStoreLink
}

func newFakeLinkRepo() *fakeLinkRepo {
	return &fakeLinkRepo{links: make(map[uuid.UUID]*platform.ProductStoreLink)}
}

func (r *fakeLinkRepo) FindByID(_ context.Context, id uuid.UUID) (*platform.ProductStoreLink, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	l, ok := r.links[id]
	if !ok {
		return nil, platform.ErrLinkNotFound
	}
	cp := *l
	return &cp, nil
}

func (r *fakeLinkRepo) FindForOwner(_ context.Context, ownerID uuid.UUID, filter platform.LinkFilter) ([]platform.ProductStoreLink, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []platform.ProductStoreLink
	for _, l := range r.links {
		if l.OwnerID != ownerID {
			continue
		}
		if filter.StoreID != nil && l.StoreID != *filter.StoreID {
			continue
		}
		if len(filter.ProductIDs) > 0 && !containsID(filter.ProductIDs, l.ProductID) {
			continue
		}
		out = append(out, *l)
	}
	return out, nil
}

func (r *fakeLinkRepo) FindByProductAndStore(_ context.Context, ownerID, productID, storeID uuid.UUID) (*platform.ProductStoreLink, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, l := range r.links {
		if l.OwnerID == ownerID && l.ProductID == productID && l.StoreID == storeID {
			cp := *l
			return &cp, nil
		}
	}
	return nil, platform.ErrLinkNotFound
}

func (r *fakeLinkRepo) Save(_ context.Context, link *platform.ProductStoreLink) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	cp := *link
	r.links[link.ID] = &cp
	return nil
}

type fakeStoreRepo struct {
	stores map[uuid.UUID]*platform.Store
}

func (r *fakeStoreRepo) FindByID(_ context.Context, id uuid.UUID) (*platform.Store, error) {
	s, ok := r.stores[id]
	if !ok {
		return nil, platform.ErrStoreNotFound
	}
	return s, nil
}

func (r *fakeStoreRepo) FindByIDForOwner(_ context.Context, ownerID, id uuid.UUID) (*platform.Store, error) {
	s, ok := r.stores[id]
	if !ok || s.OwnerID != ownerID {
		return nil, platform.ErrStoreNotFound
	}
	return s, nil
}

func (r *fakeStoreRepo) ListActiveByOwner(_ context.Context, ownerID uuid.UUID) ([]platform.Store, error) {
	var out []platform.Store
	for _, s := range r.stores {
		if s.OwnerID == ownerID && s.IsActive {
			out = append(out, *s)
		}
	}
	return out, nil
}

func (r *fakeStoreRepo) Save(_ context.Context, s *platform.Store) error {
	r.stores[s.ID] = s
	return nil
}

func (r *fakeStoreRepo) Delete(_ context.Context, id uuid.UUID) error {
	delete(r.stores, id)
	return nil
}

type fakeProductRepo struct {
	mu       sync.Mutex
	products map[uuid.UUID]*catalog.Product
	updates  map[uuid.UUID]map[string]any
}

func newFakeProductRepo() *fakeProductRepo {
	return &fakeProductRepo{
		products: make(map[uuid.UUID]*catalog.Product),
		updates:  make(map[uuid.UUID]map[string]any),
	}
}

func (r *fakeProductRepo) FindByID(_ context.Context, id uuid.UUID) (*catalog.Product, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	p, ok := r.products[id]
	if !ok {
		return nil, catalog.ErrProductNotFound
	}
	cp := *p
	return &cp, nil
}

func (r *fakeProductRepo) FindByIDs(ctx context.Context, ids []uuid.UUID) (map[uuid.UUID]*catalog.Product, error) {
	out := make(map[uuid.UUID]*catalog.Product)
	for _, id := range ids {
		if p, err := r.FindByID(ctx, id); err == nil {
			out[id] = p
		}
	}
	return out, nil
}

func (r *fakeProductRepo) UpdateFields(_ context.Context, id uuid.UUID, fields map[string]any) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.products[id]; !ok {
		return catalog.ErrProductNotFound
	}
	r.updates[id] = fields
	return nil
}

// fakeAdapter scripts per-external-id behavior for one store.
type fakeAdapter struct {
	mu      sync.Mutex
	remote  map[string]*platform.Product
	pushed  []platform.Product
	pushErr map[string]error
	pullErr map[string]error
	nextID  int
}

func newFakeAdapter() *fakeAdapter {
	return &fakeAdapter{
		remote:  make(map[string]*platform.Product),
		pushErr: make(map[string]error),
		pullErr: make(map[string]error),
		nextID:  1000,
	}
}

func (a *fakeAdapter) Code() platform.Code { return platform.CodeShopify }

func (a *fakeAdapter) TestConnection(context.Context) error { return nil }

func (a *fakeAdapter) DeleteProduct(context.Context, string) error { return nil }

func (a *fakeAdapter) PushProduct(_ context.Context, p *platform.Product) (*platform.PushResult, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if err := a.pushErr[p.ExternalID]; err != nil {
		return nil, err
	}
	a.pushed = append(a.pushed, *p)
	id := p.ExternalID
	if id == "" {
		a.nextID++
		id = "ext-" + uuid.NewString()[:8]
	}
	cp := *p
	cp.ExternalID = id
	a.remote[id] = &cp
	return &platform.PushResult{ExternalID: id}, nil
}

func (a *fakeAdapter) PullProduct(_ context.Context, externalID string) (*platform.Product, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if err := a.pullErr[externalID]; err != nil {
		return nil, err
	}
	p, ok := a.remote[externalID]
	if !ok {
		return nil, platform.ErrProductNotFound
	}
	cp := *p
	return &cp, nil
}

func (a *fakeAdapter) UpdateStock(context.Context, string, int) error { return nil }
func (a *fakeAdapter) UpdatePrice(context.Context, string, decimal.Decimal) error {
	return nil
}

// fakeRegistry hands out one shared adapter regardless of credentials.
type fakeRegistry struct {
	adapter *fakeAdapter
}

func (r *fakeRegistry) New(platform.Code, platform.Credentials) (platform.Adapter, error) {
	return r.adapter, nil
}

func (r *fakeRegistry) Codes() []platform.Code {
	return []platform.Code{platform.CodeShopify}
}

type fakeDecoder struct{}

func (fakeDecoder) Decode([]byte) (platform.Credentials, error) {
	return platform.Credentials{ShopURL: "test.myshopify.com", AccessToken: "t"}, nil
}

type fakeJobRepo struct {
	mu   sync.Mutex
	jobs map[uuid.UUID]*job.Job

	incrementCalls int
}

func newFakeJobRepo() *fakeJobRepo {
	return &fakeJobRepo{jobs: make(map[uuid.UUID]*job.Job)}
}

func (r *fakeJobRepo) FindByID(_ context.Context, id uuid.UUID) (*job.Job, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	j, ok := r.jobs[id]
	if !ok {
		return nil, job.ErrJobNotFound
	}
	cp := *j
	return &cp, nil
}

func (r *fakeJobRepo) FindByIDForUser(ctx context.Context, userID, id uuid.UUID) (*job.Job, error) {
	j, err := r.FindByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if j.UserID != userID {
		return nil, job.ErrJobNotFound
	}
	return j, nil
}

func (r *fakeJobRepo) ListByUser(_ context.Context, userID uuid.UUID, _ job.Filter) ([]job.Job, int64, error) {
	return nil, 0, nil
}

func (r *fakeJobRepo) Upsert(_ context.Context, j *job.Job) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	cp := *j
	r.jobs[j.ID] = &cp
	return nil
}

func (r *fakeJobRepo) IncrementProgress(_ context.Context, id uuid.UUID, processedDelta, failedDelta int) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	j, ok := r.jobs[id]
	if !ok {
		return job.ErrJobNotFound
	}
	j.ProcessedItems += processedDelta
	j.FailedItems += failedDelta
	r.incrementCalls++
	return nil
}

func (r *fakeJobRepo) SetMetadata(_ context.Context, id uuid.UUID, metadata map[string]any) error {
	return nil
}

func (r *fakeJobRepo) DeleteTerminalBefore(context.Context, time.Time) (int64, error) {
	return 0, nil
}

type fakeItemRepo struct {
	mu    sync.Mutex
	items []job.Item
}

func (r *fakeItemRepo) Append(_ context.Context, item *job.Item) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.items = append(r.items, *item)
	return nil
}

func (r *fakeItemRepo) ListByJob(context.Context, uuid.UUID) ([]job.Item, error) {
	return r.items, nil
}

func (r *fakeItemRepo) ListFailedByJob(context.Context, uuid.UUID) ([]job.Item, error) {
	var out []job.Item
	for _, i := range r.items {
		if i.Status.IsFailure() {
			out = append(out, i)
		}
	}
	return out, nil
}

func containsID(ids []uuid.UUID, id uuid.UUID) bool {
	for _, candidate := range ids {
		if candidate == id {
			return true
		}
	}
	return false
}

// ---------------------------------------------------------------------------
// Fixture
// ---------------------------------------------------------------------------

type fixture struct {
	ownerID uuid.UUID
	storeID uuid.UUID

	links    *fakeLinkRepo
	stores   *fakeStoreRepo
	products *fakeProductRepo
	adapter  *fakeAdapter
	jobs     *fakeJobRepo
	items    *fakeItemRepo

	orch *Orchestrator
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	ownerID := uuid.New()

	store, err := platform.NewStore(ownerID, "Main Shop", platform.CodeShopify, []byte("cipher"))
	require.NoError(t, err)

	f := &fixture{
		ownerID:  ownerID,
		storeID:  store.ID,
		links:    newFakeLinkRepo(),
		stores:   &fakeStoreRepo{stores: map[uuid.UUID]*platform.Store{store.ID: store}},
		products: newFakeProductRepo(),
		adapter:  newFakeAdapter(),
		jobs:     newFakeJobRepo(),
		items:    &fakeItemRepo{},
	}
	f.orch = NewOrchestrator(
		f.links, f.stores, f.products, &fakeRegistry{adapter: f.adapter},
		fakeDecoder{}, f.jobs, f.items, nil, zap.NewNop())
	return f
}

// addLinkedProduct seeds a product, its remote twin, and the link between them.
func (f *fixture) addLinkedProduct(t *testing.T, price, remotePrice decimal.Decimal) *platform.ProductStoreLink {
	t.Helper()
	product := &catalog.Product{
		ID:        uuid.New(),
		OwnerID:   f.ownerID,
		Title:     "Widget",
		SKU:       "W-1",
		Price:     price,
		Stock:     10,
		Status:    "active",
		UpdatedAt: time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC),
	}
	f.products.products[product.ID] = product

	externalID := "ext-" + uuid.NewString()[:8]
	f.adapter.remote[externalID] = &platform.Product{
		ExternalID: externalID,
		Title:      "Widget",
		SKU:        "W-1",
		Price:      remotePrice,
		Stock:      10,
		Status:     platform.ProductStatusActive,
		UpdatedAt:  time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC),
	}

	link, err := platform.NewProductStoreLink(f.ownerID, product.ID, f.storeID)
	require.NoError(t, err)
	link.RecordSyncSuccess(externalID)
	require.NoError(t, f.links.Save(context.Background(), link))
	return link
}

func (f *fixture) newJob(t *testing.T) uuid.UUID {
	t.Helper()
	j, err := job.New(uuid.New(), f.ownerID, job.TypeSync, "stores", nil)
	require.NoError(t, err)
	require.NoError(t, f.jobs.Upsert(context.Background(), j))
	return j.ID
}

// ---------------------------------------------------------------------------
// Tests
// ---------------------------------------------------------------------------

func TestOrchestratorRun(t *testing.T) {
	ctx := context.Background()

	t.Run("no links fails fast", func(t *testing.T) {
		f := newFixture(t)
		_, err := f.orch.Run(ctx, Request{
			JobID:    f.newJob(t),
			OwnerID:  f.ownerID,
			Strategy: syncdomain.StrategyLocalWins,
		})
		assert.ErrorIs(t, err, ErrNoLinks)
	})

	t.Run("in-sync links push and complete the job", func(t *testing.T) {
		f := newFixture(t)
		price := decimal.NewFromInt(20)
		f.addLinkedProduct(t, price, price)
		f.addLinkedProduct(t, price, price)
		jobID := f.newJob(t)

		result, err := f.orch.Run(ctx, Request{
			JobID: jobID, OwnerID: f.ownerID, Strategy: syncdomain.StrategyLocalWins,
		})
		require.NoError(t, err)
		assert.Equal(t, 2, result.Synced)
		assert.Zero(t, result.Failed)
		assert.Zero(t, result.ConflictsFound)

		j, err := f.jobs.FindByID(ctx, jobID)
		require.NoError(t, err)
		assert.Equal(t, job.StatusCompleted, j.Status)
		assert.Equal(t, 2, j.TotalItems)
		assert.Equal(t, 2, j.ProcessedItems)
		assert.Equal(t, 2, j.OutputData["synced"])
	})

	t.Run("local_wins pushes the local price over a remote divergence", func(t *testing.T) {
		f := newFixture(t)
		link := f.addLinkedProduct(t, decimal.NewFromInt(20), decimal.NewFromInt(25))
		jobID := f.newJob(t)

		result, err := f.orch.Run(ctx, Request{
			JobID: jobID, OwnerID: f.ownerID, Strategy: syncdomain.StrategyLocalWins,
		})
		require.NoError(t, err)
		assert.Equal(t, 1, result.Synced)
		assert.Equal(t, 1, result.ConflictsFound)
		assert.Zero(t, result.ManualReview)

		require.NotEmpty(t, f.adapter.pushed)
		pushed := f.adapter.pushed[len(f.adapter.pushed)-1]
		assert.True(t, pushed.Price.Equal(decimal.NewFromInt(20)))

		saved, err := f.links.FindByID(ctx, link.ID)
		require.NoError(t, err)
		assert.Equal(t, platform.SyncStatusSynced, saved.SyncStatus)
	})

	t.Run("critical conflict under newest_wins parks the link", func(t *testing.T) {
		f := newFixture(t)
		link := f.addLinkedProduct(t, decimal.NewFromInt(20), decimal.NewFromInt(25))
		jobID := f.newJob(t)

		result, err := f.orch.Run(ctx, Request{
			JobID: jobID, OwnerID: f.ownerID, Strategy: syncdomain.StrategyNewestWins,
		})
		require.NoError(t, err)
		assert.Equal(t, 1, result.Synced)
		assert.Equal(t, 1, result.ManualReview)

		saved, err := f.links.FindByID(ctx, link.ID)
		require.NoError(t, err)
		assert.Equal(t, platform.SyncStatusConflict, saved.SyncStatus)
		require.Len(t, saved.PendingConflicts, 1)
		assert.Equal(t, syncdomain.FieldPrice, saved.PendingConflicts[0].Field)
		assert.Equal(t, "20", saved.PendingConflicts[0].LocalValue)
		assert.Equal(t, "25", saved.PendingConflicts[0].RemoteValue)

		// Nothing was pushed for the parked link.
		assert.Empty(t, f.adapter.pushed)

		// The item records the dispute as a warning, not a failure.
		require.Len(t, f.items.items, 1)
		assert.Equal(t, job.ItemStatusWarning, f.items.items[0].Status)
		assert.Equal(t, "conflict", f.items.items[0].ErrorCode)
	})

	t.Run("remote_wins on a non-critical field pulls it locally", func(t *testing.T) {
		f := newFixture(t)
		price := decimal.NewFromInt(20)
		link := f.addLinkedProduct(t, price, price)
		remote := f.adapter.remote[link.ExternalProductID]
		remote.Title = "Widget Deluxe"
		jobID := f.newJob(t)

		result, err := f.orch.Run(ctx, Request{
			JobID: jobID, OwnerID: f.ownerID, Strategy: syncdomain.StrategyRemoteWins,
		})
		require.NoError(t, err)
		assert.Equal(t, 1, result.Synced)
		assert.Zero(t, result.ManualReview)

		productID := link.ProductID
		fields := f.products.updates[productID]
		require.NotNil(t, fields)
		assert.Equal(t, "Widget Deluxe", fields[syncdomain.FieldTitle])
	})

	t.Run("one failing link does not abort the batch", func(t *testing.T) {
		f := newFixture(t)
		price := decimal.NewFromInt(20)
		var links []*platform.ProductStoreLink
		for i := 0; i < 5; i++ {
			links = append(links, f.addLinkedProduct(t, price, price))
		}
		f.adapter.pullErr[links[2].ExternalProductID] = platform.ErrPlatformUnavailable
		jobID := f.newJob(t)

		result, err := f.orch.Run(ctx, Request{
			JobID: jobID, OwnerID: f.ownerID, Strategy: syncdomain.StrategyLocalWins,
		})
		require.NoError(t, err)
		assert.Equal(t, 4, result.Synced)
		assert.Equal(t, 1, result.Failed)

		saved, err := f.links.FindByID(ctx, links[2].ID)
		require.NoError(t, err)
		assert.Equal(t, platform.SyncStatusError, saved.SyncStatus)
		assert.Contains(t, saved.LastError, "pull failed")

		j, err := f.jobs.FindByID(ctx, jobID)
		require.NoError(t, err)
		assert.Equal(t, job.StatusCompleted, j.Status)
		assert.Equal(t, 4, j.ProcessedItems)
		assert.Equal(t, 1, j.FailedItems)

		failed, err := f.items.ListFailedByJob(ctx, jobID)
		require.NoError(t, err)
		assert.Len(t, failed, 1)
	})

	t.Run("unlinked product is published and gains an external id", func(t *testing.T) {
		f := newFixture(t)
		product := &catalog.Product{
			ID: uuid.New(), OwnerID: f.ownerID, Title: "Fresh",
			Price: decimal.NewFromInt(15), Status: "active",
		}
		f.products.products[product.ID] = product
		link, err := platform.NewProductStoreLink(f.ownerID, product.ID, f.storeID)
		require.NoError(t, err)
		require.NoError(t, f.links.Save(ctx, link))
		jobID := f.newJob(t)

		result, err := f.orch.Run(ctx, Request{
			JobID: jobID, OwnerID: f.ownerID, Strategy: syncdomain.StrategyLocalWins,
		})
		require.NoError(t, err)
		assert.Equal(t, 1, result.Synced)

		saved, err := f.links.FindByID(ctx, link.ID)
		require.NoError(t, err)
		assert.True(t, saved.IsLinked())
		assert.Equal(t, platform.SyncStatusSynced, saved.SyncStatus)
	})

	t.Run("progress flushes at the cadence and once at the end", func(t *testing.T) {
		f := newFixture(t)
		price := decimal.NewFromInt(20)
		for i := 0; i < 23; i++ {
			f.addLinkedProduct(t, price, price)
		}
		jobID := f.newJob(t)

		_, err := f.orch.Run(ctx, Request{
			JobID: jobID, OwnerID: f.ownerID, Strategy: syncdomain.StrategyLocalWins,
		})
		require.NoError(t, err)

		// 23 links at a cadence of 10: flushes at 10, 20, and a final 3.
		assert.Equal(t, 3, f.jobs.incrementCalls)

		j, err := f.jobs.FindByID(ctx, jobID)
		require.NoError(t, err)
		assert.Equal(t, 23, j.ProcessedItems)
	})

	t.Run("store filter narrows the batch", func(t *testing.T) {
		f := newFixture(t)
		price := decimal.NewFromInt(20)
		f.addLinkedProduct(t, price, price)

		otherStore, err := platform.NewStore(f.ownerID, "Second", platform.CodeShopify, []byte("c"))
		require.NoError(t, err)
		f.stores.stores[otherStore.ID] = otherStore

		result, err := f.orch.Run(ctx, Request{
			JobID:    f.newJob(t),
			OwnerID:  f.ownerID,
			StoreIDs: []uuid.UUID{f.storeID},
			Strategy: syncdomain.StrategyLocalWins,
		})
		require.NoError(t, err)
		assert.Equal(t, 1, result.Synced)

		// The other store has no links at all.
		_, err = f.orch.Run(ctx, Request{
			JobID:    f.newJob(t),
			OwnerID:  f.ownerID,
			StoreIDs: []uuid.UUID{otherStore.ID},
			Strategy: syncdomain.StrategyLocalWins,
		})
		assert.ErrorIs(t, err, ErrNoLinks)
	})

	t.Run("foreign owner sees nothing", func(t *testing.T) {
		f := newFixture(t)
		price := decimal.NewFromInt(20)
		f.addLinkedProduct(t, price, price)

		stranger := uuid.New()
		j, err := job.New(uuid.New(), stranger, job.TypeSync, "stores", nil)
		require.NoError(t, err)
		require.NoError(t, f.jobs.Upsert(ctx, j))

		_, err = f.orch.Run(ctx, Request{
			JobID: j.ID, OwnerID: stranger, Strategy: syncdomain.StrategyLocalWins,
		})
		assert.ErrorIs(t, err, ErrNoLinks)
	})

	t.Run("invalid strategy fails the link not the batch", func(t *testing.T) {
		f := newFixture(t)
		f.addLinkedProduct(t, decimal.NewFromInt(20), decimal.NewFromInt(25))
		jobID := f.newJob(t)

		result, err := f.orch.Run(ctx, Request{
			JobID: jobID, OwnerID: f.ownerID, Strategy: syncdomain.Strategy("coin_flip"),
		})
		require.NoError(t, err)
		assert.Equal(t, 1, result.Failed)
	})
}

// cancellingLimiter cancels the ledger job once the first link has passed the
// rate-limit gate, mimicking a user cancel landing mid-batch.
type cancellingLimiter struct {
	jobs  *fakeJobRepo
	jobID uuid.UUID
	calls int
}

func (l *cancellingLimiter) Wait(ctx context.Context, _ string) error {
	l.calls++
	if l.calls != 1 {
		return nil
	}
	j, err := l.jobs.FindByID(ctx, l.jobID)
	if err != nil {
		return err
	}
	if err := j.Cancel(); err != nil {
		return err
	}
	return l.jobs.Upsert(ctx, j)
}

func TestOrchestratorCancelMidBatch(t *testing.T) {
	// Cancelling the job while its batch runs must stop further links from
	// starting; only the in-flight link may still push.
	ctx := context.Background()
	f := newFixture(t)
	price := decimal.NewFromInt(20)
	for i := 0; i < 3; i++ {
		f.addLinkedProduct(t, price, price)
	}
	jobID := f.newJob(t)

	limiter := &cancellingLimiter{jobs: f.jobs, jobID: jobID}
	orch := NewOrchestrator(
		f.links, f.stores, f.products, &fakeRegistry{adapter: f.adapter},
		fakeDecoder{}, f.jobs, f.items, limiter, zap.NewNop())

	result, err := orch.Run(ctx, Request{
		JobID: jobID, OwnerID: f.ownerID, Strategy: syncdomain.StrategyLocalWins,
	})
	require.NoError(t, err)

	assert.LessOrEqual(t, len(f.adapter.pushed), 1)
	assert.LessOrEqual(t, result.Synced+result.Failed, 1)

	// The cancel sticks; the batch never promotes the job to completed.
	j, err := f.jobs.FindByID(ctx, jobID)
	require.NoError(t, err)
	assert.Equal(t, job.StatusCancelled, j.Status)
}

func TestOrchestratorRedelivery(t *testing.T) {
	// A redelivered task re-runs the whole batch; Start must tolerate the
	// running state and the second pass converges to the same outcome.
	ctx := context.Background()
	f := newFixture(t)
	price := decimal.NewFromInt(20)
	f.addLinkedProduct(t, price, price)
	jobID := f.newJob(t)

	req := Request{JobID: jobID, OwnerID: f.ownerID, Strategy: syncdomain.StrategyLocalWins}

	_, err := f.orch.Run(ctx, req)
	require.NoError(t, err)

	// Second delivery finds the job already terminal and leaves it alone.
	result, err := f.orch.Run(ctx, req)
	require.NoError(t, err)
	assert.Equal(t, 1, result.Synced)

	j, err := f.jobs.FindByID(ctx, jobID)
	require.NoError(t, err)
	assert.Equal(t, job.StatusCompleted, j.Status)
}

func TestParseFieldValue(t *testing.T) {
	v, err := parseFieldValue(syncdomain.FieldPrice, "19.99")
	require.NoError(t, err)
	assert.True(t, v.(decimal.Decimal).Equal(decimal.RequireFromString("19.99")))

	v, err = parseFieldValue(syncdomain.FieldStock, "7")
	require.NoError(t, err)
	assert.Equal(t, 7, v)

	v, err = parseFieldValue(syncdomain.FieldTitle, "Widget")
	require.NoError(t, err)
	assert.Equal(t, "Widget", v)

	_, err = parseFieldValue(syncdomain.FieldStock, "many")
	assert.Error(t, err)
}

func TestToPlatformProduct(t *testing.T) {
	p := &catalog.Product{
		Title:  "Widget",
		Price:  decimal.NewFromInt(20),
		Stock:  4,
		Status: "active",
	}
	remote := toPlatformProduct(p)
	assert.Equal(t, "Widget", remote.Title)
	assert.Equal(t, platform.ProductStatusActive, remote.Status)
	assert.Equal(t, 4, remote.Stock)
	assert.Empty(t, remote.ExternalID)
}
