// Package sync hosts the orchestrator that drives multi-store product
// synchronization: collecting product-store links, pulling remote state,
// detecting and resolving conflicts, and pushing the winning values back out.
package sync

import (
	"context"
	"errors"
	"fmt"
	"strconv"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/dropcraft/backend/internal/domain/catalog"
	"github.com/dropcraft/backend/internal/domain/job"
	"github.com/dropcraft/backend/internal/domain/platform"
	syncdomain "github.com/dropcraft/backend/internal/domain/sync"
	"github.com/dropcraft/backend/internal/infrastructure/telemetry"
)

// ErrNoLinks indicates a sync request that matched no product-store links.
var ErrNoLinks = errors.New("sync: no product store links matched the request")

// progressFlushEvery is how many processed links trigger one ledger write.
const progressFlushEvery = 10

// CredentialsDecoder decodes a store's encrypted credential blob.
type CredentialsDecoder interface {
	Decode(ciphertext []byte) (platform.Credentials, error)
}

// RateLimiter throttles outbound platform calls per store. A nil limiter
// means unthrottled.
type RateLimiter interface {
	// Wait blocks until a call for the key may proceed or ctx ends.
	Wait(ctx context.Context, key string) error
}

// Request describes one sync batch.
type Request struct {
	// JobID is the ledger job tracking this batch.
	JobID uuid.UUID
	// OwnerID scopes every lookup; links of other users are invisible.
	OwnerID uuid.UUID
	// StoreIDs optionally limits the batch to specific stores.
	StoreIDs []uuid.UUID
	// ProductIDs optionally limits the batch to specific products.
	ProductIDs []uuid.UUID
	// Strategy decides how detected conflicts are resolved.
	Strategy syncdomain.Strategy
}

// Result summarizes one finished sync batch.
type Result struct {
	Synced         int
	Failed         int
	ConflictsFound int
	ManualReview   int
}

// Orchestrator coordinates one sync batch across stores and platforms. Each
// link is processed independently; one failing link never aborts the batch.
type Orchestrator struct {
	links    platform.LinkRepository
	stores   platform.StoreRepository
	products catalog.Repository
	registry platform.Registry
	decoder  CredentialsDecoder
	jobs     job.Repository
	items    job.ItemRepository
	limiter  RateLimiter
	logger   *zap.Logger
}

// NewOrchestrator wires a sync orchestrator.
func NewOrchestrator(
	links platform.LinkRepository,
	stores platform.StoreRepository,
	products catalog.Repository,
	registry platform.Registry,
	decoder CredentialsDecoder,
	jobs job.Repository,
	items job.ItemRepository,
	limiter RateLimiter,
	logger *zap.Logger,
) *Orchestrator {
	return &Orchestrator{
		links:    links,
		stores:   stores,
		products: products,
		registry: registry,
		decoder:  decoder,
		jobs:     jobs,
		items:    items,
		limiter:  limiter,
		logger:   logger,
	}
}

// Run executes the batch against the job identified by req.JobID. The job
// row must already exist; redelivered tasks re-enter here safely because
// Start is idempotent and every write is an upsert or additive increment.
func (o *Orchestrator) Run(ctx context.Context, req Request) (*Result, error) {
	ctx, span := telemetry.StartSpan(ctx, "sync.run",
		telemetry.WithAttribute(telemetry.SpanAttrJobID, req.JobID),
		telemetry.WithAttribute(telemetry.SpanAttrStrategy, string(req.Strategy)),
	)
	defer span.End()

	links, err := o.collectLinks(ctx, req)
	if err != nil {
		telemetry.RecordError(span, err)
		return nil, err
	}
	if len(links) == 0 {
		return nil, ErrNoLinks
	}

	j, err := o.jobs.FindByID(ctx, req.JobID)
	if err != nil {
		return nil, fmt.Errorf("sync: failed to load job %s: %w", req.JobID, err)
	}
	if j.Status.IsTerminal() {
		// Redelivery of a task whose first run already settled the ledger.
		return resultFromJob(j), nil
	}
	if err := j.Start(len(links)); err != nil {
		return nil, err
	}
	if err := o.jobs.Upsert(ctx, j); err != nil {
		return nil, fmt.Errorf("sync: failed to start job %s: %w", req.JobID, err)
	}

	// Adapters are constructed once per store for the whole batch.
	adapters := make(map[uuid.UUID]platform.Adapter)
	progress := job.NewProgress(len(links))
	result := &Result{}

	for i := range links {
		link := &links[i]

		if err := ctx.Err(); err != nil {
			// Cancellation is cooperative: stop taking new links, flush
			// what happened so far.
			break
		}
		if i > 0 && o.jobHalted(ctx, req.JobID) {
			// A cancel landed on the ledger row while the batch was running.
			// Finished links stay finished; no further link starts.
			break
		}

		if err := o.syncLink(ctx, req, link, adapters, result); err != nil {
			o.recordLinkFailure(ctx, req.JobID, link, err)
			progress.RecordFailure()
			result.Failed++
		} else {
			progress.RecordSuccess()
			result.Synced++
		}

		if progress.ShouldFlush(progressFlushEvery) {
			o.flushProgress(ctx, req.JobID, progress)
		}
	}

	if progress.HasUnflushed() {
		o.flushProgress(ctx, req.JobID, progress)
	}

	telemetry.SetAttributes(span,
		"synced", result.Synced,
		"failed", result.Failed,
		telemetry.SpanAttrConflicts, result.ConflictsFound,
	)

	return result, o.completeJob(ctx, req.JobID, result)
}

// jobHalted reports whether the ledger row reached a terminal status while
// the batch was running. A load failure is advisory only; the batch keeps
// going rather than stalling on a flaky read.
func (o *Orchestrator) jobHalted(ctx context.Context, jobID uuid.UUID) bool {
	j, err := o.jobs.FindByID(ctx, jobID)
	if err != nil {
		o.logger.Warn("failed to re-check job status",
			zap.String("job_id", jobID.String()), zap.Error(err))
		return false
	}
	return j.Status.IsTerminal()
}

// collectLinks resolves the owner-scoped link set for the request.
func (o *Orchestrator) collectLinks(ctx context.Context, req Request) ([]platform.ProductStoreLink, error) {
	filter := platform.LinkFilter{ProductIDs: req.ProductIDs}

	if len(req.StoreIDs) == 0 {
		links, err := o.links.FindForOwner(ctx, req.OwnerID, filter)
		if err != nil {
			return nil, fmt.Errorf("sync: failed to list links: %w", err)
		}
		return links, nil
	}

	var all []platform.ProductStoreLink
	for _, storeID := range req.StoreIDs {
		id := storeID
		filter.StoreID = &id
		links, err := o.links.FindForOwner(ctx, req.OwnerID, filter)
		if err != nil {
			return nil, fmt.Errorf("sync: failed to list links for store %s: %w", storeID, err)
		}
		all = append(all, links...)
	}
	return all, nil
}

// syncLink processes one product-store link end to end.
func (o *Orchestrator) syncLink(
	ctx context.Context,
	req Request,
	link *platform.ProductStoreLink,
	adapters map[uuid.UUID]platform.Adapter,
	result *Result,
) error {
	adapter, err := o.adapterFor(ctx, req.OwnerID, link.StoreID, adapters)
	if err != nil {
		return err
	}

	product, err := o.products.FindByID(ctx, link.ProductID)
	if err != nil {
		return fmt.Errorf("failed to load product %s: %w", link.ProductID, err)
	}

	if o.limiter != nil {
		if err := o.limiter.Wait(ctx, link.StoreID.String()); err != nil {
			return err
		}
	}

	if !link.IsLinked() {
		return o.pushCreate(ctx, adapter, product, link, req.JobID)
	}
	return o.syncLinked(ctx, req, adapter, product, link, result)
}

// pushCreate publishes a product that has never been on the store.
func (o *Orchestrator) pushCreate(
	ctx context.Context,
	adapter platform.Adapter,
	product *catalog.Product,
	link *platform.ProductStoreLink,
	jobID uuid.UUID,
) error {
	pushed, err := adapter.PushProduct(ctx, toPlatformProduct(product))
	if err != nil {
		return fmt.Errorf("push failed: %w", err)
	}

	link.RecordSyncSuccess(pushed.ExternalID)
	if err := o.links.Save(ctx, link); err != nil {
		return fmt.Errorf("failed to save link: %w", err)
	}

	o.appendItem(ctx, jobID, link, job.ItemStatusSuccess, "published to store")
	return nil
}

// syncLinked reconciles an already-linked product: pull, detect, resolve,
// apply, push.
func (o *Orchestrator) syncLinked(
	ctx context.Context,
	req Request,
	adapter platform.Adapter,
	product *catalog.Product,
	link *platform.ProductStoreLink,
	result *Result,
) error {
	remote, err := adapter.PullProduct(ctx, link.ExternalProductID)
	if err != nil {
		return fmt.Errorf("pull failed: %w", err)
	}

	conflicts := syncdomain.DetectConflicts(product, remote, link.StoreID)
	result.ConflictsFound += len(conflicts)

	if len(conflicts) == 0 {
		return o.pushUpdate(ctx, adapter, product, link, req.JobID, "in sync, pushed current state")
	}

	resolution, err := syncdomain.Resolve(conflicts, req.Strategy)
	if err != nil {
		return err
	}

	if resolution.NeedsReview() {
		// Disputed fields park the link; nothing is pushed until a human
		// decides, so a wrong price can never overwrite either side.
		link.RecordConflicts(toPendingConflicts(resolution.ManualReview))
		if err := o.links.Save(ctx, link); err != nil {
			return fmt.Errorf("failed to save conflicted link: %w", err)
		}
		result.ManualReview += len(resolution.ManualReview)

		msg := fmt.Sprintf("%d field(s) held for manual review", len(resolution.ManualReview))
		o.appendConflictItem(ctx, req.JobID, link, msg, conflicts)
		return nil
	}

	if err := o.applyPullActions(ctx, product, resolution.Actions); err != nil {
		return err
	}

	if hasPushAction(resolution.Actions) {
		link.MarkOutdated()
		msg := fmt.Sprintf("resolved %d conflict(s), pushed local state", len(conflicts))
		return o.pushUpdate(ctx, adapter, product, link, req.JobID, msg)
	}

	// Pull-only resolution: remote already holds the winning values.
	link.RecordSyncSuccess("")
	if err := o.links.Save(ctx, link); err != nil {
		return fmt.Errorf("failed to save link: %w", err)
	}
	o.appendItem(ctx, req.JobID, link, job.ItemStatusSuccess,
		fmt.Sprintf("resolved %d conflict(s) from remote state", len(conflicts)))
	return nil
}

// pushUpdate pushes the local snapshot and marks the link synced.
func (o *Orchestrator) pushUpdate(
	ctx context.Context,
	adapter platform.Adapter,
	product *catalog.Product,
	link *platform.ProductStoreLink,
	jobID uuid.UUID,
	message string,
) error {
	remote := toPlatformProduct(product)
	remote.ExternalID = link.ExternalProductID

	pushed, err := adapter.PushProduct(ctx, remote)
	if err != nil {
		return fmt.Errorf("push failed: %w", err)
	}

	link.RecordSyncSuccess(pushed.ExternalID)
	if err := o.links.Save(ctx, link); err != nil {
		return fmt.Errorf("failed to save link: %w", err)
	}

	o.appendItem(ctx, jobID, link, job.ItemStatusSuccess, message)
	return nil
}

// applyPullActions writes pull-direction resolution values onto the local
// product.
func (o *Orchestrator) applyPullActions(ctx context.Context, product *catalog.Product, actions []syncdomain.Action) error {
	fields := make(map[string]any)
	for _, a := range actions {
		if a.Direction != syncdomain.DirectionPull {
			continue
		}
		value, err := parseFieldValue(a.Field, a.Value)
		if err != nil {
			return err
		}
		fields[a.Field] = value
		applyFieldLocally(product, a.Field, value)
	}
	if len(fields) == 0 {
		return nil
	}
	if err := o.products.UpdateFields(ctx, product.ID, fields); err != nil {
		return fmt.Errorf("failed to apply pulled fields: %w", err)
	}
	return nil
}

// adapterFor returns the batch-cached adapter for a store, constructing it on
// first use.
func (o *Orchestrator) adapterFor(ctx context.Context, ownerID, storeID uuid.UUID, cache map[uuid.UUID]platform.Adapter) (platform.Adapter, error) {
	if adapter, ok := cache[storeID]; ok {
		return adapter, nil
	}

	store, err := o.stores.FindByIDForOwner(ctx, ownerID, storeID)
	if err != nil {
		return nil, fmt.Errorf("failed to load store %s: %w", storeID, err)
	}

	creds, err := o.decoder.Decode(store.CredentialsCiphertext)
	if err != nil {
		return nil, fmt.Errorf("failed to decode credentials for store %s: %w", storeID, err)
	}

	adapter, err := o.registry.New(store.Platform, creds)
	if err != nil {
		return nil, err
	}
	cache[storeID] = adapter
	return adapter, nil
}

// recordLinkFailure persists the per-link error on the link and the job item.
func (o *Orchestrator) recordLinkFailure(ctx context.Context, jobID uuid.UUID, link *platform.ProductStoreLink, cause error) {
	o.logger.Warn("link sync failed",
		zap.String("link_id", link.ID.String()),
		zap.String("product_id", link.ProductID.String()),
		zap.String("store_id", link.StoreID.String()),
		zap.Error(cause))

	link.RecordSyncError(cause.Error())
	if err := o.links.Save(ctx, link); err != nil {
		o.logger.Error("failed to save link error state",
			zap.String("link_id", link.ID.String()), zap.Error(err))
	}

	o.appendItem(ctx, jobID, link, job.ItemStatusFailed, cause.Error())
}

// appendItem writes one per-link outcome record; item write failures are
// logged, never escalated.
func (o *Orchestrator) appendItem(ctx context.Context, jobID uuid.UUID, link *platform.ProductStoreLink, status job.ItemStatus, message string) {
	item, err := job.NewItem(jobID, status, message)
	if err != nil {
		o.logger.Error("failed to build job item", zap.Error(err))
		return
	}
	item.WithProduct(link.ProductID)
	if err := o.items.Append(ctx, item); err != nil {
		o.logger.Error("failed to append job item",
			zap.String("job_id", jobID.String()), zap.Error(err))
	}
}

// appendConflictItem writes a warning item carrying the disputed fields.
func (o *Orchestrator) appendConflictItem(ctx context.Context, jobID uuid.UUID, link *platform.ProductStoreLink, message string, conflicts []syncdomain.Conflict) {
	item, err := job.NewItem(jobID, job.ItemStatusWarning, message)
	if err != nil {
		o.logger.Error("failed to build job item", zap.Error(err))
		return
	}

	before := make(map[string]any, len(conflicts))
	after := make(map[string]any, len(conflicts))
	for _, c := range conflicts {
		before[c.Field] = c.LocalValue
		after[c.Field] = c.RemoteValue
	}
	item.WithProduct(link.ProductID).WithErrorCode("conflict").WithStates(before, after)

	if err := o.items.Append(ctx, item); err != nil {
		o.logger.Error("failed to append job item",
			zap.String("job_id", jobID.String()), zap.Error(err))
	}
}

// flushProgress applies accumulated deltas with an additive ledger write.
func (o *Orchestrator) flushProgress(ctx context.Context, jobID uuid.UUID, progress *job.Progress) {
	processed, failed := progress.FlushDeltas()
	if processed == 0 && failed == 0 {
		return
	}
	if err := o.jobs.IncrementProgress(ctx, jobID, processed, failed); err != nil {
		o.logger.Error("failed to flush job progress",
			zap.String("job_id", jobID.String()), zap.Error(err))
	}
}

// completeJob writes the terminal job state with the batch summary.
func (o *Orchestrator) completeJob(ctx context.Context, jobID uuid.UUID, result *Result) error {
	j, err := o.jobs.FindByID(ctx, jobID)
	if err != nil {
		return fmt.Errorf("sync: failed to reload job %s: %w", jobID, err)
	}
	if j.Status.IsTerminal() {
		return nil
	}

	output := map[string]any{
		"synced":          result.Synced,
		"failed":          result.Failed,
		"conflicts_found": result.ConflictsFound,
		"manual_review":   result.ManualReview,
	}
	if err := j.Complete(output); err != nil {
		return err
	}
	if j.Metadata == nil {
		j.Metadata = make(map[string]any)
	}
	j.Metadata["conflicts_found"] = result.ConflictsFound

	if err := o.jobs.Upsert(ctx, j); err != nil {
		return fmt.Errorf("sync: failed to complete job %s: %w", jobID, err)
	}
	return nil
}

// ---------------------------------------------------------------------------
// Conversions
// ---------------------------------------------------------------------------

// toPlatformProduct maps the local catalog snapshot onto the normalized
// platform shape for a push.
func toPlatformProduct(p *catalog.Product) *platform.Product {
	return &platform.Product{
		Title:          p.Title,
		Description:    p.Description,
		SKU:            p.SKU,
		Price:          p.Price,
		CompareAtPrice: p.CompareAtPrice,
		Stock:          p.Stock,
		Currency:       p.Currency,
		ImageURLs:      p.ImageURLs,
		Tags:           p.Tags,
		Status:         platform.ProductStatus(p.Status),
		Weight:         p.Weight,
		UpdatedAt:      p.UpdatedAt,
	}
}

// toPendingConflicts converts resolver output to the persisted link shape.
func toPendingConflicts(conflicts []syncdomain.Conflict) []platform.PendingConflict {
	pending := make([]platform.PendingConflict, 0, len(conflicts))
	for _, c := range conflicts {
		pending = append(pending, platform.PendingConflict{
			Field:       c.Field,
			LocalValue:  c.LocalValue,
			RemoteValue: c.RemoteValue,
			DetectedAt:  c.RemoteUpdatedAt,
		})
	}
	return pending
}

// parseFieldValue decodes a resolution action value into the concrete type
// the catalog column expects.
func parseFieldValue(field, value string) (any, error) {
	switch field {
	case syncdomain.FieldPrice, syncdomain.FieldCompareAtPrice:
		d, err := decimal.NewFromString(value)
		if err != nil {
			return nil, fmt.Errorf("sync: bad decimal for %s: %w", field, err)
		}
		return d, nil
	case syncdomain.FieldStock:
		n, err := strconv.Atoi(value)
		if err != nil {
			return nil, fmt.Errorf("sync: bad stock value: %w", err)
		}
		return n, nil
	default:
		return value, nil
	}
}

// applyFieldLocally mirrors a pulled value onto the in-memory product so a
// subsequent push in the same batch sees the resolved state.
func applyFieldLocally(p *catalog.Product, field string, value any) {
	switch field {
	case syncdomain.FieldTitle:
		p.Title = value.(string)
	case syncdomain.FieldDescription:
		p.Description = value.(string)
	case syncdomain.FieldPrice:
		p.Price = value.(decimal.Decimal)
	case syncdomain.FieldCompareAtPrice:
		p.CompareAtPrice = value.(decimal.Decimal)
	case syncdomain.FieldStock:
		p.Stock = value.(int)
	case syncdomain.FieldStatus:
		p.Status = value.(string)
	}
}

// resultFromJob reconstructs the batch summary of an already-finished job.
func resultFromJob(j *job.Job) *Result {
	return &Result{
		Synced:         intFrom(j.OutputData["synced"]),
		Failed:         intFrom(j.OutputData["failed"]),
		ConflictsFound: intFrom(j.OutputData["conflicts_found"]),
		ManualReview:   intFrom(j.OutputData["manual_review"]),
	}
}

// intFrom reads a numeric output value regardless of whether it came back
// from JSON decoding as a float.
func intFrom(v any) int {
	switch n := v.(type) {
	case int:
		return n
	case int64:
		return int(n)
	case float64:
		return int(n)
	default:
		return 0
	}
}

// hasPushAction reports whether any action moves data toward the store.
func hasPushAction(actions []syncdomain.Action) bool {
	for _, a := range actions {
		if a.Direction == syncdomain.DirectionPush {
			return true
		}
	}
	return false
}
