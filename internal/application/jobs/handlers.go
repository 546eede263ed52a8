package jobs

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	syncapp "github.com/dropcraft/backend/internal/application/sync"
	"github.com/dropcraft/backend/internal/domain/job"
	syncdomain "github.com/dropcraft/backend/internal/domain/sync"
	"github.com/dropcraft/backend/internal/infrastructure/queue"
	"github.com/dropcraft/backend/internal/infrastructure/task"
)

// Task names the worker understands.
const (
	TaskSyncStores     = "sync:stores"
	TaskImportCSV      = "import:csv"
	TaskImportXML      = "import:xml"
	TaskBulkEnrichment = "ai:bulk_enrichment"
	TaskCleanup        = "jobs:cleanup"
)

// Syncer runs one store sync batch. Satisfied by the sync orchestrator.
type Syncer interface {
	Run(ctx context.Context, req syncapp.Request) (*syncapp.Result, error)
}

// Importer ingests a product feed in the given format. Implementations own
// the parsing; the handler owns the job lifecycle around the call.
type Importer interface {
	Import(ctx context.Context, userID uuid.UUID, format string, args map[string]any) (map[string]any, error)
}

// Enricher generates enriched product content for a batch of products.
type Enricher interface {
	Enrich(ctx context.Context, userID uuid.UUID, productIDs []uuid.UUID) (map[string]any, error)
}

// Handlers binds the application services to the worker's task registry.
type Handlers struct {
	syncer   Syncer
	importer Importer
	enricher Enricher
	jobs     job.Repository
	logger   *zap.Logger
}

// NewHandlers creates the task handler set. Importer and enricher are
// optional; tasks without a collaborator fail permanently.
func NewHandlers(syncer Syncer, importer Importer, enricher Enricher, jobs job.Repository, logger *zap.Logger) *Handlers {
	return &Handlers{
		syncer:   syncer,
		importer: importer,
		enricher: enricher,
		jobs:     jobs,
		logger:   logger,
	}
}

// Register wires every handler into the registry.
func (h *Handlers) Register(r *task.Registry) {
	r.MustRegister(TaskSyncStores, h.SyncStores)
	r.MustRegister(TaskImportCSV, h.ImportFeed)
	r.MustRegister(TaskImportXML, h.ImportFeed)
	r.MustRegister(TaskBulkEnrichment, h.BulkEnrichment)
	r.MustRegister(TaskCleanup, h.Cleanup)
}

// ---------------------------------------------------------------------------
// Handlers
// ---------------------------------------------------------------------------

// SyncStores runs a sync batch. The orchestrator manages the job ledger
// itself, so the handler only translates the task arguments.
func (h *Handlers) SyncStores(ctx context.Context, t *queue.Task) task.Outcome {
	req := syncapp.Request{
		JobID:   t.ID,
		OwnerID: t.UserID,
	}

	var err error
	if req.StoreIDs, err = uuidsArg(t.Args, "store_ids"); err != nil {
		return task.PermanentFailure(err)
	}
	if req.ProductIDs, err = uuidsArg(t.Args, "product_ids"); err != nil {
		return task.PermanentFailure(err)
	}
	if s, ok := t.Args["strategy"].(string); ok && s != "" {
		req.Strategy = syncdomain.Strategy(s)
	} else {
		req.Strategy = syncdomain.StrategyManual
	}

	res, err := h.syncer.Run(ctx, req)
	if err != nil {
		if errors.Is(err, syncapp.ErrNoLinks) {
			return task.PermanentFailure(err)
		}
		return task.OutcomeFromError(err)
	}
	return task.Success(map[string]any{
		"synced":          res.Synced,
		"failed":          res.Failed,
		"conflicts_found": res.ConflictsFound,
		"manual_review":   res.ManualReview,
	})
}

// ImportFeed ingests a product feed. The format comes from the task name so
// csv and xml share one handler.
func (h *Handlers) ImportFeed(ctx context.Context, t *queue.Task) task.Outcome {
	if h.importer == nil {
		return task.PermanentFailure(fmt.Errorf("jobs: no importer configured for %s", t.Name))
	}

	format := "csv"
	if t.Name == TaskImportXML {
		format = "xml"
	}

	return h.runTracked(ctx, t, func(ctx context.Context) (map[string]any, error) {
		return h.importer.Import(ctx, t.UserID, format, t.Args)
	})
}

// BulkEnrichment enriches a batch of products via the injected enricher.
func (h *Handlers) BulkEnrichment(ctx context.Context, t *queue.Task) task.Outcome {
	if h.enricher == nil {
		return task.PermanentFailure(errors.New("jobs: no enricher configured"))
	}

	productIDs, err := uuidsArg(t.Args, "product_ids")
	if err != nil {
		return task.PermanentFailure(err)
	}
	if len(productIDs) == 0 {
		return task.PermanentFailure(errors.New("jobs: bulk enrichment requires product_ids"))
	}

	return h.runTracked(ctx, t, func(ctx context.Context) (map[string]any, error) {
		return h.enricher.Enrich(ctx, t.UserID, productIDs)
	})
}

// Cleanup deletes terminal jobs past the retention window. Maintenance tasks
// carry no ledger job of their own.
func (h *Handlers) Cleanup(ctx context.Context, t *queue.Task) task.Outcome {
	cutoff := time.Now().Add(-CleanupRetention)
	deleted, err := h.jobs.DeleteTerminalBefore(ctx, cutoff)
	if err != nil {
		return task.OutcomeFromError(err)
	}

	h.logger.Info("job cleanup finished",
		zap.Int64("deleted", deleted),
		zap.Time("cutoff", cutoff))
	return task.Success(map[string]any{"deleted": deleted})
}

// ---------------------------------------------------------------------------
// Shared plumbing
// ---------------------------------------------------------------------------

// runTracked walks the task's ledger job through start, the work function,
// and the terminal write. A job already terminal is left untouched so a
// redelivered task cannot overwrite an earlier outcome.
func (h *Handlers) runTracked(ctx context.Context, t *queue.Task, work func(ctx context.Context) (map[string]any, error)) task.Outcome {
	j, err := h.jobs.FindByID(ctx, t.ID)
	if err != nil {
		return task.OutcomeFromError(fmt.Errorf("jobs: failed to load job %s: %w", t.ID, err))
	}
	if j.Status.IsTerminal() {
		return task.Success(j.OutputData)
	}

	if err := j.Start(0); err != nil {
		return task.PermanentFailure(err)
	}
	if err := h.jobs.Upsert(ctx, j); err != nil {
		return task.OutcomeFromError(err)
	}

	output, err := work(ctx)
	if err != nil {
		// The runner writes the terminal failure state after classifying.
		return task.OutcomeFromError(err)
	}

	if err := j.Complete(output); err != nil {
		return task.PermanentFailure(err)
	}
	if err := h.jobs.Upsert(ctx, j); err != nil {
		return task.OutcomeFromError(err)
	}
	return task.Success(output)
}

// uuidsArg reads an optional list of uuid strings from the task arguments.
// JSON round-trips turn string slices into []any, so both shapes parse.
func uuidsArg(args map[string]any, key string) ([]uuid.UUID, error) {
	raw, ok := args[key]
	if !ok || raw == nil {
		return nil, nil
	}

	var values []string
	switch v := raw.(type) {
	case []string:
		values = v
	case []any:
		values = make([]string, 0, len(v))
		for _, e := range v {
			s, ok := e.(string)
			if !ok {
				return nil, fmt.Errorf("jobs: argument %q contains a non-string element", key)
			}
			values = append(values, s)
		}
	default:
		return nil, fmt.Errorf("jobs: argument %q must be a list of ids", key)
	}

	ids := make([]uuid.UUID, 0, len(values))
	for _, s := range values {
		id, err := uuid.Parse(s)
		if err != nil {
			return nil, fmt.Errorf("jobs: argument %q contains invalid id %q: %w", key, s, err)
		}
		ids = append(ids, id)
	}
	return ids, nil
}
