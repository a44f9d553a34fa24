// Package dlpscan is a data-loss-prevention scanning pipeline: it unpacks
// and extracts text from heterogeneous files, detects sensitive entities,
// persists redacted findings, and exports curated Sensitive Information
// Types as Microsoft Purview rule packages.
package dlpscan

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/google/uuid"

	"github.com/dlptools/dlpscan/findings"
	"github.com/dlptools/dlpscan/ingest"
	"github.com/dlptools/dlpscan/pii"
	"github.com/dlptools/dlpscan/purview"
	"github.com/dlptools/dlpscan/queue"
	"github.com/dlptools/dlpscan/store"
)

// Engine is the public surface of the scanning service. A single Engine is
// safe for concurrent use.
type Engine interface {
	// SubmitScan queues a scan of path and returns the created job.
	SubmitScan(ctx context.Context, path string, opts ...ScanOption) (*store.Job, error)

	// SubmitScanRaw queues a scan with JSON-encoded options, as received
	// over the wire. Unknown option keys are rejected with ErrUnknownOption.
	SubmitScanRaw(ctx context.Context, path string, rawOptions []byte) (*store.Job, error)

	// RunScan executes one queued task to completion, updating its job.
	// Workers call this; servers running the in-process queue do too.
	RunScan(ctx context.Context, task queue.ScanTask) error

	Job(ctx context.Context, id string) (*store.Job, error)
	ListJobs(ctx context.Context, limit int) ([]store.Job, error)
	Findings(ctx context.Context, jobID string) ([]store.Finding, error)
	ScanItems(ctx context.Context, jobID string) ([]store.ScanItem, error)

	// SuggestSITs analyzes sample text and drafts one SIT definition per
	// detected entity.
	SuggestSITs(ctx context.Context, text, source string, opts ...ScanOption) ([]findings.Definition, error)

	CreateSIT(ctx context.Context, name, description string) (*store.SIT, error)
	GetSIT(ctx context.Context, id string) (*store.SIT, error)
	ListSITs(ctx context.Context) ([]store.SIT, error)
	DeleteSIT(ctx context.Context, id string) error
	CreateSITVersion(ctx context.Context, sitID string, in store.NewVersionInput) (*store.SITVersion, error)
	ListSITVersions(ctx context.Context, sitID string) ([]store.SITVersion, error)

	CreateKeywordList(ctx context.Context, name, description string, items []string) (*store.KeywordList, error)
	GetKeywordList(ctx context.Context, id string) (*store.KeywordList, error)
	ListKeywordLists(ctx context.Context) ([]store.KeywordList, error)

	CreateRulepack(ctx context.Context, in store.NewRulepackInput) (*store.Rulepack, error)
	GetRulepack(ctx context.Context, id string) (*store.Rulepack, error)
	ListRulepacks(ctx context.Context) ([]store.Rulepack, error)
	DeleteRulepack(ctx context.Context, id string) error
	SetSelections(ctx context.Context, rulepackID string, versionIDs []string) error

	// ExportRulepack validates the rulepack's selections and serializes
	// them as a Purview rule-package XML document.
	ExportRulepack(ctx context.Context, id string) ([]byte, error)

	Store() *store.Store
	Queue() queue.Queue
	Close() error
}

// Option customizes engine construction.
type Option func(*engine)

// WithAnalyzer replaces the default regex analyzer.
func WithAnalyzer(a pii.Analyzer) Option {
	return func(e *engine) { e.analyzer = a }
}

// WithQueue replaces the queue selected by configuration.
func WithQueue(q queue.Queue) Option {
	return func(e *engine) { e.queue = q }
}

// WithLogger sets the logger; the default is slog.Default().
func WithLogger(l *slog.Logger) Option {
	return func(e *engine) { e.logger = l }
}

type engine struct {
	cfg      Config
	store    *store.Store
	queue    queue.Queue
	analyzer pii.Analyzer
	logger   *slog.Logger
}

// New builds an Engine from cfg. Without WithQueue, a Redis queue is used
// when cfg.RedisURL is set, otherwise an in-process queue.
func New(cfg Config, opts ...Option) (Engine, error) {
	e := &engine{
		cfg:      cfg,
		analyzer: pii.NewRegexAnalyzer(nil),
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		opt(e)
	}

	st, err := store.New(cfg.resolveDBPath())
	if err != nil {
		return nil, fmt.Errorf("dlpscan: opening store: %w", err)
	}
	e.store = st

	if e.queue == nil {
		if cfg.RedisURL != "" {
			q, err := queue.NewRedisQueue(context.Background(), cfg.RedisURL)
			if err != nil {
				st.Close()
				return nil, fmt.Errorf("dlpscan: connecting queue: %w", err)
			}
			e.queue = q
		} else {
			e.queue = queue.NewMemoryQueue(0)
		}
	}
	return e, nil
}

func (e *engine) Store() *store.Store { return e.store }
func (e *engine) Queue() queue.Queue  { return e.queue }

func (e *engine) Close() error {
	qerr := e.queue.Close()
	serr := e.store.Close()
	if qerr != nil {
		return qerr
	}
	return serr
}

func (e *engine) Job(ctx context.Context, id string) (*store.Job, error) {
	job, err := e.store.GetJob(ctx, id)
	return job, mapNotFound(err, ErrJobNotFound)
}

func (e *engine) ListJobs(ctx context.Context, limit int) ([]store.Job, error) {
	return e.store.ListJobs(ctx, limit)
}

func (e *engine) Findings(ctx context.Context, jobID string) ([]store.Finding, error) {
	if _, err := e.Job(ctx, jobID); err != nil {
		return nil, err
	}
	return e.store.FindingsByJob(ctx, jobID)
}

func (e *engine) ScanItems(ctx context.Context, jobID string) ([]store.ScanItem, error) {
	if _, err := e.Job(ctx, jobID); err != nil {
		return nil, err
	}
	return e.store.ScanItemsByJob(ctx, jobID)
}

func (e *engine) SuggestSITs(ctx context.Context, text, source string, opts ...ScanOption) ([]findings.Definition, error) {
	scanOpts := applyScanOptions(opts)
	hits := e.analyzer.AnalyzeText(ctx, text, pii.Options{
		Entities:       scanOpts.Entities,
		Language:       scanOpts.Language,
		ScoreThreshold: scanOpts.ScoreThreshold,
	})
	return findings.GenerateSITs(hits, text, source, findings.DefaultWindow), nil
}

func (e *engine) CreateSIT(ctx context.Context, name, description string) (*store.SIT, error) {
	return e.store.CreateSIT(ctx, name, description)
}

func (e *engine) GetSIT(ctx context.Context, id string) (*store.SIT, error) {
	sit, err := e.store.GetSIT(ctx, id)
	return sit, mapNotFound(err, ErrSITNotFound)
}

func (e *engine) ListSITs(ctx context.Context) ([]store.SIT, error) {
	return e.store.ListSITs(ctx)
}

func (e *engine) DeleteSIT(ctx context.Context, id string) error {
	return mapNotFound(e.store.DeleteSIT(ctx, id), ErrSITNotFound)
}

func (e *engine) CreateSITVersion(ctx context.Context, sitID string, in store.NewVersionInput) (*store.SITVersion, error) {
	v, err := e.store.CreateSITVersion(ctx, sitID, in)
	return v, mapNotFound(err, ErrSITNotFound)
}

func (e *engine) ListSITVersions(ctx context.Context, sitID string) ([]store.SITVersion, error) {
	if _, err := e.GetSIT(ctx, sitID); err != nil {
		return nil, err
	}
	return e.store.ListSITVersions(ctx, sitID)
}

func (e *engine) CreateKeywordList(ctx context.Context, name, description string, items []string) (*store.KeywordList, error) {
	return e.store.CreateKeywordList(ctx, name, description, items)
}

func (e *engine) GetKeywordList(ctx context.Context, id string) (*store.KeywordList, error) {
	kl, err := e.store.GetKeywordList(ctx, id)
	return kl, mapNotFound(err, ErrKeywordListNotFound)
}

func (e *engine) ListKeywordLists(ctx context.Context) ([]store.KeywordList, error) {
	return e.store.ListKeywordLists(ctx)
}

func (e *engine) CreateRulepack(ctx context.Context, in store.NewRulepackInput) (*store.Rulepack, error) {
	return e.store.CreateRulepack(ctx, in)
}

func (e *engine) GetRulepack(ctx context.Context, id string) (*store.Rulepack, error) {
	rp, err := e.store.GetRulepack(ctx, id)
	return rp, mapNotFound(err, ErrRulepackNotFound)
}

func (e *engine) ListRulepacks(ctx context.Context) ([]store.Rulepack, error) {
	return e.store.ListRulepacks(ctx)
}

func (e *engine) DeleteRulepack(ctx context.Context, id string) error {
	return mapNotFound(e.store.DeleteRulepack(ctx, id), ErrRulepackNotFound)
}

func (e *engine) SetSelections(ctx context.Context, rulepackID string, versionIDs []string) error {
	return mapNotFound(e.store.SetSelections(ctx, rulepackID, versionIDs), ErrRulepackNotFound)
}

func (e *engine) ExportRulepack(ctx context.Context, id string) ([]byte, error) {
	rp, err := e.GetRulepack(ctx, id)
	if err != nil {
		return nil, err
	}
	versions, err := e.store.GetVersionsByIDs(ctx, rp.Selections)
	if err != nil {
		return nil, err
	}

	var listIDs []string
	for _, v := range versions {
		for _, g := range v.Groups {
			for _, item := range g.Items {
				if item.ItemType == store.ElementKeywordList && item.KeywordListID != "" {
					listIDs = append(listIDs, item.KeywordListID)
				}
			}
		}
	}
	lists, err := e.store.KeywordListsByIDs(ctx, listIDs)
	if err != nil {
		return nil, err
	}
	return purview.BuildRulePackage(rp, versions, lists)
}

// SubmitScan registers a queued job for path and enqueues its task. The
// job id is a fresh UUID; the task carries the serialized options.
func (e *engine) SubmitScan(ctx context.Context, path string, opts ...ScanOption) (*store.Job, error) {
	raw, err := marshalScanOptions(applyScanOptions(opts))
	if err != nil {
		return nil, err
	}
	return e.SubmitScanRaw(ctx, path, raw)
}

func (e *engine) SubmitScanRaw(ctx context.Context, path string, rawOptions []byte) (*store.Job, error) {
	raw := rawOptions
	if _, err := ingest.ParseScanOptions(raw); err != nil {
		if errors.Is(err, ingest.ErrUnknownOption) {
			return nil, fmt.Errorf("%w: %v", ErrUnknownOption, err)
		}
		return nil, err
	}

	jobID := uuid.NewString()
	if err := e.store.CreateJob(ctx, jobID, ingest.SafeFilename(path)); err != nil {
		return nil, err
	}
	task := queue.ScanTask{
		JobID:   jobID,
		Path:    path,
		Options: raw,
		RootDir: e.cfg.ScanRoot,
	}
	if err := e.queue.Enqueue(ctx, task); err != nil {
		e.store.UpdateJobStatus(ctx, jobID, store.JobFailed, "enqueue failed: "+err.Error())
		return nil, fmt.Errorf("dlpscan: enqueueing scan: %w", err)
	}
	return e.Job(ctx, jobID)
}

// mapNotFound rewraps the store's not-found error as the given sentinel.
func mapNotFound(err, sentinel error) error {
	if errors.Is(err, store.ErrNotFound) {
		return fmt.Errorf("%w: %v", sentinel, err)
	}
	return err
}
