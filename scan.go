package dlpscan

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/google/uuid"

	"github.com/dlptools/dlpscan/findings"
	"github.com/dlptools/dlpscan/ingest"
	"github.com/dlptools/dlpscan/queue"
	"github.com/dlptools/dlpscan/store"
)

// RunScan executes one task: it transitions the job to running, walks the
// file tree, and records the terminal status. Per-container extraction
// failures become scan-item warnings; any other error fails the job.
func (e *engine) RunScan(ctx context.Context, task queue.ScanTask) error {
	log := e.logger.With("job_id", task.JobID, "path", task.Path)

	opts, err := ingest.ParseScanOptions(task.Options)
	if err != nil {
		e.store.UpdateJobStatus(ctx, task.JobID, store.JobFailed, err.Error())
		if errors.Is(err, ingest.ErrUnknownOption) {
			return fmt.Errorf("%w: %v", ErrUnknownOption, err)
		}
		return err
	}

	if err := e.store.UpdateJobStatus(ctx, task.JobID, store.JobRunning, ""); err != nil {
		return err
	}
	log.Info("scan started")

	// Duplicate-content fast path: a root file whose digest was already
	// scanned marks the whole job skipped.
	if info, statErr := os.Stat(task.Path); statErr == nil && info.Mode().IsRegular() {
		digest, err := ingest.HashFile(task.Path)
		if err != nil {
			e.store.UpdateJobStatus(ctx, task.JobID, store.JobFailed, err.Error())
			return err
		}
		if err := e.store.SetJobFileHash(ctx, task.JobID, digest); err != nil {
			return err
		}
		done, err := e.store.IsHashProcessed(ctx, digest)
		if err != nil {
			e.store.UpdateJobStatus(ctx, task.JobID, store.JobFailed, err.Error())
			return err
		}
		if done {
			log.Info("scan skipped, content already processed")
			return e.store.UpdateJobStatus(ctx, task.JobID, store.JobSkipped, "")
		}
	}

	proc := ingest.NewProcessor(e.processorConfig(), opts, e.analyzer,
		&jobSink{store: e.store, jobID: task.JobID}, e.store, log)

	if err := proc.Process(ctx, task.Path, 0, task.VirtualRoot, task.RootDir); err != nil {
		log.Error("scan failed", "error", err)
		stats := proc.Stats()
		e.store.UpdateJobCounts(ctx, task.JobID, stats.FilesProcessed,
			stats.EntitiesFound, stats.EntitiesFound, nil)
		e.store.UpdateJobStatus(ctx, task.JobID, store.JobFailed, err.Error())
		return err
	}

	stats := proc.Stats()
	total := stats.FilesProcessed
	if err := e.store.UpdateJobCounts(ctx, task.JobID, stats.FilesProcessed,
		stats.EntitiesFound, stats.EntitiesFound, &total); err != nil {
		return err
	}
	log.Info("scan completed", "files", stats.FilesProcessed, "entities", stats.EntitiesFound)
	return e.store.UpdateJobStatus(ctx, task.JobID, store.JobCompleted, "")
}

func (e *engine) processorConfig() ingest.ProcessorConfig {
	return ingest.ProcessorConfig{
		MaxArchiveDepth:     e.cfg.MaxArchiveDepth,
		MaxArchiveFiles:     e.cfg.MaxArchiveFiles,
		MaxArchiveBytes:     e.cfg.MaxArchiveBytes,
		MaxFileSizeMB:       int(e.cfg.MaxFileSizeMB),
		MaxEmailAttachments: e.cfg.MaxEmailAttachments,
		MaxEmailBytes:       e.cfg.MaxEmailBytes,
		OCRMaxPages:         e.cfg.OCRMaxPages,
	}
}

// jobSink persists traversal output under one job.
type jobSink struct {
	store *store.Store
	jobID string
}

func (s *jobSink) RecordScanItem(ctx context.Context, item ingest.ScanItem) error {
	return s.store.AddScanItem(ctx, &store.ScanItem{
		JobID:            s.jobID,
		VirtualPath:      item.VirtualPath,
		SourcePath:       item.SourcePath,
		MIMEType:         item.MIMEType,
		ExtractionMethod: item.ExtractionMethod,
		OCRUsed:          item.OCRUsed,
		TextChars:        item.TextChars,
		TextPreview:      item.TextPreview,
		EntitiesFound:    item.EntitiesFound,
		Warnings:         item.Warnings,
	})
}

func (s *jobSink) RecordFindings(ctx context.Context, virtualPath string, candidates []findings.Candidate) error {
	rows := make([]store.Finding, 0, len(candidates))
	for _, c := range candidates {
		rows = append(rows, store.Finding{
			ID:                 uuid.NewString(),
			JobID:              s.jobID,
			FilePath:           virtualPath,
			EntityType:         c.EntityType,
			Score:              c.Score,
			Start:              c.Start,
			End:                c.End,
			Context:            c.Context,
			PrimaryRegex:       c.PrimaryRegex,
			SupportingKeywords: c.SupportingKeywords,
		})
	}
	return s.store.AddFindings(ctx, rows)
}
