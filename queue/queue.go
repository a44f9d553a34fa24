// Package queue carries scan jobs from submitters to workers.
package queue

import (
	"context"
	"encoding/json"
)

// ScanTask is one queued scan job. Options holds the raw JSON scan options
// so the worker parses and validates them itself.
type ScanTask struct {
	JobID       string          `json:"job_id"`
	Path        string          `json:"path"`
	Options     json.RawMessage `json:"options,omitempty"`
	VirtualRoot string          `json:"virtual_root,omitempty"`
	RootDir     string          `json:"root_dir,omitempty"`
}

// Queue is a FIFO task transport. Dequeue blocks until a task arrives or
// the context is canceled.
type Queue interface {
	Enqueue(ctx context.Context, task ScanTask) error
	Dequeue(ctx context.Context) (ScanTask, error)
	Close() error
}
