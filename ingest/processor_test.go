package ingest

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/dlptools/dlpscan/findings"
	"github.com/dlptools/dlpscan/pii"
)

// memSink collects traversal output in order.
type memSink struct {
	items    []ScanItem
	findings map[string][]findings.Candidate
}

func newMemSink() *memSink {
	return &memSink{findings: make(map[string][]findings.Candidate)}
}

func (s *memSink) RecordScanItem(_ context.Context, item ScanItem) error {
	s.items = append(s.items, item)
	return nil
}

func (s *memSink) RecordFindings(_ context.Context, vpath string, cands []findings.Candidate) error {
	s.findings[vpath] = append(s.findings[vpath], cands...)
	return nil
}

func (s *memSink) item(vpath string) *ScanItem {
	for i := range s.items {
		if s.items[i].VirtualPath == vpath {
			return &s.items[i]
		}
	}
	return nil
}

// memCache is an in-memory processed-file cache.
type memCache struct {
	digests map[string]bool
}

func newMemCache() *memCache { return &memCache{digests: make(map[string]bool)} }

func (c *memCache) IsHashProcessed(_ context.Context, digest string) (bool, error) {
	return c.digests[digest], nil
}

func (c *memCache) MarkProcessed(_ context.Context, _, digest string) error {
	c.digests[digest] = true
	return nil
}

func testProcessor(sink Sink, cache Cache, opts ScanOptions) *Processor {
	cfg := ProcessorConfig{
		MaxArchiveDepth:     3,
		MaxArchiveFiles:     100,
		MaxArchiveBytes:     1 << 20,
		MaxFileSizeMB:       10,
		MaxEmailAttachments: 10,
		MaxEmailBytes:       1 << 20,
		OCRMaxPages:         5,
	}
	return NewProcessor(cfg, opts, pii.NewRegexAnalyzer(nil), sink, cache, nil)
}

func writeFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestProcessTextFile(t *testing.T) {
	dir := t.TempDir()
	path := writeFile(t, dir, "hr.txt", "employee ssn 123-45-6789 on record")

	sink := newMemSink()
	proc := testProcessor(sink, newMemCache(), DefaultScanOptions())
	if err := proc.Process(context.Background(), path, 0, "", dir); err != nil {
		t.Fatalf("Process: %v", err)
	}

	item := sink.item("hr.txt")
	if item == nil {
		t.Fatalf("missing scan item; got %+v", sink.items)
	}
	if item.ExtractionMethod != MethodText {
		t.Errorf("method = %q", item.ExtractionMethod)
	}
	if item.EntitiesFound == 0 {
		t.Error("no entities counted on the scan item")
	}
	if !strings.Contains(item.TextPreview, "123-45-6789") {
		t.Errorf("preview = %q", item.TextPreview)
	}

	cands := sink.findings["hr.txt"]
	if len(cands) == 0 {
		t.Fatal("no findings recorded")
	}
	if strings.Contains(cands[0].Context, "123-45-6789") {
		t.Errorf("finding context not redacted: %q", cands[0].Context)
	}

	stats := proc.Stats()
	if stats.FilesProcessed != 1 || stats.EntitiesFound == 0 {
		t.Errorf("stats = %+v", stats)
	}
}

func TestProcessDirectoryResolvesVirtualPaths(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "a/inner.txt", "mail bob@corp.io here")
	writeFile(t, dir, "top.txt", "nothing sensitive")

	sink := newMemSink()
	proc := testProcessor(sink, newMemCache(), DefaultScanOptions())
	if err := proc.Process(context.Background(), dir, 0, "", dir); err != nil {
		t.Fatalf("Process: %v", err)
	}

	if sink.item("a/inner.txt") == nil || sink.item("top.txt") == nil {
		t.Errorf("virtual paths wrong; items = %+v", sink.items)
	}
}

func TestProcessArchiveRecursesWithVirtualPaths(t *testing.T) {
	dir := t.TempDir()
	archive := writeZip(t, dir, map[string]string{
		"inner/leak.txt": "ssn 123-45-6789",
	})

	sink := newMemSink()
	proc := testProcessor(sink, newMemCache(), DefaultScanOptions())
	if err := proc.Process(context.Background(), archive, 0, "", dir); err != nil {
		t.Fatalf("Process: %v", err)
	}

	container := sink.item("test.zip")
	if container == nil || container.ExtractionMethod != MethodContainer {
		t.Fatalf("container item = %+v", container)
	}
	leaf := sink.item("test.zip::inner/leak.txt")
	if leaf == nil {
		t.Fatalf("missing nested item; got %+v", sink.items)
	}
	if len(sink.findings["test.zip::inner/leak.txt"]) == 0 {
		t.Error("nested findings missing")
	}
	if got := proc.Stats().FilesProcessed; got != 2 {
		t.Errorf("files processed = %d, want 2", got)
	}
}

// failingSink rejects one virtual path, simulating a mid-subtree failure.
type failingSink struct {
	*memSink
	failPath string
}

func (s *failingSink) RecordScanItem(ctx context.Context, item ScanItem) error {
	if item.VirtualPath == s.failPath {
		return errors.New("sink unavailable")
	}
	return s.memSink.RecordScanItem(ctx, item)
}

func TestProcessArchiveNotCachedUntilSubtreeDone(t *testing.T) {
	dir := t.TempDir()
	archive := writeZip(t, dir, map[string]string{
		"inner/leak.txt": "ssn 123-45-6789",
	})

	cache := newMemCache()
	failing := &failingSink{memSink: newMemSink(), failPath: "test.zip::inner/leak.txt"}
	proc := testProcessor(failing, cache, DefaultScanOptions())
	if err := proc.Process(context.Background(), archive, 0, "", dir); err == nil {
		t.Fatal("expected the child failure to abort the walk")
	}

	digest, err := HashFile(archive)
	if err != nil {
		t.Fatal(err)
	}
	if done, _ := cache.IsHashProcessed(context.Background(), digest); done {
		t.Fatal("half-scanned archive was cached")
	}

	// The resubmitted scan reaches the children the first run missed.
	sink := newMemSink()
	proc = testProcessor(sink, cache, DefaultScanOptions())
	if err := proc.Process(context.Background(), archive, 0, "", dir); err != nil {
		t.Fatalf("rerun: %v", err)
	}
	if sink.item("test.zip::inner/leak.txt") == nil {
		t.Fatalf("nested item missing on rerun; got %+v", sink.items)
	}
	if done, _ := cache.IsHashProcessed(context.Background(), digest); !done {
		t.Error("fully scanned archive was not cached")
	}
}

func TestProcessCorruptArchiveRecordsWarning(t *testing.T) {
	dir := t.TempDir()
	path := writeFile(t, dir, "broken.zip", "this is not a zip")

	sink := newMemSink()
	proc := testProcessor(sink, newMemCache(), DefaultScanOptions())
	if err := proc.Process(context.Background(), path, 0, "", dir); err != nil {
		t.Fatalf("container error should not fail the walk: %v", err)
	}

	item := sink.item("broken.zip")
	if item == nil || len(item.Warnings) == 0 {
		t.Fatalf("expected warning on container item, got %+v", item)
	}
}

func TestProcessSkipsDuplicateContent(t *testing.T) {
	dir := t.TempDir()
	first := writeFile(t, dir, "one.txt", "same bytes")
	second := writeFile(t, dir, "two.txt", "same bytes")

	sink := newMemSink()
	cache := newMemCache()
	proc := testProcessor(sink, cache, DefaultScanOptions())
	ctx := context.Background()

	if err := proc.Process(ctx, first, 0, "", dir); err != nil {
		t.Fatal(err)
	}
	if err := proc.Process(ctx, second, 0, "", dir); err != nil {
		t.Fatal(err)
	}
	if got := proc.Stats().FilesProcessed; got != 1 {
		t.Errorf("files processed = %d, want 1 (duplicate skipped)", got)
	}
}

func TestProcessDepthLimit(t *testing.T) {
	dir := t.TempDir()
	path := writeFile(t, dir, "deep.txt", "ssn 123-45-6789")

	sink := newMemSink()
	proc := testProcessor(sink, newMemCache(), DefaultScanOptions())
	if err := proc.Process(context.Background(), path, 99, "", dir); err != nil {
		t.Fatalf("Process: %v", err)
	}
	if len(sink.items) != 0 {
		t.Errorf("depth-exceeded node produced items: %+v", sink.items)
	}
}

func TestProcessOversizeFileSkipped(t *testing.T) {
	dir := t.TempDir()
	path := writeFile(t, dir, "big.txt", strings.Repeat("a", 2048))

	sink := newMemSink()
	cfg := ProcessorConfig{
		MaxArchiveDepth: 3, MaxArchiveFiles: 10, MaxArchiveBytes: 1 << 20,
		MaxFileSizeMB: 0, MaxEmailAttachments: 5, MaxEmailBytes: 1 << 20, OCRMaxPages: 5,
	}
	proc := NewProcessor(cfg, DefaultScanOptions(), pii.NewRegexAnalyzer(nil), sink, newMemCache(), nil)
	if err := proc.Process(context.Background(), path, 0, "", dir); err != nil {
		t.Fatalf("Process: %v", err)
	}
	if len(sink.items) != 0 {
		t.Errorf("oversize file produced items: %+v", sink.items)
	}
}

func TestProcessUnknownTypeProducesNoItem(t *testing.T) {
	dir := t.TempDir()
	path := writeFile(t, dir, "blob.bin", "\x00\x01\x02")

	sink := newMemSink()
	cache := newMemCache()
	proc := testProcessor(sink, cache, DefaultScanOptions())
	if err := proc.Process(context.Background(), path, 0, "", dir); err != nil {
		t.Fatalf("Process: %v", err)
	}
	if len(sink.items) != 0 {
		t.Errorf("unknown type produced items: %+v", sink.items)
	}
	// Still deduplicated on later encounters.
	digest, err := HashFile(path)
	if err != nil {
		t.Fatal(err)
	}
	if done, _ := cache.IsHashProcessed(context.Background(), digest); !done {
		t.Error("unknown file was not marked processed")
	}
}

func TestProcessImageOCRDisabled(t *testing.T) {
	dir := t.TempDir()
	path := writeFile(t, dir, "scan.png", "fake png bytes")

	opts := DefaultScanOptions()
	opts.OCRMode = OCRModeOff
	sink := newMemSink()
	proc := testProcessor(sink, newMemCache(), opts)
	if err := proc.Process(context.Background(), path, 0, "", dir); err != nil {
		t.Fatalf("Process: %v", err)
	}

	item := sink.item("scan.png")
	if item == nil || item.ExtractionMethod != MethodNone {
		t.Fatalf("item = %+v", item)
	}
	if !containsWarning(item.Warnings, warnOCRDisabled) {
		t.Errorf("warnings = %v", item.Warnings)
	}
}

func TestProcessImageNoOCRText(t *testing.T) {
	dir := t.TempDir()
	path := writeFile(t, dir, "scan.png", "fake png bytes")

	// Default analyzer has no OCR engine, so recognized text is empty.
	sink := newMemSink()
	proc := testProcessor(sink, newMemCache(), DefaultScanOptions())
	if err := proc.Process(context.Background(), path, 0, "", dir); err != nil {
		t.Fatalf("Process: %v", err)
	}

	item := sink.item("scan.png")
	if item == nil || item.ExtractionMethod != MethodOCR {
		t.Fatalf("item = %+v", item)
	}
	if !containsWarning(item.Warnings, warnNoOCRText) {
		t.Errorf("warnings = %v", item.Warnings)
	}
}

func TestProcessEmailContainer(t *testing.T) {
	dir := t.TempDir()
	src := emailFixture(t)
	path := filepath.Join(dir, "mail.eml")
	data, err := os.ReadFile(src)
	if err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		t.Fatal(err)
	}

	sink := newMemSink()
	proc := testProcessor(sink, newMemCache(), DefaultScanOptions())
	if err := proc.Process(context.Background(), path, 0, "", dir); err != nil {
		t.Fatalf("Process: %v", err)
	}

	if item := sink.item("mail.eml"); item == nil || item.ExtractionMethod != MethodContainer {
		t.Fatalf("container item = %+v", item)
	}
	body := sink.item("mail.eml::body.txt")
	if body == nil {
		t.Fatalf("missing body item; got %+v", sink.items)
	}
	if len(sink.findings["mail.eml::body.txt"]) == 0 {
		t.Error("SSN in email body produced no findings")
	}
	if sink.item("mail.eml::attachments/numbers.csv") == nil {
		t.Error("attachment was not processed as a child")
	}
}
