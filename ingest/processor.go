package ingest

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/dlptools/dlpscan/findings"
	"github.com/dlptools/dlpscan/pii"
)

// Extraction methods recorded per scan item.
const (
	MethodText      = "text"
	MethodOCR       = "ocr"
	MethodHybrid    = "hybrid"
	MethodContainer = "container"
	MethodNone      = "none"
)

// Warnings recorded on scan items when OCR yields nothing or is disabled.
const (
	warnOCRDisabled = "OCR disabled; image skipped."
	warnNoOCRText   = "No OCR text extracted."
)

const (
	previewLimit  = 4000
	textChunkSize = 1 << 20
	previewChunks = 3
)

// ScanItem is the per-leaf record handed to the sink: one per analyzed file
// or inspected container.
type ScanItem struct {
	VirtualPath      string
	SourcePath       string
	MIMEType         string
	ExtractionMethod string
	OCRUsed          bool
	TextChars        int
	TextPreview      string
	EntitiesFound    int
	Warnings         []string
}

// Sink receives scan items and finding candidates as traversal produces
// them. Implementations persist under a specific job.
type Sink interface {
	RecordScanItem(ctx context.Context, item ScanItem) error
	RecordFindings(ctx context.Context, virtualPath string, candidates []findings.Candidate) error
}

// Cache is the global processed-file dedup store, keyed by content digest.
type Cache interface {
	IsHashProcessed(ctx context.Context, digest string) (bool, error)
	MarkProcessed(ctx context.Context, path, digest string) error
}

// Stats accumulates per-job counters in traversal order.
type Stats struct {
	FilesProcessed int
	EntitiesFound  int
}

// ProcessorConfig bounds recursion and extraction for one processor.
type ProcessorConfig struct {
	MaxArchiveDepth     int
	MaxArchiveFiles     int
	MaxArchiveBytes     int64
	MaxFileSizeMB       int
	MaxEmailAttachments int
	MaxEmailBytes       int64
	OCRMaxPages         int
}

// Processor walks a file tree depth-first, expanding containers and feeding
// extracted text through the analyzer and finding generator. A processor
// serves one job; it is not safe for concurrent use.
type Processor struct {
	cfg      ProcessorConfig
	opts     ScanOptions
	analyzer pii.Analyzer
	archives *ArchiveExtractor
	sink     Sink
	cache    Cache
	logger   *slog.Logger
	stats    Stats
}

func NewProcessor(cfg ProcessorConfig, opts ScanOptions, analyzer pii.Analyzer, sink Sink, cache Cache, logger *slog.Logger) *Processor {
	if logger == nil {
		logger = slog.Default()
	}
	return &Processor{
		cfg:      cfg,
		opts:     opts,
		analyzer: analyzer,
		archives: NewArchiveExtractor(ArchiveLimits{MaxFiles: cfg.MaxArchiveFiles, MaxBytes: cfg.MaxArchiveBytes}),
		sink:     sink,
		cache:    cache,
		logger:   logger,
	}
}

// workItem is one pending node in the traversal. virtualPath is empty until
// resolved; children of containers carry theirs pre-composed. An item with
// markDigest set is a post-visit marker: it records the container digest
// once every descendant has been scanned, so an aborted job never caches a
// half-scanned container.
type workItem struct {
	path        string
	depth       int
	virtualPath string
	markDigest  string
}

// Stats returns the counters accumulated so far.
func (p *Processor) Stats() Stats { return p.stats }

// Process walks path and everything it expands into. virtualPath may seed
// the identity of the root node; rootDir, when set, makes directory children
// identified relative to it. The first error aborts the walk.
func (p *Processor) Process(ctx context.Context, path string, depth int, virtualPath, rootDir string) error {
	stack := []workItem{{path: path, depth: depth, virtualPath: virtualPath}}
	for len(stack) > 0 {
		if err := ctx.Err(); err != nil {
			return err
		}
		item := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		if item.markDigest != "" {
			if err := p.cache.MarkProcessed(ctx, item.path, item.markDigest); err != nil {
				return err
			}
			continue
		}
		children, err := p.processOne(ctx, item, rootDir)
		if err != nil {
			return err
		}
		// Reverse push keeps traversal pre-order depth-first.
		for i := len(children) - 1; i >= 0; i-- {
			stack = append(stack, children[i])
		}
	}
	return nil
}

func (p *Processor) processOne(ctx context.Context, item workItem, rootDir string) ([]workItem, error) {
	if item.depth > p.cfg.MaxArchiveDepth {
		p.logger.Info("max archive depth exceeded, skipping", "path", item.path, "depth", item.depth)
		return nil, nil
	}

	info, err := os.Stat(item.path)
	if err != nil {
		return nil, fmt.Errorf("stat %s: %w", item.path, err)
	}

	if info.IsDir() {
		entries, err := os.ReadDir(item.path)
		if err != nil {
			return nil, fmt.Errorf("reading directory %s: %w", item.path, err)
		}
		children := make([]workItem, 0, len(entries))
		for _, e := range entries {
			children = append(children, workItem{path: filepath.Join(item.path, e.Name()), depth: item.depth})
		}
		return children, nil
	}

	if limit := int64(p.cfg.MaxFileSizeMB) << 20; info.Size() > limit {
		p.logger.Info("file exceeds size limit, skipping", "path", item.path, "size", info.Size())
		return nil, nil
	}

	digest, err := HashFile(item.path)
	if err != nil {
		return nil, err
	}
	done, err := p.cache.IsHashProcessed(ctx, digest)
	if err != nil {
		return nil, err
	}
	if done {
		p.logger.Debug("content already processed, skipping", "path", item.path)
		return nil, nil
	}

	vpath := item.virtualPath
	if vpath == "" {
		vpath = item.path
		if rootDir != "" {
			if rel, err := filepath.Rel(rootDir, item.path); err == nil && !strings.HasPrefix(rel, "..") {
				vpath = filepath.ToSlash(rel)
			}
		}
	}

	p.stats.FilesProcessed++
	kind := DetectKind(item.path)

	var children []workItem
	switch kind {
	case KindArchive:
		children, err = p.processArchive(ctx, item, vpath, info)
	case KindEmail:
		children, err = p.processEmail(ctx, item, vpath, info)
	case KindPDF:
		children, err = p.processPDF(ctx, item, vpath, info)
	case KindImage:
		err = p.processImage(ctx, item.path, vpath)
	case KindDOCX, KindPPTX, KindXLSX:
		err = p.processDocument(ctx, item.path, vpath, kind)
	case KindText:
		err = p.processText(ctx, item.path, vpath)
	default:
		p.logger.Info("unsupported file type", "path", item.path)
	}
	if err != nil {
		return nil, err
	}

	// Containers are marked only after their subtree completes; the marker
	// sits below the children on the stack, so it pops last.
	if len(children) > 0 {
		return append(children, workItem{path: item.path, markDigest: digest}), nil
	}
	if err := p.cache.MarkProcessed(ctx, item.path, digest); err != nil {
		return nil, err
	}
	return nil, nil
}

// ---------------------------------------------------------------------------
// per-kind handlers
// ---------------------------------------------------------------------------

func (p *Processor) processArchive(ctx context.Context, item workItem, vpath string, info os.FileInfo) ([]workItem, error) {
	rec := ScanItem{
		VirtualPath:      vpath,
		SourcePath:       item.path,
		MIMEType:         mimeFor(KindArchive, item.path),
		ExtractionMethod: MethodContainer,
	}

	dest := siblingDir(item.path, "extracted_")
	extracted, err := p.archives.Extract(item.path, dest)
	if err != nil {
		if errors.Is(err, ErrArchiveExtraction) {
			rec.Warnings = append(rec.Warnings, err.Error())
			p.logger.Warn("archive extraction failed", "path", item.path, "error", err)
			return nil, p.sink.RecordScanItem(ctx, rec)
		}
		return nil, err
	}
	if err := p.sink.RecordScanItem(ctx, rec); err != nil {
		return nil, err
	}

	children := make([]workItem, 0, len(extracted))
	for _, e := range extracted {
		children = append(children, workItem{
			path:        e.Path,
			depth:       item.depth + 1,
			virtualPath: vpath + "::" + filepath.ToSlash(e.RelativePath),
		})
	}
	return children, nil
}

func (p *Processor) processEmail(ctx context.Context, item workItem, vpath string, info os.FileInfo) ([]workItem, error) {
	rec := ScanItem{
		VirtualPath:      vpath,
		SourcePath:       item.path,
		MIMEType:         mimeFor(KindEmail, item.path),
		ExtractionMethod: MethodContainer,
	}

	emailOpts := EmailOptions{
		IncludeHeaders:      p.opts.IncludeHeaders,
		ParseHTML:           p.opts.ParseHTML,
		IncludeAttachments:  p.opts.IncludeAttachments,
		IncludeInlineImages: p.opts.IncludeInlineImages,
		MaxAttachments:      p.cfg.MaxEmailAttachments,
		MaxBytes:            p.cfg.MaxEmailBytes,
	}

	dest := siblingDir(item.path, "email_")
	var parts []EmailItem
	var warnings []string
	var err error
	if strings.HasSuffix(strings.ToLower(item.path), ".msg") {
		parts, warnings, err = ExtractMSG(item.path, dest, emailOpts)
	} else {
		parts, warnings, err = ExtractEML(item.path, dest, emailOpts)
	}
	if err != nil {
		if errors.Is(err, ErrEmailExtraction) {
			rec.Warnings = append(rec.Warnings, err.Error())
			p.logger.Warn("email extraction failed", "path", item.path, "error", err)
			return nil, p.sink.RecordScanItem(ctx, rec)
		}
		return nil, err
	}
	rec.Warnings = warnings
	if err := p.sink.RecordScanItem(ctx, rec); err != nil {
		return nil, err
	}

	children := make([]workItem, 0, len(parts))
	for _, part := range parts {
		children = append(children, workItem{
			path:        part.Path,
			depth:       item.depth + 1,
			virtualPath: vpath + "::" + part.VirtualPath,
		})
	}
	return children, nil
}

func (p *Processor) processPDF(ctx context.Context, item workItem, vpath string, info os.FileInfo) ([]workItem, error) {
	text, err := ExtractTextPDF(item.path)
	if err != nil {
		return nil, err
	}
	hasText := strings.TrimSpace(text) != ""

	if hasText && p.opts.OCRMode != OCRModeForce {
		hits := p.analyzeText(ctx, text)
		if err := p.emitFindings(ctx, vpath, hits, text); err != nil {
			return nil, err
		}
		return nil, p.recordTextItem(ctx, item.path, vpath, KindPDF, MethodText, text, len(hits), nil)
	}

	if p.opts.OCRMode == OCRModeOff {
		return nil, p.recordTextItem(ctx, item.path, vpath, KindPDF, MethodNone, "", 0, []string{warnOCRDisabled})
	}

	method := MethodOCR
	entities := 0
	if hasText {
		// force mode with a text layer analyzes both layers
		method = MethodHybrid
		hits := p.analyzeText(ctx, text)
		if err := p.emitFindings(ctx, vpath, hits, text); err != nil {
			return nil, err
		}
		entities = len(hits)
	}

	dest := siblingDir(item.path, "pages_")
	pages, err := RenderPDFToImages(item.path, dest, p.cfg.OCRMaxPages)
	if err != nil {
		return nil, err
	}
	if err := p.recordTextItem(ctx, item.path, vpath, KindPDF, method, text, entities, nil); err != nil {
		return nil, err
	}

	children := make([]workItem, 0, len(pages))
	for n, page := range pages {
		children = append(children, workItem{
			path:        page,
			depth:       item.depth + 1,
			virtualPath: fmt.Sprintf("%s::page_%d", vpath, n+1),
		})
	}
	return children, nil
}

func (p *Processor) processImage(ctx context.Context, path, vpath string) error {
	if p.opts.OCRMode == OCRModeOff {
		return p.recordTextItem(ctx, path, vpath, KindImage, MethodNone, "", 0, []string{warnOCRDisabled})
	}
	text, hits, err := p.analyzer.AnalyzeImage(ctx, path, p.analyzeOpts())
	if err != nil {
		return fmt.Errorf("analyzing image %s: %w", path, err)
	}
	if strings.TrimSpace(text) == "" {
		return p.recordTextItem(ctx, path, vpath, KindImage, MethodOCR, "", 0, []string{warnNoOCRText})
	}
	if err := p.emitFindings(ctx, vpath, hits, text); err != nil {
		return err
	}
	return p.recordTextItem(ctx, path, vpath, KindImage, MethodOCR, text, len(hits), nil)
}

func (p *Processor) processDocument(ctx context.Context, path, vpath string, kind Kind) error {
	var text string
	var err error
	switch kind {
	case KindDOCX:
		text, err = ExtractTextDOCX(path)
	case KindPPTX:
		text, err = ExtractTextPPTX(path)
	case KindXLSX:
		text, err = ExtractTextXLSX(path)
	}
	if err != nil {
		return err
	}
	hits := p.analyzeText(ctx, text)
	if err := p.emitFindings(ctx, vpath, hits, text); err != nil {
		return err
	}
	return p.recordTextItem(ctx, path, vpath, kind, MethodText, text, len(hits), nil)
}

// processText streams the file in 1 MiB chunks so large plaintext never
// resides fully in memory. The preview keeps the first three chunks.
func (p *Processor) processText(ctx context.Context, path, vpath string) error {
	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("opening text file: %w", err)
	}
	defer f.Close()

	var preview strings.Builder
	totalChars := 0
	totalHits := 0
	chunkIndex := 0
	buf := make([]byte, textChunkSize)
	for {
		n, rerr := io.ReadFull(f, buf)
		if n > 0 {
			chunk := strings.ToValidUTF8(string(buf[:n]), "�")
			totalChars += len(chunk)
			if chunkIndex < previewChunks {
				preview.WriteString(chunk)
			}
			chunkIndex++
			if strings.TrimSpace(chunk) != "" {
				hits := p.analyzeText(ctx, chunk)
				totalHits += len(hits)
				if err := p.emitFindings(ctx, vpath, hits, chunk); err != nil {
					return err
				}
			}
		}
		if rerr == io.EOF || rerr == io.ErrUnexpectedEOF {
			break
		}
		if rerr != nil {
			return fmt.Errorf("reading text file: %w", rerr)
		}
	}

	rec := ScanItem{
		VirtualPath:      vpath,
		SourcePath:       path,
		MIMEType:         mimeFor(KindText, path),
		ExtractionMethod: MethodText,
		TextChars:        totalChars,
		TextPreview:      truncate(preview.String(), previewLimit),
		EntitiesFound:    totalHits,
	}
	return p.sink.RecordScanItem(ctx, rec)
}

// ---------------------------------------------------------------------------
// shared helpers
// ---------------------------------------------------------------------------

func (p *Processor) analyzeOpts() pii.Options {
	return pii.Options{
		Entities:       p.opts.Entities,
		Language:       p.opts.Language,
		ScoreThreshold: p.opts.ScoreThreshold,
	}
}

func (p *Processor) analyzeText(ctx context.Context, text string) []pii.Hit {
	if strings.TrimSpace(text) == "" {
		return nil
	}
	return p.analyzer.AnalyzeText(ctx, text, p.analyzeOpts())
}

func (p *Processor) emitFindings(ctx context.Context, vpath string, hits []pii.Hit, text string) error {
	p.stats.EntitiesFound += len(hits)
	if len(hits) == 0 {
		return nil
	}
	candidates := findings.Generate(hits, text, findings.DefaultWindow)
	return p.sink.RecordFindings(ctx, vpath, candidates)
}

func (p *Processor) recordTextItem(ctx context.Context, path, vpath string, kind Kind, method, text string, entities int, warnings []string) error {
	return p.sink.RecordScanItem(ctx, ScanItem{
		VirtualPath:      vpath,
		SourcePath:       path,
		MIMEType:         mimeFor(kind, path),
		ExtractionMethod: method,
		OCRUsed:          method == MethodOCR || method == MethodHybrid,
		TextChars:        len(text),
		TextPreview:      truncate(text, previewLimit),
		EntitiesFound:    entities,
		Warnings:         warnings,
	})
}

// siblingDir names the expansion directory placed next to a container:
// /x/inbox.zip with prefix "extracted_" becomes /x/extracted_inbox.
func siblingDir(path, prefix string) string {
	base := filepath.Base(path)
	stem := strings.TrimSuffix(base, filepath.Ext(base))
	if stem == "" {
		stem = base
	}
	return filepath.Join(filepath.Dir(path), prefix+stem)
}

func truncate(s string, limit int) string {
	if len(s) <= limit {
		return s
	}
	return s[:limit]
}

// HashFile returns the hex sha256 of the file contents.
func HashFile(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", fmt.Errorf("hashing %s: %w", path, err)
	}
	defer f.Close()
	h := sha256.New()
	if _, err := io.Copy(h, f); err != nil {
		return "", fmt.Errorf("hashing %s: %w", path, err)
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}
