package ingest

import (
	"archive/tar"
	"archive/zip"
	"compress/gzip"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/bodgit/sevenzip"
	"github.com/nwaples/rardecode/v2"
)

// ErrArchiveExtraction is the recoverable failure class for container
// unpacking: unsupported format, limit violations, traversal attempts, or
// corrupt members. The processor downgrades it to a scan-item warning.
var ErrArchiveExtraction = errors.New("ingest: archive extraction failed")

// ExtractedItem is one regular file produced by archive extraction.
type ExtractedItem struct {
	Path         string // absolute location on disk
	RelativePath string // member name inside the archive
}

// ArchiveLimits bounds what a single archive may expand into.
type ArchiveLimits struct {
	MaxFiles int   // maximum member count, directories included
	MaxBytes int64 // maximum cumulative uncompressed bytes
}

// ArchiveExtractor unpacks zip, rar, 7z, and tar(.gz) archives while
// enforcing count, size, and containment limits.
type ArchiveExtractor struct {
	limits ArchiveLimits
}

func NewArchiveExtractor(limits ArchiveLimits) *ArchiveExtractor {
	return &ArchiveExtractor{limits: limits}
}

// Extract unpacks the archive at path into destination, creating it if
// needed. Only regular files are emitted; directories are skipped.
// Extraction is atomic per member: a member that fails mid-write leaves no
// partial file, though members extracted earlier remain on disk.
func (x *ArchiveExtractor) Extract(path, destination string) ([]ExtractedItem, error) {
	base, err := filepath.Abs(destination)
	if err != nil {
		return nil, fmt.Errorf("resolving destination: %w", err)
	}
	if err := os.MkdirAll(base, 0o755); err != nil {
		return nil, fmt.Errorf("creating destination: %w", err)
	}

	lower := strings.ToLower(path)
	switch {
	case strings.HasSuffix(lower, ".zip"):
		return x.extractZip(path, base)
	case strings.HasSuffix(lower, ".rar"):
		return x.extractRar(path, base)
	case strings.HasSuffix(lower, ".7z"):
		return x.extract7z(path, base)
	case strings.HasSuffix(lower, ".tar"), strings.HasSuffix(lower, ".tgz"), strings.HasSuffix(lower, ".tar.gz"):
		return x.extractTar(path, base)
	}
	return nil, fmt.Errorf("%w: unsupported archive type %q", ErrArchiveExtraction, filepath.Ext(path))
}

func (x *ArchiveExtractor) extractZip(path, base string) ([]ExtractedItem, error) {
	r, err := zip.OpenReader(path)
	if err != nil {
		return nil, fmt.Errorf("%w: opening zip: %v", ErrArchiveExtraction, err)
	}
	defer r.Close()

	if len(r.File) > x.limits.MaxFiles {
		return nil, fmt.Errorf("%w: archive contains too many files", ErrArchiveExtraction)
	}

	var extracted []ExtractedItem
	var total int64
	for _, member := range r.File {
		if member.FileInfo().IsDir() {
			continue
		}
		total += int64(member.UncompressedSize64)
		if err := x.checkBytes(total); err != nil {
			return extracted, err
		}
		target, err := safeJoin(base, member.Name)
		if err != nil {
			return extracted, err
		}
		rc, err := member.Open()
		if err != nil {
			return extracted, fmt.Errorf("%w: opening member %q: %v", ErrArchiveExtraction, member.Name, err)
		}
		err = writeMember(target, rc, int64(member.UncompressedSize64))
		rc.Close()
		if err != nil {
			return extracted, err
		}
		extracted = append(extracted, ExtractedItem{Path: target, RelativePath: member.Name})
	}
	return extracted, nil
}

func (x *ArchiveExtractor) extractTar(path, base string) ([]ExtractedItem, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("%w: opening tar: %v", ErrArchiveExtraction, err)
	}
	defer f.Close()

	var src io.Reader = f
	lower := strings.ToLower(path)
	if strings.HasSuffix(lower, ".tgz") || strings.HasSuffix(lower, ".tar.gz") {
		gz, err := gzip.NewReader(f)
		if err != nil {
			return nil, fmt.Errorf("%w: reading gzip stream: %v", ErrArchiveExtraction, err)
		}
		defer gz.Close()
		src = gz
	}

	var extracted []ExtractedItem
	var total int64
	count := 0
	tr := tar.NewReader(src)
	for {
		hdr, err := tr.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			return extracted, fmt.Errorf("%w: reading tar: %v", ErrArchiveExtraction, err)
		}
		count++
		if count > x.limits.MaxFiles {
			return extracted, fmt.Errorf("%w: archive contains too many files", ErrArchiveExtraction)
		}
		if hdr.Typeflag != tar.TypeReg {
			continue
		}
		total += hdr.Size
		if err := x.checkBytes(total); err != nil {
			return extracted, err
		}
		target, err := safeJoin(base, hdr.Name)
		if err != nil {
			return extracted, err
		}
		if err := writeMember(target, tr, hdr.Size); err != nil {
			return extracted, err
		}
		extracted = append(extracted, ExtractedItem{Path: target, RelativePath: hdr.Name})
	}
	return extracted, nil
}

func (x *ArchiveExtractor) extractRar(path, base string) ([]ExtractedItem, error) {
	rc, err := rardecode.OpenReader(path)
	if err != nil {
		return nil, fmt.Errorf("%w: opening rar: %v", ErrArchiveExtraction, err)
	}
	defer rc.Close()

	var extracted []ExtractedItem
	var total int64
	count := 0
	for {
		hdr, err := rc.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			return extracted, fmt.Errorf("%w: reading rar: %v", ErrArchiveExtraction, err)
		}
		count++
		if count > x.limits.MaxFiles {
			return extracted, fmt.Errorf("%w: archive contains too many files", ErrArchiveExtraction)
		}
		if hdr.IsDir {
			continue
		}
		total += hdr.UnPackedSize
		if err := x.checkBytes(total); err != nil {
			return extracted, err
		}
		target, err := safeJoin(base, hdr.Name)
		if err != nil {
			return extracted, err
		}
		if err := writeMember(target, rc, hdr.UnPackedSize); err != nil {
			return extracted, err
		}
		extracted = append(extracted, ExtractedItem{Path: target, RelativePath: hdr.Name})
	}
	return extracted, nil
}

func (x *ArchiveExtractor) extract7z(path, base string) ([]ExtractedItem, error) {
	r, err := sevenzip.OpenReader(path)
	if err != nil {
		return nil, fmt.Errorf("%w: opening 7z: %v", ErrArchiveExtraction, err)
	}
	defer r.Close()

	if len(r.File) > x.limits.MaxFiles {
		return nil, fmt.Errorf("%w: archive contains too many files", ErrArchiveExtraction)
	}

	var extracted []ExtractedItem
	var total int64
	for _, member := range r.File {
		info := member.FileInfo()
		if info.IsDir() {
			continue
		}
		total += info.Size()
		if err := x.checkBytes(total); err != nil {
			return extracted, err
		}
		target, err := safeJoin(base, member.Name)
		if err != nil {
			return extracted, err
		}
		rc, err := member.Open()
		if err != nil {
			return extracted, fmt.Errorf("%w: opening member %q: %v", ErrArchiveExtraction, member.Name, err)
		}
		err = writeMember(target, rc, info.Size())
		rc.Close()
		if err != nil {
			return extracted, err
		}
		extracted = append(extracted, ExtractedItem{Path: target, RelativePath: member.Name})
	}
	return extracted, nil
}

func (x *ArchiveExtractor) checkBytes(total int64) error {
	if total > x.limits.MaxBytes {
		return fmt.Errorf("%w: archive exceeds max extracted bytes", ErrArchiveExtraction)
	}
	return nil
}

// safeJoin resolves a member name against the extraction root and rejects
// anything that would land outside it (zip-slip defense).
func safeJoin(base, name string) (string, error) {
	if filepath.IsAbs(name) || filepath.IsAbs(filepath.FromSlash(name)) {
		return "", fmt.Errorf("%w: entry %q is outside extraction dir", ErrArchiveExtraction, name)
	}
	target := filepath.Join(base, filepath.FromSlash(name))
	rel, err := filepath.Rel(base, target)
	if err != nil || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return "", fmt.Errorf("%w: entry %q is outside extraction dir", ErrArchiveExtraction, name)
	}
	return target, nil
}

// writeMember copies a member to disk through a temp file so a mid-copy
// failure never leaves a partial member. limit, when >= 0, caps the copy at
// the declared size to defend against lying headers.
func writeMember(target string, src io.Reader, limit int64) error {
	if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
		return fmt.Errorf("%w: creating member dir: %v", ErrArchiveExtraction, err)
	}
	tmp, err := os.CreateTemp(filepath.Dir(target), ".extract-*")
	if err != nil {
		return fmt.Errorf("%w: creating temp file: %v", ErrArchiveExtraction, err)
	}
	tmpName := tmp.Name()

	reader := src
	if limit >= 0 {
		reader = io.LimitReader(src, limit)
	}
	if _, err := io.Copy(tmp, reader); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("%w: writing member: %v", ErrArchiveExtraction, err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("%w: closing member: %v", ErrArchiveExtraction, err)
	}
	if err := os.Rename(tmpName, target); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("%w: placing member: %v", ErrArchiveExtraction, err)
	}
	return nil
}
