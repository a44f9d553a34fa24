package ingest

import (
	"archive/tar"
	"archive/zip"
	"compress/gzip"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func writeZip(t *testing.T, dir string, members map[string]string) string {
	t.Helper()
	path := filepath.Join(dir, "test.zip")
	f, err := os.Create(path)
	if err != nil {
		t.Fatalf("creating zip: %v", err)
	}
	defer f.Close()

	zw := zip.NewWriter(f)
	for name, content := range members {
		w, err := zw.Create(name)
		if err != nil {
			t.Fatalf("adding member %q: %v", name, err)
		}
		if _, err := w.Write([]byte(content)); err != nil {
			t.Fatalf("writing member %q: %v", name, err)
		}
	}
	if err := zw.Close(); err != nil {
		t.Fatalf("closing zip: %v", err)
	}
	return path
}

func writeTarGz(t *testing.T, dir string, members map[string]string) string {
	t.Helper()
	path := filepath.Join(dir, "test.tar.gz")
	f, err := os.Create(path)
	if err != nil {
		t.Fatalf("creating tar.gz: %v", err)
	}
	defer f.Close()

	gz := gzip.NewWriter(f)
	tw := tar.NewWriter(gz)
	for name, content := range members {
		hdr := &tar.Header{Name: name, Mode: 0o644, Size: int64(len(content))}
		if err := tw.WriteHeader(hdr); err != nil {
			t.Fatalf("writing header %q: %v", name, err)
		}
		if _, err := tw.Write([]byte(content)); err != nil {
			t.Fatalf("writing member %q: %v", name, err)
		}
	}
	if err := tw.Close(); err != nil {
		t.Fatalf("closing tar: %v", err)
	}
	if err := gz.Close(); err != nil {
		t.Fatalf("closing gzip: %v", err)
	}
	return path
}

func defaultLimits() ArchiveLimits {
	return ArchiveLimits{MaxFiles: 100, MaxBytes: 1 << 20}
}

func TestExtractZip(t *testing.T) {
	dir := t.TempDir()
	archive := writeZip(t, dir, map[string]string{
		"readme.txt":       "hello",
		"nested/notes.txt": "world",
	})

	x := NewArchiveExtractor(defaultLimits())
	items, err := x.Extract(archive, filepath.Join(dir, "out"))
	if err != nil {
		t.Fatalf("Extract: %v", err)
	}
	if len(items) != 2 {
		t.Fatalf("got %d items, want 2", len(items))
	}
	byRel := make(map[string]string)
	for _, it := range items {
		data, err := os.ReadFile(it.Path)
		if err != nil {
			t.Fatalf("reading %s: %v", it.Path, err)
		}
		byRel[it.RelativePath] = string(data)
	}
	if byRel["readme.txt"] != "hello" || byRel["nested/notes.txt"] != "world" {
		t.Errorf("extracted contents = %v", byRel)
	}
}

func TestExtractZipRejectsTraversal(t *testing.T) {
	dir := t.TempDir()
	archive := writeZip(t, dir, map[string]string{
		"../evil.txt": "pwned",
	})

	x := NewArchiveExtractor(defaultLimits())
	out := filepath.Join(dir, "out")
	_, err := x.Extract(archive, out)
	if !errors.Is(err, ErrArchiveExtraction) {
		t.Fatalf("error = %v, want ErrArchiveExtraction", err)
	}
	if _, statErr := os.Stat(filepath.Join(dir, "evil.txt")); !os.IsNotExist(statErr) {
		t.Error("traversal file was written outside the extraction dir")
	}
}

func TestExtractZipEnforcesFileCount(t *testing.T) {
	dir := t.TempDir()
	members := make(map[string]string)
	for i := 0; i < 5; i++ {
		members[strings.Repeat("x", i+1)+".txt"] = "data"
	}
	archive := writeZip(t, dir, members)

	x := NewArchiveExtractor(ArchiveLimits{MaxFiles: 3, MaxBytes: 1 << 20})
	if _, err := x.Extract(archive, filepath.Join(dir, "out")); !errors.Is(err, ErrArchiveExtraction) {
		t.Fatalf("error = %v, want ErrArchiveExtraction", err)
	}
}

func TestExtractZipEnforcesByteLimit(t *testing.T) {
	dir := t.TempDir()
	archive := writeZip(t, dir, map[string]string{
		"big.txt": strings.Repeat("a", 2048),
	})

	x := NewArchiveExtractor(ArchiveLimits{MaxFiles: 10, MaxBytes: 1024})
	if _, err := x.Extract(archive, filepath.Join(dir, "out")); !errors.Is(err, ErrArchiveExtraction) {
		t.Fatalf("error = %v, want ErrArchiveExtraction", err)
	}
}

func TestExtractTarGz(t *testing.T) {
	dir := t.TempDir()
	archive := writeTarGz(t, dir, map[string]string{
		"a/b.txt": "tar content",
	})

	x := NewArchiveExtractor(defaultLimits())
	items, err := x.Extract(archive, filepath.Join(dir, "out"))
	if err != nil {
		t.Fatalf("Extract: %v", err)
	}
	if len(items) != 1 || items[0].RelativePath != "a/b.txt" {
		t.Fatalf("items = %+v", items)
	}
	data, err := os.ReadFile(items[0].Path)
	if err != nil {
		t.Fatalf("reading member: %v", err)
	}
	if string(data) != "tar content" {
		t.Errorf("member content = %q", data)
	}
}

func TestExtractUnsupportedSuffix(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "data.lzh")
	if err := os.WriteFile(path, []byte("x"), 0o644); err != nil {
		t.Fatal(err)
	}
	x := NewArchiveExtractor(defaultLimits())
	if _, err := x.Extract(path, filepath.Join(dir, "out")); !errors.Is(err, ErrArchiveExtraction) {
		t.Fatalf("error = %v, want ErrArchiveExtraction", err)
	}
}
