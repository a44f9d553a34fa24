package ingest

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

const sampleEML = `From: Alice <alice@example.com>
To: Bob <bob@example.com>
Subject: Quarterly numbers
Date: Mon, 06 Jan 2025 10:00:00 +0000
MIME-Version: 1.0
Content-Type: multipart/mixed; boundary="outer"

--outer
Content-Type: multipart/alternative; boundary="inner"

--inner
Content-Type: text/plain; charset=utf-8

Numbers attached. SSN on file: 123-45-6789.
--inner
Content-Type: text/html; charset=utf-8

<html><body><p>Numbers <b>attached</b>.</p><p>SSN on file: 123-45-6789.</p></body></html>
--inner--
--outer
Content-Type: text/csv
Content-Disposition: attachment; filename="numbers.csv"

id,value
1,100
--outer
Content-Type: image/png
Content-ID: <logo123>
Content-Disposition: inline; filename="logo.png"
Content-Transfer-Encoding: base64

iVBORw0KGgoAAAANSUhEUg==
--outer--
`

func emailFixture(t *testing.T) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "mail.eml")
	normalized := strings.ReplaceAll(sampleEML, "\n", "\r\n")
	if err := os.WriteFile(path, []byte(normalized), 0o644); err != nil {
		t.Fatalf("writing fixture: %v", err)
	}
	return path
}

func allEmailOptions() EmailOptions {
	return EmailOptions{
		IncludeHeaders:      true,
		ParseHTML:           true,
		IncludeAttachments:  true,
		IncludeInlineImages: true,
		MaxAttachments:      10,
		MaxBytes:            1 << 20,
	}
}

func TestExtractEML(t *testing.T) {
	path := emailFixture(t)
	dest := t.TempDir()

	items, warnings, err := ExtractEML(path, dest, allEmailOptions())
	if err != nil {
		t.Fatalf("ExtractEML: %v", err)
	}
	if len(warnings) != 0 {
		t.Errorf("unexpected warnings: %v", warnings)
	}

	byVirtual := make(map[string]string)
	for _, it := range items {
		data, err := os.ReadFile(it.Path)
		if err != nil {
			t.Fatalf("reading %s: %v", it.Path, err)
		}
		byVirtual[it.VirtualPath] = string(data)
	}

	body, ok := byVirtual["body.txt"]
	if !ok {
		t.Fatalf("missing body.txt; got %v", keysOf(byVirtual))
	}
	// Preferred headers come first in canonical order.
	lines := strings.Split(body, "\n")
	if !strings.HasPrefix(lines[0], "Subject: Quarterly numbers") {
		t.Errorf("first header line = %q", lines[0])
	}
	if !strings.HasPrefix(lines[1], "From: ") || !strings.HasPrefix(lines[2], "To: ") {
		t.Errorf("header order wrong: %q %q", lines[1], lines[2])
	}
	if !strings.Contains(body, "123-45-6789") {
		t.Error("body text lost the plain part")
	}

	htmlBody, ok := byVirtual["body.html.txt"]
	if !ok {
		t.Fatal("missing body.html.txt")
	}
	if strings.Contains(htmlBody, "<b>") || !strings.Contains(htmlBody, "Numbers attached.") {
		t.Errorf("rendered html = %q", htmlBody)
	}

	if got := byVirtual["attachments/numbers.csv"]; !strings.Contains(got, "id,value") {
		t.Errorf("attachment content = %q", got)
	}
	if _, ok := byVirtual["inline/logo.png"]; !ok {
		t.Errorf("missing inline image; got %v", keysOf(byVirtual))
	}
}

func TestExtractEMLAttachmentLimit(t *testing.T) {
	path := emailFixture(t)
	opts := allEmailOptions()
	opts.MaxAttachments = 0

	_, warnings, err := ExtractEML(path, t.TempDir(), opts)
	if err != nil {
		t.Fatalf("ExtractEML: %v", err)
	}
	if !containsWarning(warnings, warnTooManyAttachments) {
		t.Errorf("warnings = %v, want attachment-count warning", warnings)
	}
}

func TestExtractEMLByteLimit(t *testing.T) {
	path := emailFixture(t)
	opts := allEmailOptions()
	opts.MaxBytes = 1

	_, warnings, err := ExtractEML(path, t.TempDir(), opts)
	if err != nil {
		t.Fatalf("ExtractEML: %v", err)
	}
	if !containsWarning(warnings, warnAttachmentBytes) {
		t.Errorf("warnings = %v, want attachment-bytes warning", warnings)
	}
}

func TestExtractEMLHeadersDisabled(t *testing.T) {
	path := emailFixture(t)
	opts := allEmailOptions()
	opts.IncludeHeaders = false

	items, _, err := ExtractEML(path, t.TempDir(), opts)
	if err != nil {
		t.Fatalf("ExtractEML: %v", err)
	}
	for _, it := range items {
		if it.VirtualPath != "body.txt" {
			continue
		}
		data, _ := os.ReadFile(it.Path)
		if strings.Contains(string(data), "Subject:") {
			t.Errorf("headers leaked into body: %q", data)
		}
	}
}

func TestExtractEMLCorrupt(t *testing.T) {
	path := filepath.Join(t.TempDir(), "broken.eml")
	if err := os.WriteFile(path, []byte("not a mime message"), 0o644); err != nil {
		t.Fatal(err)
	}
	// A headerless file still parses as a bare message; a missing file is
	// the reliable failure.
	if _, _, err := ExtractEML(filepath.Join(t.TempDir(), "absent.eml"), t.TempDir(), allEmailOptions()); err == nil {
		t.Fatal("expected error for missing file")
	}
}

func TestHTMLToText(t *testing.T) {
	src := `<html><head><style>p{color:red}</style></head><body>
		<h1>Title</h1><p>First paragraph.</p><script>alert(1)</script>
		<ul><li>one</li><li>two</li></ul></body></html>`
	got := htmlToText(src)
	if strings.Contains(got, "alert") || strings.Contains(got, "color") {
		t.Errorf("script/style content leaked: %q", got)
	}
	for _, want := range []string{"Title", "First paragraph.", "one", "two"} {
		if !strings.Contains(got, want) {
			t.Errorf("rendered text missing %q: %q", want, got)
		}
	}
	if !strings.Contains(got, "Title\n") {
		t.Errorf("block elements not separated by line breaks: %q", got)
	}
}

func containsWarning(warnings []string, want string) bool {
	for _, w := range warnings {
		if w == want {
			return true
		}
	}
	return false
}

func keysOf(m map[string]string) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	return keys
}
