package ingest

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/jhillyerd/enmime"
	"golang.org/x/net/html"
)

// ErrEmailExtraction is the recoverable failure class for email containers.
var ErrEmailExtraction = errors.New("ingest: email extraction failed")

// EmailItem is one synthetic file produced by email extraction, identified
// by its path relative to the email (body.txt, attachments/report.pdf, ...).
type EmailItem struct {
	Path        string
	VirtualPath string
}

// EmailOptions controls which parts of a message are materialized and how
// much attachment data may be written.
type EmailOptions struct {
	IncludeHeaders      bool
	ParseHTML           bool
	IncludeAttachments  bool
	IncludeInlineImages bool
	MaxAttachments      int
	MaxBytes            int64
}

// Warning strings appended when limits cut extraction short.
const (
	warnTooManyAttachments = "Email contains too many attachments; extra attachments skipped."
	warnAttachmentBytes    = "Email attachments exceed size limit; extra attachments skipped."
	warnInlineBytes        = "Email inline images exceed size limit; extra images skipped."
)

// Header keys emitted first in body.txt, in this order; the remaining
// headers follow sorted by key.
var preferredHeaders = []string{"Subject", "From", "To", "Cc", "Date"}

// ExtractEML parses an RFC 5322 message and writes its analyzable parts
// into destination. Returned warnings describe parts skipped by limits.
func ExtractEML(path, destination string, opts EmailOptions) ([]EmailItem, []string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, nil, fmt.Errorf("%w: opening eml: %v", ErrEmailExtraction, err)
	}
	defer f.Close()

	env, err := enmime.ReadEnvelope(f)
	if err != nil {
		return nil, nil, fmt.Errorf("%w: parsing eml: %v", ErrEmailExtraction, err)
	}

	var items []EmailItem
	var warnings []string

	headerText := ""
	if opts.IncludeHeaders {
		headerText = headerBlock(env)
	}

	bodyText := env.Text
	htmlText := env.HTML
	if bodyText == "" && htmlText != "" && opts.ParseHTML {
		bodyText = htmlToText(htmlText)
	}

	if combined := strings.TrimSpace(headerText + "\n" + bodyText); combined != "" {
		p, err := writeTextFile(destination, "body.txt", combined)
		if err != nil {
			return items, warnings, err
		}
		items = append(items, EmailItem{Path: p, VirtualPath: "body.txt"})
	}

	if htmlText != "" && opts.ParseHTML {
		p, err := writeTextFile(destination, "body.html.txt", htmlToText(htmlText))
		if err != nil {
			return items, warnings, err
		}
		items = append(items, EmailItem{Path: p, VirtualPath: "body.html.txt"})
	}

	var totalBytes int64

	if opts.IncludeAttachments {
		count := 0
		for _, part := range env.Attachments {
			count++
			if count > opts.MaxAttachments {
				warnings = append(warnings, warnTooManyAttachments)
				break
			}
			if len(part.Content) == 0 {
				continue
			}
			totalBytes += int64(len(part.Content))
			if totalBytes > opts.MaxBytes {
				warnings = append(warnings, warnAttachmentBytes)
				break
			}
			name := part.FileName
			if name == "" {
				name = "attachment"
			}
			safe := SafeFilename(name)
			p, err := writeBinaryFile(filepath.Join(destination, "attachments"), safe, part.Content)
			if err != nil {
				return items, warnings, err
			}
			items = append(items, EmailItem{Path: p, VirtualPath: "attachments/" + safe})
		}
	}

	if opts.IncludeInlineImages {
		for _, part := range env.Inlines {
			if !strings.HasPrefix(part.ContentType, "image/") {
				continue
			}
			if part.ContentID == "" && part.Disposition != "inline" {
				continue
			}
			if len(part.Content) == 0 {
				continue
			}
			totalBytes += int64(len(part.Content))
			if totalBytes > opts.MaxBytes {
				warnings = append(warnings, warnInlineBytes)
				break
			}
			name := part.FileName
			if name == "" {
				name = "inline_" + firstNonEmpty(part.ContentID, "image")
			}
			safe := SafeFilename(name)
			p, err := writeBinaryFile(filepath.Join(destination, "inline"), safe, part.Content)
			if err != nil {
				return items, warnings, err
			}
			items = append(items, EmailItem{Path: p, VirtualPath: "inline/" + safe})
		}
	}

	return items, warnings, nil
}

// headerBlock renders message headers as "Key: value" lines in a canonical
// order, so the body text is deterministic for identical messages.
func headerBlock(env *enmime.Envelope) string {
	seen := make(map[string]bool)
	var lines []string
	for _, key := range preferredHeaders {
		if v := env.GetHeader(key); v != "" {
			lines = append(lines, key+": "+v)
			seen[strings.ToLower(key)] = true
		}
	}
	keys := env.GetHeaderKeys()
	sort.Strings(keys)
	for _, key := range keys {
		if seen[strings.ToLower(key)] {
			continue
		}
		if v := env.GetHeader(key); v != "" {
			lines = append(lines, key+": "+v)
		}
	}
	return strings.Join(lines, "\n")
}

// blockTags force a line break when rendering HTML to text.
var blockTags = map[string]bool{
	"p": true, "div": true, "br": true, "li": true, "tr": true,
	"table": true, "h1": true, "h2": true, "h3": true, "h4": true,
	"h5": true, "h6": true, "blockquote": true, "pre": true,
}

// htmlToText strips tags from an HTML document, separating block elements
// with line breaks. Script and style content is dropped.
func htmlToText(src string) string {
	doc, err := html.Parse(strings.NewReader(src))
	if err != nil {
		return src
	}
	var b strings.Builder
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		switch n.Type {
		case html.ElementNode:
			if n.Data == "script" || n.Data == "style" {
				return
			}
			if blockTags[n.Data] {
				b.WriteByte('\n')
			}
		case html.TextNode:
			b.WriteString(n.Data)
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
		if n.Type == html.ElementNode && blockTags[n.Data] {
			b.WriteByte('\n')
		}
	}
	walk(doc)
	return collapseBlankLines(b.String())
}

func collapseBlankLines(s string) string {
	lines := strings.Split(s, "\n")
	var out []string
	for _, line := range lines {
		if t := strings.TrimSpace(line); t != "" {
			out = append(out, t)
		}
	}
	return strings.Join(out, "\n")
}

func writeTextFile(dir, name, content string) (string, error) {
	return writeBinaryFile(dir, name, []byte(content))
}

func writeBinaryFile(dir, name string, content []byte) (string, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("%w: creating %s: %v", ErrEmailExtraction, dir, err)
	}
	target := filepath.Join(dir, name)
	if err := os.WriteFile(target, content, 0o644); err != nil {
		return "", fmt.Errorf("%w: writing %s: %v", ErrEmailExtraction, name, err)
	}
	return target, nil
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
