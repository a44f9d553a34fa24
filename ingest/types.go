// Package ingest classifies, unpacks, and extracts text from heterogeneous
// files, and orchestrates recursive scanning of container formats.
package ingest

import (
	"mime"
	"path/filepath"
	"strings"
)

// Kind is the coarse file classification driving processor dispatch.
type Kind string

const (
	KindPDF     Kind = "pdf"
	KindDOCX    Kind = "docx"
	KindPPTX    Kind = "pptx"
	KindXLSX    Kind = "xlsx"
	KindText    Kind = "text"
	KindImage   Kind = "image"
	KindEmail   Kind = "email"
	KindArchive Kind = "archive"
	KindUnknown Kind = "unknown"
)

// DetectKind classifies a path by its (lowercased) suffix.
func DetectKind(path string) Kind {
	lower := strings.ToLower(path)
	suffix := filepath.Ext(lower)
	switch suffix {
	case ".pdf":
		return KindPDF
	case ".docx":
		return KindDOCX
	case ".pptx":
		return KindPPTX
	case ".xlsx":
		return KindXLSX
	case ".txt", ".md", ".csv":
		return KindText
	case ".eml", ".msg":
		return KindEmail
	case ".png", ".jpg", ".jpeg", ".tiff", ".gif", ".bmp":
		return KindImage
	case ".zip", ".rar", ".7z", ".tar", ".tgz":
		return KindArchive
	case ".gz":
		if strings.HasSuffix(lower, ".tar.gz") {
			return KindArchive
		}
	}
	return KindUnknown
}

// mimeFallbacks covers extensions the platform mime table may not know.
var mimeFallbacks = map[Kind]string{
	KindPDF:     "application/pdf",
	KindDOCX:    "application/vnd.openxmlformats-officedocument.wordprocessingml.document",
	KindPPTX:    "application/vnd.openxmlformats-officedocument.presentationml.presentation",
	KindXLSX:    "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet",
	KindText:    "text/plain",
	KindImage:   "application/octet-stream",
	KindEmail:   "message/rfc822",
	KindArchive: "application/octet-stream",
}

// mimeFor resolves the MIME type recorded on scan items, preferring the
// extension lookup and falling back per kind.
func mimeFor(kind Kind, path string) string {
	if t := mime.TypeByExtension(filepath.Ext(strings.ToLower(path))); t != "" {
		if i := strings.IndexByte(t, ';'); i >= 0 {
			t = t[:i]
		}
		return strings.TrimSpace(t)
	}
	if t, ok := mimeFallbacks[kind]; ok {
		return t
	}
	return "application/octet-stream"
}
