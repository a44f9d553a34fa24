package ingest

import "testing"

func TestDetectKind(t *testing.T) {
	cases := []struct {
		path string
		want Kind
	}{
		{"report.PDF", KindPDF},
		{"letter.docx", KindDOCX},
		{"deck.pptx", KindPPTX},
		{"sheet.xlsx", KindXLSX},
		{"notes.txt", KindText},
		{"README.md", KindText},
		{"data.csv", KindText},
		{"mail.eml", KindEmail},
		{"mail.MSG", KindEmail},
		{"scan.png", KindImage},
		{"photo.JPEG", KindImage},
		{"bundle.zip", KindArchive},
		{"bundle.rar", KindArchive},
		{"bundle.7z", KindArchive},
		{"bundle.tar", KindArchive},
		{"bundle.tgz", KindArchive},
		{"bundle.tar.gz", KindArchive},
		{"model.bin.gz", KindUnknown},
		{"program.exe", KindUnknown},
		{"noextension", KindUnknown},
	}
	for _, c := range cases {
		if got := DetectKind(c.path); got != c.want {
			t.Errorf("DetectKind(%q) = %q, want %q", c.path, got, c.want)
		}
	}
}

func TestMimeForFallsBack(t *testing.T) {
	if got := mimeFor(KindPDF, "x.pdf"); got != "application/pdf" {
		t.Errorf("pdf mime = %q", got)
	}
	if got := mimeFor(KindEmail, "x.weird"); got != "message/rfc822" {
		t.Errorf("email fallback mime = %q", got)
	}
	if got := mimeFor(KindUnknown, "x.weird"); got != "application/octet-stream" {
		t.Errorf("unknown mime = %q", got)
	}
}
