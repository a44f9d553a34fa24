package ingest

import "testing"

func TestSafeFilename(t *testing.T) {
	cases := []struct {
		in   string
		want string
	}{
		{"report.pdf", "report.pdf"},
		{"dir/report.pdf", "report.pdf"},
		{`..\..\evil.exe`, "evil.exe"},
		{"../../../etc/passwd", "passwd"},
		{"weird name (1).txt", "weirdname1.txt"},
		{"ünïcödé.txt", "ncd.txt"},
		{"", "file"},
		{"..", "file"},
		{"///", "file"},
	}
	for _, c := range cases {
		if got := SafeFilename(c.in); got != c.want {
			t.Errorf("SafeFilename(%q) = %q, want %q", c.in, got, c.want)
		}
	}
}
