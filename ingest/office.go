package ingest

import (
	"archive/zip"
	"encoding/xml"
	"errors"
	"fmt"
	"io"
	"sort"
	"strings"

	"github.com/xuri/excelize/v2"
)

// ErrTextExtraction is the recoverable failure class for document text
// extraction: corrupt office packages, unreadable PDFs, encrypted content.
var ErrTextExtraction = errors.New("ingest: text extraction failed")

// ExtractTextDOCX returns the paragraph text of a Word document, one
// paragraph per line.
func ExtractTextDOCX(path string) (string, error) {
	return extractOfficeXML(path, func(name string) bool {
		return name == "word/document.xml"
	})
}

// ExtractTextPPTX returns the text runs of every slide, slides separated by
// blank lines and ordered by slide number.
func ExtractTextPPTX(path string) (string, error) {
	return extractOfficeXML(path, func(name string) bool {
		return strings.HasPrefix(name, "ppt/slides/slide") && strings.HasSuffix(name, ".xml")
	})
}

// extractOfficeXML walks the XML parts of an OOXML package selected by
// match, joining paragraph-level elements with newlines.
func extractOfficeXML(path string, match func(string) bool) (string, error) {
	r, err := zip.OpenReader(path)
	if err != nil {
		return "", fmt.Errorf("%w: opening package: %v", ErrTextExtraction, err)
	}
	defer r.Close()

	var parts []*zip.File
	for _, member := range r.File {
		if match(member.Name) {
			parts = append(parts, member)
		}
	}
	sort.Slice(parts, func(i, j int) bool { return parts[i].Name < parts[j].Name })

	var sections []string
	for _, part := range parts {
		rc, err := part.Open()
		if err != nil {
			return "", fmt.Errorf("%w: opening part %q: %v", ErrTextExtraction, part.Name, err)
		}
		text, err := paragraphText(rc)
		rc.Close()
		if err != nil {
			return "", fmt.Errorf("%w: parsing part %q: %v", ErrTextExtraction, part.Name, err)
		}
		if text != "" {
			sections = append(sections, text)
		}
	}
	return strings.Join(sections, "\n\n"), nil
}

// paragraphText token-walks WordprocessingML or DrawingML content, emitting
// the character data of <t> runs and breaking lines at paragraph ends.
func paragraphText(src io.Reader) (string, error) {
	dec := xml.NewDecoder(src)
	var b strings.Builder
	inRun := false
	for {
		tok, err := dec.Token()
		if err == io.EOF {
			break
		}
		if err != nil {
			return "", err
		}
		switch t := tok.(type) {
		case xml.StartElement:
			if t.Name.Local == "t" {
				inRun = true
			}
		case xml.EndElement:
			switch t.Name.Local {
			case "t":
				inRun = false
			case "p":
				b.WriteByte('\n')
			}
		case xml.CharData:
			if inRun {
				b.Write(t)
			}
		}
	}
	return strings.TrimRight(b.String(), "\n"), nil
}

// ExtractTextXLSX returns the cell text of every sheet, rows rendered as
// tab-separated lines and sheets separated by blank lines.
func ExtractTextXLSX(path string) (string, error) {
	wb, err := excelize.OpenFile(path)
	if err != nil {
		return "", fmt.Errorf("%w: opening workbook: %v", ErrTextExtraction, err)
	}
	defer wb.Close()

	var sections []string
	for _, sheet := range wb.GetSheetList() {
		rows, err := wb.GetRows(sheet)
		if err != nil {
			return "", fmt.Errorf("%w: reading sheet %q: %v", ErrTextExtraction, sheet, err)
		}
		var lines []string
		for _, row := range rows {
			line := strings.TrimRight(strings.Join(row, "\t"), "\t")
			if strings.TrimSpace(line) != "" {
				lines = append(lines, line)
			}
		}
		if len(lines) > 0 {
			sections = append(sections, strings.Join(lines, "\n"))
		}
	}
	return strings.Join(sections, "\n\n"), nil
}
