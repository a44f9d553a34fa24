package ingest

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"unicode/utf16"

	"github.com/richardlehane/mscfb"
)

// MAPI property tags carried in __substg1.0_<tag><type> streams.
const (
	propSubject          = "0037"
	propSenderName       = "0C1A"
	propDisplayTo        = "0E04"
	propDisplayCc        = "0E03"
	propBodyText         = "1000"
	propBodyHTML         = "1013"
	propTransportHeaders = "007D"
	propAttachData       = "3701"
	propAttachLongName   = "3707"
	propAttachContentID  = "3712"
)

// msgAttachment accumulates the property streams of one attachment storage.
type msgAttachment struct {
	name      string
	contentID string
	data      []byte
}

// ExtractMSG parses an Outlook compound-file message and writes its
// analyzable parts into destination, mirroring the layout ExtractEML
// produces (body.txt, body.html.txt, attachments/, inline/).
func ExtractMSG(path, destination string, opts EmailOptions) ([]EmailItem, []string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, nil, fmt.Errorf("%w: opening msg: %v", ErrEmailExtraction, err)
	}
	defer f.Close()

	doc, err := mscfb.New(f)
	if err != nil {
		return nil, nil, fmt.Errorf("%w: parsing msg: %v", ErrEmailExtraction, err)
	}

	props := make(map[string]string)
	var htmlRaw []byte
	attachments := make(map[string]*msgAttachment)

	for entry, err := doc.Next(); err == nil; entry, err = doc.Next() {
		tag, typ, ok := parsePropStream(entry.Name)
		if !ok {
			continue
		}
		attachKey := attachStorage(entry.Path)
		data, rerr := io.ReadAll(entry)
		if rerr != nil {
			continue
		}
		if attachKey != "" {
			att := attachments[attachKey]
			if att == nil {
				att = &msgAttachment{}
				attachments[attachKey] = att
			}
			switch tag {
			case propAttachData:
				att.data = data
			case propAttachLongName:
				att.name = decodePropString(data, typ)
			case propAttachContentID:
				att.contentID = decodePropString(data, typ)
			}
			continue
		}
		if len(entry.Path) != 0 {
			continue
		}
		switch tag {
		case propBodyHTML:
			htmlRaw = data
		case propSubject, propSenderName, propDisplayTo, propDisplayCc, propBodyText, propTransportHeaders:
			props[tag] = decodePropString(data, typ)
		}
	}

	var items []EmailItem
	var warnings []string

	headerText := ""
	if opts.IncludeHeaders {
		headerText = msgHeaderBlock(props)
	}

	bodyText := props[propBodyText]
	htmlText := string(htmlRaw)
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

	keys := make([]string, 0, len(attachments))
	for k := range attachments {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var totalBytes int64
	count := 0
	for _, k := range keys {
		att := attachments[k]
		if len(att.data) == 0 {
			continue
		}
		inline := att.contentID != ""
		if inline && !opts.IncludeInlineImages {
			continue
		}
		if !inline && !opts.IncludeAttachments {
			continue
		}
		if !inline {
			count++
			if count > opts.MaxAttachments {
				warnings = append(warnings, warnTooManyAttachments)
				break
			}
		}
		totalBytes += int64(len(att.data))
		if totalBytes > opts.MaxBytes {
			if inline {
				warnings = append(warnings, warnInlineBytes)
			} else {
				warnings = append(warnings, warnAttachmentBytes)
			}
			break
		}
		name := att.name
		if name == "" {
			name = "attachment"
		}
		safe := SafeFilename(name)
		subdir := "attachments"
		if inline {
			subdir = "inline"
		}
		p, err := writeBinaryFile(filepath.Join(destination, subdir), safe, att.data)
		if err != nil {
			return items, warnings, err
		}
		items = append(items, EmailItem{Path: p, VirtualPath: subdir + "/" + safe})
	}

	return items, warnings, nil
}

// msgHeaderBlock renders the pseudo headers recoverable from MAPI
// properties, matching the key order headerBlock uses for RFC 5322 mail.
func msgHeaderBlock(props map[string]string) string {
	var lines []string
	add := func(key, value string) {
		if value != "" {
			lines = append(lines, key+": "+value)
		}
	}
	add("Subject", props[propSubject])
	add("From", props[propSenderName])
	add("To", props[propDisplayTo])
	add("Cc", props[propDisplayCc])
	add("Date", transportHeaderValue(props[propTransportHeaders], "Date"))
	return strings.Join(lines, "\n")
}

// transportHeaderValue pulls one header out of the raw transport header
// blob, ignoring folded continuation lines.
func transportHeaderValue(raw, key string) string {
	for _, line := range strings.Split(raw, "\n") {
		line = strings.TrimRight(line, "\r")
		if rest, ok := strings.CutPrefix(line, key+":"); ok {
			return strings.TrimSpace(rest)
		}
	}
	return ""
}

// parsePropStream splits a "__substg1.0_TTTTYYYY" stream name into its
// property tag and type code.
func parsePropStream(name string) (tag, typ string, ok bool) {
	rest, found := strings.CutPrefix(name, "__substg1.0_")
	if !found || len(rest) < 8 {
		return "", "", false
	}
	return strings.ToUpper(rest[:4]), strings.ToUpper(rest[4:8]), true
}

// attachStorage returns the attachment storage name containing the entry,
// or "" when the entry sits at the message root.
func attachStorage(path []string) string {
	for _, p := range path {
		if strings.HasPrefix(p, "__attach_version1.0_") {
			return p
		}
	}
	return ""
}

// decodePropString interprets a property stream body per its type code:
// 001F is UTF-16LE, 001E is 8-bit.
func decodePropString(data []byte, typ string) string {
	if typ == "001F" {
		u16 := make([]uint16, 0, len(data)/2)
		for i := 0; i+1 < len(data); i += 2 {
			u16 = append(u16, uint16(data[i])|uint16(data[i+1])<<8)
		}
		return strings.TrimRight(string(utf16.Decode(u16)), "\x00")
	}
	return strings.TrimRight(string(data), "\x00")
}
