// Package export packages stage documents for download.
package export

import (
	"errors"
	"fmt"
	"strings"
	"unicode"

	"github.com/pavelanni/dethi/internal/model"
)

// ErrUnknownFormat is returned for formats other than FormatWord and
// FormatHTML.
var ErrUnknownFormat = errors.New("unknown export format")

// Export formats.
const (
	FormatWord = "doc"
	FormatHTML = "html"
)

// Formats lists the supported formats.
var Formats = []string{FormatWord, FormatHTML}

const utf8BOM = "\uFEFF"

const wordHeader = `<html xmlns:o='urn:schemas-microsoft-com:office:office' ` +
	`xmlns:w='urn:schemas-microsoft-com:office:word' ` +
	`xmlns='http://www.w3.org/TR/REC-html40'>` +
	`<head><meta charset='utf-8'><title>%s</title>` +
	`<style>body { font-family: 'Times New Roman'; font-size: 13pt; }</style>` +
	`</head><body>`

const wordFooter = `</body></html>`

// File is a packaged document.
type File struct {
	Filename    string
	ContentType string
	Body        []byte
}

// IsFullDocument reports whether content already carries its own
// document envelope.
func IsFullDocument(content string) bool {
	t := strings.ToLower(strings.TrimSpace(content))
	return strings.HasPrefix(t, "<!doctype html") || strings.HasPrefix(t, "<html")
}

// Word returns content as a Word-compatible HTML document. Fragments are
// wrapped in an Office envelope; full documents are kept as they are.
func Word(content, title string) []byte {
	var b strings.Builder
	b.WriteString(utf8BOM)
	if IsFullDocument(content) {
		b.WriteString(content)
		return []byte(b.String())
	}
	fmt.Fprintf(&b, wordHeader, escapeTitle(title))
	b.WriteString(content)
	b.WriteString(wordFooter)
	return []byte(b.String())
}

// HTML returns content unchanged.
func HTML(content string) []byte {
	return []byte(content)
}

// Package builds a download of content named name in the given format.
func Package(content, name, format string) (File, error) {
	base := SanitizeFilename(name)
	switch format {
	case FormatWord:
		return File{
			Filename:    base + ".doc",
			ContentType: "application/msword",
			Body:        Word(content, base),
		}, nil
	case FormatHTML:
		return File{
			Filename:    base + ".html",
			ContentType: "text/html; charset=utf-8",
			Body:        HTML(content),
		}, nil
	}
	return File{}, fmt.Errorf("%q: %w", format, ErrUnknownFormat)
}

var slotPrefix = map[model.Slot]string{
	model.SlotMatrix: "Ma_Tran",
	model.SlotSpecs:  "Dac_Ta",
	model.SlotExam:   "De_Thi",
}

// Name returns the download name of a slot without extension, e.g.
// "Ma_Tran_Toán_10". Subject and grade are left out when empty.
func Name(slot model.Slot, info model.ExamInfo) string {
	return NameWithPrefix(slotPrefix[slot], info)
}

// NameWithPrefix is Name with a caller-chosen prefix.
func NameWithPrefix(prefix string, info model.ExamInfo) string {
	parts := []string{prefix}
	for _, p := range []string{info.Subject, info.Grade} {
		if p = strings.TrimSpace(p); p != "" {
			parts = append(parts, strings.Join(strings.Fields(p), "_"))
		}
	}
	return strings.Join(parts, "_")
}

// SanitizeFilename drops path separators, control characters and
// characters Windows rejects. An empty result becomes "document".
func SanitizeFilename(name string) string {
	name = strings.Map(func(r rune) rune {
		switch {
		case unicode.IsControl(r):
			return -1
		case strings.ContainsRune(`/\:*?"<>|`, r):
			return '_'
		}
		return r
	}, name)
	name = strings.Trim(strings.TrimSpace(name), ".")
	if name == "" {
		return "document"
	}
	return name
}

func escapeTitle(s string) string {
	r := strings.NewReplacer("&", "&amp;", "<", "&lt;", ">", "&gt;")
	return r.Replace(s)
}
