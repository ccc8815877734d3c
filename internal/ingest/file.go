// Package ingest turns uploaded files into curricula and matrix documents.
package ingest

import (
	"fmt"
	"mime"
	"net/http"
	"path/filepath"
	"strings"

	"golang.org/x/text/encoding/unicode"
	"golang.org/x/text/transform"
)

// File is an uploaded file.
type File struct {
	Name        string
	ContentType string // as declared by the client, may be empty
	Data        []byte
}

// Ext returns the lower-cased file extension including the dot.
func (f File) Ext() string {
	return strings.ToLower(filepath.Ext(f.Name))
}

var extMIME = map[string]string{
	".pdf":  "application/pdf",
	".docx": "application/vnd.openxmlformats-officedocument.wordprocessingml.document",
	".doc":  "application/msword",
	".xlsx": "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet",
	".html": "text/html",
	".htm":  "text/html",
	".txt":  "text/plain",
	".png":  "image/png",
	".jpg":  "image/jpeg",
	".jpeg": "image/jpeg",
	".webp": "image/webp",
}

// MIMEType returns the best guess for the file's media type. The
// extension wins over the declared type, and content sniffing is the last
// resort.
func (f File) MIMEType() string {
	if t, ok := extMIME[f.Ext()]; ok {
		return t
	}
	if f.ContentType != "" && f.ContentType != "application/octet-stream" {
		if t, _, err := mime.ParseMediaType(f.ContentType); err == nil {
			return t
		}
	}
	t, _, _ := mime.ParseMediaType(http.DetectContentType(f.Data))
	return t
}

// IsText reports whether the file is read directly instead of being
// converted by the collaborator: .html, .htm and .txt files, or files
// declared as text/html or text/plain.
func (f File) IsText() bool {
	switch f.Ext() {
	case ".html", ".htm", ".txt":
		return true
	}
	t, _, err := mime.ParseMediaType(f.ContentType)
	if err != nil {
		return false
	}
	return t == "text/html" || t == "text/plain"
}

// ReadText decodes the file as text. UTF-8 is assumed unless a UTF-16 byte
// order mark says otherwise; any BOM is dropped.
func (f File) ReadText() (string, error) {
	dec := unicode.BOMOverride(unicode.UTF8.NewDecoder())
	s, _, err := transform.String(dec, string(f.Data))
	if err != nil {
		return "", fmt.Errorf("decode %s: %w", f.Name, err)
	}
	return s, nil
}
