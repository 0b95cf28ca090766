// Package upload reads user files into attachments the model can see.
// Only text content is accepted; everything else is rejected up front.
package upload

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"mime"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"unicode/utf8"

	"github.com/soyeahso/aide/internal/domain"
)

// DefaultMaxBytes is used when no limit is given.
const DefaultMaxBytes int64 = 1 << 20

var (
	// ErrTooLarge is returned when a file exceeds the size cap.
	ErrTooLarge = errors.New("file too large")
	// ErrBinary is returned for content that is not text.
	ErrBinary = errors.New("binary files are not supported")
)

// textTypes lists extensions treated as text even when sniffing says
// otherwise (sniffing sees "text/plain" for most of these anyway).
var textTypes = map[string]string{
	".md":   "text/markdown",
	".csv":  "text/csv",
	".json": "application/json",
	".yaml": "application/yaml",
	".yml":  "application/yaml",
	".go":   "text/x-go",
	".py":   "text/x-python",
	".ts":   "text/typescript",
	".sql":  "application/sql",
	".log":  "text/plain",
}

// Load reads the file at path. maxBytes <= 0 means DefaultMaxBytes.
func Load(path string, maxBytes int64) (domain.Attachment, error) {
	f, err := os.Open(path)
	if err != nil {
		return domain.Attachment{}, fmt.Errorf("opening %s: %w", path, err)
	}
	defer f.Close()

	if maxBytes <= 0 {
		maxBytes = DefaultMaxBytes
	}
	if st, err := f.Stat(); err == nil && st.Size() > maxBytes {
		return domain.Attachment{}, fmt.Errorf("%s is %d bytes (limit %d): %w", filepath.Base(path), st.Size(), maxBytes, ErrTooLarge)
	}
	return FromReader(filepath.Base(path), f, maxBytes)
}

// FromReader reads at most maxBytes from r into an attachment named name.
func FromReader(name string, r io.Reader, maxBytes int64) (domain.Attachment, error) {
	if maxBytes <= 0 {
		maxBytes = DefaultMaxBytes
	}
	name = filepath.Base(strings.TrimSpace(name))
	if name == "" || name == "." || name == string(filepath.Separator) {
		return domain.Attachment{}, errors.New("attachment name is empty")
	}

	data, err := io.ReadAll(io.LimitReader(r, maxBytes+1))
	if err != nil {
		return domain.Attachment{}, fmt.Errorf("reading %s: %w", name, err)
	}
	if int64(len(data)) > maxBytes {
		return domain.Attachment{}, fmt.Errorf("%s exceeds %d bytes: %w", name, maxBytes, ErrTooLarge)
	}

	mt, err := DetectType(name, data)
	if err != nil {
		return domain.Attachment{}, fmt.Errorf("%s: %w", name, err)
	}

	return domain.Attachment{
		Name:     name,
		MimeType: mt,
		Size:     int64(len(data)),
		Content:  string(data),
	}, nil
}

// DetectType picks a MIME type for data, preferring the extension for
// known text formats. It returns ErrBinary for non-text content.
func DetectType(name string, data []byte) (string, error) {
	if !isText(data) {
		return "", ErrBinary
	}

	ext := strings.ToLower(filepath.Ext(name))
	if mt, ok := textTypes[ext]; ok {
		return mt, nil
	}
	if mt := mime.TypeByExtension(ext); mt != "" && isTextMIME(mt) {
		return stripParams(mt), nil
	}

	sniffed := stripParams(http.DetectContentType(data))
	if isTextMIME(sniffed) {
		return sniffed, nil
	}
	return "text/plain", nil
}

func isText(data []byte) bool {
	if bytes.IndexByte(data, 0) >= 0 {
		return false
	}
	return utf8.Valid(data)
}

func isTextMIME(mt string) bool {
	return strings.HasPrefix(mt, "text/") ||
		strings.HasSuffix(mt, "+json") ||
		strings.HasSuffix(mt, "+xml") ||
		mt == "application/json" ||
		mt == "application/xml" ||
		mt == "application/javascript" ||
		mt == "application/yaml"
}

func stripParams(mt string) string {
	if base, _, err := mime.ParseMediaType(mt); err == nil {
		return base
	}
	return mt
}
