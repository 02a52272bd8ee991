package util

import (
	"bytes"
	"encoding/base64"
	"errors"
	"net/http"
	"strings"
)

type signature struct {
	magic []byte
	ocr   string // Yandex Vision mimeType
	http  string
}

var signatures = []signature{
	{magic: []byte{0xFF, 0xD8}, ocr: "JPEG", http: "image/jpeg"},
	{magic: []byte{0x89, 'P', 'N', 'G', 0x0D, 0x0A, 0x1A, 0x0A}, ocr: "PNG", http: "image/png"},
	{magic: []byte("%PDF-"), ocr: "PDF", http: "application/pdf"},
}

// SniffMimeForOCR returns "JPEG" | "PNG" | "PDF" or "" when unknown.
func SniffMimeForOCR(b []byte) string {
	for _, s := range signatures {
		if bytes.HasPrefix(b, s.magic) {
			return s.ocr
		}
	}
	return ""
}

func SniffMimeHTTP(b []byte) string {
	for _, s := range signatures {
		if bytes.HasPrefix(b, s.magic) {
			return s.http
		}
	}
	return "application/octet-stream"
}

func MakeDataURL(mime string, data []byte) string {
	return "data:" + mime + ";base64," + base64.StdEncoding.EncodeToString(data)
}

var ErrEmptyPayload = errors.New("empty base64 payload")

// DecodeBase64MaybeDataURL decodes plain base64 or a data:<mime>;base64,<payload> URI.
// The MIME from the data URI prefix is returned as a hint.
func DecodeBase64MaybeDataURL(s string) ([]byte, string, error) {
	s = strings.TrimSpace(s)
	var hint string
	if rest, ok := strings.CutPrefix(s, "data:"); ok {
		if meta, payload, found := strings.Cut(rest, ","); found {
			hint, _, _ = strings.Cut(meta, ";")
			s = payload
		}
	}
	if s == "" {
		return nil, "", ErrEmptyPayload
	}
	b, err := base64.StdEncoding.DecodeString(s)
	if err == nil {
		return b, hint, nil
	}
	if b2, err2 := base64.URLEncoding.DecodeString(s); err2 == nil {
		return b2, hint, nil
	}
	return nil, "", err
}

// PickMIME prefers the explicit value, then the data URI hint, then sniffs the bytes.
func PickMIME(explicit, hint string, data []byte) string {
	if e := strings.TrimSpace(explicit); e != "" {
		return e
	}
	if h := strings.TrimSpace(hint); h != "" {
		return h
	}
	if len(data) > 0 {
		return http.DetectContentType(data)
	}
	return "image/jpeg"
}
