package parser

import (
	"bytes"
	"errors"
	"fmt"
	"strings"
	"unicode/utf8"

	"golang.org/x/text/encoding/charmap"
)

// ErrUndecodable is returned when a file is not valid in the requested encoding.
var ErrUndecodable = errors.New("file content is not valid in the requested encoding")

const (
	EncodingAuto    = "auto"
	EncodingUTF8    = "utf-8"
	EncodingLatin1  = "latin-1"
	EncodingWindows = "cp1252"
)

var utf8BOM = []byte{0xEF, 0xBB, 0xBF}

// NormalizeEncoding maps accepted aliases onto the canonical encoding names.
func NormalizeEncoding(name string) (string, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "", EncodingAuto:
		return EncodingAuto, nil
	case EncodingUTF8, "utf8":
		return EncodingUTF8, nil
	case EncodingLatin1, "latin1", "iso-8859-1", "iso8859-1":
		return EncodingLatin1, nil
	case EncodingWindows, "windows-1252":
		return EncodingWindows, nil
	}
	return "", fmt.Errorf("unsupported encoding %q", name)
}

// Decode converts raw file bytes to UTF-8 and reports the encoding used.
func Decode(data []byte, encoding string) ([]byte, string, error) {
	enc, err := NormalizeEncoding(encoding)
	if err != nil {
		return nil, "", err
	}

	switch enc {
	case EncodingUTF8:
		data = bytes.TrimPrefix(data, utf8BOM)
		if !utf8.Valid(data) {
			return nil, "", ErrUndecodable
		}
		return data, EncodingUTF8, nil
	case EncodingLatin1:
		out, err := charmap.ISO8859_1.NewDecoder().Bytes(data)
		if err != nil {
			return nil, "", fmt.Errorf("%w: %v", ErrUndecodable, err)
		}
		return out, EncodingLatin1, nil
	case EncodingWindows:
		out, err := charmap.Windows1252.NewDecoder().Bytes(data)
		if err != nil {
			return nil, "", fmt.Errorf("%w: %v", ErrUndecodable, err)
		}
		return out, EncodingWindows, nil
	}

	if trimmed := bytes.TrimPrefix(data, utf8BOM); utf8.Valid(trimmed) {
		return trimmed, EncodingUTF8, nil
	}
	return Decode(data, EncodingWindows)
}
