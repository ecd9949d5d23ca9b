package localfs

import (
	"fmt"
	"strings"

	"golang.org/x/text/encoding"
	"golang.org/x/text/encoding/htmlindex"
)

// lookupEncoding maps a charset label (e.g. "utf-8", "latin1", "windows-1252")
// to an encoding. The empty label and UTF-8 yield nil, meaning raw bytes.
func lookupEncoding(charset string) (encoding.Encoding, error) {
	label := strings.ToLower(strings.TrimSpace(charset))
	if label == "" || label == "utf-8" || label == "utf8" {
		return nil, nil
	}
	enc, err := htmlindex.Get(label)
	if err != nil {
		return nil, fmt.Errorf("localfs: unknown charset %q: %w", charset, err)
	}
	return enc, nil
}

// ReadText reads path and decodes it from charset into a UTF-8 string.
func (a *Adapter) ReadText(path, charset string) (string, error) {
	enc, err := lookupEncoding(charset)
	if err != nil {
		return "", err
	}

	data, err := a.Read(path)
	if err != nil {
		return "", err
	}
	if enc == nil {
		return string(data), nil
	}

	decoded, err := enc.NewDecoder().Bytes(data)
	if err != nil {
		return "", fmt.Errorf("decode %s as %s: %w", path, charset, err)
	}
	return string(decoded), nil
}

// WriteText encodes text with charset and writes it atomically.
func (a *Adapter) WriteText(path, text, charset string) error {
	enc, err := lookupEncoding(charset)
	if err != nil {
		return err
	}
	if enc == nil {
		return a.Write(path, []byte(text))
	}

	encoded, err := enc.NewEncoder().Bytes([]byte(text))
	if err != nil {
		return fmt.Errorf("encode %s as %s: %w", path, charset, err)
	}
	return a.Write(path, encoded)
}
