package formats

import (
	"bytes"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"unicode/utf8"

	"golang.org/x/text/encoding/unicode"
	"golang.org/x/text/transform"
)

var utf8BOM = []byte{0xEF, 0xBB, 0xBF}

// ReadFile reads a resource file. A missing file yields ErrNotFound; bytes
// that are not valid text yield ErrDecode. When bomAware is set, UTF-8 and
// UTF-16 byte-order marks are honoured and the content is returned as
// UTF-8; hadBOM reports a UTF-8 mark so it can be written back.
func ReadFile(path string, bomAware bool) (data []byte, hadBOM bool, err error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, false, fmt.Errorf("%w: %s", ErrNotFound, path)
		}
		return nil, false, err
	}

	hadBOM = bytes.HasPrefix(raw, utf8BOM)
	if bomAware {
		dec := unicode.BOMOverride(unicode.UTF8.NewDecoder())
		out, _, err := transform.Bytes(dec, raw)
		if err != nil {
			return nil, false, fmt.Errorf("%w: %s: %v", ErrDecode, path, err)
		}
		raw = out
	} else if hadBOM {
		raw = raw[len(utf8BOM):]
	}

	if !utf8.Valid(raw) {
		return nil, false, fmt.Errorf("%w: %s: invalid UTF-8", ErrDecode, path)
	}
	return raw, hadBOM, nil
}

// WriteFile writes data to path atomically, creating parent directories.
func WriteFile(path string, data []byte) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create directory %s: %w", dir, err)
	}

	tmp, err := os.CreateTemp(dir, ".locsync-*")
	if err != nil {
		return fmt.Errorf("failed to create temp file: %w", err)
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName)

	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("failed to write temp file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("failed to close temp file: %w", err)
	}
	if err := os.Chmod(tmpName, 0644); err != nil {
		return fmt.Errorf("failed to chmod temp file: %w", err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		return fmt.Errorf("failed to rename temp file: %w", err)
	}
	return nil
}
