package formats

import (
	"fmt"
	"path/filepath"
	"slices"
	"strings"
	"sync"
)

var (
	registry      = make(map[Format]Codec)
	registryOrder []Format
	registryMutex sync.RWMutex
)

// Register registers a codec. It is called from init() in the codec
// packages and panics on nil or duplicate registrations.
//
//	func init() {
//	    formats.Register(Codec{})
//	}
func Register(c Codec) {
	registryMutex.Lock()
	defer registryMutex.Unlock()

	if c == nil {
		panic("formats: Register codec is nil")
	}

	f := c.Format()
	if _, exists := registry[f]; exists {
		panic(fmt.Sprintf("formats: Register called twice for format %s", f))
	}

	registry[f] = c
	registryOrder = append(registryOrder, f)
}

// Lookup returns the codec registered for f.
func Lookup(f Format) (Codec, bool) {
	registryMutex.RLock()
	defer registryMutex.RUnlock()
	c, ok := registry[f]
	return c, ok
}

// RegisteredFormats returns all registered formats in registration order.
func RegisteredFormats() []Format {
	registryMutex.RLock()
	defer registryMutex.RUnlock()
	return slices.Clone(registryOrder)
}

// candidates returns the codecs handling the extension of path.
func candidates(path string) []Codec {
	ext := strings.ToLower(filepath.Ext(path))
	if ext == "" {
		return nil
	}

	registryMutex.RLock()
	defer registryMutex.RUnlock()

	var out []Codec
	for _, f := range registryOrder {
		c := registry[f]
		if !slices.Contains(c.Extensions(), ext) {
			continue
		}
		if m, ok := c.(PathMatcher); ok && !m.MatchPath(path) {
			continue
		}
		out = append(out, c)
	}
	return out
}

// Detect picks the codec for path. When several codecs share the
// extension, data is sniffed; a codec without a Sniffer is the fallback.
func Detect(path string, data []byte) (Codec, error) {
	cands := candidates(path)
	switch len(cands) {
	case 0:
		return nil, fmt.Errorf("%w: %s", ErrUnsupported, path)
	case 1:
		return cands[0], nil
	}

	var fallback Codec
	for _, c := range cands {
		s, ok := c.(Sniffer)
		if !ok {
			if fallback == nil {
				fallback = c
			}
			continue
		}
		if len(data) > 0 && s.Sniff(data) {
			return c, nil
		}
	}
	if fallback == nil {
		fallback = cands[0]
	}
	return fallback, nil
}

// IsResource reports whether path has an extension some codec handles.
func IsResource(path string) bool {
	return len(candidates(path)) > 0
}

// IsTemplate reports whether path is a source-only template file.
func IsTemplate(path string) bool {
	ext := strings.ToLower(filepath.Ext(path))
	for _, c := range candidates(path) {
		if t := c.Semantics().TemplateExtension; t != "" && t == ext {
			return true
		}
	}
	return false
}

// LocalePath maps a source path to its locale counterpart by replacing a
// template extension ("messages.pot" becomes "messages.po").
func LocalePath(path string) string {
	ext := strings.ToLower(filepath.Ext(path))
	for _, c := range candidates(path) {
		sem := c.Semantics()
		if sem.TemplateExtension != "" && sem.TemplateExtension == ext {
			return strings.TrimSuffix(path, filepath.Ext(path)) + sem.LocaleExtension
		}
	}
	return path
}
