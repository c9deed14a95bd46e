// Package directory holds the immutable ENS name to address mapping served by
// ensdir, and the loader that builds it from a JSON dataset file.
package directory

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"time"
	"unicode/utf8"
)

// Stored values carry a one-byte marker before the address token (the opening
// quote of the JSON string), so a well-formed record is at least 43 bytes.
const (
	tokenStart = 1
	tokenEnd   = 43
)

var (
	ErrNotObject      = errors.New("dataset top-level JSON value is not an object")
	ErrMalformedEntry = errors.New("malformed directory entry")
)

type MalformedEntryError struct {
	Name   string
	Length int
	// Split is set when the token bounds cut through a multi-byte character.
	Split bool
}

func (e *MalformedEntryError) Error() string {
	if e.Split {
		return fmt.Sprintf("entry %q: token bounds %d..%d split a multi-byte character", e.Name, tokenStart, tokenEnd)
	}
	return fmt.Sprintf("entry %q: stored value is %d bytes, need at least %d", e.Name, e.Length, tokenEnd)
}

func (e *MalformedEntryError) Unwrap() error {
	return ErrMalformedEntry
}

// Directory is read-only after construction and safe for concurrent use.
type Directory struct {
	entries map[string]string
}

// Load reads the dataset at path and builds a Directory. Loading is
// all-or-nothing: any read or parse failure returns an error and no Directory.
func Load(path string, logger *slog.Logger) (*Directory, error) {
	if logger == nil {
		logger = slog.Default()
	}
	logger = logger.With("path", path)

	start := time.Now()
	logger.Info("reading dataset")
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading dataset: %w", err)
	}
	logger.Info("read complete", "bytes", len(data), "duration", time.Since(start))

	start = time.Now()
	dir, err := FromJSON(data)
	if err != nil {
		return nil, fmt.Errorf("parsing dataset %s: %w", path, err)
	}
	logger.Info("compiled directory", "entries", dir.Len(), "duration", time.Since(start))
	directoryEntries.Set(float64(dir.Len()))
	return dir, nil
}

// FromJSON builds a Directory from a JSON object. Each value is stored as its
// canonical JSON text, so strings keep their surrounding quotes and escapes
// and 12 becomes "12". Duplicate keys resolve last-wins.
func FromJSON(data []byte) (*Directory, error) {
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		var typeErr *json.UnmarshalTypeError
		if errors.As(err, &typeErr) {
			return nil, fmt.Errorf("%w: found %s", ErrNotObject, typeErr.Value)
		}
		return nil, err
	}
	// a literal null decodes into a nil map without error
	if raw == nil {
		return nil, fmt.Errorf("%w: found null", ErrNotObject)
	}

	entries := make(map[string]string, len(raw))
	for name, val := range raw {
		s, err := stringify(val)
		if err != nil {
			return nil, fmt.Errorf("entry %q: %w", name, err)
		}
		entries[name] = s
	}
	return &Directory{entries: entries}, nil
}

func (d *Directory) Len() int {
	return len(d.entries)
}

// Get returns the stored value for name as loaded, marker included.
func (d *Directory) Get(name string) (string, bool) {
	v, ok := d.entries[name]
	return v, ok
}

// Resolve returns the address token for name. found is false when the name is
// not in the directory. A present entry that is too short to hold a token,
// or whose token bounds fall inside a UTF-8 sequence, yields a
// *MalformedEntryError.
func (d *Directory) Resolve(name string) (addr string, found bool, err error) {
	v, ok := d.entries[name]
	if !ok {
		return "", false, nil
	}
	if len(v) < tokenEnd {
		return "", true, &MalformedEntryError{Name: name, Length: len(v)}
	}
	if !utf8.RuneStart(v[tokenStart]) || (len(v) > tokenEnd && !utf8.RuneStart(v[tokenEnd])) {
		return "", true, &MalformedEntryError{Name: name, Length: len(v), Split: true}
	}
	return v[tokenStart:tokenEnd], true, nil
}
