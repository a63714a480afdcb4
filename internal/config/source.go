package config

import (
	"bytes"
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"
	"os"

	"golang.org/x/text/encoding/unicode"
	"golang.org/x/text/transform"
)

//go:embed formatter.json
var bundled []byte

var (
	ErrKeyNotFound = errors.New("key not found")
	ErrNotObject   = errors.New("value is not a JSON object")
	ErrNotBool     = errors.New("value is not a JSON boolean")
)

// Document is one parsed formatter.json: language id -> options, plus "onSave".
type Document map[string]json.RawMessage

// Options is the option bag handed verbatim to a beautifier routine.
type Options map[string]any

// Source is one place a formatter.json can come from.
type Source struct {
	Name string
	Read func() ([]byte, error)
}

// FileSource reads path on every Load.
func FileSource(path string) Source {
	return Source{
		Name: path,
		Read: func() ([]byte, error) {
			b, err := os.ReadFile(path)
			if err != nil {
				return nil, fmt.Errorf("read file %q: %w", path, err)
			}
			return b, nil
		},
	}
}

// BundledSource serves the default config compiled into the binary.
func BundledSource() Source {
	return Source{
		Name: "bundled formatter.json",
		Read: func() ([]byte, error) { return Bundled(), nil },
	}
}

// Bundled returns a copy of the embedded default config.
func Bundled() []byte {
	return bytes.Clone(bundled)
}

func (s Source) Load() (Document, error) {
	raw, err := s.Read()
	if err != nil {
		return nil, err
	}
	doc, err := decodeDocument(raw)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", s.Name, err)
	}
	return doc, nil
}

func (s Source) options(key string) (Options, error) {
	raw, err := s.lookup(key)
	if err != nil {
		return nil, err
	}
	var opts Options
	if err := json.Unmarshal(raw, &opts); err != nil || opts == nil {
		return nil, fmt.Errorf("%s: %q: %w", s.Name, key, ErrNotObject)
	}
	return opts, nil
}

func (s Source) onSave() (bool, error) {
	raw, err := s.lookup("onSave")
	if err != nil {
		return false, err
	}
	var v *bool
	if err := json.Unmarshal(raw, &v); err != nil || v == nil {
		return false, fmt.Errorf("%s: onSave: %w", s.Name, ErrNotBool)
	}
	return *v, nil
}

func (s Source) lookup(key string) (json.RawMessage, error) {
	doc, err := s.Load()
	if err != nil {
		return nil, err
	}
	raw, ok := doc[key]
	if !ok {
		return nil, fmt.Errorf("%s: %q: %w", s.Name, key, ErrKeyNotFound)
	}
	return raw, nil
}

// decodeDocument strips a UTF-8/UTF-16 byte order mark before parsing.
func decodeDocument(raw []byte) (Document, error) {
	data, _, err := transform.Bytes(unicode.BOMOverride(unicode.UTF8.NewDecoder()), raw)
	if err != nil {
		return nil, fmt.Errorf("decode: %w", err)
	}
	var doc Document
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("parse: %w", err)
	}
	if doc == nil {
		return nil, fmt.Errorf("parse: %w", ErrNotObject)
	}
	return doc, nil
}

// FirstOf returns the value of the first loader that succeeds. When every
// loader fails the joined errors are returned with the zero value.
func FirstOf[T any](loaders ...func() (T, error)) (T, error) {
	errs := make([]error, 0, len(loaders))
	for _, load := range loaders {
		v, err := load()
		if err == nil {
			return v, nil
		}
		errs = append(errs, err)
	}
	var zero T
	if len(errs) == 0 {
		return zero, errors.New("no sources")
	}
	return zero, errors.Join(errs...)
}
