// Package formatter ties language dispatch, config resolution and the
// beautifier routines together. Hosts pass document text and ranges in
// explicitly and apply the returned edit themselves.
package formatter

import (
	"io"
	"log"
	"maps"

	"github.com/r9s-ai/erbfmt/internal/config"
)

type Formatter struct {
	Resolver *config.Resolver
	Notifier Notifier
	Logger   *log.Logger

	// Overrides are laid over the resolved options of every request.
	Overrides config.Options
}

func New(resolver *config.Resolver, notifier Notifier, logger *log.Logger) *Formatter {
	if logger == nil {
		logger = log.New(io.Discard, "", 0)
	}
	return &Formatter{Resolver: resolver, Notifier: notifier, Logger: logger}
}

func (f *Formatter) logger() *log.Logger {
	if f.Logger == nil {
		return log.New(io.Discard, "", 0)
	}
	return f.Logger
}

func (f *Formatter) resolver() *config.Resolver {
	if f.Resolver == nil {
		return config.NewResolver(".", "", f.logger())
	}
	return f.Resolver
}

// Options returns the options a request for configKey would use.
func (f *Formatter) Options(configKey string) config.Options {
	opts := f.resolver().Options(configKey)
	if len(f.Overrides) == 0 {
		return opts
	}
	merged := make(config.Options, len(opts)+len(f.Overrides))
	maps.Copy(merged, opts)
	maps.Copy(merged, f.Overrides)
	return merged
}

// Format formats span of text, or the whole document when span is nil. No
// edit is returned for unsupported languages, routine errors and empty
// results; the caller must then leave the document alone.
func (f *Formatter) Format(text, languageID string, span *Span) (Edit, bool) {
	route, ok := Dispatch(languageID, f.Notifier)
	if !ok {
		return Edit{}, false
	}
	target := WholeDocument(text)
	if span != nil {
		target = *span
	}
	start, end := Offset(text, target.Start), Offset(text, target.End)
	if end < start {
		start, end = end, start
	}
	// Re-derive the span so it names exactly the bytes that were formatted.
	target = Span{Start: PositionAt(text, start), End: PositionAt(text, end)}

	out, err := route.Routine(text[start:end], f.Options(route.ConfigKey))
	if err != nil {
		f.logger().Printf("format %s: %v", languageID, err)
		return Edit{}, false
	}
	if out == "" {
		return Edit{}, false
	}
	return Edit{Span: target, NewText: out}, true
}

// OnSave is the before-save hook. It formats the whole document when onSave
// is enabled and languageID is one of the save-formatted languages.
func (f *Formatter) OnSave(text, languageID string) (Edit, bool) {
	if !f.resolver().OnSave() {
		return Edit{}, false
	}
	if !onSaveLanguages[languageID] {
		return Edit{}, false
	}
	return f.Format(text, languageID, nil)
}

// OnSaveEnabled reports whether languageID would be formatted on save.
func (f *Formatter) OnSaveEnabled(languageID string) bool {
	return onSaveLanguages[languageID] && f.resolver().OnSave()
}
