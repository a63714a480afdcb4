package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/r9s-ai/erbfmt/internal/beautify"
	"github.com/r9s-ai/erbfmt/internal/formatter"
)

type schema struct {
	Schema      string             `json:"$schema,omitempty"`
	Title       string             `json:"title,omitempty"`
	Description string             `json:"description,omitempty"`
	Type        string             `json:"type,omitempty"`
	Default     any                `json:"default,omitempty"`
	Enum        []string           `json:"enum,omitempty"`
	Items       *schema            `json:"items,omitempty"`
	Ref         string             `json:"$ref,omitempty"`
	Properties  map[string]*schema `json:"properties,omitempty"`
	Definitions map[string]*schema `json:"definitions,omitempty"`
}

var output = flag.String("output", "schemas/formatter.schema.json", "output schema file path")

func main() {
	flag.Parse()

	b, err := encodeSchema(buildSchema())
	if err != nil {
		fatalf("marshal schema: %v", err)
	}

	outPath := *output
	if !filepath.IsAbs(outPath) {
		wd, err := os.Getwd()
		if err != nil {
			fatalf("getwd: %v", err)
		}
		outPath = filepath.Join(wd, outPath)
	}
	if err := os.MkdirAll(filepath.Dir(outPath), 0o755); err != nil {
		fatalf("mkdir output dir: %v", err)
	}
	if err := os.WriteFile(outPath, b, 0o644); err != nil {
		fatalf("write schema: %v", err)
	}
}

// buildSchema describes formatter.json: one options object per config key,
// typed from the option registry, plus the onSave switch.
func buildSchema() *schema {
	defs := map[string]*schema{}
	props := map[string]*schema{
		"onSave": {
			Type:        "boolean",
			Default:     true,
			Description: "Format css.erb, scss.erb and html.erb files before they are saved.",
		},
	}
	for _, id := range formatter.Languages() {
		route, _ := formatter.Dispatch(id, nil)
		family := string(route.Family)
		if _, ok := defs[family]; !ok {
			defs[family] = familySchema(route.Family)
		}
		props[route.ConfigKey] = &schema{Ref: "#/definitions/" + family}
	}
	return &schema{
		Schema:      "http://json-schema.org/draft-07/schema#",
		Title:       "erbfmt formatter.json",
		Type:        "object",
		Properties:  props,
		Definitions: defs,
	}
}

func familySchema(family beautify.Family) *schema {
	props := map[string]*schema{}
	for _, spec := range beautify.Specs {
		if spec.Family != beautify.FamilyCommon && spec.Family != family {
			continue
		}
		s := &schema{
			Type:        string(spec.Kind),
			Default:     spec.Default,
			Enum:        spec.Enum,
			Description: strings.ReplaceAll(spec.Doc, "`", ""),
		}
		if spec.Kind == beautify.KindStringList {
			s.Items = &schema{Type: string(beautify.KindString)}
		}
		props[spec.Name] = s
	}
	return &schema{
		Type:        "object",
		Description: fmt.Sprintf("Options for the %s routine.", family),
		Properties:  props,
	}
}

func encodeSchema(s *schema) ([]byte, error) {
	var sb strings.Builder
	enc := json.NewEncoder(&sb)
	enc.SetEscapeHTML(false)
	enc.SetIndent("", "  ")
	if err := enc.Encode(s); err != nil {
		return nil, err
	}
	return []byte(sb.String()), nil
}

func fatalf(format string, args ...any) {
	_, _ = fmt.Fprintf(os.Stderr, "erbfmt-schemagen: "+format+"\n", args...)
	os.Exit(1)
}
