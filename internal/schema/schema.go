// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package schema validates upstream JSON payloads against embedded JSON
// Schemas before they are decoded into typed structs. A payload that does
// not match is rejected as a whole; callers apply their fallback.
package schema

import (
	"embed"
	"fmt"
	"strings"
	"sync"

	"github.com/xeipuuv/gojsonschema"
)

//go:embed schemas/*.json
var schemaFS embed.FS

// Name identifies one embedded schema.
type Name string

const (
	CatalogSearch   Name = "catalog_search.json"
	ArchiveSearch   Name = "archive_search.json"
	ArchiveMetadata Name = "archive_metadata.json"
	ChatCompletion  Name = "chat_completion.json"
	Recommendation  Name = "recommendation.json"
)

var compiled = map[Name]func() (*gojsonschema.Schema, error){}

func init() {
	for _, n := range []Name{CatalogSearch, ArchiveSearch, ArchiveMetadata, ChatCompletion, Recommendation} {
		compiled[n] = sync.OnceValues(func() (*gojsonschema.Schema, error) {
			return compile(n)
		})
	}
}

func compile(name Name) (*gojsonschema.Schema, error) {
	raw, err := schemaFS.ReadFile("schemas/" + string(name))
	if err != nil {
		return nil, fmt.Errorf("reading schema %s: %w", name, err)
	}
	s, err := gojsonschema.NewSchema(gojsonschema.NewBytesLoader(raw))
	if err != nil {
		return nil, fmt.Errorf("compiling schema %s: %w", name, err)
	}
	return s, nil
}

// ValidationError lists every schema violation found in a payload.
type ValidationError struct {
	Schema Name
	Issues []string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("payload does not match %s: %s", e.Schema, strings.Join(e.Issues, "; "))
}

// Validate checks data against the named schema. Malformed JSON and shape
// mismatches both return an error.
func Validate(name Name, data []byte) error {
	get, ok := compiled[name]
	if !ok {
		return fmt.Errorf("unknown schema %q", name)
	}
	s, err := get()
	if err != nil {
		return err
	}

	res, err := s.Validate(gojsonschema.NewBytesLoader(data))
	if err != nil {
		return fmt.Errorf("payload is not valid JSON: %w", err)
	}
	if res.Valid() {
		return nil
	}

	issues := make([]string, 0, len(res.Errors()))
	for _, e := range res.Errors() {
		issues = append(issues, e.String())
	}
	return &ValidationError{Schema: name, Issues: issues}
}
