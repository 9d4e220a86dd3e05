// Package metadata writes the per-capture JSON sidecar: one document per
// capture record, named after the image prefix, validated against the
// embedded schema before it touches disk.
package metadata

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	_ "embed"

	"github.com/santhosh-tekuri/jsonschema/v5"

	"zedcapd/internal/capture"
	"zedcapd/internal/logging"
)

//go:embed capture-record-v1.schema.json
var schemaJSON []byte

const schemaURL = "https://zedcapd.dev/schema/capture-record-v1.schema.json"

// Writer persists capture records as JSON sidecars in a fixed directory.
// Implements capture.Sink.
type Writer struct {
	dir    string
	log    *logging.Logger
	schema *jsonschema.Schema
}

// NewWriter creates the output directory and compiles the record schema.
func NewWriter(dir string, log *logging.Logger) (*Writer, error) {
	if log == nil {
		log = logging.Default()
	}
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create metadata directory: %w", err)
	}

	schema, err := compileSchema()
	if err != nil {
		return nil, err
	}

	return &Writer{
		dir:    dir,
		log:    log.WithComponent("metadata"),
		schema: schema,
	}, nil
}

func compileSchema() (*jsonschema.Schema, error) {
	compiler := jsonschema.NewCompiler()
	if err := compiler.AddResource(schemaURL, bytes.NewReader(schemaJSON)); err != nil {
		return nil, fmt.Errorf("failed to load record schema: %w", err)
	}
	schema, err := compiler.Compile(schemaURL)
	if err != nil {
		return nil, fmt.Errorf("failed to compile record schema: %w", err)
	}
	return schema, nil
}

// Write marshals the record, validates it against the schema, and writes
// <prefix>.json. An existing sidecar is never overwritten; sequence numbers
// are unique, so a collision means a prefix clash worth surfacing.
func (w *Writer) Write(rec capture.Record) error {
	data, err := json.MarshalIndent(rec, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal record %d: %w", rec.Sequence, err)
	}

	var instance any
	if err := json.Unmarshal(data, &instance); err != nil {
		return fmt.Errorf("failed to decode record %d: %w", rec.Sequence, err)
	}
	if err := w.schema.Validate(instance); err != nil {
		return fmt.Errorf("record %d failed schema validation: %w", rec.Sequence, err)
	}

	path := w.Path(rec)
	if _, err := os.Stat(path); err == nil {
		return fmt.Errorf("sidecar already exists: %s", path)
	}

	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write sidecar: %w", err)
	}

	w.log.Debug("sidecar written", "path", path, "sequence", rec.Sequence)
	return nil
}

// Path returns the sidecar path for a record.
func (w *Writer) Path(rec capture.Record) string {
	name := rec.Image.Prefix
	if name == "" {
		name = fmt.Sprintf("capture_%06d", rec.Sequence)
	}
	return filepath.Join(w.dir, name+".json")
}

// Read loads and decodes a sidecar document.
func Read(path string) (capture.Record, error) {
	var rec capture.Record
	data, err := os.ReadFile(path)
	if err != nil {
		return rec, fmt.Errorf("failed to read sidecar: %w", err)
	}
	if err := json.Unmarshal(data, &rec); err != nil {
		return rec, fmt.Errorf("failed to decode sidecar %s: %w", filepath.Base(path), err)
	}
	return rec, nil
}
