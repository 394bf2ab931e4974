// Package specfile loads task specifications from YAML or JSON files.
package specfile

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/hugo-lorenzo-mato/taskgraph/internal/core"
	"github.com/hugo-lorenzo-mato/taskgraph/internal/fsutil"
)

// MaxFileBytes caps the size of a spec file.
const MaxFileBytes = 4 << 20

// Format is the serialization of a spec document.
type Format string

const (
	FormatYAML Format = "yaml"
	FormatJSON Format = "json"
)

// FormatFromPath picks the format from a file extension. Unknown extensions
// are read as YAML, which also accepts most JSON.
func FormatFromPath(path string) Format {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".json":
		return FormatJSON
	default:
		return FormatYAML
	}
}

// Load reads and decodes the spec at path.
func Load(path string) (core.TaskSpec, error) {
	data, err := fsutil.ReadFileLimit(path, MaxFileBytes)
	if err != nil {
		return core.TaskSpec{}, fmt.Errorf("reading spec %s: %w", path, err)
	}
	spec, err := Parse(data, FormatFromPath(path))
	if err != nil {
		return core.TaskSpec{}, fmt.Errorf("parsing spec %s: %w", path, err)
	}
	return spec, nil
}

// LoadTask reads the spec at path and resolves it into a task.
func LoadTask(path string) (core.Task, error) {
	spec, err := Load(path)
	if err != nil {
		return nil, err
	}
	return spec.Resolve()
}

// Parse decodes a spec document. Unknown fields are rejected so typos in a
// graph do not silently drop nodes or edges.
func Parse(data []byte, format Format) (core.TaskSpec, error) {
	var spec core.TaskSpec
	if len(bytes.TrimSpace(data)) == 0 {
		return spec, core.ErrValidation(core.CodeInvalidTask, "spec document is empty")
	}

	switch format {
	case FormatJSON:
		dec := json.NewDecoder(bytes.NewReader(data))
		dec.DisallowUnknownFields()
		if err := dec.Decode(&spec); err != nil {
			return spec, invalidDocument(err)
		}
	case FormatYAML:
		dec := yaml.NewDecoder(bytes.NewReader(data))
		dec.KnownFields(true)
		if err := dec.Decode(&spec); err != nil && !errors.Is(err, io.EOF) {
			return spec, invalidDocument(err)
		}
	default:
		return spec, fmt.Errorf("unsupported spec format %q", format)
	}
	return spec, nil
}

// Marshal encodes a spec in the given format.
func Marshal(spec core.TaskSpec, format Format) ([]byte, error) {
	switch format {
	case FormatJSON:
		return json.MarshalIndent(spec, "", "  ")
	case FormatYAML:
		var buf bytes.Buffer
		enc := yaml.NewEncoder(&buf)
		enc.SetIndent(2)
		if err := enc.Encode(spec); err != nil {
			return nil, err
		}
		if err := enc.Close(); err != nil {
			return nil, err
		}
		return buf.Bytes(), nil
	default:
		return nil, fmt.Errorf("unsupported spec format %q", format)
	}
}

func invalidDocument(err error) error {
	return core.ErrValidation(core.CodeInvalidTask, "malformed spec document").WithCause(err)
}
