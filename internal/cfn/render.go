package cfn

import (
	"bytes"
	"encoding/json"
	"fmt"

	"github.com/gobwas/glob"
	"gopkg.in/yaml.v3"
)

// JSON renders the template with sorted keys and two space indentation.
func (t *Template) JSON() ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	enc.SetIndent("", "  ")
	if err := enc.Encode(t); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// CompactJSON renders the template without indentation. This is the body
// sent to CloudFormation, which limits inline templates by size.
func (t *Template) CompactJSON() ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(t); err != nil {
		return nil, err
	}
	return bytes.TrimSuffix(buf.Bytes(), []byte("\n")), nil
}

func (t *Template) YAML() ([]byte, error) {
	var buf bytes.Buffer
	enc := yaml.NewEncoder(&buf)
	enc.SetIndent(2)
	if err := enc.Encode(t); err != nil {
		return nil, err
	}
	if err := enc.Close(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// Render encodes the template in the named format, "json" or "yaml".
func (t *Template) Render(format string) ([]byte, error) {
	switch format {
	case "", "json":
		return t.JSON()
	case "yaml", "yml":
		return t.YAML()
	default:
		return nil, fmt.Errorf("unknown template format %q, must be one of: json, yaml", format)
	}
}

// Filter returns a copy of the template that only keeps the resources and
// outputs whose logical ids match the glob pattern. References to dropped
// resources are kept as they are, so a filtered template is for reading, not
// for deploying.
func (t *Template) Filter(pattern string) (*Template, error) {
	g, err := glob.Compile(pattern)
	if err != nil {
		return nil, fmt.Errorf("invalid match pattern %q: %w", pattern, err)
	}

	out := New(t.Description)
	for id, r := range t.Resources {
		if g.Match(id) {
			out.Resources[id] = r
		}
	}
	for id, o := range t.Outputs {
		if g.Match(id) {
			out.Outputs[id] = o
		}
	}
	return out, nil
}

// Normalize round-trips an encoded template through JSON into generic maps,
// the form templates fetched from CloudFormation are compared in.
func Normalize(body []byte) (map[string]any, error) {
	var doc map[string]any
	if err := json.Unmarshal(body, &doc); err == nil {
		return doc, nil
	}
	// CloudFormation hands templates back in the format they were sent.
	var ydoc map[string]any
	if err := yaml.Unmarshal(body, &ydoc); err != nil {
		return nil, fmt.Errorf("template is neither JSON nor YAML: %w", err)
	}
	// Re-encode so that numbers and nested maps have the same Go types as
	// a JSON decoded document.
	data, err := json.Marshal(ydoc)
	if err != nil {
		return nil, err
	}
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, err
	}
	return doc, nil
}
