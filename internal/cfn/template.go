package cfn

import (
	"errors"
	"fmt"
	"sort"
)

const FormatVersion = "2010-09-09"

var ErrDuplicateResource = errors.New("duplicate logical id")

// Deletion and update-replace policies understood by CloudFormation.
const (
	PolicyRetain = "Retain"
	PolicyDelete = "Delete"
)

type Template struct {
	AWSTemplateFormatVersion string               `json:"AWSTemplateFormatVersion" yaml:"AWSTemplateFormatVersion"`
	Description              string               `json:"Description,omitempty" yaml:"Description,omitempty"`
	Resources                map[string]*Resource `json:"Resources" yaml:"Resources"`
	Outputs                  map[string]*Output   `json:"Outputs,omitempty" yaml:"Outputs,omitempty"`
}

type Resource struct {
	Type                string         `json:"Type" yaml:"Type"`
	Properties          map[string]any `json:"Properties,omitempty" yaml:"Properties,omitempty"`
	DependsOn           []string       `json:"DependsOn,omitempty" yaml:"DependsOn,omitempty"`
	DeletionPolicy      string         `json:"DeletionPolicy,omitempty" yaml:"DeletionPolicy,omitempty"`
	UpdateReplacePolicy string         `json:"UpdateReplacePolicy,omitempty" yaml:"UpdateReplacePolicy,omitempty"`
}

type Output struct {
	Description string  `json:"Description,omitempty" yaml:"Description,omitempty"`
	Value       any     `json:"Value" yaml:"Value"`
	Export      *Export `json:"Export,omitempty" yaml:"Export,omitempty"`
}

type Export struct {
	Name any `json:"Name" yaml:"Name"`
}

// Component is anything that can be attached to a template. Synthesize adds
// the component's resources and outputs and must be deterministic.
type Component interface {
	Synthesize(t *Template) error
}

func New(description string) *Template {
	return &Template{
		AWSTemplateFormatVersion: FormatVersion,
		Description:              description,
		Resources:                map[string]*Resource{},
		Outputs:                  map[string]*Output{},
	}
}

func (t *Template) AddResource(logicalID string, r *Resource) error {
	if logicalID == "" {
		return fmt.Errorf("resource of type %s has an empty logical id", r.Type)
	}
	if _, exists := t.Resources[logicalID]; exists {
		return fmt.Errorf("%w: resource %s", ErrDuplicateResource, logicalID)
	}
	t.Resources[logicalID] = r
	return nil
}

func (t *Template) AddOutput(logicalID string, o *Output) error {
	if _, exists := t.Outputs[logicalID]; exists {
		return fmt.Errorf("%w: output %s", ErrDuplicateResource, logicalID)
	}
	t.Outputs[logicalID] = o
	return nil
}

// Add synthesizes each component in turn and stops at the first failure.
func (t *Template) Add(components ...Component) error {
	for _, c := range components {
		if err := c.Synthesize(t); err != nil {
			return err
		}
	}
	return nil
}

// ResourcesOfType returns the resources of the given CloudFormation type,
// keyed by logical id.
func (t *Template) ResourcesOfType(resourceType string) map[string]*Resource {
	out := map[string]*Resource{}
	for id, r := range t.Resources {
		if r.Type == resourceType {
			out[id] = r
		}
	}
	return out
}

// LogicalIDs returns all resource logical ids in sorted order.
func (t *Template) LogicalIDs() []string {
	ids := make([]string, 0, len(t.Resources))
	for id := range t.Resources {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// CountByType returns the number of resources of each type.
func (t *Template) CountByType() map[string]int {
	out := map[string]int{}
	for _, r := range t.Resources {
		out[r.Type]++
	}
	return out
}

// DependsOn builds a DependsOn list, skipping empty ids of resources that
// are not synthesized.
func DependsOn(ids ...string) []string {
	var out []string
	for _, id := range ids {
		if id != "" {
			out = append(out, id)
		}
	}
	return out
}
