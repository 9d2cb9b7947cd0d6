package artifact

import (
	"encoding/json"
	"fmt"
)

// Kind tells what an artifact carries between two pipeline stages.
type Kind string

const (
	KindSource Kind = "source"
	KindImage  Kind = "image"
)

// Artifact is an opaque handle to data flowing from the stage that produces
// it to the stages that consume it. It is only a name at assembly time; the
// pipeline engine fills it in at run time.
type Artifact struct {
	name string
	kind Kind
}

func New(name string, kind Kind) *Artifact {
	return &Artifact{
		name: name,
		kind: kind,
	}
}

func (a *Artifact) Name() string {
	return a.name
}

func (a *Artifact) Kind() Kind {
	return a.kind
}

func (a *Artifact) String() string {
	return fmt.Sprintf("%s (%s)", a.name, a.kind)
}

type rawArtifact struct {
	Name string `json:"name"`
	Kind Kind   `json:"kind"`
}

func (a *Artifact) MarshalJSON() ([]byte, error) {
	return json.Marshal(rawArtifact{Name: a.name, Kind: a.kind})
}

func (a *Artifact) UnmarshalJSON(data []byte) error {
	var raw rawArtifact
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	switch raw.Kind {
	case KindSource, KindImage:
	default:
		return fmt.Errorf("unexpected artifact kind: %q", raw.Kind)
	}
	a.name = raw.Name
	a.kind = raw.Kind
	return nil
}
