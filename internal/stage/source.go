package stage

import (
	"fmt"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws/arn"

	"github.com/ecsapp/ecsapp-infra/internal/artifact"
	"github.com/ecsapp/ecsapp-infra/internal/pipeline"
)

const DefaultBranch = "main"

type SourceOptions struct {
	// ConnectionARN is the CodeStar connection authorized against the
	// version-control host.
	ConnectionARN string
	Owner         string
	Repo          string
	Branch        string
}

func (o SourceOptions) validate() error {
	a, err := arn.Parse(o.ConnectionARN)
	if err != nil {
		return fmt.Errorf("%w: connection %q: %v", ErrInvalidStage, o.ConnectionARN, err)
	}
	switch a.Service {
	case "codestar-connections", "codeconnections":
	default:
		return fmt.Errorf("%w: connection %q is a %s ARN", ErrInvalidStage, o.ConnectionARN, a.Service)
	}
	if !strings.HasPrefix(a.Resource, "connection/") || a.Resource == "connection/" {
		return fmt.Errorf("%w: connection %q does not name a connection", ErrInvalidStage, o.ConnectionARN)
	}
	if o.Owner == "" || o.Repo == "" {
		return fmt.Errorf("%w: source repository needs an owner and a name, got %q/%q", ErrInvalidStage, o.Owner, o.Repo)
	}
	if strings.Contains(o.Owner, "/") || strings.Contains(o.Repo, "/") {
		return fmt.Errorf("%w: source repository %s/%s", ErrInvalidStage, o.Owner, o.Repo)
	}
	return nil
}

// CreateSourceStage returns the stage that fetches the source tree into
// output whenever the branch moves. A malformed remote is rejected here,
// before anything is provisioned.
func CreateSourceStage(name string, output *artifact.Artifact, options SourceOptions) (*pipeline.Stage, error) {
	if !checkArtifact(output, artifact.KindSource) {
		return nil, fmt.Errorf("%w: %s needs a source artifact to fill", ErrInvalidStage, name)
	}
	if options.Branch == "" {
		options.Branch = DefaultBranch
	}
	if err := options.validate(); err != nil {
		return nil, err
	}

	action := pipeline.NewCodeStarSourceAction(SourceActionName, &pipeline.CodeStarSourceOptions{
		ConnectionARN: options.ConnectionARN,
		Owner:         options.Owner,
		Repo:          options.Repo,
		Branch:        options.Branch,
		CloneOutput:   true,
	}, output)
	return pipeline.NewStage(name, action), nil
}
