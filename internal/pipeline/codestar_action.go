package pipeline

import (
	"github.com/ecsapp/ecsapp-infra/internal/artifact"
	"github.com/ecsapp/ecsapp-infra/internal/iam"
)

const ProviderCodeStarSourceConnection = "CodeStarSourceConnection"

type CodeStarSourceOptions struct {
	ConnectionARN string `json:"connection_arn"`
	Owner         string `json:"owner"`
	Repo          string `json:"repo"`
	Branch        string `json:"branch"`
	// Hand the build a clone reference instead of a zip of the tree, so it
	// can use git metadata.
	CloneOutput bool `json:"clone_output,omitempty"`
}

func (CodeStarSourceOptions) isActionOptions() {}

func (CodeStarSourceOptions) actionType() ActionType {
	return ActionType{
		Category: CategorySource,
		Owner:    "AWS",
		Provider: ProviderCodeStarSourceConnection,
		Version:  "1",
	}
}

func (o CodeStarSourceOptions) configuration() map[string]any {
	conf := map[string]any{
		"ConnectionArn":    o.ConnectionARN,
		"FullRepositoryId": o.Owner + "/" + o.Repo,
		"BranchName":       o.Branch,
	}
	if o.CloneOutput {
		conf["OutputArtifactFormat"] = "CODEBUILD_CLONE_REF"
	}
	return conf
}

func (o CodeStarSourceOptions) policyStatements() []iam.Statement {
	return []iam.Statement{
		{
			Actions:   []string{"codestar-connections:UseConnection"},
			Resources: []any{o.ConnectionARN},
		},
	}
}

func NewCodeStarSourceAction(name string, options *CodeStarSourceOptions, output *artifact.Artifact) *Action {
	return newAction(name, options, nil, []*artifact.Artifact{output})
}
