package pipeline

import (
	"github.com/ecsapp/ecsapp-infra/internal/artifact"
	"github.com/ecsapp/ecsapp-infra/internal/iam"
)

const ProviderCodeBuild = "CodeBuild"

type CodeBuildOptions struct {
	// Both resolve once deployed; they are intrinsic functions at assembly
	// time.
	ProjectName any `json:"project_name"`
	ProjectArn  any `json:"project_arn"`
}

func (CodeBuildOptions) isActionOptions() {}

func (CodeBuildOptions) actionType() ActionType {
	return ActionType{
		Category: CategoryBuild,
		Owner:    "AWS",
		Provider: ProviderCodeBuild,
		Version:  "1",
	}
}

func (o CodeBuildOptions) configuration() map[string]any {
	return map[string]any{
		"ProjectName": o.ProjectName,
	}
}

func (o CodeBuildOptions) policyStatements() []iam.Statement {
	return []iam.Statement{
		{
			Actions:   []string{"codebuild:BatchGetBuilds", "codebuild:StartBuild", "codebuild:StopBuild"},
			Resources: []any{o.ProjectArn},
		},
	}
}

func NewCodeBuildAction(name string, options *CodeBuildOptions, input, output *artifact.Artifact) *Action {
	return newAction(name, options, []*artifact.Artifact{input}, []*artifact.Artifact{output})
}
