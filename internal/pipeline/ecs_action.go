package pipeline

import (
	"github.com/ecsapp/ecsapp-infra/internal/artifact"
	"github.com/ecsapp/ecsapp-infra/internal/iam"
)

const (
	ProviderECS = "ECS"

	// DefaultImageDefinitionsFile is written by the build and names the image
	// each container of the service is rolled onto.
	DefaultImageDefinitionsFile = "imagedefinitions.json"
)

type ECSDeployOptions struct {
	ClusterName any    `json:"cluster_name"`
	ServiceName any    `json:"service_name"`
	FileName    string `json:"file_name"`
}

func (ECSDeployOptions) isActionOptions() {}

func (ECSDeployOptions) actionType() ActionType {
	return ActionType{
		Category: CategoryDeploy,
		Owner:    "AWS",
		Provider: ProviderECS,
		Version:  "1",
	}
}

func (o ECSDeployOptions) configuration() map[string]any {
	return map[string]any{
		"ClusterName": o.ClusterName,
		"ServiceName": o.ServiceName,
		"FileName":    o.FileName,
	}
}

func (ECSDeployOptions) policyStatements() []iam.Statement {
	return []iam.Statement{
		{
			Actions: []string{
				"ecs:DescribeServices",
				"ecs:DescribeTaskDefinition",
				"ecs:DescribeTasks",
				"ecs:ListTasks",
				"ecs:RegisterTaskDefinition",
				"ecs:TagResource",
				"ecs:UpdateService",
			},
			Resources: []any{"*"},
		},
		{
			Actions:   []string{"iam:PassRole"},
			Resources: []any{"*"},
			Conditions: map[string]any{
				"StringEqualsIfExists": map[string]any{
					"iam:PassedToService": []any{"ecs-tasks.amazonaws.com"},
				},
			},
		},
	}
}

func NewECSDeployAction(name string, options *ECSDeployOptions, input *artifact.Artifact) *Action {
	if options.FileName == "" {
		options.FileName = DefaultImageDefinitionsFile
	}
	return newAction(name, options, []*artifact.Artifact{input}, nil)
}
