package stage

import (
	"fmt"

	"github.com/ecsapp/ecsapp-infra/internal/artifact"
	"github.com/ecsapp/ecsapp-infra/internal/cfn"
	"github.com/ecsapp/ecsapp-infra/internal/iam"
	"github.com/ecsapp/ecsapp-infra/internal/pipeline"
	"github.com/ecsapp/ecsapp-infra/internal/registry"
)

const (
	DefaultBuildSpec   = "buildspec.yml"
	DefaultBuildImage  = "aws/codebuild/standard:3.0"
	DefaultComputeType = "BUILD_GENERAL1_SMALL"

	// Managed policy giving the build push and pull on every repository of
	// the account.
	containerRegistryPowerUser = "AmazonEC2ContainerRegistryPowerUser"

	maxProjectNameLength = 150
)

// ArtifactStore is where the pipeline keeps artifacts between stages. The
// build reads the source tree from it and writes the image definitions back.
type ArtifactStore interface {
	GrantArtifactsReadWrite(g iam.Grantable)
}

type BuildOptions struct {
	// BuildSpec is the path of the build specification inside the source
	// tree.
	BuildSpec string
	// ContainerName is written to imagedefinitions.json by the build spec
	// and must match the container of the deploy targets.
	ContainerName string
	// ConnectionARN lets the build clone the repository when the source
	// stage hands over a clone reference.
	ConnectionARN string
	Artifacts     ArtifactStore
}

const logGroupArn = "arn:${AWS::Partition}:logs:${AWS::Region}:${AWS::AccountId}:log-group:/aws/codebuild/${Project}"

// BuildProject is the CodeBuild project running the build spec in an
// isolated, privileged container so it can run docker.
type BuildProject struct {
	scope   cfn.Scope
	name    string
	options BuildOptions
	repo    *registry.Repository
	role    *iam.Role
}

func newBuildProject(scope cfn.Scope, repo *registry.Repository, options BuildOptions) *BuildProject {
	p := &BuildProject{
		scope:   scope,
		name:    scope.PhysicalName(maxProjectNameLength),
		options: options,
		repo:    repo,
		role:    iam.NewRole(scope.Child("Role"), iam.PrincipalCodeBuild),
	}

	p.role.AddManagedPolicy(containerRegistryPowerUser)
	registry.GrantPublicGalleryRead(p.role)
	p.role.AddToPolicy(iam.Statement{
		Actions: []string{"logs:CreateLogGroup", "logs:CreateLogStream", "logs:PutLogEvents"},
		Resources: []any{
			cfn.SubWith(logGroupArn, map[string]any{"Project": p.name}),
			cfn.SubWith(logGroupArn+":*", map[string]any{"Project": p.name}),
		},
	})
	if options.Artifacts != nil {
		options.Artifacts.GrantArtifactsReadWrite(p.role)
	}
	if options.ConnectionARN != "" {
		p.role.AddToPolicy(iam.Statement{
			Actions:   []string{"codestar-connections:UseConnection"},
			Resources: []any{options.ConnectionARN},
		})
	}
	return p
}

// Name is the physical project name.
func (p *BuildProject) Name() string {
	return p.name
}

func (p *BuildProject) LogicalID() string {
	return p.scope.LogicalID()
}

func (p *BuildProject) Arn() any {
	return cfn.GetAtt(p.LogicalID(), "Arn")
}

func (p *BuildProject) Role() *iam.Role {
	return p.role
}

func (p *BuildProject) environmentVariables() []any {
	return []any{
		map[string]any{"Name": "REPOSITORY_URI", "Type": "PLAINTEXT", "Value": p.repo.URI()},
		map[string]any{"Name": "CONTAINER_NAME", "Type": "PLAINTEXT", "Value": p.options.ContainerName},
		map[string]any{"Name": "AWS_ACCOUNT_ID", "Type": "PLAINTEXT", "Value": cfn.AccountID()},
	}
}

func (p *BuildProject) Synthesize(t *cfn.Template) error {
	if err := p.role.Synthesize(t); err != nil {
		return err
	}
	return t.AddResource(p.LogicalID(), &cfn.Resource{
		Type: "AWS::CodeBuild::Project",
		Properties: map[string]any{
			"Name":        p.name,
			"ServiceRole": p.role.Arn(),
			"Source": map[string]any{
				"Type":      "CODEPIPELINE",
				"BuildSpec": p.options.BuildSpec,
			},
			"Artifacts": map[string]any{"Type": "CODEPIPELINE"},
			"Environment": map[string]any{
				"Type":                 "LINUX_CONTAINER",
				"Image":                DefaultBuildImage,
				"ComputeType":          DefaultComputeType,
				"PrivilegedMode":       true,
				"EnvironmentVariables": p.environmentVariables(),
			},
		},
		DependsOn: cfn.DependsOn(p.role.LogicalID(), p.role.PolicyLogicalID()),
	})
}

// BuildStage is the build stage together with the project it runs. The
// project has to be synthesized with the rest of the stack.
type BuildStage struct {
	*pipeline.Stage
	Project *BuildProject
}

// NewBuildStage returns the stage turning the source tree in input into
// the image described by output, pushed to repo.
func NewBuildStage(scope cfn.Scope, name string, input, output *artifact.Artifact, repo *registry.Repository, options BuildOptions) (*BuildStage, error) {
	if !checkArtifact(input, artifact.KindSource) {
		return nil, fmt.Errorf("%w: %s needs a source artifact to build", ErrInvalidStage, name)
	}
	if !checkArtifact(output, artifact.KindImage) {
		return nil, fmt.Errorf("%w: %s needs an image artifact to fill", ErrInvalidStage, name)
	}
	if repo == nil {
		return nil, fmt.Errorf("%w: %s has no repository to push to", ErrInvalidStage, name)
	}
	if options.BuildSpec == "" {
		options.BuildSpec = DefaultBuildSpec
	}
	if options.ContainerName == "" {
		return nil, fmt.Errorf("%w: %s needs the container name of the deploy targets", ErrInvalidStage, name)
	}

	project := newBuildProject(scope.Child("Project"), repo, options)
	action := pipeline.NewCodeBuildAction(BuildActionName, &pipeline.CodeBuildOptions{
		ProjectName: cfn.Ref(project.LogicalID()),
		ProjectArn:  project.Arn(),
	}, input, output)

	return &BuildStage{
		Stage:   pipeline.NewStage(name, action),
		Project: project,
	}, nil
}
