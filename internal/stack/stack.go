// Package stack assembles the complete infrastructure of the application:
// the image repository, the delivery pipeline with its stages and one
// deploy target per environment.
package stack

import (
	"fmt"
	"strings"
	"unicode"

	"github.com/sirupsen/logrus"

	"github.com/ecsapp/ecsapp-infra/internal/cfn"
	"github.com/ecsapp/ecsapp-infra/internal/pipeline"
	"github.com/ecsapp/ecsapp-infra/internal/registry"
	"github.com/ecsapp/ecsapp-infra/internal/stage"
	"github.com/ecsapp/ecsapp-infra/internal/target"
)

type Stack struct {
	config Config
	scope  cfn.Scope

	repository *registry.Repository
	pipeline   *pipeline.Pipeline
	build      *stage.BuildStage
	targets    []*target.DeployTarget
}

// New assembles the stack described by config. The configuration is
// validated before any component is built and the first invalid setting
// aborts the assembly.
func New(config Config) (*Stack, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}
	config = config.withDefaults()

	s := &Stack{
		config: config,
		scope:  cfn.NewScope(config.InfraName),
	}

	var err error
	s.repository, err = registry.New(s.scope.Child("Repository"), registry.Options{
		Name:                config.Repository.Name,
		RemovalPolicy:       config.Repository.RemovalPolicy,
		TagMutability:       registry.TagMutable,
		ScanOnPush:          false,
		LifecycleRegistryID: config.Account,
		LifecycleRules: []registry.LifecycleRule{
			{
				Priority:    1,
				Description: fmt.Sprintf("Expire images older than %d days", int(config.Repository.MaxImageAge.Hours()/24)),
				MaxImageAge: config.Repository.MaxImageAge,
			},
		},
	})
	if err != nil {
		return nil, err
	}

	s.pipeline = pipeline.New(s.scope.Child("Pipeline"), config.PipelineName)

	source, err := stage.CreateSourceStage(SourceStageName, s.pipeline.SourceCode(), stage.SourceOptions{
		ConnectionARN: config.Source.ConnectionARN,
		Owner:         config.Source.Owner,
		Repo:          config.Source.Repo,
		Branch:        config.Source.Branch,
	})
	if err != nil {
		return nil, err
	}
	s.pipeline.AddStage(source)

	s.build, err = stage.NewBuildStage(s.scope.Child("Build"), BuildStageName, s.pipeline.SourceCode(), s.pipeline.Image(), s.repository, stage.BuildOptions{
		BuildSpec:     config.BuildSpec,
		ContainerName: target.DefaultContainerName,
		ConnectionARN: config.Source.ConnectionARN,
		Artifacts:     s.pipeline,
	})
	if err != nil {
		return nil, err
	}
	s.pipeline.AddStage(s.build.Stage)

	for _, env := range config.Environments {
		t, err := target.Provision(s.scope.Child(outputPrefix(env.Name)), s.repository, target.Options{
			Environment:      env.Name,
			MinInstances:     env.MinInstances,
			MaxInstances:     env.MaxInstances,
			DesiredInstances: env.DesiredInstances,
			Domain:           env.Domain,
			HostedZoneID:     env.HostedZoneID,
		})
		if err != nil {
			return nil, err
		}
		deploy, err := stage.CreateDeployStage(env.StageName(), s.pipeline.Image(), t.Service())
		if err != nil {
			return nil, err
		}
		s.targets = append(s.targets, t)
		s.pipeline.AddStage(deploy)
	}

	if err := s.pipeline.Validate(); err != nil {
		return nil, err
	}

	logrus.Debugf("Assembled stack %s with stages %s", s.Name(), strings.Join(s.pipeline.StageNames(), ", "))
	return s, nil
}

// Name is the name of the CloudFormation stack.
func (s *Stack) Name() string {
	return s.config.InfraName
}

func (s *Stack) Config() Config {
	return s.config
}

func (s *Stack) Repository() *registry.Repository {
	return s.repository
}

func (s *Stack) Pipeline() *pipeline.Pipeline {
	return s.pipeline
}

func (s *Stack) Targets() []*target.DeployTarget {
	return s.targets
}

// Template synthesizes every component into one template. It can be called
// any number of times and always renders the same document.
func (s *Stack) Template() (*cfn.Template, error) {
	t := cfn.New(fmt.Sprintf("Infrastructure of %s (%s)", s.config.AppName, s.config.InfraName))

	components := []cfn.Component{s.repository, s.pipeline, s.build.Project}
	for _, d := range s.targets {
		components = append(components, d)
	}
	if err := t.Add(components...); err != nil {
		return nil, fmt.Errorf("synthesizing %s: %w", s.Name(), err)
	}

	outputs := map[string]*cfn.Output{
		"SourceStageName": {Description: "Name of the source stage", Value: SourceStageName},
		"RepositoryArn":   {Description: "ARN of the image repository", Value: s.repository.Arn()},
		"RepositoryUri": {
			Description: "URI of the image repository",
			Value:       s.repository.URI(),
			// other stacks push to and pull from the same repository
			Export: &cfn.Export{Name: cfn.Sub("${AWS::StackName}-RepositoryUri")},
		},
		"PipelineName":    {Description: "Name of the pipeline", Value: cfn.Ref(s.pipeline.LogicalID())},
	}
	for _, d := range s.targets {
		prefix := outputPrefix(d.Environment())
		outputs[prefix+"ContainerName"] = &cfn.Output{
			Description: "Container deployed in " + d.Environment(),
			Value:       d.Service().ContainerName,
		}
		outputs[prefix+"LoadBalancerDNS"] = &cfn.Output{
			Description: "Load balancer of " + d.Environment(),
			Value:       d.LoadBalancerDNS(),
		}
	}
	for id, o := range outputs {
		if err := t.AddOutput(id, o); err != nil {
			return nil, err
		}
	}
	return t, nil
}

// outputPrefix turns an environment name like "beta" into "Beta".
func outputPrefix(env string) string {
	var b strings.Builder
	for _, r := range env {
		if r < unicode.MaxASCII && (unicode.IsLetter(r) || unicode.IsDigit(r)) {
			b.WriteRune(r)
		}
	}
	prefix := b.String()
	if prefix == "" {
		return prefix
	}
	return strings.ToUpper(prefix[:1]) + prefix[1:]
}
