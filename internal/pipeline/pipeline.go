package pipeline

import (
	"encoding/json"
	"errors"
	"fmt"
	"regexp"

	"github.com/ecsapp/ecsapp-infra/internal/artifact"
	"github.com/ecsapp/ecsapp-infra/internal/cfn"
	"github.com/ecsapp/ecsapp-infra/internal/iam"
)

var ErrInvalidPipeline = errors.New("invalid pipeline")

var (
	stageNameRegexp    = regexp.MustCompile(`^[A-Za-z0-9.@_-]{1,100}$`)
	pipelineNameRegexp = regexp.MustCompile(`^[A-Za-z0-9.@_-]{1,100}$`)
)

type ActionCategory string

const (
	CategorySource ActionCategory = "Source"
	CategoryBuild  ActionCategory = "Build"
	CategoryDeploy ActionCategory = "Deploy"
)

type ActionType struct {
	Category ActionCategory `json:"category"`
	Owner    string         `json:"owner"`
	Provider string         `json:"provider"`
	Version  string         `json:"version"`
}

type ActionOptions interface {
	isActionOptions()
	actionType() ActionType
	configuration() map[string]any
	// statements the pipeline role needs to run the action
	policyStatements() []iam.Statement
}

type Action struct {
	Name     string               `json:"name"`
	Provider string               `json:"provider"`
	Options  ActionOptions        `json:"options"`
	Inputs   []*artifact.Artifact `json:"inputs,omitempty"`
	Outputs  []*artifact.Artifact `json:"outputs,omitempty"`
	RunOrder int                  `json:"run_order"`
}

type rawAction struct {
	Name     string               `json:"name"`
	Provider string               `json:"provider"`
	Options  json.RawMessage      `json:"options"`
	Inputs   []*artifact.Artifact `json:"inputs,omitempty"`
	Outputs  []*artifact.Artifact `json:"outputs,omitempty"`
	RunOrder int                  `json:"run_order"`
}

func (action *Action) UnmarshalJSON(data []byte) error {
	var rawAction rawAction
	err := json.Unmarshal(data, &rawAction)
	if err != nil {
		return err
	}
	var options ActionOptions
	switch rawAction.Provider {
	case ProviderCodeStarSourceConnection:
		options = new(CodeStarSourceOptions)
	case ProviderCodeBuild:
		options = new(CodeBuildOptions)
	case ProviderECS:
		options = new(ECSDeployOptions)
	default:
		return fmt.Errorf("unexpected action provider: %q", rawAction.Provider)
	}
	err = json.Unmarshal(rawAction.Options, options)
	if err != nil {
		return err
	}

	action.Name = rawAction.Name
	action.Provider = rawAction.Provider
	action.Options = options
	action.Inputs = rawAction.Inputs
	action.Outputs = rawAction.Outputs
	action.RunOrder = rawAction.RunOrder

	return nil
}

func newAction(name string, options ActionOptions, inputs, outputs []*artifact.Artifact) *Action {
	return &Action{
		Name:     name,
		Provider: options.actionType().Provider,
		Options:  options,
		Inputs:   inputs,
		Outputs:  outputs,
		RunOrder: 1,
	}
}

func (a *Action) Category() ActionCategory {
	return a.Options.actionType().Category
}

type Stage struct {
	Name    string    `json:"name"`
	Actions []*Action `json:"actions"`
}

func NewStage(name string, actions ...*Action) *Stage {
	return &Stage{
		Name:    name,
		Actions: actions,
	}
}

// Inputs returns the artifacts consumed by the stage's actions.
func (s *Stage) Inputs() []*artifact.Artifact {
	var out []*artifact.Artifact
	for _, a := range s.Actions {
		out = append(out, a.Inputs...)
	}
	return out
}

// Outputs returns the artifacts produced by the stage's actions.
func (s *Stage) Outputs() []*artifact.Artifact {
	var out []*artifact.Artifact
	for _, a := range s.Actions {
		out = append(out, a.Outputs...)
	}
	return out
}

// Pipeline is a single linear chain of stages. Stage order is execution
// order and a stage may only consume artifacts produced by an earlier one.
type Pipeline struct {
	Name   string   `json:"name"`
	Stages []*Stage `json:"stages"`

	scope      cfn.Scope
	sourceCode *artifact.Artifact
	image      *artifact.Artifact
	role       *iam.Role
}

func New(scope cfn.Scope, name string) *Pipeline {
	p := &Pipeline{
		Name:       name,
		scope:      scope,
		sourceCode: artifact.New("SourceCode", artifact.KindSource),
		image:      artifact.New("Image", artifact.KindImage),
		role:       iam.NewRole(scope.Child("Role"), iam.PrincipalCodePipeline),
	}
	p.GrantArtifactsReadWrite(p.role)
	return p
}

// SourceCode is the artifact the source stage fills and the build stage
// reads.
func (p *Pipeline) SourceCode() *artifact.Artifact {
	return p.sourceCode
}

// Image is the artifact the build stage fills and the deploy stages read.
func (p *Pipeline) Image() *artifact.Artifact {
	return p.image
}

func (p *Pipeline) Role() *iam.Role {
	return p.role
}

// AddStage appends stage and grants the pipeline role what its actions need.
func (p *Pipeline) AddStage(stage *Stage) {
	p.Stages = append(p.Stages, stage)
	for _, action := range stage.Actions {
		for _, s := range action.Options.policyStatements() {
			p.role.AddToPolicy(s)
		}
	}
}

func (p *Pipeline) StageNames() []string {
	names := make([]string, len(p.Stages))
	for i, s := range p.Stages {
		names[i] = s.Name
	}
	return names
}

// Validate checks the static wiring of the pipeline: names, non-empty stages,
// a single producer per artifact and that every consumed artifact comes from
// a strictly earlier stage.
func (p *Pipeline) Validate() error {
	if !pipelineNameRegexp.MatchString(p.Name) {
		return fmt.Errorf("%w: name %q", ErrInvalidPipeline, p.Name)
	}
	if len(p.Stages) < 2 {
		return fmt.Errorf("%w: %s needs at least two stages, has %d", ErrInvalidPipeline, p.Name, len(p.Stages))
	}

	stageNames := map[string]struct{}{}
	// artifact name -> index of the producing stage
	producedBy := map[string]int{}
	produced := map[string]*artifact.Artifact{}
	for i, stage := range p.Stages {
		if !stageNameRegexp.MatchString(stage.Name) {
			return fmt.Errorf("%w: stage name %q", ErrInvalidPipeline, stage.Name)
		}
		if _, dup := stageNames[stage.Name]; dup {
			return fmt.Errorf("%w: duplicate stage %q", ErrInvalidPipeline, stage.Name)
		}
		stageNames[stage.Name] = struct{}{}

		if len(stage.Actions) == 0 {
			return fmt.Errorf("%w: stage %q has no actions", ErrInvalidPipeline, stage.Name)
		}
		if i == 0 && stage.Actions[0].Category() != CategorySource {
			return fmt.Errorf("%w: first stage %q must be a source stage", ErrInvalidPipeline, stage.Name)
		}

		for _, in := range stage.Inputs() {
			producer, ok := producedBy[in.Name()]
			if !ok {
				return fmt.Errorf("%w: stage %q consumes %s which no earlier stage produces", ErrInvalidPipeline, stage.Name, in)
			}
			if producer >= i {
				return fmt.Errorf("%w: stage %q consumes %s produced by a later stage", ErrInvalidPipeline, stage.Name, in)
			}
			// same name is not enough, it has to be the produced artifact
			if produced[in.Name()] != in {
				return fmt.Errorf("%w: stage %q consumes %s, which is not the %s produced by %q",
					ErrInvalidPipeline, stage.Name, in, produced[in.Name()], p.Stages[producer].Name)
			}
		}
		for _, out := range stage.Outputs() {
			if producer, dup := producedBy[out.Name()]; dup {
				return fmt.Errorf("%w: %s is produced by both %q and %q", ErrInvalidPipeline, out, p.Stages[producer].Name, stage.Name)
			}
			producedBy[out.Name()] = i
			produced[out.Name()] = out
		}
	}
	return nil
}

func (p *Pipeline) LogicalID() string {
	return p.scope.LogicalID()
}

func (p *Pipeline) bucketLogicalID() string {
	return p.scope.Child("ArtifactsBucket").LogicalID()
}

func (p *Pipeline) ArtifactBucketArn() any {
	return cfn.GetAtt(p.bucketLogicalID(), "Arn")
}

// GrantArtifactsReadWrite lets g read and write objects in the artifact
// store, which every action that consumes or produces artifacts needs.
func (p *Pipeline) GrantArtifactsReadWrite(g iam.Grantable) {
	g.AddToPolicy(iam.Statement{
		Actions: []string{
			"s3:GetObject*",
			"s3:GetBucket*",
			"s3:List*",
			"s3:PutObject",
			"s3:Abort*",
			"s3:DeleteObject*",
		},
		Resources: []any{
			p.ArtifactBucketArn(),
			cfn.Join("", p.ArtifactBucketArn(), "/*"),
		},
	})
}

func renderArtifacts(artifacts []*artifact.Artifact) []any {
	out := make([]any, len(artifacts))
	for i, a := range artifacts {
		out[i] = map[string]any{"Name": a.Name()}
	}
	return out
}

func (a *Action) render() map[string]any {
	at := a.Options.actionType()
	out := map[string]any{
		"Name": a.Name,
		"ActionTypeId": map[string]any{
			"Category": string(at.Category),
			"Owner":    at.Owner,
			"Provider": at.Provider,
			"Version":  at.Version,
		},
		"Configuration": a.Options.configuration(),
		"RunOrder":      a.RunOrder,
	}
	if len(a.Inputs) > 0 {
		out["InputArtifacts"] = renderArtifacts(a.Inputs)
	}
	if len(a.Outputs) > 0 {
		out["OutputArtifacts"] = renderArtifacts(a.Outputs)
	}
	return out
}

func (p *Pipeline) Synthesize(t *cfn.Template) error {
	if err := p.Validate(); err != nil {
		return err
	}

	if err := t.AddResource(p.bucketLogicalID(), &cfn.Resource{
		Type: "AWS::S3::Bucket",
		Properties: map[string]any{
			"BucketEncryption": map[string]any{
				"ServerSideEncryptionConfiguration": []any{
					map[string]any{
						"ServerSideEncryptionByDefault": map[string]any{"SSEAlgorithm": "AES256"},
					},
				},
			},
			"PublicAccessBlockConfiguration": map[string]any{
				"BlockPublicAcls":       true,
				"BlockPublicPolicy":     true,
				"IgnorePublicAcls":      true,
				"RestrictPublicBuckets": true,
			},
		},
		DeletionPolicy:      cfn.PolicyRetain,
		UpdateReplacePolicy: cfn.PolicyRetain,
	}); err != nil {
		return err
	}

	stages := make([]any, len(p.Stages))
	for i, stage := range p.Stages {
		actions := make([]any, len(stage.Actions))
		for j, action := range stage.Actions {
			actions[j] = action.render()
		}
		stages[i] = map[string]any{
			"Name":    stage.Name,
			"Actions": actions,
		}
	}
	if err := p.role.Synthesize(t); err != nil {
		return err
	}

	return t.AddResource(p.LogicalID(), &cfn.Resource{
		Type: "AWS::CodePipeline::Pipeline",
		Properties: map[string]any{
			"Name":    p.Name,
			"RoleArn": p.role.Arn(),
			"ArtifactStore": map[string]any{
				"Type":     "S3",
				"Location": cfn.Ref(p.bucketLogicalID()),
			},
			"Stages": stages,
		},
		DependsOn: cfn.DependsOn(p.role.LogicalID(), p.role.PolicyLogicalID()),
	})
}
