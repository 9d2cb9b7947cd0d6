package iam

import (
	"fmt"

	"github.com/ecsapp/ecsapp-infra/internal/cfn"
	"github.com/ecsapp/ecsapp-infra/internal/common"
)

const (
	PrincipalCodeBuild    = "codebuild.amazonaws.com"
	PrincipalCodePipeline = "codepipeline.amazonaws.com"
	PrincipalECSTasks     = "ecs-tasks.amazonaws.com"
)

// Statement is one allow statement of an inline policy. Resources are plain
// ARNs or intrinsic functions resolving to ARNs.
type Statement struct {
	Actions    []string
	Resources  []any
	Conditions map[string]any
}

func (s Statement) render() map[string]any {
	actions := make([]any, len(s.Actions))
	for i, a := range s.Actions {
		actions[i] = a
	}
	out := map[string]any{
		"Effect":   "Allow",
		"Action":   actions,
		"Resource": s.Resources,
	}
	if len(s.Conditions) > 0 {
		out["Condition"] = s.Conditions
	}
	return out
}

// Grantable is an identity that permissions can be granted to.
type Grantable interface {
	AddToPolicy(Statement)
	AddManagedPolicy(name string)
}

// Role is an IAM role assumed by one AWS service, plus the inline policy
// collecting everything granted to it.
type Role struct {
	scope     cfn.Scope
	principal string
	managed   []string
	policy    []Statement
}

func NewRole(scope cfn.Scope, principal string) *Role {
	return &Role{
		scope:     scope,
		principal: principal,
	}
}

func (r *Role) LogicalID() string {
	return r.scope.LogicalID()
}

// Arn resolves to the role ARN once deployed.
func (r *Role) Arn() any {
	return cfn.GetAtt(r.LogicalID(), "Arn")
}

// AddManagedPolicy attaches an AWS managed policy by name, e.g.
// "AmazonEC2ContainerRegistryPowerUser".
func (r *Role) AddManagedPolicy(name string) {
	r.managed = common.Dedup(append(r.managed, name))
}

func (r *Role) AddToPolicy(s Statement) {
	r.policy = append(r.policy, s)
}

// Allows reports whether any statement grants action.
func (r *Role) Allows(action string) bool {
	for _, s := range r.policy {
		for _, a := range s.Actions {
			if a == action {
				return true
			}
		}
	}
	return false
}

func (r *Role) policyLogicalID() string {
	return r.scope.Child("DefaultPolicy").LogicalID()
}

func (r *Role) Synthesize(t *cfn.Template) error {
	managed := make([]any, 0, len(r.managed))
	for _, m := range r.managed {
		managed = append(managed, cfn.Join("", "arn:", cfn.Partition(), ":iam::aws:policy/"+m))
	}

	props := map[string]any{
		"AssumeRolePolicyDocument": map[string]any{
			"Version": "2012-10-17",
			"Statement": []any{
				map[string]any{
					"Effect":    "Allow",
					"Principal": map[string]any{"Service": r.principal},
					"Action":    "sts:AssumeRole",
				},
			},
		},
	}
	if len(managed) > 0 {
		props["ManagedPolicyArns"] = managed
	}
	if err := t.AddResource(r.LogicalID(), &cfn.Resource{
		Type:       "AWS::IAM::Role",
		Properties: props,
	}); err != nil {
		return err
	}

	if len(r.policy) == 0 {
		return nil
	}
	statements := make([]any, len(r.policy))
	for i, s := range r.policy {
		if len(s.Actions) == 0 || len(s.Resources) == 0 {
			return fmt.Errorf("role %s: policy statement %d needs actions and resources", r.scope.Path(), i)
		}
		statements[i] = s.render()
	}
	return t.AddResource(r.policyLogicalID(), &cfn.Resource{
		Type: "AWS::IAM::Policy",
		Properties: map[string]any{
			"PolicyName": r.policyLogicalID(),
			"PolicyDocument": map[string]any{
				"Version":   "2012-10-17",
				"Statement": statements,
			},
			"Roles": []any{cfn.Ref(r.LogicalID())},
		},
	})
}

// PolicyLogicalID is the logical id of the inline policy. Resources that must
// only be created once the role has its permissions depend on it.
func (r *Role) PolicyLogicalID() string {
	if len(r.policy) == 0 {
		return ""
	}
	return r.policyLogicalID()
}
