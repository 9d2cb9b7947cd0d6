package registry

import (
	"encoding/json"
	"errors"
	"fmt"
	"regexp"
	"time"

	"github.com/ecsapp/ecsapp-infra/internal/cfn"
	"github.com/ecsapp/ecsapp-infra/internal/iam"
)

var ErrInvalidRepository = errors.New("invalid repository")

// DefaultMaxImageAge bounds how long an image is kept before the lifecycle
// rule expires it.
const DefaultMaxImageAge = 1000 * 24 * time.Hour

type RemovalPolicy string

const (
	RemovalPolicyRetain  RemovalPolicy = "retain"
	RemovalPolicyDestroy RemovalPolicy = "destroy"
)

type TagMutability string

const (
	TagMutable   TagMutability = "MUTABLE"
	TagImmutable TagMutability = "IMMUTABLE"
)

var (
	repositoryNameRegexp = regexp.MustCompile(`^[a-z0-9]+(?:[._-][a-z0-9]+)*(?:/[a-z0-9]+(?:[._-][a-z0-9]+)*)*$`)
	accountIDRegexp      = regexp.MustCompile(`^[0-9]{12}$`)
)

type LifecycleRule struct {
	Priority    int
	Description string
	// Images pushed longer ago than MaxImageAge are expired. Must be a whole
	// number of days.
	MaxImageAge time.Duration
}

type Options struct {
	Name          string
	RemovalPolicy RemovalPolicy
	TagMutability TagMutability
	ScanOnPush    bool
	// Registry (account) the lifecycle policy applies to.
	LifecycleRegistryID string
	LifecycleRules      []LifecycleRule
}

// Repository is the durable store of built images. It is created once per
// stack and outlives pipeline runs.
type Repository struct {
	scope   cfn.Scope
	options Options
}

func New(scope cfn.Scope, options Options) (*Repository, error) {
	if !repositoryNameRegexp.MatchString(options.Name) || len(options.Name) > 256 {
		return nil, fmt.Errorf("%w: name %q", ErrInvalidRepository, options.Name)
	}

	switch options.RemovalPolicy {
	case "":
		options.RemovalPolicy = RemovalPolicyRetain
	case RemovalPolicyRetain, RemovalPolicyDestroy:
	default:
		return nil, fmt.Errorf("%w: removal policy %q, must be retain or destroy", ErrInvalidRepository, options.RemovalPolicy)
	}

	switch options.TagMutability {
	case "":
		options.TagMutability = TagMutable
	case TagMutable, TagImmutable:
	default:
		return nil, fmt.Errorf("%w: tag mutability %q", ErrInvalidRepository, options.TagMutability)
	}

	if options.LifecycleRegistryID != "" && !accountIDRegexp.MatchString(options.LifecycleRegistryID) {
		return nil, fmt.Errorf("%w: lifecycle registry id %q is not an account id", ErrInvalidRepository, options.LifecycleRegistryID)
	}

	priorities := map[int]struct{}{}
	for _, rule := range options.LifecycleRules {
		if rule.Priority < 1 {
			return nil, fmt.Errorf("%w: lifecycle rule priority %d must be positive", ErrInvalidRepository, rule.Priority)
		}
		if _, dup := priorities[rule.Priority]; dup {
			return nil, fmt.Errorf("%w: duplicate lifecycle rule priority %d", ErrInvalidRepository, rule.Priority)
		}
		priorities[rule.Priority] = struct{}{}
		if rule.MaxImageAge < 24*time.Hour || rule.MaxImageAge%(24*time.Hour) != 0 {
			return nil, fmt.Errorf("%w: max image age %s is not a whole number of days", ErrInvalidRepository, rule.MaxImageAge)
		}
	}

	return &Repository{
		scope:   scope,
		options: options,
	}, nil
}

func (r *Repository) Name() string {
	return r.options.Name
}

func (r *Repository) Options() Options {
	return r.options
}

func (r *Repository) LogicalID() string {
	return r.scope.LogicalID()
}

func (r *Repository) Arn() any {
	return cfn.GetAtt(r.LogicalID(), "Arn")
}

func (r *Repository) URI() any {
	return cfn.GetAtt(r.LogicalID(), "RepositoryUri")
}

// ImageURI resolves to the repository URI with tag appended.
func (r *Repository) ImageURI(tag string) any {
	return cfn.Join(":", r.URI(), tag)
}

func (r *Repository) GrantPull(g iam.Grantable) {
	g.AddToPolicy(iam.Statement{
		Actions:   []string{"ecr:BatchCheckLayerAvailability", "ecr:GetDownloadUrlForLayer", "ecr:BatchGetImage"},
		Resources: []any{r.Arn()},
	})
	grantAuthorizationToken(g)
}

func grantAuthorizationToken(g iam.Grantable) {
	g.AddToPolicy(iam.Statement{
		Actions:   []string{"ecr:GetAuthorizationToken"},
		Resources: []any{"*"},
	})
}

// GrantPublicGalleryRead lets g pull base images from the public ECR gallery
// without hitting anonymous rate limits.
func GrantPublicGalleryRead(g iam.Grantable) {
	g.AddToPolicy(iam.Statement{
		Actions:   []string{"ecr-public:GetAuthorizationToken", "sts:GetServiceBearerToken"},
		Resources: []any{"*"},
	})
}

type lifecyclePolicy struct {
	Rules []lifecyclePolicyRule `json:"rules"`
}

type lifecyclePolicyRule struct {
	RulePriority int                      `json:"rulePriority"`
	Description  string                   `json:"description,omitempty"`
	Selection    lifecyclePolicySelection `json:"selection"`
	Action       lifecyclePolicyAction    `json:"action"`
}

type lifecyclePolicySelection struct {
	TagStatus   string `json:"tagStatus"`
	CountType   string `json:"countType"`
	CountNumber int    `json:"countNumber"`
	CountUnit   string `json:"countUnit"`
}

type lifecyclePolicyAction struct {
	Type string `json:"type"`
}

// LifecyclePolicyText renders the lifecycle rules as the JSON document ECR
// expects, or "" when there are none.
func (r *Repository) LifecyclePolicyText() (string, error) {
	if len(r.options.LifecycleRules) == 0 {
		return "", nil
	}
	var policy lifecyclePolicy
	for _, rule := range r.options.LifecycleRules {
		policy.Rules = append(policy.Rules, lifecyclePolicyRule{
			RulePriority: rule.Priority,
			Description:  rule.Description,
			Selection: lifecyclePolicySelection{
				TagStatus:   "any",
				CountType:   "sinceImagePushed",
				CountNumber: int(rule.MaxImageAge / (24 * time.Hour)),
				CountUnit:   "days",
			},
			Action: lifecyclePolicyAction{Type: "expire"},
		})
	}
	data, err := json.Marshal(policy)
	if err != nil {
		return "", err
	}
	return string(data), nil
}

func (r *Repository) Synthesize(t *cfn.Template) error {
	props := map[string]any{
		"RepositoryName":     r.options.Name,
		"ImageTagMutability": string(r.options.TagMutability),
		"ImageScanningConfiguration": map[string]any{
			"ScanOnPush": r.options.ScanOnPush,
		},
	}

	policyText, err := r.LifecyclePolicyText()
	if err != nil {
		return err
	}
	if policyText != "" {
		lifecycle := map[string]any{"LifecyclePolicyText": policyText}
		if r.options.LifecycleRegistryID != "" {
			lifecycle["RegistryId"] = r.options.LifecycleRegistryID
		}
		props["LifecyclePolicy"] = lifecycle
	}

	policy := cfn.PolicyRetain
	if r.options.RemovalPolicy == RemovalPolicyDestroy {
		policy = cfn.PolicyDelete
		props["EmptyOnDelete"] = true
	}

	return t.AddResource(r.LogicalID(), &cfn.Resource{
		Type:                "AWS::ECR::Repository",
		Properties:          props,
		DeletionPolicy:      policy,
		UpdateReplacePolicy: policy,
	})
}
