package stack_test

import (
	"encoding/json"
	"errors"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ecsapp/ecsapp-infra/internal/cfn"
	"github.com/ecsapp/ecsapp-infra/internal/pipeline"
	"github.com/ecsapp/ecsapp-infra/internal/registry"
	"github.com/ecsapp/ecsapp-infra/internal/stack"
	"github.com/ecsapp/ecsapp-infra/internal/stage"
	"github.com/ecsapp/ecsapp-infra/internal/target"
)

func newTemplate(t *testing.T, config stack.Config) *cfn.Template {
	t.Helper()
	s, err := stack.New(config)
	require.NoError(t, err)
	tpl, err := s.Template()
	require.NoError(t, err)
	return tpl
}

func TestStageOrder(t *testing.T) {
	s, err := stack.New(stack.DefaultConfig())
	require.NoError(t, err)
	assert.Equal(t, []string{"Source", "Build", "Deploy-beta", "Deploy-prod"}, s.Pipeline().StageNames())
	assert.Equal(t, "portfolio-website-pipeline", s.Pipeline().Name)
	assert.Equal(t, "portfolio-website-infra", s.Name())
	require.Len(t, s.Targets(), 2)
}

func TestStageOrderSubset(t *testing.T) {
	config := stack.DefaultConfig()
	config.Environments = config.Environments[:1]
	s, err := stack.New(config)
	require.NoError(t, err)
	assert.Equal(t, []string{"Source", "Build", "Deploy-beta"}, s.Pipeline().StageNames())

	config.Environments = nil
	s, err = stack.New(config)
	require.NoError(t, err)
	assert.Equal(t, []string{"Source", "Build"}, s.Pipeline().StageNames())
}

func TestStagesConsumeEarlierArtifacts(t *testing.T) {
	s, err := stack.New(stack.DefaultConfig())
	require.NoError(t, err)

	produced := map[string]bool{}
	for _, st := range s.Pipeline().Stages {
		for _, in := range st.Inputs() {
			assert.True(t, produced[in.Name()], "%s consumes %s before it is produced", st.Name, in)
		}
		for _, out := range st.Outputs() {
			produced[out.Name()] = true
		}
	}
	assert.Equal(t, map[string]bool{"SourceCode": true, "Image": true}, produced)
}

func TestDeterministic(t *testing.T) {
	first := newTemplate(t, stack.DefaultConfig())
	second := newTemplate(t, stack.DefaultConfig())
	assert.Empty(t, cmp.Diff(first, second))

	firstJSON, err := first.JSON()
	require.NoError(t, err)
	secondJSON, err := second.JSON()
	require.NoError(t, err)
	assert.Equal(t, string(firstJSON), string(secondJSON))

	s, err := stack.New(stack.DefaultConfig())
	require.NoError(t, err)
	again, err := s.Template()
	require.NoError(t, err)
	againToo, err := s.Template()
	require.NoError(t, err)
	assert.Empty(t, cmp.Diff(again, againToo))
	assert.Empty(t, cmp.Diff(first, again))
}

func TestOutputs(t *testing.T) {
	tpl := newTemplate(t, stack.DefaultConfig())
	for _, id := range []string{
		"SourceStageName",
		"RepositoryArn",
		"RepositoryUri",
		"PipelineName",
		"BetaContainerName",
		"BetaLoadBalancerDNS",
		"ProdContainerName",
		"ProdLoadBalancerDNS",
	} {
		assert.Contains(t, tpl.Outputs, id)
	}
	assert.Len(t, tpl.Outputs, 8)
	assert.Equal(t, "Source", tpl.Outputs["SourceStageName"].Value)
	assert.Equal(t, "web", tpl.Outputs["BetaContainerName"].Value)

	// only the repository is shared with other stacks
	for id, out := range tpl.Outputs {
		if id == "RepositoryUri" {
			require.NotNil(t, out.Export)
			assert.Equal(t, cfn.Sub("${AWS::StackName}-RepositoryUri"), out.Export.Name)
			continue
		}
		assert.Nil(t, out.Export, id)
	}
}

func TestDomainsYieldZonesAndCertificates(t *testing.T) {
	tpl := newTemplate(t, stack.DefaultConfig())
	assert.Len(t, tpl.ResourcesOfType("AWS::Route53::HostedZone"), 2)
	assert.Len(t, tpl.ResourcesOfType("AWS::CertificateManager::Certificate"), 2)

	config := stack.DefaultConfig()
	for i := range config.Environments {
		config.Environments[i].Domain = ""
	}
	tpl = newTemplate(t, config)
	assert.Empty(t, tpl.ResourcesOfType("AWS::Route53::HostedZone"))
	assert.Empty(t, tpl.ResourcesOfType("AWS::CertificateManager::Certificate"))
}

func TestRepositoryLifecycle(t *testing.T) {
	s, err := stack.New(stack.DefaultConfig())
	require.NoError(t, err)

	opts := s.Repository().Options()
	assert.Equal(t, "portfolio-website", opts.Name)
	assert.Equal(t, registry.RemovalPolicyRetain, opts.RemovalPolicy)
	assert.Equal(t, registry.TagMutable, opts.TagMutability)
	assert.False(t, opts.ScanOnPush)
	assert.Equal(t, "409345029529", opts.LifecycleRegistryID)
	require.Len(t, opts.LifecycleRules, 1)
	assert.Equal(t, registry.DefaultMaxImageAge, opts.LifecycleRules[0].MaxImageAge)

	tpl, err := s.Template()
	require.NoError(t, err)
	repo := tpl.Resources[s.Repository().LogicalID()]
	require.NotNil(t, repo)
	lifecycle := repo.Properties["LifecyclePolicy"].(map[string]any)
	assert.Equal(t, "409345029529", lifecycle["RegistryId"])

	var policy struct {
		Rules []struct {
			Selection struct {
				CountNumber int    `json:"countNumber"`
				CountUnit   string `json:"countUnit"`
			} `json:"selection"`
		} `json:"rules"`
	}
	require.NoError(t, json.Unmarshal([]byte(lifecycle["LifecyclePolicyText"].(string)), &policy))
	require.Len(t, policy.Rules, 1)
	assert.Equal(t, 1000, policy.Rules[0].Selection.CountNumber)
	assert.Equal(t, "days", policy.Rules[0].Selection.CountUnit)
}

func TestProdScaling(t *testing.T) {
	s, err := stack.New(stack.DefaultConfig())
	require.NoError(t, err)

	beta, prod := s.Targets()[0], s.Targets()[1]
	lower, upper := beta.ScalingBounds()
	assert.Equal(t, []int{1, 1, 1}, []int{lower, upper, beta.DesiredCount()})
	lower, upper = prod.ScalingBounds()
	assert.Equal(t, []int{1, 4, 2}, []int{lower, upper, prod.DesiredCount()})
}

func TestNewFailsFast(t *testing.T) {
	testCases := []struct {
		name   string
		mutate func(c *stack.Config)
		err    error
	}{
		{"bad account", func(c *stack.Config) { c.Account = "1234" }, stack.ErrInvalidConfig},
		{"bad region", func(c *stack.Config) { c.Region = "ohio" }, stack.ErrInvalidConfig},
		{"bad infra name", func(c *stack.Config) { c.InfraName = "1-infra" }, stack.ErrInvalidConfig},
		{"no app name", func(c *stack.Config) { c.AppName = "" }, stack.ErrInvalidConfig},
		{"duplicate environment", func(c *stack.Config) { c.Environments[1].Name = "beta" }, stack.ErrInvalidConfig},
		{"clashing environments", func(c *stack.Config) { c.Environments[1].Name = "be-ta" }, stack.ErrInvalidConfig},
		{"bad repository name", func(c *stack.Config) { c.Repository.Name = "Portfolio" }, registry.ErrInvalidRepository},
		{"bad connection", func(c *stack.Config) { c.Source.ConnectionARN = "connection" }, stage.ErrInvalidStage},
		{"bad scaling", func(c *stack.Config) { c.Environments[0].DesiredInstances = 5 }, target.ErrInvalidTarget},
		{"zone without domain", func(c *stack.Config) {
			c.Environments[0].Domain = ""
			c.Environments[0].HostedZoneID = "Z0122871PC0G7PLFCLZ7"
		}, target.ErrInvalidTarget},
		{"bad pipeline name", func(c *stack.Config) { c.PipelineName = "my pipeline" }, pipeline.ErrInvalidPipeline},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			config := stack.DefaultConfig()
			tc.mutate(&config)
			s, err := stack.New(config)
			require.Error(t, err)
			assert.Nil(t, s)
			assert.True(t, errors.Is(err, tc.err), err.Error())
		})
	}
}
