package target_test

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ecsapp/ecsapp-infra/internal/cfn"
	"github.com/ecsapp/ecsapp-infra/internal/registry"
	"github.com/ecsapp/ecsapp-infra/internal/target"
)

func newRepository(t *testing.T) *registry.Repository {
	t.Helper()
	repo, err := registry.New(cfn.NewScope("infra").Child("Repository"), registry.Options{Name: "portfolio-website"})
	require.NoError(t, err)
	return repo
}

func synthesize(t *testing.T, d *target.DeployTarget) *cfn.Template {
	t.Helper()
	tpl := cfn.New("test")
	require.NoError(t, d.Synthesize(tpl))
	return tpl
}

func single(t *testing.T, tpl *cfn.Template, resourceType string) *cfn.Resource {
	t.Helper()
	resources := tpl.ResourcesOfType(resourceType)
	require.Len(t, resources, 1, resourceType)
	for _, r := range resources {
		return r
	}
	return nil
}

func TestProvisionScalingBounds(t *testing.T) {
	d, err := target.Provision(cfn.NewScope("infra").Child("beta"), newRepository(t), target.Options{
		Environment:      "beta",
		MinInstances:     1,
		MaxInstances:     1,
		DesiredInstances: 1,
	})
	require.NoError(t, err)

	lower, upper := d.ScalingBounds()
	assert.Equal(t, 1, lower)
	assert.Equal(t, 1, upper)
	assert.Equal(t, 1, d.DesiredCount())

	tpl := synthesize(t, d)
	scalable := single(t, tpl, "AWS::ApplicationAutoScaling::ScalableTarget")
	assert.Equal(t, 1, scalable.Properties["MinCapacity"])
	assert.Equal(t, 1, scalable.Properties["MaxCapacity"])
	assert.Equal(t, target.ScalableDimension, scalable.Properties["ScalableDimension"])

	service := single(t, tpl, "AWS::ECS::Service")
	assert.Equal(t, 1, service.Properties["DesiredCount"])
	assert.Equal(t, "FARGATE", service.Properties["LaunchType"])

	policy := single(t, tpl, "AWS::ApplicationAutoScaling::ScalingPolicy")
	assert.Equal(t, map[string]any{
		"PredefinedMetricSpecification": map[string]any{
			"PredefinedMetricType": "ECSServiceAverageCPUUtilization",
		},
		"TargetValue":      50,
		"ScaleInCooldown":  60,
		"ScaleOutCooldown": 60,
	}, policy.Properties["TargetTrackingScalingPolicyConfiguration"])
}

func TestProvisionDomain(t *testing.T) {
	d, err := target.Provision(cfn.NewScope("infra").Child("prod"), newRepository(t), target.Options{
		Environment:      "prod",
		MinInstances:     1,
		MaxInstances:     4,
		DesiredInstances: 2,
		Domain:           "johnedquinn.io",
	})
	require.NoError(t, err)
	assert.True(t, d.HasCertificate())
	assert.Equal(t, target.PortHTTPS, d.ListenerPort())

	tpl := synthesize(t, d)
	zone := single(t, tpl, "AWS::Route53::HostedZone")
	assert.Equal(t, "johnedquinn.io.", zone.Properties["Name"])

	cert := single(t, tpl, "AWS::CertificateManager::Certificate")
	assert.Equal(t, "johnedquinn.io", cert.Properties["DomainName"])
	assert.Equal(t, "DNS", cert.Properties["ValidationMethod"])

	listener := single(t, tpl, "AWS::ElasticLoadBalancingV2::Listener")
	assert.Equal(t, 443, listener.Properties["Port"])
	assert.Equal(t, "HTTPS", listener.Properties["Protocol"])
	assert.Contains(t, listener.Properties, "Certificates")

	record := single(t, tpl, "AWS::Route53::RecordSet")
	assert.Equal(t, "A", record.Properties["Type"])

	ingress := lbIngress(t, tpl)
	assert.Equal(t, 443, ingress["FromPort"])
	assert.Equal(t, 443, ingress["ToPort"])
	assert.Equal(t, "0.0.0.0/0", ingress["CidrIp"])
}

func TestProvisionNoDomain(t *testing.T) {
	d, err := target.Provision(cfn.NewScope("infra").Child("beta"), newRepository(t), target.Options{
		Environment:      "beta",
		MinInstances:     1,
		MaxInstances:     1,
		DesiredInstances: 1,
	})
	require.NoError(t, err)
	assert.False(t, d.HasCertificate())

	tpl := synthesize(t, d)
	assert.Empty(t, tpl.ResourcesOfType("AWS::Route53::HostedZone"))
	assert.Empty(t, tpl.ResourcesOfType("AWS::CertificateManager::Certificate"))
	assert.Empty(t, tpl.ResourcesOfType("AWS::Route53::RecordSet"))

	listener := single(t, tpl, "AWS::ElasticLoadBalancingV2::Listener")
	assert.Equal(t, 80, listener.Properties["Port"])
	assert.Equal(t, "HTTP", listener.Properties["Protocol"])
	assert.NotContains(t, listener.Properties, "Certificates")
	assert.Equal(t, 80, lbIngress(t, tpl)["FromPort"])
}

func TestProvisionImportedZone(t *testing.T) {
	d, err := target.Provision(cfn.NewScope("infra").Child("beta"), newRepository(t), target.Options{
		Environment:      "beta",
		MinInstances:     1,
		MaxInstances:     1,
		DesiredInstances: 1,
		Domain:           "johnedquinn-beta.click",
		HostedZoneID:     "Z0122871PC0G7PLFCLZ7",
	})
	require.NoError(t, err)

	tpl := synthesize(t, d)
	assert.Empty(t, tpl.ResourcesOfType("AWS::Route53::HostedZone"))
	cert := single(t, tpl, "AWS::CertificateManager::Certificate")
	options := cert.Properties["DomainValidationOptions"].([]any)[0].(map[string]any)
	assert.Equal(t, "Z0122871PC0G7PLFCLZ7", options["HostedZoneId"])
}

func TestHealthCheckSameInEveryEnvironment(t *testing.T) {
	for _, opts := range []target.Options{
		{Environment: "beta", MinInstances: 1, MaxInstances: 1, DesiredInstances: 1},
		{Environment: "prod", MinInstances: 1, MaxInstances: 4, DesiredInstances: 2, Domain: "johnedquinn.io"},
		{Environment: "staging", MinInstances: 0, MaxInstances: 2, DesiredInstances: 0, ContainerPort: 8080},
	} {
		t.Run(opts.Environment, func(t *testing.T) {
			d, err := target.Provision(cfn.NewScope("infra").Child(opts.Environment), newRepository(t), opts)
			require.NoError(t, err)

			tg := single(t, synthesize(t, d), "AWS::ElasticLoadBalancingV2::TargetGroup")
			assert.Equal(t, "/", tg.Properties["HealthCheckPath"])
			assert.Equal(t, "HTTP", tg.Properties["HealthCheckProtocol"])
			assert.Equal(t, 30, tg.Properties["HealthCheckIntervalSeconds"])
			assert.Equal(t, "ip", tg.Properties["TargetType"])
		})
	}
}

func TestProvisionNetwork(t *testing.T) {
	d, err := target.Provision(cfn.NewScope("infra").Child("beta"), newRepository(t), target.Options{
		Environment:      "beta",
		MinInstances:     1,
		MaxInstances:     1,
		DesiredInstances: 1,
	})
	require.NoError(t, err)

	tpl := synthesize(t, d)
	counts := tpl.CountByType()
	assert.Equal(t, 1, counts["AWS::EC2::VPC"])
	assert.Equal(t, 4, counts["AWS::EC2::Subnet"])
	assert.Equal(t, 1, counts["AWS::EC2::InternetGateway"])
	assert.Equal(t, 1, counts["AWS::EC2::NatGateway"])
	assert.Equal(t, 4, counts["AWS::EC2::RouteTable"])

	azs := map[any]bool{}
	for _, subnet := range tpl.ResourcesOfType("AWS::EC2::Subnet") {
		azs[subnet.Properties["AvailabilityZone"].(map[string]any)["Fn::Select"].([]any)[0]] = true
	}
	assert.Len(t, azs, target.AvailabilityZones)

	lb := single(t, tpl, "AWS::ElasticLoadBalancingV2::LoadBalancer")
	assert.Equal(t, "internet-facing", lb.Properties["Scheme"])
	assert.Len(t, lb.Properties["Subnets"], 2)
}

func TestProvisionExecutionRole(t *testing.T) {
	d, err := target.Provision(cfn.NewScope("infra").Child("beta"), newRepository(t), target.Options{
		Environment:      "beta",
		MinInstances:     1,
		MaxInstances:     1,
		DesiredInstances: 1,
	})
	require.NoError(t, err)

	role := d.ExecutionRole()
	assert.True(t, role.Allows("ecr:BatchGetImage"))
	assert.True(t, role.Allows("ecr:GetAuthorizationToken"))
	assert.False(t, role.Allows("ecr:PutImage"))

	handle := d.Service()
	assert.Equal(t, "beta", handle.Environment)
	assert.Equal(t, target.DefaultContainerName, handle.ContainerName)

	taskDef := single(t, synthesize(t, d), "AWS::ECS::TaskDefinition")
	container := taskDef.Properties["ContainerDefinitions"].([]any)[0].(map[string]any)
	assert.Equal(t, "web", container["Name"])
	assert.Equal(t, cfn.Join(":", cfn.GetAtt(newRepository(t).LogicalID(), "RepositoryUri"), "latest"), container["Image"])
}

func TestProvisionInvalid(t *testing.T) {
	testCases := map[string]target.Options{
		"no environment":         {MinInstances: 1, MaxInstances: 1, DesiredInstances: 1},
		"bad environment":        {Environment: "be ta", MinInstances: 1, MaxInstances: 1, DesiredInstances: 1},
		"zero max":               {Environment: "beta"},
		"negative min":           {Environment: "beta", MinInstances: -1, MaxInstances: 1, DesiredInstances: 1},
		"desired above max":      {Environment: "beta", MinInstances: 1, MaxInstances: 2, DesiredInstances: 3},
		"desired below min":      {Environment: "beta", MinInstances: 2, MaxInstances: 3, DesiredInstances: 1},
		"bad domain":             {Environment: "beta", MinInstances: 1, MaxInstances: 1, DesiredInstances: 1, Domain: "not a domain"},
		"zone without domain":    {Environment: "beta", MinInstances: 1, MaxInstances: 1, DesiredInstances: 1, HostedZoneID: "Z0122871PC0G7PLFCLZ7"},
		"bad zone id":            {Environment: "beta", MinInstances: 1, MaxInstances: 1, DesiredInstances: 1, Domain: "example.com", HostedZoneID: "zone"},
		"bad port":               {Environment: "beta", MinInstances: 1, MaxInstances: 1, DesiredInstances: 1, ContainerPort: 70000},
		"bad fargate size":       {Environment: "beta", MinInstances: 1, MaxInstances: 1, DesiredInstances: 1, CPU: 256, MemoryMiB: 4096},
		"image tag with a colon": {Environment: "beta", MinInstances: 1, MaxInstances: 1, DesiredInstances: 1, ImageTag: "a:b"},
	}

	for name, opts := range testCases {
		t.Run(name, func(t *testing.T) {
			_, err := target.Provision(cfn.NewScope("infra").Child("env"), newRepository(t), opts)
			require.Error(t, err)
			assert.True(t, errors.Is(err, target.ErrInvalidTarget))
		})
	}

	_, err := target.Provision(cfn.NewScope("infra").Child("env"), nil, target.Options{Environment: "beta", MaxInstances: 1})
	assert.ErrorIs(t, err, target.ErrInvalidTarget)
}

func lbIngress(t *testing.T, tpl *cfn.Template) map[string]any {
	t.Helper()
	for _, sg := range tpl.ResourcesOfType("AWS::EC2::SecurityGroup") {
		ingress := sg.Properties["SecurityGroupIngress"].([]any)[0].(map[string]any)
		if _, ok := ingress["CidrIp"]; ok {
			return ingress
		}
	}
	require.Fail(t, "no load balancer security group")
	return nil
}
