package target

import (
	"strconv"

	"github.com/ecsapp/ecsapp-infra/internal/cfn"
	"github.com/ecsapp/ecsapp-infra/internal/iam"
)

// Service is the ECS cluster of an environment with one load-balanced
// Fargate service scaled on CPU utilization.
type Service struct {
	scope        cfn.Scope
	network      *Network
	loadBalancer *LoadBalancer
	image        any
	options      Options

	executionRole *iam.Role
	taskRole      *iam.Role
}

func newService(scope cfn.Scope, network *Network, lb *LoadBalancer, repo ImageSource, options Options) *Service {
	s := &Service{
		scope:         scope,
		network:       network,
		loadBalancer:  lb,
		image:         repo.ImageURI(options.ImageTag),
		options:       options,
		executionRole: iam.NewRole(scope.Child("ExecutionRole"), iam.PrincipalECSTasks),
		taskRole:      iam.NewRole(scope.Child("TaskRole"), iam.PrincipalECSTasks),
	}

	repo.GrantPull(s.executionRole)
	s.executionRole.AddToPolicy(iam.Statement{
		Actions:   []string{"logs:CreateLogStream", "logs:PutLogEvents"},
		Resources: []any{cfn.GetAtt(s.logGroupLogicalID(), "Arn")},
	})
	return s
}

func (s *Service) LogicalID() string {
	return s.scope.LogicalID()
}

func (s *Service) clusterLogicalID() string {
	return s.scope.Child("Cluster").LogicalID()
}

func (s *Service) logGroupLogicalID() string {
	return s.scope.Child("LogGroup").LogicalID()
}

func (s *Service) taskDefinitionLogicalID() string {
	return s.scope.Child("TaskDefinition").LogicalID()
}

func (s *Service) securityGroupLogicalID() string {
	return s.scope.Child("SecurityGroup").LogicalID()
}

func (s *Service) scalableTargetLogicalID() string {
	return s.scope.Child("ScalableTarget").LogicalID()
}

func (s *Service) Synthesize(t *cfn.Template) error {
	if err := t.Add(s.executionRole, s.taskRole); err != nil {
		return err
	}

	resources := []struct {
		id       string
		resource *cfn.Resource
	}{
		{s.clusterLogicalID(), &cfn.Resource{Type: "AWS::ECS::Cluster"}},
		{s.logGroupLogicalID(), &cfn.Resource{
			Type:                "AWS::Logs::LogGroup",
			DeletionPolicy:      cfn.PolicyRetain,
			UpdateReplacePolicy: cfn.PolicyRetain,
		}},
		{s.taskDefinitionLogicalID(), s.taskDefinition()},
		{s.securityGroupLogicalID(), &cfn.Resource{
			Type: "AWS::EC2::SecurityGroup",
			Properties: map[string]any{
				"GroupDescription": "Service of " + s.scope.Path(),
				"VpcId":            s.network.VpcID(),
				"SecurityGroupIngress": []any{
					map[string]any{
						"IpProtocol":            "tcp",
						"FromPort":              s.options.ContainerPort,
						"ToPort":                s.options.ContainerPort,
						"SourceSecurityGroupId": s.loadBalancer.SecurityGroupID(),
						"Description":           "Load balancer to target",
					},
				},
			},
		}},
		{s.LogicalID(), s.service()},
		{s.scalableTargetLogicalID(), s.scalableTarget()},
		{s.scope.Child("CpuScaling").LogicalID(), s.scalingPolicy()},
	}
	for _, r := range resources {
		if err := t.AddResource(r.id, r.resource); err != nil {
			return err
		}
	}
	return nil
}

func (s *Service) taskDefinition() *cfn.Resource {
	return &cfn.Resource{
		Type: "AWS::ECS::TaskDefinition",
		Properties: map[string]any{
			"Family":                  s.scope.PhysicalName(255),
			"RequiresCompatibilities": []any{"FARGATE"},
			"NetworkMode":             "awsvpc",
			"Cpu":                     strconv.Itoa(s.options.CPU),
			"Memory":                  strconv.Itoa(s.options.MemoryMiB),
			"ExecutionRoleArn":        s.executionRole.Arn(),
			"TaskRoleArn":             s.taskRole.Arn(),
			"ContainerDefinitions": []any{
				map[string]any{
					"Name":      DefaultContainerName,
					"Image":     s.image,
					"Essential": true,
					"PortMappings": []any{
						map[string]any{"ContainerPort": s.options.ContainerPort, "Protocol": "tcp"},
					},
					"LogConfiguration": map[string]any{
						"LogDriver": "awslogs",
						"Options": map[string]any{
							"awslogs-group":         cfn.Ref(s.logGroupLogicalID()),
							"awslogs-stream-prefix": s.options.Environment,
							"awslogs-region":        cfn.Region(),
						},
					},
				},
			},
		},
	}
}

func (s *Service) service() *cfn.Resource {
	return &cfn.Resource{
		Type: "AWS::ECS::Service",
		Properties: map[string]any{
			"Cluster":                       cfn.Ref(s.clusterLogicalID()),
			"LaunchType":                    "FARGATE",
			"TaskDefinition":                cfn.Ref(s.taskDefinitionLogicalID()),
			"DesiredCount":                  s.options.DesiredInstances,
			"HealthCheckGracePeriodSeconds": 60,
			"DeploymentConfiguration": map[string]any{
				"MaximumPercent":        200,
				"MinimumHealthyPercent": 50,
			},
			"LoadBalancers": []any{
				map[string]any{
					"ContainerName":  DefaultContainerName,
					"ContainerPort":  s.options.ContainerPort,
					"TargetGroupArn": s.loadBalancer.TargetGroupArn(),
				},
			},
			"NetworkConfiguration": map[string]any{
				"AwsvpcConfiguration": map[string]any{
					"AssignPublicIp": "DISABLED",
					"Subnets":        s.network.PrivateSubnets(),
					"SecurityGroups": []any{cfn.GetAtt(s.securityGroupLogicalID(), "GroupId")},
				},
			},
		},
		// Tasks can only register once the listener forwards to the target
		// group, and can only pull once the execution role has its policy.
		DependsOn: cfn.DependsOn(s.loadBalancer.listenerLogicalID(), s.executionRole.PolicyLogicalID()),
	}
}

func (s *Service) scalableTarget() *cfn.Resource {
	return &cfn.Resource{
		Type: "AWS::ApplicationAutoScaling::ScalableTarget",
		Properties: map[string]any{
			"MinCapacity":       s.options.MinInstances,
			"MaxCapacity":       s.options.MaxInstances,
			"ResourceId":        cfn.Join("/", "service", cfn.Ref(s.clusterLogicalID()), cfn.GetAtt(s.LogicalID(), "Name")),
			"ScalableDimension": ScalableDimension,
			"ServiceNamespace":  "ecs",
			"RoleARN":           cfn.Sub(scalingServiceRoleArn),
		},
	}
}

func (s *Service) scalingPolicy() *cfn.Resource {
	return &cfn.Resource{
		Type: "AWS::ApplicationAutoScaling::ScalingPolicy",
		Properties: map[string]any{
			"PolicyName":      s.scope.Child("CpuScaling").PhysicalName(256),
			"PolicyType":      "TargetTrackingScaling",
			"ScalingTargetId": cfn.Ref(s.scalableTargetLogicalID()),
			"TargetTrackingScalingPolicyConfiguration": map[string]any{
				"PredefinedMetricSpecification": map[string]any{
					"PredefinedMetricType": ScalingMetric,
				},
				"TargetValue":      ScalingTargetPercent,
				"ScaleInCooldown":  int(ScalingInCooldown.Seconds()),
				"ScaleOutCooldown": int(ScalingOutCooldown.Seconds()),
			},
		},
	}
}
