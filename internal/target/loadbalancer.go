package target

import (
	"strconv"

	"github.com/ecsapp/ecsapp-infra/internal/cfn"
)

const (
	PortHTTP  = 80
	PortHTTPS = 443
)

// LoadBalancer is the internet-facing application load balancer of an
// environment. It listens on HTTPS when the environment has a certificate
// and on HTTP otherwise; the two cannot be chosen independently.
type LoadBalancer struct {
	scope         cfn.Scope
	network       *Network
	dns           *DNS
	containerPort int
}

func newLoadBalancer(scope cfn.Scope, network *Network, dns *DNS, containerPort int) *LoadBalancer {
	return &LoadBalancer{
		scope:         scope,
		network:       network,
		dns:           dns,
		containerPort: containerPort,
	}
}

func (lb *LoadBalancer) LogicalID() string {
	return lb.scope.LogicalID()
}

func (lb *LoadBalancer) Port() int {
	if lb.dns != nil {
		return PortHTTPS
	}
	return PortHTTP
}

func (lb *LoadBalancer) Protocol() string {
	if lb.dns != nil {
		return "HTTPS"
	}
	return "HTTP"
}

func (lb *LoadBalancer) DNSName() any {
	return cfn.GetAtt(lb.LogicalID(), "DNSName")
}

func (lb *LoadBalancer) securityGroupLogicalID() string {
	return lb.scope.Child("SecurityGroup").LogicalID()
}

func (lb *LoadBalancer) SecurityGroupID() any {
	return cfn.GetAtt(lb.securityGroupLogicalID(), "GroupId")
}

func (lb *LoadBalancer) targetGroupLogicalID() string {
	return lb.scope.Child("TargetGroup").LogicalID()
}

func (lb *LoadBalancer) TargetGroupArn() any {
	return cfn.Ref(lb.targetGroupLogicalID())
}

func (lb *LoadBalancer) listenerLogicalID() string {
	return lb.scope.Child("Listener").LogicalID()
}

func (lb *LoadBalancer) Synthesize(t *cfn.Template) error {
	if err := t.AddResource(lb.targetGroupLogicalID(), &cfn.Resource{
		Type: "AWS::ElasticLoadBalancingV2::TargetGroup",
		Properties: map[string]any{
			"TargetType":                 "ip",
			"Port":                       lb.containerPort,
			"Protocol":                   "HTTP",
			"VpcId":                      lb.network.VpcID(),
			"HealthCheckPath":            HealthCheckPath,
			"HealthCheckProtocol":        HealthCheckProtocol,
			"HealthCheckIntervalSeconds": int(HealthCheckInterval.Seconds()),
		},
	}); err != nil {
		return err
	}

	if err := t.AddResource(lb.securityGroupLogicalID(), &cfn.Resource{
		Type: "AWS::EC2::SecurityGroup",
		Properties: map[string]any{
			"GroupDescription": "Load balancer of " + lb.scope.Path(),
			"VpcId":            lb.network.VpcID(),
			"SecurityGroupIngress": []any{
				map[string]any{
					"IpProtocol":  "tcp",
					"FromPort":    lb.Port(),
					"ToPort":      lb.Port(),
					"CidrIp":      "0.0.0.0/0",
					"Description": "Allow from anyone on port " + strconv.Itoa(lb.Port()),
				},
			},
		},
	}); err != nil {
		return err
	}

	if err := t.AddResource(lb.LogicalID(), &cfn.Resource{
		Type: "AWS::ElasticLoadBalancingV2::LoadBalancer",
		Properties: map[string]any{
			"Type":           "application",
			"Scheme":         "internet-facing",
			"Subnets":        lb.network.PublicSubnets(),
			"SecurityGroups": []any{lb.SecurityGroupID()},
		},
		// The load balancer needs a route to the internet gateway first.
		DependsOn: []string{lb.network.gatewayAttachmentID()},
	}); err != nil {
		return err
	}

	listener := map[string]any{
		"LoadBalancerArn": cfn.Ref(lb.LogicalID()),
		"Port":            lb.Port(),
		"Protocol":        lb.Protocol(),
		"DefaultActions": []any{
			map[string]any{
				"Type":           "forward",
				"TargetGroupArn": lb.TargetGroupArn(),
			},
		},
	}
	if lb.dns != nil {
		listener["Certificates"] = []any{
			map[string]any{"CertificateArn": lb.dns.CertificateArn()},
		}
	}
	if err := t.AddResource(lb.listenerLogicalID(), &cfn.Resource{
		Type:       "AWS::ElasticLoadBalancingV2::Listener",
		Properties: listener,
	}); err != nil {
		return err
	}

	if lb.dns != nil {
		return lb.dns.aliasRecord(t, lb)
	}
	return nil
}
