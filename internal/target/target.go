// Package target describes the per-environment infrastructure a service is
// deployed to: network, DNS and certificate, load balancer, and an
// auto-scaled Fargate service.
package target

import (
	"errors"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/ecsapp/ecsapp-infra/internal/cfn"
	"github.com/ecsapp/ecsapp-infra/internal/iam"
)

var ErrInvalidTarget = errors.New("invalid deploy target")

const (
	DefaultContainerName = "web"
	DefaultContainerPort = 80
	DefaultCPU           = 256
	DefaultMemoryMiB     = 512
	DefaultImageTag      = "latest"
)

// The health check and the scaling policy are the same in every
// environment.
const (
	HealthCheckPath     = "/"
	HealthCheckProtocol = "HTTP"
	HealthCheckInterval = 30 * time.Second

	ScalingMetric         = "ECSServiceAverageCPUUtilization"
	ScalingTargetPercent  = 50
	ScalingInCooldown     = 60 * time.Second
	ScalingOutCooldown    = 60 * time.Second
	ScalableDimension     = "ecs:service:DesiredCount"
	scalingServiceRoleArn = "arn:${AWS::Partition}:iam::${AWS::AccountId}:role/aws-service-role/ecs.application-autoscaling.amazonaws.com/AWSServiceRoleForApplicationAutoScaling_ECSService"
)

var (
	environmentRegexp = regexp.MustCompile(`^[A-Za-z0-9-]{1,32}$`)
	domainRegexp      = regexp.MustCompile(`^([a-z0-9]([a-z0-9-]{0,61}[a-z0-9])?\.)+[a-z]{2,63}$`)
	hostedZoneRegexp  = regexp.MustCompile(`^Z[A-Z0-9]{1,31}$`)
)

// ImageSource is the repository the service pulls its image from.
type ImageSource interface {
	ImageURI(tag string) any
	GrantPull(g iam.Grantable)
}

type Options struct {
	Environment      string
	MinInstances     int
	MaxInstances     int
	DesiredInstances int

	// Domain is optional. When set, the load balancer listens on HTTPS with
	// a certificate for it, otherwise on plain HTTP.
	Domain string
	// HostedZoneID imports an existing public zone for Domain instead of
	// creating one.
	HostedZoneID string

	ContainerPort int
	CPU           int
	MemoryMiB     int
	ImageTag      string
}

func (o *Options) setDefaults() {
	if o.ContainerPort == 0 {
		o.ContainerPort = DefaultContainerPort
	}
	if o.CPU == 0 {
		o.CPU = DefaultCPU
	}
	if o.MemoryMiB == 0 {
		o.MemoryMiB = DefaultMemoryMiB
	}
	if o.ImageTag == "" {
		o.ImageTag = DefaultImageTag
	}
}

func (o Options) validate() error {
	if !environmentRegexp.MatchString(o.Environment) {
		return fmt.Errorf("%w: environment name %q", ErrInvalidTarget, o.Environment)
	}
	if o.MaxInstances < 1 {
		return fmt.Errorf("%w: %s: max instances must be at least 1, got %d", ErrInvalidTarget, o.Environment, o.MaxInstances)
	}
	if o.MinInstances < 0 || o.MinInstances > o.DesiredInstances || o.DesiredInstances > o.MaxInstances {
		return fmt.Errorf("%w: %s: need 0 <= min (%d) <= desired (%d) <= max (%d)",
			ErrInvalidTarget, o.Environment, o.MinInstances, o.DesiredInstances, o.MaxInstances)
	}
	if o.Domain != "" && (len(o.Domain) > 253 || !domainRegexp.MatchString(o.Domain)) {
		return fmt.Errorf("%w: %s: domain %q", ErrInvalidTarget, o.Environment, o.Domain)
	}
	if o.HostedZoneID != "" {
		if o.Domain == "" {
			return fmt.Errorf("%w: %s: hosted zone %s given without a domain", ErrInvalidTarget, o.Environment, o.HostedZoneID)
		}
		if !hostedZoneRegexp.MatchString(o.HostedZoneID) {
			return fmt.Errorf("%w: %s: hosted zone id %q", ErrInvalidTarget, o.Environment, o.HostedZoneID)
		}
	}
	if o.ContainerPort < 1 || o.ContainerPort > 65535 {
		return fmt.Errorf("%w: %s: container port %d", ErrInvalidTarget, o.Environment, o.ContainerPort)
	}
	if !validFargateSize(o.CPU, o.MemoryMiB) {
		return fmt.Errorf("%w: %s: %d CPU units with %d MiB is not a Fargate task size", ErrInvalidTarget, o.Environment, o.CPU, o.MemoryMiB)
	}
	if strings.ContainsAny(o.ImageTag, ": /") {
		return fmt.Errorf("%w: %s: image tag %q", ErrInvalidTarget, o.Environment, o.ImageTag)
	}
	return nil
}

// validFargateSize checks the CPU and memory combinations Fargate accepts
// for the smaller task sizes.
func validFargateSize(cpu, memory int) bool {
	switch cpu {
	case 256:
		return memory == 512 || memory == 1024 || memory == 2048
	case 512:
		return memory >= 1024 && memory <= 4096 && memory%1024 == 0
	case 1024:
		return memory >= 2048 && memory <= 8192 && memory%1024 == 0
	case 2048:
		return memory >= 4096 && memory <= 16384 && memory%1024 == 0
	case 4096:
		return memory >= 8192 && memory <= 30720 && memory%1024 == 0
	}
	return false
}

// ServiceHandle is what a deploy stage needs to roll a new image onto the
// service of one environment.
type ServiceHandle struct {
	Environment   string
	ClusterName   any
	ServiceName   any
	ContainerName string
}

// DeployTarget is the whole set of resources of one environment.
type DeployTarget struct {
	scope   cfn.Scope
	options Options

	network      *Network
	dns          *DNS
	loadBalancer *LoadBalancer
	service      *Service
}

// Provision declares the resources of one environment in order: network,
// optional zone and certificate, load balancer and then the service. Nothing
// is created until the synthesized template is deployed, and a failed
// deployment is rolled back by CloudFormation.
func Provision(scope cfn.Scope, repo ImageSource, options Options) (*DeployTarget, error) {
	if repo == nil {
		return nil, fmt.Errorf("%w: %s has no image repository", ErrInvalidTarget, options.Environment)
	}
	options.setDefaults()
	if err := options.validate(); err != nil {
		return nil, err
	}

	d := &DeployTarget{
		scope:   scope,
		options: options,
	}
	d.network = newNetwork(scope.Child("Vpc"))
	if options.Domain != "" {
		d.dns = newDNS(scope.Child("Dns"), options.Domain, options.HostedZoneID)
	}
	d.loadBalancer = newLoadBalancer(scope.Child("LoadBalancer"), d.network, d.dns, options.ContainerPort)
	d.service = newService(scope.Child("Service"), d.network, d.loadBalancer, repo, options)
	return d, nil
}

func (d *DeployTarget) Options() Options {
	return d.options
}

func (d *DeployTarget) Environment() string {
	return d.options.Environment
}

func (d *DeployTarget) Service() *ServiceHandle {
	return &ServiceHandle{
		Environment:   d.options.Environment,
		ClusterName:   cfn.Ref(d.service.clusterLogicalID()),
		ServiceName:   cfn.GetAtt(d.service.LogicalID(), "Name"),
		ContainerName: DefaultContainerName,
	}
}

// HasCertificate reports whether the load balancer terminates TLS.
func (d *DeployTarget) HasCertificate() bool {
	return d.dns != nil
}

func (d *DeployTarget) ListenerPort() int {
	return d.loadBalancer.Port()
}

func (d *DeployTarget) LoadBalancerDNS() any {
	return d.loadBalancer.DNSName()
}

// ScalingBounds returns the minimum and maximum task count.
func (d *DeployTarget) ScalingBounds() (int, int) {
	return d.options.MinInstances, d.options.MaxInstances
}

func (d *DeployTarget) DesiredCount() int {
	return d.options.DesiredInstances
}

func (d *DeployTarget) ExecutionRole() *iam.Role {
	return d.service.executionRole
}

func (d *DeployTarget) Synthesize(t *cfn.Template) error {
	components := []cfn.Component{d.network}
	if d.dns != nil {
		components = append(components, d.dns)
	}
	components = append(components, d.loadBalancer, d.service)
	if err := t.Add(components...); err != nil {
		return fmt.Errorf("environment %s: %w", d.options.Environment, err)
	}
	return nil
}
