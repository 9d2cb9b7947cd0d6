package target

import (
	"fmt"
	"maps"
	"slices"

	"github.com/ecsapp/ecsapp-infra/internal/cfn"
)

const (
	VpcCIDR = "10.0.0.0/16"
	// Every subnet group spans this many availability zones.
	AvailabilityZones = 2
)

var (
	publicSubnetCIDRs  = [AvailabilityZones]string{"10.0.0.0/18", "10.0.64.0/18"}
	privateSubnetCIDRs = [AvailabilityZones]string{"10.0.128.0/18", "10.0.192.0/18"}
)

// Network is an isolated VPC with a public and a private subnet in each of
// two availability zones. Private subnets reach out through a single NAT
// gateway.
type Network struct {
	scope cfn.Scope
}

func newNetwork(scope cfn.Scope) *Network {
	return &Network{scope: scope}
}

func (n *Network) LogicalID() string {
	return n.scope.LogicalID()
}

func (n *Network) VpcID() any {
	return cfn.Ref(n.LogicalID())
}

func (n *Network) subnetScope(public bool, az int) cfn.Scope {
	if public {
		return n.scope.Child(fmt.Sprintf("PublicSubnet%d", az+1))
	}
	return n.scope.Child(fmt.Sprintf("PrivateSubnet%d", az+1))
}

func (n *Network) subnets(public bool) []any {
	out := make([]any, AvailabilityZones)
	for az := range out {
		out[az] = cfn.Ref(n.subnetScope(public, az).LogicalID())
	}
	return out
}

func (n *Network) PublicSubnets() []any {
	return n.subnets(true)
}

func (n *Network) PrivateSubnets() []any {
	return n.subnets(false)
}

func (n *Network) gatewayAttachmentID() string {
	return n.scope.Child("VPCGW").LogicalID()
}

func (n *Network) Synthesize(t *cfn.Template) error {
	name := n.scope.Path()
	igw := n.scope.Child("IGW").LogicalID()
	resources := map[string]*cfn.Resource{
		n.LogicalID(): {
			Type: "AWS::EC2::VPC",
			Properties: map[string]any{
				"CidrBlock":          VpcCIDR,
				"EnableDnsHostnames": true,
				"EnableDnsSupport":   true,
				"InstanceTenancy":    "default",
				"Tags":               cfn.Tags("Name", name),
			},
		},
		igw: {
			Type:       "AWS::EC2::InternetGateway",
			Properties: map[string]any{"Tags": cfn.Tags("Name", name)},
		},
		n.gatewayAttachmentID(): {
			Type: "AWS::EC2::VPCGatewayAttachment",
			Properties: map[string]any{
				"VpcId":             n.VpcID(),
				"InternetGatewayId": cfn.Ref(igw),
			},
		},
	}

	// The NAT gateway lives in the first public subnet.
	natScope := n.subnetScope(true, 0)
	eip := natScope.Child("EIP").LogicalID()
	nat := natScope.Child("NATGateway").LogicalID()
	resources[eip] = &cfn.Resource{
		Type:       "AWS::EC2::EIP",
		Properties: map[string]any{"Domain": "vpc"},
		DependsOn:  []string{n.gatewayAttachmentID()},
	}
	resources[nat] = &cfn.Resource{
		Type: "AWS::EC2::NatGateway",
		Properties: map[string]any{
			"SubnetId":     cfn.Ref(natScope.LogicalID()),
			"AllocationId": cfn.GetAtt(eip, "AllocationId"),
			"Tags":         cfn.Tags("Name", natScope.Path()),
		},
	}

	for az := 0; az < AvailabilityZones; az++ {
		for _, public := range []bool{true, false} {
			scope := n.subnetScope(public, az)
			cidr, route := privateSubnetCIDRs[az], map[string]any{"NatGatewayId": cfn.Ref(nat)}
			subnetType := "Private"
			var routeDependsOn []string
			if public {
				cidr, route = publicSubnetCIDRs[az], map[string]any{"GatewayId": cfn.Ref(igw)}
				subnetType = "Public"
				routeDependsOn = []string{n.gatewayAttachmentID()}
			}

			table := scope.Child("RouteTable").LogicalID()
			route["RouteTableId"] = cfn.Ref(table)
			route["DestinationCidrBlock"] = "0.0.0.0/0"

			resources[scope.LogicalID()] = &cfn.Resource{
				Type: "AWS::EC2::Subnet",
				Properties: map[string]any{
					"VpcId":               n.VpcID(),
					"CidrBlock":           cidr,
					"AvailabilityZone":    cfn.Select(az, cfn.GetAZs("")),
					"MapPublicIpOnLaunch": public,
					"Tags":                cfn.Tags("Name", scope.Path(), "subnet-type", subnetType),
				},
			}
			resources[table] = &cfn.Resource{
				Type: "AWS::EC2::RouteTable",
				Properties: map[string]any{
					"VpcId": n.VpcID(),
					"Tags":  cfn.Tags("Name", scope.Path()),
				},
			}
			resources[scope.Child("RouteTableAssociation").LogicalID()] = &cfn.Resource{
				Type: "AWS::EC2::SubnetRouteTableAssociation",
				Properties: map[string]any{
					"RouteTableId": cfn.Ref(table),
					"SubnetId":     cfn.Ref(scope.LogicalID()),
				},
			}
			resources[scope.Child("DefaultRoute").LogicalID()] = &cfn.Resource{
				Type:       "AWS::EC2::Route",
				Properties: route,
				DependsOn:  routeDependsOn,
			}
		}
	}

	for _, id := range slices.Sorted(maps.Keys(resources)) {
		if err := t.AddResource(id, resources[id]); err != nil {
			return err
		}
	}
	return nil
}
