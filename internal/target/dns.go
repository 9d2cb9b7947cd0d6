package target

import (
	"github.com/ecsapp/ecsapp-infra/internal/cfn"
)

// DNS is the public zone of an environment's domain together with a
// certificate for it, validated through records in that zone.
type DNS struct {
	scope  cfn.Scope
	domain string
	// set when the zone already exists and is only referenced
	importedZoneID string
}

func newDNS(scope cfn.Scope, domain, hostedZoneID string) *DNS {
	return &DNS{
		scope:          scope,
		domain:         domain,
		importedZoneID: hostedZoneID,
	}
}

func (d *DNS) Domain() string {
	return d.domain
}

// Imported reports whether the zone exists outside of the stack.
func (d *DNS) Imported() bool {
	return d.importedZoneID != ""
}

func (d *DNS) zoneLogicalID() string {
	return d.scope.Child("Zone").LogicalID()
}

func (d *DNS) certificateLogicalID() string {
	return d.scope.Child("Certificate").LogicalID()
}

func (d *DNS) ZoneID() any {
	if d.Imported() {
		return d.importedZoneID
	}
	return cfn.Ref(d.zoneLogicalID())
}

func (d *DNS) CertificateArn() any {
	return cfn.Ref(d.certificateLogicalID())
}

// aliasRecord points the domain at the load balancer.
func (d *DNS) aliasRecord(t *cfn.Template, lb *LoadBalancer) error {
	return t.AddResource(d.scope.Child("AliasRecord").LogicalID(), &cfn.Resource{
		Type: "AWS::Route53::RecordSet",
		Properties: map[string]any{
			"Name":         d.domain + ".",
			"Type":         "A",
			"HostedZoneId": d.ZoneID(),
			"AliasTarget": map[string]any{
				"DNSName":      cfn.Join("", "dualstack.", lb.DNSName()),
				"HostedZoneId": cfn.GetAtt(lb.LogicalID(), "CanonicalHostedZoneID"),
			},
		},
	})
}

func (d *DNS) Synthesize(t *cfn.Template) error {
	if !d.Imported() {
		if err := t.AddResource(d.zoneLogicalID(), &cfn.Resource{
			Type: "AWS::Route53::HostedZone",
			Properties: map[string]any{
				"Name": d.domain + ".",
			},
		}); err != nil {
			return err
		}
	}

	return t.AddResource(d.certificateLogicalID(), &cfn.Resource{
		Type: "AWS::CertificateManager::Certificate",
		Properties: map[string]any{
			"DomainName":       d.domain,
			"ValidationMethod": "DNS",
			"DomainValidationOptions": []any{
				map[string]any{
					"DomainName":   d.domain,
					"HostedZoneId": d.ZoneID(),
				},
			},
			"Tags": cfn.Tags("Name", d.scope.Path()),
		},
	})
}
