package awscloud_test

import (
	"context"
	"fmt"
	"io"
	"strings"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/ec2/imds"
	"github.com/aws/aws-sdk-go-v2/feature/s3/manager"
	"github.com/aws/aws-sdk-go-v2/service/cloudformation"
	cfntypes "github.com/aws/aws-sdk-go-v2/service/cloudformation/types"
	"github.com/aws/aws-sdk-go-v2/service/ec2"
	ec2types "github.com/aws/aws-sdk-go-v2/service/ec2/types"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/smithy-go"
	"github.com/stretchr/testify/require"
)

type cfnmock struct {
	t        *testing.T
	calledFn map[string]int

	stacks map[string]*cfntypes.Stack
	// status a created or updated stack settles in
	finalStatus cfntypes.StackStatus
	noUpdates   bool

	lastCreate *cloudformation.CreateStackInput
	lastUpdate *cloudformation.UpdateStackInput
	tokens     []string
}

func newCfnMock(t *testing.T) *cfnmock {
	return &cfnmock{
		t:           t,
		calledFn:    map[string]int{},
		stacks:      map[string]*cfntypes.Stack{},
		finalStatus: cfntypes.StackStatusCreateComplete,
	}
}

func notFound(name string) error {
	return &smithy.GenericAPIError{
		Code:    "ValidationError",
		Message: fmt.Sprintf("Stack with id %s does not exist", name),
	}
}

func (m *cfnmock) lookup(name string) *cfntypes.Stack {
	if s, ok := m.stacks[name]; ok {
		return s
	}
	for _, s := range m.stacks {
		if aws.ToString(s.StackId) == name {
			return s
		}
	}
	return nil
}

func (m *cfnmock) addStack(name string, status cfntypes.StackStatus, outputs map[string]string) {
	s := &cfntypes.Stack{
		StackId:     aws.String("arn:aws:cloudformation:us-east-2:409345029529:stack/" + name + "/id"),
		StackName:   aws.String(name),
		StackStatus: status,
	}
	for k, v := range outputs {
		s.Outputs = append(s.Outputs, cfntypes.Output{OutputKey: aws.String(k), OutputValue: aws.String(v)})
	}
	m.stacks[name] = s
}

func (m *cfnmock) ValidateTemplate(ctx context.Context, input *cloudformation.ValidateTemplateInput, optfns ...func(*cloudformation.Options)) (*cloudformation.ValidateTemplateOutput, error) {
	m.calledFn["ValidateTemplate"] += 1
	if input.TemplateBody != nil && !strings.HasPrefix(*input.TemplateBody, "{") {
		return nil, &smithy.GenericAPIError{Code: "ValidationError", Message: "Template format error"}
	}
	return &cloudformation.ValidateTemplateOutput{
		Capabilities: []cfntypes.Capability{cfntypes.CapabilityCapabilityIam},
	}, nil
}

func (m *cfnmock) GetTemplate(ctx context.Context, input *cloudformation.GetTemplateInput, optfns ...func(*cloudformation.Options)) (*cloudformation.GetTemplateOutput, error) {
	m.calledFn["GetTemplate"] += 1
	if m.lookup(aws.ToString(input.StackName)) == nil {
		return nil, notFound(aws.ToString(input.StackName))
	}
	return &cloudformation.GetTemplateOutput{
		TemplateBody: aws.String(`{"Resources":{}}`),
	}, nil
}

func (m *cfnmock) CreateStack(ctx context.Context, input *cloudformation.CreateStackInput, optfns ...func(*cloudformation.Options)) (*cloudformation.CreateStackOutput, error) {
	m.calledFn["CreateStack"] += 1
	m.lastCreate = input
	m.tokens = append(m.tokens, aws.ToString(input.ClientRequestToken))
	name := aws.ToString(input.StackName)
	m.addStack(name, m.finalStatus, nil)
	return &cloudformation.CreateStackOutput{StackId: m.stacks[name].StackId}, nil
}

func (m *cfnmock) UpdateStack(ctx context.Context, input *cloudformation.UpdateStackInput, optfns ...func(*cloudformation.Options)) (*cloudformation.UpdateStackOutput, error) {
	m.calledFn["UpdateStack"] += 1
	m.lastUpdate = input
	m.tokens = append(m.tokens, aws.ToString(input.ClientRequestToken))
	s := m.lookup(aws.ToString(input.StackName))
	require.NotNil(m.t, s)
	if m.noUpdates {
		return nil, &smithy.GenericAPIError{Code: "ValidationError", Message: "No updates are to be performed."}
	}
	s.StackStatus = cfntypes.StackStatusUpdateComplete
	return &cloudformation.UpdateStackOutput{StackId: s.StackId}, nil
}

func (m *cfnmock) DeleteStack(ctx context.Context, input *cloudformation.DeleteStackInput, optfns ...func(*cloudformation.Options)) (*cloudformation.DeleteStackOutput, error) {
	m.calledFn["DeleteStack"] += 1
	s := m.lookup(aws.ToString(input.StackName))
	require.NotNil(m.t, s)
	delete(m.stacks, aws.ToString(s.StackName))
	return &cloudformation.DeleteStackOutput{}, nil
}

func (m *cfnmock) DescribeStacks(ctx context.Context, input *cloudformation.DescribeStacksInput, optfns ...func(*cloudformation.Options)) (*cloudformation.DescribeStacksOutput, error) {
	m.calledFn["DescribeStacks"] += 1
	s := m.lookup(aws.ToString(input.StackName))
	if s == nil {
		return nil, notFound(aws.ToString(input.StackName))
	}
	return &cloudformation.DescribeStacksOutput{
		Stacks: []cfntypes.Stack{*s},
	}, nil
}

type ec2mock struct {
	t        *testing.T
	calledFn map[string]int
	regions  []string
	zones    []string
}

func newEc2Mock(t *testing.T) *ec2mock {
	return &ec2mock{
		t:        t,
		calledFn: map[string]int{},
		regions:  []string{"us-east-1", "us-east-2", "eu-central-1"},
		zones:    []string{"us-east-2c", "us-east-2a", "us-east-2b"},
	}
}

func (m *ec2mock) DescribeRegions(ctx context.Context, input *ec2.DescribeRegionsInput, optfns ...func(*ec2.Options)) (*ec2.DescribeRegionsOutput, error) {
	m.calledFn["DescribeRegions"] += 1
	out := &ec2.DescribeRegionsOutput{}
	for _, r := range m.regions {
		out.Regions = append(out.Regions, ec2types.Region{RegionName: aws.String(r)})
	}
	return out, nil
}

func (m *ec2mock) DescribeAvailabilityZones(ctx context.Context, input *ec2.DescribeAvailabilityZonesInput, optfns ...func(*ec2.Options)) (*ec2.DescribeAvailabilityZonesOutput, error) {
	m.calledFn["DescribeAvailabilityZones"] += 1
	require.Len(m.t, input.Filters, 2)
	out := &ec2.DescribeAvailabilityZonesOutput{}
	for _, z := range m.zones {
		out.AvailabilityZones = append(out.AvailabilityZones, ec2types.AvailabilityZone{
			ZoneName: aws.String(z),
			State:    ec2types.AvailabilityZoneStateAvailable,
		})
	}
	return out, nil
}

type s3uploadermock struct {
	t      *testing.T
	bucket string
	keys   []string
	bodies []string
}

func (m *s3uploadermock) Upload(ctx context.Context, input *s3.PutObjectInput, optfns ...func(*manager.Uploader)) (*manager.UploadOutput, error) {
	require.Equal(m.t, m.bucket, aws.ToString(input.Bucket))
	body, err := io.ReadAll(input.Body)
	require.NoError(m.t, err)
	m.keys = append(m.keys, aws.ToString(input.Key))
	m.bodies = append(m.bodies, string(body))
	return &manager.UploadOutput{
		Location: fmt.Sprintf("https://%s.s3.us-east-2.amazonaws.com/%s", m.bucket, aws.ToString(input.Key)),
	}, nil
}

type imdsmock struct {
	region string
}

func (m *imdsmock) GetInstanceIdentityDocument(ctx context.Context, input *imds.GetInstanceIdentityDocumentInput, optfns ...func(*imds.Options)) (*imds.GetInstanceIdentityDocumentOutput, error) {
	return &imds.GetInstanceIdentityDocumentOutput{
		InstanceIdentityDocument: imds.InstanceIdentityDocument{Region: m.region},
	}, nil
}
