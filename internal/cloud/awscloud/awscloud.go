package awscloud

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"path"
	"slices"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/feature/ec2/imds"
	"github.com/aws/aws-sdk-go-v2/feature/s3/manager"
	"github.com/aws/aws-sdk-go-v2/service/cloudformation"
	"github.com/aws/aws-sdk-go-v2/service/ec2"
	ec2types "github.com/aws/aws-sdk-go-v2/service/ec2/types"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/segmentio/ksuid"
	"github.com/sirupsen/logrus"

	"github.com/ecsapp/ecsapp-infra/internal/prometheus"
)

var ErrUnsupportedRegion = errors.New("unsupported region")

type AWS struct {
	region     string
	cfn        CloudFormation
	ec2        EC2
	s3uploader S3Manager
}

func newForTest(region string, cfncli CloudFormation, ec2cli EC2, upldr S3Manager) *AWS {
	return &AWS{
		region:     region,
		cfn:        cfncli,
		ec2:        ec2cli,
		s3uploader: upldr,
	}
}

func newAwsFromConfig(cfg aws.Config) *AWS {
	return &AWS{
		region:     cfg.Region,
		cfn:        cloudformation.NewFromConfig(cfg),
		ec2:        ec2.NewFromConfig(cfg),
		s3uploader: manager.NewUploader(s3.NewFromConfig(cfg)),
	}
}

// Initialize a new AWS object from individual bits. SessionToken is optional
func New(region string, accessKeyID string, accessKey string, sessionToken string) (*AWS, error) {
	cfg, err := config.LoadDefaultConfig(
		context.Background(),
		config.WithRegion(region),
		config.WithCredentialsProvider(credentials.NewStaticCredentialsProvider(accessKeyID, accessKey, sessionToken)),
	)
	if err != nil {
		return nil, err
	}
	return newAwsFromConfig(cfg), nil
}

// Initializes a new AWS object with the credentials info found at filename's location.
// The credential files should match the AWS format, such as:
// [default]
// aws_access_key_id = secretString1
// aws_secret_access_key = secretString2
func NewFromFile(filename string, region string) (*AWS, error) {
	cfg, err := config.LoadDefaultConfig(
		context.Background(),
		config.WithRegion(region),
		config.WithSharedCredentialsFiles([]string{
			filename,
			"default",
		}),
	)
	if err != nil {
		return nil, err
	}
	return newAwsFromConfig(cfg), nil
}

// Initialize a new AWS object from defaults.
// Looks for env variables, shared credential file, and EC2 Instance Roles.
func NewDefault(region string) (*AWS, error) {
	cfg, err := config.LoadDefaultConfig(
		context.Background(),
		config.WithRegion(region),
	)
	if err != nil {
		return nil, err
	}
	return newAwsFromConfig(cfg), nil
}

// RegionFromInstanceMetadata asks the instance metadata service for the
// region when running on EC2.
func RegionFromInstanceMetadata(ctx context.Context) (string, error) {
	return regionFromInstanceMetadata(ctx, imds.New(imds.Options{}))
}

func regionFromInstanceMetadata(ctx context.Context, client EC2Imds) (string, error) {
	identity, err := client.GetInstanceIdentityDocument(ctx, &imds.GetInstanceIdentityDocumentInput{})
	if err != nil {
		return "", err
	}
	if identity.Region == "" {
		return "", fmt.Errorf("instance identity document has no region")
	}
	return identity.Region, nil
}

func (a *AWS) Region() string {
	return a.region
}

func (a *AWS) Regions(ctx context.Context) ([]string, error) {
	out, err := a.ec2.DescribeRegions(ctx, &ec2.DescribeRegionsInput{})
	if err != nil {
		return nil, err
	}

	result := []string{}
	for _, r := range out.Regions {
		result = append(result, aws.ToString(r.RegionName))
	}
	return result, nil
}

// AvailabilityZones lists the available zones of the client's region,
// leaving out local and wavelength zones.
func (a *AWS) AvailabilityZones(ctx context.Context) ([]string, error) {
	out, err := a.ec2.DescribeAvailabilityZones(ctx, &ec2.DescribeAvailabilityZonesInput{
		Filters: []ec2types.Filter{
			{
				Name:   aws.String("state"),
				Values: []string{string(ec2types.AvailabilityZoneStateAvailable)},
			},
			{
				Name:   aws.String("zone-type"),
				Values: []string{"availability-zone"},
			},
		},
	})
	if err != nil {
		return nil, err
	}

	result := []string{}
	for _, z := range out.AvailabilityZones {
		result = append(result, aws.ToString(z.ZoneName))
	}
	slices.Sort(result)
	return result, nil
}

// CheckRegion makes sure the client's region exists for the account and has
// at least minZones availability zones to spread the network over.
func (a *AWS) CheckRegion(ctx context.Context, minZones int) error {
	regions, err := a.Regions(ctx)
	if err != nil {
		return fmt.Errorf("listing regions: %w", err)
	}
	if !slices.Contains(regions, a.region) {
		return fmt.Errorf("%w: %s is not enabled for this account", ErrUnsupportedRegion, a.region)
	}

	zones, err := a.AvailabilityZones(ctx)
	if err != nil {
		return fmt.Errorf("listing availability zones of %s: %w", a.region, err)
	}
	if len(zones) < minZones {
		return fmt.Errorf("%w: %s has %d availability zones, need %d", ErrUnsupportedRegion, a.region, len(zones), minZones)
	}
	logrus.Debugf("[AWS] Region %s has availability zones %v", a.region, zones)
	return nil
}

// TemplateKey is the object key a template of stackName is uploaded to.
// Every upload gets a new key so that a running stack operation never sees
// its template change.
func TemplateKey(stackName string) string {
	return path.Join(stackName, ksuid.New().String()+".template.json")
}

// UploadTemplate stores body in bucket and returns the URL CloudFormation
// reads it from.
func (a *AWS) UploadTemplate(ctx context.Context, bucket, stackName string, body []byte) (string, error) {
	key := TemplateKey(stackName)
	logrus.Infof("[AWS] 🚀 Uploading template to S3: %s/%s", bucket, key)
	out, err := a.s3uploader.Upload(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(bucket),
		Key:         aws.String(key),
		Body:        bytes.NewReader(body),
		ContentType: aws.String("application/json"),
	})
	prometheus.UploadedTemplates.WithLabelValues(prometheus.Result(err)).Inc()
	if err != nil {
		return "", fmt.Errorf("uploading template to s3://%s/%s: %w", bucket, key, err)
	}
	return out.Location, nil
}
