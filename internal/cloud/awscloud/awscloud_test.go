package awscloud_test

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/ecsapp/ecsapp-infra/internal/cloud/awscloud"
)

func TestEC2Regions(t *testing.T) {
	m := newEc2Mock(t)
	aws := awscloud.NewForTest("us-east-2", nil, m, nil)
	require.NotNil(t, aws)
	regions, err := aws.Regions(context.Background())
	require.NoError(t, err)
	require.NotEmpty(t, regions)
	require.Equal(t, 1, m.calledFn["DescribeRegions"])
}

func TestAvailabilityZonesSorted(t *testing.T) {
	m := newEc2Mock(t)
	aws := awscloud.NewForTest("us-east-2", nil, m, nil)
	zones, err := aws.AvailabilityZones(context.Background())
	require.NoError(t, err)
	require.Equal(t, []string{"us-east-2a", "us-east-2b", "us-east-2c"}, zones)
}

func TestCheckRegion(t *testing.T) {
	m := newEc2Mock(t)
	aws := awscloud.NewForTest("us-east-2", nil, m, nil)
	require.NoError(t, aws.CheckRegion(context.Background(), 2))
	require.Equal(t, 1, m.calledFn["DescribeRegions"])
	require.Equal(t, 1, m.calledFn["DescribeAvailabilityZones"])

	// not enough zones
	m.zones = []string{"us-east-2a"}
	require.ErrorIs(t, aws.CheckRegion(context.Background(), 2), awscloud.ErrUnsupportedRegion)

	// unknown region, zones are not even listed
	m = newEc2Mock(t)
	aws = awscloud.NewForTest("mars-north-1", nil, m, nil)
	require.ErrorIs(t, aws.CheckRegion(context.Background(), 2), awscloud.ErrUnsupportedRegion)
	require.Equal(t, 0, m.calledFn["DescribeAvailabilityZones"])
}

func TestUploadTemplate(t *testing.T) {
	m := &s3uploadermock{t: t, bucket: "templates"}
	aws := awscloud.NewForTest("us-east-2", nil, nil, m)

	url, err := aws.UploadTemplate(context.Background(), "templates", "portfolio-website-infra", []byte(`{"Resources":{}}`))
	require.NoError(t, err)
	require.Len(t, m.keys, 1)
	require.True(t, strings.HasPrefix(m.keys[0], "portfolio-website-infra/"))
	require.True(t, strings.HasSuffix(m.keys[0], ".template.json"))
	require.Equal(t, `{"Resources":{}}`, m.bodies[0])
	require.Equal(t, "https://templates.s3.us-east-2.amazonaws.com/"+m.keys[0], url)

	// every upload gets its own key
	_, err = aws.UploadTemplate(context.Background(), "templates", "portfolio-website-infra", []byte(`{}`))
	require.NoError(t, err)
	require.NotEqual(t, m.keys[0], m.keys[1])
}

func TestRegionFromInstanceMetadata(t *testing.T) {
	region, err := awscloud.RegionFromInstanceMetadataWith(context.Background(), &imdsmock{region: "us-east-2"})
	require.NoError(t, err)
	require.Equal(t, "us-east-2", region)

	_, err = awscloud.RegionFromInstanceMetadataWith(context.Background(), &imdsmock{})
	require.Error(t, err)
}
