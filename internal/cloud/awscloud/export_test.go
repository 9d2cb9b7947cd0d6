package awscloud

var RegionFromInstanceMetadataWith = regionFromInstanceMetadata

func NewForTest(region string, cfncli CloudFormation, ec2cli EC2, upldr S3Manager) *AWS {
	return newForTest(region, cfncli, ec2cli, upldr)
}
