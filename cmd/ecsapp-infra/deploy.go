package main

import (
	"time"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/ecsapp/ecsapp-infra/internal/cloud/awscloud"
	"github.com/ecsapp/ecsapp-infra/internal/stack"
	"github.com/ecsapp/ecsapp-infra/internal/target"
)

var (
	templateBucket string
	noWait         bool
	timeout        time.Duration
)

func newDeployCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "deploy",
		Short: "Create or update the stack",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			s, t, err := synthesize()
			if err != nil {
				return err
			}
			// indentation alone can push the default stack past the inline limit
			body, err := t.CompactJSON()
			if err != nil {
				return err
			}

			a, err := newAWS(ctx)
			if err != nil {
				return err
			}
			if err := a.CheckRegion(ctx, target.AvailabilityZones); err != nil {
				return err
			}

			template := awscloud.Template{Body: body}
			if bucket := deployBucket(cmd); bucket != "" {
				template.URL, err = a.UploadTemplate(ctx, bucket, s.Name(), body)
				if err != nil {
					return err
				}
			}
			if err := a.ValidateTemplate(ctx, template); err != nil {
				return err
			}

			result, err := a.DeployStack(ctx, awscloud.DeployOptions{
				StackName: s.Name(),
				Template:  template,
				Tags:      stackTags(s),
				Wait:      !noWait,
				Timeout:   deployTimeout(cmd),
			})
			if err != nil {
				return err
			}
			if !result.Changed {
				logrus.Infof("Stack %s is up to date", s.Name())
				return nil
			}
			if noWait {
				logrus.Infof("Stack %s: %s started (%s)", s.Name(), result.Operation, result.StackID)
			} else {
				logrus.Infof("Stack %s: %s complete (%s)", s.Name(), result.Operation, result.StackID)
			}
			return nil
		},
	}
	addWaitFlags(cmd)
	cmd.Flags().StringVar(&templateBucket, "template-bucket", "", "upload the template to this S3 bucket before deploying")
	cmd.Flags().BoolVar(&regionFromInstance, "region-from-instance", false, "use the region of the EC2 instance this runs on")
	return cmd
}

func addWaitFlags(cmd *cobra.Command) {
	cmd.Flags().BoolVar(&noWait, "no-wait", false, "return once CloudFormation accepted the request")
	cmd.Flags().DurationVar(&timeout, "timeout", 0, "how long to wait for the stack to settle (default from the configuration)")
}

// The flags take precedence over the configuration file.
func deployBucket(cmd *cobra.Command) string {
	if cmd.Flags().Changed("template-bucket") {
		return templateBucket
	}
	return config.Deploy.TemplateBucket
}

func deployTimeout(cmd *cobra.Command) time.Duration {
	if cmd.Flags().Changed("timeout") {
		return timeout
	}
	return config.Deploy.Timeout
}

func stackTags(s *stack.Stack) map[string]string {
	c := s.Config()
	return map[string]string{
		"ecsapp:application": c.AppName,
		"ecsapp:stack":       s.Name(),
		"ecsapp:operation":   operationID,
	}
}
