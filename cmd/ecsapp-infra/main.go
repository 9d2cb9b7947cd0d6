package main

import (
	"context"
	"fmt"
	"os"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/ecsapp/ecsapp-infra/internal/cfn"
	"github.com/ecsapp/ecsapp-infra/internal/cloud/awscloud"
	"github.com/ecsapp/ecsapp-infra/internal/common"
	"github.com/ecsapp/ecsapp-infra/internal/prometheus"
	"github.com/ecsapp/ecsapp-infra/internal/stack"
)

const configFile = "/etc/ecsapp-infra/ecsapp-infra.toml"

var (
	configPath         string
	verbose            bool
	logFormat          string
	metricsFile        string
	regionFromInstance bool

	config      *infraConfig
	operationID string
)

func newRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:          "ecsapp-infra",
		Short:        "Synthesize and deploy the container application infrastructure",
		Version:      common.Version(),
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			operationID = common.GenerateOperationID()
			if err := common.SetupLogging(os.Stderr, verbose, logFormat, operationID); err != nil {
				return err
			}
			c, err := parseConfig(configPath)
			if err != nil {
				return fmt.Errorf("loading configuration from %s: %w", configPath, err)
			}
			config = c
			return nil
		},
	}

	flags := rootCmd.PersistentFlags()
	flags.StringVarP(&configPath, "config", "c", configFile, "configuration file")
	flags.BoolVarP(&verbose, "verbose", "v", false, "log debug messages")
	flags.StringVar(&logFormat, "log-format", "text", "log format, text or json")
	flags.StringVar(&metricsFile, "metrics-file", "", "write metrics to this file in the textfile collector format")

	rootCmd.AddCommand(
		newSynthCmd(),
		newDiffCmd(),
		newDeployCmd(),
		newDestroyCmd(),
		newOutputsCmd(),
	)
	return rootCmd
}

func newStack() (*stack.Stack, error) {
	return stack.New(config.stackConfig())
}

// synthesize assembles the stack from the loaded configuration and renders
// its template.
func synthesize() (*stack.Stack, *cfn.Template, error) {
	observe := prometheus.SynthesisObserver()
	defer observe()

	s, err := newStack()
	if err != nil {
		return nil, nil, err
	}
	t, err := s.Template()
	if err != nil {
		return nil, nil, err
	}
	prometheus.SetSynthesizedResources(t.CountByType())
	logrus.Debugf("Synthesized %d resources for stack %s", len(t.Resources), s.Name())
	for _, d := range s.Targets() {
		lower, upper := d.ScalingBounds()
		logrus.Debugf("Environment %s: port %d, %d to %d tasks", d.Environment(), d.ListenerPort(), lower, upper)
	}
	return s, t, nil
}

// newAWS connects to the configured region, or to the region of the EC2
// instance the command runs on.
func newAWS(ctx context.Context) (*awscloud.AWS, error) {
	region := config.Region
	if regionFromInstance {
		r, err := awscloud.RegionFromInstanceMetadata(ctx)
		if err != nil {
			return nil, fmt.Errorf("reading region from instance metadata: %w", err)
		}
		if r != config.Region {
			logrus.Warnf("Instance region %s overrides the configured region %s", r, config.Region)
		}
		region = r
		config.Region = r
	}
	return newAWSClient(region, config.Deploy)
}

func newAWSClient(region string, deploy deployConfig) (*awscloud.AWS, error) {
	switch {
	case deploy.AccessKeyID != "":
		logrus.Info("Using static AWS credentials from the configuration")
		return awscloud.New(region, deploy.AccessKeyID, deploy.SecretAccessKey, deploy.SessionToken)
	case deploy.Credentials != "":
		logrus.Infof("Using AWS credentials from %s", deploy.Credentials)
		return awscloud.NewFromFile(deploy.Credentials, region)
	default:
		return awscloud.NewDefault(region)
	}
}

func main() {
	err := newRootCmd().Execute()
	if metricsFile != "" {
		if merr := prometheus.WriteTextfile(metricsFile); merr != nil {
			logrus.Errorf("Unable to write metrics to %s: %v", metricsFile, merr)
		}
	}
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
