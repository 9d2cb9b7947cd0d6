package stack

import (
	"errors"
	"fmt"
	"regexp"
	"time"

	"github.com/ecsapp/ecsapp-infra/internal/registry"
)

var ErrInvalidConfig = errors.New("invalid stack configuration")

// Fallback values used when neither the configuration file nor the
// environment set them.
const (
	DefaultAccount   = "409345029529"
	DefaultRegion    = "us-east-2"
	DefaultInfraName = "portfolio-website-infra"
	DefaultAppName   = "portfolio-website"

	DefaultSourceOwner   = "johnedquinn"
	DefaultSourceRepo    = "portfolio-website"
	DefaultSourceBranch  = "main"
	DefaultConnectionARN = "arn:aws:codestar-connections:us-east-2:409345029529:connection/ff0cb554-229f-4a65-8123-d6282adcaf0b"

	SourceStageName = "Source"
	BuildStageName  = "Build"
)

var (
	accountRegexp = regexp.MustCompile(`^[0-9]{12}$`)
	regionRegexp  = regexp.MustCompile(`^[a-z]{2}(-gov|-iso[a-z]?)?-[a-z]+-[0-9]$`)
	// CloudFormation stack names
	stackNameRegexp = regexp.MustCompile(`^[A-Za-z][A-Za-z0-9-]{0,127}$`)
)

type RepositoryConfig struct {
	// Name defaults to the application name.
	Name          string
	RemovalPolicy registry.RemovalPolicy
	MaxImageAge   time.Duration
}

type SourceConfig struct {
	ConnectionARN string
	Owner         string
	Repo          string
	Branch        string
}

type EnvironmentConfig struct {
	// Name of the environment. The deploy stage is called Deploy-<Name>.
	Name             string
	MinInstances     int
	MaxInstances     int
	DesiredInstances int
	Domain           string
	HostedZoneID     string
}

func (e EnvironmentConfig) StageName() string {
	return "Deploy-" + e.Name
}

// Config is everything the stack is assembled from. It is passed once to
// New; nothing is read from the process environment past that point.
type Config struct {
	Account   string
	Region    string
	InfraName string
	AppName   string
	// PipelineName defaults to <AppName>-pipeline.
	PipelineName string
	BuildSpec    string

	Repository   RepositoryConfig
	Source       SourceConfig
	Environments []EnvironmentConfig
}

func DefaultConfig() Config {
	return Config{
		Account:   DefaultAccount,
		Region:    DefaultRegion,
		InfraName: DefaultInfraName,
		AppName:   DefaultAppName,
		Repository: RepositoryConfig{
			RemovalPolicy: registry.RemovalPolicyRetain,
			MaxImageAge:   registry.DefaultMaxImageAge,
		},
		Source: SourceConfig{
			ConnectionARN: DefaultConnectionARN,
			Owner:         DefaultSourceOwner,
			Repo:          DefaultSourceRepo,
			Branch:        DefaultSourceBranch,
		},
		Environments: []EnvironmentConfig{
			{
				Name:             "beta",
				MinInstances:     1,
				MaxInstances:     1,
				DesiredInstances: 1,
				Domain:           "johnedquinn-beta.click",
			},
			{
				Name:             "prod",
				MinInstances:     1,
				MaxInstances:     4,
				DesiredInstances: 2,
				Domain:           "johnedquinn.io",
			},
		},
	}
}

// withDefaults fills in the values derived from other fields.
func (c Config) withDefaults() Config {
	if c.PipelineName == "" {
		c.PipelineName = c.AppName + "-pipeline"
	}
	if c.Repository.Name == "" {
		c.Repository.Name = c.AppName
	}
	if c.Repository.MaxImageAge == 0 {
		c.Repository.MaxImageAge = registry.DefaultMaxImageAge
	}
	if c.Source.Branch == "" {
		c.Source.Branch = DefaultSourceBranch
	}
	return c
}

// Validate checks the settings only the stack knows about. Components
// validate their own options when they are built.
func (c Config) Validate() error {
	if !accountRegexp.MatchString(c.Account) {
		return fmt.Errorf("%w: account %q is not a 12 digit account id", ErrInvalidConfig, c.Account)
	}
	if !regionRegexp.MatchString(c.Region) {
		return fmt.Errorf("%w: region %q", ErrInvalidConfig, c.Region)
	}
	if !stackNameRegexp.MatchString(c.InfraName) {
		return fmt.Errorf("%w: infra name %q is not a valid stack name", ErrInvalidConfig, c.InfraName)
	}
	if c.AppName == "" {
		return fmt.Errorf("%w: app name is empty", ErrInvalidConfig)
	}

	// environments are told apart by their output prefix
	seen := map[string]string{}
	for _, env := range c.Environments {
		prefix := outputPrefix(env.Name)
		if prefix == "" {
			return fmt.Errorf("%w: environment name %q", ErrInvalidConfig, env.Name)
		}
		if other, dup := seen[prefix]; dup {
			return fmt.Errorf("%w: environments %q and %q clash", ErrInvalidConfig, other, env.Name)
		}
		seen[prefix] = env.Name
	}
	return nil
}
