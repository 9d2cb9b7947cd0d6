package main

import (
	"fmt"
	"os"
	"reflect"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/sirupsen/logrus"

	"github.com/ecsapp/ecsapp-infra/internal/cloud/awscloud"
	"github.com/ecsapp/ecsapp-infra/internal/registry"
	"github.com/ecsapp/ecsapp-infra/internal/stack"
)

type repositoryConfig struct {
	Name          string `toml:"name"`
	RemovalPolicy string `toml:"removal_policy"`
	// images older than this are expired
	MaxImageAgeDays int `toml:"max_image_age_days"`
}

type sourceConfig struct {
	ConnectionARN string `toml:"connection_arn"`
	Owner         string `toml:"owner"`
	Repo          string `toml:"repo"`
	Branch        string `toml:"branch"`
}

type environmentConfig struct {
	Name             string `toml:"name"`
	MinInstances     int    `toml:"min_instances"`
	MaxInstances     int    `toml:"max_instances"`
	DesiredInstances int    `toml:"desired_instances"`
	Domain           string `toml:"domain"`
	HostedZoneID     string `toml:"hosted_zone_id"`
}

type deployConfig struct {
	// Path of a shared credentials file, the default chain is used when
	// empty.
	Credentials string `toml:"credentials"`
	// Static credentials, for runners without a credentials file or an
	// instance role. They take precedence over Credentials.
	AccessKeyID     string `toml:"access_key_id"`
	SecretAccessKey string `toml:"secret_access_key"`
	SessionToken    string `toml:"session_token"`
	// Templates are uploaded here before deploying when set. Required for
	// templates larger than CloudFormation accepts inline.
	TemplateBucket string        `toml:"template_bucket"`
	Timeout        time.Duration `toml:"timeout"`
}

type infraConfig struct {
	Account      string `toml:"account"`
	Region       string `toml:"region"`
	InfraName    string `toml:"infra_name"`
	AppName      string `toml:"app_name"`
	PipelineName string `toml:"pipeline_name"`
	BuildSpec    string `toml:"buildspec"`

	// Sections are values so that a partial section in the file keeps
	// the defaults of the keys it leaves out.
	Repository   repositoryConfig    `toml:"repository"`
	Source       sourceConfig        `toml:"source"`
	Deploy       deployConfig        `toml:"deploy"`
	Environments []environmentConfig `toml:"environment"`
}

// Overrides read from the environment. Unset variables keep the value from
// the configuration file.
type envConfig struct {
	Account       *string `env:"ECSAPP_ACCOUNT"`
	Region        *string `env:"ECSAPP_REGION"`
	InfraName     *string `env:"ECSAPP_INFRA_NAME"`
	AppName       *string `env:"ECSAPP_APP_NAME"`
	PipelineName  *string `env:"ECSAPP_PIPELINE_NAME"`
	ConnectionARN *string `env:"ECSAPP_CONNECTION_ARN"`
}

func parseConfig(file string) (*infraConfig, error) {
	defaults := stack.DefaultConfig()
	// set defaults
	config := infraConfig{
		Account:   defaults.Account,
		Region:    defaults.Region,
		InfraName: defaults.InfraName,
		AppName:   defaults.AppName,
		Repository: repositoryConfig{
			RemovalPolicy:   string(defaults.Repository.RemovalPolicy),
			MaxImageAgeDays: int(defaults.Repository.MaxImageAge / (24 * time.Hour)),
		},
		Source: sourceConfig{
			ConnectionARN: defaults.Source.ConnectionARN,
			Owner:         defaults.Source.Owner,
			Repo:          defaults.Source.Repo,
			Branch:        defaults.Source.Branch,
		},
		Deploy: deployConfig{
			Timeout: awscloud.DefaultStackTimeout,
		},
	}

	_, err := toml.DecodeFile(file, &config)
	if err != nil {
		// Return error only when we failed to decode the file.
		// A non-existing config isn't an error, use defaults in this case.
		if !os.IsNotExist(err) {
			return nil, err
		}

		logrus.Info("Configuration file not found, using defaults")
	}

	// Environments are replaced as a whole, a file listing only prod
	// deploys only prod.
	if config.Environments == nil {
		for _, env := range defaults.Environments {
			config.Environments = append(config.Environments, environmentConfig{
				Name:             env.Name,
				MinInstances:     env.MinInstances,
				MaxInstances:     env.MaxInstances,
				DesiredInstances: env.DesiredInstances,
				Domain:           env.Domain,
				HostedZoneID:     env.HostedZoneID,
			})
		}
	}

	if config.Repository.MaxImageAgeDays < 1 {
		return nil, fmt.Errorf("invalid max image age: %d days", config.Repository.MaxImageAgeDays)
	}
	if (config.Deploy.AccessKeyID == "") != (config.Deploy.SecretAccessKey == "") {
		return nil, fmt.Errorf("access_key_id and secret_access_key must be set together")
	}
	if config.Deploy.SessionToken != "" && config.Deploy.AccessKeyID == "" {
		return nil, fmt.Errorf("session_token needs access_key_id and secret_access_key")
	}
	if config.Deploy.Timeout < 0 {
		return nil, fmt.Errorf("invalid deploy timeout: %s", config.Deploy.Timeout)
	}

	var env envConfig
	if err := LoadConfigFromEnv(&env); err != nil {
		return nil, err
	}
	config.applyEnv(env)

	return &config, nil
}

func (c *infraConfig) applyEnv(env envConfig) {
	for _, o := range []struct {
		value *string
		dst   *string
	}{
		{env.Account, &c.Account},
		{env.Region, &c.Region},
		{env.InfraName, &c.InfraName},
		{env.AppName, &c.AppName},
		{env.PipelineName, &c.PipelineName},
		{env.ConnectionARN, &c.Source.ConnectionARN},
	} {
		if o.value != nil {
			*o.dst = *o.value
		}
	}
}

func (c *infraConfig) stackConfig() stack.Config {
	config := stack.Config{
		Account:      c.Account,
		Region:       c.Region,
		InfraName:    c.InfraName,
		AppName:      c.AppName,
		PipelineName: c.PipelineName,
		BuildSpec:    c.BuildSpec,
		Repository: stack.RepositoryConfig{
			Name:          c.Repository.Name,
			RemovalPolicy: registry.RemovalPolicy(c.Repository.RemovalPolicy),
			MaxImageAge:   time.Duration(c.Repository.MaxImageAgeDays) * 24 * time.Hour,
		},
		Source: stack.SourceConfig{
			ConnectionARN: c.Source.ConnectionARN,
			Owner:         c.Source.Owner,
			Repo:          c.Source.Repo,
			Branch:        c.Source.Branch,
		},
	}
	for _, env := range c.Environments {
		config.Environments = append(config.Environments, stack.EnvironmentConfig{
			Name:             env.Name,
			MinInstances:     env.MinInstances,
			MaxInstances:     env.MaxInstances,
			DesiredInstances: env.DesiredInstances,
			Domain:           env.Domain,
			HostedZoneID:     env.HostedZoneID,
		})
	}
	return config
}

// *string means the value is not required
// string means the value is required and should have a default value
func LoadConfigFromEnv(intf interface{}) error {
	t := reflect.TypeOf(intf).Elem()
	v := reflect.ValueOf(intf).Elem()

	for i := 0; i < v.NumField(); i++ {
		fieldT := t.Field(i)
		fieldV := v.Field(i)
		key, ok := fieldT.Tag.Lookup("env")
		if !ok {
			return fmt.Errorf("No env tag in config field")
		}

		confV, ok := os.LookupEnv(key)
		kind := fieldV.Kind()
		if ok {
			switch kind {
			case reflect.Ptr:
				if fieldT.Type.Elem().Kind() != reflect.String {
					return fmt.Errorf("Unsupported type")
				}
				fieldV.Set(reflect.ValueOf(&confV))
			case reflect.String:
				fieldV.SetString(confV)
			default:
				return fmt.Errorf("Unsupported type")
			}
		}
	}
	return nil
}
