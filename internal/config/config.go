package config

import (
	"errors"
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
)

var ErrConfiguration = errors.New("invalid configuration")

type Config struct {
	GitHubSecretARN  string `env:"GITHUB_SECRET_ARN"`
	GitHubAPIURL     string `env:"GITHUB_API_URL"`
	GitHubHookSecret string `env:"GITHUB_HOOK_SECRET"`

	ECSCluster        string   `env:"ECS_CLUSTER"`
	TaskDefinitionARN string   `env:"TASK_DEFINITION_ARN"`
	ContainerName     string   `env:"CONTAINER_NAME"`
	SecurityGroup     string   `env:"CONTAINER_SECURITY_GROUP"`
	SubnetA           string   `env:"SUBNET_A"`
	SubnetB           string   `env:"SUBNET_B"`
	RunnerLabels      []string `env:"RUNNER_LABELS" envSeparator:","`

	GitHubAPITimeout time.Duration `env:"GITHUB_API_TIMEOUT" envDefault:"30s"`
}

// ConfigurationError lists every required key that was missing or empty.
type ConfigurationError struct {
	Missing []string
}

func (e *ConfigurationError) Error() string {
	return fmt.Sprintf("missing environment variable %s", strings.Join(e.Missing, ", "))
}

func (e *ConfigurationError) Is(target error) bool {
	return target == ErrConfiguration
}

// Load reads the configuration from the process environment. It does not check
// that required keys are present, call Validate for that.
func Load() (*Config, error) {
	cfg, err := env.ParseAs[Config]()
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrConfiguration, err)
	}
	return &cfg, nil
}

// Validate checks that every required setting is present and non-empty. It
// makes no network calls and must run before any other step of a delivery.
func (c *Config) Validate() error {
	required := []struct {
		key   string
		value string
	}{
		{"GITHUB_SECRET_ARN", c.GitHubSecretARN},
		{"GITHUB_API_URL", c.GitHubAPIURL},
		{"GITHUB_HOOK_SECRET", c.GitHubHookSecret},
		{"ECS_CLUSTER", c.ECSCluster},
		{"TASK_DEFINITION_ARN", c.TaskDefinitionARN},
		{"CONTAINER_NAME", c.ContainerName},
		{"CONTAINER_SECURITY_GROUP", c.SecurityGroup},
		{"SUBNET_A", c.SubnetA},
		{"SUBNET_B", c.SubnetB},
		{"RUNNER_LABELS", strings.Join(c.RunnerLabels, ",")},
	}

	var missing []string
	for _, r := range required {
		if r.value == "" {
			missing = append(missing, r.key)
		}
	}
	if len(missing) > 0 {
		return &ConfigurationError{Missing: missing}
	}
	return nil
}

// AcceptsLabel reports whether label is in the configured runner label list.
// An empty list accepts nothing.
func (c *Config) AcceptsLabel(label string) bool {
	return slices.Contains(c.RunnerLabels, label)
}
