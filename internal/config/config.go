// Copyright 2025 Blink Labs Software
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package config

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
	"gopkg.in/yaml.v3"

	"github.com/blinklabs-io/tally/database/plugin"
	"github.com/blinklabs-io/tally/governance"
	"github.com/blinklabs-io/tally/internal/sops"
)

type ctxKey string

const configContextKey ctxKey = "tally.config"

func WithContext(ctx context.Context, cfg *Config) context.Context {
	return context.WithValue(ctx, configContextKey, cfg)
}

func FromContext(ctx context.Context) *Config {
	cfg, ok := ctx.Value(configContextKey).(*Config)
	if !ok {
		return nil
	}
	return cfg
}

const (
	DefaultBlobPlugin       = "badger"
	DefaultMetadataPlugin   = "sqlite"
	DefaultShutdownTimeout  = "30s"
	DefaultSignatureMaxSkew = "5m"
	DefaultEnvFile          = ".env"
	envPrefix               = "tally"
)

// tempConfig holds the nested config section as a node so it can be decoded
// onto the defaults, leaving keys the file omits untouched
type tempConfig struct {
	Config   yaml.Node       `yaml:"config,omitempty"`
	Database *databaseConfig `yaml:"database,omitempty"`
}

type databaseConfig struct {
	Blob     map[string]any `yaml:"blob,omitempty"`
	Metadata map[string]any `yaml:"metadata,omitempty"`
}

// GovernanceConfig selects the voting policy and its limits
type GovernanceConfig struct {
	VotingPolicy            string `yaml:"votingPolicy"            split_words:"true"`
	ReputationGain          uint64 `yaml:"reputationGain"          split_words:"true"`
	MaxDescriptionLength    int    `yaml:"maxDescriptionLength"    split_words:"true"`
	MaxTitleLength          int    `yaml:"maxTitleLength"          split_words:"true"`
	QuadraticGuard          bool   `yaml:"quadraticGuard"          split_words:"true"`
	EnforceDeadline         bool   `yaml:"enforceDeadline"         split_words:"true"`
	DetectDelegationCycles  bool   `yaml:"detectDelegationCycles"  split_words:"true"`
	RestrictFinalizeToAdmin bool   `yaml:"restrictFinalizeToAdmin" split_words:"true"`
}

// Settings converts the governance section into engine settings
func (g GovernanceConfig) Settings() (governance.Settings, error) {
	kind, err := governance.ParsePolicyKind(g.VotingPolicy)
	if err != nil {
		return governance.Settings{}, err
	}
	ret := governance.Settings{
		MaxDescriptionLength:    g.MaxDescriptionLength,
		MaxTitleLength:          g.MaxTitleLength,
		EnforceDeadline:         g.EnforceDeadline,
		DetectDelegationCycles:  g.DetectDelegationCycles,
		RestrictFinalizeToAdmin: g.RestrictFinalizeToAdmin,
	}
	switch kind {
	case governance.PolicyBinary:
		ret.Policy = governance.BinaryPolicy()
	default:
		ret.Policy = governance.QuadraticPolicy(g.QuadraticGuard, g.ReputationGain)
	}
	return ret, nil
}

type Config struct {
	BlobPlugin       string `yaml:"blobPlugin"       envconfig:"TALLY_DATABASE_BLOB_PLUGIN"`
	MetadataPlugin   string `yaml:"metadataPlugin"   envconfig:"TALLY_DATABASE_METADATA_PLUGIN"`
	DatabasePath     string `yaml:"databasePath"                                          split_words:"true"`
	KeyFile          string `yaml:"keyFile"                                               split_words:"true"`
	BindAddr         string `yaml:"bindAddr"                                              split_words:"true"`
	ShutdownTimeout  string `yaml:"shutdownTimeout"                                       split_words:"true"`
	SignatureMaxSkew string `yaml:"signatureMaxSkew"                                      split_words:"true"`
	// RedisAddr enables the redis event relay
	RedisAddr          string `yaml:"redisAddr"          split_words:"true"`
	RedisPassword      string `yaml:"redisPassword"      split_words:"true"`
	RedisChannelPrefix string `yaml:"redisChannelPrefix" split_words:"true"`
	// ArchiveUrl enables result archiving, e.g. gcs://bucket/prefix
	ArchiveUrl             string           `yaml:"archiveUrl"             split_words:"true"`
	ArchiveCredentialsFile string           `yaml:"archiveCredentialsFile" split_words:"true"`
	Governance             GovernanceConfig `yaml:"governance"`
	RedisDB                int              `yaml:"redisDb"                split_words:"true"`
	MaxRequestsPerIP       int              `yaml:"maxRequestsPerIP"       split_words:"true"`
	ApiPort                uint             `yaml:"apiPort"                split_words:"true"`
	MetricsPort            uint             `yaml:"metricsPort"            split_words:"true"`
	Debug                  bool             `yaml:"debug"`
	Tracing                bool             `yaml:"tracing"`
	TracingStdout          bool             `yaml:"tracingStdout"          split_words:"true"`
}

// ApiListenAddress returns the host:port of the HTTP API
func (c *Config) ApiListenAddress() string {
	return fmt.Sprintf("%s:%d", c.BindAddr, c.ApiPort)
}

func (c *Config) MetricsListenAddress() string {
	return fmt.Sprintf("%s:%d", c.BindAddr, c.MetricsPort)
}

func (c *Config) validate() error {
	if _, err := time.ParseDuration(c.ShutdownTimeout); err != nil {
		return fmt.Errorf("invalid shutdownTimeout: %w", err)
	}
	if _, err := time.ParseDuration(c.SignatureMaxSkew); err != nil {
		return fmt.Errorf("invalid signatureMaxSkew: %w", err)
	}
	if _, err := c.Governance.Settings(); err != nil {
		return fmt.Errorf("invalid governance config: %w", err)
	}
	return nil
}

func defaultConfig() *Config {
	defaults := governance.DefaultSettings()
	return &Config{
		BlobPlugin:         DefaultBlobPlugin,
		MetadataPlugin:     DefaultMetadataPlugin,
		DatabasePath:       ".tally",
		KeyFile:            "tally.skey",
		BindAddr:           "0.0.0.0",
		ApiPort:            8080,
		MetricsPort:        12798,
		ShutdownTimeout:    DefaultShutdownTimeout,
		SignatureMaxSkew:   DefaultSignatureMaxSkew,
		MaxRequestsPerIP:   32,
		RedisChannelPrefix: "tally",
		Governance: GovernanceConfig{
			VotingPolicy:           defaults.Policy.Kind.String(),
			QuadraticGuard:         defaults.Policy.QuadraticGuard,
			ReputationGain:         defaults.Policy.ReputationGain,
			MaxDescriptionLength:   defaults.MaxDescriptionLength,
			MaxTitleLength:         defaults.MaxTitleLength,
			EnforceDeadline:        defaults.EnforceDeadline,
			DetectDelegationCycles: defaults.DetectDelegationCycles,
		},
	}
}

var globalConfig = defaultConfig()

// findConfigFile looks for ~/.tally/tally.yaml, then /etc/tally/tally.yaml
func findConfigFile() string {
	if homeDir, err := os.UserHomeDir(); err == nil {
		userPath := filepath.Join(homeDir, ".tally", "tally.yaml")
		if _, err := os.Stat(userPath); err == nil {
			return userPath
		}
	}
	systemPath := "/etc/tally/tally.yaml"
	if _, err := os.Stat(systemPath); err == nil {
		return systemPath
	}
	return ""
}

// isEncrypted reports whether a YAML document carries a top-level sops key
func isEncrypted(buf []byte) bool {
	var doc map[string]any
	if err := yaml.Unmarshal(buf, &doc); err != nil {
		return false
	}
	_, ok := doc["sops"]
	return ok
}

// pluginSection splits the plugin name from per-plugin option maps
func pluginSection(
	section map[string]any,
	pluginName *string,
	sectionName string,
) map[string]map[string]any {
	if pluginVal, ok := section["plugin"]; ok {
		if name, ok := pluginVal.(string); ok {
			*pluginName = name
		}
		delete(section, "plugin")
	}
	ret := make(map[string]map[string]any)
	for k, v := range section {
		switch val := v.(type) {
		case map[string]any:
			ret[k] = val
		case map[any]any:
			converted := make(map[string]any)
			for vk, vv := range val {
				if keyStr, ok := vk.(string); ok {
					converted[keyStr] = vv
				}
			}
			ret[k] = converted
		default:
			fmt.Fprintf(
				os.Stderr,
				"warning: skipping %s config entry %q: expected map, got %T\n",
				sectionName,
				k,
				v,
			)
		}
	}
	return ret
}

func loadConfigFile(configFile string) error {
	buf, err := os.ReadFile(configFile)
	if err != nil {
		return fmt.Errorf("error reading config file: %w", err)
	}
	if isEncrypted(buf) {
		buf, err = sops.Decrypt(buf, sops.FormatYAML)
		if err != nil {
			return fmt.Errorf("error decrypting config file: %w", err)
		}
	}
	var tempCfg tempConfig
	if err := yaml.Unmarshal(buf, &tempCfg); err != nil {
		return fmt.Errorf("error parsing config file: %w", err)
	}
	switch {
	case tempCfg.Config.Kind == 0:
		// No config section, the file is flat
		if err := yaml.Unmarshal(buf, globalConfig); err != nil {
			return fmt.Errorf("error parsing config file: %w", err)
		}
	case tempCfg.Config.Kind == yaml.MappingNode:
		if err := tempCfg.Config.Decode(globalConfig); err != nil {
			return fmt.Errorf("error parsing config section: %w", err)
		}
	case tempCfg.Config.ShortTag() == "!!null":
		// An empty config section keeps the defaults
	default:
		return errors.New("error parsing config file: config section must be a mapping")
	}
	if tempCfg.Database == nil {
		return nil
	}
	pluginConfig := make(map[string]map[string]map[string]any)
	if tempCfg.Database.Blob != nil {
		pluginConfig["blob"] = pluginSection(
			tempCfg.Database.Blob,
			&globalConfig.BlobPlugin,
			"blob",
		)
	}
	if tempCfg.Database.Metadata != nil {
		pluginConfig["metadata"] = pluginSection(
			tempCfg.Database.Metadata,
			&globalConfig.MetadataPlugin,
			"metadata",
		)
	}
	if err := plugin.ProcessConfig(pluginConfig); err != nil {
		return fmt.Errorf("error processing plugin config: %w", err)
	}
	return nil
}

// LoadConfig loads the config file, a .env file in the working directory and
// then the environment, each overriding the previous source
func LoadConfig(configFile string) (*Config, error) {
	if configFile == "" {
		configFile = findConfigFile()
	}
	if configFile != "" {
		if err := loadConfigFile(configFile); err != nil {
			return nil, err
		}
	}
	if err := godotenv.Load(DefaultEnvFile); err != nil &&
		!errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("error loading %s: %w", DefaultEnvFile, err)
	}
	if err := envconfig.Process(envPrefix, globalConfig); err != nil {
		return nil, fmt.Errorf("error processing environment: %w", err)
	}
	if err := plugin.ProcessEnvVars(); err != nil {
		return nil, fmt.Errorf(
			"error processing plugin environment variables: %w",
			err,
		)
	}
	if err := globalConfig.validate(); err != nil {
		return nil, err
	}
	return globalConfig, nil
}

func GetConfig() *Config {
	return globalConfig
}
