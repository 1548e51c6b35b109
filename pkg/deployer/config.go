package deployer

import (
	"os"
	"path/filepath"
	"time"

	"github.com/core-tools/hsu-deployer/pkg/container"
	"github.com/core-tools/hsu-deployer/pkg/errors"

	"gopkg.in/yaml.v3"
)

const (
	DefaultControlPort    = 50065
	DefaultMetricsAddress = ":9465"
	DefaultCheckInterval  = 10 * time.Second
	DefaultHostName       = "localhost"
	DefaultAppBase        = "webapps"
	DefaultConfigBase     = "conf/Catalina/localhost"
)

// DefaultWatchedResource is watched in every application unless configured
// otherwise.
const DefaultWatchedResource = "WEB-INF/web.xml"

// DeployerConfig represents the top-level configuration file structure
type DeployerConfig struct {
	Deployer DeployerConfigOptions `yaml:"deployer"`
	Control  ControlConfig         `yaml:"control"`
	Metrics  MetricsConfig         `yaml:"metrics"`
	Host     HostConfig            `yaml:"host"`
}

type DeployerConfigOptions struct {
	LogLevel      string        `yaml:"log_level,omitempty"`
	CheckInterval time.Duration `yaml:"check_interval,omitempty"`
}

type ControlConfig struct {
	Port int `yaml:"port"`
}

type MetricsConfig struct {
	// Address of the /metrics listener, "-" disables it
	Address string `yaml:"address,omitempty"`
}

// HostConfig describes the host whose applications are deployed. Boolean
// and duration options are pointers to distinguish unset from zero.
type HostConfig struct {
	Name                    string         `yaml:"name"`
	AppBase                 string         `yaml:"app_base"`
	ConfigBase              string         `yaml:"config_base"`
	AutoDeploy              *bool          `yaml:"auto_deploy,omitempty"`
	DeployOnStartup         *bool          `yaml:"deploy_on_startup,omitempty"`
	UnpackWARs              *bool          `yaml:"unpack_wars,omitempty"`
	DeployXML               *bool          `yaml:"deploy_xml,omitempty"`
	CopyXML                 *bool          `yaml:"copy_xml,omitempty"`
	CreateDirs              *bool          `yaml:"create_dirs,omitempty"`
	DeployIgnore            string         `yaml:"deploy_ignore,omitempty"`
	ContextClass            string         `yaml:"context_class,omitempty"`
	RedeployGracePeriod     *time.Duration `yaml:"redeploy_grace_period,omitempty"`
	WatchFilesystem         *bool          `yaml:"watch_filesystem,omitempty"`
	DefaultWatchedResources []string       `yaml:"default_watched_resources,omitempty"`
}

// LoadConfigFromFile loads deployer configuration from a YAML file. Relative
// base directories are resolved against the directory of the file.
func LoadConfigFromFile(filename string) (*DeployerConfig, error) {
	data, err := os.ReadFile(filename)
	if err != nil {
		return nil, errors.NewIOError("failed to read configuration file", err).WithContext("filename", filename)
	}

	config, err := ParseConfig(data)
	if err != nil {
		return nil, errors.NewValidationError("failed to parse YAML configuration", err).WithContext("filename", filename)
	}

	dir := filepath.Dir(filename)
	if !filepath.IsAbs(config.Host.AppBase) {
		config.Host.AppBase = filepath.Join(dir, config.Host.AppBase)
	}
	if !filepath.IsAbs(config.Host.ConfigBase) {
		config.Host.ConfigBase = filepath.Join(dir, config.Host.ConfigBase)
	}
	return config, nil
}

// ParseConfig decodes YAML configuration and applies defaults
func ParseConfig(data []byte) (*DeployerConfig, error) {
	var config DeployerConfig
	if err := yaml.Unmarshal(data, &config); err != nil {
		return nil, errors.NewValidationError("failed to parse YAML configuration", err)
	}
	setConfigDefaults(&config)
	return &config, nil
}

// ValidateConfig validates the entire configuration structure
func ValidateConfig(config *DeployerConfig) error {
	if config == nil {
		return errors.NewValidationError("configuration cannot be nil", nil)
	}

	if _, err := parseLogLevel(config.Deployer.LogLevel); err != nil {
		return errors.NewValidationError("invalid deployer configuration", err)
	}
	if err := ValidateTimeout(config.Deployer.CheckInterval, "check interval"); err != nil {
		return errors.NewValidationError("invalid deployer configuration", err)
	}
	if err := ValidatePort(config.Control.Port); err != nil {
		return errors.NewValidationError("invalid control configuration", err)
	}
	if config.Metrics.Address != MetricsDisabled {
		if err := ValidateListenAddress(config.Metrics.Address); err != nil {
			return errors.NewValidationError("invalid metrics configuration", err)
		}
	}
	if err := validateHostConfig(&config.Host); err != nil {
		return errors.NewValidationError("invalid host configuration", err)
	}
	return nil
}

// MetricsDisabled as metrics address turns the /metrics listener off
const MetricsDisabled = "-"

func setConfigDefaults(config *DeployerConfig) {
	if config.Deployer.LogLevel == "" {
		config.Deployer.LogLevel = "info"
	}
	if config.Deployer.CheckInterval == 0 {
		config.Deployer.CheckInterval = DefaultCheckInterval
	}
	if config.Control.Port == 0 {
		config.Control.Port = DefaultControlPort
	}
	if config.Metrics.Address == "" {
		config.Metrics.Address = DefaultMetricsAddress
	}

	host := &config.Host
	if host.Name == "" {
		host.Name = DefaultHostName
	}
	if host.AppBase == "" {
		host.AppBase = DefaultAppBase
	}
	if host.ConfigBase == "" {
		host.ConfigBase = DefaultConfigBase
	}
	setBoolDefault(&host.AutoDeploy, true)
	setBoolDefault(&host.DeployOnStartup, true)
	setBoolDefault(&host.UnpackWARs, true)
	setBoolDefault(&host.DeployXML, true)
	setBoolDefault(&host.CopyXML, false)
	setBoolDefault(&host.CreateDirs, true)
	setBoolDefault(&host.WatchFilesystem, true)
	if host.ContextClass == "" {
		host.ContextClass = container.DefaultClassName
	}
	if host.RedeployGracePeriod == nil {
		grace := DefaultRedeployGracePeriod
		host.RedeployGracePeriod = &grace
	}
	if host.DefaultWatchedResources == nil {
		host.DefaultWatchedResources = []string{DefaultWatchedResource}
	}
}

func setBoolDefault(value **bool, def bool) {
	if *value == nil {
		v := def
		*value = &v
	}
}

// Options converts the host section into deployer options
func (h *HostConfig) Options() DeployerOptions {
	return DeployerOptions{
		AppBase:                 h.AppBase,
		ConfigBase:              h.ConfigBase,
		DeployXML:               boolValue(h.DeployXML),
		CopyXML:                 boolValue(h.CopyXML),
		UnpackWARs:              boolValue(h.UnpackWARs),
		AutoDeploy:              boolValue(h.AutoDeploy),
		DeployOnStartup:         boolValue(h.DeployOnStartup),
		CreateDirs:              boolValue(h.CreateDirs),
		DeployIgnore:            h.DeployIgnore,
		ContextClass:            h.ContextClass,
		RedeployGracePeriod:     durationValue(h.RedeployGracePeriod),
		DefaultWatchedResources: append([]string(nil), h.DefaultWatchedResources...),
	}
}

func boolValue(value *bool) bool {
	return value != nil && *value
}

func durationValue(value *time.Duration) time.Duration {
	if value == nil {
		return 0
	}
	return *value
}
