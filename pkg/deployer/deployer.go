package deployer

import (
	"context"
	"os"
	"path/filepath"
	"regexp"
	"sync"
	"time"

	"github.com/core-tools/hsu-deployer/pkg/container"
	"github.com/core-tools/hsu-deployer/pkg/domain"
	"github.com/core-tools/hsu-deployer/pkg/errors"
	"github.com/core-tools/hsu-deployer/pkg/logging"

	"golang.org/x/sync/singleflight"
)

// DefaultRedeployGracePeriod is how long a missing redeploy resource is
// given to reappear before the application is undeployed.
const DefaultRedeployGracePeriod = 500 * time.Millisecond

type DeployerOptions struct {
	// AppBase holds WARs and expanded directories, defaults to the host's
	AppBase string
	// ConfigBase holds context descriptors named <baseName>.xml
	ConfigBase string

	DeployXML       bool
	CopyXML         bool
	UnpackWARs      bool
	AutoDeploy      bool
	DeployOnStartup bool
	CreateDirs      bool

	// DeployIgnore is matched against app base entry names
	DeployIgnore string
	// ContextClass is the factory class used when a descriptor names none
	ContextClass string

	RedeployGracePeriod     time.Duration
	DefaultWatchedResources []string

	// ContextListeners are attached to every context the deployer creates
	ContextListeners []container.LifecycleListener
}

// Deployer deploys applications found in the app base and config base into
// a host and keeps them in sync with the filesystem.
type Deployer struct {
	options      DeployerOptions
	host         container.Host
	factory      *container.Factory
	registry     *Registry
	metrics      *Metrics
	logger       logging.Logger
	deployIgnore *regexp.Regexp
	contextCfg   *ContextConfig

	autoDeploy      bool
	deployOnStartup bool
	flagsMutex      sync.Mutex

	// serializes resource checks, as they mutate the host and the disk
	checkMutex sync.Mutex
	checkGroup singleflight.Group

	watcher      *ChangeWatcher
	watcherMutex sync.Mutex
}

func NewDeployer(options DeployerOptions, host container.Host, factory *container.Factory, metrics *Metrics, logger logging.Logger) (*Deployer, error) {
	if host == nil {
		return nil, errors.NewValidationError("host cannot be nil", nil)
	}
	if factory == nil {
		factory = container.NewFactory()
	}
	if metrics == nil {
		metrics = NewMetrics(nil)
	}
	if options.AppBase == "" {
		options.AppBase = host.AppBase()
	}
	if options.AppBase == "" {
		return nil, errors.NewValidationError("app base cannot be empty", nil)
	}
	if options.ConfigBase == "" {
		return nil, errors.NewValidationError("config base cannot be empty", nil)
	}
	if options.RedeployGracePeriod < 0 {
		return nil, errors.NewValidationError("redeploy grace period cannot be negative", nil)
	}
	if !factory.Has(options.ContextClass) {
		return nil, errors.NewValidationError("unknown context class", nil).WithContext("context_class", options.ContextClass)
	}

	appBase, err := filepath.Abs(options.AppBase)
	if err != nil {
		return nil, errors.NewIOError("failed to resolve app base", err).WithContext("app_base", options.AppBase)
	}
	configBase, err := filepath.Abs(options.ConfigBase)
	if err != nil {
		return nil, errors.NewIOError("failed to resolve config base", err).WithContext("config_base", options.ConfigBase)
	}
	options.AppBase = appBase
	options.ConfigBase = configBase

	var deployIgnore *regexp.Regexp
	if options.DeployIgnore != "" {
		deployIgnore, err = regexp.Compile("^(?:" + options.DeployIgnore + ")$")
		if err != nil {
			return nil, errors.NewValidationError("invalid deploy ignore pattern", err).WithContext("pattern", options.DeployIgnore)
		}
	}

	d := &Deployer{
		options:         options,
		host:            host,
		factory:         factory,
		registry:        NewRegistry(),
		metrics:         metrics,
		logger:          logger,
		deployIgnore:    deployIgnore,
		autoDeploy:      options.AutoDeploy,
		deployOnStartup: options.DeployOnStartup,
	}
	d.contextCfg = NewContextConfig(appBase, options.UnpackWARs, options.DefaultWatchedResources, logger)
	return d, nil
}

func (d *Deployer) AppBase() string    { return d.options.AppBase }
func (d *Deployer) ConfigBase() string { return d.options.ConfigBase }
func (d *Deployer) Host() container.Host {
	return d.host
}

func (d *Deployer) AutoDeploy() bool {
	d.flagsMutex.Lock()
	defer d.flagsMutex.Unlock()
	return d.autoDeploy
}

func (d *Deployer) DeployOnStartup() bool {
	d.flagsMutex.Lock()
	defer d.flagsMutex.Unlock()
	return d.deployOnStartup
}

// Start prepares the base directories and deploys everything found when
// deploy-on-startup is enabled.
func (d *Deployer) Start(ctx context.Context) error {
	d.logger.Infof("Starting deployer, host: %s, app_base: %s, config_base: %s", d.host.Name(), d.options.AppBase, d.options.ConfigBase)

	if d.options.CreateDirs {
		for _, dir := range []string{d.options.AppBase, d.options.ConfigBase} {
			if err := os.MkdirAll(dir, 0o755); err != nil {
				d.logger.Errorf("Failed to create directory, path: %s, error: %v", dir, err)
			}
		}
	}

	if info, err := os.Stat(d.options.AppBase); err != nil || !info.IsDir() {
		d.logger.Errorf("App base is not a directory, disabling automatic deployment, host: %s, app_base: %s", d.host.Name(), d.options.AppBase)
		d.flagsMutex.Lock()
		d.autoDeploy = false
		d.deployOnStartup = false
		d.flagsMutex.Unlock()
		return errors.NewValidationError("app base is not a directory", err).WithContext("app_base", d.options.AppBase)
	}

	if d.DeployOnStartup() {
		result := newCheckResult("startup")
		d.deployApps(ctx, result)
		d.logger.Infof("Startup deployment finished, deployed: %d, failed: %d", len(result.Deployed), len(result.Failed))
	}
	d.metrics.setDeployed(d.registry.Len())
	return nil
}

// Watch starts filesystem notifications on the app base and the config
// base. Each value received means something changed and a Check is due.
func (d *Deployer) Watch(ctx context.Context, debounce time.Duration) (<-chan struct{}, error) {
	d.watcherMutex.Lock()
	defer d.watcherMutex.Unlock()

	if d.watcher != nil {
		return d.watcher.Events(), nil
	}
	watcher, err := NewChangeWatcher([]string{d.options.AppBase, d.options.ConfigBase}, debounce, d.logger)
	if err != nil {
		return nil, err
	}
	d.watcher = watcher
	go watcher.Run(ctx)
	return watcher.Events(), nil
}

// Stop stops filesystem notifications. Contexts are left to the host,
// registrations and files are kept so that a later Start picks up where it
// left.
func (d *Deployer) Stop(ctx context.Context) {
	d.logger.Infof("Stopping deployer, host: %s", d.host.Name())

	d.watcherMutex.Lock()
	watcher := d.watcher
	d.watcher = nil
	d.watcherMutex.Unlock()

	if watcher != nil {
		if err := watcher.Close(); err != nil {
			d.logger.Warnf("Failed to close filesystem watcher: %v", err)
		}
	}

	d.logger.Infof("Deployer stopped")
}

func (d *Deployer) AddServiced(name string) error {
	return d.registry.AddServiced(name)
}

func (d *Deployer) IsServiced(name string) bool {
	return d.registry.IsServiced(name)
}

func (d *Deployer) RemoveServiced(name string) {
	d.registry.RemoveServiced(name)
}

// IsDeployed reports whether name was deployed by this deployer
func (d *Deployer) IsDeployed(name string) bool {
	return d.registry.Contains(name)
}

// DeploymentTime returns the last (re)deployment time, zero when unknown
func (d *Deployer) DeploymentTime(name string) time.Time {
	app, ok := d.registry.Get(name)
	if !ok {
		return time.Time{}
	}
	return app.Timestamp()
}

// ResetInvalid allows previously rejected artifacts to be tried again
func (d *Deployer) ResetInvalid() {
	d.registry.ResetInvalid()
}

// Applications describes every tracked application
func (d *Deployer) Applications() []domain.ApplicationInfo {
	apps := d.registry.Applications()
	infos := make([]domain.ApplicationInfo, 0, len(apps))
	for _, app := range apps {
		info := domain.ApplicationInfo{
			Name:              app.Name,
			DeployedAt:        app.Timestamp(),
			Serviced:          d.registry.IsServiced(app.Name),
			RedeployResources: make(map[string]int64),
			ReloadResources:   make(map[string]int64),
			State:             "unknown",
		}
		if child := d.host.FindChild(app.Name); child != nil {
			info.Path = child.Path()
			info.Version = child.Version()
			info.State = string(child.State())
			info.DocBase = child.DocBase()
		}
		for _, r := range app.RedeployResources() {
			info.RedeployResources[r.Path] = r.LastModified
		}
		for _, r := range app.ReloadResources() {
			info.ReloadResources[r.Path] = r.LastModified
		}
		infos = append(infos, info)
	}
	return infos
}

// deploymentExists reports whether name is tracked or already a host child
func (d *Deployer) deploymentExists(name string) bool {
	return d.registry.Contains(name) || d.host.FindChild(name) != nil
}

func (d *Deployer) appLogger(name string) logging.Logger {
	display := name
	if display == "" {
		display = "/"
	}
	return logging.WithPrefix(d.logger, "app: "+display+" , ")
}
