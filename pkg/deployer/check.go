package deployer

import (
	"context"
	"time"

	"github.com/core-tools/hsu-deployer/pkg/contextname"
	"github.com/core-tools/hsu-deployer/pkg/expand"
	"github.com/core-tools/hsu-deployer/pkg/logging"

	"github.com/google/uuid"
)

// CheckResult summarizes one reconciliation cycle
type CheckResult struct {
	CycleID    string
	Trigger    string
	Undeployed []string
	Reloaded   []string
	Deployed   []string
	Failed     []string
	// Skipped is set when automatic deployment is disabled
	Skipped  bool
	Duration time.Duration
}

func newCheckResult(trigger string) *CheckResult {
	return &CheckResult{
		CycleID: uuid.NewString(),
		Trigger: trigger,
	}
}

func (r *CheckResult) record(name string, err error) {
	if err != nil {
		r.Failed = append(r.Failed, name)
		return
	}
	r.Deployed = append(r.Deployed, name)
}

// Changed reports whether the cycle altered any application
func (r *CheckResult) Changed() bool {
	return len(r.Undeployed)+len(r.Reloaded)+len(r.Deployed) > 0
}

// Check runs one reconciliation cycle: the watched resources of every
// deployed application not being serviced are checked, then new artifacts
// are deployed. Concurrent callers share the cycle in flight.
func (d *Deployer) Check(ctx context.Context, trigger string) *CheckResult {
	v, _, shared := d.checkGroup.Do("check", func() (interface{}, error) {
		return d.check(ctx, trigger), nil
	})
	result := v.(*CheckResult)
	if shared {
		d.logger.Debugf("Check trigger coalesced, trigger: %s, cycle: %s", trigger, result.CycleID)
	}
	return result
}

func (d *Deployer) check(ctx context.Context, trigger string) *CheckResult {
	result := newCheckResult(trigger)
	if !d.AutoDeploy() {
		result.Skipped = true
		return result
	}

	start := time.Now()
	d.logger.Debugf("Check cycle started, cycle: %s, trigger: %s", result.CycleID, trigger)

	for _, app := range d.registry.Applications() {
		claimed, ok := d.registry.Claim(app.Name)
		if !ok {
			continue
		}
		d.checkResources(ctx, claimed, result)
		d.registry.Release(app.Name)
	}

	d.deployApps(ctx, result)

	result.Duration = time.Since(start)
	d.metrics.observeCheck(result.Duration.Seconds())
	d.metrics.setDeployed(d.registry.Len())

	if result.Changed() || len(result.Failed) > 0 {
		d.logger.Infof("Check cycle finished, cycle: %s, trigger: %s, undeployed: %v, reloaded: %v, deployed: %v, failed: %v, duration: %v",
			result.CycleID, trigger, result.Undeployed, result.Reloaded, result.Deployed, result.Failed, result.Duration)
	} else {
		d.logger.Debugf("Check cycle finished, cycle: %s, duration: %v", result.CycleID, result.Duration)
	}
	return result
}

// CheckApp checks a single application, or deploys it when it is not
// known. It does not consult the serviced set so that an administrative
// operation holding name can use it.
func (d *Deployer) CheckApp(ctx context.Context, name string) *CheckResult {
	name = contextname.NewContextName(name, false).Name
	result := newCheckResult("app")

	if app, ok := d.registry.Get(name); ok {
		d.checkResources(ctx, app, result)
	} else {
		d.deployApp(ctx, name, result)
	}

	d.metrics.setDeployed(d.registry.Len())
	return result
}

// checkResources applies at most one transition to app: an undeploy when a
// redeploy resource changed or disappeared, otherwise a reload when a reload
// resource changed.
func (d *Deployer) checkResources(ctx context.Context, app *DeployedApplication, result *CheckResult) {
	d.checkMutex.Lock()
	defer d.checkMutex.Unlock()

	logger := d.appLogger(app.Name)

	// a cycle holding the lock before us may have redeployed the name
	if current, ok := d.registry.Get(app.Name); !ok || current != app {
		logger.Debugf("Deployment record replaced while waiting, skipping resource check")
		return
	}

	resources := app.RedeployResources()
	for i, resource := range resources {
		logger.Debugf("Checking redeploy resource, path: %s", resource.Path)

		if expand.Exists(resource.Path) {
			if !expand.IsDir(resource.Path) && expand.LastModified(resource.Path) > resource.LastModified {
				logger.Infof("Redeploy resource modified, undeploying, path: %s", resource.Path)
				d.teardown(ctx, app, resources[i+1:], nil, logger)
				d.metrics.recordUndeployment(reasonModified)
				result.Undeployed = append(result.Undeployed, app.Name)
				return
			}
			continue
		}

		// the resource may only be missing while an editor saves it
		if !d.waitGracePeriod(ctx) {
			logger.Debugf("Resource check cancelled, path: %s", resource.Path)
			return
		}
		if expand.Exists(resource.Path) || resource.LastModified == 0 {
			continue
		}

		logger.Infof("Redeploy resource deleted, undeploying, path: %s", resource.Path)
		d.teardown(ctx, app, resources[i+1:], app.ReloadResources(), logger)
		d.metrics.recordUndeployment(reasonDeleted)
		result.Undeployed = append(result.Undeployed, app.Name)
		return
	}

	for _, resource := range app.ReloadResources() {
		logger.Debugf("Checking reload resource, path: %s", resource.Path)

		// a missing resource reports 0, so deletion counts as a change
		current := expand.LastModified(resource.Path)
		if current == resource.LastModified {
			continue
		}

		logger.Infof("Reload resource changed, reloading, path: %s", resource.Path)
		_ = d.reloadContext(ctx, app.Name, logger)
		app.PutReloadResource(resource.Path, current)
		app.touch()
		result.Reloaded = append(result.Reloaded, app.Name)
		return
	}
}

func (d *Deployer) waitGracePeriod(ctx context.Context) bool {
	if d.options.RedeployGracePeriod <= 0 {
		return ctx.Err() == nil
	}
	timer := time.NewTimer(d.options.RedeployGracePeriod)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-timer.C:
		return true
	}
}

// teardown removes app from the host and the registry. Redeploy resources
// under either base are deleted, and so are reload resources under the app
// base or descriptors under the config base.
func (d *Deployer) teardown(ctx context.Context, app *DeployedApplication, redeploy, reload []Resource, logger logging.Logger) {
	if c := d.host.FindChild(app.Name); c != nil {
		if err := d.host.RemoveChild(ctx, c); err != nil {
			logger.Warnf("Failed to remove context from host, error: %v", err)
		}
	}

	for _, resource := range redeploy {
		if d.isDeletable(resource.Path, false, logger) {
			d.deleteResource(resource.Path, logger)
		}
	}
	for _, resource := range reload {
		if d.isDeletable(resource.Path, true, logger) {
			d.deleteResource(resource.Path, logger)
		}
	}

	d.registry.Remove(app.Name)
	d.metrics.setDeployed(d.registry.Len())
}

func (d *Deployer) isDeletable(path string, descriptorsOnly bool, logger logging.Logger) bool {
	inAppBase, err := expand.IsWithin(path, d.options.AppBase)
	if err != nil {
		logger.Warnf("Failed to canonicalize resource, path: %s, error: %v", path, err)
		return false
	}
	if inAppBase {
		return true
	}
	inConfigBase, err := expand.IsWithin(path, d.options.ConfigBase)
	if err != nil {
		logger.Warnf("Failed to canonicalize resource, path: %s, error: %v", path, err)
		return false
	}
	return inConfigBase && (!descriptorsOnly || isXML(path))
}

func (d *Deployer) deleteResource(path string, logger logging.Logger) {
	logger.Debugf("Deleting resource, path: %s", path)
	if err := expand.Delete(path); err != nil {
		logger.Warnf("Failed to delete resource, path: %s, error: %v", path, err)
	}
}

// reloadContext stops and starts the context in place. Start is attempted
// even when stop fails.
func (d *Deployer) reloadContext(ctx context.Context, name string, logger logging.Logger) error {
	c := d.host.FindChild(name)
	if c == nil {
		logger.Warnf("Cannot reload, context is not registered with the host")
		d.metrics.recordReload(outcomeFailure)
		return errNotRegistered(name)
	}

	if c.State().IsAvailable() {
		if err := c.Stop(ctx); err != nil {
			logger.Warnf("Failed to stop context during reload, error: %v", err)
		}
	}
	if err := c.Start(ctx); err != nil {
		logger.Warnf("Failed to start context during reload, error: %v", err)
		d.metrics.recordReload(outcomeFailure)
		return err
	}
	d.metrics.recordReload(outcomeSuccess)
	return nil
}
