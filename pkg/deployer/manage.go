package deployer

import (
	"context"
	"path/filepath"

	"github.com/core-tools/hsu-deployer/pkg/container"
	"github.com/core-tools/hsu-deployer/pkg/contextname"
	"github.com/core-tools/hsu-deployer/pkg/errors"
	"github.com/core-tools/hsu-deployer/pkg/expand"

	"github.com/google/uuid"
)

type listenerAdder interface {
	AddLifecycleListener(listener container.LifecycleListener)
}

func errNotRegistered(name string) error {
	return errors.NewNotFoundError("application is not deployed", nil).WithContext("app", name)
}

// ManageApp registers a context built outside the deployer, e.g. by an
// administrative deploy, and starts watching its resources.
func (d *Deployer) ManageApp(ctx context.Context, c container.Context) error {
	if c == nil {
		return errors.NewValidationError("context cannot be nil", nil)
	}
	name := c.Name()
	logger := d.appLogger(name)

	if d.registry.Contains(name) {
		return nil
	}

	app := NewDeployedApplication(name)
	isWar := false
	if docBase := c.DocBase(); docBase != "" {
		if !filepath.IsAbs(docBase) {
			docBase = filepath.Join(d.options.AppBase, docBase)
		}
		app.PutRedeployResource(docBase, expand.LastModified(docBase))
		isWar = isWAR(docBase)
	}

	if adder, ok := c.(listenerAdder); ok {
		adder.AddLifecycleListener(d.contextCfg)
	}
	if err := d.addChild(ctx, c, logger); err != nil {
		d.metrics.recordDeployment(kindManaged, outcomeFailure)
		return err
	}

	if isWar && d.options.UnpackWARs {
		baseName := contextname.FromPathAndVersion(c.Path(), c.Version()).BaseName
		docBase := filepath.Join(d.options.AppBase, baseName)
		app.PutRedeployResource(docBase, expand.LastModified(docBase))
		d.addWatchedResources(app, docBase, c, logger)
	} else {
		d.addWatchedResources(app, "", c, logger)
	}

	if err := d.register(app); err != nil {
		d.metrics.recordDeployment(kindManaged, outcomeFailure)
		return err
	}
	d.metrics.recordDeployment(kindManaged, outcomeSuccess)
	logger.Infof("Application managed, redeploy_resources: %d, reload_resources: %d", len(app.RedeployResources()), len(app.ReloadResources()))
	return nil
}

// UnmanageApp forgets name and removes it from the host. It only acts while
// name is serviced, which is how administrative undeploys call it.
func (d *Deployer) UnmanageApp(ctx context.Context, name string) error {
	if !d.registry.IsServiced(name) {
		return nil
	}
	d.registry.Remove(name)
	d.metrics.setDeployed(d.registry.Len())

	c := d.host.FindChild(name)
	if c == nil {
		return nil
	}
	return d.host.RemoveChild(ctx, c)
}

// Reload restarts a deployed application in place
func (d *Deployer) Reload(ctx context.Context, name string) error {
	name = contextname.NewContextName(name, false).Name
	operation := uuid.NewString()
	logger := d.appLogger(name)

	if err := d.registry.AddServiced(name); err != nil {
		return err
	}
	defer d.registry.RemoveServiced(name)

	app, ok := d.registry.Get(name)
	if !ok {
		return errNotRegistered(name)
	}

	logger.Infof("Reloading application, operation: %s", operation)
	if err := d.reloadContext(ctx, name, logger); err != nil {
		return errors.NewLifecycleError("failed to reload application", err).
			WithContext("app", name).
			WithContext("operation", operation)
	}
	app.touch()
	return nil
}

// Undeploy removes a deployed application and deletes its artifacts from
// the app base and the config base.
func (d *Deployer) Undeploy(ctx context.Context, name string) error {
	name = contextname.NewContextName(name, false).Name
	operation := uuid.NewString()
	logger := d.appLogger(name)

	if err := d.registry.AddServiced(name); err != nil {
		return err
	}
	defer d.registry.RemoveServiced(name)

	app, ok := d.registry.Get(name)
	if !ok {
		return errNotRegistered(name)
	}

	logger.Infof("Undeploying application, operation: %s", operation)

	d.checkMutex.Lock()
	if current, ok := d.registry.Get(name); !ok || current != app {
		d.checkMutex.Unlock()
		return errNotRegistered(name)
	}
	d.teardown(ctx, app, app.RedeployResources(), app.ReloadResources(), logger)
	d.checkMutex.Unlock()

	d.metrics.recordUndeployment(reasonAdmin)
	logger.Infof("Application undeployed, operation: %s", operation)
	return nil
}
