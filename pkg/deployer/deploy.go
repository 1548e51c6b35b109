package deployer

import (
	"context"
	goerrors "errors"
	"os"
	"path/filepath"

	"github.com/core-tools/hsu-deployer/pkg/container"
	"github.com/core-tools/hsu-deployer/pkg/contextname"
	"github.com/core-tools/hsu-deployer/pkg/descriptor"
	"github.com/core-tools/hsu-deployer/pkg/errors"
	"github.com/core-tools/hsu-deployer/pkg/expand"
	"github.com/core-tools/hsu-deployer/pkg/logging"
)

// deployDescriptor deploys the unit described by configBase/<baseName>.xml
func (d *Deployer) deployDescriptor(ctx context.Context, cn contextname.ContextName, contextXml string) (err error) {
	logger := d.appLogger(cn.Name)
	defer func() { d.finishDeployment(kindDescriptor, contextXml, logger, err) }()

	logger.Infof("Deploying configuration descriptor, path: %s", contextXml)

	desc, err := descriptor.ParseFile(contextXml)
	if err != nil {
		return err
	}

	app := NewDeployedApplication(cn.Name)
	appBase := d.options.AppBase
	docBase := ""
	isExternal := false
	isExternalWar := false

	if desc.DocBase != "" {
		candidate := desc.DocBase
		if !filepath.IsAbs(candidate) {
			candidate = filepath.Join(appBase, candidate)
		}
		within, err := expand.IsWithin(candidate, appBase)
		if err != nil {
			return err
		}
		if !within {
			isExternal = true
			docBase = candidate
			app.PutRedeployResource(contextXml, expand.LastModified(contextXml))
			app.PutRedeployResource(candidate, expand.LastModified(candidate))
			isExternalWar = isWAR(candidate)

			if war := filepath.Join(appBase, cn.BaseName+".war"); expand.Exists(war) {
				logger.Warnf("WAR in app base is hidden by descriptor doc base, war: %s, doc_base: %s", war, candidate)
			}
			if dir := filepath.Join(appBase, cn.BaseName); expand.Exists(dir) {
				logger.Warnf("Directory in app base is hidden by descriptor doc base, dir: %s, doc_base: %s", dir, candidate)
			}
		} else {
			logger.Warnf("Ignoring doc base located inside the app base, doc_base: %s", candidate)
		}
	}

	c, err := d.newContext(desc.ClassName, cn, docBase, contextXml, desc, logger)
	if err != nil {
		return err
	}
	if err := d.addChild(ctx, c, logger); err != nil {
		return err
	}

	expandedDocBase := filepath.Join(appBase, cn.BaseName)
	if current := c.DocBase(); current != "" && !isWAR(current) {
		expandedDocBase = current
		if !filepath.IsAbs(expandedDocBase) {
			expandedDocBase = filepath.Join(appBase, expandedDocBase)
		}
	}

	if isExternalWar {
		if d.options.UnpackWARs {
			app.PutRedeployResource(expandedDocBase, expand.LastModified(expandedDocBase))
			d.addWatchedResources(app, expandedDocBase, c, logger)
		} else {
			d.addWatchedResources(app, "", c, logger)
		}
	} else {
		if !isExternal {
			if war := expandedDocBase + ".war"; expand.Exists(war) {
				app.PutRedeployResource(war, expand.LastModified(war))
			}
		}
		if expand.Exists(expandedDocBase) {
			app.PutRedeployResource(expandedDocBase, expand.LastModified(expandedDocBase))
			d.addWatchedResources(app, expandedDocBase, c, logger)
		} else {
			d.addWatchedResources(app, "", c, logger)
		}
		if !isExternal {
			app.PutRedeployResource(contextXml, expand.LastModified(contextXml))
		}
	}

	return d.register(app)
}

// deployWAR deploys appBase/<baseName>.war
func (d *Deployer) deployWAR(ctx context.Context, cn contextname.ContextName, war string) (err error) {
	logger := d.appLogger(cn.Name)
	defer func() { d.finishDeployment(kindWAR, war, logger, err) }()

	var xml string
	if d.options.CopyXML {
		xml = filepath.Join(d.options.ConfigBase, cn.BaseName+".xml")
	} else {
		xml = filepath.Join(d.options.AppBase, cn.BaseName, filepath.FromSlash(descriptor.ApplicationContextXml))
	}

	xmlInWar := false
	if d.options.DeployXML && !expand.Exists(xml) {
		xmlInWar, err = descriptor.HasArchiveDescriptor(war)
		if err != nil {
			return err
		}
		if xmlInWar && d.options.CopyXML {
			if err := expand.ExtractEntry(war, descriptor.ApplicationContextXml, xml); err != nil {
				logger.Warnf("Failed to copy embedded descriptor, war: %s, dest: %s, error: %v", war, xml, err)
			}
		}
	}

	logger.Infof("Deploying WAR, path: %s", war)

	var desc *descriptor.Descriptor
	configFile := ""
	switch {
	case d.options.DeployXML && expand.Exists(xml):
		desc, err = descriptor.ParseFile(xml)
		if err != nil {
			return err
		}
		configFile = xml
	case d.options.DeployXML && xmlInWar:
		desc, err = descriptor.ParseFromArchive(war)
		if err != nil {
			return err
		}
		configFile = "jar:file:" + filepath.ToSlash(war) + "!/" + descriptor.ApplicationContextXml
	default:
		desc = &descriptor.Descriptor{}
	}

	app := NewDeployedApplication(cn.Name)
	app.PutRedeployResource(war, expand.LastModified(war))
	if d.options.DeployXML && d.options.CopyXML && expand.Exists(xml) {
		app.PutRedeployResource(xml, expand.LastModified(xml))
	}

	c, err := d.newContext(desc.ClassName, cn, cn.BaseName+".war", configFile, desc, logger)
	if err != nil {
		return err
	}
	if err := d.addChild(ctx, c, logger); err != nil {
		return err
	}

	if d.options.UnpackWARs {
		docBase := filepath.Join(d.options.AppBase, cn.BaseName)
		app.PutRedeployResource(docBase, expand.LastModified(docBase))
		d.addWatchedResources(app, docBase, c, logger)
		if d.options.DeployXML && !d.options.CopyXML && (xmlInWar || expand.Exists(xml)) {
			app.PutRedeployResource(xml, expand.LastModified(xml))
		}
	} else {
		d.addWatchedResources(app, "", c, logger)
	}

	return d.register(app)
}

// deployDirectory deploys the expanded application appBase/<baseName>
func (d *Deployer) deployDirectory(ctx context.Context, cn contextname.ContextName, dir string) (err error) {
	logger := d.appLogger(cn.Name)
	defer func() { d.finishDeployment(kindDirectory, dir, logger, err) }()

	logger.Infof("Deploying directory, path: %s", dir)

	xml := filepath.Join(dir, filepath.FromSlash(descriptor.ApplicationContextXml))
	xmlCopy := ""
	configFile := ""
	desc := &descriptor.Descriptor{}

	if d.options.DeployXML && expand.Exists(xml) {
		desc, err = descriptor.ParseFile(xml)
		if err != nil {
			return err
		}
		configFile = xml
		if d.options.CopyXML {
			xmlCopy = filepath.Join(d.options.ConfigBase, cn.BaseName+".xml")
			if err := expand.CopyFile(xml, xmlCopy); err != nil {
				return err
			}
			configFile = xmlCopy
		}
	}

	c, err := d.newContext(desc.ClassName, cn, cn.BaseName, configFile, desc, logger)
	if err != nil {
		return err
	}
	if err := d.addChild(ctx, c, logger); err != nil {
		return err
	}

	app := NewDeployedApplication(cn.Name)
	app.PutRedeployResource(dir, expand.LastModified(dir))
	if d.options.DeployXML && expand.Exists(xml) {
		if xmlCopy == "" {
			app.PutRedeployResource(xml, expand.LastModified(xml))
		} else {
			app.PutRedeployResource(xmlCopy, expand.LastModified(xmlCopy))
		}
	}
	d.addWatchedResources(app, dir, c, logger)

	return d.register(app)
}

func (d *Deployer) newContext(className string, cn contextname.ContextName, docBase, configFile string, desc *descriptor.Descriptor, logger logging.Logger) (container.Context, error) {
	if className == "" {
		className = d.options.ContextClass
	}
	listeners := make([]container.LifecycleListener, 0, len(d.options.ContextListeners)+1)
	listeners = append(listeners, d.contextCfg)
	listeners = append(listeners, d.options.ContextListeners...)

	c, err := d.factory.New(className, container.ContextOptions{
		Name:             cn.Name,
		Path:             cn.Path,
		Version:          cn.Version,
		DocBase:          docBase,
		ConfigFile:       configFile,
		Reloadable:       desc.Reloadable,
		WatchedResources: desc.WatchedResources,
		Listeners:        listeners,
	}, logger)
	if err != nil {
		return nil, errors.NewDeploymentError("failed to create context", err).WithContext("app", cn.DisplayName)
	}
	return c, nil
}

// addChild registers c with the host. A context that was registered but
// failed to start stays deployed so that a later reload can recover it.
func (d *Deployer) addChild(ctx context.Context, c container.Context, logger logging.Logger) error {
	err := d.host.AddChild(ctx, c)
	if err == nil {
		return nil
	}
	if errors.IsConflictError(err) || d.host.FindChild(c.Name()) == nil {
		return errors.NewDeploymentError("failed to add context to host", err).WithContext("app", c.Name())
	}
	logger.Warnf("Context registered but failed to start, error: %v", err)
	return nil
}

// addWatchedResources records the context's watched resources as reload
// resources. Relative resources resolve against docBase and are skipped
// when there is none.
func (d *Deployer) addWatchedResources(app *DeployedApplication, docBase string, c container.Context, logger logging.Logger) {
	for _, resource := range c.WatchedResources() {
		path := filepath.FromSlash(resource)
		if !filepath.IsAbs(path) {
			if docBase == "" {
				logger.Debugf("Ignoring watched resource without doc base, resource: %s", resource)
				continue
			}
			path = filepath.Join(docBase, path)
		}
		app.PutReloadResource(path, expand.LastModified(path))
		logger.Debugf("Watching resource, path: %s", path)
	}
}

func (d *Deployer) register(app *DeployedApplication) error {
	if d.host.FindChild(app.Name) == nil {
		return errors.NewDeploymentError("context is not registered with the host", nil).WithContext("app", app.Name)
	}
	if !d.registry.PutIfAbsent(app) {
		return errors.NewConflictError("application is already deployed", nil).WithContext("app", app.Name)
	}
	d.metrics.setDeployed(d.registry.Len())
	return nil
}

func (d *Deployer) finishDeployment(kind, artifact string, logger logging.Logger, err error) {
	if err == nil {
		d.metrics.recordDeployment(kind, outcomeSuccess)
		logger.Infof("Deployment finished, artifact: %s", artifact)
		return
	}
	d.metrics.recordDeployment(kind, outcomeFailure)
	if goerrors.Is(err, os.ErrNotExist) {
		logger.Warnf("Deployment artifact vanished, artifact: %s, error: %v", artifact, err)
		return
	}
	logger.Errorf("Deployment failed, artifact: %s, error: %v", artifact, err)
}
