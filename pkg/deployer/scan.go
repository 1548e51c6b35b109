package deployer

import (
	"context"
	"os"
	"path/filepath"
	"strings"

	"github.com/core-tools/hsu-deployer/pkg/contextname"
	"github.com/core-tools/hsu-deployer/pkg/expand"
)

// deployApps deploys every artifact not yet known: descriptors from the
// config base first, then WARs, then directories from the app base.
func (d *Deployer) deployApps(ctx context.Context, result *CheckResult) {
	appBaseFiles := d.filterAppPaths(d.listNames(d.options.AppBase))

	d.deployDescriptors(ctx, d.listNames(d.options.ConfigBase), result)
	d.deployWARs(ctx, appBaseFiles, result)
	d.deployDirectories(ctx, appBaseFiles, result)
}

// deployApp deploys the single unit called name, trying its descriptor, its
// WAR and its directory in that order.
func (d *Deployer) deployApp(ctx context.Context, name string, result *CheckResult) {
	cn := contextname.NewContextName(name, false)
	if d.deploymentExists(cn.Name) {
		return
	}

	xml := filepath.Join(d.options.ConfigBase, cn.BaseName+".xml")
	if expand.Exists(xml) {
		result.record(cn.Name, d.deployDescriptor(ctx, cn, xml))
		return
	}

	war := filepath.Join(d.options.AppBase, cn.BaseName+".war")
	if expand.Exists(war) {
		if d.registry.IsInvalid(filepath.Base(war)) || !d.validateWAR(cn, filepath.Base(war)) {
			return
		}
		result.record(cn.Name, d.deployWAR(ctx, cn, war))
		return
	}

	dir := filepath.Join(d.options.AppBase, cn.BaseName)
	if expand.Exists(dir) {
		result.record(cn.Name, d.deployDirectory(ctx, cn, dir))
	}
}

func (d *Deployer) deployDescriptors(ctx context.Context, files []string, result *CheckResult) {
	for _, file := range files {
		contextXml := filepath.Join(d.options.ConfigBase, file)
		if !isXML(file) || !expand.IsFile(contextXml) {
			continue
		}
		cn := contextname.NewContextName(file, true)
		if d.registry.IsServiced(cn.Name) || d.deploymentExists(cn.Name) {
			continue
		}
		result.record(cn.Name, d.deployDescriptor(ctx, cn, contextXml))
	}
}

func (d *Deployer) deployWARs(ctx context.Context, files []string, result *CheckResult) {
	for _, file := range files {
		if isReservedDir(file) {
			continue
		}
		war := filepath.Join(d.options.AppBase, file)
		if !isWAR(file) || !expand.IsFile(war) || d.registry.IsInvalid(file) {
			continue
		}
		cn := contextname.NewContextName(file, true)
		if d.registry.IsServiced(cn.Name) || d.deploymentExists(cn.Name) {
			continue
		}
		if !d.validateWAR(cn, file) {
			continue
		}
		result.record(cn.Name, d.deployWAR(ctx, cn, war))
	}
}

func (d *Deployer) deployDirectories(ctx context.Context, files []string, result *CheckResult) {
	for _, file := range files {
		if isReservedDir(file) {
			continue
		}
		dir := filepath.Join(d.options.AppBase, file)
		if !expand.IsDir(dir) {
			continue
		}
		cn := contextname.NewContextName(file, false)
		if d.registry.IsServiced(cn.Name) || d.deploymentExists(cn.Name) {
			continue
		}
		result.record(cn.Name, d.deployDirectory(ctx, cn, dir))
	}
}

// validateWAR rejects WARs whose name maps outside the app base and
// remembers them so later scans skip them.
func (d *Deployer) validateWAR(cn contextname.ContextName, file string) bool {
	if expand.ValidateContextPath(d.options.AppBase, cn.Path) {
		return true
	}
	d.logger.Errorf("Invalid context path, WAR will not be deployed, war: %s, path: %s", file, cn.Path)
	d.registry.MarkInvalid(file)
	d.metrics.recordDeployment(kindWAR, outcomeInvalid)
	return false
}

// filterAppPaths drops names matched by the deploy ignore pattern
func (d *Deployer) filterAppPaths(names []string) []string {
	if d.deployIgnore == nil {
		return names
	}
	filtered := make([]string, 0, len(names))
	for _, name := range names {
		if d.deployIgnore.MatchString(name) {
			d.logger.Debugf("Ignoring app base entry, name: %s, pattern: %s", name, d.options.DeployIgnore)
			continue
		}
		filtered = append(filtered, name)
	}
	return filtered
}

func (d *Deployer) listNames(dir string) []string {
	entries, err := os.ReadDir(dir)
	if err != nil {
		if !os.IsNotExist(err) {
			d.logger.Warnf("Failed to list directory, path: %s, error: %v", dir, err)
		}
		return nil
	}
	names := make([]string, 0, len(entries))
	for _, entry := range entries {
		names = append(names, entry.Name())
	}
	return names
}

func isReservedDir(name string) bool {
	return strings.EqualFold(name, "META-INF") || strings.EqualFold(name, "WEB-INF")
}
