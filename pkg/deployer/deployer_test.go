package deployer

import (
	"archive/zip"
	"context"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/core-tools/hsu-deployer/pkg/container"
	"github.com/core-tools/hsu-deployer/pkg/errors"
	"github.com/core-tools/hsu-deployer/pkg/expand"
	"github.com/core-tools/hsu-deployer/pkg/logging"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const webXml = `<web-app/>`

type testEnv struct {
	appBase    string
	configBase string
	host       *container.StandardHost
	deployer   *Deployer
}

func newTestEnv(t *testing.T, mutate func(*DeployerOptions)) *testEnv {
	t.Helper()
	root := t.TempDir()
	appBase := filepath.Join(root, "webapps")
	configBase := filepath.Join(root, "conf", "Catalina", "localhost")
	require.NoError(t, os.MkdirAll(appBase, 0o755))
	require.NoError(t, os.MkdirAll(configBase, 0o755))

	options := DeployerOptions{
		AppBase:                 appBase,
		ConfigBase:              configBase,
		DeployXML:               true,
		UnpackWARs:              true,
		AutoDeploy:              true,
		DeployOnStartup:         true,
		ContextClass:            container.DefaultClassName,
		RedeployGracePeriod:     10 * time.Millisecond,
		DefaultWatchedResources: []string{DefaultWatchedResource},
	}
	if mutate != nil {
		mutate(&options)
	}

	host := container.NewStandardHost("localhost", appBase, logging.NewNopLogger())
	d, err := NewDeployer(options, host, nil, NewMetrics(prometheus.NewRegistry()), logging.NewNopLogger())
	require.NoError(t, err)

	return &testEnv{
		appBase:    d.AppBase(),
		configBase: d.ConfigBase(),
		host:       host,
		deployer:   d,
	}
}

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
}

func writeWar(t *testing.T, path string, entries map[string]string) {
	t.Helper()
	file, err := os.Create(path)
	require.NoError(t, err)
	defer file.Close()

	w := zip.NewWriter(file)
	for name, content := range entries {
		entry, err := w.Create(name)
		require.NoError(t, err)
		_, err = entry.Write([]byte(content))
		require.NoError(t, err)
	}
	require.NoError(t, w.Close())
}

// bump moves the modification time of path one hour ahead
func bump(t *testing.T, path string) int64 {
	t.Helper()
	at := time.Now().Add(time.Hour)
	require.NoError(t, os.Chtimes(path, at, at))
	return expand.LastModified(path)
}

func (e *testEnv) start(t *testing.T) {
	t.Helper()
	require.NoError(t, e.deployer.Start(context.Background()))
}

func (e *testEnv) check(t *testing.T) *CheckResult {
	t.Helper()
	result := e.deployer.Check(context.Background(), "test")
	require.NotNil(t, result)
	return result
}

func (e *testEnv) app(t *testing.T, name string) *DeployedApplication {
	t.Helper()
	app, ok := e.deployer.registry.Get(name)
	require.True(t, ok, "application %q is not deployed", name)
	return app
}

func resourcePaths(resources []Resource) []string {
	paths := make([]string, 0, len(resources))
	for _, r := range resources {
		paths = append(paths, r.Path)
	}
	return paths
}

func TestNewDeployer_Validation(t *testing.T) {
	host := container.NewStandardHost("localhost", "", logging.NewNopLogger())

	_, err := NewDeployer(DeployerOptions{ConfigBase: "conf"}, host, nil, nil, logging.NewNopLogger())
	assert.True(t, errors.IsValidationError(err))

	_, err = NewDeployer(DeployerOptions{AppBase: "webapps", ConfigBase: "conf", DeployIgnore: "("}, host, nil, nil, logging.NewNopLogger())
	assert.True(t, errors.IsValidationError(err))

	_, err = NewDeployer(DeployerOptions{AppBase: "webapps", ConfigBase: "conf", ContextClass: "missing"}, host, nil, nil, logging.NewNopLogger())
	assert.True(t, errors.IsValidationError(err))

	_, err = NewDeployer(DeployerOptions{AppBase: "webapps", ConfigBase: "conf", RedeployGracePeriod: -time.Second}, host, nil, nil, logging.NewNopLogger())
	assert.True(t, errors.IsValidationError(err))
}

func TestDeployDirectory(t *testing.T) {
	env := newTestEnv(t, nil)
	dir := filepath.Join(env.appBase, "shop")
	writeFile(t, filepath.Join(dir, "WEB-INF", "web.xml"), webXml)

	env.start(t)

	app := env.app(t, "/shop")
	assert.Equal(t, []string{dir}, resourcePaths(app.RedeployResources()))

	reload := app.ReloadResources()
	require.Len(t, reload, 1)
	assert.Equal(t, filepath.Join(dir, "WEB-INF", "web.xml"), reload[0].Path)
	assert.NotZero(t, reload[0].LastModified)

	child := env.host.FindChild("/shop")
	require.NotNil(t, child)
	assert.Equal(t, container.StateStarted, child.State())
	assert.Equal(t, dir, child.DocBase())
	assert.True(t, env.deployer.IsDeployed("/shop"))
	assert.False(t, env.deployer.DeploymentTime("/shop").IsZero())
	assert.Equal(t, 1.0, testutil.ToFloat64(env.deployer.metrics.deployments.WithLabelValues(kindDirectory, outcomeSuccess)))
	assert.Equal(t, 1.0, testutil.ToFloat64(env.deployer.metrics.deployed))
}

func TestDeployDirectory_WithDescriptor(t *testing.T) {
	env := newTestEnv(t, func(o *DeployerOptions) { o.CopyXML = true })
	dir := filepath.Join(env.appBase, "shop")
	contextXml := filepath.Join(dir, "META-INF", "context.xml")
	writeFile(t, contextXml, `<Context reloadable="true"><WatchedResource>/etc/shop.properties</WatchedResource></Context>`)

	env.start(t)

	copied := filepath.Join(env.configBase, "shop.xml")
	assert.FileExists(t, copied)

	app := env.app(t, "/shop")
	assert.Equal(t, []string{dir, copied}, resourcePaths(app.RedeployResources()))
	assert.Equal(t,
		[]string{filepath.FromSlash("/etc/shop.properties"), filepath.Join(dir, "WEB-INF", "web.xml")},
		resourcePaths(app.ReloadResources()))

	child := env.host.FindChild("/shop")
	require.NotNil(t, child)
	assert.True(t, child.Reloadable())
	assert.Equal(t, copied, child.ConfigFile())
}

func TestDeployWAR_Unpacked(t *testing.T) {
	env := newTestEnv(t, nil)
	war := filepath.Join(env.appBase, "shop.war")
	writeWar(t, war, map[string]string{"WEB-INF/web.xml": webXml, "index.html": "hello"})

	env.start(t)

	expanded := filepath.Join(env.appBase, "shop")
	assert.FileExists(t, filepath.Join(expanded, "index.html"))
	assert.FileExists(t, filepath.Join(expanded, filepath.FromSlash(expand.TrackerFile)))

	app := env.app(t, "/shop")
	assert.Equal(t, []string{war, expanded}, resourcePaths(app.RedeployResources()))
	assert.Equal(t, []string{filepath.Join(expanded, "WEB-INF", "web.xml")}, resourcePaths(app.ReloadResources()))

	child := env.host.FindChild("/shop")
	require.NotNil(t, child)
	assert.Equal(t, expanded, child.DocBase())
	assert.Equal(t, 1, env.deployer.registry.Len(), "expanded directory must not be deployed again")
}

func TestDeployWAR_Packed(t *testing.T) {
	env := newTestEnv(t, func(o *DeployerOptions) { o.UnpackWARs = false })
	war := filepath.Join(env.appBase, "shop.war")
	writeWar(t, war, map[string]string{"WEB-INF/web.xml": webXml})

	env.start(t)

	assert.NoDirExists(t, filepath.Join(env.appBase, "shop"))
	app := env.app(t, "/shop")
	assert.Equal(t, []string{war}, resourcePaths(app.RedeployResources()))
	assert.Empty(t, app.ReloadResources(), "relative watched resources need a doc base")
}

func TestDeployWAR_EmbeddedDescriptorCopied(t *testing.T) {
	env := newTestEnv(t, func(o *DeployerOptions) { o.CopyXML = true })
	war := filepath.Join(env.appBase, "shop.war")
	writeWar(t, war, map[string]string{
		"META-INF/context.xml": `<Context reloadable="true"/>`,
		"WEB-INF/web.xml":      webXml,
	})

	env.start(t)

	xml := filepath.Join(env.configBase, "shop.xml")
	assert.FileExists(t, xml)

	app := env.app(t, "/shop")
	assert.Equal(t, []string{war, xml, filepath.Join(env.appBase, "shop")}, resourcePaths(app.RedeployResources()))

	child := env.host.FindChild("/shop")
	require.NotNil(t, child)
	assert.True(t, child.Reloadable())
	assert.Equal(t, xml, child.ConfigFile())
}

func TestDeployWAR_EmbeddedDescriptorInPlace(t *testing.T) {
	env := newTestEnv(t, nil)
	war := filepath.Join(env.appBase, "shop.war")
	writeWar(t, war, map[string]string{
		"META-INF/context.xml": `<Context reloadable="true"/>`,
		"WEB-INF/web.xml":      webXml,
	})

	env.start(t)

	expanded := filepath.Join(env.appBase, "shop")
	xml := filepath.Join(expanded, "META-INF", "context.xml")
	app := env.app(t, "/shop")
	assert.Equal(t, []string{war, expanded, xml}, resourcePaths(app.RedeployResources()))
	assert.NoFileExists(t, filepath.Join(env.configBase, "shop.xml"))
}

func TestDeployDescriptor_ExternalDocBase(t *testing.T) {
	env := newTestEnv(t, nil)
	external := filepath.Join(t.TempDir(), "external-app")
	writeFile(t, filepath.Join(external, "WEB-INF", "web.xml"), webXml)
	contextXml := filepath.Join(env.configBase, "ext.xml")
	writeFile(t, contextXml, `<Context docBase="`+external+`"/>`)

	env.start(t)

	app := env.app(t, "/ext")
	assert.Equal(t, []string{contextXml, external}, resourcePaths(app.RedeployResources()))
	assert.Equal(t, []string{filepath.Join(external, "WEB-INF", "web.xml")}, resourcePaths(app.ReloadResources()))
	assert.Equal(t, 1.0, testutil.ToFloat64(env.deployer.metrics.deployments.WithLabelValues(kindDescriptor, outcomeSuccess)))
}

func TestDeployDescriptor_LocalDocBaseIgnored(t *testing.T) {
	env := newTestEnv(t, nil)
	dir := filepath.Join(env.appBase, "inner")
	writeFile(t, filepath.Join(dir, "WEB-INF", "web.xml"), webXml)
	contextXml := filepath.Join(env.configBase, "inner.xml")
	writeFile(t, contextXml, `<Context docBase="inner"/>`)

	env.start(t)

	app := env.app(t, "/inner")
	assert.Equal(t, []string{dir, contextXml}, resourcePaths(app.RedeployResources()))
	assert.Equal(t, 1, env.deployer.registry.Len(), "descriptor wins over the directory")
}

func TestDeployDescriptor_ParseFailureIsRetried(t *testing.T) {
	env := newTestEnv(t, nil)
	contextXml := filepath.Join(env.configBase, "broken.xml")
	writeFile(t, contextXml, `<Context`)

	env.start(t)
	assert.False(t, env.deployer.IsDeployed("/broken"))
	assert.Nil(t, env.host.FindChild("/broken"))
	assert.Equal(t, 1.0, testutil.ToFloat64(env.deployer.metrics.deployments.WithLabelValues(kindDescriptor, outcomeFailure)))

	external := filepath.Join(t.TempDir(), "fixed")
	require.NoError(t, os.MkdirAll(external, 0o755))
	writeFile(t, contextXml, `<Context docBase="`+external+`"/>`)

	result := env.check(t)
	assert.Equal(t, []string{"/broken"}, result.Deployed)
	assert.True(t, env.deployer.IsDeployed("/broken"))
}

func TestDeployApps_RootAndNested(t *testing.T) {
	env := newTestEnv(t, nil)
	require.NoError(t, os.MkdirAll(filepath.Join(env.appBase, "ROOT"), 0o755))
	require.NoError(t, os.MkdirAll(filepath.Join(env.appBase, "shop#admin"), 0o755))
	require.NoError(t, os.MkdirAll(filepath.Join(env.appBase, "shop##2"), 0o755))

	env.start(t)

	assert.True(t, env.deployer.IsDeployed(""))
	assert.True(t, env.deployer.IsDeployed("/shop/admin"))
	assert.True(t, env.deployer.IsDeployed("/shop##2"))

	child := env.host.FindChild("/shop##2")
	require.NotNil(t, child)
	assert.Equal(t, "/shop", child.Path())
	assert.Equal(t, "2", child.Version())
}

func TestDeployApps_SkipsReservedAndIgnored(t *testing.T) {
	env := newTestEnv(t, func(o *DeployerOptions) { o.DeployIgnore = "tmp-.*" })
	require.NoError(t, os.MkdirAll(filepath.Join(env.appBase, "META-INF"), 0o755))
	require.NoError(t, os.MkdirAll(filepath.Join(env.appBase, "web-inf"), 0o755))
	require.NoError(t, os.MkdirAll(filepath.Join(env.appBase, "tmp-upload"), 0o755))
	require.NoError(t, os.MkdirAll(filepath.Join(env.appBase, "shop"), 0o755))
	writeFile(t, filepath.Join(env.appBase, "notes.txt"), "not an application")

	env.start(t)

	assert.Equal(t, 1, env.deployer.registry.Len())
	assert.True(t, env.deployer.IsDeployed("/shop"))
}

func TestDeployApps_RejectsPathTraversal(t *testing.T) {
	env := newTestEnv(t, nil)
	evil := "..#evil.war"
	writeWar(t, filepath.Join(env.appBase, evil), map[string]string{"index.html": "x"})

	env.start(t)
	assert.Equal(t, 0, env.deployer.registry.Len())
	assert.True(t, env.deployer.registry.IsInvalid(evil))

	env.check(t)
	env.check(t)
	assert.Equal(t, 1.0, testutil.ToFloat64(env.deployer.metrics.deployments.WithLabelValues(kindWAR, outcomeInvalid)),
		"invalid WARs are classified once")
	assert.NoDirExists(t, filepath.Join(filepath.Dir(env.appBase), "evil"))

	env.deployer.ResetInvalid()
	assert.False(t, env.deployer.registry.IsInvalid(evil))
}

func TestCheckApp_InvalidWARIsNotRevalidated(t *testing.T) {
	env := newTestEnv(t, nil)
	writeWar(t, filepath.Join(env.appBase, "a#..#b.war"), map[string]string{"index.html": "x"})
	env.start(t)
	require.True(t, env.deployer.registry.IsInvalid("a#..#b.war"))

	for i := 0; i < 3; i++ {
		result := env.deployer.CheckApp(context.Background(), "a#..#b")
		assert.Empty(t, result.Deployed)
		assert.Empty(t, result.Failed)
	}
	assert.Equal(t, 1.0, testutil.ToFloat64(env.deployer.metrics.deployments.WithLabelValues(kindWAR, outcomeInvalid)))
	assert.Equal(t, 0, env.deployer.registry.Len())
}

func TestDeployApp_IsIdempotent(t *testing.T) {
	env := newTestEnv(t, func(o *DeployerOptions) { o.DeployOnStartup = false })
	require.NoError(t, os.MkdirAll(filepath.Join(env.appBase, "shop"), 0o755))
	env.start(t)
	require.False(t, env.deployer.IsDeployed("/shop"))

	first := env.deployer.CheckApp(context.Background(), "/shop")
	assert.Equal(t, []string{"/shop"}, first.Deployed)
	deployedAt := env.deployer.DeploymentTime("/shop")

	second := env.deployer.CheckApp(context.Background(), "shop")
	assert.Empty(t, second.Deployed)
	assert.Empty(t, second.Failed)
	assert.Equal(t, deployedAt, env.deployer.DeploymentTime("/shop"))
	assert.Len(t, env.host.Children(), 1)
}

func TestCheck_ModifiedWARRedeploys(t *testing.T) {
	env := newTestEnv(t, nil)
	war := filepath.Join(env.appBase, "shop.war")
	writeWar(t, war, map[string]string{"WEB-INF/web.xml": webXml, "index.html": "v1"})
	env.start(t)
	before := env.host.FindChild("/shop")
	require.NotNil(t, before)

	writeWar(t, war, map[string]string{"WEB-INF/web.xml": webXml, "index.html": "v2"})
	modified := bump(t, war)

	result := env.check(t)
	assert.Equal(t, []string{"/shop"}, result.Undeployed)
	assert.Equal(t, []string{"/shop"}, result.Deployed)
	assert.Equal(t, container.StateDestroyed, before.State())

	after := env.host.FindChild("/shop")
	require.NotNil(t, after)
	assert.NotSame(t, before, after)

	app := env.app(t, "/shop")
	assert.Equal(t, modified, app.RedeployResources()[0].LastModified)

	content, err := os.ReadFile(filepath.Join(env.appBase, "shop", "index.html"))
	require.NoError(t, err)
	assert.Equal(t, "v2", string(content))
	assert.Equal(t, 1.0, testutil.ToFloat64(env.deployer.metrics.undeployments.WithLabelValues(reasonModified)))
}

func TestCheckResources_SkipsReplacedRecord(t *testing.T) {
	env := newTestEnv(t, func(o *DeployerOptions) { o.UnpackWARs = false })
	war := filepath.Join(env.appBase, "shop.war")
	writeWar(t, war, map[string]string{"WEB-INF/web.xml": webXml})
	env.start(t)
	stale := env.app(t, "/shop")

	bump(t, war)
	result := env.check(t)
	require.Equal(t, []string{"/shop"}, result.Undeployed)
	require.Equal(t, []string{"/shop"}, result.Deployed)
	current := env.app(t, "/shop")
	require.NotSame(t, stale, current)
	child := env.host.FindChild("/shop")
	require.NotNil(t, child)

	// the stale record still sees the WAR as modified
	result = newCheckResult("test")
	env.deployer.checkResources(context.Background(), stale, result)

	assert.Empty(t, result.Undeployed)
	assert.Same(t, current, env.app(t, "/shop"))
	assert.Same(t, child, env.host.FindChild("/shop"))
	assert.Equal(t, container.StateStarted, child.State())
	assert.FileExists(t, war)
}

func TestUnmanageApp(t *testing.T) {
	env := newTestEnv(t, nil)
	dir := filepath.Join(env.appBase, "shop")
	writeFile(t, filepath.Join(dir, "WEB-INF", "web.xml"), webXml)
	env.start(t)
	child := env.host.FindChild("/shop")
	require.NotNil(t, child)

	require.NoError(t, env.deployer.UnmanageApp(context.Background(), "/shop"))
	assert.True(t, env.deployer.IsDeployed("/shop"), "only serviced applications are unmanaged")
	assert.Same(t, child, env.host.FindChild("/shop"))

	require.NoError(t, env.deployer.AddServiced("/shop"))
	require.NoError(t, env.deployer.UnmanageApp(context.Background(), "/shop"))
	env.deployer.RemoveServiced("/shop")

	assert.False(t, env.deployer.IsDeployed("/shop"))
	assert.Nil(t, env.host.FindChild("/shop"))
	assert.Equal(t, container.StateDestroyed, child.State())
	assert.DirExists(t, dir, "unmanaging leaves files on disk")
}

func TestCheck_DeletedWARUndeploysAndCleansUp(t *testing.T) {
	env := newTestEnv(t, nil)
	war := filepath.Join(env.appBase, "shop.war")
	writeWar(t, war, map[string]string{"WEB-INF/web.xml": webXml})
	env.start(t)
	child := env.host.FindChild("/shop")
	require.NotNil(t, child)

	require.NoError(t, os.Remove(war))

	result := env.check(t)
	assert.Equal(t, []string{"/shop"}, result.Undeployed)
	assert.Empty(t, result.Deployed)
	assert.False(t, env.deployer.IsDeployed("/shop"))
	assert.Nil(t, env.host.FindChild("/shop"))
	assert.Equal(t, container.StateDestroyed, child.State())
	assert.NoDirExists(t, filepath.Join(env.appBase, "shop"), "expanded directory is removed")
	assert.DirExists(t, env.appBase)
	assert.Equal(t, 1.0, testutil.ToFloat64(env.deployer.metrics.undeployments.WithLabelValues(reasonDeleted)))
	assert.Equal(t, 0.0, testutil.ToFloat64(env.deployer.metrics.deployed))
}

func TestCheck_DeletedDescriptorKeepsExternalFiles(t *testing.T) {
	env := newTestEnv(t, nil)
	external := filepath.Join(t.TempDir(), "external-app")
	webXmlPath := filepath.Join(external, "WEB-INF", "web.xml")
	writeFile(t, webXmlPath, webXml)
	contextXml := filepath.Join(env.configBase, "ext.xml")
	writeFile(t, contextXml, `<Context docBase="`+external+`"/>`)
	env.start(t)

	require.NoError(t, os.Remove(contextXml))

	result := env.check(t)
	assert.Equal(t, []string{"/ext"}, result.Undeployed)
	assert.False(t, env.deployer.IsDeployed("/ext"))
	assert.FileExists(t, webXmlPath, "files outside the bases are never deleted")
}

func TestCheck_DirectoryModificationIsIgnored(t *testing.T) {
	env := newTestEnv(t, nil)
	dir := filepath.Join(env.appBase, "shop")
	require.NoError(t, os.MkdirAll(dir, 0o755))
	env.start(t)
	deployedAt := env.deployer.DeploymentTime("/shop")

	bump(t, dir)

	result := env.check(t)
	assert.Empty(t, result.Undeployed)
	assert.Empty(t, result.Reloaded)
	assert.Equal(t, deployedAt, env.deployer.DeploymentTime("/shop"))
}

func TestCheck_MissingResourceWithinGracePeriod(t *testing.T) {
	env := newTestEnv(t, func(o *DeployerOptions) { o.RedeployGracePeriod = 500 * time.Millisecond })
	war := filepath.Join(env.appBase, "shop.war")
	writeWar(t, war, map[string]string{"WEB-INF/web.xml": webXml})
	env.start(t)

	saved := war + ".saving"
	require.NoError(t, os.Rename(war, saved))
	go func() {
		time.Sleep(50 * time.Millisecond)
		_ = os.Rename(saved, war)
	}()

	result := env.check(t)
	assert.Empty(t, result.Undeployed)
	assert.True(t, env.deployer.IsDeployed("/shop"))
	assert.NotNil(t, env.host.FindChild("/shop"))
}

func TestCheck_MissingResourceNeverSeenIsIgnored(t *testing.T) {
	env := newTestEnv(t, nil)
	env.start(t)

	missing := filepath.Join(env.appBase, "managed")
	c := container.NewStandardContext(container.ContextOptions{
		Name:    "/managed",
		Path:    "/managed",
		DocBase: missing,
	}, logging.NewNopLogger())
	require.NoError(t, env.deployer.ManageApp(context.Background(), c))

	app := env.app(t, "/managed")
	require.Len(t, app.RedeployResources(), 1)
	assert.Zero(t, app.RedeployResources()[0].LastModified)
	assert.Equal(t, container.StateFailed, c.State(), "start failed but the unit stays deployed")

	result := env.check(t)
	assert.Empty(t, result.Undeployed)
	assert.True(t, env.deployer.IsDeployed("/managed"))
}

func TestCheck_ReloadResourceChanged(t *testing.T) {
	env := newTestEnv(t, nil)
	dir := filepath.Join(env.appBase, "shop")
	webXmlPath := filepath.Join(dir, "WEB-INF", "web.xml")
	writeFile(t, webXmlPath, webXml)
	env.start(t)
	child := env.host.FindChild("/shop").(*container.StandardContext)
	deployedAt := env.deployer.DeploymentTime("/shop")

	modified := bump(t, webXmlPath)

	result := env.check(t)
	assert.Equal(t, []string{"/shop"}, result.Reloaded)
	assert.Empty(t, result.Undeployed)
	assert.Same(t, child, env.host.FindChild("/shop"))
	assert.Equal(t, container.StateStarted, child.State())
	assert.Equal(t, modified, env.app(t, "/shop").ReloadResources()[0].LastModified)
	assert.False(t, env.deployer.DeploymentTime("/shop").Before(deployedAt))

	var stops int
	for _, transition := range child.History() {
		if transition.To == container.StateStopped {
			stops++
		}
	}
	assert.Equal(t, 1, stops)

	result = env.check(t)
	assert.Empty(t, result.Reloaded, "unchanged resources do not reload again")
	assert.Equal(t, 1.0, testutil.ToFloat64(env.deployer.metrics.reloads.WithLabelValues(outcomeSuccess)))
}

type failingStopListener struct {
	failures int
	stops    int
}

func (l *failingStopListener) OnStart(ctx context.Context, c container.Context) error {
	return nil
}

func (l *failingStopListener) OnStop(ctx context.Context, c container.Context) error {
	l.stops++
	if l.stops <= l.failures {
		return errors.NewLifecycleError("context refused to stop", nil)
	}
	return nil
}

func TestCheck_ReloadStartsAfterStopFailure(t *testing.T) {
	listener := &failingStopListener{failures: 1}
	env := newTestEnv(t, func(o *DeployerOptions) {
		o.ContextListeners = []container.LifecycleListener{listener}
	})
	webXmlPath := filepath.Join(env.appBase, "shop", "WEB-INF", "web.xml")
	writeFile(t, webXmlPath, webXml)
	env.start(t)
	child := env.host.FindChild("/shop").(*container.StandardContext)

	modified := bump(t, webXmlPath)

	result := env.check(t)
	assert.Equal(t, []string{"/shop"}, result.Reloaded)
	assert.Equal(t, 1, listener.stops)
	assert.Same(t, child, env.host.FindChild("/shop"))
	assert.Equal(t, container.StateStarted, child.State())
	assert.Equal(t, modified, env.app(t, "/shop").ReloadResources()[0].LastModified)

	var failed bool
	for _, transition := range child.History() {
		if transition.From == container.StateStopping && transition.To == container.StateFailed {
			failed = true
		}
	}
	assert.True(t, failed, "the stop failure is recorded before the restart")
	assert.Equal(t, 1.0, testutil.ToFloat64(env.deployer.metrics.reloads.WithLabelValues(outcomeSuccess)))
}

func TestCheck_ReloadResourceDeleted(t *testing.T) {
	env := newTestEnv(t, nil)
	dir := filepath.Join(env.appBase, "shop")
	webXmlPath := filepath.Join(dir, "WEB-INF", "web.xml")
	writeFile(t, webXmlPath, webXml)
	env.start(t)

	require.NoError(t, os.Remove(webXmlPath))

	result := env.check(t)
	assert.Equal(t, []string{"/shop"}, result.Reloaded)
	assert.Zero(t, env.app(t, "/shop").ReloadResources()[0].LastModified)

	result = env.check(t)
	assert.Empty(t, result.Reloaded)

	writeFile(t, webXmlPath, webXml)
	result = env.check(t)
	assert.Equal(t, []string{"/shop"}, result.Reloaded, "a reappearing resource reloads too")
}

func TestCheck_ServicedApplicationsAreSkipped(t *testing.T) {
	env := newTestEnv(t, nil)
	dir := filepath.Join(env.appBase, "shop")
	require.NoError(t, os.MkdirAll(dir, 0o755))
	env.start(t)

	require.NoError(t, env.deployer.AddServiced("/shop"))
	require.NoError(t, os.RemoveAll(dir))

	result := env.check(t)
	assert.Empty(t, result.Undeployed)
	assert.True(t, env.deployer.IsDeployed("/shop"))
	assert.NotNil(t, env.host.FindChild("/shop"))

	env.deployer.RemoveServiced("/shop")
	result = env.check(t)
	assert.Equal(t, []string{"/shop"}, result.Undeployed)
	assert.False(t, env.deployer.IsDeployed("/shop"))
}

func TestCheck_ServicedNamesAreNotDiscovered(t *testing.T) {
	env := newTestEnv(t, func(o *DeployerOptions) { o.DeployOnStartup = false })
	require.NoError(t, os.MkdirAll(filepath.Join(env.appBase, "shop"), 0o755))
	env.start(t)

	require.NoError(t, env.deployer.AddServiced("/shop"))
	env.check(t)
	assert.False(t, env.deployer.IsDeployed("/shop"))

	env.deployer.RemoveServiced("/shop")
	env.check(t)
	assert.True(t, env.deployer.IsDeployed("/shop"))
}

func TestCheck_AutoDeployDisabled(t *testing.T) {
	env := newTestEnv(t, func(o *DeployerOptions) { o.AutoDeploy = false })
	require.NoError(t, os.MkdirAll(filepath.Join(env.appBase, "shop"), 0o755))
	env.start(t)
	require.True(t, env.deployer.IsDeployed("/shop"))

	require.NoError(t, os.MkdirAll(filepath.Join(env.appBase, "blog"), 0o755))
	result := env.check(t)
	assert.True(t, result.Skipped)
	assert.False(t, env.deployer.IsDeployed("/blog"))
}

func TestCheck_ConcurrentTriggers(t *testing.T) {
	env := newTestEnv(t, nil)
	require.NoError(t, os.MkdirAll(filepath.Join(env.appBase, "shop"), 0o755))
	require.NoError(t, env.deployer.Start(context.Background()))

	var wg sync.WaitGroup
	results := make([]*CheckResult, 8)
	for i := range results {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			results[i] = env.deployer.Check(context.Background(), "concurrent")
		}(i)
	}
	wg.Wait()

	for _, result := range results {
		require.NotNil(t, result)
		assert.Empty(t, result.Undeployed)
	}
	assert.Len(t, env.host.Children(), 1)
	assert.Empty(t, env.deployer.registry.Serviced(), "claims are released")
}

func TestStart_MissingAppBaseDisablesAutoDeploy(t *testing.T) {
	root := t.TempDir()
	host := container.NewStandardHost("localhost", "", logging.NewNopLogger())
	d, err := NewDeployer(DeployerOptions{
		AppBase:         filepath.Join(root, "missing"),
		ConfigBase:      filepath.Join(root, "conf"),
		AutoDeploy:      true,
		DeployOnStartup: true,
	}, host, nil, nil, logging.NewNopLogger())
	require.NoError(t, err)

	err = d.Start(context.Background())
	assert.True(t, errors.IsValidationError(err))
	assert.False(t, d.AutoDeploy())
	assert.False(t, d.DeployOnStartup())
	assert.True(t, d.Check(context.Background(), "test").Skipped)
}

func TestStart_CreateDirs(t *testing.T) {
	root := t.TempDir()
	host := container.NewStandardHost("localhost", filepath.Join(root, "webapps"), logging.NewNopLogger())
	d, err := NewDeployer(DeployerOptions{
		ConfigBase: filepath.Join(root, "conf"),
		CreateDirs: true,
		AutoDeploy: true,
	}, host, nil, nil, logging.NewNopLogger())
	require.NoError(t, err)

	require.NoError(t, d.Start(context.Background()))
	assert.DirExists(t, filepath.Join(root, "webapps"))
	assert.DirExists(t, filepath.Join(root, "conf"))
	assert.True(t, d.AutoDeploy())
}

func TestStop_LeavesContextsToHost(t *testing.T) {
	env := newTestEnv(t, nil)
	require.NoError(t, os.MkdirAll(filepath.Join(env.appBase, "shop"), 0o755))
	env.start(t)

	changes, err := env.deployer.Watch(context.Background(), 10*time.Millisecond)
	require.NoError(t, err)
	require.NotNil(t, changes)

	env.deployer.Stop(context.Background())

	child := env.host.FindChild("/shop")
	require.NotNil(t, child)
	assert.Equal(t, container.StateStarted, child.State())
	assert.True(t, env.deployer.IsDeployed("/shop"))
	assert.Nil(t, env.deployer.watcher)

	// stopping twice is harmless
	env.deployer.Stop(context.Background())

	require.NoError(t, env.host.Stop(context.Background()))
	assert.Equal(t, container.StateStopped, child.State())
}

func TestWatch_ReportsNewArtifacts(t *testing.T) {
	env := newTestEnv(t, nil)
	env.start(t)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	changes, err := env.deployer.Watch(ctx, 20*time.Millisecond)
	require.NoError(t, err)
	defer env.deployer.Stop(context.Background())

	again, err := env.deployer.Watch(ctx, 20*time.Millisecond)
	require.NoError(t, err)
	assert.Equal(t, changes, again)

	writeWar(t, filepath.Join(env.appBase, "shop.war"), map[string]string{"WEB-INF/web.xml": webXml})

	select {
	case <-changes:
	case <-time.After(5 * time.Second):
		t.Fatal("expected a change notification")
	}
	result := env.check(t)
	assert.Equal(t, []string{"/shop"}, result.Deployed)
}

func TestApplications(t *testing.T) {
	env := newTestEnv(t, nil)
	writeFile(t, filepath.Join(env.appBase, "shop", "WEB-INF", "web.xml"), webXml)
	require.NoError(t, os.MkdirAll(filepath.Join(env.appBase, "ROOT"), 0o755))
	env.start(t)
	require.NoError(t, env.deployer.AddServiced("/shop"))

	apps := env.deployer.Applications()
	require.Len(t, apps, 2)

	assert.Equal(t, "", apps[0].Name)
	assert.Equal(t, "started", apps[0].State)
	assert.False(t, apps[0].Serviced)

	assert.Equal(t, "/shop", apps[1].Name)
	assert.Equal(t, "/shop", apps[1].Path)
	assert.True(t, apps[1].Serviced)
	assert.Contains(t, apps[1].RedeployResources, filepath.Join(env.appBase, "shop"))
	assert.Contains(t, apps[1].ReloadResources, filepath.Join(env.appBase, "shop", "WEB-INF", "web.xml"))
}
