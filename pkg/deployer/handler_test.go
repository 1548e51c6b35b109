package deployer

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/core-tools/hsu-deployer/pkg/container"
	"github.com/core-tools/hsu-deployer/pkg/errors"
	"github.com/core-tools/hsu-deployer/pkg/expand"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHandler_Status(t *testing.T) {
	env := newTestEnv(t, nil)
	writeFile(t, filepath.Join(env.appBase, "shop", "WEB-INF", "web.xml"), webXml)
	env.start(t)

	status, err := NewHandler(env.deployer).Status(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "host: localhost, applications: 1, serviced: 0, auto_deploy: true", status)
}

func TestHandler_ListApplications(t *testing.T) {
	env := newTestEnv(t, nil)
	writeFile(t, filepath.Join(env.appBase, "shop", "WEB-INF", "web.xml"), webXml)
	writeFile(t, filepath.Join(env.appBase, "ROOT", "WEB-INF", "web.xml"), webXml)
	env.start(t)

	apps, err := NewHandler(env.deployer).ListApplications(context.Background())
	require.NoError(t, err)
	require.Len(t, apps, 2)
	assert.Equal(t, "", apps[0].Name)
	assert.Equal(t, "/shop", apps[1].Name)
}

func TestHandler_CheckDeploysNewApplication(t *testing.T) {
	env := newTestEnv(t, func(o *DeployerOptions) { o.DeployOnStartup = false })
	env.start(t)
	writeWar(t, filepath.Join(env.appBase, "shop.war"), map[string]string{"WEB-INF/web.xml": webXml})

	h := NewHandler(env.deployer)
	for _, name := range []string{"shop", "/shop"} {
		require.NoError(t, h.Check(context.Background(), name))
	}
	assert.True(t, env.deployer.IsDeployed("/shop"))
	assert.False(t, env.deployer.IsServiced("/shop"))
}

func TestHandler_CheckUnknownNameIsNoop(t *testing.T) {
	env := newTestEnv(t, nil)
	env.start(t)

	require.NoError(t, NewHandler(env.deployer).Check(context.Background(), "missing"))
	assert.False(t, env.deployer.IsDeployed("/missing"))
}

func TestHandler_CheckWhileServicedConflicts(t *testing.T) {
	env := newTestEnv(t, nil)
	env.start(t)
	require.NoError(t, env.deployer.AddServiced("/shop"))

	err := NewHandler(env.deployer).Check(context.Background(), "shop")
	assert.True(t, errors.IsConflictError(err))
	assert.True(t, env.deployer.IsServiced("/shop"))
}

func TestHandler_CheckReportsFailedDeployment(t *testing.T) {
	env := newTestEnv(t, nil)
	env.start(t)
	writeFile(t, filepath.Join(env.configBase, "broken.xml"), "<Context")

	err := NewHandler(env.deployer).Check(context.Background(), "broken")
	assert.True(t, errors.IsDeploymentError(err))
	assert.False(t, env.deployer.IsDeployed("/broken"))
}

func TestHandler_ReloadAndUndeployUnknown(t *testing.T) {
	env := newTestEnv(t, nil)
	env.start(t)
	h := NewHandler(env.deployer)

	assert.True(t, errors.IsNotFoundError(h.Reload(context.Background(), "missing")))
	assert.True(t, errors.IsNotFoundError(h.Undeploy(context.Background(), "missing")))
	assert.False(t, env.deployer.IsServiced("/missing"))
}

func TestHandler_Reload(t *testing.T) {
	env := newTestEnv(t, nil)
	writeFile(t, filepath.Join(env.appBase, "shop", "WEB-INF", "web.xml"), webXml)
	env.start(t)

	require.NoError(t, NewHandler(env.deployer).Reload(context.Background(), "shop"))

	c := env.host.FindChild("/shop")
	require.NotNil(t, c)
	assert.Equal(t, container.StateStarted, c.State())

	stops := 0
	for _, transition := range c.(*container.StandardContext).History() {
		if transition.To == container.StateStopped {
			stops++
		}
	}
	assert.Equal(t, 1, stops)
	assert.False(t, env.deployer.IsServiced("/shop"))
}

func TestHandler_UndeployDeletesArtifacts(t *testing.T) {
	env := newTestEnv(t, nil)
	war := filepath.Join(env.appBase, "shop.war")
	writeWar(t, war, map[string]string{"WEB-INF/web.xml": webXml})
	env.start(t)
	require.True(t, expand.IsDir(filepath.Join(env.appBase, "shop")))

	require.NoError(t, NewHandler(env.deployer).Undeploy(context.Background(), "/shop"))

	assert.False(t, env.deployer.IsDeployed("/shop"))
	assert.Nil(t, env.host.FindChild("/shop"))
	assert.False(t, expand.Exists(war))
	assert.False(t, expand.Exists(filepath.Join(env.appBase, "shop")))
	assert.False(t, env.deployer.IsServiced("/shop"))

	// the artifacts are gone, so the next cycle does not bring it back
	result := env.check(t)
	assert.Empty(t, result.Deployed)
}

func TestHandler_UndeployKeepsExternalDocBase(t *testing.T) {
	env := newTestEnv(t, nil)
	external := filepath.Join(t.TempDir(), "blog")
	writeFile(t, filepath.Join(external, "WEB-INF", "web.xml"), webXml)
	descriptorFile := filepath.Join(env.configBase, "blog.xml")
	writeFile(t, descriptorFile, `<Context docBase="`+filepath.ToSlash(external)+`"/>`)
	env.start(t)
	require.True(t, env.deployer.IsDeployed("/blog"))

	require.NoError(t, NewHandler(env.deployer).Undeploy(context.Background(), "blog"))

	assert.False(t, expand.Exists(descriptorFile))
	assert.True(t, expand.IsDir(external))
}
