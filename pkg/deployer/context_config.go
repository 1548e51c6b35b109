package deployer

import (
	"context"
	"path/filepath"
	"strings"

	"github.com/core-tools/hsu-deployer/pkg/container"
	"github.com/core-tools/hsu-deployer/pkg/contextname"
	"github.com/core-tools/hsu-deployer/pkg/errors"
	"github.com/core-tools/hsu-deployer/pkg/expand"
	"github.com/core-tools/hsu-deployer/pkg/logging"
)

// ContextConfig prepares a context's document base when it starts: it
// resolves the doc base against the app base, expands WARs when unpacking is
// enabled and adds the default watched resources.
type ContextConfig struct {
	appBase                 string
	unpackWARs              bool
	defaultWatchedResources []string
	logger                  logging.Logger
}

func NewContextConfig(appBase string, unpackWARs bool, defaultWatchedResources []string, logger logging.Logger) *ContextConfig {
	return &ContextConfig{
		appBase:                 appBase,
		unpackWARs:              unpackWARs,
		defaultWatchedResources: append([]string(nil), defaultWatchedResources...),
		logger:                  logger,
	}
}

func (cc *ContextConfig) OnStart(ctx context.Context, c container.Context) error {
	docBase := cc.resolveDocBase(c)

	if isWAR(docBase) && expand.IsFile(docBase) && cc.unpackWARs {
		baseName := contextname.FromPathAndVersion(c.Path(), c.Version()).BaseName
		expanded, err := expand.Expand(cc.appBase, docBase, baseName)
		if err != nil {
			return err
		}
		cc.logger.Debugf("WAR expanded, context: %s, war: %s, doc_base: %s", c.Name(), docBase, expanded)
		docBase = expanded
	}

	if !expand.Exists(docBase) {
		return errors.NewNotFoundError("doc base does not exist", nil).
			WithContext("context", c.Name()).
			WithContext("doc_base", docBase)
	}
	c.SetDocBase(docBase)

	for _, resource := range cc.defaultWatchedResources {
		c.AddWatchedResource(resource)
	}
	return nil
}

func (cc *ContextConfig) OnStop(ctx context.Context, c container.Context) error {
	return nil
}

// resolveDocBase returns the absolute doc base of c. Without an explicit doc
// base the unit's WAR in the app base wins over its directory.
func (cc *ContextConfig) resolveDocBase(c container.Context) string {
	docBase := c.DocBase()
	if docBase == "" {
		baseName := contextname.FromPathAndVersion(c.Path(), c.Version()).BaseName
		war := filepath.Join(cc.appBase, baseName+".war")
		if expand.IsFile(war) {
			return war
		}
		return filepath.Join(cc.appBase, baseName)
	}
	if !filepath.IsAbs(docBase) {
		docBase = filepath.Join(cc.appBase, docBase)
	}
	return docBase
}

func isWAR(path string) bool {
	return strings.HasSuffix(strings.ToLower(path), ".war")
}

func isXML(path string) bool {
	return strings.HasSuffix(strings.ToLower(path), ".xml")
}
