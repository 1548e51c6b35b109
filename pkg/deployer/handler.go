package deployer

import (
	"context"
	"fmt"

	"github.com/core-tools/hsu-deployer/pkg/contextname"
	"github.com/core-tools/hsu-deployer/pkg/domain"
	"github.com/core-tools/hsu-deployer/pkg/errors"
)

// NewHandler exposes d through the control contract
func NewHandler(d *Deployer) domain.Contract {
	return &handler{deployer: d}
}

type handler struct {
	deployer *Deployer
}

func (h *handler) Status(ctx context.Context) (string, error) {
	d := h.deployer
	return fmt.Sprintf("host: %s, applications: %d, serviced: %d, auto_deploy: %t",
		d.host.Name(), d.registry.Len(), len(d.registry.Serviced()), d.AutoDeploy()), nil
}

func (h *handler) ListApplications(ctx context.Context) ([]domain.ApplicationInfo, error) {
	return h.deployer.Applications(), nil
}

// Check re-examines one application while holding it serviced, so that the
// periodic loop stays away from it.
func (h *handler) Check(ctx context.Context, name string) error {
	name = contextname.NewContextName(name, false).Name
	if err := h.deployer.AddServiced(name); err != nil {
		return err
	}
	defer h.deployer.RemoveServiced(name)

	result := h.deployer.CheckApp(ctx, name)
	if len(result.Failed) > 0 {
		return errors.NewDeploymentError("application failed to deploy", nil).WithContext("app", name)
	}
	return nil
}

func (h *handler) Reload(ctx context.Context, name string) error {
	return h.deployer.Reload(ctx, name)
}

func (h *handler) Undeploy(ctx context.Context, name string) error {
	return h.deployer.Undeploy(ctx, name)
}
