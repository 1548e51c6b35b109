package domain

import (
	"context"
	"time"
)

// Contract is the administrative API of the deployer, served over gRPC
type Contract interface {
	Status(ctx context.Context) (string, error)
	ListApplications(ctx context.Context) ([]ApplicationInfo, error)
	// Check re-examines one application, deploying it when it is unknown
	Check(ctx context.Context, name string) error
	Reload(ctx context.Context, name string) error
	Undeploy(ctx context.Context, name string) error
}

// ApplicationInfo describes one deployed application
type ApplicationInfo struct {
	Name              string           `json:"name"`
	Path              string           `json:"path"`
	Version           string           `json:"version,omitempty"`
	State             string           `json:"state"`
	DocBase           string           `json:"doc_base,omitempty"`
	DeployedAt        time.Time        `json:"deployed_at"`
	Serviced          bool             `json:"serviced"`
	RedeployResources map[string]int64 `json:"redeploy_resources,omitempty"`
	ReloadResources   map[string]int64 `json:"reload_resources,omitempty"`
}
