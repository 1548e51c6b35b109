package control

import (
	"time"

	"github.com/core-tools/hsu-deployer/pkg/domain"
	"github.com/core-tools/hsu-deployer/pkg/errors"

	"google.golang.org/protobuf/types/known/structpb"
)

const applicationsField = "applications"

func applicationsToStruct(apps []domain.ApplicationInfo) (*structpb.Struct, error) {
	list := make([]interface{}, 0, len(apps))
	for _, app := range apps {
		list = append(list, map[string]interface{}{
			"name":               app.Name,
			"path":               app.Path,
			"version":            app.Version,
			"state":              app.State,
			"doc_base":           app.DocBase,
			"deployed_at":        app.DeployedAt.UTC().Format(time.RFC3339Nano),
			"serviced":           app.Serviced,
			"redeploy_resources": resourcesToMap(app.RedeployResources),
			"reload_resources":   resourcesToMap(app.ReloadResources),
		})
	}
	s, err := structpb.NewStruct(map[string]interface{}{applicationsField: list})
	if err != nil {
		return nil, errors.NewInternalError("failed to encode applications", err)
	}
	return s, nil
}

func structToApplications(s *structpb.Struct) ([]domain.ApplicationInfo, error) {
	value, ok := s.GetFields()[applicationsField]
	if !ok {
		return nil, errors.NewValidationError("response has no applications field", nil)
	}

	items := value.GetListValue().GetValues()
	apps := make([]domain.ApplicationInfo, 0, len(items))
	for _, item := range items {
		fields := item.GetStructValue().GetFields()
		app := domain.ApplicationInfo{
			Name:              fields["name"].GetStringValue(),
			Path:              fields["path"].GetStringValue(),
			Version:           fields["version"].GetStringValue(),
			State:             fields["state"].GetStringValue(),
			DocBase:           fields["doc_base"].GetStringValue(),
			Serviced:          fields["serviced"].GetBoolValue(),
			RedeployResources: mapToResources(fields["redeploy_resources"]),
			ReloadResources:   mapToResources(fields["reload_resources"]),
		}
		if deployedAt := fields["deployed_at"].GetStringValue(); deployedAt != "" {
			parsed, err := time.Parse(time.RFC3339Nano, deployedAt)
			if err != nil {
				return nil, errors.NewValidationError("invalid deployed_at value", err).WithContext("app", app.Name)
			}
			app.DeployedAt = parsed
		}
		apps = append(apps, app)
	}
	return apps, nil
}

func resourcesToMap(resources map[string]int64) map[string]interface{} {
	m := make(map[string]interface{}, len(resources))
	for path, lastModified := range resources {
		m[path] = lastModified
	}
	return m
}

func mapToResources(value *structpb.Value) map[string]int64 {
	resources := make(map[string]int64)
	for path, v := range value.GetStructValue().GetFields() {
		resources[path] = int64(v.GetNumberValue())
	}
	return resources
}
