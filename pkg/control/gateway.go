package control

import (
	"context"

	"github.com/core-tools/hsu-deployer/pkg/domain"
	"github.com/core-tools/hsu-deployer/pkg/logging"

	"google.golang.org/grpc"
	"google.golang.org/protobuf/types/known/emptypb"
	"google.golang.org/protobuf/types/known/wrapperspb"
)

func NewGRPCClientGateway(grpcClientConnection grpc.ClientConnInterface, logger logging.Logger) domain.Contract {
	return &grpcClientGateway{
		grpcClient: NewDeployerServiceClient(grpcClientConnection),
		logger:     logger,
	}
}

type grpcClientGateway struct {
	grpcClient DeployerServiceClient
	logger     logging.Logger
}

func (gw *grpcClientGateway) Status(ctx context.Context) (string, error) {
	response, err := gw.grpcClient.Status(ctx, &emptypb.Empty{})
	if err != nil {
		gw.logger.Errorf("Status client gateway: %v", err)
		return "", fromStatus(err, "status")
	}
	gw.logger.Debugf("Status client gateway done")
	return response.GetValue(), nil
}

func (gw *grpcClientGateway) ListApplications(ctx context.Context) ([]domain.ApplicationInfo, error) {
	response, err := gw.grpcClient.ListApplications(ctx, &emptypb.Empty{})
	if err != nil {
		gw.logger.Errorf("ListApplications client gateway: %v", err)
		return nil, fromStatus(err, "list applications")
	}
	apps, err := structToApplications(response)
	if err != nil {
		gw.logger.Errorf("ListApplications client gateway: %v", err)
		return nil, err
	}
	gw.logger.Debugf("ListApplications client gateway done, applications: %d", len(apps))
	return apps, nil
}

func (gw *grpcClientGateway) Check(ctx context.Context, name string) error {
	if _, err := gw.grpcClient.Check(ctx, wrapperspb.String(name)); err != nil {
		gw.logger.Errorf("Check client gateway, app: %s, error: %v", name, err)
		return fromStatus(err, "check")
	}
	gw.logger.Debugf("Check client gateway done, app: %s", name)
	return nil
}

func (gw *grpcClientGateway) Reload(ctx context.Context, name string) error {
	if _, err := gw.grpcClient.Reload(ctx, wrapperspb.String(name)); err != nil {
		gw.logger.Errorf("Reload client gateway, app: %s, error: %v", name, err)
		return fromStatus(err, "reload")
	}
	gw.logger.Debugf("Reload client gateway done, app: %s", name)
	return nil
}

func (gw *grpcClientGateway) Undeploy(ctx context.Context, name string) error {
	if _, err := gw.grpcClient.Undeploy(ctx, wrapperspb.String(name)); err != nil {
		gw.logger.Errorf("Undeploy client gateway, app: %s, error: %v", name, err)
		return fromStatus(err, "undeploy")
	}
	gw.logger.Debugf("Undeploy client gateway done, app: %s", name)
	return nil
}
