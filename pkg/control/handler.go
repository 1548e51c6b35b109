package control

import (
	"context"

	"github.com/core-tools/hsu-deployer/pkg/domain"
	"github.com/core-tools/hsu-deployer/pkg/logging"

	"google.golang.org/grpc"
	"google.golang.org/protobuf/types/known/emptypb"
	"google.golang.org/protobuf/types/known/structpb"
	"google.golang.org/protobuf/types/known/wrapperspb"
)

func RegisterGRPCServerHandler(grpcServerRegistrar grpc.ServiceRegistrar, handler domain.Contract, logger logging.Logger) {
	RegisterDeployerServiceServer(grpcServerRegistrar, &grpcServerHandler{
		handler: handler,
		logger:  logger,
	})
}

type grpcServerHandler struct {
	handler domain.Contract
	logger  logging.Logger
}

func (h *grpcServerHandler) Status(ctx context.Context, _ *emptypb.Empty) (*wrapperspb.StringValue, error) {
	status, err := h.handler.Status(ctx)
	if err != nil {
		h.logger.Errorf("Status server handler: %v", err)
		return nil, toStatus(err)
	}
	h.logger.Debugf("Status server handler done")
	return wrapperspb.String(status), nil
}

func (h *grpcServerHandler) ListApplications(ctx context.Context, _ *emptypb.Empty) (*structpb.Struct, error) {
	apps, err := h.handler.ListApplications(ctx)
	if err != nil {
		h.logger.Errorf("ListApplications server handler: %v", err)
		return nil, toStatus(err)
	}
	response, err := applicationsToStruct(apps)
	if err != nil {
		h.logger.Errorf("ListApplications server handler: %v", err)
		return nil, toStatus(err)
	}
	h.logger.Debugf("ListApplications server handler done, applications: %d", len(apps))
	return response, nil
}

func (h *grpcServerHandler) Check(ctx context.Context, name *wrapperspb.StringValue) (*emptypb.Empty, error) {
	if err := h.handler.Check(ctx, name.GetValue()); err != nil {
		h.logger.Errorf("Check server handler, app: %s, error: %v", name.GetValue(), err)
		return nil, toStatus(err)
	}
	h.logger.Debugf("Check server handler done, app: %s", name.GetValue())
	return &emptypb.Empty{}, nil
}

func (h *grpcServerHandler) Reload(ctx context.Context, name *wrapperspb.StringValue) (*emptypb.Empty, error) {
	if err := h.handler.Reload(ctx, name.GetValue()); err != nil {
		h.logger.Errorf("Reload server handler, app: %s, error: %v", name.GetValue(), err)
		return nil, toStatus(err)
	}
	h.logger.Debugf("Reload server handler done, app: %s", name.GetValue())
	return &emptypb.Empty{}, nil
}

func (h *grpcServerHandler) Undeploy(ctx context.Context, name *wrapperspb.StringValue) (*emptypb.Empty, error) {
	if err := h.handler.Undeploy(ctx, name.GetValue()); err != nil {
		h.logger.Errorf("Undeploy server handler, app: %s, error: %v", name.GetValue(), err)
		return nil, toStatus(err)
	}
	h.logger.Debugf("Undeploy server handler done, app: %s", name.GetValue())
	return &emptypb.Empty{}, nil
}
