package handler

import (
	"context"
	"encoding/json"
	"log/slog"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/encoding"
	"google.golang.org/grpc/status"

	"github.com/ramiqadoumi/planflow/internal/domain"
	"github.com/ramiqadoumi/planflow/internal/planner"
)

// JSONCodecName is the gRPC content subtype carrying JSON-encoded messages.
const JSONCodecName = "json"

type jsonCodec struct{}

func (jsonCodec) Marshal(v any) ([]byte, error)      { return json.Marshal(v) }
func (jsonCodec) Unmarshal(data []byte, v any) error { return json.Unmarshal(data, v) }
func (jsonCodec) Name() string                       { return JSONCodecName }

func init() { encoding.RegisterCodec(jsonCodec{}) }

type SubmitProjectRequest struct {
	Requirement string            `json:"requirement"`
	Plan        *planner.Document `json:"plan,omitempty"`
	Execute     bool              `json:"execute"`
}

type SubmitProjectResponse struct {
	ProjectID     string               `json:"project_id"`
	OverallStatus domain.ProjectStatus `json:"overall_status"`
	TaskCount     int                  `json:"task_count"`
	Queued        bool                 `json:"queued"`
	CreatedAt     int64                `json:"created_at"`
}

type GetProjectStatusRequest struct {
	ProjectID string `json:"project_id"`
}

type ProjectStatusResponse struct {
	ProjectID     string               `json:"project_id"`
	Title         string               `json:"title"`
	OverallStatus domain.ProjectStatus `json:"overall_status"`
	Round         int                  `json:"round"`
	Counts        domain.Counts        `json:"counts"`
	LastUpdated   int64                `json:"last_updated"`
}

// ProjectServiceServer is the server API of planflow.v1.ProjectService.
type ProjectServiceServer interface {
	SubmitProject(context.Context, *SubmitProjectRequest) (*SubmitProjectResponse, error)
	GetProjectStatus(context.Context, *GetProjectStatusRequest) (*ProjectStatusResponse, error)
}

func submitProjectHandler(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	in := new(SubmitProjectRequest)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(ProjectServiceServer).SubmitProject(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: "/planflow.v1.ProjectService/SubmitProject"}
	return interceptor(ctx, in, info, func(ctx context.Context, req any) (any, error) {
		return srv.(ProjectServiceServer).SubmitProject(ctx, req.(*SubmitProjectRequest))
	})
}

func getProjectStatusHandler(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	in := new(GetProjectStatusRequest)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(ProjectServiceServer).GetProjectStatus(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: "/planflow.v1.ProjectService/GetProjectStatus"}
	return interceptor(ctx, in, info, func(ctx context.Context, req any) (any, error) {
		return srv.(ProjectServiceServer).GetProjectStatus(ctx, req.(*GetProjectStatusRequest))
	})
}

// ProjectServiceDesc describes planflow.v1.ProjectService for grpc.Server.RegisterService.
var ProjectServiceDesc = grpc.ServiceDesc{
	ServiceName: "planflow.v1.ProjectService",
	HandlerType: (*ProjectServiceServer)(nil),
	Methods: []grpc.MethodDesc{
		{MethodName: "SubmitProject", Handler: submitProjectHandler},
		{MethodName: "GetProjectStatus", Handler: getProjectStatusHandler},
	},
	Streams: []grpc.StreamDesc{},
}

// ProjectServiceClient calls planflow.v1.ProjectService with the JSON codec.
type ProjectServiceClient struct {
	cc grpc.ClientConnInterface
}

func NewProjectServiceClient(cc grpc.ClientConnInterface) *ProjectServiceClient {
	return &ProjectServiceClient{cc: cc}
}

func (c *ProjectServiceClient) SubmitProject(ctx context.Context, in *SubmitProjectRequest, opts ...grpc.CallOption) (*SubmitProjectResponse, error) {
	out := new(SubmitProjectResponse)
	opts = append([]grpc.CallOption{grpc.CallContentSubtype(JSONCodecName)}, opts...)
	if err := c.cc.Invoke(ctx, "/planflow.v1.ProjectService/SubmitProject", in, out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *ProjectServiceClient) GetProjectStatus(ctx context.Context, in *GetProjectStatusRequest, opts ...grpc.CallOption) (*ProjectStatusResponse, error) {
	out := new(ProjectStatusResponse)
	opts = append([]grpc.CallOption{grpc.CallContentSubtype(JSONCodecName)}, opts...)
	if err := c.cc.Invoke(ctx, "/planflow.v1.ProjectService/GetProjectStatus", in, out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}

// GRPC implements ProjectServiceServer on top of the shared Service.
type GRPC struct {
	svc    *Service
	logger *slog.Logger
}

// NewGRPC creates a new gRPC handler sharing the same dependencies as REST.
func NewGRPC(svc *Service, logger *slog.Logger) *GRPC {
	return &GRPC{svc: svc, logger: logger}
}

func (g *GRPC) SubmitProject(ctx context.Context, req *SubmitProjectRequest) (*SubmitProjectResponse, error) {
	sum, queued, err := g.svc.Submit(ctx, Submission{
		Requirement: req.Requirement,
		Plan:        req.Plan,
		Execute:     req.Execute,
	}, "grpc")
	if err != nil {
		return nil, g.status("SubmitProject", err)
	}
	return &SubmitProjectResponse{
		ProjectID:     sum.ProjectID,
		OverallStatus: sum.OverallStatus,
		TaskCount:     len(sum.Tasks),
		Queued:        queued,
		CreatedAt:     sum.CreatedAt.Unix(),
	}, nil
}

func (g *GRPC) GetProjectStatus(ctx context.Context, req *GetProjectStatusRequest) (*ProjectStatusResponse, error) {
	if req.ProjectID == "" {
		return nil, status.Error(codes.InvalidArgument, "project_id is required")
	}
	sum, err := g.svc.Summary(ctx, req.ProjectID)
	if err != nil {
		return nil, g.status("GetProjectStatus", err)
	}
	resp := &ProjectStatusResponse{
		ProjectID:     sum.ProjectID,
		Title:         sum.Title,
		OverallStatus: sum.OverallStatus,
		Round:         sum.Round,
		Counts:        sum.Counts(),
	}
	if !sum.LastUpdated.IsZero() {
		resp.LastUpdated = sum.LastUpdated.Unix()
	}
	return resp, nil
}

func (g *GRPC) status(method string, err error) error {
	code, msg := grpcCode(err)
	if code == codes.Internal {
		g.logger.Error("grpc "+method, slog.String("error", err.Error()))
	}
	return status.Error(code, msg)
}
