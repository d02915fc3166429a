package api

import (
	"context"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/structpb"
)

// ServiceName is the fully-qualified gRPC service name.
const ServiceName = "rob.v1.RiskOfBias"

// RPC method names.
const (
	MethodGetTemplate       = "GetTemplate"
	MethodListTemplates     = "ListTemplates"
	MethodCustomizeTemplate = "CustomizeTemplate"
	MethodResetTemplate     = "ResetTemplate"
	MethodExportTemplate    = "ExportTemplate"
	MethodImportTemplate    = "ImportTemplate"
	MethodDetectDesign      = "DetectDesign"
	MethodDetectBatch       = "DetectBatch"
	MethodAssess            = "Assess"
	MethodAssessBatch       = "AssessBatch"
	MethodVerify            = "Verify"
	MethodAuditTrail        = "AuditTrail"
	MethodStatistics        = "Statistics"
	MethodGetSettings       = "GetSettings"
	MethodUpdateSettings    = "UpdateSettings"
	MethodCostSummary       = "CostSummary"
	MethodHealthCheck       = "HealthCheck"
)

// RiskOfBiasServer is the server API for rob.v1.RiskOfBias. Every message is a
// google.protobuf.Struct carrying the JSON shape of the request and response types
// in this package.
type RiskOfBiasServer interface {
	GetTemplate(context.Context, *structpb.Struct) (*structpb.Struct, error)
	ListTemplates(context.Context, *structpb.Struct) (*structpb.Struct, error)
	CustomizeTemplate(context.Context, *structpb.Struct) (*structpb.Struct, error)
	ResetTemplate(context.Context, *structpb.Struct) (*structpb.Struct, error)
	ExportTemplate(context.Context, *structpb.Struct) (*structpb.Struct, error)
	ImportTemplate(context.Context, *structpb.Struct) (*structpb.Struct, error)
	DetectDesign(context.Context, *structpb.Struct) (*structpb.Struct, error)
	DetectBatch(context.Context, *structpb.Struct) (*structpb.Struct, error)
	Assess(context.Context, *structpb.Struct) (*structpb.Struct, error)
	AssessBatch(context.Context, *structpb.Struct) (*structpb.Struct, error)
	Verify(context.Context, *structpb.Struct) (*structpb.Struct, error)
	AuditTrail(context.Context, *structpb.Struct) (*structpb.Struct, error)
	Statistics(context.Context, *structpb.Struct) (*structpb.Struct, error)
	GetSettings(context.Context, *structpb.Struct) (*structpb.Struct, error)
	UpdateSettings(context.Context, *structpb.Struct) (*structpb.Struct, error)
	CostSummary(context.Context, *structpb.Struct) (*structpb.Struct, error)
	HealthCheck(context.Context, *structpb.Struct) (*structpb.Struct, error)
}

// UnimplementedRiskOfBiasServer answers Unimplemented for every method.
type UnimplementedRiskOfBiasServer struct{}

func unimplemented(method string) error {
	return status.Errorf(codes.Unimplemented, "method %s not implemented", method)
}

func (UnimplementedRiskOfBiasServer) GetTemplate(context.Context, *structpb.Struct) (*structpb.Struct, error) {
	return nil, unimplemented(MethodGetTemplate)
}
func (UnimplementedRiskOfBiasServer) ListTemplates(context.Context, *structpb.Struct) (*structpb.Struct, error) {
	return nil, unimplemented(MethodListTemplates)
}
func (UnimplementedRiskOfBiasServer) CustomizeTemplate(context.Context, *structpb.Struct) (*structpb.Struct, error) {
	return nil, unimplemented(MethodCustomizeTemplate)
}
func (UnimplementedRiskOfBiasServer) ResetTemplate(context.Context, *structpb.Struct) (*structpb.Struct, error) {
	return nil, unimplemented(MethodResetTemplate)
}
func (UnimplementedRiskOfBiasServer) ExportTemplate(context.Context, *structpb.Struct) (*structpb.Struct, error) {
	return nil, unimplemented(MethodExportTemplate)
}
func (UnimplementedRiskOfBiasServer) ImportTemplate(context.Context, *structpb.Struct) (*structpb.Struct, error) {
	return nil, unimplemented(MethodImportTemplate)
}
func (UnimplementedRiskOfBiasServer) DetectDesign(context.Context, *structpb.Struct) (*structpb.Struct, error) {
	return nil, unimplemented(MethodDetectDesign)
}
func (UnimplementedRiskOfBiasServer) DetectBatch(context.Context, *structpb.Struct) (*structpb.Struct, error) {
	return nil, unimplemented(MethodDetectBatch)
}
func (UnimplementedRiskOfBiasServer) Assess(context.Context, *structpb.Struct) (*structpb.Struct, error) {
	return nil, unimplemented(MethodAssess)
}
func (UnimplementedRiskOfBiasServer) AssessBatch(context.Context, *structpb.Struct) (*structpb.Struct, error) {
	return nil, unimplemented(MethodAssessBatch)
}
func (UnimplementedRiskOfBiasServer) Verify(context.Context, *structpb.Struct) (*structpb.Struct, error) {
	return nil, unimplemented(MethodVerify)
}
func (UnimplementedRiskOfBiasServer) AuditTrail(context.Context, *structpb.Struct) (*structpb.Struct, error) {
	return nil, unimplemented(MethodAuditTrail)
}
func (UnimplementedRiskOfBiasServer) Statistics(context.Context, *structpb.Struct) (*structpb.Struct, error) {
	return nil, unimplemented(MethodStatistics)
}
func (UnimplementedRiskOfBiasServer) GetSettings(context.Context, *structpb.Struct) (*structpb.Struct, error) {
	return nil, unimplemented(MethodGetSettings)
}
func (UnimplementedRiskOfBiasServer) UpdateSettings(context.Context, *structpb.Struct) (*structpb.Struct, error) {
	return nil, unimplemented(MethodUpdateSettings)
}
func (UnimplementedRiskOfBiasServer) CostSummary(context.Context, *structpb.Struct) (*structpb.Struct, error) {
	return nil, unimplemented(MethodCostSummary)
}
func (UnimplementedRiskOfBiasServer) HealthCheck(context.Context, *structpb.Struct) (*structpb.Struct, error) {
	return nil, unimplemented(MethodHealthCheck)
}

type unaryCall func(srv RiskOfBiasServer, ctx context.Context, in *structpb.Struct) (*structpb.Struct, error)

func unaryMethod(name string, call unaryCall) grpc.MethodDesc {
	fullMethod := "/" + ServiceName + "/" + name
	return grpc.MethodDesc{
		MethodName: name,
		Handler: func(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
			in := new(structpb.Struct)
			if err := dec(in); err != nil {
				return nil, err
			}
			if interceptor == nil {
				return call(srv.(RiskOfBiasServer), ctx, in)
			}
			info := &grpc.UnaryServerInfo{Server: srv, FullMethod: fullMethod}
			handler := func(ctx context.Context, req any) (any, error) {
				return call(srv.(RiskOfBiasServer), ctx, req.(*structpb.Struct))
			}
			return interceptor(ctx, in, info, handler)
		},
	}
}

// RiskOfBiasServiceDesc describes rob.v1.RiskOfBias for grpc.Server.RegisterService.
var RiskOfBiasServiceDesc = grpc.ServiceDesc{
	ServiceName: ServiceName,
	HandlerType: (*RiskOfBiasServer)(nil),
	Methods: []grpc.MethodDesc{
		unaryMethod(MethodGetTemplate, RiskOfBiasServer.GetTemplate),
		unaryMethod(MethodListTemplates, RiskOfBiasServer.ListTemplates),
		unaryMethod(MethodCustomizeTemplate, RiskOfBiasServer.CustomizeTemplate),
		unaryMethod(MethodResetTemplate, RiskOfBiasServer.ResetTemplate),
		unaryMethod(MethodExportTemplate, RiskOfBiasServer.ExportTemplate),
		unaryMethod(MethodImportTemplate, RiskOfBiasServer.ImportTemplate),
		unaryMethod(MethodDetectDesign, RiskOfBiasServer.DetectDesign),
		unaryMethod(MethodDetectBatch, RiskOfBiasServer.DetectBatch),
		unaryMethod(MethodAssess, RiskOfBiasServer.Assess),
		unaryMethod(MethodAssessBatch, RiskOfBiasServer.AssessBatch),
		unaryMethod(MethodVerify, RiskOfBiasServer.Verify),
		unaryMethod(MethodAuditTrail, RiskOfBiasServer.AuditTrail),
		unaryMethod(MethodStatistics, RiskOfBiasServer.Statistics),
		unaryMethod(MethodGetSettings, RiskOfBiasServer.GetSettings),
		unaryMethod(MethodUpdateSettings, RiskOfBiasServer.UpdateSettings),
		unaryMethod(MethodCostSummary, RiskOfBiasServer.CostSummary),
		unaryMethod(MethodHealthCheck, RiskOfBiasServer.HealthCheck),
	},
	Streams: []grpc.StreamDesc{},
}

// RegisterRiskOfBiasServer registers srv on s.
func RegisterRiskOfBiasServer(s grpc.ServiceRegistrar, srv RiskOfBiasServer) {
	s.RegisterService(&RiskOfBiasServiceDesc, srv)
}

// RiskOfBiasClient calls rob.v1.RiskOfBias methods by name.
type RiskOfBiasClient struct {
	cc grpc.ClientConnInterface
}

// NewRiskOfBiasClient wraps a client connection.
func NewRiskOfBiasClient(cc grpc.ClientConnInterface) *RiskOfBiasClient {
	return &RiskOfBiasClient{cc: cc}
}

// Call invokes method with in and returns the response struct.
func (c *RiskOfBiasClient) Call(ctx context.Context, method string, in *structpb.Struct, opts ...grpc.CallOption) (*structpb.Struct, error) {
	out := new(structpb.Struct)
	if err := c.cc.Invoke(ctx, "/"+ServiceName+"/"+method, in, out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}
