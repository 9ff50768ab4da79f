package api

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"maidlink/internal/domain"
	"maidlink/internal/models"
	"maidlink/internal/service"

	"github.com/rs/zerolog"
	"google.golang.org/grpc"
	"google.golang.org/protobuf/types/known/structpb"
)

const OperatorServiceName = "maidlink.operator.v1.OperatorService"

// OperatorServer is the operator RPC surface. Messages are free-form structs.
type OperatorServer interface {
	InitiateBackgroundCheck(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error)
	PollBackgroundCheck(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error)
	AssignBooking(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error)
	ListApplications(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error)
	SuspendApplication(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error)
}

type operatorMethod func(OperatorServer, context.Context, *structpb.Struct) (*structpb.Struct, error)

var OperatorServiceDesc = grpc.ServiceDesc{
	ServiceName: OperatorServiceName,
	HandlerType: (*OperatorServer)(nil),
	Methods: []grpc.MethodDesc{
		{MethodName: "InitiateBackgroundCheck", Handler: operatorHandler("InitiateBackgroundCheck", OperatorServer.InitiateBackgroundCheck)},
		{MethodName: "PollBackgroundCheck", Handler: operatorHandler("PollBackgroundCheck", OperatorServer.PollBackgroundCheck)},
		{MethodName: "AssignBooking", Handler: operatorHandler("AssignBooking", OperatorServer.AssignBooking)},
		{MethodName: "ListApplications", Handler: operatorHandler("ListApplications", OperatorServer.ListApplications)},
		{MethodName: "SuspendApplication", Handler: operatorHandler("SuspendApplication", OperatorServer.SuspendApplication)},
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "maidlink/operator/v1/operator.proto",
}

func RegisterOperatorServer(s grpc.ServiceRegistrar, srv OperatorServer) {
	s.RegisterService(&OperatorServiceDesc, srv)
}

func operatorHandler(name string, call operatorMethod) func(any, context.Context, func(any) error, grpc.UnaryServerInterceptor) (any, error) {
	return func(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
		in := new(structpb.Struct)
		if err := dec(in); err != nil {
			return nil, err
		}
		if interceptor == nil {
			return call(srv.(OperatorServer), ctx, in)
		}
		info := &grpc.UnaryServerInfo{Server: srv, FullMethod: "/" + OperatorServiceName + "/" + name}
		handler := func(ctx context.Context, req any) (any, error) {
			return call(srv.(OperatorServer), ctx, req.(*structpb.Struct))
		}
		return interceptor(ctx, in, info, handler)
	}
}

type OperatorService struct {
	bookings   *service.BookingService
	onboarding *service.OnboardingService
	logger     *zerolog.Logger
}

func NewOperatorService(bookings *service.BookingService, onboarding *service.OnboardingService, logger *zerolog.Logger) *OperatorService {
	return &OperatorService{bookings: bookings, onboarding: onboarding, logger: logger}
}

func (s *OperatorService) InitiateBackgroundCheck(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	id, err := requiredField(in, "application_id")
	if err != nil {
		return nil, grpcError(err)
	}
	view, err := s.onboarding.InitiateBackgroundCheck(ctx, id)
	if err != nil {
		return nil, grpcError(err)
	}
	return toStruct(redactView(view))
}

func (s *OperatorService) PollBackgroundCheck(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	id, err := requiredField(in, "application_id")
	if err != nil {
		return nil, grpcError(err)
	}
	view, err := s.onboarding.PollBackgroundCheck(ctx, id)
	if err != nil {
		return nil, grpcError(err)
	}
	return toStruct(redactView(view))
}

func (s *OperatorService) AssignBooking(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	id, err := requiredField(in, "booking_id")
	if err != nil {
		return nil, grpcError(err)
	}
	booking, err := s.bookings.RequestCleanerAcceptance(ctx, id)
	if err != nil {
		return nil, grpcError(err)
	}
	return toStruct(booking)
}

func (s *OperatorService) ListApplications(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	st := models.ApplicationStatus(strings.TrimSpace(in.GetFields()["status"].GetStringValue()))
	limit := int(in.GetFields()["limit"].GetNumberValue())
	apps, err := s.onboarding.ListApplications(ctx, st, limit)
	if err != nil {
		return nil, grpcError(err)
	}
	return toStruct(map[string]any{"applications": redactAll(apps)})
}

func (s *OperatorService) SuspendApplication(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	id, err := requiredField(in, "application_id")
	if err != nil {
		return nil, grpcError(err)
	}
	app, err := s.onboarding.SuspendApplication(ctx, id)
	if err != nil {
		return nil, grpcError(err)
	}
	return toStruct(app.Redacted())
}

func requiredField(in *structpb.Struct, name string) (string, error) {
	v := strings.TrimSpace(in.GetFields()[name].GetStringValue())
	if v == "" {
		return "", fmt.Errorf("%w: %s is required", domain.ErrInvalidInput, name)
	}
	return v, nil
}

// toStruct converts any JSON-serializable value into a protobuf Struct.
func toStruct(v any) (*structpb.Struct, error) {
	raw, err := json.Marshal(v)
	if err != nil {
		return nil, grpcError(fmt.Errorf("encode response: %w", err))
	}
	var m map[string]any
	if err := json.Unmarshal(raw, &m); err != nil {
		return nil, grpcError(fmt.Errorf("encode response: %w", err))
	}
	out, err := structpb.NewStruct(m)
	if err != nil {
		return nil, grpcError(fmt.Errorf("encode response: %w", err))
	}
	return out, nil
}

func redactView(view *service.CheckView) *service.CheckView {
	cp := *view
	if cp.Application != nil {
		cp.Application = cp.Application.Redacted()
	}
	return &cp
}

func redactAll(apps []*models.CleanerApplication) []*models.CleanerApplication {
	out := make([]*models.CleanerApplication, 0, len(apps))
	for _, a := range apps {
		out = append(out, a.Redacted())
	}
	return out
}
