package server

import (
	"context"
	"net/http"
	"time"

	"github.com/alfredjeanlab/cafetrace/internal/ledger"
	"github.com/alfredjeanlab/cafetrace/internal/model"
	"github.com/alfredjeanlab/cafetrace/internal/presence"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

// ServiceName is the fully qualified gRPC service name.
const ServiceName = "cafetrace.v1.Ledger"

// Request and response messages of the gRPC service. Operations whose input
// already has a ledger type (CreateMicrolotInput, AppendInput, QualityInput,
// CertificationInput, MicrolotFilter) use it directly.
type (
	IDRequest struct {
		ID      string `json:"id"`
		ActorID string `json:"actor_id,omitempty"`
	}
	CodeRequest struct {
		Code string `json:"code"`
	}
	ResolveIntegrityRequest struct {
		MicrolotID string `json:"microlot_id"`
		Note       string `json:"note,omitempty"`
		ActorID    string `json:"actor_id,omitempty"`
	}
	RevokeCertificationRequest struct {
		CertificationID string `json:"certification_id"`
		Reason          string `json:"reason"`
		ActorID         string `json:"actor_id,omitempty"`
	}
	ActorsRequest struct {
		StaleSecs int `json:"stale_secs,omitempty"`
	}

	StatsRequest struct{}
	Empty        struct{}

	ListMicrolotsResponse struct {
		Microlots []*model.Microlot `json:"microlots"`
		Total     int               `json:"total"`
	}
	EventsResponse struct {
		Events []*model.TraceabilityEvent `json:"events"`
	}
	QualityRecordsResponse struct {
		Records []*model.QualityControlRecord `json:"records"`
	}
	CertificationsResponse struct {
		Certifications []*model.CertificationRecord `json:"certifications"`
	}
	ActorsResponse struct {
		Actors []presence.Entry `json:"actors"`
	}
)

// LedgerServiceServer is the server API of the cafetrace.v1.Ledger service.
type LedgerServiceServer interface {
	CreateMicrolot(context.Context, *ledger.CreateMicrolotInput) (*model.Microlot, error)
	GetMicrolot(context.Context, *IDRequest) (*model.Microlot, error)
	ListMicrolots(context.Context, *model.MicrolotFilter) (*ListMicrolotsResponse, error)
	DeactivateMicrolot(context.Context, *IDRequest) (*Empty, error)
	AdvanceStatus(context.Context, *ledger.AppendInput) (*model.Microlot, error)
	AppendEvent(context.Context, *ledger.AppendInput) (*model.TraceabilityEvent, error)
	ListEvents(context.Context, *IDRequest) (*EventsResponse, error)
	VerifyChain(context.Context, *IDRequest) (*ledger.Verification, error)
	ResolveIntegrity(context.Context, *ResolveIntegrityRequest) (*ledger.Verification, error)
	RecordQualityControl(context.Context, *ledger.QualityInput) (*model.QualityControlRecord, error)
	ListQualityRecords(context.Context, *IDRequest) (*QualityRecordsResponse, error)
	AttachCertification(context.Context, *ledger.CertificationInput) (*model.CertificationRecord, error)
	RevokeCertification(context.Context, *RevokeCertificationRequest) (*model.CertificationRecord, error)
	ListCertifications(context.Context, *IDRequest) (*CertificationsResponse, error)
	GetPublicView(context.Context, *CodeRequest) (*model.PublicView, error)
	GetStats(context.Context, *StatsRequest) (*model.Stats, error)
	ListActors(context.Context, *ActorsRequest) (*ActorsResponse, error)
}

var _ LedgerServiceServer = (*LedgerServer)(nil)

// unaryMethod adapts a typed service method to a grpc.MethodDesc.
func unaryMethod[Req, Resp any](name string, call func(LedgerServiceServer, context.Context, *Req) (*Resp, error)) grpc.MethodDesc {
	return grpc.MethodDesc{
		MethodName: name,
		Handler: func(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
			in := new(Req)
			if err := dec(in); err != nil {
				return nil, err
			}
			impl := srv.(LedgerServiceServer)
			if interceptor == nil {
				return call(impl, ctx, in)
			}
			info := &grpc.UnaryServerInfo{Server: srv, FullMethod: "/" + ServiceName + "/" + name}
			return interceptor(ctx, in, info, func(ctx context.Context, req any) (any, error) {
				return call(impl, ctx, req.(*Req))
			})
		},
	}
}

// LedgerServiceDesc describes the cafetrace.v1.Ledger service.
var LedgerServiceDesc = grpc.ServiceDesc{
	ServiceName: ServiceName,
	HandlerType: (*LedgerServiceServer)(nil),
	Methods: []grpc.MethodDesc{
		unaryMethod("CreateMicrolot", LedgerServiceServer.CreateMicrolot),
		unaryMethod("GetMicrolot", LedgerServiceServer.GetMicrolot),
		unaryMethod("ListMicrolots", LedgerServiceServer.ListMicrolots),
		unaryMethod("DeactivateMicrolot", LedgerServiceServer.DeactivateMicrolot),
		unaryMethod("AdvanceStatus", LedgerServiceServer.AdvanceStatus),
		unaryMethod("AppendEvent", LedgerServiceServer.AppendEvent),
		unaryMethod("ListEvents", LedgerServiceServer.ListEvents),
		unaryMethod("VerifyChain", LedgerServiceServer.VerifyChain),
		unaryMethod("ResolveIntegrity", LedgerServiceServer.ResolveIntegrity),
		unaryMethod("RecordQualityControl", LedgerServiceServer.RecordQualityControl),
		unaryMethod("ListQualityRecords", LedgerServiceServer.ListQualityRecords),
		unaryMethod("AttachCertification", LedgerServiceServer.AttachCertification),
		unaryMethod("RevokeCertification", LedgerServiceServer.RevokeCertification),
		unaryMethod("ListCertifications", LedgerServiceServer.ListCertifications),
		unaryMethod("GetPublicView", LedgerServiceServer.GetPublicView),
		unaryMethod("GetStats", LedgerServiceServer.GetStats),
		unaryMethod("ListActors", LedgerServiceServer.ListActors),
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "cafetrace/v1/ledger",
}

// CreateMicrolot registers a microlot and writes its genesis block.
func (s *LedgerServer) CreateMicrolot(ctx context.Context, req *ledger.CreateMicrolotInput) (*model.Microlot, error) {
	in := *req
	in.ActorID = actorFromContext(ctx, in.ActorID)
	m, err := s.ledger.CreateMicrolot(ctx, in)
	return m, grpcError(err)
}

// GetMicrolot returns an active microlot by id.
func (s *LedgerServer) GetMicrolot(ctx context.Context, req *IDRequest) (*model.Microlot, error) {
	if req.ID == "" {
		return nil, status.Error(codes.InvalidArgument, "id is required")
	}
	m, err := s.ledger.GetMicrolot(ctx, req.ID)
	return m, grpcError(err)
}

// ListMicrolots returns a filtered page of microlots.
func (s *LedgerServer) ListMicrolots(ctx context.Context, req *model.MicrolotFilter) (*ListMicrolotsResponse, error) {
	microlots, total, err := s.ledger.ListMicrolots(ctx, *req)
	if err != nil {
		return nil, grpcError(err)
	}
	if microlots == nil {
		microlots = []*model.Microlot{}
	}
	return &ListMicrolotsResponse{Microlots: microlots, Total: total}, nil
}

// DeactivateMicrolot soft-deletes a microlot.
func (s *LedgerServer) DeactivateMicrolot(ctx context.Context, req *IDRequest) (*Empty, error) {
	if err := s.ledger.DeactivateMicrolot(ctx, req.ID, actorFromContext(ctx, req.ActorID)); err != nil {
		return nil, grpcError(err)
	}
	return &Empty{}, nil
}

// AdvanceStatus appends a lifecycle or REVERT event.
func (s *LedgerServer) AdvanceStatus(ctx context.Context, req *ledger.AppendInput) (*model.Microlot, error) {
	in := *req
	in.ActorID = actorFromContext(ctx, in.ActorID)
	m, err := s.ledger.AdvanceStatus(ctx, in)
	return m, grpcError(err)
}

// AppendEvent appends a TRANSPORT or NOTE annotation.
func (s *LedgerServer) AppendEvent(ctx context.Context, req *ledger.AppendInput) (*model.TraceabilityEvent, error) {
	in := *req
	in.ActorID = actorFromContext(ctx, in.ActorID)
	e, err := s.ledger.Annotate(ctx, in)
	return e, grpcError(err)
}

// ListEvents returns a microlot's chain.
func (s *LedgerServer) ListEvents(ctx context.Context, req *IDRequest) (*EventsResponse, error) {
	chain, err := s.ledger.ListEvents(ctx, req.ID)
	if err != nil {
		return nil, grpcError(err)
	}
	if chain == nil {
		chain = []*model.TraceabilityEvent{}
	}
	return &EventsResponse{Events: chain}, nil
}

// VerifyChain recomputes a microlot's chain.
func (s *LedgerServer) VerifyChain(ctx context.Context, req *IDRequest) (*ledger.Verification, error) {
	v, err := s.ledger.VerifyChain(ctx, req.ID)
	return v, grpcError(err)
}

// ResolveIntegrity clears an integrity flag once the chain verifies again.
func (s *LedgerServer) ResolveIntegrity(ctx context.Context, req *ResolveIntegrityRequest) (*ledger.Verification, error) {
	v, err := s.ledger.ResolveIntegrity(ctx, req.MicrolotID, actorFromContext(ctx, req.ActorID), req.Note)
	if err != nil {
		return nil, grpcError(err)
	}
	return v, nil
}

// RecordQualityControl stores a lab result.
func (s *LedgerServer) RecordQualityControl(ctx context.Context, req *ledger.QualityInput) (*model.QualityControlRecord, error) {
	in := *req
	in.TesterID = actorFromContext(ctx, in.TesterID)
	rec, err := s.ledger.RecordQualityControl(ctx, in)
	return rec, grpcError(err)
}

// ListQualityRecords returns a microlot's lab results.
func (s *LedgerServer) ListQualityRecords(ctx context.Context, req *IDRequest) (*QualityRecordsResponse, error) {
	records, err := s.ledger.ListQualityRecords(ctx, req.ID)
	if err != nil {
		return nil, grpcError(err)
	}
	if records == nil {
		records = []*model.QualityControlRecord{}
	}
	return &QualityRecordsResponse{Records: records}, nil
}

// AttachCertification records a certification.
func (s *LedgerServer) AttachCertification(ctx context.Context, req *ledger.CertificationInput) (*model.CertificationRecord, error) {
	in := *req
	in.ActorID = actorFromContext(ctx, in.ActorID)
	c, err := s.ledger.AttachCertification(ctx, in)
	return c, grpcError(err)
}

// RevokeCertification revokes a certification.
func (s *LedgerServer) RevokeCertification(ctx context.Context, req *RevokeCertificationRequest) (*model.CertificationRecord, error) {
	c, err := s.ledger.RevokeCertification(ctx, req.CertificationID, actorFromContext(ctx, req.ActorID), req.Reason)
	return c, grpcError(err)
}

// ListCertifications returns a microlot's certifications.
func (s *LedgerServer) ListCertifications(ctx context.Context, req *IDRequest) (*CertificationsResponse, error) {
	certs, err := s.ledger.ListCertifications(ctx, req.ID)
	if err != nil {
		return nil, grpcError(err)
	}
	if certs == nil {
		certs = []*model.CertificationRecord{}
	}
	return &CertificationsResponse{Certifications: certs}, nil
}

// GetPublicView returns the redacted provenance view. Every failure is
// reported as NotFound.
func (s *LedgerServer) GetPublicView(ctx context.Context, req *CodeRequest) (*model.PublicView, error) {
	view, err := s.ledger.Project(ctx, req.Code)
	if err != nil {
		if httpStatus(err) == http.StatusInternalServerError {
			s.logger.Error("public view failed", "code", req.Code, "error", err)
		}
		return nil, status.Error(codes.NotFound, "microlot not found")
	}
	return view, nil
}

// GetStats summarises the ledger.
func (s *LedgerServer) GetStats(ctx context.Context, _ *StatsRequest) (*model.Stats, error) {
	stats, err := s.ledger.Stats(ctx)
	return stats, grpcError(err)
}

// ListActors returns the actor roster. It fails with Unimplemented when the
// server tracks no presence.
func (s *LedgerServer) ListActors(_ context.Context, req *ActorsRequest) (*ActorsResponse, error) {
	if s.presence == nil {
		return nil, status.Error(codes.Unimplemented, "actor roster not enabled")
	}
	return &ActorsResponse{Actors: s.presence.Roster(time.Duration(req.StaleSecs) * time.Second)}, nil
}
