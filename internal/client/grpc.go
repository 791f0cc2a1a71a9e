package client

import (
	"context"
	"fmt"
	"time"

	"github.com/alfredjeanlab/cafetrace/internal/ledger"
	"github.com/alfredjeanlab/cafetrace/internal/model"
	"github.com/alfredjeanlab/cafetrace/internal/presence"
	"github.com/alfredjeanlab/cafetrace/internal/server"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/metadata"
)

// GRPCClient implements LedgerClient using the gRPC transport and the
// server's JSON codec.
type GRPCClient struct {
	conn *grpc.ClientConn
	opts Options
}

var _ LedgerClient = (*GRPCClient)(nil)

// NewGRPCClient connects to the given gRPC address and returns a client.
func NewGRPCClient(addr string, opts Options, dialOpts ...grpc.DialOption) (*GRPCClient, error) {
	dialOpts = append([]grpc.DialOption{
		grpc.WithTransportCredentials(insecure.NewCredentials()),
		grpc.WithDefaultCallOptions(grpc.CallContentSubtype(server.CodecName)),
	}, dialOpts...)
	conn, err := grpc.NewClient(addr, dialOpts...)
	if err != nil {
		return nil, fmt.Errorf("grpc dial: %w", err)
	}
	return &GRPCClient{conn: conn, opts: opts}, nil
}

func (c *GRPCClient) Close() error {
	return c.conn.Close()
}

func (c *GRPCClient) outgoing(ctx context.Context) context.Context {
	var kv []string
	if c.opts.Token != "" {
		kv = append(kv, "authorization", "Bearer "+c.opts.Token)
	}
	if c.opts.Actor != "" {
		kv = append(kv, "x-actor-id", c.opts.Actor)
	}
	if len(kv) == 0 {
		return ctx
	}
	return metadata.AppendToOutgoingContext(ctx, kv...)
}

func (c *GRPCClient) invoke(ctx context.Context, method string, req, resp any) error {
	return c.conn.Invoke(c.outgoing(ctx), "/"+server.ServiceName+"/"+method, req, resp)
}

// --- Microlots ---

func (c *GRPCClient) CreateMicrolot(ctx context.Context, in *ledger.CreateMicrolotInput) (*model.Microlot, error) {
	var m model.Microlot
	if err := c.invoke(ctx, "CreateMicrolot", in, &m); err != nil {
		return nil, err
	}
	return &m, nil
}

func (c *GRPCClient) GetMicrolot(ctx context.Context, id string) (*model.Microlot, error) {
	var m model.Microlot
	if err := c.invoke(ctx, "GetMicrolot", &server.IDRequest{ID: id}, &m); err != nil {
		return nil, err
	}
	return &m, nil
}

func (c *GRPCClient) ListMicrolots(ctx context.Context, f *model.MicrolotFilter) (*ListMicrolotsResponse, error) {
	var resp server.ListMicrolotsResponse
	if err := c.invoke(ctx, "ListMicrolots", f, &resp); err != nil {
		return nil, err
	}
	return &ListMicrolotsResponse{Microlots: resp.Microlots, Total: resp.Total}, nil
}

func (c *GRPCClient) DeactivateMicrolot(ctx context.Context, id string) error {
	return c.invoke(ctx, "DeactivateMicrolot", &server.IDRequest{ID: id}, &server.Empty{})
}

// --- Chain ---

func (c *GRPCClient) AdvanceStatus(ctx context.Context, in *ledger.AppendInput) (*model.Microlot, error) {
	var m model.Microlot
	if err := c.invoke(ctx, "AdvanceStatus", in, &m); err != nil {
		return nil, err
	}
	return &m, nil
}

func (c *GRPCClient) AppendEvent(ctx context.Context, in *ledger.AppendInput) (*model.TraceabilityEvent, error) {
	var e model.TraceabilityEvent
	if err := c.invoke(ctx, "AppendEvent", in, &e); err != nil {
		return nil, err
	}
	return &e, nil
}

func (c *GRPCClient) ListEvents(ctx context.Context, microlotID string) ([]*model.TraceabilityEvent, error) {
	var resp server.EventsResponse
	if err := c.invoke(ctx, "ListEvents", &server.IDRequest{ID: microlotID}, &resp); err != nil {
		return nil, err
	}
	return resp.Events, nil
}

func (c *GRPCClient) VerifyChain(ctx context.Context, microlotID string) (*ledger.Verification, error) {
	var v ledger.Verification
	if err := c.invoke(ctx, "VerifyChain", &server.IDRequest{ID: microlotID}, &v); err != nil {
		return nil, err
	}
	return &v, nil
}

func (c *GRPCClient) ResolveIntegrity(ctx context.Context, microlotID, note string) (*ledger.Verification, error) {
	var v ledger.Verification
	req := &server.ResolveIntegrityRequest{MicrolotID: microlotID, Note: note}
	if err := c.invoke(ctx, "ResolveIntegrity", req, &v); err != nil {
		return nil, err
	}
	return &v, nil
}

// --- Quality and certifications ---

func (c *GRPCClient) RecordQualityControl(ctx context.Context, in *ledger.QualityInput) (*model.QualityControlRecord, error) {
	var rec model.QualityControlRecord
	if err := c.invoke(ctx, "RecordQualityControl", in, &rec); err != nil {
		return nil, err
	}
	return &rec, nil
}

func (c *GRPCClient) ListQualityRecords(ctx context.Context, microlotID string) ([]*model.QualityControlRecord, error) {
	var resp server.QualityRecordsResponse
	if err := c.invoke(ctx, "ListQualityRecords", &server.IDRequest{ID: microlotID}, &resp); err != nil {
		return nil, err
	}
	return resp.Records, nil
}

func (c *GRPCClient) AttachCertification(ctx context.Context, in *ledger.CertificationInput) (*model.CertificationRecord, error) {
	var rec model.CertificationRecord
	if err := c.invoke(ctx, "AttachCertification", in, &rec); err != nil {
		return nil, err
	}
	return &rec, nil
}

func (c *GRPCClient) RevokeCertification(ctx context.Context, certID, reason string) (*model.CertificationRecord, error) {
	var rec model.CertificationRecord
	req := &server.RevokeCertificationRequest{CertificationID: certID, Reason: reason}
	if err := c.invoke(ctx, "RevokeCertification", req, &rec); err != nil {
		return nil, err
	}
	return &rec, nil
}

func (c *GRPCClient) ListCertifications(ctx context.Context, microlotID string) ([]*model.CertificationRecord, error) {
	var resp server.CertificationsResponse
	if err := c.invoke(ctx, "ListCertifications", &server.IDRequest{ID: microlotID}, &resp); err != nil {
		return nil, err
	}
	return resp.Certifications, nil
}

// --- Read side ---

func (c *GRPCClient) PublicView(ctx context.Context, code string) (*model.PublicView, error) {
	var view model.PublicView
	if err := c.invoke(ctx, "GetPublicView", &server.CodeRequest{Code: code}, &view); err != nil {
		return nil, err
	}
	return &view, nil
}

func (c *GRPCClient) Stats(ctx context.Context) (*model.Stats, error) {
	var stats model.Stats
	if err := c.invoke(ctx, "GetStats", &server.StatsRequest{}, &stats); err != nil {
		return nil, err
	}
	return &stats, nil
}

func (c *GRPCClient) Actors(ctx context.Context, stale time.Duration) ([]presence.Entry, error) {
	var resp server.ActorsResponse
	if err := c.invoke(ctx, "ListActors", &server.ActorsRequest{StaleSecs: int(stale / time.Second)}, &resp); err != nil {
		return nil, err
	}
	return resp.Actors, nil
}

// Health uses the standard gRPC health service.
func (c *GRPCClient) Health(ctx context.Context) (string, error) {
	resp, err := healthpb.NewHealthClient(c.conn).Check(c.outgoing(ctx), &healthpb.HealthCheckRequest{Service: server.ServiceName},
		grpc.CallContentSubtype("proto"))
	if err != nil {
		return "", err
	}
	if resp.GetStatus() == healthpb.HealthCheckResponse_SERVING {
		return "ok", nil
	}
	return resp.GetStatus().String(), nil
}
