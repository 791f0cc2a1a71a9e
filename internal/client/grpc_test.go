package client

import (
	"context"
	"net"
	"testing"

	"github.com/alfredjeanlab/cafetrace/internal/ledger"
	"github.com/alfredjeanlab/cafetrace/internal/model"
	"github.com/alfredjeanlab/cafetrace/internal/server"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/grpc/test/bufconn"
)

// newBufconnClient serves a LedgerServer in memory and returns a GRPCClient
// factory for it.
func newBufconnClient(t *testing.T, authToken string) func(Options) *GRPCClient {
	t.Helper()
	srv := server.NewGRPCServer(newLedgerServer(t), authToken)
	lis := bufconn.Listen(1 << 20)
	go func() { _ = srv.Serve(lis) }()
	t.Cleanup(srv.Stop)

	return func(opts Options) *GRPCClient {
		c, err := NewGRPCClient("passthrough:///bufnet", opts,
			grpc.WithContextDialer(func(ctx context.Context, _ string) (net.Conn, error) {
				return lis.DialContext(ctx)
			}))
		if err != nil {
			t.Fatalf("NewGRPCClient: %v", err)
		}
		t.Cleanup(func() { c.Close() })
		return c
	}
}

func TestGRPCClient_EndToEnd(t *testing.T) {
	dial := newBufconnClient(t, "secret")
	ctx := context.Background()
	op := dial(Options{Token: "secret", Actor: operatorActor})
	admin := dial(Options{Token: "secret", Actor: adminActor})

	health, err := dial(Options{}).Health(ctx)
	if err != nil || health != "ok" {
		t.Fatalf("Health = %q, %v", health, err)
	}

	m, err := op.CreateMicrolot(ctx, &ledger.CreateMicrolotInput{LotRef: "L1", HarvestRef: "H1", QuantityKg: 35, QualityGrade: "AA"})
	if err != nil {
		t.Fatalf("CreateMicrolot: %v", err)
	}
	if m.CreatedBy != operatorActor {
		t.Errorf("created_by = %q", m.CreatedBy)
	}

	got, err := op.GetMicrolot(ctx, m.ID)
	if err != nil || got.Code != m.Code {
		t.Fatalf("GetMicrolot = %+v, %v", got, err)
	}

	for _, et := range []model.EventType{model.EventInProcessing, model.EventDrying} {
		if _, err := op.AdvanceStatus(ctx, &ledger.AppendInput{MicrolotID: m.ID, EventType: et, Description: string(et)}); err != nil {
			t.Fatalf("AdvanceStatus(%s): %v", et, err)
		}
	}

	list, err := op.ListMicrolots(ctx, &model.MicrolotFilter{Status: []model.Status{model.StatusDrying}})
	if err != nil {
		t.Fatal(err)
	}
	if list.Total != 1 || list.Microlots[0].ID != m.ID {
		t.Errorf("list = %+v", list)
	}

	chain, err := op.ListEvents(ctx, m.ID)
	if err != nil || len(chain) != 3 {
		t.Fatalf("ListEvents = %d, %v", len(chain), err)
	}
	v, err := op.VerifyChain(ctx, m.ID)
	if err != nil || !v.Valid || v.Blocks != 3 {
		t.Fatalf("VerifyChain = %+v, %v", v, err)
	}

	stats, err := op.Stats(ctx)
	if err != nil || stats.TotalMicrolots != 1 {
		t.Fatalf("Stats = %+v, %v", stats, err)
	}

	view, err := dial(Options{}).PublicView(ctx, m.Code)
	if err != nil {
		t.Fatalf("PublicView without token: %v", err)
	}
	if view.Status != model.StatusDrying {
		t.Errorf("public status = %s", view.Status)
	}

	err = op.DeactivateMicrolot(ctx, m.ID)
	if status.Code(err) != codes.PermissionDenied {
		t.Fatalf("operator deactivate = %v", err)
	}
	if err := admin.DeactivateMicrolot(ctx, m.ID); err != nil {
		t.Fatalf("admin deactivate: %v", err)
	}
	if _, err := op.GetMicrolot(ctx, m.ID); status.Code(err) != codes.NotFound {
		t.Fatalf("GetMicrolot after deactivate = %v", err)
	}
}

func TestGRPCClient_Unauthenticated(t *testing.T) {
	dial := newBufconnClient(t, "secret")
	c := dial(Options{Actor: operatorActor})

	_, err := c.Stats(context.Background())
	if status.Code(err) != codes.Unauthenticated {
		t.Fatalf("expected Unauthenticated, got %v", err)
	}
}
