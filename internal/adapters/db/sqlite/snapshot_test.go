package sqlite

import (
	"context"
	"encoding/json"
	"io"
	"path/filepath"
	"testing"
	"time"

	"github.com/atvirokodosprendimai/credbook/internal/domain"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
)

func quietLogger() logrus.FieldLogger {
	l := logrus.New()
	l.SetOutput(io.Discard)
	return l
}

func openStore(t *testing.T, defaults domain.AppState) (*SnapshotStore, context.Context) {
	t.Helper()
	ctx := context.Background()
	db, err := Open(filepath.Join(t.TempDir(), "credbook_test.db"))
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	if err := RunMigrations(ctx, db, quietLogger()); err != nil {
		t.Fatalf("run migrations: %v", err)
	}
	return NewSnapshotStore(db, "", quietLogger(), defaults), ctx
}

func mustJSON(t *testing.T, v any) string {
	t.Helper()
	b, err := json.Marshal(v)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	return string(b)
}

func TestLoadWithoutSnapshotReturnsDefaults(t *testing.T) {
	defaults := domain.DefaultState()
	defaults.Users = append(defaults.Users, domain.User{ID: "u1", Username: "admin", Role: domain.RoleAdmin})
	store, ctx := openStore(t, defaults)

	got := store.Load(ctx)
	if len(got.Users) != 1 || got.Users[0].Username != "admin" {
		t.Fatalf("expected seeded defaults, got %+v", got.Users)
	}
	if got.Tickets == nil || got.Movements == nil {
		t.Fatalf("expected non-nil collections")
	}
}

func TestSaveLoadRoundTrip(t *testing.T) {
	store, ctx := openStore(t, domain.DefaultState())

	entry := time.Date(2026, 3, 14, 9, 30, 0, 123000000, time.UTC)
	exit := entry.Add(90 * time.Minute)
	total := decimal.RequireFromString("25.50")
	cc := "cc-1"
	state := domain.DefaultState()
	state.Users = []domain.User{{ID: "u1", Name: "Ana", Username: "ana", PasswordHash: "$2a$10$x", Role: domain.RoleAdmin}}
	state.Operators = []domain.User{{ID: "op1", Name: "Bia", Username: "bia", Role: domain.RoleOperator}}
	state.Companies = []domain.Company{{ID: "co1", Name: "Lima", CNPJ: "12.345.678/0001-90"}}
	state.Trucks = []domain.Truck{{ID: "tr1", Plate: "ABC1D23", CompanyID: "co1", Type: "Carreta"}}
	state.Services = []domain.ServiceItem{{ID: "s1", Name: "Descarga", Price: decimal.RequireFromString("10.25"), Icon: "pallet"}}
	state.CostCenters = []domain.CostCenter{{ID: cc, Name: "Norte", Address: "Rua 1"}}
	state.ActiveCostCenterID = &cc
	state.Pricing = domain.Pricing{PricePerPallet: decimal.NewFromInt(3), PricePerBox: decimal.RequireFromString("0.5")}
	state.Tickets = []domain.Ticket{
		{
			ID: "t1", Number: "0001", CostCenterID: cc, EntryTimestamp: entry, ExitTimestamp: &exit,
			CompanyName: "Lima", DriverName: "João", Plate: "ABC1D23", Status: domain.TicketCompleted,
			Logs: []domain.TicketLog{
				{Timestamp: entry, Action: domain.ActionRegistered, Actor: "Portaria - Ana"},
				{Timestamp: exit, Action: domain.ActionCompleted, Actor: "Caixa - Bia", Details: "Pagamento confirmado"},
			},
			Items:         []domain.CartItem{{Service: state.Services[0], Quantity: 2}},
			TotalPrice:    &total,
			PaymentMethod: domain.PaymentPix,
		},
		{ID: "t2", Number: "0002", CostCenterID: cc, EntryTimestamp: entry, Status: domain.TicketOpen, Logs: []domain.TicketLog{}},
	}
	state.Movements = []domain.Movement{{
		ID: "m1", Timestamp: exit, CostCenterID: cc, OperationType: domain.OperationService, UnitType: "Descarga",
		Quantity: 2, UnitPriceSnapshot: decimal.RequireFromString("10.25"), TotalPrice: decimal.RequireFromString("20.50"),
		Status: domain.MovementCompleted, PaymentMethod: domain.PaymentPix, BatchID: "b1", TicketID: "t1",
	}}

	store.Save(ctx, state)
	got := store.Load(ctx)

	if mustJSON(t, got) != mustJSON(t, state) {
		t.Fatalf("round trip mismatch:\nwant %s\ngot  %s", mustJSON(t, state), mustJSON(t, got))
	}
	if got.Tickets[1].ExitTimestamp != nil || got.Tickets[1].TotalPrice != nil {
		t.Fatalf("nil pointers did not survive the round trip")
	}
}

func TestRoundTripEmptyStateAndNullCostCenter(t *testing.T) {
	store, ctx := openStore(t, domain.DefaultState())
	state := domain.DefaultState()

	store.Save(ctx, state)
	got := store.Load(ctx)
	if got.ActiveCostCenterID != nil {
		t.Fatalf("expected nil active cost center")
	}
	if mustJSON(t, got) != mustJSON(t, state) {
		t.Fatalf("round trip mismatch: %s", mustJSON(t, got))
	}
}

func TestSaveOverwritesWholeSnapshot(t *testing.T) {
	store, ctx := openStore(t, domain.DefaultState())

	first := domain.DefaultState()
	first.Companies = []domain.Company{{ID: "a"}, {ID: "b"}}
	store.Save(ctx, first)

	second := domain.DefaultState()
	second.Companies = []domain.Company{{ID: "c"}}
	store.Save(ctx, second)

	got := store.Load(ctx)
	if len(got.Companies) != 1 || got.Companies[0].ID != "c" {
		t.Fatalf("expected only the latest snapshot, got %+v", got.Companies)
	}
}

func TestCorruptSnapshotFallsBackToDefaults(t *testing.T) {
	store, ctx := openStore(t, domain.DefaultState())

	if err := store.db.Create(&SnapshotModel{Slot: domain.DefaultSlot, Payload: []byte{0xff, 0x00, 0x13}, SavedAt: time.Now()}).Error; err != nil {
		t.Fatalf("write corrupt row: %v", err)
	}
	got := store.Load(ctx)
	if len(got.Tickets) != 0 || got.Tickets == nil {
		t.Fatalf("expected empty default state, got %+v", got)
	}
}
