package application

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/atvirokodosprendimai/credbook/internal/clock"
	"github.com/atvirokodosprendimai/credbook/internal/domain"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
	"golang.org/x/crypto/bcrypt"
)

type memStore struct {
	mu      sync.Mutex
	initial domain.AppState
	saved   []domain.AppState
}

func (m *memStore) Load(context.Context) domain.AppState {
	return m.initial.Clone()
}

func (m *memStore) Save(_ context.Context, state domain.AppState) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.saved = append(m.saved, state.Clone())
}

func (m *memStore) last() (domain.AppState, int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.saved) == 0 {
		return domain.AppState{}, 0
	}
	return m.saved[len(m.saved)-1], len(m.saved)
}

type fakeRemote struct {
	mu        sync.Mutex
	snap      domain.RemoteSnapshot
	fetchErr  error
	failTable string
	calls     []string
	rows      map[string]int

	// When hold is set the next FetchAll signals fetching and waits on hold.
	hold     chan struct{}
	fetching chan struct{}
}

func (f *fakeRemote) FetchAll(context.Context) (domain.RemoteSnapshot, error) {
	f.mu.Lock()
	hold := f.hold
	f.hold = nil
	f.mu.Unlock()
	if hold != nil {
		close(f.fetching)
		<-hold
	}
	if f.fetchErr != nil {
		return domain.RemoteSnapshot{}, f.fetchErr
	}
	return f.snap, nil
}

func (f *fakeRemote) Upsert(_ context.Context, table string, rows any) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, table)
	if f.rows == nil {
		f.rows = map[string]int{}
	}
	_, n := tableRowsCount(rows)
	f.rows[table] = n
	if table == f.failTable {
		return fmt.Errorf("upsert %s: connection reset", table)
	}
	return nil
}

func (f *fakeRemote) callLog() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string{}, f.calls...)
}

func tableRowsCount(rows any) (string, int) {
	switch v := rows.(type) {
	case []domain.Company:
		return "companies", len(v)
	case []domain.Truck:
		return "trucks", len(v)
	case []domain.ServiceItem:
		return "services", len(v)
	case []domain.CostCenter:
		return "cost_centers", len(v)
	case []domain.Ticket:
		return "tickets", len(v)
	case []domain.Movement:
		return "movements", len(v)
	}
	return "", -1
}

type recordedEvent struct {
	key     string
	payload any
}

type fakePublisher struct {
	mu     sync.Mutex
	events []recordedEvent
}

func (p *fakePublisher) PublishJSON(_ context.Context, key string, v any) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, recordedEvent{key: key, payload: v})
	return nil
}

func (p *fakePublisher) keys() map[string]int {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := map[string]int{}
	for _, e := range p.events {
		out[e.key]++
	}
	return out
}

func quietLogger() logrus.FieldLogger {
	l := logrus.New()
	l.SetOutput(io.Discard)
	return l
}

func mustHash(t *testing.T, password string) string {
	t.Helper()
	b, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.MinCost)
	if err != nil {
		t.Fatalf("hash: %v", err)
	}
	return string(b)
}

func sequence(prefix string) domain.IDFunc {
	var mu sync.Mutex
	n := 0
	return func() string {
		mu.Lock()
		defer mu.Unlock()
		n++
		return fmt.Sprintf("%s-%d", prefix, n)
	}
}

var testStart = time.Date(2026, 3, 1, 7, 0, 0, 0, time.UTC)

func seededState(t *testing.T) domain.AppState {
	t.Helper()
	cc := "cc-1"
	st := domain.DefaultState()
	st.Users = []domain.User{{ID: "u-admin", Name: "Ana", Username: "admin", PasswordHash: mustHash(t, "admin"), Role: domain.RoleAdmin}}
	st.Operators = []domain.User{{ID: "op-1", Name: "Bia", Username: "bia", PasswordHash: mustHash(t, "secret"), Role: domain.RoleOperator}}
	st.CostCenters = []domain.CostCenter{{ID: cc, Name: "Norte"}}
	st.ActiveCostCenterID = &cc
	st.Services = []domain.ServiceItem{
		{ID: "svc-a", Name: "Descarga", Price: decimal.NewFromInt(10)},
		{ID: "svc-b", Name: "Pesagem", Price: decimal.NewFromInt(5)},
	}
	return st
}

type harness struct {
	svc    *Service
	store  *memStore
	remote *fakeRemote
	events *fakePublisher
	clock  *clock.FakeClock
}

func newHarness(t *testing.T, remote *fakeRemote) *harness {
	t.Helper()
	h := &harness{
		store:  &memStore{initial: seededState(t)},
		remote: remote,
		events: &fakePublisher{},
		clock:  clock.Fake(testStart),
	}
	var rs domain.RemoteStore
	if remote != nil {
		rs = remote
	}
	tokens, err := NewTokenIssuer("test-secret", time.Hour, h.clock)
	if err != nil {
		t.Fatalf("token issuer: %v", err)
	}
	svc, err := NewService(context.Background(), h.store, NewReconciler(rs, quietLogger(), time.Second), Options{
		Events: h.events,
		Tokens: tokens,
		Clock:  h.clock,
		NewID:  sequence("id"),
		Log:    quietLogger(),
	})
	if err != nil {
		t.Fatalf("new service: %v", err)
	}
	h.svc = svc
	return h
}

func (h *harness) login(t *testing.T, username, password string) LoginResult {
	t.Helper()
	res, err := h.svc.Login(context.Background(), username, password)
	if err != nil {
		t.Fatalf("login %s: %v", username, err)
	}
	return res
}

func checkInInput() domain.CheckInInput {
	return domain.CheckInInput{CompanyName: "Lima", DriverName: "João", Plate: "abc1d23", CargoType: "Paletes"}
}

func TestLoginChecksUsersAndOperators(t *testing.T) {
	h := newHarness(t, nil)

	res := h.login(t, "bia", "secret")
	if res.User.ID != "op-1" || res.Token == "" {
		t.Fatalf("unexpected login result: %+v", res)
	}
	sess := h.svc.CurrentSession()
	if sess == nil || sess.Actor != "Operador - Bia" {
		t.Fatalf("unexpected session: %+v", sess)
	}

	h.login(t, "admin", "admin")
	if got := h.svc.CurrentSession(); got.Actor != "Admin - Ana" {
		t.Fatalf("expected admin actor, got %q", got.Actor)
	}
}

func TestLoginFailureCreatesNoSession(t *testing.T) {
	h := newHarness(t, nil)

	_, err := h.svc.Login(context.Background(), "bia", "wrong")
	if !errors.Is(err, domain.ErrInvalidCredentials) {
		t.Fatalf("expected invalid credentials, got %v", err)
	}
	if h.svc.CurrentSession() != nil {
		t.Fatalf("failed login must not create a session")
	}
	if _, err := h.svc.Login(context.Background(), "ghost", "admin"); !errors.Is(err, domain.ErrInvalidCredentials) {
		t.Fatalf("expected invalid credentials for unknown user, got %v", err)
	}
}

func TestLoginSeesOperatorsMergedAfterStartup(t *testing.T) {
	remote := &fakeRemote{snap: domain.RemoteSnapshot{
		Operators: []domain.User{{ID: "op-9", Name: "Caio", Username: "caio", PasswordHash: mustHash(t, "pw"), Role: domain.RoleOperator}},
	}}
	h := newHarness(t, remote)

	if _, err := h.svc.Login(context.Background(), "caio", "pw"); !errors.Is(err, domain.ErrInvalidCredentials) {
		t.Fatalf("operator should be unknown before the pull, got %v", err)
	}
	if err := h.svc.Pull(context.Background()); err != nil {
		t.Fatalf("pull: %v", err)
	}
	h.login(t, "caio", "pw")
	h.login(t, "admin", "admin")
}

func TestAuthenticateRequiresLiveSession(t *testing.T) {
	h := newHarness(t, nil)
	res := h.login(t, "admin", "admin")

	sess, err := h.svc.Authenticate(res.Token)
	if err != nil || sess.User.ID != "u-admin" {
		t.Fatalf("authenticate: %+v %v", sess, err)
	}
	if _, err := h.svc.Authenticate("garbage"); !errors.Is(err, domain.ErrNotAuthenticated) {
		t.Fatalf("expected not authenticated for garbage token, got %v", err)
	}

	h.svc.Logout(context.Background())
	if _, err := h.svc.Authenticate(res.Token); !errors.Is(err, domain.ErrNotAuthenticated) {
		t.Fatalf("token must stop working after logout, got %v", err)
	}

	h.login(t, "admin", "admin")
	h.clock.Advance(2 * time.Hour)
	if _, err := h.svc.Authenticate(res.Token); !errors.Is(err, domain.ErrNotAuthenticated) {
		t.Fatalf("expired token accepted: %v", err)
	}
}

func TestCommandsRequireSession(t *testing.T) {
	h := newHarness(t, nil)
	ctx := context.Background()

	if _, err := h.svc.CheckIn(ctx, checkInInput()); !errors.Is(err, domain.ErrNotAuthenticated) {
		t.Fatalf("expected not authenticated, got %v", err)
	}
	if _, err := h.svc.UpsertCompany(ctx, domain.Company{Name: "X"}); !errors.Is(err, domain.ErrNotAuthenticated) {
		t.Fatalf("expected not authenticated, got %v", err)
	}
	if _, n := h.store.last(); n != 0 {
		t.Fatalf("nothing should have been saved, got %d saves", n)
	}
}

func TestEachCommandSavesBeforeReturning(t *testing.T) {
	h := newHarness(t, nil)
	ctx := context.Background()
	h.login(t, "admin", "admin")

	first, err := h.svc.CheckIn(ctx, checkInInput())
	if err != nil {
		t.Fatalf("check in: %v", err)
	}
	saved, n := h.store.last()
	if n != 1 || len(saved.Tickets) != 1 || saved.Tickets[0].ID != first.ID {
		t.Fatalf("check in not persisted: %d saves, %+v", n, saved.Tickets)
	}

	second, err := h.svc.CheckIn(ctx, checkInInput())
	if err != nil {
		t.Fatalf("second check in: %v", err)
	}
	if first.Number != "0001" || second.Number != "0002" {
		t.Fatalf("unexpected numbers %s %s", first.Number, second.Number)
	}
	if second.Plate != "ABC1D23" {
		t.Fatalf("plate not normalised: %s", second.Plate)
	}

	if _, err := h.svc.ReturnToYard(ctx, first.ID); err != nil {
		t.Fatalf("return to yard: %v", err)
	}
	saved, n = h.store.last()
	if n != 3 || len(saved.Tickets[0].Logs) != 2 {
		t.Fatalf("return to yard not persisted: %d saves, %+v", n, saved.Tickets[0].Logs)
	}
}

func TestCommandsPushOnlyWithSessionAndInOrder(t *testing.T) {
	remote := &fakeRemote{}
	h := newHarness(t, remote)
	ctx := context.Background()

	if err := h.svc.Pull(ctx); err != nil {
		t.Fatalf("pull: %v", err)
	}
	h.svc.Wait()
	if calls := remote.callLog(); len(calls) != 0 {
		t.Fatalf("pull must not push, got %v", calls)
	}

	h.login(t, "admin", "admin")
	if _, err := h.svc.CheckIn(ctx, checkInInput()); err != nil {
		t.Fatalf("check in: %v", err)
	}
	h.svc.Wait()

	calls := remote.callLog()
	if len(calls) != len(domain.PushTables) {
		t.Fatalf("expected one upsert per table, got %v", calls)
	}
	for i, table := range domain.PushTables {
		if calls[i] != table {
			t.Fatalf("push order mismatch: %v", calls)
		}
	}
	if remote.rows[domain.TableTickets] != 1 {
		t.Fatalf("expected the new ticket to be pushed, got %d rows", remote.rows[domain.TableTickets])
	}
}

func TestBillingFlowSettlesAndPublishes(t *testing.T) {
	h := newHarness(t, nil)
	ctx := context.Background()
	h.login(t, "bia", "secret")

	ticket, err := h.svc.CheckIn(ctx, checkInInput())
	if err != nil {
		t.Fatalf("check in: %v", err)
	}
	draft, err := h.svc.StartBilling(ctx, ticket.ID)
	if err != nil {
		t.Fatalf("start billing: %v", err)
	}
	if draft.Company.Name != "Lima" || draft.Ticket == nil {
		t.Fatalf("draft not prefilled: %+v", draft)
	}
	if _, err := h.svc.StartTruckBilling(ctx, "any"); !errors.Is(err, domain.ErrDraftInProgress) {
		t.Fatalf("expected draft in progress, got %v", err)
	}
	if _, err := h.svc.AddToDraft(ctx, "svc-a", 2); err != nil {
		t.Fatalf("add svc-a: %v", err)
	}
	if _, err := h.svc.AddToDraft(ctx, "svc-b", 1); err != nil {
		t.Fatalf("add svc-b: %v", err)
	}
	draft, err = h.svc.SetDraftQuantity(ctx, "svc-b", 3)
	if err != nil {
		t.Fatalf("set quantity: %v", err)
	}
	if !draft.Total().Equal(decimal.NewFromInt(35)) {
		t.Fatalf("expected total 35, got %s", draft.Total())
	}

	h.clock.Advance(30 * time.Minute)
	result, err := h.svc.Settle(ctx, domain.PaymentPix)
	if err != nil {
		t.Fatalf("settle: %v", err)
	}
	h.svc.Wait()

	if len(result.Movements) != 2 || !result.Total.Equal(decimal.NewFromInt(35)) {
		t.Fatalf("unexpected settlement: %+v", result)
	}
	if _, err := h.svc.Draft(); !errors.Is(err, domain.ErrNoDraft) {
		t.Fatalf("draft should be cleared, got %v", err)
	}
	got, err := h.svc.Ticket(ticket.ID)
	if err != nil {
		t.Fatalf("ticket: %v", err)
	}
	if got.Status != domain.TicketCompleted || got.ExitTimestamp == nil || !got.ExitTimestamp.Equal(testStart.Add(30*time.Minute)) {
		t.Fatalf("ticket not completed: %+v", got)
	}
	last := got.Logs[len(got.Logs)-1]
	if last.Actor != "Operador - Bia" || last.Action != domain.ActionCompleted {
		t.Fatalf("unexpected completion log: %+v", last)
	}

	keys := h.events.keys()
	if keys[EventMovementsSettled] != 1 || keys[EventTicketCompleted] != 1 {
		t.Fatalf("unexpected events: %v", keys)
	}
	if batches := h.svc.History(); len(batches) != 1 || batches[0].BatchID != result.BatchID {
		t.Fatalf("unexpected history: %+v", batches)
	}
	if totals := h.svc.Totals(); totals.Movements != 2 || !totals.Revenue.Equal(decimal.NewFromInt(35)) || totals.Open != 0 {
		t.Fatalf("unexpected totals: %+v", totals)
	}
}

func TestSettleFailureKeepsDraftAndState(t *testing.T) {
	h := newHarness(t, nil)
	ctx := context.Background()
	h.login(t, "admin", "admin")

	ticket, err := h.svc.CheckIn(ctx, checkInInput())
	if err != nil {
		t.Fatalf("check in: %v", err)
	}
	if _, err := h.svc.StartBilling(ctx, ticket.ID); err != nil {
		t.Fatalf("start billing: %v", err)
	}
	if _, err := h.svc.Settle(ctx, domain.PaymentCash); !errors.Is(err, domain.ErrEmptyCart) {
		t.Fatalf("expected empty cart, got %v", err)
	}
	if _, err := h.svc.AddToDraft(ctx, "svc-a", 1); err != nil {
		t.Fatalf("add: %v", err)
	}
	if _, err := h.svc.Settle(ctx, domain.PaymentMethod("cheque")); !errors.Is(err, domain.ErrInvalidPaymentMethod) {
		t.Fatalf("expected invalid payment method, got %v", err)
	}
	if _, err := h.svc.Draft(); err != nil {
		t.Fatalf("draft should survive a failed settle: %v", err)
	}
	if st := h.svc.State(); len(st.Movements) != 0 || st.Tickets[0].Status != domain.TicketOpen {
		t.Fatalf("failed settle changed state: %+v", st)
	}
}

func TestCancelDropsDraftForTicket(t *testing.T) {
	h := newHarness(t, nil)
	ctx := context.Background()
	h.login(t, "admin", "admin")

	ticket, err := h.svc.CheckIn(ctx, checkInInput())
	if err != nil {
		t.Fatalf("check in: %v", err)
	}
	if _, err := h.svc.StartBilling(ctx, ticket.ID); err != nil {
		t.Fatalf("start billing: %v", err)
	}
	if _, err := h.svc.CancelTicket(ctx, ticket.ID, "  "); !errors.Is(err, domain.ErrReasonRequired) {
		t.Fatalf("expected reason required, got %v", err)
	}
	cancelled, err := h.svc.CancelTicket(ctx, ticket.ID, "motorista desistiu")
	if err != nil {
		t.Fatalf("cancel: %v", err)
	}
	h.svc.Wait()
	if cancelled.Status != domain.TicketCancelled {
		t.Fatalf("unexpected status %s", cancelled.Status)
	}
	if _, err := h.svc.Draft(); !errors.Is(err, domain.ErrNoDraft) {
		t.Fatalf("draft for a cancelled ticket must be dropped, got %v", err)
	}
	if _, err := h.svc.StartBilling(ctx, ticket.ID); !errors.Is(err, domain.ErrTicketClosed) {
		t.Fatalf("expected ticket closed, got %v", err)
	}
	if h.events.keys()[EventTicketCancelled] != 1 {
		t.Fatalf("expected a cancel event")
	}
}

func TestCancelDraftLeavesTicketUntouched(t *testing.T) {
	h := newHarness(t, nil)
	ctx := context.Background()
	h.login(t, "admin", "admin")

	ticket, err := h.svc.CheckIn(ctx, checkInInput())
	if err != nil {
		t.Fatalf("check in: %v", err)
	}
	if _, err := h.svc.StartBilling(ctx, ticket.ID); err != nil {
		t.Fatalf("start billing: %v", err)
	}
	if _, err := h.svc.AddToDraft(ctx, "svc-a", 1); err != nil {
		t.Fatalf("add: %v", err)
	}
	if err := h.svc.CancelDraft(ctx); err != nil {
		t.Fatalf("cancel draft: %v", err)
	}
	got, _ := h.svc.Ticket(ticket.ID)
	if got.Status != domain.TicketOpen || len(got.Logs) != 1 {
		t.Fatalf("ticket changed by abandoned draft: %+v", got)
	}
	if st := h.svc.State(); len(st.Movements) != 0 {
		t.Fatalf("abandoned draft created movements")
	}
	if err := h.svc.CancelDraft(ctx); !errors.Is(err, domain.ErrNoDraft) {
		t.Fatalf("expected no draft, got %v", err)
	}
}

func TestRegistryCommands(t *testing.T) {
	h := newHarness(t, nil)
	ctx := context.Background()
	h.login(t, "admin", "admin")

	company, err := h.svc.UpsertCompany(ctx, domain.Company{Name: " Lima Transportes "})
	if err != nil {
		t.Fatalf("company: %v", err)
	}
	if company.ID == "" || company.Name != "Lima Transportes" {
		t.Fatalf("unexpected company %+v", company)
	}
	if _, err := h.svc.UpsertTruck(ctx, domain.Truck{Plate: "xyz", CompanyID: "missing"}); !errors.Is(err, domain.ErrInvalidInput) {
		t.Fatalf("expected invalid input for unknown company, got %v", err)
	}
	truck, err := h.svc.UpsertTruck(ctx, domain.Truck{Plate: "xyz9k88", CompanyID: company.ID, DriverName: "Rui"})
	if err != nil {
		t.Fatalf("truck: %v", err)
	}

	company.Contact = "(11) 5555-0000"
	if _, err := h.svc.UpsertCompany(ctx, company); err != nil {
		t.Fatalf("update company: %v", err)
	}
	if st := h.svc.State(); len(st.Companies) != 1 || st.Companies[0].Contact == "" {
		t.Fatalf("company not updated in place: %+v", st.Companies)
	}

	draft, err := h.svc.StartTruckBilling(ctx, truck.ID)
	if err != nil {
		t.Fatalf("truck billing: %v", err)
	}
	if draft.Company.ID != company.ID || draft.Truck == nil || draft.Truck.Plate != "XYZ9K88" {
		t.Fatalf("unexpected truck draft %+v", draft)
	}

	if err := h.svc.SetActiveCostCenter(ctx, "nope"); !errors.Is(err, domain.ErrInvalidInput) {
		t.Fatalf("expected invalid input, got %v", err)
	}
	if err := h.svc.SetActiveCostCenter(ctx, ""); err != nil {
		t.Fatalf("clear cost center: %v", err)
	}
	if st := h.svc.State(); st.ActiveCostCenterID != nil {
		t.Fatalf("active cost center not cleared")
	}
	if _, err := h.svc.CheckIn(ctx, checkInInput()); !errors.Is(err, domain.ErrNoCostCenter) {
		t.Fatalf("expected no cost center, got %v", err)
	}

	if _, err := h.svc.UpdatePricing(ctx, domain.Pricing{PricePerPallet: decimal.NewFromInt(-1)}); !errors.Is(err, domain.ErrInvalidInput) {
		t.Fatalf("expected invalid pricing, got %v", err)
	}
	p, err := h.svc.UpdatePricing(ctx, domain.Pricing{PricePerPallet: decimal.RequireFromString("12.5"), PricePerBox: decimal.NewFromInt(1)})
	if err != nil || !p.PricePerPallet.Equal(decimal.RequireFromString("12.5")) {
		t.Fatalf("pricing: %+v %v", p, err)
	}
}

func TestPullFailureKeepsLocalState(t *testing.T) {
	remote := &fakeRemote{fetchErr: errors.New("remote unavailable")}
	h := newHarness(t, remote)

	before := h.svc.State()
	if err := h.svc.Pull(context.Background()); err == nil {
		t.Fatalf("expected pull error")
	}
	after := h.svc.State()
	if len(after.Services) != len(before.Services) || len(after.Operators) != 1 {
		t.Fatalf("state changed on failed pull: %+v", after)
	}
	if _, n := h.store.last(); n != 0 {
		t.Fatalf("failed pull must not save")
	}
}

func TestPullSkipsMergeWhenCommandLandsDuringFetch(t *testing.T) {
	hold := make(chan struct{})
	remote := &fakeRemote{
		snap: domain.RemoteSnapshot{
			Tickets: []domain.Ticket{{ID: "t-remote", Number: "0009", Status: domain.TicketOpen, Logs: []domain.TicketLog{}}},
		},
		hold:     hold,
		fetching: make(chan struct{}),
	}
	h := newHarness(t, remote)
	h.login(t, "admin", "admin")
	ctx := context.Background()

	pulled := make(chan error, 1)
	go func() { pulled <- h.svc.Pull(ctx) }()
	<-remote.fetching

	ticket, err := h.svc.CheckIn(ctx, checkInInput())
	if err != nil {
		t.Fatalf("check in: %v", err)
	}
	close(hold)

	if err := <-pulled; !errors.Is(err, ErrStaleFetch) {
		t.Fatalf("expected stale fetch, got %v", err)
	}
	if _, err := h.svc.Ticket(ticket.ID); err != nil {
		t.Fatalf("ticket checked in during the fetch was lost: %v", err)
	}
	saved, _ := h.store.last()
	if _, err := saved.FindTicket(ticket.ID); err != nil {
		t.Fatalf("saved snapshot lost the checked-in ticket: %v", err)
	}
	h.svc.Wait()

	if err := h.svc.Pull(ctx); err != nil {
		t.Fatalf("quiet pull: %v", err)
	}
	if _, err := h.svc.Ticket("t-remote"); err != nil {
		t.Fatalf("pull without concurrent commands must merge: %v", err)
	}
}
