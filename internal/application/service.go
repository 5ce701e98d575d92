package application

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/atvirokodosprendimai/credbook/internal/clock"
	"github.com/atvirokodosprendimai/credbook/internal/domain"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
)

const (
	EventTicketCompleted  = "ticket.completed"
	EventTicketCancelled  = "ticket.cancelled"
	EventMovementsSettled = "movements.settled"

	eventTimeout = 5 * time.Second
)

var ErrStaleFetch = errors.New("local state changed during remote fetch")

// Service owns the gate's AppState. Commands run one at a time: the next
// state is computed, saved locally, and only then pushed to the shared store
// in the background.
type Service struct {
	mu      sync.Mutex
	state   domain.AppState
	session *Session
	draft   *domain.TransactionDraft
	// generation counts state replacements; Pull uses it to detect commits
	// that landed while a fetch was in flight.
	generation uint64

	store      domain.SnapshotStore
	reconciler *Reconciler
	events     domain.EventPublisher
	tokens     *TokenIssuer
	clock      clock.Clock
	newID      domain.IDFunc
	log        logrus.FieldLogger

	background sync.WaitGroup
}

type Options struct {
	Events domain.EventPublisher
	Tokens *TokenIssuer
	Clock  clock.Clock
	NewID  domain.IDFunc
	Log    logrus.FieldLogger
}

// NewService loads the local snapshot. It does not contact the shared store;
// call Start for the initial pull and the refresh loop.
func NewService(ctx context.Context, store domain.SnapshotStore, reconciler *Reconciler, opts Options) (*Service, error) {
	if opts.Clock == nil {
		opts.Clock = clock.Real()
	}
	if opts.NewID == nil {
		opts.NewID = uuid.NewString
	}
	if opts.Log == nil {
		opts.Log = logrus.StandardLogger()
	}
	if opts.Tokens == nil {
		tokens, err := NewTokenIssuer("", 0, opts.Clock)
		if err != nil {
			return nil, err
		}
		opts.Tokens = tokens
	}
	if reconciler == nil {
		reconciler = NewReconciler(nil, opts.Log, 0)
	}

	return &Service{
		state:      store.Load(ctx),
		store:      store,
		reconciler: reconciler,
		events:     opts.Events,
		tokens:     opts.Tokens,
		clock:      opts.Clock,
		newID:      opts.NewID,
		log:        opts.Log,
	}, nil
}

// Start pulls once and then keeps pulling every interval until ctx ends.
func (s *Service) Start(ctx context.Context, interval time.Duration) {
	if err := s.Pull(ctx); err != nil {
		s.log.WithError(err).Warn("initial pull failed, continuing with local snapshot")
	}
	s.background.Add(1)
	go func() {
		defer s.background.Done()
		s.reconciler.Run(ctx, interval, s.Pull)
	}()
}

// Wait joins background pushes, event deliveries and the refresh loop.
func (s *Service) Wait() {
	s.background.Wait()
	s.reconciler.Wait()
}

// State returns a deep copy of the current state.
func (s *Service) State() domain.AppState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state.Clone()
}

// Pull merges the shared store into the local state. The fetch happens
// without holding the lock; on failure the local state is left alone. When a
// command commits while the fetch is in flight the fetched tables are older
// than the local ones, so the merge is skipped with ErrStaleFetch and the next
// pull picks the change up after it has been pushed.
func (s *Service) Pull(ctx context.Context) error {
	if !s.reconciler.Enabled() {
		return nil
	}
	s.mu.Lock()
	gen := s.generation
	s.mu.Unlock()

	snap, err := s.reconciler.Fetch(ctx)
	if err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.generation != gen {
		s.log.WithFields(logrus.Fields{"fetched_at": gen, "now": s.generation}).Info("local state changed during pull, merge skipped")
		return ErrStaleFetch
	}
	next := Merge(s.state, snap)
	s.state = next
	s.generation++
	s.store.Save(ctx, next)
	return nil
}

// commit must be called with s.mu held.
func (s *Service) commit(ctx context.Context, next domain.AppState) {
	s.state = next
	s.generation++
	s.store.Save(ctx, next)
	if s.session != nil {
		s.reconciler.Push(next)
	}
}

func (s *Service) actor() (string, error) {
	if s.session == nil {
		return "", domain.ErrNotAuthenticated
	}
	return s.session.Actor, nil
}

func (s *Service) publish(key string, payload any) {
	if s.events == nil {
		return
	}
	s.background.Add(1)
	go func() {
		defer s.background.Done()
		ctx, cancel := context.WithTimeout(context.Background(), eventTimeout)
		defer cancel()
		if err := s.events.PublishJSON(ctx, key, payload); err != nil {
			s.log.WithError(err).WithField("event", key).Warn("event publish failed")
		}
	}()
}

type TicketFilter struct {
	Status       domain.TicketStatus
	CostCenterID string
}

func (s *Service) Tickets(filter TicketFilter) []domain.Ticket {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]domain.Ticket, 0, len(s.state.Tickets))
	for _, t := range s.state.Tickets {
		if filter.Status != "" && t.Status != filter.Status {
			continue
		}
		if filter.CostCenterID != "" && t.CostCenterID != filter.CostCenterID {
			continue
		}
		out = append(out, t.Clone())
	}
	return out
}

func (s *Service) Ticket(id string) (domain.Ticket, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state.FindTicket(id)
}

func (s *Service) History() []domain.Batch {
	s.mu.Lock()
	defer s.mu.Unlock()
	return domain.Batches(s.state.Movements)
}

func (s *Service) CheckIn(ctx context.Context, in domain.CheckInInput) (domain.Ticket, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	actor, err := s.actor()
	if err != nil {
		return domain.Ticket{}, err
	}
	next, ticket, err := domain.CheckIn(s.state, in, actor, s.clock.Now(), s.newID)
	if err != nil {
		return domain.Ticket{}, err
	}
	s.commit(ctx, next)
	s.log.WithFields(logrus.Fields{"ticket_id": ticket.ID, "number": ticket.Number, "plate": ticket.Plate}).Info("ticket registered")
	return ticket, nil
}

func (s *Service) ReturnToYard(ctx context.Context, ticketID string) (domain.Ticket, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	actor, err := s.actor()
	if err != nil {
		return domain.Ticket{}, err
	}
	current, err := s.state.FindTicket(ticketID)
	if err != nil {
		return domain.Ticket{}, err
	}
	updated, err := domain.ReturnToYard(current, actor, s.clock.Now())
	if err != nil {
		return domain.Ticket{}, err
	}
	next, err := s.state.ReplaceTicket(updated)
	if err != nil {
		return domain.Ticket{}, err
	}
	s.dropDraftFor(ticketID)
	s.commit(ctx, next)
	s.log.WithField("ticket_id", ticketID).Info("ticket returned to yard")
	return updated, nil
}

func (s *Service) CancelTicket(ctx context.Context, ticketID, reason string) (domain.Ticket, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	actor, err := s.actor()
	if err != nil {
		return domain.Ticket{}, err
	}
	current, err := s.state.FindTicket(ticketID)
	if err != nil {
		return domain.Ticket{}, err
	}
	updated, err := domain.Cancel(current, actor, strings.TrimSpace(reason), s.clock.Now())
	if err != nil {
		return domain.Ticket{}, err
	}
	next, err := s.state.ReplaceTicket(updated)
	if err != nil {
		return domain.Ticket{}, err
	}
	s.dropDraftFor(ticketID)
	s.commit(ctx, next)
	s.publish(EventTicketCancelled, updated)
	s.log.WithFields(logrus.Fields{"ticket_id": ticketID, "reason": updated.CancellationReason}).Info("ticket cancelled")
	return updated, nil
}

// dropDraftFor abandons the pending draft if it bills ticketID.
func (s *Service) dropDraftFor(ticketID string) {
	if s.draft != nil && s.draft.Ticket != nil && s.draft.Ticket.ID == ticketID {
		s.draft = nil
	}
}

// StartBilling opens the point-of-sale draft for a gate ticket. Only one
// draft may be pending at a time.
func (s *Service) StartBilling(ctx context.Context, ticketID string) (domain.TransactionDraft, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, err := s.actor(); err != nil {
		return domain.TransactionDraft{}, err
	}
	if s.draft != nil {
		return domain.TransactionDraft{}, domain.ErrDraftInProgress
	}
	ticket, err := s.state.FindTicket(ticketID)
	if err != nil {
		return domain.TransactionDraft{}, err
	}
	draft, err := domain.StartBilling(ticket)
	if err != nil {
		return domain.TransactionDraft{}, err
	}
	s.draft = &draft
	return draft, nil
}

func (s *Service) StartTruckBilling(ctx context.Context, truckID string) (domain.TransactionDraft, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, err := s.actor(); err != nil {
		return domain.TransactionDraft{}, err
	}
	if s.draft != nil {
		return domain.TransactionDraft{}, domain.ErrDraftInProgress
	}
	truck, ok := s.state.FindTruck(truckID)
	if !ok {
		return domain.TransactionDraft{}, fmt.Errorf("truck %s: %w", truckID, domain.ErrInvalidInput)
	}
	company, _ := s.state.FindCompany(truck.CompanyID)
	draft := domain.StartTruckBilling(truck, company)
	s.draft = &draft
	return draft, nil
}

func (s *Service) Draft() (domain.TransactionDraft, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.draft == nil {
		return domain.TransactionDraft{}, domain.ErrNoDraft
	}
	return *s.draft, nil
}

func (s *Service) AddToDraft(ctx context.Context, serviceID string, qty int) (domain.TransactionDraft, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.draft == nil {
		return domain.TransactionDraft{}, domain.ErrNoDraft
	}
	svc, err := s.state.FindService(serviceID)
	if err != nil {
		return domain.TransactionDraft{}, err
	}
	updated, err := s.draft.AddItem(svc, qty)
	if err != nil {
		return domain.TransactionDraft{}, err
	}
	s.draft = &updated
	return updated, nil
}

func (s *Service) SetDraftQuantity(ctx context.Context, serviceID string, qty int) (domain.TransactionDraft, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.draft == nil {
		return domain.TransactionDraft{}, domain.ErrNoDraft
	}
	updated, err := s.draft.SetQuantity(serviceID, qty)
	if err != nil {
		return domain.TransactionDraft{}, err
	}
	s.draft = &updated
	return updated, nil
}

func (s *Service) RemoveFromDraft(ctx context.Context, serviceID string) (domain.TransactionDraft, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.draft == nil {
		return domain.TransactionDraft{}, domain.ErrNoDraft
	}
	updated, err := s.draft.RemoveItem(serviceID)
	if err != nil {
		return domain.TransactionDraft{}, err
	}
	s.draft = &updated
	return updated, nil
}

// CancelDraft abandons the pending draft. Nothing is recorded and a linked
// ticket stays as it was.
func (s *Service) CancelDraft(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.draft == nil {
		return domain.ErrNoDraft
	}
	s.draft = nil
	return nil
}

// Settle confirms payment of the pending draft. The draft is kept when
// settlement fails so the operator can fix it.
func (s *Service) Settle(ctx context.Context, method domain.PaymentMethod) (domain.Settlement, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	actor, err := s.actor()
	if err != nil {
		return domain.Settlement{}, err
	}
	if s.draft == nil {
		return domain.Settlement{}, domain.ErrNoDraft
	}
	next, result, err := domain.Settle(s.state, *s.draft, method, actor, s.clock.Now(), s.newID)
	if err != nil {
		return domain.Settlement{}, err
	}
	s.draft = nil
	s.commit(ctx, next)

	s.publish(EventMovementsSettled, result)
	if result.Ticket != nil {
		s.publish(EventTicketCompleted, *result.Ticket)
	}
	s.log.WithFields(logrus.Fields{
		"batch_id":  result.BatchID,
		"movements": len(result.Movements),
		"total":     result.Total.StringFixed(2),
		"method":    method,
	}).Info("draft settled")
	return result, nil
}

func (s *Service) UpsertCompany(ctx context.Context, c domain.Company) (domain.Company, error) {
	c.Name = strings.TrimSpace(c.Name)
	if c.Name == "" {
		return domain.Company{}, fmt.Errorf("company name is required: %w", domain.ErrInvalidInput)
	}
	return mutateRegistry(ctx, s, func(st *domain.AppState) (domain.Company, error) {
		if c.ID == "" {
			c.ID = s.newID()
		}
		st.Companies = upsertByID(st.Companies, c, func(x domain.Company) string { return x.ID })
		return c, nil
	})
}

func (s *Service) UpsertTruck(ctx context.Context, t domain.Truck) (domain.Truck, error) {
	t.Plate = strings.ToUpper(strings.TrimSpace(t.Plate))
	if t.Plate == "" {
		return domain.Truck{}, fmt.Errorf("plate is required: %w", domain.ErrInvalidInput)
	}
	return mutateRegistry(ctx, s, func(st *domain.AppState) (domain.Truck, error) {
		if t.CompanyID != "" {
			if _, ok := st.FindCompany(t.CompanyID); !ok {
				return domain.Truck{}, fmt.Errorf("company %s: %w", t.CompanyID, domain.ErrInvalidInput)
			}
		}
		if t.ID == "" {
			t.ID = s.newID()
		}
		st.Trucks = upsertByID(st.Trucks, t, func(x domain.Truck) string { return x.ID })
		return t, nil
	})
}

func (s *Service) UpsertService(ctx context.Context, svc domain.ServiceItem) (domain.ServiceItem, error) {
	svc.Name = strings.TrimSpace(svc.Name)
	if svc.Name == "" || svc.Price.IsNegative() {
		return domain.ServiceItem{}, fmt.Errorf("service needs a name and a non-negative price: %w", domain.ErrInvalidInput)
	}
	return mutateRegistry(ctx, s, func(st *domain.AppState) (domain.ServiceItem, error) {
		if svc.ID == "" {
			svc.ID = s.newID()
		}
		st.Services = upsertByID(st.Services, svc, func(x domain.ServiceItem) string { return x.ID })
		return svc, nil
	})
}

func (s *Service) UpsertCostCenter(ctx context.Context, cc domain.CostCenter) (domain.CostCenter, error) {
	cc.Name = strings.TrimSpace(cc.Name)
	if cc.Name == "" {
		return domain.CostCenter{}, fmt.Errorf("cost center name is required: %w", domain.ErrInvalidInput)
	}
	return mutateRegistry(ctx, s, func(st *domain.AppState) (domain.CostCenter, error) {
		if cc.ID == "" {
			cc.ID = s.newID()
		}
		st.CostCenters = upsertByID(st.CostCenters, cc, func(x domain.CostCenter) string { return x.ID })
		return cc, nil
	})
}

// SetActiveCostCenter selects where new tickets and truck bills are booked.
// An empty id clears the selection.
func (s *Service) SetActiveCostCenter(ctx context.Context, id string) error {
	id = strings.TrimSpace(id)
	_, err := mutateRegistry(ctx, s, func(st *domain.AppState) (struct{}, error) {
		if id == "" {
			st.ActiveCostCenterID = nil
			return struct{}{}, nil
		}
		if !st.HasCostCenter(id) {
			return struct{}{}, fmt.Errorf("cost center %s: %w", id, domain.ErrInvalidInput)
		}
		st.ActiveCostCenterID = &id
		return struct{}{}, nil
	})
	return err
}

func (s *Service) UpdatePricing(ctx context.Context, p domain.Pricing) (domain.Pricing, error) {
	if p.PricePerPallet.IsNegative() || p.PricePerBox.IsNegative() {
		return domain.Pricing{}, fmt.Errorf("prices must not be negative: %w", domain.ErrInvalidInput)
	}
	return mutateRegistry(ctx, s, func(st *domain.AppState) (domain.Pricing, error) {
		st.Pricing = domain.Pricing{
			PricePerPallet: p.PricePerPallet.Round(4),
			PricePerBox:    p.PricePerBox.Round(4),
		}
		return st.Pricing, nil
	})
}

// mutateRegistry applies fn to a copy of the state and commits it when fn
// succeeds.
func mutateRegistry[T any](ctx context.Context, s *Service, fn func(*domain.AppState) (T, error)) (T, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var zero T
	if _, err := s.actor(); err != nil {
		return zero, err
	}
	next := s.state.Clone()
	out, err := fn(&next)
	if err != nil {
		return zero, err
	}
	s.commit(ctx, next)
	return out, nil
}

func upsertByID[T any](items []T, item T, id func(T) string) []T {
	for i := range items {
		if id(items[i]) == id(item) {
			items[i] = item
			return items
		}
	}
	return append(items, item)
}

// Totals summarises settled movements for the dashboard.
type Totals struct {
	Movements int             `json:"movements"`
	Revenue   decimal.Decimal `json:"revenue"`
	Open      int             `json:"openTickets"`
}

func (s *Service) Totals() Totals {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := Totals{Revenue: decimal.Zero}
	for _, m := range s.state.Movements {
		if m.Status != domain.MovementCompleted {
			continue
		}
		out.Movements++
		out.Revenue = out.Revenue.Add(m.TotalPrice)
	}
	for _, t := range s.state.Tickets {
		if t.Status == domain.TicketOpen {
			out.Open++
		}
	}
	return out
}
