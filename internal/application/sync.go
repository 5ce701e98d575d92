package application

import (
	"context"
	"sync"
	"time"

	"github.com/atvirokodosprendimai/credbook/internal/domain"
	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

const DefaultPushTimeout = 15 * time.Second

// Reconciler replicates the local state to the shared store and merges the
// shared store back in. A nil remote turns both directions into no-ops so a
// gate can run fully offline.
type Reconciler struct {
	remote      domain.RemoteStore
	log         logrus.FieldLogger
	tracer      trace.Tracer
	pushTimeout time.Duration
	inflight    sync.WaitGroup
}

func NewReconciler(remote domain.RemoteStore, log logrus.FieldLogger, pushTimeout time.Duration) *Reconciler {
	if pushTimeout <= 0 {
		pushTimeout = DefaultPushTimeout
	}
	return &Reconciler{
		remote:      remote,
		log:         log.WithField("component", "sync"),
		tracer:      otel.Tracer("github.com/atvirokodosprendimai/credbook/internal/application"),
		pushTimeout: pushTimeout,
	}
}

func (r *Reconciler) Enabled() bool {
	return r.remote != nil
}

// Pull fetches the shared store and merges it into state. On a fetch error
// the input state is returned untouched together with the error.
func (r *Reconciler) Pull(ctx context.Context, state domain.AppState) (domain.AppState, error) {
	snap, err := r.Fetch(ctx)
	if err != nil {
		return state, err
	}
	return Merge(state, snap), nil
}

// Fetch reads the shared store without merging, so the caller can merge
// under its own lock after the network round trip.
func (r *Reconciler) Fetch(ctx context.Context) (domain.RemoteSnapshot, error) {
	if r.remote == nil {
		return domain.RemoteSnapshot{}, nil
	}
	ctx, span := r.tracer.Start(ctx, "remote.pull")
	defer span.End()

	snap, err := r.remote.FetchAll(ctx)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		r.log.WithError(err).Warn("remote pull failed, keeping local state")
		return domain.RemoteSnapshot{}, err
	}
	r.log.WithFields(logrus.Fields{
		"tickets":   len(snap.Tickets),
		"movements": len(snap.Movements),
		"operators": len(snap.Operators),
	}).Info("remote pull fetched")
	return snap, nil
}

// Merge replaces each table of state with the remote one when the remote
// table is present and non-empty. Local users, pricing and the active cost
// center are never touched.
func Merge(state domain.AppState, snap domain.RemoteSnapshot) domain.AppState {
	next := state.Clone()
	if len(snap.Operators) > 0 {
		next.Operators = append([]domain.User{}, snap.Operators...)
	}
	if len(snap.Companies) > 0 {
		next.Companies = append([]domain.Company{}, snap.Companies...)
	}
	if len(snap.Trucks) > 0 {
		next.Trucks = append([]domain.Truck{}, snap.Trucks...)
	}
	if len(snap.Services) > 0 {
		next.Services = append([]domain.ServiceItem{}, snap.Services...)
	}
	if len(snap.CostCenters) > 0 {
		next.CostCenters = append([]domain.CostCenter{}, snap.CostCenters...)
	}
	if len(snap.Tickets) > 0 {
		next.Tickets = make([]domain.Ticket, 0, len(snap.Tickets))
		for _, t := range snap.Tickets {
			next.Tickets = append(next.Tickets, t.Clone())
		}
	}
	if len(snap.Movements) > 0 {
		next.Movements = append([]domain.Movement{}, snap.Movements...)
	}
	return next
}

// Push replicates state in the background. It returns immediately.
func (r *Reconciler) Push(state domain.AppState) {
	if r.remote == nil {
		return
	}
	snapshot := state.Clone()
	r.inflight.Add(1)
	go func() {
		defer r.inflight.Done()
		r.PushNow(context.Background(), snapshot)
	}()
}

// PushNow upserts every replicated table in order and returns the per-table
// errors. A failing table does not stop the ones after it.
func (r *Reconciler) PushNow(ctx context.Context, state domain.AppState) map[string]error {
	failures := map[string]error{}
	if r.remote == nil {
		return failures
	}
	ctx, span := r.tracer.Start(ctx, "remote.push")
	defer span.End()

	for _, table := range domain.PushTables {
		if err := r.pushTable(ctx, table, state); err != nil {
			failures[table] = err
		}
	}
	if len(failures) > 0 {
		span.SetStatus(codes.Error, "some tables failed")
	}
	return failures
}

func (r *Reconciler) pushTable(ctx context.Context, table string, state domain.AppState) error {
	rows, n := tableRows(state, table)
	ctx, cancel := context.WithTimeout(ctx, r.pushTimeout)
	defer cancel()
	ctx, span := r.tracer.Start(ctx, "remote.upsert", trace.WithAttributes(
		attribute.String("table", table),
		attribute.Int("rows", n),
	))
	defer span.End()

	log := r.log.WithFields(logrus.Fields{"table": table, "rows": n})
	if err := r.remote.Upsert(ctx, table, rows); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		log.WithError(err).Error("remote upsert failed")
		return err
	}
	log.Debug("remote upsert ok")
	return nil
}

// Wait blocks until every background push has finished.
func (r *Reconciler) Wait() {
	r.inflight.Wait()
}

// Run calls pull on every tick until ctx is done.
func (r *Reconciler) Run(ctx context.Context, every time.Duration, pull func(context.Context) error) {
	if r.remote == nil || every <= 0 {
		return
	}
	ticker := time.NewTicker(every)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := pull(ctx); err != nil {
				r.log.WithError(err).Debug("periodic pull skipped")
			}
		}
	}
}

func tableRows(state domain.AppState, table string) (any, int) {
	switch table {
	case domain.TableCompanies:
		return state.Companies, len(state.Companies)
	case domain.TableTrucks:
		return state.Trucks, len(state.Trucks)
	case domain.TableServices:
		return state.Services, len(state.Services)
	case domain.TableCostCenters:
		return state.CostCenters, len(state.CostCenters)
	case domain.TableTickets:
		return state.Tickets, len(state.Tickets)
	case domain.TableMovements:
		return state.Movements, len(state.Movements)
	case domain.TableOperators:
		return state.Operators, len(state.Operators)
	}
	return nil, 0
}
