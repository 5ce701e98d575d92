package domain

import (
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

type Settlement struct {
	BatchID   string          `json:"batchId"`
	Movements []Movement      `json:"movements"`
	Total     decimal.Decimal `json:"total"`
	Ticket    *Ticket         `json:"ticket,omitempty"`
}

// Settle converts a draft into one Movement per cart line, all sharing one
// batch id, and completes the linked ticket if there is one. Prices come from
// the services in state at this moment, not from the draft. On any error the
// returned state is the input state and nothing is created.
func Settle(state AppState, draft TransactionDraft, method PaymentMethod, actor string, now time.Time, newID IDFunc) (AppState, Settlement, error) {
	if strings.TrimSpace(actor) == "" {
		return state, Settlement{}, ErrActorRequired
	}
	if len(draft.Items) == 0 {
		return state, Settlement{}, ErrEmptyCart
	}
	if !method.Valid() {
		return state, Settlement{}, fmt.Errorf("%q: %w", method, ErrInvalidPaymentMethod)
	}

	var ticket *Ticket
	costCenterID := ""
	if draft.Ticket != nil {
		current, err := state.FindTicket(draft.Ticket.ID)
		if err != nil {
			return state, Settlement{}, err
		}
		if current.Status != TicketOpen {
			return state, Settlement{}, fmt.Errorf("ticket %s is %s: %w", current.Number, current.Status, ErrTicketClosed)
		}
		ticket = &current
		costCenterID = current.CostCenterID
	}
	if costCenterID == "" && state.ActiveCostCenterID != nil {
		costCenterID = *state.ActiveCostCenterID
	}
	if costCenterID == "" {
		return state, Settlement{}, ErrNoCostCenter
	}

	priced := make([]CartItem, 0, len(draft.Items))
	for _, item := range draft.Items {
		if item.Quantity <= 0 {
			return state, Settlement{}, fmt.Errorf("%s: %w", item.Service.Name, ErrInvalidQuantity)
		}
		svc, err := state.FindService(item.Service.ID)
		if err != nil {
			return state, Settlement{}, err
		}
		priced = append(priced, CartItem{Service: svc, Quantity: item.Quantity})
	}

	truckID, companyID := "", draft.Company.ID
	if draft.Truck != nil {
		truckID = draft.Truck.ID
		if companyID == "" {
			companyID = draft.Truck.CompanyID
		}
	}

	batchID := newID()
	total := decimal.Zero
	movements := make([]Movement, 0, len(priced))
	for _, item := range priced {
		line := item.Subtotal()
		total = total.Add(line)
		m := Movement{
			ID:                newID(),
			Timestamp:         now,
			TruckID:           truckID,
			CompanyID:         companyID,
			CostCenterID:      costCenterID,
			OperationType:     OperationService,
			UnitType:          item.Service.Name,
			Quantity:          item.Quantity,
			UnitPriceSnapshot: item.Service.Price,
			TotalPrice:        line,
			Status:            MovementCompleted,
			PaymentMethod:     method,
			BatchID:           batchID,
			Notes:             draft.Notes,
		}
		if ticket != nil {
			m.TicketID = ticket.ID
			m.InvoiceNumber = ticket.InvoiceNumber
			m.Weight = ticket.Weight
			m.Volume = ticket.Volume
		}
		movements = append(movements, m)
	}

	next := state.Clone()
	next.Movements = append(next.Movements, movements...)

	result := Settlement{BatchID: batchID, Movements: movements, Total: total}
	if ticket != nil {
		closed, err := Complete(*ticket, actor, now, "Pagamento confirmado")
		if err != nil {
			return state, Settlement{}, err
		}
		closed.Items = priced
		closed.TotalPrice = &total
		closed.PaymentMethod = method
		next, err = next.ReplaceTicket(closed)
		if err != nil {
			return state, Settlement{}, err
		}
		result.Ticket = &closed
	}
	return next, result, nil
}

// Batch groups the movements of one settlement for history views.
type Batch struct {
	BatchID   string          `json:"batchId"`
	Timestamp time.Time       `json:"timestamp"`
	TicketID  string          `json:"ticketId,omitempty"`
	Total     decimal.Decimal `json:"total"`
	Movements []Movement      `json:"movements"`
}

// Batches groups movements by batch id, newest first. Movements without a
// batch id form their own batch.
func Batches(movements []Movement) []Batch {
	index := map[string]int{}
	out := make([]Batch, 0)
	for _, m := range movements {
		key := m.BatchID
		if key == "" {
			key = "movement:" + m.ID
		}
		i, ok := index[key]
		if !ok {
			index[key] = len(out)
			out = append(out, Batch{BatchID: m.BatchID, Timestamp: m.Timestamp, TicketID: m.TicketID, Total: decimal.Zero})
			i = len(out) - 1
		}
		out[i].Movements = append(out[i].Movements, m)
		out[i].Total = out[i].Total.Add(m.TotalPrice)
	}
	for l, r := 0, len(out)-1; l < r; l, r = l+1, r-1 {
		out[l], out[r] = out[r], out[l]
	}
	return out
}
