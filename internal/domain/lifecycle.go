package domain

import (
	"fmt"
	"strings"
	"time"
)

// IDFunc issues identities for new tickets, movements and batches.
type IDFunc func() string

type CheckInInput struct {
	CostCenterID  string `json:"costCenterId"`
	CompanyName   string `json:"companyName"`
	DriverName    string `json:"driverName"`
	Plate         string `json:"plate"`
	CargoType     string `json:"cargoType"`
	InvoiceNumber string `json:"invoiceNumber"`
	Weight        string `json:"weight"`
	Volume        string `json:"volume"`
	PalletCount   string `json:"palletCount"`
	DriverPhone   string `json:"driverPhone"`
}

// CheckIn registers a vehicle at the gate as a new open ticket.
func CheckIn(state AppState, in CheckInInput, actor string, now time.Time, newID IDFunc) (AppState, Ticket, error) {
	if strings.TrimSpace(actor) == "" {
		return state, Ticket{}, ErrActorRequired
	}
	costCenterID := strings.TrimSpace(in.CostCenterID)
	if costCenterID == "" && state.ActiveCostCenterID != nil {
		costCenterID = *state.ActiveCostCenterID
	}
	if costCenterID == "" {
		return state, Ticket{}, ErrNoCostCenter
	}
	if strings.TrimSpace(in.CompanyName) == "" || strings.TrimSpace(in.DriverName) == "" || strings.TrimSpace(in.Plate) == "" {
		return state, Ticket{}, fmt.Errorf("company, driver and plate are required: %w", ErrInvalidInput)
	}

	t := Ticket{
		ID:             newID(),
		Number:         state.NextTicketNumber(costCenterID),
		CostCenterID:   costCenterID,
		EntryTimestamp: now,
		CompanyName:    strings.TrimSpace(in.CompanyName),
		DriverName:     strings.TrimSpace(in.DriverName),
		Plate:          strings.ToUpper(strings.TrimSpace(in.Plate)),
		CargoType:      strings.TrimSpace(in.CargoType),
		InvoiceNumber:  strings.TrimSpace(in.InvoiceNumber),
		Weight:         strings.TrimSpace(in.Weight),
		Volume:         strings.TrimSpace(in.Volume),
		PalletCount:    strings.TrimSpace(in.PalletCount),
		DriverPhone:    strings.TrimSpace(in.DriverPhone),
		Status:         TicketOpen,
		Logs: []TicketLog{{
			Timestamp: now,
			Action:    ActionRegistered,
			Actor:     actor,
			Details:   "Entrada registrada na portaria",
		}},
	}

	next := state.Clone()
	next.Tickets = append(next.Tickets, t)
	return next, t.Clone(), nil
}

// StartBilling builds a draft prefilled from the ticket. The ticket itself is
// not changed.
func StartBilling(t Ticket) (TransactionDraft, error) {
	if t.Status != TicketOpen {
		return TransactionDraft{}, fmt.Errorf("ticket %s is %s: %w", t.Number, t.Status, ErrTicketClosed)
	}
	linked := t.Clone()
	return TransactionDraft{
		Ticket:  &linked,
		Company: DraftCompany{Name: t.CompanyName},
		Items:   []CartItem{},
		Notes:   fmt.Sprintf("Ticket #%s | Motorista: %s | Placa: %s", t.Number, t.DriverName, t.Plate),
	}, nil
}

// StartTruckBilling builds a draft for a registered truck without a gate ticket.
func StartTruckBilling(truck Truck, company Company) TransactionDraft {
	tr := truck
	return TransactionDraft{
		Truck:   &tr,
		Company: DraftCompany{ID: company.ID, Name: company.Name, CNPJ: company.CNPJ},
		Items:   []CartItem{},
	}
}

// ReturnToYard records that billing was deferred. Status stays open.
func ReturnToYard(t Ticket, actor string, now time.Time) (Ticket, error) {
	if strings.TrimSpace(actor) == "" {
		return t, ErrActorRequired
	}
	if t.Status != TicketOpen {
		return t, fmt.Errorf("ticket %s is %s: %w", t.Number, t.Status, ErrTicketClosed)
	}
	return appendLog(t, TicketLog{
		Timestamp: now,
		Action:    ActionReturnedToYard,
		Actor:     actor,
		Details:   "Devolvido para a fila do pátio",
	}), nil
}

// Complete closes the ticket after payment. Callers outside settlement
// should not use it.
func Complete(t Ticket, actor string, now time.Time, details string) (Ticket, error) {
	if strings.TrimSpace(actor) == "" {
		return t, ErrActorRequired
	}
	if t.Status != TicketOpen {
		return t, fmt.Errorf("ticket %s is %s: %w", t.Number, t.Status, ErrTicketClosed)
	}
	out := appendLog(t, TicketLog{
		Timestamp: now,
		Action:    ActionCompleted,
		Actor:     actor,
		Details:   details,
	})
	out.Status = TicketCompleted
	exit := now
	out.ExitTimestamp = &exit
	return out, nil
}

// Cancel is terminal: a cancelled ticket can never be billed or completed.
func Cancel(t Ticket, actor, reason string, now time.Time) (Ticket, error) {
	if strings.TrimSpace(actor) == "" {
		return t, ErrActorRequired
	}
	if strings.TrimSpace(reason) == "" {
		return t, ErrReasonRequired
	}
	if t.Status != TicketOpen {
		return t, fmt.Errorf("ticket %s is %s: %w", t.Number, t.Status, ErrTicketClosed)
	}
	out := appendLog(t, TicketLog{
		Timestamp: now,
		Action:    ActionCancelled,
		Actor:     actor,
		Details:   reason,
	})
	out.Status = TicketCancelled
	out.CancellationReason = reason
	return out, nil
}

// appendLog copies the log slice before extending it so earlier ticket values
// keep their own history.
func appendLog(t Ticket, entry TicketLog) Ticket {
	out := t.Clone()
	out.Logs = append(out.Logs, entry)
	return out
}
