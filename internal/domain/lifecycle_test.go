package domain

import (
	"errors"
	"fmt"
	"testing"
	"time"
)

var testNow = time.Date(2026, 3, 14, 9, 30, 0, 0, time.UTC)

func sequentialIDs(prefix string) IDFunc {
	n := 0
	return func() string {
		n++
		return fmt.Sprintf("%s-%d", prefix, n)
	}
}

func stateWithCostCenter() AppState {
	s := DefaultState()
	s.CostCenters = append(s.CostCenters, CostCenter{ID: "cc-1", Name: "Pátio Norte"})
	id := "cc-1"
	s.ActiveCostCenterID = &id
	return s
}

func checkedIn(t *testing.T) (AppState, Ticket) {
	t.Helper()
	s, ticket, err := CheckIn(stateWithCostCenter(), CheckInInput{
		CompanyName: "Transportes Lima",
		DriverName:  "João",
		Plate:       "abc1d23",
		CargoType:   "Paletizada",
		Weight:      "12000",
	}, "Portaria - Ana", testNow, sequentialIDs("t"))
	if err != nil {
		t.Fatalf("check in: %v", err)
	}
	return s, ticket
}

func TestCheckInOpensTicketWithRegisteredLog(t *testing.T) {
	s, ticket := checkedIn(t)

	if ticket.Status != TicketOpen {
		t.Fatalf("expected open, got %s", ticket.Status)
	}
	if ticket.Number != "0001" {
		t.Fatalf("expected number 0001, got %s", ticket.Number)
	}
	if ticket.Plate != "ABC1D23" {
		t.Fatalf("expected upper-case plate, got %s", ticket.Plate)
	}
	if len(ticket.Logs) != 1 || ticket.Logs[0].Action != ActionRegistered || ticket.Logs[0].Actor != "Portaria - Ana" {
		t.Fatalf("unexpected logs: %+v", ticket.Logs)
	}
	if len(s.Tickets) != 1 {
		t.Fatalf("expected ticket in state, got %d", len(s.Tickets))
	}

	_, second, err := CheckIn(s, CheckInInput{CompanyName: "X", DriverName: "Y", Plate: "Z"}, "Portaria - Ana", testNow, sequentialIDs("u"))
	if err != nil {
		t.Fatalf("second check in: %v", err)
	}
	if second.Number != "0002" {
		t.Fatalf("expected number 0002, got %s", second.Number)
	}
}

func TestCheckInRequiresCostCenterAndActor(t *testing.T) {
	in := CheckInInput{CompanyName: "X", DriverName: "Y", Plate: "Z"}
	if _, _, err := CheckIn(DefaultState(), in, "Portaria - Ana", testNow, sequentialIDs("t")); !errors.Is(err, ErrNoCostCenter) {
		t.Fatalf("expected ErrNoCostCenter, got %v", err)
	}
	if _, _, err := CheckIn(stateWithCostCenter(), in, "", testNow, sequentialIDs("t")); !errors.Is(err, ErrActorRequired) {
		t.Fatalf("expected ErrActorRequired, got %v", err)
	}
	if _, _, err := CheckIn(stateWithCostCenter(), CheckInInput{}, "Portaria - Ana", testNow, sequentialIDs("t")); !errors.Is(err, ErrInvalidInput) {
		t.Fatalf("expected ErrInvalidInput, got %v", err)
	}
}

func TestReturnToYardAppendsOneLogPerCallAndKeepsStatus(t *testing.T) {
	_, ticket := checkedIn(t)

	for i := 1; i <= 5; i++ {
		prevLen := len(ticket.Logs)
		next, err := ReturnToYard(ticket, "Caixa - Bia", testNow.Add(time.Duration(i)*time.Minute))
		if err != nil {
			t.Fatalf("return %d: %v", i, err)
		}
		if next.Status != TicketOpen {
			t.Fatalf("status changed to %s", next.Status)
		}
		if len(next.Logs) != prevLen+1 {
			t.Fatalf("expected %d logs, got %d", prevLen+1, len(next.Logs))
		}
		if next.Logs[len(next.Logs)-1].Action != ActionReturnedToYard {
			t.Fatalf("unexpected last action %s", next.Logs[len(next.Logs)-1].Action)
		}
		if len(ticket.Logs) != prevLen {
			t.Fatalf("previous ticket value was mutated")
		}
		ticket = next
	}
}

func TestCancelIsTerminal(t *testing.T) {
	_, ticket := checkedIn(t)

	cancelled, err := Cancel(ticket, "Portaria - Ana", "Motorista desistiu", testNow)
	if err != nil {
		t.Fatalf("cancel: %v", err)
	}
	if cancelled.Status != TicketCancelled || cancelled.CancellationReason != "Motorista desistiu" {
		t.Fatalf("unexpected cancelled ticket: %+v", cancelled)
	}
	last := cancelled.Logs[len(cancelled.Logs)-1]
	if last.Action != ActionCancelled || last.Details != "Motorista desistiu" {
		t.Fatalf("unexpected cancel log: %+v", last)
	}

	if _, err := Complete(cancelled, "Caixa - Bia", testNow, ""); !errors.Is(err, ErrTicketClosed) {
		t.Fatalf("complete after cancel: expected ErrTicketClosed, got %v", err)
	}
	if _, err := ReturnToYard(cancelled, "Caixa - Bia", testNow); !errors.Is(err, ErrTicketClosed) {
		t.Fatalf("return after cancel: expected ErrTicketClosed, got %v", err)
	}
	if _, err := Cancel(cancelled, "Caixa - Bia", "again", testNow); !errors.Is(err, ErrTicketClosed) {
		t.Fatalf("cancel after cancel: expected ErrTicketClosed, got %v", err)
	}
	if _, err := StartBilling(cancelled); !errors.Is(err, ErrTicketClosed) {
		t.Fatalf("billing after cancel: expected ErrTicketClosed, got %v", err)
	}
}

func TestCompleteSetsExitAndIsTerminal(t *testing.T) {
	_, ticket := checkedIn(t)

	done, err := Complete(ticket, "Caixa - Bia", testNow.Add(time.Hour), "Pagamento confirmado")
	if err != nil {
		t.Fatalf("complete: %v", err)
	}
	if done.Status != TicketCompleted || done.ExitTimestamp == nil || !done.ExitTimestamp.Equal(testNow.Add(time.Hour)) {
		t.Fatalf("unexpected completed ticket: %+v", done)
	}
	if _, err := Cancel(done, "Caixa - Bia", "late", testNow); !errors.Is(err, ErrTicketClosed) {
		t.Fatalf("expected ErrTicketClosed, got %v", err)
	}
}

func TestTransitionsRequireActor(t *testing.T) {
	_, ticket := checkedIn(t)

	if _, err := ReturnToYard(ticket, " ", testNow); !errors.Is(err, ErrActorRequired) {
		t.Fatalf("return: expected ErrActorRequired, got %v", err)
	}
	if _, err := Complete(ticket, "", testNow, ""); !errors.Is(err, ErrActorRequired) {
		t.Fatalf("complete: expected ErrActorRequired, got %v", err)
	}
	if _, err := Cancel(ticket, "", "reason", testNow); !errors.Is(err, ErrActorRequired) {
		t.Fatalf("cancel: expected ErrActorRequired, got %v", err)
	}
}

func TestLogsNeverShrinkAcrossOperations(t *testing.T) {
	_, ticket := checkedIn(t)
	history := append([]TicketLog{}, ticket.Logs...)

	steps := []func(Ticket) (Ticket, error){
		func(t Ticket) (Ticket, error) { return ReturnToYard(t, "Caixa - Bia", testNow) },
		func(t Ticket) (Ticket, error) { return ReturnToYard(t, "Caixa - Bia", testNow) },
		func(t Ticket) (Ticket, error) { return Complete(t, "Caixa - Bia", testNow, "ok") },
		func(t Ticket) (Ticket, error) { return Cancel(t, "Caixa - Bia", "x", testNow) },
		func(t Ticket) (Ticket, error) { return ReturnToYard(t, "Caixa - Bia", testNow) },
	}
	for i, step := range steps {
		next, _ := step(ticket)
		if len(next.Logs) < len(ticket.Logs) {
			t.Fatalf("step %d shrank logs", i)
		}
		for j := range history {
			if next.Logs[j] != history[j] {
				t.Fatalf("step %d rewrote log %d", i, j)
			}
		}
		ticket = next
		history = append([]TicketLog{}, ticket.Logs...)
	}
	if ticket.Status != TicketCompleted {
		t.Fatalf("expected completed to stick, got %s", ticket.Status)
	}
}

func TestStartBillingDoesNotMutateTicket(t *testing.T) {
	_, ticket := checkedIn(t)

	draft, err := StartBilling(ticket)
	if err != nil {
		t.Fatalf("start billing: %v", err)
	}
	if draft.Ticket == nil || draft.Ticket.ID != ticket.ID {
		t.Fatalf("draft not linked to ticket")
	}
	if draft.Company.Name != "Transportes Lima" {
		t.Fatalf("unexpected company %q", draft.Company.Name)
	}
	draft.Ticket.Logs = append(draft.Ticket.Logs, TicketLog{Action: ActionCompleted})
	if len(ticket.Logs) != 1 {
		t.Fatalf("ticket logs changed through draft")
	}
}
