package domain

import (
	"fmt"
	"strconv"

	"github.com/shopspring/decimal"
)

const DefaultSlot = "credbook-data"

// DefaultState is what the store hands out when it has no usable snapshot.
// Every collection is non-nil so it round-trips through the codec unchanged.
func DefaultState() AppState {
	return AppState{
		Users:       []User{},
		Operators:   []User{},
		Companies:   []Company{},
		Trucks:      []Truck{},
		Movements:   []Movement{},
		Services:    []ServiceItem{},
		CostCenters: []CostCenter{},
		Tickets:     []Ticket{},
		Pricing: Pricing{
			PricePerPallet: decimal.Zero,
			PricePerBox:    decimal.Zero,
		},
	}
}

// Normalize replaces nil collections with empty ones.
func (s AppState) Normalize() AppState {
	if s.Users == nil {
		s.Users = []User{}
	}
	if s.Operators == nil {
		s.Operators = []User{}
	}
	if s.Companies == nil {
		s.Companies = []Company{}
	}
	if s.Trucks == nil {
		s.Trucks = []Truck{}
	}
	if s.Movements == nil {
		s.Movements = []Movement{}
	}
	if s.Services == nil {
		s.Services = []ServiceItem{}
	}
	if s.CostCenters == nil {
		s.CostCenters = []CostCenter{}
	}
	if s.Tickets == nil {
		s.Tickets = []Ticket{}
	}
	return s
}

// Clone returns a deep copy, so a command can build the next state without
// touching the one readers may still hold.
func (s AppState) Clone() AppState {
	out := AppState{
		Users:       append([]User{}, s.Users...),
		Operators:   append([]User{}, s.Operators...),
		Companies:   append([]Company{}, s.Companies...),
		Trucks:      append([]Truck{}, s.Trucks...),
		Movements:   append([]Movement{}, s.Movements...),
		Services:    append([]ServiceItem{}, s.Services...),
		CostCenters: append([]CostCenter{}, s.CostCenters...),
		Tickets:     make([]Ticket, 0, len(s.Tickets)),
		Pricing:     s.Pricing,
	}
	if s.ActiveCostCenterID != nil {
		id := *s.ActiveCostCenterID
		out.ActiveCostCenterID = &id
	}
	for _, t := range s.Tickets {
		out.Tickets = append(out.Tickets, t.Clone())
	}
	return out
}

func (t Ticket) Clone() Ticket {
	out := t
	out.Logs = append([]TicketLog{}, t.Logs...)
	if t.Items != nil {
		out.Items = append([]CartItem{}, t.Items...)
	}
	if t.ExitTimestamp != nil {
		ts := *t.ExitTimestamp
		out.ExitTimestamp = &ts
	}
	if t.TotalPrice != nil {
		total := *t.TotalPrice
		out.TotalPrice = &total
	}
	return out
}

func (s AppState) FindTicket(id string) (Ticket, error) {
	for _, t := range s.Tickets {
		if t.ID == id {
			return t.Clone(), nil
		}
	}
	return Ticket{}, fmt.Errorf("ticket %s: %w", id, ErrTicketNotFound)
}

// ReplaceTicket returns a copy of s with the ticket of the same id swapped for t.
func (s AppState) ReplaceTicket(t Ticket) (AppState, error) {
	next := s.Clone()
	for i := range next.Tickets {
		if next.Tickets[i].ID == t.ID {
			next.Tickets[i] = t.Clone()
			return next, nil
		}
	}
	return s, fmt.Errorf("ticket %s: %w", t.ID, ErrTicketNotFound)
}

func (s AppState) FindService(id string) (ServiceItem, error) {
	for _, svc := range s.Services {
		if svc.ID == id {
			return svc, nil
		}
	}
	return ServiceItem{}, fmt.Errorf("service %s: %w", id, ErrServiceNotFound)
}

func (s AppState) FindTruck(id string) (Truck, bool) {
	for _, t := range s.Trucks {
		if t.ID == id {
			return t, true
		}
	}
	return Truck{}, false
}

func (s AppState) FindCompany(id string) (Company, bool) {
	for _, c := range s.Companies {
		if c.ID == id {
			return c, true
		}
	}
	return Company{}, false
}

func (s AppState) HasCostCenter(id string) bool {
	for _, cc := range s.CostCenters {
		if cc.ID == id {
			return true
		}
	}
	return false
}

// NextTicketNumber is one past the highest numeric ticket number issued for
// the cost center. Non-numeric numbers are ignored.
func (s AppState) NextTicketNumber(costCenterID string) string {
	highest := 0
	for _, t := range s.Tickets {
		if t.CostCenterID != costCenterID {
			continue
		}
		n, err := strconv.Atoi(t.Number)
		if err == nil && n > highest {
			highest = n
		}
	}
	return fmt.Sprintf("%04d", highest+1)
}

// FindLogin resolves a username across local users first, then remote
// operators. The two populations are never merged into storage.
func (s AppState) FindLogin(username string) []User {
	out := make([]User, 0, 2)
	for _, u := range s.Users {
		if u.Username == username {
			out = append(out, u)
		}
	}
	for _, u := range s.Operators {
		if u.Username == username {
			out = append(out, u)
		}
	}
	return out
}
