package domain

import (
	"fmt"

	"github.com/shopspring/decimal"
)

// DraftCompany is either a registered company or the free-text name typed at
// the gate.
type DraftCompany struct {
	ID   string `json:"id,omitempty"`
	Name string `json:"name"`
	CNPJ string `json:"cnpj,omitempty"`
}

// TransactionDraft is the in-progress cart at the point of sale. It lives
// only between starting and settling (or abandoning) a bill and is never
// persisted.
type TransactionDraft struct {
	Truck   *Truck       `json:"truck"`
	Ticket  *Ticket      `json:"ticket,omitempty"`
	Company DraftCompany `json:"company"`
	Items   []CartItem   `json:"items"`
	Notes   string       `json:"notes"`
}

// Total is recomputed from the cart on every call.
func (d TransactionDraft) Total() decimal.Decimal {
	total := decimal.Zero
	for _, item := range d.Items {
		total = total.Add(item.Subtotal())
	}
	return total
}

// AddItem adds qty units of svc, merging with an existing line for the same
// service.
func (d TransactionDraft) AddItem(svc ServiceItem, qty int) (TransactionDraft, error) {
	if qty <= 0 {
		return d, ErrInvalidQuantity
	}
	out := d.clone()
	for i := range out.Items {
		if out.Items[i].Service.ID == svc.ID {
			out.Items[i].Quantity += qty
			out.Items[i].Service = svc
			return out, nil
		}
	}
	out.Items = append(out.Items, CartItem{Service: svc, Quantity: qty})
	return out, nil
}

// SetQuantity replaces the quantity of a line. Zero removes it.
func (d TransactionDraft) SetQuantity(serviceID string, qty int) (TransactionDraft, error) {
	if qty < 0 {
		return d, ErrInvalidQuantity
	}
	if qty == 0 {
		return d.RemoveItem(serviceID)
	}
	out := d.clone()
	for i := range out.Items {
		if out.Items[i].Service.ID == serviceID {
			out.Items[i].Quantity = qty
			return out, nil
		}
	}
	return d, fmt.Errorf("service %s not in cart: %w", serviceID, ErrServiceNotFound)
}

func (d TransactionDraft) RemoveItem(serviceID string) (TransactionDraft, error) {
	out := d.clone()
	items := out.Items[:0]
	found := false
	for _, item := range out.Items {
		if item.Service.ID == serviceID {
			found = true
			continue
		}
		items = append(items, item)
	}
	if !found {
		return d, fmt.Errorf("service %s not in cart: %w", serviceID, ErrServiceNotFound)
	}
	out.Items = items
	return out, nil
}

func (d TransactionDraft) clone() TransactionDraft {
	out := d
	out.Items = append([]CartItem{}, d.Items...)
	if d.Truck != nil {
		tr := *d.Truck
		out.Truck = &tr
	}
	if d.Ticket != nil {
		t := d.Ticket.Clone()
		out.Ticket = &t
	}
	return out
}
