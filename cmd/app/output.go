package main

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/atvirokodosprendimai/credbook/internal/application"
	"github.com/atvirokodosprendimai/credbook/internal/domain"
	"github.com/shopspring/decimal"
)

func printJSON(v any) error {
	b, err := jsonMarshal(v)
	if err != nil {
		return err
	}
	fmt.Println(string(b))
	return nil
}

func printKV(rows [][2]string) {
	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	for _, row := range rows {
		_, _ = fmt.Fprintf(w, "%s\t%s\n", row[0], row[1])
	}
	_ = w.Flush()
}

func printTable(headers []string, rows [][]string) {
	if len(rows) == 0 {
		fmt.Println("no results")
		return
	}
	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintln(w, strings.Join(headers, "\t"))
	for _, row := range rows {
		_, _ = fmt.Fprintln(w, strings.Join(row, "\t"))
	}
	_ = w.Flush()
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return "-"
	}
	return t.Local().Format("2006-01-02 15:04:05")
}

func formatMaybeTime(t *time.Time) string {
	if t == nil {
		return "-"
	}
	return formatTime(*t)
}

func formatMoney(d decimal.Decimal) string {
	return d.StringFixed(2)
}

func orDash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}

func printTickets(items []domain.Ticket) {
	rows := make([][]string, 0, len(items))
	for _, t := range items {
		rows = append(rows, []string{
			t.Number,
			t.ID,
			string(t.Status),
			t.Plate,
			t.CompanyName,
			t.DriverName,
			t.CostCenterID,
			formatTime(t.EntryTimestamp),
		})
	}
	printTable([]string{"NUMBER", "ID", "STATUS", "PLATE", "COMPANY", "DRIVER", "COST_CENTER", "ENTRY"}, rows)
}

func printTicket(t domain.Ticket) {
	total := "-"
	if t.TotalPrice != nil {
		total = formatMoney(*t.TotalPrice)
	}
	printKV([][2]string{
		{"id", t.ID},
		{"number", t.Number},
		{"status", string(t.Status)},
		{"cost_center", t.CostCenterID},
		{"plate", t.Plate},
		{"company", t.CompanyName},
		{"driver", t.DriverName},
		{"cargo", orDash(t.CargoType)},
		{"entry", formatTime(t.EntryTimestamp)},
		{"exit", formatMaybeTime(t.ExitTimestamp)},
		{"payment", orDash(string(t.PaymentMethod))},
		{"total", total},
		{"cancel_reason", orDash(t.CancellationReason)},
	})
	if len(t.Logs) == 0 {
		return
	}
	fmt.Println()
	rows := make([][]string, 0, len(t.Logs))
	for _, l := range t.Logs {
		rows = append(rows, []string{formatTime(l.Timestamp), string(l.Action), l.Actor, orDash(l.Details)})
	}
	printTable([]string{"WHEN", "ACTION", "BY", "DETAILS"}, rows)
}

type draftView struct {
	domain.TransactionDraft
	Total string `json:"total"`
}

func printDraft(d draftView) {
	source := "truck"
	if d.Ticket != nil {
		source = "ticket " + d.Ticket.Number
	}
	plate := "-"
	if d.Truck != nil {
		plate = d.Truck.Plate
	}
	printKV([][2]string{{"source", source}, {"plate", plate}, {"company", orDash(d.Company.Name)}})
	fmt.Println()
	rows := make([][]string, 0, len(d.Items))
	for _, item := range d.Items {
		rows = append(rows, []string{
			item.Service.ID,
			item.Service.Name,
			strconv.Itoa(item.Quantity),
			formatMoney(item.Service.Price),
			formatMoney(item.Subtotal()),
		})
	}
	printTable([]string{"SERVICE_ID", "SERVICE", "QTY", "PRICE", "SUBTOTAL"}, rows)
	fmt.Printf("total: %s\n", d.Total)
}

func printSettlement(s domain.Settlement) {
	rows := [][2]string{{"batch", s.BatchID}, {"movements", strconv.Itoa(len(s.Movements))}, {"total", formatMoney(s.Total)}}
	if s.Ticket != nil {
		rows = append(rows, [2]string{"ticket", s.Ticket.Number + " " + string(s.Ticket.Status)})
	}
	printKV(rows)
}

func printHistory(batches []domain.Batch) {
	rows := make([][]string, 0, len(batches))
	for _, b := range batches {
		method := ""
		if len(b.Movements) > 0 {
			method = string(b.Movements[0].PaymentMethod)
		}
		rows = append(rows, []string{
			formatTime(b.Timestamp),
			b.BatchID,
			orDash(b.TicketID),
			strconv.Itoa(len(b.Movements)),
			orDash(method),
			formatMoney(b.Total),
		})
	}
	printTable([]string{"WHEN", "BATCH", "TICKET", "LINES", "PAYMENT", "TOTAL"}, rows)
}

func printTotals(t application.Totals) {
	printKV([][2]string{
		{"movements", strconv.Itoa(t.Movements)},
		{"revenue", formatMoney(t.Revenue)},
		{"open_tickets", strconv.Itoa(t.Open)},
	})
}

func printCompanies(items []domain.Company) {
	rows := make([][]string, 0, len(items))
	for _, c := range items {
		rows = append(rows, []string{c.ID, c.Name, orDash(c.CNPJ), orDash(c.Contact)})
	}
	printTable([]string{"ID", "NAME", "CNPJ", "CONTACT"}, rows)
}

func printTrucks(items []domain.Truck) {
	rows := make([][]string, 0, len(items))
	for _, t := range items {
		rows = append(rows, []string{t.ID, t.Plate, t.DriverName, orDash(t.CompanyID), orDash(t.Type)})
	}
	printTable([]string{"ID", "PLATE", "DRIVER", "COMPANY_ID", "TYPE"}, rows)
}

func printServices(items []domain.ServiceItem) {
	rows := make([][]string, 0, len(items))
	for _, s := range items {
		rows = append(rows, []string{s.ID, s.Name, formatMoney(s.Price)})
	}
	printTable([]string{"ID", "NAME", "PRICE"}, rows)
}

func printCostCenters(items []domain.CostCenter, active *string) {
	rows := make([][]string, 0, len(items))
	for _, c := range items {
		mark := ""
		if active != nil && *active == c.ID {
			mark = "*"
		}
		rows = append(rows, []string{mark, c.ID, c.Name, orDash(c.Address)})
	}
	printTable([]string{"", "ID", "NAME", "ADDRESS"}, rows)
}
