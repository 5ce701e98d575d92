package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

type Role string

const (
	RoleAdmin    Role = "admin"
	RoleOperator Role = "operator"
)

type OperationType string

const (
	OperationInbound  OperationType = "inbound"
	OperationOutbound OperationType = "outbound"
	OperationService  OperationType = "service"
)

type TicketStatus string

const (
	TicketOpen      TicketStatus = "open"
	TicketCompleted TicketStatus = "completed"
	TicketCancelled TicketStatus = "cancelled"
)

// Terminal reports whether no lifecycle operation may change the status anymore.
func (s TicketStatus) Terminal() bool {
	return s == TicketCompleted || s == TicketCancelled
}

type LogAction string

const (
	ActionRegistered     LogAction = "registered"
	ActionCancelled      LogAction = "cancelled"
	ActionReturnedToYard LogAction = "returned_to_yard"
	ActionCompleted      LogAction = "completed"
)

type MovementStatus string

const (
	MovementCompleted MovementStatus = "completed"
	MovementPending   MovementStatus = "pending"
)

type PaymentMethod string

const (
	PaymentCash    PaymentMethod = "cash"
	PaymentCard    PaymentMethod = "card"
	PaymentPix     PaymentMethod = "pix"
	PaymentAccount PaymentMethod = "account"
)

func (m PaymentMethod) Valid() bool {
	switch m {
	case PaymentCash, PaymentCard, PaymentPix, PaymentAccount:
		return true
	}
	return false
}

type User struct {
	ID           string `json:"id"`
	Name         string `json:"name"`
	Username     string `json:"username"`
	PasswordHash string `json:"passwordHash"`
	Role         Role   `json:"role"`
}

// ActorLabel is the "Role - Name" string recorded verbatim in ticket logs.
func (u User) ActorLabel() string {
	role := "Operador"
	if u.Role == RoleAdmin {
		role = "Admin"
	}
	return role + " - " + u.Name
}

type ServiceItem struct {
	ID    string          `json:"id"`
	Name  string          `json:"name"`
	Price decimal.Decimal `json:"price"`
	Icon  string          `json:"icon,omitempty"`
}

type CostCenter struct {
	ID      string `json:"id"`
	Name    string `json:"name"`
	Address string `json:"address"`
}

type Company struct {
	ID      string `json:"id"`
	Name    string `json:"name"`
	CNPJ    string `json:"cnpj"`
	Contact string `json:"contact"`
}

type Truck struct {
	ID         string `json:"id"`
	Plate      string `json:"plate"`
	DriverName string `json:"driverName"`
	CompanyID  string `json:"companyId"`
	Type       string `json:"type"`
}

type Pricing struct {
	PricePerPallet decimal.Decimal `json:"pricePerPallet"`
	PricePerBox    decimal.Decimal `json:"pricePerBox"`
}

type TicketLog struct {
	Timestamp time.Time `json:"timestamp"`
	Action    LogAction `json:"action"`
	Actor     string    `json:"userRole"`
	Details   string    `json:"details,omitempty"`
}

type CartItem struct {
	Service  ServiceItem `json:"service"`
	Quantity int         `json:"quantity"`
}

// Subtotal is the live price of the line, service price times quantity.
func (c CartItem) Subtotal() decimal.Decimal {
	return c.Service.Price.Mul(decimal.NewFromInt(int64(c.Quantity)))
}

type Ticket struct {
	ID             string     `json:"id"`
	Number         string     `json:"number"`
	CostCenterID   string     `json:"costCenterId"`
	EntryTimestamp time.Time  `json:"entryTimestamp"`
	ExitTimestamp  *time.Time `json:"exitTimestamp,omitempty"`

	CompanyName string `json:"companyName"`
	DriverName  string `json:"driverName"`
	Plate       string `json:"plate"`
	CargoType   string `json:"cargoType"`

	InvoiceNumber string `json:"invoiceNumber,omitempty"`
	Weight        string `json:"weight,omitempty"`
	Volume        string `json:"volume,omitempty"`
	PalletCount   string `json:"palletCount,omitempty"`
	DriverPhone   string `json:"driverPhone,omitempty"`

	Status             TicketStatus `json:"status"`
	CancellationReason string       `json:"cancellationReason,omitempty"`
	Logs               []TicketLog  `json:"logs"`

	Items         []CartItem       `json:"items,omitempty"`
	TotalPrice    *decimal.Decimal `json:"totalPrice,omitempty"`
	PaymentMethod PaymentMethod    `json:"paymentMethod,omitempty"`
}

type Movement struct {
	ID                string          `json:"id"`
	Timestamp         time.Time       `json:"timestamp"`
	TruckID           string          `json:"truckId,omitempty"`
	CompanyID         string          `json:"companyId,omitempty"`
	CostCenterID      string          `json:"costCenterId"`
	OperationType     OperationType   `json:"operationType"`
	UnitType          string          `json:"unitType"`
	Quantity          int             `json:"quantity"`
	UnitPriceSnapshot decimal.Decimal `json:"unitPriceSnapshot"`
	TotalPrice        decimal.Decimal `json:"totalPrice"`
	Status            MovementStatus  `json:"status"`
	PaymentMethod     PaymentMethod   `json:"paymentMethod,omitempty"`
	BatchID           string          `json:"batchId,omitempty"`
	TicketID          string          `json:"ticketId,omitempty"`
	Notes             string          `json:"notes,omitempty"`

	InvoiceNumber string `json:"invoiceNumber,omitempty"`
	Weight        string `json:"weight,omitempty"`
	Volume        string `json:"volume,omitempty"`
}

type AppState struct {
	Users              []User        `json:"users"`
	Operators          []User        `json:"operators"`
	Companies          []Company     `json:"companies"`
	Trucks             []Truck       `json:"trucks"`
	Movements          []Movement    `json:"movements"`
	Services           []ServiceItem `json:"services"`
	CostCenters        []CostCenter  `json:"costCenters"`
	Tickets            []Ticket      `json:"tickets"`
	ActiveCostCenterID *string       `json:"activeCostCenterId"`
	Pricing            Pricing       `json:"pricing"`
}

// RemoteSnapshot is what the shared store returned on a fetch. A nil table
// means the store omitted it.
type RemoteSnapshot struct {
	Operators   []User
	Companies   []Company
	Trucks      []Truck
	Services    []ServiceItem
	CostCenters []CostCenter
	Tickets     []Ticket
	Movements   []Movement
}

// Table names of the shared store, in push order.
const (
	TableCompanies   = "empresas"
	TableTrucks      = "caminhoes"
	TableServices    = "servicos"
	TableCostCenters = "centros_custo"
	TableTickets     = "tickets"
	TableMovements   = "movimentacoes"
	TableOperators   = "operadores"
)

var PushTables = []string{
	TableCompanies,
	TableTrucks,
	TableServices,
	TableCostCenters,
	TableTickets,
	TableMovements,
}
