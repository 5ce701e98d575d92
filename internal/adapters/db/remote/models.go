package remote

import (
	"time"

	"github.com/atvirokodosprendimai/credbook/internal/domain"
	"github.com/shopspring/decimal"
	"gorm.io/datatypes"
)

type OperatorModel struct {
	ID           string `gorm:"primaryKey"`
	Name         string `gorm:"not null"`
	Username     string `gorm:"not null;index"`
	PasswordHash string `gorm:"not null"`
	Role         string `gorm:"not null;default:'operator'"`
	UpdatedAt    time.Time
}

func (OperatorModel) TableName() string { return domain.TableOperators }

type CompanyModel struct {
	ID        string `gorm:"primaryKey"`
	Name      string `gorm:"not null"`
	CNPJ      string `gorm:"column:cnpj"`
	Contact   string
	UpdatedAt time.Time
}

func (CompanyModel) TableName() string { return domain.TableCompanies }

type TruckModel struct {
	ID         string `gorm:"primaryKey"`
	Plate      string `gorm:"not null;index"`
	DriverName string
	CompanyID  string `gorm:"index"`
	Type       string
	UpdatedAt  time.Time
}

func (TruckModel) TableName() string { return domain.TableTrucks }

type ServiceModel struct {
	ID        string          `gorm:"primaryKey"`
	Name      string          `gorm:"not null"`
	Price     decimal.Decimal `gorm:"type:decimal(20,4);not null"`
	Icon      string
	UpdatedAt time.Time
}

func (ServiceModel) TableName() string { return domain.TableServices }

type CostCenterModel struct {
	ID        string `gorm:"primaryKey"`
	Name      string `gorm:"not null"`
	Address   string
	UpdatedAt time.Time
}

func (CostCenterModel) TableName() string { return domain.TableCostCenters }

type TicketModel struct {
	ID                 string    `gorm:"primaryKey"`
	Number             string    `gorm:"not null"`
	CostCenterID       string    `gorm:"index"`
	EntryTimestamp     time.Time `gorm:"not null;index"`
	ExitTimestamp      *time.Time
	CompanyName        string
	DriverName         string
	Plate              string `gorm:"index"`
	CargoType          string
	InvoiceNumber      string
	Weight             string
	Volume             string
	PalletCount        string
	DriverPhone        string
	Status             string `gorm:"not null;index"`
	CancellationReason string
	Logs               datatypes.JSONSlice[domain.TicketLog]
	Items              datatypes.JSONSlice[domain.CartItem]
	TotalPrice         decimal.NullDecimal `gorm:"type:decimal(20,4)"`
	PaymentMethod      string
	UpdatedAt          time.Time
}

func (TicketModel) TableName() string { return domain.TableTickets }

type MovementModel struct {
	ID                string    `gorm:"primaryKey"`
	Timestamp         time.Time `gorm:"not null;index"`
	TruckID           string    `gorm:"index"`
	CompanyID         string    `gorm:"index"`
	CostCenterID      string    `gorm:"index"`
	OperationType     string    `gorm:"not null"`
	UnitType          string
	Quantity          int
	UnitPriceSnapshot decimal.Decimal `gorm:"type:decimal(20,4);not null"`
	TotalPrice        decimal.Decimal `gorm:"type:decimal(20,4);not null"`
	Status            string          `gorm:"not null"`
	PaymentMethod     string
	BatchID           string `gorm:"index"`
	TicketID          string `gorm:"index"`
	Notes             string
	InvoiceNumber     string
	Weight            string
	Volume            string
	UpdatedAt         time.Time
}

func (MovementModel) TableName() string { return domain.TableMovements }

var allModels = []any{
	&OperatorModel{},
	&CompanyModel{},
	&TruckModel{},
	&ServiceModel{},
	&CostCenterModel{},
	&TicketModel{},
	&MovementModel{},
}
