// Package remote is the shared store every gate replicates to. Production
// runs it on Postgres; a SQLite file works for a single site and for tests.
package remote

import (
	"context"
	"fmt"

	"github.com/atvirokodosprendimai/credbook/internal/domain"
	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	"gorm.io/gorm/logger"
	_ "modernc.org/sqlite"
)

const upsertBatchSize = 200

type Store struct {
	db *gorm.DB
}

// Open connects to the shared store. driver is "postgres" or "sqlite".
func Open(driver, dsn string) (*gorm.DB, error) {
	cfg := &gorm.Config{Logger: logger.Default.LogMode(logger.Silent)}
	switch driver {
	case "", "postgres":
		return gorm.Open(postgres.Open(dsn), cfg)
	case "sqlite":
		return gorm.Open(sqlite.Dialector{DriverName: "sqlite", DSN: dsn}, cfg)
	default:
		return nil, fmt.Errorf("unsupported remote driver %q", driver)
	}
}

func NewStore(db *gorm.DB) *Store {
	return &Store{db: db}
}

func (s *Store) Migrate(ctx context.Context) error {
	return s.db.WithContext(ctx).AutoMigrate(allModels...)
}

// FetchAll reads every table. Any failure fails the whole fetch so callers
// never merge half a dataset.
func (s *Store) FetchAll(ctx context.Context) (domain.RemoteSnapshot, error) {
	db := s.db.WithContext(ctx)

	var operators []OperatorModel
	if err := db.Order("name").Find(&operators).Error; err != nil {
		return domain.RemoteSnapshot{}, fmt.Errorf("fetch %s: %w", domain.TableOperators, err)
	}
	var companies []CompanyModel
	if err := db.Order("name").Find(&companies).Error; err != nil {
		return domain.RemoteSnapshot{}, fmt.Errorf("fetch %s: %w", domain.TableCompanies, err)
	}
	var trucks []TruckModel
	if err := db.Order("plate").Find(&trucks).Error; err != nil {
		return domain.RemoteSnapshot{}, fmt.Errorf("fetch %s: %w", domain.TableTrucks, err)
	}
	var services []ServiceModel
	if err := db.Order("name").Find(&services).Error; err != nil {
		return domain.RemoteSnapshot{}, fmt.Errorf("fetch %s: %w", domain.TableServices, err)
	}
	var costCenters []CostCenterModel
	if err := db.Order("name").Find(&costCenters).Error; err != nil {
		return domain.RemoteSnapshot{}, fmt.Errorf("fetch %s: %w", domain.TableCostCenters, err)
	}
	var tickets []TicketModel
	if err := db.Order("entry_timestamp").Find(&tickets).Error; err != nil {
		return domain.RemoteSnapshot{}, fmt.Errorf("fetch %s: %w", domain.TableTickets, err)
	}
	var movements []MovementModel
	if err := db.Order(clause.OrderByColumn{Column: clause.Column{Name: "timestamp"}}).Find(&movements).Error; err != nil {
		return domain.RemoteSnapshot{}, fmt.Errorf("fetch %s: %w", domain.TableMovements, err)
	}

	return domain.RemoteSnapshot{
		Operators:   operatorsFromModels(operators),
		Companies:   companiesFromModels(companies),
		Trucks:      trucksFromModels(trucks),
		Services:    servicesFromModels(services),
		CostCenters: costCentersFromModels(costCenters),
		Tickets:     ticketsFromModels(tickets),
		Movements:   movementsFromModels(movements),
	}, nil
}

// Upsert writes rows keyed by id; existing rows are overwritten. Rows absent
// from the slice are left alone.
func (s *Store) Upsert(ctx context.Context, table string, rows any) error {
	var models any
	var n int
	switch table {
	case domain.TableOperators:
		items, ok := rows.([]domain.User)
		if !ok {
			return rowsTypeError(table, rows)
		}
		models, n = operatorModels(items), len(items)
	case domain.TableCompanies:
		items, ok := rows.([]domain.Company)
		if !ok {
			return rowsTypeError(table, rows)
		}
		models, n = companyModels(items), len(items)
	case domain.TableTrucks:
		items, ok := rows.([]domain.Truck)
		if !ok {
			return rowsTypeError(table, rows)
		}
		models, n = truckModels(items), len(items)
	case domain.TableServices:
		items, ok := rows.([]domain.ServiceItem)
		if !ok {
			return rowsTypeError(table, rows)
		}
		models, n = serviceModels(items), len(items)
	case domain.TableCostCenters:
		items, ok := rows.([]domain.CostCenter)
		if !ok {
			return rowsTypeError(table, rows)
		}
		models, n = costCenterModels(items), len(items)
	case domain.TableTickets:
		items, ok := rows.([]domain.Ticket)
		if !ok {
			return rowsTypeError(table, rows)
		}
		models, n = ticketModels(items), len(items)
	case domain.TableMovements:
		items, ok := rows.([]domain.Movement)
		if !ok {
			return rowsTypeError(table, rows)
		}
		models, n = movementModels(items), len(items)
	default:
		return fmt.Errorf("unknown remote table %q", table)
	}
	if n == 0 {
		return nil
	}

	return s.db.WithContext(ctx).
		Clauses(clause.OnConflict{UpdateAll: true}).
		CreateInBatches(models, upsertBatchSize).Error
}

func rowsTypeError(table string, rows any) error {
	return fmt.Errorf("table %s: unexpected rows type %T", table, rows)
}
