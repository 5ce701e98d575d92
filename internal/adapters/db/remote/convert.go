package remote

import (
	"github.com/atvirokodosprendimai/credbook/internal/domain"
	"github.com/shopspring/decimal"
	"gorm.io/datatypes"
)

func operatorModels(items []domain.User) []OperatorModel {
	out := make([]OperatorModel, 0, len(items))
	for _, u := range items {
		out = append(out, OperatorModel{ID: u.ID, Name: u.Name, Username: u.Username, PasswordHash: u.PasswordHash, Role: string(u.Role)})
	}
	return out
}

func operatorsFromModels(rows []OperatorModel) []domain.User {
	out := make([]domain.User, 0, len(rows))
	for _, m := range rows {
		out = append(out, domain.User{ID: m.ID, Name: m.Name, Username: m.Username, PasswordHash: m.PasswordHash, Role: domain.Role(m.Role)})
	}
	return out
}

func companyModels(items []domain.Company) []CompanyModel {
	out := make([]CompanyModel, 0, len(items))
	for _, c := range items {
		out = append(out, CompanyModel{ID: c.ID, Name: c.Name, CNPJ: c.CNPJ, Contact: c.Contact})
	}
	return out
}

func companiesFromModels(rows []CompanyModel) []domain.Company {
	out := make([]domain.Company, 0, len(rows))
	for _, m := range rows {
		out = append(out, domain.Company{ID: m.ID, Name: m.Name, CNPJ: m.CNPJ, Contact: m.Contact})
	}
	return out
}

func truckModels(items []domain.Truck) []TruckModel {
	out := make([]TruckModel, 0, len(items))
	for _, t := range items {
		out = append(out, TruckModel{ID: t.ID, Plate: t.Plate, DriverName: t.DriverName, CompanyID: t.CompanyID, Type: t.Type})
	}
	return out
}

func trucksFromModels(rows []TruckModel) []domain.Truck {
	out := make([]domain.Truck, 0, len(rows))
	for _, m := range rows {
		out = append(out, domain.Truck{ID: m.ID, Plate: m.Plate, DriverName: m.DriverName, CompanyID: m.CompanyID, Type: m.Type})
	}
	return out
}

func serviceModels(items []domain.ServiceItem) []ServiceModel {
	out := make([]ServiceModel, 0, len(items))
	for _, s := range items {
		out = append(out, ServiceModel{ID: s.ID, Name: s.Name, Price: s.Price, Icon: s.Icon})
	}
	return out
}

func servicesFromModels(rows []ServiceModel) []domain.ServiceItem {
	out := make([]domain.ServiceItem, 0, len(rows))
	for _, m := range rows {
		out = append(out, domain.ServiceItem{ID: m.ID, Name: m.Name, Price: m.Price, Icon: m.Icon})
	}
	return out
}

func costCenterModels(items []domain.CostCenter) []CostCenterModel {
	out := make([]CostCenterModel, 0, len(items))
	for _, c := range items {
		out = append(out, CostCenterModel{ID: c.ID, Name: c.Name, Address: c.Address})
	}
	return out
}

func costCentersFromModels(rows []CostCenterModel) []domain.CostCenter {
	out := make([]domain.CostCenter, 0, len(rows))
	for _, m := range rows {
		out = append(out, domain.CostCenter{ID: m.ID, Name: m.Name, Address: m.Address})
	}
	return out
}

func ticketModels(items []domain.Ticket) []TicketModel {
	out := make([]TicketModel, 0, len(items))
	for _, t := range items {
		m := TicketModel{
			ID:                 t.ID,
			Number:             t.Number,
			CostCenterID:       t.CostCenterID,
			EntryTimestamp:     t.EntryTimestamp,
			ExitTimestamp:      t.ExitTimestamp,
			CompanyName:        t.CompanyName,
			DriverName:         t.DriverName,
			Plate:              t.Plate,
			CargoType:          t.CargoType,
			InvoiceNumber:      t.InvoiceNumber,
			Weight:             t.Weight,
			Volume:             t.Volume,
			PalletCount:        t.PalletCount,
			DriverPhone:        t.DriverPhone,
			Status:             string(t.Status),
			CancellationReason: t.CancellationReason,
			Logs:               datatypes.NewJSONSlice(t.Logs),
			Items:              datatypes.NewJSONSlice(t.Items),
			PaymentMethod:      string(t.PaymentMethod),
		}
		if t.TotalPrice != nil {
			m.TotalPrice = decimal.NewNullDecimal(*t.TotalPrice)
		}
		out = append(out, m)
	}
	return out
}

func ticketsFromModels(rows []TicketModel) []domain.Ticket {
	out := make([]domain.Ticket, 0, len(rows))
	for _, m := range rows {
		t := domain.Ticket{
			ID:                 m.ID,
			Number:             m.Number,
			CostCenterID:       m.CostCenterID,
			EntryTimestamp:     m.EntryTimestamp.UTC(),
			CompanyName:        m.CompanyName,
			DriverName:         m.DriverName,
			Plate:              m.Plate,
			CargoType:          m.CargoType,
			InvoiceNumber:      m.InvoiceNumber,
			Weight:             m.Weight,
			Volume:             m.Volume,
			PalletCount:        m.PalletCount,
			DriverPhone:        m.DriverPhone,
			Status:             domain.TicketStatus(m.Status),
			CancellationReason: m.CancellationReason,
			Logs:               append([]domain.TicketLog{}, m.Logs...),
			PaymentMethod:      domain.PaymentMethod(m.PaymentMethod),
		}
		if m.ExitTimestamp != nil {
			exit := m.ExitTimestamp.UTC()
			t.ExitTimestamp = &exit
		}
		if len(m.Items) > 0 {
			t.Items = append([]domain.CartItem{}, m.Items...)
		}
		if m.TotalPrice.Valid {
			total := m.TotalPrice.Decimal
			t.TotalPrice = &total
		}
		out = append(out, t)
	}
	return out
}

func movementModels(items []domain.Movement) []MovementModel {
	out := make([]MovementModel, 0, len(items))
	for _, mv := range items {
		out = append(out, MovementModel{
			ID:                mv.ID,
			Timestamp:         mv.Timestamp,
			TruckID:           mv.TruckID,
			CompanyID:         mv.CompanyID,
			CostCenterID:      mv.CostCenterID,
			OperationType:     string(mv.OperationType),
			UnitType:          mv.UnitType,
			Quantity:          mv.Quantity,
			UnitPriceSnapshot: mv.UnitPriceSnapshot,
			TotalPrice:        mv.TotalPrice,
			Status:            string(mv.Status),
			PaymentMethod:     string(mv.PaymentMethod),
			BatchID:           mv.BatchID,
			TicketID:          mv.TicketID,
			Notes:             mv.Notes,
			InvoiceNumber:     mv.InvoiceNumber,
			Weight:            mv.Weight,
			Volume:            mv.Volume,
		})
	}
	return out
}

func movementsFromModels(rows []MovementModel) []domain.Movement {
	out := make([]domain.Movement, 0, len(rows))
	for _, m := range rows {
		out = append(out, domain.Movement{
			ID:                m.ID,
			Timestamp:         m.Timestamp.UTC(),
			TruckID:           m.TruckID,
			CompanyID:         m.CompanyID,
			CostCenterID:      m.CostCenterID,
			OperationType:     domain.OperationType(m.OperationType),
			UnitType:          m.UnitType,
			Quantity:          m.Quantity,
			UnitPriceSnapshot: m.UnitPriceSnapshot,
			TotalPrice:        m.TotalPrice,
			Status:            domain.MovementStatus(m.Status),
			PaymentMethod:     domain.PaymentMethod(m.PaymentMethod),
			BatchID:           m.BatchID,
			TicketID:          m.TicketID,
			Notes:             m.Notes,
			InvoiceNumber:     m.InvoiceNumber,
			Weight:            m.Weight,
			Volume:            m.Volume,
		})
	}
	return out
}
