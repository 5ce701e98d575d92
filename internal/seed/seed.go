// Package seed builds the state a gate starts from before it has ever saved
// a snapshot: the fallback admin account plus whatever a YAML seed file adds.
package seed

import (
	"fmt"
	"os"
	"strings"

	"github.com/atvirokodosprendimai/credbook/internal/domain"
	"github.com/shopspring/decimal"
	"golang.org/x/crypto/bcrypt"
	"gopkg.in/yaml.v3"
)

const (
	AdminID       = "local-admin"
	AdminUsername = "admin"
	AdminPassword = "admin"
)

type File struct {
	Users            []User       `yaml:"users"`
	CostCenters      []CostCenter `yaml:"cost_centers"`
	Services         []Service    `yaml:"services"`
	ActiveCostCenter string       `yaml:"active_cost_center"`
	Pricing          *Pricing     `yaml:"pricing"`
}

type User struct {
	ID           string `yaml:"id"`
	Name         string `yaml:"name"`
	Username     string `yaml:"username"`
	Password     string `yaml:"password"`
	PasswordHash string `yaml:"password_hash"`
	Role         string `yaml:"role"`
}

type CostCenter struct {
	ID      string `yaml:"id"`
	Name    string `yaml:"name"`
	Address string `yaml:"address"`
}

type Service struct {
	ID    string `yaml:"id"`
	Name  string `yaml:"name"`
	Price string `yaml:"price"`
	Icon  string `yaml:"icon"`
}

type Pricing struct {
	PricePerPallet string `yaml:"price_per_pallet"`
	PricePerBox    string `yaml:"price_per_box"`
}

// Defaults is the empty state with the built-in admin account.
func Defaults() (domain.AppState, error) {
	hash, err := hashPassword(AdminPassword)
	if err != nil {
		return domain.AppState{}, err
	}
	st := domain.DefaultState()
	st.Users = append(st.Users, domain.User{
		ID:           AdminID,
		Name:         "Administrador",
		Username:     AdminUsername,
		PasswordHash: hash,
		Role:         domain.RoleAdmin,
	})
	return st, nil
}

// Load returns Defaults extended with the seed file at path. An empty path
// yields plain Defaults.
func Load(path string) (domain.AppState, error) {
	base, err := Defaults()
	if err != nil {
		return domain.AppState{}, err
	}
	if path == "" {
		return base, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return domain.AppState{}, fmt.Errorf("read seed file: %w", err)
	}
	return Apply(base, data)
}

// Apply decodes a YAML seed and merges it into base. Users with the same
// username as an existing one replace it.
func Apply(base domain.AppState, data []byte) (domain.AppState, error) {
	var f File
	if err := yaml.Unmarshal(data, &f); err != nil {
		return domain.AppState{}, fmt.Errorf("decode seed file: %w", err)
	}

	st := base.Clone()
	for i, u := range f.Users {
		user, err := u.toDomain(i)
		if err != nil {
			return domain.AppState{}, err
		}
		st.Users = replaceUser(st.Users, user)
	}
	for i, cc := range f.CostCenters {
		if strings.TrimSpace(cc.Name) == "" {
			return domain.AppState{}, fmt.Errorf("cost_centers[%d]: name is required", i)
		}
		id := cc.ID
		if id == "" {
			id = fmt.Sprintf("cc-%d", i+1)
		}
		st.CostCenters = append(st.CostCenters, domain.CostCenter{ID: id, Name: cc.Name, Address: cc.Address})
	}
	for i, svc := range f.Services {
		price, err := decimal.NewFromString(svc.Price)
		if err != nil {
			return domain.AppState{}, fmt.Errorf("services[%d]: price %q: %w", i, svc.Price, err)
		}
		id := svc.ID
		if id == "" {
			id = fmt.Sprintf("svc-%d", i+1)
		}
		st.Services = append(st.Services, domain.ServiceItem{ID: id, Name: svc.Name, Price: price, Icon: svc.Icon})
	}
	if f.ActiveCostCenter != "" {
		if !st.HasCostCenter(f.ActiveCostCenter) {
			return domain.AppState{}, fmt.Errorf("active_cost_center %q is not defined", f.ActiveCostCenter)
		}
		active := f.ActiveCostCenter
		st.ActiveCostCenterID = &active
	}
	if f.Pricing != nil {
		pallet, err := parseOptionalDecimal(f.Pricing.PricePerPallet)
		if err != nil {
			return domain.AppState{}, fmt.Errorf("pricing.price_per_pallet: %w", err)
		}
		box, err := parseOptionalDecimal(f.Pricing.PricePerBox)
		if err != nil {
			return domain.AppState{}, fmt.Errorf("pricing.price_per_box: %w", err)
		}
		st.Pricing = domain.Pricing{PricePerPallet: pallet, PricePerBox: box}
	}
	return st, nil
}

func (u User) toDomain(i int) (domain.User, error) {
	if u.Username == "" {
		return domain.User{}, fmt.Errorf("users[%d]: username is required", i)
	}
	hash := u.PasswordHash
	if hash == "" {
		if u.Password == "" {
			return domain.User{}, fmt.Errorf("users[%d]: password or password_hash is required", i)
		}
		var err error
		if hash, err = hashPassword(u.Password); err != nil {
			return domain.User{}, err
		}
	}
	role := domain.Role(u.Role)
	switch role {
	case "":
		role = domain.RoleOperator
	case domain.RoleAdmin, domain.RoleOperator:
	default:
		return domain.User{}, fmt.Errorf("users[%d]: unknown role %q", i, u.Role)
	}
	id := u.ID
	if id == "" {
		id = "local-" + u.Username
	}
	name := u.Name
	if name == "" {
		name = u.Username
	}
	return domain.User{ID: id, Name: name, Username: u.Username, PasswordHash: hash, Role: role}, nil
}

func replaceUser(users []domain.User, u domain.User) []domain.User {
	for i := range users {
		if users[i].Username == u.Username {
			users[i] = u
			return users
		}
	}
	return append(users, u)
}

func parseOptionalDecimal(s string) (decimal.Decimal, error) {
	if s == "" {
		return decimal.Zero, nil
	}
	return decimal.NewFromString(s)
}

func hashPassword(password string) (string, error) {
	b, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return "", fmt.Errorf("hash password: %w", err)
	}
	return string(b), nil
}
