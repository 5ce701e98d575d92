package seed

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/atvirokodosprendimai/credbook/internal/domain"
	"github.com/shopspring/decimal"
	"golang.org/x/crypto/bcrypt"
)

const sample = `
users:
  - username: bia
    name: Bia
    password: secret
  - username: admin
    name: Chefe
    password: trocar
    role: admin
cost_centers:
  - id: cc-norte
    name: Norte
    address: Rua 1
services:
  - id: descarga
    name: Descarga
    price: "10.50"
    icon: pallet
active_cost_center: cc-norte
pricing:
  price_per_pallet: "3"
`

func TestDefaultsHaveAdmin(t *testing.T) {
	st, err := Defaults()
	if err != nil {
		t.Fatalf("defaults: %v", err)
	}
	if len(st.Users) != 1 || st.Users[0].Username != AdminUsername || st.Users[0].Role != domain.RoleAdmin {
		t.Fatalf("unexpected users: %+v", st.Users)
	}
	if err := bcrypt.CompareHashAndPassword([]byte(st.Users[0].PasswordHash), []byte(AdminPassword)); err != nil {
		t.Fatalf("admin password hash does not match: %v", err)
	}
	if st.Tickets == nil || st.ActiveCostCenterID != nil {
		t.Fatalf("defaults should be empty with no cost center")
	}
}

func TestLoadAppliesSeedFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "seed.yaml")
	if err := os.WriteFile(path, []byte(sample), 0o600); err != nil {
		t.Fatalf("write seed: %v", err)
	}
	st, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}

	if len(st.Users) != 2 {
		t.Fatalf("expected admin replaced and bia added, got %+v", st.Users)
	}
	if st.Users[0].Name != "Chefe" {
		t.Fatalf("admin not replaced: %+v", st.Users[0])
	}
	if st.Users[1].Role != domain.RoleOperator || st.Users[1].ID != "local-bia" {
		t.Fatalf("unexpected seeded user: %+v", st.Users[1])
	}
	if len(st.Services) != 1 || !st.Services[0].Price.Equal(decimal.RequireFromString("10.5")) {
		t.Fatalf("unexpected services: %+v", st.Services)
	}
	if st.ActiveCostCenterID == nil || *st.ActiveCostCenterID != "cc-norte" {
		t.Fatalf("active cost center not set")
	}
	if !st.Pricing.PricePerPallet.Equal(decimal.NewFromInt(3)) || !st.Pricing.PricePerBox.IsZero() {
		t.Fatalf("unexpected pricing: %+v", st.Pricing)
	}
}

func TestLoadWithoutPathReturnsDefaults(t *testing.T) {
	st, err := Load("")
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if len(st.Users) != 1 {
		t.Fatalf("expected only the admin user")
	}
}

func TestApplyRejectsBadSeeds(t *testing.T) {
	base := domain.DefaultState()
	cases := map[string]string{
		"bad price":      "services:\n  - name: X\n    price: abc\n",
		"unknown role":   "users:\n  - username: x\n    password: y\n    role: root\n",
		"no password":    "users:\n  - username: x\n",
		"unknown active": "active_cost_center: nowhere\n",
		"not yaml":       "users: [",
	}
	for name, doc := range cases {
		if _, err := Apply(base, []byte(doc)); err == nil {
			t.Fatalf("%s: expected error", name)
		}
	}
	if _, err := Apply(base, []byte(strings.TrimSpace("cost_centers: []"))); err != nil {
		t.Fatalf("empty lists should be fine: %v", err)
	}
}
