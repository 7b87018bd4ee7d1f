package handlers

import (
	"net/http"
	"sort"

	"github.com/go-chi/chi/v5"

	pkghttp "github.com/BradenHooton/billdesk/pkg/http"
)

// Fixture is one canned record served by the development backend.
type Fixture map[string]any

// ResourceHandler serves read-only fixture collections for the dashboard.
type ResourceHandler struct {
	collections map[string][]Fixture
}

// NewResourceHandler creates a handler over collections keyed by resource name.
func NewResourceHandler(collections map[string][]Fixture) *ResourceHandler {
	return &ResourceHandler{collections: collections}
}

// Names returns the served resource names in a stable order.
func (h *ResourceHandler) Names() []string {
	names := make([]string, 0, len(h.collections))
	for name := range h.collections {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// List handles GET /{resource}
func (h *ResourceHandler) List(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "resource")
	items, ok := h.collections[name]
	if !ok {
		pkghttp.WriteNotFound(w, "Unknown resource")
		return
	}
	if items == nil {
		items = []Fixture{}
	}
	pkghttp.WriteData(w, http.StatusOK, items)
}

// DefaultFixtures is the billing catalogue the development backend serves.
func DefaultFixtures() map[string][]Fixture {
	return map[string][]Fixture{
		"applications": {
			{"id": "app_1", "name": "Storefront", "status": "active"},
			{"id": "app_2", "name": "Partner Portal", "status": "active"},
			{"id": "app_3", "name": "Legacy Billing", "status": "archived"},
		},
		"plans": {
			{"id": "plan_basic", "name": "Basic", "price": 9.0, "currency": "EUR", "interval": "month"},
			{"id": "plan_pro", "name": "Pro", "price": 29.0, "currency": "EUR", "interval": "month"},
			{"id": "plan_team", "name": "Team", "price": 290.0, "currency": "EUR", "interval": "year"},
		},
		"promotions": {
			{"id": "promo_spring", "code": "SPRING25", "percentOff": 25, "active": true},
			{"id": "promo_welcome", "code": "WELCOME", "percentOff": 10, "active": false},
		},
		"wallets": {
			{"id": "wal_1", "owner": "acme", "balance": 120.5, "currency": "EUR"},
			{"id": "wal_2", "owner": "globex", "balance": 0.0, "currency": "USD"},
		},
		"payment-methods": {
			{"id": "pm_card", "type": "card", "name": "Cards", "enabled": true},
			{"id": "pm_sepa", "type": "sepa_debit", "name": "SEPA Direct Debit", "enabled": true},
			{"id": "pm_wire", "type": "wire", "name": "Bank transfer", "enabled": false},
		},
		"features": {
			{"id": "feat_invoices", "name": "PDF invoices", "enabled": true},
			{"id": "feat_dunning", "name": "Dunning emails", "enabled": false},
		},
	}
}
