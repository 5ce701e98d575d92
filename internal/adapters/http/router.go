package http

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/atvirokodosprendimai/credbook/internal/application"
	"github.com/atvirokodosprendimai/credbook/internal/domain"
	"github.com/go-chi/chi/v5"
	"github.com/sirupsen/logrus"
)

type contextKey string

const sessionKey contextKey = "session"

type Handler struct {
	service *application.Service
	log     logrus.FieldLogger
}

func NewRouter(service *application.Service, log logrus.FieldLogger) http.Handler {
	h := &Handler{service: service, log: log.WithField("component", "http")}
	r := chi.NewRouter()

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]any{"ok": true})
	})

	r.Route("/api", func(api chi.Router) {
		api.Post("/auth/login", h.handleLogin)

		api.Group(func(p chi.Router) {
			p.Use(h.requireAuth)

			p.Get("/auth/whoami", h.handleWhoAmI)
			p.Post("/auth/logout", h.handleLogout)
			p.Get("/state", h.handleState)
			p.Post("/sync/pull", h.handlePull)

			p.Get("/tickets", h.handleListTickets)
			p.Post("/tickets", h.handleCheckIn)
			p.Get("/tickets/{id}", h.handleGetTicket)
			p.Post("/tickets/{id}/return", h.handleReturnToYard)
			p.Post("/tickets/{id}/cancel", h.handleCancelTicket)

			p.Post("/billing/tickets/{id}", h.handleStartBilling)
			p.Post("/billing/trucks/{id}", h.handleStartTruckBilling)
			p.Get("/billing/draft", h.handleGetDraft)
			p.Delete("/billing/draft", h.handleCancelDraft)
			p.Post("/billing/items", h.handleAddItem)
			p.Put("/billing/items/{serviceID}", h.handleSetQuantity)
			p.Delete("/billing/items/{serviceID}", h.handleRemoveItem)
			p.Post("/billing/settle", h.handleSettle)

			p.Get("/history", h.handleHistory)
			p.Get("/totals", h.handleTotals)

			p.Get("/companies", h.handleListCompanies)
			p.Post("/companies", h.handleUpsertCompany)
			p.Get("/trucks", h.handleListTrucks)
			p.Post("/trucks", h.handleUpsertTruck)
			p.Get("/services", h.handleListServices)
			p.Post("/services", h.handleUpsertService)
			p.Get("/cost-centers", h.handleListCostCenters)
			p.Post("/cost-centers", h.handleUpsertCostCenter)
			p.Put("/cost-centers/active", h.handleSetActiveCostCenter)
			p.Put("/pricing", h.handleUpdatePricing)
		})
	})

	return r
}

func (h *Handler) requireAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		authHeader := r.Header.Get("Authorization")
		if !strings.HasPrefix(strings.ToLower(authHeader), "bearer ") {
			writeJSON(w, http.StatusUnauthorized, map[string]any{"error": "unauthorized"})
			return
		}
		sess, err := h.service.Authenticate(strings.TrimSpace(authHeader[7:]))
		if err != nil {
			writeJSON(w, http.StatusUnauthorized, map[string]any{"error": "unauthorized"})
			return
		}
		next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), sessionKey, sess)))
	})
}

func sessionFromContext(ctx context.Context) (application.Session, bool) {
	sess, ok := ctx.Value(sessionKey).(application.Session)
	return sess, ok
}

type loginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

func (h *Handler) handleLogin(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if !decode(w, r, &req) {
		return
	}
	res, err := h.service.Login(r.Context(), req.Username, req.Password)
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (h *Handler) handleWhoAmI(w http.ResponseWriter, r *http.Request) {
	sess, ok := sessionFromContext(r.Context())
	if !ok {
		writeJSON(w, http.StatusUnauthorized, map[string]any{"error": "unauthorized"})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"id":       sess.User.ID,
		"username": sess.User.Username,
		"role":     sess.User.Role,
		"actor":    sess.Actor,
	})
}

func (h *Handler) handleLogout(w http.ResponseWriter, r *http.Request) {
	h.service.Logout(r.Context())
	writeJSON(w, http.StatusOK, map[string]any{"ok": true})
}

func (h *Handler) handleState(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, withoutHashes(h.service.State()))
}

func withoutHashes(st domain.AppState) domain.AppState {
	for i := range st.Users {
		st.Users[i].PasswordHash = ""
	}
	for i := range st.Operators {
		st.Operators[i].PasswordHash = ""
	}
	return st
}

func (h *Handler) handlePull(w http.ResponseWriter, r *http.Request) {
	if err := h.service.Pull(r.Context()); err != nil {
		status := http.StatusBadGateway
		if errors.Is(err, application.ErrStaleFetch) {
			status = http.StatusConflict
		}
		writeJSON(w, status, map[string]any{"error": err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"ok": true})
}

func (h *Handler) handleListTickets(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	writeJSON(w, http.StatusOK, h.service.Tickets(application.TicketFilter{
		Status:       domain.TicketStatus(strings.TrimSpace(q.Get("status"))),
		CostCenterID: strings.TrimSpace(q.Get("cost_center")),
	}))
}

func (h *Handler) handleCheckIn(w http.ResponseWriter, r *http.Request) {
	var req domain.CheckInInput
	if !decode(w, r, &req) {
		return
	}
	t, err := h.service.CheckIn(r.Context(), req)
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, t)
}

func (h *Handler) handleGetTicket(w http.ResponseWriter, r *http.Request) {
	t, err := h.service.Ticket(chi.URLParam(r, "id"))
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, t)
}

func (h *Handler) handleReturnToYard(w http.ResponseWriter, r *http.Request) {
	t, err := h.service.ReturnToYard(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, t)
}

type cancelRequest struct {
	Reason string `json:"reason"`
}

func (h *Handler) handleCancelTicket(w http.ResponseWriter, r *http.Request) {
	var req cancelRequest
	if !decode(w, r, &req) {
		return
	}
	t, err := h.service.CancelTicket(r.Context(), chi.URLParam(r, "id"), req.Reason)
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, t)
}

// draftResponse adds the computed total, which TransactionDraft does not
// carry as a field.
type draftResponse struct {
	domain.TransactionDraft
	Total string `json:"total"`
}

func newDraftResponse(d domain.TransactionDraft) draftResponse {
	return draftResponse{TransactionDraft: d, Total: d.Total().StringFixed(2)}
}

func (h *Handler) handleStartBilling(w http.ResponseWriter, r *http.Request) {
	d, err := h.service.StartBilling(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, newDraftResponse(d))
}

func (h *Handler) handleStartTruckBilling(w http.ResponseWriter, r *http.Request) {
	d, err := h.service.StartTruckBilling(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, newDraftResponse(d))
}

func (h *Handler) handleGetDraft(w http.ResponseWriter, r *http.Request) {
	d, err := h.service.Draft()
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, newDraftResponse(d))
}

func (h *Handler) handleCancelDraft(w http.ResponseWriter, r *http.Request) {
	if err := h.service.CancelDraft(r.Context()); err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"ok": true})
}

type itemRequest struct {
	ServiceID string `json:"serviceId"`
	Quantity  int    `json:"quantity"`
}

func (h *Handler) handleAddItem(w http.ResponseWriter, r *http.Request) {
	var req itemRequest
	if !decode(w, r, &req) {
		return
	}
	d, err := h.service.AddToDraft(r.Context(), req.ServiceID, req.Quantity)
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, newDraftResponse(d))
}

func (h *Handler) handleSetQuantity(w http.ResponseWriter, r *http.Request) {
	var req itemRequest
	if !decode(w, r, &req) {
		return
	}
	d, err := h.service.SetDraftQuantity(r.Context(), chi.URLParam(r, "serviceID"), req.Quantity)
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, newDraftResponse(d))
}

func (h *Handler) handleRemoveItem(w http.ResponseWriter, r *http.Request) {
	d, err := h.service.RemoveFromDraft(r.Context(), chi.URLParam(r, "serviceID"))
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, newDraftResponse(d))
}

type settleRequest struct {
	PaymentMethod domain.PaymentMethod `json:"paymentMethod"`
}

func (h *Handler) handleSettle(w http.ResponseWriter, r *http.Request) {
	var req settleRequest
	if !decode(w, r, &req) {
		return
	}
	res, err := h.service.Settle(r.Context(), req.PaymentMethod)
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (h *Handler) handleHistory(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.service.History())
}

func (h *Handler) handleTotals(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.service.Totals())
}

func (h *Handler) handleListCompanies(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.service.State().Companies)
}

func (h *Handler) handleUpsertCompany(w http.ResponseWriter, r *http.Request) {
	var req domain.Company
	if !decode(w, r, &req) {
		return
	}
	v, err := h.service.UpsertCompany(r.Context(), req)
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, v)
}

func (h *Handler) handleListTrucks(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.service.State().Trucks)
}

func (h *Handler) handleUpsertTruck(w http.ResponseWriter, r *http.Request) {
	var req domain.Truck
	if !decode(w, r, &req) {
		return
	}
	v, err := h.service.UpsertTruck(r.Context(), req)
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, v)
}

func (h *Handler) handleListServices(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.service.State().Services)
}

func (h *Handler) handleUpsertService(w http.ResponseWriter, r *http.Request) {
	var req domain.ServiceItem
	if !decode(w, r, &req) {
		return
	}
	v, err := h.service.UpsertService(r.Context(), req)
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, v)
}

func (h *Handler) handleListCostCenters(w http.ResponseWriter, r *http.Request) {
	st := h.service.State()
	writeJSON(w, http.StatusOK, map[string]any{"items": st.CostCenters, "active": st.ActiveCostCenterID})
}

func (h *Handler) handleUpsertCostCenter(w http.ResponseWriter, r *http.Request) {
	var req domain.CostCenter
	if !decode(w, r, &req) {
		return
	}
	v, err := h.service.UpsertCostCenter(r.Context(), req)
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, v)
}

type activeCostCenterRequest struct {
	ID string `json:"id"`
}

func (h *Handler) handleSetActiveCostCenter(w http.ResponseWriter, r *http.Request) {
	var req activeCostCenterRequest
	if !decode(w, r, &req) {
		return
	}
	if err := h.service.SetActiveCostCenter(r.Context(), req.ID); err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"ok": true})
}

func (h *Handler) handleUpdatePricing(w http.ResponseWriter, r *http.Request) {
	var req domain.Pricing
	if !decode(w, r, &req) {
		return
	}
	v, err := h.service.UpdatePricing(r.Context(), req)
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, v)
}

func decode(w http.ResponseWriter, r *http.Request, dst any) bool {
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]any{"error": "invalid payload"})
		return false
	}
	return true
}

// StatusFor maps domain errors to HTTP status codes.
func StatusFor(err error) int {
	switch {
	case errors.Is(err, domain.ErrTicketNotFound), errors.Is(err, domain.ErrServiceNotFound):
		return http.StatusNotFound
	case errors.Is(err, domain.ErrTicketClosed), errors.Is(err, domain.ErrDraftInProgress), errors.Is(err, domain.ErrNoDraft):
		return http.StatusConflict
	case errors.Is(err, domain.ErrInvalidCredentials), errors.Is(err, domain.ErrNotAuthenticated), errors.Is(err, domain.ErrActorRequired):
		return http.StatusUnauthorized
	case errors.Is(err, domain.ErrReasonRequired),
		errors.Is(err, domain.ErrEmptyCart),
		errors.Is(err, domain.ErrInvalidQuantity),
		errors.Is(err, domain.ErrNoCostCenter),
		errors.Is(err, domain.ErrInvalidPaymentMethod),
		errors.Is(err, domain.ErrInvalidInput):
		return http.StatusBadRequest
	}
	return http.StatusInternalServerError
}

func (h *Handler) writeError(w http.ResponseWriter, err error) {
	status := StatusFor(err)
	if status == http.StatusInternalServerError {
		h.log.WithError(err).Error("request failed")
	}
	writeJSON(w, status, map[string]any{"error": err.Error()})
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}
