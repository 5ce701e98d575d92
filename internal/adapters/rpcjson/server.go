package rpcjson

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"os"
	"path/filepath"
	"strings"

	"github.com/atvirokodosprendimai/credbook/internal/application"
	"github.com/atvirokodosprendimai/credbook/internal/domain"
	"github.com/sirupsen/logrus"
)

type Server struct {
	service  *application.Service
	listener net.Listener
	path     string
	log      logrus.FieldLogger
}

type request struct {
	JSONRPC string          `json:"jsonrpc"`
	Method  string          `json:"method"`
	Params  json.RawMessage `json:"params"`
	ID      any             `json:"id"`
}

type response struct {
	JSONRPC string      `json:"jsonrpc"`
	Result  any         `json:"result,omitempty"`
	Error   *rpcError   `json:"error,omitempty"`
	ID      interface{} `json:"id"`
}

type rpcError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

func Start(path string, service *application.Service, log logrus.FieldLogger) (*Server, error) {
	if strings.TrimSpace(path) == "" {
		return nil, errors.New("rpc socket path is required")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, err
	}
	_ = os.Remove(path)
	ln, err := net.Listen("unix", path)
	if err != nil {
		return nil, err
	}
	if err := os.Chmod(path, 0o600); err != nil {
		_ = ln.Close()
		_ = os.Remove(path)
		return nil, err
	}

	s := &Server{service: service, listener: ln, path: path, log: log.WithField("component", "rpc")}
	go s.serve()
	return s, nil
}

func (s *Server) serve() {
	for {
		conn, err := s.listener.Accept()
		if err != nil {
			return
		}
		go s.handleConn(conn)
	}
}

func (s *Server) Close() error {
	err := s.listener.Close()
	_ = os.Remove(s.path)
	return err
}

func (s *Server) handleConn(conn net.Conn) {
	defer func() { _ = conn.Close() }()
	dec := json.NewDecoder(conn)
	enc := json.NewEncoder(conn)

	for {
		var req request
		if err := dec.Decode(&req); err != nil {
			if errors.Is(err, io.EOF) {
				return
			}
			s.log.WithError(err).Debug("rpc request could not be decoded")
			_ = enc.Encode(response{JSONRPC: "2.0", Error: &rpcError{Code: -32700, Message: "parse error"}, ID: nil})
			return
		}

		resp := s.dispatch(context.Background(), req)
		if err := enc.Encode(resp); err != nil {
			return
		}
	}
}

type idParams struct {
	ID string `json:"id"`
}

type itemParams struct {
	ServiceID string `json:"service_id"`
	Quantity  int    `json:"quantity"`
}

func (s *Server) dispatch(ctx context.Context, req request) response {
	if req.JSONRPC != "2.0" || strings.TrimSpace(req.Method) == "" {
		return response{JSONRPC: "2.0", Error: &rpcError{Code: -32600, Message: "invalid request"}, ID: req.ID}
	}

	if req.Method == "auth.login" {
		return s.handleAuthLogin(ctx, req)
	}
	sess, rpcResp, ok := s.authz(req)
	if !ok {
		return rpcResp
	}

	switch req.Method {
	case "auth.whoami":
		return result(req.ID, map[string]any{"id": sess.User.ID, "username": sess.User.Username, "role": sess.User.Role, "actor": sess.Actor}, nil)
	case "auth.logout":
		s.service.Logout(ctx)
		return result(req.ID, map[string]any{"ok": true}, nil)
	case "state.get":
		st := s.service.State()
		for i := range st.Users {
			st.Users[i].PasswordHash = ""
		}
		for i := range st.Operators {
			st.Operators[i].PasswordHash = ""
		}
		return result(req.ID, st, nil)
	case "sync.pull":
		if err := s.service.Pull(ctx); err != nil {
			code := 50200
			if errors.Is(err, application.ErrStaleFetch) {
				code = 40900
			}
			return response{JSONRPC: "2.0", Error: &rpcError{Code: code, Message: err.Error()}, ID: req.ID}
		}
		return result(req.ID, map[string]any{"ok": true}, nil)

	case "tickets.list":
		var p struct {
			Status     string `json:"status"`
			CostCenter string `json:"cost_center"`
		}
		if !decodeParams(req.Params, &p) {
			return invalidParams(req.ID)
		}
		return result(req.ID, s.service.Tickets(application.TicketFilter{Status: domain.TicketStatus(p.Status), CostCenterID: p.CostCenter}), nil)
	case "tickets.get":
		var p idParams
		if !decodeParams(req.Params, &p) {
			return invalidParams(req.ID)
		}
		t, err := s.service.Ticket(p.ID)
		return result(req.ID, t, err)
	case "tickets.checkin":
		var p domain.CheckInInput
		if !decodeParams(req.Params, &p) {
			return invalidParams(req.ID)
		}
		t, err := s.service.CheckIn(ctx, p)
		return result(req.ID, t, err)
	case "tickets.return":
		var p idParams
		if !decodeParams(req.Params, &p) {
			return invalidParams(req.ID)
		}
		t, err := s.service.ReturnToYard(ctx, p.ID)
		return result(req.ID, t, err)
	case "tickets.cancel":
		var p struct {
			ID     string `json:"id"`
			Reason string `json:"reason"`
		}
		if !decodeParams(req.Params, &p) {
			return invalidParams(req.ID)
		}
		t, err := s.service.CancelTicket(ctx, p.ID, p.Reason)
		return result(req.ID, t, err)

	case "billing.start":
		var p struct {
			TicketID string `json:"ticket_id"`
			TruckID  string `json:"truck_id"`
		}
		if !decodeParams(req.Params, &p) || (p.TicketID == "") == (p.TruckID == "") {
			return invalidParams(req.ID)
		}
		var d domain.TransactionDraft
		var err error
		if p.TicketID != "" {
			d, err = s.service.StartBilling(ctx, p.TicketID)
		} else {
			d, err = s.service.StartTruckBilling(ctx, p.TruckID)
		}
		return draftResult(req.ID, d, err)
	case "billing.draft":
		d, err := s.service.Draft()
		return draftResult(req.ID, d, err)
	case "billing.add":
		var p itemParams
		if !decodeParams(req.Params, &p) {
			return invalidParams(req.ID)
		}
		d, err := s.service.AddToDraft(ctx, p.ServiceID, p.Quantity)
		return draftResult(req.ID, d, err)
	case "billing.set":
		var p itemParams
		if !decodeParams(req.Params, &p) {
			return invalidParams(req.ID)
		}
		d, err := s.service.SetDraftQuantity(ctx, p.ServiceID, p.Quantity)
		return draftResult(req.ID, d, err)
	case "billing.remove":
		var p itemParams
		if !decodeParams(req.Params, &p) {
			return invalidParams(req.ID)
		}
		d, err := s.service.RemoveFromDraft(ctx, p.ServiceID)
		return draftResult(req.ID, d, err)
	case "billing.settle":
		var p struct {
			PaymentMethod string `json:"payment_method"`
		}
		if !decodeParams(req.Params, &p) {
			return invalidParams(req.ID)
		}
		res, err := s.service.Settle(ctx, domain.PaymentMethod(p.PaymentMethod))
		return result(req.ID, res, err)
	case "billing.cancel":
		err := s.service.CancelDraft(ctx)
		return result(req.ID, map[string]any{"ok": err == nil}, err)

	case "history.list":
		return result(req.ID, s.service.History(), nil)
	case "totals.get":
		return result(req.ID, s.service.Totals(), nil)

	case "companies.upsert":
		var p domain.Company
		if !decodeParams(req.Params, &p) {
			return invalidParams(req.ID)
		}
		v, err := s.service.UpsertCompany(ctx, p)
		return result(req.ID, v, err)
	case "trucks.upsert":
		var p domain.Truck
		if !decodeParams(req.Params, &p) {
			return invalidParams(req.ID)
		}
		v, err := s.service.UpsertTruck(ctx, p)
		return result(req.ID, v, err)
	case "services.upsert":
		var p domain.ServiceItem
		if !decodeParams(req.Params, &p) {
			return invalidParams(req.ID)
		}
		v, err := s.service.UpsertService(ctx, p)
		return result(req.ID, v, err)
	case "costcenters.upsert":
		var p domain.CostCenter
		if !decodeParams(req.Params, &p) {
			return invalidParams(req.ID)
		}
		v, err := s.service.UpsertCostCenter(ctx, p)
		return result(req.ID, v, err)
	case "costcenters.activate":
		var p idParams
		if !decodeParams(req.Params, &p) {
			return invalidParams(req.ID)
		}
		err := s.service.SetActiveCostCenter(ctx, p.ID)
		return result(req.ID, map[string]any{"ok": err == nil}, err)
	case "pricing.update":
		var p domain.Pricing
		if !decodeParams(req.Params, &p) {
			return invalidParams(req.ID)
		}
		v, err := s.service.UpdatePricing(ctx, p)
		return result(req.ID, v, err)
	}

	return response{JSONRPC: "2.0", Error: &rpcError{Code: -32601, Message: "method not found"}, ID: req.ID}
}

func (s *Server) handleAuthLogin(ctx context.Context, req request) response {
	var p struct {
		Username string `json:"username"`
		Password string `json:"password"`
	}
	if !decodeParams(req.Params, &p) {
		return invalidParams(req.ID)
	}
	res, err := s.service.Login(ctx, p.Username, p.Password)
	if err != nil {
		return response{JSONRPC: "2.0", Error: &rpcError{Code: 40100, Message: "invalid credentials"}, ID: req.ID}
	}
	return response{JSONRPC: "2.0", Result: res, ID: req.ID}
}

func (s *Server) authz(req request) (application.Session, response, bool) {
	var p struct {
		Token string `json:"token"`
	}
	if !decodeParams(req.Params, &p) {
		return application.Session{}, invalidParams(req.ID), false
	}
	sess, err := s.service.Authenticate(p.Token)
	if err != nil {
		return application.Session{}, response{JSONRPC: "2.0", Error: &rpcError{Code: 40100, Message: "unauthorized"}, ID: req.ID}, false
	}
	return sess, response{}, true
}

func decodeParams(raw json.RawMessage, out any) bool {
	if len(raw) == 0 {
		return false
	}
	return json.Unmarshal(raw, out) == nil
}

type draftView struct {
	domain.TransactionDraft
	Total string `json:"total"`
}

func draftResult(id any, d domain.TransactionDraft, err error) response {
	if err != nil {
		return appError(id, err)
	}
	return result(id, draftView{TransactionDraft: d, Total: d.Total().StringFixed(2)}, nil)
}

func result(id any, v any, err error) response {
	if err != nil {
		return appError(id, err)
	}
	return response{JSONRPC: "2.0", Result: v, ID: id}
}

func invalidParams(id any) response {
	return response{JSONRPC: "2.0", Error: &rpcError{Code: -32602, Message: "invalid params"}, ID: id}
}

// appError keeps the HTTP-like code families so CLI output reads the same
// over either transport.
func appError(id any, err error) response {
	code := 50000
	switch {
	case errors.Is(err, domain.ErrTicketNotFound), errors.Is(err, domain.ErrServiceNotFound):
		code = 40400
	case errors.Is(err, domain.ErrTicketClosed), errors.Is(err, domain.ErrDraftInProgress), errors.Is(err, domain.ErrNoDraft):
		code = 40900
	case errors.Is(err, domain.ErrNotAuthenticated), errors.Is(err, domain.ErrActorRequired), errors.Is(err, domain.ErrInvalidCredentials):
		code = 40100
	case errors.Is(err, domain.ErrReasonRequired),
		errors.Is(err, domain.ErrEmptyCart),
		errors.Is(err, domain.ErrInvalidQuantity),
		errors.Is(err, domain.ErrNoCostCenter),
		errors.Is(err, domain.ErrInvalidPaymentMethod),
		errors.Is(err, domain.ErrInvalidInput):
		code = 40000
	}
	if code == 50000 {
		return internalError(id, err)
	}
	return response{JSONRPC: "2.0", Error: &rpcError{Code: code, Message: err.Error()}, ID: id}
}

func internalError(id any, err error) response {
	return response{JSONRPC: "2.0", Error: &rpcError{Code: 50000, Message: fmt.Sprintf("internal error: %v", err)}, ID: id}
}
