package main

import (
	"context"
	"net/http"
	"net/url"
)

func doLogin(ctx context.Context, cfg cliConfig, username, password string, out any) error {
	in := map[string]any{"username": username, "password": password}
	if cfg.Transport == "uds" {
		return newRPCClient(cfg.Socket).call(ctx, "auth.login", in, out)
	}
	return newAPIClient(cfg.Server, "").request(ctx, http.MethodPost, "/api/auth/login", in, out)
}

func doWhoAmI(ctx context.Context, cfg cliConfig, out any) error {
	return dispatch(ctx, cfg, "auth.whoami", nil, http.MethodGet, "/api/auth/whoami", nil, out)
}

func doLogout(ctx context.Context, cfg cliConfig) error {
	return dispatch(ctx, cfg, "auth.logout", nil, http.MethodPost, "/api/auth/logout", nil, nil)
}

func doState(ctx context.Context, cfg cliConfig, out any) error {
	return dispatch(ctx, cfg, "state.get", nil, http.MethodGet, "/api/state", nil, out)
}

func doSyncPull(ctx context.Context, cfg cliConfig) error {
	return dispatch(ctx, cfg, "sync.pull", nil, http.MethodPost, "/api/sync/pull", nil, nil)
}

func doTicketsList(ctx context.Context, cfg cliConfig, status, costCenter string, out any) error {
	q := url.Values{}
	if status != "" {
		q.Set("status", status)
	}
	if costCenter != "" {
		q.Set("cost_center", costCenter)
	}
	path := "/api/tickets"
	if len(q) > 0 {
		path += "?" + q.Encode()
	}
	return dispatch(ctx, cfg, "tickets.list", map[string]any{"status": status, "cost_center": costCenter}, http.MethodGet, path, nil, out)
}

func doTicketGet(ctx context.Context, cfg cliConfig, id string, out any) error {
	return dispatch(ctx, cfg, "tickets.get", map[string]any{"id": id}, http.MethodGet, "/api/tickets/"+url.PathEscape(id), nil, out)
}

func doCheckIn(ctx context.Context, cfg cliConfig, in map[string]any, out any) error {
	return dispatch(ctx, cfg, "tickets.checkin", in, http.MethodPost, "/api/tickets", in, out)
}

func doReturnToYard(ctx context.Context, cfg cliConfig, id string, out any) error {
	return dispatch(ctx, cfg, "tickets.return", map[string]any{"id": id}, http.MethodPost, "/api/tickets/"+url.PathEscape(id)+"/return", nil, out)
}

func doCancelTicket(ctx context.Context, cfg cliConfig, id, reason string, out any) error {
	return dispatch(ctx, cfg, "tickets.cancel", map[string]any{"id": id, "reason": reason},
		http.MethodPost, "/api/tickets/"+url.PathEscape(id)+"/cancel", map[string]any{"reason": reason}, out)
}

func doBillingStart(ctx context.Context, cfg cliConfig, ticketID, truckID string, out any) error {
	path := "/api/billing/tickets/" + url.PathEscape(ticketID)
	if ticketID == "" {
		path = "/api/billing/trucks/" + url.PathEscape(truckID)
	}
	return dispatch(ctx, cfg, "billing.start", map[string]any{"ticket_id": ticketID, "truck_id": truckID}, http.MethodPost, path, nil, out)
}

func doBillingDraft(ctx context.Context, cfg cliConfig, out any) error {
	return dispatch(ctx, cfg, "billing.draft", nil, http.MethodGet, "/api/billing/draft", nil, out)
}

func doBillingAdd(ctx context.Context, cfg cliConfig, serviceID string, qty int, out any) error {
	return dispatch(ctx, cfg, "billing.add", map[string]any{"service_id": serviceID, "quantity": qty},
		http.MethodPost, "/api/billing/items", map[string]any{"serviceId": serviceID, "quantity": qty}, out)
}

func doBillingSet(ctx context.Context, cfg cliConfig, serviceID string, qty int, out any) error {
	return dispatch(ctx, cfg, "billing.set", map[string]any{"service_id": serviceID, "quantity": qty},
		http.MethodPut, "/api/billing/items/"+url.PathEscape(serviceID), map[string]any{"quantity": qty}, out)
}

func doBillingRemove(ctx context.Context, cfg cliConfig, serviceID string, out any) error {
	return dispatch(ctx, cfg, "billing.remove", map[string]any{"service_id": serviceID},
		http.MethodDelete, "/api/billing/items/"+url.PathEscape(serviceID), nil, out)
}

func doBillingSettle(ctx context.Context, cfg cliConfig, method string, out any) error {
	return dispatch(ctx, cfg, "billing.settle", map[string]any{"payment_method": method},
		http.MethodPost, "/api/billing/settle", map[string]any{"paymentMethod": method}, out)
}

func doBillingCancel(ctx context.Context, cfg cliConfig) error {
	return dispatch(ctx, cfg, "billing.cancel", nil, http.MethodDelete, "/api/billing/draft", nil, nil)
}

func doHistory(ctx context.Context, cfg cliConfig, out any) error {
	return dispatch(ctx, cfg, "history.list", nil, http.MethodGet, "/api/history", nil, out)
}

func doTotals(ctx context.Context, cfg cliConfig, out any) error {
	return dispatch(ctx, cfg, "totals.get", nil, http.MethodGet, "/api/totals", nil, out)
}

// doRegistryUpsert covers companies, trucks, services and cost centers. The
// RPC method and the HTTP collection share the resource name.
func doRegistryUpsert(ctx context.Context, cfg cliConfig, resource string, in map[string]any, out any) error {
	method := resource + ".upsert"
	if resource == "cost-centers" {
		method = "costcenters.upsert"
	}
	return dispatch(ctx, cfg, method, in, http.MethodPost, "/api/"+resource, in, out)
}

func doActivateCostCenter(ctx context.Context, cfg cliConfig, id string) error {
	in := map[string]any{"id": id}
	return dispatch(ctx, cfg, "costcenters.activate", in, http.MethodPut, "/api/cost-centers/active", in, nil)
}

func doUpdatePricing(ctx context.Context, cfg cliConfig, perPallet, perBox string, out any) error {
	in := map[string]any{"pricePerPallet": perPallet, "pricePerBox": perBox}
	return dispatch(ctx, cfg, "pricing.update", in, http.MethodPut, "/api/pricing", in, out)
}

// dispatch sends one operation over the configured transport. Over the unix
// socket the token travels in the params; over HTTP it is a bearer header.
func dispatch(ctx context.Context, cfg cliConfig, rpcMethod string, params map[string]any, httpMethod, path string, body any, out any) error {
	if cfg.Transport == "uds" {
		p := map[string]any{"token": cfg.Token}
		for k, v := range params {
			p[k] = v
		}
		return newRPCClient(cfg.Socket).call(ctx, rpcMethod, p, out)
	}
	return newAPIClient(cfg.Server, cfg.Token).request(ctx, httpMethod, path, body, out)
}
