package testhelpers

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
)

// Route names used for call counting and scripted responses.
const (
	RouteRefresh          = "refresh"
	RouteListOrderTypes   = "order_types.list"
	RouteCreateOrderType  = "order_types.create"
	RouteSystemOrderTypes = "system_order_types"
	RouteCreateOrder      = "orders.create"
	RouteUpdateOrder      = "orders.update"
	RouteLineItems        = "line_items.create"
	RouteModifications    = "modifications.create"
	RouteCheckout         = "checkouts.create"
	RouteTaxRates         = "tax_rates.list"
	RouteTaxRateItems     = "tax_rate_items.list"
)

// RecordedRequest is one request received by FakeClover.
type RecordedRequest struct {
	Route       string
	Path        string
	Header      http.Header
	ContentType string
	Body        map[string]any
	RawBody     string
}

type scriptedResponse struct {
	status int
	body   string
}

// FakeClover is an in-process POS API with per-route call counters. POS
// routes answer 401 to any bearer other than AccessToken; a refresh rotates
// AccessToken.
type FakeClover struct {
	Server *httptest.Server

	mu       sync.Mutex
	calls    map[string]int
	requests []RecordedRequest
	scripts  map[string][]scriptedResponse
	nextID   int

	AccessToken      string
	OrderTypes       []map[string]any
	SystemOrderTypes []map[string]any
	TaxRates         []map[string]any
	TaxRateItems     map[string][]string
}

// NewFakeClover starts the fake server. Close it with Server.Close.
func NewFakeClover() *FakeClover {
	f := &FakeClover{
		calls:        make(map[string]int),
		scripts:      make(map[string][]scriptedResponse),
		AccessToken:  "valid-token",
		TaxRateItems: make(map[string][]string),
	}

	mux := http.NewServeMux()
	mux.HandleFunc("POST /oauth/v2/refresh", f.handle(RouteRefresh, false, f.refresh))
	mux.HandleFunc("GET /v3/merchants/{mid}/order_types", f.handle(RouteListOrderTypes, true, f.listOrderTypes))
	mux.HandleFunc("POST /v3/merchants/{mid}/order_types", f.handle(RouteCreateOrderType, true, f.createOrderType))
	mux.HandleFunc("GET /v3/merchants/{mid}/system_order_types", f.handle(RouteSystemOrderTypes, true, f.listSystemOrderTypes))
	mux.HandleFunc("POST /v3/merchants/{mid}/orders", f.handle(RouteCreateOrder, true, f.createWithID("ORD")))
	mux.HandleFunc("POST /v3/merchants/{mid}/orders/{oid}", f.handle(RouteUpdateOrder, true, f.echoID("oid")))
	mux.HandleFunc("POST /v3/merchants/{mid}/orders/{oid}/line_items", f.handle(RouteLineItems, true, f.createWithID("LI")))
	mux.HandleFunc("POST /v3/merchants/{mid}/orders/{oid}/line_items/{lid}/modifications", f.handle(RouteModifications, true, f.createWithID("MODN")))
	mux.HandleFunc("POST /invoicingcheckoutservice/v1/checkouts", f.handle(RouteCheckout, true, f.checkout))
	mux.HandleFunc("GET /v3/merchants/{mid}/tax_rates", f.handle(RouteTaxRates, true, f.listTaxRates))
	mux.HandleFunc("GET /v3/merchants/{mid}/tax_rates/{tid}/items", f.handle(RouteTaxRateItems, true, f.listTaxRateItems))

	f.Server = httptest.NewServer(mux)
	return f
}

// URL returns the base URL of the fake server.
func (f *FakeClover) URL() string {
	return f.Server.URL
}

// Script queues a one-shot response for route, served before the default handler.
func (f *FakeClover) Script(route string, status int, body string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.scripts[route] = append(f.scripts[route], scriptedResponse{status: status, body: body})
}

// Calls returns how many times route was hit.
func (f *FakeClover) Calls(route string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls[route]
}

// TotalPOSCalls counts every call except token refreshes.
func (f *FakeClover) TotalPOSCalls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	total := 0
	for route, n := range f.calls {
		if route != RouteRefresh {
			total += n
		}
	}
	return total
}

// Requests returns the recorded requests of route in arrival order.
func (f *FakeClover) Requests(route string) []RecordedRequest {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []RecordedRequest
	for _, r := range f.requests {
		if r.Route == route {
			out = append(out, r)
		}
	}
	return out
}

// Order returns the route names in the order they were hit.
func (f *FakeClover) Order() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]string, len(f.requests))
	for i, r := range f.requests {
		out[i] = r.Route
	}
	return out
}

type routeHandler func(r *http.Request, body map[string]any) (int, any)

func (f *FakeClover) handle(route string, requireAuth bool, next routeHandler) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		raw, _ := io.ReadAll(r.Body)
		body := map[string]any{}
		_ = json.Unmarshal(raw, &body)

		f.mu.Lock()
		f.calls[route]++
		f.requests = append(f.requests, RecordedRequest{
			Route:       route,
			Path:        r.URL.Path,
			Header:      r.Header.Clone(),
			ContentType: r.Header.Get("Content-Type"),
			Body:        body,
			RawBody:     string(raw),
		})
		var scripted *scriptedResponse
		if queue := f.scripts[route]; len(queue) > 0 {
			scripted = &queue[0]
			f.scripts[route] = queue[1:]
		}
		token := f.AccessToken
		f.mu.Unlock()

		if scripted != nil {
			writeRaw(w, scripted.status, scripted.body)
			return
		}
		if requireAuth && strings.TrimPrefix(r.Header.Get("Authorization"), "Bearer ") != token {
			writeRaw(w, http.StatusUnauthorized, `{"message":"401 Unauthorized"}`)
			return
		}

		status, resp := next(r, body)
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		_ = json.NewEncoder(w).Encode(resp)
	}
}

func writeRaw(w http.ResponseWriter, status int, body string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, _ = io.WriteString(w, body)
}

func (f *FakeClover) newID(prefix string) string {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.nextID++
	return fmt.Sprintf("%s%d", prefix, f.nextID)
}

func (f *FakeClover) refresh(r *http.Request, _ map[string]any) (int, any) {
	token := f.newID("access-")
	f.mu.Lock()
	f.AccessToken = token
	f.mu.Unlock()
	return http.StatusOK, map[string]any{
		"access_token":  token,
		"refresh_token": f.newID("refresh-"),
		"expires_in":    3600,
	}
}

func (f *FakeClover) listOrderTypes(*http.Request, map[string]any) (int, any) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return http.StatusOK, map[string]any{"elements": f.OrderTypes}
}

func (f *FakeClover) createOrderType(_ *http.Request, body map[string]any) (int, any) {
	created := map[string]any{"id": f.newID("OT")}
	for k, v := range body {
		created[k] = v
	}
	f.mu.Lock()
	f.OrderTypes = append(f.OrderTypes, created)
	f.mu.Unlock()
	return http.StatusOK, created
}

func (f *FakeClover) listSystemOrderTypes(*http.Request, map[string]any) (int, any) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return http.StatusOK, map[string]any{"elements": f.SystemOrderTypes}
}

func (f *FakeClover) createWithID(prefix string) routeHandler {
	return func(*http.Request, map[string]any) (int, any) {
		return http.StatusOK, map[string]any{"id": f.newID(prefix)}
	}
}

func (f *FakeClover) echoID(param string) routeHandler {
	return func(r *http.Request, _ map[string]any) (int, any) {
		return http.StatusOK, map[string]any{"id": r.PathValue(param)}
	}
}

func (f *FakeClover) checkout(*http.Request, map[string]any) (int, any) {
	session := f.newID("CS")
	return http.StatusOK, map[string]any{
		"href":              "https://checkout.example/" + session,
		"checkoutSessionId": session,
		"orderId":           f.newID("ORD"),
	}
}

func (f *FakeClover) listTaxRates(*http.Request, map[string]any) (int, any) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return http.StatusOK, map[string]any{"elements": f.TaxRates}
}

func (f *FakeClover) listTaxRateItems(r *http.Request, _ map[string]any) (int, any) {
	f.mu.Lock()
	defer f.mu.Unlock()
	items := []map[string]any{}
	for _, id := range f.TaxRateItems[r.PathValue("tid")] {
		items = append(items, map[string]any{"id": id})
	}
	return http.StatusOK, map[string]any{"elements": items}
}
