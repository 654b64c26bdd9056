package dispatch_api_client

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestAssignedOrders(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/partners/partner-1/orders" {
			t.Errorf("path = %q", r.URL.Path)
		}
		if got := r.URL.Query().Get("status"); got != "assigned" {
			t.Errorf("status = %q", got)
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`[
			{"_id": "ord-2", "price": 90, "distanceKm": 2.5, "createdAt": "2025-06-01T12:05:00Z"},
			{"_id": "ord-1", "price": 120, "from": {"address": "Warehouse 4"}, "createdAt": "2025-06-01T12:00:00Z"}
		]`))
	}))
	defer srv.Close()

	client := NewDispatchApiClient(srv.URL)
	orders, err := client.AssignedOrders(context.Background(), "partner-1")
	if err != nil {
		t.Fatalf("AssignedOrders failed: %v", err)
	}
	if len(orders) != 2 {
		t.Fatalf("orders = %d, want 2", len(orders))
	}
	if orders[0].ID != "ord-2" || orders[1].From.Address != "Warehouse 4" {
		t.Fatalf("unexpected orders: %+v", orders)
	}
}

func TestUpdateOrderStatus(t *testing.T) {
	var gotBody map[string]string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPatch {
			t.Errorf("method = %q", r.Method)
		}
		if r.URL.Path != "/api/orders/ord-1/status" {
			t.Errorf("path = %q", r.URL.Path)
		}
		json.NewDecoder(r.Body).Decode(&gotBody)
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	client := NewDispatchApiClient(srv.URL)
	if err := client.UpdateOrderStatus(context.Background(), "ord-1", "accepted"); err != nil {
		t.Fatalf("UpdateOrderStatus failed: %v", err)
	}
	if gotBody["status"] != "accepted" {
		t.Fatalf("body = %v", gotBody)
	}
}

func TestGetOrder(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{
			"_id": "ord-1",
			"price": 125,
			"customer": {"name": "Dana", "phone": "+15550100"},
			"from": {"address": "Warehouse 4", "location": {"coordinates": [24.105, 56.949]}},
			"to": {"address": "12 Elm St"}
		}`))
	}))
	defer srv.Close()

	client := NewDispatchApiClient(srv.URL)
	detail, err := client.GetOrder(context.Background(), "ord-1")
	if err != nil {
		t.Fatalf("GetOrder failed: %v", err)
	}
	if detail.Customer.Name != "Dana" || detail.Price != 125 {
		t.Fatalf("detail = %+v", detail)
	}
	if detail.From.Location == nil || detail.From.Location.Coordinates[0] != 24.105 {
		t.Fatalf("coordinates missing: %+v", detail.From)
	}
}

func TestErrorResponseIncludesBody(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "order not found", http.StatusNotFound)
	}))
	defer srv.Close()

	client := NewDispatchApiClient(srv.URL)
	_, err := client.GetOrder(context.Background(), "missing")
	if err == nil {
		t.Fatal("expected an error for a 404")
	}
}

func TestAuthHeaderIsSent(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if got := r.Header.Get("Authorization"); got != "Bearer tok-1" {
			t.Errorf("authorization = %q", got)
		}
		w.Write([]byte(`[]`))
	}))
	defer srv.Close()

	client := NewDispatchApiClient(srv.URL)
	client.SetHeader("Authorization", "Bearer tok-1")
	if _, err := client.AssignedOrders(context.Background(), "partner-1"); err != nil {
		t.Fatal(err)
	}
}
