package session

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/openfleet/partner-agent/go/clients/dispatch_api_client"
	"github.com/openfleet/partner-agent/go/internal/alert"
	"github.com/openfleet/partner-agent/go/internal/arbiter"
	"github.com/openfleet/partner-agent/go/internal/channel"
	"github.com/openfleet/partner-agent/go/internal/offer"
	"github.com/openfleet/partner-agent/go/internal/polling"
	"github.com/openfleet/partner-agent/go/internal/tracking"
	"github.com/openfleet/partner-agent/go/internal/transport"
)

// backendStub fakes both backend surfaces: the socket endpoint and the
// REST endpoints the resolver talks to.
type backendStub struct {
	ws   *httptest.Server
	rest *httptest.Server

	upgrader websocket.Upgrader

	mu       sync.Mutex
	conns    []*websocket.Conn
	statuses map[string]string
}

func newBackendStub(t *testing.T) *backendStub {
	t.Helper()
	s := &backendStub{statuses: map[string]string{}}

	s.ws = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := s.upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		s.mu.Lock()
		s.conns = append(s.conns, conn)
		s.mu.Unlock()
		go func() {
			for {
				if _, _, err := conn.ReadMessage(); err != nil {
					return
				}
			}
		}()
	}))
	t.Cleanup(s.ws.Close)

	mux := http.NewServeMux()
	mux.HandleFunc("/api/orders/", func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodPatch {
			var body map[string]string
			json.NewDecoder(r.Body).Decode(&body)
			orderID := strings.TrimSuffix(strings.TrimPrefix(r.URL.Path, "/api/orders/"), "/status")
			s.mu.Lock()
			s.statuses[orderID] = body["status"]
			s.mu.Unlock()
			w.WriteHeader(http.StatusOK)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"_id": "ord-1", "customer": {"name": "Dana", "phone": "+15550100"}}`))
	})
	mux.HandleFunc("/api/partners/", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`[]`))
	})
	s.rest = httptest.NewServer(mux)
	t.Cleanup(s.rest.Close)

	return s
}

func (s *backendStub) push(t *testing.T, raw offer.PushAssignment) {
	t.Helper()
	s.mu.Lock()
	conn := s.conns[len(s.conns)-1]
	s.mu.Unlock()
	data, _ := json.Marshal(raw)
	frame, _ := json.Marshal(transport.Frame{Event: transport.EventOrderAssigned, Data: data})
	if err := conn.WriteMessage(websocket.TextMessage, frame); err != nil {
		t.Fatal(err)
	}
}

func (s *backendStub) statusOf(orderID string) string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.statuses[orderID]
}

func newTestSession(t *testing.T, stub *backendStub) (*Session, *tracking.App) {
	t.Helper()
	client := dispatch_api_client.NewDispatchApiClient(stub.rest.URL)
	trackingApp := tracking.NewApp(tracking.NewMemoryRepository())

	transportCfg := transport.DefaultConfig()
	transportCfg.URL = "ws" + strings.TrimPrefix(stub.ws.URL, "http")
	transportCfg.BackoffBase = time.Millisecond

	s := New(Config{
		PartnerID: "partner-1",
		Arbiter:   arbiter.DefaultConfig(),
		Transport: transportCfg,
		Polling:   polling.DefaultConfig(),
	}, client, alert.NewLogAlerter(), trackingApp, nil)
	t.Cleanup(s.Stop)
	return s, trackingApp
}

func waitFor(t *testing.T, cond func() bool, msg string) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(time.Millisecond)
	}
	t.Fatal(msg)
}

func TestSessionAcceptFlow(t *testing.T) {
	stub := newBackendStub(t)
	s, trackingApp := newTestSession(t, stub)

	if err := s.Start(context.Background()); err != nil {
		t.Fatalf("start failed: %v", err)
	}
	s.GoOnline()

	if got := s.Status().Channel; got != channel.StateConnected {
		t.Fatalf("channel = %s, want CONNECTED", got)
	}

	stub.push(t, offer.PushAssignment{
		OrderID:    "ord-1",
		Price:      120,
		DistanceKm: 3.2,
		From:       &offer.Endpoint{Address: "Warehouse 4"},
	})
	waitFor(t, func() bool {
		return s.Status().Arbiter.State == offer.StateLive
	}, "pushed assignment should go live")

	accepted, err := s.Accept(context.Background())
	if err != nil {
		t.Fatalf("accept failed: %v", err)
	}
	if accepted.OrderID != "ord-1" || accepted.CustomerName != "Dana" {
		t.Fatalf("accepted = %+v", accepted)
	}
	if got := stub.statusOf("ord-1"); got != "accepted" {
		t.Fatalf("backend status = %q, want accepted", got)
	}
	if s.Status().Arbiter.State != offer.StateIdle {
		t.Fatal("session should be idle after accept")
	}

	// The handoff landed in the tracking context.
	journaled, err := trackingApp.Get(context.Background(), "ord-1")
	if err != nil {
		t.Fatalf("journal lookup failed: %v", err)
	}
	if journaled.CustomerName != "Dana" {
		t.Fatalf("journaled = %+v", journaled)
	}
}

func TestSessionDeclineMakesNoBackendCall(t *testing.T) {
	stub := newBackendStub(t)
	s, _ := newTestSession(t, stub)
	if err := s.Start(context.Background()); err != nil {
		t.Fatal(err)
	}
	s.GoOnline()

	stub.push(t, offer.PushAssignment{OrderID: "ord-9", Price: 50})
	waitFor(t, func() bool {
		return s.Status().Arbiter.State == offer.StateLive
	}, "pushed assignment should go live")

	if err := s.Decline(); err != nil {
		t.Fatal(err)
	}
	if got := stub.statusOf("ord-9"); got != "" {
		t.Fatalf("decline must be client-local, backend saw status %q", got)
	}
}

func TestSessionOfflineHidesLiveOffer(t *testing.T) {
	stub := newBackendStub(t)
	s, _ := newTestSession(t, stub)
	if err := s.Start(context.Background()); err != nil {
		t.Fatal(err)
	}
	s.GoOnline()

	stub.push(t, offer.PushAssignment{OrderID: "ord-5"})
	waitFor(t, func() bool {
		return s.Status().Arbiter.State == offer.StateLive
	}, "pushed assignment should go live")

	s.GoOffline()
	if s.Status().Arbiter.State != offer.StateIdle {
		t.Fatal("going offline must hide the live offer")
	}
	if got := stub.statusOf("ord-5"); got != "" {
		t.Fatalf("offline dismissal must make no backend call, saw %q", got)
	}

	// Pushes while offline are dropped.
	stub.push(t, offer.PushAssignment{OrderID: "ord-6"})
	time.Sleep(50 * time.Millisecond)
	if s.Status().Arbiter.State != offer.StateIdle {
		t.Fatal("offline partner must not receive offers")
	}
}
