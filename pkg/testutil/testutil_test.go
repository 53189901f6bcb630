package testutil

import (
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
)

// ---------------------------------------------------------------------------
// Helper: create a test server with typical endpoints
// ---------------------------------------------------------------------------

func newTestServer() *httptest.Server {
	mux := http.NewServeMux()

	writeJSON := func(w http.ResponseWriter, status int, v any) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		json.NewEncoder(w).Encode(v)
	}

	mux.HandleFunc("GET /orders/{id}", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"id": r.PathValue("id")})
	})

	mux.HandleFunc("POST /checkout", func(w http.ResponseWriter, r *http.Request) {
		var body map[string]any
		json.NewDecoder(r.Body).Decode(&body)
		body["pendingCheckoutId"] = "pc_1"
		writeJSON(w, http.StatusCreated, body)
	})

	mux.HandleFunc("PATCH /orders/{id}/status", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	})

	mux.HandleFunc("POST /raw", func(w http.ResponseWriter, r *http.Request) {
		data, _ := io.ReadAll(r.Body)
		writeJSON(w, http.StatusOK, map[string]string{
			"body":      string(data),
			"signature": r.Header.Get("Stripe-Signature"),
		})
	})

	mux.HandleFunc("GET /echo-headers", func(w http.ResponseWriter, r *http.Request) {
		headers := map[string]string{}
		for k := range r.Header {
			headers[k] = r.Header.Get(k)
		}
		writeJSON(w, http.StatusOK, headers)
	})

	mux.HandleFunc("GET /fail", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusConflict, map[string]any{
			"error": map[string]string{"kind": "illegal_transition", "message": "no"},
		})
	})

	mux.HandleFunc("GET /admin/health", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})

	mux.HandleFunc("POST /admin/time/advance", func(w http.ResponseWriter, r *http.Request) {
		var body map[string]string
		json.NewDecoder(r.Body).Decode(&body)
		writeJSON(w, http.StatusOK, map[string]string{"duration": body["duration"]})
	})

	return httptest.NewServer(mux)
}

// ---------------------------------------------------------------------------
// Client
// ---------------------------------------------------------------------------

func TestClientGet(t *testing.T) {
	srv := newTestServer()
	defer srv.Close()
	c := NewClient(t, srv)

	resp := c.Get("/orders/o1").AssertStatus(http.StatusOK)
	if resp.JSONMap()["id"] != "o1" {
		t.Errorf("unexpected body %s", resp.Body)
	}
}

func TestClientPost(t *testing.T) {
	srv := newTestServer()
	defer srv.Close()
	c := NewClient(t, srv)

	resp := c.Post("/checkout", map[string]any{"userId": "u1"}).AssertStatus(http.StatusCreated)
	body := resp.JSONMap()
	if body["userId"] != "u1" || body["pendingCheckoutId"] != "pc_1" {
		t.Errorf("unexpected body %+v", body)
	}
}

func TestClientPatch(t *testing.T) {
	srv := newTestServer()
	defer srv.Close()

	NewClient(t, srv).Patch("/orders/o1/status", map[string]string{"status": "ready"}).
		AssertStatus(http.StatusNoContent)
}

func TestClientPostRawKeepsBytes(t *testing.T) {
	srv := newTestServer()
	defer srv.Close()
	c := NewClient(t, srv)

	payload := []byte(`{"id":"evt_1",  "spaced":true}`)
	resp := c.PostRaw("/raw", payload, map[string]string{"Stripe-Signature": "t=1,v1=ab"})
	body := resp.JSONMap()
	if body["body"] != string(payload) {
		t.Errorf("payload was altered: %v", body["body"])
	}
	if body["signature"] != "t=1,v1=ab" {
		t.Errorf("signature header missing: %+v", body)
	}
}

func TestClientWithToken(t *testing.T) {
	srv := newTestServer()
	defer srv.Close()
	base := NewClient(t, srv)
	authed := base.WithToken("tok_123")

	headers := authed.Get("/echo-headers").JSONMap()
	if headers["Authorization"] != "Bearer tok_123" {
		t.Errorf("expected bearer token, got %+v", headers)
	}
	if _, ok := base.Get("/echo-headers").JSONMap()["Authorization"]; ok {
		t.Error("WithToken must not modify the original client")
	}

	explicit := authed.DoWithHeaders("GET", "/echo-headers", nil, map[string]string{"Authorization": "Bearer other"}).JSONMap()
	if explicit["Authorization"] != "Bearer other" {
		t.Errorf("explicit header should win, got %v", explicit["Authorization"])
	}
}

func TestResponseAssertError(t *testing.T) {
	srv := newTestServer()
	defer srv.Close()

	resp := NewClient(t, srv).Get("/fail").AssertError(http.StatusConflict, "illegal_transition")
	if resp.ErrorKind() != "illegal_transition" {
		t.Errorf("unexpected kind %q", resp.ErrorKind())
	}
	resp.AssertBodyContains("no")
}

func TestNewClientURLTrimsSlash(t *testing.T) {
	c := NewClientURL(t, "http://localhost:8080/")
	if c.BaseURL != "http://localhost:8080" {
		t.Errorf("unexpected base URL %s", c.BaseURL)
	}
}

// ---------------------------------------------------------------------------
// AdminClient
// ---------------------------------------------------------------------------

func TestAdminClient(t *testing.T) {
	srv := newTestServer()
	defer srv.Close()
	ac := NewAdminClient(NewClient(t, srv))

	ac.Health().AssertStatus(http.StatusOK).AssertBodyContains("ok")
	resp := ac.AdvanceTime("2h").AssertStatus(http.StatusOK)
	if resp.JSONMap()["duration"] != "2h" {
		t.Errorf("unexpected body %s", resp.Body)
	}
}
