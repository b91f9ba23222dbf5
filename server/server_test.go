// Copyright 2026 The Polaris Touch Authors
// SPDX-License-Identifier: Apache-2.0

package server

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/GEEKiDoS/polaris-touch-godot/bridge"
	"github.com/GEEKiDoS/polaris-touch-godot/lib/config"
	"github.com/GEEKiDoS/polaris-touch-godot/lib/testutil"
	"github.com/GEEKiDoS/polaris-touch-godot/tracker"
	"github.com/GEEKiDoS/polaris-touch-godot/touch"
	"github.com/GEEKiDoS/polaris-touch-godot/transport"
)

type fixedStatus bridge.Status

func (f fixedStatus) Status() bridge.Status { return bridge.Status(f) }

func newTestServer(t *testing.T, address string) (*Server, *tracker.Tracker, *prometheus.Registry) {
	t.Helper()
	tr := tracker.New(tracker.Options{Lanes: 2, Width: 100, Height: 100})
	registry := prometheus.NewRegistry()
	transport.NewMetrics(registry)

	server, err := New(Config{
		Address: address,
		Touch:   touch.NewHandler(tr, nil),
		Bridge: fixedStatus{
			Host:      "10.0.0.2:1337",
			Connected: true,
			Latency:   3,
			Left:      0.25,
			Right:     0.5,
			Buttons:   []bool{true, false},
		},
		Transport: config.TransportDatagram,
		Gatherer:  registry,
	})
	if err != nil {
		t.Fatalf("New() error: %v", err)
	}
	return server, tr, registry
}

func TestNewValidation(t *testing.T) {
	handler := touch.NewHandler(tracker.New(tracker.Options{Lanes: 1}), nil)
	tests := []struct {
		name   string
		config Config
	}{
		{"missing address", Config{Touch: handler, Bridge: fixedStatus{}}},
		{"missing touch", Config{Address: ":0", Bridge: fixedStatus{}}},
		{"missing bridge", Config{Address: ":0", Touch: handler}},
	}
	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			if _, err := New(test.config); err == nil {
				t.Fatal("New() succeeded")
			}
		})
	}
}

func TestStatusEndpoint(t *testing.T) {
	server, _, _ := newTestServer(t, "127.0.0.1:0")

	recorder := httptest.NewRecorder()
	server.Handler().ServeHTTP(recorder, httptest.NewRequest(http.MethodGet, "/status", nil))
	if recorder.Code != http.StatusOK {
		t.Fatalf("status code = %d", recorder.Code)
	}

	var body map[string]any
	if err := json.Unmarshal(recorder.Body.Bytes(), &body); err != nil {
		t.Fatalf("Unmarshal() error: %v", err)
	}
	checks := map[string]any{
		"host":          "10.0.0.2:1337",
		"connected":     true,
		"latency_ms":    float64(3),
		"fader_left":    0.25,
		"transport":     "udp",
		"touch_clients": float64(0),
	}
	for key, want := range checks {
		if body[key] != want {
			t.Errorf("%s = %v, want %v", key, body[key], want)
		}
	}
	if buttons, ok := body["buttons"].([]any); !ok || len(buttons) != 2 || buttons[0] != true {
		t.Errorf("buttons = %v", body["buttons"])
	}
	if _, ok := body["version"].(string); !ok {
		t.Errorf("version missing: %v", body)
	}
}

func TestMetricsEndpoint(t *testing.T) {
	server, _, _ := newTestServer(t, "127.0.0.1:0")

	recorder := httptest.NewRecorder()
	server.Handler().ServeHTTP(recorder, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	if recorder.Code != http.StatusOK {
		t.Fatalf("status code = %d", recorder.Code)
	}
	if body := recorder.Body.String(); !strings.Contains(body, "polaris_spiceapi_") {
		t.Errorf("metrics output lacks polaris_spiceapi_ series:\n%s", body)
	}
}

func TestUnknownRoute(t *testing.T) {
	server, _, _ := newTestServer(t, "127.0.0.1:0")

	recorder := httptest.NewRecorder()
	server.Handler().ServeHTTP(recorder, httptest.NewRequest(http.MethodGet, "/nope", nil))
	if recorder.Code != http.StatusNotFound {
		t.Errorf("status code = %d, want 404", recorder.Code)
	}
}

func TestServeTouchAndShutdown(t *testing.T) {
	server, tr, _ := newTestServer(t, "127.0.0.1:0")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	done := make(chan error, 1)
	go func() { done <- server.Serve(ctx) }()
	testutil.RequireClosed(t, server.Ready(), 5*time.Second, "listener bound")

	url := "ws://" + server.Addr().String() + "/touch"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("Dial() error: %v", err)
	}
	defer conn.Close()

	if err := conn.WriteMessage(websocket.TextMessage, []byte(`{"type":"down","id":1,"x":80,"y":90}`)); err != nil {
		t.Fatalf("WriteMessage() error: %v", err)
	}
	testutil.RequireEventually(t, 5*time.Second, func() bool {
		buttons := tr.Tick().Buttons
		return buttons[1]
	}, "touch reached the tracker")

	response, err := http.Get("http://" + server.Addr().String() + "/status")
	if err != nil {
		t.Fatalf("Get() error: %v", err)
	}
	body, _ := io.ReadAll(response.Body)
	response.Body.Close()
	if !strings.Contains(string(body), `"touch_clients":1`) {
		t.Errorf("status = %s, want one touch client", body)
	}

	cancel()
	if err := testutil.RequireReceive(t, done, 5*time.Second, "serve exit"); err != nil {
		t.Fatalf("Serve() error: %v", err)
	}
	if _, _, err := conn.ReadMessage(); err == nil {
		t.Error("touch client still open after shutdown")
	}
}

func TestServeListenError(t *testing.T) {
	server, _, _ := newTestServer(t, "256.0.0.1:0")
	if err := server.Serve(context.Background()); err == nil {
		t.Fatal("Serve() succeeded on an invalid address")
	}
}
