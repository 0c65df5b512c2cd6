package nodeclient

import (
	"context"
	"encoding/json"
	"net"
	"net/http"
	"net/http/httptest"
	"strconv"
	"testing"
	"time"

	"github.com/srhthu/GPU-Calendar-Monitor/internal/models"
)

// startAgentStub runs a fake agent and returns its host and port.
func startAgentStub(t *testing.T, handler http.HandlerFunc) (string, int) {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	host, portStr, err := net.SplitHostPort(srv.Listener.Addr().String())
	if err != nil {
		t.Fatal(err)
	}
	port, _ := strconv.Atoi(portStr)
	return host, port
}

func TestFetchNodeStatus(t *testing.T) {
	report := models.NodeStatus{
		Hostname:   "next-asus-0",
		LastUpdate: time.Now(),
		GPUs:       []models.GPUStatus{{Index: 0, Name: "RTX 3090", MemoryTotal: 24576}},
	}
	host, port := startAgentStub(t, func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost || r.URL.Path != "/get-status" {
			t.Errorf("unexpected request: %s %s", r.Method, r.URL.Path)
		}
		var creds map[string]string
		if err := json.NewDecoder(r.Body).Decode(&creds); err != nil {
			t.Errorf("bad request body: %v", err)
		}
		if creds["passwd"] != "s3cret" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		json.NewEncoder(w).Encode(report)
	})

	c := New(port, "s3cret")
	got, err := c.FetchNodeStatus(context.Background(), host)
	if err != nil {
		t.Fatal(err)
	}
	if got.Hostname != "next-asus-0" || len(got.GPUs) != 1 {
		t.Errorf("report: %+v", got)
	}
}

func TestFetchNodeStatusBadSecret(t *testing.T) {
	host, port := startAgentStub(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	})
	c := New(port, "wrong")
	if _, err := c.FetchNodeStatus(context.Background(), host); err == nil {
		t.Error("expected an error on rejected credentials")
	}
}

func TestFetchNodeStatusEmptyHostname(t *testing.T) {
	host, port := startAgentStub(t, func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(models.NodeStatus{})
	})
	c := New(port, "s3cret")
	if _, err := c.FetchNodeStatus(context.Background(), host); err == nil {
		t.Error("expected an error on a report without a hostname")
	}
}

func TestFetchNodeStatusContextTimeout(t *testing.T) {
	host, port := startAgentStub(t, func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(200 * time.Millisecond)
	})
	c := New(port, "s3cret")
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	if _, err := c.FetchNodeStatus(ctx, host); err == nil {
		t.Error("expected a deadline error")
	}
}
