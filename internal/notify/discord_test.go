package notify

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/srhthu/GPU-Calendar-Monitor/internal/models"
)

func TestObservePostsNewOffenders(t *testing.T) {
	var payloads []WebhookPayload
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var p WebhookPayload
		if err := json.NewDecoder(r.Body).Decode(&p); err != nil {
			t.Errorf("bad payload: %v", err)
		}
		payloads = append(payloads, p)
		w.WriteHeader(http.StatusNoContent)
	}))
	defer srv.Close()

	n := New(srv.URL)

	// First snapshot with an offender.
	if err := n.Observe(&models.ClusterSnapshot{IllegalUsers: []string{"eve"}}); err != nil {
		t.Fatal(err)
	}
	if len(payloads) != 1 {
		t.Fatalf("got %d posts, want 1", len(payloads))
	}
	if !strings.Contains(payloads[0].Embeds[0].Description, "eve") {
		t.Errorf("alert body: %+v", payloads[0])
	}

	// Same offender again: no repeat alert.
	if err := n.Observe(&models.ClusterSnapshot{IllegalUsers: []string{"eve"}}); err != nil {
		t.Fatal(err)
	}
	if len(payloads) != 1 {
		t.Errorf("repeat offender re-announced: %d posts", len(payloads))
	}

	// A second user joins: only the new one is announced.
	if err := n.Observe(&models.ClusterSnapshot{IllegalUsers: []string{"eve", "mallory"}}); err != nil {
		t.Fatal(err)
	}
	if len(payloads) != 2 {
		t.Fatalf("got %d posts, want 2", len(payloads))
	}
	desc := payloads[1].Embeds[0].Description
	if !strings.Contains(desc, "mallory") || strings.Contains(desc, "eve") {
		t.Errorf("second alert: %q", desc)
	}

	// Offender leaves and returns: announced again.
	n.Observe(&models.ClusterSnapshot{})
	n.Observe(&models.ClusterSnapshot{IllegalUsers: []string{"eve"}})
	if len(payloads) != 3 {
		t.Errorf("returning offender not re-announced: %d posts", len(payloads))
	}
}

func TestObserveDisabled(t *testing.T) {
	n := New("")
	if err := n.Observe(&models.ClusterSnapshot{IllegalUsers: []string{"eve"}}); err != nil {
		t.Errorf("disabled notifier returned %v", err)
	}
}

func TestObserveServerError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "rate limited", http.StatusTooManyRequests)
	}))
	defer srv.Close()

	n := New(srv.URL)
	if err := n.Observe(&models.ClusterSnapshot{IllegalUsers: []string{"eve"}}); err == nil {
		t.Error("expected an error on a non-2xx response")
	}
}
