// Package notify pushes cluster alerts to a Discord webhook.
package notify

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"sort"
	"strings"
	"time"

	"github.com/srhthu/GPU-Calendar-Monitor/internal/models"
)

// Embed is a minimal Discord embed payload.
// See: https://discord.com/developers/docs/resources/channel#embed-object-embed-structure
type Embed struct {
	Title       string       `json:"title,omitempty"`
	Description string       `json:"description,omitempty"`
	Color       int          `json:"color,omitempty"`
	Timestamp   string       `json:"timestamp,omitempty"`
	Footer      *EmbedFooter `json:"footer,omitempty"`
}

type EmbedFooter struct {
	Text string `json:"text,omitempty"`
}

// WebhookPayload is the JSON body for Discord webhooks.
type WebhookPayload struct {
	Content string  `json:"content,omitempty"`
	Embeds  []Embed `json:"embeds,omitempty"`
}

const alertColor = 0xE74C3C

// Notifier posts an alert whenever a user starts occupying a GPU without a
// booking. Repeat offenders in consecutive snapshots are not re-announced;
// a user alerts again only after dropping off the illegal list once.
type Notifier struct {
	URL    string
	client *http.Client
	known  map[string]bool
}

// New builds a Notifier. An empty URL disables posting entirely.
func New(url string) *Notifier {
	return &Notifier{
		URL:    url,
		client: &http.Client{Timeout: 8 * time.Second},
		known:  make(map[string]bool),
	}
}

// Observe inspects a snapshot's illegal-user list and posts an alert for
// newly offending users. Safe to call on every snapshot.
func (n *Notifier) Observe(snap *models.ClusterSnapshot) error {
	if n.URL == "" || snap == nil {
		return nil
	}
	var fresh []string
	current := make(map[string]bool, len(snap.IllegalUsers))
	for _, u := range snap.IllegalUsers {
		current[u] = true
		if !n.known[u] {
			fresh = append(fresh, u)
		}
	}
	n.known = current
	if len(fresh) == 0 {
		return nil
	}
	sort.Strings(fresh)

	embed := Embed{
		Title:       "Unbooked GPU usage",
		Description: fmt.Sprintf("No valid booking for today: %s", strings.Join(fresh, ", ")),
		Color:       alertColor,
		Timestamp:   time.Now().UTC().Format(time.RFC3339),
		Footer:      &EmbedFooter{Text: "gpu-monitor"},
	}
	status, err := n.post(WebhookPayload{Embeds: []Embed{embed}})
	if err != nil {
		return err
	}
	if status >= 300 {
		return fmt.Errorf("discord webhook: status %d", status)
	}
	return nil
}

// post sends a JSON webhook and returns the HTTP status code.
func (n *Notifier) post(payload WebhookPayload) (int, error) {
	b, err := json.Marshal(payload)
	if err != nil {
		return 0, err
	}
	req, err := http.NewRequest(http.MethodPost, n.URL, bytes.NewReader(b))
	if err != nil {
		return 0, err
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := n.client.Do(req)
	if err != nil {
		return 0, err
	}
	defer resp.Body.Close()
	return resp.StatusCode, nil
}
