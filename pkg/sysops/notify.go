package sysops

import (
	"bytes"
	"context"
	"encoding/json"
	"log"
	"net/http"
	"os/exec"
	"time"
)

// execCommand is swappable in tests.
var execCommand = exec.CommandContext

// WebhookNotifier posts notifications to an HTTP endpoint. Fire-and-forget:
// failures are logged, never surfaced to the caller.
type WebhookNotifier struct {
	URL    string
	Client *http.Client
}

func (n WebhookNotifier) Notify(title, body string) {
	if n.URL == "" {
		return
	}
	client := n.Client
	if client == nil {
		client = &http.Client{Timeout: 10 * time.Second}
	}
	payload, _ := json.Marshal(map[string]string{"title": title, "body": body})
	req, err := http.NewRequestWithContext(context.Background(), http.MethodPost, n.URL, bytes.NewReader(payload))
	if err != nil {
		log.Printf("notify build request failed: %v", err)
		return
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := client.Do(req)
	if err != nil {
		log.Printf("notify %q failed: %v", title, err)
		return
	}
	_ = resp.Body.Close()
}

// LogNotifier writes notifications to the process log. Useful as a default
// when no delivery channel is configured.
type LogNotifier struct{}

func (LogNotifier) Notify(title, body string) {
	log.Printf("notify: %s: %s", title, body)
}

// MultiNotifier fans a notification out to several channels.
type MultiNotifier []interface{ Notify(title, body string) }

func (m MultiNotifier) Notify(title, body string) {
	for _, n := range m {
		n.Notify(title, body)
	}
}
