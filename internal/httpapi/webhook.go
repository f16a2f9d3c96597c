package httpapi

import (
	"bytes"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"log"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
)

const webhookTimeout = 10 * time.Second

// WebhookRegistration is one configured delivery target.
type WebhookRegistration struct {
	ID        string    `json:"id"`
	URL       string    `json:"url"`
	Secret    string    `json:"secret,omitempty"`
	Events    []string  `json:"events"`
	Enabled   bool      `json:"enabled"`
	CreatedAt time.Time `json:"created_at"`
}

// matches reports whether the registration subscribes to the event
// name. "*" subscribes to everything.
func (r *WebhookRegistration) matches(event string) bool {
	for _, e := range r.Events {
		if e == "*" || e == event {
			return true
		}
	}
	return false
}

// webhookPayload is the POST body. The signature covers the payload
// serialized without it.
type webhookPayload struct {
	EventType string          `json:"event_type"`
	Timestamp time.Time       `json:"timestamp"`
	Data      json.RawMessage `json:"data"`
	Signature string          `json:"signature,omitempty"`
}

// WebhookRegistry holds registrations and fans deliveries out to them.
type WebhookRegistry struct {
	mu     sync.RWMutex
	hooks  map[string]*WebhookRegistration
	client *http.Client
}

// NewWebhookRegistry returns an empty registry.
func NewWebhookRegistry() *WebhookRegistry {
	return &WebhookRegistry{
		hooks:  make(map[string]*WebhookRegistration),
		client: &http.Client{Timeout: webhookTimeout},
	}
}

// Register stores a new registration, assigning id and created_at.
func (wr *WebhookRegistry) Register(reg *WebhookRegistration) *WebhookRegistration {
	reg.ID = uuid.NewString()
	reg.CreatedAt = time.Now().UTC()
	wr.mu.Lock()
	wr.hooks[reg.ID] = reg
	wr.mu.Unlock()
	return reg
}

// Remove deletes a registration, reporting whether it existed.
func (wr *WebhookRegistry) Remove(id string) bool {
	wr.mu.Lock()
	defer wr.mu.Unlock()
	_, ok := wr.hooks[id]
	delete(wr.hooks, id)
	return ok
}

// List returns all registrations.
func (wr *WebhookRegistry) List() []*WebhookRegistration {
	wr.mu.RLock()
	defer wr.mu.RUnlock()
	out := make([]*WebhookRegistration, 0, len(wr.hooks))
	for _, h := range wr.hooks {
		out = append(out, h)
	}
	return out
}

// Dispatch delivers the event to every enabled, matching registration.
// Each POST runs in its own goroutine, fire-and-forget.
func (wr *WebhookRegistry) Dispatch(event string, data any) {
	raw, err := json.Marshal(data)
	if err != nil {
		log.Printf("[webhook] marshal %s payload: %v", event, err)
		return
	}

	wr.mu.RLock()
	var targets []*WebhookRegistration
	for _, h := range wr.hooks {
		if h.Enabled && h.matches(event) {
			targets = append(targets, h)
		}
	}
	wr.mu.RUnlock()

	for _, t := range targets {
		go wr.deliver(t, event, raw)
	}
}

func (wr *WebhookRegistry) deliver(reg *WebhookRegistration, event string, data json.RawMessage) {
	payload := webhookPayload{
		EventType: event,
		Timestamp: time.Now().UTC(),
		Data:      data,
	}
	if reg.Secret != "" {
		unsigned, err := json.Marshal(payload)
		if err != nil {
			log.Printf("[webhook] sign %s: %v", event, err)
			return
		}
		payload.Signature = sign(reg.Secret, unsigned)
	}
	body, err := json.Marshal(payload)
	if err != nil {
		log.Printf("[webhook] marshal %s: %v", event, err)
		return
	}

	req, err := http.NewRequest(http.MethodPost, reg.URL, bytes.NewReader(body))
	if err != nil {
		log.Printf("[webhook] build request for %s: %v", reg.URL, err)
		return
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Webhook-Event", event)

	resp, err := wr.client.Do(req)
	if err != nil {
		log.Printf("[webhook] deliver %s to %s: %v", event, reg.URL, err)
		return
	}
	resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		log.Printf("[webhook] deliver %s to %s: status %d", event, reg.URL, resp.StatusCode)
	}
}

// sign computes the delivery signature over the unsigned payload.
func sign(secret string, body []byte) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	return "sha256=" + hex.EncodeToString(mac.Sum(nil))
}
