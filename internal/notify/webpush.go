package notify

import (
	"context"
	"encoding/json"
	"net/http"
	"os"
	"path/filepath"
	"sync"

	webpush "github.com/SherClockHolmes/webpush-go"

	"github.com/chatline/internal/logger"
)

// Subscription is a browser push subscription as produced by
// PushManager.subscribe.
type Subscription struct {
	Endpoint string `json:"endpoint"`
	Keys     struct {
		P256dh string `json:"p256dh"`
		Auth   string `json:"auth"`
	} `json:"keys"`
}

// pushPayload is what the service worker receives.
type pushPayload struct {
	Title string            `json:"title"`
	Body  string            `json:"body"`
	Data  map[string]string `json:"data,omitempty"`
}

// WebPush delivers alerts over Web Push (VAPID). Subscriptions live in a
// small JSON file next to the VAPID keys; endpoints the push service reports
// gone (404/410) are pruned.
type WebPush struct {
	opts     *webpush.Options
	subsPath string

	mu   sync.Mutex
	subs []Subscription
}

// NewWebPush loads (or generates) VAPID keys and reads the subscription
// file. A missing subscription file is not an error; subscriptions can be
// registered later through the HTTP facade.
func NewWebPush(vapidKeysFile, subsFile string) (*WebPush, error) {
	keys, err := EnsureVAPIDKeys(vapidKeysFile)
	if err != nil {
		return nil, err
	}
	if subsFile == "" {
		subsFile = "config/push_subscriptions.json"
	}
	subs, err := loadSubscriptions(subsFile)
	if err != nil {
		logger.Errorf("notify: load subscriptions %s: %v (starting empty)", subsFile, err)
		subs = nil
	}
	return &WebPush{
		opts: &webpush.Options{
			Subscriber:      "chatline",
			VAPIDPublicKey:  keys.PublicKey,
			VAPIDPrivateKey: keys.PrivateKey,
			TTL:             30,
		},
		subsPath: subsFile,
		subs:     subs,
	}, nil
}

// VAPIDPublicKey returns the public key browsers need to subscribe.
func (w *WebPush) VAPIDPublicKey() string {
	return w.opts.VAPIDPublicKey
}

// Subscribe registers a browser subscription and persists the file.
// Re-registering an existing endpoint replaces it.
func (w *WebPush) Subscribe(sub Subscription) error {
	if sub.Endpoint == "" {
		return os.ErrInvalid
	}
	w.mu.Lock()
	defer w.mu.Unlock()
	replaced := false
	for i := range w.subs {
		if w.subs[i].Endpoint == sub.Endpoint {
			w.subs[i] = sub
			replaced = true
			break
		}
	}
	if !replaced {
		w.subs = append(w.subs, sub)
	}
	return saveSubscriptions(w.subsPath, w.subs)
}

// Notify sends the alert to every live subscription.
func (w *WebPush) Notify(ctx context.Context, sender, body, room string) {
	payload, err := json.Marshal(pushPayload{
		Title: "New message from " + sender,
		Body:  Truncate(body, 120),
		Data:  map[string]string{"room": room},
	})
	if err != nil {
		logger.Errorf("notify: marshal payload: %v", err)
		return
	}

	w.mu.Lock()
	subs := append([]Subscription(nil), w.subs...)
	w.mu.Unlock()

	var gone []string
	for _, sub := range subs {
		target := &webpush.Subscription{
			Endpoint: sub.Endpoint,
			Keys:     webpush.Keys{P256dh: sub.Keys.P256dh, Auth: sub.Keys.Auth},
		}
		resp, err := webpush.SendNotificationWithContext(ctx, payload, target, w.opts)
		if err != nil {
			logger.Errorf("notify: webpush send: %v", err)
			continue
		}
		if resp.StatusCode == http.StatusNotFound || resp.StatusCode == http.StatusGone {
			gone = append(gone, sub.Endpoint)
		}
		resp.Body.Close()
	}
	if len(gone) > 0 {
		w.prune(gone)
	}
}

func (w *WebPush) prune(endpoints []string) {
	dead := make(map[string]struct{}, len(endpoints))
	for _, e := range endpoints {
		dead[e] = struct{}{}
	}
	w.mu.Lock()
	defer w.mu.Unlock()
	kept := w.subs[:0]
	for _, s := range w.subs {
		if _, ok := dead[s.Endpoint]; !ok {
			kept = append(kept, s)
		}
	}
	w.subs = kept
	if err := saveSubscriptions(w.subsPath, w.subs); err != nil {
		logger.Errorf("notify: save subscriptions after prune: %v", err)
	}
	logger.Infof("notify: pruned %d expired push subscription(s)", len(endpoints))
}

func loadSubscriptions(path string) ([]Subscription, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}
	var subs []Subscription
	if err := json.Unmarshal(data, &subs); err != nil {
		return nil, err
	}
	return subs, nil
}

func saveSubscriptions(path string, subs []Subscription) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return err
	}
	data, err := json.MarshalIndent(subs, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0600)
}
