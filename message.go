package htmlfwd

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"
)

// ControlMessage is an inbound control payload received from a remote
// endpoint. Every field is optional and several may appear together.
type ControlMessage struct {
	// KeepAliveInterval is the heartbeat period the remote announced.
	// Zero means the message did not announce one.
	KeepAliveInterval time.Duration

	// KeepAlive marks a heartbeat.
	KeepAlive bool

	// ID is the correlation id, normalized to its decimal or string
	// form. Empty when absent or null.
	ID string

	OpenURL      string
	Notification string
	CloseTabs    bool
}

// controlWire mirrors the JSON object sent by the remote side. Remotes
// commonly send every field with its zero value, so zero values are
// treated as absent.
type controlWire struct {
	ID                json.RawMessage `json:"Id"`
	OpenURL           string          `json:"OpenUrl"`
	Notification      string          `json:"Notification"`
	CloseTabs         json.RawMessage `json:"CloseTabs"`
	KeepAlive         bool            `json:"KeepAlive"`
	KeepAliveInterval float64         `json:"KeepAliveInterval"`
}

// parseControlMessage decodes one inbound frame.
func parseControlMessage(data []byte) (*ControlMessage, error) {
	var w controlWire
	if err := json.Unmarshal(data, &w); err != nil {
		return nil, fmt.Errorf("parse control message: %w", err)
	}
	if w.KeepAliveInterval < 0 {
		return nil, fmt.Errorf("parse control message: negative KeepAliveInterval %v", w.KeepAliveInterval)
	}
	if w.KeepAliveInterval > MaxKeepAliveInterval.Seconds() {
		return nil, fmt.Errorf("parse control message: KeepAliveInterval %v exceeds %v", w.KeepAliveInterval, MaxKeepAliveInterval)
	}

	id, err := normalizeID(w.ID)
	if err != nil {
		return nil, err
	}

	return &ControlMessage{
		KeepAliveInterval: time.Duration(w.KeepAliveInterval * float64(time.Second)),
		KeepAlive:         w.KeepAlive,
		ID:                id,
		OpenURL:           w.OpenURL,
		Notification:      w.Notification,
		CloseTabs:         truthy(w.CloseTabs),
	}, nil
}

func normalizeID(raw json.RawMessage) (string, error) {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return "", nil
	}
	switch raw[0] {
	case '"':
		var s string
		if err := json.Unmarshal(raw, &s); err != nil {
			return "", fmt.Errorf("parse control message Id: %w", err)
		}
		return s, nil
	default:
		var n json.Number
		if err := json.Unmarshal(raw, &n); err != nil {
			return "", fmt.Errorf("parse control message Id: %w", err)
		}
		return n.String(), nil
	}
}

// truthy reports whether a JSON value counts as set: true, a non-zero
// number, a non-empty string, or any object or array.
func truthy(raw json.RawMessage) bool {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 {
		return false
	}
	switch string(raw) {
	case "null", "false", `""`:
		return false
	}
	if f, err := strconv.ParseFloat(string(raw), 64); err == nil {
		return f != 0
	}
	return true
}

// DirectiveKind identifies an application directive carried by a
// control message.
type DirectiveKind int

const (
	DirectiveOpenURL DirectiveKind = iota
	DirectiveNotification
	DirectiveCloseTabs
)

var directiveKindNames = [...]string{
	DirectiveOpenURL:      "open_url",
	DirectiveNotification: "notification",
	DirectiveCloseTabs:    "close_tabs",
}

func (k DirectiveKind) String() string {
	if int(k) >= 0 && int(k) < len(directiveKindNames) {
		return directiveKindNames[k]
	}
	return fmt.Sprintf("DirectiveKind(%d)", k)
}

// Directive is an application instruction forwarded verbatim to the
// handler registered for its kind.
type Directive struct {
	Kind DirectiveKind
	ID   string

	// Endpoint and Host identify the endpoint the directive arrived on.
	Endpoint string
	Host     string

	// URL is set for DirectiveOpenURL, already resolved against Host.
	URL string

	// Text is set for DirectiveNotification.
	Text string
}

// directives extracts the application directives from m, in the order
// open-url, notification, close-tabs.
func (m *ControlMessage) directives(label, host string) []*Directive {
	var out []*Directive
	if m.OpenURL != "" {
		out = append(out, &Directive{
			Kind:     DirectiveOpenURL,
			ID:       m.ID,
			Endpoint: label,
			Host:     host,
			URL:      resolveURL(host, m.ID, m.OpenURL),
		})
	}
	if m.Notification != "" {
		out = append(out, &Directive{
			Kind:     DirectiveNotification,
			ID:       m.ID,
			Endpoint: label,
			Host:     host,
			Text:     m.Notification,
		})
	}
	if m.CloseTabs {
		out = append(out, &Directive{
			Kind:     DirectiveCloseTabs,
			ID:       m.ID,
			Endpoint: label,
			Host:     host,
		})
	}
	return out
}

// resolveURL leaves absolute http(s) URLs untouched and maps a
// root-relative path onto the endpoint's forwarding prefix.
//
//	resolveURL("h:1", "7", "/index.html") == "http://h:1/fwd/7/index.html"
func resolveURL(host, id, path string) string {
	if strings.HasPrefix(path, "http://") || strings.HasPrefix(path, "https://") {
		return path
	}
	if !strings.HasPrefix(path, "/") {
		path = "/" + path
	}
	if id == "" {
		return "http://" + host + path
	}
	return "http://" + host + "/fwd/" + id + path
}
