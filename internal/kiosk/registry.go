// Package kiosk authenticates the tablets that talk to the backend.
//
// Each kiosk is listed in a JSON registry file mapping its device id to a
// shared token plus a display name and location:
//
//	{
//	  "lobby-01": {"token": "s3cret", "name": "Lobby", "location": "Entrada norte"}
//	}
//
// A [Watcher] keeps the registry in memory and reloads it when the file
// changes, so kiosks can be added or revoked without a restart.
package kiosk

import (
	"bytes"
	"crypto/subtle"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"strings"
)

// Info describes one registered kiosk.
type Info struct {
	Token    string `json:"token"`
	Name     string `json:"name,omitempty"`
	Location string `json:"location,omitempty"`
}

// Registry is an immutable snapshot of the registered kiosks.
type Registry struct {
	kiosks map[string]Info
}

// NewRegistry returns a registry holding a copy of kiosks.
func NewRegistry(kiosks map[string]Info) *Registry {
	m := make(map[string]Info, len(kiosks))
	for id, info := range kiosks {
		m[id] = info
	}
	return &Registry{kiosks: m}
}

// Parse decodes registry JSON. The top level must be an object; entries
// whose value is not an object are skipped with a warning.
func Parse(data []byte) (*Registry, error) {
	if len(bytes.TrimSpace(data)) == 0 {
		return NewRegistry(nil), nil
	}
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("kiosk: parse registry: %w", err)
	}
	r := &Registry{kiosks: make(map[string]Info, len(raw))}
	for id, msg := range raw {
		var info Info
		if err := json.Unmarshal(msg, &info); err != nil {
			slog.Warn("kiosk: skipping malformed registry entry", "device_id", id, "err", err)
			continue
		}
		info.Token = strings.TrimSpace(info.Token)
		r.kiosks[id] = info
	}
	return r, nil
}

// LoadFile reads the registry at path. A missing file yields an empty
// registry, which rejects every kiosk when auth is required.
func LoadFile(path string) (*Registry, error) {
	data, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return NewRegistry(nil), nil
	}
	if err != nil {
		return nil, fmt.Errorf("kiosk: read registry %q: %w", path, err)
	}
	return Parse(data)
}

// Len returns the number of registered kiosks.
func (r *Registry) Len() int { return len(r.kiosks) }

// Lookup returns the kiosk registered as deviceID.
func (r *Registry) Lookup(deviceID string) (Info, bool) {
	info, ok := r.kiosks[deviceID]
	return info, ok
}

// Verify reports whether token matches the one registered for deviceID.
// Kiosks without a token never verify. The comparison is constant time.
func (r *Registry) Verify(deviceID, token string) bool {
	info, ok := r.kiosks[deviceID]
	if !ok || info.Token == "" || token == "" {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(token), []byte(info.Token)) == 1
}
