package kiosk

import (
	"errors"
	"net/http"
	"strings"
)

// Request headers carrying kiosk credentials.
const (
	HeaderDeviceID = "X-Device-Id"
	HeaderToken    = "X-Kiosk-Token"
)

// Authentication failures. All map to 401.
var (
	ErrMissingDevice      = errors.New("kiosk: missing X-Device-Id")
	ErrMissingToken       = errors.New("kiosk: missing kiosk token (X-Kiosk-Token or Authorization Bearer)")
	ErrInvalidCredentials = errors.New("kiosk: invalid kiosk credentials")
)

// Identity is the kiosk a request came from.
type Identity struct {
	// DeviceID is empty when the request carried none.
	DeviceID string

	// Info is the registry entry, zero when the device is unknown.
	Info  Info
	Known bool
}

// Source yields the current registry. [*Watcher] implements it.
type Source interface {
	Current() *Registry
}

// Static is a Source that never changes.
type Static struct{ R *Registry }

// Current implements [Source].
func (s Static) Current() *Registry { return s.R }

// Authenticator checks kiosk credentials against a registry.
type Authenticator struct {
	src      Source
	required bool
}

// NewAuthenticator returns an Authenticator. When required is false every
// request is accepted and only identified.
func NewAuthenticator(src Source, required bool) *Authenticator {
	return &Authenticator{src: src, required: required}
}

// Required reports whether credentials are enforced.
func (a *Authenticator) Required() bool { return a.required }

// Identify returns the identity claimed by r without checking its token.
func (a *Authenticator) Identify(r *http.Request) Identity {
	id := Identity{DeviceID: DeviceID(r)}
	if id.DeviceID != "" {
		id.Info, id.Known = a.src.Current().Lookup(id.DeviceID)
	}
	return id
}

// Authenticate identifies r and, when auth is required, verifies its token.
func (a *Authenticator) Authenticate(r *http.Request) (Identity, error) {
	id := a.Identify(r)
	if !a.required {
		return id, nil
	}
	if id.DeviceID == "" {
		return id, ErrMissingDevice
	}
	tok := Token(r)
	if tok == "" {
		return id, ErrMissingToken
	}
	if !a.src.Current().Verify(id.DeviceID, tok) {
		return id, ErrInvalidCredentials
	}
	return id, nil
}

// DeviceID returns the trimmed X-Device-Id header.
func DeviceID(r *http.Request) string {
	return strings.TrimSpace(r.Header.Get(HeaderDeviceID))
}

// Token returns the kiosk token from X-Kiosk-Token or, failing that, a
// bearer Authorization header.
func Token(r *http.Request) string {
	if tok := strings.TrimSpace(r.Header.Get(HeaderToken)); tok != "" {
		return tok
	}
	auth := strings.TrimSpace(r.Header.Get("Authorization"))
	if len(auth) > 7 && strings.EqualFold(auth[:7], "bearer ") {
		return strings.TrimSpace(auth[7:])
	}
	return ""
}
