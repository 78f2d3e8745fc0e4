package observe

import "context"

// requestInfo is filled in by handlers further down the chain and read back
// by [Middleware] once the request is done.
type requestInfo struct {
	requestID     string
	deviceID      string
	kioskName     string
	kioskLocation string
}

type requestInfoKey struct{}

func withRequestInfo(ctx context.Context, info *requestInfo) context.Context {
	return context.WithValue(ctx, requestInfoKey{}, info)
}

// SetRequestDevice records the authenticated device for the request log line
// written by [Middleware]. It is a no-op outside that middleware.
func SetRequestDevice(ctx context.Context, id string) {
	if info, ok := ctx.Value(requestInfoKey{}).(*requestInfo); ok {
		info.deviceID = id
	}
}

// SetRequestKiosk records the registry name and location of the device.
func SetRequestKiosk(ctx context.Context, name, location string) {
	if info, ok := ctx.Value(requestInfoKey{}).(*requestInfo); ok {
		info.kioskName = name
		info.kioskLocation = location
	}
}

// RequestID returns the id [Middleware] assigned to the request, or "".
func RequestID(ctx context.Context) string {
	if info, ok := ctx.Value(requestInfoKey{}).(*requestInfo); ok {
		return info.requestID
	}
	return ""
}
