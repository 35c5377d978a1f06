package ws

import (
	"net/http"
	"net/textproto"
)

// Request is the minimal slice of an HTTP opening-handshake request this
// engine needs: enough for an application to route connections and inspect
// cookies or query parameters, without this package owning a full HTTP
// request model (that's an abstract collaborator's job, per this package's
// scope).
type Request struct {
	Method   string
	Path     string
	RawQuery string
	Header   map[string][]string

	// Protocol is the subprotocol this engine selected from the client's
	// Sec-WebSocket-Protocol offer (first entry in Options.Subprotocols
	// that the client also listed), or "" if none was negotiated. No
	// selection algorithm beyond first-match is implemented.
	Protocol string
}

// HeaderGet returns the first value of the named header, case-insensitively,
// or "" if absent.
func (r *Request) HeaderGet(name string) string {
	if r == nil {
		return ""
	}
	vs := r.Header[textproto.CanonicalMIMEHeaderKey(name)]
	if len(vs) == 0 {
		return ""
	}
	return vs[0]
}

// HeaderValues returns every value of the named header, case-insensitively.
func (r *Request) HeaderValues(name string) []string {
	if r == nil {
		return nil
	}
	return r.Header[textproto.CanonicalMIMEHeaderKey(name)]
}

// Cookies parses the Cookie header using net/http's cookie grammar. Cookie
// parsing is explicitly out of this engine's scope beyond exposing the raw
// header; net/http already implements RFC 6265 correctly; reimplementing it
// here would just be a worse copy.
func (r *Request) Cookies() []*http.Cookie {
	if r == nil {
		return nil
	}
	return (&http.Request{Header: http.Header(r.Header)}).Cookies()
}
