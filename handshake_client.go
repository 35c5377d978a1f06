package ws

import (
	"bytes"
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"
	"strings"

	"github.com/nettywire/wscore/internal/wsext"
)

func newClientKey() string {
	var raw [16]byte
	_, _ = rand.Read(raw[:])
	return base64.StdEncoding.EncodeToString(raw[:])
}

func buildClientHandshake(host, path, query string, headers map[string][]string, deflate bool, subprotocols []string) (request []byte, challengeKey string) {
	challengeKey = newClientKey()

	target := path
	if target == "" {
		target = "/"
	}
	if query != "" {
		target += "?" + query
	}

	var b bytes.Buffer
	fmt.Fprintf(&b, "GET %s HTTP/1.1\r\n", target)
	fmt.Fprintf(&b, "Host: %s\r\n", host)
	b.WriteString("Upgrade: websocket\r\n")
	b.WriteString("Connection: Upgrade\r\n")
	fmt.Fprintf(&b, "Sec-WebSocket-Key: %s\r\n", challengeKey)
	b.WriteString("Sec-WebSocket-Version: ")
	b.WriteString(webSocketVersion)
	b.WriteString("\r\n")
	if deflate {
		b.WriteString("Sec-WebSocket-Extensions: ")
		b.WriteString(wsext.ClientOfferHeader)
		b.WriteString("\r\n")
	}
	if len(subprotocols) > 0 {
		fmt.Fprintf(&b, "Sec-WebSocket-Protocol: %s\r\n", strings.Join(subprotocols, ", "))
	}
	for name, values := range headers {
		for _, v := range values {
			fmt.Fprintf(&b, "%s: %s\r\n", name, v)
		}
	}
	b.WriteString("\r\n")
	return b.Bytes(), challengeKey
}

// clientHandshake writes the opening request and reads the response until a
// full header block is present, verifying it per RFC 6455, section 4.1.
// leftover holds bytes read past the header block, belonging to the first
// server-to-client frame.
func clientHandshake(transport Transport, opts *Options, host, path, query string, headers map[string][]string) (leftover []byte, deflateNegotiated bool, protocol string, err error) {
	request, challengeKey := buildClientHandshake(host, path, query, headers, opts.Deflate, opts.Subprotocols)
	if _, err := transport.Write(request); err != nil {
		return nil, false, "", handshakeError(err)
	}

	buf := make([]byte, 0, 1024)
	tmp := make([]byte, 1024)
	for {
		if idx := findHandshakeEnd(buf); idx >= 0 {
			ok, deflateOK, gotProtocol, verr := verifyServerHandshake(buf[:idx], challengeKey)
			if verr != nil {
				return nil, false, "", handshakeError(verr)
			}
			if !ok {
				return nil, false, "", handshakeError(errBadAcceptKey)
			}
			return buf[idx:], deflateOK, gotProtocol, nil
		}
		if len(buf) > maxHandshakeHeadSize {
			return nil, false, "", handshakeError(errHandshakeHeadTooLarge)
		}
		n, rerr := transport.Read(tmp)
		if n > 0 {
			buf = append(buf, tmp[:n]...)
		}
		if rerr != nil {
			return nil, false, "", handshakeError(rerr)
		}
	}
}

var errBadAcceptKey = errors.New("websocket: Sec-WebSocket-Accept did not match the expected value")
var errNotSwitchingProtocols = errors.New("websocket: server did not respond with HTTP/1.1 101 Switching Protocols")

// verifyServerHandshake validates an HTTP status line directly rather than
// reusing parseRequestHead, since a status line ("VERSION status reason")
// has a different shape than a request line ("METHOD target VERSION").
func verifyServerHandshake(head []byte, challengeKey string) (ok bool, deflateNegotiated bool, protocol string, err error) {
	lines := strings.Split(string(head), "\r\n")
	for len(lines) > 0 && lines[len(lines)-1] == "" {
		lines = lines[:len(lines)-1]
	}
	if len(lines) == 0 {
		return false, false, "", errNotSwitchingProtocols
	}
	if !strings.Contains(strings.ToUpper(lines[0]), "HTTP/1.1 101") {
		return false, false, "", errNotSwitchingProtocols
	}

	header := map[string][]string{}
	for _, line := range lines[1:] {
		name, value, okCut := strings.Cut(line, ":")
		if !okCut {
			continue
		}
		header[strings.TrimSpace(strings.ToLower(name))] = append(header[strings.TrimSpace(strings.ToLower(name))], strings.TrimSpace(value))
	}
	get := func(name string) string {
		vs := header[strings.ToLower(name)]
		if len(vs) == 0 {
			return ""
		}
		return vs[0]
	}

	accept := get("Sec-WebSocket-Accept")
	if accept == "" || accept != acceptKey(challengeKey) {
		return false, false, "", nil
	}

	deflateNegotiated = wsext.HasPermessageDeflate(get("Sec-WebSocket-Extensions"))
	return true, deflateNegotiated, get("Sec-WebSocket-Protocol"), nil
}
