package httpx

import (
	"net"
	"net/http"
	"strings"
)

const loopbackIP = "127.0.0.1"

// clientIP resolves the caller's address. In development every request is
// loopback. Otherwise the trusted proxy header wins; with no header
// configured the connection's remote address is used.
func clientIP(r *http.Request, header string, dev bool) string {
	if dev {
		return loopbackIP
	}

	if header != "" {
		// Proxies may append; the first entry is the client.
		first, _, _ := strings.Cut(r.Header.Get(header), ",")
		return strings.TrimSpace(first)
	}

	ip, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return ip
}
