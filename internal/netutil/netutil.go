// Package netutil provides the shared HTTP client used for device probes and
// vendor REST calls, plus HTTP Basic header construction.
package netutil

import (
	"encoding/base64"
	"net"
	"net/http"
	"time"
)

// ProbeClient is tuned for cheap reachability checks against devices on the
// local network: 5 s total, 3 s to establish the connection.
var ProbeClient = &http.Client{
	Timeout: 5 * time.Second,
	Transport: &http.Transport{
		DialContext: (&net.Dialer{
			Timeout: 3 * time.Second,
		}).DialContext,
		MaxIdleConns:        10,
		IdleConnTimeout:     30 * time.Second,
		DisableCompression:  true,
		MaxIdleConnsPerHost: 2,
	},
}

// CommandClient is used for vendor REST command calls where a slow device
// should not stall a zone for long.
var CommandClient = &http.Client{
	Timeout: 10 * time.Second,
	Transport: &http.Transport{
		DialContext: (&net.Dialer{
			Timeout: 3 * time.Second,
		}).DialContext,
		MaxIdleConns:        20,
		IdleConnTimeout:     60 * time.Second,
		MaxIdleConnsPerHost: 4,
	},
}

// BasicAuthHeader returns the value for an Authorization header, or "" when
// no username is configured.
func BasicAuthHeader(username, password string) string {
	if username == "" {
		return ""
	}
	creds := base64.StdEncoding.EncodeToString([]byte(username + ":" + password))
	return "Basic " + creds
}

// ApplyBasicAuth sets the Authorization header on req when credentials are
// configured.
func ApplyBasicAuth(req *http.Request, username, password string) {
	if h := BasicAuthHeader(username, password); h != "" {
		req.Header.Set("Authorization", h)
	}
}

// OutboundIP reports the local address this host uses for its default route.
// No packet is sent; the dial only selects an interface. Falls back to
// loopback when the host has no route at all.
func OutboundIP() string {
	conn, err := net.Dial("udp", "8.8.8.8:80")
	if err != nil {
		return "127.0.0.1"
	}
	defer conn.Close()
	if addr, ok := conn.LocalAddr().(*net.UDPAddr); ok {
		return addr.IP.String()
	}
	return "127.0.0.1"
}
