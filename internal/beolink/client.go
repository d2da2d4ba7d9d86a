package beolink

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/goccy/go-json"

	"github.com/msaudio/audioserver-go/internal/netutil"
)

// defaultPort is the device's REST and notification port.
const defaultPort = "8080"

const notificationsPath = "/BeoNotify/Notifications"

// streamClient has no overall timeout: the notification stream stays open
// for as long as the device lives. Only the dial is bounded.
var streamClient = &http.Client{
	Transport: &http.Transport{
		DialContext: (&net.Dialer{
			Timeout: 5 * time.Second,
		}).DialContext,
		IdleConnTimeout:     60 * time.Second,
		MaxIdleConnsPerHost: 2,
	},
}

// restClient talks to one device. Commands use the shared command client;
// the notification stream uses the unbounded stream client.
type restClient struct {
	base     string
	username string
	password string
}

func newRestClient(ip, username, password string) *restClient {
	host := strings.TrimSpace(ip)
	if host != "" && !strings.Contains(host, ":") {
		host = net.JoinHostPort(host, defaultPort)
	}
	return &restClient{
		base:     "http://" + host,
		username: username,
		password: password,
	}
}

// do sends one command request and drains the response. Non-2xx answers
// become errors carrying the status code.
func (c *restClient) do(ctx context.Context, method, path string, body any) error {
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("encoding %s body: %w", path, err)
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.base+path, reader)
	if err != nil {
		return err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	netutil.ApplyBasicAuth(req, c.username, c.password)

	resp, err := netutil.CommandClient.Do(req)
	if err != nil {
		return fmt.Errorf("device request %s: %w", path, err)
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return fmt.Errorf("device answered %d for %s", resp.StatusCode, path)
	}
	return nil
}

// stream opens the notification stream. The caller owns the body and stops
// the stream by cancelling ctx.
func (c *restClient) stream(ctx context.Context) (io.ReadCloser, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.base+notificationsPath, nil)
	if err != nil {
		return nil, err
	}
	netutil.ApplyBasicAuth(req, c.username, c.password)

	resp, err := streamClient.Do(req)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode != http.StatusOK {
		resp.Body.Close()
		return nil, fmt.Errorf("notification stream answered %d", resp.StatusCode)
	}
	return resp.Body, nil
}
