package thermal

import (
	"context"
	"io"
	"net/http"
	"net/url"
	"os"
	"strings"
	"time"
)

// pollTimeout bounds one fetch-and-parse cycle. A slow LHM is treated
// the same as an unreachable one.
const pollTimeout = 3 * time.Second

// Client polls a LibreHardwareMonitor HTTP JSON endpoint.
type Client struct {
	url      string
	username string
	password string
	http     *http.Client
}

// NewClient creates a client for the given LHM URL. Credentials are
// passed through as basic auth when non-empty.
func NewClient(rawURL, username, password string) *Client {
	return &Client{
		url:      ResolveURL(rawURL),
		username: username,
		password: password,
		http:     &http.Client{Timeout: pollTimeout},
	}
}

// URL returns the resolved endpoint the client polls.
func (c *Client) URL() string {
	return c.url
}

// Poll performs one fetch-and-parse cycle. Any transport error, non-2xx
// status, or parse failure yields nil; the caller retries on its next
// scheduled cycle, never here.
func (c *Client) Poll(ctx context.Context) *Snapshot {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.url, nil)
	if err != nil {
		return nil
	}
	if c.username != "" || c.password != "" {
		req.SetBasicAuth(c.username, c.password)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil
	}

	return Parse(body)
}

// ResolveURL decides the endpoint actually polled. An explicit
// THERMAL_URL_OVERRIDE wins. A loopback URL inside WSL is rewritten to
// the Windows host address, since LHM runs on the Windows side and the
// guest has no loopback route to it. Anything else passes through
// verbatim.
func ResolveURL(rawURL string) string {
	if override := os.Getenv("THERMAL_URL_OVERRIDE"); override != "" {
		return override
	}

	u, err := url.Parse(rawURL)
	if err != nil {
		return rawURL
	}

	host := u.Hostname()
	if host != "localhost" && host != "127.0.0.1" && host != "::1" {
		return rawURL
	}

	if !runningInWSL() {
		return rawURL
	}

	hostAddr := wslHostAddr()
	if hostAddr == "" {
		return rawURL
	}

	if port := u.Port(); port != "" {
		u.Host = hostAddr + ":" + port
	} else {
		u.Host = hostAddr
	}
	return u.String()
}

// runningInWSL reports whether the process is inside a WSL guest.
func runningInWSL() bool {
	data, err := os.ReadFile("/proc/version")
	if err != nil {
		return false
	}
	version := strings.ToLower(string(data))
	return strings.Contains(version, "microsoft") || strings.Contains(version, "wsl")
}

// wslHostAddr returns the Windows host address as seen from WSL. WSL2
// writes the host as the DNS nameserver in /etc/resolv.conf.
func wslHostAddr() string {
	data, err := os.ReadFile("/etc/resolv.conf")
	if err != nil {
		return ""
	}
	return parseNameserver(string(data))
}

func parseNameserver(resolvConf string) string {
	for _, line := range strings.Split(resolvConf, "\n") {
		fields := strings.Fields(strings.TrimSpace(line))
		if len(fields) == 2 && fields[0] == "nameserver" {
			return fields[1]
		}
	}
	return ""
}
