// Package ipresolver finds a best-effort client address for token pinning.
package ipresolver

import (
	"context"
	"encoding/json"
	"io"
	"net"
	"net/http"
	"net/netip"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"
)

// Proxy headers in the order they are trusted.
var forwardHeaders = []string{
	"X-Forwarded-For",
	"X-Real-IP",
	"X-Forwarded",
	"X-Cluster-Client-IP",
	"Forwarded-For",
	"Forwarded",
}

const (
	defaultTimeout = 5 * time.Second
	externalTTL    = 30 * time.Second
	maxBodyBytes   = 1 << 10
)

// Config controls address resolution.
type Config struct {
	// ExternalEnabled asks the lookup services for the public address before reading headers.
	ExternalEnabled bool
	Services        []string
	Timeout         time.Duration
	// ForceExternalForLocal also uses the lookup services for requests from local addresses.
	ForceExternalForLocal bool
	// FallbackToHeaders reads proxy headers and the socket address when lookup is off or fails.
	FallbackToHeaders bool
	// TrustedProxies lists the addresses or CIDRs whose forwarding headers are believed.
	// Requests from any other peer resolve to the socket address.
	TrustedProxies []string
}

// Resolver resolves client addresses. It is safe for concurrent use.
type Resolver struct {
	cfg     Config
	trusted []netip.Prefix
	client  *http.Client
	logger  *zap.Logger

	mu          sync.Mutex
	cachedIP    string
	cachedUntil time.Time
}

// New creates a resolver.
func New(cfg Config, logger *zap.Logger) *Resolver {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = defaultTimeout
	}
	return &Resolver{
		cfg:     cfg,
		trusted: parsePrefixes(cfg.TrustedProxies, logger),
		client:  &http.Client{Timeout: cfg.Timeout},
		logger:  logger,
	}
}

func parsePrefixes(entries []string, logger *zap.Logger) []netip.Prefix {
	var out []netip.Prefix
	for _, e := range entries {
		if p, err := netip.ParsePrefix(e); err == nil {
			out = append(out, p.Masked())
			continue
		}
		if a, err := netip.ParseAddr(e); err == nil {
			out = append(out, netip.PrefixFrom(a, a.BitLen()))
			continue
		}
		logger.Warn("ignoring invalid trusted proxy", zap.String("entry", e))
	}
	return out
}

// ClientIP returns the address of r, or "" if none can be determined.
func (res *Resolver) ClientIP(r *http.Request) string {
	if res.cfg.ExternalEnabled && (res.cfg.ForceExternalForLocal || !isLocalRequest(r)) {
		if ip := res.external(r.Context()); ip != "" {
			return ip
		}
	}
	if !res.cfg.FallbackToHeaders {
		return ""
	}
	ip := res.fromRequest(r)
	if ip == "" {
		res.logger.Warn("client address not resolvable", zap.String("remote_addr", r.RemoteAddr))
	}
	return ip
}

// fromRequest reads the first valid address from the proxy headers when the peer is a trusted
// proxy, then falls back to the socket address.
func (res *Resolver) fromRequest(r *http.Request) string {
	peer := remoteIP(r)
	if !res.trustedPeer(peer) {
		return peer
	}
	for _, h := range forwardHeaders {
		v := r.Header.Get(h)
		if v == "" {
			continue
		}
		first := strings.TrimSpace(strings.Split(v, ",")[0])
		if addr, err := netip.ParseAddr(first); err == nil {
			return addr.String()
		}
	}
	return peer
}

func (res *Resolver) trustedPeer(peer string) bool {
	addr, err := netip.ParseAddr(peer)
	if err != nil {
		return false
	}
	addr = addr.Unmap()
	for _, p := range res.trusted {
		if p.Contains(addr) {
			return true
		}
	}
	return false
}

func remoteIP(r *http.Request) string {
	host := r.RemoteAddr
	if h, _, err := net.SplitHostPort(host); err == nil {
		host = h
	}
	if addr, err := netip.ParseAddr(host); err == nil {
		return addr.String()
	}
	return ""
}

func isLocalRequest(r *http.Request) bool {
	if addr, err := netip.ParseAddr(remoteIP(r)); err == nil && (addr.IsLoopback() || addr.IsPrivate()) {
		return true
	}
	host := r.Host
	for _, local := range []string{"localhost", "127.0.0.1", "::1"} {
		if strings.Contains(host, local) {
			return true
		}
	}
	return false
}

// external asks each lookup service in turn and caches the first public address briefly.
func (res *Resolver) external(ctx context.Context) string {
	res.mu.Lock()
	if res.cachedIP != "" && time.Now().Before(res.cachedUntil) {
		ip := res.cachedIP
		res.mu.Unlock()
		return ip
	}
	res.mu.Unlock()

	for _, svc := range res.cfg.Services {
		ip, err := res.lookup(ctx, svc)
		if err != nil {
			res.logger.Warn("external address lookup failed", zap.String("service", svc), zap.Error(err))
			continue
		}
		if !isGlobal(ip) {
			res.logger.Warn("external address lookup returned a non-public address",
				zap.String("service", svc), zap.String("ip", ip))
			continue
		}
		res.mu.Lock()
		res.cachedIP, res.cachedUntil = ip, time.Now().Add(externalTTL)
		res.mu.Unlock()
		return ip
	}
	return ""
}

func (res *Resolver) lookup(ctx context.Context, url string) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, res.cfg.Timeout)
	defer cancel()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return "", err
	}
	resp, err := res.client.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return "", &statusError{code: resp.StatusCode}
	}
	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return "", err
	}
	return parseLookupBody(body), nil
}

// parseLookupBody accepts plain text or a JSON object with an "origin" or "ip" field.
func parseLookupBody(body []byte) string {
	text := strings.TrimSpace(string(body))
	if strings.HasPrefix(text, "{") {
		var v struct {
			Origin string `json:"origin"`
			IP     string `json:"ip"`
		}
		if err := json.Unmarshal([]byte(text), &v); err != nil {
			return ""
		}
		text = v.Origin
		if text == "" {
			text = v.IP
		}
	}
	return strings.TrimSpace(strings.Split(text, ",")[0])
}

func isGlobal(ip string) bool {
	addr, err := netip.ParseAddr(ip)
	if err != nil {
		return false
	}
	return !(addr.IsPrivate() || addr.IsLoopback() || addr.IsMulticast() ||
		addr.IsLinkLocalUnicast() || addr.IsUnspecified())
}

type statusError struct {
	code int
}

func (e *statusError) Error() string {
	return "unexpected status " + http.StatusText(e.code)
}
