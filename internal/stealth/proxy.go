package stealth

import (
	"fmt"
	"math/rand"
	"strings"

	"github.com/rs/zerolog"
)

// Proxy is one upstream proxy endpoint. Credentials are optional.
type Proxy struct {
	Host     string
	Port     string
	Username string
	Password string
}

// ParseProxy parses "host:port" or "host:port:user:pass" descriptors
func ParseProxy(s string) (Proxy, error) {
	parts := strings.Split(s, ":")
	switch len(parts) {
	case 2:
		return Proxy{Host: parts[0], Port: parts[1]}, nil
	case 4:
		return Proxy{Host: parts[0], Port: parts[1], Username: parts[2], Password: parts[3]}, nil
	default:
		return Proxy{}, fmt.Errorf("invalid proxy format %q: want host:port or host:port:user:pass", redact(s))
	}
}

// ChromeFlag returns the proxy-server launch flag value
func (p Proxy) ChromeFlag() string {
	return p.Host + ":" + p.Port
}

// Redacted returns a log-safe form that never exposes port or credentials
func (p Proxy) Redacted() string {
	return p.Host + ":****"
}

func redact(s string) string {
	if i := strings.IndexByte(s, ':'); i >= 0 {
		return s[:i] + ":****"
	}
	return s
}

// ProxyPool hands out proxies at random, steering around ones that have
// failed. When every proxy has failed the failure set resets rather than
// leaving the pool empty.
type ProxyPool struct {
	proxies []Proxy
	failed  map[string]bool
	rng     *rand.Rand
	logger  zerolog.Logger
}

// NewProxyPool builds a pool from raw proxy descriptors. Malformed
// entries are rejected.
func NewProxyPool(descriptors []string, rng *rand.Rand, logger zerolog.Logger) (*ProxyPool, error) {
	pool := &ProxyPool{
		failed: make(map[string]bool),
		rng:    rng,
		logger: logger.With().Str("component", "proxy_pool").Logger(),
	}

	for _, d := range descriptors {
		p, err := ParseProxy(d)
		if err != nil {
			return nil, err
		}
		pool.proxies = append(pool.proxies, p)
	}

	return pool, nil
}

// Size returns the number of configured proxies
func (pp *ProxyPool) Size() int {
	return len(pp.proxies)
}

// Next picks a random proxy that has not failed. Returns nil when the
// pool is empty, meaning a direct connection.
func (pp *ProxyPool) Next() *Proxy {
	if len(pp.proxies) == 0 {
		pp.logger.Debug().Msg("No proxies configured, using direct connection")
		return nil
	}

	available := pp.available()
	if len(available) == 0 {
		pp.logger.Warn().Msg("All proxies failed, resetting failure set")
		pp.failed = make(map[string]bool)
		available = pp.available()
	}

	p := available[pp.rng.Intn(len(available))]
	pp.logger.Info().Str("proxy", p.Redacted()).Msg("Selected proxy")
	return &p
}

// MarkFailed records a proxy failure so Next avoids it
func (pp *ProxyPool) MarkFailed(p *Proxy) {
	if p == nil {
		return
	}
	pp.failed[p.ChromeFlag()] = true
	pp.logger.Warn().Str("proxy", p.Redacted()).Msg("Proxy marked as failed")
}

func (pp *ProxyPool) available() []Proxy {
	out := make([]Proxy, 0, len(pp.proxies))
	for _, p := range pp.proxies {
		if !pp.failed[p.ChromeFlag()] {
			out = append(out, p)
		}
	}
	return out
}
