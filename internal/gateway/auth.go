package gateway

import (
	"crypto/sha256"
	"crypto/subtle"
	"errors"
	"net"
	"sync"
	"time"

	"github.com/soyeahso/aide/internal/config"
)

var (
	errNoCredentials  = errors.New("no credentials provided")
	errNotConfigured  = errors.New("gateway secret not configured")
	errBadCredentials = errors.New("invalid credentials")
)

// authenticator checks the shared secret a client presents on connect.
// Only a digest of the secret is held.
type authenticator struct {
	mode   string // "token" | "password"
	secret [sha256.Size]byte
	set    bool
}

// newAuthenticator picks the mode from cfg. Without an explicit mode a
// configured password wins over a token.
func newAuthenticator(cfg config.GatewayAuth) authenticator {
	mode := cfg.Mode
	if mode == "" {
		mode = "token"
		if cfg.Password != "" {
			mode = "password"
		}
	}
	a := authenticator{mode: mode}
	secret := cfg.Token
	if mode == "password" {
		secret = cfg.Password
	}
	if secret != "" {
		a.secret = sha256.Sum256([]byte(secret))
		a.set = true
	}
	return a
}

// check returns nil when creds match. Digests are compared so neither the
// content nor the length of the secret shows in timing.
func (a authenticator) check(creds *ConnectAuth) error {
	if !a.set {
		return errNotConfigured
	}
	if creds == nil {
		return errNoCredentials
	}
	given := creds.Token
	if a.mode == "password" {
		given = creds.Password
	}
	if given == "" {
		return errNoCredentials
	}
	sum := sha256.Sum256([]byte(given))
	if subtle.ConstantTimeCompare(sum[:], a.secret[:]) != 1 {
		return errBadCredentials
	}
	return nil
}

const (
	failureWindow   = 5 * time.Minute
	maxFailures     = 10
	maxTrackedHosts = 10000
)

// failureLimiter refuses hosts with too many recent failed handshakes.
// Stale entries are pruned as hosts are looked up, so no sweeper runs.
type failureLimiter struct {
	mu    sync.Mutex
	fails map[string][]time.Time
	now   func() time.Time
}

func newFailureLimiter() *failureLimiter {
	return &failureLimiter{fails: make(map[string][]time.Time), now: time.Now}
}

func hostOf(remoteAddr string) string {
	if host, _, err := net.SplitHostPort(remoteAddr); err == nil {
		return host
	}
	return remoteAddr
}

// recent drops expired failures for host and returns what is left.
// Caller holds l.mu.
func (l *failureLimiter) recent(host string) []time.Time {
	cutoff := l.now().Add(-failureWindow)
	kept := l.fails[host][:0]
	for _, t := range l.fails[host] {
		if t.After(cutoff) {
			kept = append(kept, t)
		}
	}
	if len(kept) == 0 {
		delete(l.fails, host)
		return nil
	}
	l.fails[host] = kept
	return kept
}

func (l *failureLimiter) allow(remoteAddr string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.recent(hostOf(remoteAddr))) < maxFailures
}

func (l *failureLimiter) fail(remoteAddr string) {
	host := hostOf(remoteAddr)
	l.mu.Lock()
	defer l.mu.Unlock()

	if _, tracked := l.fails[host]; !tracked && len(l.fails) >= maxTrackedHosts {
		l.evictOldest()
	}
	l.fails[host] = append(l.recent(host), l.now())
}

// evictOldest forgets the host whose first failure is oldest.
func (l *failureLimiter) evictOldest() {
	var oldest string
	var at time.Time
	for host, times := range l.fails {
		if len(times) > 0 && (oldest == "" || times[0].Before(at)) {
			oldest, at = host, times[0]
		}
	}
	delete(l.fails, oldest)
}
