package api

import (
	"fmt"
	"net"
	"net/http"
	"net/netip"
	"strconv"
	"strings"
	"sync"
	"time"
)

// lockoutPolicy describes when a client is locked out of the login endpoint
// and for how long. Access codes are short shared secrets, so guessing is
// the main threat to login.
type lockoutPolicy struct {
	maxFailures int           // consecutive failures before the first lockout
	baseLockout time.Duration // first lockout, doubled for each further failure
	maxLockout  time.Duration
	expiry      time.Duration // idle time after which a record is forgotten
}

var loginLockout = lockoutPolicy{
	maxFailures: 5,
	baseLockout: time.Minute,
	maxLockout:  30 * time.Minute,
	expiry:      time.Hour,
}

// lockout returns how long a client with the given failure count is locked
// out. Zero means not locked.
func (p lockoutPolicy) lockout(failures int) time.Duration {
	if failures < p.maxFailures {
		return 0
	}
	d := p.baseLockout
	for i := p.maxFailures; i < failures; i++ {
		d *= 2
		if d >= p.maxLockout {
			return p.maxLockout
		}
	}
	return d
}

// ipv6LimitPrefix groups IPv6 clients by subnet; a single host usually
// controls a whole /64.
const ipv6LimitPrefix = 64

type attemptRecord struct {
	failures    int
	lastFailure time.Time
	lockedUntil time.Time
}

// loginRateLimiter tracks failed admin logins per client address.
type loginRateLimiter struct {
	mu       sync.Mutex
	policy   lockoutPolicy
	now      func() time.Time
	attempts map[string]*attemptRecord
}

func newLoginRateLimiter() *loginRateLimiter {
	return newLoginRateLimiterWith(loginLockout, time.Now)
}

func newLoginRateLimiterWith(policy lockoutPolicy, now func() time.Time) *loginRateLimiter {
	return &loginRateLimiter{
		policy:   policy,
		now:      now,
		attempts: make(map[string]*attemptRecord),
	}
}

// limiterKey maps a client IP onto the bucket it is counted in.
func limiterKey(ip string) string {
	addr, err := netip.ParseAddr(ip)
	if err != nil || addr.Is4() || addr.Is4In6() {
		return ip
	}
	prefix, err := addr.Prefix(ipv6LimitPrefix)
	if err != nil {
		return ip
	}
	return prefix.String()
}

// check reports whether ip is locked out and for how long.
func (rl *loginRateLimiter) check(ip string) (blocked bool, retryAfter time.Duration) {
	key := limiterKey(ip)
	rl.mu.Lock()
	defer rl.mu.Unlock()

	rec, ok := rl.attempts[key]
	if !ok {
		return false, 0
	}
	now := rl.now()
	if now.Sub(rec.lastFailure) > rl.policy.expiry {
		delete(rl.attempts, key)
		return false, 0
	}
	if now.Before(rec.lockedUntil) {
		return true, rec.lockedUntil.Sub(now)
	}
	return false, 0
}

func (rl *loginRateLimiter) recordFailure(ip string) {
	key := limiterKey(ip)
	rl.mu.Lock()
	defer rl.mu.Unlock()

	rec, ok := rl.attempts[key]
	if !ok {
		rec = &attemptRecord{}
		rl.attempts[key] = rec
	}
	now := rl.now()
	rec.failures++
	rec.lastFailure = now
	if d := rl.policy.lockout(rec.failures); d > 0 {
		rec.lockedUntil = now.Add(d)
	}
}

// recordSuccess forgets the failures of ip.
func (rl *loginRateLimiter) recordSuccess(ip string) {
	key := limiterKey(ip)
	rl.mu.Lock()
	defer rl.mu.Unlock()
	delete(rl.attempts, key)
}

// sweep drops records idle for longer than the policy expiry.
func (rl *loginRateLimiter) sweep() {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	now := rl.now()
	for key, rec := range rl.attempts {
		if now.Sub(rec.lastFailure) > rl.policy.expiry {
			delete(rl.attempts, key)
		}
	}
}

func (rl *loginRateLimiter) len() int {
	rl.mu.Lock()
	defer rl.mu.Unlock()
	return len(rl.attempts)
}

// writeRateLimited sends a 429 Too Many Requests response.
func writeRateLimited(w http.ResponseWriter, retryAfter time.Duration) {
	w.Header().Set("Retry-After", retryAfterString(retryAfter))
	writeError(w, http.StatusTooManyRequests, msgRateLimited)
}

func retryAfterString(d time.Duration) string {
	secs := int((d + time.Second - 1) / time.Second)
	if secs < 1 {
		secs = 1
	}
	return strconv.Itoa(secs)
}

// WithTrustedProxies lists the reverse proxies, as CIDRs or bare addresses,
// whose forwarding headers name the real client. Requests from any other
// peer are identified by their socket address only.
func WithTrustedProxies(cidrs []string) (Option, error) {
	prefixes, err := parseTrustedProxies(cidrs)
	if err != nil {
		return nil, err
	}
	return func(a *API) { a.trustedProxies = prefixes }, nil
}

func parseTrustedProxies(cidrs []string) ([]netip.Prefix, error) {
	var prefixes []netip.Prefix
	for _, raw := range cidrs {
		s := strings.TrimSpace(raw)
		if s == "" {
			continue
		}
		if strings.Contains(s, "/") {
			p, err := netip.ParsePrefix(s)
			if err != nil {
				return nil, fmt.Errorf("trusted proxy %q: %w", s, err)
			}
			prefixes = append(prefixes, p.Masked())
			continue
		}
		addr, err := netip.ParseAddr(s)
		if err != nil {
			return nil, fmt.Errorf("trusted proxy %q: %w", s, err)
		}
		prefixes = append(prefixes, netip.PrefixFrom(addr.Unmap(), addr.Unmap().BitLen()))
	}
	return prefixes, nil
}

// clientIP returns the address login attempts are counted against.
func (a *API) clientIP(r *http.Request) string {
	return extractClientIPWithProxies(r, a.trustedProxies)
}

// extractClientIPWithProxies returns the client address of r.
//
// Forwarding headers are only read when the socket peer is a trusted proxy.
// X-Forwarded-For is walked from the right, skipping trusted hops, so a
// client cannot choose its identity by prepending entries. Forwarded and
// X-Real-IP are consulted in that order when X-Forwarded-For is absent.
func extractClientIPWithProxies(r *http.Request, trusted []netip.Prefix) string {
	remoteIP, ok := parseIPCandidate(r.RemoteAddr)
	if !ok {
		return r.RemoteAddr
	}
	if !isTrusted(remoteIP, trusted) {
		return remoteIP
	}

	if xff := r.Header.Values("X-Forwarded-For"); len(xff) > 0 {
		if ip, ok := rightmostUntrusted(strings.Split(strings.Join(xff, ","), ","), trusted); ok {
			return ip
		}
	}
	if fwd := r.Header.Values("Forwarded"); len(fwd) > 0 {
		var hops []string
		for _, elem := range strings.Split(strings.Join(fwd, ","), ",") {
			for _, param := range strings.Split(elem, ";") {
				param = strings.TrimSpace(param)
				if len(param) > 4 && strings.EqualFold(param[:4], "for=") {
					hops = append(hops, param[4:])
				}
			}
		}
		if ip, ok := rightmostUntrusted(hops, trusted); ok {
			return ip
		}
	}
	if ip, ok := parseIPCandidate(r.Header.Get("X-Real-IP")); ok {
		return ip
	}
	return remoteIP
}

func rightmostUntrusted(hops []string, trusted []netip.Prefix) (string, bool) {
	for i := len(hops) - 1; i >= 0; i-- {
		ip, ok := parseIPCandidate(hops[i])
		if !ok {
			// An unparseable hop ends the chain we can vouch for.
			return "", false
		}
		if !isTrusted(ip, trusted) {
			return ip, true
		}
	}
	return "", false
}

func isTrusted(ip string, trusted []netip.Prefix) bool {
	addr, err := netip.ParseAddr(ip)
	if err != nil {
		return false
	}
	addr = addr.Unmap()
	for _, p := range trusted {
		if p.Contains(addr) {
			return true
		}
	}
	return false
}

func parseIPCandidate(raw string) (string, bool) {
	s := strings.TrimSpace(raw)
	s = strings.Trim(s, "\"")
	if s == "" {
		return "", false
	}

	// RFC 7239 IPv6 may appear as "[::1]:1234".
	if host, _, err := net.SplitHostPort(s); err == nil {
		s = host
	}
	s = strings.TrimPrefix(s, "[")
	s = strings.TrimSuffix(s, "]")
	if i := strings.IndexByte(s, '%'); i >= 0 {
		s = s[:i]
	}

	addr, err := netip.ParseAddr(s)
	if err != nil {
		return "", false
	}
	return addr.Unmap().String(), true
}
