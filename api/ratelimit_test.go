package api

import (
	"fmt"
	"net/http"
	"net/http/httptest"
	"net/netip"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mortasa/storefront/access"
	"github.com/mortasa/storefront/storage/memory"
)

type fakeClock struct{ t time.Time }

func (c *fakeClock) now() time.Time          { return c.t }
func (c *fakeClock) advance(d time.Duration) { c.t = c.t.Add(d) }

func newTestLimiter() (*loginRateLimiter, *fakeClock) {
	clock := &fakeClock{t: time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)}
	return newLoginRateLimiterWith(loginLockout, clock.now), clock
}

func TestLockoutPolicy(t *testing.T) {
	p := lockoutPolicy{maxFailures: 3, baseLockout: time.Minute, maxLockout: 10 * time.Minute, expiry: time.Hour}
	tests := []struct {
		failures int
		want     time.Duration
	}{
		{0, 0},
		{2, 0},
		{3, time.Minute},
		{4, 2 * time.Minute},
		{5, 4 * time.Minute},
		{6, 8 * time.Minute},
		{7, 10 * time.Minute},
		{50, 10 * time.Minute},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, p.lockout(tt.failures), "failures=%d", tt.failures)
	}
}

func TestRateLimiter_LocksAtThreshold(t *testing.T) {
	rl, _ := newTestLimiter()
	const ip = "198.51.100.7"

	for i := 0; i < loginLockout.maxFailures-1; i++ {
		rl.recordFailure(ip)
		blocked, _ := rl.check(ip)
		assert.False(t, blocked, "failure %d", i+1)
	}
	rl.recordFailure(ip)
	blocked, retryAfter := rl.check(ip)
	require.True(t, blocked)
	assert.Equal(t, loginLockout.baseLockout, retryAfter)
}

func TestRateLimiter_LockoutElapses(t *testing.T) {
	rl, clock := newTestLimiter()
	const ip = "198.51.100.7"
	for i := 0; i < loginLockout.maxFailures; i++ {
		rl.recordFailure(ip)
	}

	clock.advance(loginLockout.baseLockout - time.Second)
	blocked, retryAfter := rl.check(ip)
	require.True(t, blocked)
	assert.Equal(t, time.Second, retryAfter)

	clock.advance(time.Second)
	blocked, _ = rl.check(ip)
	assert.False(t, blocked)

	// The count survives the lockout, so the next failure locks for longer.
	rl.recordFailure(ip)
	_, retryAfter = rl.check(ip)
	assert.Equal(t, 2*loginLockout.baseLockout, retryAfter)
}

func TestRateLimiter_SuccessResets(t *testing.T) {
	rl, _ := newTestLimiter()
	const ip = "198.51.100.7"
	for i := 0; i < loginLockout.maxFailures; i++ {
		rl.recordFailure(ip)
	}
	rl.recordSuccess(ip)

	blocked, _ := rl.check(ip)
	assert.False(t, blocked)
	assert.Zero(t, rl.len())
}

func TestRateLimiter_IsolatesClients(t *testing.T) {
	rl, _ := newTestLimiter()
	for i := 0; i < loginLockout.maxFailures; i++ {
		rl.recordFailure("198.51.100.7")
	}
	blocked, _ := rl.check("198.51.100.8")
	assert.False(t, blocked)
}

func TestRateLimiter_GroupsIPv6Subnet(t *testing.T) {
	rl, _ := newTestLimiter()
	for i := 0; i < loginLockout.maxFailures; i++ {
		rl.recordFailure(fmt.Sprintf("2001:db8:1:2::%x", i+1))
	}

	blocked, _ := rl.check("2001:db8:1:2:ffff::1")
	assert.True(t, blocked, "same /64")
	blocked, _ = rl.check("2001:db8:1:3::1")
	assert.False(t, blocked, "other /64")
}

func TestRateLimiter_ExpiryAndSweep(t *testing.T) {
	rl, clock := newTestLimiter()
	rl.recordFailure("198.51.100.7")
	clock.advance(loginLockout.expiry / 2)
	rl.recordFailure("198.51.100.8")

	clock.advance(loginLockout.expiry/2 + time.Second)
	rl.sweep()
	assert.Equal(t, 1, rl.len())

	clock.advance(loginLockout.expiry)
	blocked, _ := rl.check("198.51.100.8")
	assert.False(t, blocked)
	assert.Zero(t, rl.len(), "check forgets expired records")
}

func TestLimiterKey(t *testing.T) {
	assert.Equal(t, "203.0.113.9", limiterKey("203.0.113.9"))
	assert.Equal(t, "2001:db8:aa:bb::/64", limiterKey("2001:db8:aa:bb:1:2:3:4"))
	assert.Equal(t, "not-an-ip", limiterKey("not-an-ip"))
}

func TestRetryAfterString(t *testing.T) {
	assert.Equal(t, "1", retryAfterString(0))
	assert.Equal(t, "1", retryAfterString(200*time.Millisecond))
	assert.Equal(t, "60", retryAfterString(time.Minute))
	assert.Equal(t, "61", retryAfterString(time.Minute+time.Millisecond))
}

func mustProxies(t *testing.T, cidrs ...string) []netip.Prefix {
	t.Helper()
	p, err := parseTrustedProxies(cidrs)
	require.NoError(t, err)
	return p
}

func TestExtractClientIPWithProxies(t *testing.T) {
	trusted := mustProxies(t, "10.0.0.0/8", "fd00::/8")
	tests := []struct {
		name    string
		remote  string
		headers map[string]string
		trusted []netip.Prefix
		want    string
	}{
		{"no proxies ignores headers", "203.0.113.5:4000",
			map[string]string{"X-Forwarded-For": "1.2.3.4", "X-Real-IP": "5.6.7.8", "Forwarded": "for=9.9.9.9"}, nil, "203.0.113.5"},
		{"untrusted peer ignores headers", "203.0.113.5:4000",
			map[string]string{"X-Forwarded-For": "1.2.3.4"}, trusted, "203.0.113.5"},
		{"trusted peer uses xff", "10.0.0.2:4000",
			map[string]string{"X-Forwarded-For": "198.51.100.20"}, trusted, "198.51.100.20"},
		{"spoofed left entries ignored", "10.0.0.2:4000",
			map[string]string{"X-Forwarded-For": "1.1.1.1, 2.2.2.2, 198.51.100.20"}, trusted, "198.51.100.20"},
		{"trusted hops skipped", "10.0.0.2:4000",
			map[string]string{"X-Forwarded-For": "198.51.100.20, 10.1.1.1, 10.2.2.2"}, trusted, "198.51.100.20"},
		{"garbage hop stops the walk", "10.0.0.2:4000",
			map[string]string{"X-Forwarded-For": "198.51.100.20, junk, 10.2.2.2", "X-Real-IP": "198.51.100.30"}, trusted, "198.51.100.30"},
		{"forwarded header", "10.0.0.2:4000",
			map[string]string{"Forwarded": `for=198.51.100.1;proto=https, for="[2001:db8::7]:443"`}, trusted, "2001:db8::7"},
		{"x-real-ip", "10.0.0.2:4000",
			map[string]string{"X-Real-IP": "198.51.100.40"}, trusted, "198.51.100.40"},
		{"all hops trusted falls back to peer", "10.0.0.2:4000",
			map[string]string{"X-Forwarded-For": "10.9.9.9"}, trusted, "10.0.0.2"},
		{"ipv6 trusted peer", "[fd00::1]:4000",
			map[string]string{"X-Forwarded-For": "2001:db8::99"}, trusted, "2001:db8::99"},
		{"mapped ipv4 peer", "[::ffff:10.0.0.2]:4000",
			map[string]string{"X-Forwarded-For": "198.51.100.50"}, trusted, "198.51.100.50"},
		{"unparseable peer", "@unix", nil, trusted, "@unix"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := httptest.NewRequest(http.MethodGet, "/", nil)
			r.RemoteAddr = tt.remote
			for k, v := range tt.headers {
				r.Header.Set(k, v)
			}
			assert.Equal(t, tt.want, extractClientIPWithProxies(r, tt.trusted))
		})
	}
}

func TestWithTrustedProxies(t *testing.T) {
	opt, err := WithTrustedProxies([]string{"10.0.0.0/8", " 192.168.1.1 ", "", "2001:db8::1", "172.16.5.0/12"})
	require.NoError(t, err)
	a := &API{}
	opt(a)
	assert.Equal(t, []netip.Prefix{
		netip.MustParsePrefix("10.0.0.0/8"),
		netip.MustParsePrefix("192.168.1.1/32"),
		netip.MustParsePrefix("2001:db8::1/128"),
		netip.MustParsePrefix("172.16.0.0/12"),
	}, a.trustedProxies)

	_, err = WithTrustedProxies([]string{"10.0.0.0/8", "proxy.internal"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "proxy.internal")
}

// loginFrom posts a wrong code as if it arrived on a socket from remote.
func loginFrom(h http.Handler, remote, xff string) int {
	r := httptest.NewRequest(http.MethodPost, "/api/admin/login", strings.NewReader(`{"code":"wrong-code"}`))
	r.Header.Set("Content-Type", "application/json")
	r.RemoteAddr = remote
	if xff != "" {
		r.Header.Set("X-Forwarded-For", xff)
	}
	w := httptest.NewRecorder()
	h.ServeHTTP(w, r)
	return w.Code
}

func newLimiterTestRouter(t *testing.T, opts ...Option) http.Handler {
	t.Helper()
	repo := memory.NewRepository()
	svc := access.NewService(repo, access.NewSessionRegistry(), access.WithLogger(discardLogger()))
	a := New(repo, svc, append([]Option{WithLogger(discardLogger())}, opts...)...)
	t.Cleanup(a.Close)
	return a.Router()
}

func TestLoginLockoutIgnoresRotatingForwardedFor(t *testing.T) {
	h := newLimiterTestRouter(t)

	limited := 0
	for i := 0; i < 50; i++ {
		code := loginFrom(h, "203.0.113.5:4000", fmt.Sprintf("198.51.100.%d", i+1))
		if code == http.StatusTooManyRequests {
			limited++
		} else {
			assert.Equal(t, http.StatusUnauthorized, code, "attempt %d", i+1)
		}
	}
	assert.Equal(t, 50-loginLockout.maxFailures, limited)
}

func TestLoginLockoutBehindTrustedProxy(t *testing.T) {
	proxies, err := WithTrustedProxies([]string{"10.0.0.0/8"})
	require.NoError(t, err)
	h := newLimiterTestRouter(t, proxies)

	for i := 0; i < loginLockout.maxFailures; i++ {
		assert.Equal(t, http.StatusUnauthorized, loginFrom(h, "10.0.0.2:4000", "1.1.1.1, 198.51.100.20"))
	}
	assert.Equal(t, http.StatusTooManyRequests, loginFrom(h, "10.0.0.2:4000", "9.9.9.9, 198.51.100.20"),
		"prepended entries do not change identity")
	assert.Equal(t, http.StatusUnauthorized, loginFrom(h, "10.0.0.2:4000", "198.51.100.21"),
		"other clients behind the proxy are counted separately")
}
