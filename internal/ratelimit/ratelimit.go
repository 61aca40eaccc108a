// Package ratelimit implements fixed-window request counters keyed per
// policy. A window opens on the first hit for a key and closes Window later;
// the next hit after that starts a fresh window with a count of one.
package ratelimit

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"agency-platform/internal/config"
)

type Policy string

const (
	PolicyDefault  Policy = config.PolicyDefault
	PolicyAuth     Policy = config.PolicyAuth
	PolicyUpload   Policy = config.PolicyUpload
	PolicyTenant   Policy = config.PolicyTenant
	PolicyOperator Policy = config.PolicyOperator

	PolicyPasswordReset Policy = config.PolicyPasswordReset
)

const (
	HeaderLimit      = "X-RateLimit-Limit"
	HeaderRemaining  = "X-RateLimit-Remaining"
	HeaderRetryAfter = "Retry-After"

	keyPrefix = "rl"
)

var ErrUnknownPolicy = errors.New("unknown rate limit policy")

// Rule bounds one policy.
type Rule struct {
	Window time.Duration
	Max    int
	// SkipSuccessful refunds hits whose response status is below 400, so
	// only failed attempts accrue toward Max.
	SkipSuccessful bool
}

// Decision is the outcome of one Check.
type Decision struct {
	Allowed   bool
	Limit     int
	Remaining int
	ResetAt   time.Time
	// Saturated is set when the store refused to track a new key. The hit
	// is rejected rather than let through uncounted.
	Saturated bool
}

// RetryAfter is the whole seconds until the window resets, at least 1.
func (d Decision) RetryAfter(now time.Time) int {
	secs := int(d.ResetAt.Sub(now).Round(time.Second) / time.Second)
	if secs < 1 {
		return 1
	}
	return secs
}

// WriteHeaders sets the standard rate-limit response headers.
func (d Decision) WriteHeaders(h http.Header, now time.Time) {
	h.Set(HeaderLimit, strconv.Itoa(d.Limit))
	h.Set(HeaderRemaining, strconv.Itoa(d.Remaining))
	if !d.Allowed {
		h.Set(HeaderRetryAfter, strconv.Itoa(d.RetryAfter(now)))
	}
}

// Store counts hits per key within a window. Increment must be atomic per
// key: concurrent callers observe distinct, consecutive counts.
type Store interface {
	Increment(ctx context.Context, key string, window time.Duration) (count int, resetAt time.Time, err error)
	Decrement(ctx context.Context, key string) error
}

// Limiter applies policies to a Store.
type Limiter struct {
	rules map[Policy]Rule
	store Store
	now   func() time.Time
}

// RulesFromConfig turns the configured policy table into limiter rules. The
// auth policy never counts successful attempts.
func RulesFromConfig(cfg config.RateLimitConfig) map[Policy]Rule {
	rules := make(map[Policy]Rule, len(cfg.Policies))
	for name, r := range cfg.Policies {
		p := Policy(name)
		rules[p] = Rule{Window: r.Window, Max: r.Max, SkipSuccessful: p == PolicyAuth}
	}
	return rules
}

func NewLimiter(rules map[Policy]Rule, store Store) *Limiter {
	return &Limiter{rules: rules, store: store, now: time.Now}
}

func (l *Limiter) Rule(p Policy) (Rule, bool) {
	r, ok := l.rules[p]
	return r, ok
}

// Check counts one hit for key under policy p and reports whether it is
// within the policy's cap. A store that is out of room yields a rejecting
// Decision, not an error; errors mean the store itself is unreachable.
func (l *Limiter) Check(ctx context.Context, p Policy, key string) (Decision, error) {
	rule, ok := l.rules[p]
	if !ok {
		return Decision{}, fmt.Errorf("%w: %s", ErrUnknownPolicy, p)
	}

	count, resetAt, err := l.store.Increment(ctx, storeKey(p, key), rule.Window)
	if errors.Is(err, ErrCapacityExceeded) {
		return Decision{
			Limit:     rule.Max,
			ResetAt:   l.now().Add(rule.Window),
			Saturated: true,
		}, nil
	}
	if err != nil {
		return Decision{}, err
	}

	remaining := rule.Max - count
	if remaining < 0 {
		remaining = 0
	}
	return Decision{
		Allowed:   count <= rule.Max,
		Limit:     rule.Max,
		Remaining: remaining,
		ResetAt:   resetAt,
	}, nil
}

// Refund takes back one hit for key, used when a policy skips successful
// responses.
func (l *Limiter) Refund(ctx context.Context, p Policy, key string) error {
	if _, ok := l.rules[p]; !ok {
		return fmt.Errorf("%w: %s", ErrUnknownPolicy, p)
	}
	return l.store.Decrement(ctx, storeKey(p, key))
}

func (l *Limiter) Now() time.Time {
	return l.now()
}

func storeKey(p Policy, key string) string {
	return keyPrefix + ":" + string(p) + ":" + key
}

// KeyIP keys a counter by client address.
func KeyIP(ip string) string {
	return "ip:" + ip
}

// KeyTenant keys a counter by (subdomain, client address) so one agency's
// traffic cannot exhaust another's quota.
func KeyTenant(subdomain, ip string) string {
	return "tenant:" + subdomain + ":ip:" + ip
}
