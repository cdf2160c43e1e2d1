// Package ratelimit enforces fixed-window request budgets per client identity,
// with the counters kept in Redis so every API replica shares them.
package ratelimit

import (
	"context"
	"fmt"
	"time"

	"lead-funnel/internal/common/config"
	"lead-funnel/internal/common/logger"
	"lead-funnel/internal/common/metrics"

	"github.com/redis/go-redis/v9"
)

const (
	PolicySubmit  = "submit"
	PolicyDefault = "default"

	defaultPrefix = "ratelimit"
)

// INCR and PEXPIRE run as one script so a crash between them cannot leave a
// counter without a TTL. The second PEXPIRE repairs keys written by older
// versions without one.
var fixedWindow = redis.NewScript(`
local n = redis.call('INCR', KEYS[1])
if n == 1 then
  redis.call('PEXPIRE', KEYS[1], ARGV[1])
end
local ttl = redis.call('PTTL', KEYS[1])
if ttl < 0 then
  redis.call('PEXPIRE', KEYS[1], ARGV[1])
  ttl = tonumber(ARGV[1])
end
return {n, ttl}
`)

// Policy is a budget of Limit requests per Window.
type Policy struct {
	Name   string
	Limit  int
	Window time.Duration
}

// Decision is the outcome of one Allow call.
type Decision struct {
	Allowed    bool
	Limit      int
	Remaining  int
	RetryAfter time.Duration
	// Reset is how long until the current window ends.
	Reset time.Duration
}

type Limiter struct {
	rdb      redis.Scripter
	prefix   string
	policies map[string]Policy
	failOpen bool
	enabled  bool
	proxies  *Proxies
	log      logger.Logger
}

func New(rdb redis.Scripter, cfg config.RateLimitConfig, log logger.Logger) *Limiter {
	prefix := cfg.KeyPrefix
	if prefix == "" {
		prefix = defaultPrefix
	}
	log = log.WithFields(map[string]interface{}{"component": "ratelimit"})
	proxies, err := ParseProxies(cfg.TrustedProxies)
	if err != nil {
		// Config validation rejects bad entries first; trusting nobody is the
		// safe reading of anything that slips through.
		log.Warn("ignoring trusted proxies", map[string]interface{}{"error": err})
		proxies = nil
	}
	return &Limiter{
		rdb:    rdb,
		prefix: prefix,
		policies: map[string]Policy{
			PolicySubmit:  policyFrom(PolicySubmit, cfg.Submit, 5),
			PolicyDefault: policyFrom(PolicyDefault, cfg.Default, 120),
		},
		failOpen: cfg.FailOpen,
		enabled:  cfg.Enabled,
		proxies:  proxies,
		log:      log,
	}
}

func policyFrom(name string, wp config.WindowPolicy, defLimit int) Policy {
	p := Policy{Name: name, Limit: wp.Limit, Window: config.GetDuration(wp.Window)}
	if p.Limit <= 0 {
		p.Limit = defLimit
	}
	if p.Window <= 0 {
		p.Window = time.Minute
	}
	return p
}

// Policy returns the named policy, falling back to the default one.
func (l *Limiter) Policy(name string) Policy {
	if p, ok := l.policies[name]; ok {
		return p
	}
	return l.policies[PolicyDefault]
}

func (l *Limiter) key(policy, identity string) string {
	return fmt.Sprintf("%s:%s:%s", l.prefix, policy, identity)
}

// Allow counts one request for identity under policy. When the counter store
// fails the decision follows the fail-open setting and the error is returned
// alongside it.
func (l *Limiter) Allow(ctx context.Context, policy, identity string) (Decision, error) {
	p := l.Policy(policy)
	if !l.enabled {
		return Decision{Allowed: true, Limit: p.Limit, Remaining: p.Limit}, nil
	}

	res, err := fixedWindow.Run(ctx, l.rdb, []string{l.key(p.Name, identity)}, p.Window.Milliseconds()).Int64Slice()
	if err == nil && len(res) != 2 {
		err = fmt.Errorf("unexpected script reply of length %d", len(res))
	}
	if err != nil {
		decision := "fail_closed"
		if l.failOpen {
			decision = "fail_open"
		}
		metrics.RateLimitDecisions.WithLabelValues(p.Name, decision).Inc()
		l.log.WithError(err).Warn("rate limit counter unavailable", map[string]interface{}{
			"policy":   p.Name,
			"failOpen": l.failOpen,
		})
		return Decision{Allowed: l.failOpen, Limit: p.Limit, Remaining: p.Limit}, fmt.Errorf("rate limit counter: %w", err)
	}

	count, ttl := int(res[0]), time.Duration(res[1])*time.Millisecond
	d := Decision{
		Allowed:   count <= p.Limit,
		Limit:     p.Limit,
		Remaining: p.Limit - count,
		Reset:     ttl,
	}
	if d.Remaining < 0 {
		d.Remaining = 0
	}
	if !d.Allowed {
		d.RetryAfter = ttl
		metrics.RateLimitDecisions.WithLabelValues(p.Name, "denied").Inc()
	} else {
		metrics.RateLimitDecisions.WithLabelValues(p.Name, "allowed").Inc()
	}
	return d, nil
}
