package config

import (
	"regexp"
	"strings"

	"github.com/rs/zerolog/log"
)

// OriginPolicy decides which browser origins may reach the relay. The
// same policy backs the REST CORS middleware and the WebSocket upgrade
// check, so the two boundaries can never drift apart.
type OriginPolicy struct {
	allowed  map[string]struct{}
	tenantRe *regexp.Regexp
}

// Policy compiles the CORS settings into an OriginPolicy. A bad tenant
// pattern is logged and skipped; the explicit list still applies.
func (c CORSConfig) Policy() *OriginPolicy {
	p := &OriginPolicy{allowed: make(map[string]struct{}, len(c.Origins))}
	for _, o := range c.Origins {
		p.allowed[o] = struct{}{}
	}
	if c.TenantPattern != "" {
		re, err := regexp.Compile(c.TenantPattern)
		if err != nil {
			log.Error().Err(err).Str("module", "config").Str("pattern", c.TenantPattern).Msg("bad tenant CORS pattern")
		} else {
			p.tenantRe = re
		}
	}
	return p
}

// Allow reports whether origin is on the explicit list, matches the
// tenant subdomain pattern, or is localhost for development.
func (p *OriginPolicy) Allow(origin string) bool {
	if origin == "" {
		return false
	}
	if _, ok := p.allowed[origin]; ok {
		return true
	}
	if p.tenantRe != nil && p.tenantRe.MatchString(origin) {
		return true
	}
	return strings.HasPrefix(origin, "http://localhost") ||
		strings.HasPrefix(origin, "http://127.0.0.1")
}
