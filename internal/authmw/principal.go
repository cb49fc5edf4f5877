package authmw

import (
	"context"
	"net/http"
	"slices"
	"strconv"
	"strings"

	"github.com/linnemanlabs/go-core/log"

	"github.com/linnemanlabs/bosun/internal/alert"
)

// Identity headers set by the session gateway in front of the API.
const (
	HeaderTenant      = "X-Tenant-Id"
	HeaderUser        = "X-User-Id"
	HeaderRoles       = "X-User-Roles"
	HeaderScope       = "X-Scope-Id"
	HeaderFleetAccess = "X-Fleet-Access"
)

type principalKey struct{}

// WithPrincipal returns a copy of ctx carrying p.
func WithPrincipal(ctx context.Context, p alert.Principal) context.Context {
	return context.WithValue(ctx, principalKey{}, p)
}

// PrincipalFromContext returns the principal set by Principal or WithPrincipal.
func PrincipalFromContext(ctx context.Context) (alert.Principal, bool) {
	p, ok := ctx.Value(principalKey{}).(alert.Principal)
	return p, ok
}

// Principal returns middleware that builds the caller's alert.Principal from
// the identity headers. Requests without a tenant or user are rejected. The
// request logger gains tenant_id and user_id fields.
func Principal(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		p, ok := principalFromHeaders(r.Header)
		if !ok {
			unauthorized(w, "missing caller identity")
			return
		}
		ctx := WithPrincipal(r.Context(), p)
		ctx = log.WithContext(ctx, log.FromContext(ctx).With("tenant_id", p.TenantID, "user_id", p.UserID))
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func principalFromHeaders(h http.Header) (alert.Principal, bool) {
	p := alert.Principal{
		TenantID: strings.TrimSpace(h.Get(HeaderTenant)),
		UserID:   strings.TrimSpace(h.Get(HeaderUser)),
		ScopeID:  strings.TrimSpace(h.Get(HeaderScope)),
		Roles:    parseRoles(h.Values(HeaderRoles)),
	}
	if v := strings.TrimSpace(h.Get(HeaderFleetAccess)); v != "" {
		p.FleetWide, _ = strconv.ParseBool(v)
	}
	if p.TenantID == "" || p.UserID == "" {
		return alert.Principal{}, false
	}
	return p, true
}

// parseRoles accepts repeated headers and comma-separated lists. Role names
// may contain spaces ("Chief Engineer").
func parseRoles(values []string) []string {
	var roles []string
	for _, v := range values {
		for _, r := range strings.Split(v, ",") {
			if r = strings.TrimSpace(r); r != "" && !slices.Contains(roles, r) {
				roles = append(roles, r)
			}
		}
	}
	return roles
}
