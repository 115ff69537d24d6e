// Package uri is the URI resolution collaborator: a rewrite policy applied
// to every URI that survives into compiled output, and a loader for the
// external scripts and stylesheets a bundle references.
//
// Denial and unavailability are ordinary outcomes here. The policy answers
// with ok == false; the loader returns an error wrapping ErrDenied or
// ErrUnavailable. Callers turn both into diagnostics, never into aborts.
package uri

import (
	"net/url"
	"slices"
	"strings"
)

// DefaultSchemes is used when a Policy lists no schemes.
var DefaultSchemes = []string{"http", "https"}

// Policy decides which URIs compiled output may reference.
type Policy struct {
	// AllowedSchemes lists lowercase schemes; empty means DefaultSchemes.
	AllowedSchemes []string

	// AllowedHosts restricts absolute URIs to these hosts. A leading "*."
	// matches any subdomain. Empty allows every host.
	AllowedHosts []string

	// ProxyTemplate, when set, rewrites every accepted absolute URI through
	// a proxy. "{url}" and "{mime}" are replaced with the query-escaped
	// target and expected media type.
	ProxyTemplate string
}

// Rewrite resolves ref against base and returns the URI to emit, or
// ok == false when the reference is denied.
//
// A relative reference with no base stays relative; it can only address
// content inside the embedding container.
func (p *Policy) Rewrite(ref string, base *url.URL, mime string) (string, bool) {
	ref = strings.TrimSpace(ref)
	if ref == "" || hasControl(ref) {
		return "", false
	}
	u, err := url.Parse(ref)
	if err != nil {
		return "", false
	}
	if u.Opaque != "" && u.Scheme == "" {
		return "", false
	}
	if !u.IsAbs() && base != nil {
		u = base.ResolveReference(u)
	}
	if !u.IsAbs() {
		if u.Host != "" {
			// Protocol-relative reference with nothing to inherit a scheme from.
			return "", false
		}
		return u.String(), true
	}
	if !p.schemeAllowed(u.Scheme) {
		return "", false
	}
	if !p.hostAllowed(u.Hostname()) {
		return "", false
	}
	if p.ProxyTemplate == "" {
		return u.String(), true
	}
	r := strings.NewReplacer(
		"{url}", url.QueryEscape(u.String()),
		"{mime}", url.QueryEscape(mime),
	)
	return r.Replace(p.ProxyTemplate), true
}

func (p *Policy) schemeAllowed(scheme string) bool {
	schemes := p.AllowedSchemes
	if len(schemes) == 0 {
		schemes = DefaultSchemes
	}
	return slices.Contains(schemes, strings.ToLower(scheme))
}

func (p *Policy) hostAllowed(host string) bool {
	if len(p.AllowedHosts) == 0 {
		return true
	}
	host = strings.ToLower(host)
	for _, h := range p.AllowedHosts {
		h = strings.ToLower(h)
		if rest, ok := strings.CutPrefix(h, "*."); ok {
			if host == rest || strings.HasSuffix(host, "."+rest) {
				return true
			}
			continue
		}
		if host == h {
			return true
		}
	}
	return false
}

// Fingerprint summarizes the policy for the cache generation salt.
func (p *Policy) Fingerprint() string {
	schemes := slices.Clone(p.AllowedSchemes)
	if len(schemes) == 0 {
		schemes = slices.Clone(DefaultSchemes)
	}
	slices.Sort(schemes)
	hosts := slices.Clone(p.AllowedHosts)
	slices.Sort(hosts)
	return strings.Join(schemes, ",") + "|" + strings.Join(hosts, ",") + "|" + p.ProxyTemplate
}

func hasControl(s string) bool {
	for _, r := range s {
		if r < 0x20 || r == 0x7f {
			return true
		}
	}
	return false
}
