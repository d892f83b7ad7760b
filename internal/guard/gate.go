package guard

import (
	"log/slog"
	"net/http"
	"net/url"
	"strings"

	"github.com/tendant/admin-gate/internal/httputil"
	"github.com/tendant/admin-gate/pkg/detect"
	"github.com/tendant/admin-gate/pkg/domain"
)

// Path prefixes that are admin-shaped after secret stripping. Anything
// else passes through the gate untouched.
var (
	adminUIPrefix  = "/admin"
	adminAPIPrefix = "/api/admin"
)

// PathGate hides the admin surface behind a rotating secret path
// segment. Anyone without the secret gets a response byte-identical to a
// genuine 404, so the surface is indistinguishable from "does not exist".
type PathGate struct {
	current  string
	next     string
	detector *detect.Detector
	logger   *slog.Logger
}

// NewPathGate creates a path gate. An empty current secret disables the
// gate entirely (development pass-through; config.Load refuses that state
// in production).
func NewPathGate(current, next string, detector *detect.Detector, logger *slog.Logger) *PathGate {
	if logger == nil {
		logger = slog.Default()
	}
	return &PathGate{
		current:  current,
		next:     next,
		detector: detector,
		logger:   logger,
	}
}

// Enabled reports whether a secret is configured.
func (g *PathGate) Enabled() bool {
	return g.current != ""
}

// Secrets returns the active secret and the incoming one during a
// rotation (empty when no rotation is in progress). Exposed only to the
// super-role route that lets operators confirm a rotation.
func (g *PathGate) Secrets() (current, next string) {
	return g.current, g.next
}

// Middleware applies the gate ahead of routing. Accepted secret-prefixed
// paths are forwarded with the secret segment stripped so routes match
// their canonical form.
func (g *PathGate) Middleware() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if !g.Enabled() {
				next.ServeHTTP(w, r)
				return
			}

			path := r.URL.Path

			if rest, ok := g.stripSecret(path); ok {
				g.record(r, path, true)
				r.URL.Path = rest
				r.URL.RawPath = ""
				next.ServeHTTP(w, r)
				return
			}

			if !isAdminShaped(path) {
				next.ServeHTTP(w, r)
				return
			}

			// API-shaped admin calls cannot carry the secret in their own
			// path; accept the side-channel header or a Referer that
			// points at a page under a valid secret path.
			if strings.HasPrefix(path, adminAPIPrefix) && g.sideChannelValid(r) {
				g.record(r, path, true)
				next.ServeHTTP(w, r)
				return
			}

			g.record(r, path, false)
			httputil.NotFound(w)
		})
	}
}

// stripSecret returns the path with a leading valid secret segment
// removed. The secret must be followed by more path; a bare "/<secret>"
// is not accepted.
func (g *PathGate) stripSecret(path string) (string, bool) {
	for _, secret := range []string{g.current, g.next} {
		if secret == "" {
			continue
		}
		prefix := "/" + secret + "/"
		if strings.HasPrefix(path, prefix) {
			return path[len(prefix)-1:], true
		}
	}
	return "", false
}

func (g *PathGate) sideChannelValid(r *http.Request) bool {
	if secret := r.Header.Get(HeaderRouteSecret); secret != "" {
		return secret == g.current || (g.next != "" && secret == g.next)
	}

	referer := r.Header.Get("Referer")
	if referer == "" {
		return false
	}
	u, err := url.Parse(referer)
	if err != nil {
		return false
	}
	_, ok := g.stripSecret(u.Path)
	return ok
}

func (g *PathGate) record(r *http.Request, path string, valid bool) {
	if g.detector == nil {
		return
	}
	g.detector.Record(domain.AccessAttempt{
		IP:        ClientIP(r),
		UserAgent: r.UserAgent(),
		Path:      path,
		Valid:     valid,
	})
}

func isAdminShaped(path string) bool {
	return strings.HasPrefix(path, adminUIPrefix) || strings.HasPrefix(path, adminAPIPrefix)
}
