package auth

import (
	"fmt"
	"strings"

	"github.com/tendant/admin-gate/pkg/domain"
)

// RequireRole checks a caller's role against a route's required set. The
// super role bypasses every restriction; an empty required set admits any
// authenticated caller. The returned error names the deficiency, which is
// safe to disclose to an already-authenticated caller.
func RequireRole(role string, required ...string) error {
	if role == domain.RoleSuper || len(required) == 0 {
		return nil
	}
	for _, want := range required {
		if role == want {
			return nil
		}
	}
	return fmt.Errorf("%w: role %q is not one of [%s]", domain.ErrForbidden, role, strings.Join(required, ", "))
}
