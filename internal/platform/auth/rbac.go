package auth

import (
	"fmt"
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"

	"github.com/ehr/clinic/internal/platform/apperr"
)

// Role is the closed set of staff roles. The zero value is not a role and is
// denied every operation.
type Role uint8

const (
	RoleInvalid Role = iota
	RoleAdmin
	RoleDoctor
	RolePharmacist
	RoleReceptionist
	roleCount
)

var roleNames = [roleCount]string{
	RoleInvalid:      "invalid",
	RoleAdmin:        "admin",
	RoleDoctor:       "doctor",
	RolePharmacist:   "pharmacist",
	RoleReceptionist: "receptionist",
}

func (r Role) String() string {
	if r >= roleCount {
		return roleNames[RoleInvalid]
	}
	return roleNames[r]
}

func (r Role) Valid() bool { return r > RoleInvalid && r < roleCount }

// ParseRole maps a claim value onto a Role. Unknown values yield RoleInvalid.
func ParseRole(s string) Role {
	s = strings.ToLower(strings.TrimSpace(s))
	for r := RoleAdmin; r < roleCount; r++ {
		if roleNames[r] == s {
			return r
		}
	}
	return RoleInvalid
}

// Operation names a permission-checked action.
type Operation uint8

const (
	OpPatientRead Operation = iota
	OpPatientWrite
	OpPatientDelete
	OpPatientRecords
	OpOrderRead
	OpOrderCreate
	OpOrderUpdate
	OpInventoryRead
	OpInventoryWrite
	OpInventoryDelete
	OpClinicianRead
	OpClinicianWrite
	OpAuditRead
	opCount
)

var opNames = [opCount]string{
	OpPatientRead:     "patient.read",
	OpPatientWrite:    "patient.write",
	OpPatientDelete:   "patient.delete",
	OpPatientRecords:  "patient.records",
	OpOrderRead:       "order.read",
	OpOrderCreate:     "order.create",
	OpOrderUpdate:     "order.update",
	OpInventoryRead:   "inventory.read",
	OpInventoryWrite:  "inventory.write",
	OpInventoryDelete: "inventory.delete",
	OpClinicianRead:   "clinician.read",
	OpClinicianWrite:  "clinician.write",
	OpAuditRead:       "audit.read",
}

func (o Operation) String() string {
	if o >= opCount {
		return fmt.Sprintf("operation(%d)", uint8(o))
	}
	return opNames[o]
}

type roleSet uint8

func rolesOf(roles ...Role) roleSet {
	var s roleSet
	for _, r := range roles {
		s |= 1 << r
	}
	return s
}

func (s roleSet) has(r Role) bool { return r.Valid() && s&(1<<r) != 0 }

func (s roleSet) names() []string {
	var out []string
	for r := RoleAdmin; r < roleCount; r++ {
		if s.has(r) {
			out = append(out, r.String())
		}
	}
	return out
}

// policy is indexed by Operation; adding an Operation without a row is a
// compile error because the array length is opCount.
var policy = [opCount]roleSet{
	OpPatientRead:     rolesOf(RoleAdmin, RoleDoctor, RoleReceptionist),
	OpPatientWrite:    rolesOf(RoleAdmin, RoleDoctor, RoleReceptionist),
	OpPatientDelete:   rolesOf(RoleAdmin),
	OpPatientRecords:  rolesOf(RoleAdmin, RoleDoctor),
	OpOrderRead:       rolesOf(RoleAdmin, RoleDoctor, RolePharmacist),
	OpOrderCreate:     rolesOf(RoleAdmin, RoleDoctor),
	OpOrderUpdate:     rolesOf(RoleAdmin, RoleDoctor),
	OpInventoryRead:   rolesOf(RoleAdmin, RoleDoctor, RolePharmacist),
	OpInventoryWrite:  rolesOf(RoleAdmin, RolePharmacist),
	OpInventoryDelete: rolesOf(RoleAdmin),
	OpClinicianRead:   rolesOf(RoleAdmin, RoleDoctor, RoleReceptionist),
	OpClinicianWrite:  rolesOf(RoleAdmin),
	OpAuditRead:       rolesOf(RoleAdmin),
}

// Authorize reports whether role may perform op. It is a pure table lookup.
func Authorize(role Role, op Operation) error {
	if op < opCount && policy[op].has(role) {
		return nil
	}
	return apperr.Forbidden("role %s is not permitted to perform %s", role, op)
}

// AllowedRoles lists the roles permitted to perform op.
func AllowedRoles(op Operation) []string {
	if op >= opCount {
		return nil
	}
	return policy[op].names()
}

// RequireOperation returns middleware that rejects actors whose role is not
// permitted to perform op.
func RequireOperation(op Operation) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			actor, ok := ActorFromContext(c.Request().Context())
			if !ok {
				return echo.NewHTTPError(http.StatusUnauthorized, "authentication required")
			}
			if err := Authorize(actor.Role, op); err != nil {
				return echo.NewHTTPError(http.StatusForbidden,
					fmt.Sprintf("required role: %s", strings.Join(AllowedRoles(op), " or ")))
			}
			return next(c)
		}
	}
}
