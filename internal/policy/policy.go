// Package policy decides whether an actor may perform an operation on a
// resource, and under which scope. It has no I/O: handlers resolve owners and
// pass them in.
package policy

import (
	"github.com/google/uuid"

	"github.com/example/sitesnap/internal/apperr"
)

type Role string

const (
	RoleVisitor Role = "visitor"
	RoleSeller  Role = "seller"
	RoleAdmin   Role = "admin"
)

// Valid reports whether r is one of the three known roles.
func (r Role) Valid() bool {
	switch r {
	case RoleVisitor, RoleSeller, RoleAdmin:
		return true
	}
	return false
}

type Operation string

const (
	OpList   Operation = "list"
	OpRead   Operation = "read"
	OpCreate Operation = "create"
	OpUpdate Operation = "update"
	OpDelete Operation = "delete"
)

func (o Operation) isRead() bool {
	return o == OpList || o == OpRead
}

// Actor is the identity behind a request. The zero value is anonymous.
type Actor struct {
	UserID   uuid.UUID
	Role     Role
	SellerID *uuid.UUID
}

func (a Actor) Authenticated() bool {
	return a.UserID != uuid.Nil
}

func (a Actor) IsAdmin() bool {
	return a.Authenticated() && a.Role == RoleAdmin
}

// Owns reports whether the actor's seller profile is owner.
func (a Actor) Owns(owner *uuid.UUID) bool {
	return a.SellerID != nil && owner != nil && *a.SellerID == *owner
}

// Request is one authorization question.
//
// OwnerID is the resolved owner of the target for read, update and delete,
// and the caller-supplied owner for create. Unclaimed marks a transitively
// owned target that nothing links to yet.
type Request struct {
	Actor     Actor
	Operation Operation
	Resource  Resource
	OwnerID   *uuid.UUID
	Unclaimed bool
}

// Decision is what the caller must apply when access is granted.
type Decision struct {
	// Scope restricts list results to this seller. Nil means unscoped.
	Scope *uuid.UUID
	// IncludeUnclaimed widens a scoped list to unlinked records.
	IncludeUnclaimed bool
	// PublicOnly restricts results to publicly visible records.
	PublicOnly bool
	// Owner is the effective owner for create.
	Owner *uuid.UUID
}

// Evaluate applies the rules in order; the first match wins.
func Evaluate(req Request) (Decision, error) {
	caps := CapabilitiesOf(req.Resource)
	actor := req.Actor

	switch {
	case actor.IsAdmin():
		return evaluateAdmin(req, caps)
	case !actor.Authenticated():
		if req.Operation.isRead() && caps.PublicRead {
			return Decision{PublicOnly: true}, nil
		}
		return Decision{}, apperr.ErrUnauthenticated
	case actor.Role == RoleSeller:
		return evaluateSeller(req, caps)
	default:
		if req.Operation.isRead() && caps.PublicRead {
			return Decision{PublicOnly: true}, nil
		}
		return Decision{}, apperr.ErrForbidden
	}
}

func evaluateAdmin(req Request, caps Capabilities) (Decision, error) {
	if req.Operation == OpCreate {
		if caps.Ownership == OwnershipDirect && req.OwnerID == nil {
			return Decision{}, apperr.ErrMissingOwner
		}
		return Decision{Owner: req.OwnerID}, nil
	}
	return Decision{}, nil
}

func evaluateSeller(req Request, caps Capabilities) (Decision, error) {
	actor := req.Actor

	if caps.Ownership == OwnershipNone {
		return Decision{}, nil
	}

	if actor.SellerID == nil {
		if req.Operation.isRead() && caps.PublicRead {
			return Decision{PublicOnly: true}, nil
		}
		return Decision{}, apperr.ErrForbidden
	}

	transitive := caps.Ownership == OwnershipTransitive

	switch req.Operation {
	case OpList:
		return Decision{Scope: actor.SellerID, IncludeUnclaimed: transitive}, nil
	case OpCreate:
		if req.OwnerID == nil {
			if transitive {
				return Decision{}, nil
			}
			return Decision{Owner: actor.SellerID}, nil
		}
		if !actor.Owns(req.OwnerID) {
			return Decision{}, apperr.ErrOwnershipViolation
		}
		return Decision{Owner: req.OwnerID}, nil
	default:
		if transitive && req.Unclaimed {
			return Decision{}, nil
		}
		if !actor.Owns(req.OwnerID) {
			return Decision{}, apperr.ErrOwnershipViolation
		}
		return Decision{}, nil
	}
}
