package access

import (
	"errors"
	"fmt"
)

// Error kinds. Every error returned by this package for a caller mistake
// matches exactly one of these with errors.Is. Anything else is an
// infrastructure failure.
var (
	ErrBadRequest   = errors.New("bad request")
	ErrUnauthorized = errors.New("unauthorized")
	ErrForbidden    = errors.New("forbidden")
	ErrNotFound     = errors.New("not found")
	ErrConflict     = errors.New("conflict")
)

var (
	ErrMissingCode   = fmt.Errorf("%w: missing code", ErrBadRequest)
	ErrMissingFields = fmt.Errorf("%w: code and label are required", ErrBadRequest)

	ErrNoCredentials  = fmt.Errorf("%w: no credentials", ErrUnauthorized)
	ErrSessionExpired = fmt.Errorf("%w: session expired", ErrUnauthorized)
	ErrInvalidCode    = fmt.Errorf("%w: invalid code", ErrUnauthorized)
	// ErrRevoked means the session's access code no longer exists. Clients
	// must log out rather than retry.
	ErrRevoked = fmt.Errorf("%w: access revoked", ErrUnauthorized)
	// ErrCodeDeleted is the ErrRevoked reported by the request that found
	// the code missing and invalidated the session. Later uses of the same
	// token get plain ErrRevoked.
	ErrCodeDeleted = fmt.Errorf("%w: access code deleted", ErrRevoked)

	ErrMasterRequired  = fmt.Errorf("%w: master privilege required", ErrForbidden)
	ErrMasterProtected = fmt.Errorf("%w: cannot delete master code", ErrForbidden)

	ErrCodeNotFound  = fmt.Errorf("%w: access code not found", ErrNotFound)
	ErrDuplicateCode = fmt.Errorf("%w: access code already exists", ErrConflict)
)
