// Package access implements admin authentication for the storefront: the
// in-memory session registry, login against persisted access codes,
// per-request re-validation with revocation, the master privilege check,
// and the cascade that revokes sessions when an access code is deleted.
//
// Sessions live only in process memory. A restart logs every admin out.
// The access code store is the single source of truth; the registry is a
// derived cache of who is currently allowed in.
package access
