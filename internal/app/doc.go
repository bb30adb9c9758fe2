// Package app composes the custodial ledger: domain models, storage,
// the bank service with its lock engine, and the HTTP surface.
//
// Layout:
//
//	domain/   ledger and lock models
//	storage/  persistence interfaces with memory and postgres backends
//	services/ the ledger service and reconciliation sweep
//	httpapi/  HTTP handlers over the service
//
// Application (application.go) wires these together, defaulting any
// unconfigured store to an in-memory backend.
package app
