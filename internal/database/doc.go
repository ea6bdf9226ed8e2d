// Package database owns the PostgreSQL connection pool, the embedded schema
// migrations and the translation of driver errors into the shared error kinds.
//
// Repositories never inspect driver errors themselves beyond SQLSTATE codes
// they translate to business errors; everything else goes through Classify so
// that an unreachable server surfaces as models.ErrStoreUnavailable.
package database
