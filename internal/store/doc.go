// Package store defines the domain model and persistence interfaces for the
// service layer. Implementations live in other packages (postgres, memory);
// this package must not import database drivers or concrete clients.
package store
