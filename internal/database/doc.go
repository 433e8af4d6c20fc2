// Package database manages the PostgreSQL pool behind the postgres
// directory backend.
package database
