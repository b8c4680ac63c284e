// Package db embeds the PostgreSQL schema.
package db

import _ "embed"

// Schema creates the counter, customer, order, ledger and intent tables. Every
// statement is idempotent.
//
//go:embed migrations/001_schema.sql
var Schema string
