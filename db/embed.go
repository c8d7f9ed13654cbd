// Package db embeds the SQL schema shipped with the service.
package db

import _ "embed"

// Schema holds the full idempotent DDL for stores, events, offer
// inventory and coupons. RunMigrations applies it at startup.
//
//go:embed migrations/001_schema.sql
var Schema string
