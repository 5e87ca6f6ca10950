// Package db embeds the database schema and seed data.
package db

import _ "embed"

// Schema contains the idempotent DDL for all application tables.
//
//go:embed migrations/001_schema.sql
var Schema string

// SeedProducts is the default product catalog as a JSON array of
// {name, price, stock} objects.
//
//go:embed seed/products.json
var SeedProducts []byte
