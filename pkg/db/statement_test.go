package db

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestIdempotentInsertSQLKeepsOnConflictForPostgres(t *testing.T) {
	query := `INSERT INTO invoices (id, tenant_id) VALUES (?, ?)
		 ON CONFLICT (tenant_id, billing_month) DO NOTHING`

	assert.Equal(t, query, IdempotentInsertSQL("postgres", query))
	assert.Equal(t, query, IdempotentInsertSQL("sqlite", query))
}

func TestIdempotentInsertSQLRewritesForMySQL(t *testing.T) {
	query := `INSERT INTO proration_events (id, checksum) VALUES (?, ?)
		ON CONFLICT (checksum) DO NOTHING`

	got := IdempotentInsertSQL("mysql", query)
	assert.Equal(t, `INSERT IGNORE INTO proration_events (id, checksum) VALUES (?, ?)`, got)
	assert.NotContains(t, got, "ON CONFLICT")
}
