package store

import (
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/stretchr/testify/assert"
)

var (
	_ TreeRepository      = (*FirestoreRepository)(nil)
	_ AdoptionRepository  = (*FirestoreRepository)(nil)
	_ UserRepository      = (*FirestoreRepository)(nil)
	_ CommunityRepository = (*FirestoreRepository)(nil)
	_ CheckoutRepository  = (*PostgresCheckoutRepository)(nil)
	_ OutboxRepository    = (*PostgresCheckoutRepository)(nil)
)

func TestTruncateReason(t *testing.T) {
	assert.Equal(t, "short", truncateReason("short"))

	long := strings.Repeat("x", 2500)
	assert.Len(t, truncateReason(long), 2000)

	// "₹" is three bytes; byte 2000 falls inside a rune.
	rupees := "x" + strings.Repeat("₹", 1000)
	got := truncateReason(rupees)
	assert.True(t, utf8.ValidString(got))
	assert.Len(t, got, 1999)
	assert.True(t, strings.HasPrefix(rupees, got))
}

func TestCheckoutSchemaCoversLedgerAndOutbox(t *testing.T) {
	assert.Contains(t, checkoutSchema, "CREATE TABLE IF NOT EXISTS checkout_attempts")
	assert.Contains(t, checkoutSchema, "idempotency_key TEXT NOT NULL UNIQUE")
	assert.Contains(t, checkoutSchema, "payment_intent_id TEXT UNIQUE")
	assert.Contains(t, checkoutSchema, "CREATE TABLE IF NOT EXISTS event_outbox")
}
