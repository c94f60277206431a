package migrate_test

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/angelmondragon/voucherz-backend/pkg/migrate"
)

func readMigration(t *testing.T, suffix string) string {
	t.Helper()
	matches, err := filepath.Glob(filepath.Join("migrations", "*_"+suffix+".sql"))
	require.NoError(t, err)
	require.Len(t, matches, 1, "expected exactly one %s migration", suffix)

	data, err := os.ReadFile(matches[0])
	require.NoError(t, err)
	return string(data)
}

func TestMigrationsDirIsValid(t *testing.T) {
	require.NoError(t, migrate.ValidateDir("migrations"))
}

func TestVoucherMigrationContainsConstraints(t *testing.T) {
	content := readMigration(t, "create_vouchers")

	for _, sub := range []string{
		"CREATE TABLE IF NOT EXISTS vouchers",
		"id bigserial PRIMARY KEY",
		"FOREIGN KEY (campaign_id) REFERENCES campaigns(id)",
		"(status = 'in_stock') = (owner_id IS NULL AND validation_code_hash IS NULL)",
		"CREATE UNIQUE INDEX IF NOT EXISTS ux_vouchers_short_code ON vouchers (short_code)",
		"(campaign_id, status, created_at)",
		"DROP TABLE IF EXISTS vouchers",
	} {
		assert.Contains(t, content, sub)
	}
}

func TestCampaignMigrationGuardsCapacity(t *testing.T) {
	content := readMigration(t, "create_campaigns")

	assert.Contains(t, content, "bought_vouchers_count <= vouchers_total_count")
	assert.Contains(t, content, "price numeric(12,2) NOT NULL")
	assert.Contains(t, content, "DROP TABLE IF EXISTS campaigns")
}

func TestOutboxMigrationDedupesEvents(t *testing.T) {
	content := readMigration(t, "create_outbox")

	assert.Contains(t, content, "ux_outbox_events_event_aggregate ON outbox_events (event_type, aggregate_type, aggregate_id)")
	assert.Contains(t, content, "aggregate_id text NOT NULL")
	assert.Contains(t, content, "CREATE TABLE IF NOT EXISTS outbox_dlq")
}

func TestEnumMigrationMatchesVoucherStatuses(t *testing.T) {
	content := readMigration(t, "create_enums")
	assert.Contains(t, content, "CREATE TYPE voucher_status_enum AS ENUM ('in_stock', 'reserved', 'sold', 'used')")
}

func TestLostSalesMigrationIsUniquePerPayment(t *testing.T) {
	content := readMigration(t, "create_lost_sales")
	assert.Contains(t, content, "ux_lost_sales_payment_request_id ON lost_sales (payment_request_id)")
	assert.Contains(t, content, "DROP TABLE IF EXISTS lost_sales")
}
