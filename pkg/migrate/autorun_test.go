package migrate

import (
	"io/fs"
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/angelmondragon/voucherz-backend/pkg/config"
	"github.com/angelmondragon/voucherz-backend/pkg/db"
)

func TestEmbeddedMatchesMigrationsDir(t *testing.T) {
	embeddedNames, err := fs.Glob(Embedded(), "*.sql")
	require.NoError(t, err)

	onDisk, err := fs.Glob(os.DirFS("migrations"), "*.sql")
	require.NoError(t, err)

	assert.NotEmpty(t, embeddedNames)
	require.NoError(t, Validate(Embedded()))
	assert.Equal(t, onDisk, embeddedNames)
}

func TestAutoRunEnabled(t *testing.T) {
	base := func() *config.Config {
		cfg := &config.Config{}
		cfg.App.Env = config.AppEnvDev
		cfg.FeatureFlags.AutoMigrate = true
		cfg.DB.Driver = db.DriverPostgres
		return cfg
	}

	assert.True(t, autoRunEnabled(base()))

	prod := base()
	prod.App.Env = config.AppEnvProd
	assert.False(t, autoRunEnabled(prod))

	off := base()
	off.FeatureFlags.AutoMigrate = false
	assert.False(t, autoRunEnabled(off))

	sqlite := base()
	sqlite.DB.Driver = db.DriverSQLite
	assert.False(t, autoRunEnabled(sqlite))
}
