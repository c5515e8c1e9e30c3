package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	t.Setenv("APP_ENV", "dev")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, ":8080", cfg.HTTPAddr)
	assert.Equal(t, StorageMemory, cfg.Storage)
	assert.Equal(t, "payments.settlements.v1", cfg.SettlementTopic)
	assert.Equal(t, 10*time.Second, cfg.ProcessorTimeout)
	assert.Equal(t, 15*time.Minute, cfg.ReconcileAfter)
	assert.True(t, cfg.ProcessorSandbox)
	assert.Equal(t, []time.Duration{time.Second, 5 * time.Second, 30 * time.Second}, cfg.RetryBackoff)
	assert.Equal(t, "VND", cfg.FeePolicy.Currency)
	assert.NotEmpty(t, cfg.JWTSecret)
}

func TestLoadMongoRequiresURI(t *testing.T) {
	t.Setenv("STORAGE", "mongo")
	t.Setenv("MONGO_URI", "")

	_, err := Load()
	require.ErrorContains(t, err, "MONGO_URI")

	t.Setenv("MONGO_URI", "mongodb://localhost:27017")
	t.Setenv("KAFKA_BROKERS", "k1:9092, k2:9092,")
	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, []string{"k1:9092", "k2:9092"}, cfg.KafkaBrokers)
}

func TestLoadRejectsBadValues(t *testing.T) {
	cases := map[string]string{
		"PAYMENT_PROCESSOR_TIMEOUT": "soon",
		"S3_USE_SSL":                "maybe",
		"RECONCILE_BATCH":           "-3",
		"STORAGE":                   "postgres",
	}
	for key, value := range cases {
		t.Run(key, func(t *testing.T) {
			t.Setenv(key, value)
			_, err := Load()
			require.Error(t, err)
		})
	}
}

func TestLoadProductionNeedsSecrets(t *testing.T) {
	t.Setenv("APP_ENV", "prod")
	t.Setenv("JWT_SECRET", "")
	_, err := Load()
	require.ErrorContains(t, err, "JWT_SECRET")

	t.Setenv("JWT_SECRET", "s3cret")
	t.Setenv("PAYMENT_PROCESSOR_SANDBOX", "false")
	_, err = Load()
	require.ErrorContains(t, err, "PAYMENT_PROCESSOR_URL")
}

func TestLoadFeePolicyFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "fees.yaml")
	require.NoError(t, os.WriteFile(path, []byte("cleaning_fee: 200000\nfree_cancellation_window: 2h\n"), 0o600))
	t.Setenv("FEE_POLICY_FILE", path)

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, int64(200_000), cfg.FeePolicy.CleaningFee)
	assert.Equal(t, 2*time.Hour, cfg.FeePolicy.FreeCancellationWindow)
	assert.Equal(t, int64(300_000), cfg.FeePolicy.DeodorizationFee)

	require.NoError(t, os.WriteFile(path, []byte("long_lead_percent: 150\n"), 0o600))
	_, err = LoadFeePolicy(path)
	require.Error(t, err)
}
