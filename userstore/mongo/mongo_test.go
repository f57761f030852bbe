package mongo

import (
	"context"
	"os"
	"testing"

	"github.com/MrEthical07/otpgate"
	"github.com/MrEthical07/otpgate/userstore/storetest"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// TestStore needs a running MongoDB; set OTPGATE_TEST_MONGO_URI, for example
// mongodb://localhost:27017.
func TestStore(t *testing.T) {
	uri := os.Getenv("OTPGATE_TEST_MONGO_URI")
	if uri == "" {
		t.Skip("OTPGATE_TEST_MONGO_URI not set")
	}

	storetest.Run(t, func(t *testing.T) otpgate.UserDirectory {
		ctx := context.Background()
		// A fresh database per subtest keeps the unique index clean.
		cfg := Config{DBName: "otpgate_test_" + uuid.NewString()[:8]}

		s, client, err := Connect(ctx, uri, cfg)
		require.NoError(t, err)
		t.Cleanup(func() {
			_ = client.Database(cfg.DBName).Drop(ctx)
			_ = client.Disconnect(ctx)
		})
		return s
	})
}

func TestNewPanicsWithoutClient(t *testing.T) {
	assert.Panics(t, func() { New(nil, Config{}) })
}
