package service

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"mailsink/backend/internal/domain"
	"mailsink/backend/internal/logger"
	"mailsink/backend/internal/monitoring"
	"mailsink/backend/internal/relay"
	"mailsink/backend/internal/storage/memory"
)

// 指标走全局注册表，整个测试进程只能构造一次。
var testMetrics = monitoring.NewMetrics()

func TestServiceMetrics(t *testing.T) {
	store := memory.NewStore()

	t.Run("地址创建与复用计数", func(t *testing.T) {
		svc := NewAddressService(store, newAddressConfig())
		svc.SetMetrics(testMetrics)

		createdBefore := testutil.ToFloat64(testMetrics.AddressesCreated)
		reusedBefore := testutil.ToFloat64(testMetrics.AddressesReused)

		input := CreateAddressInput{Prefix: "metered", Domain: "mailsink.dev"}

		first, err := svc.CreateOrReuse(input)
		require.NoError(t, err)
		assert.Equal(t, createdBefore+1, testutil.ToFloat64(testMetrics.AddressesCreated))
		assert.Equal(t, reusedBefore, testutil.ToFloat64(testMetrics.AddressesReused))

		second, err := svc.CreateOrReuse(input)
		require.NoError(t, err)
		assert.Equal(t, first.ID, second.ID)
		assert.Equal(t, createdBefore+1, testutil.ToFloat64(testMetrics.AddressesCreated))
		assert.Equal(t, reusedBefore+1, testutil.ToFloat64(testMetrics.AddressesReused))
	})

	t.Run("退化解析计数", func(t *testing.T) {
		address := &domain.Address{
			ID:        "addr-metrics",
			Email:     "metrics@mailsink.dev",
			DomainID:  "mailsink.dev",
			CreatedAt: time.Now(),
			ExpiresAt: time.Now().Add(time.Hour),
		}
		require.NoError(t, store.CreateAddress(address))

		svc := NewIngestService(relay.NewVerifier(testSigningKey, false), store, store, logger.NewNop())
		svc.SetMetrics(testMetrics)

		fallbacksBefore := testutil.ToFloat64(testMetrics.ParseFallbacks)

		_, err := svc.IngestDirect(&relay.InboundMail{
			Recipient: "metrics@mailsink.dev",
			Sender:    "alice@example.com",
			Subject:   "plain",
			TextBody:  "not mime at all",
		})
		require.NoError(t, err)
		assert.Equal(t, fallbacksBefore, testutil.ToFloat64(testMetrics.ParseFallbacks))

		_, err = svc.IngestDirect(&relay.InboundMail{
			Recipient:     "metrics@mailsink.dev",
			Sender:        "alice@example.com",
			Subject:       "garbled",
			TextBody:      "\x00\x01 raw bytes",
			ParseDegraded: true,
		})
		require.NoError(t, err)
		assert.Equal(t, fallbacksBefore+1, testutil.ToFloat64(testMetrics.ParseFallbacks))
	})
}
