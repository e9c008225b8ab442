package service

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"mailsink/backend/internal/config"
	"mailsink/backend/internal/domain"
	"mailsink/backend/internal/storage/memory"
)

func newAddressConfig() *config.Config {
	return &config.Config{
		Address: config.AddressConfig{
			AllowedDomains:   []string{"mailsink.dev", "tmp.example.com"},
			AnonymousTTL:     48 * time.Hour,
			OwnerTTL:         1440 * time.Hour,
			PlaceholderEmail: "nope@mailsink.dev",
		},
	}
}

func TestAddressService_CreateOrReuse(t *testing.T) {
	store := memory.NewStore()
	service := NewAddressService(store, newAddressConfig())

	t.Run("创建随机地址成功", func(t *testing.T) {
		address, err := service.CreateOrReuse(CreateAddressInput{})

		require.NoError(t, err)
		assert.NotEmpty(t, address.ID)
		assert.Contains(t, address.Email, "@mailsink.dev")
		assert.Nil(t, address.OwnerID)
		assert.WithinDuration(t, time.Now().Add(48*time.Hour), address.ExpiresAt, time.Minute)
	})

	t.Run("指定前缀和域名创建成功", func(t *testing.T) {
		address, err := service.CreateOrReuse(CreateAddressInput{
			Prefix: "signup-check",
			Domain: "tmp.example.com",
		})

		require.NoError(t, err)
		assert.Equal(t, "signup-check@tmp.example.com", address.Email)
	})

	t.Run("重复请求返回同一条记录", func(t *testing.T) {
		input := CreateAddressInput{Prefix: "idempotent", Domain: "mailsink.dev"}

		first, err := service.CreateOrReuse(input)
		require.NoError(t, err)

		second, err := service.CreateOrReuse(input)
		require.NoError(t, err)

		assert.Equal(t, first.ID, second.ID)
		assert.Equal(t, first.ExpiresAt, second.ExpiresAt, "复用不应刷新过期时间")
	})

	t.Run("认证用户地址的生存时间更长", func(t *testing.T) {
		owner := "user-1"
		address, err := service.CreateOrReuse(CreateAddressInput{
			Prefix:  "owned",
			OwnerID: &owner,
		})

		require.NoError(t, err)
		assert.WithinDuration(t, time.Now().Add(1440*time.Hour), address.ExpiresAt, time.Minute)
	})

	t.Run("不允许的域名被拒绝", func(t *testing.T) {
		_, err := service.CreateOrReuse(CreateAddressInput{Domain: "evil.com"})
		assert.ErrorIs(t, err, ErrDomainNotAllowed)
	})

	t.Run("非法前缀被拒绝", func(t *testing.T) {
		for _, prefix := range []string{"with space", "quo\"te", "<angle>", ".leading"} {
			_, err := service.CreateOrReuse(CreateAddressInput{Prefix: prefix})
			assert.ErrorIs(t, err, ErrPrefixInvalid, prefix)
		}
	})
}

func TestAddressService_ConcurrentCreate(t *testing.T) {
	store := memory.NewStore()
	service := NewAddressService(store, newAddressConfig())

	input := CreateAddressInput{Prefix: "race", Domain: "mailsink.dev"}

	const workers = 16
	results := make([]*domain.Address, workers)
	errs := make([]error, workers)

	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			results[i], errs[i] = service.CreateOrReuse(input)
		}(i)
	}
	wg.Wait()

	// 并发请求全部成功并解析到同一条记录
	for i := 0; i < workers; i++ {
		require.NoError(t, errs[i])
	}
	for i := 1; i < workers; i++ {
		assert.Equal(t, results[0].ID, results[i].ID)
	}
}

func TestAddressService_PlaceholderAddress(t *testing.T) {
	store := memory.NewStore()
	service := NewAddressService(store, newAddressConfig())

	address := service.PlaceholderAddress()

	assert.Equal(t, "nope@mailsink.dev", address.Email)

	// 占位地址不落库，不能用来收信
	_, err := service.GetLiveByEmail(address.Email)
	assert.ErrorIs(t, err, domain.ErrAddressNotFound)
}

func TestAddressService_SweepExpired(t *testing.T) {
	store := memory.NewStore()
	service := NewAddressService(store, newAddressConfig())

	live, err := service.CreateOrReuse(CreateAddressInput{Prefix: "keeper"})
	require.NoError(t, err)

	stale := &domain.Address{
		ID:        "stale-id",
		Email:     "stale@mailsink.dev",
		DomainID:  "mailsink.dev",
		CreatedAt: time.Now().Add(-72 * time.Hour),
		ExpiresAt: time.Now().Add(-24 * time.Hour),
	}
	require.NoError(t, store.CreateAddress(stale))

	n, err := service.SweepExpired()
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	_, err = service.Get(live.ID)
	assert.NoError(t, err)
}
