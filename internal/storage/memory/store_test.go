package memory

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"mailsink/backend/internal/domain"
)

func newLiveAddress(email string, ttl time.Duration) *domain.Address {
	now := time.Now().UTC()
	return &domain.Address{
		ID:        uuid.NewString(),
		Email:     email,
		CreatedAt: now,
		ExpiresAt: now.Add(ttl),
	}
}

func TestCreateAddress(t *testing.T) {
	t.Run("创建后可按邮箱查到", func(t *testing.T) {
		store := NewStore()
		addr := newLiveAddress("abc123@mailsink.dev", time.Hour)
		require.NoError(t, store.CreateAddress(addr))

		got, err := store.GetLiveAddressByEmail("abc123@mailsink.dev")
		require.NoError(t, err)
		assert.Equal(t, addr.ID, got.ID)
	})

	t.Run("重复邮箱返回冲突错误", func(t *testing.T) {
		store := NewStore()
		require.NoError(t, store.CreateAddress(newLiveAddress("dup@mailsink.dev", time.Hour)))

		err := store.CreateAddress(newLiveAddress("dup@mailsink.dev", time.Hour))
		assert.ErrorIs(t, err, domain.ErrAddressExists)
	})

	t.Run("过期残留不阻止同名新地址", func(t *testing.T) {
		store := NewStore()
		stale := newLiveAddress("stale@mailsink.dev", time.Hour)
		stale.ExpiresAt = time.Now().Add(-time.Minute)
		require.NoError(t, store.CreateAddress(stale))

		fresh := newLiveAddress("stale@mailsink.dev", time.Hour)
		require.NoError(t, store.CreateAddress(fresh))

		got, err := store.GetLiveAddressByEmail("stale@mailsink.dev")
		require.NoError(t, err)
		assert.Equal(t, fresh.ID, got.ID)
	})
}

func TestGetLiveAddressByEmail(t *testing.T) {
	t.Run("已过期地址视为不存在", func(t *testing.T) {
		store := NewStore()
		addr := newLiveAddress("gone@mailsink.dev", time.Hour)
		addr.ExpiresAt = time.Now().Add(-time.Second)
		require.NoError(t, store.CreateAddress(addr))

		_, err := store.GetLiveAddressByEmail("gone@mailsink.dev")
		assert.ErrorIs(t, err, domain.ErrAddressNotFound)
	})

	t.Run("未知邮箱返回未找到", func(t *testing.T) {
		store := NewStore()
		_, err := store.GetLiveAddressByEmail("nobody@mailsink.dev")
		assert.ErrorIs(t, err, domain.ErrAddressNotFound)
	})
}

func TestListAddressesByOwnerID(t *testing.T) {
	store := NewStore()
	owner := uuid.NewString()

	first := newLiveAddress("first@mailsink.dev", time.Hour)
	first.OwnerID = &owner
	first.CreatedAt = time.Now().Add(-2 * time.Hour)
	require.NoError(t, store.CreateAddress(first))

	second := newLiveAddress("second@mailsink.dev", time.Hour)
	second.OwnerID = &owner
	require.NoError(t, store.CreateAddress(second))

	// 其他用户与匿名地址不应出现在结果里
	other := uuid.NewString()
	third := newLiveAddress("third@mailsink.dev", time.Hour)
	third.OwnerID = &other
	require.NoError(t, store.CreateAddress(third))
	require.NoError(t, store.CreateAddress(newLiveAddress("anon@mailsink.dev", time.Hour)))

	list := store.ListAddressesByOwnerID(owner)
	require.Len(t, list, 2)
	assert.Equal(t, "second@mailsink.dev", list[0].Email, "按创建时间倒序")
	assert.Equal(t, "first@mailsink.dev", list[1].Email)
}

func TestSaveMessageWithAttachments(t *testing.T) {
	t.Run("邮件与附件整体写入", func(t *testing.T) {
		store := NewStore()
		addr := newLiveAddress("inbox@mailsink.dev", time.Hour)
		require.NoError(t, store.CreateAddress(addr))

		msg := &domain.Message{
			ID:         uuid.NewString(),
			AddressID:  addr.ID,
			Subject:    "hello",
			ReceivedAt: time.Now().UTC(),
		}
		atts := []*domain.Attachment{
			{ID: uuid.NewString(), Filename: "a.png", ContentType: "image/png", Content: []byte{1, 2}},
			{ID: uuid.NewString(), Filename: "b.pdf", ContentType: "application/pdf", Content: []byte{3}},
		}
		require.NoError(t, store.SaveMessageWithAttachments(msg, atts))

		got, err := store.GetMessage(addr.ID, msg.ID)
		require.NoError(t, err)
		assert.Len(t, got.Attachments, 2)
		for _, att := range got.Attachments {
			assert.Equal(t, msg.ID, att.MessageID)
		}
	})

	t.Run("附件校验失败时邮件不落库", func(t *testing.T) {
		store := NewStore()
		addr := newLiveAddress("atomic@mailsink.dev", time.Hour)
		require.NoError(t, store.CreateAddress(addr))

		msg := &domain.Message{ID: uuid.NewString(), AddressID: addr.ID, ReceivedAt: time.Now()}
		bad := []*domain.Attachment{
			{ID: uuid.NewString(), Filename: "ok.png"},
			{ID: "", Filename: "broken.png"},
		}
		require.Error(t, store.SaveMessageWithAttachments(msg, bad))

		list, err := store.ListMessages(addr.ID)
		require.NoError(t, err)
		assert.Empty(t, list, "失败写入不应留下部分数据")
	})

	t.Run("地址不存在时拒绝写入", func(t *testing.T) {
		store := NewStore()
		msg := &domain.Message{ID: uuid.NewString(), AddressID: uuid.NewString()}
		assert.Error(t, store.SaveMessageWithAttachments(msg, nil))
	})
}

func TestListMessages(t *testing.T) {
	store := NewStore()
	addr := newLiveAddress("order@mailsink.dev", time.Hour)
	require.NoError(t, store.CreateAddress(addr))

	base := time.Now().UTC()
	for i, subject := range []string{"oldest", "middle", "newest"} {
		msg := &domain.Message{
			ID:         uuid.NewString(),
			AddressID:  addr.ID,
			Subject:    subject,
			ReceivedAt: base.Add(time.Duration(i) * time.Minute),
		}
		require.NoError(t, store.SaveMessageWithAttachments(msg, nil))
	}

	list, err := store.ListMessages(addr.ID)
	require.NoError(t, err)
	require.Len(t, list, 3)
	assert.Equal(t, "newest", list[0].Subject)
	assert.Equal(t, "oldest", list[2].Subject)
}

func TestUpdateMessageFlags(t *testing.T) {
	store := NewStore()
	addr := newLiveAddress("flags@mailsink.dev", time.Hour)
	require.NoError(t, store.CreateAddress(addr))

	msg := &domain.Message{ID: uuid.NewString(), AddressID: addr.ID, ReceivedAt: time.Now()}
	require.NoError(t, store.SaveMessageWithAttachments(msg, nil))

	read := true
	starred := true
	require.NoError(t, store.UpdateMessageFlags(addr.ID, msg.ID, domain.MessageFlags{IsRead: &read, IsStarred: &starred}))

	got, err := store.GetMessage(addr.ID, msg.ID)
	require.NoError(t, err)
	assert.True(t, got.IsRead)
	assert.True(t, got.IsStarred)
	assert.False(t, got.IsArchived, "未指定的标记保持原值")

	t.Run("邮件不存在时返回未找到", func(t *testing.T) {
		err := store.UpdateMessageFlags(addr.ID, uuid.NewString(), domain.MessageFlags{IsRead: &read})
		assert.ErrorIs(t, err, domain.ErrMessageNotFound)
	})
}

func TestDeleteExpiredAddresses(t *testing.T) {
	store := NewStore()

	live := newLiveAddress("live@mailsink.dev", time.Hour)
	require.NoError(t, store.CreateAddress(live))

	expired := newLiveAddress("expired@mailsink.dev", time.Hour)
	expired.ExpiresAt = time.Now().Add(-time.Minute)
	require.NoError(t, store.CreateAddress(expired))

	msg := &domain.Message{ID: uuid.NewString(), AddressID: expired.ID, ReceivedAt: time.Now()}
	att := &domain.Attachment{ID: uuid.NewString(), Filename: "x.png"}
	require.NoError(t, store.SaveMessageWithAttachments(msg, []*domain.Attachment{att}))

	n, err := store.DeleteExpiredAddresses()
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	_, err = store.GetAddress(expired.ID)
	assert.ErrorIs(t, err, domain.ErrAddressNotFound)
	_, err = store.GetAttachment(msg.ID, att.ID)
	assert.ErrorIs(t, err, domain.ErrAttachmentNotFound, "附件随地址级联删除")

	_, err = store.GetAddress(live.ID)
	assert.NoError(t, err, "未过期地址不受影响")
}

func TestRateLimit(t *testing.T) {
	store := NewStore()

	t.Run("窗口内计数递增", func(t *testing.T) {
		for i := int64(1); i <= 3; i++ {
			n, err := store.IncrementRateLimit("ip:1.2.3.4", time.Minute)
			require.NoError(t, err)
			assert.Equal(t, i, n)
		}
	})

	t.Run("窗口过期后重新计数", func(t *testing.T) {
		n, err := store.IncrementRateLimit("ip:5.6.7.8", time.Millisecond)
		require.NoError(t, err)
		require.EqualValues(t, 1, n)

		time.Sleep(5 * time.Millisecond)
		n, err = store.IncrementRateLimit("ip:5.6.7.8", time.Minute)
		require.NoError(t, err)
		assert.EqualValues(t, 1, n)
	})
}

func TestUserRepository(t *testing.T) {
	store := NewStore()
	user := &domain.User{ID: uuid.NewString(), Email: "u@example.com", Username: "u", CreatedAt: time.Now()}
	require.NoError(t, store.CreateUser(user))

	t.Run("邮箱重复返回已占用", func(t *testing.T) {
		err := store.CreateUser(&domain.User{ID: uuid.NewString(), Email: "u@example.com"})
		assert.ErrorIs(t, err, domain.ErrEmailTaken)
	})

	t.Run("按邮箱查找", func(t *testing.T) {
		got, err := store.GetUserByEmail("u@example.com")
		require.NoError(t, err)
		assert.Equal(t, user.ID, got.ID)
	})

	t.Run("更新最近登录时间", func(t *testing.T) {
		require.NoError(t, store.UpdateLastLogin(user.ID))
		got, err := store.GetUserByID(user.ID)
		require.NoError(t, err)
		assert.NotNil(t, got.LastLoginAt)
	})
}
