package smtp

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestConnectionLimiter(t *testing.T) {
	t.Run("并发连接数上限", func(t *testing.T) {
		l := NewConnectionLimiter(2, 100)

		assert.True(t, l.Acquire())
		assert.True(t, l.Acquire())
		assert.False(t, l.Acquire())
		assert.Equal(t, 2, l.Current())

		l.Release()
		assert.True(t, l.Acquire())
	})

	t.Run("新建连接速率上限", func(t *testing.T) {
		// 桶容量 2，耗尽后立即拒绝
		l := NewConnectionLimiter(100, 2)

		assert.True(t, l.Acquire())
		assert.True(t, l.Acquire())
		assert.False(t, l.Acquire())
	})

	t.Run("重复释放不产生负计数", func(t *testing.T) {
		l := NewConnectionLimiter(1, 100)

		assert.True(t, l.Acquire())
		l.Release()
		l.Release()
		assert.Equal(t, 0, l.Current())
		assert.True(t, l.Acquire())
	})
}
