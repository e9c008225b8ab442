package websocket

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func newTestClient(id string, buffer int) *Client {
	return &Client{
		ID:         id,
		send:       make(chan []byte, buffer),
		addressIDs: make(map[string]bool),
	}
}

func subscribe(h *Hub, addressID string, c *Client) {
	h.mu.Lock()
	if h.addresses[addressID] == nil {
		h.addresses[addressID] = make(map[string]*Client)
	}
	h.addresses[addressID][c.ID] = c
	c.addressIDs[addressID] = true
	h.mu.Unlock()
}

func TestBroadcastToAddress(t *testing.T) {
	h := NewHub(nil, nil, nil, nil)

	t.Run("只投递给订阅该地址的客户端", func(t *testing.T) {
		subscriber := newTestClient("sub", 1)
		bystander := newTestClient("other", 1)
		subscribe(h, "addr-1", subscriber)
		subscribe(h, "addr-2", bystander)

		h.broadcastToAddress("addr-1", &Message{
			Type:      MessageTypeNewMail,
			AddressID: "addr-1",
			Timestamp: time.Now(),
		})

		select {
		case data := <-subscriber.send:
			assert.Contains(t, string(data), `"new_mail"`)
		default:
			t.Fatal("subscriber received nothing")
		}
		assert.Empty(t, bystander.send)
	})

	t.Run("发送缓冲满的客户端被跳过", func(t *testing.T) {
		blocked := newTestClient("blocked", 1)
		blocked.send <- []byte("stale")
		subscribe(h, "addr-full", blocked)

		h.broadcastToAddress("addr-full", &Message{Type: MessageTypePing, Timestamp: time.Now()})

		// 旧消息还在，广播没有阻塞也没有覆盖
		assert.Equal(t, "stale", string(<-blocked.send))
		assert.Empty(t, blocked.send)
	})
}

func TestBroadcastDuringSubscriptionChurn(t *testing.T) {
	h := NewHub(nil, nil, nil, nil)

	done := make(chan struct{})
	var wg sync.WaitGroup

	// 订阅表持续增删，同时广播在迭代快照
	wg.Add(1)
	go func() {
		defer wg.Done()
		for i := 0; ; i++ {
			select {
			case <-done:
				return
			default:
			}
			c := newTestClient("churn", 4)
			subscribe(h, "addr-churn", c)
			h.mu.Lock()
			delete(h.addresses["addr-churn"], c.ID)
			h.mu.Unlock()
		}
	}()

	msg := &Message{Type: MessageTypeNewMail, AddressID: "addr-churn", Timestamp: time.Now()}
	for i := 0; i < 1000; i++ {
		h.broadcastToAddress("addr-churn", msg)
	}

	close(done)
	wg.Wait()
}
