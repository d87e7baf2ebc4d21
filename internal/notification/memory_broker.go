package notification

import (
	"context"
	"log/slog"
	"sync"
)

// subscriberBuffer は購読者ごとのチャネルバッファ長。
const subscriberBuffer = 16

// MemoryBroker はプロセス内でイベントを配信するBroker。
// REDIS_URLが未設定の単一インスタンス構成で使用する。
type MemoryBroker struct {
	mu     sync.Mutex
	subs   map[string]map[int]chan Event
	nextID int
	logger *slog.Logger
}

// NewMemoryBroker はMemoryBrokerを生成する。
func NewMemoryBroker(logger *slog.Logger) *MemoryBroker {
	return &MemoryBroker{
		subs:   make(map[string]map[int]chan Event),
		logger: logger,
	}
}

// Publish は購読者へイベントを送る。バッファが満杯の購読者には送らない。
func (b *MemoryBroker) Publish(_ context.Context, userID string, ev Event) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	for id, ch := range b.subs[userID] {
		select {
		case ch <- ev:
		default:
			b.logger.Warn("購読者のバッファが満杯のためイベントを破棄しました",
				slog.String("user_id", userID),
				slog.Int("subscriber", id),
			)
		}
	}
	return nil
}

// Subscribe はユーザーのトピックを購読する。
func (b *MemoryBroker) Subscribe(_ context.Context, userID string) (<-chan Event, func(), error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	ch := make(chan Event, subscriberBuffer)
	id := b.nextID
	b.nextID++
	if b.subs[userID] == nil {
		b.subs[userID] = make(map[int]chan Event)
	}
	b.subs[userID][id] = ch

	var once sync.Once
	cancel := func() {
		once.Do(func() {
			b.mu.Lock()
			defer b.mu.Unlock()
			delete(b.subs[userID], id)
			if len(b.subs[userID]) == 0 {
				delete(b.subs, userID)
			}
			close(ch)
		})
	}
	return ch, cancel, nil
}

// compile-time interface check
var _ Broker = (*MemoryBroker)(nil)
