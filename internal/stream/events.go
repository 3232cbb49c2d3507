package stream

import (
	"sync"

	"github.com/google/uuid"
)

// subscriber は1件の購読を表す
type subscriber struct {
	id      string
	handler Handler
}

// EventBus はイベントの型付きpublish/subscribeチャンネル
// 発行は購読順の同期的なファンアウトで、履歴は保持しない
type EventBus struct {
	mu          sync.Mutex
	subscribers map[EventType][]subscriber
}

// NewEventBus は新しいEventBusを作成する
func NewEventBus() *EventBus {
	return &EventBus{
		subscribers: make(map[EventType][]subscriber),
	}
}

// Subscribe は指定イベント種別の購読を登録し、購読IDを返す
func (b *EventBus) Subscribe(eventType EventType, handler Handler) string {
	b.mu.Lock()
	defer b.mu.Unlock()

	id := uuid.New().String()
	b.subscribers[eventType] = append(b.subscribers[eventType], subscriber{
		id:      id,
		handler: handler,
	})

	return id
}

// Unsubscribe は購読IDに対応する購読を解除する
// 存在しないIDは何もしない
func (b *EventBus) Unsubscribe(id string) {
	b.mu.Lock()
	defer b.mu.Unlock()

	for eventType, subs := range b.subscribers {
		for i, sub := range subs {
			if sub.id == id {
				b.subscribers[eventType] = append(subs[:i:i], subs[i+1:]...)
				return
			}
		}
	}
}

// Emit はイベントを現在の購読者全員へ同期的に配信する
// 購読者がいない場合は何もしない
// ハンドラ内からのSubscribe/Unsubscribeが配信中のファンアウトを
// 壊さないよう、配信前に購読者一覧のスナップショットを取る
func (b *EventBus) Emit(event Event) {
	b.mu.Lock()
	subs := b.subscribers[event.Type]
	snapshot := make([]subscriber, len(subs))
	copy(snapshot, subs)
	b.mu.Unlock()

	for _, sub := range snapshot {
		sub.handler(event)
	}
}
