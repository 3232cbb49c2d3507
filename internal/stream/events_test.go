package stream

import (
	"testing"
)

func TestEventBus_SubscribeAndEmit(t *testing.T) {
	bus := NewEventBus()

	var received []Event
	bus.Subscribe(EventFrame, func(e Event) {
		received = append(received, e)
	})

	bus.Emit(Event{Type: EventFrame, DeviceID: "/dev/video0", Data: []byte{0x01}})

	if len(received) != 1 {
		t.Fatalf("Expected 1 event, got %d", len(received))
	}
	if received[0].DeviceID != "/dev/video0" {
		t.Errorf("Expected device /dev/video0, got %s", received[0].DeviceID)
	}
}

func TestEventBus_FanoutInAttachmentOrder(t *testing.T) {
	// 複数の購読者には登録順で配信されること
	bus := NewEventBus()

	var order []int
	bus.Subscribe(EventStreamStarted, func(Event) { order = append(order, 1) })
	bus.Subscribe(EventStreamStarted, func(Event) { order = append(order, 2) })
	bus.Subscribe(EventStreamStarted, func(Event) { order = append(order, 3) })

	bus.Emit(Event{Type: EventStreamStarted, DeviceID: "/dev/video0"})

	if len(order) != 3 {
		t.Fatalf("Expected 3 deliveries, got %d", len(order))
	}
	for i, v := range order {
		if v != i+1 {
			t.Errorf("Delivery order mismatch at %d: got %d", i, v)
		}
	}
}

func TestEventBus_EmitWithoutSubscribersIsNoop(t *testing.T) {
	bus := NewEventBus()

	// 購読者ゼロでの発行はパニックせず何も起きない
	bus.Emit(Event{Type: EventError, Kind: ErrorKindStart, Detail: "test"})
}

func TestEventBus_TypeFiltering(t *testing.T) {
	// 購読した種別のイベントのみが届くこと
	bus := NewEventBus()

	var frames, errors int
	bus.Subscribe(EventFrame, func(Event) { frames++ })
	bus.Subscribe(EventError, func(Event) { errors++ })

	bus.Emit(Event{Type: EventFrame, DeviceID: "/dev/video0"})
	bus.Emit(Event{Type: EventFrame, DeviceID: "/dev/video0"})
	bus.Emit(Event{Type: EventError, Kind: ErrorKindFFmpeg})

	if frames != 2 {
		t.Errorf("Expected 2 frame events, got %d", frames)
	}
	if errors != 1 {
		t.Errorf("Expected 1 error event, got %d", errors)
	}
}

func TestEventBus_Unsubscribe(t *testing.T) {
	bus := NewEventBus()

	var count int
	id := bus.Subscribe(EventFrame, func(Event) { count++ })

	bus.Emit(Event{Type: EventFrame})
	bus.Unsubscribe(id)
	bus.Emit(Event{Type: EventFrame})

	if count != 1 {
		t.Errorf("Expected 1 delivery after unsubscribe, got %d", count)
	}

	// 存在しないIDの解除は何も起きない
	bus.Unsubscribe("no-such-id")
}

func TestEventBus_UnsubscribeDuringDispatch(t *testing.T) {
	// ハンドラ内からの購読解除が進行中のファンアウトを壊さないこと
	bus := NewEventBus()

	var ids [3]string
	var delivered [3]int

	ids[0] = bus.Subscribe(EventFrame, func(Event) {
		delivered[0]++
		// 自分自身と次の購読者を解除する
		bus.Unsubscribe(ids[0])
		bus.Unsubscribe(ids[1])
	})
	ids[1] = bus.Subscribe(EventFrame, func(Event) { delivered[1]++ })
	ids[2] = bus.Subscribe(EventFrame, func(Event) { delivered[2]++ })

	// 配信前スナップショットにより、この回は3者全員に届く
	bus.Emit(Event{Type: EventFrame})
	if delivered[0] != 1 || delivered[1] != 1 || delivered[2] != 1 {
		t.Fatalf("Expected all subscribers to receive first emit, got %v", delivered)
	}

	// 2回目は解除済みの2者には届かない
	bus.Emit(Event{Type: EventFrame})
	if delivered[0] != 1 || delivered[1] != 1 {
		t.Errorf("Unsubscribed handlers should not receive events, got %v", delivered)
	}
	if delivered[2] != 2 {
		t.Errorf("Expected remaining subscriber to receive second emit, got %d", delivered[2])
	}
}

func TestEventBus_SubscribeDuringDispatch(t *testing.T) {
	// ハンドラ内からの購読追加は次回の発行から有効になること
	bus := NewEventBus()

	var late int
	bus.Subscribe(EventFrame, func(Event) {
		bus.Subscribe(EventFrame, func(Event) { late++ })
	})

	bus.Emit(Event{Type: EventFrame})
	if late != 0 {
		t.Errorf("New subscriber should not receive the in-flight event, got %d", late)
	}

	bus.Emit(Event{Type: EventFrame})
	if late != 1 {
		t.Errorf("Expected new subscriber to receive second emit, got %d", late)
	}
}
