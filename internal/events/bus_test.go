package events

import "testing"

func TestEmitOrderPreserved(t *testing.T) {
	b := New()
	ch := b.Subscribe(Subscription{Type: TablePersist, Database: "db", Table: "t"})
	for i := 0; i < 5; i++ {
		b.Emit(Event{Type: TablePersist, Database: "db", Table: "t", Payload: i})
	}
	for i := 0; i < 5; i++ {
		ev := <-ch
		if ev.Payload.(int) != i {
			t.Fatalf("event %d out of order: got payload %v", i, ev.Payload)
		}
	}
}

func TestEmitUnionSemantics(t *testing.T) {
	b := New()
	exact := b.Subscribe(Subscription{Type: TablePersist, Database: "db", Table: "t"})
	dbWide := b.Subscribe(Subscription{Type: TablePersist, Database: "db"})
	global := b.Subscribe(Subscription{Type: TablePersist})

	b.Emit(Event{Type: TablePersist, Database: "db", Table: "t"})

	for name, ch := range map[string]<-chan Event{"exact": exact, "db-wide": dbWide, "global": global} {
		select {
		case <-ch:
		default:
			t.Fatalf("%s subscription did not receive matching event", name)
		}
	}
}

func TestEmitDoesNotCrossDatabases(t *testing.T) {
	b := New()
	other := b.Subscribe(Subscription{Type: TablePersist, Database: "other"})
	b.Emit(Event{Type: TablePersist, Database: "db", Table: "t"})
	select {
	case <-other:
		t.Fatal("subscription for a different database should not receive the event")
	default:
	}
}

func TestEmitSlowConsumerDropsInsteadOfBlocking(t *testing.T) {
	b := New()
	b.Subscribe(Subscription{Type: TableUpdate})
	for i := 0; i < BufferSize+10; i++ {
		b.Emit(Event{Type: TableUpdate})
	}
	// must not deadlock or panic; that's the assertion.
}
