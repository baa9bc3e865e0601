package realtime

import (
	"errors"
	"sync"
	"testing"
)

// fakeSocket records frames written to it.
type fakeSocket struct {
	mu     sync.Mutex
	frames [][]byte
	closed bool
	fail   bool
}

func (f *fakeSocket) WriteMessage(messageType int, data []byte) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.fail {
		return errors.New("write failed")
	}
	copied := make([]byte, len(data))
	copy(copied, data)
	f.frames = append(f.frames, copied)
	return nil
}

func (f *fakeSocket) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closed = true
	return nil
}

func (f *fakeSocket) received() [][]byte {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([][]byte, len(f.frames))
	copy(out, f.frames)
	return out
}

func newTestConn(userID int64) (*Conn, *fakeSocket) {
	ws := &fakeSocket{}
	return newConnWithSocket(ws, userID), ws
}

func TestJoinCreatesRoom(t *testing.T) {
	r := NewRegistry()
	a, _ := newTestConn(1)

	if got := r.Count(42); got != 0 {
		t.Fatalf("expected empty room, got %d members", got)
	}

	r.Join(42, a)
	if got := r.Count(42); got != 1 {
		t.Fatalf("expected 1 member, got %d", got)
	}
}

func TestBroadcastExcludesSender(t *testing.T) {
	r := NewRegistry()
	a, wsA := newTestConn(1)
	b, wsB := newTestConn(2)
	c, wsC := newTestConn(3)
	r.Join(42, a)
	r.Join(42, b)
	r.Join(42, c)

	r.Broadcast(42, []byte("hello"), a)

	if len(wsA.received()) != 0 {
		t.Error("sender should not receive its own broadcast")
	}
	for name, ws := range map[string]*fakeSocket{"b": wsB, "c": wsC} {
		frames := ws.received()
		if len(frames) != 1 || string(frames[0]) != "hello" {
			t.Errorf("%s: expected one 'hello' frame, got %v", name, frames)
		}
	}
}

func TestBroadcastNilExcludeReachesEveryone(t *testing.T) {
	r := NewRegistry()
	a, wsA := newTestConn(1)
	b, wsB := newTestConn(2)
	r.Join(7, a)
	r.Join(7, b)

	r.Broadcast(7, []byte("all"), nil)

	for name, ws := range map[string]*fakeSocket{"a": wsA, "b": wsB} {
		if len(ws.received()) != 1 {
			t.Errorf("%s: expected 1 frame, got %d", name, len(ws.received()))
		}
	}
}

func TestLeaveRemovesEmptyRoom(t *testing.T) {
	r := NewRegistry()
	a, _ := newTestConn(1)
	b, _ := newTestConn(2)
	r.Join(42, a)
	r.Join(42, b)

	r.Leave(42, a)
	if got := r.Count(42); got != 1 {
		t.Fatalf("expected 1 member after first leave, got %d", got)
	}

	r.Leave(42, b)
	if got := len(r.Rooms()); got != 0 {
		t.Fatalf("expected no rooms after last leave, got %d", got)
	}
}

func TestLeaveUnknownRoomIsNoop(t *testing.T) {
	r := NewRegistry()
	a, _ := newTestConn(1)
	r.Leave(99, a)
}

func TestRoomsAreIsolated(t *testing.T) {
	r := NewRegistry()
	a, wsA := newTestConn(1)
	b, wsB := newTestConn(2)
	r.Join(1, a)
	r.Join(2, b)

	r.Broadcast(1, []byte("room-1"), nil)

	if len(wsA.received()) != 1 {
		t.Error("room 1 member should receive the broadcast")
	}
	if len(wsB.received()) != 0 {
		t.Error("room 2 member should not receive room 1 traffic")
	}
}

func TestBroadcastDropsFailedConnections(t *testing.T) {
	r := NewRegistry()
	a, _ := newTestConn(1)
	dead := &fakeSocket{fail: true}
	b := newConnWithSocket(dead, 2)
	c, wsC := newTestConn(3)
	r.Join(5, a)
	r.Join(5, b)
	r.Join(5, c)

	r.Broadcast(5, []byte("ping"), a)

	if got := r.Count(5); got != 2 {
		t.Errorf("expected dead connection removed, room size %d", got)
	}
	if !dead.closed {
		t.Error("expected failed connection to be closed")
	}
	if len(wsC.received()) != 1 {
		t.Error("healthy peer should still receive the broadcast")
	}
}

func TestBroadcastJSON(t *testing.T) {
	r := NewRegistry()
	a, wsA := newTestConn(1)
	r.Join(3, a)

	err := r.BroadcastJSON(3, map[string]string{"type": "PING"}, nil)
	if err != nil {
		t.Fatalf("BroadcastJSON failed: %v", err)
	}
	frames := wsA.received()
	if len(frames) != 1 || string(frames[0]) != `{"type":"PING"}` {
		t.Errorf("unexpected frames: %v", frames)
	}
}

func TestCloseAll(t *testing.T) {
	r := NewRegistry()
	a, wsA := newTestConn(1)
	b, wsB := newTestConn(2)
	r.Join(1, a)
	r.Join(2, b)

	r.CloseAll()

	if !wsA.closed || !wsB.closed {
		t.Error("expected all connections closed")
	}
	if got := len(r.Rooms()); got != 0 {
		t.Errorf("expected empty registry, got %d rooms", got)
	}
}

func TestConcurrentJoinLeaveBroadcast(t *testing.T) {
	r := NewRegistry()
	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func(n int64) {
			defer wg.Done()
			c, _ := newTestConn(n)
			r.Join(1, c)
			r.Broadcast(1, []byte("x"), c)
			r.Leave(1, c)
		}(int64(i))
	}
	wg.Wait()

	if got := len(r.Rooms()); got != 0 {
		t.Errorf("expected no rooms after all leaves, got %d", got)
	}
}
