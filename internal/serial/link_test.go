package serial

import (
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

// fakePort is a scripted in-memory serial device.
type fakePort struct {
	mu      sync.Mutex
	written []byte
	closed  bool

	reads     chan []byte
	readErr   error
	failWrite atomic.Bool
	failDrain atomic.Bool
}

func newFakePort() *fakePort {
	return &fakePort{reads: make(chan []byte, 16)}
}

func (p *fakePort) Read(buf []byte) (int, error) {
	select {
	case data, ok := <-p.reads:
		if !ok {
			if p.readErr != nil {
				return 0, p.readErr
			}
			return 0, errors.New("device gone")
		}
		return copy(buf, data), nil
	case <-time.After(time.Millisecond):
		return 0, nil // Poll timeout, like a real port with a read timeout
	}
}

func (p *fakePort) Write(data []byte) (int, error) {
	if p.failWrite.Load() {
		return 0, errors.New("input/output error")
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	p.written = append(p.written, data...)
	return len(data), nil
}

func (p *fakePort) Drain() error {
	if p.failDrain.Load() {
		return errors.New("input/output error")
	}
	return nil
}

func (p *fakePort) SetReadTimeout(time.Duration) error { return nil }

func (p *fakePort) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.closed = true
	return nil
}

func (p *fakePort) writtenBytes() []byte {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]byte(nil), p.written...)
}

// captureLogger records log lines for assertions.
type captureLogger struct {
	mu   sync.Mutex
	msgs []string
}

func (c *captureLogger) record(msg string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.msgs = append(c.msgs, msg)
}

func (c *captureLogger) Debug(msg string, _ ...any) { c.record(msg) }
func (c *captureLogger) Info(msg string, _ ...any)  { c.record(msg) }
func (c *captureLogger) Warn(msg string, _ ...any)  { c.record(msg) }
func (c *captureLogger) Error(msg string, _ ...any) { c.record(msg) }

// waitFor polls cond until it returns true or the deadline passes.
func waitFor(t *testing.T, timeout time.Duration, cond func() bool, desc string) {
	t.Helper()

	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(2 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", desc)
}

func TestWriteNotConnected(t *testing.T) {
	link := New(Config{Device: "/dev/null"}, func(string, int) (Port, error) {
		return nil, errors.New("no such device")
	})
	defer link.Close()

	if err := link.Write([]byte("ir tx\r\n")); !errors.Is(err, ErrNotConnected) {
		t.Errorf("Write() error = %v, want ErrNotConnected", err)
	}
	if err := link.Drain(); !errors.Is(err, ErrNotConnected) {
		t.Errorf("Drain() error = %v, want ErrNotConnected", err)
	}
}

func TestStartConnectsAndWrites(t *testing.T) {
	port := newFakePort()
	link := New(Config{Device: "/dev/fake"}, func(string, int) (Port, error) {
		return port, nil
	})
	link.Start()
	defer link.Close()

	if !link.IsConnected() {
		t.Fatal("link not connected after Start()")
	}

	if err := link.Write([]byte("hello\r\n")); err != nil {
		t.Fatalf("Write() error = %v", err)
	}
	if got := string(port.writtenBytes()); got != "hello\r\n" {
		t.Errorf("written = %q, want %q", got, "hello\r\n")
	}
	if link.Stats().BytesTx != 7 {
		t.Errorf("BytesTx = %d, want 7", link.Stats().BytesTx)
	}
}

func TestReadLoopLogsCompleteLines(t *testing.T) {
	port := newFakePort()
	logger := &captureLogger{}
	link := New(Config{Device: "/dev/fake"}, func(string, int) (Port, error) {
		return port, nil
	})
	link.SetLogger(logger)
	link.Start()
	defer link.Close()

	// Lines split across reads; the partial tail must be held until
	// its newline arrives.
	port.reads <- []byte("IR: sent 64 sam")
	port.reads <- []byte("ples\r\nOK\r\n")

	waitFor(t, time.Second, func() bool {
		return link.Stats().LinesRx == 2
	}, "two console lines")
}

func TestConsumeConsoleKeepsPartialTail(t *testing.T) {
	link := New(Config{}, func(string, int) (Port, error) { return newFakePort(), nil })
	defer link.Close()

	pending := link.consumeConsole([]byte("partial"))
	if string(pending) != "partial" {
		t.Errorf("pending = %q, want %q", pending, "partial")
	}
	if link.Stats().LinesRx != 0 {
		t.Errorf("LinesRx = %d, want 0", link.Stats().LinesRx)
	}

	pending = link.consumeConsole(append(pending, " line\r\n"...))
	if len(pending) != 0 {
		t.Errorf("pending = %q, want empty", pending)
	}
	if link.Stats().LinesRx != 1 {
		t.Errorf("LinesRx = %d, want 1", link.Stats().LinesRx)
	}
}

func TestConsumeConsoleDiscardsOversizedTail(t *testing.T) {
	link := New(Config{}, func(string, int) (Port, error) { return newFakePort(), nil })
	defer link.Close()

	huge := make([]byte, maxPendingLine+1)
	if pending := link.consumeConsole(huge); pending != nil {
		t.Errorf("oversized tail kept: %d bytes", len(pending))
	}
}

func TestWriteFailureTriggersReconnect(t *testing.T) {
	first := newFakePort()
	second := newFakePort()
	first.failWrite.Store(true)

	var opens atomic.Int32
	link := New(Config{
		Device:            "/dev/fake",
		ReconnectInterval: 5 * time.Millisecond,
	}, func(string, int) (Port, error) {
		if opens.Add(1) == 1 {
			return first, nil
		}
		return second, nil
	})
	link.Start()
	defer link.Close()

	if err := link.Write([]byte("x")); !errors.Is(err, ErrWriteFailed) {
		t.Fatalf("Write() error = %v, want ErrWriteFailed", err)
	}
	if link.IsConnected() {
		t.Error("link still connected after write failure")
	}

	waitFor(t, time.Second, link.IsConnected, "reconnection")

	if link.Stats().ReconnectsTotal != 1 {
		t.Errorf("ReconnectsTotal = %d, want 1", link.Stats().ReconnectsTotal)
	}
	if err := link.Write([]byte("y")); err != nil {
		t.Errorf("Write() after reconnect error = %v", err)
	}
}

func TestReadErrorTriggersReconnect(t *testing.T) {
	first := newFakePort()
	second := newFakePort()

	var opens atomic.Int32
	link := New(Config{
		Device:            "/dev/fake",
		ReconnectInterval: 5 * time.Millisecond,
	}, func(string, int) (Port, error) {
		if opens.Add(1) == 1 {
			return first, nil
		}
		return second, nil
	})
	link.Start()
	defer link.Close()

	close(first.reads) // Read loop sees a device error

	waitFor(t, time.Second, func() bool {
		return link.IsConnected() && link.Stats().ReconnectsTotal == 1
	}, "reconnection after read error")
}

func TestReconnectCadenceIsSingular(t *testing.T) {
	var opens atomic.Int32
	link := New(Config{
		Device:            "/dev/fake",
		ReconnectInterval: 20 * time.Millisecond,
	}, func(string, int) (Port, error) {
		opens.Add(1)
		return nil, errors.New("no such device")
	})
	link.Start()
	defer link.Close()

	// Hammer the scheduler from many goroutines. Only one timer may be
	// pending at a time, so attempts accrue at the fixed cadence rather
	// than multiplying.
	var wg sync.WaitGroup
	for range 50 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			link.scheduleReconnect()
		}()
	}
	wg.Wait()

	time.Sleep(70 * time.Millisecond)

	// 1 initial + at most a handful of timer firings in 70ms at 20ms cadence.
	if n := opens.Load(); n > 6 {
		t.Errorf("open attempts = %d, want fixed-cadence (<= 6)", n)
	}
	if n := opens.Load(); n < 2 {
		t.Errorf("open attempts = %d, reconnect timer never fired", n)
	}
}

func TestCloseStopsReconnect(t *testing.T) {
	var opens atomic.Int32
	link := New(Config{
		Device:            "/dev/fake",
		ReconnectInterval: 5 * time.Millisecond,
	}, func(string, int) (Port, error) {
		opens.Add(1)
		return nil, errors.New("no such device")
	})
	link.Start()

	if err := link.Close(); err != nil {
		t.Fatalf("Close() error = %v", err)
	}
	settled := opens.Load()

	time.Sleep(30 * time.Millisecond)
	if opens.Load() != settled {
		t.Error("reconnect attempts continued after Close()")
	}
}

func TestCloseIsIdempotent(t *testing.T) {
	link := New(Config{Device: "/dev/fake"}, func(string, int) (Port, error) {
		return newFakePort(), nil
	})
	link.Start()

	if err := link.Close(); err != nil {
		t.Fatalf("first Close() error = %v", err)
	}
	if err := link.Close(); err != nil {
		t.Fatalf("second Close() error = %v", err)
	}
}
