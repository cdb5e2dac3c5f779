package transmit

import (
	"context"
	"errors"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/nerrad567/fanlink/internal/catalog"
)

// fakeLink records commands and can fail scripted writes.
type fakeLink struct {
	mu       sync.Mutex
	commands []string

	connected   atomic.Bool
	failWrites  atomic.Int32 // Fail this many writes, then succeed
	activeSends atomic.Int32 // Concurrent sequence detection
	maxActive   atomic.Int32
}

func newFakeLink() *fakeLink {
	l := &fakeLink{}
	l.connected.Store(true)
	return l
}

func (l *fakeLink) Write(data []byte) error {
	active := l.activeSends.Add(1)
	defer l.activeSends.Add(-1)
	for {
		prev := l.maxActive.Load()
		if active <= prev || l.maxActive.CompareAndSwap(prev, active) {
			break
		}
	}

	if l.failWrites.Load() > 0 {
		l.failWrites.Add(-1)
		return errors.New("input/output error")
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	l.commands = append(l.commands, string(data))
	return nil
}

func (l *fakeLink) Drain() error { return nil }

func (l *fakeLink) IsConnected() bool { return l.connected.Load() }

func (l *fakeLink) sent() []string {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]string(nil), l.commands...)
}

func testSignal(sampleCount int) catalog.Signal {
	samples := make([]int, sampleCount)
	for i := range samples {
		samples[i] = 500 + i
	}
	return catalog.Signal{
		Name:      "speed_low",
		Frequency: 38000,
		DutyCycle: 33,
		Samples:   samples,
	}
}

func fastEngine(link Link) *Engine {
	return New(Config{InterChunkDelay: time.Millisecond}, link)
}

func TestChunkSamples(t *testing.T) {
	tests := []struct {
		name     string
		count    int
		size     int
		wantLens []int
	}{
		{"under one chunk", 10, 64, []int{10}},
		{"exactly one chunk", 64, 64, []int{64}},
		{"one over", 65, 64, []int{64, 1}},
		{"remainder tail", 130, 64, []int{64, 64, 2}},
		{"exact multiple", 128, 64, []int{64, 64}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			chunks := chunkSamples(testSignal(tt.count).Samples, tt.size)
			if len(chunks) != len(tt.wantLens) {
				t.Fatalf("chunk count = %d, want %d", len(chunks), len(tt.wantLens))
			}
			for i, want := range tt.wantLens {
				if len(chunks[i]) != want {
					t.Errorf("chunk %d len = %d, want %d", i, len(chunks[i]), want)
				}
			}
		})
	}
}

func TestBuildCommand(t *testing.T) {
	cmd := string(buildCommand(38000, 33, []int{9000, 4500, 560}))
	want := "ir tx RAW F:38000 DC:33 9000 4500 560\r\n"
	if cmd != want {
		t.Errorf("command = %q, want %q", cmd, want)
	}
}

func TestTransmitSendsAllChunksInOrder(t *testing.T) {
	link := newFakeLink()
	engine := fastEngine(link)

	res, err := engine.Transmit(context.Background(), testSignal(130))
	if err != nil {
		t.Fatalf("Transmit() error = %v", err)
	}
	if res.Chunks != 3 {
		t.Errorf("Result.Chunks = %d, want 3", res.Chunks)
	}
	if res.Attempts != 1 {
		t.Errorf("Result.Attempts = %d, want 1", res.Attempts)
	}

	sent := link.sent()
	if len(sent) != 3 {
		t.Fatalf("commands sent = %d, want 3", len(sent))
	}
	for _, cmd := range sent {
		if !strings.HasPrefix(cmd, "ir tx RAW F:38000 DC:33 ") {
			t.Errorf("command missing preamble: %q", cmd)
		}
		if !strings.HasSuffix(cmd, "\r\n") {
			t.Errorf("command missing terminator: %q", cmd)
		}
	}
	// First sample of each chunk confirms ordering.
	if !strings.Contains(sent[0], " 500 ") {
		t.Errorf("first chunk out of order: %q", sent[0])
	}
	if !strings.Contains(sent[1], " 564 ") {
		t.Errorf("second chunk out of order: %q", sent[1])
	}
	if !strings.HasSuffix(sent[2], " 628 629\r\n") {
		t.Errorf("final chunk = %q, want tail \" 628 629\\r\\n\"", sent[2])
	}
}

func TestTransmitNotConnected(t *testing.T) {
	link := newFakeLink()
	link.connected.Store(false)
	engine := fastEngine(link)

	_, err := engine.Transmit(context.Background(), testSignal(10))
	if !errors.Is(err, ErrNotConnected) {
		t.Fatalf("Transmit() error = %v, want ErrNotConnected", err)
	}
	if len(link.sent()) != 0 {
		t.Error("commands were sent while disconnected")
	}
}

func TestTransmitRetriesFullSequence(t *testing.T) {
	link := newFakeLink()
	link.failWrites.Store(1) // First chunk of attempt one fails
	engine := fastEngine(link)

	res, err := engine.Transmit(context.Background(), testSignal(130))
	if err != nil {
		t.Fatalf("Transmit() error = %v", err)
	}
	if res.Attempts != 2 {
		t.Errorf("Result.Attempts = %d, want 2", res.Attempts)
	}

	// The retry restarts from chunk one, so exactly one clean attempt
	// of three chunks reaches the device.
	sent := link.sent()
	if len(sent) != 3 {
		t.Fatalf("commands sent = %d, want 3 (one full clean attempt)", len(sent))
	}
	if !strings.Contains(sent[0], " 500 ") {
		t.Errorf("retry did not restart from first chunk: %q", sent[0])
	}
	if engine.Stats().RetriesTotal != 1 {
		t.Errorf("RetriesTotal = %d, want 1", engine.Stats().RetriesTotal)
	}
}

func TestTransmitExhaustsAttempts(t *testing.T) {
	link := newFakeLink()
	link.failWrites.Store(1000) // Never recovers
	engine := fastEngine(link)

	res, err := engine.Transmit(context.Background(), testSignal(10))
	if !errors.Is(err, ErrTransmissionFailed) {
		t.Fatalf("Transmit() error = %v, want ErrTransmissionFailed", err)
	}
	if res.Attempts != 3 {
		t.Errorf("Result.Attempts = %d, want 3", res.Attempts)
	}

	stats := engine.Stats()
	if stats.TransmissionsFailed != 1 {
		t.Errorf("TransmissionsFailed = %d, want 1", stats.TransmissionsFailed)
	}
	if stats.RetriesTotal != 2 {
		t.Errorf("RetriesTotal = %d, want 2 (three attempts)", stats.RetriesTotal)
	}
}

func TestTransmitCancelledBetweenChunks(t *testing.T) {
	link := newFakeLink()
	engine := New(Config{InterChunkDelay: 50 * time.Millisecond}, link)

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(10 * time.Millisecond)
		cancel()
	}()

	_, err := engine.Transmit(ctx, testSignal(130))
	if !errors.Is(err, ErrTransmissionFailed) {
		t.Fatalf("Transmit() error = %v, want ErrTransmissionFailed", err)
	}
	if !errors.Is(err, context.Canceled) {
		t.Errorf("Transmit() error = %v, want wrapped context.Canceled", err)
	}
	if len(link.sent()) >= 3 {
		t.Error("all chunks sent despite cancellation")
	}
}

func TestTransmitSerializesConcurrentCallers(t *testing.T) {
	link := newFakeLink()
	engine := fastEngine(link)
	sig := testSignal(130)

	var wg sync.WaitGroup
	for range 4 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := engine.Transmit(context.Background(), sig); err != nil {
				t.Errorf("Transmit() error = %v", err)
			}
		}()
	}
	wg.Wait()

	if max := link.maxActive.Load(); max > 1 {
		t.Errorf("max concurrent writes = %d, want 1", max)
	}
	if got := len(link.sent()); got != 12 {
		t.Errorf("commands sent = %d, want 12", got)
	}
}
