package transport

import (
	"testing"
	"time"
)

func TestMockPortFeedAndRead(t *testing.T) {
	p := NewMockPort()
	p.Feed([]byte{0x01, 0x02, 0x03})

	buf := make([]byte, 3)
	n, err := p.Read(buf)
	if err != nil {
		t.Fatalf("Read failed: %v", err)
	}
	if n != 3 {
		t.Errorf("Read n = %d, want 3", n)
	}
}

func TestMockPortReadTimeout(t *testing.T) {
	p := NewMockPort()
	p.SetReadTimeout(10 * time.Millisecond)

	buf := make([]byte, 1)
	_, err := p.Read(buf)
	if err == nil {
		t.Fatal("expected timeout error on empty port")
	}
}

func TestMockPortWriteCapturesBytes(t *testing.T) {
	p := NewMockPort()
	if _, err := p.Write([]byte{0xEF, 0x01}); err != nil {
		t.Fatalf("Write failed: %v", err)
	}
	if got := p.Written(); len(got) != 2 || got[0] != 0xEF {
		t.Errorf("Written() = % X, want [EF 01]", got)
	}
}

func TestMockPortCloseUnblocksRead(t *testing.T) {
	p := NewMockPort()
	p.SetReadTimeout(time.Second)
	done := make(chan error, 1)
	go func() {
		buf := make([]byte, 1)
		_, err := p.Read(buf)
		done <- err
	}()
	time.Sleep(5 * time.Millisecond)
	p.Close()
	select {
	case err := <-done:
		if err == nil {
			t.Fatal("expected error after close")
		}
	case <-time.After(time.Second):
		t.Fatal("Read did not unblock after Close")
	}
}
