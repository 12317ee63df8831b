package executor

import (
	"bytes"
	"fmt"
	"strings"
	"testing"
	"time"
)

func TestBufferOrdering(t *testing.T) {
	b := NewBuffer(1024)

	for i := 0; i < 5; i++ {
		if _, err := fmt.Fprintf(b, "line %d\n", i); err != nil {
			t.Fatalf("Write failed: %v", err)
		}
	}

	chunk, ok := b.Next()
	if !ok {
		t.Fatal("Expected ok from open buffer")
	}
	want := "line 0\nline 1\nline 2\nline 3\nline 4\n"
	if string(chunk) != want {
		t.Errorf("Expected %q, got %q", want, chunk)
	}

	// Drained and still open: empty chunk, ok stays true.
	chunk, ok = b.Next()
	if chunk != nil || !ok {
		t.Errorf("Expected (nil, true) from drained open buffer, got (%q, %v)", chunk, ok)
	}
}

func TestBufferDropsOldest(t *testing.T) {
	b := NewBuffer(10)

	if _, err := b.Write([]byte("0123456789")); err != nil {
		t.Fatalf("Write failed: %v", err)
	}
	if _, err := b.Write([]byte("ABCDE")); err != nil {
		t.Fatalf("Write failed: %v", err)
	}

	chunk, ok := b.Next()
	if !ok {
		t.Fatal("Expected ok from open buffer")
	}
	// The five oldest bytes were dropped; the marker precedes what remains.
	if !strings.Contains(string(chunk), "[... 5 bytes dropped ...]") {
		t.Errorf("Expected truncation marker, got %q", chunk)
	}
	if !bytes.HasSuffix(chunk, []byte("56789ABCDE")) {
		t.Errorf("Expected newest bytes retained in order, got %q", chunk)
	}
}

func TestBufferDroppedCountAccumulates(t *testing.T) {
	b := NewBuffer(4)

	b.Write([]byte("aaaa"))
	b.Write([]byte("bbbb"))
	b.Write([]byte("cccc"))

	chunk, _ := b.Next()
	if !strings.Contains(string(chunk), "[... 8 bytes dropped ...]") {
		t.Errorf("Expected 8 dropped bytes reported, got %q", chunk)
	}
	if !bytes.HasSuffix(chunk, []byte("cccc")) {
		t.Errorf("Expected newest write retained, got %q", chunk)
	}

	// The counter resets after a drain.
	b.Write([]byte("dddd"))
	chunk, _ = b.Next()
	if string(chunk) != "dddd" {
		t.Errorf("Expected clean chunk after drain, got %q", chunk)
	}
}

func TestBufferClose(t *testing.T) {
	b := NewBuffer(1024)
	b.Write([]byte("tail"))
	b.Close()

	// Pending bytes survive the close.
	chunk, ok := b.Next()
	if !ok || string(chunk) != "tail" {
		t.Errorf("Expected pending bytes readable after close, got (%q, %v)", chunk, ok)
	}

	// Fully drained and closed: ok goes false.
	if _, ok := b.Next(); ok {
		t.Error("Expected ok=false from drained closed buffer")
	}

	if _, err := b.Write([]byte("late")); err == nil {
		t.Error("Expected error writing to closed buffer")
	}

	// Close is idempotent.
	b.Close()
}

func TestBufferReadySignal(t *testing.T) {
	b := NewBuffer(1024)

	select {
	case <-b.Ready():
		t.Fatal("Unexpected ready signal on empty buffer")
	default:
	}

	b.Write([]byte("x"))
	select {
	case <-b.Ready():
	case <-time.After(time.Second):
		t.Fatal("Expected ready signal after write")
	}

	b.Close()
	select {
	case <-b.Ready():
	case <-time.After(time.Second):
		t.Fatal("Expected ready signal after close")
	}
}

func TestBufferDefaultCap(t *testing.T) {
	b := NewBuffer(0)
	if b.cap != DefaultBufferCap {
		t.Errorf("Expected default cap %d, got %d", DefaultBufferCap, b.cap)
	}
}
