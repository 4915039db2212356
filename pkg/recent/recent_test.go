package recent

import (
	"testing"
	"time"
)

func TestSuppression(t *testing.T) {
	ops := NewOps()
	ops.Record(OpRename, "/a", "/b")
	if !ops.Suppresses("/a") || !ops.Suppresses("/b") {
		t.Fatal("recorded paths should be suppressed")
	}
	if ops.Suppresses("/c") {
		t.Fatal("unrecorded paths should not be suppressed")
	}
}

func TestExpiry(t *testing.T) {
	ops := &Ops{
		paths: make(map[string]op),
		ttl:   10 * time.Millisecond,
	}
	ops.Record(OpTrash, "/a")
	time.Sleep(30 * time.Millisecond)
	if ops.Suppresses("/a") {
		t.Fatal("expired records should not suppress")
	}
}

func TestSweep(t *testing.T) {
	ops := &Ops{
		paths: make(map[string]op),
		ttl:   10 * time.Millisecond,
	}
	ops.Record(OpTrash, "/a", "/b")
	time.Sleep(30 * time.Millisecond)
	ops.Sweep()
	ops.lock.Lock()
	remaining := len(ops.paths)
	ops.lock.Unlock()
	if remaining != 0 {
		t.Fatal("sweep should remove expired records, remaining:", remaining)
	}
}

func TestEmptyPathsIgnored(t *testing.T) {
	ops := NewOps()
	ops.Record(OpRename, "", "/b")
	if ops.Suppresses("") {
		t.Fatal("empty paths should never suppress")
	}
}
