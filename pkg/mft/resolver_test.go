package mft

import (
	"testing"
)

func TestResolveSimpleChain(t *testing.T) {
	resolver := NewPathResolver("C:")
	resolver.AddRecord(100, RootFRN, "Users")
	resolver.AddRecord(101, 100, "x")
	resolver.AddRecord(102, 101, "Documents")

	path, ok := resolver.Resolve(102)
	if !ok {
		t.Fatal("chain should resolve")
	}
	if path != `C:\Users\x\Documents` {
		t.Fatal("resolved path not as expected:", path)
	}
}

func TestResolveRoot(t *testing.T) {
	resolver := NewPathResolver("C:")
	if path, ok := resolver.Resolve(RootFRN); !ok || path != `C:\` {
		t.Fatal("root resolution not as expected:", path)
	}
}

func TestResolveBrokenChain(t *testing.T) {
	resolver := NewPathResolver("C:")
	resolver.AddRecord(100, 999, "orphan")
	if _, ok := resolver.Resolve(100); ok {
		t.Fatal("broken chain should not resolve")
	}
}

func TestResolveCycle(t *testing.T) {
	resolver := NewPathResolver("C:")
	resolver.AddRecord(100, 101, "a")
	resolver.AddRecord(101, 100, "b")
	if _, ok := resolver.Resolve(100); ok {
		t.Fatal("cyclic chain should not resolve")
	}
}

func TestResolveUsesCache(t *testing.T) {
	resolver := NewPathResolver("C:")
	resolver.AddRecord(100, RootFRN, "Users")
	resolver.AddRecord(101, 100, "x")
	if _, ok := resolver.Resolve(101); !ok {
		t.Fatal("chain should resolve")
	}

	// Dropping the record map must not break cached lookups.
	resolver.DropRecords()
	if path, ok := resolver.Resolve(101); !ok || path != `C:\Users\x` {
		t.Fatal("cached resolution not as expected:", path)
	}
}

func TestFindFRNByPath(t *testing.T) {
	resolver := NewPathResolver("C:")
	resolver.AddRecord(100, RootFRN, "Users")
	resolver.AddRecord(101, 100, "x")

	if frn, ok := resolver.FindFRNByPath(`C:\Users\x`); !ok || frn != 101 {
		t.Fatal("lookup not as expected:", frn)
	}
	if frn, ok := resolver.FindFRNByPath(`C:\users\X`); !ok || frn != 101 {
		t.Fatal("lookup should be case-insensitive:", frn)
	}
	if frn, ok := resolver.FindFRNByPath(`C:\`); !ok || frn != RootFRN {
		t.Fatal("root lookup not as expected:", frn)
	}
	if _, ok := resolver.FindFRNByPath(`C:\Missing`); ok {
		t.Fatal("missing path should not resolve")
	}
}

func TestCollectSubtreePruned(t *testing.T) {
	resolver := NewPathResolver("C:")
	resolver.AddRecord(100, RootFRN, "Users")
	resolver.AddRecord(101, 100, "x")
	resolver.AddRecord(102, 101, "Documents")
	resolver.AddRecord(103, 101, "node_modules")
	resolver.AddRecord(104, 103, "nested")
	resolver.AddRecord(105, 101, "excluded")
	resolver.AddRecord(200, RootFRN, "Windows")

	skipName := func(name string) bool { return name == "node_modules" }
	excluded := map[uint64]bool{105: true}
	kept := resolver.CollectSubtreePruned(101, skipName, excluded)

	for _, frn := range []uint64{101, 102} {
		if !kept[frn] {
			t.Error("expected FRN to be kept:", frn)
		}
	}
	for _, frn := range []uint64{103, 104, 105, 200} {
		if kept[frn] {
			t.Error("expected FRN to be pruned:", frn)
		}
	}

	// Kept directories are pre-resolved into the cache.
	if path, ok := resolver.PathCache()[102]; !ok || path != `C:\Users\x\Documents` {
		t.Fatal("kept directory should be pre-resolved:", path)
	}
}

func TestFRNMasking(t *testing.T) {
	resolver := NewPathResolver("C:")

	// The upper 16 bits are a reuse sequence and must be ignored.
	sequenced := uint64(7)<<48 | 100
	resolver.AddRecord(sequenced, RootFRN, "Users")
	if path, ok := resolver.Resolve(100); !ok || path != `C:\Users` {
		t.Fatal("masked resolution not as expected:", path)
	}
}
