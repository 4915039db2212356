package watching

import (
	"testing"
)

func TestDedupeLastWriteWins(t *testing.T) {
	changes := []Change{
		{Kind: ChangeCreate, Path: "/a"},
		{Kind: ChangeModify, Path: "/a"},
		{Kind: ChangeDelete, Path: "/a"},
	}
	deduped := dedupeChanges(changes)
	if len(deduped) != 1 {
		t.Fatal("per-path changes should collapse, got", len(deduped))
	}
	if deduped[0].Kind != ChangeDelete || deduped[0].Path != "/a" {
		t.Fatal("last write should win:", deduped[0])
	}
}

func TestDedupeRenameDecomposition(t *testing.T) {
	// A rename decomposes into a delete of the old path and a create of the
	// new path, so the catalog count stays unchanged.
	changes := []Change{
		{Kind: ChangeRename, Path: "/dir/b.txt", OldPath: "/dir/a.txt"},
	}
	deduped := dedupeChanges(changes)
	if len(deduped) != 2 {
		t.Fatal("rename should decompose into two changes, got", len(deduped))
	}
	if deduped[0].Kind != ChangeDelete || deduped[0].Path != "/dir/a.txt" {
		t.Fatal("first decomposed change not as expected:", deduped[0])
	}
	if deduped[1].Kind != ChangeCreate || deduped[1].Path != "/dir/b.txt" {
		t.Fatal("second decomposed change not as expected:", deduped[1])
	}
}

func TestDedupeCreateThenDeleteLeavesDelete(t *testing.T) {
	changes := []Change{
		{Kind: ChangeCreate, Path: "/x"},
		{Kind: ChangeCreate, Path: "/y"},
		{Kind: ChangeDelete, Path: "/x"},
	}
	deduped := dedupeChanges(changes)
	if len(deduped) != 2 {
		t.Fatal("unexpected change count:", len(deduped))
	}
	if deduped[0].Path != "/y" || deduped[0].Kind != ChangeCreate {
		t.Fatal("surviving create not as expected:", deduped[0])
	}
	if deduped[1].Path != "/x" || deduped[1].Kind != ChangeDelete {
		t.Fatal("surviving delete not as expected:", deduped[1])
	}
}

func TestDedupePreservesArrivalOrderAcrossPaths(t *testing.T) {
	changes := []Change{
		{Kind: ChangeCreate, Path: "/1"},
		{Kind: ChangeCreate, Path: "/2"},
		{Kind: ChangeCreate, Path: "/3"},
	}
	deduped := dedupeChanges(changes)
	for i, expected := range []string{"/1", "/2", "/3"} {
		if deduped[i].Path != expected {
			t.Fatal("arrival order not preserved:", deduped)
		}
	}
}
