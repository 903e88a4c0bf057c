package archive

import (
	"testing"
	"time"
)

func TestList_NextID(t *testing.T) {
	var l List
	if got := l.NextID("room"); got != "room#1" {
		t.Errorf("NextID = %q, want %q", got, "room#1")
	}
	l.Append(Room{ID: "room#1"})
	if got := l.NextID("room"); got != "room#2" {
		t.Errorf("NextID = %q, want %q", got, "room#2")
	}
}

func TestList_AppendDeduplicates(t *testing.T) {
	var l List
	r := Room{ID: "room#1", BlobRefs: []string{"abc"}, Timestamp: time.Now()}

	if !l.Append(r) {
		t.Error("first Append should add the record")
	}
	if l.Append(r) {
		t.Error("second Append should be ignored")
	}
	if len(l) != 1 {
		t.Errorf("len = %d, want 1", len(l))
	}
}

func TestList_AppendCopiesBlobRefs(t *testing.T) {
	var l List
	refs := []string{"abc"}
	l.Append(Room{ID: "room#1", BlobRefs: refs})
	refs[0] = "changed"
	if l[0].BlobRefs[0] != "abc" {
		t.Error("archived blob refs should not alias the caller's slice")
	}
}
