package ioqueue

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestSubmitWriteThenReadRoundTrip(t *testing.T) {
	dir := t.TempDir()
	f, err := os.OpenFile(filepath.Join(dir, "data"), os.O_RDWR|os.O_CREATE, 0o644)
	if err != nil {
		t.Fatal(err)
	}
	defer f.Close()

	q := Open(LowLatency())
	defer q.Close()

	fd := int(f.Fd())
	payload := []byte("hello ioqueue")
	wid, err := q.SubmitWrite(fd, 0, payload)
	if err != nil {
		t.Fatalf("SubmitWrite: %v", err)
	}
	waitFor(t, q, wid)

	rid, err := q.SubmitRead(fd, 0, len(payload))
	if err != nil {
		t.Fatalf("SubmitRead: %v", err)
	}
	c := waitFor(t, q, rid)
	if string(c.Buffer[:c.N]) != string(payload) {
		t.Fatalf("read back %q, want %q", c.Buffer[:c.N], payload)
	}
	q.ReleaseBuffer(c.Buffer)
}

func waitFor(t *testing.T, q *Queue, id uint64) Completion {
	t.Helper()
	deadline := time.After(2 * time.Second)
	for {
		select {
		case c := <-q.Completions():
			if c.ID == id {
				if c.Err != nil {
					t.Fatalf("completion %d error: %v", id, c.Err)
				}
				return c
			}
		case <-deadline:
			t.Fatalf("timed out waiting for completion %d", id)
		}
	}
}

func TestFsyncCompletes(t *testing.T) {
	dir := t.TempDir()
	f, err := os.OpenFile(filepath.Join(dir, "data"), os.O_RDWR|os.O_CREATE, 0o644)
	if err != nil {
		t.Fatal(err)
	}
	defer f.Close()

	q := Open(LowLatency())
	defer q.Close()

	id, err := q.SubmitFsync(int(f.Fd()))
	if err != nil {
		t.Fatalf("SubmitFsync: %v", err)
	}
	waitFor(t, q, id)

	stats := q.Snapshot()
	if stats.Fsyncs.Load() != 1 {
		t.Fatalf("fsyncs = %d, want 1", stats.Fsyncs.Load())
	}
}

func TestBufferPoolExhaustionFailsOversizedAllocatesFresh(t *testing.T) {
	p := newBufferPool(1, 16)
	b1, err := p.acquire(16)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := p.acquire(16); err == nil {
		t.Fatal("expected pool exhaustion error with 1 buffer taken")
	}
	oversized, err := p.acquire(64)
	if err != nil || len(oversized) != 64 {
		t.Fatalf("oversized acquire should always succeed fresh: %v", err)
	}
	p.release(b1)
	if _, err := p.acquire(16); err != nil {
		t.Fatalf("expected acquire to succeed after release: %v", err)
	}
}

func TestFileStoreWriteReadRoundTrip(t *testing.T) {
	dir := t.TempDir()
	q := Open(LowLatency())
	defer q.Close()

	fs, err := OpenFileStore(q, filepath.Join(dir, "tier.dat"), 0)
	if err != nil {
		t.Fatal(err)
	}
	defer fs.Close()

	off, err := fs.Write([]byte("abc"))
	if err != nil {
		t.Fatal(err)
	}
	if off != 0 {
		t.Fatalf("first write offset = %d, want 0", off)
	}
	off2, err := fs.Write([]byte("defgh"))
	if err != nil {
		t.Fatal(err)
	}
	if off2 != 3 {
		t.Fatalf("second write offset = %d, want 3", off2)
	}

	data, err := fs.Read(off2, 5)
	if err != nil {
		t.Fatal(err)
	}
	if string(data) != "defgh" {
		t.Fatalf("read = %q, want defgh", data)
	}
	if fs.Bytes() != 8 {
		t.Fatalf("Bytes() = %d, want 8", fs.Bytes())
	}
}

func TestFileStoreHasSpaceRespectsCapacity(t *testing.T) {
	dir := t.TempDir()
	q := Open(LowLatency())
	defer q.Close()
	fs, err := OpenFileStore(q, filepath.Join(dir, "tier.dat"), 4)
	if err != nil {
		t.Fatal(err)
	}
	defer fs.Close()
	if !fs.HasSpace(4) {
		t.Fatal("expected space for exactly-capacity write")
	}
	if fs.HasSpace(5) {
		t.Fatal("expected no space beyond capacity")
	}
}
