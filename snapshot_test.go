package blockfs

import (
	"bytes"
	"path/filepath"
	"testing"
)

func TestSnapshotRestoreRoundTripUncompressed(t *testing.T) {
	path := filepath.Join(t.TempDir(), "image.bin")
	fsys := New()
	if err := fsys.Init(path, 32, 2048, 2); err != nil {
		t.Fatalf("Init() failed: %v", err)
	}
	if err := fsys.Create("/snapfile"); err != nil {
		t.Fatalf("Create() failed: %v", err)
	}
	fid, err := fsys.Open("/snapfile")
	if err != nil {
		t.Fatalf("Open() failed: %v", err)
	}
	data := []byte("snapshot me")
	if _, err := fsys.Write(fid, data); err != nil {
		t.Fatalf("Write() failed: %v", err)
	}
	if err := fsys.Close(fid); err != nil {
		t.Fatalf("Close() failed: %v", err)
	}

	var buf bytes.Buffer
	if err := fsys.Snapshot(&buf, SnapshotNone); err != nil {
		t.Fatalf("Snapshot() failed: %v", err)
	}
	if buf.Len() == 0 {
		t.Fatal("Snapshot() wrote no bytes")
	}

	restorePath := filepath.Join(t.TempDir(), "restored.bin")
	restored := New()
	if err := restored.Restore(restorePath, &buf, SnapshotNone); err != nil {
		t.Fatalf("Restore() failed: %v", err)
	}
	defer restored.Unload()

	rfid, err := restored.Open("/snapfile")
	if err != nil {
		t.Fatalf("Open() on restored image failed: %v", err)
	}
	defer restored.Close(rfid)
	out := make([]byte, len(data))
	if _, err := restored.Read(rfid, out); err != nil {
		t.Fatalf("Read() on restored image failed: %v", err)
	}
	if string(out) != string(data) {
		t.Fatalf("Read() on restored image = %q, want %q", out, data)
	}

	if err := fsys.Unload(); err != nil {
		t.Fatalf("Unload() of the source image failed: %v", err)
	}
}

func TestSnapshotRequiresLoadedImage(t *testing.T) {
	fsys := New()
	var buf bytes.Buffer
	if err := fsys.Snapshot(&buf, SnapshotNone); err != ENODISK {
		t.Fatalf("Snapshot() with no loaded image = %v, want ENODISK", err)
	}
}

func TestSnapshotUnregisteredCompressionFails(t *testing.T) {
	path := filepath.Join(t.TempDir(), "image.bin")
	fsys := New()
	if err := fsys.Init(path, 32, 2048, 2); err != nil {
		t.Fatalf("Init() failed: %v", err)
	}
	defer fsys.Unload()

	var buf bytes.Buffer
	err := fsys.Snapshot(&buf, SnapshotXZ)
	if err == nil {
		t.Fatal("Snapshot() with an unregistered codec (no xz build tag) should fail")
	}
	if _, ok := err.(errUnsupportedCompression); !ok {
		t.Fatalf("Snapshot() error = %T, want errUnsupportedCompression", err)
	}
}
