package storage

import (
	"os"
	"path/filepath"
	"testing"

	"casewatch/internal/checksum"
)

func testFS(t *testing.T) *FS {
	t.Helper()
	fs, err := NewFS(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}
	return fs
}

func TestNewFS_CreatesRoot(t *testing.T) {
	root := filepath.Join(t.TempDir(), "nested", "monitor")
	fs, err := NewFS(root)
	if err != nil {
		t.Fatalf("NewFS: %v", err)
	}
	info, err := os.Stat(fs.Root())
	if err != nil || !info.IsDir() {
		t.Fatalf("root not created: %v", err)
	}
}

func TestWriteReadDelete(t *testing.T) {
	fs := testFS(t)
	if err := fs.Write("12345678.txt", []byte("hello")); err != nil {
		t.Fatalf("Write: %v", err)
	}
	data, err := fs.Read("12345678.txt")
	if err != nil {
		t.Fatalf("Read: %v", err)
	}
	if string(data) != "hello" {
		t.Errorf("data = %q", data)
	}
	if err := fs.Delete("12345678.txt"); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if _, err := fs.Read("12345678.txt"); err == nil {
		t.Error("expected error reading deleted file")
	}
}

func TestWrite_LeavesNoTempFiles(t *testing.T) {
	fs := testFS(t)
	if err := fs.Write("a.txt", []byte("x")); err != nil {
		t.Fatal(err)
	}
	dirents, err := os.ReadDir(fs.Root())
	if err != nil {
		t.Fatal(err)
	}
	if len(dirents) != 1 || dirents[0].Name() != "a.txt" {
		t.Errorf("dir contents = %v", dirents)
	}
}

func TestList_SuffixAndFingerprint(t *testing.T) {
	fs := testFS(t)
	if err := fs.Write("12345678.txt", []byte("body")); err != nil {
		t.Fatal(err)
	}
	if err := fs.Write("notes.json", []byte("{}")); err != nil {
		t.Fatal(err)
	}
	if err := os.Mkdir(filepath.Join(fs.Root(), "sub.txt"), 0o755); err != nil {
		t.Fatal(err)
	}

	files, err := fs.List(".txt")
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(files) != 1 {
		t.Fatalf("len(files) = %d, want 1", len(files))
	}
	f := files[0]
	if f.CaseID != "12345678" {
		t.Errorf("case id = %q", f.CaseID)
	}
	if f.Fingerprint != checksum.Sum([]byte("body")) {
		t.Errorf("fingerprint = %q", f.Fingerprint)
	}
	if f.Size != 4 {
		t.Errorf("size = %d", f.Size)
	}
}

func TestSafePath_RejectsTraversal(t *testing.T) {
	fs := testFS(t)
	for _, name := range []string{"../escape.txt", "/etc/passwd", "a/../../b.txt", "", "."} {
		if _, err := fs.Read(name); err == nil {
			t.Errorf("Read(%q) succeeded, want error", name)
		}
	}
}

func TestChecksum_Stable(t *testing.T) {
	a := checksum.Sum([]byte("same"))
	b := checksum.Sum([]byte("same"))
	c := checksum.Sum([]byte("different"))
	if a != b {
		t.Error("checksum not deterministic")
	}
	if a == c {
		t.Error("distinct content collided")
	}
	if len(a) != 64 {
		t.Errorf("len = %d, want 64 hex chars", len(a))
	}
}
