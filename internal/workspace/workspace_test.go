package workspace

import (
	"os"
	"path/filepath"
	"testing"
)

func newLayout(t *testing.T) *Layout {
	t.Helper()
	l, err := NewLayout(filepath.Join(t.TempDir(), "data"))
	if err != nil {
		t.Fatalf("NewLayout: %v", err)
	}
	if err := l.EnsureDirs(); err != nil {
		t.Fatalf("EnsureDirs: %v", err)
	}
	return l
}

func TestEnsureDirsLaysOutDataDir(t *testing.T) {
	t.Parallel()
	l := newLayout(t)

	for _, dir := range []string{l.MemoryDir(), l.LogsDir(), l.WorkspacesDir()} {
		info, err := os.Stat(dir)
		if err != nil {
			t.Fatalf("stat %s: %v", dir, err)
		}
		if !info.IsDir() {
			t.Fatalf("%s is not a directory", dir)
		}
	}
	if filepath.Dir(l.DBPath()) != l.Root() {
		t.Fatalf("db path %s not under root %s", l.DBPath(), l.Root())
	}
}

func TestCreateIsIdempotent(t *testing.T) {
	t.Parallel()
	l := newLayout(t)

	p1, err := l.Create("task-1")
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	p2, err := l.Create("task-1")
	if err != nil {
		t.Fatalf("second Create: %v", err)
	}
	if p1 != p2 {
		t.Fatalf("paths differ: %s vs %s", p1, p2)
	}
	if !l.Exists("task-1") {
		t.Fatal("workspace should exist after Create")
	}
}

func TestFilePathRejectsEscapes(t *testing.T) {
	t.Parallel()
	l := newLayout(t)

	for _, name := range []string{"", ".", "..", "a/b", `a\b`, "../secret"} {
		if _, err := l.FilePath("task-1", name); err != ErrInvalidFileName {
			t.Fatalf("FilePath(%q) err = %v, want ErrInvalidFileName", name, err)
		}
	}

	p, err := l.FilePath("task-1", "out.txt")
	if err != nil {
		t.Fatalf("FilePath: %v", err)
	}
	if filepath.Dir(p) != l.Path("task-1") {
		t.Fatalf("resolved path %s not inside workspace", p)
	}
}

func TestListFiles(t *testing.T) {
	t.Parallel()
	l := newLayout(t)

	if _, _, err := l.ListFiles("missing"); err != nil {
		t.Fatalf("ListFiles on missing workspace: %v", err)
	}
	if _, ok, _ := l.ListFiles("missing"); ok {
		t.Fatal("missing workspace reported as existing")
	}

	p, err := l.Create("task-1")
	if err != nil {
		t.Fatal(err)
	}
	for _, name := range []string{"out.txt", ".hidden"} {
		if err := os.WriteFile(filepath.Join(p, name), []byte("x"), 0o644); err != nil {
			t.Fatal(err)
		}
	}

	files, ok, err := l.ListFiles("task-1")
	if err != nil || !ok {
		t.Fatalf("ListFiles: ok=%v err=%v", ok, err)
	}
	if len(files) != 1 || files[0] != "out.txt" {
		t.Fatalf("ListFiles = %v, want [out.txt]", files)
	}
}

func TestRemoveFile(t *testing.T) {
	t.Parallel()
	l := newLayout(t)

	p, err := l.Create("task-1")
	if err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(p, "out.txt"), []byte("x"), 0o644); err != nil {
		t.Fatal(err)
	}

	removed, err := l.RemoveFile("task-1", "out.txt")
	if err != nil || !removed {
		t.Fatalf("RemoveFile: removed=%v err=%v", removed, err)
	}
	removed, err = l.RemoveFile("task-1", "out.txt")
	if err != nil {
		t.Fatalf("second RemoveFile: %v", err)
	}
	if removed {
		t.Fatal("second RemoveFile should report false")
	}
	if _, err := l.RemoveFile("task-1", "../out.txt"); err != ErrInvalidFileName {
		t.Fatalf("RemoveFile escape err = %v, want ErrInvalidFileName", err)
	}
}

func TestListDelete(t *testing.T) {
	t.Parallel()
	l := newLayout(t)

	if _, err := l.Create("a"); err != nil {
		t.Fatal(err)
	}
	if _, err := l.Create("b"); err != nil {
		t.Fatal(err)
	}

	uuids, err := l.List()
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(uuids) != 2 {
		t.Fatalf("List = %v", uuids)
	}

	deleted, err := l.Delete("a")
	if err != nil || !deleted {
		t.Fatalf("Delete: deleted=%v err=%v", deleted, err)
	}
	if l.Exists("a") {
		t.Fatal("deleted workspace should not exist")
	}
	deleted, err = l.Delete("a")
	if err != nil {
		t.Fatalf("second Delete: %v", err)
	}
	if deleted {
		t.Fatal("second Delete should report false")
	}
}
