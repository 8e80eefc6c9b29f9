// Package atomicfile publishes files with write-to-temp-then-rename
// semantics so readers never observe partial content.
package atomicfile

import (
	"errors"
	"io/fs"
	"os"
	"path/filepath"
)

// Writer stages content in a hidden temporary file beside the target
// path and makes it visible with a single rename. The temporary file
// lives in the target's directory so the rename never crosses a
// filesystem boundary.
type Writer struct {
	path      string
	tmp       *os.File
	sealed    bool
	committed bool
}

// New opens a staging file for path. The caller must finish with
// either Commit or Cancel; deferring Cancel is safe after a
// successful Commit.
func New(path string) (*Writer, error) {
	dir, base := filepath.Split(path)
	if dir == "" {
		dir = "."
	}
	tmp, err := os.CreateTemp(dir, "."+base+".*.tmp")
	if err != nil {
		return nil, err
	}
	if err := tmp.Chmod(0o644); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return nil, err
	}
	return &Writer{path: path, tmp: tmp}, nil
}

func (w *Writer) Write(p []byte) (int, error) {
	return w.tmp.Write(p)
}

// Commit flushes the staged content to stable storage and renames it
// over the target. When the rename itself fails the staged file is
// kept, and calling Commit again retries the rename only.
func (w *Writer) Commit() error {
	if w.committed {
		return nil
	}
	if !w.sealed {
		if err := w.tmp.Sync(); err != nil {
			return err
		}
		if err := w.tmp.Close(); err != nil {
			return err
		}
		w.sealed = true
	}
	if err := os.Rename(w.tmp.Name(), w.path); err != nil {
		return err
	}
	w.committed = true
	return syncDir(filepath.Dir(w.path))
}

// Cancel discards the staged file. It is a no-op once Commit has
// succeeded.
func (w *Writer) Cancel() error {
	if w.committed {
		return nil
	}
	if !w.sealed {
		w.tmp.Close()
		w.sealed = true
	}
	if err := os.Remove(w.tmp.Name()); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return err
	}
	return nil
}

// WriteFile atomically replaces path with data.
func WriteFile(path string, data []byte) error {
	w, err := New(path)
	if err != nil {
		return err
	}
	defer w.Cancel()
	if _, err := w.Write(data); err != nil {
		return err
	}
	return w.Commit()
}

func syncDir(dir string) error {
	d, err := os.Open(dir)
	if err != nil {
		return err
	}
	defer d.Close()
	return d.Sync()
}
