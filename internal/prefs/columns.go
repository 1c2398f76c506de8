package prefs

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/automerge/automerge-go"
)

// Columns remembers the displayed column set of each database, keyed by
// absolute database path. The document lives in dir as a snapshot plus
// optional incremental changes.
type Columns struct {
	dir string
}

func NewColumns(cacheDir string) *Columns {
	return &Columns{dir: filepath.Join(cacheDir, "columns")}
}

func columnsKey(dbPath string) (string, error) {
	abs, err := filepath.Abs(dbPath)
	if err != nil {
		return "", fmt.Errorf("column key %s: %w", dbPath, err)
	}
	return abs, nil
}

// Load returns the saved columns of dbPath, ok is false when none are saved.
func (c *Columns) Load(dbPath string) (cols []string, ok bool, err error) {
	key, err := columnsKey(dbPath)
	if err != nil {
		return nil, false, err
	}
	doc, err := loadDoc(c.dir)
	if err != nil || doc == nil {
		return nil, false, err
	}
	v, err := doc.Path(key).Get()
	if err != nil || v.Kind() != automerge.KindList {
		return nil, false, nil
	}
	l := v.List()
	cols = make([]string, 0, l.Len())
	for i := 0; i < l.Len(); i++ {
		item, err := l.Get(i)
		if err != nil {
			return nil, false, fmt.Errorf("columns of %s: %w", key, err)
		}
		if item.Kind() == automerge.KindStr {
			cols = append(cols, item.Str())
		}
	}
	return cols, true, nil
}

// Save stores cols for dbPath. The document on disk is re-read first so
// entries saved meanwhile by another session survive.
func (c *Columns) Save(dbPath string, cols []string) error {
	key, err := columnsKey(dbPath)
	if err != nil {
		return err
	}
	doc, err := loadDoc(c.dir)
	if err != nil {
		slog.Warn("column store unreadable, starting over", "dir", c.dir, "err", err)
	}
	if doc == nil {
		doc = automerge.New()
	}
	if err := doc.Path(key).Set(automerge.NewList()); err != nil {
		return fmt.Errorf("columns of %s: %w", key, err)
	}
	l := doc.Path(key).List()
	for _, col := range cols {
		if err := l.Append(col); err != nil {
			return fmt.Errorf("columns of %s: %w", key, err)
		}
	}
	if _, err := doc.Commit("columns " + key); err != nil {
		return fmt.Errorf("commit columns: %w", err)
	}
	return saveDoc(doc, c.dir)
}

// loadDoc reads the snapshot in dir and applies any incremental changes.
// A missing store gives a nil doc and no error.
func loadDoc(dir string) (*automerge.Doc, error) {
	var doc *automerge.Doc
	if entries, err := os.ReadDir(filepath.Join(dir, "snapshot")); err == nil {
		for _, e := range entries {
			// skip directories and half written saves
			if e.IsDir() || strings.HasPrefix(e.Name(), ".") {
				continue
			}
			data, err := os.ReadFile(filepath.Join(dir, "snapshot", e.Name()))
			if err != nil {
				continue
			}
			if doc, err = automerge.Load(data); err != nil {
				return nil, fmt.Errorf("load snapshot: %w", err)
			}
			break
		}
	}
	if entries, err := os.ReadDir(filepath.Join(dir, "incremental")); err == nil {
		for _, e := range entries {
			if e.IsDir() {
				continue
			}
			data, err := os.ReadFile(filepath.Join(dir, "incremental", e.Name()))
			if err != nil {
				continue
			}
			if doc == nil {
				if doc, err = automerge.Load(data); err != nil {
					return nil, fmt.Errorf("load incremental: %w", err)
				}
				continue
			}
			if err := doc.LoadIncremental(data); err != nil {
				return nil, fmt.Errorf("apply incremental %s: %w", e.Name(), err)
			}
		}
	}
	return doc, nil
}

// saveDoc replaces the snapshot and drops the incrementals it supersedes.
func saveDoc(doc *automerge.Doc, dir string) error {
	snapDir := filepath.Join(dir, "snapshot")
	if err := os.MkdirAll(snapDir, 0o755); err != nil {
		return fmt.Errorf("column store: %w", err)
	}
	tmp, err := os.CreateTemp(snapDir, ".save-*")
	if err != nil {
		return fmt.Errorf("column store: %w", err)
	}
	if _, err := tmp.Write(doc.Save()); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return fmt.Errorf("column store: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return fmt.Errorf("column store: %w", err)
	}
	if entries, err := os.ReadDir(snapDir); err == nil {
		for _, e := range entries {
			if e.Name() != "columns" && filepath.Join(snapDir, e.Name()) != tmp.Name() {
				os.Remove(filepath.Join(snapDir, e.Name()))
			}
		}
	}
	os.RemoveAll(filepath.Join(dir, "incremental"))
	return os.Rename(tmp.Name(), filepath.Join(snapDir, "columns"))
}
