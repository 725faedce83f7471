package pbf

import (
	"bufio"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strconv"
	"strings"
)

// Marker identifies the last group whose entities were committed.
type Marker struct {
	Block int
	Group int
}

// Start is the marker of a run that has committed nothing yet.
var Start = Marker{Block: 0, Group: -1}

// Covers reports whether the group (block, group) was committed at or
// before m.
func (m Marker) Covers(block, group int) bool {
	if block != m.Block {
		return block < m.Block
	}
	return group <= m.Group
}

func (m Marker) String() string {
	return fmt.Sprintf("%d:%d", m.Block, m.Group)
}

// SideFiles names the line-oriented files persisted next to an input:
// <base>.blockinfo, <base>.indexinfo and <base>.progress.
type SideFiles struct {
	Base string
}

func (s SideFiles) BlockInfoPath() string { return s.Base + ".blockinfo" }
func (s SideFiles) IndexInfoPath() string { return s.Base + ".indexinfo" }
func (s SideFiles) ProgressPath() string  { return s.Base + ".progress" }

// Complete reports whether all three side files exist.
func (s SideFiles) Complete() bool {
	for _, p := range []string{s.BlockInfoPath(), s.IndexInfoPath(), s.ProgressPath()} {
		if _, err := os.Stat(p); err != nil {
			return false
		}
	}
	return true
}

// Remove deletes every side file. Missing files are not an error.
func (s SideFiles) Remove() error {
	var errs []error
	for _, p := range []string{s.BlockInfoPath(), s.IndexInfoPath(), s.ProgressPath()} {
		if err := os.Remove(p); err != nil && !errors.Is(err, fs.ErrNotExist) {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// SaveIndex writes the block table and the group index.
func (s SideFiles) SaveIndex(idx *Index) error {
	var b strings.Builder
	for _, bi := range idx.Blocks {
		fmt.Fprintf(&b, "%d:%d:%d\n", bi.ID, bi.Offset, bi.Size)
	}
	if err := writeAtomic(s.BlockInfoPath(), b.String()); err != nil {
		return err
	}

	b.Reset()
	for _, e := range idx.Entries() {
		fmt.Fprintf(&b, "%d:%d:%s:%d:%d\n", e.Block, e.Group, e.Kind, e.MinID, e.MaxID)
	}
	return writeAtomic(s.IndexInfoPath(), b.String())
}

// LoadIndex reads a previously saved index. It returns ErrNoSideFiles when
// either file is missing.
func (s SideFiles) LoadIndex() (*Index, error) {
	var blocks []BlockInfo
	err := readLines(s.BlockInfoPath(), 3, func(f []string) error {
		id, err := strconv.Atoi(f[0])
		if err != nil {
			return err
		}
		off, err := strconv.ParseInt(f[1], 10, 64)
		if err != nil {
			return err
		}
		size, err := strconv.ParseInt(f[2], 10, 64)
		if err != nil {
			return err
		}
		blocks = append(blocks, BlockInfo{ID: id, Offset: off, Size: size})
		return nil
	})
	if err != nil {
		return nil, err
	}
	if len(blocks) == 0 {
		return nil, fmt.Errorf("%s: %w", s.BlockInfoPath(), ErrEmptyFile)
	}

	var entries []IndexEntry
	err = readLines(s.IndexInfoPath(), 5, func(f []string) error {
		var e IndexEntry
		var err error
		if e.Block, err = strconv.Atoi(f[0]); err != nil {
			return err
		}
		if e.Group, err = strconv.Atoi(f[1]); err != nil {
			return err
		}
		if e.Kind, err = ParseEntityKind(f[2]); err != nil {
			return err
		}
		if e.MinID, err = strconv.ParseInt(f[3], 10, 64); err != nil {
			return err
		}
		if e.MaxID, err = strconv.ParseInt(f[4], 10, 64); err != nil {
			return err
		}
		entries = append(entries, e)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return NewIndex(blocks, entries)
}

// SaveProgress durably replaces the progress marker.
func (s SideFiles) SaveProgress(m Marker) error {
	return writeAtomic(s.ProgressPath(), m.String()+"\n")
}

// LoadProgress reads the progress marker. It returns ErrNoSideFiles when
// the file is missing.
func (s SideFiles) LoadProgress() (Marker, error) {
	var (
		m     Marker
		found bool
	)
	err := readLines(s.ProgressPath(), 2, func(f []string) error {
		var err error
		if m.Block, err = strconv.Atoi(f[0]); err != nil {
			return err
		}
		if m.Group, err = strconv.Atoi(f[1]); err != nil {
			return err
		}
		found = true
		return nil
	})
	if err != nil {
		return Marker{}, err
	}
	if !found {
		return Marker{}, &SideFileError{Path: s.ProgressPath(), Line: 1, Err: errors.New("empty progress file")}
	}
	return m, nil
}

func readLines(path string, fields int, fn func([]string) error) error {
	f, err := os.Open(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return fmt.Errorf("%w: %s", ErrNoSideFiles, path)
		}
		return err
	}
	defer f.Close()

	sc := bufio.NewScanner(f)
	line := 0
	for sc.Scan() {
		line++
		text := strings.TrimSpace(sc.Text())
		if text == "" {
			continue
		}
		parts := strings.Split(text, ":")
		if len(parts) != fields {
			return &SideFileError{Path: path, Line: line, Text: text, Err: fmt.Errorf("want %d fields, got %d", fields, len(parts))}
		}
		if err := fn(parts); err != nil {
			return &SideFileError{Path: path, Line: line, Text: text, Err: err}
		}
	}
	return sc.Err()
}

// writeAtomic replaces path with data via a synced temporary file and a rename.
func writeAtomic(path, data string) error {
	tmp, err := os.CreateTemp(filepath.Dir(path), filepath.Base(path)+".tmp*")
	if err != nil {
		return err
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.WriteString(data); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	return os.Rename(tmp.Name(), path)
}
