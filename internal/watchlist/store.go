package watchlist

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/nao1215/exitwatch/internal/model"
)

// maxLineLength bounds a single line of the exit list format.
const maxLineLength = 1024

// ParseStats describes what Read saw.
type ParseStats struct {
	// Lines is the number of non-blank lines read.
	Lines int

	// Duplicates is the number of lines repeating an earlier address.
	Duplicates int

	// InvalidLines holds the 1-based line numbers that were not IP literals.
	InvalidLines []int
}

// Diagnostics returns one diagnostic per invalid line.
func (ps ParseStats) Diagnostics(source string) model.Diagnostics {
	diags := make(model.Diagnostics, 0, len(ps.InvalidLines))
	for _, n := range ps.InvalidLines {
		diags = append(diags, model.Diagnostic{
			Stage:   model.StageWatchlist,
			Kind:    model.KindInvalidWatchlistEntry,
			Index:   n,
			Message: "not an IP address literal in " + source,
		})
	}
	return diags
}

// Read parses the line format. Blank lines are skipped; lines that are not
// IP literals are skipped and reported in ParseStats.
func Read(r io.Reader) (*Set, ParseStats, error) {
	var stats ParseStats
	set := &Set{members: make(map[string]struct{})}

	scanner := bufio.NewScanner(r)
	// The initial capacity also caps the token size, so it must not exceed the limit.
	scanner.Buffer(make([]byte, 0, maxLineLength), maxLineLength)

	lineNo := 0
	for scanner.Scan() {
		lineNo++
		line := scanner.Text()
		if isBlank(line) {
			continue
		}
		stats.Lines++

		addr, ok := Normalize(line)
		if !ok {
			stats.InvalidLines = append(stats.InvalidLines, lineNo)
			continue
		}
		if _, dup := set.members[addr]; dup {
			stats.Duplicates++
			continue
		}
		set.members[addr] = struct{}{}
	}
	if err := scanner.Err(); err != nil {
		return nil, stats, fmt.Errorf("failed to read exit list: %w", err)
	}

	return set, stats, nil
}

func isBlank(s string) bool {
	for _, c := range s {
		if c != ' ' && c != '\t' && c != '\r' {
			return false
		}
	}
	return true
}

// Write emits the set in line format, sorted, one newline-terminated address per line.
func Write(w io.Writer, s *Set) error {
	bw := bufio.NewWriter(w)
	for _, addr := range s.Addresses() {
		if _, err := bw.WriteString(addr + "\n"); err != nil {
			return err
		}
	}
	return bw.Flush()
}

// ReadFile reads a Set from the file at path.
func ReadFile(path string) (*Set, ParseStats, error) {
	f, err := os.Open(path) //nolint:gosec // User-provided list path is intentional
	if err != nil {
		return nil, ParseStats{}, err
	}
	defer f.Close()

	return Read(f)
}

// WriteFile writes s to path atomically, creating parent directories.
// The file is readable by the owner only.
func WriteFile(path string, s *Set) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0750); err != nil {
		return fmt.Errorf("failed to create exit list directory: %w", err)
	}

	tmp, err := os.CreateTemp(dir, ".exitlist-*")
	if err != nil {
		return fmt.Errorf("failed to create temporary exit list: %w", err)
	}
	tmpName := tmp.Name()

	if err := Write(tmp, s); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmpName)
		return fmt.Errorf("failed to write exit list: %w", err)
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmpName)
		return fmt.Errorf("failed to write exit list: %w", err)
	}
	if err := os.Chmod(tmpName, 0600); err != nil {
		_ = os.Remove(tmpName)
		return fmt.Errorf("failed to set exit list permissions: %w", err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		_ = os.Remove(tmpName)
		return errors.Join(fmt.Errorf("failed to replace exit list %s", path), err)
	}
	return nil
}
