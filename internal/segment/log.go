/*
Copyright (C) 2024  Carl-Philip Hänsch

    This program is free software: you can redistribute it and/or modify
    it under the terms of the GNU General Public License as published by
    the Free Software Foundation, either version 3 of the License, or
    (at your option) any later version.

    This program is distributed in the hope that it will be useful,
    but WITHOUT ANY WARRANTY; without even the implied warranty of
    MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
    GNU General Public License for more details.

    You should have received a copy of the GNU General Public License
    along with this program.  If not, see <https://www.gnu.org/licenses/>.
*/

// Package segment implements the per-table append-only log: fixed
// capacity files data_{N}.cdb, one base64(AEAD ciphertext) line each,
// plus the encrypted metadata.cdb that records current_file and
// total_records. It intentionally knows nothing about JSON records —
// that's the Table Engine's job — it only moves encrypted lines.
package segment

import (
	"bufio"
	"bytes"
	"fmt"
	"os"
	"path/filepath"

	"github.com/wpdas/chaindb/internal/chainerr"
)

func FileName(n uint32) string {
	return fmt.Sprintf("data_%d.cdb", n)
}

func FilePath(tableDir string, n uint32) string {
	return filepath.Join(tableDir, FileName(n))
}

// AppendLine appends one already-encoded line (without trailing
// newline) to segment n, creating it if necessary, then fsyncs the
// file and the table directory.
func AppendLine(tableDir string, n uint32, line string) error {
	path := FilePath(tableDir, n)
	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0600)
	if err != nil {
		return chainerr.IoErrorf(err, "opening %s", path)
	}
	defer f.Close()
	if _, err := f.WriteString(line + "\n"); err != nil {
		return chainerr.IoErrorf(err, "appending to %s", path)
	}
	if err := f.Sync(); err != nil {
		return chainerr.IoErrorf(err, "fsyncing %s", path)
	}
	return syncDir(tableDir)
}

// ReadLines returns every non-empty line of segment n in file order.
// A segment that doesn't exist yet reads as empty, not an error.
func ReadLines(tableDir string, n uint32) ([]string, error) {
	path := FilePath(tableDir, n)
	f, err := os.Open(path)
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, chainerr.IoErrorf(err, "opening %s", path)
	}
	defer f.Close()

	var lines []string
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 16*1024*1024)
	for scanner.Scan() {
		line := scanner.Text()
		if line == "" {
			continue
		}
		lines = append(lines, line)
	}
	if err := scanner.Err(); err != nil {
		return nil, chainerr.IoErrorf(err, "reading %s", path)
	}
	return lines, nil
}

// RewriteLines truncates segment n and writes back the given lines,
// each followed by a newline, then fsyncs file and directory. Used by
// Update, which rewrites exactly one segment in full.
func RewriteLines(tableDir string, n uint32, lines []string) error {
	path := FilePath(tableDir, n)
	var buf bytes.Buffer
	for _, l := range lines {
		buf.WriteString(l)
		buf.WriteByte('\n')
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0600)
	if err != nil {
		return chainerr.IoErrorf(err, "opening %s for rewrite", path)
	}
	defer f.Close()
	if _, err := f.Write(buf.Bytes()); err != nil {
		return chainerr.IoErrorf(err, "rewriting %s", path)
	}
	if err := f.Sync(); err != nil {
		return chainerr.IoErrorf(err, "fsyncing %s", path)
	}
	return syncDir(tableDir)
}

// syncDir fsyncs a directory so a crash can't lose a just-created file
// entry even though its data was already fsynced.
func syncDir(dir string) error {
	d, err := os.Open(dir)
	if err != nil {
		// best-effort: some platforms (and some filesystems) don't
		// support fsyncing a directory handle at all.
		return nil
	}
	defer d.Close()
	_ = d.Sync()
	return nil
}
