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

package chaindb

import (
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	units "github.com/docker/go-units"
	"golang.org/x/sync/errgroup"

	"github.com/wpdas/chaindb/internal/aead"
	"github.com/wpdas/chaindb/internal/chainerr"
	"github.com/wpdas/chaindb/internal/segment"
	"github.com/wpdas/chaindb/internal/table"
)

// rekeyConcurrency bounds how many tables are re-encrypted into temp/
// at once during ChangePassword — disk-I/O bound work, so unlike a
// CPU-bound fan-out this stays modest.
const rekeyConcurrency = 4

type rotationManifest struct {
	StartedAt time.Time `json:"started_at"`
	TempDir   string    `json:"temp_dir"`
	Tables    []string  `json:"tables"`
}

// ChangePassword implements the key-rotation protocol of spec.md
// §4.4.4: backup, derive a new key, re-encrypt every table into a
// staging directory, write a rotation manifest, swap, then clean up.
// A failure before the swap step leaves the original database fully
// usable with the old password; a failure during the swap is left
// detectable via the rotation manifest rather than silently patched
// over (spec.md §9 open question 2).
func (db *DB) ChangePassword(newPassword string) error {
	if constantEqual(db.Config.Password, newPassword) {
		return chainerr.New(chainerr.ValidationError, "new password is the same as the current password")
	}

	totalSize, err := dirSize(db.Dir)
	if err != nil {
		return err
	}
	required := totalSize * 2
	available, err := availableSpace(db.Dir)
	if err != nil {
		return err
	}
	if available < required {
		return chainerr.New(chainerr.ValidationError, fmt.Sprintf(
			"not enough disk space: required %s, available %s",
			units.BytesSize(float64(required)), units.BytesSize(float64(available))))
	}

	timestamp := time.Now().Format("20060102_150405")
	backupDir := filepath.Join(db.Dir, "bkp_"+timestamp)
	if err := copyDirAllFiles(db.Dir, backupDir); err != nil {
		return err
	}
	slog.Info("chaindb: rekey backup created", "database", db.Name, "path", backupDir)

	tempDir := filepath.Join(db.Dir, "temp")
	if err := os.MkdirAll(tempDir, 0750); err != nil {
		return chainerr.IoErrorf(err, "creating %s", tempDir)
	}

	newCipher := aead.New(newPassword)

	tableNames, err := listTableDirsIn(db.Dir)
	if err != nil {
		return err
	}

	succeeded := false
	swapStarted := false
	defer func() {
		if !succeeded && !swapStarted {
			slog.Warn("chaindb: rekey failed before swap, rolling back temp/", "database", db.Name)
			_ = os.RemoveAll(tempDir)
		}
	}()

	g := new(errgroup.Group)
	g.SetLimit(rekeyConcurrency)
	for _, tableName := range tableNames {
		tableName := tableName
		g.Go(func() error {
			return reencryptTable(db.Dir, tempDir, tableName, db.Cipher, newCipher)
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}

	newCfg := db.Config
	newCfg.Password = newPassword
	if err := writeConfig(tempDir, &newCfg, newCipher); err != nil {
		return err
	}

	manifest := rotationManifest{StartedAt: time.Now(), TempDir: tempDir, Tables: tableNames}
	manifestBytes, err := json.MarshalIndent(manifest, "", "  ")
	if err != nil {
		return chainerr.Wrap(chainerr.SerializationError, "marshaling rotation manifest", err)
	}
	manifestPath := filepath.Join(db.Dir, RotationManifest)
	if err := os.WriteFile(manifestPath, manifestBytes, 0600); err != nil {
		return chainerr.IoErrorf(err, "writing %s", manifestPath)
	}

	swapStarted = true
	if err := swapConfig(db.Dir, tempDir); err != nil {
		return err
	}
	for _, tableName := range tableNames {
		if err := swapTable(db.Dir, tempDir, tableName); err != nil {
			return err
		}
	}

	if err := os.Remove(manifestPath); err != nil {
		return chainerr.IoErrorf(err, "removing %s", manifestPath)
	}
	if err := os.RemoveAll(tempDir); err != nil {
		return chainerr.IoErrorf(err, "removing %s", tempDir)
	}

	db.Cipher = newCipher
	db.Config = newCfg
	// table handles were opened under the old cipher; drop the cache so
	// the next Table() call re-opens under the new one.
	db.tablesMu.Lock()
	db.tables = make(map[string]*table.Table)
	db.tablesMu.Unlock()

	succeeded = true
	slog.Info("chaindb: password changed successfully", "database", db.Name)
	return nil
}

func reencryptTable(baseDir, tempDir, tableName string, oldCipher, newCipher *aead.Cipher) error {
	srcDir := filepath.Join(baseDir, tableName)
	dstDir := filepath.Join(tempDir, tableName)
	if err := os.MkdirAll(dstDir, 0750); err != nil {
		return chainerr.IoErrorf(err, "creating %s", dstDir)
	}

	entries, err := os.ReadDir(srcDir)
	if err != nil {
		return chainerr.IoErrorf(err, "reading %s", srcDir)
	}
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		name := entry.Name()
		switch {
		case strings.HasPrefix(name, "data_") && strings.HasSuffix(name, ".cdb"):
			if err := reencryptSegment(srcDir, dstDir, name, oldCipher, newCipher); err != nil {
				return err
			}
		case name == segment.MetadataFile:
			if err := reencryptWholeFile(srcDir, dstDir, name, oldCipher, newCipher); err != nil {
				return err
			}
		}
	}
	return nil
}

func reencryptSegment(srcDir, dstDir, name string, oldCipher, newCipher *aead.Cipher) error {
	srcPath := filepath.Join(srcDir, name)
	lines, err := readAllLines(srcPath)
	if err != nil {
		return err
	}
	var out strings.Builder
	for _, line := range lines {
		if line == "" {
			continue
		}
		raw, err := base64.StdEncoding.DecodeString(line)
		if err != nil {
			return chainerr.Wrap(chainerr.SerializationError, "decoding "+srcPath, err)
		}
		plain, err := oldCipher.Decrypt(raw)
		if err != nil {
			return err
		}
		newCt, err := newCipher.Encrypt(plain)
		if err != nil {
			return err
		}
		out.WriteString(base64.StdEncoding.EncodeToString(newCt))
		out.WriteByte('\n')
	}
	dstPath := filepath.Join(dstDir, name)
	if err := os.WriteFile(dstPath, []byte(out.String()), 0600); err != nil {
		return chainerr.IoErrorf(err, "writing %s", dstPath)
	}
	return nil
}

func reencryptWholeFile(srcDir, dstDir, name string, oldCipher, newCipher *aead.Cipher) error {
	srcPath := filepath.Join(srcDir, name)
	raw, err := os.ReadFile(srcPath)
	if err != nil {
		return chainerr.IoErrorf(err, "reading %s", srcPath)
	}
	plain, err := oldCipher.Decrypt(raw)
	if err != nil {
		return err
	}
	newCt, err := newCipher.Encrypt(plain)
	if err != nil {
		return err
	}
	dstPath := filepath.Join(dstDir, name)
	if err := os.WriteFile(dstPath, newCt, 0600); err != nil {
		return chainerr.IoErrorf(err, "writing %s", dstPath)
	}
	return nil
}

func swapConfig(baseDir, tempDir string) error {
	src := filepath.Join(tempDir, ConfigFile)
	dst := filepath.Join(baseDir, ConfigFile)
	return replaceFile(src, dst)
}

func swapTable(baseDir, tempDir, tableName string) error {
	srcDir := filepath.Join(tempDir, tableName)
	dstDir := filepath.Join(baseDir, tableName)
	entries, err := os.ReadDir(srcDir)
	if err != nil {
		return chainerr.IoErrorf(err, "reading %s", srcDir)
	}
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		if err := replaceFile(filepath.Join(srcDir, entry.Name()), filepath.Join(dstDir, entry.Name())); err != nil {
			return err
		}
	}
	return nil
}

func replaceFile(src, dst string) error {
	if _, err := os.Stat(dst); err == nil {
		if err := os.Remove(dst); err != nil {
			return chainerr.IoErrorf(err, "removing %s", dst)
		}
	}
	in, err := os.Open(src)
	if err != nil {
		return chainerr.IoErrorf(err, "opening %s", src)
	}
	defer in.Close()
	out, err := os.OpenFile(dst, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0600)
	if err != nil {
		return chainerr.IoErrorf(err, "creating %s", dst)
	}
	defer out.Close()
	if _, err := io.Copy(out, in); err != nil {
		return chainerr.IoErrorf(err, "copying %s to %s", src, dst)
	}
	return out.Sync()
}

func readAllLines(path string) ([]string, error) {
	raw, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, chainerr.IoErrorf(err, "reading %s", path)
	}
	return strings.Split(strings.TrimRight(string(raw), "\n"), "\n"), nil
}

// listTableDirsIn enumerates table subdirectories of baseDir, skipping
// bkp_*, temp, and anything without a metadata.cdb.
func listTableDirsIn(baseDir string) ([]string, error) {
	entries, err := os.ReadDir(baseDir)
	if err != nil {
		return nil, chainerr.IoErrorf(err, "reading %s", baseDir)
	}
	var names []string
	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}
		n := entry.Name()
		if n == "temp" || strings.HasPrefix(n, "bkp_") {
			continue
		}
		if _, err := os.Stat(filepath.Join(baseDir, n, segment.MetadataFile)); err != nil {
			continue
		}
		names = append(names, n)
	}
	return names, nil
}

// copyDirAllFiles recursively copies source into destination, skipping
// any directory named "temp", any directory starting with "bkp_", and
// the destination itself.
func copyDirAllFiles(source, destination string) error {
	if err := os.MkdirAll(destination, 0750); err != nil {
		return chainerr.IoErrorf(err, "creating %s", destination)
	}
	return filepath.WalkDir(source, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if path == source {
			return nil
		}
		rel, err := filepath.Rel(source, path)
		if err != nil {
			return err
		}
		base := filepath.Base(path)
		if d.IsDir() {
			if base == "temp" || strings.HasPrefix(base, "bkp_") {
				return filepath.SkipDir
			}
			return os.MkdirAll(filepath.Join(destination, rel), 0750)
		}
		return copyFile(path, filepath.Join(destination, rel))
	})
}

func copyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return chainerr.IoErrorf(err, "opening %s", src)
	}
	defer in.Close()
	if err := os.MkdirAll(filepath.Dir(dst), 0750); err != nil {
		return chainerr.IoErrorf(err, "creating %s", filepath.Dir(dst))
	}
	out, err := os.Create(dst)
	if err != nil {
		return chainerr.IoErrorf(err, "creating %s", dst)
	}
	defer out.Close()
	if _, err := io.Copy(out, in); err != nil {
		return chainerr.IoErrorf(err, "copying %s to %s", src, dst)
	}
	return nil
}

// dirSize sums file sizes under dir, excluding bkp_* directories (the
// reference's calculate_dir_size, minus backups that don't yet exist
// when this is called, since it runs before the backup step).
func dirSize(dir string) (uint64, error) {
	var total uint64
	err := filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			base := filepath.Base(path)
			if base != filepath.Base(dir) && strings.HasPrefix(base, "bkp_") {
				return filepath.SkipDir
			}
			return nil
		}
		info, err := d.Info()
		if err != nil {
			return err
		}
		total += uint64(info.Size())
		return nil
	})
	if err != nil {
		return 0, chainerr.IoErrorf(err, "computing size of %s", dir)
	}
	return total, nil
}
