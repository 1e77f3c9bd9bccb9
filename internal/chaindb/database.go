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
	"crypto/subtle"
	"encoding/base64"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/wpdas/chaindb/internal/aead"
	"github.com/wpdas/chaindb/internal/chainerr"
	"github.com/wpdas/chaindb/internal/events"
	"github.com/wpdas/chaindb/internal/segment"
	"github.com/wpdas/chaindb/internal/table"
)

// RotationManifest is the name of the marker written before the
// destructive "swap" step of ChangePassword and removed after it
// succeeds. See spec.md §9 open question 2.
const RotationManifest = "rotation.json"

// DB is one authenticated handle on a database directory. It owns the
// derived AEAD key and lends it to the Table handles it opens; it is
// not safe to share across goroutines for writes (spec.md §5).
type DB struct {
	Root   string
	Name   string
	Dir    string
	Config DatabaseConfig
	Cipher *aead.Cipher
	Bus    *events.Bus

	tablesMu sync.Mutex
	tables   map[string]*table.Table
}

// CreateDatabase fails with DatabaseAlreadyExists if root/name already
// exists. Otherwise it creates the directory and writes an encrypted
// config.cdb.
func CreateDatabase(root, name, user, password string) error {
	baseDir := filepath.Join(root, name)
	if _, err := os.Stat(baseDir); err == nil {
		return chainerr.New(chainerr.DatabaseAlreadyExists, "database '"+name+"' already exists")
	}
	cipher := aead.New(password)
	if err := os.MkdirAll(baseDir, 0750); err != nil {
		return chainerr.IoErrorf(err, "creating database directory %s", baseDir)
	}
	cfg := &DatabaseConfig{Name: name, User: user, Password: password}
	return writeConfig(baseDir, cfg, cipher)
}

// Connect reads and decrypts config.cdb, requires plaintext equality
// of all three credential fields (compared in constant time per
// spec.md §9 open question 4), and returns an authenticated handle
// plus the reversible, non-session auth token described in spec.md §6.
func Connect(root string, bus *events.Bus, name, user, password string) (*DB, string, error) {
	baseDir := filepath.Join(root, name)
	if _, err := os.Stat(baseDir); os.IsNotExist(err) {
		return nil, "", chainerr.New(chainerr.DatabaseNotFound, "database '"+name+"' not found")
	}

	if _, err := os.Stat(filepath.Join(baseDir, RotationManifest)); err == nil {
		return nil, "", chainerr.New(chainerr.ValidationError,
			"interrupted key rotation; manual recovery required, see "+RotationManifest)
	}

	cipher := aead.New(password)
	cfg, err := readConfig(baseDir, cipher)
	if err != nil {
		if chainerr.Of(err) == chainerr.DecryptionError {
			return nil, "", chainerr.New(chainerr.InvalidCredentials, "invalid credentials")
		}
		return nil, "", err
	}

	if !constantEqual(cfg.Name, name) || !constantEqual(cfg.User, user) || !constantEqual(cfg.Password, password) {
		return nil, "", chainerr.New(chainerr.InvalidCredentials, "invalid credentials")
	}

	if bus == nil {
		bus = events.Default()
	}

	db := &DB{
		Root:   root,
		Name:   name,
		Dir:    baseDir,
		Config: *cfg,
		Cipher: cipher,
		Bus:    bus,
		tables: make(map[string]*table.Table),
	}
	return db, authToken(name, user, password), nil
}

func authToken(name, user, password string) string {
	return base64.StdEncoding.EncodeToString([]byte(fmt.Sprintf("%s:%s:%s", name, user, password)))
}

func constantEqual(a, b string) bool {
	if len(a) != len(b) {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(a), []byte(b)) == 1
}

// Table returns a handle on the named table, creating its directory
// and metadata on first reference, and caching it for the lifetime of
// this DB handle.
func (db *DB) Table(name string) (*table.Table, error) {
	db.tablesMu.Lock()
	defer db.tablesMu.Unlock()
	if t, ok := db.tables[name]; ok {
		return t, nil
	}
	dir := filepath.Join(db.Dir, name)
	t, err := table.Open(dir, db.Name, name, db.Cipher, db.Bus)
	if err != nil {
		return nil, err
	}
	db.tables[name] = t
	return t, nil
}

// ListTables enumerates subdirectories of the database directory,
// excluding config.cdb, the rotation manifest, bkp_*/temp staging
// directories, and any entry lacking a metadata.cdb child.
func ListTables(root, name string) ([]string, error) {
	baseDir := filepath.Join(root, name)
	entries, err := os.ReadDir(baseDir)
	if err != nil {
		return nil, chainerr.IoErrorf(err, "reading database directory %s", baseDir)
	}
	var tables []string
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
		tables = append(tables, n)
	}
	return tables, nil
}

// ListTables enumerates this DB's tables.
func (db *DB) ListTables() ([]string, error) {
	return ListTables(db.Root, db.Name)
}
