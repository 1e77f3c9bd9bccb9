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

// Package chaindb is the Database Controller: database lifecycle
// (create, connect, rekey) and table enumeration on top of a directory
// tree of AEAD-encrypted segment logs.
package chaindb

import (
	"encoding/json"
	"os"
	"path/filepath"

	"github.com/wpdas/chaindb/internal/aead"
	"github.com/wpdas/chaindb/internal/chainerr"
)

const ConfigFile = "config.cdb"

// DatabaseConfig is the plaintext credential record, encrypted whole
// under the database's master key.
type DatabaseConfig struct {
	Name     string `json:"name"`
	User     string `json:"user"`
	Password string `json:"password"`
}

func configPath(baseDir string) string {
	return filepath.Join(baseDir, ConfigFile)
}

func readConfig(baseDir string, cipher *aead.Cipher) (*DatabaseConfig, error) {
	path := configPath(baseDir)
	raw, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return nil, chainerr.New(chainerr.ConfigNotFound, "missing "+path)
	}
	if err != nil {
		return nil, chainerr.IoErrorf(err, "reading %s", path)
	}
	plain, err := cipher.Decrypt(raw)
	if err != nil {
		return nil, err
	}
	var cfg DatabaseConfig
	if err := json.Unmarshal(plain, &cfg); err != nil {
		return nil, chainerr.Wrap(chainerr.SerializationError, "malformed config.cdb", err)
	}
	return &cfg, nil
}

func writeConfig(baseDir string, cfg *DatabaseConfig, cipher *aead.Cipher) error {
	plain, err := json.Marshal(cfg)
	if err != nil {
		return chainerr.Wrap(chainerr.SerializationError, "marshaling config", err)
	}
	ct, err := cipher.Encrypt(plain)
	if err != nil {
		return err
	}
	path := configPath(baseDir)
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0600)
	if err != nil {
		return chainerr.IoErrorf(err, "opening %s", path)
	}
	defer f.Close()
	if _, err := f.Write(ct); err != nil {
		return chainerr.IoErrorf(err, "writing %s", path)
	}
	if err := f.Sync(); err != nil {
		return chainerr.IoErrorf(err, "fsyncing %s", path)
	}
	return nil
}
