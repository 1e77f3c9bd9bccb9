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

package segment

import (
	"encoding/json"
	"os"
	"path/filepath"

	"github.com/wpdas/chaindb/internal/aead"
	"github.com/wpdas/chaindb/internal/chainerr"
)

// MetadataFile is the name of the per-table encrypted metadata blob.
const MetadataFile = "metadata.cdb"

// RecordsPerFile is the fixed segment capacity (§3 of the spec).
const RecordsPerFile = 1000

type Metadata struct {
	CurrentFile  uint32 `json:"current_file"`
	TotalRecords uint64 `json:"total_records"`
}

// CurrentFileFor returns floor(totalRecords / RecordsPerFile).
func CurrentFileFor(totalRecords uint64) uint32 {
	return uint32(totalRecords / RecordsPerFile)
}

func metadataPath(tableDir string) string {
	return filepath.Join(tableDir, MetadataFile)
}

// ReadMetadata loads and decrypts metadata.cdb. A table directory with
// no metadata.cdb yet (just created) reads as the zero value.
func ReadMetadata(tableDir string, c *aead.Cipher) (*Metadata, error) {
	path := metadataPath(tableDir)
	raw, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return &Metadata{}, nil
	}
	if err != nil {
		return nil, chainerr.IoErrorf(err, "reading %s", path)
	}
	plain, err := c.Decrypt(raw)
	if err != nil {
		return nil, err
	}
	var m Metadata
	if err := json.Unmarshal(plain, &m); err != nil {
		return nil, chainerr.Wrap(chainerr.SerializationError, "malformed metadata.cdb", err)
	}
	return &m, nil
}

// Save encrypts and (re)writes metadata.cdb.
func (m *Metadata) Save(tableDir string, c *aead.Cipher) error {
	plain, err := json.Marshal(m)
	if err != nil {
		return chainerr.Wrap(chainerr.SerializationError, "marshaling metadata", err)
	}
	cipherText, err := c.Encrypt(plain)
	if err != nil {
		return err
	}
	path := metadataPath(tableDir)
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0600)
	if err != nil {
		return chainerr.IoErrorf(err, "opening %s", path)
	}
	defer f.Close()
	if _, err := f.Write(cipherText); err != nil {
		return chainerr.IoErrorf(err, "writing %s", path)
	}
	if err := f.Sync(); err != nil {
		return chainerr.IoErrorf(err, "fsyncing %s", path)
	}
	return syncDir(tableDir)
}
