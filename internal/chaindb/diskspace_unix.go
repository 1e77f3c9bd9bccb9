//go:build unix

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
	"golang.org/x/sys/unix"

	"github.com/wpdas/chaindb/internal/chainerr"
)

// availableSpace reports free bytes on the filesystem holding path,
// the Unix equivalent of the reference implementation's `df -k`.
func availableSpace(path string) (uint64, error) {
	var stat unix.Statfs_t
	if err := unix.Statfs(path, &stat); err != nil {
		return 0, chainerr.IoErrorf(err, "statfs %s", path)
	}
	return uint64(stat.Bavail) * uint64(stat.Bsize), nil
}
