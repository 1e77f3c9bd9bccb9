//go:build !unix

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

import "github.com/wpdas/chaindb/internal/chainerr"

// availableSpace has no portable implementation outside unix targets.
// The conservative fallback is to refuse rather than guess: a
// ChangePassword that cannot verify free space should not proceed.
func availableSpace(path string) (uint64, error) {
	return 0, chainerr.New(chainerr.ValidationError, "cannot determine available disk space on this platform")
}
