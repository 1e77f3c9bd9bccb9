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

// Package config holds the process-wide, mostly-static knobs of a
// chaindb process: where the data root lives and what address the
// server binds. Grounded on the teacher's SettingsT (storage/settings.go):
// one struct of plain fields with a package-level default instance,
// rather than a config file format of its own.
package config

import (
	"flag"
)

const (
	DefaultDataDir = ".chain_db_data"
	DefaultBind    = "0.0.0.0:2818"
)

type Settings struct {
	DataDir string
	Bind    string
	Verbose bool
}

// Default mirrors the reference's process-wide state root of
// "./.chain_db_data/{db_name}/" and its fixed bind address.
var Default = Settings{
	DataDir: DefaultDataDir,
	Bind:    DefaultBind,
}

// RegisterFlags wires s's fields to flags on the given flag.FlagSet
// (each of cmd/chaindb-server and cmd/chaindb-cli calls this with
// flag.CommandLine on its own copy of Settings).
func (s *Settings) RegisterFlags(fs *flag.FlagSet) {
	fs.StringVar(&s.DataDir, "data-dir", s.DataDir, "root directory for database directories")
	fs.StringVar(&s.Bind, "bind", s.Bind, "address for the HTTP/WebSocket server to listen on")
	fs.BoolVar(&s.Verbose, "verbose", s.Verbose, "enable verbose (debug level) logging")
}
