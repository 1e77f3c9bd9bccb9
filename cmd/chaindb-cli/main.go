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

// chaindb-cli is an interactive admin shell for a data root: create and
// connect to databases, inspect tables, and rotate a database's
// password, without going through the HTTP facade. Its REPL loop is
// grounded on scm.Repl (scm/prompt.go) of the teacher repo.
package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/chzyer/readline"

	"github.com/wpdas/chaindb/internal/chaindb"
	"github.com/wpdas/chaindb/internal/config"
	"github.com/wpdas/chaindb/internal/events"
	"github.com/wpdas/chaindb/internal/table"
)

const (
	prompt      = "\033[32mchaindb>\033[0m "
	resultGlyph = "\033[31m=\033[0m "
)

type shell struct {
	root  string
	bus   *events.Bus
	db    *chaindb.DB
	table *table.Table
}

func main() {
	settings := config.Default
	settings.RegisterFlags(flag.CommandLine)
	flag.Parse()

	sh := &shell{root: settings.DataDir, bus: events.Default()}

	l, err := readline.NewEx(&readline.Config{
		Prompt:            prompt,
		HistoryFile:       ".chaindb-cli-history.tmp",
		InterruptPrompt:   "^C",
		EOFPrompt:         "exit",
		HistorySearchFold: true,
	})
	if err != nil {
		panic(err)
	}
	defer l.Close()
	l.CaptureExitSignal()

	fmt.Println("chaindb admin shell — type 'help' for commands")
	for {
		line, err := l.Readline()
		if err == readline.ErrInterrupt {
			continue
		} else if err == io.EOF {
			break
		} else if err != nil {
			break
		}
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		if line == "exit" || line == "quit" {
			break
		}
		func() {
			defer func() {
				if r := recover(); r != nil {
					fmt.Println("error:", r)
				}
			}()
			sh.dispatch(line, l)
		}()
	}
}

func (sh *shell) dispatch(line string, l *readline.Instance) {
	fields := strings.Fields(line)
	cmd, args := fields[0], fields[1:]

	switch cmd {
	case "help":
		printHelp()
	case "create":
		requireArgs(args, 3, "create <db> <user> <password>")
		must(chaindb.CreateDatabase(sh.root, args[0], args[1], args[2]))
		fmt.Println(resultGlyph + "database created")
	case "connect":
		requireArgs(args, 3, "connect <db> <user> <password>")
		db, token, err := chaindb.Connect(sh.root, sh.bus, args[0], args[1], args[2])
		must(err)
		sh.db = db
		sh.table = nil
		l.SetPrompt(fmt.Sprintf("\033[32mchaindb(%s)>\033[0m ", args[0]))
		fmt.Println(resultGlyph + "connected, token=" + token)
	case "rekey":
		requireArgs(args, 1, "rekey <new-password>")
		requireDB(sh)
		must(sh.db.ChangePassword(args[0]))
		fmt.Println(resultGlyph + "password changed")
	case "tables":
		requireDB(sh)
		names, err := sh.db.ListTables()
		must(err)
		for _, n := range names {
			fmt.Println(n)
		}
	case "use":
		requireArgs(args, 1, "use <table>")
		requireDB(sh)
		t, err := sh.db.Table(args[0])
		must(err)
		sh.table = t
		fmt.Println(resultGlyph + "using table " + args[0])
	case "get":
		requireTable(sh)
		rec, err := sh.table.GetTable()
		must(err)
		printJSON(rec)
	case "persist":
		requireArgs(args, 1, "persist <json>")
		requireTable(sh)
		rec := decodeRecord(strings.Join(args, " "))
		out, err := sh.table.Persist(rec)
		must(err)
		printJSON(out)
	case "update":
		requireArgs(args, 2, "update <doc_id> <json>")
		requireTable(sh)
		rec := decodeRecord(strings.Join(args[1:], " "))
		out, err := sh.table.Update(table.Record{"data": rec}, args[0])
		must(err)
		printJSON(out)
	case "history":
		requireTable(sh)
		limit := table.NoLimit
		if len(args) > 0 {
			n, err := strconv.Atoi(args[0])
			must(err)
			limit = n
		}
		recs, err := sh.table.GetHistory(limit)
		must(err)
		printJSON(recs)
	case "find":
		requireArgs(args, 1, "find <json-criteria>")
		requireTable(sh)
		criteria := decodeRecord(strings.Join(args, " "))
		recs, err := sh.table.FindWhere(criteria, table.NoLimit, true)
		must(err)
		printJSON(recs)
	default:
		fmt.Println("unknown command:", cmd, "(type 'help')")
	}
}

func printHelp() {
	fmt.Println(`commands:
  create <db> <user> <password>
  connect <db> <user> <password>
  rekey <new-password>
  tables
  use <table>
  get
  persist <json>
  update <doc_id> <json>
  history [limit]
  find <json-criteria>
  exit`)
}

func requireArgs(args []string, n int, usage string) {
	if len(args) < n {
		panic("usage: " + usage)
	}
}

func requireDB(sh *shell) {
	if sh.db == nil {
		panic("not connected; run 'connect <db> <user> <password>' first")
	}
}

func requireTable(sh *shell) {
	requireDB(sh)
	if sh.table == nil {
		panic("no table selected; run 'use <table>' first")
	}
}

func decodeRecord(raw string) map[string]interface{} {
	var rec map[string]interface{}
	if err := json.Unmarshal([]byte(raw), &rec); err != nil {
		panic("malformed json: " + err.Error())
	}
	return rec
}

func printJSON(v interface{}) {
	b, err := json.MarshalIndent(v, "", "  ")
	must(err)
	fmt.Println(resultGlyph + string(b))
}

func must(err error) {
	if err != nil {
		panic(err.Error())
	}
}
