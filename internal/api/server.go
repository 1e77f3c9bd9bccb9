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

package api

import (
	"net/http"
	"sync"

	"github.com/wpdas/chaindb/internal/chaindb"
	"github.com/wpdas/chaindb/internal/events"
)

// Server is the HTTP/WebSocket service facade over a data root shared
// by every database it serves. It holds one process-wide event Bus
// (spec.md §3) and a small cache of already-authenticated DB handles so
// routine requests don't re-derive an AES key on every call.
type Server struct {
	Root string
	Bus  *events.Bus

	cacheMu sync.Mutex
	cache   map[string]*chaindb.DB
}

func NewServer(root string) *Server {
	return &Server{
		Root:  root,
		Bus:   events.Default(),
		cache: make(map[string]*chaindb.DB),
	}
}

// Handler builds the route table and wraps it with permissive CORS, the
// way the reference exposes itself to browser-based clients without a
// separate gateway.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("POST /api/v1/database/create", s.handleCreateDatabase)
	mux.HandleFunc("POST /api/v1/database/connect", s.handleConnectDatabase)
	mux.HandleFunc("POST /api/v1/database/change-password", s.handleChangePassword)

	mux.HandleFunc("GET /api/v1/tables", s.handleListTables)
	mux.HandleFunc("GET /api/v1/table/{t}", s.handleGetTable)
	mux.HandleFunc("POST /api/v1/table/{t}/persist", s.handlePersist)
	mux.HandleFunc("POST /api/v1/table/{t}/update", s.handleUpdate)
	mux.HandleFunc("GET /api/v1/table/{t}/history", s.handleHistory)
	mux.HandleFunc("POST /api/v1/table/{t}/find", s.handleFind)
	mux.HandleFunc("POST /api/v1/table/{t}/find-advanced", s.handleFindAdvanced)
	mux.HandleFunc("GET /api/v1/table/{t}/doc/{doc_id}", s.handleGetDoc)

	mux.HandleFunc("GET /api/v1/events", s.handleEvents)
	mux.HandleFunc("GET /api/v1/events/types", s.handleEventTypes)

	return withCORS(mux)
}

func withCORS(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Headers", "Authorization, Content-Type")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, r)
	})
}
