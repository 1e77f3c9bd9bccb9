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
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/gorilla/websocket"

	"github.com/wpdas/chaindb/internal/events"
)

var upgrader = websocket.Upgrader{
	// the facade already applies permissive CORS to every route; allow
	// the upgrade handshake across origins the same way.
	CheckOrigin: func(r *http.Request) bool { return true },
}

type eventMessage struct {
	Type     events.Type `json:"type"`
	Database string      `json:"database"`
	Table    string      `json:"table"`
	Payload  interface{} `json:"payload"`
}

// handleEvents authenticates the request's Authorization header, then
// upgrades to a WebSocket and streams TablePersist/TableUpdate events of
// the authenticated database, narrowed to one table when the optional
// ?table= query parameter is given (original_source/src/api/routes/events.rs).
// Omitting ?table= subscribes to every table of that database.
func (s *Server) handleEvents(w http.ResponseWriter, r *http.Request) {
	db, ok := s.connect(w, r)
	if !ok {
		return
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		slog.Warn("chaindb: websocket upgrade failed", "error", err)
		return
	}
	defer conn.Close()

	database := db.Name
	tableName := r.URL.Query().Get("table")

	known := events.KnownTypes()
	subs := make([]events.Subscription, len(known))
	chans := make([]<-chan events.Event, len(known))
	for i, t := range known {
		subs[i] = events.Subscription{Type: t, Database: database, Table: tableName}
		chans[i] = s.Bus.Subscribe(subs[i])
	}
	defer func() {
		for i, sub := range subs {
			s.Bus.Unsubscribe(sub, chans[i])
		}
	}()

	merged := mergeEventChans(chans)

	// a reader goroutine is required so gorilla/websocket notices a
	// client-initiated close; this connection never expects inbound
	// application messages.
	closed := make(chan struct{})
	go func() {
		defer close(closed)
		for {
			if _, _, err := conn.NextReader(); err != nil {
				return
			}
		}
	}()

	for {
		select {
		case <-closed:
			return
		case ev, ok := <-merged:
			if !ok {
				return
			}
			msg := eventMessage{Type: ev.Type, Database: ev.Database, Table: ev.Table, Payload: ev.Payload}
			data, err := json.Marshal(msg)
			if err != nil {
				continue
			}
			if err := conn.WriteMessage(websocket.TextMessage, data); err != nil {
				return
			}
		}
	}
}

// mergeEventChans fans multiple event channels into one, closing the
// output once every input has closed.
func mergeEventChans(chans []<-chan events.Event) <-chan events.Event {
	out := make(chan events.Event, events.BufferSize)
	remaining := len(chans)
	if remaining == 0 {
		close(out)
		return out
	}
	done := make(chan struct{}, remaining)
	for _, ch := range chans {
		ch := ch
		go func() {
			for ev := range ch {
				out <- ev
			}
			done <- struct{}{}
		}()
	}
	go func() {
		for i := 0; i < remaining; i++ {
			<-done
		}
		close(out)
	}()
	return out
}

func (s *Server) handleEventTypes(w http.ResponseWriter, r *http.Request) {
	writeOK(w, events.KnownTypes())
}
