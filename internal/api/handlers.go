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
	"net/http"
	"strconv"

	"github.com/wpdas/chaindb/internal/chaindb"
	"github.com/wpdas/chaindb/internal/table"
)

type createDatabaseRequest struct {
	Name     string `json:"name"`
	User     string `json:"user"`
	Password string `json:"password"`
}

func (s *Server) handleCreateDatabase(w http.ResponseWriter, r *http.Request) {
	var req createDatabaseRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, envelope{Success: false, Message: "malformed request body"})
		return
	}
	if err := chaindb.CreateDatabase(s.Root, req.Name, req.User, req.Password); err != nil {
		writeEngineError(w, err)
		return
	}
	writeOK(w, nil)
}

// handleConnectDatabase authenticates the {name, user, password} request
// body and hands back the reversible auth token the client then sends
// as its Authorization header on every subsequent call.
func (s *Server) handleConnectDatabase(w http.ResponseWriter, r *http.Request) {
	var req createDatabaseRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, envelope{Success: false, Message: "malformed request body"})
		return
	}
	creds := credentials{database: req.Name, user: req.User, password: req.Password}
	db, token, err := chaindb.Connect(s.Root, s.Bus, creds.database, creds.user, creds.password)
	if err != nil {
		writeEngineError(w, err)
		return
	}
	s.cacheMu.Lock()
	s.cache[cacheKey(creds)] = db
	s.cacheMu.Unlock()
	writeOK(w, map[string]string{"token": token})
}

type changePasswordRequest struct {
	Name        string `json:"name"`
	User        string `json:"user"`
	OldPassword string `json:"old_password"`
	NewPassword string `json:"new_password"`
}

// handleChangePassword takes its credentials from the request body, not
// the Authorization header — like /database/create and
// /database/connect, this route authenticates by (re)deriving a handle
// from the caller-supplied old_password, not a cached session.
func (s *Server) handleChangePassword(w http.ResponseWriter, r *http.Request) {
	var req changePasswordRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, envelope{Success: false, Message: "malformed request body"})
		return
	}
	db, _, err := chaindb.Connect(s.Root, s.Bus, req.Name, req.User, req.OldPassword)
	if err != nil {
		writeEngineError(w, err)
		return
	}
	if err := db.ChangePassword(req.NewPassword); err != nil {
		writeEngineError(w, err)
		return
	}
	// the credential triple used to reach this handler no longer
	// authenticates; drop any cached handle keyed on it so a later
	// request replays a fresh Connect.
	s.cacheMu.Lock()
	delete(s.cache, cacheKey(credentials{database: req.Name, user: req.User, password: req.OldPassword}))
	s.cacheMu.Unlock()
	writeOK(w, nil)
}

func (s *Server) handleListTables(w http.ResponseWriter, r *http.Request) {
	db, ok := s.connect(w, r)
	if !ok {
		return
	}
	names, err := db.ListTables()
	if err != nil {
		writeEngineError(w, err)
		return
	}
	writeOK(w, names)
}

func (s *Server) table(w http.ResponseWriter, r *http.Request) (*table.Table, bool) {
	db, ok := s.connect(w, r)
	if !ok {
		return nil, false
	}
	tbl, err := db.Table(r.PathValue("t"))
	if err != nil {
		writeEngineError(w, err)
		return nil, false
	}
	return tbl, true
}

func (s *Server) handleGetTable(w http.ResponseWriter, r *http.Request) {
	tbl, ok := s.table(w, r)
	if !ok {
		return
	}
	rec, err := tbl.GetTable()
	if err != nil {
		writeEngineError(w, err)
		return
	}
	writeOK(w, rec)
}

func (s *Server) handlePersist(w http.ResponseWriter, r *http.Request) {
	tbl, ok := s.table(w, r)
	if !ok {
		return
	}
	var rec table.Record
	if err := json.NewDecoder(r.Body).Decode(&rec); err != nil {
		writeJSON(w, http.StatusBadRequest, envelope{Success: false, Message: "malformed request body"})
		return
	}
	out, err := tbl.Persist(rec)
	if err != nil {
		writeEngineError(w, err)
		return
	}
	writeOK(w, out)
}

type updateRequest struct {
	DocID string                 `json:"doc_id"`
	Data  map[string]interface{} `json:"data"`
}

func (s *Server) handleUpdate(w http.ResponseWriter, r *http.Request) {
	tbl, ok := s.table(w, r)
	if !ok {
		return
	}
	var req updateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, envelope{Success: false, Message: "malformed request body"})
		return
	}
	if req.DocID == "" {
		writeJSON(w, http.StatusOK, envelope{Success: false, Message: "doc_id is required"})
		return
	}
	out, err := tbl.Update(table.Record{"data": req.Data}, req.DocID)
	if err != nil {
		writeEngineError(w, err)
		return
	}
	writeOK(w, out)
}

func (s *Server) handleHistory(w http.ResponseWriter, r *http.Request) {
	tbl, ok := s.table(w, r)
	if !ok {
		return
	}
	limit := parseLimit(r)
	recs, err := tbl.GetHistory(limit)
	if err != nil {
		writeEngineError(w, err)
		return
	}
	writeOK(w, recs)
}

type findRequest struct {
	Criteria map[string]interface{} `json:"criteria"`
	Limit    int                    `json:"limit"`
	Reverse  bool                   `json:"reverse"`
}

func (s *Server) handleFind(w http.ResponseWriter, r *http.Request) {
	tbl, ok := s.table(w, r)
	if !ok {
		return
	}
	var req findRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, envelope{Success: false, Message: "malformed request body"})
		return
	}
	limit := req.Limit
	if limit == 0 {
		limit = table.NoLimit
	}
	recs, err := tbl.FindWhere(req.Criteria, limit, req.Reverse)
	if err != nil {
		writeEngineError(w, err)
		return
	}
	writeOK(w, recs)
}

// advancedCriterion is one element of find-advanced's criteria array —
// {field, operator, value} — matching original_source/src/api/models.rs's
// FindWhereAdvancedCriteria, not a field-keyed map.
type advancedCriterion struct {
	Field    string         `json:"field"`
	Operator table.Operator `json:"operator"`
	Value    interface{}    `json:"value"`
}

type findAdvancedRequest struct {
	Criteria []advancedCriterion `json:"criteria"`
	Limit    int                 `json:"limit"`
	Reverse  bool                `json:"reverse"`
}

func (s *Server) handleFindAdvanced(w http.ResponseWriter, r *http.Request) {
	tbl, ok := s.table(w, r)
	if !ok {
		return
	}
	var req findAdvancedRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, envelope{Success: false, Message: "malformed request body"})
		return
	}
	criteria := make(map[string]table.Condition, len(req.Criteria))
	for _, c := range req.Criteria {
		criteria[c.Field] = table.Condition{Operator: c.Operator, Value: c.Value}
	}
	limit := req.Limit
	if limit == 0 {
		limit = table.NoLimit
	}
	recs, err := tbl.FindWhereAdvanced(criteria, limit, req.Reverse)
	if err != nil {
		writeEngineError(w, err)
		return
	}
	writeOK(w, recs)
}

func (s *Server) handleGetDoc(w http.ResponseWriter, r *http.Request) {
	tbl, ok := s.table(w, r)
	if !ok {
		return
	}
	docID := r.PathValue("doc_id")
	recs, err := tbl.FindWhere(map[string]interface{}{"doc_id": docID}, 1, true)
	if err != nil {
		writeEngineError(w, err)
		return
	}
	if len(recs) == 0 {
		writeJSON(w, http.StatusOK, envelope{Success: false, Message: "record not found"})
		return
	}
	writeOK(w, recs[0])
}

// parseLimit reads ?limit=N, defaulting to table.NoLimit for a missing
// or non-numeric value.
func parseLimit(r *http.Request) int {
	raw := r.URL.Query().Get("limit")
	if raw == "" {
		return table.NoLimit
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return table.NoLimit
	}
	return n
}
