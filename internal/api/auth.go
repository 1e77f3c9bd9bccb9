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
	"encoding/base64"
	"net/http"
	"strings"

	"github.com/wpdas/chaindb/internal/chaindb"
)

// credentials is the three-field database:user:password triple every
// request authenticates with, per spec.md §6 — there is no separate
// session concept, the triple itself (or its base64 token form) is the
// bearer credential.
type credentials struct {
	database string
	user     string
	password string
}

// parseAuthorization extracts credentials from an "Authorization: Basic
// <base64(database:user:password)>" header. Unlike standard HTTP basic
// auth (user:password against a realm), the decoded payload here carries
// three colon-separated fields, matching the reference's three-part
// connection credential.
func parseAuthorization(r *http.Request) (credentials, bool) {
	header := r.Header.Get("Authorization")
	const prefix = "Basic "
	if !strings.HasPrefix(header, prefix) {
		return credentials{}, false
	}
	raw, err := base64.StdEncoding.DecodeString(strings.TrimPrefix(header, prefix))
	if err != nil {
		return credentials{}, false
	}
	parts := strings.SplitN(string(raw), ":", 3)
	if len(parts) != 3 {
		return credentials{}, false
	}
	return credentials{database: parts[0], user: parts[1], password: parts[2]}, true
}

// connect resolves the request's Authorization header into a live DB
// handle, reusing a cached one when the exact credential triple was
// seen before (avoiding re-deriving the AES key on every request), and
// failing with a 401 when the header is missing or malformed.
func (s *Server) connect(w http.ResponseWriter, r *http.Request) (*chaindb.DB, bool) {
	creds, ok := parseAuthorization(r)
	if !ok {
		writeAuthError(w)
		return nil, false
	}

	token := cacheKey(creds)
	s.cacheMu.Lock()
	if db, ok := s.cache[token]; ok {
		s.cacheMu.Unlock()
		return db, true
	}
	s.cacheMu.Unlock()

	db, _, err := chaindb.Connect(s.Root, s.Bus, creds.database, creds.user, creds.password)
	if err != nil {
		writeEngineError(w, err)
		return nil, false
	}

	s.cacheMu.Lock()
	s.cache[token] = db
	s.cacheMu.Unlock()
	return db, true
}

func cacheKey(c credentials) string {
	return c.database + "\x00" + c.user + "\x00" + c.password
}
