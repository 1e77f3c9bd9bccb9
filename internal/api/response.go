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

// Package api is the Service Facade: HTTP + WebSocket routes mapping
// onto the engine operations of internal/chaindb and internal/table.
// spec.md treats this layer as an external collaborator specified only
// at contract level; this package gives it a real implementation so
// the repository has a runnable surface.
package api

import (
	"encoding/json"
	"net/http"

	"github.com/wpdas/chaindb/internal/chainerr"
)

// envelope is the uniform {success, message?, data?} response shape.
type envelope struct {
	Success bool        `json:"success"`
	Message string      `json:"message,omitempty"`
	Data    interface{} `json:"data,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeOK(w http.ResponseWriter, data interface{}) {
	writeJSON(w, http.StatusOK, envelope{Success: true, Data: data})
}

// writeEngineError maps an engine error to the facade's error taxonomy
// (spec.md §7): data endpoints always answer 200 with success=false,
// auth-header failures answer 401, and credential/decrypt failures
// never reveal which field was wrong.
func writeEngineError(w http.ResponseWriter, err error) {
	switch chainerr.Of(err) {
	case chainerr.InvalidCredentials, chainerr.DecryptionError:
		writeJSON(w, http.StatusOK, envelope{Success: false, Message: constCredentialMessage})
	case chainerr.DatabaseNotFound, chainerr.ConfigNotFound:
		writeJSON(w, http.StatusOK, envelope{Success: false, Message: "database not found"})
	case chainerr.DatabaseAlreadyExists:
		writeJSON(w, http.StatusOK, envelope{Success: false, Message: "database already exists"})
	case chainerr.RecordNotFound:
		writeJSON(w, http.StatusOK, envelope{Success: false, Message: "record not found"})
	case chainerr.ValidationError:
		writeJSON(w, http.StatusOK, envelope{Success: false, Message: err.Error()})
	default:
		writeJSON(w, http.StatusOK, envelope{Success: false, Message: "internal error"})
	}
}

// constCredentialMessage is returned verbatim for both a wrong
// credential and a ciphertext that fails to authenticate, so neither
// leaks which one happened (spec.md §7).
const constCredentialMessage = "invalid credentials"

func writeAuthError(w http.ResponseWriter) {
	writeJSON(w, http.StatusUnauthorized, envelope{Success: false, Message: constCredentialMessage})
}
