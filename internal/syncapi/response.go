package syncapi

import (
	"encoding/json"
	"net/http"
)

// WriteData writes a success envelope
func WriteData(w http.ResponseWriter, status int, data interface{}) {
	raw, err := json.Marshal(data)
	if err != nil {
		WriteError(w, http.StatusInternalServerError, KindServer, "failed to encode response", nil)
		return
	}
	writeEnvelope(w, status, Envelope{Data: raw})
}

// WriteError writes an error envelope. data may be nil.
func WriteError(w http.ResponseWriter, status int, kind ErrorKind, message string, data interface{}) {
	body := &ErrorBody{Code: kind, Message: message}
	if data != nil {
		if raw, err := json.Marshal(data); err == nil {
			body.Data = raw
		}
	}
	writeEnvelope(w, status, Envelope{Error: body})
}

func writeEnvelope(w http.ResponseWriter, status int, envelope Envelope) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(envelope)
}
