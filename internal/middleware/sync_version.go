package middleware

import (
	"fmt"
	"net/http"
	"strconv"

	"github.com/supplysync/server/internal/syncapi"
)

// SyncVersion rejects clients whose protocol version this server cannot serve
func SyncVersion(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		received, err := strconv.Atoi(r.Header.Get(syncapi.HeaderSyncVersion))
		if err != nil || received < syncapi.MinSupportedVersion || received > syncapi.Version {
			mismatch := syncapi.VersionMismatch{
				MinVersion:      syncapi.MinSupportedVersion,
				MaxVersion:      syncapi.Version,
				ReceivedVersion: received,
			}
			syncapi.WriteError(w, http.StatusConflict, syncapi.KindVersionMismatch,
				fmt.Sprintf("sync version %d is not supported", received), mismatch)
			return
		}
		next.ServeHTTP(w, r)
	})
}
