package syncer

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/supplysync/server/internal/models"
	"github.com/supplysync/server/internal/syncapi"
	"github.com/supplysync/server/internal/translations"
)

func TestErrorCodeOf(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want models.SyncErrorCode
	}{
		{"nil", nil, ""},
		{"push rejected", &PushRejectedError{Cursor: 3, RecordID: "st_3"}, models.SyncErrorPushRejected},
		{"wrapped integration", fmt.Errorf("integrate: %w", &IntegrationError{RecordID: "a", Err: errors.New("fk")}), models.SyncErrorIntegration},
		{"translation", &translations.Error{TableName: "Stock_take", RecordID: "a", Err: errors.New("bad status")}, models.SyncErrorIntegration},
		{"connection", &syncapi.Error{Kind: syncapi.KindConnection}, models.SyncErrorConnection},
		{"authentication", &syncapi.Error{Kind: syncapi.KindAuthentication}, models.SyncErrorAuthentication},
		{"version", &syncapi.Error{Kind: syncapi.KindVersionMismatch}, models.SyncErrorVersionMismatch},
		{"busy", &syncapi.Error{Kind: syncapi.KindIntegrationInProgress}, models.SyncErrorIntegrationInProgress},
		{"parse", &syncapi.Error{Kind: syncapi.KindParse}, models.SyncErrorServer},
		{"other", errors.New("disk full"), models.SyncErrorUnknown},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, ErrorCodeOf(tt.err))
		})
	}
}
