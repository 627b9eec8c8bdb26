package services

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHashService(t *testing.T) {
	svc := NewHashService()

	t.Run("reader and bytes agree", func(t *testing.T) {
		content := "count sheet for store A"
		fromReader, err := svc.ComputeHash(strings.NewReader(content))
		require.NoError(t, err)
		assert.Equal(t, svc.ComputeHashBytes([]byte(content)), fromReader)
	})

	t.Run("known digest", func(t *testing.T) {
		assert.Equal(t,
			"2cf24dba5fb0a30e26e83b2ac5b9e29e1b161e5c1fa7425e73043362938b9824",
			svc.ComputeHashBytes([]byte("hello")))
	})

	t.Run("site password is the hex digest", func(t *testing.T) {
		wire := svc.SitePassword("district-secret")
		assert.Len(t, wire, 64)
		assert.Equal(t, svc.ComputeHashBytes([]byte("district-secret")), wire)
		assert.NotEqual(t, wire, svc.SitePassword("district-secret2"))
	})
}

func TestHashService_ParseChecksum(t *testing.T) {
	svc := NewHashService()
	valid := "2cf24dba5fb0a30e26e83b2ac5b9e29e1b161e5c1fa7425e73043362938b9824"

	tests := []struct {
		name    string
		header  string
		want    string
		wantErr bool
	}{
		{"empty", "", "", false},
		{"whitespace", "   ", "", false},
		{"lowercase", valid, valid, false},
		{"uppercase", strings.ToUpper(valid), valid, false},
		{"prefixed", "sha256:" + valid, valid, false},
		{"too short", "abc123", "", true},
		{"not hex", valid[:63] + "z", "", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := svc.ParseChecksum(tt.header)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}
