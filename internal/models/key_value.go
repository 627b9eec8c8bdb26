package models

import "fmt"

// KeyType names a persisted integer or string setting in the key/value store
type KeyType string

const (
	KeySyncPushCursor        KeyType = "sync_push_cursor"
	KeySyncPullCursorCentral KeyType = "sync_pull_cursor_central"
	KeySyncPullCursorRemote  KeyType = "sync_pull_cursor_remote"
	KeySyncIsInitialised     KeyType = "sync_is_initialised"
	KeySyncSiteID            KeyType = "sync_site_id"
)

// CentralAckCursorKey is the pull cursor a remote site acknowledged for a
// scope, kept by the central server
func CentralAckCursorKey(siteID int32, scope string) KeyType {
	return KeyType(fmt.Sprintf("central_ack_cursor_%d_%s", siteID, scope))
}

// ProcessorCursorKey is the progress cursor of a processor group
func ProcessorCursorKey(name string) KeyType {
	return KeyType("processor_cursor_" + name)
}
