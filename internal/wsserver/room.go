package wsserver

import (
	"strings"

	"artflow-sync/internal/domain"
)

// RoomKey names a hub room for one artifact: <domain>/<projectID>/<fileID>.
func RoomKey(kind domain.ArtifactKind, projectID, fileID string) string {
	return string(kind) + "/" + projectID + "/" + fileID
}

// SplitRoom recovers the artifact kind and its storage ID from a room
// key. The storage ID is <projectID>/<fileID>, the same key the bindings
// persist under.
func SplitRoom(roomKey string) (domain.ArtifactKind, string) {
	parts := strings.SplitN(roomKey, "/", 2)
	if len(parts) != 2 {
		return "", roomKey
	}
	return domain.ArtifactKind(parts[0]), parts[1]
}
