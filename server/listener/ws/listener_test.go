package ws

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/meetpointio/meetpoint/server"
)

func TestSplitPath(t *testing.T) {
	tests := []struct {
		path      string
		role      server.Role
		sessionID string
		wantErr   bool
	}{
		{path: "/host/session-123", role: server.RoleHost, sessionID: "session-123"},
		{path: "/client/session-123", role: server.RoleClient, sessionID: "session-123"},
		{path: "/host/session-123/", role: server.RoleHost, sessionID: "session-123"},
		{path: "/spectator/session-123", wantErr: true},
		{path: "/host", wantErr: true},
		{path: "/host/", wantErr: true},
		{path: "/", wantErr: true},
		{path: "/host/a/b", wantErr: true},
	}

	for _, tc := range tests {
		t.Run(tc.path, func(t *testing.T) {
			role, sessionID, err := splitPath(tc.path)
			if tc.wantErr {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tc.role, role)
			assert.Equal(t, tc.sessionID, sessionID)
		})
	}
}
