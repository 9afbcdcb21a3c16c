// Package device manages the durable identity of the field device. Envelope
// ids and sequences are scoped to this identity, so it must survive restarts.
package device

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
)

const identityFile = "device_id"

// LoadOrCreateID returns the device id persisted under dataDir, creating a
// fresh uuid v7 identity on first run. An explicit override wins and is not
// persisted.
func LoadOrCreateID(dataDir, override string) (string, error) {
	if override != "" {
		return override, nil
	}

	if err := os.MkdirAll(dataDir, 0o750); err != nil {
		return "", fmt.Errorf("failed to create data dir: %w", err)
	}

	path := filepath.Join(dataDir, identityFile)

	data, err := os.ReadFile(path) //nolint:gosec // path is under the agent data dir
	if err == nil {
		id := strings.TrimSpace(string(data))
		if _, parseErr := uuid.Parse(id); parseErr == nil {
			return id, nil
		}
		// Unparseable identity file: fall through and regenerate.
	} else if !os.IsNotExist(err) {
		return "", fmt.Errorf("failed to read device identity: %w", err)
	}

	id := uuid.Must(uuid.NewV7()).String()
	if err := os.WriteFile(path, []byte(id+"\n"), 0o600); err != nil {
		return "", fmt.Errorf("failed to persist device identity: %w", err)
	}

	return id, nil
}
