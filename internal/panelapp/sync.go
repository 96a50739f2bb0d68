package panelapp

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/Jeffail/gabs"
	"go.uber.org/zap"
)

// Sync refreshes the local panel payload under dir when the remote version
// differs from the stored one. When the API is unreachable an existing
// local copy is kept; without one the sync fails. Returns the payload path.
func Sync(ctx context.Context, client *Client, dir string, panelID int) (string, error) {
	local := filepath.Join(dir, LocalFileName)

	info, err := client.getJSON(ctx, fmt.Sprintf("%s/panels/%d/", client.baseURL, panelID))
	if err != nil {
		if _, statErr := os.Stat(local); statErr == nil {
			client.logger.Warn("panel API unreachable, keeping local copy",
				zap.String("path", local),
				zap.Error(err))
			return local, nil
		}
		return "", fmt.Errorf("panel API unreachable and no local copy at %s: %w", local, err)
	}

	remote, _ := info.Path("version").Data().(string)
	if remote == "" {
		return "", fmt.Errorf("panel %d: no version in response", panelID)
	}

	if localVersion(local) == remote {
		client.logger.Info("panel already up to date",
			zap.Int("panel_id", panelID),
			zap.String("version", remote))
		return local, nil
	}

	genes, err := client.FetchGenes(ctx, panelID)
	if err != nil {
		return "", fmt.Errorf("fetch panel %d genes: %w", panelID, err)
	}

	doc := map[string]any{
		"panel_id": info.Path("id").Data(),
		"name":     info.Path("name").Data(),
		"version":  remote,
		"stats":    info.Path("stats").Data(),
		"genes":    genes,
	}
	data, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return "", fmt.Errorf("encode panel payload: %w", err)
	}

	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("create references dir: %w", err)
	}
	tmp := local + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return "", fmt.Errorf("write panel payload: %w", err)
	}
	if err := os.Rename(tmp, local); err != nil {
		os.Remove(tmp)
		return "", fmt.Errorf("finalize panel payload: %w", err)
	}

	client.logger.Info("panel refreshed",
		zap.Int("panel_id", panelID),
		zap.String("version", remote),
		zap.Int("genes", len(genes)),
		zap.String("path", local))
	return local, nil
}

// localVersion reads the version of an already-synced payload, or "".
func localVersion(path string) string {
	data, err := os.ReadFile(path)
	if err != nil {
		return ""
	}
	parsed, err := gabs.ParseJSON(data)
	if err != nil {
		return ""
	}
	version, _ := parsed.Path("version").Data().(string)
	return version
}
