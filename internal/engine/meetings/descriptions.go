package meetings

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/anatolykoptev/go_meetmap/internal/engine"
)

// SaveDescriptions writes each video's description to <dir>/<video id>.txt so
// the files can be published next to the map. Existing files are overwritten.
func SaveDescriptions(videos []engine.Video, dir string) error {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("descriptions dir: %w", err)
	}
	for _, v := range videos {
		if v.ID == "" || filepath.Base(v.ID) != v.ID {
			return fmt.Errorf("descriptions: unsafe video id %q", v.ID)
		}
		path := filepath.Join(dir, v.ID+".txt")
		if err := os.WriteFile(path, []byte(v.Description), 0o644); err != nil {
			return fmt.Errorf("write description %s: %w", v.ID, err)
		}
	}
	return nil
}
