package projectionmanager

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/majormartintibor/opossum/pkg/domain"
	"github.com/majormartintibor/opossum/pkg/fsatomic"
)

const checkpointDir = "projections/_checkpoints"

// checkpointStore persists one domain.Checkpoint per projection name under
// a context directory (spec §6.1: "projections/_checkpoints/{name}.checkpoint").
type checkpointStore struct {
	root string
}

func newCheckpointStore(contextDir string) *checkpointStore {
	return &checkpointStore{root: filepath.Join(contextDir, checkpointDir)}
}

func (c *checkpointStore) path(name string) string {
	return filepath.Join(c.root, name+".checkpoint")
}

// Load returns found=false rather than an error when no checkpoint has ever
// been saved for name — callers treat that as "needs a full rebuild"
// (spec §4.7).
func (c *checkpointStore) Load(name string) (domain.Checkpoint, bool, error) {
	raw, err := fsatomic.ReadFile(c.path(name))
	if err != nil {
		return domain.Checkpoint{}, false, nil
	}
	var cp domain.Checkpoint
	if err := json.Unmarshal(raw, &cp); err != nil {
		return domain.Checkpoint{}, false, fmt.Errorf("projectionmanager: corrupt checkpoint %q: %w", name, err)
	}
	return cp, true, nil
}

func (c *checkpointStore) Save(cp domain.Checkpoint) error {
	raw, err := json.Marshal(cp)
	if err != nil {
		return fmt.Errorf("projectionmanager: marshal checkpoint %q: %w", cp.ProjectionName, err)
	}
	return fsatomic.WriteFile(c.path(cp.ProjectionName), raw, false)
}

// Delete removes a checkpoint, used when a rebuild resets progress to zero.
func (c *checkpointStore) Delete(name string) error {
	if err := os.Remove(c.path(name)); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("projectionmanager: delete checkpoint %q: %w", name, err)
	}
	return nil
}
