package broadphase

import (
	"errors"
	"fmt"
)

var (
	ErrInvalidBoundingBox = errors.New("broadphase: invalid bounding box")
	ErrDuplicateEntry     = errors.New("broadphase: entry already in hierarchy")
	ErrInvalidSettings    = errors.New("broadphase: invalid settings")
)

// Settings tunes the hierarchy. They are validated once by NewHierarchy and never
// change afterwards.
type Settings struct {
	// MaximumEntitiesInLeaves caps the entries a leaf holds after a revalidation.
	MaximumEntitiesInLeaves int `yaml:"maximum_entities_in_leaves"`
	// MaximumChildEntityLoad rejects splits where one child would own at least this
	// fraction of the parent's entries.
	MaximumChildEntityLoad float32 `yaml:"maximum_child_entity_load"`
	// MaximumAllowedVolumeFactor is how much a node may grow past its volume at the
	// last revalidation before Refit rebuilds it.
	MaximumAllowedVolumeFactor float32 `yaml:"maximum_allowed_volume_factor"`
	// MinimumNodeEntitiesRequiredToMultithread keeps small subtrees on the calling
	// goroutine during parallel refit and overlap testing.
	MinimumNodeEntitiesRequiredToMultithread int `yaml:"minimum_node_entities_required_to_multithread"`
}

func DefaultSettings() Settings {
	return Settings{
		MaximumEntitiesInLeaves:                  2,
		MaximumChildEntityLoad:                   0.8,
		MaximumAllowedVolumeFactor:               1.4,
		MinimumNodeEntitiesRequiredToMultithread: 100,
	}
}

func (s Settings) Validate() error {
	if s.MaximumEntitiesInLeaves < 1 {
		return fmt.Errorf("%w: maximum entities in leaves must be at least 1, got %d", ErrInvalidSettings, s.MaximumEntitiesInLeaves)
	}
	if s.MaximumChildEntityLoad <= 0.5 || s.MaximumChildEntityLoad > 1 {
		return fmt.Errorf("%w: maximum child entity load must be in (0.5, 1], got %g", ErrInvalidSettings, s.MaximumChildEntityLoad)
	}
	if s.MaximumAllowedVolumeFactor < 1 {
		return fmt.Errorf("%w: maximum allowed volume factor must be at least 1, got %g", ErrInvalidSettings, s.MaximumAllowedVolumeFactor)
	}
	if s.MinimumNodeEntitiesRequiredToMultithread < 0 {
		return fmt.Errorf("%w: minimum node entities to multithread must not be negative", ErrInvalidSettings)
	}
	return nil
}
