package hooks

import (
	"context"

	"github.com/assetline/cloudhooks/internal/domain"
	"github.com/assetline/cloudhooks/internal/models"
)

// TransitionKind classifies a save against the persisted state.
type TransitionKind int

const (
	// Create is a save of a record that has no identity yet.
	Create TransitionKind = iota
	// Update is a save of a record whose persisted version was loaded.
	Update
	// Orphaned is a save carrying an identity whose persisted version could not be loaded.
	Orphaned
)

// String implements fmt.Stringer.
func (k TransitionKind) String() string {
	switch k {
	case Create:
		return "create"
	case Update:
		return "update"
	case Orphaned:
		return "orphaned"
	default:
		return "unknown"
	}
}

// Transition is resolved once per save. Prior is set only for Update; Err
// only for Orphaned.
type Transition struct {
	Kind  TransitionKind
	Prior models.Document
	Err   error
}

// ResolveTransition loads the persisted version of obj with master privilege.
func ResolveTransition(ctx context.Context, store domain.DocumentStore, class string, obj models.Document) Transition {
	id := obj.ObjectID()
	if id == "" {
		return Transition{Kind: Create}
	}

	prior, err := store.Get(ctx, models.MasterKey(), class, id)
	if err != nil {
		return Transition{Kind: Orphaned, Err: err}
	}

	return Transition{Kind: Update, Prior: prior}
}
