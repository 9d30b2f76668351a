package threemf

import (
	"errors"
	"fmt"

	"go.uber.org/multierr"
)

// ErrIncomplete is wrapped by every finding of Validate.
var ErrIncomplete = errors.New("incomplete document")

// Validate checks whole-document rules that builder calls cannot enforce
// one at a time: resources that need at least one entry, component
// objects with at least one component, and a non-empty build. All findings
// are returned together; use multierr.Errors to split them.
func (m *Model) Validate() error {
	var err error
	incomplete := func(format string, args ...any) {
		err = multierr.Append(err, fmt.Errorf("%w: "+format, append([]any{ErrIncomplete}, args...)...))
	}

	for _, bm := range m.baseMaterials {
		if len(bm.Bases) == 0 {
			incomplete("basematerials %d has no base", bm.ID)
		}
	}
	for _, g := range m.colorGroups {
		if len(g.Colors) == 0 {
			incomplete("colorgroup %d has no color", g.ID)
		}
	}
	for _, g := range m.textureGroups {
		if len(g.Coords) == 0 {
			incomplete("texture2dgroup %d has no tex2coord", g.ID)
		}
	}
	for _, c := range m.composites {
		if len(c.Composites) == 0 {
			incomplete("compositematerials %d has no composite", c.ID)
		}
	}
	for _, mm := range m.multis {
		if len(mm.Entries) == 0 {
			incomplete("multimaterials %d has no multimaterial", mm.ID)
		}
	}
	for _, obj := range m.objects {
		if body, ok := obj.Body.(*ComponentsBody); ok && len(body.Components) == 0 {
			incomplete("object %d has no component", obj.ID)
		}
	}
	if len(m.items) == 0 {
		incomplete("build has no item")
	}
	return err
}
