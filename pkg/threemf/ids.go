package threemf

import "fmt"

// Resource kinds, used in error messages and by the allocator.
const (
	kindBaseMaterials = "basematerials"
	kindColorGroup    = "colorgroup"
	kindTexture       = "texture2d"
	kindTextureGroup  = "texture2dgroup"
	kindComposite     = "compositematerials"
	kindMulti         = "multimaterials"
	kindObject        = "object"
)

// idAllocator hands out resource ids from one counter shared by every
// resource kind of a document. Explicit ids are accepted when unused and
// always move the counter past themselves.
type idAllocator struct {
	next ResourceID
	used map[ResourceID]string
}

func newIDAllocator() *idAllocator {
	return &idAllocator{next: 1, used: make(map[ResourceID]string)}
}

// resolve picks the id for a new resource without reserving it. Zero asks
// for the next free id.
func (a *idAllocator) resolve(explicit ResourceID) (ResourceID, error) {
	if explicit < 0 {
		return 0, fmt.Errorf("%w: %d", ErrInvalidID, explicit)
	}
	if explicit == 0 {
		id := a.next
		for a.used[id] != "" {
			id++
		}
		return id, nil
	}
	if kind, ok := a.used[explicit]; ok {
		return 0, fmt.Errorf("%w: %s with id %d already exists", ErrDuplicateID, kind, explicit)
	}
	return explicit, nil
}

// claim reserves an id returned by resolve.
func (a *idAllocator) claim(id ResourceID, kind string) {
	a.used[id] = kind
	if id >= a.next {
		a.next = id + 1
	}
}

// allocate resolves and claims in one step.
func (a *idAllocator) allocate(explicit ResourceID, kind string) (ResourceID, error) {
	id, err := a.resolve(explicit)
	if err != nil {
		return 0, err
	}
	a.claim(id, kind)
	return id, nil
}

// kind reports what an id is used for.
func (a *idAllocator) kind(id ResourceID) (string, bool) {
	k, ok := a.used[id]
	return k, ok
}
