package threemf

import (
	"fmt"

	"github.com/Faultbox/threemf/pkg/geometry"
	m3 "github.com/Faultbox/threemf/pkg/math"
)

// Object is a model object resource. Body is either *MeshBody or
// *ComponentsBody.
type Object struct {
	ID         ResourceID
	Name       string
	UUID       string
	Thumbnail  string
	PartNumber string
	Body       ObjectBody
}

func (o *Object) resourceID() ResourceID { return o.ID }

// ObjectBody is the variant part of an object.
type ObjectBody interface {
	objectBody()
}

// MeshBody holds the geometry of a mesh object.
type MeshBody struct {
	Mesh       geometry.Mesh
	Material   *PropertyRef
	Properties map[int]TriangleProperty
	Sets       []*TriangleSet
}

// ComponentsBody holds the references of a component object.
type ComponentsBody struct {
	Components []Component
}

func (*MeshBody) objectBody()       {}
func (*ComponentsBody) objectBody() {}

// Component references another object, optionally in an external part.
type Component struct {
	ObjectID  ResourceID
	Transform *m3.Transform
	UUID      string
	Path      string
}

// ComponentRef describes a component to add.
type ComponentRef struct {
	ObjectID  ResourceID
	Transform *m3.Transform
	// Path names an external model part, e.g. "3D/parts/widget.model".
	Path string
}

// TriangleProperty overrides the property of one triangle. A zero PID
// uses the object's pid. P holds the per-vertex indices; only P[0] is
// written unless PerVertex is set.
type TriangleProperty struct {
	PID       ResourceID
	P         [3]int
	PerVertex bool
}

// TriangleRef is a triangle set member: a single index or an inclusive
// range.
type TriangleRef struct {
	Start, End int
	IsRange    bool
}

// Ref references one triangle.
func Ref(index int) TriangleRef {
	return TriangleRef{Start: index, End: index}
}

// RefRange references triangles start through end.
func RefRange(start, end int) TriangleRef {
	return TriangleRef{Start: start, End: end, IsRange: true}
}

// TriangleSet is a named group of triangles.
type TriangleSet struct {
	Name       string
	Identifier string
	Refs       []TriangleRef
}

// BuildItem places an object on the build platform.
type BuildItem struct {
	ObjectID   ResourceID
	Transform  *m3.Transform
	UUID       string
	Path       string
	PartNumber string
}

// MeshOptions are the optional attributes of a mesh object.
type MeshOptions struct {
	Name     string
	Material *PropertyRef
}

// BuildItemOptions are the optional attributes of a build item.
type BuildItemOptions struct {
	Transform  *m3.Transform
	PartNumber string
}

func checkTransform(t *m3.Transform) error {
	if t != nil && !t.IsFinite() {
		return fmt.Errorf("%w: transform values must be finite", ErrInvalidValue)
	}
	return nil
}

func cloneTransform(t *m3.Transform) *m3.Transform {
	if t == nil {
		return nil
	}
	c := *t
	return &c
}

// AddMesh adds a mesh object and a default identity build item for it.
// The mesh is copied, so later changes to the caller's slices do not
// reach the model.
func (m *Model) AddMesh(mesh geometry.Mesh, opts MeshOptions) (ResourceID, error) {
	if err := mesh.Validate(); err != nil {
		return 0, err
	}
	if opts.Material != nil {
		if err := m.checkPropertyIndex(opts.Material.PID, opts.Material.PIndex); err != nil {
			return 0, err
		}
	}
	id, err := m.ids.allocate(0, kindObject)
	if err != nil {
		return 0, err
	}
	var material *PropertyRef
	if opts.Material != nil {
		mat := *opts.Material
		material = &mat
	}
	m.addObject(&Object{
		ID:   id,
		Name: opts.Name,
		UUID: m.uuidIfProduction(),
		Body: &MeshBody{Mesh: mesh.Clone(), Material: material},
	})
	return id, nil
}

// AddComponentObject adds an object assembled from other objects and a
// default identity build item for it. References to external parts need
// the Production extension.
func (m *Model) AddComponentObject(name string, refs []ComponentRef) (ResourceID, error) {
	components := make([]Component, len(refs))
	for i, ref := range refs {
		if err := checkTransform(ref.Transform); err != nil {
			return 0, err
		}
		path := ref.Path
		if path != "" {
			if !m.production {
				return 0, fmt.Errorf("%w: component references external part %s", ErrProductionRequired, path)
			}
			ext, err := m.externalObject(path, ref.ObjectID)
			if err != nil {
				return 0, err
			}
			path = ext.partName()
		} else if _, ok := m.objectByID[ref.ObjectID]; !ok {
			return 0, fmt.Errorf("%w: Object %d not found", ErrNotFound, ref.ObjectID)
		}
		components[i] = Component{ObjectID: ref.ObjectID, Transform: cloneTransform(ref.Transform), Path: path}
	}
	id, err := m.ids.allocate(0, kindObject)
	if err != nil {
		return 0, err
	}
	for i := range components {
		components[i].UUID = m.uuidIfProduction()
	}
	m.addObject(&Object{
		ID:   id,
		Name: name,
		UUID: m.uuidIfProduction(),
		Body: &ComponentsBody{Components: components},
	})
	return id, nil
}

func (m *Model) addObject(obj *Object) {
	m.objects = append(m.objects, obj)
	m.objectByID[obj.ID] = obj
	m.items = append(m.items, BuildItem{ObjectID: obj.ID, UUID: m.uuidIfProduction()})
}

func (m *Model) meshObject(id ResourceID) (*Object, *MeshBody, error) {
	obj, ok := m.objectByID[id]
	if !ok {
		return nil, nil, fmt.Errorf("%w: Object %d not found or not a mesh object", ErrNotFound, id)
	}
	body, ok := obj.Body.(*MeshBody)
	if !ok {
		return nil, nil, fmt.Errorf("%w: Object %d not found or not a mesh object", ErrNotFound, id)
	}
	return obj, body, nil
}

// SetTriangleProperties sets per-triangle property overrides, keyed by
// triangle index. Either all overrides are applied or none.
func (m *Model) SetTriangleProperties(objectID ResourceID, props map[int]TriangleProperty) error {
	_, body, err := m.meshObject(objectID)
	if err != nil {
		return err
	}
	for index, p := range props {
		if index < 0 || index >= len(body.Mesh.Triangles) {
			return fmt.Errorf("%w: Triangle index out of range: %d", ErrOutOfRange, index)
		}
		pid := p.PID
		if pid == 0 {
			if body.Material == nil {
				return fmt.Errorf("%w: triangle %d has no pid and object %d has no default", ErrInvalidValue, index, objectID)
			}
			pid = body.Material.PID
		}
		n := 1
		if p.PerVertex {
			n = 3
		}
		for _, idx := range p.P[:n] {
			if err := m.checkPropertyIndex(pid, idx); err != nil {
				return err
			}
		}
	}
	if body.Properties == nil {
		body.Properties = make(map[int]TriangleProperty, len(props))
	}
	for index, p := range props {
		body.Properties[index] = p
	}
	return nil
}

// AddTriangleSet creates an empty triangle set on a mesh object and
// returns its index.
func (m *Model) AddTriangleSet(objectID ResourceID, name, identifier string) (int, error) {
	_, body, err := m.meshObject(objectID)
	if err != nil {
		return 0, err
	}
	if name == "" {
		return 0, fmt.Errorf("%w: Triangle set name must not be empty", ErrInvalidValue)
	}
	if identifier == "" {
		return 0, fmt.Errorf("%w: Triangle set identifier must not be empty", ErrInvalidValue)
	}
	for _, s := range body.Sets {
		if s.Identifier == identifier {
			return 0, fmt.Errorf("%w: triangle set identifier %q already exists", ErrInvalidValue, identifier)
		}
	}
	body.Sets = append(body.Sets, &TriangleSet{Name: name, Identifier: identifier})
	return len(body.Sets) - 1, nil
}

// AddTriangleSetRefs appends members to a triangle set.
func (m *Model) AddTriangleSetRefs(objectID ResourceID, set int, refs ...TriangleRef) error {
	_, body, err := m.meshObject(objectID)
	if err != nil {
		return err
	}
	if set < 0 || set >= len(body.Sets) {
		return fmt.Errorf("%w: Triangle set %d not found in object %d", ErrNotFound, set, objectID)
	}
	count := len(body.Mesh.Triangles)
	for _, r := range refs {
		if !r.IsRange {
			if r.Start < 0 || r.Start >= count {
				return fmt.Errorf("%w: Triangle ref index out of range: %d", ErrOutOfRange, r.Start)
			}
			continue
		}
		if r.Start < 0 || r.End < 0 || r.Start >= count || r.End >= count {
			return fmt.Errorf("%w: Triangle refrange indices out of range", ErrOutOfRange)
		}
		if r.End < r.Start {
			return fmt.Errorf("%w: endindex must be >= startindex", ErrInvalidValue)
		}
	}
	s := body.Sets[set]
	s.Refs = append(s.Refs, refs...)
	return nil
}

// AddBuildItem appends a build item for a root object.
func (m *Model) AddBuildItem(objectID ResourceID, opts BuildItemOptions) error {
	if _, ok := m.objectByID[objectID]; !ok {
		return fmt.Errorf("%w: Object %d not found", ErrNotFound, objectID)
	}
	if err := checkTransform(opts.Transform); err != nil {
		return err
	}
	m.items = append(m.items, BuildItem{
		ObjectID:   objectID,
		Transform:  cloneTransform(opts.Transform),
		UUID:       m.uuidIfProduction(),
		PartNumber: opts.PartNumber,
	})
	return nil
}

// ClearBuildItems removes every build item, including the defaults added
// with each object.
func (m *Model) ClearBuildItems() {
	m.items = nil
}

// BuildItems returns a copy of the build list.
func (m *Model) BuildItems() []BuildItem {
	out := make([]BuildItem, len(m.items))
	copy(out, m.items)
	return out
}

// SetObjectPartNumber sets the partnumber attribute of an object.
func (m *Model) SetObjectPartNumber(objectID ResourceID, partNumber string) error {
	obj, ok := m.objectByID[objectID]
	if !ok {
		return fmt.Errorf("%w: Object %d not found", ErrNotFound, objectID)
	}
	obj.PartNumber = partNumber
	return nil
}

// Object returns a root object by id. The returned value must not be
// modified.
func (m *Model) Object(id ResourceID) (*Object, bool) {
	obj, ok := m.objectByID[id]
	return obj, ok
}

// Objects returns the root objects in creation order.
func (m *Model) Objects() []*Object { return m.objects }
