package threemf

import (
	"fmt"
	"strings"

	"github.com/Faultbox/threemf/pkg/geometry"
)

// RootModelPath is the part name of the root model document.
const RootModelPath = "3D/3dmodel.model"

// placeholderColor fills unused slots of a synchronized basematerials set.
const placeholderColor = "#000000FF"

// ExternalPart is a secondary model document referenced from the root
// model through the Production extension. Its ids are local to the part.
type ExternalPart struct {
	Path string

	ids           *idAllocator
	baseMaterials []*BaseMaterials
	// localSets maps a root basematerials id to its copy in this part.
	localSets map[ResourceID]*BaseMaterials
	objects   []*Object
}

// ExternalRef addresses an object inside an external part.
type ExternalRef struct {
	Path     string
	ObjectID ResourceID
}

func (e *ExternalPart) partName() string {
	return "/" + e.Path
}

// Objects returns the objects of the part in creation order.
func (e *ExternalPart) Objects() []*Object { return e.objects }

// BaseMaterials returns the synchronized basematerials sets of the part.
func (e *ExternalPart) BaseMaterials() []*BaseMaterials { return e.baseMaterials }

func normalizeExternalPath(path string) (string, error) {
	p := strings.TrimPrefix(path, "/")
	if !strings.HasPrefix(p, "3D/") {
		return "", fmt.Errorf("%w: External model path must start with \"3D/\": %s", ErrInvalidPath, path)
	}
	if strings.EqualFold(p, RootModelPath) {
		return "", fmt.Errorf("%w: %s is the root model part", ErrInvalidPath, path)
	}
	if strings.HasSuffix(p, "/") {
		return "", fmt.Errorf("%w: %s is not a part name", ErrInvalidPath, path)
	}
	for _, seg := range strings.Split(p, "/") {
		if strings.EqualFold(seg, "_rels") {
			return "", fmt.Errorf("%w: %s is inside a relationships folder", ErrInvalidPath, path)
		}
	}
	return p, nil
}

// externalPart finds a part by name; part names are case-insensitive.
func (m *Model) externalPart(path string) (*ExternalPart, bool) {
	for _, e := range m.externals {
		if strings.EqualFold(e.Path, path) {
			return e, true
		}
	}
	return nil, false
}

// externalObject resolves an object in an existing external part.
func (m *Model) externalObject(path string, id ResourceID) (*ExternalPart, error) {
	p, err := normalizeExternalPath(path)
	if err != nil {
		return nil, err
	}
	ext, ok := m.externalPart(p)
	if !ok {
		return nil, fmt.Errorf("%w: external part %s", ErrNotFound, p)
	}
	if _, ok := lookup(ext.objects, id); !ok {
		return nil, fmt.Errorf("%w: Object %d not found in %s", ErrNotFound, id, p)
	}
	return ext, nil
}

// ExternalParts returns the external parts in creation order.
func (m *Model) ExternalParts() []*ExternalPart { return m.externals }

// AddExternalMesh adds a mesh object to the external part at path,
// creating the part on first use. The path must start with "3D/". A
// material must address a root base material; it is copied into the
// part's own basematerials set without overwriting populated slots.
func (m *Model) AddExternalMesh(path, name string, mesh geometry.Mesh, material *PropertyRef) (ExternalRef, error) {
	p, err := normalizeExternalPath(path)
	if err != nil {
		return ExternalRef{}, err
	}
	if err := mesh.Validate(); err != nil {
		return ExternalRef{}, err
	}
	var base BaseMaterial
	if material != nil {
		set, ok := lookup(m.baseMaterials, material.PID)
		if !ok {
			return ExternalRef{}, fmt.Errorf("%w: BaseMaterials pid %d not found", ErrNotFound, material.PID)
		}
		if material.PIndex < 0 || material.PIndex >= len(set.Bases) {
			return ExternalRef{}, fmt.Errorf("%w: pindex %d out of range for basematerials pid %d", ErrOutOfRange, material.PIndex, material.PID)
		}
		base = set.Bases[material.PIndex]
	}

	ext, ok := m.externalPart(p)
	if !ok && m.partTaken("/"+p, "") {
		return ExternalRef{}, fmt.Errorf("%w: %s", ErrDuplicatePart, path)
	}
	if !ok {
		ext = &ExternalPart{Path: p, ids: newIDAllocator(), localSets: make(map[ResourceID]*BaseMaterials)}
		m.externals = append(m.externals, ext)
	}

	var local *PropertyRef
	if material != nil {
		set := ext.syncBaseMaterial(material.PID, material.PIndex, base)
		local = &PropertyRef{PID: set.ID, PIndex: material.PIndex}
	}

	id, _ := ext.ids.allocate(0, kindObject)
	ext.objects = append(ext.objects, &Object{
		ID:   id,
		Name: name,
		UUID: m.uuidIfProduction(),
		Body: &MeshBody{Mesh: mesh.Clone(), Material: local},
	})
	return ExternalRef{Path: ext.Path, ObjectID: id}, nil
}

// syncBaseMaterial copies one root base material into the part's set for
// rootPID, padding lower slots with placeholders.
func (e *ExternalPart) syncBaseMaterial(rootPID ResourceID, index int, base BaseMaterial) *BaseMaterials {
	set, ok := e.localSets[rootPID]
	if !ok {
		id, _ := e.ids.allocate(0, kindBaseMaterials)
		set = &BaseMaterials{ID: id}
		e.localSets[rootPID] = set
		e.baseMaterials = append(e.baseMaterials, set)
	}
	for len(set.Bases) <= index {
		set.Bases = append(set.Bases, BaseMaterial{DisplayColor: placeholderColor, placeholder: true})
	}
	if set.Bases[index].placeholder {
		set.Bases[index] = BaseMaterial{Name: base.Name, DisplayColor: base.DisplayColor}
	}
	return set
}

// AddExternalBuildItem adds a build item for an object in an external
// part. It requires the Production extension.
func (m *Model) AddExternalBuildItem(ref ExternalRef, opts BuildItemOptions) error {
	if !m.production {
		return fmt.Errorf("%w: External build items require Production extension", ErrProductionRequired)
	}
	if err := checkTransform(opts.Transform); err != nil {
		return err
	}
	ext, err := m.externalObject(ref.Path, ref.ObjectID)
	if err != nil {
		return err
	}
	m.items = append(m.items, BuildItem{
		ObjectID:   ref.ObjectID,
		Transform:  cloneTransform(opts.Transform),
		UUID:       m.newUUID(),
		Path:       ext.partName(),
		PartNumber: opts.PartNumber,
	})
	return nil
}
