// Package scene decodes a declarative scene document and builds a 3MF model
// from it.
//
// Scenes are YAML; JSON scenes decode the same way. A minimal scene:
//
//	unit: millimeter
//	objects:
//	  - type: mesh
//	    vertices: [[0,0,0], [10,0,0], [0,10,0]]
//	    triangles: [[0,1,2]]
package scene

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"go.uber.org/zap"
	"gopkg.in/yaml.v3"

	"github.com/Faultbox/threemf/pkg/formats"
	"github.com/Faultbox/threemf/pkg/geometry"
	m3 "github.com/Faultbox/threemf/pkg/math"
	"github.com/Faultbox/threemf/pkg/threemf"
)

// Scene errors.
var (
	ErrInvalidScene = errors.New("invalid scene")
	ErrBadIndex     = errors.New("index out of range")
)

// Object types.
const (
	TypeMesh       = "mesh"
	TypeComponents = "components"
)

// Scene is the decoded scene document.
type Scene struct {
	Unit          string         `yaml:"unit"`
	Lang          string         `yaml:"lang"`
	Production    bool           `yaml:"production"`
	Metadata      MetadataList   `yaml:"metadata"`
	BaseMaterials []BaseMaterial `yaml:"basematerials"`
	Objects       []Object       `yaml:"objects"`
	Build         []BuildItem    `yaml:"build"`
	External      []External     `yaml:"external"`
}

// MetadataList keeps metadata entries in document order.
type MetadataList []threemf.Metadata

// UnmarshalYAML decodes a mapping of name to value.
func (l *MetadataList) UnmarshalYAML(node *yaml.Node) error {
	if node.Kind != yaml.MappingNode {
		return fmt.Errorf("%w: metadata must be a mapping (line %d)", ErrInvalidScene, node.Line)
	}
	out := make(MetadataList, 0, len(node.Content)/2)
	for i := 0; i+1 < len(node.Content); i += 2 {
		var name, value string
		if err := node.Content[i].Decode(&name); err != nil {
			return err
		}
		if err := node.Content[i+1].Decode(&value); err != nil {
			return err
		}
		out = append(out, threemf.Metadata{Name: name, Value: value})
	}
	*l = out
	return nil
}

// BaseMaterial is one entry of the scene's material table.
type BaseMaterial struct {
	Name         string `yaml:"name"`
	DisplayColor string `yaml:"displaycolor"`
}

// Object is a mesh or components object.
type Object struct {
	Type string `yaml:"type"`
	Name string `yaml:"name"`

	// Mesh geometry, either inline or from an STL file relative to the
	// scene file.
	Vertices          []geometry.Vertex   `yaml:"vertices"`
	Triangles         []geometry.Triangle `yaml:"triangles"`
	File              string              `yaml:"file"`
	MaterialIndex     *int                `yaml:"materialIndex"`
	TriangleMaterials []int               `yaml:"triangleMaterials"`
	PartNumber        string              `yaml:"partnumber"`

	Components []Component `yaml:"components"`
}

// Component references an earlier scene object by index, or an object in
// an external part by path and id.
type Component struct {
	ObjectIndex int       `yaml:"objectIndex"`
	ObjectID    int       `yaml:"objectId"`
	Path        string    `yaml:"path"`
	Transform   []float64 `yaml:"transform"`
}

// BuildItem places a scene object on the plate.
type BuildItem struct {
	ObjectIndex int       `yaml:"objectIndex"`
	Transform   []float64 `yaml:"transform"`
	PartNumber  string    `yaml:"partnumber"`
}

// External is a mesh stored in its own model part.
type External struct {
	Path          string              `yaml:"path"`
	Name          string              `yaml:"name"`
	Vertices      []geometry.Vertex   `yaml:"vertices"`
	Triangles     []geometry.Triangle `yaml:"triangles"`
	MaterialIndex *int                `yaml:"materialIndex"`
	BuildItem     *struct {
		Transform []float64 `yaml:"transform"`
	} `yaml:"buildItem"`
}

// Parse decodes a scene document.
func Parse(data []byte) (*Scene, error) {
	var s Scene
	if err := yaml.Unmarshal(data, &s); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidScene, err)
	}
	return &s, nil
}

// Load reads and decodes a scene file.
func Load(path string) (*Scene, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading scene file: %w", err)
	}
	return Parse(data)
}

// Options control how a scene becomes a model.
type Options struct {
	// BaseDir resolves relative STL file paths.
	BaseDir string
	// Production forces the Production extension on.
	Production bool
	// Optimize, when set, routes meshes without per-triangle materials
	// through optimized ingestion.
	Optimize *threemf.OptimizeOptions
	Logger   *zap.Logger
	// ModelOptions are passed to threemf.New.
	ModelOptions []threemf.Option
}

// NamedMesh is a resolved mesh with the name it carries in the scene.
type NamedMesh struct {
	Name string
	Mesh geometry.Mesh
}

// Meshes resolves every mesh in the scene, inline or from file, including
// external meshes. Component objects are skipped.
func (s *Scene) Meshes(baseDir string) ([]NamedMesh, error) {
	var out []NamedMesh
	for i, obj := range s.Objects {
		if obj.Type != TypeMesh {
			continue
		}
		mesh, err := obj.mesh(baseDir)
		if err != nil {
			return nil, fmt.Errorf("object %d: %w", i, err)
		}
		out = append(out, NamedMesh{Name: displayName(obj.Name, "object", i), Mesh: mesh})
	}
	for i, ext := range s.External {
		out = append(out, NamedMesh{
			Name: displayName(ext.Name, "external", i),
			Mesh: geometry.Mesh{Vertices: ext.Vertices, Triangles: ext.Triangles},
		})
	}
	return out, nil
}

func displayName(name, kind string, index int) string {
	if name != "" {
		return name
	}
	return fmt.Sprintf("%s #%d", kind, index)
}

func (o Object) mesh(baseDir string) (geometry.Mesh, error) {
	if o.File == "" {
		return geometry.Mesh{Vertices: o.Vertices, Triangles: o.Triangles}, nil
	}
	if len(o.Vertices) > 0 || len(o.Triangles) > 0 {
		return geometry.Mesh{}, fmt.Errorf("%w: file and inline geometry are exclusive", ErrInvalidScene)
	}
	path := o.File
	if !filepath.IsAbs(path) {
		path = filepath.Join(baseDir, path)
	}
	stl, err := formats.ParseSTLFile(path)
	if err != nil {
		return geometry.Mesh{}, err
	}
	return stl.Mesh(), nil
}

func transform(values []float64) (*m3.Transform, error) {
	if values == nil {
		return nil, nil
	}
	if len(values) != len(m3.Transform{}) {
		return nil, fmt.Errorf("%w: transform needs 12 values, got %d", ErrInvalidScene, len(values))
	}
	var t m3.Transform
	copy(t[:], values)
	return &t, nil
}

// builder carries the handles created so far.
type builder struct {
	opts      Options
	log       *zap.Logger
	model     *threemf.Model
	materials []threemf.PropertyRef
	objectIDs []threemf.ResourceID
}

func (b *builder) material(index *int) (*threemf.PropertyRef, error) {
	if index == nil {
		return nil, nil
	}
	if *index < 0 || *index >= len(b.materials) {
		return nil, fmt.Errorf("%w: material index %d", ErrBadIndex, *index)
	}
	ref := b.materials[*index]
	return &ref, nil
}

func (b *builder) object(index int) (threemf.ResourceID, error) {
	if index < 0 || index >= len(b.objectIDs) {
		return 0, fmt.Errorf("%w: object index %d", ErrBadIndex, index)
	}
	return b.objectIDs[index], nil
}

// Build turns the scene into a model. Objects are added in document order,
// so components may only reference earlier objects. External meshes are
// added first so components can address them by path. An explicit build
// list replaces the default build items.
func Build(s *Scene, opts Options) (*threemf.Model, error) {
	b := &builder{opts: opts, log: opts.Logger}
	if b.log == nil {
		b.log = zap.NewNop()
	}
	b.model = threemf.New(append([]threemf.Option{threemf.WithLogger(b.log)}, opts.ModelOptions...)...)

	if err := b.settings(s); err != nil {
		return nil, err
	}
	for i, bm := range s.BaseMaterials {
		ref, err := b.model.AddBaseMaterial(bm.Name, bm.DisplayColor, 0)
		if err != nil {
			return nil, fmt.Errorf("basematerial %d: %w", i, err)
		}
		b.materials = append(b.materials, ref)
	}
	refs := make([]threemf.ExternalRef, len(s.External))
	for i, ext := range s.External {
		ref, err := b.addExternal(ext)
		if err != nil {
			return nil, fmt.Errorf("external %d: %w", i, err)
		}
		refs[i] = ref
	}
	for i, obj := range s.Objects {
		id, err := b.addObject(obj)
		if err != nil {
			return nil, fmt.Errorf("object %d: %w", i, err)
		}
		b.objectIDs = append(b.objectIDs, id)
	}
	if err := b.build(s.Build); err != nil {
		return nil, err
	}
	for i, ext := range s.External {
		if err := b.externalItem(ext, refs[i]); err != nil {
			return nil, fmt.Errorf("external %d: %w", i, err)
		}
	}

	b.log.Debug("scene built",
		zap.Int("objects", len(b.model.Objects())),
		zap.Int("build_items", len(b.model.BuildItems())),
		zap.Int("external_parts", len(b.model.ExternalParts())))
	return b.model, nil
}

func (b *builder) settings(s *Scene) error {
	if s.Unit != "" {
		if err := b.model.SetUnit(s.Unit); err != nil {
			return err
		}
	}
	if s.Lang != "" {
		b.model.SetLanguage(s.Lang)
	}
	if b.opts.Production || s.Production {
		if err := b.model.EnableProduction(true); err != nil {
			return err
		}
	}
	for _, md := range s.Metadata {
		if err := b.model.AddMetadata(md.Name, md.Value); err != nil {
			return err
		}
	}
	return nil
}

func (b *builder) addObject(obj Object) (threemf.ResourceID, error) {
	var (
		id  threemf.ResourceID
		err error
	)
	switch obj.Type {
	case TypeMesh:
		id, err = b.addMesh(obj)
	case TypeComponents:
		id, err = b.addComponents(obj)
	default:
		return 0, fmt.Errorf("%w: unknown object type %q", ErrInvalidScene, obj.Type)
	}
	if err != nil {
		return 0, err
	}
	if obj.PartNumber != "" {
		if err := b.model.SetObjectPartNumber(id, obj.PartNumber); err != nil {
			return 0, err
		}
	}
	return id, nil
}

func (b *builder) addMesh(obj Object) (threemf.ResourceID, error) {
	mesh, err := obj.mesh(b.opts.BaseDir)
	if err != nil {
		return 0, err
	}
	material, err := b.material(obj.MaterialIndex)
	if err != nil {
		return 0, err
	}
	meshOpts := threemf.MeshOptions{Name: obj.Name, Material: material}

	// A pooled object may be shared, so per-triangle materials need an
	// object of their own.
	if b.opts.Optimize != nil && len(obj.TriangleMaterials) == 0 {
		opt := *b.opts.Optimize
		opt.MeshOptions = meshOpts
		return b.model.AddMeshOptimized(mesh, opt)
	}

	props := make(map[int]threemf.TriangleProperty, len(obj.TriangleMaterials))
	for tri, matIndex := range obj.TriangleMaterials {
		ref, err := b.material(&matIndex)
		if err != nil {
			return 0, fmt.Errorf("triangle %d: %w", tri, err)
		}
		props[tri] = threemf.TriangleProperty{PID: ref.PID, P: [3]int{ref.PIndex, ref.PIndex, ref.PIndex}}
	}

	id, err := b.model.AddMesh(mesh, meshOpts)
	if err != nil {
		return 0, err
	}
	if len(props) > 0 {
		if err := b.model.SetTriangleProperties(id, props); err != nil {
			return 0, err
		}
	}
	return id, nil
}

func (b *builder) addComponents(obj Object) (threemf.ResourceID, error) {
	refs := make([]threemf.ComponentRef, 0, len(obj.Components))
	for i, c := range obj.Components {
		t, err := transform(c.Transform)
		if err != nil {
			return 0, fmt.Errorf("component %d: %w", i, err)
		}
		ref := threemf.ComponentRef{Transform: t, Path: c.Path}
		if c.Path != "" {
			ref.ObjectID = threemf.ResourceID(c.ObjectID)
		} else if ref.ObjectID, err = b.object(c.ObjectIndex); err != nil {
			return 0, fmt.Errorf("component %d: %w", i, err)
		}
		refs = append(refs, ref)
	}
	name := obj.Name
	if name == "" {
		name = "Components"
	}
	return b.model.AddComponentObject(name, refs)
}

func (b *builder) build(items []BuildItem) error {
	if len(items) == 0 {
		return nil
	}
	b.model.ClearBuildItems()
	for i, item := range items {
		id, err := b.object(item.ObjectIndex)
		if err != nil {
			return fmt.Errorf("build item %d: %w", i, err)
		}
		t, err := transform(item.Transform)
		if err != nil {
			return fmt.Errorf("build item %d: %w", i, err)
		}
		if err := b.model.AddBuildItem(id, threemf.BuildItemOptions{Transform: t, PartNumber: item.PartNumber}); err != nil {
			return fmt.Errorf("build item %d: %w", i, err)
		}
	}
	return nil
}

func (b *builder) addExternal(ext External) (threemf.ExternalRef, error) {
	material, err := b.material(ext.MaterialIndex)
	if err != nil {
		return threemf.ExternalRef{}, err
	}
	mesh := geometry.Mesh{Vertices: ext.Vertices, Triangles: ext.Triangles}
	return b.model.AddExternalMesh(ext.Path, ext.Name, mesh, material)
}

// externalItem places an external object on the build plate after the
// explicit build list.
func (b *builder) externalItem(ext External, ref threemf.ExternalRef) error {
	var opts threemf.BuildItemOptions
	if ext.BuildItem != nil {
		t, err := transform(ext.BuildItem.Transform)
		if err != nil {
			return err
		}
		opts.Transform = t
	}
	return b.model.AddExternalBuildItem(ref, opts)
}
