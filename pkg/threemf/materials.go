package threemf

import (
	"fmt"
	"math"
	"regexp"
	"strings"

	"github.com/gabriel-vasile/mimetype"
)

var (
	displayColorRe = regexp.MustCompile(`^#[0-9a-fA-F]{8}$`)
	colorValueRe   = regexp.MustCompile(`^#(?:[0-9a-fA-F]{6}|[0-9a-fA-F]{8})$`)
)

// compositeTolerance is the allowed deviation of a composite weight sum
// from 1.0.
const compositeTolerance = 1e-6

// BaseMaterial is one entry of a basematerials set.
type BaseMaterial struct {
	Name         string
	DisplayColor string

	// placeholder marks padding written into an external part's set.
	placeholder bool
}

// BaseMaterials is a core basematerials resource.
type BaseMaterials struct {
	ID    ResourceID
	Bases []BaseMaterial
}

func (b *BaseMaterials) resourceID() ResourceID { return b.ID }

// Color is one entry of a color group.
type Color struct {
	Name  string
	Value string
}

// ColorGroup is a Materials extension colorgroup resource.
type ColorGroup struct {
	ID     ResourceID
	Colors []Color
}

func (g *ColorGroup) resourceID() ResourceID { return g.ID }

// Texture is a Materials extension texture2d resource. Path is the part
// name inside the package.
type Texture struct {
	ID          ResourceID
	Path        string
	ContentType string
	Data        []byte
}

func (t *Texture) resourceID() ResourceID { return t.ID }

// TileStyle controls texture coordinates outside [0,1].
type TileStyle string

const (
	TileWrap   TileStyle = "wrap"
	TileMirror TileStyle = "mirror"
	TileClamp  TileStyle = "clamp"
)

// Filter selects texture sampling.
type Filter string

const (
	FilterAuto    Filter = "auto"
	FilterNearest Filter = "nearest"
	FilterLinear  Filter = "linear"
)

// TextureGroupOptions are the optional attributes of a texture group.
// Empty values are omitted from the document.
type TextureGroupOptions struct {
	TileStyleU TileStyle
	TileStyleV TileStyle
	Filter     Filter
}

// TexCoord is one texture coordinate.
type TexCoord struct {
	U, V float64
}

// TextureGroup is a Materials extension texture2dgroup resource.
type TextureGroup struct {
	ID        ResourceID
	TextureID ResourceID
	Coords    []TexCoord
	TextureGroupOptions
}

func (g *TextureGroup) resourceID() ResourceID { return g.ID }

// CompositeMaterials mixes entries of one basematerials set. Each composite
// holds one weight per entry of MatIndices.
type CompositeMaterials struct {
	ID         ResourceID
	PID        ResourceID
	MatIndices []int
	Composites [][]float64
}

func (c *CompositeMaterials) resourceID() ResourceID { return c.ID }

// MultiMaterials layers several property resources. Each entry holds one
// index per pid.
type MultiMaterials struct {
	ID      ResourceID
	PIDs    []ResourceID
	Entries [][]int
}

func (mm *MultiMaterials) resourceID() ResourceID { return mm.ID }

// CreateBaseMaterials creates an empty basematerials set. A zero id is
// assigned automatically.
func (m *Model) CreateBaseMaterials(id ResourceID) (ResourceID, error) {
	id, err := m.ids.allocate(id, kindBaseMaterials)
	if err != nil {
		return 0, err
	}
	m.baseMaterials = append(m.baseMaterials, &BaseMaterials{ID: id})
	return id, nil
}

// AddBaseMaterial appends a material to a set and returns its address.
// displayColor must be #RRGGBBAA. A zero set uses the first set, creating
// one if there is none; an unknown set id creates that set.
func (m *Model) AddBaseMaterial(name, displayColor string, set ResourceID) (PropertyRef, error) {
	if !displayColorRe.MatchString(displayColor) {
		return PropertyRef{}, fmt.Errorf("%w: displaycolor must be in #RRGGBBAA format, got %q", ErrInvalidColor, displayColor)
	}
	if set == 0 && len(m.baseMaterials) > 0 {
		set = m.baseMaterials[0].ID
	}
	bm, ok := lookup(m.baseMaterials, set)
	if !ok {
		id, err := m.CreateBaseMaterials(set)
		if err != nil {
			return PropertyRef{}, err
		}
		bm, _ = lookup(m.baseMaterials, id)
	}
	bm.Bases = append(bm.Bases, BaseMaterial{Name: name, DisplayColor: displayColor})
	return PropertyRef{PID: bm.ID, PIndex: len(bm.Bases) - 1}, nil
}

// CreateColorGroup creates an empty color group.
func (m *Model) CreateColorGroup(id ResourceID) (ResourceID, error) {
	id, err := m.ids.allocate(id, kindColorGroup)
	if err != nil {
		return 0, err
	}
	m.colorGroups = append(m.colorGroups, &ColorGroup{ID: id})
	return id, nil
}

// AddColor appends a #RRGGBB or #RRGGBBAA color to a group. Group
// selection follows AddBaseMaterial.
func (m *Model) AddColor(value, name string, group ResourceID) (PropertyRef, error) {
	if !colorValueRe.MatchString(value) {
		return PropertyRef{}, fmt.Errorf("%w: color value must be #RRGGBB or #RRGGBBAA, got %q", ErrInvalidColor, value)
	}
	if group == 0 && len(m.colorGroups) > 0 {
		group = m.colorGroups[0].ID
	}
	cg, ok := lookup(m.colorGroups, group)
	if !ok {
		id, err := m.CreateColorGroup(group)
		if err != nil {
			return PropertyRef{}, err
		}
		cg, _ = lookup(m.colorGroups, id)
	}
	cg.Colors = append(cg.Colors, Color{Name: name, Value: value})
	return PropertyRef{PID: cg.ID, PIndex: len(cg.Colors) - 1}, nil
}

// imageType maps an extension, or sniffed content when ext is empty, to
// the package extension and content type of a PNG or JPEG image.
func imageType(data []byte, ext string) (string, string, error) {
	ext = strings.ToLower(strings.TrimPrefix(ext, "."))
	if ext == "" {
		switch mt := mimetype.Detect(data); {
		case mt.Is("image/png"):
			ext = "png"
		case mt.Is("image/jpeg"):
			ext = "jpg"
		default:
			return "", "", fmt.Errorf("%w: detected %s", ErrUnsupportedImage, mt.String())
		}
	}
	switch ext {
	case "png":
		return "png", "image/png", nil
	case "jpg", "jpeg":
		return "jpg", "image/jpeg", nil
	}
	return "", "", fmt.Errorf("%w: %q", ErrUnsupportedImage, ext)
}

// AddTexture adds a PNG or JPEG texture stored at
// /3D/Textures/texture-<id>.<ext>. An empty ext is detected from data.
func (m *Model) AddTexture(data []byte, ext string, id ResourceID) (ResourceID, error) {
	ext, contentType, err := imageType(data, ext)
	if err != nil {
		return 0, err
	}
	id, err = m.ids.resolve(id)
	if err != nil {
		return 0, err
	}
	path := fmt.Sprintf("/3D/Textures/texture-%d.%s", id, ext)
	if m.partTaken(path, "") {
		return 0, fmt.Errorf("%w: %s", ErrDuplicatePart, path)
	}
	m.ids.claim(id, kindTexture)
	m.textures = append(m.textures, &Texture{
		ID:          id,
		Path:        path,
		ContentType: contentType,
		Data:        data,
	})
	return id, nil
}

func (o TextureGroupOptions) validate() error {
	for _, ts := range []TileStyle{o.TileStyleU, o.TileStyleV} {
		switch ts {
		case "", TileWrap, TileMirror, TileClamp:
		default:
			return fmt.Errorf("%w: tile style %q", ErrInvalidValue, ts)
		}
	}
	switch o.Filter {
	case "", FilterAuto, FilterNearest, FilterLinear:
	default:
		return fmt.Errorf("%w: filter %q", ErrInvalidValue, o.Filter)
	}
	return nil
}

// CreateTextureGroup creates a texture coordinate group bound to a
// texture.
func (m *Model) CreateTextureGroup(texID ResourceID, opts TextureGroupOptions, id ResourceID) (ResourceID, error) {
	if _, ok := lookup(m.textures, texID); !ok {
		return 0, fmt.Errorf("%w: Texture id %d not found", ErrNotFound, texID)
	}
	if err := opts.validate(); err != nil {
		return 0, err
	}
	id, err := m.ids.allocate(id, kindTextureGroup)
	if err != nil {
		return 0, err
	}
	m.textureGroups = append(m.textureGroups, &TextureGroup{ID: id, TextureID: texID, TextureGroupOptions: opts})
	return id, nil
}

// AddTexCoord appends a coordinate to a texture group and returns its index.
func (m *Model) AddTexCoord(group ResourceID, u, v float64) (int, error) {
	tg, ok := lookup(m.textureGroups, group)
	if !ok {
		return 0, fmt.Errorf("%w: Texture2DGroup %d not found", ErrNotFound, group)
	}
	if !isFinite(u) || !isFinite(v) {
		return 0, fmt.Errorf("%w: u/v must be finite numbers", ErrInvalidValue)
	}
	tg.Coords = append(tg.Coords, TexCoord{U: u, V: v})
	return len(tg.Coords) - 1, nil
}

// CreateCompositeMaterials creates a composite resource mixing the given
// entries of a basematerials set.
func (m *Model) CreateCompositeMaterials(pid ResourceID, matIndices []int, id ResourceID) (ResourceID, error) {
	bm, ok := lookup(m.baseMaterials, pid)
	if !ok {
		return 0, fmt.Errorf("%w: BaseMaterials pid %d not found", ErrNotFound, pid)
	}
	if len(matIndices) == 0 {
		return 0, fmt.Errorf("%w: matindices must not be empty", ErrInvalidValue)
	}
	for _, idx := range matIndices {
		if idx < 0 || idx >= len(bm.Bases) {
			return 0, fmt.Errorf("%w: matindex %d out of range for basematerials pid %d", ErrOutOfRange, idx, pid)
		}
	}
	id, err := m.ids.allocate(id, kindComposite)
	if err != nil {
		return 0, err
	}
	indices := append([]int(nil), matIndices...)
	m.composites = append(m.composites, &CompositeMaterials{ID: id, PID: pid, MatIndices: indices})
	return id, nil
}

// AddComposite appends a weight vector. Weights must be finite,
// non-negative, one per material index, and sum to 1.0 within 1e-6.
func (m *Model) AddComposite(comp ResourceID, values []float64) (int, error) {
	cm, ok := lookup(m.composites, comp)
	if !ok {
		return 0, fmt.Errorf("%w: CompositeMaterials %d not found", ErrNotFound, comp)
	}
	if len(values) == 0 {
		return 0, fmt.Errorf("%w: Composite values must be a non-empty array", ErrInvalidValue)
	}
	if len(values) != len(cm.MatIndices) {
		return 0, fmt.Errorf("%w: got %d composite values for %d matindices", ErrInvalidValue, len(values), len(cm.MatIndices))
	}
	var sum float64
	for _, v := range values {
		if !isFinite(v) || v < 0 {
			return 0, fmt.Errorf("%w: Composite values must be finite non-negative numbers", ErrInvalidValue)
		}
		sum += v
	}
	if math.Abs(sum-1.0) > compositeTolerance {
		return 0, fmt.Errorf("%w: Composite values must sum to 1.0, got %g", ErrInvalidValue, sum)
	}
	cm.Composites = append(cm.Composites, append([]float64(nil), values...))
	return len(cm.Composites) - 1, nil
}

// CreateMultiMaterials creates a multimaterials resource layering at least
// two property resources (basematerials, colorgroup, texture2dgroup or
// compositematerials).
func (m *Model) CreateMultiMaterials(pids []ResourceID, id ResourceID) (ResourceID, error) {
	if len(pids) < 2 {
		return 0, fmt.Errorf("%w: MultiMaterials requires at least two pids", ErrInvalidValue)
	}
	for _, pid := range pids {
		kind, _, ok := m.property(pid)
		if !ok || kind == kindMulti {
			return 0, fmt.Errorf("%w: Property resource pid %d not found", ErrNotFound, pid)
		}
	}
	id, err := m.ids.allocate(id, kindMulti)
	if err != nil {
		return 0, err
	}
	m.multis = append(m.multis, &MultiMaterials{ID: id, PIDs: append([]ResourceID(nil), pids...)})
	return id, nil
}

// AddMultiMaterial appends an entry holding one index per pid. Each index
// is checked against the current size of its resource.
func (m *Model) AddMultiMaterial(mm ResourceID, pindices []int) (int, error) {
	res, ok := lookup(m.multis, mm)
	if !ok {
		return 0, fmt.Errorf("%w: MultiMaterials %d not found", ErrNotFound, mm)
	}
	if len(pindices) != len(res.PIDs) {
		return 0, fmt.Errorf("%w: pindices length must match number of pids", ErrInvalidValue)
	}
	for i, pid := range res.PIDs {
		if err := m.checkPropertyIndex(pid, pindices[i]); err != nil {
			return 0, err
		}
	}
	res.Entries = append(res.Entries, append([]int(nil), pindices...))
	return len(res.Entries) - 1, nil
}

// property returns the kind and current item count of a property resource.
func (m *Model) property(pid ResourceID) (string, int, bool) {
	kind, ok := m.ids.kind(pid)
	if !ok {
		return "", 0, false
	}
	switch kind {
	case kindBaseMaterials:
		bm, _ := lookup(m.baseMaterials, pid)
		return kind, len(bm.Bases), true
	case kindColorGroup:
		cg, _ := lookup(m.colorGroups, pid)
		return kind, len(cg.Colors), true
	case kindTextureGroup:
		tg, _ := lookup(m.textureGroups, pid)
		return kind, len(tg.Coords), true
	case kindComposite:
		cm, _ := lookup(m.composites, pid)
		return kind, len(cm.Composites), true
	case kindMulti:
		mm, _ := lookup(m.multis, pid)
		return kind, len(mm.Entries), true
	}
	return "", 0, false
}

// checkPropertyIndex verifies that pid is a property resource holding at
// least index+1 items.
func (m *Model) checkPropertyIndex(pid ResourceID, index int) error {
	kind, count, ok := m.property(pid)
	if !ok {
		return fmt.Errorf("%w: Property resource pid %d not found", ErrNotFound, pid)
	}
	if index < 0 || index >= count {
		return fmt.Errorf("%w: pindex %d out of range for %s pid %d", ErrOutOfRange, index, kind, pid)
	}
	return nil
}

// BaseMaterials returns the basematerials sets in creation order. The
// returned values must not be modified.
func (m *Model) BaseMaterials() []*BaseMaterials { return m.baseMaterials }

// ColorGroups returns the color groups in creation order.
func (m *Model) ColorGroups() []*ColorGroup { return m.colorGroups }

// Textures returns the textures in creation order.
func (m *Model) Textures() []*Texture { return m.textures }

func isFinite(f float64) bool {
	return !math.IsNaN(f) && !math.IsInf(f, 0)
}
