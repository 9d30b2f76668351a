// Package threemf builds 3MF packages. A Model owns every resource of one
// document (materials, textures, objects, build items, external parts and
// extra package parts), allocates their ids and checks every cross
// reference when it is added. Serialization renders the finished graph into
// the model XML and packs it with its assets into a ZIP archive.
//
// Supported extensions: Production (UUIDs, external model parts), Materials
// and Properties, Triangle Sets.
package threemf

import (
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Model errors.
var (
	ErrInvalidID          = errors.New("resource id must be positive")
	ErrDuplicateID        = errors.New("duplicate resource id")
	ErrNotFound           = errors.New("resource not found")
	ErrInvalidColor       = errors.New("invalid color")
	ErrOutOfRange         = errors.New("index out of range")
	ErrInvalidValue       = errors.New("invalid value")
	ErrInvalidUnit        = errors.New("invalid unit")
	ErrInvalidPath        = errors.New("invalid part path")
	ErrDuplicatePart      = errors.New("duplicate part")
	ErrUnknownContentType = errors.New("contentType required for custom part with unknown extension")
	ErrUnsupportedImage   = errors.New("unsupported image type")
	ErrProductionRequired = errors.New("production extension required")
	ErrDuplicateMetadata  = errors.New("duplicate metadata name")
)

// ResourceID identifies a resource within one model document. Ids are
// unique across all resource kinds.
type ResourceID int

// PropertyRef addresses one entry of a property resource, e.g. one base
// material of a basematerials set.
type PropertyRef struct {
	PID    ResourceID
	PIndex int
}

// Unit is the model unit of measure.
type Unit string

// Units allowed by the core specification.
const (
	UnitMillimeter Unit = "millimeter"
	UnitMicron     Unit = "micron"
	UnitCentimeter Unit = "centimeter"
	UnitInch       Unit = "inch"
	UnitFoot       Unit = "foot"
	UnitMeter      Unit = "meter"
)

// ParseUnit parses a unit name. "micrometer" is accepted as an alias for
// micron.
func ParseUnit(s string) (Unit, error) {
	switch u := Unit(strings.ToLower(strings.TrimSpace(s))); u {
	case "micrometer":
		return UnitMicron, nil
	case UnitMillimeter, UnitMicron, UnitCentimeter, UnitInch, UnitFoot, UnitMeter:
		return u, nil
	}
	return "", fmt.Errorf("%w: %q", ErrInvalidUnit, s)
}

// Metadata is one model metadata entry.
type Metadata struct {
	Name  string
	Value string
}

// Well-known metadata names.
const (
	MetaTitle            = "Title"
	MetaDesigner         = "Designer"
	MetaAuthor           = "Author"
	MetaApplication      = "Application"
	MetaCreationDate     = "CreationDate"
	MetaModificationDate = "ModificationDate"
	MetaDescription      = "Description"
)

// Model is one 3MF document under construction. It is not safe for
// concurrent use. Every mutating method either succeeds or returns an
// error and leaves the model untouched.
type Model struct {
	log      *zap.Logger
	newUUID  func() string
	poolMode PoolMode

	unit       Unit
	lang       string
	production bool
	buildUUID  string
	metadata   []Metadata

	ids           *idAllocator
	baseMaterials []*BaseMaterials
	colorGroups   []*ColorGroup
	textures      []*Texture
	textureGroups []*TextureGroup
	composites    []*CompositeMaterials
	multis        []*MultiMaterials
	objects       []*Object
	objectByID    map[ResourceID]*Object
	items         []BuildItem

	thumbnail    *Thumbnail
	objectThumbs []*Thumbnail
	externals    []*ExternalPart
	preserve     []PreservePart
	extraTypes   []contentTypeDefault

	pool map[string]*PoolEntry
}

// Option configures a Model.
type Option func(*Model)

// WithLogger sets the logger used for debug output. The default discards
// everything.
func WithLogger(l *zap.Logger) Option {
	return func(m *Model) {
		if l != nil {
			m.log = l
		}
	}
}

// WithUUIDSource replaces the Production UUID generator.
func WithUUIDSource(fn func() string) Option {
	return func(m *Model) {
		if fn != nil {
			m.newUUID = fn
		}
	}
}

// WithPoolMode selects how optimized ingestion keys pooled geometry.
func WithPoolMode(mode PoolMode) Option {
	return func(m *Model) {
		m.poolMode = mode
	}
}

// New creates an empty model in millimeters with language en-US.
func New(opts ...Option) *Model {
	m := &Model{
		log:        zap.NewNop(),
		newUUID:    uuid.NewString,
		poolMode:   PoolFingerprint,
		unit:       UnitMillimeter,
		lang:       "en-US",
		ids:        newIDAllocator(),
		objectByID: make(map[ResourceID]*Object),
		pool:       make(map[string]*PoolEntry),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Unit returns the model unit.
func (m *Model) Unit() Unit { return m.unit }

// SetUnit sets the model unit from its name.
func (m *Model) SetUnit(name string) error {
	u, err := ParseUnit(name)
	if err != nil {
		return err
	}
	m.unit = u
	return nil
}

// Language returns the xml:lang of the model.
func (m *Model) Language() string { return m.lang }

// SetLanguage sets the xml:lang of the model.
func (m *Model) SetLanguage(lang string) {
	m.lang = lang
}

// Production reports whether the Production extension is enabled.
func (m *Model) Production() bool { return m.production }

// EnableProduction switches the Production extension on or off. Turning it
// on assigns UUIDs to the build and to every object, component and build
// item created so far. It cannot be turned off while build items or
// components reference external parts.
func (m *Model) EnableProduction(enable bool) error {
	if !enable {
		if m.hasExternalRefs() {
			return fmt.Errorf("%w: model references external parts", ErrProductionRequired)
		}
		m.production = false
		return nil
	}
	if m.production {
		return nil
	}
	m.production = true
	m.backfillUUIDs()
	return nil
}

func (m *Model) hasExternalRefs() bool {
	for _, item := range m.items {
		if item.Path != "" {
			return true
		}
	}
	for _, obj := range m.objects {
		if body, ok := obj.Body.(*ComponentsBody); ok {
			for _, c := range body.Components {
				if c.Path != "" {
					return true
				}
			}
		}
	}
	return false
}

func (m *Model) backfillUUIDs() {
	if m.buildUUID == "" {
		m.buildUUID = m.newUUID()
	}
	fill := func(objects []*Object) {
		for _, obj := range objects {
			if obj.UUID == "" {
				obj.UUID = m.newUUID()
			}
			if body, ok := obj.Body.(*ComponentsBody); ok {
				for i := range body.Components {
					if body.Components[i].UUID == "" {
						body.Components[i].UUID = m.newUUID()
					}
				}
			}
		}
	}
	fill(m.objects)
	for _, ext := range m.externals {
		fill(ext.objects)
	}
	for i := range m.items {
		if m.items[i].UUID == "" {
			m.items[i].UUID = m.newUUID()
		}
	}
}

// uuidIfProduction returns a fresh UUID when Production is enabled.
func (m *Model) uuidIfProduction() string {
	if !m.production {
		return ""
	}
	return m.newUUID()
}

// AddMetadata appends a metadata entry. Names must be unique.
func (m *Model) AddMetadata(name, value string) error {
	if name == "" {
		return fmt.Errorf("%w: metadata name must not be empty", ErrInvalidValue)
	}
	for _, md := range m.metadata {
		if md.Name == name {
			return fmt.Errorf("%w: %s", ErrDuplicateMetadata, name)
		}
	}
	m.metadata = append(m.metadata, Metadata{Name: name, Value: value})
	return nil
}

// SetMetadata sets a metadata entry, replacing any entry with that name.
func (m *Model) SetMetadata(name, value string) error {
	if name == "" {
		return fmt.Errorf("%w: metadata name must not be empty", ErrInvalidValue)
	}
	for i := range m.metadata {
		if m.metadata[i].Name == name {
			m.metadata[i].Value = value
			return nil
		}
	}
	m.metadata = append(m.metadata, Metadata{Name: name, Value: value})
	return nil
}

func (m *Model) setWellKnown(name, value string) {
	_ = m.SetMetadata(name, value)
}

func (m *Model) SetTitle(title string) { m.setWellKnown(MetaTitle, title) }
func (m *Model) SetDesigner(designer string) { m.setWellKnown(MetaDesigner, designer) }
func (m *Model) SetAuthor(author string) { m.setWellKnown(MetaAuthor, author) }
func (m *Model) SetApplication(app string) { m.setWellKnown(MetaApplication, app) }
func (m *Model) SetCreationDate(isoDate string) { m.setWellKnown(MetaCreationDate, isoDate) }
func (m *Model) SetModificationDate(isoDate string) { m.setWellKnown(MetaModificationDate, isoDate) }
func (m *Model) SetDescription(description string) { m.setWellKnown(MetaDescription, description) }

// Metadata returns a copy of the metadata entries in insertion order.
func (m *Model) Metadata() []Metadata {
	out := make([]Metadata, len(m.metadata))
	copy(out, m.metadata)
	return out
}

// resource is implemented by every id-carrying resource of a document.
type resource interface {
	resourceID() ResourceID
}

func lookup[T resource](items []T, id ResourceID) (T, bool) {
	for _, it := range items {
		if it.resourceID() == id {
			return it, true
		}
	}
	var zero T
	return zero, false
}
