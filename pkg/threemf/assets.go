package threemf

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/gabriel-vasile/mimetype"

	"github.com/Faultbox/threemf/pkg/opc"
)

// ThumbnailDir is the package folder holding a thumbnail.
type ThumbnailDir string

const (
	DirThumbnails ThumbnailDir = "Thumbnails"
	DirMetadata   ThumbnailDir = "Metadata"
)

// Thumbnail is an image part attached to the package or to an object.
type Thumbnail struct {
	Path     string
	Ext      string
	Data     []byte
	objectID ResourceID
}

// PreservePart is a caller supplied part that consumers must keep when
// they rewrite the package.
type PreservePart struct {
	Path        string
	ContentType string
	Data        []byte
}

type contentTypeDefault struct {
	ext         string
	contentType string
}

var partExtRe = regexp.MustCompile(`\.([A-Za-z0-9]+)$`)

// knownPartTypes is consulted when a preserved part has no explicit content
// type.
var knownPartTypes = map[string]string{
	"txt":  "text/plain",
	"json": "application/json",
}

func checkThumbnailDir(dir ThumbnailDir, def ThumbnailDir) (ThumbnailDir, error) {
	switch dir {
	case "":
		return def, nil
	case DirThumbnails, DirMetadata:
		return dir, nil
	}
	return "", fmt.Errorf("%w: thumbnail directory %q", ErrInvalidPath, dir)
}

// SetThumbnail sets the package thumbnail, stored as
// /<dir>/thumbnail.<ext>. An empty ext is detected from data and an empty
// dir means Thumbnails.
func (m *Model) SetThumbnail(data []byte, ext string, dir ThumbnailDir) error {
	ext, _, err := imageType(data, ext)
	if err != nil {
		return err
	}
	dir, err = checkThumbnailDir(dir, DirThumbnails)
	if err != nil {
		return err
	}
	path := fmt.Sprintf("/%s/thumbnail.%s", dir, ext)
	var current string
	if m.thumbnail != nil {
		current = m.thumbnail.Path
	}
	if m.partTaken(path, current) {
		return fmt.Errorf("%w: %s", ErrDuplicatePart, path)
	}
	m.thumbnail = &Thumbnail{
		Path: path,
		Ext:  ext,
		Data: data,
	}
	return nil
}

// SetObjectThumbnail attaches a thumbnail to a root object, stored as
// /<dir>/object-<id>.<ext>. An empty dir means Metadata. Setting it again
// replaces the previous image.
func (m *Model) SetObjectThumbnail(objectID ResourceID, data []byte, ext string, dir ThumbnailDir) error {
	obj, ok := m.objectByID[objectID]
	if !ok {
		return fmt.Errorf("%w: Object %d not found", ErrNotFound, objectID)
	}
	ext, _, err := imageType(data, ext)
	if err != nil {
		return err
	}
	dir, err = checkThumbnailDir(dir, DirMetadata)
	if err != nil {
		return err
	}
	path := fmt.Sprintf("/%s/object-%d.%s", dir, objectID, ext)
	if m.partTaken(path, obj.Thumbnail) {
		return fmt.Errorf("%w: %s", ErrDuplicatePart, path)
	}
	thumb := &Thumbnail{
		Path:     path,
		Ext:      ext,
		Data:     data,
		objectID: objectID,
	}
	obj.Thumbnail = thumb.Path
	for i, t := range m.objectThumbs {
		if t.objectID == objectID {
			m.objectThumbs[i] = thumb
			return nil
		}
	}
	m.objectThumbs = append(m.objectThumbs, thumb)
	return nil
}

// reservedParts are written by the serializer itself.
var reservedParts = []string{
	"/[Content_Types].xml",
	"/_rels/.rels",
	"/" + RootModelPath,
	"/3D/_rels/3dmodel.model.rels",
}

// partKey normalizes a part name for comparison: part names are
// case-insensitive and the leading slash is optional.
func partKey(name string) string {
	name = strings.ReplaceAll(name, "\\", "/")
	return strings.ToLower(strings.TrimPrefix(name, "/"))
}

// partNames lists every part name the serializer writes.
func (m *Model) partNames() []string {
	names := append([]string(nil), reservedParts...)
	for _, ext := range m.externals {
		names = append(names, ext.partName())
	}
	if m.thumbnail != nil {
		names = append(names, m.thumbnail.Path)
	}
	for _, t := range m.textures {
		names = append(names, t.Path)
	}
	for _, t := range m.objectThumbs {
		names = append(names, t.Path)
	}
	for _, p := range m.preserve {
		names = append(names, p.Path)
	}
	return names
}

// partTaken reports whether name is already used by a part. replacing is
// the name of a part the caller is about to overwrite, or empty.
func (m *Model) partTaken(name, replacing string) bool {
	key := partKey(name)
	if replacing != "" && partKey(replacing) == key {
		return false
	}
	for _, n := range m.partNames() {
		if partKey(n) == key {
			return true
		}
	}
	return false
}

// AddPreservePart adds a custom part with a MustPreserve relationship from
// the package root. The path must start with "/". Without an explicit
// content type, .txt and .json are recognized and anything else is
// detected from the data.
func (m *Model) AddPreservePart(path string, data []byte, contentType string) error {
	if !strings.HasPrefix(path, "/") {
		return fmt.Errorf("%w: Preserve part path must start with \"/\": %s", ErrInvalidPath, path)
	}
	if m.partTaken(path, "") {
		return fmt.Errorf("%w: %s", ErrDuplicatePart, path)
	}

	var ext string
	if match := partExtRe.FindStringSubmatch(path); match != nil {
		ext = strings.ToLower(match[1])
	}
	ct := contentType
	if ct == "" {
		ct = knownPartTypes[ext]
	}
	if ct == "" {
		mt := mimetype.Detect(data)
		if mt.Is("application/octet-stream") {
			return ErrUnknownContentType
		}
		ct, _, _ = strings.Cut(mt.String(), ";")
	}

	if ext != "" {
		m.registerDefault(ext, ct)
	}
	m.preserve = append(m.preserve, PreservePart{Path: path, ContentType: ct, Data: data})
	return nil
}

// registerDefault records an extension for the content-types part unless
// it is already mapped.
func (m *Model) registerDefault(ext, contentType string) {
	if _, ok := m.defaultType(ext); ok {
		return
	}
	m.extraTypes = append(m.extraTypes, contentTypeDefault{ext: ext, contentType: contentType})
}

// builtinDefaults are always present in the content-types part.
var builtinDefaults = []contentTypeDefault{
	{"rels", opc.ContentTypeRelationships},
	{"model", ContentTypeModel},
	{"png", "image/png"},
	{"jpg", "image/jpeg"},
}

func (m *Model) defaultType(ext string) (string, bool) {
	for _, d := range builtinDefaults {
		if d.ext == ext {
			return d.contentType, true
		}
	}
	for _, d := range m.extraTypes {
		if d.ext == ext {
			return d.contentType, true
		}
	}
	return "", false
}

// PreserveParts returns the preserved parts in insertion order.
func (m *Model) PreserveParts() []PreservePart {
	out := make([]PreservePart, len(m.preserve))
	copy(out, m.preserve)
	return out
}
