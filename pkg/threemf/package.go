package threemf

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/klauspost/compress/flate"
	"go.uber.org/zap"

	"github.com/Faultbox/threemf/pkg/opc"
)

// Package constants.
const (
	ContentTypeModel = "application/vnd.ms-package.3dmanufacturing-3dmodel+xml"
	RelTypeModel     = "http://schemas.microsoft.com/3dmanufacturing/2013/01/3dmodel"
)

// WriteOptions control archive output.
type WriteOptions struct {
	// CompressionLevel is a deflate level from flate.NoCompression to
	// flate.BestCompression, or flate.DefaultCompression.
	CompressionLevel int
	// Indent pretty-prints the XML parts.
	Indent bool
}

// DefaultWriteOptions returns default compression with indented XML.
func DefaultWriteOptions() WriteOptions {
	return WriteOptions{CompressionLevel: flate.DefaultCompression, Indent: true}
}

// part is one archive entry.
type part struct {
	name string
	data []byte
}

// contentTypes renders [Content_Types].xml.
func (m *Model) contentTypes() *opc.ContentTypes {
	ct := opc.NewContentTypes()
	for _, d := range builtinDefaults {
		ct.AddDefault(d.ext, d.contentType)
	}
	for _, d := range m.extraTypes {
		ct.AddDefault(d.ext, d.contentType)
	}
	ct.AddOverride("/"+RootModelPath, ContentTypeModel)
	for _, ext := range m.externals {
		ct.AddOverride(ext.partName(), ContentTypeModel)
	}
	// Parts whose extension maps elsewhere, or that have none, need their
	// own entry.
	for _, p := range m.preserve {
		ext := ""
		if match := partExtRe.FindStringSubmatch(p.Path); match != nil {
			ext = strings.ToLower(match[1])
		}
		if t, ok := m.defaultType(ext); !ok || t != p.ContentType {
			ct.AddOverride(p.Path, p.ContentType)
		}
	}
	return ct
}

// rootRelationships renders _rels/.rels.
func (m *Model) rootRelationships() *opc.Relationships {
	rels := opc.NewRelationships()
	rels.Add("rel-model", RelTypeModel, "/"+RootModelPath)
	if m.thumbnail != nil {
		rels.Add("rel-thumb", opc.RelTypeThumbnail, m.thumbnail.Path)
	}
	for i, p := range m.preserve {
		rels.Add(fmt.Sprintf("rel-preserve-%d", i+1), opc.RelTypeMustPreserve, p.Path)
	}
	return rels
}

// modelRelationships renders the root model part relationships, or nil
// when there are none.
func (m *Model) modelRelationships() *opc.Relationships {
	if len(m.externals) == 0 && len(m.objectThumbs) == 0 {
		return nil
	}
	rels := opc.NewRelationships()
	for i, ext := range m.externals {
		rels.Add(fmt.Sprintf("rel-ext-%d", i+1), RelTypeModel, ext.partName())
	}
	for i, t := range m.objectThumbs {
		rels.Add(fmt.Sprintf("rel-thumb-obj-%d", i+1), opc.RelTypeThumbnail, t.Path)
	}
	return rels
}

// parts renders every archive entry in write order.
func (m *Model) parts(indent bool) ([]part, error) {
	var parts []part
	add := func(name string, v any) error {
		data, err := opc.MarshalDocument(v, indent)
		if err != nil {
			return fmt.Errorf("rendering %s: %w", name, err)
		}
		parts = append(parts, part{name: name, data: data})
		return nil
	}

	if err := add(opc.ContentTypesPath, m.contentTypes()); err != nil {
		return nil, err
	}
	if err := add(opc.RootRelsPath, m.rootRelationships()); err != nil {
		return nil, err
	}
	if err := add(RootModelPath, m.rootDocument()); err != nil {
		return nil, err
	}
	if rels := m.modelRelationships(); rels != nil {
		if err := add(opc.RelsPathFor(RootModelPath), rels); err != nil {
			return nil, err
		}
	}
	for _, ext := range m.externals {
		if err := add(ext.Path, m.externalDocument(ext)); err != nil {
			return nil, err
		}
	}

	if m.thumbnail != nil {
		parts = append(parts, part{name: m.thumbnail.Path, data: m.thumbnail.Data})
	}
	for _, t := range m.textures {
		parts = append(parts, part{name: t.Path, data: t.Data})
	}
	for _, t := range m.objectThumbs {
		parts = append(parts, part{name: t.Path, data: t.Data})
	}
	for _, p := range m.preserve {
		parts = append(parts, part{name: p.Path, data: p.Data})
	}
	return parts, nil
}

// Serialize writes the package to w. The model is not modified.
func (m *Model) Serialize(ctx context.Context, w io.Writer, opts WriteOptions) error {
	parts, err := m.parts(opts.Indent)
	if err != nil {
		return err
	}
	zw, err := opc.NewWriter(w, opts.CompressionLevel)
	if err != nil {
		return err
	}
	for _, p := range parts {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := zw.AddPart(p.name, p.data); err != nil {
			return err
		}
	}
	if err := zw.Close(); err != nil {
		return fmt.Errorf("closing archive: %w", err)
	}
	m.log.Debug("package written",
		zap.Int("parts", len(parts)),
		zap.Int("objects", len(m.objects)),
		zap.Int("items", len(m.items)),
	)
	return nil
}

// Bytes returns the package with default write options.
func (m *Model) Bytes(ctx context.Context) ([]byte, error) {
	var buf bytes.Buffer
	if err := m.Serialize(ctx, &buf, DefaultWriteOptions()); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// WriteFile writes the package to a file, creating parent directories.
func (m *Model) WriteFile(ctx context.Context, name string, opts WriteOptions) error {
	var buf bytes.Buffer
	if err := m.Serialize(ctx, &buf, opts); err != nil {
		return err
	}
	if dir := filepath.Dir(name); dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("creating directory: %w", err)
		}
	}
	if err := os.WriteFile(name, buf.Bytes(), 0644); err != nil {
		return fmt.Errorf("writing %s: %w", name, err)
	}
	return nil
}
