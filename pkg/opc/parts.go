package opc

import (
	"bytes"
	"encoding/xml"
)

// Well-known part names.
const (
	ContentTypesPath = "[Content_Types].xml"
	RootRelsPath     = "_rels/.rels"
)

// Namespaces and relationship types.
const (
	ContentTypesNamespace  = "http://schemas.openxmlformats.org/package/2006/content-types"
	RelationshipsNamespace = "http://schemas.openxmlformats.org/package/2006/relationships"

	RelTypeThumbnail    = "http://schemas.openxmlformats.org/package/2006/relationships/metadata/thumbnail"
	RelTypeMustPreserve = "http://schemas.openxmlformats.org/package/2006/relationships/mustpreserve"

	ContentTypeRelationships = "application/vnd.openxmlformats-package.relationships+xml"
)

// ContentTypes is the [Content_Types].xml document.
type ContentTypes struct {
	XMLName   xml.Name   `xml:"Types"`
	Xmlns     string     `xml:"xmlns,attr"`
	Defaults  []Default  `xml:"Default"`
	Overrides []Override `xml:"Override"`
}

// Default maps a file extension to a content type.
type Default struct {
	Extension   string `xml:"Extension,attr"`
	ContentType string `xml:"ContentType,attr"`
}

// Override maps one part name to a content type.
type Override struct {
	PartName    string `xml:"PartName,attr"`
	ContentType string `xml:"ContentType,attr"`
}

// NewContentTypes returns an empty document with the namespace set.
func NewContentTypes() *ContentTypes {
	return &ContentTypes{Xmlns: ContentTypesNamespace}
}

// AddDefault registers an extension unless it is already present.
func (c *ContentTypes) AddDefault(ext, contentType string) {
	for _, d := range c.Defaults {
		if d.Extension == ext {
			return
		}
	}
	c.Defaults = append(c.Defaults, Default{Extension: ext, ContentType: contentType})
}

// AddOverride registers a per-part content type.
func (c *ContentTypes) AddOverride(partName, contentType string) {
	c.Overrides = append(c.Overrides, Override{PartName: partName, ContentType: contentType})
}

// Relationships is a relationship part (.rels).
type Relationships struct {
	XMLName       xml.Name       `xml:"Relationships"`
	Xmlns         string         `xml:"xmlns,attr"`
	Relationships []Relationship `xml:"Relationship"`
}

// Relationship links a source part to a target.
type Relationship struct {
	ID     string `xml:"Id,attr"`
	Type   string `xml:"Type,attr"`
	Target string `xml:"Target,attr"`
}

// NewRelationships returns an empty relationship part.
func NewRelationships() *Relationships {
	return &Relationships{Xmlns: RelationshipsNamespace}
}

// Add appends a relationship.
func (r *Relationships) Add(id, relType, target string) {
	r.Relationships = append(r.Relationships, Relationship{ID: id, Type: relType, Target: target})
}

// Len returns the number of relationships.
func (r *Relationships) Len() int {
	return len(r.Relationships)
}

// MarshalDocument renders v as a UTF-8 XML document with declaration,
// indenting with two spaces when indent is set.
func MarshalDocument(v any, indent bool) ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteString(xml.Header)
	enc := xml.NewEncoder(&buf)
	if indent {
		enc.Indent("", "  ")
	}
	if err := enc.Encode(v); err != nil {
		return nil, err
	}
	if err := enc.Close(); err != nil {
		return nil, err
	}
	buf.WriteByte('\n')
	return buf.Bytes(), nil
}

// RelsPathFor returns the relationship part name for a source part, e.g.
// "3D/3dmodel.model" -> "3D/_rels/3dmodel.model.rels".
func RelsPathFor(partName string) string {
	dir, file := "", partName
	for i := len(partName) - 1; i >= 0; i-- {
		if partName[i] == '/' {
			dir, file = partName[:i+1], partName[i+1:]
			break
		}
	}
	return dir + "_rels/" + file + ".rels"
}
