package threemf

import (
	"encoding/xml"
	"strconv"
	"strings"

	m3 "github.com/Faultbox/threemf/pkg/math"
)

// XML namespaces of the core specification and the supported extensions.
const (
	NamespaceCore         = "http://schemas.microsoft.com/3dmanufacturing/core/2015/02"
	NamespaceProduction   = "http://schemas.microsoft.com/3dmanufacturing/production/2015/06"
	NamespaceTriangleSets = "http://schemas.microsoft.com/3dmanufacturing/trianglesets/2021/07"
	NamespaceMaterials    = "http://schemas.microsoft.com/3dmanufacturing/material/2015/02"
)

// Document model, mirroring the 3MF schema. Prefixed names are written
// verbatim; the prefixes are declared on the root element.

type xmlModel struct {
	XMLName               xml.Name      `xml:"model"`
	Xmlns                 string        `xml:"xmlns,attr"`
	Lang                  string        `xml:"xml:lang,attr,omitempty"`
	Unit                  string        `xml:"unit,attr,omitempty"`
	XmlnsP                string        `xml:"xmlns:p,attr,omitempty"`
	XmlnsT                string        `xml:"xmlns:t,attr,omitempty"`
	XmlnsM                string        `xml:"xmlns:m,attr,omitempty"`
	RequiredExtensions    string        `xml:"requiredextensions,attr,omitempty"`
	RecommendedExtensions string        `xml:"recommendedextensions,attr,omitempty"`
	Metadata              []xmlMetadata `xml:"metadata"`
	Resources             xmlResources  `xml:"resources"`
	Build                 xmlBuild      `xml:"build"`
}

type xmlMetadata struct {
	Name  string `xml:"name,attr"`
	Value string `xml:",chardata"`
}

type xmlResources struct {
	BaseMaterials []xmlBaseMaterials `xml:"basematerials"`
	ColorGroups   []xmlColorGroup    `xml:"m:colorgroup"`
	Textures      []xmlTexture       `xml:"m:texture2d"`
	TextureGroups []xmlTextureGroup  `xml:"m:texture2dgroup"`
	Composites    []xmlComposites    `xml:"m:compositematerials"`
	Multis        []xmlMultis        `xml:"m:multimaterials"`
	Objects       []xmlObject        `xml:"object"`
}

type xmlBaseMaterials struct {
	ID    int       `xml:"id,attr"`
	Bases []xmlBase `xml:"base"`
}

type xmlBase struct {
	Name         string `xml:"name,attr"`
	DisplayColor string `xml:"displaycolor,attr"`
}

type xmlColorGroup struct {
	ID     int        `xml:"id,attr"`
	Colors []xmlColor `xml:"m:color"`
}

type xmlColor struct {
	Value string `xml:"value,attr"`
	Name  string `xml:"name,attr,omitempty"`
}

type xmlTexture struct {
	ID          int    `xml:"id,attr"`
	Path        string `xml:"path,attr"`
	ContentType string `xml:"contenttype,attr"`
}

type xmlTextureGroup struct {
	ID         int           `xml:"id,attr"`
	TexID      int           `xml:"texid,attr"`
	TileStyleU string        `xml:"tilestyleu,attr,omitempty"`
	TileStyleV string        `xml:"tilestylev,attr,omitempty"`
	Filter     string        `xml:"filter,attr,omitempty"`
	Coords     []xmlTexCoord `xml:"m:tex2coord"`
}

type xmlTexCoord struct {
	U string `xml:"u,attr"`
	V string `xml:"v,attr"`
}

type xmlComposites struct {
	ID         int            `xml:"id,attr"`
	PID        int            `xml:"pid,attr"`
	MatIndices string         `xml:"matindices,attr"`
	Composites []xmlComposite `xml:"m:composite"`
}

type xmlComposite struct {
	Values string `xml:"values,attr"`
}

type xmlMultis struct {
	ID      int        `xml:"id,attr"`
	PIDs    string     `xml:"pids,attr"`
	Entries []xmlMulti `xml:"m:multimaterial"`
}

type xmlMulti struct {
	PIndices string `xml:"pindices,attr"`
}

type xmlObject struct {
	ID         int            `xml:"id,attr"`
	Type       string         `xml:"type,attr"`
	Name       string         `xml:"name,attr,omitempty"`
	PID        string         `xml:"pid,attr,omitempty"`
	PIndex     string         `xml:"pindex,attr,omitempty"`
	UUID       string         `xml:"p:UUID,attr,omitempty"`
	Thumbnail  string         `xml:"thumbnail,attr,omitempty"`
	PartNumber string         `xml:"partnumber,attr,omitempty"`
	Mesh       *xmlMesh       `xml:"mesh"`
	Components *xmlComponents `xml:"components"`
}

type xmlMesh struct {
	Vertices     []xmlVertex      `xml:"vertices>vertex"`
	Triangles    []xmlTriangle    `xml:"triangles>triangle"`
	TriangleSets *xmlTriangleSets `xml:"t:trianglesets"`
}

type xmlVertex struct {
	X string `xml:"x,attr"`
	Y string `xml:"y,attr"`
	Z string `xml:"z,attr"`
}

type xmlTriangle struct {
	V1  int    `xml:"v1,attr"`
	V2  int    `xml:"v2,attr"`
	V3  int    `xml:"v3,attr"`
	PID string `xml:"pid,attr,omitempty"`
	P1  string `xml:"p1,attr,omitempty"`
	P2  string `xml:"p2,attr,omitempty"`
	P3  string `xml:"p3,attr,omitempty"`
}

type xmlTriangleSets struct {
	Sets []xmlTriangleSet `xml:"t:triangleset"`
}

type xmlTriangleSet struct {
	Name       string      `xml:"name,attr"`
	Identifier string      `xml:"identifier,attr"`
	Refs       []xmlSetRef
}

// xmlSetRef is a t:ref or t:refrange element, chosen by XMLName so both
// kinds keep their relative order.
type xmlSetRef struct {
	XMLName    xml.Name
	Index      string `xml:"index,attr,omitempty"`
	StartIndex string `xml:"startindex,attr,omitempty"`
	EndIndex   string `xml:"endindex,attr,omitempty"`
}

type xmlComponents struct {
	Components []xmlComponent `xml:"component"`
}

type xmlComponent struct {
	ObjectID  int    `xml:"objectid,attr"`
	Transform string `xml:"transform,attr,omitempty"`
	UUID      string `xml:"p:UUID,attr,omitempty"`
	Path      string `xml:"p:path,attr,omitempty"`
}

type xmlBuild struct {
	UUID  string    `xml:"p:UUID,attr,omitempty"`
	Items []xmlItem `xml:"item"`
}

type xmlItem struct {
	ObjectID   int    `xml:"objectid,attr"`
	Transform  string `xml:"transform,attr,omitempty"`
	Path       string `xml:"p:path,attr,omitempty"`
	UUID       string `xml:"p:UUID,attr,omitempty"`
	PartNumber string `xml:"partnumber,attr,omitempty"`
}

// extensions collects extension prefixes in first-use order without
// duplicates.
type extensions []string

func (e *extensions) add(prefix string) {
	for _, p := range *e {
		if p == prefix {
			return
		}
	}
	*e = append(*e, prefix)
}

func (e extensions) String() string {
	return strings.Join(e, " ")
}

func (m *Model) usesTriangleSets() bool {
	for _, obj := range m.objects {
		if body, ok := obj.Body.(*MeshBody); ok && len(body.Sets) > 0 {
			return true
		}
	}
	return false
}

func (m *Model) usesMaterials() bool {
	return len(m.colorGroups) > 0 || len(m.textures) > 0 || len(m.textureGroups) > 0 ||
		len(m.composites) > 0 || len(m.multis) > 0
}

// rootDocument renders the root model part.
func (m *Model) rootDocument() *xmlModel {
	doc := &xmlModel{
		Xmlns: NamespaceCore,
		Lang:  m.lang,
		Unit:  string(m.unit),
	}
	var required, recommended extensions
	if m.production {
		doc.XmlnsP = NamespaceProduction
		required.add("p")
	}
	if m.usesTriangleSets() {
		doc.XmlnsT = NamespaceTriangleSets
		recommended.add("t")
	}
	if m.usesMaterials() {
		doc.XmlnsM = NamespaceMaterials
		recommended.add("m")
	}
	doc.RequiredExtensions = required.String()
	doc.RecommendedExtensions = recommended.String()

	for _, md := range m.metadata {
		doc.Metadata = append(doc.Metadata, xmlMetadata{Name: md.Name, Value: md.Value})
	}

	res := &doc.Resources
	res.BaseMaterials = renderBaseMaterials(m.baseMaterials)
	for _, g := range m.colorGroups {
		x := xmlColorGroup{ID: int(g.ID)}
		for _, c := range g.Colors {
			x.Colors = append(x.Colors, xmlColor{Value: c.Value, Name: c.Name})
		}
		res.ColorGroups = append(res.ColorGroups, x)
	}
	for _, t := range m.textures {
		res.Textures = append(res.Textures, xmlTexture{ID: int(t.ID), Path: t.Path, ContentType: t.ContentType})
	}
	for _, g := range m.textureGroups {
		x := xmlTextureGroup{
			ID:         int(g.ID),
			TexID:      int(g.TextureID),
			TileStyleU: string(g.TileStyleU),
			TileStyleV: string(g.TileStyleV),
			Filter:     string(g.Filter),
		}
		for _, c := range g.Coords {
			x.Coords = append(x.Coords, xmlTexCoord{U: m3.FormatNumber(c.U), V: m3.FormatNumber(c.V)})
		}
		res.TextureGroups = append(res.TextureGroups, x)
	}
	for _, c := range m.composites {
		x := xmlComposites{ID: int(c.ID), PID: int(c.PID), MatIndices: joinInts(c.MatIndices)}
		for _, values := range c.Composites {
			x.Composites = append(x.Composites, xmlComposite{Values: joinFloats(values)})
		}
		res.Composites = append(res.Composites, x)
	}
	for _, mm := range m.multis {
		pids := make([]int, len(mm.PIDs))
		for i, pid := range mm.PIDs {
			pids[i] = int(pid)
		}
		x := xmlMultis{ID: int(mm.ID), PIDs: joinInts(pids)}
		for _, entry := range mm.Entries {
			x.Entries = append(x.Entries, xmlMulti{PIndices: joinInts(entry)})
		}
		res.Multis = append(res.Multis, x)
	}
	for _, obj := range m.objects {
		res.Objects = append(res.Objects, m.renderObject(obj))
	}

	if m.production {
		doc.Build.UUID = m.buildUUID
	}
	for _, item := range m.items {
		x := xmlItem{
			ObjectID:   int(item.ObjectID),
			Path:       item.Path,
			PartNumber: item.PartNumber,
		}
		if item.Transform != nil {
			x.Transform = item.Transform.String()
		}
		if m.production {
			x.UUID = item.UUID
		}
		doc.Build.Items = append(doc.Build.Items, x)
	}
	return doc
}

// externalDocument renders one external model part. Its build is empty.
func (m *Model) externalDocument(ext *ExternalPart) *xmlModel {
	doc := &xmlModel{
		Xmlns: NamespaceCore,
		Lang:  m.lang,
		Unit:  string(m.unit),
	}
	if m.production {
		doc.XmlnsP = NamespaceProduction
	}
	doc.Resources.BaseMaterials = renderBaseMaterials(ext.baseMaterials)
	for _, obj := range ext.objects {
		doc.Resources.Objects = append(doc.Resources.Objects, m.renderObject(obj))
	}
	return doc
}

func renderBaseMaterials(sets []*BaseMaterials) []xmlBaseMaterials {
	var out []xmlBaseMaterials
	for _, bm := range sets {
		x := xmlBaseMaterials{ID: int(bm.ID)}
		for _, b := range bm.Bases {
			x.Bases = append(x.Bases, xmlBase{Name: b.Name, DisplayColor: b.DisplayColor})
		}
		out = append(out, x)
	}
	return out
}

func (m *Model) renderObject(obj *Object) xmlObject {
	x := xmlObject{
		ID:         int(obj.ID),
		Type:       "model",
		Name:       obj.Name,
		Thumbnail:  obj.Thumbnail,
		PartNumber: obj.PartNumber,
	}
	if m.production {
		x.UUID = obj.UUID
	}
	switch body := obj.Body.(type) {
	case *MeshBody:
		if body.Material != nil {
			x.PID = strconv.Itoa(int(body.Material.PID))
			x.PIndex = strconv.Itoa(body.Material.PIndex)
		}
		x.Mesh = renderMesh(body)
	case *ComponentsBody:
		comps := &xmlComponents{}
		for _, c := range body.Components {
			xc := xmlComponent{ObjectID: int(c.ObjectID)}
			if c.Transform != nil {
				xc.Transform = c.Transform.String()
			}
			if m.production {
				xc.UUID = c.UUID
				xc.Path = c.Path
			}
			comps.Components = append(comps.Components, xc)
		}
		x.Components = comps
	}
	return x
}

func renderMesh(body *MeshBody) *xmlMesh {
	mesh := &xmlMesh{
		Vertices:  make([]xmlVertex, len(body.Mesh.Vertices)),
		Triangles: make([]xmlTriangle, len(body.Mesh.Triangles)),
	}
	for i, v := range body.Mesh.Vertices {
		mesh.Vertices[i] = xmlVertex{
			X: m3.FormatNumber(v[0]),
			Y: m3.FormatNumber(v[1]),
			Z: m3.FormatNumber(v[2]),
		}
	}
	for i, t := range body.Mesh.Triangles {
		xt := xmlTriangle{V1: t[0], V2: t[1], V3: t[2]}
		if p, ok := body.Properties[i]; ok {
			if p.PID != 0 {
				xt.PID = strconv.Itoa(int(p.PID))
			}
			xt.P1 = strconv.Itoa(p.P[0])
			if p.PerVertex {
				xt.P2 = strconv.Itoa(p.P[1])
				xt.P3 = strconv.Itoa(p.P[2])
			}
		}
		mesh.Triangles[i] = xt
	}
	if len(body.Sets) > 0 {
		sets := &xmlTriangleSets{}
		for _, s := range body.Sets {
			xs := xmlTriangleSet{Name: s.Name, Identifier: s.Identifier}
			for _, r := range s.Refs {
				if r.IsRange {
					xs.Refs = append(xs.Refs, xmlSetRef{
						XMLName:    xml.Name{Local: "t:refrange"},
						StartIndex: strconv.Itoa(r.Start),
						EndIndex:   strconv.Itoa(r.End),
					})
				} else {
					xs.Refs = append(xs.Refs, xmlSetRef{
						XMLName: xml.Name{Local: "t:ref"},
						Index:   strconv.Itoa(r.Start),
					})
				}
			}
			sets.Sets = append(sets.Sets, xs)
		}
		mesh.TriangleSets = sets
	}
	return mesh
}

func joinInts(values []int) string {
	parts := make([]string, len(values))
	for i, v := range values {
		parts[i] = strconv.Itoa(v)
	}
	return strings.Join(parts, " ")
}

func joinFloats(values []float64) string {
	parts := make([]string, len(values))
	for i, v := range values {
		parts[i] = m3.FormatNumber(v)
	}
	return strings.Join(parts, " ")
}

