package opc

import (
	"bytes"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/klauspost/compress/flate"
)

// buildPackage writes a small package with the given parts after a
// content-types part.
func buildPackage(t *testing.T, parts map[string]string, order []string) []byte {
	t.Helper()
	var buf bytes.Buffer
	w, err := NewWriter(&buf, flate.DefaultCompression)
	if err != nil {
		t.Fatalf("NewWriter: %v", err)
	}
	ct := NewContentTypes()
	ct.AddDefault("rels", ContentTypeRelationships)
	ctData, err := MarshalDocument(ct, true)
	if err != nil {
		t.Fatalf("MarshalDocument: %v", err)
	}
	if err := w.AddPart(ContentTypesPath, ctData); err != nil {
		t.Fatalf("AddPart: %v", err)
	}
	for _, name := range order {
		if err := w.AddPart(name, []byte(parts[name])); err != nil {
			t.Fatalf("AddPart(%s): %v", name, err)
		}
	}
	if err := w.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	return buf.Bytes()
}

func TestWriterAndArchive(t *testing.T) {
	parts := map[string]string{
		"_rels/.rels":        "<Relationships/>",
		"/Metadata/note.txt": "hello",
	}
	data := buildPackage(t, parts, []string{"_rels/.rels", "/Metadata/note.txt"})

	archive, err := OpenBytes(data)
	if err != nil {
		t.Fatalf("OpenBytes: %v", err)
	}
	defer archive.Close()

	want := []string{"[content_types].xml", "_rels/.rels", "metadata/note.txt"}
	got := archive.List()
	if strings.Join(got, ",") != strings.Join(want, ",") {
		t.Errorf("List() = %v, want %v", got, want)
	}

	if !archive.Contains("/Metadata/note.txt") {
		t.Error("Contains should accept a leading slash")
	}
	if !archive.Contains("METADATA/NOTE.TXT") {
		t.Error("Contains should be case-insensitive")
	}
	if archive.Contains("missing.txt") {
		t.Error("Contains returned true for a missing part")
	}

	content, err := archive.Read("Metadata/note.txt")
	if err != nil {
		t.Fatalf("Read: %v", err)
	}
	if string(content) != "hello" {
		t.Errorf("Read() = %q", content)
	}
	size, err := archive.Size("Metadata/note.txt")
	if err != nil || size != 5 {
		t.Errorf("Size() = %d, %v", size, err)
	}

	if _, err := archive.Read("nope"); !errors.Is(err, ErrPartNotFound) {
		t.Errorf("expected ErrPartNotFound, got %v", err)
	}
}

func TestWriterDeterministic(t *testing.T) {
	parts := map[string]string{"a.txt": "same"}
	a := buildPackage(t, parts, []string{"a.txt"})
	b := buildPackage(t, parts, []string{"a.txt"})
	if !bytes.Equal(a, b) {
		t.Error("identical input should produce identical archives")
	}
}

func TestWriterRejectsDuplicates(t *testing.T) {
	var buf bytes.Buffer
	w, err := NewWriter(&buf, flate.BestSpeed)
	if err != nil {
		t.Fatalf("NewWriter: %v", err)
	}
	if err := w.AddPart("/3D/a.model", nil); err != nil {
		t.Fatalf("AddPart: %v", err)
	}
	if err := w.AddPart("3D/a.model", nil); err == nil {
		t.Error("expected duplicate part error")
	}
	if err := w.AddPart("", nil); err == nil {
		t.Error("expected empty name error")
	}
}

func TestNewWriterLevel(t *testing.T) {
	if _, err := NewWriter(&bytes.Buffer{}, 42); err == nil {
		t.Error("expected invalid level error")
	}
}

func TestOpenBytesNotPackage(t *testing.T) {
	var buf bytes.Buffer
	w, _ := NewWriter(&buf, flate.BestSpeed)
	w.AddPart("a.txt", []byte("x"))
	w.Close()
	if _, err := OpenBytes(buf.Bytes()); !errors.Is(err, ErrNotPackage) {
		t.Errorf("expected ErrNotPackage, got %v", err)
	}
	if _, err := OpenBytes([]byte("not a zip")); err == nil {
		t.Error("expected error for garbage input")
	}
}

func TestOpenFile(t *testing.T) {
	data := buildPackage(t, map[string]string{"x.txt": "x"}, []string{"x.txt"})
	path := filepath.Join(t.TempDir(), "pkg.zip")
	if err := os.WriteFile(path, data, 0644); err != nil {
		t.Fatalf("write: %v", err)
	}
	archive, err := Open(path)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer archive.Close()
	if !archive.Contains("x.txt") {
		t.Error("missing part")
	}
}

func TestContentTypesAndRelationships(t *testing.T) {
	ct := NewContentTypes()
	ct.AddDefault("png", "image/png")
	ct.AddDefault("png", "image/other")
	ct.AddOverride("/3D/3dmodel.model", "application/model")
	data, err := MarshalDocument(ct, false)
	if err != nil {
		t.Fatalf("MarshalDocument: %v", err)
	}
	s := string(data)
	if strings.Count(s, `Extension="png"`) != 1 {
		t.Errorf("duplicate default emitted: %s", s)
	}
	if !strings.HasPrefix(s, "<?xml") || !strings.Contains(s, `xmlns="`+ContentTypesNamespace+`"`) {
		t.Errorf("unexpected document: %s", s)
	}
	if !strings.Contains(s, `<Override PartName="/3D/3dmodel.model" ContentType="application/model">`) {
		t.Errorf("override missing: %s", s)
	}

	rels := NewRelationships()
	rels.Add("rel-1", RelTypeMustPreserve, "/Metadata/a.txt")
	if rels.Len() != 1 {
		t.Errorf("Len() = %d", rels.Len())
	}
	data, err = MarshalDocument(rels, true)
	if err != nil {
		t.Fatalf("MarshalDocument: %v", err)
	}
	if !strings.Contains(string(data), `Id="rel-1"`) {
		t.Errorf("relationship missing: %s", data)
	}
}

func TestRelsPathFor(t *testing.T) {
	tests := []struct {
		in, want string
	}{
		{"3D/3dmodel.model", "3D/_rels/3dmodel.model.rels"},
		{"part.xml", "_rels/part.xml.rels"},
		{"a/b/c.model", "a/b/_rels/c.model.rels"},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			if got := RelsPathFor(tt.in); got != tt.want {
				t.Errorf("got %q, want %q", got, tt.want)
			}
		})
	}
}
