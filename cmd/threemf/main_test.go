package main

import (
	"bytes"
	"context"
	"errors"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"testing"

	"github.com/Faultbox/threemf/internal/config"
	"github.com/Faultbox/threemf/pkg/opc"
)

const tetraScene = `
metadata:
  Title: Tetra
objects:
  - type: mesh
    name: tetra
    vertices: [[0,0,0], [10,0,0], [0,10,0], [0,0,10]]
    triangles: [[0,2,1], [0,1,3], [0,3,2], [1,2,3]]
  - type: mesh
    name: tetra-copy
    vertices: [[0,0,0], [10,0,0], [0,10,0], [0,0,10]]
    triangles: [[0,2,1], [0,1,3], [0,3,2], [1,2,3]]
`

const asciiTriangleSTL = `solid sliver
facet normal 0 0 1
outer loop
vertex 0 0 0
vertex 1 0 0
vertex 0 1 0
endloop
endfacet
endsolid sliver
`

func writeFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestCmdBuildAndInfo(t *testing.T) {
	dir := t.TempDir()
	scenePath := writeFile(t, dir, "scene.yaml", tetraScene)
	outPath := filepath.Join(dir, "out", "tetra.3mf")

	var out bytes.Buffer
	if err := cmdBuild(context.Background(), config.Default(), []string{"-validate", scenePath, outPath}, &out); err != nil {
		t.Fatalf("build failed: %v", err)
	}
	if !strings.Contains(out.String(), "1 objects") {
		t.Errorf("identical meshes should pool into one object: %s", out.String())
	}
	if !strings.Contains(out.String(), "Geometry pool: 1 meshes, 2 references") {
		t.Errorf("expected pool summary: %s", out.String())
	}

	archive, err := opc.Open(outPath)
	if err != nil {
		t.Fatalf("open failed: %v", err)
	}
	defer archive.Close()
	model, err := archive.Read("3D/3dmodel.model")
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(string(model), `unit="millimeter"`) || !strings.Contains(string(model), "Tetra") {
		t.Errorf("unexpected model document: %s", model)
	}

	out.Reset()
	if err := cmdInfo([]string{outPath}, &out); err != nil {
		t.Fatalf("info failed: %v", err)
	}
	for _, want := range []string{"Parts:   3", "3d/3dmodel.model", "[content_types].xml"} {
		if !strings.Contains(out.String(), want) {
			t.Errorf("info output missing %q: %s", want, out.String())
		}
	}
}

func TestCmdBuildNoOptimize(t *testing.T) {
	dir := t.TempDir()
	scenePath := writeFile(t, dir, "scene.yaml", tetraScene)

	var out bytes.Buffer
	if err := cmdBuild(context.Background(), config.Default(), []string{"-no-optimize", scenePath, filepath.Join(dir, "a.3mf")}, &out); err != nil {
		t.Fatalf("build failed: %v", err)
	}
	if !strings.Contains(out.String(), "2 objects, 2 build items") {
		t.Errorf("unexpected summary: %s", out.String())
	}
}

func TestCmdBuildUsage(t *testing.T) {
	err := cmdBuild(context.Background(), config.Default(), []string{"only-one.yaml"}, &bytes.Buffer{})
	if !errors.Is(err, errUsage) {
		t.Errorf("expected usage error, got %v", err)
	}
}

func TestCmdCheck(t *testing.T) {
	dir := t.TempDir()

	var out bytes.Buffer
	if err := cmdCheck([]string{writeFile(t, dir, "ok.yaml", tetraScene)}, &out); err != nil {
		t.Fatalf("check failed: %v\n%s", err, out.String())
	}
	if !strings.Contains(out.String(), "✓ tetra") {
		t.Errorf("unexpected output: %s", out.String())
	}

	open := `
objects:
  - type: mesh
    name: flap
    vertices: [[0,0,0], [1,0,0], [0,1,0]]
    triangles: [[0,1,2]]
`
	out.Reset()
	err := cmdCheck([]string{writeFile(t, dir, "open.yaml", open)}, &out)
	if !errors.Is(err, errChecksFailed) {
		t.Errorf("expected errChecksFailed, got %v", err)
	}
	if !strings.Contains(out.String(), "✗ flap") {
		t.Errorf("unexpected output: %s", out.String())
	}
}

func TestCmdSTL(t *testing.T) {
	dir := t.TempDir()
	in := writeFile(t, dir, "sliver.stl", asciiTriangleSTL)
	outPath := filepath.Join(dir, "sliver.3mf")

	cfg := config.Default()
	cfg.Model.Unit = "inch"

	var out bytes.Buffer
	if err := cmdSTL(context.Background(), cfg, []string{in, outPath}, &out); err != nil {
		t.Fatalf("stl failed: %v", err)
	}
	if !strings.Contains(out.String(), "1 triangles, 3 vertices") {
		t.Errorf("unexpected summary: %s", out.String())
	}

	archive, err := opc.Open(outPath)
	if err != nil {
		t.Fatal(err)
	}
	defer archive.Close()
	model, err := archive.Read("3D/3dmodel.model")
	if err != nil {
		t.Fatal(err)
	}
	for _, want := range []string{`unit="inch"`, `name="sliver"`, "threemf"} {
		if !strings.Contains(string(model), want) {
			t.Errorf("model missing %q: %s", want, model)
		}
	}
}

func TestCmdValidate(t *testing.T) {
	truePath, errTrue := exec.LookPath("true")
	falsePath, errFalse := exec.LookPath("false")
	if errTrue != nil || errFalse != nil {
		t.Skip("true/false binaries not available")
	}

	dir := t.TempDir()
	pkg := writeFile(t, dir, "any.3mf", "not really a package")

	var out bytes.Buffer
	if err := cmdValidate(context.Background(), []string{"-oracle", truePath, pkg}, &out); err != nil {
		t.Fatalf("validate failed: %v", err)
	}
	if !strings.Contains(out.String(), "✓") {
		t.Errorf("unexpected output: %s", out.String())
	}

	out.Reset()
	err := cmdValidate(context.Background(), []string{"-oracle", falsePath, "-yaml", pkg}, &out)
	if !errors.Is(err, errRejected) {
		t.Errorf("expected errRejected, got %v", err)
	}
	if !strings.Contains(out.String(), "code: 100") {
		t.Errorf("expected YAML diagnostic with code 100: %s", out.String())
	}

	out.Reset()
	err = cmdValidate(context.Background(), []string{"-oracle", filepath.Join(dir, "no-such-oracle"), pkg}, &out)
	if !errors.Is(err, errRejected) || !strings.Contains(out.String(), "[999]") {
		t.Errorf("missing oracle should report code 999: %v %s", err, out.String())
	}
}

// failingWriter rejects every write.
type failingWriter struct{}

var errWriteFailed = errors.New("write failed")

func (failingWriter) Write([]byte) (int, error) { return 0, errWriteFailed }

func TestCmdValidateYAMLWriteError(t *testing.T) {
	truePath, err := exec.LookPath("true")
	if err != nil {
		t.Skip("true binary not available")
	}
	pkg := writeFile(t, t.TempDir(), "any.3mf", "not really a package")

	err = cmdValidate(context.Background(), []string{"-oracle", truePath, "-yaml", pkg}, failingWriter{})
	if !errors.Is(err, errWriteFailed) {
		t.Errorf("expected write error, got %v", err)
	}
}

func TestCmdConfig(t *testing.T) {
	var out bytes.Buffer
	if err := cmdConfig(config.Default(), nil, &out); err != nil {
		t.Fatalf("config failed: %v", err)
	}
	if !strings.Contains(out.String(), "pool_mode: fingerprint") {
		t.Errorf("unexpected config dump: %s", out.String())
	}

	path := filepath.Join(t.TempDir(), "threemf.yaml")
	out.Reset()
	if err := cmdConfig(config.Default(), []string{path}, &out); err != nil {
		t.Fatalf("config save failed: %v", err)
	}
	if _, err := os.Stat(path); err != nil {
		t.Errorf("config file not written: %v", err)
	}
}
