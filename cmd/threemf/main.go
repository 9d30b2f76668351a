// threemf is a CLI utility for building and inspecting 3MF packages.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"strings"

	"go.uber.org/zap"
	"gopkg.in/yaml.v3"

	"github.com/Faultbox/threemf/internal/config"
	"github.com/Faultbox/threemf/internal/logger"
	"github.com/Faultbox/threemf/pkg/conformance"
	"github.com/Faultbox/threemf/pkg/formats"
	"github.com/Faultbox/threemf/pkg/geometry"
	"github.com/Faultbox/threemf/pkg/meshcheck"
	"github.com/Faultbox/threemf/pkg/opc"
	"github.com/Faultbox/threemf/pkg/scene"
	"github.com/Faultbox/threemf/pkg/threemf"
)

var (
	errUsage        = errors.New("usage")
	errChecksFailed = errors.New("mesh checks failed")
	errRejected     = errors.New("package rejected")
)

func main() {
	os.Exit(run())
}

func run() int {
	config.ParseFlags()
	args := config.Args()
	if len(args) < 1 {
		printUsage()
		return 1
	}

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return 1
	}
	if err := logger.Init(cfg.Logging.Level, cfg.Logging.LogFile); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return 1
	}
	defer logger.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	command, rest := args[0], args[1:]
	switch command {
	case "build":
		err = cmdBuild(ctx, cfg, rest, os.Stdout)
	case "check":
		err = cmdCheck(rest, os.Stdout)
	case "info":
		err = cmdInfo(rest, os.Stdout)
	case "stl":
		err = cmdSTL(ctx, cfg, rest, os.Stdout)
	case "validate":
		err = cmdValidate(ctx, rest, os.Stdout)
	case "config":
		err = cmdConfig(cfg, rest, os.Stdout)
	case "help", "-h", "--help":
		printUsage()
		return 0
	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n", command)
		printUsage()
		return 1
	}

	if err != nil {
		if !errors.Is(err, errChecksFailed) && !errors.Is(err, errRejected) {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		}
		return 1
	}
	return 0
}

func printUsage() {
	fmt.Println(`threemf - 3MF package builder

Usage:
  threemf [global options] <command> [options]

Global options:
  -config <file>   Config file (default ./threemf.yaml)
  -debug           Debug logging
  -production      Enable the Production extension
  -unit <unit>     Model unit
  -level <n>       Deflate level (-2..9)

Commands:
  build <scene.yaml> <out.3mf>       Build a package from a scene
  check <scene.yaml>                 Run winding and manifold checks on scene meshes
  info <file.3mf>                    List package parts
  stl <in.stl> <out.3mf>             Convert one STL file
  validate -oracle <cmd> <file.3mf>  Run an external 3MF reader on a package
  config [file]                      Print or save the effective config

Examples:
  threemf build scene.yaml out.3mf
  threemf -production -level 9 stl part.stl part.3mf
  threemf validate -oracle "lib3mf-check" out.3mf`)
}

func usage(format string) error {
	return fmt.Errorf("%w: threemf %s", errUsage, format)
}

func cmdBuild(ctx context.Context, cfg *config.Config, args []string, w io.Writer) error {
	fs := flag.NewFlagSet("build", flag.ContinueOnError)
	validate := fs.Bool("validate", false, "Fail if the document is incomplete")
	noOptimize := fs.Bool("no-optimize", false, "Skip deduplication and geometry pooling")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if fs.NArg() < 2 {
		return usage("build <scene.yaml> <out.3mf>")
	}
	scenePath, outPath := fs.Arg(0), fs.Arg(1)

	s, err := scene.Load(scenePath)
	if err != nil {
		return err
	}
	opts := scene.Options{
		BaseDir:      filepath.Dir(scenePath),
		Production:   cfg.Model.Production,
		Logger:       logger.Named("threemf"),
		ModelOptions: cfg.ModelOptions(),
	}
	if !*noOptimize {
		optimize := cfg.OptimizeOptions()
		opts.Optimize = &optimize
	}

	m, err := scene.Build(s, opts)
	if err != nil {
		return fmt.Errorf("building %s: %w", scenePath, err)
	}
	if s.Unit == "" {
		if err := m.SetUnit(cfg.Model.Unit); err != nil {
			return err
		}
	}
	if s.Lang == "" {
		m.SetLanguage(cfg.Model.Language)
	}
	if *validate {
		if err := m.Validate(); err != nil {
			return err
		}
	}

	if err := m.WriteFile(ctx, outPath, cfg.WriteOptions()); err != nil {
		return err
	}
	logger.Info("package written", zap.String("path", outPath))

	fmt.Fprintf(w, "Wrote %s: %d objects, %d build items, %d external parts\n",
		outPath, len(m.Objects()), len(m.BuildItems()), len(m.ExternalParts()))
	if stats := m.PoolStats(); stats.Size > 0 {
		fmt.Fprintf(w, "Geometry pool: %d meshes, %d references (%.1f avg)\n", stats.Size, stats.TotalRefs, stats.AvgRefs)
	}
	return nil
}

func cmdCheck(args []string, w io.Writer) error {
	if len(args) < 1 {
		return usage("check <scene.yaml>")
	}
	s, err := scene.Load(args[0])
	if err != nil {
		return err
	}
	meshes, err := s.Meshes(filepath.Dir(args[0]))
	if err != nil {
		return err
	}

	failed := 0
	for _, nm := range meshes {
		report := meshcheck.CheckAll(nm.Mesh)
		mark := "✓"
		if !report.OK() {
			mark = "✗"
			failed++
		}
		fmt.Fprintf(w, "%s %s (%d vertices, %d triangles)\n", mark, nm.Name, len(nm.Mesh.Vertices), len(nm.Mesh.Triangles))
		for _, e := range report.Manifold.Errors {
			fmt.Fprintf(w, "    error: %s\n", e)
		}
		for _, warn := range report.Winding.Warnings {
			fmt.Fprintf(w, "    warning: %s\n", warn)
		}
	}

	if failed > 0 {
		fmt.Fprintf(w, "\n%d of %d meshes failed\n", failed, len(meshes))
		return errChecksFailed
	}
	return nil
}

func cmdInfo(args []string, w io.Writer) error {
	if len(args) < 1 {
		return usage("info <file.3mf>")
	}

	archive, err := opc.Open(args[0])
	if err != nil {
		return err
	}
	defer archive.Close()

	parts := archive.List()
	var total uint64
	fmt.Fprintf(w, "Package: %s\n", args[0])
	fmt.Fprintf(w, "Parts:   %d\n\n", len(parts))
	for _, p := range parts {
		size, err := archive.Size(p)
		if err != nil {
			return err
		}
		total += size
		fmt.Fprintf(w, "  %-48s %10d\n", p, size)
	}
	fmt.Fprintf(w, "\nUncompressed: %d bytes\n", total)

	if !archive.Contains(threemf.RootModelPath) {
		fmt.Fprintf(w, "warning: no %s part\n", threemf.RootModelPath)
	}
	return nil
}

func cmdSTL(ctx context.Context, cfg *config.Config, args []string, w io.Writer) error {
	fs := flag.NewFlagSet("stl", flag.ContinueOnError)
	name := fs.String("name", "", "Object name (default: STL solid name)")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if fs.NArg() < 2 {
		return usage("stl [-name <name>] <in.stl> <out.3mf>")
	}
	inPath, outPath := fs.Arg(0), fs.Arg(1)

	stl, err := formats.ParseSTLFile(inPath)
	if err != nil {
		return err
	}
	objName := *name
	if objName == "" {
		objName = stl.Name
	}
	if objName == "" {
		objName = strings.TrimSuffix(filepath.Base(inPath), filepath.Ext(inPath))
	}

	m := threemf.New(append([]threemf.Option{threemf.WithLogger(logger.Named("threemf"))}, cfg.ModelOptions()...)...)
	if err := m.SetUnit(cfg.Model.Unit); err != nil {
		return err
	}
	m.SetLanguage(cfg.Model.Language)
	if err := m.EnableProduction(cfg.Model.Production); err != nil {
		return err
	}
	m.SetApplication("threemf")

	soup := stl.Mesh()
	opts := cfg.OptimizeOptions()
	opts.MeshOptions = threemf.MeshOptions{Name: objName}
	id, err := m.AddMeshOptimized(soup, opts)
	if err != nil {
		return fmt.Errorf("importing %s: %w", inPath, err)
	}
	if err := m.WriteFile(ctx, outPath, cfg.WriteOptions()); err != nil {
		return err
	}

	obj, _ := m.Object(id)
	mesh := obj.Body.(*threemf.MeshBody).Mesh
	fmt.Fprintf(w, "Wrote %s: %d triangles, %d vertices (%s)\n", outPath, len(mesh.Triangles), len(mesh.Vertices),
		geometry.DedupStats{Original: len(soup.Vertices), Deduplicated: len(mesh.Vertices)})
	return nil
}

func cmdValidate(ctx context.Context, args []string, w io.Writer) error {
	fs := flag.NewFlagSet("validate", flag.ContinueOnError)
	oracle := fs.String("oracle", "", "Command that reads a 3MF file path and exits non-zero on failure")
	asYAML := fs.Bool("yaml", false, "Print the result as YAML")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if fs.NArg() < 1 || strings.TrimSpace(*oracle) == "" {
		return usage("validate -oracle <cmd> <file.3mf>")
	}

	data, err := os.ReadFile(fs.Arg(0))
	if err != nil {
		return err
	}
	fields := strings.Fields(*oracle)
	result := conformance.Run(ctx, conformance.Command{Path: fields[0], Args: fields[1:]}, data)

	if *asYAML {
		out, err := yaml.Marshal(result)
		if err != nil {
			return err
		}
		if _, err := w.Write(out); err != nil {
			return err
		}
	} else {
		fmt.Fprintln(w, conformance.Format(result))
	}
	if !result.OK {
		return errRejected
	}
	return nil
}

func cmdConfig(cfg *config.Config, args []string, w io.Writer) error {
	if len(args) > 0 {
		if err := cfg.SaveTo(args[0]); err != nil {
			return err
		}
		fmt.Fprintf(w, "Saved config to %s\n", args[0])
		return nil
	}
	out, err := yaml.Marshal(cfg)
	if err != nil {
		return err
	}
	_, err = w.Write(out)
	return err
}
