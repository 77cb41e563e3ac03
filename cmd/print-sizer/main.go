package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"strings"

	"github.com/dustin/go-humanize"
	"github.com/urfave/cli/v2"

	printsizer "github.com/menta2k/print-sizer"
	"github.com/menta2k/print-sizer/internal/config"
	"github.com/menta2k/print-sizer/internal/logging"
	"github.com/menta2k/print-sizer/internal/utils"
	"github.com/menta2k/print-sizer/pkg/analyzer"
	"github.com/menta2k/print-sizer/pkg/catalog"
	"github.com/menta2k/print-sizer/pkg/cropper"
	"github.com/menta2k/print-sizer/pkg/dpi"
	"github.com/menta2k/print-sizer/pkg/geometry"
	"github.com/menta2k/print-sizer/pkg/processing"
	"github.com/menta2k/print-sizer/pkg/types"
)

func main() {
	app := &cli.App{
		Name:    "print-sizer",
		Usage:   "Render an image at every standard print size at 300 DPI",
		Version: printsizer.Version,
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:  "config",
				Usage: "configuration file",
				Value: config.GetConfigPath(),
			},
			&cli.StringFlag{
				Name:  "log-level",
				Usage: "debug, info, warn or error",
			},
			&cli.StringFlag{
				Name:  "log-file",
				Usage: "write logs to a rotating file instead of stderr",
			},
			&cli.BoolFlag{
				Name:  "json",
				Usage: "output results as JSON",
			},
		},
		Commands: []*cli.Command{
			{
				Name:      "process",
				Usage:     "Render every catalog size of an image, or of every image in a directory",
				UsageText: "print-sizer process [options] <image or directory>",
				Flags: []cli.Flag{
					&cli.StringFlag{Name: "out", Aliases: []string{"o"}, Usage: "output directory"},
					&cli.StringSliceFlag{Name: "ratio", Aliases: []string{"r"}, Usage: "only render these ratio families (e.g. 4:5)"},
					&cli.StringFlag{Name: "strategy", Usage: "default crop: center, smart or saliency"},
					&cli.IntFlag{Name: "dpi", Usage: "output resolution"},
					&cli.BoolFlag{Name: "archive", Usage: "write a single ZIP archive"},
					&cli.BoolFlag{Name: "safe-names", Usage: "replace characters invalid in filenames"},
					&cli.StringFlag{Name: "preview", Usage: "also write an upload thumbnail to this path"},
				},
				Action: processCommand,
			},
			{
				Name:      "crop",
				Usage:     "Render one size with a moved crop window",
				UsageText: "print-sizer crop --size 8×10\" --x 120 --y 0 <input>",
				Flags: []cli.Flag{
					&cli.StringFlag{Name: "size", Aliases: []string{"s"}, Usage: "size label or ID (ratio/label)", Required: true},
					&cli.Float64Flag{Name: "x", Usage: "crop window left edge in source pixels"},
					&cli.Float64Flag{Name: "y", Usage: "crop window top edge in source pixels"},
					&cli.StringFlag{Name: "out", Aliases: []string{"o"}, Usage: "output directory"},
					&cli.StringFlag{Name: "editor-view", Usage: "write the editor canvas as PNG to this path"},
				},
				Action: cropCommand,
			},
			{
				Name:      "inspect",
				Usage:     "Show dimensions, best ratio and declared resolution of an image",
				UsageText: "print-sizer inspect <input>",
				Action:    inspectCommand,
			},
			{
				Name:   "sizes",
				Usage:  "List the print catalog",
				Action: sizesCommand,
			},
		},
	}

	if err := app.Run(os.Args); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %s\n", err)
		os.Exit(1)
	}
}

// setup loads configuration, applies global flags and installs the logger
func setup(c *cli.Context) (*config.Config, *slog.Logger, func(), error) {
	path := c.String("config")
	cfg, err := config.Load(path)
	if err != nil {
		return nil, nil, nil, err
	}
	if v := c.String("log-level"); v != "" {
		cfg.Log.Level = v
	}
	if v := c.String("log-file"); v != "" {
		cfg.Log.File = v
	}
	logger, closer, err := logging.Setup(cfg.Log)
	if err != nil {
		return nil, nil, nil, err
	}
	return cfg, logger, func() { closer.Close() }, nil
}

func newPrintSizer(cfg *config.Config, logger *slog.Logger) *printsizer.PrintSizer {
	ps := printsizer.NewWithConfig(
		analyzer.Config{
			MaxFileSize:      cfg.Upload.MaxFileSize,
			SupportedFormats: cfg.Upload.SupportedFormats,
			MinImageSize:     cfg.Upload.MinImageSize,
		},
		processing.Config{
			DPI:          cfg.Processing.DPI,
			CropStrategy: cfg.Processing.CropStrategy,
		},
	)
	ps.SetLogger(logger)
	ps.SetEditorConfig(cropper.EditorConfig{
		MinZoom:     cfg.Editor.MinZoom,
		MaxZoom:     cfg.Editor.MaxZoom,
		ZoomStep:    cfg.Editor.ZoomStep,
		MinViewport: types.Size{Width: float64(cfg.Editor.MinViewportWidth), Height: float64(cfg.Editor.MinViewportHeight)},
		Padding:     40,
	})
	return ps
}

func signalContext(c *cli.Context) (context.Context, context.CancelFunc) {
	return signal.NotifyContext(c.Context, os.Interrupt)
}

func inputArg(c *cli.Context) (string, error) {
	if c.NArg() != 1 {
		return "", fmt.Errorf("expected 1 argument (input), but got %d", c.NArg())
	}
	return c.Args().Get(0), nil
}

// inputFileArg is inputArg for commands that take exactly one image file
func inputFileArg(c *cli.Context) (string, error) {
	input, err := inputArg(c)
	if err != nil {
		return "", err
	}
	if !utils.FileExists(input) {
		return "", fmt.Errorf("input file does not exist: %s", input)
	}
	return input, nil
}

func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func progressPrinter(c *cli.Context, label string) func(float64) {
	if c.Bool("json") {
		return nil
	}
	return func(f float64) {
		fmt.Fprintf(os.Stderr, "\r%s %3.0f%%", label, f*100)
		if f >= 1 {
			fmt.Fprintln(os.Stderr)
		}
	}
}

func processCommand(c *cli.Context) error {
	input, err := inputArg(c)
	if err != nil {
		return err
	}
	cfg, logger, done, err := setup(c)
	if err != nil {
		return err
	}
	defer done()

	if v := c.String("strategy"); v != "" {
		cfg.Processing.CropStrategy = v
	}
	if v := c.Int("dpi"); v > 0 {
		cfg.Processing.DPI = v
	}
	if v := c.String("out"); v != "" {
		cfg.Output.OutputDir = v
	}
	if c.IsSet("archive") {
		cfg.Output.Archive = c.Bool("archive")
	}
	if c.IsSet("safe-names") {
		cfg.Output.SafeNames = c.Bool("safe-names")
	}
	if err := cfg.Validate(); err != nil {
		return err
	}

	files, err := utils.ResolveInputs(input)
	if err != nil {
		return err
	}
	if len(files) > 1 && c.String("preview") != "" {
		return errors.New("--preview needs a single input file")
	}

	ps := newPrintSizer(cfg, logger)
	if ratios := c.StringSlice("ratio"); len(ratios) > 0 {
		sub := catalog.Default().Subset(ratios...)
		if sub.Len() == 0 {
			return fmt.Errorf("no catalog sizes for ratios %s", strings.Join(ratios, ", "))
		}
		ps.SetCatalog(sub)
	}

	ctx, cancel := signalContext(c)
	defer cancel()

	var reports []map[string]any
	for _, file := range files {
		report, err := processFile(ctx, c, cfg, ps, file)
		if err != nil {
			if len(files) == 1 {
				return err
			}
			if errors.Is(err, context.Canceled) {
				return err
			}
			logger.Error("skipping input", "file", file, "error", err)
			report = map[string]any{"input": file, "error": err.Error()}
		}
		reports = append(reports, report)
	}

	if c.Bool("json") {
		if len(reports) == 1 {
			return printJSON(reports[0])
		}
		return printJSON(reports)
	}
	for _, report := range reports {
		if msg, ok := report["error"]; ok {
			fmt.Printf("✗ %s: %s\n", report["input"], msg)
			continue
		}
		if len(files) > 1 {
			fmt.Printf("%s:\n", report["input"])
		}
		fmt.Printf("Processed %d of %d sizes\n", report["processed"], report["total"])
		for _, path := range report["files"].([]string) {
			fmt.Printf("✓ Saved to %s\n", path)
		}
	}
	return nil
}

// processFile renders every size of one input and writes the outputs
func processFile(ctx context.Context, c *cli.Context, cfg *config.Config, ps *printsizer.PrintSizer, file string) (map[string]any, error) {
	if err := ps.LoadFile(file); err != nil {
		return nil, err
	}

	if path := c.String("preview"); path != "" {
		data, err := ps.Preview(cfg.Preview.MaxWidth, cfg.Preview.MaxHeight, cfg.Preview.Format, cfg.Preview.Quality)
		if err != nil {
			return nil, err
		}
		if err := os.WriteFile(path, data, 0644); err != nil {
			return nil, fmt.Errorf("failed to write preview: %w", err)
		}
	}

	n, err := ps.Process(ctx, progressPrinter(c, "Processing"))
	if err != nil {
		return nil, err
	}

	var written []string
	if cfg.Output.Archive {
		path, err := writeArchive(c, ps, cfg.Output.OutputDir)
		if err != nil {
			return nil, err
		}
		written = append(written, path)
	} else {
		written, err = ps.SaveResults(cfg.Output.OutputDir, cfg.Output.SafeNames)
		if err != nil {
			return nil, err
		}
	}

	return map[string]any{
		"input":     file,
		"processed": n,
		"total":     ps.Catalog().Len(),
		"results":   ps.Results(),
		"files":     written,
	}, nil
}

func writeArchive(c *cli.Context, ps *printsizer.PrintSizer, dir string) (string, error) {
	if err := utils.EnsureDir(dir); err != nil {
		return "", fmt.Errorf("failed to create output directory: %w", err)
	}
	path := filepath.Join(dir, ps.ArchiveName())
	f, err := os.Create(path)
	if err != nil {
		return "", fmt.Errorf("failed to create archive: %w", err)
	}
	if err := ps.WriteArchive(f, progressPrinter(c, "Archiving")); err != nil {
		f.Close()
		return "", err
	}
	if err := f.Close(); err != nil {
		return "", fmt.Errorf("failed to write archive: %w", err)
	}
	return path, nil
}

func cropCommand(c *cli.Context) error {
	input, err := inputFileArg(c)
	if err != nil {
		return err
	}
	cfg, logger, done, err := setup(c)
	if err != nil {
		return err
	}
	defer done()
	if v := c.String("out"); v != "" {
		cfg.Output.OutputDir = v
	}

	ps := newPrintSizer(cfg, logger)
	size, ok := ps.Catalog().Find(c.String("size"))
	if !ok {
		return fmt.Errorf("unknown size %q", c.String("size"))
	}
	ps.SetCatalog(catalog.Catalog{Families: []catalog.Family{
		{Key: size.RatioKey, Ratio: size.AspectRatio(), Sizes: []types.PhysicalSize{size}},
	}})
	if err := ps.LoadFile(input); err != nil {
		return err
	}

	ctx, cancel := signalContext(c)
	defer cancel()
	if _, err := ps.Process(ctx, nil); err != nil {
		return err
	}

	editor, err := ps.OpenEditor(size.ID())
	if err != nil {
		return err
	}
	target := editor.Region()
	if c.IsSet("x") {
		target.X = c.Float64("x")
	}
	if c.IsSet("y") {
		target.Y = c.Float64("y")
	}
	dragTo(editor, target)

	if path := c.String("editor-view"); path != "" {
		if err := saveEditorView(editor, path); err != nil {
			return err
		}
	}
	if err := editor.Apply(ctx); err != nil {
		return err
	}

	paths, err := ps.SaveResults(cfg.Output.OutputDir, cfg.Output.SafeNames)
	if err != nil {
		return err
	}
	result := ps.Results()[0]
	if c.Bool("json") {
		return printJSON(map[string]any{"result": result, "files": paths})
	}
	fmt.Printf("Cropped %s at (%.0f, %.0f) %.0fx%.0f\n",
		size.Label, result.Crop.X, result.Crop.Y, result.Crop.Width, result.Crop.Height)
	for _, path := range paths {
		fmt.Printf("✓ Saved to %s\n", path)
	}
	return nil
}

// dragTo moves the editor's crop window towards target the way a pointer
// drag would, so the editor's clamping applies.
func dragTo(editor *cropper.Editor, target types.CropRegion) {
	display := editor.DisplaySize()
	source := types.SizeOf(editor.Source().Bounds())
	current := editor.Region()
	delta := geometry.MapSourceToDisplay(types.Point{X: target.X - current.X, Y: target.Y - current.Y}, source, display)

	r := editor.DisplayRegion()
	start := types.Point{X: r.X + r.Width/2, Y: r.Y + r.Height/2}
	if !editor.PointerDown(start) {
		return
	}
	editor.PointerMove(types.Point{X: start.X + delta.X, Y: start.Y + delta.Y})
	editor.PointerUp()
}

func saveEditorView(editor *cropper.Editor, path string) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create editor view: %w", err)
	}
	defer f.Close()
	return editor.WritePNG(f)
}

func inspectCommand(c *cli.Context) error {
	input, err := inputFileArg(c)
	if err != nil {
		return err
	}
	cfg, logger, done, err := setup(c)
	if err != nil {
		return err
	}
	defer done()

	ps := newPrintSizer(cfg, logger)
	if err := ps.LoadFile(input); err != nil {
		return err
	}
	info, err := ps.GetImageInfo()
	if err != nil {
		return err
	}
	ratio, err := ps.RecommendedRatio()
	if err != nil {
		return err
	}

	report := map[string]any{
		"file":         input,
		"format":       ps.Source().Format(),
		"width":        info.Width,
		"height":       info.Height,
		"aspect_ratio": info.AspectRatio,
		"best_ratio":   ratio,
		"print_width":  geometry.ToPhysicalUnits(info.Width),
		"print_height": geometry.ToPhysicalUnits(info.Height),
	}

	data, err := os.ReadFile(input)
	if err != nil {
		return fmt.Errorf("failed to read %s: %w", input, err)
	}
	report["file_size"] = humanize.IBytes(uint64(len(data)))
	if d, err := dpi.ReadDensityHeader(data); err == nil {
		report["jfif_density"] = d
	} else if !errors.Is(err, dpi.ErrNoSOI) {
		logger.Debug("no JFIF density", "error", err)
	}
	if r, err := dpi.ReadEXIFResolution(data); err == nil {
		report["exif_resolution"] = r
	}

	if c.Bool("json") {
		return printJSON(report)
	}
	fmt.Printf("File:        %s (%s, %s)\n", input, report["format"], report["file_size"])
	fmt.Printf("Dimensions:  %dx%d (ratio: %.3f)\n", info.Width, info.Height, info.AspectRatio)
	fmt.Printf("At 300 DPI:  %.2f×%.2f\"\n", report["print_width"], report["print_height"])
	fmt.Printf("Best ratio:  %s\n", ratio)
	if d, ok := report["jfif_density"].(dpi.Density); ok {
		fmt.Printf("JFIF:        %dx%d (units %d)\n", d.X, d.Y, d.Units)
	}
	if r, ok := report["exif_resolution"].(dpi.Resolution); ok {
		fmt.Printf("EXIF:        %gx%g (unit %d)\n", r.X, r.Y, r.Unit)
	}
	return nil
}

func sizesCommand(c *cli.Context) error {
	cat := catalog.Default()
	type row struct {
		ID       string                `json:"id"`
		Size     types.PhysicalSize    `json:"size"`
		Pixels   types.PixelDimensions `json:"pixels"`
		Estimate string                `json:"estimated_size"`
	}
	var rows []row
	for _, s := range cat.Sizes() {
		px := geometry.PixelDimensionsOf(s)
		rows = append(rows, row{
			ID:       s.ID(),
			Size:     s,
			Pixels:   px,
			Estimate: utils.FormatFileSize(utils.EstimateFileSize(px.Width, px.Height, "jpeg")),
		})
	}

	if c.Bool("json") {
		return printJSON(rows)
	}
	for _, r := range rows {
		fmt.Printf("%-8s %-8s %5dx%-5d ~%s\n", r.Size.RatioKey, r.Size.Label, r.Pixels.Width, r.Pixels.Height, r.Estimate)
	}
	return nil
}
