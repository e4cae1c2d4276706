package main

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/desertthunder/tasting/internal/formatter"
	"github.com/desertthunder/tasting/internal/models"
	"github.com/desertthunder/tasting/internal/shared"
	"github.com/desertthunder/tasting/internal/tasks"
	"github.com/urfave/cli/v3"
)

// PackageImport creates a package from a TOML document.
func (r *Runner) PackageImport(ctx context.Context, cmd *cli.Command) error {
	path := cmd.StringArg("file")
	if path == "" {
		return fmt.Errorf("%w: package file is required", shared.ErrMissingArgument)
	}

	doc, err := tasks.LoadPackageDoc(path)
	if err != nil {
		return err
	}

	engine, closeDB, err := r.openEngine()
	if err != nil {
		return err
	}
	defer closeDB()

	progress := make(chan tasks.ProgressUpdate, 50)
	done := make(chan struct{})
	if !cmd.Bool("json") {
		go r.printProgress(progress, done)
	} else {
		close(done)
	}

	result, err := engine.ImportPackage(ctx, doc, progress)
	close(progress)
	<-done
	if err != nil {
		return err
	}

	if cmd.Bool("json") {
		return r.writeJSON(result, true)
	}
	r.writePlainln("✓ Imported %s (%s): %d wines, %d slides", result.Package.Name(), result.Package.Code(), result.Wines, result.Slides)
	return nil
}

// PackageList lists packages.
func (r *Runner) PackageList(ctx context.Context, cmd *cli.Command) error {
	engine, closeDB, err := r.openEngine()
	if err != nil {
		return err
	}
	defer closeDB()

	packages, err := engine.Packages(cmd.String("code"))
	if err != nil {
		return err
	}

	if cmd.Bool("json") {
		if packages == nil {
			packages = []*models.Package{}
		}
		return r.writeJSON(packages, true)
	}

	if len(packages) == 0 {
		return r.writePlain("No packages\n")
	}
	r.writePlainHeader(fmt.Sprintf("Packages (%d)", len(packages)))
	for _, p := range packages {
		r.writePlain("%3d. %-12s %s\n", p.Sequence(), p.Code(), p.Name())
	}
	return nil
}

// PackageOutline prints the aggregated order of a package.
func (r *Runner) PackageOutline(ctx context.Context, cmd *cli.Command) error {
	engine, closeDB, err := r.openEngine()
	if err != nil {
		return err
	}
	defer closeDB()

	pkg, seq, err := engine.Outline(ctx, cmd.String("code"), cmd.String("session"))
	if err != nil {
		return err
	}

	var data []byte
	switch format := cmd.String("format"); format {
	case "markdown", "md":
		data = formatter.OutlineToMarkdown(pkg, seq)
	case "text", "":
		data = formatter.OutlineToText(pkg, seq)
	case "json":
		data, err = json.MarshalIndent(struct {
			Package    *models.Package `json:"package"`
			Wines      []*models.Wine  `json:"wines"`
			Slides     []*models.Slide `json:"slides"`
			TotalCount int             `json:"totalCount"`
		}{pkg, seq.Wines, seq.Slides, seq.Len()}, "", "  ")
		if err != nil {
			return err
		}
		data = append(data, '\n')
	default:
		return fmt.Errorf("%w: unknown format %q (want markdown, text or json)", shared.ErrInvalidArgument, format)
	}

	if out := cmd.String("output"); out != "" {
		path, err := formatter.WriteOutline(data, out)
		if err != nil {
			return err
		}
		return r.writePlain("✓ Outline written to %s\n", path)
	}
	_, err = r.output.Write(data)
	return err
}

// PackageRepair renumbers damaged sections and refreshes global positions.
func (r *Runner) PackageRepair(ctx context.Context, cmd *cli.Command) error {
	engine, closeDB, err := r.openEngine()
	if err != nil {
		return err
	}
	defer closeDB()

	progress := make(chan tasks.ProgressUpdate, 50)
	done := make(chan struct{})
	if !cmd.Bool("json") {
		go r.printProgress(progress, done)
	} else {
		close(done)
	}

	report, err := engine.RepairPositions(ctx, cmd.String("code"), tasks.RepairOpts{Compact: cmd.Bool("compact")}, progress)
	close(progress)
	<-done
	if err != nil {
		return err
	}

	if cmd.Bool("json") {
		return r.writeJSON(report, true)
	}
	r.writePlainHeader("Repair complete")
	r.writePlain("Sections checked: %d (%d damaged)\n", report.Scopes, report.DamagedScopes)
	r.writePlain("Slides renumbered: %d\n", report.SlidesRenumbered)
	r.writePlain("Duplicate global positions: %d\n", report.DuplicateGlobal)
	r.writePlain("Global positions refreshed: %d\n", report.GlobalUpdated)
	return nil
}
