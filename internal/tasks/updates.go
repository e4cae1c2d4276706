package tasks

import (
	"fmt"

	"github.com/desertthunder/tasting/internal/models"
	"github.com/desertthunder/tasting/internal/responses"
)

// ProgressUpdate represents a progress event during a long-running operation.
//
// Used to send real-time updates to the CLI or UI layer for display.
type ProgressUpdate struct {
	Phase   Phase  // Operation phase
	Step    int    // Current step number within phase
	Total   int    // Total steps in this phase
	Message string // Human-readable message for display
	Data    any    // Optional phase-specific data for advanced UIs
}

// Operation phase enumeration
type Phase int

const (
	ImportPackage Phase = iota
	ImportWine
	RepairScope
	RefreshGlobal
	SyncPass
	ExportSession
)

func (p Phase) String() string {
	switch p {
	case ImportPackage:
		return "import_package"
	case ImportWine:
		return "import_wine"
	case RepairScope:
		return "repair_scope"
	case RefreshGlobal:
		return "refresh_global"
	case SyncPass:
		return "sync_pass"
	case ExportSession:
		return "export_session"
	default:
		return ""
	}
}

func importPackageUpdate(pkg *models.Package, wines int) ProgressUpdate {
	return ProgressUpdate{
		Phase:   ImportPackage,
		Step:    0,
		Total:   wines,
		Message: fmt.Sprintf("Created package %s (%s)", pkg.Name(), pkg.Code()),
		Data:    pkg,
	}
}

func importWineUpdate(step, total int, w *models.Wine, slides int) ProgressUpdate {
	return ProgressUpdate{
		Phase:   ImportWine,
		Step:    step,
		Total:   total,
		Message: fmt.Sprintf("[%d/%d] %s (%d slides)", step, total, w.Name(), slides),
	}
}

func repairScopeUpdate(step, total int, wineID string, section models.Section, rewritten int) ProgressUpdate {
	return ProgressUpdate{
		Phase:   RepairScope,
		Step:    step,
		Total:   total,
		Message: fmt.Sprintf("[%d/%d] renumbered %s/%s (%d slides)", step, total, wineID, section, rewritten),
	}
}

func refreshGlobalUpdate(changed, total int) ProgressUpdate {
	return ProgressUpdate{
		Phase:   RefreshGlobal,
		Step:    changed,
		Total:   total,
		Message: fmt.Sprintf("Refreshed global positions (%d of %d changed)", changed, total),
	}
}

func syncPassUpdate(report responses.Report) ProgressUpdate {
	return ProgressUpdate{
		Phase:   SyncPass,
		Step:    report.Synced,
		Total:   report.Attempted,
		Message: fmt.Sprintf("Sync %s: %d synced, %d failed, %d queued", report.Status, report.Synced, report.Failed, report.Remaining),
		Data:    report,
	}
}

func exportCompletedUpdate(step, total int, name string, filesCount int) ProgressUpdate {
	return ProgressUpdate{
		Phase:   ExportSession,
		Step:    step,
		Total:   total,
		Message: fmt.Sprintf("[%d/%d] ✓ %s (%d files)", step, total, name, filesCount),
	}
}

func exportFailedUpdate(step, total int, name string, err error) ProgressUpdate {
	return ProgressUpdate{
		Phase:   ExportSession,
		Step:    step,
		Total:   total,
		Message: fmt.Sprintf("[%d/%d] ✗ %s: %v", step, total, name, err),
	}
}
