package tasks

import (
	"fmt"

	"github.com/desertthunder/stickerbridge/internal/models"
)

// ProgressUpdate represents a progress event during a conversion.
//
// Used to send real-time updates to the caller for display. The terminal
// update carries the outcome, which is also the conversion's return value,
// so a slow consumer can ignore the stream entirely.
type ProgressUpdate struct {
	Stage   Stage                     // Conversion stage
	Step    int                       // Current step number within stage
	Total   int                       // Total steps in this stage
	Message string                    // Human-readable message for display
	Outcome *models.ConversionOutcome // Set on the terminal update only
}

// Conversion stage enumeration
type Stage int

const (
	StageValidating Stage = iota
	StageInProgress
	StageDone
)

func (s Stage) String() string {
	switch s {
	case StageValidating:
		return "validating"
	case StageInProgress:
		return "in_progress"
	case StageDone:
		return "done"
	default:
		return ""
	}
}

func validatingUpdate(ref string) ProgressUpdate {
	return ProgressUpdate{
		Stage:   StageValidating,
		Step:    1,
		Total:   1,
		Message: fmt.Sprintf("Looking up pack %s...", ref),
	}
}

func convertingUpdate(total int) ProgressUpdate {
	return ProgressUpdate{
		Stage:   StageInProgress,
		Step:    0,
		Total:   total,
		Message: fmt.Sprintf("Converting %d stickers...", total),
	}
}

func itemConvertedUpdate(step, total int, emoji string) ProgressUpdate {
	return ProgressUpdate{
		Stage:   StageInProgress,
		Step:    step,
		Total:   total,
		Message: fmt.Sprintf("[%d/%d] %s", step, total, emoji),
	}
}

func uploadingUpdate(title string) ProgressUpdate {
	return ProgressUpdate{
		Stage:   StageInProgress,
		Step:    1,
		Total:   1,
		Message: fmt.Sprintf("Uploading pack: %s...", title),
	}
}

func doneUpdate(outcome *models.ConversionOutcome) ProgressUpdate {
	update := ProgressUpdate{
		Stage:   StageDone,
		Step:    1,
		Total:   1,
		Outcome: outcome,
	}

	switch outcome.Status {
	case models.StatusSucceeded:
		if outcome.CacheHit {
			update.Message = fmt.Sprintf("Already converted: %s", outcome.PackURL)
		} else {
			update.Message = fmt.Sprintf("Pack ready: %s", outcome.PackURL)
		}
	default:
		update.Message = outcome.Reason
	}

	return update
}
