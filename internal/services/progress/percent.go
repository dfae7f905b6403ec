package progress

import (
	"math"

	"github.com/ternarybob/gazette/internal/models"
)

// Step is a weighted unit of work inside a task run. Steps are finer grained
// than scrape phases: the merge step has its own weight even though it runs
// inside the content-scraping phase.
type Step string

const (
	StepFetchLinks      Step = "fetch_links"
	StepFetchContents   Step = "fetch_contents"
	StepUpdateDataframe Step = "update_dataframe"
	StepSaveToCSV       Step = "save_to_csv"
	StepSaveToDatabase  Step = "save_to_database"
)

// stepOrder is the declared execution order used for percent computation
var stepOrder = []Step{
	StepFetchLinks,
	StepFetchContents,
	StepUpdateDataframe,
	StepSaveToCSV,
	StepSaveToDatabase,
}

// stepWeights sum to 100
var stepWeights = map[Step]int{
	StepFetchLinks:      20,
	StepFetchContents:   50,
	StepUpdateDataframe: 10,
	StepSaveToCSV:       10,
	StepSaveToDatabase:  10,
}

// Percent computes the weighted percent complete for the given step and
// sub-progress in [0,1]: the full weight of every step before the current one
// plus the proportional weight of the current step, floored and clamped to
// [0,100]. An unknown step contributes nothing.
func Percent(step Step, sub float64) int {
	if sub < 0 {
		sub = 0
	}
	if sub > 1 {
		sub = 1
	}

	total := 0.0
	for _, s := range stepOrder {
		if s == step {
			total += float64(stepWeights[s]) * sub
			return clampPercent(int(math.Floor(total)))
		}
		total += float64(stepWeights[s])
	}
	return 0
}

// Meter tracks which steps a run has finished so percent never collapses to
// zero when the current step label carries no declared weight.
type Meter struct {
	done map[Step]bool
}

// NewMeter creates an empty step meter
func NewMeter() *Meter {
	return &Meter{done: make(map[Step]bool)}
}

// Finish records a step as fully done
func (m *Meter) Finish(step Step) {
	if _, ok := stepWeights[step]; ok {
		m.done[step] = true
	}
}

// Percent reports weighted progress for the given step. A recognized step
// uses the positional computation; an unrecognized one falls back to the sum
// of the weights of the steps already finished.
func (m *Meter) Percent(step Step, sub float64) int {
	if _, ok := stepWeights[step]; ok {
		return Percent(step, sub)
	}
	total := 0
	for _, s := range stepOrder {
		if m.done[s] {
			total += stepWeights[s]
		}
	}
	return clampPercent(total)
}

// StepForPhase maps a scrape phase to its progress step. Phases without a
// weighted step (init, terminal phases) map to the empty step.
func StepForPhase(phase models.ScrapePhase) Step {
	switch phase {
	case models.PhaseLinkCollection:
		return StepFetchLinks
	case models.PhaseContentScraping:
		return StepFetchContents
	case models.PhaseSaveToCSV:
		return StepSaveToCSV
	case models.PhaseSaveToDatabase:
		return StepSaveToDatabase
	default:
		return ""
	}
}

func clampPercent(p int) int {
	if p < 0 {
		return 0
	}
	if p > 100 {
		return 100
	}
	return p
}
