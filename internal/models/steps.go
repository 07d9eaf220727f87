package models

// StepInfo labels one coarse progress step.
type StepInfo struct {
	ID       string `json:"id"`
	Text     string `json:"text"`
	Complete bool   `json:"complete"`
}

// FinalStep is the step a job sits on once deployment is underway or done.
const FinalStep = 4

var stepCatalogue = []StepInfo{
	{ID: "ignite", Text: "Igniting build engine..."},
	{ID: "construct", Text: "Constructing pages..."},
	{ID: "style", Text: "Applying styles..."},
	{ID: "deploy", Text: "Deploying to cloud..."},
}

// Steps renders the catalogue for a job. Steps before the current one are
// complete; every step is complete once the job is.
func (j BuildJob) Steps() []StepInfo {
	out := make([]StepInfo, len(stepCatalogue))
	for i, s := range stepCatalogue {
		s.Complete = j.Status == StatusComplete || i+1 < j.Step
		out[i] = s
	}
	return out
}

// CurrentStep is the zero-based index of the first incomplete step, or the
// last index when all are complete.
func (j BuildJob) CurrentStep() int {
	for i, s := range j.Steps() {
		if !s.Complete {
			return i
		}
	}
	return len(stepCatalogue) - 1
}
