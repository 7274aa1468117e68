package models

import "time"

// JobStatus is a stage of the generation state machine
type JobStatus string

const (
	JobPending      JobStatus = "pending"
	JobRetrieving   JobStatus = "retrieving"
	JobSynthesizing JobStatus = "synthesizing"
	JobParsing      JobStatus = "parsing"
	JobFilling      JobStatus = "filling"
	JobValidating   JobStatus = "validating"
	JobCompleted    JobStatus = "completed"
	JobFailed       JobStatus = "failed"
)

// jobSequence is the only legal forward order; failed sits outside it.
var jobSequence = []JobStatus{
	JobPending,
	JobRetrieving,
	JobSynthesizing,
	JobParsing,
	JobFilling,
	JobValidating,
	JobCompleted,
}

// Ordinal returns the position of s in the forward sequence, or -1 for failed
// and unknown values.
func (s JobStatus) Ordinal() int {
	for i, v := range jobSequence {
		if v == s {
			return i
		}
	}
	return -1
}

// Terminal reports whether no further transitions can happen
func (s JobStatus) Terminal() bool {
	return s == JobCompleted || s == JobFailed
}

// Next returns the status that follows s in the forward sequence
func (s JobStatus) Next() (JobStatus, bool) {
	i := s.Ordinal()
	if i < 0 || i+1 >= len(jobSequence) {
		return "", false
	}
	return jobSequence[i+1], true
}

// CanAdvanceTo reports whether moving from s to next is a legal transition
func (s JobStatus) CanAdvanceTo(next JobStatus) bool {
	if s.Terminal() {
		return false
	}
	if next == JobFailed {
		return true
	}
	want, ok := s.Next()
	return ok && want == next
}

// JobParams are the validated inputs of one generation request
type JobParams struct {
	Sources      []SourceWeighting `json:"sources"`
	TemplateID   string            `json:"template_id"`
	Instructions string            `json:"instructions,omitempty"`
	Query        string            `json:"query"`
	Budget       int               `json:"budget"`
}

// JobError records why and where a job failed
type JobError struct {
	Kind       string    `json:"kind"`
	Stage      JobStatus `json:"stage"`
	Message    string    `json:"message"`
	Violations []string  `json:"violations,omitempty"`
}

// GenerationJob is the persisted state of one pipeline run
type GenerationJob struct {
	ID        string       `json:"id"`
	Status    JobStatus    `json:"status"`
	Params    JobParams    `json:"params"`
	Artifact  *ArtifactRef `json:"artifact,omitempty"`
	Error     *JobError    `json:"error,omitempty"`
	CreatedAt time.Time    `json:"created_at"`
	UpdatedAt time.Time    `json:"updated_at"`
}

// Clone returns a deep copy so callers never share mutable state with a table
func (j *GenerationJob) Clone() *GenerationJob {
	if j == nil {
		return nil
	}
	out := *j
	out.Params.Sources = make([]SourceWeighting, len(j.Params.Sources))
	for i, s := range j.Params.Sources {
		s.FocusTopics = append([]string(nil), s.FocusTopics...)
		out.Params.Sources[i] = s
	}
	if j.Artifact != nil {
		a := *j.Artifact
		out.Artifact = &a
	}
	if j.Error != nil {
		e := *j.Error
		e.Violations = append([]string(nil), j.Error.Violations...)
		out.Error = &e
	}
	return &out
}
