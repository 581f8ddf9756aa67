package models

// SubmissionKind tags the variant held by a Submission.
type SubmissionKind string

const (
	SubmissionQueued    SubmissionKind = "queued"
	SubmissionCompleted SubmissionKind = "completed"
	SubmissionFailed    SubmissionKind = "failed"
)

// Submission is the outcome of handing a job to the dispatcher.
// Queued carries only the job id; Completed carries the result and
// Failed the error detail, both already recorded in the job store.
type Submission struct {
	Kind   SubmissionKind
	JobID  string
	Query  string
	Result string
	Error  string
}

// Queued builds the variant for a job handed to the queue backend.
func Queued(jobID, query string) Submission {
	return Submission{Kind: SubmissionQueued, JobID: jobID, Query: query}
}

// Completed builds the variant for a job analysed inline.
func Completed(jobID, query, result string) Submission {
	return Submission{Kind: SubmissionCompleted, JobID: jobID, Query: query, Result: result}
}

// Failed builds the variant for an inline job whose analysis failed.
func Failed(jobID, query, detail string) Submission {
	return Submission{Kind: SubmissionFailed, JobID: jobID, Query: query, Error: detail}
}
