package domain

// SubmissionStatus is the remote endpoint's verdict on one envelope.
type SubmissionStatus string

const (
	// SubmissionAccepted means the remote applied (or had already applied)
	// the envelope; the idempotency key makes replays a no-op.
	SubmissionAccepted SubmissionStatus = "accepted"
	// SubmissionRejected means the envelope is invalid and will never be
	// accepted; terminal.
	SubmissionRejected SubmissionStatus = "rejected"
	// SubmissionRetryLater means the remote is temporarily unable to apply
	// the envelope; retryable.
	SubmissionRetryLater SubmissionStatus = "retry_later"
)

// SubmissionResult is the per-envelope outcome of a batch submission.
type SubmissionResult struct {
	ID     string
	Status SubmissionStatus
	Reason string
}
