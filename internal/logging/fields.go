package logging

// Standardized structured logging keys. Using the constants keeps console
// rendering and downstream log queries consistent.
const (
	// FieldComponent names the subsystem emitting the line.
	FieldComponent = "component"
	// FieldProjectID carries the project identifier.
	FieldProjectID = "project_id"
	// FieldJobID carries the job identifier within a project.
	FieldJobID = "job_id"
	// FieldJobType carries the job type (character, image, video, ...).
	FieldJobType = "job_type"
	// FieldStage carries the pipeline stage name.
	FieldStage = "stage"
	// FieldRunID carries the identifier minted for one pipeline run.
	FieldRunID = "run_id"
	// FieldWorkflow carries the selected video generation workflow.
	FieldWorkflow = "workflow"
	// FieldAttempt carries the 1-based attempt number for a dispatch.
	FieldAttempt = "attempt"
	// FieldCorrelationID carries the request correlation identifier.
	FieldCorrelationID = "correlation_id"
	// FieldErrorKind carries the classified error kind persisted to the ledger.
	FieldErrorKind = "error_kind"
	// FieldAlert flags warnings or anomalies that should stand out.
	FieldAlert = "alert"
	// FieldDecisionType labels classifier and scheduler decision logs.
	FieldDecisionType = "decision_type"
)
