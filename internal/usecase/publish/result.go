package publish

import "time"

// DeploymentResult reports the outcome of one build-and-deploy job.
type DeploymentResult struct {
	// FilesUploaded counts site files written to the web container.
	FilesUploaded int `json:"files_uploaded"`

	// Duration covers the whole job, download through deploy.
	Duration time.Duration `json:"duration"`

	// Errors lists non-fatal problems: backup failures and per-file upload
	// failures that did not trigger a rollback.
	Errors []string `json:"errors,omitempty"`

	// RolledBack reports that the deploy was catastrophic and the previous
	// site was restored from backup.
	RolledBack bool `json:"rolled_back"`

	// Skipped reports that the markdown inputs were unchanged since the
	// last deploy and the build was not run.
	Skipped bool `json:"skipped"`
}
