package entity

import "time"

// SiteAnnouncement describes one finished site deploy for the outbound
// notification channels. The publisher assembles it from the deploy result
// and the site configuration after the web container has been updated.
type SiteAnnouncement struct {
	// SiteURL is the public base URL of the deployed site. Empty when the
	// deployment target has no configured URL.
	SiteURL string `json:"site_url,omitempty"`

	// FilesUploaded counts site files written during the deploy.
	FilesUploaded int `json:"files_uploaded"`

	// Duration covers the whole build-and-deploy job.
	Duration time.Duration `json:"duration"`

	// RolledBack reports that the deploy failed on its first upload and the
	// previous site was restored from backup.
	RolledBack bool `json:"rolled_back"`

	// Errors lists the non-fatal problems recorded during the deploy.
	Errors []string `json:"errors,omitempty"`

	// CorrelationID ties the announcement to the pipeline run that produced
	// the deploy.
	CorrelationID string `json:"correlation_id,omitempty"`

	// FinishedAt is when the deploy completed.
	FinishedAt time.Time `json:"finished_at"`
}
