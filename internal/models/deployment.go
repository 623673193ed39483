package models

import "time"

// DeploymentStatus is the outcome of a simulated deployment run.
type DeploymentStatus string

const (
	DeploymentSuccess    DeploymentStatus = "success"
	DeploymentFailed     DeploymentStatus = "failed"
	DeploymentInProgress DeploymentStatus = "in-progress"
)

// DeploymentRecord is an immutable entry of the deployment history.
type DeploymentRecord struct {
	ID         string           `json:"id"`
	Version    string           `json:"version"`
	Status     DeploymentStatus `json:"status"`
	Timestamp  time.Time        `json:"timestamp"`
	DeployedBy string           `json:"deployedBy"`
	Commit     string           `json:"commit"`
	Log        []string         `json:"log"`
}
