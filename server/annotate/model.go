package annotate

import "github.com/cyclopcam/dbh"

type JobStatus string

const (
	JobStatusQueued  JobStatus = "queued"
	JobStatusRunning JobStatus = "running"
	JobStatusDone    JobStatus = "done"
	JobStatusFailed  JobStatus = "failed"
)

// Job is a request to label every frame of a stored video with the current classifier
type Job struct {
	ID              int64       `gorm:"primaryKey" json:"id"`
	Video           string      `json:"video"` // Name of the video, relative to storage.VideoPrefix
	Status          JobStatus   `json:"status"`
	Error           string      `json:"error"`
	AnnotationsPath string      `json:"annotationsPath"` // Storage path of the prediction track, once done
	NumFrames       int         `json:"numFrames"`
	NumPredictions  int         `json:"numPredictions"`
	CreatedAt       dbh.IntTime `json:"createdAt"`
	FinishedAt      dbh.IntTime `gorm:"default:null" json:"finishedAt"`
}

func (Job) TableName() string {
	return "annotation_job"
}
