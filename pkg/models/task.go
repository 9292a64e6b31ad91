package models

// Task is one unit of work pulled from the queue. It references exactly one
// video record and carries free-form metadata that must survive retries.
type Task struct {
	ID         string
	VideoID    string
	SourcePath string
	Attempt    int
	Metadata   map[string]string
}

// Validate checks that the task carries every required field.
func (t *Task) Validate() error {
	if t.ID == "" {
		return ErrMissingTaskID
	}
	if t.VideoID == "" {
		return ErrMissingVideoID
	}
	if t.SourcePath == "" {
		return ErrMissingSourcePath
	}
	return nil
}
