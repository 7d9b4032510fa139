package enum

type JobStatus string

const (
	JobStatusIdle           JobStatus = "idle"
	JobStatusRunning        JobStatus = "running"
	JobStatusAlreadyRunning JobStatus = "already_running"
)

func (t JobStatus) String() string {
	return string(t)
}
