package cloud

// Pipeline is a tracked pipeline run as stored by the cloud API.
type Pipeline struct {
	ID     string     `json:"pipeline_id"`
	Status string     `json:"status"`
	Log    string     `json:"log,omitempty"`
	Dag    *DagReport `json:"dag,omitempty"`
}

// DagReport summarizes the task graph of a pipeline run.
type DagReport struct {
	DagSize string                `json:"dag_size"`
	Tasks   map[string]TaskReport `json:"tasks"`
}

// TaskReport holds per-task metadata inside a DagReport.
type TaskReport struct {
	Products string            `json:"products"`
	Status   string            `json:"status"`
	Type     string            `json:"type"`
	Upstream map[string]string `json:"upstream"`
}
