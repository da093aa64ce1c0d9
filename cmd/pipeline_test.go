package cmd

import (
	"encoding/json"
	"net/http/httptest"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"pipetrack/internal/cloud"
	"pipetrack/internal/trackserver"
)

// pointAtTestServer wires the CLI to an in-process tracking server via
// the environment, the same way a user points it at a `pipetrack serve`
// instance.
func pointAtTestServer(t *testing.T) {
	t.Helper()
	ts := httptest.NewServer(trackserver.New(testKeyValue).Router())
	t.Cleanup(ts.Close)
	t.Setenv(cloud.HostEnvVar, ts.URL)
	t.Setenv(cloud.KeyEnvVar, testKeyValue)
}

func getJSONPipelines(t *testing.T, args ...string) []cloud.Pipeline {
	t.Helper()
	out := executeCommand(t, newGetPipelinesCmd(), args...)
	var pipelines []cloud.Pipeline
	require.NoError(t, json.Unmarshal([]byte(out), &pipelines))
	return pipelines
}

func TestWritePipelineEmptyInputs(t *testing.T) {
	pointAtTestServer(t)

	out := executeCommand(t, newWritePipelineCmd(), "", "started")
	assert.Contains(t, out, "No input pipeline_id")

	out = executeCommand(t, newWritePipelineCmd(), uuid.NewString(), "")
	assert.Contains(t, out, "No input pipeline status")
}

func TestWriteThenGetPipeline(t *testing.T) {
	pointAtTestServer(t)
	pid := uuid.NewString()

	out := executeCommand(t, newWritePipelineCmd(), pid, "started")
	assert.Contains(t, out, pid)

	pipelines := getJSONPipelines(t, pid)
	require.Len(t, pipelines, 1)
	assert.Equal(t, pid, pipelines[0].ID)
}

func TestUpdatePipelineStatus(t *testing.T) {
	pointAtTestServer(t)
	pid := uuid.NewString()

	executeCommand(t, newWritePipelineCmd(), pid, "started")
	executeCommand(t, newWritePipelineCmd(), pid, "finished")

	pipelines := getJSONPipelines(t, pid)
	require.Len(t, pipelines, 1)
	assert.Equal(t, "finished", pipelines[0].Status)
}

func TestWritePipelineWithLog(t *testing.T) {
	pointAtTestServer(t)
	pid := uuid.NewString()

	out := executeCommand(t, newWritePipelineCmd(), pid, "error", "Error: issue building the dag")
	assert.Contains(t, out, pid)

	pipelines := getJSONPipelines(t, pid)
	require.Len(t, pipelines, 1)
	assert.Equal(t, "error", pipelines[0].Status)
}

func TestGetAllPipelines(t *testing.T) {
	pointAtTestServer(t)

	for i := 0; i < 3; i++ {
		executeCommand(t, newWritePipelineCmd(), uuid.NewString(), "finished")
	}

	pipelines := getJSONPipelines(t)
	assert.GreaterOrEqual(t, len(pipelines), 3)
}

func TestGetLatestPipeline(t *testing.T) {
	pointAtTestServer(t)

	executeCommand(t, newWritePipelineCmd(), uuid.NewString(), "started")
	pid := uuid.NewString()
	executeCommand(t, newWritePipelineCmd(), pid, "started")

	pipelines := getJSONPipelines(t, "latest")
	require.Len(t, pipelines, 1)
	assert.Equal(t, pid, pipelines[0].ID)
}

func TestGetUnknownPipeline(t *testing.T) {
	pointAtTestServer(t)

	out := executeCommand(t, newGetPipelinesCmd(), "TEST_PIPELINE")
	// Not-found surfaces as a JSON-encoded message so the output of this
	// command always parses.
	var msg string
	require.NoError(t, json.Unmarshal([]byte(out), &msg))
	assert.Contains(t, msg, "TEST_PIPELINE was not")
}

func TestDeletePipeline(t *testing.T) {
	pointAtTestServer(t)
	pid := uuid.NewString()

	executeCommand(t, newWritePipelineCmd(), pid, "started")

	out := executeCommand(t, newDeletePipelineCmd(), pid)
	assert.Contains(t, out, pid)
}

func TestDeleteUnknownPipeline(t *testing.T) {
	pointAtTestServer(t)

	out := executeCommand(t, newDeletePipelineCmd(), "TEST_PIPELINE")
	assert.Contains(t, out, "doesn't exist")
}

func TestGetPipelinesInvalidKey(t *testing.T) {
	ts := httptest.NewServer(trackserver.New(testKeyValue).Router())
	t.Cleanup(ts.Close)
	t.Setenv(cloud.HostEnvVar, ts.URL)
	t.Setenv(cloud.KeyEnvVar, "2AhdF2MnRDw-ZZZZZZZZZZ")

	out := executeCommand(t, newGetPipelinesCmd(), uuid.NewString())
	var msg string
	require.NoError(t, json.Unmarshal([]byte(out), &msg))
	assert.Contains(t, msg, "API_Key not valid")
}

func TestWritePipelineInvalidKey(t *testing.T) {
	ts := httptest.NewServer(trackserver.New(testKeyValue).Router())
	t.Cleanup(ts.Close)
	t.Setenv(cloud.HostEnvVar, ts.URL)
	t.Setenv(cloud.KeyEnvVar, "2AhdF2MnRDw-ZZZZZZZZZZ")

	out := executeCommand(t, newWritePipelineCmd(), uuid.NewString(), "started")
	assert.Contains(t, out, "API_Key")
}
