package cli

import (
	"bytes"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDecodeStatusResponse(t *testing.T) {
	body := []byte(`{"code":0,"tasks":[{"job_id":"j1","task_id":"wordcount/0-of-2","status":"Running","last_seen":"2026-07-31T00:00:00Z","unhealthy":false}]}`)
	tasks, err := DecodeStatusResponse(body)
	require.NoError(t, err)
	require.Len(t, tasks, 1)
	assert.Equal(t, "wordcount/0-of-2", tasks[0].TaskID)
	assert.Equal(t, "j1", tasks[0].JobID)
	assert.False(t, tasks[0].Unhealthy)
}

func TestDecodeStatusResponseRejectsErrorCode(t *testing.T) {
	_, err := DecodeStatusResponse([]byte(`{"code":404}`))
	require.Error(t, err)
}

func TestRenderStatusTableMarksUnhealthyRows(t *testing.T) {
	var buf bytes.Buffer
	RenderStatusTable(&buf, []TaskStatus{
		{JobID: "j1", TaskID: "t1", Status: "Running", LastSeen: time.Now(), Unhealthy: false},
		{JobID: "j1", TaskID: "t2", Status: "Running", LastSeen: time.Now().Add(-time.Hour), Unhealthy: true},
	})
	out := buf.String()
	assert.Contains(t, out, "t1")
	assert.Contains(t, out, "t2")
	assert.Contains(t, out, "Unhealthy")
}

func TestRenderStatusTableEmpty(t *testing.T) {
	var buf bytes.Buffer
	RenderStatusTable(&buf, nil)
	assert.NotZero(t, buf.Len(), "expected placeholder row rendered for empty task list")
}
