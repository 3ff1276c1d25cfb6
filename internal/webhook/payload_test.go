package webhook_test

import (
	"runner-hook/internal/webhook"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseWorkflowJobEvent(t *testing.T) {
	event, err := webhook.ParseWorkflowJobEvent(loadPayload(t))
	require.NoError(t, err)

	assert.Equal(t, webhook.ActionQueued, event.Action)
	require.NotNil(t, event.WorkflowJob)
	require.NotNil(t, event.Repository)
	assert.Equal(t, webhook.JobID("2832853555"), event.WorkflowJob.ID)
	assert.Equal(t, []string{"hello", "test"}, event.WorkflowJob.Labels)
	assert.Equal(t, "octo-org/example-workflow", event.Repository.FullName)
	assert.Equal(t, "https://github.com/octo-org/example-workflow", event.Repository.HTMLURL)
}

func TestParseWorkflowJobEventPartial(t *testing.T) {
	event, err := webhook.ParseWorkflowJobEvent([]byte(`{"action":"queued"}`))
	require.NoError(t, err)
	assert.Nil(t, event.WorkflowJob)
	assert.Nil(t, event.Repository)

	_, err = webhook.ParseWorkflowJobEvent([]byte(`not json`))
	assert.Error(t, err)
}

func TestJobIDUnmarshal(t *testing.T) {
	tests := []struct {
		payload string
		want    webhook.JobID
		wantErr bool
	}{
		{`{"id": 2832853555}`, "2832853555", false},
		{`{"id": "job-7"}`, "job-7", false},
		{`{"id": null}`, "", false},
		{`{}`, "", false},
		{`{"id": [1]}`, "", true},
	}

	for _, tt := range tests {
		t.Run(tt.payload, func(t *testing.T) {
			event, err := webhook.ParseWorkflowJobEvent([]byte(`{"workflow_job":` + tt.payload + `}`))
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, event.WorkflowJob.ID)
		})
	}
}

func TestHeader(t *testing.T) {
	headers := map[string]string{
		"X-GitHub-Event":      "workflow_job",
		"x-hub-signature-256": "sha256=abc",
		"X-Github-Delivery":   "72d3162e",
	}

	assert.Equal(t, "workflow_job", webhook.Header(headers, webhook.EventHeader))
	assert.Equal(t, "sha256=abc", webhook.Header(headers, webhook.SignatureHeader))
	assert.Equal(t, "72d3162e", webhook.Header(headers, webhook.DeliveryHeader))
	assert.Equal(t, "", webhook.Header(headers, "Content-Type"))
	assert.Equal(t, "", webhook.Header(nil, webhook.EventHeader))
}
