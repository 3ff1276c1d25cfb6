package webhook

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"
)

const (
	EventHeader    = "X-GitHub-Event"
	DeliveryHeader = "X-GitHub-Delivery"

	EventPing        = "ping"
	EventWorkflowJob = "workflow_job"

	ActionQueued = "queued"
)

// JobID is the workflow job identifier. GitHub sends it as a JSON number but
// it is only ever used as an opaque token, so strings are accepted as well.
type JobID string

func (id *JobID) UnmarshalJSON(data []byte) error {
	if bytes.Equal(data, []byte("null")) {
		*id = ""
		return nil
	}
	if len(data) > 0 && data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*id = JobID(s)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(data, &n); err != nil {
		return fmt.Errorf("invalid job id %s: %w", data, err)
	}
	*id = JobID(n.String())
	return nil
}

type WorkflowJob struct {
	ID     JobID    `json:"id"`
	Labels []string `json:"labels"`
}

type Repository struct {
	FullName string `json:"full_name"` // "owner/repo"
	HTMLURL  string `json:"html_url"`
}

// WorkflowJobEvent is the subset of the workflow_job payload this service reads.
type WorkflowJobEvent struct {
	Action      string       `json:"action"`
	WorkflowJob *WorkflowJob `json:"workflow_job"`
	Repository  *Repository  `json:"repository"`
}

func ParseWorkflowJobEvent(body []byte) (*WorkflowJobEvent, error) {
	var event WorkflowJobEvent
	if err := json.Unmarshal(body, &event); err != nil {
		return nil, fmt.Errorf("failed to parse workflow_job event: %w", err)
	}
	return &event, nil
}

// Header looks up name in headers, falling back to a case-insensitive match
// since proxies and net/http rewrite header casing.
func Header(headers map[string]string, name string) string {
	if v, ok := headers[name]; ok {
		return v
	}
	for k, v := range headers {
		if strings.EqualFold(k, name) {
			return v
		}
	}
	return ""
}
