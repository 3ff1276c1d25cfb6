package dispatch

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	"runner-hook/internal/config"
	"runner-hook/internal/github"
	"runner-hook/internal/runner"
	"runner-hook/internal/webhook"
	"runner-hook/pkg/api"

	"github.com/google/uuid"
)

var (
	ErrUnsupported       = errors.New("unsupported request")
	ErrUnsupportedLabels = fmt.Errorf("%w: unsupported labels", ErrUnsupported)
)

type State string

const (
	StateStart           State = "START"
	StateConfigValidated State = "CONFIG_VALIDATED"
	StateAuthenticated   State = "AUTHENTICATED"
	StateEventClassified State = "EVENT_CLASSIFIED"
	StateLabelsChecked   State = "LABELS_CHECKED"
	StateTokenAcquired   State = "TOKEN_ACQUIRED"
	StateLaunched        State = "LAUNCHED"
)

var (
	responseAck          = api.WebhookResponse{StatusCode: http.StatusOK, Body: "Ack"}
	responseLaunched     = api.WebhookResponse{StatusCode: http.StatusOK, Body: "Runner launched"}
	responseUnsupported  = api.WebhookResponse{StatusCode: http.StatusBadRequest, Body: "Unsupported"}
	responseBadLabels    = api.WebhookResponse{StatusCode: http.StatusBadRequest, Body: "Unsupported labels"}
	responseBadSignature = api.WebhookResponse{StatusCode: http.StatusForbidden, Body: "Bad Signature"}
	responseInternal     = api.WebhookResponse{StatusCode: http.StatusInternalServerError, Body: "Internal Error"}
)

type Verifier interface {
	Verify(ctx context.Context, secretID string, body []byte, signature string) error
}

type TokenExchanger interface {
	RegistrationToken(ctx context.Context, settings github.Settings, repoFullName string) (github.RegistrationToken, error)
}

type Launcher interface {
	Launch(ctx context.Context, settings runner.Settings, req runner.LaunchRequest) (string, error)
}

// ConfigLoader returns the configuration for one invocation.
type ConfigLoader func() (*config.Config, error)

type Dispatcher struct {
	loadConfig ConfigLoader
	verifier   Verifier
	exchanger  TokenExchanger
	launcher   Launcher
}

func NewDispatcher(loadConfig ConfigLoader, verifier Verifier, exchanger TokenExchanger, launcher Launcher) *Dispatcher {
	return &Dispatcher{
		loadConfig: loadConfig,
		verifier:   verifier,
		exchanger:  exchanger,
		launcher:   launcher,
	}
}

// Dispatch runs one delivery through the pipeline and always returns one of
// the defined responses, including when a collaborator panics.
func (d *Dispatcher) Dispatch(ctx context.Context, req api.WebhookRequest) (res api.WebhookResponse) {
	deliveryID := webhook.Header(req.Headers, webhook.DeliveryHeader)
	if deliveryID == "" {
		deliveryID = uuid.NewString()
	}
	logger := slog.Default().With("delivery_id", deliveryID, "event", webhook.Header(req.Headers, webhook.EventHeader))

	defer func() {
		if r := recover(); r != nil {
			logger.Error("panic while handling webhook", "panic", r)
			res = responseInternal
		}
	}()

	state, res := d.run(ctx, logger, req)
	logger.Info("webhook handled", "state", state, "status_code", res.StatusCode)
	return res
}

// run returns the last state reached and the response for it.
func (d *Dispatcher) run(ctx context.Context, logger *slog.Logger, req api.WebhookRequest) (State, api.WebhookResponse) {
	cfg, err := d.loadConfig()
	if err == nil {
		err = cfg.Validate()
	}
	if err != nil {
		logger.Error("missing expected environment config", "error", err)
		return StateStart, responseInternal
	}

	signature := webhook.Header(req.Headers, webhook.SignatureHeader)
	if err := d.verifier.Verify(ctx, cfg.GitHubHookSecret, req.Body, signature); err != nil {
		logger.Error("unable to verify webhook payload", "error", err)
		return StateConfigValidated, responseBadSignature
	}

	if webhook.Header(req.Headers, webhook.EventHeader) == webhook.EventPing {
		return StateAuthenticated, responseAck
	}

	job, err := classify(req)
	if err != nil {
		logger.Info("rejecting webhook", "reason", err)
		return StateAuthenticated, responseUnsupported
	}

	if err := checkLabels(cfg, job.WorkflowJob.Labels); err != nil {
		logger.Info("rejecting webhook", "reason", err, "labels", job.WorkflowJob.Labels)
		return StateEventClassified, responseBadLabels
	}

	repoName := job.Repository.FullName
	token, err := d.exchanger.RegistrationToken(ctx, github.Settings{
		APIURL:             cfg.GitHubAPIURL,
		CredentialSecretID: cfg.GitHubSecretARN,
		Timeout:            cfg.GitHubAPITimeout,
	}, repoName)
	if err != nil {
		logger.Error("unable to get registration token", "repo", repoName, "error", err)
		return StateLabelsChecked, responseInternal
	}

	taskARN, err := d.launcher.Launch(ctx, runner.Settings{
		Cluster:        cfg.ECSCluster,
		TaskDefinition: cfg.TaskDefinitionARN,
		ContainerName:  cfg.ContainerName,
		Subnets:        []string{cfg.SubnetA, cfg.SubnetB},
		SecurityGroup:  cfg.SecurityGroup,
	}, runner.LaunchRequest{
		RepoName:          repoName,
		RepoURL:           job.Repository.HTMLURL,
		JobID:             string(job.WorkflowJob.ID),
		RegistrationToken: token.Token,
	})
	if err != nil {
		logger.Error("unable to launch runner", "repo", repoName, "job_id", job.WorkflowJob.ID, "error", err)
		return StateTokenAcquired, responseInternal
	}

	logger.Info("runner launched", "repo", repoName, "job_id", job.WorkflowJob.ID, "task_arn", taskARN)
	return StateLaunched, responseLaunched
}

// classify accepts only queued workflow_job events carrying a job id and a
// repository with both its name and URL.
func classify(req api.WebhookRequest) (*webhook.WorkflowJobEvent, error) {
	event := webhook.Header(req.Headers, webhook.EventHeader)
	if event != webhook.EventWorkflowJob {
		return nil, fmt.Errorf("%w: event %q", ErrUnsupported, event)
	}

	job, err := webhook.ParseWorkflowJobEvent(req.Body)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrUnsupported, err)
	}
	if job.Action != webhook.ActionQueued {
		return nil, fmt.Errorf("%w: action %q", ErrUnsupported, job.Action)
	}
	if job.WorkflowJob == nil || job.WorkflowJob.ID == "" {
		return nil, fmt.Errorf("%w: missing workflow_job", ErrUnsupported)
	}
	if job.Repository == nil || job.Repository.FullName == "" || job.Repository.HTMLURL == "" {
		return nil, fmt.Errorf("%w: missing repository", ErrUnsupported)
	}
	return job, nil
}

func checkLabels(cfg *config.Config, labels []string) error {
	var missing []string
	for _, label := range labels {
		if !cfg.AcceptsLabel(label) {
			missing = append(missing, label)
		}
	}
	if len(missing) > 0 {
		return fmt.Errorf("%w: %v", ErrUnsupportedLabels, missing)
	}
	return nil
}
