package runner

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/ecs"
	"github.com/aws/aws-sdk-go-v2/service/ecs/types"
)

const (
	RepoURLEnv     = "REPO_URL"
	AccessTokenEnv = "ACCESS_TOKEN"
)

var ErrLaunch = errors.New("unable to launch runner")

// LaunchError carries the reason ECS gave for not starting the task.
type LaunchError struct {
	Reason string
}

func (e *LaunchError) Error() string {
	return fmt.Sprintf("%v: %s", ErrLaunch, e.Reason)
}

func (e *LaunchError) Is(target error) bool {
	return target == ErrLaunch
}

type ECSAPI interface {
	RunTask(ctx context.Context, params *ecs.RunTaskInput, optFns ...func(*ecs.Options)) (*ecs.RunTaskOutput, error)
}

// Settings is the static part of every launch, taken from the deployment
// configuration.
type Settings struct {
	Cluster        string
	TaskDefinition string
	ContainerName  string
	Subnets        []string
	SecurityGroup  string
}

type LaunchRequest struct {
	RepoName          string
	RepoURL           string
	JobID             string
	RegistrationToken string
}

// StartedBy is the value recorded on the task so it can be traced back to the
// job that triggered it. ECS limits startedBy to 36 characters and rejects
// longer values with InvalidParameterException, which surfaces as a launch
// failure; most "<owner>/<repo>/runs/<job id>" values exceed it.
func (r LaunchRequest) StartedBy() string {
	return fmt.Sprintf("%s/runs/%s", r.RepoName, r.JobID)
}

type Launcher struct {
	client ECSAPI
}

func NewLauncher(cfg aws.Config) *Launcher {
	return NewFromClient(ecs.NewFromConfig(cfg))
}

func NewFromClient(client ECSAPI) *Launcher {
	return &Launcher{client: client}
}

// Launch starts a single Fargate task running the runner container and returns
// its ARN. RunTask provisions compute and is not idempotent, so it is called
// exactly once and the call is detached from ctx cancellation: a task that has
// been submitted must not be abandoned halfway.
func (l *Launcher) Launch(ctx context.Context, settings Settings, req LaunchRequest) (string, error) {
	out, err := l.client.RunTask(context.WithoutCancel(ctx), BuildRunTaskInput(settings, req))
	if err != nil {
		slog.Error("error launching runner task", "repo", req.RepoName, "job_id", req.JobID, "error", err)
		return "", fmt.Errorf("%w: %w", ErrLaunch, err)
	}

	if len(out.Tasks) > 0 {
		taskARN := aws.ToString(out.Tasks[0].TaskArn)
		slog.Info("launched runner task", "repo", req.RepoName, "job_id", req.JobID, "task_arn", taskARN)
		return taskARN, nil
	}

	if len(out.Failures) > 0 {
		reason := aws.ToString(out.Failures[0].Reason)
		slog.Error("failed to launch runner task", "repo", req.RepoName, "job_id", req.JobID, "reason", reason, "arn", aws.ToString(out.Failures[0].Arn))
		return "", &LaunchError{Reason: reason}
	}

	slog.Error("run task returned neither tasks nor failures", "repo", req.RepoName, "job_id", req.JobID)
	return "", &LaunchError{Reason: "no task started"}
}

func BuildRunTaskInput(settings Settings, req LaunchRequest) *ecs.RunTaskInput {
	return &ecs.RunTaskInput{
		Cluster:              aws.String(settings.Cluster),
		Count:                aws.Int32(1),
		EnableECSManagedTags: true,
		EnableExecuteCommand: false,
		LaunchType:           types.LaunchTypeFargate,
		NetworkConfiguration: &types.NetworkConfiguration{
			AwsvpcConfiguration: &types.AwsVpcConfiguration{
				Subnets:        settings.Subnets,
				SecurityGroups: []string{settings.SecurityGroup},
				AssignPublicIp: types.AssignPublicIpDisabled,
			},
		},
		Overrides: &types.TaskOverride{
			ContainerOverrides: []types.ContainerOverride{
				{
					Name: aws.String(settings.ContainerName),
					Environment: []types.KeyValuePair{
						{Name: aws.String(RepoURLEnv), Value: aws.String(req.RepoURL)},
						{Name: aws.String(AccessTokenEnv), Value: aws.String(req.RegistrationToken)},
					},
				},
			},
		},
		PropagateTags:  types.PropagateTagsTaskDefinition,
		StartedBy:      aws.String(req.StartedBy()),
		TaskDefinition: aws.String(settings.TaskDefinition),
	}
}
