package main

import (
	"context"
	"encoding/base64"
	"log"
	"log/slog"
	"net/http"
	"os"

	"runner-hook/cmd"
	"runner-hook/pkg/api"

	"github.com/aws/aws-lambda-go/events"
	"github.com/aws/aws-lambda-go/lambda"
)

type Dispatcher interface {
	Dispatch(ctx context.Context, req api.WebhookRequest) api.WebhookResponse
}

// NewHandler adapts an API Gateway proxy event to a webhook request. Body
// bytes are passed through untouched so the signature still matches.
func NewHandler(dispatcher Dispatcher) func(context.Context, events.APIGatewayProxyRequest) (events.APIGatewayProxyResponse, error) {
	return func(ctx context.Context, event events.APIGatewayProxyRequest) (events.APIGatewayProxyResponse, error) {
		body := []byte(event.Body)
		if event.IsBase64Encoded {
			decoded, err := base64.StdEncoding.DecodeString(event.Body)
			if err != nil {
				slog.Error("unable to decode request body", "error", err)
				return textResponse(api.WebhookResponse{StatusCode: http.StatusBadRequest, Body: "Invalid body"}), nil
			}
			body = decoded
		}

		headers := event.Headers
		if headers == nil {
			headers = map[string]string{}
		}

		res := dispatcher.Dispatch(ctx, api.WebhookRequest{Headers: headers, Body: body})
		return textResponse(res), nil
	}
}

func textResponse(res api.WebhookResponse) events.APIGatewayProxyResponse {
	return events.APIGatewayProxyResponse{
		StatusCode: res.StatusCode,
		Headers:    map[string]string{"Content-Type": "text/plain; charset=utf-8"},
		Body:       res.Body,
	}
}

func main() {
	appCfg, err := cmd.LoadAppConfig()
	if err != nil {
		log.Fatalf("%v", err)
	}

	logger, err := cmd.NewLogger(os.Stdout, appCfg.LogLevel, appCfg.LogFormat)
	if err != nil {
		log.Fatalf("%v", err)
	}
	slog.SetDefault(logger)

	dispatcher, err := cmd.NewDispatcher(context.Background(), appCfg.AWS)
	if err != nil {
		log.Fatalf("Failed to create dispatcher: %v", err)
	}

	lambda.Start(NewHandler(dispatcher))
}
