package main

// Build the Lambda handler binary:
//   GOOS=linux GOARCH=arm64 CGO_ENABLED=0 go build -o bootstrap ./cmd/lambda-http

import (
	"context"
	"encoding/json"
	"sync"

	"github.com/aws/aws-lambda-go/events"
	"github.com/aws/aws-lambda-go/lambda"
	ginadapter "github.com/awslabs/aws-lambda-go-api-proxy/gin"

	"github.com/hddy2000/medical-beauty-ai-demo/internal/bootstrap"
	"github.com/hddy2000/medical-beauty-ai-demo/internal/shared/config"
	"github.com/hddy2000/medical-beauty-ai-demo/internal/shared/telemetry"
)

var (
	initOnce  sync.Once
	initErr   error
	ginLambda *ginadapter.GinLambdaV2
)

func initApp(ctx context.Context) {
	cfg, err := config.Parse()
	if err != nil {
		initErr = err
		return
	}
	if err := telemetry.Init(cfg.Env); err != nil {
		initErr = err
		return
	}
	// Init runs inside the first invocation; the app must outlive it.
	app, err := bootstrap.Build(context.WithoutCancel(ctx), cfg)
	if err != nil {
		initErr = err
		return
	}
	ginLambda = ginadapter.NewV2(app.Router)
}

func handler(ctx context.Context, req events.APIGatewayV2HTTPRequest) (events.APIGatewayV2HTTPResponse, error) {
	initOnce.Do(func() { initApp(ctx) })
	if initErr != nil {
		telemetry.Error("bootstrap error", map[string]any{"error": initErr})
		body, _ := json.Marshal(map[string]string{"error": "bootstrap failed"})
		return events.APIGatewayV2HTTPResponse{
			StatusCode: 500,
			Body:       string(body),
			Headers:    map[string]string{"Content-Type": "application/json"},
		}, initErr
	}
	defer telemetry.Sync()
	return ginLambda.ProxyWithContext(ctx, req)
}

func main() {
	lambda.Start(handler)
}
