package main

import (
	"context"
	"os"

	"github.com/aws/aws-lambda-go/events"
	"github.com/aws/aws-lambda-go/lambda"

	"github.com/storeops/cart-recovery/internal/abandonment"
	internalaws "github.com/storeops/cart-recovery/internal/aws"
	"github.com/storeops/cart-recovery/pkg/config"
	"github.com/storeops/cart-recovery/pkg/logger"
)

func main() {
	cfg := config.Load()
	log := logger.New(logger.Options{
		Service: "cart-recovery-notifier",
		Env:     cfg.AppEnv,
		Level:   cfg.LogLevel,
	})

	ctx := context.Background()

	var logs abandonment.LogRepo
	if cfg.LogsTable != "" {
		clients, err := internalaws.NewAWSClients(ctx)
		if err != nil {
			log.Error("failed to init aws clients", "error", err)
			os.Exit(1)
		}
		logs = abandonment.NewDynamoLogRepo(clients.DynamoDB, cfg.LogsTable)
	}

	p := NewProcessor(os.Getenv("DELIVERY_WEBHOOK_URL"), logs, log)

	// If RUN_LOCAL=true, simulate a single SQS event for local testing.
	if os.Getenv("RUN_LOCAL") == "true" {
		testBody := os.Getenv("LOCAL_SQS_BODY")
		if testBody == "" {
			testBody = `{"log_id":"local-log-1","reference_id":"local-cart-1","type":"CART_ABANDONED","template":"reminder","body":"test"}`
		}
		event := events.SQSEvent{
			Records: []events.SQSMessage{
				{Body: testBody},
			},
		}
		if err := p.Handle(ctx, event); err != nil {
			log.Error("local handler error", "error", err)
			os.Exit(1)
		}
		return
	}

	lambda.Start(p.Handle)
}
