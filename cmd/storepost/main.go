// Package main runs the persistence stage: consume extraction results and
// write each one as a new post record in its staging or error state.
package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"log/slog"
	"time"

	"github.com/socialnet/serverless-backend/internal/awsutil"
	"github.com/socialnet/serverless-backend/internal/config"
	"github.com/socialnet/serverless-backend/internal/ddb"
	"github.com/socialnet/serverless-backend/internal/models"
	"github.com/socialnet/serverless-backend/internal/sqsio"

	"github.com/aws/aws-lambda-go/events"
	"github.com/aws/aws-lambda-go/lambda"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/sqs"
	"golang.org/x/sync/errgroup"
)

// App holds the application state, including configuration and AWS clients.
type App struct {
	env     config.Env
	log     *slog.Logger
	repo    *ddb.Repo
	results *sqsio.Queue // consumed queue; explicit ack target
	now     func() time.Time
}

// main initializes the app and starts the Lambda handler.
func main() {
	env := config.MustLoadPersister()
	cfg, _, err := awsutil.Load(context.Background(), env.Region)
	if err != nil {
		log.Fatal(err)
	}

	app := &App{
		env:     env,
		log:     config.NewLogger(env.LogLevel).With("stage", "storepost"),
		repo:    &ddb.Repo{DB: dynamodb.NewFromConfig(cfg), Table: env.Table},
		results: &sqsio.Queue{Client: sqs.NewFromConfig(cfg), URL: env.ResultQueueURL},
		now:     time.Now,
	}
	lambda.Start(app.handler)
}

// handler fans the batch out with bounded concurrency, reporting per-record
// failures back to SQS.
func (a *App) handler(ctx context.Context, ev events.SQSEvent) (events.SQSEventResponse, error) {
	failures := make([]error, len(ev.Records))

	g := new(errgroup.Group)
	g.SetLimit(a.env.BatchConcurrency)
	for i, rec := range ev.Records {
		g.Go(func() error {
			failures[i] = a.processRecord(ctx, rec)
			return nil
		})
	}
	_ = g.Wait()

	var resp events.SQSEventResponse
	for i, err := range failures {
		if err == nil {
			continue
		}
		a.log.Error("record failed", "messageId", ev.Records[i].MessageId, "error", err)
		resp.BatchItemFailures = append(resp.BatchItemFailures, events.SQSBatchItemFailure{
			ItemIdentifier: ev.Records[i].MessageId,
		})
	}
	return resp, nil
}

// processRecord writes one post record for one extraction result. The source
// message is deleted only after the conditional insert succeeds; a duplicate
// id is benign and still acknowledged.
func (a *App) processRecord(ctx context.Context, rec events.SQSMessage) error {
	var res models.ExtractionResult
	if err := json.Unmarshal([]byte(rec.Body), &res); err != nil {
		a.log.Warn("dropping unparseable result", "messageId", rec.MessageId, "error", err)
		return a.ack(ctx, rec)
	}
	if res.UserName == "" {
		a.log.Warn("dropping result without owner", "messageId", rec.MessageId, "key", res.Key)
		return a.ack(ctx, rec)
	}

	stage := models.StageStaging
	if res.IsError {
		stage = models.StageError
	}
	post := models.Post{
		PostID:   models.NewPostID(),
		UserName: res.UserName,
		Content:  res.Text,
		Staging:  stage,
		PostDate: models.DateUTC(a.now()),
	}

	logger := a.log.With("owner", res.UserName, "bucket", res.Bucket, "key", res.Key, "postId", post.PostID)

	cctx, cancel := context.WithTimeout(ctx, a.env.CallTimeout)
	defer cancel()
	err := a.repo.Put(cctx, post)
	switch {
	case errors.Is(err, ddb.ErrDuplicateKey):
		// Redelivering forever cannot resolve an id collision; the existing
		// record stays untouched and the message is still acknowledged.
		logger.Warn("post id already exists, dropping duplicate")
	case err != nil:
		return fmt.Errorf("store post for %s/%s: %w", res.Bucket, res.Key, err)
	default:
		logger.Info("post saved", "stage", stage)
	}

	return a.ack(ctx, rec)
}

// ack deletes the consumed message from the result queue.
func (a *App) ack(ctx context.Context, rec events.SQSMessage) error {
	cctx, cancel := context.WithTimeout(ctx, a.env.CallTimeout)
	defer cancel()
	if err := a.results.Delete(cctx, rec.ReceiptHandle); err != nil {
		return fmt.Errorf("ack %s: %w", rec.MessageId, err)
	}
	return nil
}
