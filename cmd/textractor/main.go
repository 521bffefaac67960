// Package main runs the text-extraction stage: consume upload notifications,
// OCR the referenced image, and enqueue the result for persistence.
package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"log/slog"

	"github.com/socialnet/serverless-backend/internal/awsutil"
	"github.com/socialnet/serverless-backend/internal/config"
	"github.com/socialnet/serverless-backend/internal/extract"
	"github.com/socialnet/serverless-backend/internal/models"
	"github.com/socialnet/serverless-backend/internal/s3io"
	"github.com/socialnet/serverless-backend/internal/sqsio"

	"github.com/aws/aws-lambda-go/events"
	"github.com/aws/aws-lambda-go/lambda"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/sqs"
	"github.com/aws/aws-sdk-go-v2/service/textract"
	"golang.org/x/sync/errgroup"
)

// errSkip marks input that should be acknowledged and dropped, never retried.
var errSkip = errors.New("skippable input")

// App holds the application state, including configuration and AWS clients.
type App struct {
	env     config.Env
	log     *slog.Logger
	ocr     *extract.Extractor
	objects s3io.ObjectAPI
	uploads *sqsio.Queue // consumed queue; explicit ack target
	results *sqsio.Queue
}

// main initializes the app and starts the Lambda handler.
func main() {
	env := config.MustLoadExtractor()
	cfg, endpoint, err := awsutil.Load(context.Background(), env.Region)
	if err != nil {
		log.Fatal(err)
	}

	s3c := s3.NewFromConfig(cfg, func(o *s3.Options) {
		if endpoint != "" {
			o.UsePathStyle = true // localstack/dev friendliness
		}
	})
	sqsc := sqs.NewFromConfig(cfg)

	app := &App{
		env:     env,
		log:     config.NewLogger(env.LogLevel).With("stage", "textractor"),
		ocr:     &extract.Extractor{Client: textract.NewFromConfig(cfg)},
		objects: s3c,
		uploads: &sqsio.Queue{Client: sqsc, URL: env.UploadQueueURL},
		results: &sqsio.Queue{Client: sqsc, URL: env.ResultQueueURL},
	}
	lambda.Start(app.handler)
}

// handler fans the batch out with bounded concurrency and reports each
// failed record back to SQS individually, so one bad message never forces
// redelivery of its batch mates.
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

// processRecord handles one upload notification end to end. The source
// message is deleted only after every result has been enqueued; any earlier
// failure leaves it for redelivery after the visibility timeout.
func (a *App) processRecord(ctx context.Context, rec events.SQSMessage) error {
	refs, err := models.ParseUploadNotification([]byte(rec.Body))
	if err != nil {
		// A body that cannot be parsed never will be; treat as skippable
		// rather than poisoning the queue.
		a.log.Warn("dropping unparseable notification", "messageId", rec.MessageId, "error", err)
		return a.ack(ctx, rec)
	}

	for _, ref := range refs {
		if err := a.processObject(ctx, ref); err != nil {
			if errors.Is(err, errSkip) {
				continue
			}
			return err
		}
	}
	return a.ack(ctx, rec)
}

// processObject OCRs one referenced object and enqueues its result.
func (a *App) processObject(ctx context.Context, ref models.ObjectRef) error {
	logger := a.log.With("bucket", ref.Bucket, "key", ref.Key)

	if !s3io.IsImageKey(ref.Key) {
		logger.Info("not an image, skipping")
		return errSkip
	}
	owner, err := s3io.Owner(ref.Key)
	if err != nil {
		logger.Warn("invalid key, skipping", "error", err)
		return errSkip
	}
	logger = logger.With("owner", owner)

	cctx, cancel := context.WithTimeout(ctx, a.env.CallTimeout)
	defer cancel()

	exists, err := s3io.ObjectExists(cctx, a.objects, ref.Bucket, ref.Key)
	if err != nil {
		return fmt.Errorf("probe %s/%s: %w", ref.Bucket, ref.Key, err)
	}
	if !exists {
		logger.Warn("object gone before processing, skipping")
		return errSkip
	}

	text, noText, err := a.ocr.DetectLines(cctx, ref.Bucket, ref.Key)
	if err != nil {
		return err
	}
	if noText {
		logger.Info("no text detected")
	}

	result := models.ExtractionResult{
		UserName: owner,
		Bucket:   ref.Bucket,
		Key:      ref.Key,
		Text:     text,
		IsError:  models.Flag(noText),
	}
	if err := a.results.SendJSON(cctx, result); err != nil {
		return fmt.Errorf("enqueue result for %s/%s: %w", ref.Bucket, ref.Key, err)
	}
	logger.Info("result enqueued", "isError", noText)
	return nil
}

// ack deletes the consumed message from the upload queue.
func (a *App) ack(ctx context.Context, rec events.SQSMessage) error {
	cctx, cancel := context.WithTimeout(ctx, a.env.CallTimeout)
	defer cancel()
	if err := a.uploads.Delete(cctx, rec.ReceiptHandle); err != nil {
		return fmt.Errorf("ack %s: %w", rec.MessageId, err)
	}
	return nil
}
