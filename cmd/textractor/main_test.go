package main

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/socialnet/serverless-backend/internal/config"
	"github.com/socialnet/serverless-backend/internal/extract"
	"github.com/socialnet/serverless-backend/internal/models"
	"github.com/socialnet/serverless-backend/internal/sqsio"

	"github.com/aws/aws-lambda-go/events"
	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	s3types "github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/aws/aws-sdk-go-v2/service/sqs"
	"github.com/aws/aws-sdk-go-v2/service/textract"
	txtypes "github.com/aws/aws-sdk-go-v2/service/textract/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeSQS struct {
	mu      sync.Mutex
	sent    []string
	deleted []string
	sendErr error
}

func (f *fakeSQS) SendMessage(ctx context.Context, in *sqs.SendMessageInput, _ ...func(*sqs.Options)) (*sqs.SendMessageOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.sendErr != nil {
		return nil, f.sendErr
	}
	f.sent = append(f.sent, *in.MessageBody)
	return &sqs.SendMessageOutput{}, nil
}

func (f *fakeSQS) DeleteMessage(ctx context.Context, in *sqs.DeleteMessageInput, _ ...func(*sqs.Options)) (*sqs.DeleteMessageOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.deleted = append(f.deleted, *in.ReceiptHandle)
	return &sqs.DeleteMessageOutput{}, nil
}

type fakeTextract struct {
	mu     sync.Mutex
	blocks []txtypes.Block
	err    error
	calls  int
}

func (f *fakeTextract) DetectDocumentText(ctx context.Context, in *textract.DetectDocumentTextInput, _ ...func(*textract.Options)) (*textract.DetectDocumentTextOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	return &textract.DetectDocumentTextOutput{Blocks: f.blocks}, nil
}

type fakeObjects struct {
	missing bool
}

func (f *fakeObjects) HeadObject(ctx context.Context, in *s3.HeadObjectInput, _ ...func(*s3.Options)) (*s3.HeadObjectOutput, error) {
	if f.missing {
		return nil, &s3types.NotFound{}
	}
	return &s3.HeadObjectOutput{}, nil
}

func line(text string, top float32) txtypes.Block {
	return txtypes.Block{
		BlockType: txtypes.BlockTypeLine,
		Text:      aws.String(text),
		Geometry:  &txtypes.Geometry{BoundingBox: &txtypes.BoundingBox{Top: top}},
	}
}

func newTestApp(ocr *fakeTextract, objects *fakeObjects, queues *fakeSQS) *App {
	return &App{
		env: config.Env{
			CallTimeout:      time.Second,
			BatchConcurrency: 2,
		},
		log:     slog.New(slog.NewTextHandler(io.Discard, nil)),
		ocr:     &extract.Extractor{Client: ocr},
		objects: objects,
		uploads: &sqsio.Queue{Client: queues, URL: "upload-queue"},
		results: &sqsio.Queue{Client: queues, URL: "result-queue"},
	}
}

func uploadMessage(id, key string) events.SQSMessage {
	body, _ := json.Marshal(map[string]any{
		"Records": []map[string]any{
			{"s3": map[string]any{
				"bucket": map[string]string{"name": "images"},
				"object": map[string]string{"key": key},
			}},
		},
	})
	return events.SQSMessage{MessageId: id, ReceiptHandle: "rh-" + id, Body: string(body)}
}

func TestHandlerHappyPath(t *testing.T) {
	ocr := &fakeTextract{blocks: []txtypes.Block{
		line("C", 0.8),
		line("A", 0.1),
		line("B", 0.5),
	}}
	queues := &fakeSQS{}
	app := newTestApp(ocr, &fakeObjects{}, queues)

	resp, err := app.handler(context.Background(), events.SQSEvent{
		Records: []events.SQSMessage{uploadMessage("m1", "alice/photo1.jpg")},
	})
	require.NoError(t, err)
	assert.Empty(t, resp.BatchItemFailures)

	require.Len(t, queues.sent, 1)
	var res models.ExtractionResult
	require.NoError(t, json.Unmarshal([]byte(queues.sent[0]), &res))
	assert.Equal(t, "alice", res.UserName)
	assert.Equal(t, "images", res.Bucket)
	assert.Equal(t, "alice/photo1.jpg", res.Key)
	assert.Equal(t, "A B C", res.Text)
	assert.False(t, bool(res.IsError))

	assert.Equal(t, []string{"rh-m1"}, queues.deleted, "source message acked after enqueue")
}

func TestHandlerNoTextDetected(t *testing.T) {
	queues := &fakeSQS{}
	app := newTestApp(&fakeTextract{}, &fakeObjects{}, queues)

	resp, err := app.handler(context.Background(), events.SQSEvent{
		Records: []events.SQSMessage{uploadMessage("m1", "alice/blank.png")},
	})
	require.NoError(t, err)
	assert.Empty(t, resp.BatchItemFailures)

	require.Len(t, queues.sent, 1)
	var res models.ExtractionResult
	require.NoError(t, json.Unmarshal([]byte(queues.sent[0]), &res))
	assert.Equal(t, extract.NoTextMarker, res.Text)
	assert.True(t, bool(res.IsError))
}

func TestHandlerSkipsNonImage(t *testing.T) {
	ocr := &fakeTextract{}
	queues := &fakeSQS{}
	app := newTestApp(ocr, &fakeObjects{}, queues)

	resp, err := app.handler(context.Background(), events.SQSEvent{
		Records: []events.SQSMessage{uploadMessage("m1", "alice/readme.txt")},
	})
	require.NoError(t, err)
	assert.Empty(t, resp.BatchItemFailures)

	assert.Empty(t, queues.sent, "non-image yields no result message")
	assert.Equal(t, 0, ocr.calls, "OCR never invoked")
	assert.Equal(t, []string{"rh-m1"}, queues.deleted, "skipped message still acked")
}

func TestHandlerRejectsKeyWithoutOwnerBeforeOCR(t *testing.T) {
	ocr := &fakeTextract{}
	queues := &fakeSQS{}
	app := newTestApp(ocr, &fakeObjects{}, queues)

	resp, err := app.handler(context.Background(), events.SQSEvent{
		Records: []events.SQSMessage{uploadMessage("m1", "orphan.jpg")},
	})
	require.NoError(t, err)
	assert.Empty(t, resp.BatchItemFailures)
	assert.Empty(t, queues.sent)
	assert.Equal(t, 0, ocr.calls)
}

func TestHandlerSkipsDeletedObject(t *testing.T) {
	ocr := &fakeTextract{}
	queues := &fakeSQS{}
	app := newTestApp(ocr, &fakeObjects{missing: true}, queues)

	resp, err := app.handler(context.Background(), events.SQSEvent{
		Records: []events.SQSMessage{uploadMessage("m1", "alice/gone.jpg")},
	})
	require.NoError(t, err)
	assert.Empty(t, resp.BatchItemFailures)
	assert.Empty(t, queues.sent)
	assert.Equal(t, 0, ocr.calls)
	assert.Equal(t, []string{"rh-m1"}, queues.deleted)
}

func TestHandlerDropsUnparseableBody(t *testing.T) {
	queues := &fakeSQS{}
	app := newTestApp(&fakeTextract{}, &fakeObjects{}, queues)

	resp, err := app.handler(context.Background(), events.SQSEvent{
		Records: []events.SQSMessage{{MessageId: "m1", ReceiptHandle: "rh-m1", Body: "not json"}},
	})
	require.NoError(t, err)
	assert.Empty(t, resp.BatchItemFailures)
	assert.Equal(t, []string{"rh-m1"}, queues.deleted)
}

func TestHandlerReportsOCRFailure(t *testing.T) {
	queues := &fakeSQS{}
	app := newTestApp(&fakeTextract{err: errors.New("throttled")}, &fakeObjects{}, queues)

	resp, err := app.handler(context.Background(), events.SQSEvent{
		Records: []events.SQSMessage{uploadMessage("m1", "alice/photo1.jpg")},
	})
	require.NoError(t, err)
	require.Len(t, resp.BatchItemFailures, 1)
	assert.Equal(t, "m1", resp.BatchItemFailures[0].ItemIdentifier)
	assert.Empty(t, queues.deleted, "failed message left for redelivery")
}

func TestHandlerReportsEnqueueFailure(t *testing.T) {
	queues := &fakeSQS{sendErr: errors.New("queue unavailable")}
	app := newTestApp(&fakeTextract{blocks: []txtypes.Block{line("hi", 0.1)}}, &fakeObjects{}, queues)

	resp, err := app.handler(context.Background(), events.SQSEvent{
		Records: []events.SQSMessage{uploadMessage("m1", "alice/photo1.jpg")},
	})
	require.NoError(t, err)
	require.Len(t, resp.BatchItemFailures, 1)
	assert.Empty(t, queues.deleted)
}

func TestHandlerFailureIsolatedPerRecord(t *testing.T) {
	// One bad record in the batch must not block its batch mates.
	queues := &fakeSQS{}
	app := newTestApp(&fakeTextract{blocks: []txtypes.Block{line("hi", 0.1)}}, &fakeObjects{}, queues)

	resp, err := app.handler(context.Background(), events.SQSEvent{
		Records: []events.SQSMessage{
			uploadMessage("m1", "alice/photo1.jpg"),
			{MessageId: "m2", ReceiptHandle: "rh-m2", Body: `{"Records":[{"s3":{"bucket":{},"object":{}}}]}`},
			uploadMessage("m3", "bob/photo2.png"),
		},
	})
	require.NoError(t, err)
	assert.Empty(t, resp.BatchItemFailures)
	assert.Len(t, queues.sent, 2)
	assert.ElementsMatch(t, []string{"rh-m1", "rh-m2", "rh-m3"}, queues.deleted)
}

func TestHandlerRedeliveryProducesEqualPayload(t *testing.T) {
	ocr := &fakeTextract{blocks: []txtypes.Block{line("same", 0.3)}}
	queues := &fakeSQS{}
	app := newTestApp(ocr, &fakeObjects{}, queues)

	msg := uploadMessage("m1", "alice/photo1.jpg")
	for range 2 {
		_, err := app.handler(context.Background(), events.SQSEvent{Records: []events.SQSMessage{msg}})
		require.NoError(t, err)
	}

	require.Len(t, queues.sent, 2)
	assert.Equal(t, queues.sent[0], queues.sent[1], "redelivery must not produce a conflicting payload")
}
