// Package sqsrecv consumes judge requests from an SQS queue and posts the
// aggregate verdict to the response queue named in each request.
package sqsrecv

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/sqs"
	"github.com/google/uuid"

	"github.com/arbiter-oj/arbiter/api"
	"github.com/arbiter-oj/arbiter/internal/judge"
	"github.com/arbiter-oj/arbiter/internal/pool"
)

// Progress builds a per-submission progress gatherer; nil disables
// progress streaming.
type Progress func(submissionID string) judge.ResultGatherer

type Receiver struct {
	sqsClient *sqs.Client
	queueURL  string
	respURL   string // fallback when a request names no response queue
	pool      *pool.Pool
	progress  Progress
	logger    *slog.Logger
}

func New(sqsClient *sqs.Client, queueURL, respURL string, p *pool.Pool, progress Progress, logger *slog.Logger) *Receiver {
	if logger == nil {
		logger = slog.Default()
	}
	return &Receiver{
		sqsClient: sqsClient,
		queueURL:  queueURL,
		respURL:   respURL,
		pool:      p,
		progress:  progress,
		logger:    logger.With("component", "sqsrecv"),
	}
}

// Run polls the request queue until ctx is cancelled. Each message is
// handled on its own goroutine; the worker pool, not the receiver, bounds
// actual judging concurrency.
func (r *Receiver) Run(ctx context.Context) error {
	r.logger.Info("consuming judge requests", "queue", r.queueURL)
	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		out, err := r.sqsClient.ReceiveMessage(ctx, &sqs.ReceiveMessageInput{
			QueueUrl:            aws.String(r.queueURL),
			MaxNumberOfMessages: 10,
			WaitTimeSeconds:     20,
		})
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			r.logger.Error("failed to receive messages", "err", err)
			continue
		}
		for _, msg := range out.Messages {
			go r.handle(ctx, aws.ToString(msg.Body), aws.ToString(msg.ReceiptHandle))
		}
	}
}

func (r *Receiver) handle(ctx context.Context, body, receipt string) {
	var req api.JudgeRequest
	if err := json.Unmarshal([]byte(body), &req); err != nil {
		r.logger.Error("dropping malformed request", "err", err)
		r.deleteMessage(ctx, receipt)
		return
	}

	sub := api.ToSubmission(req)
	if sub.ID == "" {
		// Assign the id here so progress subjects and error responses
		// carry it too, not just the verdict.
		sub.ID = uuid.NewString()
	}
	var gath judge.ResultGatherer
	if r.progress != nil {
		gath = r.progress(sub.ID)
	}

	verdict, err := r.pool.Submit(ctx, sub, gath)

	var resp api.JudgeResponse
	if err != nil {
		resp = api.FromError(sub.ID, err)
	} else {
		resp = api.FromVerdict(verdict)
	}
	if err := r.respond(ctx, req.ResQueueURL, resp); err != nil {
		r.logger.Error("failed to send response", "submission", sub.ID, "err", err)
		// Leave the message in flight; SQS redelivers after the
		// visibility timeout.
		return
	}
	r.deleteMessage(ctx, receipt)
}

func (r *Receiver) respond(ctx context.Context, url string, resp api.JudgeResponse) error {
	if url == "" {
		url = r.respURL
	}
	if url == "" {
		return fmt.Errorf("no response queue configured")
	}
	body, err := json.Marshal(resp)
	if err != nil {
		return fmt.Errorf("failed to marshal response: %w", err)
	}
	_, err = r.sqsClient.SendMessage(ctx, &sqs.SendMessageInput{
		QueueUrl:    aws.String(url),
		MessageBody: aws.String(string(body)),
	})
	if err != nil {
		return fmt.Errorf("failed to send response message: %w", err)
	}
	return nil
}

func (r *Receiver) deleteMessage(ctx context.Context, receipt string) {
	_, err := r.sqsClient.DeleteMessage(ctx, &sqs.DeleteMessageInput{
		QueueUrl:      aws.String(r.queueURL),
		ReceiptHandle: aws.String(receipt),
	})
	if err != nil {
		r.logger.Warn("failed to delete message", "err", err)
	}
}
