// Command judged runs the judging orchestrator: `judged serve` consumes
// submissions from SQS, `judged test` judges local TOML scenario files.
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/sqs"
	"github.com/lmittmann/tint"
	"github.com/nats-io/nats.go"
	"github.com/urfave/cli/v3"
	"golang.org/x/sync/errgroup"

	"github.com/arbiter-oj/arbiter/internal/checker"
	"github.com/arbiter-oj/arbiter/internal/environment"
	"github.com/arbiter-oj/arbiter/internal/gatherer/natsgath"
	"github.com/arbiter-oj/arbiter/internal/gatherer/termgath"
	"github.com/arbiter-oj/arbiter/internal/judge"
	"github.com/arbiter-oj/arbiter/internal/lang"
	"github.com/arbiter-oj/arbiter/internal/pool"
	"github.com/arbiter-oj/arbiter/internal/sandbox"
	"github.com/arbiter-oj/arbiter/internal/scenario"
	"github.com/arbiter-oj/arbiter/internal/sqsrecv"
)

func main() {
	logger := slog.New(tint.NewHandler(os.Stderr, &tint.Options{
		Level:      slog.LevelInfo,
		TimeFormat: time.Kitchen,
	}))
	slog.SetDefault(logger)

	cmd := &cli.Command{
		Name:  "judged",
		Usage: "code judging orchestrator",
		Commands: []*cli.Command{
			{
				Name:   "serve",
				Usage:  "consume judge requests from SQS",
				Action: serve,
			},
			{
				Name:      "test",
				Usage:     "judge a local TOML scenario file",
				ArgsUsage: "<scenario.toml>",
				Action:    runScenarios,
			},
		},
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := cmd.Run(ctx, os.Args); err != nil {
		logger.Error("judged exited", "err", err)
		os.Exit(1)
	}
}

func buildPool(cfg *environment.Config, logger *slog.Logger) (*pool.Pool, error) {
	entries := lang.Defaults()
	if cfg.LanguagesTOML != "" {
		var err error
		entries, err = lang.LoadTOML(cfg.LanguagesTOML)
		if err != nil {
			return nil, err
		}
	}
	reg, err := lang.NewRegistry(entries)
	if err != nil {
		return nil, err
	}

	client := sandbox.NewClient(cfg.SandboxURL, int64(cfg.SandboxParallelism), cfg.SandboxRetries, logger)
	checkers := checker.NewCompiler(client, cfg.TestlibPath, logger)
	pipeline := judge.NewPipeline(reg, client, checker.NewRunner(client), checkers, logger)
	return pool.New(pipeline, cfg.JudgeWorkers, cfg.SubmissionCeiling, logger), nil
}

func serve(ctx context.Context, _ *cli.Command) error {
	logger := slog.Default()
	cfg, err := environment.Read()
	if err != nil {
		return err
	}
	if cfg.ReqQueueURL == "" {
		return fmt.Errorf("REQ_QUEUE_URL is required in serve mode")
	}

	p, err := buildPool(cfg, logger)
	if err != nil {
		return err
	}

	awsCfg, err := awsconfig.LoadDefaultConfig(ctx)
	if err != nil {
		return fmt.Errorf("failed to load AWS config: %w", err)
	}
	sqsClient := sqs.NewFromConfig(awsCfg)

	var progress sqsrecv.Progress
	if cfg.NATSUrl != "" {
		nc, err := nats.Connect(cfg.NATSUrl)
		if err != nil {
			return fmt.Errorf("failed to connect to NATS: %w", err)
		}
		defer nc.Close()
		progress = func(submissionID string) judge.ResultGatherer {
			return natsgath.New(nc, submissionID, logger)
		}
	}

	recv := sqsrecv.New(sqsClient, cfg.ReqQueueURL, cfg.RespQueueURL, p, progress, logger)

	logger.Info("judged starting",
		"workers", cfg.JudgeWorkers,
		"sandbox_parallelism", cfg.SandboxParallelism,
		"sandbox", cfg.SandboxURL)

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		p.Run(ctx)
		return nil
	})
	g.Go(func() error {
		return recv.Run(ctx)
	})
	err = g.Wait()
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

func runScenarios(ctx context.Context, cmd *cli.Command) error {
	logger := slog.Default()
	if cmd.Args().Len() != 1 {
		return fmt.Errorf("usage: judged test <scenario.toml>")
	}

	cfg, err := environment.Read()
	if err != nil {
		return err
	}
	p, err := buildPool(cfg, logger)
	if err != nil {
		return err
	}
	go p.Run(ctx)

	cases, err := scenario.Parse(cmd.Args().First())
	if err != nil {
		return err
	}

	failed := 0
	for _, c := range cases {
		fmt.Printf("### %s\n", c.Name)
		verdict, err := p.Submit(ctx, c.Submission, termgath.New())
		if err != nil {
			logger.Error("scenario failed", "name", c.Name, "err", err)
			failed++
			continue
		}
		if c.ExpectVerdict != "" && string(verdict.Verdict) != c.ExpectVerdict {
			logger.Error("verdict mismatch",
				"name", c.Name, "want", c.ExpectVerdict, "got", verdict.Verdict)
			failed++
		}
		for i, want := range c.ExpectTestVerdicts {
			if i >= len(verdict.Cases) {
				logger.Error("missing test result", "name", c.Name, "test", i+1)
				failed++
				break
			}
			if string(verdict.Cases[i].Verdict) != want {
				logger.Error("test verdict mismatch",
					"name", c.Name, "test", i+1, "want", want, "got", verdict.Cases[i].Verdict)
				failed++
			}
		}
	}
	if failed > 0 {
		return fmt.Errorf("%d scenario expectation(s) failed", failed)
	}
	fmt.Printf("all %d scenario(s) passed\n", len(cases))
	return nil
}
