package cmd

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"sync/atomic"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/JakeFAU/crawlstore/internal/crawl"
	"github.com/JakeFAU/crawlstore/internal/dispatcher"
	"github.com/JakeFAU/crawlstore/internal/queue/memory"
	"github.com/JakeFAU/crawlstore/internal/worker"
)

// maxRecordLine bounds one NDJSON line.
const maxRecordLine = 64 << 20

type ingestSummary struct {
	worker.Summary
	Malformed    int64 `json:"malformed"`
	BytesWritten int64 `json:"bytes_written"`
	Finished     bool  `json:"finished"`
}

func newIngestCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "ingest <file|->",
		Short: "Processes newline-delimited JSON crawl records",
		Long: `Reads one JSON crawl record per line and runs them through the
write-decision processor with ingest.workers concurrent workers. Reading stops
early when processor.max_total_bytes is reached.`,
		Args: cobra.ExactArgs(1),
		RunE: runIngest,
	}
}

func runIngest(cmd *cobra.Command, args []string) error {
	appInstance, err := resolveApp(cmd.Context())
	if err != nil {
		return err
	}

	var in io.Reader = cmd.InOrStdin()
	if args[0] != "-" {
		f, err := os.Open(args[0])
		if err != nil {
			return fmt.Errorf("open records: %w", err)
		}
		defer f.Close()
		in = f
	}

	summary, err := ingest(cmd.Context(), appInstance, in)
	if err != nil {
		return err
	}
	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	if err := enc.Encode(summary); err != nil {
		return fmt.Errorf("write summary: %w", err)
	}
	return nil
}

func ingest(ctx context.Context, appInstance App, in io.Reader) (ingestSummary, error) {
	cfg := appInstance.GetConfig()
	logger := appInstance.GetLogger().Named("ingest")
	proc := appInstance.GetProcessor()

	// finishCtx ends reading once the processor reports the byte ceiling.
	finishCtx, finish := context.WithCancel(ctx)
	defer finish()
	var finished atomic.Bool

	queue := memory.NewQueue(cfg.Ingest.QueueDepth)
	tally := &worker.Tally{}
	workers := make([]*worker.Worker, cfg.Ingest.Workers)
	for i := range workers {
		workers[i] = worker.New(i, queue, proc, tally, func() {
			finished.Store(true)
			finish()
		}, logger)
	}
	dispatch := dispatcher.New(queue, workers)

	var malformed atomic.Int64
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		dispatch.Run(gctx)
		return nil
	})
	g.Go(func() error {
		defer dispatch.Close()
		return readRecords(finishCtx, in, dispatch, &malformed, logger)
	})
	if err := g.Wait(); err != nil {
		return ingestSummary{}, err
	}

	return ingestSummary{
		Summary:      tally.Summary(),
		Malformed:    malformed.Load(),
		BytesWritten: proc.TotalBytesWritten(),
		Finished:     finished.Load(),
	}, nil
}

func readRecords(
	ctx context.Context,
	in io.Reader,
	dispatch *dispatcher.Dispatcher,
	malformed *atomic.Int64,
	logger *zap.Logger,
) error {
	scanner := bufio.NewScanner(in)
	scanner.Buffer(make([]byte, 0, 64*1024), maxRecordLine)
	line := 0
	for scanner.Scan() {
		if ctx.Err() != nil {
			return nil
		}
		line++
		raw := scanner.Bytes()
		if len(raw) == 0 {
			continue
		}
		var rec crawl.Record
		if err := json.Unmarshal(raw, &rec); err != nil || rec.URL == "" {
			malformed.Add(1)
			logger.Warn("skipping malformed record", zap.Int("line", line), zap.Error(err))
			continue
		}
		if err := dispatch.Enqueue(ctx, &rec); err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return err
		}
	}
	if err := scanner.Err(); err != nil {
		return fmt.Errorf("read records: %w", err)
	}
	return nil
}
