package sheetreader

import (
	"context"
	"log/slog"
	"sort"
	"sync"

	"omraudit/internal/domain"
	"omraudit/internal/logging"
	"omraudit/internal/ports"
)

// Processor reads the answers off one scanned sheet.
type Processor interface {
	Read(ctx context.Context, job ports.SheetJob) (ports.SheetRead, error)
}

// Result is the outcome of one job. Audit is set when the sheet was flagged
// for review; Err when it could not be read.
type Result struct {
	Job   ports.SheetJob
	Read  ports.SheetRead
	Audit *domain.AuditDetail
	Err   error

	seq int
}

// Drain claims every queued job of batchID and processes them on a pool of
// workers. It returns once the queue is empty, with results in claim order.
func Drain(ctx context.Context, repo ports.JobRepository, processor Processor, batchID string, workers int, log *slog.Logger) []Result {
	if log == nil {
		log = logging.Discard()
	}
	workers = max(workers, 1)

	type claimed struct {
		job ports.SheetJob
		seq int
	}
	jobsCh := make(chan claimed, workers)

	// dispatcher
	go func() {
		defer close(jobsCh)
		for seq := 0; ; seq++ {
			job, found, err := repo.ClaimNext(ctx, batchID)
			if err != nil {
				log.Error("job claim failed", "batch", batchID, "err", err)
				return
			}
			if !found {
				return
			}
			select {
			case jobsCh <- claimed{job: job, seq: seq}:
			case <-ctx.Done():
				_ = repo.MarkFailed(context.WithoutCancel(ctx), job.ID, ctx.Err().Error())
				return
			}
		}
	}()

	var (
		mu      sync.Mutex
		results []Result
		wg      sync.WaitGroup
	)
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func(idx int) {
			defer wg.Done()
			for c := range jobsCh {
				res := process(ctx, repo, processor, c.job, log.With("worker", idx))
				res.seq = c.seq
				mu.Lock()
				results = append(results, res)
				mu.Unlock()
			}
		}(i)
	}
	wg.Wait()

	sort.Slice(results, func(i, j int) bool { return results[i].seq < results[j].seq })
	return results
}

func process(ctx context.Context, repo ports.JobRepository, processor Processor, job ports.SheetJob, log *slog.Logger) Result {
	res := Result{Job: job}
	read, err := processor.Read(ctx, job)
	if err != nil {
		res.Err = err
		if mErr := repo.MarkFailed(ctx, job.ID, err.Error()); mErr != nil {
			log.Error("mark failed", "job", job.ID, "err", mErr)
		}
		log.Warn("sheet not read", "job", job.ID, "file", job.Filename, "err", err)
		return res
	}
	res.Read = read
	audit, err := repo.MarkCompleted(ctx, job.ID, read)
	if err != nil {
		res.Err = err
		log.Error("complete failed", "job", job.ID, "err", err)
		return res
	}
	res.Audit = audit
	return res
}
