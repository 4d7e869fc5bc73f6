package storage

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"
)

// CopyFn inserts rows (aligned to columns) and returns how many the backend
// reported as written. Repository.CopyFrom satisfies it.
type CopyFn func(ctx context.Context, columns []string, rows [][]any) (int64, error)

// LoadBatches drains rows from in, groups them into batches of batchSize and
// calls copyFn for each non-empty batch. It returns the rows reported by
// copyFn and the first error. A progress line is logged per flushed batch.
func LoadBatches(
	ctx context.Context,
	columns []string,
	in <-chan []any,
	batchSize int,
	copyFn CopyFn,
) (int64, error) {
	if batchSize <= 0 {
		return 0, fmt.Errorf("loader: batch size must be > 0")
	}
	if copyFn == nil {
		return 0, fmt.Errorf("loader: copy function must not be nil")
	}

	log := zap.S().Named("loader")
	var (
		total       int64
		batches     int64
		batch       = make([][]any, 0, batchSize)
		start       = time.Now()
		lastFlushTS = start
		lastTotal   int64
	)

	flush := func() error {
		if len(batch) == 0 {
			return nil
		}
		n, err := copyFn(ctx, columns, batch)
		total += n

		batch = batch[:0]

		if err != nil {
			log.Errorw("batch failed", "batch", batches+1, "inserted", n, "total", total, "error", err)

			return err
		}

		batches++
		now := time.Now()
		sinceLast := now.Sub(lastFlushTS)
		insertedSinceLast := total - lastTotal
		rps := float64(0)
		if sinceLast > 0 {
			rps = float64(insertedSinceLast) / sinceLast.Seconds()
		}
		log.Infow("batch flushed",
			"batch", batches,
			"rps", int64(rps),
			"inserted", n,
			"total", total,
			"elapsed", now.Sub(start).Truncate(time.Millisecond),
			"since_last", sinceLast.Truncate(time.Millisecond),
		)
		lastFlushTS = now
		lastTotal = total

		return nil
	}

	for {
		select {
		case <-ctx.Done():
			return total, ctx.Err()

		case row, ok := <-in:
			if !ok {
				if err := flush(); err != nil {
					return total, err
				}
				log.Debugw("input closed", "batches", batches, "total", total)

				return total, nil
			}
			batch = append(batch, row)
			if len(batch) >= batchSize {
				if err := flush(); err != nil {
					return total, err
				}
			}
		}
	}
}
