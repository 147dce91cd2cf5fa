package review

import (
	"bytes"
	"context"
	"fmt"
	"path/filepath"

	"github.com/dustin/go-humanize"
)

// ExportFileName is the name the corrected results are saved under.
func ExportFileName(batchID string) string {
	return fmt.Sprintf("corrected_results_%s.csv", filepath.Base(batchID))
}

// Export downloads the corrected results of the active batch and refreshes
// its export metadata. It returns the saved path. A second export while one
// is running is ignored.
func (c *Controller) Export(ctx context.Context) (string, error) {
	c.mu.Lock()
	batch := c.batchID
	if batch == "" {
		c.mu.Unlock()
		c.notify.Error("Nothing to export", ErrNoBatch.Error())
		return "", ErrNoBatch
	}
	if c.exporting {
		c.mu.Unlock()
		return "", ErrBusy
	}
	c.exporting = true
	c.mu.Unlock()
	defer func() {
		c.mu.Lock()
		c.exporting = false
		c.mu.Unlock()
	}()

	blob, err := c.audits.ExportFile(ctx, batch)
	if err != nil {
		c.notify.Error("Export failed", err.Error())
		return "", err
	}
	path, err := c.sink.Save(ctx, ExportFileName(batch), blob.Data)
	if err != nil {
		c.notify.Error("Export failed", err.Error())
		return "", err
	}
	c.refreshMeta(ctx)
	c.notify.Success("CSV exported", fmt.Sprintf("%s (%s)", path, humanize.Bytes(uint64(len(blob.Data)))))
	c.log.Info("batch exported", "batch", batch, "path", path, "rows", bytes.Count(blob.Data, []byte("\n")))
	return path, nil
}

// OpenCleanup starts the cleanup confirmation for the active batch.
func (c *Controller) OpenCleanup() (*CleanupGate, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.batchID == "" {
		c.notify.Error("Nothing to clean", ErrNoBatch.Error())
		return nil, ErrNoBatch
	}
	total := c.listResp.Total
	if total == 0 {
		total = len(c.listResp.Items)
	}
	c.cleanup = newCleanupGate(c.clock, c.batchID, total)
	return c.cleanup, nil
}

func (c *Controller) CancelCleanup() {
	c.mu.Lock()
	c.cleanup = nil
	c.mu.Unlock()
}

// Cleanup returns the open cleanup confirmation, if any.
func (c *Controller) Cleanup() *CleanupGate {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.cleanup
}

// ConfirmCleanup deletes the batch once the gate is ready, then forgets
// the batch and the selection.
func (c *Controller) ConfirmCleanup(ctx context.Context) error {
	c.mu.Lock()
	gate := c.cleanup
	c.mu.Unlock()
	if gate == nil || !gate.Ready() {
		return ErrCleanupNotReady
	}
	resp, err := c.audits.Cleanup(ctx, gate.BatchID)
	if err != nil {
		c.notify.Error("Cleanup failed", err.Error())
		return err
	}
	c.mu.Lock()
	if c.batchID == gate.BatchID {
		c.resetLocked()
	}
	c.cleanup = nil
	c.mu.Unlock()
	c.notify.Success("Batch cleaned", fmt.Sprintf("%s: %d paths removed", resp.BatchID, len(resp.RemovedPaths)))
	return nil
}
