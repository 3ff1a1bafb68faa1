package ingest

import (
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/google/uuid"
)

// historyStampLayout names timestamped history copies so they sort
// chronologically.
const historyStampLayout = "20060102_150405"

// copyProcessed places a copy of the workbook under the dataset's processed
// directory: a rolling "latest" copy, plus a timestamped history copy when
// history retention is enabled.
func (o *Orchestrator) copyProcessed(localPath, datasetKey string) error {
	destDir := filepath.Join(o.cfg.ProcessedDir, datasetKey)
	if err := os.MkdirAll(destDir, 0o755); err != nil {
		return fmt.Errorf("create processed directory: %w", err)
	}

	ext := filepath.Ext(localPath)
	if err := copyFileAtomic(localPath, filepath.Join(destDir, "latest"+ext)); err != nil {
		return err
	}

	if o.cfg.KeepHistory {
		stamped := o.clock().UTC().Format(historyStampLayout) + ext
		if err := copyFileAtomic(localPath, filepath.Join(destDir, stamped)); err != nil {
			return err
		}
	}
	return nil
}

// copyFileAtomic copies src to dst via a uniquely named scratch file in the
// destination directory, so a concurrent reader of dst never sees a partial
// copy.
func copyFileAtomic(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return fmt.Errorf("open %s: %w", src, err)
	}
	defer in.Close()

	scratch := dst + "." + uuid.NewString() + ".part"
	out, err := os.Create(scratch)
	if err != nil {
		return fmt.Errorf("create %s: %w", scratch, err)
	}

	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		_ = os.Remove(scratch)
		return fmt.Errorf("copy to %s: %w", scratch, err)
	}
	if err := out.Close(); err != nil {
		_ = os.Remove(scratch)
		return fmt.Errorf("close %s: %w", scratch, err)
	}

	if err := os.Rename(scratch, dst); err != nil {
		_ = os.Remove(scratch)
		return fmt.Errorf("replace %s: %w", dst, err)
	}
	return nil
}
