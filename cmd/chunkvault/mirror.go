package main

import (
	"context"
	"log"

	"voxelvault.ai/internal/config"
	"voxelvault.ai/internal/persistence/archive"
	"voxelvault.ai/internal/persistence/journal"
	"voxelvault.ai/internal/persistence/r2s3"
)

// mirrorBackup uploads a finished backup directory when mirroring is configured.
// It returns (0, nil) when mirroring is off.
func mirrorBackup(ctx context.Context, cfg config.MirrorConfig, dir string, logger *log.Logger, j *journal.Journal) (int, error) {
	if !cfg.Enabled {
		return 0, nil
	}
	client, err := r2s3.New(cfg.Endpoint, cfg.Bucket, cfg.Region, cfg.AccessKeyID, cfg.SecretAccessKey)
	if err != nil {
		return 0, err
	}
	m := r2s3.NewMirror(client, cfg.Prefix, cfg.Workers, logger)
	n, err := m.Upload(ctx, dir, archive.MetaFile)
	if jerr := j.Mirror(dir, n, err); jerr != nil {
		logger.Printf("journal mirror: %v", jerr)
	}
	st := m.Stats()
	logger.Printf("mirror %s: objects=%d bytes=%d retries=%d failed=%d", dir, n, st.BytesTotal, st.RetryTotal, st.UploadFailTotal)
	return n, err
}
