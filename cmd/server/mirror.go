package main

import (
	"context"
	"log"
	"os"
	"strings"
	"time"

	"voxelsculpt.ai/internal/persistence/r2s3"
)

// openMirror enables uploads of finished edit logs when VS_R2_* is set.
// A nil mirror means mirroring is off.
func openMirror(ctx context.Context, dataDir string, logger *log.Logger) (*r2s3.Mirror, error) {
	endpoint := strings.TrimSpace(os.Getenv("VS_R2_ENDPOINT"))
	bucket := strings.TrimSpace(os.Getenv("VS_R2_BUCKET"))
	if endpoint == "" && bucket == "" {
		return nil, nil
	}
	client, err := r2s3.New(ctx, r2s3.Config{
		Endpoint:        endpoint,
		Bucket:          bucket,
		Region:          os.Getenv("VS_R2_REGION"),
		AccessKeyID:     os.Getenv("VS_R2_ACCESS_KEY_ID"),
		SecretAccessKey: os.Getenv("VS_R2_SECRET_ACCESS_KEY"),
	})
	if err != nil {
		return nil, err
	}
	logger.Printf("mirroring edit logs to bucket=%s", bucket)
	return r2s3.NewMirror(client, dataDir, r2s3.MirrorOptions{
		Prefix:        os.Getenv("VS_R2_PREFIX"),
		Workers:       envInt("VS_R2_WORKERS", 1),
		QueueCapacity: envInt("VS_R2_QUEUE", 256),
		EnqueueWait:   25 * time.Millisecond,
		Logger:        logger,
	}), nil
}
