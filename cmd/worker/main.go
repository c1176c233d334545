package main

import (
	"context"
	"log"
	"os/signal"
	"syscall"

	"github.com/Gdheubs/Video-streaming-platform/alert"
	"github.com/Gdheubs/Video-streaming-platform/audit"
	"github.com/Gdheubs/Video-streaming-platform/internal/platform"
	"github.com/Gdheubs/Video-streaming-platform/moderation"
	"github.com/Gdheubs/Video-streaming-platform/objectstore"
	"github.com/Gdheubs/Video-streaming-platform/tasks"
	"github.com/Gdheubs/Video-streaming-platform/transcode"
	"github.com/Gdheubs/Video-streaming-platform/video"
	"github.com/Gdheubs/Video-streaming-platform/videocache"
	"github.com/Gdheubs/Video-streaming-platform/worker"
)

func main() {
	cfg, err := platform.LoadConfig()
	if err != nil {
		log.Fatal("Failed to load config:", err)
	}

	db := platform.NewDBConnection(cfg)
	rdb := platform.NewRedisClient(cfg)
	logger := platform.NewLogger()

	blobs, err := objectstore.NewLocalStore(cfg.StoragePath)
	if err != nil {
		log.Fatal("Failed to open object store:", err)
	}

	repo := video.NewRepository(db)
	users := video.NewUsers(db)
	cache := videocache.New(rdb)
	coordinator := tasks.NewCoordinator(rdb)

	transcoder := transcode.NewEngine(blobs, transcode.FFmpegRunner{}, cfg.TranscodeTmpDir, logger)

	moderator := moderation.NewEngine(
		moderation.NewRemoteClassifier(cfg.ModerationAPIURL),
		repo, users,
		audit.NewGormSink(db),
		alert.NewWebhookNotifier(cfg.SlackWebhookURL, logger),
		logger,
	)

	processor := worker.NewProcessor(rdb, logger)
	pipeline := &worker.Pipeline{
		Videos:     repo,
		Transcoder: transcoder,
		Moderator:  moderator,
		Blobs:      blobs,
		Cache:      cache,
		Locks:      coordinator,
		Queue:      processor,
		Log:        logger,
	}

	processor.Register(tasks.QueueVideoTranscode, pipeline.HandleTranscode)
	processor.Register(tasks.QueueVideoModeration, pipeline.HandleModeration)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	processor.Listen(ctx, tasks.QueueVideoTranscode, tasks.QueueVideoModeration)
}
