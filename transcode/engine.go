package transcode

import (
	"context"
	"fmt"
	"io/fs"
	"math"
	"os"
	"path/filepath"
	"strings"

	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"github.com/Gdheubs/Video-streaming-platform/objectstore"
)

// Result is the artifact set a successful transcode produces.
type Result struct {
	ManifestKey     string
	ThumbnailKey    string
	SpriteKey       string
	DurationSeconds int
}

// Engine converts one source blob into a segmented adaptive-bitrate stream,
// a thumbnail, and a scrub-preview sprite. The whole job fails if any single
// variant fails; nothing partial is ever uploaded.
type Engine struct {
	store  objectstore.Store
	runner Runner
	tmpDir string
	log    *logrus.Logger
}

func NewEngine(store objectstore.Store, runner Runner, tmpDir string, log *logrus.Logger) *Engine {
	if tmpDir == "" {
		tmpDir = os.TempDir()
	}
	return &Engine{store: store, runner: runner, tmpDir: tmpDir, log: log}
}

// Transcode materializes the source, encodes every preset, and uploads the
// artifact set. The working directory is removed whether or not the job
// succeeds.
func (e *Engine) Transcode(ctx context.Context, videoID, sourceKey string, presets []QualityPreset) (*Result, error) {
	if videoID == "" || sourceKey == "" {
		return nil, fmt.Errorf("transcode: missing video id or source key")
	}
	if len(presets) == 0 {
		return nil, fmt.Errorf("transcode: empty preset list")
	}
	for _, p := range presets {
		if err := p.validate(); err != nil {
			return nil, fmt.Errorf("transcode: %w", err)
		}
	}

	workDir := filepath.Join(e.tmpDir, "transcode-"+videoID)
	outputDir := filepath.Join(workDir, "output")
	if err := os.MkdirAll(outputDir, 0755); err != nil {
		return nil, fmt.Errorf("transcode: failed to create working directory: %w", err)
	}
	defer os.RemoveAll(workDir)

	inputPath := filepath.Join(workDir, "original.mp4")
	if err := e.materialize(ctx, sourceKey, inputPath); err != nil {
		return nil, fmt.Errorf("transcode: failed to materialize source: %w", err)
	}

	duration, err := e.runner.ProbeDuration(ctx, inputPath)
	if err != nil {
		return nil, fmt.Errorf("transcode: %w", err)
	}

	thumbnailPath := filepath.Join(workDir, "thumbnail.jpg")
	if err := e.runner.ExtractThumbnail(ctx, inputPath, thumbnailPath, duration*0.10); err != nil {
		return nil, fmt.Errorf("transcode: %w", err)
	}

	spritePath := filepath.Join(workDir, "sprite.jpg")
	if err := e.runner.BuildSprite(ctx, inputPath, spritePath); err != nil {
		return nil, fmt.Errorf("transcode: %w", err)
	}

	// Preset encodes have no ordering dependency; run them in parallel and
	// join on the first error.
	g, gctx := errgroup.WithContext(ctx)
	for _, preset := range presets {
		variantDir := filepath.Join(outputDir, preset.Name)
		if err := os.MkdirAll(variantDir, 0755); err != nil {
			return nil, fmt.Errorf("transcode: failed to create variant directory: %w", err)
		}
		p := preset
		g.Go(func() error {
			e.log.WithFields(logrus.Fields{"video_id": videoID, "preset": p.Name}).Info("encoding variant")
			return e.runner.EncodeVariant(gctx, inputPath, variantDir, p)
		})
	}
	if err := g.Wait(); err != nil {
		return nil, fmt.Errorf("transcode: variant encode failed: %w", err)
	}

	// The master manifest is only written once every variant has joined.
	manifestPath := filepath.Join(outputDir, "master.m3u8")
	if err := os.WriteFile(manifestPath, []byte(masterPlaylist(presets)), 0644); err != nil {
		return nil, fmt.Errorf("transcode: failed to write master manifest: %w", err)
	}

	baseKey := "videos/" + videoID
	if err := e.uploadDir(ctx, outputDir, baseKey); err != nil {
		return nil, fmt.Errorf("transcode: upload failed: %w", err)
	}

	thumbnailKey := "thumbnails/" + videoID + ".jpg"
	if err := e.uploadFile(ctx, thumbnailPath, thumbnailKey, "image/jpeg"); err != nil {
		return nil, fmt.Errorf("transcode: thumbnail upload failed: %w", err)
	}

	spriteKey := "sprites/" + videoID + ".jpg"
	if err := e.uploadFile(ctx, spritePath, spriteKey, "image/jpeg"); err != nil {
		return nil, fmt.Errorf("transcode: sprite upload failed: %w", err)
	}

	return &Result{
		ManifestKey:     baseKey + "/master.m3u8",
		ThumbnailKey:    thumbnailKey,
		SpriteKey:       spriteKey,
		DurationSeconds: int(math.Floor(duration)),
	}, nil
}

// materialize downloads the source blob into the working directory.
func (e *Engine) materialize(ctx context.Context, sourceKey, localPath string) error {
	src, err := e.store.Get(ctx, sourceKey)
	if err != nil {
		return err
	}
	defer src.Close()

	dest, err := os.Create(localPath)
	if err != nil {
		return err
	}
	defer dest.Close()

	if _, err := dest.ReadFrom(src); err != nil {
		return err
	}
	return nil
}

// uploadDir walks the encode output and uploads every file under baseKey,
// preserving relative paths.
func (e *Engine) uploadDir(ctx context.Context, dir, baseKey string) error {
	return filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil || d.IsDir() {
			return err
		}
		rel, err := filepath.Rel(dir, path)
		if err != nil {
			return err
		}
		key := baseKey + "/" + filepath.ToSlash(rel)

		contentType := "video/MP2T"
		if strings.HasSuffix(path, ".m3u8") {
			contentType = "application/x-mpegURL"
		}
		return e.uploadFile(ctx, path, key, contentType)
	})
}

func (e *Engine) uploadFile(ctx context.Context, path, key, contentType string) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()
	return e.store.Put(ctx, key, f, contentType)
}
