package main

import (
	"errors"
	"io"
	"log"
	"net/http"
	"os"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/go-redis/redis/v8"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"

	"github.com/Gdheubs/Video-streaming-platform/access"
	"github.com/Gdheubs/Video-streaming-platform/alert"
	"github.com/Gdheubs/Video-streaming-platform/audit"
	"github.com/Gdheubs/Video-streaming-platform/auth"
	"github.com/Gdheubs/Video-streaming-platform/entitlement"
	"github.com/Gdheubs/Video-streaming-platform/internal/platform"
	"github.com/Gdheubs/Video-streaming-platform/models"
	"github.com/Gdheubs/Video-streaming-platform/moderation"
	"github.com/Gdheubs/Video-streaming-platform/objectstore"
	"github.com/Gdheubs/Video-streaming-platform/tasks"
	"github.com/Gdheubs/Video-streaming-platform/video"
	"github.com/Gdheubs/Video-streaming-platform/videocache"
	"github.com/Gdheubs/Video-streaming-platform/worker"
)

type Server struct {
	DB     *gorm.DB
	Redis  *redis.Client
	Router *gin.Engine
	Log    *logrus.Logger

	Config  *platform.Config
	Blobs   objectstore.Store
	Uploads *objectstore.UploadSigner
	Gateway *access.Gateway

	Videos     *video.Service
	VideoAPI   *video.Handler
	Moderation *moderation.Handler
}

func NewServer() (*Server, error) {
	cfg, err := platform.LoadConfig()
	if err != nil {
		return nil, err
	}

	db := platform.NewDBConnection(cfg)
	rdb := platform.NewRedisClient(cfg)
	logger := platform.NewLogger()

	blobs, err := objectstore.NewLocalStore(cfg.StoragePath)
	if err != nil {
		return nil, err
	}

	var checker entitlement.Checker
	if cfg.StripeSecretKey != "" {
		checker = entitlement.NewStripeChecker(db, cfg.StripeSecretKey)
	} else {
		checker = entitlement.NewDBChecker(db)
	}
	gateway := access.NewGateway(checker, cfg.SigningSecret)

	var textMod moderation.TextModerator = moderation.NopTextModerator{}
	if cfg.OpenAIAPIKey != "" {
		textMod = moderation.NewOpenAIModerator(cfg.OpenAIAPIKey)
	}

	uploads := objectstore.NewUploadSigner(cfg.SigningSecret, objectstore.DefaultUploadTTL)

	repo := video.NewRepository(db)
	users := video.NewUsers(db)
	cache := videocache.New(rdb)
	auditSink := audit.NewGormSink(db)
	coordinator := tasks.NewCoordinator(rdb)
	queue := worker.NewProcessor(rdb, logger)

	service := video.NewService(video.ServiceDeps{
		Store:    repo,
		Users:    users,
		Blobs:    blobs,
		Uploads:  uploads,
		Gateway:  gateway,
		Cache:    cache,
		Counters: cache,
		TextMod:  textMod,
		Audit:    auditSink,
		Queue:    queue,
		Locks:    coordinator,
		Log:      logger,
	})

	modEngine := moderation.NewEngine(
		moderation.NewRemoteClassifier(cfg.ModerationAPIURL),
		repo, users, auditSink,
		alert.NewWebhookNotifier(cfg.SlackWebhookURL, logger),
		logger,
	)

	router := gin.Default()
	router.Use(corsMiddleware())

	server := &Server{
		DB:         db,
		Redis:      rdb,
		Router:     router,
		Log:        logger,
		Config:     cfg,
		Blobs:      blobs,
		Uploads:    uploads,
		Gateway:    gateway,
		Videos:     service,
		VideoAPI:   video.NewHandler(service, logger),
		Moderation: moderation.NewHandler(modEngine, auditSink, logger),
	}

	server.setupRoutes()
	return server, nil
}

func corsMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Writer.Header().Set("Access-Control-Allow-Origin", os.Getenv("FRONTEND_URL"))
		c.Writer.Header().Set("Access-Control-Allow-Credentials", "true")
		c.Writer.Header().Set("Access-Control-Allow-Headers", "Content-Type, Content-Length, Accept-Encoding, Authorization, Range, accept, origin, Cache-Control, X-Requested-With")
		c.Writer.Header().Set("Access-Control-Allow-Methods", "POST, OPTIONS, GET, PUT, DELETE")

		if c.Request.Method == "OPTIONS" {
			c.AbortWithStatus(204)
			return
		}

		c.Next()
	}
}

func (s *Server) setupRoutes() {
	s.Router.GET("/health", func(c *gin.Context) {
		sqlDB, err := s.DB.DB()
		if err != nil || sqlDB.Ping() != nil {
			c.JSON(500, gin.H{"status": "unhealthy"})
			return
		}
		c.JSON(200, gin.H{"status": "healthy", "database": "connected"})
	})

	// Public reads carry identity when present so owners see their own
	// processing videos.
	publicReads := s.Router.Group("", auth.OptionalMiddleware())
	{
		publicReads.GET("/videos", s.VideoAPI.ListPublic)
		publicReads.GET("/videos/:id", s.VideoAPI.GetVideo)
		publicReads.POST("/videos/:id/stream", s.VideoAPI.Stream)
		publicReads.GET("/stream/*path", s.ServeObject)
	}

	// Raw upload target. The token, not the session, authorizes the write.
	s.Router.PUT("/uploads", s.ReceiveUpload)

	protected := s.Router.Group("", auth.Middleware())
	{
		protected.POST("/videos", s.VideoAPI.RequestUpload)
		protected.POST("/videos/:id/confirm", s.VideoAPI.ConfirmUpload)
		protected.POST("/videos/:id/like", s.VideoAPI.Like)
		protected.DELETE("/videos/:id", s.VideoAPI.DeleteVideo)
	}

	admin := s.Router.Group("/admin", auth.Middleware(), auth.RequireAdmin())
	{
		admin.GET("/moderation/queue", s.Moderation.PendingQueue)
		admin.POST("/moderation/:id/approve", s.Moderation.Approve)
		admin.POST("/moderation/:id/reject", s.Moderation.Reject)
		admin.GET("/audit", s.Moderation.AuditTrail)
		admin.POST("/users/:id/ban", s.VideoAPI.BanCreator)
	}
}

// ReceiveUpload writes the original into the object store under the key the
// upload token was minted for.
func (s *Server) ReceiveUpload(c *gin.Context) {
	token := c.Query("token")
	if token == "" {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Upload token required"})
		return
	}

	key, err := s.Uploads.Verify(token)
	if err != nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Invalid or expired upload token"})
		return
	}

	contentType := c.GetHeader("Content-Type")
	if contentType == "" {
		contentType = "application/octet-stream"
	}

	if err := s.Blobs.Put(c.Request.Context(), key, c.Request.Body, contentType); err != nil {
		s.Log.WithError(err).Error("upload write failed")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Upload failed"})
		return
	}

	c.JSON(http.StatusCreated, gin.H{"key": key})
}

// ServeObject serves stream artifacts with byte-range support. Segments of
// gated videos require the stream credential minted at authorization time;
// everything non-servable is a uniform 404.
func (s *Server) ServeObject(c *gin.Context) {
	key := strings.TrimPrefix(c.Param("path"), "/")

	switch {
	case strings.HasPrefix(key, "videos/"):
		videoID := strings.SplitN(strings.TrimPrefix(key, "videos/"), "/", 2)[0]
		if !s.authorizeSegment(c, videoID, key) {
			return
		}
	case strings.HasPrefix(key, "thumbnails/"), strings.HasPrefix(key, "sprites/"):
		// Preview artifacts are not gated.
	default:
		c.JSON(http.StatusNotFound, gin.H{"error": "Not found"})
		return
	}

	s.serveRanged(c, key)
}

// authorizeSegment decides whether this request may read a segment of the
// given video. Public servable videos are open; gated ones need a valid
// credential covering the path.
func (s *Server) authorizeSegment(c *gin.Context, videoID, key string) bool {
	details, err := s.Videos.Get(c.Request.Context(), videoID, "", false)
	if err != nil || !details.Video.Servable() {
		c.JSON(http.StatusNotFound, gin.H{"error": "Not found"})
		return false
	}

	if details.Video.Visibility == models.VisibilityPublic {
		return true
	}

	token := c.Query("token")
	if token == "" {
		token, _ = c.Cookie("stream_token")
	}
	if token == "" {
		c.JSON(http.StatusForbidden, gin.H{"error": "Stream credential required"})
		return false
	}
	if _, err := s.Gateway.VerifyCredential(token, key); err != nil {
		c.JSON(http.StatusForbidden, gin.H{"error": "Invalid stream credential"})
		return false
	}
	return true
}

func (s *Server) serveRanged(c *gin.Context, key string) {
	start, end, ranged, ok := parseRangeHeader(c.GetHeader("Range"))
	if !ok {
		c.Status(http.StatusRequestedRangeNotSatisfiable)
		return
	}

	var (
		reader io.ReadCloser
		br     objectstore.ByteRange
		err    error
	)
	if ranged {
		reader, br, err = s.Blobs.GetRange(c.Request.Context(), key, start, end)
	} else {
		reader, br, err = s.Blobs.GetRange(c.Request.Context(), key, 0, objectstore.OpenEnded)
	}
	if err != nil {
		switch {
		case errors.Is(err, objectstore.ErrNotFound):
			c.JSON(http.StatusNotFound, gin.H{"error": "Not found"})
		case errors.Is(err, objectstore.ErrInvalidRange):
			if size, sizeErr := s.Blobs.HeadSize(c.Request.Context(), key); sizeErr == nil {
				c.Header("Content-Range", "bytes */"+strconv.FormatInt(size, 10))
			}
			c.Status(http.StatusRequestedRangeNotSatisfiable)
		default:
			s.Log.WithError(err).WithField("key", key).Error("object read failed")
			c.Status(http.StatusInternalServerError)
		}
		return
	}
	defer reader.Close()

	c.Header("Accept-Ranges", "bytes")
	c.Header("Content-Type", contentTypeFor(key))
	c.Header("Content-Length", strconv.FormatInt(br.Length(), 10))

	status := http.StatusOK
	if ranged {
		status = http.StatusPartialContent
		c.Header("Content-Range", br.ContentRange())
	}
	c.Status(status)
	io.Copy(c.Writer, reader)
}

// parseRangeHeader handles the single-range form "bytes=a-b". Multipart
// ranges are not supported; players never send them.
func parseRangeHeader(header string) (start, end int64, ranged, ok bool) {
	if header == "" {
		return 0, 0, false, true
	}
	if !strings.HasPrefix(header, "bytes=") {
		return 0, 0, false, false
	}
	spec := strings.TrimPrefix(header, "bytes=")
	if strings.Contains(spec, ",") {
		return 0, 0, false, false
	}

	parts := strings.SplitN(spec, "-", 2)
	if len(parts) != 2 || parts[0] == "" {
		return 0, 0, false, false
	}

	start, err := strconv.ParseInt(parts[0], 10, 64)
	if err != nil || start < 0 {
		return 0, 0, false, false
	}

	end = objectstore.OpenEnded
	if parts[1] != "" {
		end, err = strconv.ParseInt(parts[1], 10, 64)
		if err != nil || end < start {
			return 0, 0, false, false
		}
	}
	return start, end, true, true
}

func contentTypeFor(key string) string {
	switch {
	case strings.HasSuffix(key, ".m3u8"):
		return "application/x-mpegURL"
	case strings.HasSuffix(key, ".ts"):
		return "video/MP2T"
	case strings.HasSuffix(key, ".jpg"), strings.HasSuffix(key, ".jpeg"):
		return "image/jpeg"
	default:
		return "application/octet-stream"
	}
}

func (s *Server) Run() error {
	log.Printf("Server starting on port %s", s.Config.Port)
	return s.Router.Run(":" + s.Config.Port)
}

func main() {
	server, err := NewServer()
	if err != nil {
		log.Fatal("Failed to create server:", err)
	}

	if err := server.Run(); err != nil {
		log.Fatal("Failed to run server:", err)
	}
}
