package http

import (
	"context"
	"errors"
	"fmt"
	stdhttp "net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	firebasesdk "firebase.google.com/go/v4"
	"github.com/sirupsen/logrus"

	"socialsync/internal/cache"
	"socialsync/internal/config"
	"socialsync/internal/database"
	"socialsync/internal/firebase"
	"socialsync/internal/handler"
	"socialsync/internal/logging"
	"socialsync/internal/queue"
	"socialsync/internal/redis"
	"socialsync/internal/repository"
	"socialsync/internal/service"
	"socialsync/internal/store"
	"socialsync/internal/store/pgstore"
	"socialsync/internal/store/redisbus"
	"socialsync/internal/store/rtdb"
	"socialsync/internal/transport/http/middleware"
	"socialsync/internal/worker"
)

const shutdownTimeout = 15 * time.Second

// closer releases one resource at shutdown.
type closer func()

func Run() error {
	// 1. Load Configuration
	cfg, err := config.LoadConfig()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}
	logging.Init(cfg.LogLevel, cfg.LogFormat)
	log := logging.For("Server")

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var closers []closer
	defer func() {
		for i := len(closers) - 1; i >= 0; i-- {
			closers[i]()
		}
	}()

	// 2. Shared clients
	var app *firebasesdk.App
	if cfg.NeedsFirebase() {
		app, err = firebase.NewApp(ctx, cfg)
		if err != nil {
			return err
		}
	}

	var rdb *redis.Client
	if cfg.RedisURL != "" {
		rdb, err = redis.NewClient(cfg.RedisURL)
		if err != nil {
			return err
		}
		if err := rdb.Ping(ctx); err != nil {
			return err
		}
		closers = append(closers, func() { _ = rdb.Close() })
		log.Info("Connected to Redis")
	}

	// 3. Document store and change bus
	base, dbClose, err := openStore(ctx, cfg, app)
	if err != nil {
		return err
	}
	if dbClose != nil {
		closers = append(closers, dbClose)
	}

	var bus store.Bus = store.NewLocalBus()
	if cfg.BusBackend == config.BusRedis {
		bus = redisbus.New(rdb.Client)
	}
	st := store.NewWatched(base, bus)
	log.WithFields(logrus.Fields{"store": cfg.StoreBackend, "bus": cfg.BusBackend}).Info("Store ready")

	// 4. Repositories
	userRepo := repository.NewUserRepository(st)
	credRepo := repository.NewCredentialRepository(st)
	tokenRepo := repository.NewRefreshTokenRepository(st)
	postRepo := repository.NewPostRepository(st)
	commentRepo := repository.NewCommentRepository(st)
	notifRepo := repository.NewNotificationRepository(st)
	deviceRepo := repository.NewDeviceTokenRepository(st)
	msgRepo := repository.NewMessageRepository(st)
	friendRepo := repository.NewFriendRepository(st)

	// 5. Optional collaborators. Interfaces stay nil when a feature is off.
	var publisher queue.Publisher
	var timeline cache.TimelineCache
	if rdb != nil {
		publisher = queue.NewPublisher(rdb.Client)
		timeline = cache.NewTimelineCache(rdb.Client)
	} else {
		log.Warn("REDIS_URL not set: feed fan-out and push delivery are disabled")
	}

	pusher, err := newPushSender(ctx, cfg, app)
	if err != nil {
		return err
	}

	var media *service.MediaService
	var voice service.VoiceUploader
	if cfg.HasMediaStorage() {
		media, err = service.NewMediaService(ctx, cfg)
		if err != nil {
			return err
		}
		voice = media
	} else {
		log.Warn("R2 credentials not set: uploads are disabled")
	}

	verifier, err := newVerifier(ctx, cfg, app)
	if err != nil {
		return err
	}

	// 6. Services
	notifService := service.NewNotificationService(notifRepo, deviceRepo, postRepo, publisher, pusher, cfg.NotificationDeleteMode)
	userService := service.NewUserService(userRepo, credRepo)
	authService := service.NewAuthService(tokenRepo, cfg)
	postService := service.NewPostService(postRepo, notifService, publisher)
	reactionService := service.NewReactionService(postRepo, notifService)
	commentService := service.NewCommentService(commentRepo, postRepo, notifService)
	friendService := service.NewFriendService(friendRepo, userRepo, notifService, publisher)
	feedService := service.NewFeedService(timeline, postRepo, friendRepo)
	chatService := service.NewChatService(msgRepo, userRepo, st, voice, publisher)

	// 7. Workers
	if rdb != nil {
		var deliverer worker.PushDeliverer
		if pusher != nil {
			deliverer = notifService
		}
		manager := worker.NewManager(
			queue.NewConsumer(rdb.Client),
			worker.NewHandler(timeline, friendRepo, postRepo, deliverer),
			worker.ManagerConfig{WorkerCount: cfg.WorkerCount},
		)
		if err := manager.Start(ctx); err != nil {
			return fmt.Errorf("failed to start workers: %w", err)
		}
		closers = append(closers, manager.Stop)
	}

	// 8. HTTP
	routerCfg := RouterConfig{
		UserHandler:         handler.NewUserHandler(userService, media),
		FriendHandler:       handler.NewFriendHandler(friendService),
		FeedHandler:         handler.NewFeedHandler(feedService),
		PostHandler:         handler.NewPostHandler(postService, reactionService),
		CommentHandler:      handler.NewCommentHandler(commentService),
		MediaHandler:        handler.NewMediaHandler(media),
		ChatHandler:         handler.NewChatHandler(chatService),
		NotificationHandler: handler.NewNotificationHandler(notifService),
		StreamHandler:       handler.NewStreamHandler(chatService, st),
		Verifier:            verifier,
		LimiterPool:         middleware.NewLimiterPool(cfg.RateLimitRPS, cfg.RateLimitBurst),
	}
	if cfg.IdentityProvider == config.IdentityJWT {
		routerCfg.AuthHandler = handler.NewAuthHandler(userService, authService)
	}

	srv := &stdhttp.Server{
		Addr:              ":" + cfg.ServerPort,
		Handler:           NewRouter(routerCfg),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		log.WithField("addr", srv.Addr).Info("Starting server")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, stdhttp.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	log.Info("Shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	return nil
}

// openStore opens the configured backing store. The returned closer is nil
// when there is nothing to release.
func openStore(ctx context.Context, cfg *config.Config, app *firebasesdk.App) (store.Store, closer, error) {
	switch cfg.StoreBackend {
	case config.StorePostgres:
		db, err := database.Connect(cfg)
		if err != nil {
			return nil, nil, err
		}
		if err := database.Migrate(db); err != nil {
			_ = db.Close()
			return nil, nil, err
		}
		return pgstore.New(db), func() { _ = db.Close() }, nil
	case config.StoreFirebase:
		s, err := rtdb.Open(ctx, app, cfg.FirebaseDatabaseURL)
		if err != nil {
			return nil, nil, err
		}
		return s, nil, nil
	default:
		logging.For("Server").Warn("Using in-memory store: data is lost on restart")
		return store.NewMemory(), nil, nil
	}
}

func newPushSender(ctx context.Context, cfg *config.Config, app *firebasesdk.App) (service.PushSender, error) {
	switch cfg.PushProvider {
	case config.PushExpo:
		return service.NewExpoPushClient(""), nil
	case config.PushFCM:
		c, err := service.NewFCMClient(ctx, app)
		if err != nil {
			return nil, err
		}
		return c, nil
	default:
		return nil, nil
	}
}

func newVerifier(ctx context.Context, cfg *config.Config, app *firebasesdk.App) (middleware.Verifier, error) {
	if cfg.IdentityProvider == config.IdentityFirebase {
		v, err := service.NewFirebaseVerifier(ctx, app)
		if err != nil {
			return nil, err
		}
		return v, nil
	}
	return service.NewJWTVerifier(cfg.JWTSecret), nil
}
