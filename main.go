package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"golang.org/x/sync/errgroup"

	"shorts-site/analysis"
	"shorts-site/cache"
	"shorts-site/config"
	"shorts-site/database"
	"shorts-site/events"
	"shorts-site/ffmpeg"
	"shorts-site/handlers"
	"shorts-site/jobs"
	"shorts-site/publish"
	"shorts-site/queue"
	"shorts-site/render"
	"shorts-site/storage"
	"shorts-site/subtitles"
	"shorts-site/titles"
	"shorts-site/worker"
	"shorts-site/ytdlp"
)

// loadDotEnv reads .env when present. Variables already set win.
func loadDotEnv() {
	err := godotenv.Load()
	if err != nil && !errors.Is(err, os.ErrNotExist) {
		fmt.Fprintln(os.Stderr, "load .env:", err)
	}
}

func main() {
	loadDotEnv()

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	initLogger(cfg.LogLevel)

	log.Infof("GitSHA: %s", config.GetGitSHA())
	log.Infof("BuildDate: %s", config.GetBuildDate())

	if err := run(cfg); err != nil {
		log.Fatalln(err)
	}
}

func run(cfg *config.Config) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Initialize database
	db, err := database.Open(filepath.Join(cfg.ConfigDir, "shorts.db"))
	if err != nil {
		return err
	}
	defer database.Close(db)

	jobStore := jobs.NewStore(db, component("jobs"))
	if err := jobStore.Migrate(); err != nil {
		return fmt.Errorf("migrate jobs: %w", err)
	}
	if _, err := jobStore.RequeueStale(ctx); err != nil {
		return fmt.Errorf("requeue stale jobs: %w", err)
	}

	ff := ffmpeg.New(component("ffmpeg"))
	yt := ytdlp.New(component("ytdlp"))

	analysisCfg := analysis.DefaultConfig()
	analysisCfg.SceneThreshold = cfg.SceneThreshold
	engine := analysis.NewEngine(analysisCfg, ff, ff, component("analysis"))

	renderCfg := render.DefaultConfig()
	renderCfg.FontFile = cfg.FontFile
	renderer := render.New(renderCfg, render.NewGoffmpegTranscoder(component("transcode")), component("render"))

	filesDir := filepath.Join(cfg.DataDir, "media")
	local := storage.NewLocalFS(filesDir, cfg.BaseURL, component("storage"))
	var files storage.Storage = local
	if cfg.Storage.Backend == "s3" {
		s3, err := storage.NewS3(ctx, storage.S3Options{
			Endpoint:  cfg.Storage.Endpoint,
			AccessKey: cfg.Storage.AccessKey,
			SecretKey: cfg.Storage.SecretKey,
			Bucket:    cfg.Storage.Bucket,
			UseSSL:    cfg.Storage.UseSSL,
			PublicURL: cfg.Storage.PublicURL,
		}, local, component("s3"))
		if err != nil {
			return err
		}
		files = s3
	}

	broker := events.NewBroker(component("events"))
	publishers := events.Multi{broker}
	if cfg.AMQPURL != "" {
		amqpPub, err := events.NewAMQPPublisher(cfg.AMQPURL, cfg.AMQPExchange, component("amqp"))
		if err != nil {
			return err
		}
		defer amqpPub.Close()
		publishers = append(publishers, amqpPub)
	}

	gen := titles.New(cfg.OpenAIAPIKey, cfg.OpenAIModel, cfg.OpenAIBaseURL, component("titles"))
	whisper := subtitles.NewWhisper(cfg.WhisperBin, cfg.WhisperModel, component("whisper"))
	q := queue.New(jobStore, component("queue"))

	deps := worker.Deps{
		Store:      jobStore,
		Queue:      q,
		Downloader: yt,
		Analyzer:   engine,
		Renderer:   renderer,
		Storage:    files,
		Events:     publishers,
	}
	if whisper.Enabled() {
		deps.Subtitles = whisper
	} else {
		log.Warnln("no whisper binary configured, subtitles are disabled")
	}
	if gen.Enabled() {
		deps.Titles = gen
	}

	var progress *cache.ProgressCache
	if cfg.RedisAddr != "" {
		progress, err = cache.New(ctx, cfg.RedisAddr, cfg.RedisDB, component("cache"))
		if err != nil {
			return err
		}
		defer progress.Close()
		deps.Cache = progress
	}
	w := worker.New(deps, cfg.PollInterval, component("worker"))

	hdeps := handlers.Deps{
		Jobs:     jobStore,
		Queue:    q,
		Worker:   w,
		Info:     yt,
		Broker:   broker,
		Storage:  files,
		Metadata: gen,
		Tools: map[string]handlers.Versioner{
			"ffmpeg": ff,
			"yt-dlp": yt,
		},
		DataDir:        cfg.DataDir,
		FilesDir:       filesDir,
		DefaultQuality: cfg.Quality,
	}
	if progress != nil {
		hdeps.Progress = progress
	}
	if cfg.Publish.Enabled() {
		sealer, err := publish.NewSealer(cfg.TokenSecret)
		if err != nil {
			return err
		}
		accounts := publish.NewAccountStore(db)
		if err := accounts.Migrate(); err != nil {
			return fmt.Errorf("migrate accounts: %w", err)
		}
		hdeps.Publish = publish.NewService(cfg.Publish, accounts, sealer, component("publish"))
		hdeps.Sessions = handlers.NewSessionStore(cfg.SessionAuthKey, cfg.Secure)
	} else {
		log.Infoln("publishing is not configured")
	}

	// Initialize Echo
	e := echo.New()
	e.HideBanner = true
	e.Use(handlers.RequestLogger(component("http")))
	e.Use(middleware.Recover())
	handlers.New(hdeps, component("handlers")).Register(e)

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		log.Infoln("listening on", cfg.Addr)
		if err := e.Start(cfg.Addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return e.Shutdown(shutdownCtx)
	})
	g.Go(func() error {
		return w.Run(ctx)
	})
	g.Go(func() error {
		return database.PeriodicCleanup(ctx, db, time.Hour, component("database"))
	})
	return g.Wait()
}
