package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"
	"goa.design/clue/health"
	"goa.design/clue/log"
	"golang.org/x/time/rate"

	"github.com/genui/genui/httpapi"
	"github.com/genui/genui/images"
	"github.com/genui/genui/model"
	"github.com/genui/genui/model/anthropic"
	"github.com/genui/genui/model/openai"
	"github.com/genui/genui/session"
	"github.com/genui/genui/stream"
	"github.com/genui/genui/tools"
	"github.com/genui/genui/tools/oxylabs"
	"github.com/genui/genui/tools/yelp"
)

func main() {
	dbgF := flag.Bool("debug", false, "Log request and response bodies")
	flag.Parse()

	// Setup logger.
	format := log.FormatJSON
	if log.IsTerminal() {
		format = log.FormatTerminal
	}
	ctx := log.Context(context.Background(), log.WithFormat(format))
	if *dbgF {
		ctx = log.Context(ctx, log.WithDebug())
		log.Debugf(ctx, "debug logs enabled")
	}

	if err := run(ctx, *dbgF); err != nil {
		log.Fatalf(ctx, err, "exiting")
	}
}

func run(ctx context.Context, dbg bool) error {
	// Load configuration from environment.
	addr := envOr("GENUI_ADDR", ":4000")
	modelName := envOr("GENUI_MODEL", "")
	systemPrompt := envOr("GENUI_SYSTEM_PROMPT", "")
	userPrefix := envOr("GENUI_USER_PREFIX", "")
	maxTokens := envIntOr("GENUI_MAX_TOKENS", 0)
	imageRate := envIntOr("IMAGE_RATE_PER_MINUTE", 30)
	sessionTTL := envDurationOr("SESSION_TTL", session.DefaultTTL)

	// Model clients.
	var anthropicClient, openaiClient model.Client
	if key := os.Getenv("ANTHROPIC_API_KEY"); key != "" {
		ac, err := anthropic.NewFromAPIKey(key, envOr("ANTHROPIC_MODEL", "claude-sonnet-4-20250514"))
		if err != nil {
			return fmt.Errorf("create anthropic client: %w", err)
		}
		anthropicClient = ac
	}
	if key := os.Getenv("OPENAI_API_KEY"); key != "" {
		oc, err := openai.NewFromAPIKey(key, envOr("OPENAI_MODEL", "gpt-4o-mini"))
		if err != nil {
			return fmt.Errorf("create openai client: %w", err)
		}
		openaiClient = oc
	}
	if anthropicClient == nil && openaiClient == nil {
		return errors.New("set ANTHROPIC_API_KEY or OPENAI_API_KEY")
	}

	// Tools.
	var toolList []tools.Tool
	if key := os.Getenv("YELP_API_KEY"); key != "" {
		cache := tools.NewCache(tools.DefaultCacheTTL, tools.DefaultCacheEntries)
		yc, err := yelp.New(yelp.Options{APIKey: key, Cache: cache})
		if err != nil {
			return fmt.Errorf("create yelp tool: %w", err)
		}
		toolList = append(toolList, yc)
	}
	if user, pass := os.Getenv("OXYLABS_USERNAME"), os.Getenv("OXYLABS_PASSWORD"); user != "" && pass != "" {
		oc, err := oxylabs.New(oxylabs.Options{Username: user, Password: pass})
		if err != nil {
			return fmt.Errorf("create oxylabs tool: %w", err)
		}
		toolList = append(toolList, oc)
	}
	var gateway *tools.Gateway
	if len(toolList) > 0 {
		var err error
		gateway, err = tools.NewGateway(toolList...)
		if err != nil {
			return fmt.Errorf("create tool gateway: %w", err)
		}
	}

	// Image generation.
	var generator images.Generator
	if key := os.Getenv("FAL_API_KEY"); key != "" {
		fal, err := images.NewFal(images.FalOptions{APIKey: key})
		if err != nil {
			return fmt.Errorf("create fal generator: %w", err)
		}
		generator = fal
	} else if key := os.Getenv("OPENAI_API_KEY"); key != "" {
		generator = images.NewDalleFromAPIKey(key)
	}
	if generator != nil && imageRate > 0 {
		limiter := rate.NewLimiter(rate.Every(time.Minute/time.Duration(imageRate)), imageRate)
		generator = images.Limit(generator, limiter)
	}
	assets := images.NewStore()
	hub := images.NewHub()

	// Session store: Redis when configured, in-process otherwise.
	var (
		store   session.Store
		pingers []health.Pinger
	)
	if redisURL := os.Getenv("REDIS_URL"); redisURL != "" {
		rdb := redis.NewClient(&redis.Options{
			Addr:     redisURL,
			Password: os.Getenv("REDIS_PASSWORD"),
		})
		defer func() {
			if err := rdb.Close(); err != nil {
				log.Errorf(ctx, err, "close redis")
			}
		}()
		if err := rdb.Ping(ctx).Err(); err != nil {
			return fmt.Errorf("connect to redis: %w", err)
		}
		rs, err := session.NewRedisStore(session.RedisOptions{Redis: rdb, TTL: sessionTTL})
		if err != nil {
			return fmt.Errorf("create session store: %w", err)
		}
		store = rs
		pingers = append(pingers, rs)
	} else {
		store = session.NewMemoryStore()
	}

	ctrl, err := stream.NewController(stream.ControllerOptions{
		Anthropic:  anthropicClient,
		OpenAI:     openaiClient,
		Model:      modelName,
		System:     systemPrompt,
		UserPrefix: userPrefix,
		MaxTokens:  maxTokens,
		Gateway:    gateway,
		Store:      store,
		Generator:  generator,
		Assets:     assets,
		Hub:        hub,
	})
	if err != nil {
		return fmt.Errorf("create controller: %w", err)
	}

	svc, err := httpapi.New(httpapi.Options{
		Controller: ctrl,
		Generator:  generator,
		Assets:     assets,
		Hub:        hub,
		Pingers:    pingers,
	})
	if err != nil {
		return fmt.Errorf("create http service: %w", err)
	}

	srv := &http.Server{
		Addr:              addr,
		Handler:           svc.Handler(ctx, dbg),
		ReadHeaderTimeout: 60 * time.Second,
	}

	errc := make(chan error, 1)
	go func() {
		log.Printf(ctx, "HTTP server listening on %q (model %q)", addr, ctrl.Model())
		errc <- srv.ListenAndServe()
	}()

	// Stop gracefully on SIGINT and SIGTERM.
	sigc := make(chan os.Signal, 1)
	signal.Notify(sigc, syscall.SIGINT, syscall.SIGTERM)
	select {
	case err := <-errc:
		return err
	case sig := <-sigc:
		log.Printf(ctx, "received %s, shutting down", sig)
	}

	sctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := srv.Shutdown(sctx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	return nil
}

// envOr returns the environment variable value or a default.
func envOr(key, defaultVal string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return defaultVal
}

// envIntOr returns the environment variable as int or a default.
func envIntOr(key string, defaultVal int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return defaultVal
}

// envDurationOr returns the environment variable as duration or a default.
func envDurationOr(key string, defaultVal time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return defaultVal
}
