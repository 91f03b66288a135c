// Command wayfind runs the intent routing HTTP server.
//
// The server turns natural-language queries into validated navigation plans
// for a configured site. Routing behavior is driven entirely by the site
// configuration file; the model provider, record backend, and cache backend
// are selected through environment variables.
//
// # Configuration
//
// Flags:
//
//	-config   Site configuration file (YAML). Required.
//	-records  Seed file for the in-memory record backend (JSON). Optional.
//	-addr     HTTP listen address (default ":8080").
//	-debug    Log request details.
//
// Environment variables:
//
//	WAYFIND_PROVIDER        - Model provider: anthropic, openai, bedrock or
//	                          static (default: anthropic)
//	WAYFIND_MODEL           - Model identifier for the selected provider
//	ANTHROPIC_API_KEY       - API key when WAYFIND_PROVIDER=anthropic
//	OPENAI_API_KEY          - API key when WAYFIND_PROVIDER=openai
//	WAYFIND_TPM             - Adaptive rate limit budget in tokens/minute
//	                          (default: 60000)
//	WAYFIND_MONGO_URL       - MongoDB URL for the record backend (optional;
//	                          defaults to the in-memory backend)
//	WAYFIND_MONGO_DATABASE  - MongoDB database name (default: "wayfind")
//	REDIS_URL               - Redis address for the request cache (optional;
//	                          defaults to the in-process cache)
//	REDIS_PASSWORD          - Redis password (optional)
//
// # Example
//
//	ANTHROPIC_API_KEY=... ./wayfind -config site.yaml -records records.json
package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime"
	goredis "github.com/redis/go-redis/v9"
	mongodriver "go.mongodb.org/mongo-driver/v2/mongo"
	mongooptions "go.mongodb.org/mongo-driver/v2/mongo/options"
	"goa.design/clue/health"
	"goa.design/clue/log"

	redisstore "github.com/wayfind-labs/wayfind/features/cache/redis"
	"github.com/wayfind-labs/wayfind/features/predictor/anthropic"
	"github.com/wayfind-labs/wayfind/features/predictor/bedrock"
	"github.com/wayfind-labs/wayfind/features/predictor/openai"
	"github.com/wayfind-labs/wayfind/features/predictor/ratelimit"
	mongorecords "github.com/wayfind-labs/wayfind/features/records/mongo"
	"github.com/wayfind-labs/wayfind/runtime/router/cache"
	"github.com/wayfind-labs/wayfind/runtime/router/predictor"
	"github.com/wayfind-labs/wayfind/runtime/router/records"
	"github.com/wayfind-labs/wayfind/runtime/router/service"
	"github.com/wayfind-labs/wayfind/runtime/router/site"
	"github.com/wayfind-labs/wayfind/runtime/router/telemetry"
)

func main() {
	var (
		configF  = flag.String("config", "", "Site configuration file (YAML)")
		recordsF = flag.String("records", "", "Seed file for the in-memory record backend (JSON)")
		addrF    = flag.String("addr", ":8080", "HTTP listen address")
		dbgF     = flag.Bool("debug", false, "Log request details")
	)
	flag.Parse()

	format := log.FormatJSON
	if log.IsTerminal() {
		format = log.FormatTerminal
	}
	ctx := log.Context(context.Background(), log.WithFormat(format))
	if *dbgF {
		ctx = log.Context(ctx, log.WithDebug())
		log.Debugf(ctx, "debug logs enabled")
	}

	if err := run(ctx, *configF, *recordsF, *addrF); err != nil {
		log.Fatal(ctx, err)
	}
}

func run(ctx context.Context, configPath, recordsPath, addr string) error {
	if configPath == "" {
		return errors.New("-config is required")
	}
	cfg, err := site.LoadFile(configPath)
	if err != nil {
		return fmt.Errorf("load site configuration: %w", err)
	}

	pred, err := buildPredictor(ctx)
	if err != nil {
		return err
	}

	searcher, pingers, cleanup, err := buildSearcher(ctx, cfg, recordsPath)
	if err != nil {
		return err
	}
	defer cleanup()

	store, storePingers, storeCleanup, err := buildRequestStore(ctx)
	if err != nil {
		return err
	}
	defer storeCleanup()
	pingers = append(pingers, storePingers...)

	svc, err := service.New(service.Options{
		Config:       cfg,
		Predictor:    pred,
		Searcher:     searcher,
		RequestStore: store,
		Logger:       telemetry.NewClueLogger(),
		Metrics:      telemetry.NewClueMetrics(),
		Tracer:       telemetry.NewClueTracer(),
	})
	if err != nil {
		return fmt.Errorf("assemble service: %w", err)
	}

	mux := http.NewServeMux()
	mux.HandleFunc("POST /plan", planHandler(svc))
	mux.HandleFunc("GET /routes/validate", validateHandler(svc))
	mux.HandleFunc("GET /stats", statsHandler(svc))
	mux.HandleFunc("POST /cache/clear", clearHandler(svc))
	mux.Handle("GET /healthz", health.Handler(health.NewChecker(pingers...)))

	server := &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
		BaseContext:       func(net.Listener) context.Context { return ctx },
	}

	errc := make(chan error, 1)
	go func() {
		c := make(chan os.Signal, 1)
		signal.Notify(c, syscall.SIGINT, syscall.SIGTERM)
		errc <- fmt.Errorf("signal: %s", <-c)
	}()
	go func() {
		log.Printf(ctx, "listening on %s", addr)
		errc <- server.ListenAndServe()
	}()

	err = <-errc
	log.Printf(ctx, "shutting down: %v", err)

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if serr := server.Shutdown(shutdownCtx); serr != nil {
		log.Errorf(ctx, serr, "server shutdown")
	}
	svc.Flush()
	return nil
}

// buildPredictor selects the model provider from the environment and wraps it
// with the adaptive rate limiter.
func buildPredictor(ctx context.Context) (predictor.Predictor, error) {
	provider := envOr("WAYFIND_PROVIDER", "anthropic")
	model := os.Getenv("WAYFIND_MODEL")

	var (
		pred predictor.Predictor
		err  error
	)
	switch provider {
	case "anthropic":
		pred, err = anthropic.NewFromAPIKey(os.Getenv("ANTHROPIC_API_KEY"), model)
	case "openai":
		pred, err = openai.NewFromAPIKey(os.Getenv("OPENAI_API_KEY"), model)
	case "bedrock":
		awsCfg, cerr := config.LoadDefaultConfig(ctx)
		if cerr != nil {
			return nil, fmt.Errorf("load aws config: %w", cerr)
		}
		pred, err = bedrock.New(bedrockruntime.NewFromConfig(awsCfg), bedrock.Options{Model: model})
	case "static":
		// Deterministic provider for demos and smoke tests.
		pred = &predictor.Static{}
	default:
		return nil, fmt.Errorf("unknown provider %q", provider)
	}
	if err != nil {
		return nil, fmt.Errorf("build %s predictor: %w", provider, err)
	}

	tpm := envFloatOr("WAYFIND_TPM", 60000)
	limiter := ratelimit.NewAdaptiveLimiter(tpm, tpm*2)
	return limiter.Middleware()(pred), nil
}

// buildSearcher selects the record backend: MongoDB when WAYFIND_MONGO_URL is
// set, the in-memory backend otherwise.
func buildSearcher(ctx context.Context, cfg *site.Configuration, recordsPath string) (records.Searcher, []health.Pinger, func(), error) {
	noop := func() {}
	mongoURL := os.Getenv("WAYFIND_MONGO_URL")
	if mongoURL == "" {
		inmem := records.NewInMemory()
		if recordsPath != "" {
			if err := seedRecords(inmem, recordsPath); err != nil {
				return nil, nil, noop, err
			}
		}
		return inmem, nil, noop, nil
	}

	client, err := mongodriver.Connect(mongooptions.Client().ApplyURI(mongoURL))
	if err != nil {
		return nil, nil, noop, fmt.Errorf("connect to mongodb: %w", err)
	}
	cleanup := func() { _ = client.Disconnect(context.Background()) }

	tables := make([]string, 0, len(cfg.Entities))
	for _, def := range cfg.Entities {
		tables = append(tables, def.Table)
	}
	searcher, err := mongorecords.New(mongorecords.Options{
		Client:   client,
		Database: envOr("WAYFIND_MONGO_DATABASE", "wayfind"),
		Tables:   tables,
	})
	if err != nil {
		cleanup()
		return nil, nil, noop, fmt.Errorf("build mongo searcher: %w", err)
	}
	if err := searcher.Ping(ctx); err != nil {
		cleanup()
		return nil, nil, noop, fmt.Errorf("ping mongodb: %w", err)
	}
	return searcher, []health.Pinger{searcher}, cleanup, nil
}

// buildRequestStore selects the request-tier cache backend: Redis when
// REDIS_URL is set, the in-process store otherwise.
func buildRequestStore(ctx context.Context) (cache.Store, []health.Pinger, func(), error) {
	noop := func() {}
	redisURL := os.Getenv("REDIS_URL")
	if redisURL == "" {
		return nil, nil, noop, nil // service defaults to the in-process store
	}

	rdb := goredis.NewClient(&goredis.Options{
		Addr:     redisURL,
		Password: os.Getenv("REDIS_PASSWORD"),
	})
	cleanup := func() { _ = rdb.Close() }
	if err := rdb.Ping(ctx).Err(); err != nil {
		cleanup()
		return nil, nil, noop, fmt.Errorf("connect to redis: %w", err)
	}
	store, err := redisstore.New(redisstore.Options{Client: rdb})
	if err != nil {
		cleanup()
		return nil, nil, noop, err
	}
	return store, []health.Pinger{store}, cleanup, nil
}

// seedRecords loads a JSON document of the form {"table": [{...row}, ...]}
// into the in-memory record backend.
func seedRecords(inmem *records.InMemory, path string) error {
	payload, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read records seed: %w", err)
	}
	var seed map[string][]map[string]any
	if err := json.Unmarshal(payload, &seed); err != nil {
		return fmt.Errorf("decode records seed: %w", err)
	}
	for table, rows := range seed {
		inmem.Load(table, rows)
	}
	return nil
}

func planHandler(svc *service.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req service.Request
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			httpError(w, http.StatusBadRequest, err)
			return
		}
		resp, err := svc.Plan(r.Context(), req)
		if err != nil {
			status := http.StatusInternalServerError
			if errors.Is(err, service.ErrMalformedQuery) {
				status = http.StatusBadRequest
			}
			httpError(w, status, err)
			return
		}
		writeJSON(w, http.StatusOK, resp)
	}
}

func validateHandler(svc *service.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		route := r.URL.Query().Get("route")
		pattern, ok := svc.ValidateRoute(route)
		body := map[string]any{"route": route, "valid": ok}
		if ok {
			body["pattern"] = pattern.Name
		}
		writeJSON(w, http.StatusOK, body)
	}
}

func statsHandler(svc *service.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, svc.Stats(r.Context()))
	}
}

func clearHandler(svc *service.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if err := svc.ClearCaches(r.Context()); err != nil {
			httpError(w, http.StatusInternalServerError, err)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

func httpError(w http.ResponseWriter, status int, err error) {
	writeJSON(w, status, map[string]string{"error": err.Error()})
}

func envOr(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func envFloatOr(key string, def float64) float64 {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	var f float64
	if _, err := fmt.Sscanf(v, "%g", &f); err != nil {
		return def
	}
	return f
}
