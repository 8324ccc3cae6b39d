package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"unicode/utf8"

	"github.com/go-chi/chi/v5"

	"answer-router/internal/app"
	"answer-router/internal/cache"
	"answer-router/internal/httputil"
)

const version = "1.0.0"

type askRequest struct {
	Question string `json:"question" validate:"required"`
}

type askResponse struct {
	Answer     string   `json:"answer"`
	Source     string   `json:"source"`
	Confidence float64  `json:"confidence"`
	AllSources []string `json:"all_sources"`
	Category   string   `json:"category"`
	Cached     bool     `json:"cached"`
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	deps, err := app.Build(ctx)
	if err != nil {
		slog.Default().Error("failed to build dependencies", "err", err)
		os.Exit(1)
	}
	defer func() {
		if err := deps.Close(); err != nil {
			deps.Log.Warn("close dependencies", "err", err)
		}
	}()

	addr := fmt.Sprintf(":%d", deps.Config.Port)
	if err := httputil.Serve(ctx, deps.Log, addr, newRouter(deps)); err != nil {
		deps.Log.Error("server failed", "err", err)
	}
}

func newRouter(deps app.Deps) http.Handler {
	r := httputil.NewRouter(deps.Log)

	r.Get("/", bannerHandler(deps))
	r.Get("/healthz", httputil.HealthHandler(deps.Log, deps.Engine.Sources()))
	r.Route("/api", func(r chi.Router) {
		r.Post("/ask", askHandler(deps))
		r.Post("/stream", streamHandler(deps))
		r.Get("/stats", statsHandler(deps))
		r.Delete("/cache", flushCacheHandler(deps))
	})
	return r
}

func bannerHandler(deps app.Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		httputil.WriteJSON(w, http.StatusOK, map[string]any{
			"status":    "running",
			"version":   version,
			"providers": deps.Engine.Sources(),
		})
	}
}

// decodeQuestion reads and validates an askRequest. It writes the 400 itself and reports false on failure.
func decodeQuestion(deps app.Deps, w http.ResponseWriter, r *http.Request) (string, bool) {
	var req askRequest
	if err := httputil.DecodeJSON(r, &req); err != nil {
		httputil.ValidationError(deps.Log, w, err)
		return "", false
	}
	if limit := deps.Config.MaxQuestionLength; limit > 0 && utf8.RuneCountInString(req.Question) > limit {
		httputil.WriteJSON(w, http.StatusBadRequest, map[string]any{
			"error": fmt.Sprintf("question exceeds %d characters", limit),
		})
		return "", false
	}
	return req.Question, true
}

func askHandler(deps app.Deps) http.HandlerFunc {
	ttl := app.CacheTTL(deps.Config)

	return func(w http.ResponseWriter, r *http.Request) {
		question, ok := decodeQuestion(deps, w, r)
		if !ok {
			return
		}
		ctx := r.Context()

		key := cache.Key(question)
		if cached, err := deps.Cache.GetAnswer(ctx, key); err != nil {
			deps.Log.Warn("cache lookup failed", "err", err)
		} else if cached != nil {
			deps.Log.Info("cache hit", "source", cached.Source)
			deps.Engine.History().NoteCacheHit()
			httputil.WriteJSON(w, http.StatusOK, askResponse{
				Answer:     cached.Answer,
				Source:     cached.Source,
				Confidence: cached.Confidence,
				AllSources: cached.AllSources,
				Category:   cached.Category,
				Cached:     true,
			})
			return
		}

		rec := deps.Engine.Decide(ctx, question)
		resp := askResponse{
			Answer:     rec.Winner.Result.Text,
			Source:     rec.Winner.Result.Source,
			Confidence: rec.Winner.Result.Confidence,
			AllSources: rec.AllSources(),
			Category:   string(rec.Category),
		}

		// Fallback answers are transient outages and must not be served from cache.
		if !rec.Winner.IsFallback() {
			if err := deps.Cache.SetAnswer(ctx, key, &cache.Answer{
				Answer:     resp.Answer,
				Source:     resp.Source,
				Confidence: resp.Confidence,
				AllSources: resp.AllSources,
				Category:   resp.Category,
			}, ttl); err != nil {
				deps.Log.Warn("failed to cache answer", "err", err)
			}
		}

		httputil.WriteJSON(w, http.StatusOK, resp)
	}
}

func streamHandler(deps app.Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		question, ok := decodeQuestion(deps, w, r)
		if !ok {
			return
		}
		ctx, cancel := context.WithCancel(r.Context())
		defer cancel()

		sse, err := httputil.NewSSEWriter(w)
		if err != nil {
			httputil.Fail(deps.Log, w, "streaming not supported", err, http.StatusInternalServerError)
			return
		}

		rec, events := deps.Engine.Stream(ctx, question)
		log := deps.Log.With("decision_id", rec.ID, "source", rec.Winner.Result.Source)
		for ev := range events {
			if err := sse.Send(ev); err != nil {
				log.Warn("stream client went away", "err", err)
				cancel()
				for range events {
				}
				return
			}
		}
	}
}

// statsHandler reports history statistics. total and the histograms cover decisions only;
// answers served from the cache are counted separately in cache_hits.
func statsHandler(deps app.Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		window := deps.Config.StatsWindow
		if raw := r.URL.Query().Get("window"); raw != "" {
			n, err := strconv.Atoi(raw)
			if err != nil || n <= 0 {
				httputil.WriteJSON(w, http.StatusBadRequest, map[string]any{
					"error": "window must be a positive integer",
				})
				return
			}
			window = n
		}
		httputil.WriteJSON(w, http.StatusOK, deps.Engine.Stats(window))
	}
}

func flushCacheHandler(deps app.Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if err := deps.Cache.Flush(r.Context()); err != nil {
			httputil.Fail(deps.Log, w, "failed to flush cache", err, http.StatusInternalServerError)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}
}
