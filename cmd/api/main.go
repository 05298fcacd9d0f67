package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gorilla/mux"
	"github.com/joho/godotenv"

	"call-insights-go/internal/audiofeatures"
	"call-insights-go/internal/coaching"
	"call-insights-go/internal/dispatch"
	"call-insights-go/internal/evaluation"
	"call-insights-go/internal/ledger"
	"call-insights-go/internal/logger"
	"call-insights-go/internal/pipeline"
	"call-insights-go/internal/roster"
	"call-insights-go/internal/scorer"
	"call-insights-go/internal/stats"
	"call-insights-go/internal/store"
	"call-insights-go/internal/transcription"
)

func main() {
	_ = godotenv.Load() // loads .env

	log := logger.New()
	log.WithField("service", "call-insights-go").Info("starting service")

	db, err := store.Open(envOr("DB_PATH", "call-insights.db"))
	if err != nil {
		log.WithError(err).Fatal("failed to open database")
	}
	defer db.Close()

	taskLedger := ledger.New(db)
	llm := evaluation.New()
	executor := pipeline.New(db, taskLedger,
		transcription.New(), audiofeatures.New(), scorer.New(), llm)
	aggregator := coaching.New(db, llm)
	dispatcher := dispatch.New(db, taskLedger, executor, aggregator)

	srv := &server{
		store:      db,
		dispatcher: dispatcher,
		stats:      stats.New(db, taskLedger),
		importer:   roster.New(db),
	}
	router := mux.NewRouter()
	srv.routes(router)

	addr := fmt.Sprintf(":%s", envOr("PORT", "8080"))
	httpSrv := &http.Server{
		Addr:         addr,
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 60 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	go func() {
		log.WithField("addr", addr).Info("listening")
		if err := httpSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.WithError(err).Fatal("server terminated")
		}
	}()

	<-ctx.Done()
	log.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := httpSrv.Shutdown(shutdownCtx); err != nil {
		log.WithError(err).Warn("http shutdown error")
	}
	dispatcher.Close()
	log.Info("stopped")
}

func envOr(k, def string) string {
	if v := os.Getenv(k); v != "" {
		return v
	}
	return def
}
