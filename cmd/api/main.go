package main

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"time"

	"github.com/joho/godotenv"

	"crimesight-go/internal/caseindex"
	"crimesight-go/internal/embedding"
	"crimesight-go/internal/logger"
	"crimesight-go/internal/notifier"
	"crimesight-go/internal/pipeline"
	"crimesight-go/internal/roster"
	"crimesight-go/internal/synthesizer"
	"crimesight-go/internal/transcription"
	"crimesight-go/internal/types"
	"crimesight-go/internal/wanted"
)

func main() {
	_ = godotenv.Load() // loads .env

	log := logger.New()
	log.WithField("service", "crimesight-go").Info("starting service")

	ctx := context.Background()

	// subject roster: spreadsheet if configured, demo list otherwise
	subjects := roster.Default()
	if path := os.Getenv("ROSTER_PATH"); path != "" {
		loaded, err := roster.Load(path)
		if err != nil {
			log.WithError(err).Fatal("failed to load subject roster")
		}
		subjects = loaded
	}
	log.WithField("subjects", len(subjects)).Info("subject roster loaded")

	embedder := embedding.New(
		os.Getenv("EMBED_URL"),
		os.Getenv("EMBED_API_KEY"),
		envOr("EMBED_MODEL", "msmarco-MiniLM-L12-cos-v5"),
	)

	var store caseindex.VectorStore
	if envOr("VECTOR_STORE", "milvus") == "memory" {
		log.Warn("using in-memory vector store")
		store = caseindex.NewMemory()
	} else {
		milvus, err := caseindex.NewMilvus(ctx, caseindex.MilvusConfig{
			Address:  envOr("MILVUS_ADDRESS", "localhost:19530"),
			Username: os.Getenv("MILVUS_USERNAME"),
			Password: os.Getenv("MILVUS_PASSWORD"),
			Database: os.Getenv("MILVUS_DATABASE"),
		})
		if err != nil {
			log.WithError(err).Fatal("failed to connect to milvus")
		}
		defer milvus.Close(ctx)
		store = milvus
	}

	transcriber, err := transcription.NewFromEnv(ctx)
	if err != nil {
		log.WithError(err).Fatal("failed to build transcriber")
	}

	var alerts notifier.Notifier = notifier.Noop{}
	if sid := os.Getenv("TWILIO_ACCOUNT_SID"); sid != "" {
		alerts = notifier.NewTwilio(
			sid,
			os.Getenv("TWILIO_AUTH_TOKEN"),
			os.Getenv("TWILIO_PHONE_NUMBER"),
			os.Getenv("ALERT_TO"),
		)
	}

	matcher := wanted.New(os.Getenv("WANTED_FEED_URL"))
	investigator := pipeline.New(
		transcriber,
		embedder,
		store,
		synthesizer.NewFromEnv(),
		matcher,
		alerts,
		envOr("ALERT_LOCATION", "texas"),
	)

	mux := http.NewServeMux()

	// health
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		logger.New().WithRequest(r).Info("health check")
		fmt.Fprint(w, "ok")
	})

	// subject roster for the front-end
	mux.HandleFunc("/subjects", func(w http.ResponseWriter, r *http.Request) {
		logger.New().WithRequest(r).WithField("handler", "subjects").Info("roster request")
		writeJSON(w, map[string][]types.Subject{"subjects": subjects})
	})

	// investigation endpoint
	mux.HandleFunc("/investigate", func(w http.ResponseWriter, r *http.Request) {
		reqLog := logger.New().WithRequest(r).WithField("handler", "investigate")
		reqLog.Info("investigate request received")

		if r.Method != http.MethodPost {
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
			return
		}
		subjectID := r.FormValue("subject_id")
		question := r.FormValue("query")
		if subjectID == "" || question == "" {
			reqLog.Warn("missing subject_id or query")
			http.Error(w, "missing subject_id or query", http.StatusBadRequest)
			return
		}
		subjectName := r.FormValue("subject_name")
		if subjectName == "" {
			subjectName = subjectID
		}
		timeoutSec := 300
		if t := r.FormValue("timeout_sec"); t != "" {
			fmt.Sscanf(t, "%d", &timeoutSec)
		}
		reqLog = reqLog.WithField("subject_id", subjectID).WithField("timeout_sec", timeoutSec)

		runCtx, cancel := context.WithTimeout(r.Context(), time.Duration(timeoutSec)*time.Second)
		defer cancel()

		start := time.Now()
		result, err := investigator.Run(runCtx, subjectID, subjectName, question)
		reqLog.WithField("duration_ms", time.Since(start).Milliseconds()).Info("investigator finished")
		if err != nil {
			reqLog.WithError(err).Warn("investigation failed")
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}
		writeJSON(w, result)
	})

	// standalone wanted-feed check
	mux.HandleFunc("/wanted-check", func(w http.ResponseWriter, r *http.Request) {
		reqLog := logger.New().WithRequest(r).WithField("handler", "wanted-check")
		reqLog.Info("wanted check request received")

		if r.Method != http.MethodPost {
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
			return
		}
		var body struct {
			Name string `json:"name"`
		}
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil || body.Name == "" {
			http.Error(w, "missing name", http.StatusBadRequest)
			return
		}
		matches := matcher.FindMatches(r.Context(), body.Name)
		writeJSON(w, map[string][]types.WantedEntry{"matches": matches})
	})

	addr := fmt.Sprintf(":%s", envOr("PORT", "8080"))
	srv := &http.Server{
		Addr:         addr,
		Handler:      mux,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 10 * time.Minute,
		IdleTimeout:  120 * time.Second,
	}
	log.WithField("addr", addr).Info("listening")
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		log.WithError(err).Fatal("server terminated")
	}
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(v); err != nil {
		logger.New().WithError(err).Error("failed to write response")
	}
}

func envOr(k, def string) string {
	if v := os.Getenv(k); v != "" {
		return v
	}
	return def
}
