package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/gorilla/mux"
	"github.com/riskwise-ai/platform/pkg/common/config"
	"github.com/riskwise-ai/platform/pkg/common/database"
	"github.com/riskwise-ai/platform/pkg/common/kafka"
	"github.com/riskwise-ai/platform/pkg/common/logger"
	"github.com/riskwise-ai/platform/pkg/common/models"
	"github.com/riskwise-ai/platform/pkg/registry"
	"github.com/riskwise-ai/platform/pkg/serving"
	"github.com/riskwise-ai/platform/pkg/storage"
)

type ServingService struct {
	service        *serving.Service
	repo           *serving.Repository
	maxRequestBody int64
}

func main() {
	logger.Init()
	cfg := config.Load()

	db, err := database.GetPostgres()
	if err != nil {
		logger.Log.WithError(err).Fatal("Failed to connect to database")
	}
	repo := serving.NewRepository(db)
	if err := repo.AutoMigrate(); err != nil {
		logger.Log.WithError(err).Fatal("Failed to migrate prediction run tables")
	}

	cache := storage.NewRunCache(database.GetRedis(), cfg.RunCacheTTL)

	// Eager load: a cold scorer failure must surface before traffic.
	specs := registry.DefaultSpecs(cfg.ModelDir, cfg.SurveyCycle, cfg.Diseases)
	reg, err := registry.Load(specs)
	if err != nil {
		logger.Log.WithError(err).Fatal("Failed to load model bundles")
	}

	var publisher serving.EventPublisher
	if cfg.PublishPredictions {
		producer := kafka.NewProducer(cfg.PredictionTopic)
		defer producer.Close()
		publisher = producer
	}

	svc := &ServingService{
		service:        serving.NewService(reg, repo, cache, publisher),
		repo:           repo,
		maxRequestBody: cfg.MaxRequestBody,
	}

	router := mux.NewRouter()
	router.HandleFunc("/health", svc.handleHealth).Methods("GET")
	router.HandleFunc("/api/v1/models", svc.handleListModels).Methods("GET")
	router.HandleFunc("/api/v1/predict/{disease}", svc.handlePredict).Methods("POST")
	router.HandleFunc("/api/v1/predict-and-store/{disease}", svc.handlePredictAndStore).Methods("POST")
	router.HandleFunc("/api/v1/runs", svc.handleListRuns).Methods("GET")
	router.HandleFunc("/api/v1/runs/{id}", svc.handleGetRun).Methods("GET")
	router.HandleFunc("/api/v1/users", svc.handleCreateUser).Methods("POST")
	router.HandleFunc("/api/v1/users", svc.handleListUsers).Methods("GET")

	server := &http.Server{
		Addr:         fmt.Sprintf("%s:%s", cfg.ServerHost, cfg.ServerPort),
		Handler:      router,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
	}

	go func() {
		logger.Log.WithFields(map[string]interface{}{
			"host":     cfg.ServerHost,
			"port":     cfg.ServerPort,
			"diseases": reg.Diseases(),
		}).Info("Serving Service started")

		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Log.WithError(err).Fatal("Failed to start server")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Log.Info("Shutting down Serving Service...")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		logger.Log.WithError(err).Error("Server forced to shutdown")
	}

	logger.Log.Info("Serving Service stopped")
}

func (s *ServingService) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"status":        "ok",
		"models_loaded": s.service.Registry().Diseases(),
	})
}

func (s *ServingService) handleListModels(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.service.Registry().List())
}

func (s *ServingService) decodeRequest(w http.ResponseWriter, r *http.Request) (*models.PredictionRequest, bool) {
	r.Body = http.MaxBytesReader(w, r.Body, s.maxRequestBody)
	var req models.PredictionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return nil, false
	}
	if err := req.Validate(); err != nil {
		writeError(w, http.StatusUnprocessableEntity, err.Error())
		return nil, false
	}
	return &req, true
}

func (s *ServingService) handlePredict(w http.ResponseWriter, r *http.Request) {
	req, ok := s.decodeRequest(w, r)
	if !ok {
		return
	}
	disease := mux.Vars(r)["disease"]

	resp, err := s.service.Predict(r.Context(), disease, req)
	if err != nil {
		writePredictError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *ServingService) handlePredictAndStore(w http.ResponseWriter, r *http.Request) {
	req, ok := s.decodeRequest(w, r)
	if !ok {
		return
	}
	disease := mux.Vars(r)["disease"]
	userID := r.Header.Get("X-User-ID")

	resp, err := s.service.PredictAndStore(r.Context(), disease, req, userID)
	if err != nil {
		writePredictError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *ServingService) handleListRuns(w http.ResponseWriter, r *http.Request) {
	filter := serving.RunFilter{
		Disease: r.URL.Query().Get("disease"),
		UserID:  r.URL.Query().Get("user_id"),
		Limit:   queryInt(r, "limit", 50),
		Offset:  queryInt(r, "offset", 0),
	}
	runs, err := s.repo.List(r.Context(), filter)
	if err != nil {
		logger.Log.WithError(err).Error("Failed to list runs")
		writeError(w, http.StatusInternalServerError, "failed to list runs")
		return
	}
	summaries := make([]map[string]interface{}, 0, len(runs))
	for i := range runs {
		summaries = append(summaries, runSummary(&runs[i]))
	}
	writeJSON(w, http.StatusOK, summaries)
}

func (s *ServingService) handleGetRun(w http.ResponseWriter, r *http.Request) {
	runID := mux.Vars(r)["id"]
	run, cached, err := s.service.GetRun(r.Context(), runID)
	if errors.Is(err, serving.ErrRunNotFound) {
		writeError(w, http.StatusNotFound, fmt.Sprintf("run not found: %s", runID))
		return
	}
	if err != nil {
		logger.Log.WithError(err).Error("Failed to get run")
		writeError(w, http.StatusInternalServerError, "failed to get run")
		return
	}
	if cached != nil {
		writeJSON(w, http.StatusOK, cached)
		return
	}
	detail := runSummary(run)
	detail["request_payload"] = map[string]interface{}(run.RequestPayload)
	detail["latency_ms"] = run.LatencyMs
	writeJSON(w, http.StatusOK, detail)
}

type userPayload struct {
	UserID string `json:"user_id"`
}

func (s *ServingService) handleCreateUser(w http.ResponseWriter, r *http.Request) {
	var payload userPayload
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil || payload.UserID == "" {
		writeError(w, http.StatusBadRequest, "user_id is required")
		return
	}
	user, err := s.repo.GetOrCreateUser(r.Context(), payload.UserID)
	if err != nil {
		logger.Log.WithError(err).Error("Failed to create user")
		writeError(w, http.StatusInternalServerError, "failed to create user")
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"user_id":    user.ID,
		"created_at": user.CreatedAt.UTC().Format(time.RFC3339),
	})
}

func (s *ServingService) handleListUsers(w http.ResponseWriter, r *http.Request) {
	users, err := s.repo.ListUsers(r.Context(), queryInt(r, "limit", 50), queryInt(r, "offset", 0))
	if err != nil {
		logger.Log.WithError(err).Error("Failed to list users")
		writeError(w, http.StatusInternalServerError, "failed to list users")
		return
	}
	out := make([]map[string]interface{}, 0, len(users))
	for _, user := range users {
		out = append(out, map[string]interface{}{
			"user_id":    user.ID,
			"created_at": user.CreatedAt.UTC().Format(time.RFC3339),
		})
	}
	writeJSON(w, http.StatusOK, out)
}

func runSummary(run *serving.PredictionRun) map[string]interface{} {
	return map[string]interface{}{
		"run_id":          run.ID,
		"created_at":      run.CreatedAt.UTC().Format(time.RFC3339),
		"disease":         run.Disease,
		"predicted_label": run.PredictedLabel,
		"probabilities": models.Probabilities{
			PNormal:      run.PNormal,
			PPrediabetes: run.PPrediabetes,
			PDiabetes:    run.PDiabetes,
		},
		"model_version": run.ModelVersion,
		"user_id":       run.UserID,
	}
}

func writePredictError(w http.ResponseWriter, err error) {
	var unknown *registry.UnknownDiseaseError
	if errors.As(err, &unknown) {
		writeError(w, http.StatusNotFound, unknown.Error())
		return
	}
	logger.Log.WithError(err).Error("Prediction failed")
	writeError(w, http.StatusInternalServerError, "prediction failed")
}

func queryInt(r *http.Request, key string, defaultValue int) int {
	if value := r.URL.Query().Get(key); value != "" {
		if n, err := strconv.Atoi(value); err == nil {
			return n
		}
	}
	return defaultValue
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}
