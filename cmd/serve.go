package cmd

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/tasklift/tasklift/pkg/genai"
	"github.com/tasklift/tasklift/pkg/metrics"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the tasklift HTTP API",
	Long: `Starts an HTTP server exposing the AI enrichment operations so the
task app's frontend can call them directly.

Example:
  tasklift serve --port 8080

The server exposes:
  POST /v1/motivate   - Motivational blurb for a pending-task count
  POST /v1/refine     - Task metadata classification
  POST /v1/kit        - Checklist template generation
  POST /v1/breakdown  - Task decomposition
  GET  /v1/cache      - Cache statistics
  GET  /health        - Health check
  GET  /metrics       - Prometheus metrics`,
	RunE: runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)

	serveCmd.Flags().IntP("port", "p", 8080, "HTTP server port")
	serveCmd.Flags().String("host", "0.0.0.0", "HTTP server host")

	// Bind to viper
	_ = viper.BindPFlag("serve.port", serveCmd.Flags().Lookup("port"))
	_ = viper.BindPFlag("serve.host", serveCmd.Flags().Lookup("host"))
}

// Server holds the HTTP server state.
type Server struct {
	svc *genai.Service
}

// MotivateRequest is the JSON request body for /v1/motivate.
type MotivateRequest struct {
	PendingCount int `json:"pending_count"`
}

// RefineRequest is the JSON request body for /v1/refine.
type RefineRequest struct {
	Title string `json:"title"`
}

// KitRequest is the JSON request body for /v1/kit.
type KitRequest struct {
	Prompt string `json:"prompt"`
}

// BreakdownRequest is the JSON request body for /v1/breakdown.
type BreakdownRequest struct {
	Task string `json:"task"`
}

func runServe(cmd *cobra.Command, args []string) error {
	port, _ := cmd.Flags().GetInt("port")
	host, _ := cmd.Flags().GetString("host")

	m := metrics.New()
	svc, _, err := buildService(genai.WithMetrics(m))
	if err != nil {
		return err
	}
	defer func() { _ = svc.Close() }()

	server := &Server{svc: svc}

	// Setup routes
	mux := http.NewServeMux()
	mux.HandleFunc("/v1/motivate", server.handleMotivate)
	mux.HandleFunc("/v1/refine", server.handleRefine)
	mux.HandleFunc("/v1/kit", server.handleKit)
	mux.HandleFunc("/v1/breakdown", server.handleBreakdown)
	mux.HandleFunc("/v1/cache", server.handleCacheStats)
	mux.HandleFunc("/health", server.handleHealth)
	mux.Handle("/metrics", m.Handler())

	addr := fmt.Sprintf("%s:%d", host, port)
	httpServer := &http.Server{
		Addr:         addr,
		Handler:      mux,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 60 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	// Graceful shutdown
	done := make(chan bool)
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt, syscall.SIGTERM)

	go func() {
		<-quit
		fmt.Fprintln(os.Stderr, "\nShutting down server...")

		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()

		if err := httpServer.Shutdown(ctx); err != nil {
			fmt.Fprintf(os.Stderr, "Server shutdown error: %v\n", err)
		}
		close(done)
	}()

	fmt.Printf("tasklift server starting on %s\n", addr)
	fmt.Println()
	fmt.Println("Endpoints:")
	fmt.Printf("  POST http://%s/v1/motivate\n", addr)
	fmt.Printf("  POST http://%s/v1/refine\n", addr)
	fmt.Printf("  POST http://%s/v1/kit\n", addr)
	fmt.Printf("  POST http://%s/v1/breakdown\n", addr)
	fmt.Printf("  GET  http://%s/health\n", addr)
	fmt.Printf("  GET  http://%s/metrics\n", addr)
	fmt.Println()

	if err := httpServer.ListenAndServe(); err != http.ErrServerClosed {
		return fmt.Errorf("server error: %w", err)
	}

	<-done
	fmt.Println("Server stopped")
	return nil
}

func (s *Server) handleMotivate(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var req MotivateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, fmt.Sprintf("Invalid JSON: %v", err), http.StatusBadRequest)
		return
	}
	if req.PendingCount < 0 {
		http.Error(w, "pending_count must be non-negative", http.StatusBadRequest)
		return
	}

	blurb, err := s.svc.Motivate(r.Context(), req.PendingCount)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, map[string]string{"motivation": blurb})
}

func (s *Server) handleRefine(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var req RefineRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, fmt.Sprintf("Invalid JSON: %v", err), http.StatusBadRequest)
		return
	}

	md, err := s.svc.Refine(r.Context(), req.Title)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, md)
}

func (s *Server) handleKit(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var req KitRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, fmt.Sprintf("Invalid JSON: %v", err), http.StatusBadRequest)
		return
	}
	if req.Prompt == "" {
		http.Error(w, "prompt is required", http.StatusBadRequest)
		return
	}

	kit, err := s.svc.GenerateKit(r.Context(), req.Prompt)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, kit)
}

func (s *Server) handleBreakdown(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var req BreakdownRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, fmt.Sprintf("Invalid JSON: %v", err), http.StatusBadRequest)
		return
	}
	if req.Task == "" {
		http.Error(w, "task is required", http.StatusBadRequest)
		return
	}

	steps, err := s.svc.Breakdown(r.Context(), req.Task)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, map[string][]string{"steps": steps})
}

func (s *Server) handleCacheStats(w http.ResponseWriter, r *http.Request) {
	stats := s.svc.CacheStats()
	resp := map[string]interface{}{"families": stats}
	if until, active := s.svc.CooldownUntil(); active {
		resp["cooldown_until"] = until.Format(time.RFC3339)
	}
	writeJSON(w, resp)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, map[string]string{"status": "ok"})
}

func writeJSON(w http.ResponseWriter, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(v)
}

// writeServiceError maps failure classes to HTTP status codes: cooldown
// and rate pressure surface as 429 with a Retry-After hint, auth as
// 401, everything else as 502 since the upstream call failed.
func writeServiceError(w http.ResponseWriter, err error) {
	switch genai.Classify(err) {
	case genai.ClassCooldown:
		var cd *genai.CooldownError
		if errors.As(err, &cd) {
			w.Header().Set("Retry-After", fmt.Sprintf("%d", int(cd.RetryIn(time.Now()).Seconds())))
		}
		http.Error(w, err.Error(), http.StatusTooManyRequests)
	case genai.ClassQuota, genai.ClassRateLimit:
		http.Error(w, err.Error(), http.StatusTooManyRequests)
	case genai.ClassAuth:
		http.Error(w, err.Error(), http.StatusUnauthorized)
	default:
		http.Error(w, err.Error(), http.StatusBadGateway)
	}
}
