package web

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os"
	"sync"
	"sync/atomic"
	"time"

	"img-optimize/internal/compressor"
	"img-optimize/internal/config"
	"img-optimize/internal/filter"
	"img-optimize/internal/optimizer"
	"img-optimize/internal/statistics"

	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"
)

type Server struct {
	base       config.OptimizationOptions
	log        *logrus.Logger
	transcoder compressor.Transcoder
	router     *mux.Router
	httpServer *http.Server
	wsUpgrader websocket.Upgrader
	wsClients  map[*websocket.Conn]bool
	wsMutex    sync.Mutex

	// Current operation state
	operationMutex sync.RWMutex
	isRunning      bool
	currentStats   *statistics.Statistics
	runCtx         context.Context
	cancelRuns     context.CancelFunc
	runs           sync.WaitGroup
}

type APIResponse struct {
	Success bool        `json:"success"`
	Message string      `json:"message,omitempty"`
	Data    interface{} `json:"data,omitempty"`
	Error   string      `json:"error,omitempty"`
}

// OptimizeRequest mirrors the command line options. Unset numeric fields
// fall back to the server's configured options.
type OptimizeRequest struct {
	InputDirectory  string   `json:"input_directory"`
	OutputDirectory string   `json:"output_directory,omitempty"`
	InPlace         bool     `json:"in_place"`
	Recursive       bool     `json:"recursive"`
	DryRun          bool     `json:"dry_run"`
	Quality         *int     `json:"quality,omitempty"`
	MaxWidth        *int     `json:"max_width,omitempty"`
	MaxHeight       *int     `json:"max_height,omitempty"`
	Workers         *int     `json:"workers,omitempty"`
	Skip            []string `json:"skip,omitempty"`
}

type SummaryResponse struct {
	Processed       int     `json:"processed"`
	Skipped         int64   `json:"skipped"`
	Failed          int64   `json:"failed"`
	OriginalBytes   int64   `json:"original_bytes"`
	OptimizedBytes  int64   `json:"optimized_bytes"`
	SavedBytes      int64   `json:"saved_bytes"`
	SavingsPercent  float64 `json:"savings_percent"`
	OriginalSize    string  `json:"original_size"`
	OptimizedSize   string  `json:"optimized_size"`
	SavedSize       string  `json:"saved_size"`
	DurationSeconds float64 `json:"duration_seconds"`
	FormatBreakdown string  `json:"format_breakdown,omitempty"`
}

type FileEvent struct {
	File          string `json:"file"`
	Status        string `json:"status"`
	Reason        string `json:"reason,omitempty"`
	OriginalSize  int64  `json:"original_size,omitempty"`
	OptimizedSize int64  `json:"optimized_size,omitempty"`
	Completed     int    `json:"completed"`
	Total         int    `json:"total"`
}

type WSMessage struct {
	Type string      `json:"type"`
	Data interface{} `json:"data"`
}

// NewServer returns a Server whose runs start from base and use transcoder
// for every file.
func NewServer(base config.OptimizationOptions, log *logrus.Logger, transcoder compressor.Transcoder) *Server {
	ctx, cancel := context.WithCancel(context.Background())
	s := &Server{
		base:       base,
		log:        log,
		transcoder: transcoder,
		router:     mux.NewRouter(),
		wsClients:  make(map[*websocket.Conn]bool),
		wsUpgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool {
				return true
			},
		},
		runCtx:     ctx,
		cancelRuns: cancel,
	}

	s.setupRoutes()
	return s
}

func (s *Server) setupRoutes() {
	api := s.router.PathPrefix("/api").Subrouter()
	api.HandleFunc("/status", s.handleStatus).Methods("GET")
	api.HandleFunc("/optimize", s.handleOptimize).Methods("POST")
	api.HandleFunc("/summary", s.handleSummary).Methods("GET")

	s.router.HandleFunc("/ws", s.handleWebSocket)
}

// Handler returns the HTTP handler serving the API.
func (s *Server) Handler() http.Handler {
	return s.router
}

func (s *Server) Start(port int) error {
	addr := fmt.Sprintf(":%d", port)
	s.httpServer = &http.Server{
		Addr:         addr,
		Handler:      s.router,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	s.log.Infof("Starting web server on http://localhost%s", addr)
	return s.httpServer.ListenAndServe()
}

// Stop cancels any running batch, shuts the HTTP server down and waits for
// the batch to wind up.
func (s *Server) Stop(ctx context.Context) error {
	s.cancelRuns()
	var err error
	if s.httpServer != nil {
		err = s.httpServer.Shutdown(ctx)
	}
	s.Wait()

	s.wsMutex.Lock()
	for conn := range s.wsClients {
		conn.Close()
		delete(s.wsClients, conn)
	}
	s.wsMutex.Unlock()
	return err
}

// Wait blocks until no batch is running.
func (s *Server) Wait() {
	s.runs.Wait()
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	s.operationMutex.RLock()
	running := s.isRunning
	stats := s.currentStats
	s.operationMutex.RUnlock()

	var statsData interface{}
	if stats != nil {
		statsData = map[string]interface{}{
			"summary": stats.GetSummary(),
			"files": map[string]interface{}{
				"total_found":     atomic.LoadInt64(&stats.TotalFilesFound),
				"total_processed": atomic.LoadInt64(&stats.TotalFilesProcessed),
				"optimized":       atomic.LoadInt64(&stats.FilesOptimized),
				"skipped":         atomic.LoadInt64(&stats.FilesSkipped),
				"errors":          atomic.LoadInt64(&stats.FilesWithErrors),
			},
		}
	}

	s.writeJSON(w, APIResponse{
		Success: true,
		Data: map[string]interface{}{
			"running":    running,
			"statistics": statsData,
		},
	})
}

func (s *Server) handleSummary(w http.ResponseWriter, r *http.Request) {
	s.operationMutex.RLock()
	stats := s.currentStats
	s.operationMutex.RUnlock()

	if stats == nil {
		s.writeJSON(w, APIResponse{Success: true})
		return
	}

	sum := stats.Summary()
	s.writeJSON(w, APIResponse{
		Success: true,
		Data: SummaryResponse{
			Processed:       sum.ProcessedCount,
			Skipped:         stats.GetFilesSkipped(),
			Failed:          stats.GetFilesWithErrors(),
			OriginalBytes:   sum.TotalOriginalBytes,
			OptimizedBytes:  sum.TotalOptimizedBytes,
			SavedBytes:      sum.SavedBytes(),
			SavingsPercent:  sum.SavingsPercent(),
			OriginalSize:    statistics.FormatSize(sum.TotalOriginalBytes),
			OptimizedSize:   statistics.FormatSize(sum.TotalOptimizedBytes),
			SavedSize:       statistics.FormatSize(sum.SavedBytes()),
			DurationSeconds: stats.GetDuration().Seconds(),
			FormatBreakdown: stats.GetFormatBreakdown(),
		},
	})
}

func (s *Server) handleOptimize(w http.ResponseWriter, r *http.Request) {
	var req OptimizeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	if req.InputDirectory == "" {
		s.writeError(w, "Input directory is required", http.StatusBadRequest)
		return
	}

	if info, err := os.Stat(req.InputDirectory); err != nil || !info.IsDir() {
		s.writeError(w, "Input directory does not exist", http.StatusBadRequest)
		return
	}

	layout, err := optimizer.ResolveLayout(req.InputDirectory, req.OutputDirectory, req.InPlace)
	if err != nil {
		s.writeError(w, err.Error(), http.StatusBadRequest)
		return
	}

	opts, err := config.Merge(s.base, nil, config.Overrides{
		Quality:   req.Quality,
		MaxWidth:  req.MaxWidth,
		MaxHeight: req.MaxHeight,
		Workers:   req.Workers,
		Skip:      req.Skip,
	})
	if err != nil {
		s.writeError(w, err.Error(), http.StatusBadRequest)
		return
	}

	s.operationMutex.Lock()
	if s.isRunning {
		s.operationMutex.Unlock()
		s.writeError(w, "Operation already in progress", http.StatusConflict)
		return
	}
	s.isRunning = true
	s.currentStats = statistics.NewStatistics()
	stats := s.currentStats
	s.runs.Add(1)
	s.operationMutex.Unlock()

	go s.runOptimizeAsync(req, layout, opts, stats)

	s.writeJSON(w, APIResponse{
		Success: true,
		Message: "Optimization started",
	})
}

func (s *Server) runOptimizeAsync(req OptimizeRequest, layout optimizer.Layout, opts config.OptimizationOptions, stats *statistics.Statistics) {
	defer s.runs.Done()
	defer func() {
		s.operationMutex.Lock()
		s.isRunning = false
		s.operationMutex.Unlock()
	}()

	s.broadcastWSMessage("run_started", map[string]interface{}{
		"input_directory":  layout.InputRoot,
		"output_directory": layout.OutputRoot,
		"dry_run":          req.DryRun,
		"workers":          opts.Workers,
	})

	files, err := optimizer.Discover(layout.InputRoot, optimizer.DiscoverOptions{
		Recursive: req.Recursive,
		Skip:      filter.New(opts.Skip),
		Exclude:   layout.Exclude,
	})
	if err != nil {
		s.log.Errorf("Discovery failed: %v", err)
		s.broadcastWSMessage("run_error", map[string]interface{}{
			"error": err.Error(),
		})
		return
	}

	runner := optimizer.NewRunner(s.log, s.transcoder, stats, opts.Workers)
	runner.OnProgress(func(p optimizer.Progress) {
		ev := FileEvent{
			File:      p.Outcome.Task.RelPath,
			Status:    p.Outcome.Status.String(),
			Reason:    p.Outcome.Reason,
			Completed: p.Completed,
			Total:     p.Total,
		}
		if res := p.Outcome.Result; res != nil {
			ev.OriginalSize = res.OriginalSize
			ev.OptimizedSize = res.OptimizedSize
		}
		s.broadcastWSMessage("file_done", ev)
	})

	runner.Run(s.runCtx, files, optimizer.RunOptions{
		InputRoot:  layout.InputRoot,
		OutputRoot: layout.OutputRoot,
		Params: compressor.Params{
			Quality:   opts.Quality,
			MaxWidth:  opts.MaxWidth,
			MaxHeight: opts.MaxHeight,
			DryRun:    req.DryRun,
		},
	})

	s.broadcastWSMessage("run_completed", map[string]interface{}{
		"statistics": stats.GetSummary(),
		"processed":  stats.Summary().ProcessedCount,
	})
}

func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := s.wsUpgrader.Upgrade(w, r, nil)
	if err != nil {
		s.log.Errorf("WebSocket upgrade failed: %v", err)
		return
	}
	defer conn.Close()

	s.wsMutex.Lock()
	s.wsClients[conn] = true
	s.writeWS(conn, WSMessage{Type: "connected"})
	s.wsMutex.Unlock()

	s.log.Debug("WebSocket client connected")

	defer func() {
		s.wsMutex.Lock()
		delete(s.wsClients, conn)
		s.wsMutex.Unlock()
		s.log.Debug("WebSocket client disconnected")
	}()

	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			var closeErr *websocket.CloseError
			if !errors.As(err, &closeErr) {
				s.log.Debugf("WebSocket read ended: %v", err)
			}
			break
		}
	}
}

// broadcastWSMessage sends a message to every client. Writes happen under
// wsMutex since a websocket connection allows one writer at a time.
func (s *Server) broadcastWSMessage(messageType string, data interface{}) {
	message := WSMessage{
		Type: messageType,
		Data: data,
	}

	s.wsMutex.Lock()
	defer s.wsMutex.Unlock()

	for conn := range s.wsClients {
		if err := s.writeWS(conn, message); err != nil {
			s.log.Errorf("Failed to write WebSocket message: %v", err)
			delete(s.wsClients, conn)
			conn.Close()
		}
	}
}

func (s *Server) writeWS(conn *websocket.Conn, message WSMessage) error {
	_ = conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
	return conn.WriteJSON(message)
}

func (s *Server) writeJSON(w http.ResponseWriter, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(data)
}

func (s *Server) writeError(w http.ResponseWriter, message string, statusCode int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	json.NewEncoder(w).Encode(APIResponse{
		Success: false,
		Error:   message,
	})
}
