package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net/http"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/rs/cors"

	"meshnet-sim/internal/config"
	"meshnet-sim/internal/domain"
	"meshnet-sim/internal/observability"
	"meshnet-sim/internal/simulation"
	"meshnet-sim/internal/storage"
)

// JobStatus is the lifecycle state of an asynchronous run.
type JobStatus string

// Job states.
const (
	JobQueued  JobStatus = "queued"
	JobRunning JobStatus = "running"
	JobDone    JobStatus = "done"
	JobFailed  JobStatus = "failed"
)

// DefaultExperimentID keys runs submitted over HTTP in the run store.
const DefaultExperimentID = "server"

// RunRequest is the body of POST /runs. Omitted fields keep the server's
// experiment defaults.
type RunRequest struct {
	Scenario   string                `json:"scenario"`
	Controller domain.ControllerKind `json:"controller"`
	Seed       int64                 `json:"seed"`
	Horizon    int                   `json:"horizon,omitempty"`
	Kp         *float64              `json:"kp,omitempty"`
	Ki         *float64              `json:"ki,omitempty"`
	Kd         *float64              `json:"kd,omitempty"`
}

// JobView is the JSON shape of a job.
type JobView struct {
	ID         string                `json:"id"`
	Status     JobStatus             `json:"status"`
	RunID      string                `json:"run_id"`
	Scenario   string                `json:"scenario"`
	Controller domain.ControllerKind `json:"controller"`
	Seed       int64                 `json:"seed"`
	Horizon    int                   `json:"horizon"`
	Timesteps  int                   `json:"timesteps"` // simulated so far
	Summary    *domain.RunSummary    `json:"summary,omitempty"`
	Error      string                `json:"error,omitempty"`
	CreatedAt  time.Time             `json:"created_at"`
}

// StreamMessage is one websocket frame of GET /runs/{id}/stream.
type StreamMessage struct {
	Type    string                 `json:"type"` // timestep, done, error
	Record  *domain.TimestepRecord `json:"record,omitempty"`
	Summary *domain.RunSummary     `json:"summary,omitempty"`
	Error   string                 `json:"error,omitempty"`
}

// job is one submitted run. Records grow while the run is in flight;
// changed is closed and replaced on every update so streams can wait on it.
type job struct {
	mu      sync.Mutex
	id      string
	cfg     domain.RunConfig
	status  JobStatus
	records []*domain.TimestepRecord
	summary *domain.RunSummary
	err     string
	created time.Time
	changed chan struct{}
}

func newJob(cfg domain.RunConfig, now time.Time) *job {
	return &job{
		id:      uuid.New().String(),
		cfg:     cfg,
		status:  JobQueued,
		created: now,
		changed: make(chan struct{}),
	}
}

// update applies fn under the lock and wakes every waiting stream.
func (j *job) update(fn func()) {
	j.mu.Lock()
	fn()
	close(j.changed)
	j.changed = make(chan struct{})
	j.mu.Unlock()
}

// since returns the records from index from onward, the current status and
// the channel closed on the next update.
func (j *job) since(from int) ([]*domain.TimestepRecord, JobStatus, <-chan struct{}) {
	j.mu.Lock()
	defer j.mu.Unlock()
	var recs []*domain.TimestepRecord
	if from < len(j.records) {
		recs = j.records[from:len(j.records):len(j.records)]
	}
	return recs, j.status, j.changed
}

func (j *job) view() JobView {
	j.mu.Lock()
	defer j.mu.Unlock()
	return JobView{
		ID:         j.id,
		Status:     j.status,
		RunID:      simulation.RunID(j.cfg),
		Scenario:   j.cfg.Scenario.Name,
		Controller: j.cfg.Controller.Kind,
		Seed:       j.cfg.Seed,
		Horizon:    j.cfg.Horizon,
		Timesteps:  len(j.records),
		Summary:    j.summary,
		Error:      j.err,
		CreatedAt:  j.created,
	}
}

// Server is the HTTP API: asynchronous runs, live trajectory streams,
// the scenario catalog, health and metrics.
type Server struct {
	ctx          context.Context
	base         *config.Config
	runStore     storage.RunSummaryStore // optional
	stepStore    storage.TimestepStore   // optional
	experimentID string
	origins      []string
	logger       *log.Logger
	verbose      bool

	mu   sync.RWMutex
	jobs map[string]*job

	slots    chan struct{}
	wg       sync.WaitGroup
	upgrader websocket.Upgrader
}

// Options for creating Server.
type Options struct {
	Config         *config.Config          // nil uses config.Default
	RunStore       storage.RunSummaryStore // nil keeps results in memory only
	TimestepStore  storage.TimestepStore
	ExperimentID   string   // empty uses DefaultExperimentID
	MaxConcurrent  int      // simultaneous runs, <= 0 means 4
	AllowedOrigins []string // CORS and websocket origins; empty allows all
	Logger         *log.Logger
	Verbose        bool
}

// NewServer creates a Server. Runs are cancelled when ctx is done.
func NewServer(ctx context.Context, opts Options) *Server {
	cfg := opts.Config
	if cfg == nil {
		cfg = config.Default()
	}
	expID := opts.ExperimentID
	if expID == "" {
		expID = DefaultExperimentID
	}
	limit := opts.MaxConcurrent
	if limit <= 0 {
		limit = 4
	}
	logger := opts.Logger
	if logger == nil {
		logger = log.Default()
	}
	s := &Server{
		ctx:          ctx,
		base:         cfg,
		runStore:     opts.RunStore,
		stepStore:    opts.TimestepStore,
		experimentID: expID,
		origins:      opts.AllowedOrigins,
		logger:       logger,
		verbose:      opts.Verbose,
		jobs:         make(map[string]*job),
		slots:        make(chan struct{}, limit),
	}
	s.upgrader = websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 4096,
		CheckOrigin:     func(r *http.Request) bool { return s.originAllowed(r.Header.Get("Origin")) },
	}
	return s
}

// Handler returns the API routes wrapped in CORS.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("ok"))
	})
	mux.Handle("GET /metrics", observability.Handler())
	mux.HandleFunc("GET /scenarios", s.handleScenarios)
	mux.HandleFunc("POST /runs", s.handleSubmit)
	mux.HandleFunc("GET /runs", s.handleList)
	mux.HandleFunc("GET /runs/{id}", s.handleGet)
	mux.HandleFunc("GET /runs/{id}/stream", s.handleStream)

	origins := s.origins
	if len(origins) == 0 {
		origins = []string{"*"}
	}
	return cors.New(cors.Options{
		AllowedOrigins: origins,
		AllowedMethods: []string{http.MethodGet, http.MethodPost},
		AllowedHeaders: []string{"Content-Type"},
	}).Handler(mux)
}

// Wait blocks until every started run has finished.
func (s *Server) Wait() {
	s.wg.Wait()
}

func (s *Server) originAllowed(origin string) bool {
	if origin == "" || len(s.origins) == 0 {
		return true
	}
	for _, o := range s.origins {
		if o == "*" || o == origin {
			return true
		}
	}
	return false
}

// MaxHorizon bounds a submitted run; jobs hold every record in memory.
const MaxHorizon = 10 * domain.DefaultHorizon

// runConfig merges a request onto the server's experiment defaults.
func (s *Server) runConfig(req RunRequest) (domain.RunConfig, error) {
	sc, err := domain.ScenarioByName(req.Scenario)
	if err != nil {
		return domain.RunConfig{}, err
	}
	kind := req.Controller
	if kind == "" {
		kind = domain.ControllerPID
	}
	cfg := s.base.BaseRunConfig()
	cfg.Scenario = sc
	cfg.Controller = s.base.Controller.WithKind(kind)
	cfg.Seed = req.Seed
	switch {
	case req.Horizon < 0 || req.Horizon > MaxHorizon:
		return domain.RunConfig{}, fmt.Errorf("%w: horizon must be in [1, %d], got %d",
			domain.ErrInvalidConfig, MaxHorizon, req.Horizon)
	case req.Horizon > 0:
		cfg.Horizon = req.Horizon
	}
	if req.Kp != nil {
		cfg.Controller.Kp = *req.Kp
	}
	if req.Ki != nil {
		cfg.Controller.Ki = *req.Ki
	}
	if req.Kd != nil {
		cfg.Controller.Kd = *req.Kd
	}
	if err := cfg.Validate(); err != nil {
		return domain.RunConfig{}, err
	}
	return cfg, nil
}

func (s *Server) handleSubmit(w http.ResponseWriter, r *http.Request) {
	var req RunRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, 1<<16)).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, fmt.Errorf("decode request: %w", err))
		return
	}
	cfg, err := s.runConfig(req)
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}

	j := newJob(cfg, time.Now().UTC())
	s.mu.Lock()
	s.jobs[j.id] = j
	s.mu.Unlock()
	observability.RecordJobQueued()

	s.wg.Add(1)
	go s.execute(j)

	if s.verbose {
		s.logger.Printf("Queued job %s: %s/%s seed %d", j.id, cfg.Scenario.Name, cfg.Controller.Kind, cfg.Seed)
	}
	writeJSON(w, http.StatusAccepted, j.view())
}

// execute runs a job once a slot is free and persists its result.
func (s *Server) execute(j *job) {
	defer s.wg.Done()

	select {
	case s.slots <- struct{}{}:
		defer func() { <-s.slots }()
	case <-s.ctx.Done():
		j.update(func() { j.status, j.err = JobFailed, s.ctx.Err().Error() })
		return
	}
	j.update(func() { j.status = JobRunning })

	runner := simulation.NewRunner(simulation.RunnerOptions{
		Logger:      s.logger,
		SummaryOnly: true,
		Observer: func(rec *domain.TimestepRecord) {
			j.update(func() { j.records = append(j.records, rec) })
		},
	})

	scenario, kind := j.cfg.Scenario.Name, string(j.cfg.Controller.Kind)
	observability.RecordRunStarted(scenario, kind)
	start := time.Now()
	res, err := runner.Run(s.ctx, j.cfg)
	observability.RecordRunFinished(scenario, kind, j.cfg.Horizon, time.Since(start).Seconds(), err)
	if err != nil {
		s.logger.Printf("Job %s failed: %v", j.id, err)
		j.update(func() { j.status, j.err = JobFailed, err.Error() })
		return
	}

	res.Summary.ExperimentID = s.experimentID
	if err := s.persist(res.Summary, j); err != nil {
		s.logger.Printf("Job %s: persist: %v", j.id, err)
	}
	j.update(func() { j.status, j.summary = JobDone, res.Summary })
	if s.verbose {
		s.logger.Printf("Job %s done in %v: N=%d", j.id, time.Since(start).Round(time.Millisecond), res.Summary.FinalNodes)
	}
}

// persist stores the summary and trajectory. A run already stored under the
// same ID is the same run, so duplicates are not errors.
func (s *Server) persist(summary *domain.RunSummary, j *job) error {
	if s.runStore != nil {
		if err := s.runStore.Insert(s.ctx, summary); err != nil && !errors.Is(err, storage.ErrDuplicateKey) {
			return err
		}
	}
	if s.stepStore != nil {
		records, _, _ := j.since(0)
		if err := s.stepStore.InsertBulk(s.ctx, records); err != nil && !errors.Is(err, storage.ErrDuplicateKey) {
			return err
		}
	}
	return nil
}

func (s *Server) lookup(id string) (*job, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	j, ok := s.jobs[id]
	return j, ok
}

func (s *Server) handleGet(w http.ResponseWriter, r *http.Request) {
	j, ok := s.lookup(r.PathValue("id"))
	if !ok {
		writeError(w, http.StatusNotFound, fmt.Errorf("job %s not found", r.PathValue("id")))
		return
	}
	writeJSON(w, http.StatusOK, j.view())
}

func (s *Server) handleList(w http.ResponseWriter, r *http.Request) {
	s.mu.RLock()
	views := make([]JobView, 0, len(s.jobs))
	for _, j := range s.jobs {
		views = append(views, j.view())
	}
	s.mu.RUnlock()
	sort.Slice(views, func(i, k int) bool {
		if !views[i].CreatedAt.Equal(views[k].CreatedAt) {
			return views[i].CreatedAt.Before(views[k].CreatedAt)
		}
		return views[i].ID < views[k].ID
	})
	writeJSON(w, http.StatusOK, views)
}

func (s *Server) handleScenarios(w http.ResponseWriter, r *http.Request) {
	names := domain.ScenarioNames()
	out := make([]domain.ScenarioConfig, 0, len(names))
	for _, name := range names {
		sc, err := domain.ScenarioByName(name)
		if err != nil {
			writeError(w, http.StatusInternalServerError, err)
			return
		}
		out = append(out, sc)
	}
	writeJSON(w, http.StatusOK, out)
}

// handleStream replays the records simulated so far, then follows the run
// live until it finishes.
func (s *Server) handleStream(w http.ResponseWriter, r *http.Request) {
	j, ok := s.lookup(r.PathValue("id"))
	if !ok {
		writeError(w, http.StatusNotFound, fmt.Errorf("job %s not found", r.PathValue("id")))
		return
	}
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		return // Upgrade has already replied
	}
	defer conn.Close()
	observability.StreamOpened()
	defer observability.StreamClosed()

	const writeWait = 10 * time.Second
	next := 0
	for {
		recs, status, changed := j.since(next)
		for _, rec := range recs {
			conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteJSON(StreamMessage{Type: "timestep", Record: rec}); err != nil {
				return
			}
		}
		next += len(recs)

		if status == JobDone || status == JobFailed {
			v := j.view()
			msg := StreamMessage{Type: "done", Summary: v.Summary}
			if status == JobFailed {
				msg = StreamMessage{Type: "error", Error: v.Error}
			}
			conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteJSON(msg); err != nil {
				return
			}
			conn.WriteMessage(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, string(status)))
			return
		}

		select {
		case <-changed:
		case <-r.Context().Done():
			return
		case <-s.ctx.Done():
			return
		}
	}
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, code int, err error) {
	writeJSON(w, code, map[string]string{"error": err.Error()})
}
