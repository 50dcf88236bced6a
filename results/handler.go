package results

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/aricooperman/golean/model"
	"github.com/aricooperman/golean/service"
	"github.com/aricooperman/golean/tools/log"
)

// Sample is one point of an equity or performance series.
type Sample struct {
	Time  time.Time `json:"time"`
	Value float64   `json:"value"`
}

// RunResult is the persisted state of one run.
type RunResult struct {
	AlgorithmID string                 `json:"algorithm_id"`
	Status      model.AlgorithmStatus  `json:"status"`
	Equity      []Sample               `json:"equity"`
	Performance []Sample               `json:"performance"`
	Orders      []model.Order          `json:"orders"`
	Logs        []string               `json:"logs"`
	Errors      []string               `json:"errors"`
	RuntimeErr  string                 `json:"runtime_error,omitempty"`
	Statistics  map[string]interface{} `json:"statistics,omitempty"`
}

// Job identifies the run for key construction.
type Job struct {
	AlgorithmID string
	UserID      string
	ProjectID   string
	BacktestID  string
	DeployID    string
	Live        bool
}

// Handler collects everything the outside world sees about a run and flushes
// it on demand. Safe for use from the manager goroutine plus the emitter.
type Handler struct {
	job      Job
	root     string
	notifier service.Notifier

	mu          sync.Mutex
	equity      []Sample
	performance []Sample
	orders      []model.Order
	logs        []string
	errors      []string
	runtimeErr  string
	status      model.AlgorithmStatus
	pending     []string
	finalized   bool
}

// Option customises a handler at construction.
type Option func(*Handler)

// WithNotifier forwards order events and errors to the notifier.
func WithNotifier(notifier service.Notifier) Option {
	return func(h *Handler) { h.notifier = notifier }
}

// WithOutputDir persists results under dir using the storage key schemes.
func WithOutputDir(dir string) Option {
	return func(h *Handler) { h.root = dir }
}

func NewHandler(job Job, options ...Option) *Handler {
	h := &Handler{job: job, status: model.StatusInitializing}
	for _, option := range options {
		option(h)
	}
	return h
}

func (h *Handler) SampleEquity(at time.Time, equity float64) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.equity = append(h.equity, Sample{Time: at, Value: equity})
}

func (h *Handler) SamplePerformance(at time.Time, percent float64) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.performance = append(h.performance, Sample{Time: at, Value: percent})
}

func (h *Handler) DebugMessage(message string) {
	h.mu.Lock()
	h.pending = append(h.pending, message)
	h.mu.Unlock()
	log.Debug(message)
}

func (h *Handler) LogMessage(message string) {
	h.mu.Lock()
	h.logs = append(h.logs, message)
	h.mu.Unlock()
	log.Info(message)
}

// HandledError records a recoverable failure; the run continues.
func (h *Handler) HandledError(err error) {
	h.mu.Lock()
	h.errors = append(h.errors, err.Error())
	h.mu.Unlock()
	log.Error(err)
	if h.notifier != nil {
		h.notifier.OnError(err)
	}
}

// RuntimeError records the fatal failure ending the run.
func (h *Handler) RuntimeError(err error, stack string) {
	h.mu.Lock()
	if h.runtimeErr == "" {
		h.runtimeErr = err.Error()
		if stack != "" {
			h.runtimeErr += "\n" + stack
		}
	}
	h.mu.Unlock()
	log.Errorf("runtime error: %v", err)
	if h.notifier != nil {
		h.notifier.OnError(err)
	}
}

func (h *Handler) StatusUpdate(status model.AlgorithmStatus, message string) {
	h.mu.Lock()
	h.status = status
	h.mu.Unlock()
	if message != "" {
		log.Infof("status %s: %s", status, message)
	}
}

func (h *Handler) OrderEvent(order model.Order) {
	h.mu.Lock()
	h.orders = append(h.orders, order)
	h.mu.Unlock()
	if h.notifier != nil {
		h.notifier.OnOrder(order)
	}
}

// ProcessSynchronousEvents flushes pending debug messages to the notifier;
// called by the manager at the end of each slice.
func (h *Handler) ProcessSynchronousEvents() {
	h.mu.Lock()
	pending := h.pending
	h.pending = nil
	h.mu.Unlock()

	if h.notifier == nil {
		return
	}
	for _, message := range pending {
		h.notifier.Notify(message)
	}
}

// Result snapshots the collected run state.
func (h *Handler) Result() RunResult {
	h.mu.Lock()
	defer h.mu.Unlock()
	return RunResult{
		AlgorithmID: h.job.AlgorithmID,
		Status:      h.status,
		Equity:      append([]Sample{}, h.equity...),
		Performance: append([]Sample{}, h.performance...),
		Orders:      append([]model.Order{}, h.orders...),
		Logs:        append([]string{}, h.logs...),
		Errors:      append([]string{}, h.errors...),
		RuntimeErr:  h.runtimeErr,
	}
}

// Finalize persists the result, prints the summary and releases the
// notifier stream. Safe to call once per run.
func (h *Handler) Finalize() {
	h.mu.Lock()
	if h.finalized {
		h.mu.Unlock()
		return
	}
	h.finalized = true
	h.mu.Unlock()

	h.ProcessSynchronousEvents()

	result := h.Result()
	if h.root != "" {
		if err := h.persist(result); err != nil {
			log.Errorf("results: %v", err)
		}
	}
	h.Summary(os.Stdout)
}

// StoreLiveSnapshot writes the current state under the live key for the
// given suffix.
func (h *Handler) StoreLiveSnapshot(suffix string, at time.Time) error {
	if h.root == "" {
		return nil
	}
	key := LiveResultKey(h.job.UserID, h.job.ProjectID, h.job.DeployID, suffix, at)
	return h.write(key, h.Result())
}

func (h *Handler) persist(result RunResult) error {
	if h.job.Live {
		return h.StoreLiveSnapshot(ChartSuffixMinute, time.Now().UTC())
	}
	key := BacktestResultKey(h.job.UserID, h.job.ProjectID, h.job.BacktestID)
	if err := h.write(key, result); err != nil {
		return err
	}

	logKey := BacktestLogKey(h.job.UserID, h.job.ProjectID, h.job.AlgorithmID)
	path := filepath.Join(h.root, filepath.FromSlash(logKey))
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	var content string
	for _, line := range result.Logs {
		content += line + "\n"
	}
	return os.WriteFile(path, []byte(content), 0o644)
}

func (h *Handler) write(key string, value interface{}) error {
	path := filepath.Join(h.root, filepath.FromSlash(key))
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	payload, err := json.MarshalIndent(value, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal result: %w", err)
	}
	return os.WriteFile(path, payload, 0o644)
}
