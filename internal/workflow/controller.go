// Package workflow drives the admin pipeline: upload one dataset per
// commodity, preprocess them all, train, then watch training until it ends.
package workflow

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/url"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/harga-pangan/console/internal/apiclient"
	"github.com/harga-pangan/console/internal/apperr"
	"github.com/harga-pangan/console/internal/komoditas"
	"github.com/harga-pangan/console/internal/logging"
	"github.com/harga-pangan/console/internal/models"
	"github.com/labstack/gommon/log"
)

// DefaultPollInterval matches the dashboard's training status refresh.
const DefaultPollInterval = 5 * time.Second

const journalSize = 200

// Backend is the part of the API the workflow uses.
type Backend interface {
	Datasets(ctx context.Context) ([]models.DatasetRecord, error)
	UploadDataset(ctx context.Context, name, fileName string, content io.Reader) (*models.UploadResult, error)
	DeleteDataset(ctx context.Context, name string) error
	Preprocess(ctx context.Context) (string, []models.PreprocessResult, error)
	Train(ctx context.Context, name string) (*models.TrainingJob, error)
	TrainingStatus(ctx context.Context) (*models.TrainingJob, error)
	PlotImages(ctx context.Context) (map[string]models.PlotInfo, error)
}

// Session is the part of the session manager the workflow uses.
type Session interface {
	Guard() error
	Done() <-chan struct{}
}

// Config tunes the controller.
type Config struct {
	PollInterval   time.Duration
	RequestTimeout time.Duration
	AutoPreprocess bool
	AutoTrain      bool
	Now            func() time.Time
	Logger         *log.Logger
}

// DefaultConfig keeps the automatic chain upload -> preprocess -> train.
func DefaultConfig() Config {
	return Config{
		PollInterval:   DefaultPollInterval,
		RequestTimeout: 30 * time.Second,
		AutoPreprocess: true,
		AutoTrain:      true,
		Now:            time.Now,
	}
}

// Event is broadcast for every applied transition and every training
// progress update.
type Event struct {
	Seq       int                 `json:"seq"`
	RunID     string              `json:"runId"`
	Kind      EventKind           `json:"kind"`
	From      State               `json:"from"`
	To        State               `json:"to"`
	Komoditas string              `json:"komoditas,omitempty"`
	Message   string              `json:"message,omitempty"`
	Job       *models.TrainingJob `json:"job,omitempty"`
	At        time.Time           `json:"at"`
}

// EvProgress is emitted on training status updates that do not change state.
const EvProgress EventKind = "progress"

// Snapshot is a consistent copy of everything the admin screen shows.
type Snapshot struct {
	RunID             string                    `json:"runId"`
	State             State                     `json:"state"`
	Slots             []models.DatasetSlot      `json:"slots"`
	Options           []string                  `json:"options"`
	AllUploaded       bool                      `json:"allUploaded"`
	PreprocessingDone bool                      `json:"preprocessingDone"`
	Results           []models.PreprocessResult `json:"results"`
	Job               models.TrainingJob        `json:"job"`
	Polling           bool                      `json:"polling"`
	Message           string                    `json:"message"`
	Visualizations    map[string]string         `json:"visualizations"`
}

// Controller owns the pipeline state. Steps run on the caller's goroutine
// one at a time; training status polling runs on a single goroutine owned
// by the controller.
type Controller struct {
	backend Backend
	session Session
	cfg     Config
	logger  *log.Logger

	ctx    context.Context
	cancel context.CancelFunc

	stepMu sync.Mutex

	mu                sync.RWMutex
	runID             string
	state             State
	slots             map[string]models.DatasetSlot
	preprocessingDone bool
	results           []models.PreprocessResult
	job               models.TrainingJob
	message           string
	visualizations    map[string]string
	poll              *poller
	unsettled         bool
	journal           []Event
	seq               int
	subs              map[int]chan Event
	nextSub           int
	closed            bool
}

// NewController creates a controller with every slot empty.
func NewController(backend Backend, session Session, cfg Config) *Controller {
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = DefaultPollInterval
	}
	if cfg.RequestTimeout <= 0 {
		cfg.RequestTimeout = 30 * time.Second
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	if cfg.Logger == nil {
		cfg.Logger = logging.New("workflow")
	}

	ctx, cancel := context.WithCancel(context.Background())
	slots := make(map[string]models.DatasetSlot, len(komoditas.All))
	for _, name := range komoditas.All {
		slots[name] = models.EmptySlot(name)
	}

	return &Controller{
		backend:        backend,
		session:        session,
		cfg:            cfg,
		logger:         cfg.Logger,
		ctx:            ctx,
		cancel:         cancel,
		runID:          uuid.New().String(),
		state:          State{Phase: PhaseIdle},
		slots:          slots,
		job:            models.TrainingJob{Status: models.TrainingIdle},
		visualizations: make(map[string]string),
		subs:           make(map[int]chan Event),
	}
}

// Upload sends one commodity's dataset. The slot is replaced only when the
// backend accepts the file. If this upload completes the set, the
// controller moves on to preprocessing by itself.
func (c *Controller) Upload(ctx context.Context, name, fileName string, content io.Reader) (*models.DatasetSlot, error) {
	display, ok := komoditas.Lookup(name)
	if !ok {
		return nil, apperr.NewValidationError("komoditas", fmt.Sprintf("Komoditas tidak dikenal: %s", name))
	}
	if !strings.EqualFold(filepath.Ext(fileName), ".csv") {
		return nil, apperr.NewValidationError("file", "Tipe file tidak diperbolehkan. Gunakan .csv")
	}
	if content == nil {
		return nil, apperr.NewValidationError("file", "Tidak ada file yang dipilih")
	}
	if err := c.session.Guard(); err != nil {
		return nil, err
	}

	c.stepMu.Lock()
	defer c.stepMu.Unlock()

	if err := c.apply(Input{Kind: EvUploadStarted}, display, ""); err != nil {
		return nil, err
	}
	wasComplete := c.AllUploaded()

	c.logger.Infof("[Run %s] Uploading %s (%s)", c.shortRun(), display, fileName)
	result, err := c.backend.UploadDataset(ctx, display, fileName, content)
	if err != nil {
		c.fail(EvUploadFailed, display, err)
		return nil, err
	}

	slot := models.DatasetSlot{
		Komoditas:  display,
		Uploaded:   true,
		Filename:   result.Filename,
		RowCount:   result.Rows,
		UploadedAt: c.cfg.Now(),
	}

	c.mu.Lock()
	c.slots[display] = slot
	c.invalidatePreprocessingLocked()
	c.message = fmt.Sprintf("Dataset %s berhasil diunggah (%d baris)", display, result.Rows)
	c.mu.Unlock()

	advance := !wasComplete && c.AllUploaded() && c.cfg.AutoPreprocess
	if err := c.apply(Input{Kind: EvUploadSucceeded, Advance: advance}, display, c.Message()); err != nil {
		return &slot, err
	}

	if advance {
		c.logger.Infof("[Run %s] All datasets uploaded, starting preprocessing", c.shortRun())
		if err := c.runPreprocess(ctx); err != nil {
			c.logger.Warnf("[Run %s] Automatic preprocessing failed: %v", c.shortRun(), err)
		}
	}

	return &slot, nil
}

// Delete removes one commodity's dataset and invalidates preprocessing.
func (c *Controller) Delete(ctx context.Context, name string) error {
	display, ok := komoditas.Lookup(name)
	if !ok {
		return apperr.NewValidationError("komoditas", fmt.Sprintf("Komoditas tidak dikenal: %s", name))
	}
	if err := c.session.Guard(); err != nil {
		return err
	}

	c.stepMu.Lock()
	defer c.stepMu.Unlock()

	if state := c.State(); !atRest(state) {
		return c.busyError(&ErrBusy{State: state, Kind: EvDatasetRemoved})
	}

	if err := c.backend.DeleteDataset(ctx, display); err != nil {
		c.setMessage(apperr.UserMessage(err))
		return err
	}

	c.mu.Lock()
	c.slots[display] = models.EmptySlot(display)
	c.invalidatePreprocessingLocked()
	c.message = fmt.Sprintf("Dataset %s dihapus", display)
	c.mu.Unlock()

	return c.apply(Input{Kind: EvDatasetRemoved}, display, c.Message())
}

// Preprocess runs preprocessing for every dataset. All slots must be
// uploaded. On success training starts unless AutoTrain is off.
func (c *Controller) Preprocess(ctx context.Context) error {
	if err := c.session.Guard(); err != nil {
		return err
	}

	// Slots only change under stepMu, so the gate holds for the whole step.
	c.stepMu.Lock()
	defer c.stepMu.Unlock()

	if !c.AllUploaded() {
		return apperr.NewValidationError("datasets", "Semua dataset harus diunggah sebelum preprocessing")
	}

	if err := c.apply(Input{Kind: EvPreprocessStarted}, "", ""); err != nil {
		return err
	}
	return c.runPreprocess(ctx)
}

// Train starts training for one commodity, or all of them when name is
// empty. Preprocessing must have succeeded since the last dataset change.
func (c *Controller) Train(ctx context.Context, name string) error {
	target := ""
	if name != "" {
		display, ok := komoditas.Lookup(name)
		if !ok {
			return apperr.NewValidationError("komoditas", fmt.Sprintf("Komoditas tidak dikenal: %s", name))
		}
		target = display
	}
	if err := c.session.Guard(); err != nil {
		return err
	}

	c.stepMu.Lock()
	defer c.stepMu.Unlock()

	if !c.PreprocessingDone() {
		return apperr.NewValidationError("preprocessing", "Lakukan preprocessing data terlebih dahulu")
	}

	if err := c.apply(Input{Kind: EvTrainStarted}, target, ""); err != nil {
		return err
	}
	return c.runTrain(ctx, target)
}

// runPreprocess expects the state to already be preprocessing.
func (c *Controller) runPreprocess(ctx context.Context) error {
	started := time.Now()
	msg, results, err := c.backend.Preprocess(ctx)
	if err != nil {
		c.fail(EvPreprocessFailed, "", err)
		return err
	}

	failed := 0
	for _, r := range results {
		if r.Failed() {
			failed++
			c.logger.Warnf("[Run %s] Preprocessing %s failed: %s", c.shortRun(), r.Komoditas, r.Error)
		}
	}
	c.logger.Infof("[Run %s] Preprocessing done in %s: %d ok, %d failed", c.shortRun(),
		time.Since(started).Round(time.Millisecond), len(results)-failed, failed)

	c.mu.Lock()
	c.results = results
	c.preprocessingDone = true
	c.message = msg
	c.mu.Unlock()

	advance := c.cfg.AutoTrain
	if err := c.apply(Input{Kind: EvPreprocessSucceeded, Advance: advance}, "", msg); err != nil {
		return err
	}

	if advance {
		return c.runTrain(ctx, "")
	}
	return nil
}

// runTrain expects the state to already be training.
func (c *Controller) runTrain(ctx context.Context, target string) error {
	job, err := c.backend.Train(ctx, target)
	if err != nil {
		c.fail(EvTrainFailed, target, err)
		return err
	}

	c.mu.Lock()
	c.job = *job
	if job.Message != "" {
		c.message = job.Message
	}
	c.mu.Unlock()

	c.logger.Infof("[Run %s] Training started for %s", c.shortRun(), targetLabel(target))
	c.startPolling(target)
	return nil
}

// Refresh reloads dataset slots, the current training job and the chart
// URLs from the backend. A job already running is picked up and polled.
func (c *Controller) Refresh(ctx context.Context) error {
	if err := c.session.Guard(); err != nil {
		return err
	}

	c.stepMu.Lock()
	defer c.stepMu.Unlock()

	records, err := c.backend.Datasets(ctx)
	if err != nil {
		return err
	}

	c.mu.Lock()
	for _, name := range komoditas.All {
		c.slots[name] = models.EmptySlot(name)
	}
	for _, rec := range records {
		display, ok := komoditas.Lookup(rec.Komoditas)
		if !ok {
			c.logger.Warnf("ignoring dataset for unknown commodity %q", rec.Komoditas)
			continue
		}
		slot := models.DatasetSlot{Komoditas: display, Uploaded: true, Filename: rec.Filename, RowCount: rec.Rows}
		if ts, err := time.ParseInLocation("2006-01-02 15:04:05", rec.Timestamp, time.Local); err == nil {
			slot.UploadedAt = ts
		}
		c.slots[display] = slot
	}
	c.mu.Unlock()

	job, err := c.backend.TrainingStatus(ctx)
	if err != nil {
		return err
	}
	c.mu.Lock()
	c.job = *job
	c.mu.Unlock()

	if job.IsRunning {
		if c.State().Phase != PhaseTraining {
			if err := c.apply(Input{Kind: EvTrainResumed}, targetName(job), job.Message); err != nil {
				return err
			}
		}
		c.startPolling(targetName(job))
	} else {
		c.settle(job)
	}

	if err := c.loadVisualizations(ctx); err != nil {
		c.logger.Warnf("loading chart urls: %v", err)
	}
	return nil
}

// settle ends a training step nobody is watching any more with the
// outcome the backend reports. A step abandoned earlier is corrected too.
func (c *Controller) settle(job *models.TrainingJob) {
	c.mu.RLock()
	phase, unsettled, polling := c.state.Phase, c.unsettled, c.poll != nil
	c.mu.RUnlock()
	if polling || (phase != PhaseTraining && !unsettled) {
		return
	}

	target := targetName(job)
	switch {
	case job.Status == models.TrainingCompleted:
		c.logger.Infof("[Run %s] Training finished while unobserved", c.shortRun())
		c.refreshVisualizations(target)
		c.applyLogged(Input{Kind: EvTrainCompleted}, target, job.Message)
	case phase != PhaseTraining:
		c.mu.Lock()
		c.unsettled = false
		if job.Message != "" {
			c.message = job.Message
		}
		c.mu.Unlock()
	case job.Status == models.TrainingFailed:
		c.applyLogged(Input{Kind: EvTrainFailed}, target, job.Message)
	default:
		c.applyLogged(Input{Kind: EvTrainAbandoned}, target, "Status training tidak diketahui")
	}
}

// Close stops polling and releases the controller. Further steps fail.
func (c *Controller) Close() {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.closed = true
	p := c.poll
	for id, ch := range c.subs {
		close(ch)
		delete(c.subs, id)
	}
	c.mu.Unlock()

	c.cancel()
	if p != nil {
		p.halt()
		<-p.done
	}
}

// Snapshot returns a consistent copy of the controller state.
func (c *Controller) Snapshot() Snapshot {
	c.mu.RLock()
	defer c.mu.RUnlock()

	snap := Snapshot{
		RunID:             c.runID,
		State:             c.state,
		Slots:             make([]models.DatasetSlot, 0, len(komoditas.All)),
		Options:           []string{},
		AllUploaded:       true,
		PreprocessingDone: c.preprocessingDone,
		Results:           append([]models.PreprocessResult(nil), c.results...),
		Job:               c.job,
		Polling:           c.poll != nil,
		Message:           c.message,
		Visualizations:    make(map[string]string, len(c.visualizations)),
	}
	for _, name := range komoditas.All {
		slot := c.slots[name]
		snap.Slots = append(snap.Slots, slot)
		if !slot.Uploaded {
			snap.Options = append(snap.Options, name)
			snap.AllUploaded = false
		}
	}
	now := c.cfg.Now()
	for k, v := range c.visualizations {
		snap.Visualizations[k] = cacheBust(v, now)
	}
	return snap
}

// State returns the current state.
func (c *Controller) State() State {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.state
}

// AllUploaded reports whether every commodity has a dataset.
func (c *Controller) AllUploaded() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	for _, slot := range c.slots {
		if !slot.Uploaded {
			return false
		}
	}
	return true
}

// PreprocessingDone reports whether preprocessing succeeded since the
// last dataset change.
func (c *Controller) PreprocessingDone() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.preprocessingDone
}

// Message is the latest user-visible status line.
func (c *Controller) Message() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.message
}

// Journal returns the most recent events, oldest first.
func (c *Controller) Journal() []Event {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return append([]Event(nil), c.journal...)
}

// Subscribe returns a channel of events and a function to stop receiving.
// Slow subscribers miss events rather than block the pipeline.
func (c *Controller) Subscribe(buffer int) (<-chan Event, func()) {
	if buffer <= 0 {
		buffer = 32
	}
	ch := make(chan Event, buffer)

	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		close(ch)
		return ch, func() {}
	}
	id := c.nextSub
	c.nextSub++
	c.subs[id] = ch
	c.mu.Unlock()

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			c.mu.Lock()
			defer c.mu.Unlock()
			if sub, ok := c.subs[id]; ok {
				delete(c.subs, id)
				close(sub)
			}
		})
	}
}

// apply runs one transition, records it and notifies subscribers.
func (c *Controller) apply(in Input, name, message string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return apperr.NewValidationError("workflow", "Workflow sudah ditutup")
	}

	from := c.state
	to, err := Transition(from, in)
	if err != nil {
		var busy *ErrBusy
		if errors.As(err, &busy) {
			return c.busyError(busy)
		}
		c.logger.Errorf("[Run %s] %v", c.shortRunLocked(), err)
		return err
	}

	c.state = to
	c.unsettled = in.Kind == EvTrainAbandoned
	c.logger.Infof("[Run %s] %s -> %s (%s)", c.shortRunLocked(), from, to, in.Kind)
	job := c.job
	c.emitLocked(Event{Kind: in.Kind, From: from, To: to, Komoditas: name, Message: message, Job: &job})
	return nil
}

func (c *Controller) emitLocked(ev Event) {
	c.seq++
	ev.Seq = c.seq
	ev.RunID = c.runID
	ev.At = c.cfg.Now()

	c.journal = append(c.journal, ev)
	if len(c.journal) > journalSize {
		c.journal = c.journal[len(c.journal)-journalSize:]
	}

	for _, ch := range c.subs {
		select {
		case ch <- ev:
		default:
		}
	}
}

// fail moves to failed(step), keeping the error as the visible message.
func (c *Controller) fail(kind EventKind, name string, cause error) {
	msg := apperr.UserMessage(cause)
	c.setMessage(msg)
	c.logger.Errorf("[Run %s] %s: %v", c.shortRun(), kind, cause)
	if err := c.apply(Input{Kind: kind}, name, msg); err != nil {
		c.logger.Errorf("[Run %s] recording failure: %v", c.shortRun(), err)
	}
}

func (c *Controller) busyError(busy *ErrBusy) error {
	return apperr.NewValidationError("workflow", fmt.Sprintf("Proses %s sedang berjalan", busy.State.Phase))
}

func (c *Controller) invalidatePreprocessingLocked() {
	c.preprocessingDone = false
	c.results = nil
}

func (c *Controller) setMessage(msg string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.message = msg
}

func (c *Controller) shortRun() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.shortRunLocked()
}

func (c *Controller) shortRunLocked() string {
	return c.runID[:8]
}

// loadVisualizations fetches chart URLs for every commodity that has them.
func (c *Controller) loadVisualizations(ctx context.Context) error {
	plots, err := c.backend.PlotImages(ctx)
	if err != nil {
		return err
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	for name, info := range plots {
		display, ok := komoditas.Lookup(name)
		if !ok || info.PredictionURL == "" {
			continue
		}
		c.visualizations[display] = info.PredictionURL
	}
	return nil
}

// refreshVisualizations rebuilds prediction chart URLs after training.
func (c *Controller) refreshVisualizations(target string) {
	names := komoditas.All
	if target != "" {
		names = []string{target}
	}

	now := c.cfg.Now()
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, name := range names {
		c.visualizations[name] = apiclient.PlotImagePath(name, apiclient.PlotPredictions, now)
	}
}

// cacheBust sets the t parameter so every snapshot names a fresh image.
func cacheBust(raw string, at time.Time) string {
	u, err := url.Parse(raw)
	if err != nil {
		return raw
	}
	q := u.Query()
	q.Set("t", strconv.FormatInt(at.UnixMilli(), 10))
	u.RawQuery = q.Encode()
	return u.String()
}

func targetName(job *models.TrainingJob) string {
	if job == nil || job.TargetCommodity == nil {
		return ""
	}
	if display, ok := komoditas.Lookup(*job.TargetCommodity); ok {
		return display
	}
	return ""
}

func targetLabel(target string) string {
	if target == "" {
		return "all commodities"
	}
	return target
}
