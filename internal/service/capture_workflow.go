package service

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/vbonduro/bloom/internal/domain"
	"github.com/vbonduro/bloom/internal/metrics"
	"github.com/vbonduro/bloom/internal/photostore"
	"github.com/vbonduro/bloom/internal/vision"
	"github.com/vbonduro/bloom/internal/watch"
)

// photoPrefix names captured images discovery_<uuid>.jpg.
const photoPrefix = "discovery"

var (
	// ErrInvalidTransition is returned when an operation is not allowed from
	// the workflow's current step. The state is left unchanged.
	ErrInvalidTransition = errors.New("invalid workflow transition")
	// ErrWorkflowReset is returned by an in-flight Identify whose workflow was
	// reset before the model answered. Its result is discarded.
	ErrWorkflowReset = errors.New("workflow was reset")
)

type Step string

const (
	StepIdle          Step = "idle"
	StepImageCaptured Step = "image_captured"
	StepAnalyzing     Step = "analyzing"
	StepIdentified    Step = "identified"
	StepSaved         Step = "saved"
	StepError         Step = "error"
)

// CaptureState is a snapshot of one capture attempt.
type CaptureState struct {
	Step             Step   `json:"step"`
	ImagePath        string `json:"image_path,omitempty"`
	Name             string `json:"name,omitempty"`
	FunFact          string `json:"fun_fact,omitempty"`
	SavedDiscoveryID string `json:"saved_discovery_id,omitempty"`
	ErrorMessage     string `json:"error,omitempty"`
	// FailedAt is the step that was active when the workflow entered
	// StepError.
	FailedAt Step `json:"failed_at,omitempty"`
}

// discoverySaver is the subset of repository.DiscoveryRepository the capture
// workflow requires.
type discoverySaver interface {
	Save(ctx context.Context, d *domain.Discovery) error
}

// currentUser is the subset of auth.Gateway the capture workflow requires.
type currentUser interface {
	CurrentUser() *domain.User
}

// CaptureService builds capture workflows that share the same dependencies.
type CaptureService struct {
	photos     photostore.PhotoStore
	identifier vision.Identifier
	repo       discoverySaver
	auth       currentUser
	metrics    *metrics.BloomMetrics
	logger     *slog.Logger
	now        func() time.Time
}

func NewCaptureService(
	photos photostore.PhotoStore,
	identifier vision.Identifier,
	repo discoverySaver,
	auth currentUser,
	m *metrics.BloomMetrics,
	logger *slog.Logger,
) *CaptureService {
	return &CaptureService{
		photos:     photos,
		identifier: identifier,
		repo:       repo,
		auth:       auth,
		metrics:    m,
		logger:     logger,
		now:        time.Now,
	}
}

type WorkflowOption func(*CaptureWorkflow)

// WithObserver registers fn to receive every state the workflow enters, in
// order. fn runs synchronously and must not call back into the workflow.
func WithObserver(fn func(CaptureState)) WorkflowOption {
	return func(w *CaptureWorkflow) {
		w.observers = append(w.observers, fn)
	}
}

// NewWorkflow starts a capture attempt in StepIdle.
func (s *CaptureService) NewWorkflow(opts ...WorkflowOption) *CaptureWorkflow {
	w := &CaptureWorkflow{
		svc:   s,
		state: CaptureState{Step: StepIdle},
		value: watch.NewValue(CaptureState{Step: StepIdle}),
	}
	for _, opt := range opts {
		opt(w)
	}
	return w
}

// CaptureWorkflow drives one image through
// Idle → ImageCaptured → Analyzing → Identified → Saved.
// Any failure moves it to Error, which is left only through Reset.
type CaptureWorkflow struct {
	svc *CaptureService

	mu    sync.Mutex
	state CaptureState
	gen   uint64
	image []byte
	mime  string

	// notifyMu keeps observer delivery in transition order.
	notifyMu  sync.Mutex
	observers []func(CaptureState)
	value     *watch.Value[CaptureState]
}

func (w *CaptureWorkflow) State() CaptureState {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.state
}

// Watch streams the workflow state, starting with the current one.
func (w *CaptureWorkflow) Watch(ctx context.Context) <-chan CaptureState {
	return w.value.Watch(ctx)
}

// SelectImage stores the image as JPEG before anything else so the capture
// survives a later failure. Other formats are re-encoded first.
func (w *CaptureWorkflow) SelectImage(ctx context.Context, data []byte, mimeType string) error {
	w.mu.Lock()
	if w.state.Step != StepIdle {
		w.mu.Unlock()
		return fmt.Errorf("%w: cannot select an image from %s", ErrInvalidTransition, w.state.Step)
	}
	gen := w.gen
	w.mu.Unlock()

	data, err := toJPEG(data, mimeType)
	if err != nil {
		w.svc.logger.Error("capture image conversion failed", "mime_type", mimeType, "error", err)
		w.fail(gen, StepIdle, err)
		return err
	}
	mimeType = jpegMIME

	key, err := w.svc.photos.Save(ctx, photoPrefix, mimeType, bytes.NewReader(data))
	if err != nil {
		err = fmt.Errorf("failed to save image: %w", err)
		w.svc.logger.Error("capture image save failed", "error", err)
		w.fail(gen, StepIdle, err)
		return err
	}
	w.svc.logger.Info("capture image saved", "image_path", key, "bytes", len(data))

	w.mu.Lock()
	if w.gen != gen {
		w.mu.Unlock()
		return ErrWorkflowReset
	}
	w.image = data
	w.mime = mimeType
	w.setLocked(CaptureState{Step: StepImageCaptured, ImagePath: key})
	return nil
}

// Identify asks the model what the captured image shows and, on success,
// saves the discovery for the signed-in user. With nobody signed in the
// workflow stops at StepIdentified.
func (w *CaptureWorkflow) Identify(ctx context.Context) error {
	w.mu.Lock()
	if w.state.Step != StepImageCaptured {
		w.mu.Unlock()
		return fmt.Errorf("%w: cannot identify from %s", ErrInvalidTransition, w.state.Step)
	}
	gen := w.gen
	image, mimeType := w.image, w.mime
	imagePath := w.state.ImagePath
	w.setLocked(CaptureState{Step: StepAnalyzing, ImagePath: imagePath})

	start := time.Now()
	ident, err := w.svc.identifier.Identify(ctx, bytes.NewReader(image), mimeType)
	w.svc.metrics.ObserveIdentification(identifyOutcome(err), time.Since(start))
	if err != nil {
		w.svc.logger.Error("identification failed", "image_path", imagePath, "error", err)
		w.fail(gen, StepAnalyzing, err)
		return err
	}
	w.svc.logger.Info("identification complete", "image_path", imagePath, "name", ident.Name)

	w.mu.Lock()
	if w.gen != gen {
		w.mu.Unlock()
		return ErrWorkflowReset
	}
	identified := CaptureState{
		Step:      StepIdentified,
		ImagePath: imagePath,
		Name:      ident.Name,
		FunFact:   ident.FunFact,
	}
	w.setLocked(identified)

	return w.save(ctx, gen, identified)
}

// Run selects the image and identifies it in one call.
func (w *CaptureWorkflow) Run(ctx context.Context, data []byte, mimeType string) (CaptureState, error) {
	if err := w.SelectImage(ctx, data, mimeType); err != nil {
		return w.State(), err
	}
	err := w.Identify(ctx)
	return w.State(), err
}

// Reset returns the workflow to a fresh StepIdle from any step. The stored
// image file is kept.
func (w *CaptureWorkflow) Reset() {
	w.mu.Lock()
	w.gen++
	w.image = nil
	w.mime = ""
	w.setLocked(CaptureState{Step: StepIdle})
}

func (w *CaptureWorkflow) Cancel() {
	w.Reset()
}

// ClearError dismisses the error message while staying in StepError.
func (w *CaptureWorkflow) ClearError() {
	w.mu.Lock()
	if w.state.Step != StepError || w.state.ErrorMessage == "" {
		w.mu.Unlock()
		return
	}
	st := w.state
	st.ErrorMessage = ""
	w.setLocked(st)
}

func (w *CaptureWorkflow) save(ctx context.Context, gen uint64, identified CaptureState) error {
	user := w.svc.auth.CurrentUser()
	if user == nil {
		w.svc.logger.Warn("no signed-in user, discovery not saved", "image_path", identified.ImagePath)
		return nil
	}

	d := domain.NewDiscovery(uuid.NewString(), identified.Name, identified.FunFact, identified.ImagePath, user.ID, w.svc.now())
	if err := w.svc.repo.Save(ctx, d); err != nil {
		w.svc.logger.Error("failed to save discovery", "discovery_id", d.ID, "error", err)
		w.fail(gen, StepIdentified, err)
		return err
	}
	w.svc.metrics.IncSaved()
	w.svc.logger.Info("discovery saved", "discovery_id", d.ID, "user_id", user.ID)

	w.mu.Lock()
	if w.gen != gen {
		w.mu.Unlock()
		return ErrWorkflowReset
	}
	saved := identified
	saved.Step = StepSaved
	saved.SavedDiscoveryID = d.ID
	w.setLocked(saved)
	return nil
}

func (w *CaptureWorkflow) fail(gen uint64, at Step, err error) {
	w.mu.Lock()
	if w.gen != gen {
		w.mu.Unlock()
		return
	}
	st := w.state
	st.Step = StepError
	st.FailedAt = at
	st.ErrorMessage = err.Error()
	w.setLocked(st)
}

// setLocked applies st and publishes it. It must be called with mu held and
// releases it.
func (w *CaptureWorkflow) setLocked(st CaptureState) {
	w.state = st
	w.notifyMu.Lock()
	w.mu.Unlock()
	defer w.notifyMu.Unlock()

	w.svc.metrics.ObserveTransition(string(st.Step))
	w.value.Set(st)
	for _, fn := range w.observers {
		fn(st)
	}
}

func identifyOutcome(err error) string {
	switch {
	case err == nil:
		return metrics.OutcomeSuccess
	case vision.IsParseError(err):
		return metrics.OutcomeParseError
	default:
		return metrics.OutcomeModelError
	}
}
