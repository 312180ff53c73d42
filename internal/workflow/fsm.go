package workflow

import "fmt"

// Phase is where the admin pipeline currently is.
type Phase string

const (
	PhaseIdle          Phase = "idle"
	PhaseUploading     Phase = "uploading"
	PhasePreprocessing Phase = "preprocessing"
	PhaseTraining      Phase = "training"
	PhaseCompleted     Phase = "completed"
	PhaseFailed        Phase = "failed"
)

// Step names the step a failure happened in.
type Step string

const (
	StepUpload     Step = "upload"
	StepPreprocess Step = "preprocess"
	StepTrain      Step = "train"
)

// State is a phase plus, when failed, the step that failed.
type State struct {
	Phase      Phase `json:"phase"`
	FailedStep Step  `json:"failedStep,omitempty"`
}

func (s State) String() string {
	if s.Phase == PhaseFailed {
		return fmt.Sprintf("failed(%s)", s.FailedStep)
	}
	return string(s.Phase)
}

// Busy reports whether a request is in flight for this state.
func (s State) Busy() bool {
	return s.Phase == PhaseUploading || s.Phase == PhasePreprocessing || s.Phase == PhaseTraining
}

// EventKind is an input to the state machine.
type EventKind string

const (
	EvUploadStarted       EventKind = "upload_started"
	EvUploadSucceeded     EventKind = "upload_succeeded"
	EvUploadFailed        EventKind = "upload_failed"
	EvDatasetRemoved      EventKind = "dataset_removed"
	EvPreprocessStarted   EventKind = "preprocess_started"
	EvPreprocessSucceeded EventKind = "preprocess_succeeded"
	EvPreprocessFailed    EventKind = "preprocess_failed"
	EvTrainStarted        EventKind = "train_started"
	EvTrainResumed        EventKind = "train_resumed"
	EvTrainCompleted      EventKind = "train_completed"
	EvTrainFailed         EventKind = "train_failed"
	// EvTrainAbandoned ends a training step whose outcome is unknown, for
	// example after the session that was watching it ended.
	EvTrainAbandoned EventKind = "train_abandoned"
)

// Input is one event fed to Transition. Advance asks a successful step to
// move straight into the next one.
type Input struct {
	Kind    EventKind
	Advance bool
}

// ErrBusy is returned when an event needs the pipeline to be at rest.
type ErrBusy struct {
	State State
	Kind  EventKind
}

func (e *ErrBusy) Error() string {
	return fmt.Sprintf("cannot %s while %s", e.Kind, e.State)
}

// ErrInvalidTransition is returned for an event that makes no sense in
// the current state.
type ErrInvalidTransition struct {
	State State
	Kind  EventKind
}

func (e *ErrInvalidTransition) Error() string {
	return fmt.Sprintf("invalid event %s in state %s", e.Kind, e.State)
}

func atRest(s State) bool {
	return s.Phase == PhaseIdle || s.Phase == PhaseCompleted || s.Phase == PhaseFailed
}

// Transition is the pure state machine:
//
//	idle -> uploading -> preprocessing -> training -> completed
//
// with failed(step) reachable from every active phase. Starting any step
// requires the pipeline to be at rest (idle, completed or failed).
func Transition(s State, in Input) (State, error) {
	switch in.Kind {
	case EvUploadStarted, EvPreprocessStarted, EvTrainStarted, EvTrainResumed, EvDatasetRemoved:
		if !atRest(s) {
			return s, &ErrBusy{State: s, Kind: in.Kind}
		}
		switch in.Kind {
		case EvUploadStarted:
			return State{Phase: PhaseUploading}, nil
		case EvPreprocessStarted:
			return State{Phase: PhasePreprocessing}, nil
		case EvTrainStarted, EvTrainResumed:
			return State{Phase: PhaseTraining}, nil
		default:
			return State{Phase: PhaseIdle}, nil
		}

	case EvUploadSucceeded:
		if s.Phase != PhaseUploading {
			break
		}
		if in.Advance {
			return State{Phase: PhasePreprocessing}, nil
		}
		return State{Phase: PhaseIdle}, nil

	case EvUploadFailed:
		if s.Phase == PhaseUploading {
			return State{Phase: PhaseFailed, FailedStep: StepUpload}, nil
		}

	case EvPreprocessSucceeded:
		if s.Phase != PhasePreprocessing {
			break
		}
		if in.Advance {
			return State{Phase: PhaseTraining}, nil
		}
		return State{Phase: PhaseIdle}, nil

	case EvPreprocessFailed:
		if s.Phase == PhasePreprocessing {
			return State{Phase: PhaseFailed, FailedStep: StepPreprocess}, nil
		}

	case EvTrainCompleted:
		// An abandoned training step may still turn out to have finished.
		if s.Phase == PhaseTraining || s == (State{Phase: PhaseFailed, FailedStep: StepTrain}) {
			return State{Phase: PhaseCompleted}, nil
		}

	case EvTrainFailed, EvTrainAbandoned:
		if s.Phase == PhaseTraining {
			return State{Phase: PhaseFailed, FailedStep: StepTrain}, nil
		}
	}

	return s, &ErrInvalidTransition{State: s, Kind: in.Kind}
}
