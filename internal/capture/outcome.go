package capture

import "github.com/shoplens/labelscan/internal/extract"

// FailureKind discriminates scan failures for the caller. The empty
// kind means success.
type FailureKind string

const (
	FailureNone        FailureKind = ""
	FailureCamera      FailureKind = "camera"
	FailureNoText      FailureKind = "no-text"
	FailureEngine      FailureKind = "engine"
	FailureUnsupported FailureKind = "unsupported-type"
	FailurePDF         FailureKind = "pdf"
)

// Outcome is the single result type crossing the orchestration
// boundary. Raw engine errors never leave the orchestrator; they are
// folded into a kind plus a user-facing message here.
type Outcome struct {
	Field      extract.Field `json:"field"`
	Value      string        `json:"value,omitempty"`
	Confidence float64       `json:"confidence,omitempty"`
	Failure    FailureKind   `json:"failure,omitempty"`
	Message    string        `json:"message"`
}

// OK reports whether the scan produced a usable value.
func (o Outcome) OK() bool { return o.Failure == FailureNone }

func success(field extract.Field, value string, confidence float64) Outcome {
	return Outcome{
		Field:      field,
		Value:      value,
		Confidence: confidence,
		Message:    "Text captured successfully.",
	}
}

func failure(field extract.Field, kind FailureKind) Outcome {
	return Outcome{Field: field, Failure: kind, Message: failureMessage(kind)}
}

// failureMessage maps a kind onto the notification text shown to the
// user.
func failureMessage(kind FailureKind) string {
	switch kind {
	case FailureCamera:
		return "Camera is unavailable or access was denied."
	case FailureNoText:
		return "Could not detect clear text. Try better lighting or a different angle."
	case FailureEngine:
		return "Text recognition failed. Please try again."
	case FailureUnsupported:
		return "Unsupported file type. Upload an image or a PDF."
	case FailurePDF:
		return "Could not process the PDF document."
	default:
		return ""
	}
}
