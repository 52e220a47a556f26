package response

// ErrCode is a typed error code enum for consistent API error identification.
type ErrCode string

const (
	// ─── Authentication ────────────────────────────────────────────────
	ErrTokenRequired ErrCode = "TOKEN_REQUIRED"
	ErrTokenInvalid  ErrCode = "TOKEN_INVALID"

	// ─── Authorization ─────────────────────────────────────────────────
	ErrForbidden ErrCode = "FORBIDDEN"

	// ─── Validation ────────────────────────────────────────────────────
	ErrValidation     ErrCode = "VALIDATION_ERROR"
	ErrInvalidID      ErrCode = "INVALID_ID"
	ErrInvalidPayload ErrCode = "INVALID_PAYLOAD"

	// ─── Exam access ───────────────────────────────────────────────────
	ErrExamNotFound     ErrCode = "EXAM_NOT_FOUND"
	ErrExamNotStarted   ErrCode = "EXAM_NOT_STARTED"
	ErrExamEnded        ErrCode = "EXAM_ENDED"
	ErrAttemptUsed      ErrCode = "ATTEMPT_USED"
	ErrSubjectsRequired ErrCode = "SUBJECT_SELECTION_REQUIRED"
	ErrInvalidSubjects  ErrCode = "INVALID_SUBJECT_CHOICES"

	// ─── Attempt ───────────────────────────────────────────────────────
	ErrNoAttempt        ErrCode = "NO_ATTEMPT"
	ErrNotInProgress    ErrCode = "ATTEMPT_NOT_IN_PROGRESS"
	ErrAlreadySubmitted ErrCode = "ALREADY_SUBMITTED"
	ErrUnknownQuestion  ErrCode = "UNKNOWN_QUESTION"
	ErrInvalidOption    ErrCode = "INVALID_OPTION"
	ErrNoResult         ErrCode = "NO_RESULT"
	ErrResultPending    ErrCode = "RESULT_PENDING"

	// ─── Rate Limiting ─────────────────────────────────────────────────
	ErrRateLimitExceeded ErrCode = "RATE_LIMIT_EXCEEDED"

	// ─── Server ────────────────────────────────────────────────────────
	ErrInternal ErrCode = "INTERNAL_ERROR"
)

// GetMessage returns a human-readable message for a given error code.
func GetMessage(code ErrCode) string {
	switch code {
	// ─── Authentication ────────────────────────────────────────────────
	case ErrTokenRequired:
		return "Authentication token is required."
	case ErrTokenInvalid:
		return "Authentication token is invalid or expired."

	// ─── Authorization ─────────────────────────────────────────────────
	case ErrForbidden:
		return "You are not allowed to take this exam."

	// ─── Validation ────────────────────────────────────────────────────
	case ErrValidation:
		return "Validation failed. Please check your input."
	case ErrInvalidID:
		return "Invalid ID format."
	case ErrInvalidPayload:
		return "Invalid request payload."

	// ─── Exam access ───────────────────────────────────────────────────
	case ErrExamNotFound:
		return "Exam not found."
	case ErrExamNotStarted:
		return "This exam has not started yet."
	case ErrExamEnded:
		return "This exam has ended."
	case ErrAttemptUsed:
		return "This exam allows a single attempt and you have already taken it."
	case ErrSubjectsRequired:
		return "Choose your optional subjects before starting."
	case ErrInvalidSubjects:
		return "The chosen optional subjects are not valid for this exam."

	// ─── Attempt ───────────────────────────────────────────────────────
	case ErrNoAttempt:
		return "You have no attempt in progress for this exam."
	case ErrNotInProgress:
		return "This attempt is no longer in progress."
	case ErrAlreadySubmitted:
		return "This attempt has already been submitted."
	case ErrUnknownQuestion:
		return "The question is not part of this attempt."
	case ErrInvalidOption:
		return "The selected option does not exist."
	case ErrNoResult:
		return "No submitted attempt was found for this exam."
	case ErrResultPending:
		return "Your previous attempt is still being saved. Try again shortly."

	// ─── Rate Limiting ─────────────────────────────────────────────────
	case ErrRateLimitExceeded:
		return "Too many requests. Please try again later."

	// ─── Server ────────────────────────────────────────────────────────
	case ErrInternal:
		return "Internal server error."
	default:
		return "An unexpected error occurred."
	}
}
