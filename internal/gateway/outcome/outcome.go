package outcome

// Class categorizes the result of a single provider call. It drives whether
// the orchestrator retries, rotates the key, rotates the model or aborts.
type Class int

const (
	Success Class = iota
	RateLimited
	Unauthorized
	ModelUnavailable
	Transient
	Fatal
	// Canceled means the caller went away; it never penalizes a key.
	Canceled
)

func (c Class) String() string {
	switch c {
	case Success:
		return "success"
	case RateLimited:
		return "rate_limited"
	case Unauthorized:
		return "unauthorized"
	case ModelUnavailable:
		return "model_unavailable"
	case Transient:
		return "transient_error"
	case Fatal:
		return "fatal_error"
	case Canceled:
		return "canceled"
	default:
		return "unknown"
	}
}

// MarshalText renders the class by name in JSON diagnostics.
func (c Class) MarshalText() ([]byte, error) {
	return []byte(c.String()), nil
}

// KeyLevel reports whether the class is a problem with the credential rather
// than with the model.
func (c Class) KeyLevel() bool {
	return c == RateLimited || c == Unauthorized || c == Transient
}

// Result is the tagged outcome of one attempt. Text is set only for Success,
// Err only for the failure classes.
type Result struct {
	Class Class
	Text  string
	Err   error
}

// Ok builds a successful result.
func Ok(text string) Result {
	return Result{Class: Success, Text: text}
}

// Fail builds a failed result.
func Fail(c Class, err error) Result {
	return Result{Class: c, Err: err}
}
