package handlers

// FallbackKind selects the canned text returned when the gateway is
// unavailable and the caller asked for one.
type FallbackKind string

const (
	FallbackBehavioral FallbackKind = "behavioral"
	FallbackTechnical  FallbackKind = "technical"
	FallbackGeneral    FallbackKind = "general"
)

// FallbackText returns the degraded-mode answer for kind. Unknown kinds get
// the general message.
func FallbackText(kind FallbackKind) string {
	switch kind {
	case FallbackBehavioral:
		return "Sample answer: Focus on a specific situation where you demonstrated the relevant skill. Use the STAR method (Situation, Task, Action, Result) to structure your response, and highlight what you learned from the experience."
	case FallbackTechnical:
		return "Analysis temporarily unavailable. Please review your solution manually and consider: 1) Does it solve the problem correctly? 2) Is the time/space complexity optimal? 3) Is the code clean and readable?"
	default:
		return "Response temporarily unavailable due to high demand. Please try again in a few moments."
	}
}
