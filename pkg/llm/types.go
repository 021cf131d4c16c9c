package llm

// SafetyRating is a provider safety rating in the provider's own vocabulary
type SafetyRating struct {
	Category    string // e.g. "HARM_CATEGORY_HARASSMENT"
	Probability string // e.g. "NEGLIGIBLE"; may be anything the provider invents
}

// Response is one provider response: a complete one-shot response, or a single
// increment of a streamed response
type Response struct {
	Text          string
	SafetyRatings []SafetyRating // ratings of the first candidate, if any
}

// HasText reports whether the response carries generated text
func (r *Response) HasText() bool {
	return r != nil && r.Text != ""
}
