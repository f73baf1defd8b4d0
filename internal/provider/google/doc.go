// Package google implements [tandem.ChatProvider] on the Gemini API via
// google.golang.org/genai.
//
// Gemini does not always assign function call IDs, so calls without one get
// a synthetic ID derived from their position and name. Tool results are sent
// back as function responses keyed by both ID and tool name.
package google
