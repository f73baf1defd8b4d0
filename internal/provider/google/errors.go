package google

import (
	"errors"
	"fmt"

	ai "github.com/spetersoncode/tandem"
	"github.com/spetersoncode/tandem/internal/provider/status"
	"google.golang.org/genai"
)

// BlockedError reports a prompt rejected by content filtering.
type BlockedError struct {
	Reason string
}

func (e *BlockedError) Error() string {
	return fmt.Sprintf("request blocked: %s", e.Reason)
}

// wrapError categorizes genai API errors. genai.APIError carries no
// headers, so Retry-After is never known.
func wrapError(err error) error {
	var apiErr genai.APIError
	if !errors.As(err, &apiErr) {
		return err
	}
	return status.Wrap(ai.ProviderGoogle, apiErr.Code, nil, err)
}
