package gateway

import (
	"fmt"
	"sort"
	"strings"

	"github.com/comfyendpoints/runtime/internal/domain"
)

// validationError carries only the detail (e.g.
// missing_required_input:prompt); the VALIDATION_ERROR kind is added by
// the handler that reports it.
type validationError struct {
	detail string
}

func (e *validationError) Error() string { return e.detail }

// validateRunPayload checks that payload's keys are exactly the union of
// required inputs, optionally extended by optional inputs; any unknown
// key or missing required key fails.
func validateRunPayload(contract *domain.WorkflowContract, payload map[string]any) error {
	allowed := make(map[string]bool, len(contract.Inputs))
	for _, f := range contract.Inputs {
		allowed[f.Name] = true
	}

	var unexpected []string
	for key := range payload {
		if !allowed[key] {
			unexpected = append(unexpected, key)
		}
	}
	if len(unexpected) > 0 {
		sort.Strings(unexpected)
		return &validationError{fmt.Sprintf("unexpected_inputs:%s", strings.Join(unexpected, ","))}
	}

	for _, f := range contract.Inputs {
		if f.Required {
			if _, ok := payload[f.Name]; !ok {
				return &validationError{fmt.Sprintf("missing_required_input:%s", f.Name)}
			}
		}
	}
	return nil
}
