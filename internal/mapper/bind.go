package mapper

import (
	"encoding/json"
	"fmt"

	"github.com/comfyendpoints/runtime/internal/domain"
)

// RuntimeCoordinates are the three annotation values every "api output"
// node receives so the engine-side node implementation can persist its
// artifact where the executor expects to find it.
type RuntimeCoordinates struct {
	JobID        string
	ArtifactsDir string
	StateDBPath  string
}

// deepClone round-trips v through JSON, mirroring Python's copy.deepcopy
// for the plain-JSON-shaped prompt template.
func deepClone(nodes map[string]rawNode) (map[string]rawNode, error) {
	cloned := make(map[string]rawNode, len(nodes))
	for id, n := range nodes {
		data, err := json.Marshal(n.Inputs)
		if err != nil {
			return nil, fmt.Errorf("mapper: clone node %s: %w", id, err)
		}
		var inputs map[string]any
		if err := json.Unmarshal(data, &inputs); err != nil {
			return nil, fmt.Errorf("mapper: clone node %s: %w", id, err)
		}
		if inputs == nil {
			inputs = map[string]any{}
		}
		cloned[id] = rawNode{ClassType: n.ClassType, Inputs: inputs}
	}
	return cloned, nil
}

// resolveInputKey picks the slot key to overwrite on a bound node, in the
// preference order: the field's own name, else "value",
// else the node's unique single key, else fall back to the field name.
func resolveInputKey(nodeInputs map[string]any, preferredName string) string {
	if _, ok := nodeInputs[preferredName]; ok {
		return preferredName
	}
	if _, ok := nodeInputs["value"]; ok {
		return "value"
	}
	if len(nodeInputs) == 1 {
		for k := range nodeInputs {
			return k
		}
	}
	return preferredName
}

// bindInputs overwrites each contract input's bound node slot with the
// request payload's value, in place on prompt.
func bindInputs(prompt map[string]rawNode, contract *domain.WorkflowContract, inputPayload map[string]any) error {
	for _, field := range contract.Inputs {
		_, present := inputPayload[field.Name]
		if field.Required && !present {
			return missingRequiredInput(field.Name)
		}

		node, ok := prompt[field.NodeID]
		if !ok {
			return missingContractNode(field.NodeID)
		}
		if node.Inputs == nil {
			return invalidContractNodeInputs(field.NodeID)
		}

		if present {
			key := resolveInputKey(node.Inputs, field.Name)
			node.Inputs[key] = inputPayload[field.Name]
		} else if field.Required {
			return missingRequiredInput(field.Name)
		}
	}
	return nil
}

// annotateOutputNodes writes ce_job_id/ce_artifacts_dir/ce_state_db into
// every "api output" node's input slots.
func annotateOutputNodes(prompt map[string]rawNode, coords RuntimeCoordinates) {
	for _, node := range prompt {
		if normalizeClassType(node.ClassType) != domain.ReservedAPIOutput {
			continue
		}
		if node.Inputs == nil {
			continue
		}
		node.Inputs["ce_job_id"] = coords.JobID
		node.Inputs["ce_artifacts_dir"] = coords.ArtifactsDir
		node.Inputs["ce_state_db"] = coords.StateDBPath
	}
}

// ValidateOutputBindings parses workflowPayload and checks that every
// contract output field's bound node_id resolves to an "api output" class
// node. A field pointing at a missing node or one of any other class fails
// closed with a domain.ContractError, since such a node never receives the
// ce_job_id/ce_artifacts_dir/ce_state_db annotations that let it report a
// finished job.
func ValidateOutputBindings(workflowPayload map[string]any, contract *domain.WorkflowContract) error {
	template, err := ParsePromptTemplate(workflowPayload)
	if err != nil {
		return err
	}
	for _, f := range contract.Outputs {
		node, ok := template[f.NodeID]
		if !ok || normalizeClassType(node.ClassType) != domain.ReservedAPIOutput {
			return &domain.ContractError{Reason: "output_node_not_api_output", Field: f.Name}
		}
	}
	return nil
}

// MapContractPayloadToPrompt is the Mapper's core operation: parse the
// workflow payload, bind every contract input, annotate output nodes with
// this job's runtime coordinates, and return the submittable {"prompt": ...}
// payload.
func MapContractPayloadToPrompt(
	workflowPayload map[string]any,
	contract *domain.WorkflowContract,
	inputPayload map[string]any,
	coords RuntimeCoordinates,
) (map[string]any, error) {
	template, err := ParsePromptTemplate(workflowPayload)
	if err != nil {
		return nil, err
	}

	prompt, err := deepClone(template)
	if err != nil {
		return nil, err
	}

	if err := bindInputs(prompt, contract, inputPayload); err != nil {
		return nil, err
	}
	annotateOutputNodes(prompt, coords)

	return map[string]any{"prompt": toWirePrompt(prompt)}, nil
}

func toWirePrompt(prompt map[string]rawNode) map[string]any {
	wire := make(map[string]any, len(prompt))
	for id, n := range prompt {
		wire[id] = map[string]any{
			"class_type": n.ClassType,
			"inputs":     n.Inputs,
		}
	}
	return wire
}

// defaultValue returns the type-default for a contract field's declared
// type.
func defaultValue(t domain.FieldType) any {
	switch t {
	case domain.TypeString:
		return ""
	case domain.TypeInteger:
		return 0
	case domain.TypeNumber:
		return 0.0
	case domain.TypeBoolean:
		return false
	case domain.TypeObject:
		return map[string]any{}
	case domain.TypeArray:
		return []any{}
	default:
		if t.IsMedia() {
			return ""
		}
		return ""
	}
}

// BuildPreflightPayload fills every contract input with its type's default
// value and maps it through, so the graph can be submitted once at startup
// to force the engine to resolve every model reference.
func BuildPreflightPayload(
	workflowPayload map[string]any,
	contract *domain.WorkflowContract,
	coords RuntimeCoordinates,
) (map[string]any, error) {
	defaults := make(map[string]any, len(contract.Inputs))
	for _, field := range contract.Inputs {
		defaults[field.Name] = defaultValue(field.Type)
	}
	return MapContractPayloadToPrompt(workflowPayload, contract, defaults, coords)
}
