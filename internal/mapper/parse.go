// Package mapper binds WorkflowContract fields into a parsed graph's node
// input slots and back again: parsing the three prompt-template shapes the
// workflow file may carry, binding request inputs into their nodes,
// annotating output nodes with per-job runtime coordinates, and building
// the type-defaulted preflight payload submitted once at startup.
package mapper

import (
	"fmt"
	"strings"
)

// Error is a PromptMappingError: a specific, named mapping failure.
type Error struct {
	Code string
}

func (e *Error) Error() string { return e.Code }

func missingRequiredInput(name string) error {
	return &Error{Code: fmt.Sprintf("missing_required_input:%s", name)}
}

func missingContractNode(nodeID string) error {
	return &Error{Code: fmt.Sprintf("missing_contract_node:%s", nodeID)}
}

func invalidContractNodeInputs(nodeID string) error {
	return &Error{Code: fmt.Sprintf("invalid_contract_node_inputs:%s", nodeID)}
}

// rawNode is the normalized {class_type, inputs} shape every prompt template
// collapses into, keyed by node id in the returned map.
type rawNode struct {
	ClassType string
	Inputs    map[string]any
}

func normalizeClassType(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}

// inputsFromWidgets derives the reserved-node input slots from a UI-shaped
// node's positional widgets_values list, for "api input"/"api output" nodes
// only. Unrecognized class types yield no derived inputs.
func inputsFromWidgets(classType string, widgetsValues []any) map[string]any {
	switch normalizeClassType(classType) {
	case "api input":
		out := map[string]any{}
		out["name"] = widgetAt(widgetsValues, 0, "prompt")
		out["type"] = widgetAt(widgetsValues, 1, "string")
		out["required"] = widgetAt(widgetsValues, 2, true)
		out["value"] = widgetAt(widgetsValues, 3, "")
		return out
	case "api output":
		out := map[string]any{}
		out["name"] = widgetAt(widgetsValues, 0, "output")
		out["type"] = widgetAt(widgetsValues, 1, "string")
		out["value"] = widgetAt(widgetsValues, 2, "")
		return out
	default:
		return nil
	}
}

func widgetAt(values []any, idx int, fallback any) any {
	if idx < len(values) {
		return values[idx]
	}
	return fallback
}

// promptFromUINodes normalizes the UI-shaped {"nodes": [...]} form, where
// each node carries "id", "class_type" (or "type"), optional "inputs", and
// optional positional "widgets_values".
func promptFromUINodes(payload map[string]any) map[string]rawNode {
	rawNodes, ok := payload["nodes"].([]any)
	if !ok {
		return nil
	}

	prompt := make(map[string]rawNode)
	for _, n := range rawNodes {
		node, ok := n.(map[string]any)
		if !ok {
			continue
		}
		id := node["id"]
		if id == nil {
			continue
		}
		classType, _ := firstNonEmptyString(node["class_type"], node["type"])
		if classType == "" {
			continue
		}

		nodeInputs, ok := node["inputs"].(map[string]any)
		if !ok {
			nodeInputs = map[string]any{}
		}

		if widgetsValues, ok := node["widgets_values"].([]any); ok {
			for key, value := range inputsFromWidgets(classType, widgetsValues) {
				if _, exists := nodeInputs[key]; !exists {
					nodeInputs[key] = value
				}
			}
		}

		prompt[fmt.Sprintf("%v", id)] = rawNode{ClassType: classType, Inputs: nodeInputs}
	}
	return prompt
}

func firstNonEmptyString(values ...any) (string, bool) {
	for _, v := range values {
		if s, ok := v.(string); ok && s != "" {
			return s, true
		}
	}
	return "", false
}

// ParsePromptTemplate normalizes a workflow payload's prompt template into
// {node_id -> {class_type, inputs}} form, accepting the flat, "prompt"-
// wrapped, or UI "nodes"-shaped forms.
func ParsePromptTemplate(payload map[string]any) (map[string]rawNode, error) {
	if prompt, ok := payload["prompt"].(map[string]any); ok {
		return decodeFlatPrompt(prompt)
	}

	if fromNodes := promptFromUINodes(payload); len(fromNodes) > 0 {
		return fromNodes, nil
	}

	if len(payload) > 0 {
		allObjects := true
		anyHasClassType := false
		for _, v := range payload {
			obj, ok := v.(map[string]any)
			if !ok {
				allObjects = false
				break
			}
			if _, ok := obj["class_type"]; ok {
				anyHasClassType = true
			}
		}
		if allObjects && anyHasClassType {
			return decodeFlatPrompt(payload)
		}
	}

	return nil, &Error{Code: "invalid_workflow_payload"}
}

func decodeFlatPrompt(flat map[string]any) (map[string]rawNode, error) {
	prompt := make(map[string]rawNode, len(flat))
	for nodeID, v := range flat {
		node, ok := v.(map[string]any)
		if !ok {
			continue
		}
		classType, _ := node["class_type"].(string)
		nodeInputs, ok := node["inputs"].(map[string]any)
		if !ok {
			nodeInputs = map[string]any{}
		}
		prompt[nodeID] = rawNode{ClassType: classType, Inputs: nodeInputs}
	}
	return prompt, nil
}
