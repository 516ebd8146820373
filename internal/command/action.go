package command

import "strings"

const (
	ActionSpawn  = "spawn"
	ActionDelete = "delete"
	ActionModify = "modify"
	ActionScale  = "scale"
	ActionQuery  = "query"

	DefaultQuantity = 1
	DefaultScale    = 1.0

	toolSuffix = "_furniture"
)

// ToolCall is a structured decision of the reasoner: a tool name and the
// arguments it supplied.
type ToolCall struct {
	Name      string         `json:"name"`
	Arguments map[string]any `json:"arguments"`
}

// Decision is what the reasoner answered with: either a tool call or, when
// Tool is nil, free text.
type Decision struct {
	Tool *ToolCall
	Text string
}

func TextDecision(text string) Decision {
	return Decision{Text: text}
}

func ToolDecision(name string, args map[string]any) Decision {
	return Decision{Tool: &ToolCall{Name: name, Arguments: args}}
}

// Action is the JSON object sent to the headset client. Besides "action"
// it carries every argument of the tool call as is, so it stays a map.
type Action map[string]any

func (a Action) Name() string {
	s, _ := a["action"].(string)
	return s
}

func (a Action) Response() string {
	s, _ := a["response"].(string)
	return s
}

func Query(response string) Action {
	return Action{"action": ActionQuery, "response": response}
}

// Normalize converts a decision into the client's action schema. A tool
// call yields its name without the "_furniture" suffix plus the arguments
// verbatim, with quantity and scale defaulted when absent. Free text yields
// a query action. Arguments are copied; d is not modified.
func Normalize(d Decision) Action {
	if d.Tool == nil {
		return Query(d.Text)
	}

	out := make(Action, len(d.Tool.Arguments)+3)
	out["action"] = ActionName(d.Tool.Name)
	for k, v := range d.Tool.Arguments {
		out[k] = v
	}

	if _, ok := out["quantity"]; !ok {
		out["quantity"] = DefaultQuantity
	}
	if _, ok := out["scale"]; !ok {
		out["scale"] = DefaultScale
	}

	return out
}

// ActionName strips the tool suffix: "spawn_furniture" -> "spawn".
func ActionName(tool string) string {
	return strings.TrimSuffix(tool, toolSuffix)
}
