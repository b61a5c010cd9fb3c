package protocol

import (
	"errors"
	"fmt"

	"github.com/bytedance/sonic"
)

// Message type tags. These values are part of the wire contract with the
// host UI and must not change.
const (
	TypeExecute      = "execute"
	TypeResult       = "result"
	TypeLog          = "log"
	TypeNotification = "notification"
)

// Action types understood by the privileged action executor.
const (
	ActionPopup     = "popup"
	ActionClipboard = "clipboard"
	ActionOpenURL   = "open-url"
	ActionCustom    = "custom"
	ActionNone      = "none"
	ActionOpenUI    = "open-ui"
)

// ErrTimeout indicates an execution unit failed to reply within its deadline.
var ErrTimeout = errors.New("execution timed out")

// ExecuteMessage asks an execution unit to run a plugin. Two variants share
// this shape: the module variant carries PluginPath and Query, the legacy
// code variant carries an inline Code string plus Args. Permissions are a
// snapshot taken at dispatch time, not a live reference. Timeout is in
// milliseconds.
type ExecuteMessage struct {
	Type        string   `json:"type"`
	PluginID    string   `json:"pluginId"`
	PluginPath  string   `json:"pluginPath"`
	Query       string   `json:"query"`
	Code        string   `json:"code,omitempty"`
	Args        []any    `json:"args,omitempty"`
	Permissions []string `json:"permissions"`
	Timeout     int64    `json:"timeout"`
}

// ResultMessage is the execution unit's reply. ExecutionTime is in
// milliseconds.
type ResultMessage struct {
	Type          string               `json:"type"`
	Success       bool                 `json:"success"`
	Results       []PluginSearchResult `json:"results"`
	Error         string               `json:"error,omitempty"`
	ExecutionTime int64                `json:"executionTime"`
}

// LogMessage carries console output from plugin code, forwarded verbatim to
// the host logging system.
type LogMessage struct {
	Type     string `json:"type"`
	Level    string `json:"level"`
	Args     []any  `json:"args"`
	PluginID string `json:"pluginId,omitempty"`
}

// NotificationMessage is a plugin-raised notification for the host UI.
type NotificationMessage struct {
	Type    string `json:"type"`
	Title   string `json:"title"`
	Message string `json:"message"`
}

// PluginSearchResult is a single search result produced by a plugin. It is
// fully serializable: no callable value ever appears in this structure.
type PluginSearchResult struct {
	ID          string     `json:"id"`
	Title       string     `json:"title"`
	Description string     `json:"description,omitempty"`
	Icon        string     `json:"icon,omitempty"`
	Score       float64    `json:"score,omitempty"`
	ActionData  ActionData `json:"actionData"`
}

// ActionData is a tagged union {type, ...payload} describing the side effect
// a chosen result should trigger. Only the privileged action executor
// outside this core interprets it.
type ActionData struct {
	Type    string
	Payload map[string]any
}

// ValidActionType reports whether t is a recognized action tag.
func ValidActionType(t string) bool {
	switch t {
	case ActionPopup, ActionClipboard, ActionOpenURL, ActionCustom, ActionNone, ActionOpenUI:
		return true
	}
	return false
}

// MarshalJSON flattens the payload into the action object alongside "type".
func (a ActionData) MarshalJSON() ([]byte, error) {
	obj := make(map[string]any, len(a.Payload)+1)
	for k, v := range a.Payload {
		if k == "type" {
			continue
		}
		obj[k] = v
	}
	if a.Type == "" {
		obj["type"] = ActionNone
	} else {
		obj["type"] = a.Type
	}
	return sonic.Marshal(obj)
}

// UnmarshalJSON splits the "type" tag from the remaining payload fields.
func (a *ActionData) UnmarshalJSON(data []byte) error {
	var obj map[string]any
	if err := sonic.Unmarshal(data, &obj); err != nil {
		return err
	}
	tag, _ := obj["type"].(string)
	if tag == "" {
		tag = ActionNone
	}
	if !ValidActionType(tag) {
		return fmt.Errorf("unrecognized action type %q", tag)
	}
	delete(obj, "type")
	a.Type = tag
	if len(obj) > 0 {
		a.Payload = obj
	} else {
		a.Payload = nil
	}
	return nil
}

// NewExecute builds a module-variant execute message.
func NewExecute(pluginID, pluginPath, query string, permissions []string, timeoutMS int64) ExecuteMessage {
	if permissions == nil {
		permissions = []string{}
	}
	return ExecuteMessage{
		Type:        TypeExecute,
		PluginID:    pluginID,
		PluginPath:  pluginPath,
		Query:       query,
		Permissions: permissions,
		Timeout:     timeoutMS,
	}
}

// NewCodeExecute builds a legacy code-variant execute message.
func NewCodeExecute(pluginID, code string, args []any, permissions []string, timeoutMS int64) ExecuteMessage {
	if permissions == nil {
		permissions = []string{}
	}
	return ExecuteMessage{
		Type:        TypeExecute,
		PluginID:    pluginID,
		Code:        code,
		Args:        args,
		Permissions: permissions,
		Timeout:     timeoutMS,
	}
}

// Failure builds a failed result message.
func Failure(err string, executionTimeMS int64) ResultMessage {
	return ResultMessage{
		Type:          TypeResult,
		Success:       false,
		Results:       []PluginSearchResult{},
		Error:         err,
		ExecutionTime: executionTimeMS,
	}
}

// Success builds a successful result message.
func Success(results []PluginSearchResult, executionTimeMS int64) ResultMessage {
	if results == nil {
		results = []PluginSearchResult{}
	}
	return ResultMessage{
		Type:          TypeResult,
		Success:       true,
		Results:       results,
		ExecutionTime: executionTimeMS,
	}
}
