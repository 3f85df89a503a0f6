package documents

import (
	"encoding/json"
	"fmt"

	"github.com/conneroisu/foundry/pkg/foundryerrs"
)

// Action is a modifyDocument action.
type Action string

// Supported actions.
const (
	ActionGet    Action = "get"
	ActionCreate Action = "create"
	ActionUpdate Action = "update"
	ActionDelete Action = "delete"
)

// Valid reports whether a is one of the four CRUD actions.
func (a Action) Valid() bool {
	switch a {
	case ActionGet, ActionCreate, ActionUpdate, ActionDelete:
		return true
	default:
		return false
	}
}

// ParseAction resolves a wire name to its Action.
func ParseAction(name string) (Action, error) {
	if a := Action(name); a.Valid() {
		return a, nil
	}

	return "", foundryerrs.NewValidationError(
		foundryerrs.ErrCodeInvalidAction,
		"unknown action: "+name,
		"action",
		name,
	)
}

// Operation is the action-dependent payload of a request. Only the field
// matching the action is sent.
type Operation struct {
	// Query filters documents for get.
	Query map[string]any
	// Data holds the documents to create.
	Data []map[string]any
	// Updates holds partial documents, each with an _id, for update.
	Updates []map[string]any
	// IDs lists the documents to delete.
	IDs []string
	// ParentUUID addresses the parent of embedded documents.
	ParentUUID string
	// Pack addresses a compendium instead of the world collection.
	Pack string
	// Options carries extra operation flags such as render or diff.
	Options map[string]any
}

// Request is the modifyDocument envelope.
type Request struct {
	Type      Kind
	Action    Action
	Operation Operation
}

// Validate checks the request against the action's payload rules.
func (r Request) Validate() error {
	if r.Type == nil {
		return foundryerrs.NewValidationError(
			foundryerrs.ErrCodeMissingField,
			"document type is required",
			"type",
			nil,
		)
	}
	if !r.Type.Valid() {
		return foundryerrs.NewValidationError(
			foundryerrs.ErrCodeInvalidType,
			"unknown document type: "+r.Type.String(),
			"type",
			r.Type.String(),
		)
	}
	if !r.Action.Valid() {
		return foundryerrs.NewValidationError(
			foundryerrs.ErrCodeInvalidAction,
			fmt.Sprintf("unknown action: %q", r.Action),
			"action",
			string(r.Action),
		)
	}
	if r.Type.Embedded() && r.Operation.ParentUUID == "" {
		return foundryerrs.NewValidationError(
			foundryerrs.ErrCodeMissingField,
			r.Type.String()+" is embedded and requires a parent",
			"parentUuid",
			nil,
		)
	}

	switch r.Action {
	case ActionCreate:
		if len(r.Operation.Data) == 0 {
			return missing("data", r.Action)
		}
	case ActionUpdate:
		if len(r.Operation.Updates) == 0 {
			return missing("updates", r.Action)
		}
		for i, update := range r.Operation.Updates {
			if id, _ := update["_id"].(string); id == "" {
				return foundryerrs.NewValidationError(
					foundryerrs.ErrCodeMissingField,
					fmt.Sprintf("update %d has no _id", i),
					"updates",
					i,
				)
			}
		}
	case ActionDelete:
		if len(r.Operation.IDs) == 0 {
			return missing("ids", r.Action)
		}
	case ActionGet:
	}

	return nil
}

func missing(field string, action Action) error {
	return foundryerrs.NewValidationError(
		foundryerrs.ErrCodeMissingField,
		fmt.Sprintf("%s requires %s", action, field),
		field,
		nil,
	)
}

// MarshalJSON renders the wire shape {type, action, operation}.
func (r Request) MarshalJSON() ([]byte, error) {
	typeName := ""
	if r.Type != nil {
		typeName = r.Type.String()
	}

	return json.Marshal(struct {
		Type      string         `json:"type"`
		Action    Action         `json:"action"`
		Operation map[string]any `json:"operation"`
	}{
		Type:      typeName,
		Action:    r.Action,
		Operation: r.Operation.wire(r.Action),
	})
}

func (o Operation) wire(action Action) map[string]any {
	out := make(map[string]any, len(o.Options)+3)
	for k, v := range o.Options {
		out[k] = v
	}

	switch action {
	case ActionGet:
		query := o.Query
		if query == nil {
			query = map[string]any{}
		}
		out["query"] = query
	case ActionCreate:
		out["data"] = o.Data
	case ActionUpdate:
		out["updates"] = o.Updates
	case ActionDelete:
		out["ids"] = o.IDs
	}

	if o.ParentUUID != "" {
		out["parentUuid"] = o.ParentUUID
	}
	if o.Pack != "" {
		out["pack"] = o.Pack
	}

	return out
}
