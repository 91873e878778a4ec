package api

import (
	"encoding/json"
	"errors"
	"fmt"
)

// Action names accepted on the RPC surface
const (
	ActionUpdateOptions   = "updateOptions"
	ActionGetPopupData    = "getPopupData"
	ActionGetOptionsData  = "getOptionsData"
	ActionSetMarkRead     = "setMarkRead"
	ActionClearMarkRead   = "clearMarkRead"
	ActionTestMessage     = "testMessage"
	ActionInstantUpdate   = "instantUpdate"
	ActionOnSiteUpdate    = "onSiteUpdate"
	ActionBroadcastUpdate = "broadcastPopupUpdate"
)

// ErrUnknownAction is returned for envelopes naming no known action
var ErrUnknownAction = errors.New("unknown action")

// Envelope is the wire shape of every request and push message
type Envelope struct {
	Action string          `json:"action"`
	Data   json.RawMessage `json:"data,omitempty"`
}

// Request is one decoded RPC call
type Request interface {
	Action() string
}

type UpdateOptions struct {
	Options map[string]json.RawMessage
}

type GetPopupData struct{}

type GetOptionsData struct{}

// SetMarkRead carries a partial read-state tree
type SetMarkRead struct {
	Patch json.RawMessage
}

type ClearMarkRead struct{}

// TestMessage carries option overrides used only for the test notification
type TestMessage struct {
	Overrides map[string]json.RawMessage
}

type InstantUpdate struct{}

// OnSiteUpdate is sent whenever a site page loads
type OnSiteUpdate struct {
	BodyClass string `json:"bodyClass"`
}

func (UpdateOptions) Action() string  { return ActionUpdateOptions }
func (GetPopupData) Action() string   { return ActionGetPopupData }
func (GetOptionsData) Action() string { return ActionGetOptionsData }
func (SetMarkRead) Action() string    { return ActionSetMarkRead }
func (ClearMarkRead) Action() string  { return ActionClearMarkRead }
func (TestMessage) Action() string    { return ActionTestMessage }
func (InstantUpdate) Action() string  { return ActionInstantUpdate }
func (OnSiteUpdate) Action() string   { return ActionOnSiteUpdate }

// UpdateOptionsResponse reports per-key validation failures
type UpdateOptionsResponse struct {
	Status bool                `json:"status"`
	Errors map[string][]string `json:"errors,omitempty"`
}

// DecodeRequest turns a raw envelope into its typed request
func DecodeRequest(raw []byte) (Request, error) {
	var env Envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return nil, fmt.Errorf("invalid request envelope: %w", err)
	}

	switch env.Action {
	case ActionUpdateOptions:
		var opts map[string]json.RawMessage
		if err := decodeObject(env.Data, &opts); err != nil {
			return nil, err
		}
		return UpdateOptions{Options: opts}, nil
	case ActionGetPopupData:
		return GetPopupData{}, nil
	case ActionGetOptionsData:
		return GetOptionsData{}, nil
	case ActionSetMarkRead:
		if len(env.Data) == 0 {
			return nil, fmt.Errorf("%s requires data", env.Action)
		}
		return SetMarkRead{Patch: env.Data}, nil
	case ActionClearMarkRead:
		return ClearMarkRead{}, nil
	case ActionTestMessage:
		var overrides map[string]json.RawMessage
		if err := decodeObject(env.Data, &overrides); err != nil {
			return nil, err
		}
		return TestMessage{Overrides: overrides}, nil
	case ActionInstantUpdate:
		return InstantUpdate{}, nil
	case ActionOnSiteUpdate:
		var req OnSiteUpdate
		if err := decodeObject(env.Data, &req); err != nil {
			return nil, err
		}
		return req, nil
	}

	return nil, fmt.Errorf("%w: %q", ErrUnknownAction, env.Action)
}

// decodeObject leaves dst untouched when data is absent or null
func decodeObject(data json.RawMessage, dst any) error {
	if len(data) == 0 || string(data) == "null" {
		return nil
	}
	if err := json.Unmarshal(data, dst); err != nil {
		return fmt.Errorf("invalid request data: %w", err)
	}
	return nil
}
