package chat

import (
	"bytes"
	"encoding/json"
	"io"
	"strings"
)

const actionType = "action"

// ActionRequest is a structured instruction from the language backend to run an action.
type ActionRequest struct {
	Type   string         `json:"type"`
	Action string         `json:"action"`
	Params map[string]any `json:"params"`
}

// Reply is either plain text or an action request. Exactly one of the two is set.
type Reply struct {
	Text   string
	Action *ActionRequest
}

func (r Reply) IsAction() bool {
	return r.Action != nil
}

type rawActionRequest struct {
	Type   *string         `json:"type"`
	Action *string         `json:"action"`
	Params json.RawMessage `json:"params"`
}

// ParseReply decodes the backend's reply text. The text is an action request only when the
// whole payload is a single JSON object with type "action", a non-empty action name and
// params that are an object or absent. Everything else is plain text.
func ParseReply(text string) Reply {
	if req, ok := decodeActionRequest(text); ok {
		return Reply{Action: req}
	}
	return Reply{Text: text}
}

func decodeActionRequest(text string) (*ActionRequest, bool) {
	trimmed := strings.TrimSpace(text)
	if !strings.HasPrefix(trimmed, "{") {
		return nil, false
	}

	dec := json.NewDecoder(strings.NewReader(trimmed))

	var raw rawActionRequest
	if err := dec.Decode(&raw); err != nil {
		return nil, false
	}
	if _, err := dec.Token(); err != io.EOF {
		return nil, false
	}

	if raw.Type == nil || *raw.Type != actionType {
		return nil, false
	}
	if raw.Action == nil || strings.TrimSpace(*raw.Action) == "" {
		return nil, false
	}

	params := map[string]any{}
	if p := bytes.TrimSpace(raw.Params); len(p) > 0 && !bytes.Equal(p, []byte("null")) {
		if p[0] != '{' {
			return nil, false
		}
		if err := json.Unmarshal(p, &params); err != nil {
			return nil, false
		}
	}

	return &ActionRequest{
		Type:   actionType,
		Action: strings.TrimSpace(*raw.Action),
		Params: params,
	}, true
}
