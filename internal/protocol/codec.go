package protocol

import (
	"encoding/json"
	"fmt"

	"artflow-sync/internal/domain"

	"github.com/go-playground/validator/v10"
)

// MessageType tags the wire envelope. Operation types are artifact-scoped;
// init and connected are control messages shared by every artifact domain.
type MessageType string

const (
	TypeInit      MessageType = "init"
	TypeConnected MessageType = "connected"

	TypeDraw           MessageType = "draw"
	TypeClear          MessageType = "clear"
	TypeTextOperation  MessageType = "text_operation"
	TypeCursorUpdate   MessageType = "cursor_update"
	TypeImageOperation MessageType = "image_operation"
)

// IsOperation reports whether t carries an artifact operation body.
func (t MessageType) IsOperation() bool {
	switch t {
	case TypeDraw, TypeClear, TypeTextOperation, TypeCursorUpdate, TypeImageOperation:
		return true
	}
	return false
}

// Envelope is the outer wire shape: {type, data}.
type Envelope struct {
	Type MessageType     `json:"type"`
	Data json.RawMessage `json:"data,omitempty"`
}

// InitPayload is the handshake body sent right after a socket opens.
type InitPayload struct {
	UserID    string `json:"user_id" validate:"required"`
	ProjectID string `json:"project_id" validate:"required"`
	FileID    string `json:"file_id" validate:"required"`
}

// operationBody mirrors domain.Operation on the wire plus validation tags.
type operationBody struct {
	UserID    string          `json:"userId" validate:"required"`
	Timestamp int64           `json:"timestamp" validate:"required,gt=0"`
	Payload   json.RawMessage `json:"payload,omitempty"`
}

// Message is a decoded envelope. Exactly one of Init / Operation is set for
// the corresponding types; Connected carries neither.
type Message struct {
	Type      MessageType
	Init      *InitPayload
	Operation *domain.Operation
}

// Codec serializes and validates wire envelopes. Decode errors mean "drop
// this message and log"; they must never escalate past the channel.
type Codec struct {
	validate *validator.Validate
}

func NewCodec() *Codec {
	return &Codec{validate: validator.New()}
}

// EncodeOperation wraps op into its envelope, using op.Kind as the type tag.
func (c *Codec) EncodeOperation(op domain.Operation) ([]byte, error) {
	if !MessageType(op.Kind).IsOperation() {
		return nil, fmt.Errorf("unknown operation kind %q", op.Kind)
	}
	body, err := json.Marshal(operationBody{
		UserID:    op.OriginUserID,
		Timestamp: op.Timestamp,
		Payload:   op.Payload,
	})
	if err != nil {
		return nil, err
	}
	return json.Marshal(Envelope{Type: MessageType(op.Kind), Data: body})
}

// EncodeInit builds the handshake envelope sent on every successful open.
func (c *Codec) EncodeInit(userID, projectID, fileID string) ([]byte, error) {
	body, err := json.Marshal(InitPayload{
		UserID:    userID,
		ProjectID: projectID,
		FileID:    fileID,
	})
	if err != nil {
		return nil, err
	}
	return json.Marshal(Envelope{Type: TypeInit, Data: body})
}

// EncodeConnected builds the server's handshake acknowledgement.
func (c *Codec) EncodeConnected() []byte {
	raw, _ := json.Marshal(Envelope{Type: TypeConnected})
	return raw
}

// Decode parses and validates a raw frame. A non-nil error means the frame
// is malformed and must be discarded.
func (c *Codec) Decode(raw []byte) (*Message, error) {
	var env Envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return nil, fmt.Errorf("invalid envelope: %w", err)
	}

	switch {
	case env.Type == TypeConnected:
		return &Message{Type: TypeConnected}, nil

	case env.Type == TypeInit:
		if len(env.Data) == 0 {
			return nil, fmt.Errorf("init envelope without data")
		}
		var init InitPayload
		if err := json.Unmarshal(env.Data, &init); err != nil {
			return nil, fmt.Errorf("invalid init payload: %w", err)
		}
		if err := c.validate.Struct(&init); err != nil {
			return nil, fmt.Errorf("incomplete init payload: %w", err)
		}
		return &Message{Type: TypeInit, Init: &init}, nil

	case env.Type.IsOperation():
		if len(env.Data) == 0 {
			return nil, fmt.Errorf("%s envelope without data", env.Type)
		}
		var body operationBody
		if err := json.Unmarshal(env.Data, &body); err != nil {
			return nil, fmt.Errorf("invalid %s body: %w", env.Type, err)
		}
		if err := c.validate.Struct(&body); err != nil {
			return nil, fmt.Errorf("incomplete %s body: %w", env.Type, err)
		}
		return &Message{
			Type: env.Type,
			Operation: &domain.Operation{
				Kind:         string(env.Type),
				OriginUserID: body.UserID,
				Timestamp:    body.Timestamp,
				Payload:      body.Payload,
			},
		}, nil

	default:
		return nil, fmt.Errorf("unrecognized message type %q", env.Type)
	}
}
