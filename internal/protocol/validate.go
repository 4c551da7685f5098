package protocol

import (
	"encoding/json"
	"fmt"
	"strings"
)

// ValidationError lists the fields that failed validation for one inbound
// frame.
type ValidationError struct {
	Fields []string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("validation error: %s", strings.Join(e.Fields, ", "))
}

func fieldError(fields *[]string, format string, args ...any) {
	*fields = append(*fields, fmt.Sprintf(format, args...))
}

// Decode unmarshals a raw frame and validates it against the schema for its
// declared type. A JSON syntax error yields (Envelope{}, ErrInvalidFrame);
// an unrecognised type yields *InvalidTypeError; a recognised type with bad
// fields yields *ValidationError.
func Decode(raw []byte) (Envelope, error) {
	var env Envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return Envelope{}, ErrInvalidFrame
	}
	if env.Type == "" {
		return Envelope{}, ErrInvalidFrame
	}
	if _, known := schemas[env.Type]; !known {
		return Envelope{}, &InvalidTypeError{Type: env.Type}
	}
	if err := schemas[env.Type](env); err != nil {
		return Envelope{}, err
	}
	return env, nil
}

// InvalidTypeError is returned by Decode for an unrecognised type
// discriminator.
type InvalidTypeError struct{ Type string }

func (e *InvalidTypeError) Error() string {
	return fmt.Sprintf("invalid message type: %s", e.Type)
}

// ErrInvalidFrame is returned by Decode when the payload is not valid JSON
// or lacks a type discriminator.
var ErrInvalidFrame = fmt.Errorf("invalid JSON format")

// schemas maps each recognised inbound type to its field validator.
var schemas = map[string]func(Envelope) error{
	TypeRegister:        validateRegister,
	TypeLogin:           validateLogin,
	TypeCreateGroup:     validateCreateGroup,
	TypePrivateMessage:  validatePrivateMessage,
	TypeGroupMessage:    validateGroupMessage,
	TypeGetUserContacts: func(Envelope) error { return nil },
	TypeJoin:            validateJoin,
	TypeOffer:           validateRelay,
	TypeAnswer:          validateRelay,
	TypeICECandidate:    validateICECandidate,
	TypeLeave:           func(Envelope) error { return nil },
	TypeCreateRoom:      validateJoin,
}

func validateRegister(e Envelope) error {
	var fields []string
	if l := len(e.Username); l < 3 || l > 50 {
		fieldError(&fields, "username must be 3..50 characters")
	}
	if len(e.Password) < 8 {
		fieldError(&fields, "password must be at least 8 characters")
	}
	if strings.TrimSpace(e.Email) == "" {
		fieldError(&fields, "email is required")
	}
	if len(fields) > 0 {
		return &ValidationError{Fields: fields}
	}
	return nil
}

func validateLogin(e Envelope) error {
	var fields []string
	if l := len(e.Username); l < 3 || l > 50 {
		fieldError(&fields, "username must be 3..50 characters")
	}
	if len(e.Password) < 8 {
		fieldError(&fields, "password must be at least 8 characters")
	}
	if len(fields) > 0 {
		return &ValidationError{Fields: fields}
	}
	return nil
}

func validateCreateGroup(e Envelope) error {
	var fields []string
	if l := len(e.Name); l < 3 || l > 50 {
		fieldError(&fields, "name must be 3..50 characters")
	}
	if len(e.Members) == 0 {
		fieldError(&fields, "members must be a non-empty list")
	}
	if len(fields) > 0 {
		return &ValidationError{Fields: fields}
	}
	return nil
}

func validatePrivateMessage(e Envelope) error {
	var fields []string
	if e.SenderID == 0 {
		fieldError(&fields, "sender_id is required")
	}
	if e.ReceiverID == 0 {
		fieldError(&fields, "receiver_id is required")
	}
	if l := len(e.Content); l < 1 || l > 500 {
		fieldError(&fields, "content must be 1..500 characters")
	}
	if len(fields) > 0 {
		return &ValidationError{Fields: fields}
	}
	return nil
}

func validateGroupMessage(e Envelope) error {
	var fields []string
	if e.GroupID == 0 {
		fieldError(&fields, "group_id is required")
	}
	if l := len(e.Content); l < 1 || l > 500 {
		fieldError(&fields, "content must be 1..500 characters")
	}
	if len(fields) > 0 {
		return &ValidationError{Fields: fields}
	}
	return nil
}

func validateJoin(e Envelope) error {
	var fields []string
	if strings.TrimSpace(e.RoomID) == "" {
		fieldError(&fields, "room_id is required")
	}
	if strings.TrimSpace(e.Name) == "" {
		fieldError(&fields, "name is required")
	}
	if len(fields) > 0 {
		return &ValidationError{Fields: fields}
	}
	return nil
}

func validateRelay(e Envelope) error {
	if strings.TrimSpace(e.TargetID) == "" {
		return &ValidationError{Fields: []string{"target_id is required"}}
	}
	return nil
}

func validateICECandidate(e Envelope) error {
	var fields []string
	if strings.TrimSpace(e.TargetID) == "" {
		fieldError(&fields, "target_id is required")
	}
	if e.Candidate == nil {
		fieldError(&fields, "candidate is required")
	}
	if len(fields) > 0 {
		return &ValidationError{Fields: fields}
	}
	return nil
}

// RequiresAuth reports whether typ may only be sent on an Authorized
// connection.
func RequiresAuth(typ string) bool {
	return typ != TypeRegister && typ != TypeLogin
}
