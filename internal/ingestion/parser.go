package ingestion

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"LendLedger/internal/event"
	"LendLedger/internal/lenderr"
)

// SubjectPrefix roots every inbound operation subject:
// lend.ops.<operation>.<partition...>
const SubjectPrefix = "lend.ops."

// ErrMalformed marks payloads that can never decode; redelivering them is
// pointless.
var ErrMalformed = errors.New("malformed operation")

// ParseRawEvent converts a RawEvent (JSON bytes + operation name) into a
// validated event.Event. Unknown fields are rejected so a producer typo
// cannot silently zero an amount.
func ParseRawEvent(raw RawEvent, operation string) (event.Event, error) {
	return ParseOperation(operation, raw.Data)
}

// ParseOperation decodes data as the payload of the named operation.
// Failures either wrap ErrMalformed or carry a lenderr code.
func ParseOperation(operation string, data []byte) (event.Event, error) {
	et, err := event.ParseEventType(operation)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	op, err := event.New(et)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformed, err)
	}

	dec := json.NewDecoder(bytes.NewReader(data))
	dec.DisallowUnknownFields()
	if err := dec.Decode(op); err != nil {
		return nil, fmt.Errorf("%w: parse %s: %v", ErrMalformed, operation, err)
	}
	if err := op.Validate(); err != nil {
		if lenderr.CodeOf(err) == lenderr.CodeUnknown {
			return nil, fmt.Errorf("%w: validate %s: %v", ErrMalformed, operation, err)
		}
		return nil, fmt.Errorf("validate %s: %w", operation, err)
	}
	return op, nil
}

// OperationFromSubject extracts the operation name from an inbound subject
func OperationFromSubject(subject string) (string, error) {
	rest, ok := strings.CutPrefix(subject, SubjectPrefix)
	if !ok {
		return "", fmt.Errorf("subject %q is not under %s", subject, SubjectPrefix)
	}
	name, _, _ := strings.Cut(rest, ".")
	if name == "" {
		return "", fmt.Errorf("subject %q names no operation", subject)
	}
	return name, nil
}

// OperationSubject is the subject producers publish an operation on
func OperationSubject(et event.EventType, partition string) string {
	if partition == "" {
		partition = "default"
	}
	return SubjectPrefix + et.String() + "." + partition
}
