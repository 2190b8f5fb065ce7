// Package envelope implements the portal wire format: a CloudEvents v1.0
// style envelope carrying portal requests and responses between a remote
// portal client and a portal host. Portal routing attributes travel as
// extensions prefixed with "dp_".
package envelope

import (
	"encoding/json"
	"fmt"
	"time"

	idspkg "github.com/drblury/portalflow/internal/runtime/ids"
)

// SpecVersion is the CloudEvents specification version implemented.
const SpecVersion = "1.0"

// Envelope types used by the portal protocol.
const (
	// TypeRequest marks an envelope as a portal request.
	TypeRequest = "portal.request"

	// TypeResponse marks an envelope as a portal response.
	TypeResponse = "portal.response"

	// TypeChange marks an envelope as a change notification emitted after a
	// successful mutating operation.
	TypeChange = "portal.change"
)

// Envelope is a CloudEvents v1.0 compliant event with portal extensions.
// See https://github.com/cloudevents/spec/blob/v1.0/spec.md for attribute
// semantics.
type Envelope struct {
	// Required attributes

	// SpecVersion is the version of the CloudEvents specification.
	SpecVersion string `json:"specversion"`

	// Type is TypeRequest or TypeResponse.
	Type string `json:"type"`

	// Source identifies the process that produced the envelope.
	Source string `json:"source"`

	// ID uniquely identifies the envelope. If not set, a ULID is generated.
	ID string `json:"id"`

	// Optional attributes

	// Time is when the envelope was produced.
	Time time.Time `json:"time,omitempty"`

	// Subject is the registered type name of the payload carried in Data.
	Subject *string `json:"subject,omitempty"`

	// DataContentType describes the content type of the data attribute.
	// "application/json" for sonic-encoded values, "application/protobuf"
	// for binary protobuf carried in DataBase64.
	DataContentType *string `json:"datacontenttype,omitempty"`

	// Data is the JSON-encoded payload (criteria, object, or result).
	Data json.RawMessage `json:"data,omitempty"`

	// DataBase64 contains base64-encoded binary data when the payload is a
	// protobuf message.
	DataBase64 *string `json:"data_base64,omitempty"`

	// Extensions contains CloudEvents extension attributes. The portal uses
	// extensions prefixed with "dp_" for routing and identity propagation.
	Extensions map[string]any `json:"extensions,omitempty"`
}

// New creates an envelope with required fields populated. ID is
// auto-generated using ULID, Time is set to the current time.
func New(envType, source string) Envelope {
	return Envelope{
		SpecVersion: SpecVersion,
		Type:        envType,
		Source:      source,
		ID:          idspkg.CreateULID(),
		Time:        time.Now().UTC(),
		Extensions:  make(map[string]any),
	}
}

// NewRequest creates a portal request envelope for the given operation.
func NewRequest(operation, source string) Envelope {
	env := New(TypeRequest, source)
	return env.WithExtension(ExtOperation, operation).
		WithExtension(ExtCorrelationID, env.ID)
}

// NewResponse creates a response envelope correlated with the given request.
func NewResponse(req Envelope, source string) Envelope {
	env := New(TypeResponse, source)
	correlation := req.CorrelationID()
	if correlation == "" {
		correlation = req.ID
	}
	return env.WithExtension(ExtCorrelationID, correlation).
		WithExtension(ExtOperation, req.Operation())
}

// WithSubject sets the subject field and returns the envelope.
func (e Envelope) WithSubject(subject string) Envelope {
	e.Subject = &subject
	return e
}

// WithDataContentType sets the data content type and returns the envelope.
func (e Envelope) WithDataContentType(contentType string) Envelope {
	e.DataContentType = &contentType
	return e
}

// WithExtension sets an extension attribute and returns the envelope.
func (e Envelope) WithExtension(key string, value any) Envelope {
	if e.Extensions == nil {
		e.Extensions = make(map[string]any)
	}
	e.Extensions[key] = value
	return e
}

// GetExtension retrieves an extension value by key.
// Returns nil if the extension does not exist.
func (e Envelope) GetExtension(key string) any {
	if e.Extensions == nil {
		return nil
	}
	return e.Extensions[key]
}

// GetExtensionString retrieves an extension value as a string.
// Returns empty string if the extension does not exist or is not a string.
func (e Envelope) GetExtensionString(key string) string {
	v := e.GetExtension(key)
	if v == nil {
		return ""
	}
	if s, ok := v.(string); ok {
		return s
	}
	return fmt.Sprintf("%v", v)
}

// GetExtensionBool retrieves an extension value as a bool.
// Returns false if the extension does not exist or is not a bool.
func (e Envelope) GetExtensionBool(key string) bool {
	v := e.GetExtension(key)
	if v == nil {
		return false
	}
	if b, ok := v.(bool); ok {
		return b
	}
	return false
}

// Validate checks that the envelope has all required attributes and a known
// portal type.
func (e Envelope) Validate() error {
	if e.SpecVersion == "" {
		return fmt.Errorf("specversion is required")
	}
	if e.SpecVersion != SpecVersion {
		return fmt.Errorf("specversion must be %q, got %q", SpecVersion, e.SpecVersion)
	}
	if e.Type != TypeRequest && e.Type != TypeResponse {
		return fmt.Errorf("type must be %q or %q, got %q", TypeRequest, TypeResponse, e.Type)
	}
	if e.Source == "" {
		return fmt.Errorf("source is required")
	}
	if e.ID == "" {
		return fmt.Errorf("id is required")
	}
	return nil
}

// Clone creates a deep copy of the envelope.
func (e Envelope) Clone() Envelope {
	cloned := e

	if e.Subject != nil {
		v := *e.Subject
		cloned.Subject = &v
	}
	if e.DataContentType != nil {
		v := *e.DataContentType
		cloned.DataContentType = &v
	}
	if e.DataBase64 != nil {
		v := *e.DataBase64
		cloned.DataBase64 = &v
	}
	if e.Data != nil {
		cloned.Data = append(json.RawMessage(nil), e.Data...)
	}
	if e.Extensions != nil {
		cloned.Extensions = make(map[string]any, len(e.Extensions))
		for k, v := range e.Extensions {
			cloned.Extensions[k] = v
		}
	}

	return cloned
}

// MarshalJSON implements json.Marshaler for the flattened CloudEvents JSON
// format: extensions become top-level attributes.
func (e Envelope) MarshalJSON() ([]byte, error) {
	m := make(map[string]any)

	m["specversion"] = e.SpecVersion
	m["type"] = e.Type
	m["source"] = e.Source
	m["id"] = e.ID

	if !e.Time.IsZero() {
		m["time"] = e.Time.Format(time.RFC3339Nano)
	}
	if e.Subject != nil {
		m["subject"] = *e.Subject
	}
	if e.DataContentType != nil {
		m["datacontenttype"] = *e.DataContentType
	}
	if e.Data != nil {
		m["data"] = e.Data
	}
	if e.DataBase64 != nil {
		m["data_base64"] = *e.DataBase64
	}

	for k, v := range e.Extensions {
		m[k] = v
	}

	return json.Marshal(m)
}

// UnmarshalJSON implements json.Unmarshaler for the flattened CloudEvents
// JSON format. Unknown top-level attributes become extensions.
func (e *Envelope) UnmarshalJSON(data []byte) error {
	var m map[string]json.RawMessage
	if err := json.Unmarshal(data, &m); err != nil {
		return err
	}

	knownAttrs := map[string]bool{
		"specversion":     true,
		"type":            true,
		"source":          true,
		"id":              true,
		"time":            true,
		"subject":         true,
		"datacontenttype": true,
		"data":            true,
		"data_base64":     true,
	}

	if raw, ok := m["specversion"]; ok {
		if err := json.Unmarshal(raw, &e.SpecVersion); err != nil {
			return fmt.Errorf("invalid specversion: %w", err)
		}
	}
	if raw, ok := m["type"]; ok {
		if err := json.Unmarshal(raw, &e.Type); err != nil {
			return fmt.Errorf("invalid type: %w", err)
		}
	}
	if raw, ok := m["source"]; ok {
		if err := json.Unmarshal(raw, &e.Source); err != nil {
			return fmt.Errorf("invalid source: %w", err)
		}
	}
	if raw, ok := m["id"]; ok {
		if err := json.Unmarshal(raw, &e.ID); err != nil {
			return fmt.Errorf("invalid id: %w", err)
		}
	}

	if raw, ok := m["time"]; ok {
		var timeStr string
		if err := json.Unmarshal(raw, &timeStr); err != nil {
			return fmt.Errorf("invalid time: %w", err)
		}
		t, err := time.Parse(time.RFC3339Nano, timeStr)
		if err != nil {
			t, err = time.Parse(time.RFC3339, timeStr)
			if err != nil {
				return fmt.Errorf("invalid time format: %w", err)
			}
		}
		e.Time = t
	}
	if raw, ok := m["subject"]; ok {
		var v string
		if err := json.Unmarshal(raw, &v); err != nil {
			return fmt.Errorf("invalid subject: %w", err)
		}
		e.Subject = &v
	}
	if raw, ok := m["datacontenttype"]; ok {
		var v string
		if err := json.Unmarshal(raw, &v); err != nil {
			return fmt.Errorf("invalid datacontenttype: %w", err)
		}
		e.DataContentType = &v
	}
	if raw, ok := m["data"]; ok {
		e.Data = append(json.RawMessage(nil), raw...)
	}
	if raw, ok := m["data_base64"]; ok {
		var v string
		if err := json.Unmarshal(raw, &v); err != nil {
			return fmt.Errorf("invalid data_base64: %w", err)
		}
		e.DataBase64 = &v
	}

	e.Extensions = make(map[string]any)
	for k, raw := range m {
		if knownAttrs[k] {
			continue
		}
		var v any
		if err := json.Unmarshal(raw, &v); err != nil {
			return fmt.Errorf("invalid extension %q: %w", k, err)
		}
		e.Extensions[k] = v
	}

	return nil
}
