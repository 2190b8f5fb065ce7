package envelope

import "encoding/json"

// CloudEvents extension keys for portal routing semantics.
const (
	// ExtOperation is the portal operation: create, fetch, update, delete.
	ExtOperation = "dp_operation"

	// ExtObjectType is the registered type name of the domain object whose
	// handler serves the request.
	ExtObjectType = "dp_object_type"

	// ExtCriteriaType is the registered type name of the criteria payload.
	ExtCriteriaType = "dp_criteria_type"

	// ExtReplyTo is the topic the host publishes the response envelope to.
	ExtReplyTo = "dp_reply_to"

	// ExtCorrelationID ties a response to its originating request.
	ExtCorrelationID = "dp_correlation_id"

	// ExtPrincipal is the JSON-encoded caller identity. Absent when the
	// portal runs with host-managed credentials.
	ExtPrincipal = "dp_principal"

	// ExtHostManaged indicates the request carries no explicit principal
	// and the host should supply its own credentials.
	ExtHostManaged = "dp_host_managed"

	// ExtTransactional indicates the handler must run inside the host's
	// transactional context.
	ExtTransactional = "dp_transactional"

	// ExtErrorKind classifies a failed response: missing_handler,
	// invalid_argument, type_not_registered, transaction_host, or backend.
	ExtErrorKind = "dp_error_kind"

	// ExtErrorMessage is the original error message of a failed response.
	ExtErrorMessage = "dp_error_message"

	// ExtTraceID is the distributed trace ID (W3C traceparent compatible).
	ExtTraceID = "dp_trace_id"

	// ExtParentID is the parent span ID for trace correlation.
	ExtParentID = "dp_parent_id"
)

// Operation returns the portal operation carried by the envelope.
func (e Envelope) Operation() string {
	return e.GetExtensionString(ExtOperation)
}

// ObjectType returns the registered domain type name, if set.
func (e Envelope) ObjectType() string {
	return e.GetExtensionString(ExtObjectType)
}

// SetObjectType records the registered domain type name.
func (e Envelope) SetObjectType(name string) Envelope {
	return e.WithExtension(ExtObjectType, name)
}

// CriteriaType returns the registered criteria type name, if set.
func (e Envelope) CriteriaType() string {
	return e.GetExtensionString(ExtCriteriaType)
}

// SetCriteriaType records the registered criteria type name.
func (e Envelope) SetCriteriaType(name string) Envelope {
	return e.WithExtension(ExtCriteriaType, name)
}

// ReplyTo returns the response topic for a request envelope.
func (e Envelope) ReplyTo() string {
	return e.GetExtensionString(ExtReplyTo)
}

// SetReplyTo records the response topic on a request envelope.
func (e Envelope) SetReplyTo(topic string) Envelope {
	return e.WithExtension(ExtReplyTo, topic)
}

// CorrelationID returns the correlation identifier tying request and response.
func (e Envelope) CorrelationID() string {
	return e.GetExtensionString(ExtCorrelationID)
}

// Transactional reports whether the request must run inside the host's
// transactional context.
func (e Envelope) Transactional() bool {
	return e.GetExtensionBool(ExtTransactional)
}

// SetTransactional records the transactional requirement.
func (e Envelope) SetTransactional(transactional bool) Envelope {
	return e.WithExtension(ExtTransactional, transactional)
}

// HostManaged reports whether the request delegates identity to the host.
func (e Envelope) HostManaged() bool {
	return e.GetExtensionBool(ExtHostManaged)
}

// SetPrincipal encodes the caller identity onto the envelope. A nil or
// host-managed principal sets the host-managed flag instead of a principal.
func (e Envelope) SetPrincipal(principal any, hostManaged bool) (Envelope, error) {
	if hostManaged || principal == nil {
		return e.WithExtension(ExtHostManaged, true), nil
	}
	encoded, err := json.Marshal(principal)
	if err != nil {
		return e, err
	}
	return e.WithExtension(ExtPrincipal, string(encoded)), nil
}

// Principal decodes the caller identity into out. Returns false when the
// envelope carries no principal (host-managed or anonymous requests).
func (e Envelope) Principal(out any) (bool, error) {
	raw := e.GetExtensionString(ExtPrincipal)
	if raw == "" {
		return false, nil
	}
	if err := json.Unmarshal([]byte(raw), out); err != nil {
		return false, err
	}
	return true, nil
}

// TraceID returns the distributed trace ID, if set.
func (e Envelope) TraceID() string {
	return e.GetExtensionString(ExtTraceID)
}

// SetTracing records trace and parent span IDs for correlation.
func (e Envelope) SetTracing(traceID, parentID string) Envelope {
	env := e
	if traceID != "" {
		env = env.WithExtension(ExtTraceID, traceID)
	}
	if parentID != "" {
		env = env.WithExtension(ExtParentID, parentID)
	}
	return env
}
