package observability

// EventEnvelope is the wire shape for presence events on the platform bus.
// EventType groups by stream (ws_events, chat_events), EventName is the
// concrete occurrence (ws_connect, room_message, ...).
type EventEnvelope struct {
	EventType string      `json:"event_type"`
	EventName string      `json:"event_name"`
	Payload   interface{} `json:"payload"`
}

func BuildHeaders(requestID, traceID string) map[string]string {
	headers := map[string]string{}
	if requestID != "" {
		headers["x-request-id"] = requestID
	}
	if traceID != "" {
		headers["trace_id"] = traceID
	}
	return headers
}
