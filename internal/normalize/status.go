package normalize

import "strings"

// PaymentState classifies the payment provider's free-form
// transaction_status vocabulary.
type PaymentState int

const (
	// PaymentUnknown covers empty and unrecognized status strings.
	// Unrecognized is deliberately not treated as failed.
	PaymentUnknown PaymentState = iota
	PaymentPending
	PaymentSettled
	PaymentFailed
)

func (s PaymentState) String() string {
	switch s {
	case PaymentPending:
		return "pending"
	case PaymentSettled:
		return "settled"
	case PaymentFailed:
		return "failed"
	default:
		return "unknown"
	}
}

var settledStatuses = map[string]struct{}{
	"settlement":         {},
	"capture":            {},
	"settled":            {},
	"success":            {},
	"paid":               {},
	"paid_off":           {},
	"payment_successful": {},
}

var failedStatuses = map[string]struct{}{
	"deny":      {},
	"cancel":    {},
	"cancelled": {},
	"expire":    {},
	"expired":   {},
	"failure":   {},
	"failed":    {},
}

var pendingStatuses = map[string]struct{}{
	"pending":   {},
	"authorize": {},
	"process":   {},
	"waiting":   {},
}

// ClassifyTransactionStatus maps a provider status string to a
// PaymentState. Matching is case-insensitive.
func ClassifyTransactionStatus(status string) PaymentState {
	normalized := strings.ToLower(strings.TrimSpace(status))
	if normalized == "" {
		return PaymentUnknown
	}
	if _, ok := settledStatuses[normalized]; ok {
		return PaymentSettled
	}
	if _, ok := failedStatuses[normalized]; ok {
		return PaymentFailed
	}
	if _, ok := pendingStatuses[normalized]; ok {
		return PaymentPending
	}
	return PaymentUnknown
}

// IsSettled reports whether the payload carries a terminal-success
// signal in any of the known transaction status fields, or an explicit
// boolean success/true.
func IsSettled(payload map[string]any) bool {
	if payload == nil {
		return false
	}
	for _, key := range []string{"transaction_status", "status", "payment_status"} {
		val, ok := payload[key]
		if !ok {
			continue
		}
		if b, ok := val.(bool); ok && b {
			return true
		}
		if str := ToString(val); str != "" {
			if ClassifyTransactionStatus(str) == PaymentSettled {
				return true
			}
		}
	}
	return FirstBool(payload, "success")
}

// HasTransactionFields reports whether the payload looks like a payment
// provider notification rather than a generic status ping.
func HasTransactionFields(payload map[string]any) bool {
	for _, key := range []string{"transaction_status", "status_code", "status_message", "settlement_time", "payment_type"} {
		if val, ok := payload[key]; ok && val != nil {
			if str, isStr := val.(string); isStr && strings.TrimSpace(str) == "" {
				continue
			}
			return true
		}
	}
	return false
}

var completedStatuses = map[string]struct{}{
	"completed": {},
	"complete":  {},
	"done":      {},
	"success":   {},
	"finished":  {},
}

// IsInterviewComplete reports whether an interview status word marks the
// interview as finished.
func IsInterviewComplete(status string) bool {
	_, ok := completedStatuses[strings.ToLower(strings.TrimSpace(status))]
	return ok
}

// InterviewStatus probes the payload for an interview status word across
// the shapes n8n has been observed to emit.
func InterviewStatus(payload map[string]any) string {
	if payload == nil {
		return ""
	}
	if status := FirstString(payload, "status", "state", "result", "outcome"); status != "" {
		return strings.ToLower(status)
	}
	if nested := Nested(payload, "data", "metadata"); nested != nil {
		if status := FirstString(nested, "status", "state", "result", "outcome"); status != "" {
			return strings.ToLower(status)
		}
	}
	return ""
}
