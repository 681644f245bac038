package normalize

import (
	"regexp"
	"strings"
	"time"
)

// DefaultQRContentType is assumed when the upstream omits a MIME type.
const DefaultQRContentType = "image/png"

// QREnvelope bundles the QR fields describing a WhatsApp-link code,
// whichever of the many upstream spellings they arrived under.
type QREnvelope struct {
	Base64           string
	ContentType      string
	URL              string
	ExpiresAt        *time.Time
	ExpiresInSeconds float64
	QRString         string
	Raw              any
}

var whitespacePattern = regexp.MustCompile(`\s+`)

func sanitizeBase64(value string) string {
	return whitespacePattern.ReplaceAllString(value, "")
}

// ExtractQREnvelope probes the payload for QR data. The QR may live
// under a nested object (qr, qr_details, data.qr, ...), flat aliased
// keys (qr_base64, qrCodeBase64, ...), or be a raw string that is
// either a URL, a data URI, or bare base64 bytes.
func ExtractQREnvelope(payload map[string]any) QREnvelope {
	env := QREnvelope{ContentType: DefaultQRContentType}
	if payload == nil {
		return env
	}

	var qrValue any
	for _, key := range []string{"qr", "qr_details", "qrDetails", "qr_code", "qrCode"} {
		if val, ok := payload[key]; ok && val != nil {
			qrValue = val
			break
		}
	}
	if qrValue == nil {
		if data := Nested(payload, "data"); data != nil {
			for _, key := range []string{"qr", "qrCode"} {
				if val, ok := data[key]; ok && val != nil {
					qrValue = val
					break
				}
			}
		}
	}
	env.Raw = qrValue

	qrMap, _ := qrValue.(map[string]any)
	if str, ok := qrValue.(string); ok {
		env.QRString = strings.TrimSpace(str)
	}

	contentType := FirstString(payload, "qr_content_type", "qrContentType", "qrCodeContentType")
	if contentType == "" {
		if data := Nested(payload, "data"); data != nil {
			contentType = FirstString(data, "qrContentType", "qr_content_type")
		}
	}
	if contentType == "" && qrMap != nil {
		contentType = FirstString(qrMap, "contentType", "mime_type", "mimeType")
	}
	if contentType != "" {
		env.ContentType = contentType
	}

	base64 := FirstString(payload, "qr_base64", "qrBase64", "qrCodeBase64", "qr_code_base64")
	if base64 == "" {
		if data := Nested(payload, "data"); data != nil {
			base64 = FirstString(data, "qrCodeBase64", "qrBase64")
		}
	}
	if base64 == "" && qrMap != nil {
		base64 = FirstString(qrMap, "base64", "data", "qr", "qrCode", "qr_code")
	}
	if base64 == "" && env.QRString != "" && !strings.HasPrefix(env.QRString, "http") && !strings.HasPrefix(env.QRString, "data:") {
		base64 = env.QRString
	}
	if base64 != "" {
		env.Base64 = sanitizeBase64(base64)
	}

	url := FirstString(payload, "qr_url", "qrUrl", "qrCodeUrl", "qr_code_url")
	if url == "" && qrMap != nil {
		url = FirstString(qrMap, "url", "qrUrl", "deeplink")
	}
	if url == "" && strings.HasPrefix(env.QRString, "http") {
		url = env.QRString
	}
	env.URL = url

	var expiresAt any
	for _, key := range []string{"qr_expires_at", "qrExpiresAt"} {
		if val, ok := payload[key]; ok && val != nil {
			expiresAt = val
			break
		}
	}
	if expiresAt == nil && qrMap != nil {
		for _, key := range []string{"expires_at", "expiresAt"} {
			if val, ok := qrMap[key]; ok && val != nil {
				expiresAt = val
				break
			}
		}
	}
	env.ExpiresAt = CoerceTimestamp(expiresAt)

	expiresIn := FirstFloat(payload, "qr_expires_in", "qrExpiresIn")
	if expiresIn == 0 && qrMap != nil {
		expiresIn = FirstFloat(qrMap, "expires_in", "expiresIn")
	}
	env.ExpiresInSeconds = expiresIn

	return env
}

// QRImage resolves the ready-to-render image reference for an envelope.
// Data URIs and URLs pass through unchanged; bare base64 bytes are
// wrapped into a data URI using the envelope's content type.
func (e QREnvelope) QRImage() string {
	if strings.HasPrefix(e.QRString, "data:") {
		return e.QRString
	}
	if e.Base64 != "" {
		return BuildQRImageFromBase64(e.Base64, e.ContentType)
	}
	return ""
}

// BuildQRImageFromBase64 wraps bare base64 bytes into a data URI.
// Values already carrying a data: or http(s): prefix are returned as-is.
func BuildQRImageFromBase64(value, contentType string) string {
	trimmed := strings.TrimSpace(value)
	if trimmed == "" {
		return ""
	}
	if strings.HasPrefix(trimmed, "data:") || strings.HasPrefix(trimmed, "http") {
		return trimmed
	}
	if contentType == "" {
		contentType = DefaultQRContentType
	}
	return "data:" + contentType + ";base64," + sanitizeBase64(trimmed)
}

// CoerceTimestamp parses the timestamp shapes seen across upstreams:
// RFC3339 (and close variants), epoch seconds, epoch milliseconds, and
// {seconds, nanos} objects. Unparseable input yields nil.
func CoerceTimestamp(value any) *time.Time {
	switch v := value.(type) {
	case nil:
		return nil
	case time.Time:
		return &v
	case float64:
		if v == 0 {
			return nil
		}
		ms := v
		if v < 1e12 {
			ms = v * 1000
		}
		ts := time.UnixMilli(int64(ms)).UTC()
		return &ts
	case string:
		trimmed := strings.TrimSpace(v)
		if trimmed == "" {
			return nil
		}
		for _, layout := range []string{time.RFC3339Nano, time.RFC3339, "2006-01-02 15:04:05", "2006-01-02"} {
			if ts, err := time.Parse(layout, trimmed); err == nil {
				ts = ts.UTC()
				return &ts
			}
		}
		return nil
	case map[string]any:
		seconds := FirstFloat(v, "seconds", "_seconds", "epochSeconds", "epoch_seconds")
		if seconds == 0 {
			return nil
		}
		nanos := FirstFloat(v, "nanoseconds", "nanos", "_nanoseconds", "nanoSeconds")
		ts := time.Unix(int64(seconds), int64(nanos)).UTC()
		return &ts
	default:
		return nil
	}
}
