// Package metadata hides a structured payload inside rendered message text
// and recovers it later.
//
// The payload travels as the target of an anchor wrapping a zero-width space,
// so it is invisible to readers. The carrier layout is fixed: messages sent by
// earlier deployments must stay decodable.
package metadata

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"telegate/internal/markup"
)

const (
	carrierMarker     = "tg://metadata/"
	carrierTerminator = "/end"
	quoteSubstitute   = "`"
	encodedSpace      = "%20"
	zeroWidthSpace    = "\u200b"
)

var ErrMalformedPayload = errors.New("metadata_malformed_payload")

// Embed appends a carrier holding payload to text. Strings are embedded as
// is; any other value is JSON encoded with double quotes swapped for
// backticks so the anchor attribute stays intact.
func Embed(payload interface{}, text string) (string, error) {
	encoded, err := encodePayload(payload)
	if err != nil {
		return "", err
	}
	return text + `<a href="` + carrierMarker + encoded + carrierTerminator + `">` + zeroWidthSpace + `</a>`, nil
}

func encodePayload(payload interface{}) (string, error) {
	if s, ok := payload.(string); ok {
		return s, nil
	}
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(payload); err != nil {
		return "", fmt.Errorf("encode metadata payload failed: %w", err)
	}
	raw := strings.TrimSuffix(buf.String(), "\n")
	return strings.ReplaceAll(raw, `"`, quoteSubstitute), nil
}

// Extract renders text with its annotations and decodes the first carrier it
// finds. found is false when no carrier is present, which is not an error.
func Extract(text string, annotations []markup.Annotation) (payload interface{}, found bool, err error) {
	raw, found := locate(markup.Compile(text, annotations))
	if !found {
		return nil, false, nil
	}
	if err := json.Unmarshal([]byte(raw), &payload); err != nil {
		return nil, true, fmt.Errorf("%w: %v", ErrMalformedPayload, err)
	}
	return restoreSpaces(payload), true, nil
}

func locate(html string) (string, bool) {
	parts := strings.SplitN(html, carrierMarker, 3)
	if len(parts) < 2 || parts[1] == "" {
		return "", false
	}
	body, _, _ := strings.Cut(parts[1], carrierTerminator)
	return strings.ReplaceAll(body, quoteSubstitute, `"`), true
}

// restoreSpaces undoes the %20 that Telegram writes for spaces in link
// targets. Strings held by the root object or array are rewritten, as are
// strings one array deeper; other escapes are left untouched.
func restoreSpaces(payload interface{}) interface{} {
	switch root := payload.(type) {
	case map[string]interface{}:
		for key, value := range root {
			root[key] = restoreField(value)
		}
		return root
	case []interface{}:
		for i, value := range root {
			root[i] = restoreField(value)
		}
		return root
	default:
		return payload
	}
}

func restoreField(value interface{}) interface{} {
	switch v := value.(type) {
	case string:
		return strings.ReplaceAll(v, encodedSpace, " ")
	case []interface{}:
		for i, elem := range v {
			if s, ok := elem.(string); ok {
				v[i] = strings.ReplaceAll(s, encodedSpace, " ")
			}
		}
		return v
	default:
		return value
	}
}
