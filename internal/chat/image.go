package chat

import (
	"encoding/base64"
	"encoding/json"
	"errors"
	"strings"
)

var errNoImageData = errors.New("no image data in payload")

// DecodeImagePayload extracts the binary image from a NewMessage content.
// Accepted forms are a JSON object {"content": "<data-url>"}, a bare data
// URL, or bare base64.
func DecodeImagePayload(content string) ([]byte, error) {
	raw := strings.TrimSpace(content)

	var wrapped struct {
		Content string `json:"content"`
	}
	if strings.HasPrefix(raw, "{") {
		if err := json.Unmarshal([]byte(raw), &wrapped); err != nil {
			return nil, err
		}
		raw = strings.TrimSpace(wrapped.Content)
	}
	if raw == "" {
		return nil, errNoImageData
	}

	if strings.HasPrefix(raw, "data:") {
		_, data, ok := strings.Cut(raw, ",")
		if !ok {
			return nil, errNoImageData
		}
		raw = data
	}

	decoded, err := base64.StdEncoding.DecodeString(raw)
	if err != nil {
		// Some clients strip padding.
		decoded, err = base64.RawStdEncoding.DecodeString(strings.TrimRight(raw, "="))
	}
	if err != nil {
		return nil, err
	}
	if len(decoded) == 0 {
		return nil, errNoImageData
	}
	return decoded, nil
}
