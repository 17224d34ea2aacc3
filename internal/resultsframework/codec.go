package resultsframework

import (
	"bytes"
	"encoding/json"
	"fmt"

	"trackhub/internal/model"
)

// Marshal encodes the tree as the blob stored under metadata.resultsFramework.
func Marshal(rf model.ResultsFramework) ([]byte, error) {
	data, err := json.Marshal(Clone(rf))
	if err != nil {
		return nil, fmt.Errorf("encode results framework: %w", err)
	}
	return data, nil
}

// Unmarshal decodes a stored blob. An empty or null blob is an empty tree.
func Unmarshal(data []byte) (model.ResultsFramework, error) {
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null")) {
		return Clone(model.ResultsFramework{}), nil
	}

	var rf model.ResultsFramework
	if err := json.Unmarshal(trimmed, &rf); err != nil {
		return model.ResultsFramework{}, fmt.Errorf("decode results framework: %w", err)
	}
	return Clone(rf), nil
}
