package manifests

import (
	"bytes"
	"fmt"

	"sigs.k8s.io/yaml"
)

// Render marshals objects into a multi-document YAML stream.
func Render(objects ...any) ([]byte, error) {
	var buf bytes.Buffer
	for i, obj := range objects {
		data, err := yaml.Marshal(obj)
		if err != nil {
			return nil, fmt.Errorf("failed to render manifest document %d: %w", i, err)
		}
		if i > 0 {
			buf.WriteString("---\n")
		}
		buf.Write(data)
	}
	return buf.Bytes(), nil
}
