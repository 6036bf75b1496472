package defaults

import (
	"testing"

	"gopkg.in/yaml.v3"
)

func TestConfigYAML_Parses(t *testing.T) {
	if len(ConfigYAML) == 0 {
		t.Fatal("embedded config is empty")
	}
	var doc map[string]any
	if err := yaml.Unmarshal(ConfigYAML, &doc); err != nil {
		t.Fatalf("example config is not valid YAML: %v", err)
	}
	for _, key := range []string{"listen", "database", "llm", "openai", "audio", "metrics"} {
		if _, ok := doc[key]; !ok {
			t.Errorf("example config missing %q section", key)
		}
	}
}
