package universe

import (
	"bytes"
	"crypto/sha256"
	_ "embed"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

//go:embed universes.yaml
var defaultYAML []byte

// Parse decodes and validates a catalogue
// KnownFields(true)로 오타/미사용 필드 즉시 실패
func Parse(data []byte) (*Catalogue, error) {
	var c Catalogue
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&c); err != nil {
		return nil, fmt.Errorf("decode universes: %w", err)
	}
	if err := Validate(&c); err != nil {
		return nil, err
	}
	return &c, nil
}

// Load reads a catalogue file
func Load(path string) (*Catalogue, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return Parse(data)
}

// Default returns the built-in catalogue
func Default() *Catalogue {
	c, err := Parse(defaultYAML)
	if err != nil {
		panic(fmt.Sprintf("built-in universes invalid: %v", err))
	}
	return c
}

// LoadOrDefault loads path, or returns the built-in catalogue when path is empty
func LoadOrDefault(path string) (*Catalogue, error) {
	if path == "" {
		return Default(), nil
	}
	return Load(path)
}

// Hash fingerprints a catalogue (canonical JSON)
func Hash(c *Catalogue) (string, error) {
	jsonBytes, err := json.Marshal(c)
	if err != nil {
		return "", err
	}
	sum := sha256.Sum256(jsonBytes)
	return hex.EncodeToString(sum[:]), nil
}
