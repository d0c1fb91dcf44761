// internal/usage/keys.go
package usage

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	json "github.com/goccy/go-json"
	"gopkg.in/yaml.v3"
)

// APIKey: 통계를 조회할 계정 하나.
type APIKey struct {
	Name    string `json:"name" yaml:"name"`
	Account string `json:"account" yaml:"account"`
	APIKey  string `json:"apiKey" yaml:"apiKey"`
}

type keysFile struct {
	APIKeys      []APIKey `json:"apiKeys" yaml:"apiKeys"`
	SnakeAPIKeys []APIKey `json:"api_keys" yaml:"api_keys"`
}

// ErrNoKeys: 설정 파일에 api_keys / apiKeys 배열이 없음.
var ErrNoKeys = errors.New("keys file has no api_keys or apiKeys array")

// LoadKeys
// ------------------------------------------------------------
// API key 목록 파일을 읽는다. 확장자가 .yaml / .yml 이면 YAML, 그 외는 JSON.
// "api_keys" 와 "apiKeys" 둘 다 받아준다 (api_keys 우선).
// apiKey 가 빈 항목은 건너뛴다.
func LoadKeys(path string) ([]APIKey, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		abs = path
	}
	data, err := os.ReadFile(abs)
	if err != nil {
		return nil, fmt.Errorf("load api keys: %w", err)
	}

	var f keysFile
	switch strings.ToLower(filepath.Ext(abs)) {
	case ".yaml", ".yml":
		err = yaml.Unmarshal(data, &f)
	default:
		err = json.Unmarshal(data, &f)
	}
	if err != nil {
		return nil, fmt.Errorf("load api keys %s: %w", abs, err)
	}

	keys := f.SnakeAPIKeys
	if keys == nil {
		keys = f.APIKeys
	}
	if keys == nil {
		return nil, fmt.Errorf("load api keys %s: %w", abs, ErrNoKeys)
	}

	out := make([]APIKey, 0, len(keys))
	for _, k := range keys {
		if strings.TrimSpace(k.APIKey) == "" {
			continue
		}
		out = append(out, k)
	}
	return out, nil
}
