package util

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// LoadPrompt returns <PROMPT_DIR>/<provider>/<name>.<kind>.txt when present,
// otherwise the built-in text.
func LoadPrompt(name, kind, provider, builtin string) string {
	root := strings.TrimSpace(os.Getenv("PROMPT_DIR"))
	if root == "" || provider == "" {
		return builtin
	}
	p := filepath.Join(root, strings.ToLower(provider), fmt.Sprintf("%s.%s.txt", name, kind))
	if b, err := os.ReadFile(p); err == nil {
		if s := strings.TrimSpace(string(b)); s != "" {
			return s
		}
	}
	return builtin
}
