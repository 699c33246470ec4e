// Package universe maintains the list of exchange codes the scanner rotates
// through.
package universe

import (
	"bufio"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// ErrNoSource is returned when neither the network nor the local copies could
// provide the listing pages.
var ErrNoSource = errors.New("universe: no listing source available")

// Load reads codes from path, one per line. Only the first whitespace separated
// token of each non-blank line is kept, and order is preserved.
func Load(path string) ([]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open universe file: %w", err)
	}
	defer f.Close()

	var codes []string
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		fields := strings.Fields(scanner.Text())
		if len(fields) == 0 {
			continue
		}
		codes = append(codes, fields[0])
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("read universe file: %w", err)
	}
	return codes, nil
}

// Save writes codes to path, one per line, replacing any existing file.
func Save(path string, codes []string) error {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create universe dir: %w", err)
		}
	}

	var b strings.Builder
	for _, c := range codes {
		b.WriteString(c)
		b.WriteByte('\n')
	}

	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, []byte(b.String()), 0o644); err != nil {
		return fmt.Errorf("write universe file: %w", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		return fmt.Errorf("replace universe file: %w", err)
	}
	return nil
}
