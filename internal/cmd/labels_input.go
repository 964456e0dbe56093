package cmd

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"strings"
)

// resolveLabels returns labels from positional args, or from labelsFile
// ("-" reads stdin). Blank lines and # comments are skipped.
func resolveLabels(positional []string, labelsFile string, stdin io.Reader) ([]string, error) {
	trimmed := strings.TrimSpace(labelsFile)
	if trimmed != "" {
		if len(positional) > 0 {
			return nil, fmt.Errorf("cannot combine positional labels with --labels-file")
		}
		return readLabelsFile(trimmed, stdin)
	}

	labels := make([]string, 0, len(positional))
	for _, raw := range positional {
		if label := strings.TrimSpace(raw); label != "" {
			labels = append(labels, label)
		}
	}
	if len(labels) == 0 {
		return nil, fmt.Errorf("at least one label is required (or use --labels-file -)")
	}
	return labels, nil
}

func readLabelsFile(path string, stdin io.Reader) ([]string, error) {
	reader := stdin
	if path != "-" {
		// #nosec G304 -- path is an operator-supplied flag
		file, err := os.Open(path)
		if err != nil {
			return nil, err
		}
		defer file.Close() // nolint:errcheck
		reader = file
	}

	labels := make([]string, 0)
	scanner := bufio.NewScanner(reader)
	for scanner.Scan() {
		raw := strings.TrimSpace(scanner.Text())
		if raw == "" || strings.HasPrefix(raw, "#") {
			continue
		}
		labels = append(labels, raw)
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}

	if len(labels) == 0 {
		return nil, fmt.Errorf("no labels found")
	}
	return labels, nil
}
