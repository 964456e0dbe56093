package cmd

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"github.com/livetrack/livetrack/internal/output"
)

var formatExtensions = map[output.Format]string{
	output.FormatTable:    "txt",
	output.FormatJSON:     "json",
	output.FormatMarkdown: "md",
	output.FormatCSV:      "csv",
}

// addOutputFlags registers --output-format, --out and --out-dir.
func addOutputFlags(cmd *cobra.Command) {
	flags := cmd.Flags()
	flags.String("output-format", string(output.FormatTable), "Output format: table|json|markdown|csv")
	flags.String("out", "", "Write output to a file (default stdout)")
	flags.String("out-dir", "", "Write output to <dir>/<command>.<ext>")
}

// viewTarget is where a rendered view goes. An empty path means the
// command's stdout.
type viewTarget struct {
	format output.Format
	path   string
}

func resolveViewTarget(cmd *cobra.Command, name string) (viewTarget, error) {
	flags := cmd.Flags()
	rawFormat, err := flags.GetString("output-format")
	if err != nil {
		return viewTarget{}, err
	}
	format, err := output.ParseFormat(rawFormat)
	if err != nil {
		return viewTarget{}, err
	}
	outPath, err := flags.GetString("out")
	if err != nil {
		return viewTarget{}, err
	}
	outDir, err := flags.GetString("out-dir")
	if err != nil {
		return viewTarget{}, err
	}
	outPath, outDir = strings.TrimSpace(outPath), strings.TrimSpace(outDir)

	switch {
	case outPath != "" && outDir != "":
		return viewTarget{}, fmt.Errorf("--out and --out-dir are mutually exclusive")
	case outDir != "":
		return viewTarget{format: format, path: filepath.Join(outDir, name+"."+formatExtensions[format])}, nil
	case outPath == "-":
		return viewTarget{format: format}, nil
	default:
		return viewTarget{format: format, path: outPath}, nil
	}
}

// writeView renders view per the command's output flags. name is the file
// stem used with --out-dir, e.g. "ledger.list".
func writeView(cmd *cobra.Command, name string, view output.Tabular) error {
	target, err := resolveViewTarget(cmd, name)
	if err != nil {
		return err
	}
	rendered, err := output.Render(target.format, view)
	if err != nil {
		return err
	}
	body := strings.TrimRight(rendered, "\n") + "\n"

	if target.path == "" {
		_, err = fmt.Fprint(cmd.OutOrStdout(), body)
		return err
	}
	return writeFileAtomic(target.path, []byte(body))
}

// writeFileAtomic replaces path in one rename so a reader never sees a
// half-written report.
func writeFileAtomic(path string, data []byte) error {
	dir := filepath.Dir(path)
	// #nosec G301 -- report directory chosen by the operator
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("create output directory: %w", err)
	}
	tmp, err := os.CreateTemp(dir, "."+filepath.Base(path)+".*")
	if err != nil {
		return fmt.Errorf("create output file: %w", err)
	}
	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmp.Name())
		return fmt.Errorf("write output file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmp.Name())
		return err
	}
	// #nosec G302 -- reports are not secret
	if err := os.Chmod(tmp.Name(), 0644); err != nil {
		_ = os.Remove(tmp.Name())
		return err
	}
	return os.Rename(tmp.Name(), path)
}
