// Command generate-checksums writes the checksum files toolup's own releases
// publish, in the layout toolup verifies downloads against.
package main

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/spf13/afero"
	"github.com/spf13/cobra"

	"github.com/3leaps/toolup/internal/verify"
)

// outputs maps each algorithm onto the file name DetectChecksumAlgorithm
// recognizes for it.
var outputs = map[string]string{
	"sha256": "SHA256SUMS",
	"sha512": "SHA512SUMS",
}

func main() {
	if err := newCmd(afero.NewOsFs(), os.Stdout).Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newCmd(fs afero.Fs, out io.Writer) *cobra.Command {
	var (
		dir    string
		algos  []string
		prefix string
	)
	cmd := &cobra.Command{
		Use:           "generate-checksums",
		Short:         "Write SHA256SUMS/SHA512SUMS for release artifacts",
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return run(fs, out, dir, prefix, algos)
		},
	}
	cmd.Flags().StringVar(&dir, "dir", "dist/release", "directory containing release artifacts")
	cmd.Flags().StringSliceVar(&algos, "algos", []string{"sha256", "sha512"}, "hash algorithms (sha256, sha512)")
	cmd.Flags().StringVar(&prefix, "prefix", "toolup_", "file name prefix of release artifacts")
	return cmd
}

func run(fs afero.Fs, out io.Writer, dir, prefix string, algos []string) error {
	dir = strings.TrimSpace(dir)
	if dir == "" {
		return errors.New("directory is required")
	}
	info, err := fs.Stat(dir)
	if err != nil {
		return fmt.Errorf("stat %s: %w", dir, err)
	}
	if !info.IsDir() {
		return fmt.Errorf("%s is not a directory", dir)
	}

	selected, err := normalizeAlgos(algos)
	if err != nil {
		return err
	}

	entries, err := afero.ReadDir(fs, dir)
	if err != nil {
		return fmt.Errorf("read dir: %w", err)
	}
	var files []string
	for _, entry := range entries {
		if !entry.IsDir() && isArtifact(entry.Name(), prefix) {
			files = append(files, entry.Name())
		}
	}
	if len(files) == 0 {
		return fmt.Errorf("no release artifacts matching %s* in %s", prefix, dir)
	}
	sort.Strings(files)

	for _, algo := range selected {
		outPath := filepath.Join(dir, outputs[algo])
		if err := writeChecksums(fs, dir, outPath, files, algo); err != nil {
			return err
		}
		fmt.Fprintf(out, "Wrote %s (%d entries)\n", outPath, len(files))
	}
	return nil
}

func normalizeAlgos(list []string) ([]string, error) {
	var out []string
	seen := map[string]bool{}
	for _, raw := range list {
		algo := strings.ToLower(strings.TrimSpace(raw))
		if algo == "" || seen[algo] {
			continue
		}
		if _, ok := outputs[algo]; !ok {
			return nil, fmt.Errorf("unsupported hash algorithm %q", algo)
		}
		seen[algo] = true
		out = append(out, algo)
	}
	if len(out) == 0 {
		return nil, errors.New("no hash algorithms specified")
	}
	return out, nil
}

// isArtifact skips signatures and checksum outputs.
func isArtifact(name, prefix string) bool {
	lower := strings.ToLower(name)
	for _, suffix := range []string{".asc", ".minisig", ".sig", ".sha256", ".sha512", ".txt"} {
		if strings.HasSuffix(lower, suffix) {
			return false
		}
	}
	if strings.HasSuffix(lower, "sums") {
		return false
	}
	return strings.HasPrefix(name, prefix)
}

func writeChecksums(fs afero.Fs, dir, outPath string, files []string, algo string) error {
	var b strings.Builder
	for _, name := range files {
		f, err := fs.Open(filepath.Join(dir, name))
		if err != nil {
			return fmt.Errorf("open %s: %w", name, err)
		}
		sum, err := verify.Digest(f, algo)
		f.Close()
		if err != nil {
			return fmt.Errorf("hash %s: %w", name, err)
		}
		fmt.Fprintf(&b, "%s  %s\n", sum, name)
	}
	return afero.WriteFile(fs, outPath, []byte(b.String()), 0o644)
}
