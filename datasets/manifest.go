package datasets

import (
	"bufio"
	"os"
	"path/filepath"
	"strings"
	"unicode"

	"github.com/pkg/errors"
	"k8s.io/klog/v2"
)

// LoadManifest reads a file holding one archive location per line and
// returns, in order, the locations that currently exist. Trailing whitespace
// is ignored; blank lines and locations that don't resolve are dropped.
//
// It only fails if the manifest itself can't be read, in which case the
// error matches ErrManifestUnreadable.
func LoadManifest(path string) ([]string, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, errors.Wrapf(ErrManifestUnreadable, "failed to open manifest %q: %v", path, err)
	}
	defer file.Close()

	var files []string
	scanner := bufio.NewScanner(file)
	lineNum := 0
	for scanner.Scan() {
		lineNum++
		location := strings.TrimRightFunc(scanner.Text(), unicode.IsSpace)
		if location == "" {
			continue
		}
		if _, err := os.Stat(location); err != nil {
			klog.Warningf("manifest %s:%d: dropping %q: %v", path, lineNum, location, err)
			continue
		}
		files = append(files, location)
	}
	if err := scanner.Err(); err != nil {
		return nil, errors.Wrapf(ErrManifestUnreadable, "failed to read manifest %q: %v", path, err)
	}
	return files, nil
}

// WriteManifest writes one location per line, creating parent directories.
func WriteManifest(path string, locations []string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return errors.Wrapf(err, "failed to create directory for manifest %q", path)
	}
	var sb strings.Builder
	for _, loc := range locations {
		sb.WriteString(loc)
		sb.WriteByte('\n')
	}
	if err := os.WriteFile(path, []byte(sb.String()), 0644); err != nil {
		return errors.Wrapf(err, "failed to write manifest %q", path)
	}
	return nil
}
