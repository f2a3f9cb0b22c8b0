package credstore

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// FileMedium stores the record in a local file restricted to the owning user.
// Writes use temp file + rename for crash safety.
type FileMedium struct {
	filePath string
}

var _ Medium = (*FileMedium)(nil)

// NewFileMedium creates a FileMedium for the given path, creating parent
// directories with 0700 permissions if they don't exist.
func NewFileMedium(filePath string) (*FileMedium, error) {
	if filePath == "" {
		return nil, fmt.Errorf("credential_store.file: path cannot be empty")
	}
	dir := filepath.Dir(filePath)
	if err := os.MkdirAll(dir, 0700); err != nil {
		return nil, err
	}
	return &FileMedium{filePath: filePath}, nil
}

// Read returns the stored payload. Insecure file permissions are refused.
func (medium *FileMedium) Read(ctx context.Context) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	info, statErr := os.Stat(medium.filePath)
	if statErr != nil {
		return "", statErr
	}
	if info.Mode().Perm() != 0600 {
		return "", fmt.Errorf("credential_store.file: insecure permissions on %s: %04o", medium.filePath, info.Mode().Perm())
	}
	data, readErr := os.ReadFile(medium.filePath)
	if readErr != nil {
		return "", readErr
	}
	payload := strings.TrimSpace(string(data))
	if payload == "" {
		return "", fmt.Errorf("credential_store.file: empty file %s", medium.filePath)
	}
	return payload, nil
}

// Write atomically saves the payload using temp file + rename, then locks the
// file down to owner read/write.
func (medium *FileMedium) Write(ctx context.Context, payload string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	dir := filepath.Dir(medium.filePath)
	tempFile, createErr := os.CreateTemp(dir, "*.tmp")
	if createErr != nil {
		return createErr
	}
	tempName := tempFile.Name()
	defer func() { _ = os.Remove(tempName) }()
	defer func() { _ = tempFile.Close() }()

	if _, writeErr := tempFile.Write([]byte(strings.TrimSpace(payload) + "\n")); writeErr != nil {
		return writeErr
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	if closeErr := tempFile.Close(); closeErr != nil {
		return closeErr
	}
	if renameErr := os.Rename(tempName, medium.filePath); renameErr != nil {
		return renameErr
	}
	return os.Chmod(medium.filePath, 0600)
}

// Delete removes the file; a missing file is not an error.
func (medium *FileMedium) Delete(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if removeErr := os.Remove(medium.filePath); removeErr != nil && !os.IsNotExist(removeErr) {
		return removeErr
	}
	return nil
}
