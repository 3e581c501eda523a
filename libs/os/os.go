package os

import (
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
)

type logger interface {
	Info(msg string, keyVals ...interface{})
}

// TrapSignal catches SIGTERM and SIGINT and executes the cleanup function.
// An operator-requested stop is a clean shutdown, so the process exit code
// stays with the caller; TrapSignal never exits on its own.
func TrapSignal(logger logger, cleanupFunc func()) {
	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		sig := <-sigs
		logger.Info("caught signal; shutting down", "signal", sig.String())

		if cleanupFunc != nil {
			cleanupFunc()
		}
	}()
}

// EnsureDir ensures the given directory exists, creating it if necessary.
func EnsureDir(dir string, mode os.FileMode) error {
	err := os.MkdirAll(dir, mode)
	if err != nil {
		return fmt.Errorf("could not create directory %q: %w", dir, err)
	}
	return nil
}

// FileExists reports whether a file exists at the given path.
func FileExists(filePath string) bool {
	_, err := os.Stat(filePath)
	return !errors.Is(err, os.ErrNotExist)
}

func WriteFile(filePath string, contents []byte, mode os.FileMode) error {
	return os.WriteFile(filePath, contents, mode)
}

// MustWriteFile writes a file or exits the process on failure.
func MustWriteFile(filePath string, contents []byte, mode os.FileMode) {
	if err := WriteFile(filePath, contents, mode); err != nil {
		fmt.Fprintf(os.Stderr, "MustWriteFile failed: %v\n", err)
		os.Exit(1)
	}
}

// CopyFile copies a file. It truncates the destination file if it exists.
func CopyFile(src, dst string) error {
	info, err := os.Stat(src)
	if err != nil {
		return err
	}

	srcFile, err := os.Open(src)
	if err != nil {
		return err
	}
	defer srcFile.Close()

	// create new file, truncate if exists and apply same permissions as
	// the original one
	dstFile, err := os.OpenFile(dst, os.O_RDWR|os.O_CREATE|os.O_TRUNC, info.Mode().Perm())
	if err != nil {
		return err
	}
	defer dstFile.Close()

	_, err = io.Copy(dstFile, srcFile)
	return err
}
