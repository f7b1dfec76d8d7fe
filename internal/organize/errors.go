package organize

import "errors"

var (
	// ErrPathTraversal is returned when a destination path would
	// escape the library root.
	ErrPathTraversal = errors.New("path escapes library root")

	// ErrDestinationExists is returned when the destination file
	// already exists.
	ErrDestinationExists = errors.New("destination file already exists")

	// ErrCopyFailed wraps failures while copying a file.
	ErrCopyFailed = errors.New("copy failed")

	// ErrVerifyFailed is returned when the copied file's checksum does
	// not match the source.
	ErrVerifyFailed = errors.New("copy verification failed")
)
