package artifact

import "fmt"

// FilesystemError reports a filesystem-level problem: a missing source file
// or blob, a permission failure, or a failed rename during publish.
type FilesystemError struct {
	Op   string
	Path string
	Err  error
}

func (e *FilesystemError) Error() string {
	return fmt.Sprintf("%s %s: %v", e.Op, e.Path, e.Err)
}

func (e *FilesystemError) Unwrap() error {
	return e.Err
}
