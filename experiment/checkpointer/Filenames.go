package checkpointer

import (
	"fmt"
	"time"
)

// Filenames name checkpoints. Each call returns the filename for the
// next checkpoint.
type Filenames func() string

// FilenameEnumerator names checkpoints <filename><n><extension>, where n
// counts up from start+1
func FilenameEnumerator(start int, filename, extension string) Filenames {
	n := start
	return func() string {
		n++
		return fmt.Sprintf("%s%d%s", filename, n, extension)
	}
}

// FileTimer names checkpoints <filename>-<unix nanoseconds><extension>
func FileTimer(filename, extension string) Filenames {
	return func() string {
		return fmt.Sprintf("%s-%d%s", filename, time.Now().UnixNano(),
			extension)
	}
}

// Fixed names every checkpoint filename, so each overwrites the last
func Fixed(filename string) Filenames {
	return func() string { return filename }
}
