package log

import (
	"bytes"
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestSyncWriterConcurrentWrites(t *testing.T) {
	var buf bytes.Buffer
	w := NewSyncWriter(&buf)

	const writers = 16
	const linesPerWriter = 100

	var wg sync.WaitGroup
	for i := 0; i < writers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			line := []byte(fmt.Sprintf("writer-%02d line\n", i))
			for j := 0; j < linesPerWriter; j++ {
				_, _ = w.Write(line)
			}
		}(i)
	}
	wg.Wait()

	lines := bytes.Split(bytes.TrimRight(buf.Bytes(), "\n"), []byte("\n"))
	require.Len(t, lines, writers*linesPerWriter)
	for _, line := range lines {
		require.Regexp(t, `^writer-\d{2} line$`, string(line))
	}
}
