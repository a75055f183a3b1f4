package table

import (
	"bufio"
	"bytes"
	"context"
	"fmt"
	"io"
	"os"

	"combostat/internal/datasource"

	"github.com/edsrzf/mmap-go"
)

// CountRows returns the number of data rows in a local table: non-empty
// lines after the header. Quoted fields spanning lines are not supported
// here; presence tables do not use them.
func CountRows(path string, opts Options) (int, error) {
	f, err := os.Open(path)
	if err != nil {
		return 0, fmt.Errorf("open %s: %w", path, err)
	}
	defer f.Close()

	st, err := f.Stat()
	if err != nil {
		return 0, fmt.Errorf("stat %s: %w", path, err)
	}
	if st.Size() == 0 {
		return 0, nil
	}

	m, err := mmap.Map(f, mmap.RDONLY, 0)
	if err != nil {
		return 0, fmt.Errorf("mmap %s: %w", path, err)
	}
	defer m.Unmap()

	return dataRows(countLines(m), opts), nil
}

// CountRowsURI counts rows of a local path or s3:// object.
func CountRowsURI(ctx context.Context, uri string, opts Options) (int, error) {
	if !datasource.IsRemote(uri) {
		return CountRows(uri, opts)
	}
	src, err := datasource.ForURI(uri)
	if err != nil {
		return 0, err
	}
	rc, err := src.Open(ctx)
	if err != nil {
		return 0, err
	}
	defer rc.Close()
	return CountRowsReader(rc, opts)
}

// CountRowsReader is CountRows over a stream.
func CountRowsReader(r io.Reader, opts Options) (int, error) {
	br := bufio.NewReaderSize(r, 1<<20)
	lines := 0
	for {
		b, err := br.ReadSlice('\n')
		if len(b) > 0 && !isBlank(b) {
			lines++
		}
		if err == io.EOF {
			break
		}
		if err == bufio.ErrBufferFull {
			// long line: consume the rest so it counts once
			for err == bufio.ErrBufferFull {
				_, err = br.ReadSlice('\n')
			}
			if err == io.EOF {
				break
			}
		}
		if err != nil {
			return 0, fmt.Errorf("count rows: %w", err)
		}
	}
	return dataRows(lines, opts), nil
}

func countLines(data []byte) int {
	lines := 0
	for len(data) > 0 {
		i := bytes.IndexByte(data, '\n')
		var line []byte
		if i < 0 {
			line, data = data, nil
		} else {
			line, data = data[:i+1], data[i+1:]
		}
		if !isBlank(line) {
			lines++
		}
	}
	return lines
}

func isBlank(line []byte) bool {
	line = bytes.TrimRight(line, "\r\n")
	return len(line) == 0
}

func dataRows(lines int, opts Options) int {
	return max(lines-opts.HeaderRow-1, 0)
}
