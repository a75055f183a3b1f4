package partition

import (
	"fmt"
	"path/filepath"
	"strconv"
	"strings"

	"combostat/internal/apperr"
	"combostat/internal/share"
)

// GroupKey names the directory holding every chunk of one (share type, k):
// "intersection3", "union10".
func GroupKey(t share.Type, k int) string {
	return fmt.Sprintf("%s%d", t, k)
}

// ParseGroupKey splits a group key back into share type and k.
func ParseGroupKey(s string) (share.Type, int, error) {
	for _, t := range share.Types {
		rest, ok := strings.CutPrefix(s, string(t))
		if !ok {
			continue
		}
		k, err := strconv.Atoi(rest)
		if err != nil || k < 1 {
			break
		}
		return t, k, nil
	}
	return "", 0, apperr.InvalidArgf("not a group key: %q", s)
}

// ChunkFile names one chunk's result file: "{k}_{chunk}.txt".
func ChunkFile(k, chunk int) string {
	return fmt.Sprintf("%d_%d.txt", k, chunk)
}

// ParseChunkFile returns k and the chunk index from a chunk file name.
func ParseChunkFile(name string) (k, chunk int, err error) {
	base, ok := strings.CutSuffix(filepath.Base(name), ".txt")
	if ok {
		a, b, found := strings.Cut(base, "_")
		if found {
			kk, err1 := strconv.Atoi(a)
			c, err2 := strconv.Atoi(b)
			if err1 == nil && err2 == nil && kk >= 1 && c >= 1 {
				return kk, c, nil
			}
		}
	}
	return 0, 0, apperr.InvalidArgf("not a chunk file: %q", name)
}

// ResultPath is root/{group}/{k}_{chunk}.txt.
func ResultPath(root string, t share.Type, k, chunk int) string {
	return filepath.Join(root, GroupKey(t, k), ChunkFile(k, chunk))
}

// MergedPath is mergeDir/{group}/{group}.txt.
func MergedPath(mergeDir, group string) string {
	return filepath.Join(mergeDir, group, group+".txt")
}
