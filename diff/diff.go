// Package diff renders line-by-line differences between two texts, such as
// successive JSON values of a watched location.
package diff

import (
	"bytes"
	"strings"

	"github.com/sergi/go-diff/diffmatchpatch"
)

// Diff compares text1 and text2 line by line. It returns whether they are the
// same, and the merged lines, each prefixed with "  " if it is in both texts,
// "- " if it is only in text1, or "+ " if it is only in text2.
func Diff(text1, text2 string) (equal bool, diff string) {
	dmp := diffmatchpatch.New()
	chars1, chars2, lines := dmp.DiffLinesToChars(text1, text2)
	diffs := dmp.DiffCharsToLines(dmp.DiffMain(chars1, chars2, false), lines)
	return text1 == text2, Pretty(diffs)
}

// Pretty renders diffs one line at a time. Every line ends in a newline.
func Pretty(diffs []diffmatchpatch.Diff) string {
	var buff bytes.Buffer
	for _, diff := range diffs {
		prefix := "  "
		switch diff.Type {
		case diffmatchpatch.DiffInsert:
			prefix = "+ "
		case diffmatchpatch.DiffDelete:
			prefix = "- "
		}
		for _, line := range strings.SplitAfter(diff.Text, "\n") {
			if line == "" {
				continue
			}
			_, _ = buff.WriteString(prefix)
			_, _ = buff.WriteString(line)
			if !strings.HasSuffix(line, "\n") {
				_ = buff.WriteByte('\n')
			}
		}
	}
	return buff.String()
}
