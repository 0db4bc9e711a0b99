package richtext

import (
	"github.com/sergi/go-diff/diffmatchpatch"
)

type Op string

const (
	OpEqual  Op = "equal"
	OpInsert Op = "insert"
	OpDelete Op = "delete"
)

// Segment is one run of a text diff.
type Segment struct {
	Op   Op     `json:"op"`
	Text string `json:"text"`
}

// Diff compares the visible text of two markup fragments.
func Diff(from, to string) ([]Segment, error) {
	a, err := PlainText(from)
	if err != nil {
		return nil, err
	}
	b, err := PlainText(to)
	if err != nil {
		return nil, err
	}
	dmp := diffmatchpatch.New()
	diffs := dmp.DiffCleanupSemantic(dmp.DiffMain(a, b, false))
	out := make([]Segment, 0, len(diffs))
	for _, d := range diffs {
		op := OpEqual
		switch d.Type {
		case diffmatchpatch.DiffInsert:
			op = OpInsert
		case diffmatchpatch.DiffDelete:
			op = OpDelete
		}
		out = append(out, Segment{Op: op, Text: d.Text})
	}
	return out, nil
}
