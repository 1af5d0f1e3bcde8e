package dummydb

import (
	"sort"
	"strings"
	"time"

	"github.com/hamzaf287/focus-app/core"
)

// compareFunc returns <0, 0 or >0 when item i sorts before, with or after item j on one field.
type compareFunc func(i, j int) int

func compareInt(a, b int64) int {
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	}
	return 0
}

func compareTime(a, b time.Time) int {
	return compareInt(a.UnixNano(), b.UnixNano())
}

func compareTimePtr(a, b *time.Time) int {
	switch {
	case a == nil && b == nil:
		return 0
	case a == nil:
		return -1
	case b == nil:
		return 1
	}
	return compareTime(*a, *b)
}

// sortBy stable sorts n items with the compare funcs of the requested orderings.
func sortBy(n int, swap func(i, j int), ordering []core.DBOrdering, fields map[string]compareFunc) {
	sort.Stable(&sorter{n: n, swap: swap, less: func(i, j int) bool {
		for _, ord := range ordering {
			cmp, ok := fields[ord.Field]
			if !ok {
				continue
			}
			c := cmp(i, j)
			if c == 0 {
				continue
			}
			if ord.Ascending {
				return c < 0
			}
			return c > 0
		}
		return false
	}})
}

type sorter struct {
	n    int
	swap func(i, j int)
	less func(i, j int) bool
}

func (s *sorter) Len() int           { return s.n }
func (s *sorter) Swap(i, j int)      { s.swap(i, j) }
func (s *sorter) Less(i, j int) bool { return s.less(i, j) }

var compareString = strings.Compare
