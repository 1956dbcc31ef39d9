package extract

import (
	"errors"
	"fmt"
	"regexp"
	"strconv"
)

// ErrPaginationParse matches every *ParseError.
var ErrPaginationParse = errors.New("extract: cannot parse pagination summary")

// ParseError reports a pagination summary that does not look like
// "<start>-<end> of <total>".
type ParseError struct {
	Text   string
	Reason string
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("%v: %s (%q)", ErrPaginationParse, e.Reason, e.Text)
}

func (e *ParseError) Is(target error) bool {
	return target == ErrPaginationParse
}

var summaryPattern = regexp.MustCompile(`(\d+)-(\d+)\s+of\s+(\d+)`)

// Summary is the "Showing 21-30 of 43" line under the results table.
type Summary struct {
	Start int
	End   int
	Total int
}

// ParseSummary extracts the three numbers of a pagination summary.
func ParseSummary(text string) (Summary, error) {
	m := summaryPattern.FindStringSubmatch(text)
	if m == nil {
		return Summary{}, &ParseError{Text: text, Reason: "no <start>-<end> of <total> match"}
	}
	nums := make([]int, 3)
	for i := range nums {
		n, err := strconv.Atoi(m[i+1])
		if err != nil {
			return Summary{}, &ParseError{Text: text, Reason: err.Error()}
		}
		nums[i] = n
	}
	s := Summary{Start: nums[0], End: nums[1], Total: nums[2]}
	if s.PageSize() <= 0 {
		return Summary{}, &ParseError{Text: text, Reason: "end before start"}
	}
	return s, nil
}

// PageSize is the number of rows shown per page.
func (s Summary) PageSize() int {
	return s.End - s.Start + 1
}

// PageCount is the number of pages needed to show Total rows.
func (s Summary) PageCount() int {
	size := s.PageSize()
	if size <= 0 {
		return 0
	}
	return (s.Total + size - 1) / size
}
