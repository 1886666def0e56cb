package incentive

import (
	"fmt"
	"sort"

	"github.com/warp/contribution-engine/generic"
)

// =============================================================================
// CLASSIFICATION - Who is who on an author list
// =============================================================================

// Classification partitions an author list into the cohorts the splitter needs.
// Slices hold indexes into the classified author list so callers can write
// shares back positionally.
type Classification struct {
	Internal                  []int
	External                  []int
	InternalCoAuthors         []int // co_author / senior_author, internal
	InternalEmployeeCoAuthors []int // internal co-authors that are not students
	StudentAuthors            []int

	FirstAnchor         int // always set on a valid set
	CorrespondingAnchor int // -1 when nobody holds the corresponding role
}

// SameAnchor reports whether one author holds both anchor roles.
func (c *Classification) SameAnchor() bool {
	return c.CorrespondingAnchor == c.FirstAnchor
}

// Classify partitions authors and validates the set.
//
// Category "academic", "industry" and anything containing "external" is
// external; everything else is internal. co_author and senior_author count as
// co-authors. The unique first_author / first_and_corresponding_author is the
// first anchor; the unique corresponding_author / first_and_corresponding_author
// (if any) is the corresponding anchor.
//
// Returns *generic.MalformedAuthorSetError listing every problem when the set
// is empty, has zero or several first anchors, a first anchor not in order 1,
// several corresponding anchors, duplicate or non-positive orders, or an
// unknown role.
func Classify(authors []generic.Author) (*Classification, error) {
	if len(authors) == 0 {
		return nil, &generic.MalformedAuthorSetError{Problems: []string{"no authors"}}
	}

	c := &Classification{FirstAnchor: -1, CorrespondingAnchor: -1}
	var problems []string
	var firsts, corrs []int
	seenOrder := make(map[int]int, len(authors))

	for i, a := range authors {
		if a.Order < 1 {
			problems = append(problems, fmt.Sprintf("author %q has non-positive order %d", a.Name, a.Order))
		} else if prev, dup := seenOrder[a.Order]; dup {
			problems = append(problems, fmt.Sprintf("authors %q and %q share order %d", authors[prev].Name, a.Name, a.Order))
		} else {
			seenOrder[a.Order] = i
		}

		if !a.Role.Valid() {
			problems = append(problems, fmt.Sprintf("author %q has unknown role %q", a.Name, a.Role))
			continue
		}

		if a.Category.IsExternal() {
			c.External = append(c.External, i)
		} else {
			c.Internal = append(c.Internal, i)
			if a.Category.IsStudent() {
				c.StudentAuthors = append(c.StudentAuthors, i)
			}
		}

		if a.Role.IsFirst() {
			firsts = append(firsts, i)
		}
		if a.Role.IsCorresponding() {
			corrs = append(corrs, i)
		}
		if a.Role.IsCoAuthor() && a.Category.IsInternal() {
			c.InternalCoAuthors = append(c.InternalCoAuthors, i)
			if !a.Category.IsStudent() {
				c.InternalEmployeeCoAuthors = append(c.InternalEmployeeCoAuthors, i)
			}
		}
	}

	switch len(firsts) {
	case 0:
		problems = append(problems, "no first author")
	case 1:
		c.FirstAnchor = firsts[0]
		if authors[firsts[0]].Order != 1 {
			problems = append(problems, fmt.Sprintf("first author %q must have order 1, has %d",
				authors[firsts[0]].Name, authors[firsts[0]].Order))
		}
	default:
		problems = append(problems, fmt.Sprintf("%d first authors", len(firsts)))
	}

	switch len(corrs) {
	case 0:
	case 1:
		c.CorrespondingAnchor = corrs[0]
	default:
		problems = append(problems, fmt.Sprintf("%d corresponding authors", len(corrs)))
	}

	if len(problems) > 0 {
		return nil, &generic.MalformedAuthorSetError{Problems: problems}
	}
	return c, nil
}

// SortByOrder returns a copy of authors ordered by position.
func SortByOrder(authors []generic.Author) []generic.Author {
	sorted := make([]generic.Author, len(authors))
	copy(sorted, authors)
	sort.SliceStable(sorted, func(i, j int) bool { return sorted[i].Order < sorted[j].Order })
	return sorted
}
