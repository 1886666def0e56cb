package generic

import "strings"

// =============================================================================
// AUTHOR - One named contributor on a contribution
// =============================================================================

// Role is the authorship role that decides which percentage an author draws from.
type Role string

const (
	RoleFirstAuthor                 Role = "first_author"
	RoleCorrespondingAuthor         Role = "corresponding_author"
	RoleFirstAndCorrespondingAuthor Role = "first_and_corresponding_author"
	RoleCoAuthor                    Role = "co_author"
	RoleSeniorAuthor                Role = "senior_author"
)

// Valid reports whether r is a known role.
func (r Role) Valid() bool {
	switch r {
	case RoleFirstAuthor, RoleCorrespondingAuthor, RoleFirstAndCorrespondingAuthor,
		RoleCoAuthor, RoleSeniorAuthor:
		return true
	}
	return false
}

// IsFirst reports whether r anchors the first-author percentage.
func (r Role) IsFirst() bool {
	return r == RoleFirstAuthor || r == RoleFirstAndCorrespondingAuthor
}

// IsCorresponding reports whether r anchors the corresponding-author percentage.
func (r Role) IsCorresponding() bool {
	return r == RoleCorrespondingAuthor || r == RoleFirstAndCorrespondingAuthor
}

// IsCoAuthor reports whether r draws from the co-author pool.
func (r Role) IsCoAuthor() bool {
	return r == RoleCoAuthor || r == RoleSeniorAuthor
}

// Category is the affiliation of an author.
type Category string

const (
	CategoryFaculty          Category = "faculty"
	CategoryStaff            Category = "staff"
	CategoryStudent          Category = "student"
	CategoryAcademic         Category = "academic"
	CategoryIndustry         Category = "industry"
	CategoryExternalAcademic Category = "external_academic"
	CategoryExternalIndustry Category = "external_industry"
)

// IsExternal reports whether the category lies outside the university.
// "academic", "industry" and anything mentioning "external" are external.
func (c Category) IsExternal() bool {
	v := strings.ToLower(strings.TrimSpace(string(c)))
	return v == string(CategoryAcademic) || v == string(CategoryIndustry) || strings.Contains(v, "external")
}

// IsInternal is the complement of IsExternal.
func (c Category) IsInternal() bool { return !c.IsExternal() }

// IsStudent reports whether the category is the internal student category.
func (c Category) IsStudent() bool {
	return strings.ToLower(strings.TrimSpace(string(c))) == string(CategoryStudent)
}

type Author struct {
	ID             AuthorID
	ContributionID ContributionID
	Name           string
	Email          string
	Order          int // 1-based position
	Role           Role
	Category       Category

	// Outputs of the splitter. Never edited directly.
	IncentiveShare Amount
	PointsShare    Amount
}

// Internal is derived from the category.
func (a Author) Internal() bool { return a.Category.IsInternal() }
