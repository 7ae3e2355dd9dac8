package permission

import (
	"errors"
	"fmt"
)

// Permission is a client-side capability gated by an entitlement.
type Permission int

const (
	ViewAITab Permission = iota
	UseAIChat
	ViewCommunityTab
	CanPostComment
	AccessPremiumCourses
	AccessMembershipCourses
	permissionCount
)

// All returns every defined Permission in declaration order.
func All() []Permission {
	out := make([]Permission, 0, int(permissionCount))
	for p := Permission(0); p < permissionCount; p++ {
		out = append(out, p)
	}
	return out
}

func (p Permission) String() string {
	switch p {
	case ViewAITab:
		return "view_ai_tab"
	case UseAIChat:
		return "use_ai_chat"
	case ViewCommunityTab:
		return "view_community_tab"
	case CanPostComment:
		return "can_post_comment"
	case AccessPremiumCourses:
		return "access_premium_courses"
	case AccessMembershipCourses:
		return "access_membership_courses"
	default:
		return fmt.Sprintf("permission(%d)", int(p))
	}
}

// ParsePermission is the inverse of Permission.String.
func ParsePermission(s string) (Permission, bool) {
	for _, p := range All() {
		if p.String() == s {
			return p, true
		}
	}
	return 0, false
}

// Catalog maps each Permission to the entitlement slug that grants it.
type Catalog map[Permission]string

// DefaultCatalog returns the slugs the content backend attaches to its plans.
// The AI tab and AI chat are granted by the same entitlement.
func DefaultCatalog() Catalog {
	return Catalog{
		ViewAITab:               "ai-assistant",
		UseAIChat:               "ai-assistant",
		ViewCommunityTab:        "community-access",
		CanPostComment:          "community-post",
		AccessPremiumCourses:    "premium-courses",
		AccessMembershipCourses: "membership-courses",
	}
}

// Validate checks that every Permission has a non-empty slug.
func (c Catalog) Validate() error {
	if len(c) == 0 {
		return errors.New("permission catalog is empty")
	}
	for _, p := range All() {
		if c[p] == "" {
			return fmt.Errorf("permission %s has no slug", p)
		}
	}
	return nil
}

// Slug returns the slug mapped to p.
func (c Catalog) Slug(p Permission) (string, bool) {
	s, ok := c[p]
	return s, ok && s != ""
}

func (c Catalog) clone() Catalog {
	out := make(Catalog, len(c))
	for p, s := range c {
		out[p] = s
	}
	return out
}
