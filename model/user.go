package model

// User is the authenticated backend user, as returned by /api/users/me and the
// login endpoint with deep population.
type User struct {
	ID           int                     `json:"id"`
	Username     string                  `json:"username"`
	Email        string                  `json:"email"`
	Profile      *UserProfile            `json:"user_profile,omitempty"`
	SystemRole   *SystemRole             `json:"role,omitempty"`
	Subscription *Relation[Subscription] `json:"subscription,omitempty"`
}

type UserProfile struct {
	ID                    int     `json:"id"`
	Locale                string  `json:"locale,omitempty"`
	ConsentForEmailNotice *bool   `json:"consentForEmailNotice,omitempty"`
	Children              []Child `json:"children,omitempty"`
}

type Child struct {
	ID     int    `json:"id"`
	Name   string `json:"name"`
	Age    int    `json:"age"`
	Gender string `json:"gender"`
}

// SystemRole is the Strapi users-permissions role ("Authenticated", "Public").
// It is unrelated to the plan Role.
type SystemRole struct {
	ID          int    `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description"`
	Type        string `json:"type"`
}

type Subscription struct {
	ID         int                    `json:"id"`
	Attributes SubscriptionAttributes `json:"attributes"`
}

type SubscriptionAttributes struct {
	Status     string `json:"status"`
	ExpireDate string `json:"expireDate,omitempty"`
	StartDate  string `json:"startDate,omitempty"`
	Plan       Plan   `json:"plan"`
}

// Plan is decoded from the subscription's plan relation.
type Plan struct {
	ID         int            `json:"id"`
	Attributes PlanAttributes `json:"attributes"`
}

type PlanAttributes struct {
	Name         string                     `json:"name"`
	ProductID    string                     `json:"productId"`
	Role         string                     `json:"role,omitempty"`
	Order        *int                       `json:"order,omitempty"`
	Entitlements *ListResponse[Entitlement] `json:"entitlements,omitempty"`
}

type Entitlement struct {
	ID         int                   `json:"id"`
	Attributes EntitlementAttributes `json:"attributes"`
}

type EntitlementAttributes struct {
	Name        string `json:"name"`
	Slug        string `json:"slug"`
	IsMetered   bool   `json:"isMetered"`
	Limit       *int   `json:"limit,omitempty"`
	ResetPeriod string `json:"resetPeriod,omitempty"`
}

// plan returns the user's subscribed plan, or nil when the user has no
// subscription relation.
func (u *User) plan() *Plan {
	if u == nil || u.Subscription == nil || u.Subscription.Data == nil {
		return nil
	}
	return &u.Subscription.Data.Attributes.Plan
}

// HasSubscription reports whether the user resolves to a subscription record.
func (u *User) HasSubscription() bool {
	return u.plan() != nil
}

// Role derives the user's plan role. A user without a subscription is free.
func (u *User) Role() Role {
	p := u.plan()
	if p == nil {
		return RoleFree
	}
	return ParseRole(p.Attributes.Role)
}

// Entitlements returns the entitlement records of the user's plan. The slice
// is shared with u and must not be modified.
func (u *User) Entitlements() []Entitlement {
	p := u.plan()
	if p == nil || p.Attributes.Entitlements == nil {
		return nil
	}
	return p.Attributes.Entitlements.Data
}

// EntitlementSlugs derives the set of entitlement slugs granted by the user's
// plan. The result is never nil; it is empty for a nil user or a user without
// a subscription. Empty slugs are skipped.
func (u *User) EntitlementSlugs() map[string]struct{} {
	ents := u.Entitlements()
	out := make(map[string]struct{}, len(ents))
	for _, e := range ents {
		if e.Attributes.Slug == "" {
			continue
		}
		out[e.Attributes.Slug] = struct{}{}
	}
	return out
}

// Entitlement returns the plan entitlement with the given slug.
func (u *User) Entitlement(slug string) (Entitlement, bool) {
	for _, e := range u.Entitlements() {
		if e.Attributes.Slug == slug {
			return e, true
		}
	}
	return Entitlement{}, false
}

// Quota returns the limit of a metered entitlement. ok is false when the plan
// does not carry the slug or the entitlement has no limit.
func (u *User) Quota(slug string) (limit int, ok bool) {
	e, found := u.Entitlement(slug)
	if !found || e.Attributes.Limit == nil {
		return 0, false
	}
	return *e.Attributes.Limit, true
}

// Clone returns a deep copy of u so callers can hand out snapshots without
// sharing mutable state.
func (u *User) Clone() *User {
	if u == nil {
		return nil
	}
	out := *u
	if u.Profile != nil {
		p := *u.Profile
		p.Children = append([]Child(nil), u.Profile.Children...)
		out.Profile = &p
	}
	if u.SystemRole != nil {
		r := *u.SystemRole
		out.SystemRole = &r
	}
	if u.Subscription != nil {
		rel := Relation[Subscription]{}
		if u.Subscription.Data != nil {
			sub := *u.Subscription.Data
			if ents := u.Subscription.Data.Attributes.Plan.Attributes.Entitlements; ents != nil {
				cp := *ents
				cp.Data = append([]Entitlement(nil), ents.Data...)
				sub.Attributes.Plan.Attributes.Entitlements = &cp
			}
			rel.Data = &sub
		}
		out.Subscription = &rel
	}
	return &out
}
