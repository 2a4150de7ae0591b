package auth

// Collection identifies an admin resource collection.
type Collection string

const (
	CollectionActivities     Collection = "activities"
	CollectionMenuItems      Collection = "menuItems"
	CollectionFAQs           Collection = "faqs"
	CollectionCommunityPosts Collection = "communityPosts"
	CollectionTaxonomies     Collection = "taxonomies"
	CollectionUsers          Collection = "users"
	CollectionSiteConfig     Collection = "siteConfig"
)

// Collections lists every collection in drawer order.
func Collections() []Collection {
	return []Collection{
		CollectionActivities,
		CollectionMenuItems,
		CollectionFAQs,
		CollectionCommunityPosts,
		CollectionTaxonomies,
		CollectionUsers,
		CollectionSiteConfig,
	}
}

// Permissions are the CRUD capabilities on one collection.
type Permissions struct {
	Read   bool `json:"read"`
	Edit   bool `json:"edit"`
	Create bool `json:"create"`
	Delete bool `json:"delete"`
}

// Action names one of the CRUD capabilities.
type Action string

const (
	ActionRead   Action = "read"
	ActionEdit   Action = "edit"
	ActionCreate Action = "create"
	ActionDelete Action = "delete"
)

// Allows reports whether the permission set includes the action.
func (p Permissions) Allows(a Action) bool {
	switch a {
	case ActionRead:
		return p.Read
	case ActionEdit:
		return p.Edit
	case ActionCreate:
		return p.Create
	case ActionDelete:
		return p.Delete
	}
	return false
}

var (
	none     = Permissions{}
	full     = Permissions{Read: true, Edit: true, Create: true, Delete: true}
	readOnly = Permissions{Read: true}
)

// PermissionsFor evaluates what the session may do on a collection.
// A missing session or role grants nothing.
func PermissionsFor(sess *Session, c Collection) Permissions {
	role, ok := sess.Role()
	if !ok || role.Rank() == 0 {
		return none
	}
	rank := role.Rank()
	switch c {
	case CollectionUsers, CollectionSiteConfig:
		if rank >= RoleAdmin.Rank() {
			return full
		}
	case CollectionActivities, CollectionMenuItems, CollectionFAQs, CollectionTaxonomies:
		if rank >= RoleContentManager.Rank() {
			return full
		}
		return readOnly
	case CollectionCommunityPosts:
		switch {
		case rank >= RoleContentManager.Rank():
			return full
		case rank >= RoleTeacher.Rank():
			return Permissions{Read: true, Create: true}
		}
		return readOnly
	}
	return none
}

// PermissionTable evaluates every collection for the session.
func PermissionTable(sess *Session) map[Collection]Permissions {
	out := make(map[Collection]Permissions, len(Collections()))
	for _, c := range Collections() {
		out[c] = PermissionsFor(sess, c)
	}
	return out
}
