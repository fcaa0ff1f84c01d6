package merge

// Policy decides how one attribute of a user record is treated when two
// accounts are consolidated.
type Policy string

const (
	// PolicyIgnore keeps the primary's value untouched, nothing is merged.
	PolicyIgnore Policy = "ignore"
	// PolicyUnion merges set-valued relations by set union.
	PolicyUnion Policy = "union"
	// PolicyReassignUnique repoints owned rows from secondary to primary.
	PolicyReassignUnique Policy = "reassign_unique"
	// PolicyReassignChecked repoints rows, but blocks the whole merge when
	// the primary already owns a row for the same evaluation.
	PolicyReassignChecked Policy = "reassign_checked"
	// PolicyScalarPreferPrimary always keeps the primary's value.
	PolicyScalarPreferPrimary Policy = "scalar_prefer_primary"
	// PolicyScalarPreferNonempty keeps the primary's value unless it is
	// empty/nil, in which case the secondary's value is taken.
	PolicyScalarPreferNonempty Policy = "scalar_prefer_nonempty"
	// PolicyScalarPreferSecondaryOnSuperuser is a boolean OR: the flag
	// survives if either account carried it.
	PolicyScalarPreferSecondaryOnSuperuser Policy = "scalar_prefer_secondary_on_superuser"
	// PolicyCustom marks attributes with bespoke merge code in the engine.
	PolicyCustom Policy = "custom"
)

// Tags reported to callers. Errors abort the merge, warnings do not.
const (
	ErrTagContributions  = "contributions"
	ErrTagParticipations = "evaluations_participating_in"
	WarnTagRewards       = "rewards"
)

// Attribute describes how one model.UserProfile field takes part in a merge.
type Attribute struct {
	// Name is the external attribute name used in merge results.
	Name   string
	Policy Policy
	// ErrorTag is recorded when a reassign_checked attribute has a conflict.
	ErrorTag string
	// Warning is recorded whenever the attribute is merged at all.
	Warning string
}

// Attributes is the classification table for every field of
// model.UserProfile, keyed by Go struct field name. It is the single
// source of truth the merge engine consults. Adding a field to the model
// without registering it here fails TestAttributeTableCoversUserProfile.
var Attributes = map[string]Attribute{
	// Kept from the primary record as-is.
	"ID":                 {Name: "id", Policy: PolicyIgnore},
	"PasswordHash":       {Name: "password", Policy: PolicyIgnore},
	"LastLogin":          {Name: "last_login", Policy: PolicyIgnore},
	"Language":           {Name: "language", Policy: PolicyIgnore},
	"LoginKey":           {Name: "login_key", Policy: PolicyIgnore},
	"LoginKeyValidUntil": {Name: "login_key_valid_until", Policy: PolicyIgnore},
	"CreatedAt":          {Name: "created_at", Policy: PolicyIgnore},
	"UpdatedAt":          {Name: "updated_at", Policy: PolicyIgnore},

	// Identity scalars.
	"Title":     {Name: "title", Policy: PolicyScalarPreferNonempty},
	"FirstName": {Name: "first_name", Policy: PolicyScalarPreferPrimary},
	"LastName":  {Name: "last_name", Policy: PolicyScalarPreferNonempty},
	// Whichever email is non-nil wins; when both are set the primary's is
	// kept without raising anything. TODO: product owners should decide
	// whether two distinct non-nil emails deserve a warning.
	"Email":       {Name: "email", Policy: PolicyScalarPreferNonempty},
	"IsSuperuser": {Name: "is_superuser", Policy: PolicyScalarPreferSecondaryOnSuperuser},

	// Set-valued relations.
	"Groups":           {Name: "groups", Policy: PolicyUnion},
	"Delegates":        {Name: "delegates", Policy: PolicyUnion},
	"RepresentedUsers": {Name: "represented_users", Policy: PolicyUnion},
	"CCUsers":          {Name: "cc_users", Policy: PolicyUnion},
	"CCingUsers":       {Name: "ccing_users", Policy: PolicyUnion},

	// Owned rows repointed to the primary.
	"CoursesResponsibleFor":  {Name: "courses_responsible_for", Policy: PolicyReassignUnique},
	"RewardPointGrantings":   {Name: "reward_point_grantings", Policy: PolicyReassignUnique, Warning: WarnTagRewards},
	"RewardPointRedemptions": {Name: "reward_point_redemptions", Policy: PolicyReassignUnique, Warning: WarnTagRewards},

	// Repointed only when the primary has no row for the same evaluation.
	"Contributions":              {Name: "contributions", Policy: PolicyReassignChecked, ErrorTag: ErrTagContributions},
	"EvaluationsParticipatingIn": {Name: "evaluations_participating_in", Policy: PolicyReassignChecked, ErrorTag: ErrTagParticipations},

	// Voting is monotonic per evaluation, merged as a per-evaluation union.
	"EvaluationsVotedFor": {Name: "evaluations_voted_for", Policy: PolicyCustom},
}

// attributeOrder fixes the iteration order of the table so merge results
// and tag lists are deterministic.
var attributeOrder = []string{
	"ID", "Title", "FirstName", "LastName", "Email", "PasswordHash",
	"IsSuperuser", "Language", "LoginKey", "LoginKeyValidUntil",
	"LastLogin", "CreatedAt", "UpdatedAt",
	"Groups", "Delegates", "RepresentedUsers", "CCUsers", "CCingUsers",
	"CoursesResponsibleFor", "Contributions", "EvaluationsParticipatingIn",
	"EvaluationsVotedFor", "RewardPointGrantings", "RewardPointRedemptions",
}
