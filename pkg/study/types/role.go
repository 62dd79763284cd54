package types

// Atomic data operations, stored as a bitmask on DataPermission. A
// permission value may combine several bits; an operation is granted if its
// bit is set.
const (
	OPERATION_DELETE = 1
	OPERATION_WRITE  = 2
	OPERATION_READ   = 4
)

const (
	STUDY_ROLE_MANAGER = "studyManager"
	STUDY_ROLE_USER    = "studyUser"
)

type Role struct {
	ID              string           `bson:"_id" json:"id"`
	StudyID         string           `bson:"studyId" json:"studyId"`
	Name            string           `bson:"name" json:"name"`
	Description     string           `bson:"description,omitempty" json:"description,omitempty"`
	StudyRole       string           `bson:"studyRole" json:"studyRole"`
	DataPermissions []DataPermission `bson:"dataPermissions" json:"dataPermissions"`
	Users           []string         `bson:"users" json:"users"`
	Life            Life             `bson:"life" json:"life"`
}

// DataPermission restricts data access with regular expression patterns per
// attribute. A record is covered when at least one field pattern matches its
// fieldId, at least one subject pattern matches its subjectId, at least one
// visit pattern matches its visitId, and for every listed property at least
// one of its patterns matches the record's value for that property.
type DataPermission struct {
	Fields             []string            `bson:"fields" json:"fields"`
	Subjects           []string            `bson:"subjects,omitempty" json:"subjects,omitempty"`
	Visits             []string            `bson:"visits,omitempty" json:"visits,omitempty"`
	Properties         map[string][]string `bson:"properties,omitempty" json:"properties,omitempty"`
	IncludeUnversioned bool                `bson:"includeUnversioned" json:"includeUnversioned"`
	Operations         int                 `bson:"operations" json:"operations"`
}

// Requester is the authenticated caller as resolved by the identity
// provider. Admins bypass data permission evaluation entirely.
type Requester struct {
	ID      string `json:"id"`
	IsAdmin bool   `json:"isAdmin"`
}

func (r Role) HasUser(userID string) bool {
	for _, u := range r.Users {
		if u == userID {
			return true
		}
	}
	return false
}
