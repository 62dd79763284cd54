package types

const (
	DATA_TYPE_INTEGER     = "int"
	DATA_TYPE_DECIMAL     = "decimal"
	DATA_TYPE_STRING      = "string"
	DATA_TYPE_BOOLEAN     = "bool"
	DATA_TYPE_DATETIME    = "datetime"
	DATA_TYPE_JSON        = "json"
	DATA_TYPE_FILE        = "file"
	DATA_TYPE_CATEGORICAL = "categorical"
)

// Reserved property names used as the default identity of a record.
const (
	PROPERTY_SUBJECT_ID = "subjectId"
	PROPERTY_VISIT_ID   = "visitId"
)

// MissingValueCode is the agreed sentinel for explicitly missing values.
// It is accepted for every data type and excluded from valid-record counts.
const MissingValueCode = "99999"

// FieldDefinition entries are append-only like data points: editing or
// deleting a field inserts a new draft entry, the newest entry per fieldId
// wins. FieldID doubles as a regex-matchable key, so it is restricted to
// word characters.
type FieldDefinition struct {
	ID                 string              `bson:"_id" json:"id"`
	StudyID            string              `bson:"studyId" json:"studyId"`
	FieldID            string              `bson:"fieldId" json:"fieldId"`
	FieldName          string              `bson:"fieldName" json:"fieldName"`
	Description        string              `bson:"description,omitempty" json:"description,omitempty"`
	DataType           string              `bson:"dataType" json:"dataType"`
	Unit               string              `bson:"unit,omitempty" json:"unit,omitempty"`
	Comments           string              `bson:"comments,omitempty" json:"comments,omitempty"`
	CategoricalOptions []CategoricalOption `bson:"categoricalOptions,omitempty" json:"categoricalOptions,omitempty"`
	Properties         []FieldProperty     `bson:"properties,omitempty" json:"properties,omitempty"`
	DataVersion        string              `bson:"dataVersion" json:"dataVersion"`
	Life               Life                `bson:"life" json:"life"`
}

type CategoricalOption struct {
	Code        string `bson:"code" json:"code"`
	Description string `bson:"description,omitempty" json:"description,omitempty"`
}

// FieldProperty declares an attribute data points of this field carry.
// Properties marked as identity together form the logical record key.
type FieldProperty struct {
	Name       string `bson:"name" json:"name"`
	Required   bool   `bson:"required,omitempty" json:"required,omitempty"`
	IsIdentity bool   `bson:"isIdentity,omitempty" json:"isIdentity,omitempty"`
}

// IdentityProperties returns the attribute names that uniquely identify one
// logical record within this field. Without an explicit declaration the
// subject and visit ids are used; device or file fields typically declare
// their own set (e.g. participant, device and date range).
func (f FieldDefinition) IdentityProperties() []string {
	keys := []string{}
	for _, p := range f.Properties {
		if p.IsIdentity {
			keys = append(keys, p.Name)
		}
	}
	if len(keys) == 0 {
		return []string{PROPERTY_SUBJECT_ID, PROPERTY_VISIT_ID}
	}
	return keys
}

func (f FieldDefinition) HasCategoricalCode(code string) bool {
	for _, opt := range f.CategoricalOptions {
		if opt.Code == code {
			return true
		}
	}
	return false
}
