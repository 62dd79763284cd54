package types

// Standardization rule step sources.
const (
	STD_SOURCE_DATA     = "data"
	STD_SOURCE_FIELDDEF = "fieldDef"
	STD_SOURCE_VALUE    = "value"
	STD_SOURCE_INC      = "inc"
	STD_SOURCE_RESERVED = "reserved"
)

// Reserved tokens usable in rule parameters and output paths. They are
// substituted with the actual subject, visit or study id during evaluation.
const (
	STD_TOKEN_SUBJECT_ID = "$subjectId"
	STD_TOKEN_VISIT_ID   = "$visitId"
	STD_TOKEN_STUDY_ID   = "$studyId"
)

// Filter actions applied after a step computed its value.
const (
	STD_FILTER_CONVERT = "convert"
	STD_FILTER_DELETE  = "delete"
)

// Standardization describes how values of one field are reshaped into an
// external output schema. Like data points, standardizations are generation
// tagged: the draft entry is sealed together with the data it describes.
type Standardization struct {
	ID          string                 `bson:"_id" json:"id"`
	StudyID     string                 `bson:"studyId" json:"studyId"`
	Type        string                 `bson:"type" json:"type"`
	FieldID     string                 `bson:"fieldId" json:"fieldId"`
	Path        []string               `bson:"path" json:"path"`
	Rules       []StandardizationRule  `bson:"rules" json:"rules"`
	JoinByKeys  []string               `bson:"joinByKeys,omitempty" json:"joinByKeys,omitempty"`
	DataVersion string                 `bson:"dataVersion" json:"dataVersion"`
	Life        Life                   `bson:"life" json:"life"`
	Metadata    map[string]interface{} `bson:"metadata,omitempty" json:"metadata,omitempty"`
}

// StandardizationRule is one step of the interpreter. Source selects where
// the value comes from, Entry is the output key it is written to, Parameter
// configures the source and Filters may rewrite or drop the record based on
// the computed value.
type StandardizationRule struct {
	ID        string               `bson:"id" json:"id"`
	Source    string               `bson:"source" json:"source"`
	Entry     string               `bson:"entry" json:"entry"`
	Parameter []string             `bson:"parameter,omitempty" json:"parameter,omitempty"`
	Filters   map[string]StdFilter `bson:"filters,omitempty" json:"filters,omitempty"`
}

// StdFilter rewrites (convert) or suppresses (delete) a record whose step
// value matched the filter key. For convert, the replacement comes either
// from a literal or from another field of the same subject and visit.
type StdFilter struct {
	Action    string `bson:"action" json:"action"`
	Source    string `bson:"source,omitempty" json:"source,omitempty"`
	Parameter string `bson:"parameter,omitempty" json:"parameter,omitempty"`
}
