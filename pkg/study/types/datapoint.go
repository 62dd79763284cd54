package types

// DataPoint is one append-only value log entry. Corrections are new entries
// for the same identity key; deletions are entries with a nil value. The
// only in-place mutation ever applied is retagging DataVersion when the
// draft generation is sealed.
type DataPoint struct {
	ID          string                 `bson:"_id" json:"id"`
	StudyID     string                 `bson:"studyId" json:"studyId"`
	FieldID     string                 `bson:"fieldId" json:"fieldId"`
	Value       interface{}            `bson:"value" json:"value"`
	Properties  map[string]string      `bson:"properties,omitempty" json:"properties,omitempty"`
	Metadata    map[string]interface{} `bson:"metadata,omitempty" json:"metadata,omitempty"`
	DataVersion string                 `bson:"dataVersion" json:"dataVersion"`
	Life        Life                   `bson:"life" json:"life"`
}

// IsTombstone reports whether this entry marks the logical record as deleted.
func (d DataPoint) IsTombstone() bool {
	return d.Value == nil
}

// IdentityKey joins the values of the given identity properties into a
// grouping key. Missing properties contribute an empty segment so that
// records with partially filled identities still group deterministically.
func (d DataPoint) IdentityKey(identityProps []string) string {
	key := ""
	for i, prop := range identityProps {
		if i > 0 {
			key += "\x1f"
		}
		key += d.Properties[prop]
	}
	return key
}

// FileReference is the value stored for FILE typed fields. The object store
// holds the payload; the core only records the content address.
type FileReference struct {
	ID       string `bson:"id" json:"id"`
	FileName string `bson:"fileName" json:"fileName"`
	Hash     string `bson:"hash" json:"hash"`
	Size     int64  `bson:"size" json:"size"`
	URI      string `bson:"uri" json:"uri"`
}
