package types

// NoCurrentVersion is the currentVersionIndex of a study that has no
// released data version yet.
const NoCurrentVersion = -1

// DraftVersionID is the generation id of data that has not been sealed
// into a data version yet. Draft rows are mutable in the sense that newer
// appends supersede them; sealed rows never change generation again.
const DraftVersionID = ""

type Study struct {
	ID                  string        `bson:"_id" json:"id"`
	Name                string        `bson:"name" json:"name"`
	Description         string        `bson:"description,omitempty" json:"description,omitempty"`
	DataVersions        []DataVersion `bson:"dataVersions" json:"dataVersions"`
	CurrentVersionIndex int           `bson:"currentVersionIndex" json:"currentVersionIndex"`
	Life                Life          `bson:"life" json:"life"`
}

// DataVersion is an immutable snapshot marker created by sealing the draft
// generation. Versions are appended in order and never removed.
type DataVersion struct {
	ID        string `bson:"id" json:"id"`
	Version   string `bson:"version" json:"version"`
	Tag       string `bson:"tag,omitempty" json:"tag,omitempty"`
	CreatedAt int64  `bson:"createdAt" json:"createdAt"`
	CreatedBy string `bson:"createdBy" json:"createdBy"`
}

// ReleasedVersionIDs returns the ids of all data versions up to and
// including the current one, oldest first.
func (s Study) ReleasedVersionIDs() []string {
	if s.CurrentVersionIndex == NoCurrentVersion {
		return []string{}
	}
	ids := make([]string, 0, s.CurrentVersionIndex+1)
	for i, dv := range s.DataVersions {
		if i > s.CurrentVersionIndex {
			break
		}
		ids = append(ids, dv.ID)
	}
	return ids
}

// HasVersionWithLabel reports whether a version label is already in use.
func (s Study) HasVersionWithLabel(label string) bool {
	for _, dv := range s.DataVersions {
		if dv.Version == label {
			return true
		}
	}
	return false
}
