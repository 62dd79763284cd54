package types

// Life tracks creation and soft deletion of an entry. Entries are never
// physically removed, so historical data points stay resolvable.
type Life struct {
	CreatedAt int64  `bson:"createdAt" json:"createdAt"`
	CreatedBy string `bson:"createdBy" json:"createdBy"`
	DeletedAt int64  `bson:"deletedAt,omitempty" json:"deletedAt,omitempty"`
	DeletedBy string `bson:"deletedBy,omitempty" json:"deletedBy,omitempty"`
}

func (l Life) IsDeleted() bool {
	return l.DeletedAt != 0
}
