package study

import (
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"

	studyTypes "github.com/dsi-icl/acacia-sub002/pkg/study/types"
)

// AppendFieldEntry inserts a new field dictionary entry. The dictionary is
// append-only: edits and deletions are new draft entries, never in-place
// updates.
func (dbService *StudyDBService) AppendFieldEntry(studyID string, field studyTypes.FieldDefinition) error {
	ctx, cancel := dbService.getContext()
	defer cancel()

	_, err := dbService.collectionFieldDictionary(studyID).InsertOne(ctx, field)
	return err
}

// GetLatestFieldEntries resolves the effective field dictionary for a set of
// visible generations: per fieldId the most recently created entry wins, and
// tombstoned winners are dropped afterwards, so a deleted then re-created
// field resolves to the re-creation.
func (dbService *StudyDBService) GetLatestFieldEntries(studyID string, dataVersions []string, fieldIDs []string) (fields []studyTypes.FieldDefinition, err error) {
	ctx, cancel := dbService.getContext()
	defer cancel()

	match := bson.M{
		"dataVersion": bson.M{"$in": dataVersions},
	}
	if len(fieldIDs) > 0 {
		match["fieldId"] = bson.M{"$in": fieldIDs}
	}

	pipeline := mongo.Pipeline{
		bson.D{{Key: "$match", Value: match}},
		bson.D{{Key: "$sort", Value: bson.D{
			{Key: "fieldId", Value: 1},
			{Key: "life.createdAt", Value: -1},
		}}},
		bson.D{{Key: "$group", Value: bson.M{
			"_id": "$fieldId",
			"doc": bson.M{"$first": "$$ROOT"},
		}}},
		bson.D{{Key: "$replaceRoot", Value: bson.M{"newRoot": "$doc"}}},
		bson.D{{Key: "$match", Value: bson.M{
			"life.deletedAt": bson.M{"$in": bson.A{nil, 0}},
		}}},
		bson.D{{Key: "$sort", Value: bson.D{{Key: "fieldId", Value: 1}}}},
	}

	cursor, err := dbService.collectionFieldDictionary(studyID).Aggregate(ctx, pipeline)
	if err != nil {
		return nil, err
	}
	defer cursor.Close(ctx)

	err = cursor.All(ctx, &fields)
	if err != nil {
		return nil, err
	}

	return fields, nil
}
