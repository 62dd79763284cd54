package study

import (
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"

	studyTypes "github.com/dsi-icl/acacia-sub002/pkg/study/types"
)

// AppendStandardization inserts a new standardization entry. Like the field
// dictionary, standardizations are append-only; a deletion is a new draft
// entry carrying a tombstoned life.
func (dbService *StudyDBService) AppendStandardization(studyID string, standardization studyTypes.Standardization) error {
	ctx, cancel := dbService.getContext()
	defer cancel()

	_, err := dbService.collectionStandardizations(studyID).InsertOne(ctx, standardization)
	return err
}

// GetLatestStandardizations resolves the effective standardizations for a set
// of visible generations: per (type, fieldId) pair the most recently created
// entry wins, tombstoned winners are dropped.
func (dbService *StudyDBService) GetLatestStandardizations(studyID string, dataVersions []string, stdType string) (standardizations []studyTypes.Standardization, err error) {
	ctx, cancel := dbService.getContext()
	defer cancel()

	match := bson.M{
		"dataVersion": bson.M{"$in": dataVersions},
	}
	if stdType != "" {
		match["type"] = stdType
	}

	pipeline := mongo.Pipeline{
		bson.D{{Key: "$match", Value: match}},
		bson.D{{Key: "$sort", Value: bson.D{
			{Key: "type", Value: 1},
			{Key: "fieldId", Value: 1},
			{Key: "life.createdAt", Value: -1},
		}}},
		bson.D{{Key: "$group", Value: bson.M{
			"_id": bson.M{"type": "$type", "fieldId": "$fieldId"},
			"doc": bson.M{"$first": "$$ROOT"},
		}}},
		bson.D{{Key: "$replaceRoot", Value: bson.M{"newRoot": "$doc"}}},
		bson.D{{Key: "$match", Value: bson.M{
			"life.deletedAt": bson.M{"$in": bson.A{nil, 0}},
		}}},
		bson.D{{Key: "$sort", Value: bson.D{
			{Key: "type", Value: 1},
			{Key: "fieldId", Value: 1},
		}}},
	}

	cursor, err := dbService.collectionStandardizations(studyID).Aggregate(ctx, pipeline)
	if err != nil {
		return nil, err
	}
	defer cursor.Close(ctx)

	err = cursor.All(ctx, &standardizations)
	if err != nil {
		return nil, err
	}

	return standardizations, nil
}
