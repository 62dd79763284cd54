package study

import (
	"errors"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	studyTypes "github.com/dsi-icl/acacia-sub002/pkg/study/types"
)

var errNoDraftRows = errors.New("no draft rows to seal")

// AppendDataPoint adds one value log entry. Entries are never updated in
// place; corrections and deletions are further appends.
func (dbService *StudyDBService) AppendDataPoint(studyID string, dataPoint studyTypes.DataPoint) error {
	ctx, cancel := dbService.getContext()
	defer cancel()

	_, err := dbService.collectionDataPoints(studyID).InsertOne(ctx, dataPoint)
	return err
}

// GetDataPointsForField returns the full write history of one field over the
// given generations, oldest first. Callers resolve the current value per
// identity key by overwriting while iterating, so ties on createdAt fall to
// the later insertion.
func (dbService *StudyDBService) GetDataPointsForField(studyID string, fieldID string, dataVersions []string) (dataPoints []studyTypes.DataPoint, err error) {
	ctx, cancel := dbService.getContext()
	defer cancel()

	filter := bson.M{
		"fieldId":     fieldID,
		"dataVersion": bson.M{"$in": dataVersions},
	}
	opts := options.Find().SetSort(bson.D{{Key: "life.createdAt", Value: 1}})
	if dbService.noCursorTimeout {
		opts.SetNoCursorTimeout(true)
	}
	cursor, err := dbService.collectionDataPoints(studyID).Find(ctx, filter, opts)
	if err != nil {
		return nil, err
	}
	defer cursor.Close(ctx)

	err = cursor.All(ctx, &dataPoints)
	if err != nil {
		return nil, err
	}

	return dataPoints, nil
}

// CountDraftEntries reports how many rows across the data, field dictionary
// and standardization collections are still at the draft generation.
func (dbService *StudyDBService) CountDraftEntries(studyID string) (int64, error) {
	ctx, cancel := dbService.getContext()
	defer cancel()

	filter := bson.M{"dataVersion": studyTypes.DraftVersionID}

	total := int64(0)
	for _, collection := range []*mongo.Collection{
		dbService.collectionDataPoints(studyID),
		dbService.collectionFieldDictionary(studyID),
		dbService.collectionStandardizations(studyID),
	} {
		count, err := collection.CountDocuments(ctx, filter)
		if err != nil {
			return 0, err
		}
		total += count
	}
	return total, nil
}

// SealDraft retags every draft row of the study to the new generation id and
// appends the DataVersion to the study document, as one transaction. It
// returns the number of retagged rows; on any error nothing is left sealed.
// A zero count with no error means a concurrent commit already sealed the
// rows and the transaction was rolled back without appending the version.
// Retagging is the only in-place mutation ever applied to value log entries.
func (dbService *StudyDBService) SealDraft(studyID string, version studyTypes.DataVersion) (sealedCount int64, err error) {
	ctx, cancel := dbService.getContext()
	defer cancel()

	session, err := dbService.DBClient.StartSession()
	if err != nil {
		return 0, err
	}
	defer session.EndSession(ctx)

	result, err := session.WithTransaction(ctx, func(sessCtx mongo.SessionContext) (interface{}, error) {
		filter := bson.M{"dataVersion": studyTypes.DraftVersionID}
		update := bson.M{"$set": bson.M{"dataVersion": version.ID}}

		total := int64(0)
		for _, collection := range []*mongo.Collection{
			dbService.collectionDataPoints(studyID),
			dbService.collectionFieldDictionary(studyID),
			dbService.collectionStandardizations(studyID),
		} {
			res, err := collection.UpdateMany(sessCtx, filter, update)
			if err != nil {
				return nil, err
			}
			total += res.ModifiedCount
		}

		if total == 0 {
			return nil, errNoDraftRows
		}

		if err := dbService.PushDataVersion(sessCtx, studyID, version); err != nil {
			return nil, err
		}
		return total, nil
	})
	if err != nil {
		if errors.Is(err, errNoDraftRows) {
			return 0, nil
		}
		return 0, err
	}

	return result.(int64), nil
}

// SetDataPointsMetadata sets one metadata key on all data points matching the
// filter. Used for the per-role visibility tags recomputed after sealing.
func (dbService *StudyDBService) SetDataPointsMetadata(studyID string, filter bson.M, key string, value interface{}) (int64, error) {
	ctx, cancel := dbService.getContext()
	defer cancel()

	update := bson.M{"$set": bson.M{"metadata." + key: value}}
	res, err := dbService.collectionDataPoints(studyID).UpdateMany(ctx, filter, update)
	if err != nil {
		return 0, err
	}
	return res.ModifiedCount, nil
}
