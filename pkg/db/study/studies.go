package study

import (
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	studyTypes "github.com/dsi-icl/acacia-sub002/pkg/study/types"
)

func (dbService *StudyDBService) CreateIndexesForStudyCollections(studyID string) error {
	ctx, cancel := dbService.getContext()
	defer cancel()

	_, err := dbService.collectionFieldDictionary(studyID).Indexes().CreateMany(ctx, []mongo.IndexModel{
		{
			Keys: bson.D{
				{Key: "fieldId", Value: 1},
				{Key: "life.createdAt", Value: -1},
			},
		},
		{
			Keys: bson.D{
				{Key: "dataVersion", Value: 1},
			},
		},
	})
	if err != nil {
		return err
	}

	_, err = dbService.collectionDataPoints(studyID).Indexes().CreateMany(ctx, []mongo.IndexModel{
		{
			Keys: bson.D{
				{Key: "fieldId", Value: 1},
				{Key: "dataVersion", Value: 1},
				{Key: "life.createdAt", Value: -1},
			},
		},
		{
			Keys: bson.D{
				{Key: "properties.subjectId", Value: 1},
			},
		},
		{
			Keys: bson.D{
				{Key: "dataVersion", Value: 1},
			},
		},
	})
	if err != nil {
		return err
	}

	_, err = dbService.collectionStandardizations(studyID).Indexes().CreateMany(ctx, []mongo.IndexModel{
		{
			Keys: bson.D{
				{Key: "type", Value: 1},
				{Key: "fieldId", Value: 1},
				{Key: "life.createdAt", Value: -1},
			},
		},
		{
			Keys: bson.D{
				{Key: "dataVersion", Value: 1},
			},
		},
	})
	return err
}

func (dbService *StudyDBService) CreateStudy(study studyTypes.Study) error {
	ctx, cancel := dbService.getContext()
	defer cancel()

	_, err := dbService.collectionStudies().InsertOne(ctx, study)
	if err != nil {
		return err
	}

	return dbService.CreateIndexesForStudyCollections(study.ID)
}

func (dbService *StudyDBService) GetStudy(studyID string) (study studyTypes.Study, err error) {
	ctx, cancel := dbService.getContext()
	defer cancel()

	filter := bson.M{
		"_id":            studyID,
		"life.deletedAt": bson.M{"$in": bson.A{nil, 0}},
	}
	err = dbService.collectionStudies().FindOne(ctx, filter).Decode(&study)
	return study, err
}

func (dbService *StudyDBService) GetStudies() (studies []studyTypes.Study, err error) {
	ctx, cancel := dbService.getContext()
	defer cancel()

	filter := bson.M{
		"life.deletedAt": bson.M{"$in": bson.A{nil, 0}},
	}
	opts := options.Find().SetSort(bson.M{"life.createdAt": 1})
	cursor, err := dbService.collectionStudies().Find(ctx, filter, opts)
	if err != nil {
		return nil, err
	}
	defer cursor.Close(ctx)

	err = cursor.All(ctx, &studies)
	if err != nil {
		return nil, err
	}

	return studies, nil
}

// DeleteStudy tombstones the study document. Per-study collections are kept
// so historical data points stay resolvable.
func (dbService *StudyDBService) DeleteStudy(studyID string, deletedBy string) error {
	ctx, cancel := dbService.getContext()
	defer cancel()

	filter := bson.M{"_id": studyID}
	update := bson.M{"$set": bson.M{
		"life.deletedAt": time.Now().Unix(),
		"life.deletedBy": deletedBy,
	}}
	res, err := dbService.collectionStudies().UpdateOne(ctx, filter, update)
	if err != nil {
		return err
	}
	if res.MatchedCount == 0 {
		return mongo.ErrNoDocuments
	}
	return nil
}

// PushDataVersion appends the new version and advances the current version
// pointer in one update. Must run inside the seal transaction's session
// context, hence the explicit ctx.
func (dbService *StudyDBService) PushDataVersion(ctx mongo.SessionContext, studyID string, version studyTypes.DataVersion) error {
	filter := bson.M{"_id": studyID}
	update := bson.M{
		"$push": bson.M{"dataVersions": version},
		"$inc":  bson.M{"currentVersionIndex": 1},
	}
	res, err := dbService.collectionStudies().UpdateOne(ctx, filter, update)
	if err != nil {
		return err
	}
	if res.MatchedCount == 0 {
		return mongo.ErrNoDocuments
	}
	return nil
}
