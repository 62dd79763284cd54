package study

import (
	"context"
	"log/slog"
	"time"

	"github.com/dsi-icl/acacia-sub002/pkg/db"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// collection names
const (
	COLLECTION_NAME_STUDIES                 = "studies"
	COLLECTION_NAME_ROLES                   = "roles"
	COLLECTION_NAME_SUFFIX_FIELD_DICTIONARY = "fieldDictionary"
	COLLECTION_NAME_SUFFIX_DATA_POINTS      = "dataPoints"
	COLLECTION_NAME_SUFFIX_STANDARDIZATIONS = "standardizations"
)

type StudyDBService struct {
	DBClient        *mongo.Client
	timeout         int
	noCursorTimeout bool
	DBNamePrefix    string
}

func NewStudyDBService(configs db.DBConfig) (*StudyDBService, error) {
	ctx, cancel := context.WithTimeout(context.Background(), time.Duration(configs.Timeout)*time.Second)
	defer cancel()

	dbClient, err := mongo.Connect(ctx,
		options.Client().ApplyURI(configs.URI),
		options.Client().SetMaxConnIdleTime(time.Duration(configs.IdleConnTimeout)*time.Second),
		options.Client().SetMaxPoolSize(configs.MaxPoolSize),
	)

	if err != nil {
		return nil, err
	}

	ctx, conCancel := context.WithTimeout(context.Background(), time.Duration(configs.Timeout)*time.Second)
	err = dbClient.Ping(ctx, nil)
	defer conCancel()

	if err != nil {
		return nil, err
	}

	studyDBSc := &StudyDBService{
		DBClient:        dbClient,
		timeout:         configs.Timeout,
		noCursorTimeout: configs.NoCursorTimeout,
		DBNamePrefix:    configs.DBNamePrefix,
	}

	if configs.RunIndexCreation {
		if err := studyDBSc.ensureIndexes(); err != nil {
			slog.Error("Error ensuring indexes for study DB", slog.String("error", err.Error()))
		}
	}

	return studyDBSc, nil
}

func (dbService *StudyDBService) getDBName() string {
	return dbService.DBNamePrefix + "studyDB"
}

func (dbService *StudyDBService) collectionStudies() *mongo.Collection {
	return dbService.DBClient.Database(dbService.getDBName()).Collection(COLLECTION_NAME_STUDIES)
}

func (dbService *StudyDBService) collectionRoles() *mongo.Collection {
	return dbService.DBClient.Database(dbService.getDBName()).Collection(COLLECTION_NAME_ROLES)
}

func (dbService *StudyDBService) collectionFieldDictionary(studyID string) *mongo.Collection {
	return dbService.DBClient.Database(dbService.getDBName()).Collection(studyID + "_" + COLLECTION_NAME_SUFFIX_FIELD_DICTIONARY)
}

func (dbService *StudyDBService) collectionDataPoints(studyID string) *mongo.Collection {
	return dbService.DBClient.Database(dbService.getDBName()).Collection(studyID + "_" + COLLECTION_NAME_SUFFIX_DATA_POINTS)
}

func (dbService *StudyDBService) collectionStandardizations(studyID string) *mongo.Collection {
	return dbService.DBClient.Database(dbService.getDBName()).Collection(studyID + "_" + COLLECTION_NAME_SUFFIX_STANDARDIZATIONS)
}

func (dbService *StudyDBService) getContext() (ctx context.Context, cancel context.CancelFunc) {
	return context.WithTimeout(context.Background(), time.Duration(dbService.timeout)*time.Second)
}

func (dbService *StudyDBService) ensureIndexes() error {
	slog.Debug("Ensuring indexes for study DB")

	err := dbService.createIndexForRolesCollection()
	if err != nil {
		slog.Error("Error creating index for roles", slog.String("error", err.Error()))
	}

	studies, err := dbService.GetStudies()
	if err != nil {
		slog.Error("Error fetching studies for index creation", slog.String("error", err.Error()))
		return err
	}

	for _, study := range studies {
		err = dbService.CreateIndexesForStudyCollections(study.ID)
		if err != nil {
			slog.Error("Error creating indexes for study collections", slog.String("studyID", study.ID), slog.String("error", err.Error()))
		}
	}
	return nil
}
