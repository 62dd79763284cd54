package study

import (
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	studyTypes "github.com/dsi-icl/acacia-sub002/pkg/study/types"
)

func (dbService *StudyDBService) createIndexForRolesCollection() error {
	ctx, cancel := dbService.getContext()
	defer cancel()

	_, err := dbService.collectionRoles().Indexes().CreateMany(ctx, []mongo.IndexModel{
		{
			Keys: bson.D{
				{Key: "studyId", Value: 1},
				{Key: "users", Value: 1},
			},
		},
		{
			Keys: bson.D{
				{Key: "studyId", Value: 1},
			},
		},
	})
	return err
}

func (dbService *StudyDBService) CreateRole(role studyTypes.Role) error {
	ctx, cancel := dbService.getContext()
	defer cancel()

	_, err := dbService.collectionRoles().InsertOne(ctx, role)
	return err
}

func (dbService *StudyDBService) GetRoleByID(roleID string) (role studyTypes.Role, err error) {
	ctx, cancel := dbService.getContext()
	defer cancel()

	filter := bson.M{
		"_id":            roleID,
		"life.deletedAt": bson.M{"$in": bson.A{nil, 0}},
	}
	err = dbService.collectionRoles().FindOne(ctx, filter).Decode(&role)
	return role, err
}

func (dbService *StudyDBService) GetRolesForStudy(studyID string) (roles []studyTypes.Role, err error) {
	ctx, cancel := dbService.getContext()
	defer cancel()

	filter := bson.M{
		"studyId":        studyID,
		"life.deletedAt": bson.M{"$in": bson.A{nil, 0}},
	}
	opts := options.Find().SetSort(bson.M{"life.createdAt": 1})
	cursor, err := dbService.collectionRoles().Find(ctx, filter, opts)
	if err != nil {
		return nil, err
	}
	defer cursor.Close(ctx)

	err = cursor.All(ctx, &roles)
	if err != nil {
		return nil, err
	}

	return roles, nil
}

// GetRolesForUser returns the live roles of a study the user is a member of.
func (dbService *StudyDBService) GetRolesForUser(studyID string, userID string) (roles []studyTypes.Role, err error) {
	ctx, cancel := dbService.getContext()
	defer cancel()

	filter := bson.M{
		"studyId":        studyID,
		"users":          userID,
		"life.deletedAt": bson.M{"$in": bson.A{nil, 0}},
	}
	cursor, err := dbService.collectionRoles().Find(ctx, filter)
	if err != nil {
		return nil, err
	}
	defer cursor.Close(ctx)

	err = cursor.All(ctx, &roles)
	if err != nil {
		return nil, err
	}

	return roles, nil
}

func (dbService *StudyDBService) UpdateRole(role studyTypes.Role) error {
	ctx, cancel := dbService.getContext()
	defer cancel()

	filter := bson.M{
		"_id":            role.ID,
		"life.deletedAt": bson.M{"$in": bson.A{nil, 0}},
	}
	update := bson.M{"$set": bson.M{
		"name":            role.Name,
		"description":     role.Description,
		"studyRole":       role.StudyRole,
		"dataPermissions": role.DataPermissions,
		"users":           role.Users,
	}}
	res, err := dbService.collectionRoles().UpdateOne(ctx, filter, update)
	if err != nil {
		return err
	}
	if res.MatchedCount == 0 {
		return mongo.ErrNoDocuments
	}
	return nil
}

func (dbService *StudyDBService) DeleteRole(roleID string, deletedBy string) error {
	ctx, cancel := dbService.getContext()
	defer cancel()

	filter := bson.M{"_id": roleID}
	update := bson.M{"$set": bson.M{
		"life.deletedAt": time.Now().Unix(),
		"life.deletedBy": deletedBy,
	}}
	res, err := dbService.collectionRoles().UpdateOne(ctx, filter, update)
	if err != nil {
		return err
	}
	if res.MatchedCount == 0 {
		return mongo.ErrNoDocuments
	}
	return nil
}
