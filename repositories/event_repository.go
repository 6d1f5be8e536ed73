package repositories

import (
	"context"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"geopush/models"
	"geopush/utils"
)

// EventRepository persists pending crossing events until they are reported.
// Documents are keyed by the sdk-generated message id.
type EventRepository struct {
	collection *mongo.Collection
}

func NewEventRepository(db *mongo.Database) *EventRepository {
	return &EventRepository{
		collection: db.Collection("geo_pending_events"),
	}
}

func (er *EventRepository) Create(ctx context.Context, event *models.PendingEvent) error {
	if event.CreatedAt.IsZero() {
		event.CreatedAt = time.Now()
	}

	if _, err := er.collection.InsertOne(ctx, event); err != nil {
		return utils.NewStorageError("create pending event", err)
	}
	return nil
}

func (er *EventRepository) FindAll(ctx context.Context) ([]*models.PendingEvent, error) {
	opts := options.Find().SetSort(bson.D{{Key: "createdAt", Value: 1}})

	cursor, err := er.collection.Find(ctx, bson.M{}, opts)
	if err != nil {
		return nil, utils.NewStorageError("find pending events", err)
	}
	defer cursor.Close(ctx)

	var events []*models.PendingEvent
	if err := cursor.All(ctx, &events); err != nil {
		return nil, utils.NewStorageError("decode pending events", err)
	}
	return events, nil
}

func (er *EventRepository) MarkShown(ctx context.Context, sdkMessageID string) error {
	_, err := er.collection.UpdateOne(
		ctx,
		bson.M{"sdkMessageId": sdkMessageID},
		bson.M{"$set": bson.M{"messageShown": true}},
	)
	if err != nil {
		return utils.NewStorageError("mark pending event shown", err)
	}
	return nil
}

func (er *EventRepository) Delete(ctx context.Context, sdkMessageID string) error {
	if _, err := er.collection.DeleteOne(ctx, bson.M{"sdkMessageId": sdkMessageID}); err != nil {
		return utils.NewStorageError("delete pending event", err)
	}
	return nil
}

func (er *EventRepository) DeleteOlderThan(ctx context.Context, cutoff time.Time) error {
	if _, err := er.collection.DeleteMany(ctx, bson.M{"createdAt": bson.M{"$lt": cutoff}}); err != nil {
		return utils.NewStorageError("delete stale pending events", err)
	}
	return nil
}

func (er *EventRepository) DeleteAll(ctx context.Context) error {
	if _, err := er.collection.DeleteMany(ctx, bson.M{}); err != nil {
		return utils.NewStorageError("delete pending events", err)
	}
	return nil
}
