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

// CampaignRepository persists geofencing campaign records, one document per
// campaign id.
type CampaignRepository struct {
	collection *mongo.Collection
}

func NewCampaignRepository(db *mongo.Database) *CampaignRepository {
	return &CampaignRepository{
		collection: db.Collection("geo_campaigns"),
	}
}

func (cr *CampaignRepository) FindAll(ctx context.Context) ([]*models.Campaign, error) {
	return cr.find(ctx, bson.M{})
}

func (cr *CampaignRepository) FindByCampaignIDs(ctx context.Context, campaignIDs []string) ([]*models.Campaign, error) {
	if len(campaignIDs) == 0 {
		return nil, nil
	}
	return cr.find(ctx, bson.M{"campaignId": bson.M{"$in": campaignIDs}})
}

func (cr *CampaignRepository) find(ctx context.Context, filter bson.M) ([]*models.Campaign, error) {
	opts := options.Find().SetSort(bson.D{{Key: "campaignId", Value: 1}})

	cursor, err := cr.collection.Find(ctx, filter, opts)
	if err != nil {
		return nil, utils.NewStorageError("find campaigns", err)
	}
	defer cursor.Close(ctx)

	var campaigns []*models.Campaign
	if err := cursor.All(ctx, &campaigns); err != nil {
		return nil, utils.NewStorageError("decode campaigns", err)
	}
	return campaigns, nil
}

func (cr *CampaignRepository) Upsert(ctx context.Context, campaign *models.Campaign) error {
	campaign.UpdatedAt = time.Now()
	if campaign.CreatedAt.IsZero() {
		campaign.CreatedAt = campaign.UpdatedAt
	}

	opts := options.Replace().SetUpsert(true)
	_, err := cr.collection.ReplaceOne(ctx, bson.M{"campaignId": campaign.CampaignID}, campaign, opts)
	if err != nil {
		return utils.NewStorageError("upsert campaign", err)
	}
	return nil
}

func (cr *CampaignRepository) UpdateState(ctx context.Context, campaignID string, state models.CampaignState) error {
	_, err := cr.collection.UpdateOne(
		ctx,
		bson.M{"campaignId": campaignID},
		bson.M{"$set": bson.M{"campaignState": state, "updatedAt": time.Now()}},
	)
	if err != nil {
		return utils.NewStorageError("update campaign state", err)
	}
	return nil
}

func (cr *CampaignRepository) UpdateEvents(ctx context.Context, campaignID string, events []*models.RegionEvent) error {
	_, err := cr.collection.UpdateOne(
		ctx,
		bson.M{"campaignId": campaignID},
		bson.M{"$set": bson.M{"events": events, "updatedAt": time.Now()}},
	)
	if err != nil {
		return utils.NewStorageError("update campaign events", err)
	}
	return nil
}

func (cr *CampaignRepository) Delete(ctx context.Context, campaignID string) error {
	if _, err := cr.collection.DeleteOne(ctx, bson.M{"campaignId": campaignID}); err != nil {
		return utils.NewStorageError("delete campaign", err)
	}
	return nil
}

func (cr *CampaignRepository) DeleteAll(ctx context.Context) error {
	if _, err := cr.collection.DeleteMany(ctx, bson.M{}); err != nil {
		return utils.NewStorageError("delete campaigns", err)
	}
	return nil
}
