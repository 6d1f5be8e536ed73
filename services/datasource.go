package services

import (
	"context"
	"sort"
	"time"

	"github.com/sirupsen/logrus"

	"geopush/interfaces"
	"geopush/models"
)

// GeoDatasource is the in-memory cache of geofencing campaigns and the index
// of their monitorable regions. It is owned by the scheduler's task queue and
// does no locking of its own; every read and mutation happens on that queue.
type GeoDatasource struct {
	store     interfaces.CampaignStore
	campaigns map[string]*models.Campaign
	regions   map[string]models.Region // keyed by composite campaignId_regionId
}

func NewGeoDatasource(store interfaces.CampaignStore) *GeoDatasource {
	return &GeoDatasource{
		store:     store,
		campaigns: make(map[string]*models.Campaign),
		regions:   make(map[string]models.Region),
	}
}

// Reload replaces the cache with the live campaigns currently in the store.
func (ds *GeoDatasource) Reload(ctx context.Context, now time.Time) error {
	campaigns, err := ds.store.FindAll(ctx)
	if err != nil {
		return err
	}

	ds.campaigns = make(map[string]*models.Campaign)
	ds.regions = make(map[string]models.Region)
	for _, campaign := range campaigns {
		if campaign.IsLive(now) {
			ds.index(campaign)
		}
	}

	logrus.Debugf("Geo datasource loaded %d live campaigns, %d regions", len(ds.campaigns), len(ds.regions))
	return nil
}

// Add persists the campaign and indexes its regions. On a storage failure
// the in-memory state is left unchanged.
func (ds *GeoDatasource) Add(ctx context.Context, campaign *models.Campaign) error {
	if err := ds.store.Upsert(ctx, campaign); err != nil {
		return err
	}
	ds.index(campaign)
	return nil
}

// Remove deletes the campaign record and drops its region index entries.
func (ds *GeoDatasource) Remove(ctx context.Context, campaignID string) error {
	if err := ds.store.Delete(ctx, campaignID); err != nil {
		return err
	}
	ds.deindex(campaignID)
	return nil
}

// Campaign returns the cached campaign for the id, or nil.
func (ds *GeoDatasource) Campaign(campaignID string) *models.Campaign {
	return ds.campaigns[campaignID]
}

// SaveEvents persists the campaign's mutated occurrence state.
func (ds *GeoDatasource) SaveEvents(ctx context.Context, campaign *models.Campaign) error {
	return ds.store.UpdateEvents(ctx, campaign.CampaignID, campaign.Events)
}

// AllRegions returns every cached region in composite-key order.
func (ds *GeoDatasource) AllRegions() []models.Region {
	regions := make([]models.Region, 0, len(ds.regions))
	for _, r := range ds.regions {
		regions = append(regions, r)
	}
	sortRegions(regions)
	return regions
}

// LiveRegions returns the regions of campaigns that are live right now, in
// composite-key order so selection stays deterministic without a location.
func (ds *GeoDatasource) LiveRegions(now time.Time) []models.Region {
	var regions []models.Region
	for _, r := range ds.regions {
		if c := ds.campaigns[r.CampaignID]; c != nil && c.IsLive(now) {
			regions = append(regions, r)
		}
	}
	sortRegions(regions)
	return regions
}

// LiveRegionCount reports how many regions are currently monitorable.
func (ds *GeoDatasource) LiveRegionCount(now time.Time) int {
	count := 0
	for _, r := range ds.regions {
		if c := ds.campaigns[r.CampaignID]; c != nil && c.IsLive(now) {
			count++
		}
	}
	return count
}

// RegionsForIdentifier returns every cached region with the given provider
// identifier, across campaigns.
func (ds *GeoDatasource) RegionsForIdentifier(regionID string) []models.Region {
	var regions []models.Region
	for _, r := range ds.regions {
		if r.Identifier == regionID {
			regions = append(regions, r)
		}
	}
	sortRegions(regions)
	return regions
}

// ValidRegionsNow is the gate checked before a crossing may produce a local
// event: it returns the regions matching the identifier whose owning
// campaigns currently pass the delivery-time and liveness rules for the
// crossing type, at most one region per campaign.
func (ds *GeoDatasource) ValidRegionsNow(eventType models.RegionEventType, regionID string, now time.Time) []models.Region {
	ids := make([]string, 0, len(ds.campaigns))
	for id := range ds.campaigns {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	var regions []models.Region
	for _, id := range ids {
		campaign := ds.campaigns[id]
		if !campaign.IsAppropriateDeliveryTime(eventType, now) {
			continue
		}
		if r := campaign.RegionFor(regionID); r != nil {
			regions = append(regions, *r)
		}
	}
	return regions
}

func (ds *GeoDatasource) index(campaign *models.Campaign) {
	ds.campaigns[campaign.CampaignID] = campaign
	for _, r := range campaign.Regions {
		ds.regions[r.DataSourceIdentifier()] = r
	}
}

func (ds *GeoDatasource) deindex(campaignID string) {
	campaign := ds.campaigns[campaignID]
	if campaign == nil {
		return
	}
	for _, r := range campaign.Regions {
		delete(ds.regions, r.DataSourceIdentifier())
	}
	delete(ds.campaigns, campaignID)
}

func sortRegions(regions []models.Region) {
	sort.Slice(regions, func(i, j int) bool {
		return regions[i].DataSourceIdentifier() < regions[j].DataSourceIdentifier()
	})
}
