package services

import (
	"context"
	"sort"
	"time"

	"github.com/sirupsen/logrus"

	"geopush/interfaces"
	"geopush/models"
	"geopush/utils"
	"geopush/workers"
)

// MonitoringState is the scheduler's lifecycle state.
type MonitoringState string

const (
	MonitoringNotRunning  MonitoringState = "notRunning"
	MonitoringAuthorizing MonitoringState = "authorizing"
	MonitoringRunning     MonitoringState = "running"
	MonitoringSuspended   MonitoringState = "suspended"
)

// MonitoringOptions are the scheduler's tunables.
type MonitoringOptions struct {
	// RegionsLimit caps how many regions the provider watches concurrently.
	RegionsLimit int
	// DistanceFilter is the provider's location update granularity in meters.
	DistanceFilter float64
	// RefreshThreshold is the movement in meters that triggers a refresh while
	// the live-region count exceeds the capacity cap.
	RefreshThreshold float64
	PreferredUsage   models.LocationUsage
	MinimumUsage     models.LocationUsage
}

func DefaultMonitoringOptions() MonitoringOptions {
	return MonitoringOptions{
		RegionsLimit:     20,
		DistanceFilter:   100,
		RefreshThreshold: 200,
		PreferredUsage:   models.UsageAlways,
		MinimumUsage:     models.UsageWhenInUse,
	}
}

func (o MonitoringOptions) withDefaults() MonitoringOptions {
	defaults := DefaultMonitoringOptions()
	if o.RegionsLimit <= 0 {
		o.RegionsLimit = defaults.RegionsLimit
	}
	if o.DistanceFilter <= 0 {
		o.DistanceFilter = defaults.DistanceFilter
	}
	if o.RefreshThreshold <= 0 {
		o.RefreshThreshold = defaults.RefreshThreshold
	}
	if o.PreferredUsage == "" {
		o.PreferredUsage = defaults.PreferredUsage
	}
	if o.MinimumUsage == "" {
		o.MinimumUsage = defaults.MinimumUsage
	}
	return o
}

// MonitoringService owns the watched-region set. It enforces the capacity
// cap, selects the closest live regions on every refresh, synthesizes entry
// events for regions the device is already inside, and forwards crossings to
// the event pipeline. Every field below the queue is confined to that queue.
type MonitoringService struct {
	provider   interfaces.LocationProvider
	datasource *GeoDatasource
	events     *EventService
	delegate   interfaces.ServiceDelegate
	options    MonitoringOptions
	queue      *workers.TaskQueue

	state            MonitoringState
	started          bool
	watched          map[string]models.Region
	previousLocation *models.Coordinate
	ctx              context.Context
	cancel           context.CancelFunc

	now func() time.Time
}

func NewMonitoringService(
	provider interfaces.LocationProvider,
	datasource *GeoDatasource,
	events *EventService,
	delegate interfaces.ServiceDelegate,
	options MonitoringOptions,
) *MonitoringService {
	ctx, cancel := context.WithCancel(context.Background())
	ms := &MonitoringService{
		provider:   provider,
		datasource: datasource,
		events:     events,
		delegate:   delegate,
		options:    options.withDefaults(),
		queue:      workers.NewTaskQueue("geo-scheduler"),
		state:      MonitoringNotRunning,
		watched:    make(map[string]models.Region),
		ctx:        ctx,
		cancel:     cancel,
		now:        time.Now,
	}
	provider.SetListener(ms)
	return ms
}

// State returns the current lifecycle state.
func (ms *MonitoringService) State() MonitoringState {
	state := MonitoringNotRunning
	ms.queue.Do(func() { state = ms.state })
	return state
}

// Start brings the scheduler up. The completion receives false when the
// provider authorization is denied or unavailable; denial has no side
// effects. The completion runs on the scheduler queue.
func (ms *MonitoringService) Start(completion func(bool)) {
	ms.queue.Async(func() {
		ms.started = true
		switch ms.state {
		case MonitoringRunning:
			ms.complete(completion, true)
			return
		case MonitoringSuspended:
			ms.resumeMonitoring()
			ms.complete(completion, true)
			return
		case MonitoringAuthorizing:
			ms.complete(completion, false)
			return
		}

		switch ms.provider.CurrentStatus(ms.options.MinimumUsage) {
		case models.CapabilityAuthorized:
			ms.beginMonitoring()
			ms.complete(completion, true)
		case models.CapabilityNotDetermined:
			ms.state = MonitoringAuthorizing
			status := ms.provider.RequestAuthorization(ms.ctx, ms.options.PreferredUsage)
			if status == models.CapabilityAuthorized {
				ms.beginMonitoring()
				ms.complete(completion, true)
			} else {
				logrus.Warn("Geo monitoring authorization not granted: ", status)
				ms.state = MonitoringNotRunning
				ms.complete(completion, false)
			}
		default:
			logrus.Warn("Geo monitoring unavailable, authorization denied or not available")
			ms.complete(completion, false)
		}
	})
}

func (ms *MonitoringService) complete(completion func(bool), ok bool) {
	if completion != nil {
		completion(ok)
	}
}

func (ms *MonitoringService) beginMonitoring() {
	now := ms.now()
	if err := ms.datasource.Reload(ms.ctx, now); err != nil {
		logrus.Error("Failed to reload geo datasource: ", err)
	}
	ms.provider.SetDistanceFilter(ms.options.DistanceFilter)
	ms.provider.SetTrackingMode(models.TrackingContinuous)
	ms.state = MonitoringRunning
	ms.refreshMonitoredRegions(now)
}

func (ms *MonitoringService) resumeMonitoring() {
	ms.state = MonitoringRunning
	ms.provider.SetTrackingMode(models.TrackingContinuous)
	ms.refreshMonitoredRegions(ms.now())
}

// Stop tears the watch set down, discards in-flight pipeline results and
// returns once the scheduler is idle.
func (ms *MonitoringService) Stop() {
	ms.queue.Do(func() {
		ms.started = false
		ms.stopMonitoring()
	})
	ms.events.CancelOutstanding()
}

// stopAllWatched unwatches every region. Runs on the scheduler queue.
func (ms *MonitoringService) stopAllWatched() {
	for id := range ms.watched {
		ms.provider.StopWatching(id)
		delete(ms.watched, id)
	}
}

func (ms *MonitoringService) stopMonitoring() {
	ms.stopAllWatched()
	ms.provider.SetTrackingMode(models.TrackingOff)
	ms.state = MonitoringNotRunning
	ms.previousLocation = nil
	ms.cancel()
	ms.ctx, ms.cancel = context.WithCancel(context.Background())
}

// Suspend pauses monitoring without forgetting that the service was started.
// Used while depersonalization is pending or push registration is disabled.
func (ms *MonitoringService) Suspend() {
	ms.queue.Async(func() {
		if ms.state != MonitoringRunning {
			return
		}
		ms.stopAllWatched()
		ms.provider.SetTrackingMode(models.TrackingOff)
		ms.state = MonitoringSuspended
		logrus.Info("Geo monitoring suspended")
	})
}

// Resume continues monitoring after a Suspend.
func (ms *MonitoringService) Resume() {
	ms.queue.Async(func() {
		if ms.state != MonitoringSuspended {
			return
		}
		ms.resumeMonitoring()
		logrus.Info("Geo monitoring resumed")
	})
}

// Shutdown stops the scheduler permanently.
func (ms *MonitoringService) Shutdown() {
	ms.Stop()
	ms.queue.Stop()
}

// AddCampaign persists the campaign, notifies the delegate and refreshes the
// watch set. The completion runs on the scheduler queue.
func (ms *MonitoringService) AddCampaign(campaign *models.Campaign, completion func(error)) {
	ms.queue.Async(func() {
		if err := ms.datasource.Add(ms.ctx, campaign); err != nil {
			logrus.Error("Failed to add geo campaign ", campaign.CampaignID, ": ", err)
			if completion != nil {
				completion(err)
			}
			return
		}
		logrus.Infof("Geo campaign %s added with %d regions", campaign.CampaignID, len(campaign.Regions))
		if ms.delegate != nil {
			ms.delegate.OnCampaignAdded(campaign)
		}
		if ms.state == MonitoringRunning {
			ms.refreshMonitoredRegions(ms.now())
		}
		if completion != nil {
			completion(nil)
		}
	})
}

// RemoveCampaign deletes the campaign and refreshes the watch set.
func (ms *MonitoringService) RemoveCampaign(campaignID string, completion func(error)) {
	ms.queue.Async(func() {
		if err := ms.datasource.Remove(ms.ctx, campaignID); err != nil {
			logrus.Error("Failed to remove geo campaign ", campaignID, ": ", err)
			if completion != nil {
				completion(err)
			}
			return
		}
		if ms.state == MonitoringRunning {
			ms.refreshMonitoredRegions(ms.now())
		}
		if completion != nil {
			completion(nil)
		}
	})
}

// AllRegions returns every region in the datasource, watched or not.
func (ms *MonitoringService) AllRegions() []models.Region {
	var regions []models.Region
	ms.queue.Do(func() { regions = ms.datasource.AllRegions() })
	return regions
}

// WatchedRegions returns the regions currently watched by the provider.
func (ms *MonitoringService) WatchedRegions() []models.Region {
	var regions []models.Region
	ms.queue.Do(func() {
		for _, r := range ms.watched {
			regions = append(regions, r)
		}
		sortRegions(regions)
	})
	return regions
}

// HandleAppStateChange switches the tracking mode for the new application
// state and refreshes. Foreground transitions also run a reporting pass.
func (ms *MonitoringService) HandleAppStateChange(foreground bool) {
	ms.queue.Async(func() {
		if ms.state != MonitoringRunning {
			return
		}
		if foreground {
			ms.provider.SetTrackingMode(models.TrackingContinuous)
			ms.events.SyncWithServer(nil)
		} else {
			ms.provider.SetTrackingMode(models.TrackingSignificantChange)
		}
		ms.refreshMonitoredRegions(ms.now())
	})
}

// Depersonalize purges every campaign and pending-event record, reloads the
// now-empty datasource and drops the watch set.
func (ms *MonitoringService) Depersonalize(completion func(error)) {
	ms.queue.Async(func() {
		if err := ms.events.Cleanup(ms.ctx); err != nil {
			logrus.Error("Geo cleanup failed: ", err)
			if completion != nil {
				completion(err)
			}
			return
		}
		now := ms.now()
		if err := ms.datasource.Reload(ms.ctx, now); err != nil {
			logrus.Error("Failed to reload geo datasource after cleanup: ", err)
		}
		if ms.state == MonitoringRunning {
			ms.refreshMonitoredRegions(now)
		}
		if completion != nil {
			completion(nil)
		}
	})
}

// ReloadFromStore rebuilds the datasource cache from the store and refreshes
// the watch set. Invoked after an out-of-band purge.
func (ms *MonitoringService) ReloadFromStore() {
	ms.queue.Async(func() {
		now := ms.now()
		if err := ms.datasource.Reload(ms.ctx, now); err != nil {
			logrus.Error("Failed to reload geo datasource: ", err)
			return
		}
		if ms.state == MonitoringRunning {
			ms.refreshMonitoredRegions(now)
		}
	})
}

// refreshMonitoredRegions recomputes the watch set:
//  1. stop watched regions the device is inside and regions whose campaign
//     is no longer live, unconditionally;
//  2. fill the remaining capacity with the closest unwatched live regions,
//     never restarting a region stopped in this pass;
//  3. synthesize entry events for newly watched regions that already contain
//     the device.
//
// Without a known location candidates keep their composite-key order, which
// makes the selected subset deterministic across refreshes.
func (ms *MonitoringService) refreshMonitoredRegions(now time.Time) {
	location := ms.provider.CurrentLocation()
	live := ms.datasource.LiveRegions(now)

	liveIdentifiers := make(map[string]bool, len(live))
	for _, r := range live {
		liveIdentifiers[r.Identifier] = true
	}

	stopped := make(map[string]bool)
	for id, region := range ms.watched {
		dead := !liveIdentifiers[id]
		inside := location != nil && region.Contains(location.Latitude, location.Longitude)
		if dead || inside {
			ms.provider.StopWatching(id)
			delete(ms.watched, id)
			stopped[id] = true
		}
	}

	var candidates []models.Region
	seen := make(map[string]bool)
	for _, r := range live {
		if seen[r.Identifier] || stopped[r.Identifier] {
			continue
		}
		if _, watching := ms.watched[r.Identifier]; watching {
			continue
		}
		seen[r.Identifier] = true
		candidates = append(candidates, r)
	}
	if location != nil {
		sort.SliceStable(candidates, func(i, j int) bool {
			di := utils.CalculateDistance(location.Latitude, location.Longitude, candidates[i].Latitude, candidates[i].Longitude)
			dj := utils.CalculateDistance(location.Latitude, location.Longitude, candidates[j].Latitude, candidates[j].Longitude)
			return di < dj
		})
	}

	var startedRegions []models.Region
	for _, r := range candidates {
		if len(ms.watched) >= ms.options.RegionsLimit {
			break
		}
		if err := ms.provider.StartWatching(r.WatchRegion()); err != nil {
			logrus.Warn("Failed to start watching region ", r.DataSourceIdentifier(), ": ", err)
			continue
		}
		ms.watched[r.Identifier] = r
		startedRegions = append(startedRegions, r)
	}

	ms.previousLocation = location
	logrus.Debugf("Geo monitoring watching %d/%d regions (%d live candidates)",
		len(ms.watched), ms.options.RegionsLimit, len(live))

	if location != nil {
		ms.triggerEntriesIfInside(startedRegions, *location, now)
	}
}

// triggerEntriesIfInside synthesizes entry crossings for newly watched
// regions that already contain the device. With nested regions of one
// campaign only the smallest containing circle fires.
func (ms *MonitoringService) triggerEntriesIfInside(started []models.Region, location models.Coordinate, now time.Time) {
	smallest := make(map[string]models.Region)
	for _, r := range started {
		if !r.Contains(location.Latitude, location.Longitude) {
			continue
		}
		current, ok := smallest[r.CampaignID]
		if !ok || r.Radius < current.Radius {
			smallest[r.CampaignID] = r
		}
	}

	campaignIDs := make([]string, 0, len(smallest))
	for id := range smallest {
		campaignIDs = append(campaignIDs, id)
	}
	sort.Strings(campaignIDs)

	for _, campaignID := range campaignIDs {
		campaign := ms.datasource.Campaign(campaignID)
		if campaign == nil || !campaign.IsAppropriateDeliveryTime(models.RegionEventEntry, now) {
			continue
		}
		region := smallest[campaignID]
		logrus.Debug("Device already inside region ", region.DataSourceIdentifier(), ", synthesizing entry")
		ms.processCrossing(models.RegionEventEntry, region, now)
	}
}

// handleCrossing resolves a provider crossing callback into the campaign
// regions that currently pass the liveness and delivery-time gates.
func (ms *MonitoringService) handleCrossing(eventType models.RegionEventType, regionID string, now time.Time) {
	regions := ms.datasource.ValidRegionsNow(eventType, regionID, now)
	if len(regions) == 0 {
		logrus.Debugf("No valid campaigns for %s crossing of region %s", eventType, regionID)
		return
	}
	for _, region := range regions {
		ms.processCrossing(eventType, region, now)
	}
}

// processCrossing records the occurrence at crossing time, persists the
// mutated campaign and hands the event to the pipeline. The pipeline's
// resolution hops back onto the scheduler queue.
func (ms *MonitoringService) processCrossing(eventType models.RegionEventType, region models.Region, now time.Time) {
	campaign := ms.datasource.Campaign(region.CampaignID)
	if campaign == nil {
		return
	}
	campaign.RecordOccurrence(eventType, now)
	if err := ms.datasource.SaveEvents(ms.ctx, campaign); err != nil {
		logrus.Error("Failed to persist occurrence for campaign ", campaign.CampaignID, ": ", err)
	}

	ms.events.ReportCrossing(campaign, region, eventType, func(state models.CampaignState) {
		ms.queue.Async(func() {
			ms.resolveCrossing(region, eventType, state)
		})
	})
}

// resolveCrossing applies the server-resolved campaign state for a reported
// crossing. Only an active resolution surfaces the delegate callbacks.
func (ms *MonitoringService) resolveCrossing(region models.Region, eventType models.RegionEventType, state models.CampaignState) {
	if state != models.CampaignStateActive {
		if campaign := ms.datasource.Campaign(region.CampaignID); campaign != nil {
			campaign.State = state
		}
		logrus.Infof("Geo campaign %s is now %s", region.CampaignID, state)
		if ms.state == MonitoringRunning {
			ms.refreshMonitoredRegions(ms.now())
		}
		return
	}
	if ms.delegate == nil {
		return
	}
	switch eventType {
	case models.RegionEventEntry:
		ms.delegate.OnRegionEntered(region)
	case models.RegionEventExit:
		ms.delegate.OnRegionExited(region)
	}
}

// OnEnter implements interfaces.ProviderListener.
func (ms *MonitoringService) OnEnter(regionID string) {
	ms.queue.Async(func() {
		if ms.state != MonitoringRunning {
			return
		}
		logrus.Debug("Region entered: ", regionID)
		ms.handleCrossing(models.RegionEventEntry, regionID, ms.now())
	})
}

// OnExit implements interfaces.ProviderListener.
func (ms *MonitoringService) OnExit(regionID string) {
	ms.queue.Async(func() {
		if ms.state != MonitoringRunning {
			return
		}
		logrus.Debug("Region exited: ", regionID)
		ms.handleCrossing(models.RegionEventExit, regionID, ms.now())
	})
}

// OnLocationUpdated implements interfaces.ProviderListener. A refresh runs
// when no previous location is known, or when the device moved beyond the
// refresh threshold while more live regions exist than the capacity cap.
func (ms *MonitoringService) OnLocationUpdated(location models.Coordinate) {
	ms.queue.Async(func() {
		if ms.state != MonitoringRunning {
			return
		}
		now := ms.now()
		if ms.shouldRefreshFor(location, now) {
			ms.refreshMonitoredRegions(now)
		}
	})
}

func (ms *MonitoringService) shouldRefreshFor(location models.Coordinate, now time.Time) bool {
	if ms.previousLocation == nil {
		return true
	}
	moved := utils.CalculateDistance(
		ms.previousLocation.Latitude, ms.previousLocation.Longitude,
		location.Latitude, location.Longitude,
	)
	return moved > ms.options.RefreshThreshold && ms.datasource.LiveRegionCount(now) > ms.options.RegionsLimit
}

// OnAuthorizationChanged implements interfaces.ProviderListener. Revocation
// stops a running service; a later grant restarts it if it was started.
func (ms *MonitoringService) OnAuthorizationChanged(status models.CapabilityStatus) {
	ms.queue.Async(func() {
		switch status {
		case models.CapabilityDenied, models.CapabilityNotAvailable:
			if ms.state == MonitoringRunning || ms.state == MonitoringSuspended {
				logrus.Warn("Geo monitoring authorization revoked, stopping")
				ms.stopMonitoring()
			}
		case models.CapabilityAuthorized:
			if ms.started && ms.state == MonitoringNotRunning {
				logrus.Info("Geo monitoring authorization granted, starting")
				ms.beginMonitoring()
			}
		}
	})
}
