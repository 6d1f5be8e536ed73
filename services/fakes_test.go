package services

import (
	"context"
	"sort"
	"sync"
	"time"

	"geopush/interfaces"
	"geopush/models"
)

type fakeCampaignStore struct {
	mu        sync.Mutex
	campaigns map[string]*models.Campaign
	upsertErr error
	findErr   error
}

func newFakeCampaignStore(campaigns ...*models.Campaign) *fakeCampaignStore {
	s := &fakeCampaignStore{campaigns: make(map[string]*models.Campaign)}
	for _, c := range campaigns {
		s.campaigns[c.CampaignID] = c
	}
	return s
}

func (s *fakeCampaignStore) FindAll(ctx context.Context) ([]*models.Campaign, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.findErr != nil {
		return nil, s.findErr
	}
	ids := make([]string, 0, len(s.campaigns))
	for id := range s.campaigns {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	out := make([]*models.Campaign, 0, len(ids))
	for _, id := range ids {
		out = append(out, s.campaigns[id])
	}
	return out, nil
}

func (s *fakeCampaignStore) FindByCampaignIDs(ctx context.Context, campaignIDs []string) ([]*models.Campaign, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.findErr != nil {
		return nil, s.findErr
	}
	sorted := append([]string(nil), campaignIDs...)
	sort.Strings(sorted)
	var out []*models.Campaign
	for _, id := range sorted {
		if c, ok := s.campaigns[id]; ok {
			out = append(out, c)
		}
	}
	return out, nil
}

func (s *fakeCampaignStore) Upsert(ctx context.Context, campaign *models.Campaign) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.upsertErr != nil {
		return s.upsertErr
	}
	s.campaigns[campaign.CampaignID] = campaign
	return nil
}

func (s *fakeCampaignStore) UpdateState(ctx context.Context, campaignID string, state models.CampaignState) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if c, ok := s.campaigns[campaignID]; ok {
		c.State = state
	}
	return nil
}

func (s *fakeCampaignStore) UpdateEvents(ctx context.Context, campaignID string, events []*models.RegionEvent) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if c, ok := s.campaigns[campaignID]; ok {
		c.Events = events
	}
	return nil
}

func (s *fakeCampaignStore) Delete(ctx context.Context, campaignID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.campaigns, campaignID)
	return nil
}

func (s *fakeCampaignStore) DeleteAll(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.campaigns = make(map[string]*models.Campaign)
	return nil
}

func (s *fakeCampaignStore) get(campaignID string) *models.Campaign {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.campaigns[campaignID]
}

type fakeEventStore struct {
	mu        sync.Mutex
	events    []*models.PendingEvent
	createErr error
}

func (s *fakeEventStore) Create(ctx context.Context, event *models.PendingEvent) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.createErr != nil {
		return s.createErr
	}
	s.events = append(s.events, event)
	return nil
}

func (s *fakeEventStore) FindAll(ctx context.Context) ([]*models.PendingEvent, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]*models.PendingEvent(nil), s.events...), nil
}

func (s *fakeEventStore) MarkShown(ctx context.Context, sdkMessageID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, e := range s.events {
		if e.SDKMessageID == sdkMessageID {
			e.MessageShown = true
		}
	}
	return nil
}

func (s *fakeEventStore) Delete(ctx context.Context, sdkMessageID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	kept := s.events[:0]
	for _, e := range s.events {
		if e.SDKMessageID != sdkMessageID {
			kept = append(kept, e)
		}
	}
	s.events = kept
	return nil
}

func (s *fakeEventStore) DeleteOlderThan(ctx context.Context, cutoff time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	kept := s.events[:0]
	for _, e := range s.events {
		if !e.CreatedAt.Before(cutoff) {
			kept = append(kept, e)
		}
	}
	s.events = kept
	return nil
}

func (s *fakeEventStore) DeleteAll(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = nil
	return nil
}

func (s *fakeEventStore) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.events)
}

func (s *fakeEventStore) all() []*models.PendingEvent {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]*models.PendingEvent(nil), s.events...)
}

// fakeTransport answers every report with a synthetic id map unless err is
// set; finished/suspended ids are echoed into every response.
type fakeTransport struct {
	mu        sync.Mutex
	err       error
	finished  []string
	suspended []string
	requests  []models.EventReportRequest
}

func (t *fakeTransport) ReportEvents(ctx context.Context, pushRegistrationID string, reports []models.EventReport, campaigns []models.CampaignSnapshot) (*models.EventReportResponse, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.requests = append(t.requests, models.EventReportRequest{
		PushRegistrationID: pushRegistrationID,
		Reports:            reports,
		Messages:           campaigns,
	})
	if t.err != nil {
		return nil, t.err
	}
	ids := make(map[string]string, len(reports))
	for _, r := range reports {
		ids[r.SDKMessageID] = "srv-" + r.SDKMessageID
	}
	return &models.EventReportResponse{
		FinishedCampaignIDs:  t.finished,
		SuspendedCampaignIDs: t.suspended,
		MessageIDs:           ids,
	}, nil
}

func (t *fakeTransport) calls() []models.EventReportRequest {
	t.mu.Lock()
	defer t.mu.Unlock()
	return append([]models.EventReportRequest(nil), t.requests...)
}

func (t *fakeTransport) setErr(err error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.err = err
}

type fakeProvider struct {
	mu          sync.Mutex
	status      models.CapabilityStatus
	grantResult models.CapabilityStatus
	location    *models.Coordinate
	watching    map[string]models.WatchRegion
	mode        models.TrackingMode
	filter      float64
	listener    interfaces.ProviderListener
	startErr    error
}

func newFakeProvider(status models.CapabilityStatus) *fakeProvider {
	return &fakeProvider{
		status:      status,
		grantResult: models.CapabilityAuthorized,
		watching:    make(map[string]models.WatchRegion),
	}
}

func (p *fakeProvider) CurrentStatus(usage models.LocationUsage) models.CapabilityStatus {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.status
}

func (p *fakeProvider) RequestAuthorization(ctx context.Context, usage models.LocationUsage) models.CapabilityStatus {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.status = p.grantResult
	return p.status
}

func (p *fakeProvider) StartWatching(region models.WatchRegion) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.startErr != nil {
		return p.startErr
	}
	p.watching[region.Identifier] = region
	return nil
}

func (p *fakeProvider) StopWatching(regionID string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	delete(p.watching, regionID)
}

func (p *fakeProvider) CurrentLocation() *models.Coordinate {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.location
}

func (p *fakeProvider) SetTrackingMode(mode models.TrackingMode) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.mode = mode
}

func (p *fakeProvider) SetDistanceFilter(meters float64) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.filter = meters
}

func (p *fakeProvider) SetListener(listener interfaces.ProviderListener) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.listener = listener
}

func (p *fakeProvider) watchedIDs() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	ids := make([]string, 0, len(p.watching))
	for id := range p.watching {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

func (p *fakeProvider) setLocation(lat, lon float64) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.location = &models.Coordinate{Latitude: lat, Longitude: lon}
}

type fakeInstallation struct {
	mu sync.Mutex
	id string
}

func (f *fakeInstallation) PushRegistrationID() string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.id
}

type fakeHandler struct {
	mu            sync.Mutex
	notifications []models.GeoNotification
}

func (h *fakeHandler) OnGeoEvent(notification models.GeoNotification) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.notifications = append(h.notifications, notification)
}

func (h *fakeHandler) all() []models.GeoNotification {
	h.mu.Lock()
	defer h.mu.Unlock()
	return append([]models.GeoNotification(nil), h.notifications...)
}

type fakeDelegate struct {
	mu      sync.Mutex
	added   []*models.Campaign
	entered []models.Region
	exited  []models.Region
}

func (d *fakeDelegate) OnCampaignAdded(campaign *models.Campaign) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.added = append(d.added, campaign)
}

func (d *fakeDelegate) OnRegionEntered(region models.Region) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.entered = append(d.entered, region)
}

func (d *fakeDelegate) OnRegionExited(region models.Region) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.exited = append(d.exited, region)
}

func (d *fakeDelegate) enteredRegions() []models.Region {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]models.Region(nil), d.entered...)
}
