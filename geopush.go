// Package geopush is an embeddable geofencing monitoring and event-reporting
// engine: it turns push campaign payloads into monitored geo regions, reacts
// to region crossings, reports them to the backend and surfaces the resulting
// messages through a pluggable handler.
package geopush

import (
	"time"

	"github.com/sirupsen/logrus"
	"go.mongodb.org/mongo-driver/mongo"

	"geopush/config"
	"geopush/database"
	"geopush/interfaces"
	"geopush/models"
	"geopush/repositories"
	"geopush/services"
	"geopush/transport"
	"geopush/utils"
	"geopush/workers"
)

// Collaborators are the host-provided seams the engine is built around. Only
// Provider and Installation are required; nil stores and transport fall back
// to the mongo repositories and the HTTP client configured in Config.
type Collaborators struct {
	Provider     interfaces.LocationProvider
	Installation interfaces.InstallationResolver
	Transport    interfaces.EventTransport
	Campaigns    interfaces.CampaignStore
	Events       interfaces.EventStore
	Delegate     interfaces.ServiceDelegate
	EventHandler interfaces.GeoEventHandler
}

// Service is the engine facade. Construct it once at SDK start and share the
// handle; there is no hidden singleton.
type Service struct {
	db         *mongo.Database
	datasource *services.GeoDatasource
	events     *services.EventService
	monitoring *services.MonitoringService
	cleanup    *workers.CleanupWorker
}

// New wires the full production graph from configuration: mongo-backed
// stores, the HTTP transport and the periodic cleanup worker.
func New(cfg *config.Config, collab Collaborators) (*Service, error) {
	if collab.Provider == nil || collab.Installation == nil {
		return nil, utils.NewConfigError("location provider and installation resolver are required")
	}

	config.SetupLogger(cfg.Environment)

	var db *mongo.Database
	if collab.Campaigns == nil || collab.Events == nil {
		var err error
		db, err = database.Connect(cfg.DatabaseURL)
		if err != nil {
			return nil, err
		}
		if collab.Campaigns == nil {
			collab.Campaigns = repositories.NewCampaignRepository(db)
		}
		if collab.Events == nil {
			collab.Events = repositories.NewEventRepository(db)
		}
	}
	if collab.Transport == nil {
		collab.Transport = transport.NewAPIClient(cfg.APIBaseURL, cfg.ApplicationCode)
	}

	svc := assemble(collab, services.MonitoringOptions{
		RegionsLimit:     cfg.MonitoringRegionsLimit,
		DistanceFilter:   cfg.DistanceFilter,
		RefreshThreshold: cfg.RegionRefreshThreshold,
		PreferredUsage:   models.LocationUsage(cfg.PreferredUsage),
		MinimumUsage:     models.LocationUsage(cfg.MinimumUsage),
	}, workers.CleanupWorkerConfig{
		Interval:       cfg.CleanupInterval,
		EventRetention: cfg.EventRetention,
	})
	svc.db = db

	if err := svc.cleanup.Start(); err != nil {
		return nil, err
	}
	logrus.Info("Geopush service assembled")
	return svc, nil
}

// NewWithCollaborators wires the graph entirely from injected collaborators,
// skipping configuration, database and the cleanup worker. Every seam must be
// non-nil except Delegate and EventHandler.
func NewWithCollaborators(collab Collaborators, opts services.MonitoringOptions) *Service {
	return assemble(collab, opts, workers.CleanupWorkerConfig{})
}

func assemble(collab Collaborators, opts services.MonitoringOptions, cleanupCfg workers.CleanupWorkerConfig) *Service {
	datasource := services.NewGeoDatasource(collab.Campaigns)
	events := services.NewEventService(
		collab.Campaigns, collab.Events, collab.Transport, collab.Installation, collab.EventHandler)
	monitoring := services.NewMonitoringService(
		collab.Provider, datasource, events, collab.Delegate, opts)

	svc := &Service{
		datasource: datasource,
		events:     events,
		monitoring: monitoring,
	}
	svc.cleanup = workers.NewCleanupWorker(collab.Campaigns, collab.Events, cleanupCfg, monitoring.ReloadFromStore)
	return svc
}

// Start brings monitoring up. The completion receives false when location
// authorization is denied or unavailable.
func (s *Service) Start(completion func(bool)) {
	s.monitoring.Start(completion)
}

// Stop tears the watch set down and discards in-flight reporting results.
// The service can be started again.
func (s *Service) Stop() {
	s.monitoring.Stop()
}

// Suspend pauses monitoring, e.g. while depersonalization is pending or push
// registration is disabled.
func (s *Service) Suspend() {
	s.monitoring.Suspend()
}

// Resume continues monitoring after Suspend.
func (s *Service) Resume() {
	s.monitoring.Resume()
}

// AddCampaignPayload parses a push payload into a campaign and schedules it
// for monitoring. The completion runs on the scheduler queue.
func (s *Service) AddCampaignPayload(payload []byte, completion func(*models.Campaign, error)) {
	campaign, err := models.ParseCampaign(payload, time.Now())
	if err != nil {
		logrus.Warn("Rejected geo campaign payload: ", err)
		if completion != nil {
			completion(nil, err)
		}
		return
	}
	s.AddCampaign(campaign, func(addErr error) {
		if completion != nil {
			completion(campaign, addErr)
		}
	})
}

// AddCampaign schedules an already parsed campaign for monitoring.
func (s *Service) AddCampaign(campaign *models.Campaign, completion func(error)) {
	s.monitoring.AddCampaign(campaign, completion)
}

// RemoveCampaign deletes a campaign and stops watching its regions.
func (s *Service) RemoveCampaign(campaignID string, completion func(error)) {
	s.monitoring.RemoveCampaign(campaignID, completion)
}

// AllRegions returns every region known to the datasource.
func (s *Service) AllRegions() []models.Region {
	return s.monitoring.AllRegions()
}

// WatchedRegions returns the regions currently watched by the provider.
func (s *Service) WatchedRegions() []models.Region {
	return s.monitoring.WatchedRegions()
}

// State returns the scheduler's lifecycle state.
func (s *Service) State() services.MonitoringState {
	return s.monitoring.State()
}

// HandleAppStateChange informs the engine of a foreground or background
// transition. Foreground transitions trigger a reporting pass.
func (s *Service) HandleAppStateChange(foreground bool) {
	s.monitoring.HandleAppStateChange(foreground)
}

// SyncWithServer runs an opportunistic reporting pass for pending events.
func (s *Service) SyncWithServer(completion func(*models.EventReportResponse, error)) {
	s.events.SyncWithServer(completion)
}

// Depersonalize purges all geofencing campaign and pending-event records and
// resets the in-memory state.
func (s *Service) Depersonalize(completion func(error)) {
	s.monitoring.Depersonalize(completion)
}

// Shutdown stops the engine permanently and releases its resources.
func (s *Service) Shutdown() {
	if err := s.cleanup.Stop(); err != nil {
		logrus.Error("Failed to stop cleanup worker: ", err)
	}
	s.monitoring.Shutdown()
	s.events.Stop()
	if s.db != nil {
		database.Disconnect()
	}
	logrus.Info("Geopush service shut down")
}
