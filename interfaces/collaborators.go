package interfaces

import (
	"context"
	"time"

	"geopush/models"
)

// Collaborator interfaces the geofencing engine consumes. The engine never
// constructs these itself; the host SDK injects them once at start.

// LocationProvider abstracts the OS region-monitoring facility. Providers can
// watch a limited number of regions concurrently and silently ignore crossing
// callbacks for unwatched identifiers.
type LocationProvider interface {
	// CurrentStatus returns the authorization state for the given usage level.
	CurrentStatus(usage models.LocationUsage) models.CapabilityStatus
	// RequestAuthorization prompts for the given usage level and blocks until
	// the user resolves the prompt or the context is cancelled.
	RequestAuthorization(ctx context.Context, usage models.LocationUsage) models.CapabilityStatus
	StartWatching(region models.WatchRegion) error
	StopWatching(regionID string)
	CurrentLocation() *models.Coordinate
	SetTrackingMode(mode models.TrackingMode)
	SetDistanceFilter(meters float64)
	SetListener(listener ProviderListener)
}

// ProviderListener receives the provider's asynchronous callbacks.
type ProviderListener interface {
	OnEnter(regionID string)
	OnExit(regionID string)
	OnLocationUpdated(location models.Coordinate)
	OnAuthorizationChanged(status models.CapabilityStatus)
}

// EventTransport performs the report exchange with the backend. Submissions
// are idempotent per sdk message id; the server tolerates replays.
type EventTransport interface {
	ReportEvents(ctx context.Context, pushRegistrationID string, reports []models.EventReport, campaigns []models.CampaignSnapshot) (*models.EventReportResponse, error)
}

// CampaignStore is the durable home of geofencing campaign records.
type CampaignStore interface {
	FindAll(ctx context.Context) ([]*models.Campaign, error)
	FindByCampaignIDs(ctx context.Context, campaignIDs []string) ([]*models.Campaign, error)
	Upsert(ctx context.Context, campaign *models.Campaign) error
	UpdateState(ctx context.Context, campaignID string, state models.CampaignState) error
	UpdateEvents(ctx context.Context, campaignID string, events []*models.RegionEvent) error
	Delete(ctx context.Context, campaignID string) error
	DeleteAll(ctx context.Context) error
}

// EventStore is the durable queue of pending crossing events. Events are
// keyed by their sdk-generated message id.
type EventStore interface {
	Create(ctx context.Context, event *models.PendingEvent) error
	FindAll(ctx context.Context) ([]*models.PendingEvent, error)
	MarkShown(ctx context.Context, sdkMessageID string) error
	Delete(ctx context.Context, sdkMessageID string) error
	DeleteOlderThan(ctx context.Context, cutoff time.Time) error
	DeleteAll(ctx context.Context) error
}

// InstallationResolver exposes the current installation identity. An empty
// push registration id means the installation is not registered yet and
// reporting is skipped without error.
type InstallationResolver interface {
	PushRegistrationID() string
}

// GeoEventHandler is the pluggable hook invoked for every locally generated
// geo message. The default implementation surfaces a local notification.
type GeoEventHandler interface {
	OnGeoEvent(notification models.GeoNotification)
}

// ServiceDelegate receives the engine's lifecycle callbacks.
type ServiceDelegate interface {
	OnCampaignAdded(campaign *models.Campaign)
	OnRegionEntered(region models.Region)
	OnRegionExited(region models.Region)
}
