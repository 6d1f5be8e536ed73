package models

import (
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// ==================== EVENT MODELS ====================

// PendingEvent is a durably persisted crossing awaiting server reporting.
// It is created before any network attempt and deleted only once the server
// has acknowledged it, which gives crossings at-least-once delivery.
type PendingEvent struct {
	ID               primitive.ObjectID `json:"-" bson:"_id,omitempty"`
	CampaignID       string             `json:"campaignId" bson:"campaignId"`
	RegionIdentifier string             `json:"geoAreaId" bson:"geoAreaId"`
	EventType        RegionEventType    `json:"eventType" bson:"eventType"`
	OccurredAt       time.Time          `json:"eventDate" bson:"eventDate"`
	MessageID        string             `json:"messageId" bson:"messageId"`
	SDKMessageID     string             `json:"sdkMessageId" bson:"sdkMessageId"`
	MessageShown     bool               `json:"messageShown" bson:"messageShown"`
	CreatedAt        time.Time          `json:"createdAt" bson:"createdAt"`
}

// Report builds the wire representation of the event for the report batch.
func (e *PendingEvent) Report(now time.Time) EventReport {
	return EventReport{
		CampaignID:     e.CampaignID,
		GeoAreaID:      e.RegionIdentifier,
		Event:          e.EventType,
		TimestampDelta: int64(now.Sub(e.OccurredAt).Seconds()),
		MessageID:      e.MessageID,
		SDKMessageID:   e.SDKMessageID,
	}
}

// EventReport is one crossing entry of the report request body.
type EventReport struct {
	CampaignID     string          `json:"campaignId"`
	GeoAreaID      string          `json:"geoAreaId"`
	Event          RegionEventType `json:"event"`
	TimestampDelta int64           `json:"timestampDelta"`
	MessageID      string          `json:"messageId"`
	SDKMessageID   string          `json:"sdkMessageId"`
}

// CampaignSnapshot is the campaign representation attached to a report so the
// server can materialize messages for campaigns it only knows by id.
type CampaignSnapshot struct {
	MessageID  string `json:"messageId"`
	CampaignID string `json:"campaignId"`
	Body       string `json:"body"`
	Alert      string `json:"alert"`
	Title      string `json:"title,omitempty"`
	Sound      string `json:"sound,omitempty"`
}

// EventReportRequest is the transport request body for one reporting pass.
type EventReportRequest struct {
	Platform           string             `json:"platformType"`
	PushRegistrationID string             `json:"pushRegistrationId"`
	Reports            []EventReport      `json:"reports"`
	Messages           []CampaignSnapshot `json:"messages"`
}

// EventReportResponse carries the server-driven lifecycle transitions and the
// map from sdk-generated placeholder ids to server-assigned message ids.
type EventReportResponse struct {
	FinishedCampaignIDs  []string          `json:"finishedCampaignIds"`
	SuspendedCampaignIDs []string          `json:"suspendedCampaignIds"`
	MessageIDs           map[string]string `json:"messageIds"`
}

// IsSuspended reports whether the response suspended the given campaign.
func (r *EventReportResponse) IsSuspended(campaignID string) bool {
	return containsString(r.SuspendedCampaignIDs, campaignID)
}

// IsFinished reports whether the response finished the given campaign.
func (r *EventReportResponse) IsFinished(campaignID string) bool {
	return containsString(r.FinishedCampaignIDs, campaignID)
}

// IsTerminal reports whether the campaign was suspended or finished by the
// response; terminal campaigns never produce locally generated messages.
func (r *EventReportResponse) IsTerminal(campaignID string) bool {
	return r.IsSuspended(campaignID) || r.IsFinished(campaignID)
}

func containsString(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}

// GeoNotification is a locally generated, user-visible message produced from
// a crossing. When reporting fails it carries the sdk placeholder id; a later
// successful report reconciles it with the server-assigned id.
type GeoNotification struct {
	MessageID   string          `json:"messageId"`
	CampaignID  string          `json:"campaignId"`
	Region      Region          `json:"region"`
	EventType   RegionEventType `json:"eventType"`
	Title       string          `json:"title,omitempty"`
	Body        string          `json:"body"`
	Sound       string          `json:"sound,omitempty"`
	GeneratedAt time.Time       `json:"generatedAt"`
}
