package models

import (
	"encoding/json"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"go.mongodb.org/mongo-driver/bson/primitive"

	"geopush/utils"
)

// ==================== CAMPAIGN MODELS ====================

type CampaignState string

const (
	CampaignStateActive    CampaignState = "active"
	CampaignStateSuspended CampaignState = "suspended"
	CampaignStateFinished  CampaignState = "finished"
)

type RegionEventType string

const (
	RegionEventEntry RegionEventType = "entry"
	RegionEventExit  RegionEventType = "exit"
)

// MinimumRegionRadius is the smallest radius (meters) the platform monitors reliably.
const MinimumRegionRadius = 100.0

// Campaign is the immutable-after-parse representation of a geofencing push
// payload: the regions it covers, its delivery window and its per-crossing
// occurrence rules. Only RecordOccurrence mutates it.
type Campaign struct {
	ID           primitive.ObjectID `json:"-" bson:"_id,omitempty"`
	CampaignID   string             `json:"campaignId" bson:"campaignId"`
	MessageID    string             `json:"messageId" bson:"messageId"`
	Title        string             `json:"title,omitempty" bson:"title,omitempty"`
	Body         string             `json:"body,omitempty" bson:"body,omitempty"`
	Sound        string             `json:"sound,omitempty" bson:"sound,omitempty"`
	Regions      []Region           `json:"regions" bson:"regions"`
	StartTime    time.Time          `json:"startTime" bson:"startTime"`
	ExpiryTime   time.Time          `json:"expiryTime" bson:"expiryTime"`
	DeliveryTime *DeliveryTime      `json:"deliveryTime,omitempty" bson:"deliveryTime,omitempty"`
	Events       []*RegionEvent     `json:"events" bson:"events"`
	State        CampaignState      `json:"campaignState" bson:"campaignState"`
	CreatedAt    time.Time          `json:"createdAt" bson:"createdAt"`
	UpdatedAt    time.Time          `json:"updatedAt" bson:"updatedAt"`
}

// HasValidEventsInGeneral reports whether at least one crossing rule has not
// exhausted its occurrence limit.
func (c *Campaign) HasValidEventsInGeneral() bool {
	for _, ev := range c.Events {
		if ev.IsValidInGeneral() {
			return true
		}
	}
	return false
}

// IsLive reports whether the campaign may still produce events at all:
// active state, not expired, and not exhausted on every crossing rule.
func (c *Campaign) IsLive(now time.Time) bool {
	return c.State == CampaignStateActive && now.Before(c.ExpiryTime) && c.HasValidEventsInGeneral()
}

// IsLiveNow reports liveness for one crossing type: the campaign carries a
// rule for it, that rule is currently valid, and the campaign itself is live.
func (c *Campaign) IsLiveNow(eventType RegionEventType, now time.Time) bool {
	found := false
	for _, ev := range c.Events {
		if ev.Type != eventType {
			continue
		}
		found = true
		if !ev.IsValidNow(now) {
			return false
		}
	}
	return found && c.IsLive(now)
}

// IsAppropriateDeliveryTime is the delivery gate checked before a crossing
// may produce a user-visible message.
func (c *Campaign) IsAppropriateDeliveryTime(eventType RegionEventType, now time.Time) bool {
	inWindow := c.DeliveryTime == nil || c.DeliveryTime.IsNow(now)
	started := !now.Before(c.StartTime)
	return inWindow && c.IsLiveNow(eventType, now) && started
}

// RecordOccurrence stamps one occurrence on the matching crossing rule.
func (c *Campaign) RecordOccurrence(eventType RegionEventType, now time.Time) {
	for _, ev := range c.Events {
		if ev.Type == eventType {
			ev.Occur(now)
			return
		}
	}
}

// EventFor returns the crossing rule for the given type, or nil.
func (c *Campaign) EventFor(eventType RegionEventType) *RegionEvent {
	for _, ev := range c.Events {
		if ev.Type == eventType {
			return ev
		}
	}
	return nil
}

// RegionFor returns the campaign region with the given identifier, or nil.
func (c *Campaign) RegionFor(identifier string) *Region {
	for i := range c.Regions {
		if c.Regions[i].Identifier == identifier {
			return &c.Regions[i]
		}
	}
	return nil
}

// Snapshot builds the campaign representation sent alongside event reports.
func (c *Campaign) Snapshot() CampaignSnapshot {
	return CampaignSnapshot{
		MessageID:  c.MessageID,
		CampaignID: c.CampaignID,
		Body:       c.Body,
		Alert:      c.Body,
		Title:      c.Title,
		Sound:      c.Sound,
	}
}

// ==================== REGION ====================

// Region is a monitorable circle owned by exactly one campaign. The owning
// campaign is referenced by id only and resolved through the datasource.
type Region struct {
	Identifier string  `json:"id" bson:"id"`
	CampaignID string  `json:"campaignId" bson:"campaignId"`
	Latitude   float64 `json:"latitude" bson:"latitude"`
	Longitude  float64 `json:"longitude" bson:"longitude"`
	Radius     float64 `json:"radiusInMeters" bson:"radiusInMeters"`
	Title      string  `json:"title" bson:"title"`
}

// DataSourceIdentifier is the composite key the datasource indexes regions by.
// Region identifiers are only unique within a campaign.
func (r Region) DataSourceIdentifier() string {
	return r.CampaignID + "_" + r.Identifier
}

// Contains reports whether the coordinate lies within the region circle.
func (r Region) Contains(lat, lon float64) bool {
	return utils.CalculateDistance(lat, lon, r.Latitude, r.Longitude) <= r.Radius
}

// WatchRegion is the provider-facing shape of a region.
func (r Region) WatchRegion() WatchRegion {
	return WatchRegion{
		Identifier: r.Identifier,
		Latitude:   r.Latitude,
		Longitude:  r.Longitude,
		Radius:     r.Radius,
	}
}

// ==================== REGION EVENT ====================

// RegionEvent is the occurrence rule for one crossing type.
type RegionEvent struct {
	Type             RegionEventType `json:"type" bson:"type"`
	Limit            int             `json:"limit" bson:"limit"` // 0 = unlimited
	TimeoutMinutes   int             `json:"timeoutInMinutes" bson:"timeoutInMinutes"`
	OccurringCounter int             `json:"rate" bson:"rate"`
	LastOccurring    *time.Time      `json:"lastOccur,omitempty" bson:"lastOccur,omitempty"`
}

func (e *RegionEvent) HasReachedLimit() bool {
	return e.Limit != 0 && e.OccurringCounter >= e.Limit
}

func (e *RegionEvent) IsValidInGeneral() bool {
	return !e.HasReachedLimit()
}

// IsValidNow reports whether the rule allows an occurrence right now: the
// limit is not exhausted and the timeout since the last occurrence elapsed.
func (e *RegionEvent) IsValidNow(now time.Time) bool {
	if !e.IsValidInGeneral() {
		return false
	}
	if e.LastOccurring == nil {
		return true
	}
	return !e.LastOccurring.Add(time.Duration(e.TimeoutMinutes) * time.Minute).After(now)
}

// Occur increments the occurrence counter and stamps the occurrence time.
func (e *RegionEvent) Occur(now time.Time) {
	e.OccurringCounter++
	t := now
	e.LastOccurring = &t
}

// DefaultRegionEvent is the rule applied to payloads without an event list:
// a single entry, no timeout.
func DefaultRegionEvent() *RegionEvent {
	return &RegionEvent{Type: RegionEventEntry, Limit: 1, TimeoutMinutes: 0}
}

// ==================== DELIVERY TIME ====================

// DeliveryTime restricts when crossings may produce user-visible messages.
// An empty day set means every day; a nil interval means the whole day.
type DeliveryTime struct {
	Days         []int                 `json:"days,omitempty" bson:"days,omitempty"` // ISO weekdays, 1=Monday .. 7=Sunday
	TimeInterval *DeliveryTimeInterval `json:"timeInterval,omitempty" bson:"timeInterval,omitempty"`
}

func (dt *DeliveryTime) IsNow(now time.Time) bool {
	return dt.isAppropriateDay(now) && dt.isAppropriateTime(now)
}

func (dt *DeliveryTime) isAppropriateDay(now time.Time) bool {
	if len(dt.Days) == 0 {
		return true
	}
	day := ISOWeekday(now)
	for _, d := range dt.Days {
		if d == day {
			return true
		}
	}
	return false
}

func (dt *DeliveryTime) isAppropriateTime(now time.Time) bool {
	if dt.TimeInterval == nil {
		return true
	}
	return dt.TimeInterval.IsNow(now)
}

// ISOWeekday maps a time to the ISO-8601 weekday number (1=Monday .. 7=Sunday).
func ISOWeekday(t time.Time) int {
	wd := int(t.Weekday())
	if wd == 0 {
		return 7
	}
	return wd
}

// DeliveryTimeInterval is a daily window given as two "hhmm" boundaries.
// The window may wrap past midnight (from > to).
type DeliveryTimeInterval struct {
	FromTime string `json:"fromTime" bson:"fromTime"`
	ToTime   string `json:"toTime" bson:"toTime"`
}

func (ti *DeliveryTimeInterval) IsNow(now time.Time) bool {
	from, okFrom := parseHHMM(ti.FromTime)
	to, okTo := parseHHMM(ti.ToTime)
	if !okFrom || !okTo {
		return false
	}
	minute := now.Hour()*60 + now.Minute()
	if from <= to {
		return from <= minute && minute <= to
	}
	return from <= minute || minute <= to
}

func parseHHMM(s string) (int, bool) {
	if len(s) != 4 {
		return 0, false
	}
	h, err1 := strconv.Atoi(s[:2])
	m, err2 := strconv.Atoi(s[2:])
	if err1 != nil || err2 != nil || h > 23 || m > 59 {
		return 0, false
	}
	return h*60 + m, true
}

// ==================== PAYLOAD PARSING ====================

const timeIntervalSeparator = "/"

var payloadValidator = validator.New()

// campaignPayload mirrors the geofencing push payload wire format.
type campaignPayload struct {
	MessageID string `json:"messageId"`
	APS       struct {
		Alert struct {
			Title string `json:"title"`
			Body  string `json:"body"`
		} `json:"alert"`
		Sound string `json:"sound"`
	} `json:"aps"`
	InternalData *internalDataPayload `json:"internalData" validate:"required"`
}

type internalDataPayload struct {
	CampaignID   string               `json:"campaignId" validate:"required"`
	StartTime    string               `json:"startTime"`
	ExpiryTime   string               `json:"expiryTime" validate:"required"`
	Geo          []regionPayload      `json:"geo" validate:"required,min=1"`
	DeliveryTime *deliveryTimePayload `json:"deliveryTime"`
	Events       []regionEventPayload `json:"event"`
}

type regionPayload struct {
	Identifier string  `json:"id" validate:"required"`
	Latitude   float64 `json:"latitude"`
	Longitude  float64 `json:"longitude"`
	Radius     float64 `json:"radiusInMeters"`
	Title      string  `json:"title"`
}

type deliveryTimePayload struct {
	Days         string `json:"days"`
	TimeInterval string `json:"timeInterval"`
}

type regionEventPayload struct {
	Type           string `json:"type" validate:"required,oneof=entry exit"`
	Limit          int    `json:"limit"`
	TimeoutMinutes int    `json:"timeoutInMinutes"`
}

// ParseCampaign decodes a geofencing push payload into a Campaign. A payload
// without a campaign id, expiry time or at least one well-formed region is
// rejected; the caller is expected to drop it and move on.
func ParseCampaign(data []byte, now time.Time) (*Campaign, error) {
	var payload campaignPayload
	if err := json.Unmarshal(data, &payload); err != nil {
		return nil, utils.NewParseError("malformed geofencing payload", err)
	}
	if err := payloadValidator.Struct(&payload); err != nil {
		return nil, utils.NewParseError("incomplete geofencing payload", err)
	}
	internal := payload.InternalData

	expiryTime, err := time.Parse(time.RFC3339, internal.ExpiryTime)
	if err != nil {
		return nil, utils.NewParseError("invalid expiry time", err)
	}
	startTime := now
	if internal.StartTime != "" {
		startTime, err = time.Parse(time.RFC3339, internal.StartTime)
		if err != nil {
			return nil, utils.NewParseError("invalid start time", err)
		}
	}

	regions := make([]Region, 0, len(internal.Geo))
	for _, rp := range internal.Geo {
		if rp.Radius <= 0 || !utils.IsValidCoordinate(rp.Latitude, rp.Longitude) {
			continue
		}
		regions = append(regions, Region{
			Identifier: rp.Identifier,
			CampaignID: internal.CampaignID,
			Latitude:   rp.Latitude,
			Longitude:  rp.Longitude,
			Radius:     max(MinimumRegionRadius, rp.Radius),
			Title:      rp.Title,
		})
	}
	if len(regions) == 0 {
		return nil, utils.NewParseError("geofencing payload carries no usable regions", nil)
	}

	events := []*RegionEvent{DefaultRegionEvent()}
	if len(internal.Events) > 0 {
		events = make([]*RegionEvent, 0, len(internal.Events))
		for _, ep := range internal.Events {
			events = append(events, &RegionEvent{
				Type:           RegionEventType(ep.Type),
				Limit:          ep.Limit,
				TimeoutMinutes: ep.TimeoutMinutes,
			})
		}
	}

	var deliveryTime *DeliveryTime
	if internal.DeliveryTime != nil {
		deliveryTime = parseDeliveryTime(internal.DeliveryTime)
	}

	return &Campaign{
		CampaignID:   internal.CampaignID,
		MessageID:    payload.MessageID,
		Title:        payload.APS.Alert.Title,
		Body:         payload.APS.Alert.Body,
		Sound:        payload.APS.Sound,
		Regions:      regions,
		StartTime:    startTime,
		ExpiryTime:   expiryTime,
		DeliveryTime: deliveryTime,
		Events:       events,
		State:        CampaignStateActive,
		CreatedAt:    now,
		UpdatedAt:    now,
	}, nil
}

func parseDeliveryTime(p *deliveryTimePayload) *DeliveryTime {
	dt := &DeliveryTime{}
	if p.Days != "" {
		for _, part := range strings.Split(p.Days, ",") {
			day, err := strconv.Atoi(strings.TrimSpace(part))
			if err != nil || day < 1 || day > 7 {
				continue
			}
			dt.Days = append(dt.Days, day)
		}
	}
	if parts := strings.Split(p.TimeInterval, timeIntervalSeparator); len(parts) == 2 {
		dt.TimeInterval = &DeliveryTimeInterval{FromTime: parts[0], ToTime: parts[1]}
	}
	if len(dt.Days) == 0 && dt.TimeInterval == nil {
		return nil
	}
	return dt
}
