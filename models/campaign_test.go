package models

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"geopush/utils"
)

const fullPayload = `{
	"messageId": "m1",
	"aps": {"alert": {"title": "Lunch deal", "body": "You are close!"}, "sound": "default"},
	"internalData": {
		"campaignId": "camp1",
		"startTime": "2026-08-01T00:00:00Z",
		"expiryTime": "2026-12-01T00:00:00Z",
		"geo": [
			{"id": "zg", "latitude": 45.81, "longitude": 15.98, "radiusInMeters": 50, "title": "Zagreb"},
			{"id": "bad", "latitude": 45.81, "longitude": 15.98, "radiusInMeters": 0}
		],
		"deliveryTime": {"days": "1,2,3", "timeInterval": "0900/1700"},
		"event": [{"type": "entry", "limit": 2, "timeoutInMinutes": 30}]
	}
}`

func TestParseCampaign(t *testing.T) {
	now := time.Date(2026, 8, 30, 12, 0, 0, 0, time.UTC)

	campaign, err := ParseCampaign([]byte(fullPayload), now)
	require.NoError(t, err)

	assert.Equal(t, "camp1", campaign.CampaignID)
	assert.Equal(t, "m1", campaign.MessageID)
	assert.Equal(t, "Lunch deal", campaign.Title)
	assert.Equal(t, "You are close!", campaign.Body)
	assert.Equal(t, "default", campaign.Sound)
	assert.Equal(t, CampaignStateActive, campaign.State)
	assert.Equal(t, time.Date(2026, 8, 1, 0, 0, 0, 0, time.UTC), campaign.StartTime)
	assert.Equal(t, time.Date(2026, 12, 1, 0, 0, 0, 0, time.UTC), campaign.ExpiryTime)

	require.Len(t, campaign.Regions, 1, "non-positive radius drops the region")
	region := campaign.Regions[0]
	assert.Equal(t, "zg", region.Identifier)
	assert.Equal(t, "camp1", region.CampaignID)
	assert.Equal(t, "camp1_zg", region.DataSourceIdentifier())
	assert.Equal(t, MinimumRegionRadius, region.Radius, "radius clamps up to the platform minimum")

	require.Len(t, campaign.Events, 1)
	assert.Equal(t, RegionEventEntry, campaign.Events[0].Type)
	assert.Equal(t, 2, campaign.Events[0].Limit)
	assert.Equal(t, 30, campaign.Events[0].TimeoutMinutes)

	require.NotNil(t, campaign.DeliveryTime)
	assert.Equal(t, []int{1, 2, 3}, campaign.DeliveryTime.Days)
	require.NotNil(t, campaign.DeliveryTime.TimeInterval)
	assert.Equal(t, "0900", campaign.DeliveryTime.TimeInterval.FromTime)
	assert.Equal(t, "1700", campaign.DeliveryTime.TimeInterval.ToTime)
}

func TestParseCampaignRejectsIncompletePayloads(t *testing.T) {
	tests := []struct {
		name    string
		payload string
	}{
		{"not json", `{{`},
		{"no internal data", `{"messageId": "m1"}`},
		{
			"no campaign id",
			`{"internalData": {"expiryTime": "2026-12-01T00:00:00Z", "geo": [{"id": "a", "latitude": 1, "longitude": 1, "radiusInMeters": 200}]}}`,
		},
		{
			"no expiry",
			`{"internalData": {"campaignId": "c", "geo": [{"id": "a", "latitude": 1, "longitude": 1, "radiusInMeters": 200}]}}`,
		},
		{
			"bad expiry format",
			`{"internalData": {"campaignId": "c", "expiryTime": "tomorrow", "geo": [{"id": "a", "latitude": 1, "longitude": 1, "radiusInMeters": 200}]}}`,
		},
		{
			"no regions",
			`{"internalData": {"campaignId": "c", "expiryTime": "2026-12-01T00:00:00Z", "geo": []}}`,
		},
		{
			"only unusable regions",
			`{"internalData": {"campaignId": "c", "expiryTime": "2026-12-01T00:00:00Z", "geo": [{"id": "a", "latitude": 1, "longitude": 1, "radiusInMeters": -5}]}}`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParseCampaign([]byte(tt.payload), time.Now())
			require.Error(t, err)
			serviceErr, ok := utils.GetServiceError(err)
			require.True(t, ok)
			assert.Equal(t, utils.ErrCodeParse, serviceErr.Code)
		})
	}
}

func TestParseCampaignDefaults(t *testing.T) {
	now := time.Date(2026, 8, 30, 12, 0, 0, 0, time.UTC)
	payload := `{"internalData": {"campaignId": "c", "expiryTime": "2026-12-01T00:00:00Z",
		"geo": [{"id": "a", "latitude": 1, "longitude": 1, "radiusInMeters": 200}]}}`

	campaign, err := ParseCampaign([]byte(payload), now)
	require.NoError(t, err)

	assert.Equal(t, now, campaign.StartTime, "missing start time defaults to now")
	assert.Nil(t, campaign.DeliveryTime)
	require.Len(t, campaign.Events, 1)
	assert.Equal(t, RegionEventEntry, campaign.Events[0].Type)
	assert.Equal(t, 1, campaign.Events[0].Limit)
	assert.Equal(t, 0, campaign.Events[0].TimeoutMinutes)
	assert.Equal(t, 200.0, campaign.Regions[0].Radius)
}

func TestRegionEventOccurrenceLimit(t *testing.T) {
	t0 := time.Date(2026, 8, 30, 12, 0, 0, 0, time.UTC)
	event := &RegionEvent{Type: RegionEventEntry, Limit: 1}

	require.True(t, event.IsValidNow(t0))
	event.Occur(t0)
	assert.Equal(t, 1, event.OccurringCounter)
	assert.False(t, event.IsValidNow(t0.Add(time.Minute)), "limit of one is exhausted after one occurrence")
	assert.False(t, event.IsValidInGeneral())
}

func TestRegionEventTimeout(t *testing.T) {
	t0 := time.Date(2026, 8, 30, 12, 0, 0, 0, time.UTC)
	event := &RegionEvent{Type: RegionEventEntry, Limit: 0, TimeoutMinutes: 30}

	event.Occur(t0)
	assert.False(t, event.IsValidNow(t0.Add(29*time.Minute)))
	assert.True(t, event.IsValidNow(t0.Add(30*time.Minute)))
	assert.True(t, event.IsValidInGeneral(), "limit zero never exhausts")
}

func TestCampaignLiveness(t *testing.T) {
	now := time.Date(2026, 8, 30, 12, 0, 0, 0, time.UTC)

	tests := []struct {
		name   string
		mutate func(c *Campaign)
		live   bool
	}{
		{"active and unexpired", func(c *Campaign) {}, true},
		{"expired despite active state", func(c *Campaign) { c.ExpiryTime = now.Add(-time.Second) }, false},
		{"finished", func(c *Campaign) { c.State = CampaignStateFinished }, false},
		{"suspended", func(c *Campaign) { c.State = CampaignStateSuspended }, false},
		{"all rules exhausted", func(c *Campaign) { c.Events[0].OccurringCounter = 1 }, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			campaign := &Campaign{
				CampaignID: "c1",
				ExpiryTime: now.Add(time.Hour),
				Events:     []*RegionEvent{DefaultRegionEvent()},
				State:      CampaignStateActive,
			}
			tt.mutate(campaign)
			assert.Equal(t, tt.live, campaign.IsLive(now))
		})
	}
}

func TestIsAppropriateDeliveryTimeRequiresStart(t *testing.T) {
	now := time.Date(2026, 8, 30, 12, 0, 0, 0, time.UTC)
	campaign := &Campaign{
		CampaignID: "c1",
		StartTime:  now.Add(time.Hour),
		ExpiryTime: now.Add(48 * time.Hour),
		Events:     []*RegionEvent{DefaultRegionEvent()},
		State:      CampaignStateActive,
	}

	assert.False(t, campaign.IsAppropriateDeliveryTime(RegionEventEntry, now))
	assert.True(t, campaign.IsAppropriateDeliveryTime(RegionEventEntry, now.Add(time.Hour)))
}

func TestDeliveryTimeIsNow(t *testing.T) {
	monday10 := time.Date(2026, 1, 5, 10, 0, 0, 0, time.UTC)
	monday18 := time.Date(2026, 1, 5, 18, 0, 0, 0, time.UTC)
	tuesday10 := time.Date(2026, 1, 6, 10, 0, 0, 0, time.UTC)

	window := &DeliveryTime{
		Days:         []int{1},
		TimeInterval: &DeliveryTimeInterval{FromTime: "0900", ToTime: "1700"},
	}
	assert.True(t, window.IsNow(monday10))
	assert.False(t, window.IsNow(monday18))
	assert.False(t, window.IsNow(tuesday10))

	allDays := &DeliveryTime{TimeInterval: &DeliveryTimeInterval{FromTime: "0900", ToTime: "1700"}}
	assert.True(t, allDays.IsNow(tuesday10), "empty day set means every day")
}

func TestDeliveryTimeIntervalWrapsPastMidnight(t *testing.T) {
	overnight := &DeliveryTimeInterval{FromTime: "2200", ToTime: "0600"}

	assert.True(t, overnight.IsNow(time.Date(2026, 1, 5, 23, 0, 0, 0, time.UTC)))
	assert.True(t, overnight.IsNow(time.Date(2026, 1, 5, 5, 30, 0, 0, time.UTC)))
	assert.False(t, overnight.IsNow(time.Date(2026, 1, 5, 12, 0, 0, 0, time.UTC)))
}

func TestISOWeekday(t *testing.T) {
	assert.Equal(t, 1, ISOWeekday(time.Date(2026, 1, 5, 0, 0, 0, 0, time.UTC)))  // Monday
	assert.Equal(t, 7, ISOWeekday(time.Date(2026, 1, 4, 0, 0, 0, 0, time.UTC)))  // Sunday
	assert.Equal(t, 6, ISOWeekday(time.Date(2026, 1, 10, 0, 0, 0, 0, time.UTC))) // Saturday
}
