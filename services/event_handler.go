package services

import (
	"github.com/sirupsen/logrus"

	"geopush/models"
)

// DefaultGeoEventHandler surfaces every generated geo message as a local
// notification log line. Host applications replace it to route messages into
// their own notification stack.
type DefaultGeoEventHandler struct{}

func (DefaultGeoEventHandler) OnGeoEvent(notification models.GeoNotification) {
	logrus.WithFields(logrus.Fields{
		"messageId":  notification.MessageID,
		"campaignId": notification.CampaignID,
		"region":     notification.Region.DataSourceIdentifier(),
		"eventType":  notification.EventType,
	}).Info("Geo event: ", notification.Body)
}
