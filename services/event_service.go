package services

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"geopush/interfaces"
	"geopush/models"
	"geopush/utils"
	"geopush/workers"
)

// EventService is the durable event pipeline: it persists crossings before
// any network attempt, batches everything pending into one report, merges the
// server's lifecycle response back into the store and generates the local
// messages the user sees. All of it runs on its own serialized queue so a
// slow report never blocks crossing handling.
type EventService struct {
	campaignStore interfaces.CampaignStore
	eventStore    interfaces.EventStore
	transport     interfaces.EventTransport
	installation  interfaces.InstallationResolver
	handler       interfaces.GeoEventHandler
	queue         *workers.TaskQueue

	mu     sync.Mutex
	ctx    context.Context
	cancel context.CancelFunc

	now func() time.Time
}

func NewEventService(
	campaignStore interfaces.CampaignStore,
	eventStore interfaces.EventStore,
	transport interfaces.EventTransport,
	installation interfaces.InstallationResolver,
	handler interfaces.GeoEventHandler,
) *EventService {
	if handler == nil {
		handler = DefaultGeoEventHandler{}
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &EventService{
		campaignStore: campaignStore,
		eventStore:    eventStore,
		transport:     transport,
		installation:  installation,
		handler:       handler,
		queue:         workers.NewTaskQueue("geo-events"),
		ctx:           ctx,
		cancel:        cancel,
		now:           time.Now,
	}
}

// ReportCrossing persists the crossing durably, runs a reporting pass and
// resolves the campaign state the server's response dictates. The completion
// receives Active when the response carries no transition for the campaign
// or the report could not be delivered.
func (es *EventService) ReportCrossing(campaign *models.Campaign, region models.Region, eventType models.RegionEventType, completion func(models.CampaignState)) {
	es.queue.Async(func() {
		ctx := es.currentContext()
		now := es.now()
		event := &models.PendingEvent{
			CampaignID:       campaign.CampaignID,
			RegionIdentifier: region.Identifier,
			EventType:        eventType,
			OccurredAt:       now,
			MessageID:        campaign.MessageID,
			SDKMessageID:     uuid.NewString(),
			CreatedAt:        now,
		}
		if err := es.eventStore.Create(ctx, event); err != nil {
			logrus.Error("Failed to persist crossing event: ", err)
			if completion != nil {
				completion(models.CampaignStateActive)
			}
			return
		}

		response, _ := es.reportPass(ctx)

		state := models.CampaignStateActive
		if response != nil {
			switch {
			case response.IsSuspended(campaign.CampaignID):
				state = models.CampaignStateSuspended
			case response.IsFinished(campaign.CampaignID):
				state = models.CampaignStateFinished
			}
		}
		if completion != nil {
			completion(state)
		}
	})
}

// SyncWithServer runs an opportunistic reporting pass. Cheap to no-op when
// nothing is pending.
func (es *EventService) SyncWithServer(completion func(*models.EventReportResponse, error)) {
	es.queue.Async(func() {
		response, err := es.reportPass(es.currentContext())
		if completion != nil {
			completion(response, err)
		}
	})
}

// reportPass batches every pending event into a single report. Skipped
// without error when the installation has no push registration id yet or
// nothing is pending.
func (es *EventService) reportPass(ctx context.Context) (*models.EventReportResponse, error) {
	pushRegistrationID := es.installation.PushRegistrationID()
	if pushRegistrationID == "" {
		logrus.Debug("No push registration id yet, skipping geo event report")
		return nil, nil
	}

	events, err := es.eventStore.FindAll(ctx)
	if err != nil {
		logrus.Error("Failed to load pending geo events: ", err)
		return nil, err
	}
	if len(events) == 0 {
		return nil, nil
	}

	campaignsByID, snapshots, err := es.loadCampaigns(ctx, events)
	if err != nil {
		logrus.Error("Failed to load campaigns for pending geo events: ", err)
		return nil, err
	}
	if len(snapshots) == 0 {
		logrus.Debug("No campaign records for pending geo events, skipping report")
		return nil, nil
	}

	now := es.now()
	reports := make([]models.EventReport, 0, len(events))
	for _, event := range events {
		reports = append(reports, event.Report(now))
	}

	logrus.Debugf("Reporting %d geo events from %d campaigns", len(reports), len(snapshots))
	response, err := es.transport.ReportEvents(ctx, pushRegistrationID, reports, snapshots)
	if err != nil {
		logrus.Warn("Geo event report failed: ", err)
		es.handleReportFailure(ctx, events, campaignsByID)
		return nil, err
	}

	es.mergeResponse(ctx, response, events, campaignsByID)
	return response, nil
}

func (es *EventService) loadCampaigns(ctx context.Context, events []*models.PendingEvent) (map[string]*models.Campaign, []models.CampaignSnapshot, error) {
	idSet := make(map[string]bool)
	ids := make([]string, 0, len(events))
	for _, event := range events {
		if !idSet[event.CampaignID] {
			idSet[event.CampaignID] = true
			ids = append(ids, event.CampaignID)
		}
	}

	campaigns, err := es.campaignStore.FindByCampaignIDs(ctx, ids)
	if err != nil {
		return nil, nil, err
	}

	byID := make(map[string]*models.Campaign, len(campaigns))
	snapshots := make([]models.CampaignSnapshot, 0, len(campaigns))
	for _, campaign := range campaigns {
		byID[campaign.CampaignID] = campaign
		snapshots = append(snapshots, campaign.Snapshot())
	}
	return byID, snapshots, nil
}

// handleReportFailure generates a message right away with the sdk-generated
// placeholder id so the user is not kept waiting for reachability. The event
// stays pending and is replayed on the next pass; the server tolerates the
// resubmission.
func (es *EventService) handleReportFailure(ctx context.Context, events []*models.PendingEvent, campaignsByID map[string]*models.Campaign) {
	for _, event := range events {
		if event.MessageShown {
			continue
		}
		campaign := campaignsByID[event.CampaignID]
		if campaign == nil || campaign.State != models.CampaignStateActive {
			continue
		}
		es.generateMessage(event, campaign, event.SDKMessageID)
		event.MessageShown = true
		if err := es.eventStore.MarkShown(ctx, event.SDKMessageID); err != nil {
			logrus.Error("Failed to mark pending event shown: ", err)
		}
	}
}

// mergeResponse applies the server-driven lifecycle transitions, generates
// messages with real server ids for events on still-active campaigns that
// were not already shown locally, and deletes the reported events.
func (es *EventService) mergeResponse(ctx context.Context, response *models.EventReportResponse, events []*models.PendingEvent, campaignsByID map[string]*models.Campaign) {
	for _, campaignID := range response.FinishedCampaignIDs {
		if err := es.campaignStore.UpdateState(ctx, campaignID, models.CampaignStateFinished); err != nil {
			logrus.Error("Failed to finish campaign ", campaignID, ": ", err)
		}
	}

	for _, event := range events {
		realID, mapped := response.MessageIDs[event.SDKMessageID]
		if mapped && !response.IsTerminal(event.CampaignID) && !event.MessageShown {
			if campaign := campaignsByID[event.CampaignID]; campaign != nil {
				es.generateMessage(event, campaign, realID)
			}
		}
		if err := es.eventStore.Delete(ctx, event.SDKMessageID); err != nil {
			logrus.Error("Failed to delete reported event: ", err)
		}
	}
}

func (es *EventService) generateMessage(event *models.PendingEvent, campaign *models.Campaign, messageID string) {
	region := campaign.RegionFor(event.RegionIdentifier)
	if region == nil {
		return
	}
	es.handler.OnGeoEvent(models.GeoNotification{
		MessageID:   messageID,
		CampaignID:  campaign.CampaignID,
		Region:      *region,
		EventType:   event.EventType,
		Title:       campaign.Title,
		Body:        campaign.Body,
		Sound:       campaign.Sound,
		GeneratedAt: es.now(),
	})
}

// Cleanup deletes every geofencing campaign and pending-event record,
// independent of the in-memory datasource state.
func (es *EventService) Cleanup(ctx context.Context) error {
	var err error
	ok := es.queue.Do(func() {
		if err = es.campaignStore.DeleteAll(ctx); err != nil {
			return
		}
		err = es.eventStore.DeleteAll(ctx)
	})
	if !ok {
		return utils.NewNotRunningError("cleanup")
	}
	return err
}

// CancelOutstanding aborts in-flight pipeline operations; their results are
// discarded. The pipeline stays usable for later passes.
func (es *EventService) CancelOutstanding() {
	es.mu.Lock()
	defer es.mu.Unlock()
	es.cancel()
	es.ctx, es.cancel = context.WithCancel(context.Background())
}

// Stop shuts the pipeline down permanently.
func (es *EventService) Stop() {
	es.mu.Lock()
	es.cancel()
	es.mu.Unlock()
	es.queue.Stop()
}

func (es *EventService) currentContext() context.Context {
	es.mu.Lock()
	defer es.mu.Unlock()
	return es.ctx
}
