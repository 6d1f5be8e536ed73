package workers

import (
	"context"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"geopush/interfaces"
	"geopush/models"
)

type CleanupWorkerConfig struct {
	// Interval between purge passes.
	Interval time.Duration `json:"interval"`
	// EventRetention bounds how long unreported events are kept. Events are
	// normally deleted right after a successful report; retention only
	// reclaims events whose campaign never became reportable.
	EventRetention time.Duration `json:"eventRetention"`
}

type CleanupWorkerStats struct {
	PassesExecuted  int64     `json:"passesExecuted"`
	PassesFailed    int64     `json:"passesFailed"`
	CampaignsPurged int64     `json:"campaignsPurged"`
	LastCleanupAt   time.Time `json:"lastCleanupAt"`
	StartTime       time.Time `json:"startTime"`
}

// CleanupWorker periodically reclaims terminal campaign records (finished,
// expired, or with every event rule exhausted) and stale pending events.
// The onPurged hook lets the scheduler reload its cache after a purge.
type CleanupWorker struct {
	campaigns interfaces.CampaignStore
	events    interfaces.EventStore
	config    CleanupWorkerConfig
	onPurged  func()

	isRunning bool
	mutex     sync.Mutex

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	stats      CleanupWorkerStats
	statsMutex sync.RWMutex
}

func NewCleanupWorker(campaigns interfaces.CampaignStore, events interfaces.EventStore, config CleanupWorkerConfig, onPurged func()) *CleanupWorker {
	if config.Interval <= 0 {
		config.Interval = time.Hour
	}
	if config.EventRetention <= 0 {
		config.EventRetention = 7 * 24 * time.Hour
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &CleanupWorker{
		campaigns: campaigns,
		events:    events,
		config:    config,
		onPurged:  onPurged,
		ctx:       ctx,
		cancel:    cancel,
		stats:     CleanupWorkerStats{StartTime: time.Now()},
	}
}

func (cw *CleanupWorker) Start() error {
	cw.mutex.Lock()
	defer cw.mutex.Unlock()

	if cw.isRunning {
		return nil
	}
	cw.isRunning = true

	cw.wg.Add(1)
	go cw.loop()

	logrus.Infof("Cleanup worker started, interval %v", cw.config.Interval)
	return nil
}

func (cw *CleanupWorker) Stop() error {
	cw.mutex.Lock()
	defer cw.mutex.Unlock()

	if !cw.isRunning {
		return nil
	}
	cw.cancel()
	cw.isRunning = false
	cw.wg.Wait()

	logrus.Info("Cleanup worker stopped")
	return nil
}

func (cw *CleanupWorker) loop() {
	defer cw.wg.Done()

	ticker := time.NewTicker(cw.config.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			cw.runPass()
		case <-cw.ctx.Done():
			return
		}
	}
}

func (cw *CleanupWorker) runPass() {
	purged, err := cw.purge(cw.ctx, time.Now())

	cw.statsMutex.Lock()
	if err != nil {
		cw.stats.PassesFailed++
	} else {
		cw.stats.PassesExecuted++
		cw.stats.CampaignsPurged += purged
	}
	cw.stats.LastCleanupAt = time.Now()
	cw.statsMutex.Unlock()

	if err != nil {
		logrus.Error("Cleanup pass failed: ", err)
		return
	}
	if purged > 0 && cw.onPurged != nil {
		cw.onPurged()
	}
}

func (cw *CleanupWorker) purge(ctx context.Context, now time.Time) (int64, error) {
	campaigns, err := cw.campaigns.FindAll(ctx)
	if err != nil {
		return 0, err
	}

	var purged int64
	for _, campaign := range campaigns {
		terminal := !now.Before(campaign.ExpiryTime) ||
			!campaign.HasValidEventsInGeneral() ||
			campaign.State == models.CampaignStateFinished
		if !terminal {
			continue
		}
		if err := cw.campaigns.Delete(ctx, campaign.CampaignID); err != nil {
			logrus.Error("Failed to purge campaign ", campaign.CampaignID, ": ", err)
			continue
		}
		purged++
	}
	if purged > 0 {
		logrus.Infof("Purged %d terminal geo campaigns", purged)
	}

	cutoff := now.Add(-cw.config.EventRetention)
	if err := cw.events.DeleteOlderThan(ctx, cutoff); err != nil {
		logrus.Error("Failed to purge stale pending events: ", err)
	}
	return purged, nil
}

func (cw *CleanupWorker) GetStats() CleanupWorkerStats {
	cw.statsMutex.RLock()
	defer cw.statsMutex.RUnlock()
	return cw.stats
}
