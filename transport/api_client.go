package transport

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/sirupsen/logrus"

	"geopush/models"
	"geopush/utils"
)

const (
	// Platform identifies this SDK family to the backend.
	Platform = "GoSDK"

	eventReportPath = "/mobile/4/geo/event"
	requestTimeout  = 20 * time.Second
)

// APIClient reports geo event batches to the backend. Requests authenticate
// with the application code; responses carry the server-driven campaign
// lifecycle transitions and the placeholder-to-real message id map.
type APIClient struct {
	baseURL         string
	applicationCode string
	httpClient      *http.Client
}

func NewAPIClient(baseURL, applicationCode string) *APIClient {
	return &APIClient{
		baseURL:         baseURL,
		applicationCode: applicationCode,
		httpClient:      &http.Client{Timeout: requestTimeout},
	}
}

// ReportEvents implements interfaces.EventTransport.
func (c *APIClient) ReportEvents(
	ctx context.Context,
	pushRegistrationID string,
	reports []models.EventReport,
	campaigns []models.CampaignSnapshot,
) (*models.EventReportResponse, error) {
	body, err := json.Marshal(models.EventReportRequest{
		Platform:           Platform,
		PushRegistrationID: pushRegistrationID,
		Reports:            reports,
		Messages:           campaigns,
	})
	if err != nil {
		return nil, utils.NewTransportError("failed to encode event report", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+eventReportPath, bytes.NewReader(body))
	if err != nil {
		return nil, utils.NewTransportError("failed to build event report request", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "App "+c.applicationCode)
	req.Header.Set("pushregistrationid", pushRegistrationID)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, utils.NewTransportError("event report request failed", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		payload, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		logrus.Warnf("Event report rejected with status %d: %s", resp.StatusCode, payload)
		return nil, utils.NewTransportError(
			fmt.Sprintf("event report rejected with status %d", resp.StatusCode), nil)
	}

	var response models.EventReportResponse
	if err := json.NewDecoder(resp.Body).Decode(&response); err != nil {
		return nil, utils.NewTransportError("failed to decode event report response", err)
	}
	return &response, nil
}
