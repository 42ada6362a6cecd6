package backend

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"scribe-console/internal/domain"
)

// DeleteUser removes the user with the given id.
func (c *Client) DeleteUser(ctx context.Context, token, id string) error {
	if id == "" {
		return fmt.Errorf("%w: user id is required", domain.ErrInvalidInput)
	}
	return c.do(ctx, "delete_user", http.MethodDelete, "/api/users/"+url.PathEscape(id), token, nil, nil, nil)
}

// SendNotification sends req now, or schedules it when ScheduledAt is set.
func (c *Client) SendNotification(ctx context.Context, token string, req domain.NotificationRequest) (domain.NotificationReceipt, error) {
	var receipt domain.NotificationReceipt
	if err := c.do(ctx, "send_notification", http.MethodPost, "/api/notifications", token, nil, req, &receipt); err != nil {
		return domain.NotificationReceipt{}, err
	}
	if receipt.Status == "" {
		receipt.Status = domain.NotificationSent
		if req.ScheduledAt != nil {
			receipt.Status = domain.NotificationScheduled
		}
	}
	return receipt, nil
}

type recipientsResponse struct {
	Count int `json:"count"`
}

// NotificationRecipients counts who a notification for audience would reach.
// userIDs narrows AudienceUser.
func (c *Client) NotificationRecipients(ctx context.Context, token, audience string, userIDs []string) (int, error) {
	q := url.Values{}
	q.Set("audience", audience)
	if audience == domain.AudienceUser && len(userIDs) > 0 {
		q.Set("targetUserIds", strings.Join(userIDs, ","))
	}

	var resp recipientsResponse
	if err := c.do(ctx, "notification_recipients", http.MethodGet, "/api/notifications/recipients", token, q, nil, &resp); err != nil {
		return 0, err
	}
	return resp.Count, nil
}

type apkHistoryResponse struct {
	Success bool                `json:"success"`
	Data    []domain.APKRelease `json:"data"`
}

// PublicAPKHistory lists published app builds, newest first. The endpoint is
// public; no token is sent.
func (c *Client) PublicAPKHistory(ctx context.Context) ([]domain.APKRelease, error) {
	var resp apkHistoryResponse
	if err := c.do(ctx, "apk_history", http.MethodGet, "/api/maintenance/public-apk-history", "", nil, nil, &resp); err != nil {
		return nil, err
	}
	if !resp.Success {
		return nil, fmt.Errorf("%w: apk history not successful", ErrInvalidResponse)
	}
	if resp.Data == nil {
		return []domain.APKRelease{}, nil
	}
	return resp.Data, nil
}
