// Package shipping は配送プロバイダーAPIとの連携を提供する。
package shipping

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/hitoshi/bijou/internal/metrics"
	"github.com/hitoshi/bijou/internal/model"
)

const providerName = "shipping"

// Client は配送ラベル作成APIのクライアント。
type Client struct {
	httpClient *http.Client
	baseURL    string
	apiKey     string
	metrics    metrics.MetricsCollector
}

// NewClient はClientを生成する。baseURLは末尾スラッシュなしのAPIルート。
func NewClient(baseURL, apiKey string, timeout time.Duration, mc metrics.MetricsCollector) *Client {
	if timeout == 0 {
		timeout = 10 * time.Second
	}
	if mc == nil {
		mc = metrics.Nop{}
	}
	return &Client{
		httpClient: &http.Client{Timeout: timeout},
		baseURL:    baseURL,
		apiKey:     apiKey,
		metrics:    mc,
	}
}

type shipmentItem struct {
	Name     string `json:"name"`
	Quantity int    `json:"quantity"`
}

type shipmentRequest struct {
	Reference     string                `json:"reference"`
	Recipient     recipient             `json:"recipient"`
	Items         []shipmentItem        `json:"items"`
	DeclaredValue string                `json:"declared_value"`
	Address       model.ShippingAddress `json:"address"`
}

type recipient struct {
	Name  string `json:"name"`
	Phone string `json:"phone"`
	Email string `json:"email"`
}

type shipmentResponse struct {
	ShipmentID     string `json:"shipment_id"`
	TrackingNumber string `json:"tracking_number"`
	TrackingURL    string `json:"tracking_url"`
	Carrier        string `json:"carrier"`
	Message        string `json:"message"`
}

// CreateShipment は注文の配送ラベルを作成し、追跡情報を返す。
// 2xx以外の応答はProviderRejected、通信失敗はProviderUnavailableとして返す。再試行は行わない。
func (c *Client) CreateShipment(ctx context.Context, order *model.Order, recipientEmail string) (*model.Shipment, error) {
	payload := shipmentRequest{
		Reference: order.ID,
		Recipient: recipient{
			Name:  order.ShippingAddress.FullName,
			Phone: order.ShippingAddress.Phone,
			Email: recipientEmail,
		},
		DeclaredValue: order.TotalPrice.StringFixed(2),
		Address:       order.ShippingAddress,
	}
	for _, it := range order.Items {
		payload.Items = append(payload.Items, shipmentItem{Name: it.Name, Quantity: it.Quantity})
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("配送リクエストのエンコードに失敗しました: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/shipments", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("HTTPリクエストの作成に失敗しました: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.apiKey)

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		c.metrics.RecordProviderCall(providerName, metrics.OutcomeUnavailable, time.Since(start))
		slog.Error("shipping provider call failed",
			slog.String("order_id", order.ID),
			slog.String("error", err.Error()),
		)
		return nil, model.NewProviderUnavailableError(providerName)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 64*1024))
	if err != nil {
		c.metrics.RecordProviderCall(providerName, metrics.OutcomeUnavailable, time.Since(start))
		return nil, model.NewProviderUnavailableError(providerName)
	}

	var out shipmentResponse
	decodeErr := json.Unmarshal(raw, &out)

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		c.metrics.RecordProviderCall(providerName, metrics.OutcomeRejected, time.Since(start))
		slog.Warn("shipping provider rejected shipment",
			slog.String("order_id", order.ID),
			slog.Int("http_status", resp.StatusCode),
			slog.String("message", out.Message),
		)
		return nil, &model.APIError{
			Code:     model.ErrCodeProviderRejected,
			Message:  fmt.Sprintf("配送プロバイダーが要求を拒否しました（HTTP %d）: %s", resp.StatusCode, out.Message),
			Category: "shipping",
			Action:   "配送先情報を確認して再度お試しください。",
		}
	}
	if decodeErr == nil && out.TrackingNumber == "" {
		decodeErr = errors.New("missing tracking number")
	}
	if decodeErr != nil {
		c.metrics.RecordProviderCall(providerName, metrics.OutcomeUnavailable, time.Since(start))
		slog.Error("shipping provider returned malformed body",
			slog.String("order_id", order.ID),
			slog.String("error", decodeErr.Error()),
		)
		return nil, model.NewProviderUnavailableError(providerName)
	}

	c.metrics.RecordProviderCall(providerName, metrics.OutcomeOK, time.Since(start))
	return &model.Shipment{
		ShipmentID:     out.ShipmentID,
		TrackingNumber: out.TrackingNumber,
		TrackingURL:    out.TrackingURL,
		Carrier:        out.Carrier,
	}, nil
}
