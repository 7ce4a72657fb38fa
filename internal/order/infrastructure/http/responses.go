package http

import (
	"time"

	invdom "github.com/emekauja/shopflow/internal/inventory/domain"
	"github.com/emekauja/shopflow/internal/order/application"
	"github.com/emekauja/shopflow/internal/order/domain"
)

type orderResp struct {
	ID                string         `json:"id"`
	OrderNumber       string         `json:"order_number"`
	Customer          customerResp   `json:"customer"`
	Items             []lineItemResp `json:"items"`
	SubtotalCents     int64          `json:"subtotal_cents"`
	TotalCents        int64          `json:"total_cents"`
	PaymentStatus     string         `json:"payment_status"`
	FulfillmentStatus string         `json:"fulfillment_status"`
	Notes             []noteResp     `json:"notes,omitempty"`
	CreatedAt         time.Time      `json:"created_at"`
}

type customerResp struct {
	Name    string `json:"name"`
	Phone   string `json:"phone,omitempty"`
	Address string `json:"address,omitempty"`
	Region  string `json:"region"`
}

type lineItemResp struct {
	ProductID      string `json:"product_id"`
	Quantity       int    `json:"quantity"`
	UnitPriceCents int64  `json:"unit_price_cents"`
}

type noteResp struct {
	Actor string    `json:"actor"`
	Text  string    `json:"text"`
	At    time.Time `json:"at"`
}

type createOrderResp struct {
	Order         orderResp          `json:"order"`
	Replayed      bool               `json:"replayed"`
	StockWarnings []stockWarningResp `json:"stock_warnings,omitempty"`
}

type stockWarningResp struct {
	ProductID string `json:"product_id"`
	Requested int    `json:"requested"`
	Reason    string `json:"reason"`
}

type stockResp struct {
	ID              string     `json:"id"`
	ProductID       string     `json:"product_id"`
	CurrentStock    int        `json:"current_stock"`
	MinimumStock    int        `json:"minimum_stock"`
	MaximumStock    int        `json:"maximum_stock"`
	AlertThreshold  int        `json:"alert_threshold"`
	AlertFrequency  string     `json:"alert_frequency"`
	Status          string     `json:"status"`
	LastAlertSentAt *time.Time `json:"last_alert_sent_at,omitempty"`
	LastRestockedAt *time.Time `json:"last_restocked_at,omitempty"`
	Active          bool       `json:"active"`
}

func orderResponse(o domain.Order) orderResp {
	resp := orderResp{
		ID:          o.ID,
		OrderNumber: o.OrderNumber,
		Customer: customerResp{
			Name:    o.Customer.Name,
			Phone:   o.Customer.Phone,
			Address: o.Customer.Address,
			Region:  o.Customer.Region,
		},
		SubtotalCents:     o.SubtotalCents,
		TotalCents:        o.TotalCents,
		PaymentStatus:     string(o.PaymentStatus),
		FulfillmentStatus: string(o.FulfillmentStatus),
		CreatedAt:         o.CreatedAt,
	}
	for _, item := range o.Items {
		resp.Items = append(resp.Items, lineItemResp{
			ProductID:      item.ProductID,
			Quantity:       item.Quantity,
			UnitPriceCents: item.UnitPriceCents,
		})
	}
	for _, n := range o.Notes {
		resp.Notes = append(resp.Notes, noteResp{Actor: n.Actor, Text: n.Text, At: n.At})
	}
	return resp
}

func createOrderResponse(res application.CreateOrderResult) createOrderResp {
	resp := createOrderResp{
		Order:    orderResponse(res.Order),
		Replayed: res.Replayed,
	}
	for _, w := range res.StockWarnings {
		resp.StockWarnings = append(resp.StockWarnings, stockWarningResp{
			ProductID: w.ProductID,
			Requested: w.Requested,
			Reason:    w.Reason,
		})
	}
	return resp
}

func stockResponse(rec invdom.StockRecord) stockResp {
	return stockResp{
		ID:              rec.ID,
		ProductID:       rec.ProductID,
		CurrentStock:    rec.CurrentStock,
		MinimumStock:    rec.MinimumStock,
		MaximumStock:    rec.MaximumStock,
		AlertThreshold:  rec.AlertThreshold,
		AlertFrequency:  string(rec.AlertFrequency),
		Status:          string(invdom.Classify(rec)),
		LastAlertSentAt: rec.LastAlertSentAt,
		LastRestockedAt: rec.LastRestockedAt,
		Active:          rec.Active,
	}
}
