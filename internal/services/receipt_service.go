package services

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"time"

	"findixi/internal/models"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
	"github.com/shopspring/decimal"
)

// ReceiptStore keeps a JSON snapshot of every created order.
type ReceiptStore interface {
	SaveReceipt(ctx context.Context, receipt *Receipt) error
	EnsureBucketExists(ctx context.Context) error
}

// Receipt is the stored snapshot: the order summary plus the priced lines.
type Receipt struct {
	OrderID       int64           `json:"order_id"`
	MerchantID    int64           `json:"idComercio"`
	Mode          string          `json:"mode"`
	Table         string          `json:"mesa,omitempty"`
	CloverOrderID string          `json:"clover_order_id,omitempty"`
	CheckoutURL   string          `json:"checkout_url,omitempty"`
	Subtotal      decimal.Decimal `json:"subtotal"`
	Tax           decimal.Decimal `json:"tax"`
	Total         decimal.Decimal `json:"total"`
	Lines         []ReceiptLine   `json:"lines"`
	CreatedAt     time.Time       `json:"created_at"`
}

type ReceiptLine struct {
	ProductID int64           `json:"idProducto"`
	Name      string          `json:"nombre"`
	Quantity  int             `json:"qty"`
	UnitPrice decimal.Decimal `json:"unit_price"`
	Note      string          `json:"nota,omitempty"`
	Modifiers string          `json:"modifiers,omitempty"`
}

// ObjectName is where the receipt lives in the bucket.
func (r *Receipt) ObjectName() string {
	return fmt.Sprintf("receipts/%d/%d.json", r.MerchantID, r.OrderID)
}

// NewReceipt builds the snapshot for a persisted order.
func NewReceipt(order *models.Order, sub *models.OrderSubmission, cart *PricedCart, now time.Time) *Receipt {
	receipt := &Receipt{
		OrderID:    order.ID,
		MerchantID: sub.MerchantID,
		Mode:       sub.Mode,
		Table:      sub.Table,
		Subtotal:   cart.Subtotal(),
		Tax:        cart.Tax(),
		Total:      cart.Total(),
		CreatedAt:  now.UTC(),
	}
	if order.CloverOrderID != nil {
		receipt.CloverOrderID = *order.CloverOrderID
	}
	if order.CheckoutURL != nil {
		receipt.CheckoutURL = *order.CheckoutURL
	}
	for i := range cart.Lines {
		line := &cart.Lines[i]
		receipt.Lines = append(receipt.Lines, ReceiptLine{
			ProductID: line.Product.ID,
			Name:      line.Product.Name,
			Quantity:  line.Item.Quantity,
			UnitPrice: line.UnitPrice(),
			Note:      line.Item.Note,
			Modifiers: ModifierNote(line.Modifiers),
		})
	}
	return receipt
}

type minioReceiptStore struct {
	client *minio.Client
	bucket string
}

func NewMinioReceiptStore(endpoint, accessKey, secretKey string, useSSL bool, bucket string) (ReceiptStore, error) {
	client, err := minio.New(endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(accessKey, secretKey, ""),
		Secure: useSSL,
	})
	if err != nil {
		return nil, err
	}
	return &minioReceiptStore{client: client, bucket: bucket}, nil
}

func (m *minioReceiptStore) SaveReceipt(ctx context.Context, receipt *Receipt) error {
	body, err := json.Marshal(receipt)
	if err != nil {
		return fmt.Errorf("failed to encode receipt: %w", err)
	}
	_, err = m.client.PutObject(ctx, m.bucket, receipt.ObjectName(), bytes.NewReader(body), int64(len(body)), minio.PutObjectOptions{
		ContentType: "application/json",
	})
	return err
}

func (m *minioReceiptStore) EnsureBucketExists(ctx context.Context) error {
	found, err := m.client.BucketExists(ctx, m.bucket)
	if err != nil {
		return err
	}
	if !found {
		return m.client.MakeBucket(ctx, m.bucket, minio.MakeBucketOptions{})
	}
	return nil
}
