package contract

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"time"

	"ms-rental/internal/models"

	"github.com/google/uuid"
	"github.com/skip2/go-qrcode"
)

// Generator issues handover contracts whose QR code carries the encrypted contract terms.
type Generator struct {
	secret []byte
	size   int
}

func NewGenerator(secret string) *Generator {
	hashed := sha256.Sum256([]byte(secret))
	return &Generator{secret: hashed[:], size: 256}
}

func (g *Generator) Issue(order models.RentalOrder, staffID string, signedAt time.Time) (*models.Contract, error) {
	ref := fmt.Sprintf("RC-%d-%s", order.ID, uuid.NewString()[:8])
	payload := models.ContractPayload{
		DocumentRef: ref,
		OrderID:     order.ID,
		RenterID:    order.RenterID,
		VehicleID:   order.VehicleID,
		StaffID:     staffID,
		StartTime:   order.StartTime,
		EndTime:     order.EndTime,
		TotalAmount: order.TotalAmount,
		SignedAt:    signedAt,
	}
	png, err := g.EncodeQR(payload)
	if err != nil {
		return nil, err
	}
	return &models.Contract{
		OrderID:     order.ID,
		StaffID:     staffID,
		SignedAt:    signedAt,
		DocumentRef: ref,
		QRCode:      png,
	}, nil
}

// EncodeQR renders the encrypted payload as a PNG QR code.
func (g *Generator) EncodeQR(payload models.ContractPayload) ([]byte, error) {
	token, err := g.Seal(payload)
	if err != nil {
		return nil, err
	}
	return qrcode.Encode(token, qrcode.Medium, g.size)
}

// Seal encrypts the payload into a URL-safe token.
func (g *Generator) Seal(payload models.ContractPayload) (string, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return "", err
	}
	block, err := aes.NewCipher(g.secret)
	if err != nil {
		return "", err
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return "", err
	}
	nonce := make([]byte, gcm.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return "", err
	}
	sealed := gcm.Seal(nonce, nonce, data, nil)
	return base64.URLEncoding.EncodeToString(sealed), nil
}

// Open reverses Seal. Used when a scanned contract is checked at the counter.
func (g *Generator) Open(token string) (*models.ContractPayload, error) {
	sealed, err := base64.URLEncoding.DecodeString(token)
	if err != nil {
		return nil, err
	}
	block, err := aes.NewCipher(g.secret)
	if err != nil {
		return nil, err
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, err
	}
	if len(sealed) < gcm.NonceSize() {
		return nil, errors.New("contract token too short")
	}
	nonce, ciphertext := sealed[:gcm.NonceSize()], sealed[gcm.NonceSize():]
	data, err := gcm.Open(nil, nonce, ciphertext, nil)
	if err != nil {
		return nil, fmt.Errorf("contract token rejected: %w", err)
	}
	var payload models.ContractPayload
	if err := json.Unmarshal(data, &payload); err != nil {
		return nil, err
	}
	return &payload, nil
}
