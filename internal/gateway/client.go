package gateway

import (
	"bytes"
	"context"
	"io"
	"net/http"
	"time"

	"github.com/go-faster/errors"
	"github.com/go-faster/jx"
)

// Config holds the provider credentials and transport settings.
type Config struct {
	// BaseURL of the provider API, e.g. https://api.provider.example.
	BaseURL string
	// KeyID and KeySecret authenticate intent creation (HTTP basic auth).
	// KeySecret is also the HMAC key for signature verification.
	KeyID     string
	KeySecret string
	// Timeout bounds every provider call. Zero falls back to 10s.
	Timeout time.Duration
}

var _ Client = (*HTTPClient)(nil)

// HTTPClient talks to the payment provider over HTTPS.
type HTTPClient struct {
	cfg  Config
	http *http.Client
}

// NewHTTPClient creates an HTTPClient with a bounded request timeout.
func NewHTTPClient(cfg Config) *HTTPClient {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &HTTPClient{
		cfg:  cfg,
		http: &http.Client{Timeout: timeout},
	}
}

// CreateIntent opens a payment intent for the given amount in minor units.
// Transport failures and provider-side errors surface as ErrUnavailable so
// the caller can abort checkout before creating any durable order.
func (c *HTTPClient) CreateIntent(ctx context.Context, amountMinorUnits int64, currency, receiptID string) (*Intent, error) {
	body := encodeIntentRequest(amountMinorUnits, currency, receiptID)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.BaseURL+"/v1/orders", bytes.NewReader(body))
	if err != nil {
		return nil, errors.Wrap(err, "build intent request")
	}
	req.Header.Set("Content-Type", "application/json")
	req.SetBasicAuth(c.cfg.KeyID, c.cfg.KeySecret)

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, errors.Wrap(ErrUnavailable, err.Error())
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusCreated {
		return nil, errors.Wrapf(ErrUnavailable, "provider returned %d", resp.StatusCode)
	}

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, errors.Wrap(ErrUnavailable, "read provider response")
	}

	id, err := decodeIntentResponse(raw)
	if err != nil {
		return nil, errors.Wrap(err, "decode provider response")
	}

	return &Intent{
		ID:       id,
		Amount:   amountMinorUnits,
		Currency: currency,
	}, nil
}

// VerifySignature checks the provider's HMAC over "intentID|paymentID".
func (c *HTTPClient) VerifySignature(intentID, paymentID, signature string) bool {
	return verifySignature([]byte(c.cfg.KeySecret), intentID, paymentID, signature)
}

func encodeIntentRequest(amount int64, currency, receiptID string) []byte {
	var e jx.Encoder
	e.Obj(func(e *jx.Encoder) {
		e.Field("amount", func(e *jx.Encoder) { e.Int64(amount) })
		e.Field("currency", func(e *jx.Encoder) { e.Str(currency) })
		e.Field("receipt", func(e *jx.Encoder) { e.Str(receiptID) })
	})
	return e.Bytes()
}

func decodeIntentResponse(raw []byte) (string, error) {
	var id string
	d := jx.DecodeBytes(raw)
	if err := d.Obj(func(d *jx.Decoder, key string) error {
		if key != "id" {
			return d.Skip()
		}
		v, err := d.Str()
		if err != nil {
			return err
		}
		id = v
		return nil
	}); err != nil {
		return "", err
	}
	if id == "" {
		return "", errors.New("provider response missing intent id")
	}
	return id, nil
}
