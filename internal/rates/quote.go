package rates

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/go-faster/errors"
	"github.com/go-faster/jx"
	"github.com/shopspring/decimal"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
)

// Quote source defaults.
const (
	DefaultURL     = "https://www.dolarsi.com/api/api.php?type=valoresprincipales"
	DefaultName    = "Dolar Blue"
	DefaultTimeout = 5 * time.Second
)

// maxBodySize bounds the quote response read into memory.
const maxBodySize = 1 << 20

// QuoteClient fetches the buying price of a named quote from a JSON feed of
// the form [{"casa": {"nombre": "...", "compra": "350,00"}}, ...].
type QuoteClient struct {
	url    string
	name   string
	client *http.Client
}

var _ Provider = (*QuoteClient)(nil)

// QuoteOption configures a QuoteClient.
type QuoteOption func(*QuoteClient)

// WithHTTPClient replaces the instrumented default client.
func WithHTTPClient(c *http.Client) QuoteOption {
	return func(q *QuoteClient) { q.client = c }
}

// NewQuoteClient creates a client for the quote named name at url. Empty
// arguments fall back to the defaults; timeout <= 0 uses DefaultTimeout.
func NewQuoteClient(url, name string, timeout time.Duration, opts ...QuoteOption) *QuoteClient {
	if url == "" {
		url = DefaultURL
	}
	if name == "" {
		name = DefaultName
	}
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	q := &QuoteClient{
		url:  url,
		name: name,
		client: &http.Client{
			Timeout:   timeout,
			Transport: otelhttp.NewTransport(http.DefaultTransport),
		},
	}
	for _, opt := range opts {
		opt(q)
	}
	return q
}

// Rate implements Provider. Every failure wraps ErrUnavailable.
func (q *QuoteClient) Rate(ctx context.Context) (decimal.Decimal, error) {
	rate, err := q.fetch(ctx)
	if err != nil {
		return decimal.Zero, fmt.Errorf("%w: %w", ErrUnavailable, err)
	}
	return rate, nil
}

func (q *QuoteClient) fetch(ctx context.Context) (decimal.Decimal, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, q.url, http.NoBody)
	if err != nil {
		return decimal.Zero, errors.Wrap(err, "create request")
	}
	req.Header.Set("Accept", "application/json")

	resp, err := q.client.Do(req)
	if err != nil {
		return decimal.Zero, errors.Wrap(err, "do request")
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return decimal.Zero, errors.Errorf("unexpected status %d", resp.StatusCode)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodySize))
	if err != nil {
		return decimal.Zero, errors.Wrap(err, "read body")
	}

	raw, err := findQuote(body, q.name)
	if err != nil {
		return decimal.Zero, err
	}

	rate, err := ParseLocaleDecimal(raw)
	if err != nil {
		return decimal.Zero, err
	}
	if !rate.IsPositive() {
		return decimal.Zero, errors.Errorf("non-positive rate %s", rate)
	}
	return rate, nil
}

// findQuote returns the raw "compra" value of the entry whose "nombre"
// equals name.
func findQuote(body []byte, name string) (string, error) {
	var (
		found bool
		value string
	)
	d := jx.DecodeBytes(body)
	err := d.Arr(func(d *jx.Decoder) error {
		if found {
			return d.Skip()
		}
		return d.Obj(func(d *jx.Decoder, key string) error {
			if key != "casa" {
				return d.Skip()
			}
			nombre, compra, err := decodeCasa(d)
			if err != nil {
				return err
			}
			if nombre == name {
				found, value = true, compra
			}
			return nil
		})
	})
	if err != nil {
		return "", errors.Wrap(err, "decode quotes")
	}
	if !found {
		return "", errors.Errorf("quote %q not found", name)
	}
	return value, nil
}

func decodeCasa(d *jx.Decoder) (nombre, compra string, _ error) {
	err := d.Obj(func(d *jx.Decoder, key string) error {
		switch key {
		case "nombre":
			v, err := d.Str()
			if err != nil {
				return err
			}
			nombre = v
		case "compra":
			switch d.Next() {
			case jx.String:
				v, err := d.Str()
				if err != nil {
					return err
				}
				compra = v
			case jx.Number:
				v, err := d.Num()
				if err != nil {
					return err
				}
				compra = v.String()
			default:
				return d.Skip()
			}
		default:
			return d.Skip()
		}
		return nil
	})
	return nombre, compra, err
}
