package binance

import (
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"github.com/quantpulse/pulsebot/internal/domain"
)

// Kline is one candlestick from GET /api/v3/klines. Binance encodes klines
// as positional JSON arrays with numeric fields quoted as strings.
type Kline struct {
	OpenTime  time.Time
	Open      float64
	High      float64
	Low       float64
	Close     float64
	Volume    float64
	CloseTime time.Time
}

// UnmarshalJSON decodes the positional kline array. Fields beyond the close
// time are ignored.
func (k *Kline) UnmarshalJSON(data []byte) error {
	var raw []json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	if len(raw) < 7 {
		return fmt.Errorf("kline: want at least 7 fields, got %d", len(raw))
	}

	var openMS, closeMS int64
	if err := json.Unmarshal(raw[0], &openMS); err != nil {
		return fmt.Errorf("kline open time: %w", err)
	}
	if err := json.Unmarshal(raw[6], &closeMS); err != nil {
		return fmt.Errorf("kline close time: %w", err)
	}

	var err error
	if k.Open, err = quotedFloat(raw[1]); err != nil {
		return fmt.Errorf("kline open: %w", err)
	}
	if k.High, err = quotedFloat(raw[2]); err != nil {
		return fmt.Errorf("kline high: %w", err)
	}
	if k.Low, err = quotedFloat(raw[3]); err != nil {
		return fmt.Errorf("kline low: %w", err)
	}
	if k.Close, err = quotedFloat(raw[4]); err != nil {
		return fmt.Errorf("kline close: %w", err)
	}
	if k.Volume, err = quotedFloat(raw[5]); err != nil {
		return fmt.Errorf("kline volume: %w", err)
	}

	k.OpenTime = time.UnixMilli(openMS).UTC()
	k.CloseTime = time.UnixMilli(closeMS).UTC()
	return nil
}

// ToSample converts the kline's close into a price sample for the given
// engine asset name. The sample carries the close time so backfilled history
// orders correctly against live trades.
func (k Kline) ToSample(asset string) domain.PriceSample {
	return domain.PriceSample{
		Asset:     asset,
		Price:     k.Close,
		Volume:    k.Volume,
		Timestamp: k.CloseTime,
	}
}

// quotedFloat parses a JSON string field holding a decimal number.
func quotedFloat(raw json.RawMessage) (float64, error) {
	var s string
	if err := json.Unmarshal(raw, &s); err != nil {
		return 0, err
	}
	return strconv.ParseFloat(s, 64)
}

// TradeEvent is a single trade from the <symbol>@trade stream.
type TradeEvent struct {
	EventType string `json:"e"`
	EventTime int64  `json:"E"`
	Symbol    string `json:"s"`
	TradeID   int64  `json:"t"`
	Price     string `json:"p"`
	Quantity  string `json:"q"`
	TradeTime int64  `json:"T"`
	IsMaker   bool   `json:"m"`
}

// ToSample converts the trade into a price sample for the given engine asset
// name. It returns an error when the price does not parse.
func (t TradeEvent) ToSample(asset string) (domain.PriceSample, error) {
	price, err := strconv.ParseFloat(t.Price, 64)
	if err != nil {
		return domain.PriceSample{}, fmt.Errorf("trade price %q: %w", t.Price, err)
	}
	qty, err := strconv.ParseFloat(t.Quantity, 64)
	if err != nil {
		qty = 0
	}
	return domain.PriceSample{
		Asset:     asset,
		Price:     price,
		Volume:    qty,
		Timestamp: time.UnixMilli(t.TradeTime).UTC(),
	}, nil
}

// tickerPriceResponse is the GET /api/v3/ticker/price payload.
type tickerPriceResponse struct {
	Symbol string `json:"symbol"`
	Price  string `json:"price"`
}

// wsCommand is the SUBSCRIBE/UNSUBSCRIBE control frame for the stream API.
type wsCommand struct {
	Method string   `json:"method"`
	Params []string `json:"params"`
	ID     int64    `json:"id"`
}
