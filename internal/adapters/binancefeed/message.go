package binancefeed

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/adshao/go-binance/v2/futures"

	"volumeSpikeBot/internal/adapters/binanceclient"
	"volumeSpikeBot/internal/domain"
)

// combinedMessage is the /stream envelope; data holds the raw event.
type combinedMessage struct {
	Stream string          `json:"stream"`
	Data   json.RawMessage `json:"data"`
}

// parseMessage decodes a combined-stream frame. Frames that carry no kline
// (subscription acks, other streams) yield nil without error.
func parseMessage(msg []byte) (*domain.Kline, error) {
	var env combinedMessage
	if err := json.Unmarshal(msg, &env); err != nil {
		return nil, fmt.Errorf("decoding envelope: %w", err)
	}
	if len(env.Data) == 0 || !strings.Contains(env.Stream, "@kline_") {
		return nil, nil
	}

	var ev futures.WsKlineEvent
	if err := json.Unmarshal(env.Data, &ev); err != nil {
		return nil, fmt.Errorf("decoding %s payload: %w", env.Stream, err)
	}
	return translateWsKline(env.Stream, &ev)
}

func translateWsKline(stream string, ev *futures.WsKlineEvent) (*domain.Kline, error) {
	wk := ev.Kline
	k, err := binanceclient.ParseKline(wk.Open, wk.High, wk.Low, wk.Close, wk.Volume)
	if err != nil {
		return nil, fmt.Errorf("stream %s: %w", stream, err)
	}
	symbol := ev.Symbol
	if symbol == "" {
		symbol = wk.Symbol
	}
	k.Symbol = strings.ToUpper(symbol)
	k.Interval = wk.Interval
	k.OpenTime = time.UnixMilli(wk.StartTime).UTC()
	k.CloseTime = time.UnixMilli(wk.EndTime).UTC()
	k.IsFinal = wk.IsFinal
	return k, nil
}
