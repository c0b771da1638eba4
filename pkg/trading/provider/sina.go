package provider

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/BoggsSystems/hingetrade-sub000/pkg/trading"
)

// SinaProvider fetches quotes from the Sina Finance quote endpoint
type SinaProvider struct {
	BaseURL string
	client  *http.Client
	now     func() time.Time
}

// NewSinaProvider creates a Sina quote source. An empty baseURL uses the public endpoint.
func NewSinaProvider(baseURL string, timeout time.Duration) *SinaProvider {
	if baseURL == "" {
		baseURL = "http://hq.sinajs.cn"
	}
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &SinaProvider{
		BaseURL: strings.TrimRight(baseURL, "/"),
		client:  &http.Client{Timeout: timeout},
		now:     time.Now,
	}
}

func (s *SinaProvider) Name() string {
	return "sina"
}

// GetQuote implements QuoteSource
func (s *SinaProvider) GetQuote(ctx context.Context, symbol string) (*trading.Quote, error) {
	quotes, err := s.GetQuotes(ctx, []string{symbol})
	if err != nil {
		return nil, err
	}
	if len(quotes) == 0 {
		return nil, fmt.Errorf("%w: %s", ErrNoQuote, symbol)
	}
	return quotes[0], nil
}

// GetQuotes fetches several quotes in one request. Lines that fail to parse are skipped.
func (s *SinaProvider) GetQuotes(ctx context.Context, symbols []string) ([]*trading.Quote, error) {
	if len(symbols) == 0 {
		return []*trading.Quote{}, nil
	}

	codes := make([]string, len(symbols))
	for i, symbol := range symbols {
		codes[i] = sinaCode(symbol)
	}

	body, err := get(ctx, s.client, fmt.Sprintf("%s/list=%s", s.BaseURL, strings.Join(codes, ",")),
		map[string]string{"Referer": "https://finance.sina.com.cn"})
	if err != nil {
		return nil, err
	}

	lines := strings.Split(strings.TrimSpace(string(body)), "\n")
	quotes := make([]*trading.Quote, 0, len(symbols))
	for i, symbol := range symbols {
		if i >= len(lines) {
			break
		}
		q, err := s.parseQuote(symbol, codes[i], lines[i])
		if err != nil {
			continue
		}
		quotes = append(quotes, q)
	}
	return quotes, nil
}

// sinaCode converts a symbol to Sina format: 600000 -> sh600000,
// 000001 -> sz000001, AAPL -> gb_aapl
func sinaCode(symbol string) string {
	symbol = strings.TrimSpace(symbol)
	lower := strings.ToLower(symbol)

	switch {
	case strings.HasPrefix(lower, "sh"), strings.HasPrefix(lower, "sz"), strings.HasPrefix(lower, "gb_"):
		return lower
	case !isDigits(symbol):
		return "gb_" + strings.ReplaceAll(lower, ".", "$")
	case strings.HasPrefix(symbol, "60"), strings.HasPrefix(symbol, "688"):
		// Shanghai: 60xxxx, 688xxx (STAR Market)
		return "sh" + symbol
	case strings.HasPrefix(symbol, "00"), strings.HasPrefix(symbol, "30"):
		// Shenzhen: 00xxxx, 30xxxx (ChiNext)
		return "sz" + symbol
	default:
		return "sh" + symbol
	}
}

func isDigits(s string) bool {
	if s == "" {
		return false
	}
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}

// parseQuote parses one line such as
// var hq_str_sh600000="name,open,prevClose,price,high,low,bid,ask,volume,..."
// US lines (gb_) carry price, change percent and volume but no book, so
// bid and ask are set to the last price.
func (s *SinaProvider) parseQuote(symbol, code, line string) (*trading.Quote, error) {
	start := strings.Index(line, "\"")
	end := strings.LastIndex(line, "\"")
	if start == -1 || end == -1 || start >= end {
		return nil, fmt.Errorf("invalid data format")
	}
	fields := strings.Split(line[start+1:end], ",")

	q := &trading.Quote{
		Symbol:    trading.NormalizeSymbol(symbol),
		Timestamp: s.now(),
	}

	if strings.HasPrefix(code, "gb_") {
		if len(fields) < 11 {
			return nil, fmt.Errorf("insufficient fields: got %d", len(fields))
		}
		last := parseDecimal(fields[1])
		q.Last, q.Bid, q.Ask = last, last, last
		q.ChangePercent, _ = strconv.ParseFloat(fields[2], 64)
		q.Volume, _ = strconv.ParseInt(fields[10], 10, 64)
	} else {
		if len(fields) < 10 {
			return nil, fmt.Errorf("insufficient fields: got %d", len(fields))
		}
		prevClose := parseDecimal(fields[2])
		q.Last = parseDecimal(fields[3])
		q.Bid = parseDecimal(fields[6])
		q.Ask = parseDecimal(fields[7])
		q.Volume, _ = strconv.ParseInt(fields[8], 10, 64)
		if prevClose.IsPositive() && q.Last.IsPositive() {
			q.ChangePercent = q.Last.Sub(prevClose).Div(prevClose).Mul(decimal.NewFromInt(100)).InexactFloat64()
		}
	}

	if !q.Valid() {
		return nil, fmt.Errorf("%w: %s", ErrNoQuote, symbol)
	}
	return q, nil
}

func parseDecimal(s string) decimal.Decimal {
	d, err := decimal.NewFromString(strings.TrimSpace(s))
	if err != nil {
		return decimal.Zero
	}
	return d
}

// TencentHistory fetches daily bars from the Tencent kline endpoint
type TencentHistory struct {
	BaseURL string
	client  *http.Client
}

// NewTencentHistory creates a history source. An empty baseURL uses the public endpoint.
func NewTencentHistory(baseURL string, timeout time.Duration) *TencentHistory {
	if baseURL == "" {
		baseURL = "http://web.ifzq.gtimg.cn"
	}
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &TencentHistory{
		BaseURL: strings.TrimRight(baseURL, "/"),
		client:  &http.Client{Timeout: timeout},
	}
}

// GetHistory implements HistorySource
func (t *TencentHistory) GetHistory(ctx context.Context, symbol string, limit int) ([]Bar, error) {
	if limit <= 0 {
		limit = 30
	}
	code := strings.TrimPrefix(sinaCode(symbol), "gb_")
	if !strings.HasPrefix(code, "sh") && !strings.HasPrefix(code, "sz") {
		code = "us" + strings.ToUpper(code)
	}

	url := fmt.Sprintf("%s/appstock/app/fqkline/get?param=%s,day,,,%d,qfq", t.BaseURL, code, limit)
	body, err := get(ctx, t.client, url, nil)
	if err != nil {
		return nil, err
	}
	return parseKline(body)
}

func parseKline(body []byte) ([]Bar, error) {
	var result struct {
		Code int `json:"code"`
		Data map[string]struct {
			Day    [][]any `json:"day"`
			QfqDay [][]any `json:"qfqday"`
		} `json:"data"`
	}
	if err := json.Unmarshal(body, &result); err != nil {
		return nil, fmt.Errorf("unmarshal json: %w", err)
	}
	if result.Code != 0 {
		return nil, fmt.Errorf("api error: code %d", result.Code)
	}

	var bars []Bar
	for _, series := range result.Data {
		rows := series.QfqDay
		if len(rows) == 0 {
			rows = series.Day
		}
		for _, row := range rows {
			if len(row) < 6 {
				continue
			}
			date, _ := row[0].(string)
			ts, err := time.Parse("2006-01-02", date)
			if err != nil {
				continue
			}
			bars = append(bars, Bar{
				Timestamp: ts,
				Open:      toFloat(row[1]),
				Close:     toFloat(row[2]),
				High:      toFloat(row[3]),
				Low:       toFloat(row[4]),
				Volume:    int64(toFloat(row[5])),
			})
		}
	}
	return bars, nil
}

func toFloat(v any) float64 {
	f, _ := strconv.ParseFloat(fmt.Sprint(v), 64)
	return f
}

func get(ctx context.Context, client *http.Client, url string, headers map[string]string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch data: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("fetch data: unexpected status %s", resp.Status)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read body: %w", err)
	}
	return body, nil
}
