package insight

import (
	"context"
	"log/slog"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"finsight/internal/extract"
	"finsight/internal/shared/testutil"
)

const report = `ACME Corp (NASDAQ: ACME) Quarterly Report

EXECUTIVE SUMMARY
ACME Corp reported strong results for the third quarter. Revenue grew 12.5% year over year to $4.2 billion.
EPS of $1.25 beat estimates. The market cap of $85 billion makes it a sector leader.

Outlook:
Shares fell 3% after the guidance update. The board declared a dividend of $0.40 per share on March 15, 2024.
ACME will host its earnings call on 2023-11-02. The company agreed to acquire Widget Inc. for $2 billion.
Analysts compare it with $BETA and its P/E ratio of 24.5x.
`

func allOptions() Options {
	return Options{
		Entities:   EntityTypes(),
		Events:     EventTypes(),
		Confidence: 0.5,
	}
}

func TestOptionsValidate(t *testing.T) {
	from := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	to := time.Date(2023, 1, 1, 0, 0, 0, 0, time.UTC)

	tests := []struct {
		name    string
		opts    Options
		wantErr string
	}{
		{name: "defaults", opts: DefaultOptions()},
		{name: "all", opts: allOptions()},
		{name: "confidence too high", opts: Options{Confidence: 1}, wantErr: "confidence"},
		{name: "negative confidence", opts: Options{Confidence: -0.1}, wantErr: "confidence"},
		{name: "unknown entity", opts: Options{Entities: []string{"ebitda"}}, wantErr: `unknown entity type "ebitda"`},
		{name: "unknown event", opts: Options{Events: []string{"split"}}, wantErr: `unknown event type "split"`},
		{name: "inverted time frame", opts: Options{From: &from, To: &to}, wantErr: "before start"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.opts.Validate()
			if tt.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestExtractEntities(t *testing.T) {
	entities := ExtractEntities(report, EntityTypes(), 0)

	require.Len(t, entities[EntityMarketCap], 1)
	mc := entities[EntityMarketCap][0]
	assert.Equal(t, 85.0, *mc.Value)
	assert.Equal(t, "$ billion", mc.Unit)
	assert.Equal(t, 0.9, mc.Confidence)
	assert.Equal(t, "market cap of $85 billion", mc.Raw)
	assert.Equal(t, mc.Raw, report[mc.Offset:mc.Offset+len(mc.Raw)])

	require.Len(t, entities[EntityEPS], 1)
	assert.Equal(t, 1.25, *entities[EntityEPS][0].Value)

	require.Len(t, entities[EntityRevenueGrowth], 1)
	assert.Equal(t, 12.5, *entities[EntityRevenueGrowth][0].Value)
	assert.Equal(t, "%", entities[EntityRevenueGrowth][0].Unit)

	require.Len(t, entities[EntityStockPriceTrend], 1)
	assert.Equal(t, -3.0, *entities[EntityStockPriceTrend][0].Value)
	assert.Equal(t, 0.8, entities[EntityStockPriceTrend][0].Confidence)

	require.Len(t, entities[EntityPERatio], 1)
	assert.Equal(t, 24.5, *entities[EntityPERatio][0].Value)

	assert.NotNil(t, entities[EntityDividendYield])
	assert.Empty(t, entities[EntityDividendYield])
}

func TestExtractEntitiesVariants(t *testing.T) {
	tests := []struct {
		name  string
		kind  string
		text  string
		value float64
		conf  float64
	}{
		{name: "revenue decline", kind: EntityRevenueGrowth, text: "Revenue declined 4 percent in Q2.", value: -4, conf: 0.85},
		{name: "revenue growth of", kind: EntityRevenueGrowth, text: "Revenue growth of 7% was reported.", value: 7, conf: 0.85},
		{name: "market cap without unit", kind: EntityMarketCap, text: "Its market capitalization is 1,500.", value: 1500, conf: 0.7},
		{name: "market cap in crore", kind: EntityMarketCap, text: "Market cap stands at Rs. 12,000 crore.", value: 12000, conf: 0.9},
		{name: "negative eps", kind: EntityEPS, text: "Earnings per share was -0.12 this year.", value: -0.12, conf: 0.9},
		{name: "dividend yield", kind: EntityDividendYield, text: "The dividend yield is 3.2%.", value: 3.2, conf: 0.9},
		{name: "stock gain", kind: EntityStockPriceTrend, text: "The stock jumped 5.5% on Monday.", value: 5.5, conf: 0.8},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := ExtractEntities(tt.text, []string{tt.kind}, 0)
			require.Len(t, got[tt.kind], 1)
			require.NotNil(t, got[tt.kind][0].Value)
			assert.InDelta(t, tt.value, *got[tt.kind][0].Value, 1e-9)
			assert.Equal(t, tt.conf, got[tt.kind][0].Confidence)
		})
	}
}

func TestExtractEntitiesConfidenceThreshold(t *testing.T) {
	text := "Shares rallied after the news. Its market capitalization is 1,500."

	low := ExtractEntities(text, []string{EntityStockPriceTrend, EntityMarketCap}, 0.5)
	assert.Len(t, low[EntityStockPriceTrend], 1)
	assert.Nil(t, low[EntityStockPriceTrend][0].Value)
	assert.Len(t, low[EntityMarketCap], 1)

	high := ExtractEntities(text, []string{EntityStockPriceTrend, EntityMarketCap}, 0.75)
	assert.Empty(t, high[EntityStockPriceTrend])
	assert.Empty(t, high[EntityMarketCap])
}

func TestSplitSentences(t *testing.T) {
	text := "Profit rose to Rs. 5 crore. Sales fell!\n\nNew paragraph without end"
	got := splitSentences(text)

	require.Len(t, got, 3)
	assert.Equal(t, "Profit rose to Rs. 5 crore.", got[0].Text)
	assert.Equal(t, "Sales fell!", got[1].Text)
	assert.Equal(t, "New paragraph without end", got[2].Text)
	for _, s := range got {
		assert.Equal(t, s.Text[:5], text[s.Offset:s.Offset+5])
	}
}

func TestFindDate(t *testing.T) {
	tests := []struct {
		text string
		want string
	}{
		{"held on 2023-11-02 in NYC", "2023-11-02"},
		{"declared on March 15, 2024", "2024-03-15"},
		{"declared on Sept. 3rd 2022", "2022-09-03"},
		{"completed 7 June 2021", "2021-06-07"},
		{"expected in December 2025", "2025-12-01"},
		{"no date here", ""},
		{"invalid 2023-02-30", ""},
	}
	for _, tt := range tests {
		t.Run(tt.text, func(t *testing.T) {
			got := findDate(tt.text)
			if tt.want == "" {
				assert.Nil(t, got)
				return
			}
			require.NotNil(t, got)
			assert.Equal(t, tt.want, got.Format(time.DateOnly))
		})
	}
}

func TestDetectEvents(t *testing.T) {
	events := DetectEvents(splitSentences(report), allOptions())

	require.Len(t, events[EventDividend], 1)
	div := events[EventDividend][0]
	assert.Equal(t, 0.9, div.Confidence)
	require.NotNil(t, div.Date)
	assert.Equal(t, "2024-03-15", div.Date.Format(time.DateOnly))

	require.Len(t, events[EventEarningsCall], 1)
	assert.Equal(t, 0.8, events[EventEarningsCall][0].Confidence)

	require.Len(t, events[EventMA], 1)
	assert.Contains(t, events[EventMA][0].Sentence, "acquire Widget Inc. for $2 billion")
	assert.Nil(t, events[EventMA][0].Date)

	assert.NotNil(t, events[EventIPO])
	assert.Empty(t, events[EventIPO])
}

func TestDetectEventsTimeFrame(t *testing.T) {
	from := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	to := time.Date(2024, 12, 31, 0, 0, 0, 0, time.UTC)
	opts := allOptions()
	opts.From, opts.To = &from, &to

	events := DetectEvents(splitSentences(report), opts)

	assert.Len(t, events[EventDividend], 1, "dated inside the frame")
	assert.Empty(t, events[EventEarningsCall], "dated 2023, outside the frame")
	assert.Len(t, events[EventMA], 1, "undated events are kept")
}

func TestDetectEventsConfidence(t *testing.T) {
	sentences := splitSentences("The startup plans to go public next year.")

	opts := Options{Events: []string{EventIPO}, Confidence: 0.5}
	assert.Len(t, DetectEvents(sentences, opts)[EventIPO], 1)

	opts.Confidence = 0.7
	assert.Empty(t, DetectEvents(sentences, opts)[EventIPO])
}

func TestSegment(t *testing.T) {
	sections := Segment(report)

	assert.Contains(t, sections, "EXECUTIVE SUMMARY")
	assert.Contains(t, sections, "Outlook")
	assert.Contains(t, sections["Outlook"], "Shares fell 3%")
	assert.Equal(t, "ACME Corp (NASDAQ: ACME) Quarterly Report", sections["Preamble"])

	t.Run("repeated headings", func(t *testing.T) {
		got := Segment("# Notes\nfirst\n# Notes\nsecond")
		assert.Equal(t, map[string]string{"Notes": "first", "Notes (2)": "second"}, got)
	})

	t.Run("no headings", func(t *testing.T) {
		assert.Empty(t, Segment("Just one plain sentence about revenue."))
	})
}

func TestTickers(t *testing.T) {
	assert.Equal(t, []string{"ACME", "BETA"}, Tickers(report))
	assert.Empty(t, Tickers("Paid $5 in dividends"))
}

func TestSummarize(t *testing.T) {
	summary := Summarize(splitSentences(report))
	assert.Equal(t, "ACME Corp reported strong results for the third quarter. "+
		"Revenue grew 12.5% year over year to $4.2 billion. EPS of $1.25 beat estimates.", summary)

	assert.Equal(t, "Up. Down.", Summarize(splitSentences("Up. Down.")))
}

func TestAnalyze(t *testing.T) {
	logger, handler := testutil.NewTestLogger(t)
	analyzer := NewAnalyzer(nil, logger)

	result, err := analyzer.Analyze(context.Background(), report, DefaultOptions())
	require.NoError(t, err)

	assert.Len(t, result.Entities, 3)
	assert.Len(t, result.Events, 3)
	assert.NotContains(t, result.Entities, EntityPERatio)
	assert.Equal(t, []string{"ACME", "BETA"}, result.Tickers)
	assert.NotEmpty(t, result.Summary)
	testutil.AssertLogContains(t, handler, slog.LevelInfo, "analysis_completed")

	_, err = analyzer.Analyze(context.Background(), report, Options{Confidence: 2})
	assert.Error(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = analyzer.Analyze(ctx, report, DefaultOptions())
	assert.ErrorIs(t, err, context.Canceled)
}

func TestAnalyzeMarkup(t *testing.T) {
	analyzer := NewAnalyzer(nil, nil)
	result, err := analyzer.Analyze(context.Background(),
		"<p>The dividend yield is <b>4.1%</b>.</p>", Options{Entities: []string{EntityDividendYield}})
	require.NoError(t, err)
	require.Len(t, result.Entities[EntityDividendYield], 1)
	assert.Equal(t, 4.1, *result.Entities[EntityDividendYield][0].Value)
}

func TestAnalyzeFile(t *testing.T) {
	dir := t.TempDir()
	path := testutil.WriteFile(t, dir, "report.txt", report)
	analyzer := NewAnalyzer(nil, nil)

	result, err := analyzer.AnalyzeFile(context.Background(), path, allOptions())
	require.NoError(t, err)
	assert.Len(t, result.Entities[EntityEPS], 1)

	_, err = analyzer.AnalyzeFile(context.Background(), filepath.Join(dir, "report.doc"), allOptions())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unsupported file type")
}

func TestPreviewTables(t *testing.T) {
	rows := [][]string{
		{"Revenue", "$1,200", "12.5%"},
		{"Net income", "(40)", "n/a"},
	}
	for i := 0; i < 10; i++ {
		rows = append(rows, []string{"Other", "1"})
	}
	tables := []extract.Table{
		{Page: 1, Name: "income", Header: []string{"item", "2024", "growth"}, Rows: rows},
		{Page: 2, Header: []string{"line", "value"}, Rows: [][]string{{"Total assets", "900"}, {"Liabilities", "400"}}},
		{Page: 3, Header: []string{"Cash flow from operating activities"}, Rows: [][]string{{"Net income"}}},
		{Page: 4, Header: []string{"name"}, Rows: [][]string{{"Alice"}}},
	}

	previews := PreviewTables(tables)
	require.Len(t, previews, 4)

	first := previews[0]
	assert.Equal(t, TableIncomeStatement, first.Type)
	assert.Equal(t, 12, first.Rows)
	require.Len(t, first.Raw, TablePreviewRows+1)
	assert.Equal(t, []string{"item", "2024", "growth"}, first.Raw[0])
	require.Len(t, first.Numeric, TablePreviewRows)
	assert.Nil(t, first.Numeric[0][0])
	assert.Equal(t, 1200.0, *first.Numeric[0][1])
	assert.Equal(t, 12.5, *first.Numeric[0][2])
	assert.Equal(t, -40.0, *first.Numeric[1][1])
	assert.Nil(t, first.Numeric[1][2])

	assert.Equal(t, TableBalanceSheet, previews[1].Type)
	assert.Equal(t, TableCashFlow, previews[2].Type)
	assert.Equal(t, TableUnknown, previews[3].Type)

	many := make([]extract.Table, MaxTables+3)
	assert.Len(t, PreviewTables(many), MaxTables)
}

func TestAnalyzeFileTables(t *testing.T) {
	dir := t.TempDir()
	path := testutil.WriteFile(t, dir, "statement.csv", "item,2024\nRevenue,\"4,200\"\nNet income,310\n")

	result, err := NewAnalyzer(nil, nil).AnalyzeFile(context.Background(), path, allOptions())
	require.NoError(t, err)
	require.Len(t, result.Tables, 1)
	assert.Equal(t, TableIncomeStatement, result.Tables[0].Type)
	assert.Equal(t, 4200.0, *result.Tables[0].Numeric[0][1])

	result, err = NewAnalyzer(nil, nil).AnalyzeFile(context.Background(), testutil.WriteFile(t, dir, "report.txt", report), allOptions())
	require.NoError(t, err)
	assert.Empty(t, result.Tables)
}
