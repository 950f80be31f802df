// -----------------------------------------------------------------------
// Tool registry - the functions a model session may call
// Every tool returns its success shape or exactly {"error": "..."}
// -----------------------------------------------------------------------

package tools

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/ternarybob/arbor"

	"github.com/ternarybob/moverwatch/internal/common"
	"github.com/ternarybob/moverwatch/internal/interfaces"
	"github.com/ternarybob/moverwatch/internal/models"
)

// Tool names
const (
	ToolTopMover    = "get_top_mover"
	ToolHistory     = "get_stock_history"
	ToolNews        = "get_stock_news"
	ToolAnalyzeData = "analyze_data"
	ToolChart       = "generate_chart"
	ToolSendEmail   = "send_email"
)

type handler func(ctx context.Context, args json.RawMessage) (interface{}, error)

type tool struct {
	spec interfaces.ToolSpec
	run  handler
}

// Registry dispatches tool calls to the market, sandbox, chart and mail services
type Registry struct {
	market     interfaces.MarketService
	executor   interfaces.CodeExecutor
	charts     interfaces.ChartService
	mailer     interfaces.MailerService
	recipients []string
	logger     arbor.ILogger

	order []string
	tools map[string]tool
}

// Compile-time assertion
var _ interfaces.ToolExecutor = (*Registry)(nil)

// NewRegistry builds the registry. charts and mailer may be nil, in which case their
// tools are not offered. recipients is used by send_email when the model gives none.
func NewRegistry(market interfaces.MarketService, executor interfaces.CodeExecutor, charts interfaces.ChartService, mailer interfaces.MailerService, recipients []string, logger arbor.ILogger) *Registry {
	r := &Registry{
		market:     market,
		executor:   executor,
		charts:     charts,
		mailer:     mailer,
		recipients: recipients,
		logger:     logger,
		tools:      make(map[string]tool),
	}

	r.register(interfaces.ToolSpec{
		Name:        ToolTopMover,
		Description: "Find today's #1 NASDAQ percent gainer. Returns timestamp, symbol, name, exchange, price, change_absolute, change_pct, volume and market_cap.",
	}, r.topMover)

	r.register(interfaces.ToolSpec{
		Name:        ToolHistory,
		Description: "Fetch daily OHLCV history for a stock. Returns symbol, period and data keyed by YYYY-MM-DD date.",
		Parameters: objectSchema(map[string]interface{}{
			"symbol": stringProp("Stock ticker symbol, e.g. AAPL"),
			"period": map[string]interface{}{
				"type":        "string",
				"description": "History window (default 5d)",
				"enum":        models.PeriodNames(),
			},
		}, "symbol"),
	}, r.history)

	r.register(interfaces.ToolSpec{
		Name:        ToolNews,
		Description: "Fetch up to 10 recent news headlines for a stock. When ticker is omitted the top mover is used.",
		Parameters: objectSchema(map[string]interface{}{
			"ticker": stringProp("Optional stock ticker symbol"),
		}),
	}, r.news)

	r.register(interfaces.ToolSpec{
		Name: ToolAnalyzeData,
		Description: "Run Python code in an isolated container with no network. pandas (pd) and numpy (np) are available. " +
			"Only what the code prints is returned. The data argument, a JSON object such as get_stock_history output, " +
			"is available to the code as the string variable `data`; parse it with json.loads(data).",
		Parameters: objectSchema(map[string]interface{}{
			"code": stringProp("Python code to execute; must print() its results"),
			"data": stringProp("Optional JSON object passed to the code as the `data` string"),
		}, "code"),
	}, r.analyzeData)

	if charts != nil {
		r.register(interfaces.ToolSpec{
			Name:        ToolChart,
			Description: "Render a price chart from get_stock_history output and return chart_path. Pass chart_path to send_email to attach it.",
			Parameters: objectSchema(map[string]interface{}{
				"data": stringProp("JSON in the shape of get_stock_history output"),
				"chart_type": map[string]interface{}{
					"type":        "string",
					"description": "line for closing prices, candlestick for OHLC",
					"enum":        []string{"line", "candlestick"},
				},
				"title": stringProp("Chart title"),
			}, "data", "chart_type", "title"),
		}, r.chart)
	}

	if mailer != nil {
		r.register(interfaces.ToolSpec{
			Name:        ToolSendEmail,
			Description: "Email the report. The body is markdown and is sent as HTML. Attach a chart by passing chart_path from generate_chart.",
			Parameters: objectSchema(map[string]interface{}{
				"to":         stringProp("Comma-separated recipients; defaults to the configured recipients"),
				"subject":    stringProp("Subject line"),
				"body":       stringProp("Report body in markdown"),
				"chart_path": stringProp("Optional chart_path from generate_chart"),
			}, "subject", "body"),
		}, r.sendEmail)
	}

	return r
}

func (r *Registry) register(spec interfaces.ToolSpec, run handler) {
	r.order = append(r.order, spec.Name)
	r.tools[spec.Name] = tool{spec: spec, run: run}
}

// Tools returns the tool specs in registration order
func (r *Registry) Tools() []interfaces.ToolSpec {
	specs := make([]interfaces.ToolSpec, 0, len(r.order))
	for _, name := range r.order {
		specs = append(specs, r.tools[name].spec)
	}
	return specs
}

// Execute runs a tool and returns its JSON result. Failures, including panics inside
// a tool, are reported as {"error": "..."} with isError set.
func (r *Registry) Execute(ctx context.Context, name string, args json.RawMessage) (content string, isError bool) {
	t, ok := r.tools[name]
	if !ok {
		return errorJSON(fmt.Errorf("unknown tool: %s", name)), true
	}

	defer func() {
		if rec := recover(); rec != nil {
			r.logger.Error().Str("tool", name).Str("panic", fmt.Sprintf("%v", rec)).Msg("Tool panicked")
			content, isError = errorJSON(fmt.Errorf("tool %s failed: %v", name, rec)), true
		}
	}()

	result, err := t.run(ctx, args)
	if err != nil {
		r.logger.Warn().Str("tool", name).Err(err).Msg("Tool returned an error")
		return errorJSON(err), true
	}

	data, err := json.Marshal(result)
	if err != nil {
		return errorJSON(fmt.Errorf("failed to encode %s result: %w", name, err)), true
	}
	return string(data), false
}

func (r *Registry) topMover(ctx context.Context, _ json.RawMessage) (interface{}, error) {
	return r.market.TopMover(ctx)
}

type historyArgs struct {
	Symbol string `json:"symbol"`
	Period string `json:"period"`
}

func (r *Registry) history(ctx context.Context, raw json.RawMessage) (interface{}, error) {
	var args historyArgs
	if err := decodeArgs(raw, &args); err != nil {
		return nil, err
	}
	return r.market.History(ctx, args.Symbol, args.Period)
}

type newsArgs struct {
	Ticker string `json:"ticker"`
}

func (r *Registry) news(ctx context.Context, raw json.RawMessage) (interface{}, error) {
	var args newsArgs
	if err := decodeArgs(raw, &args); err != nil {
		return nil, err
	}
	return r.market.News(ctx, args.Ticker)
}

type analyzeArgs struct {
	Code string          `json:"code"`
	Data json.RawMessage `json:"data"`
}

func (r *Registry) analyzeData(ctx context.Context, raw json.RawMessage) (interface{}, error) {
	var args analyzeArgs
	if err := decodeArgs(raw, &args); err != nil {
		return nil, err
	}
	data, err := payloadText(args.Data)
	if err != nil {
		return nil, fmt.Errorf("invalid input data: %w", err)
	}
	result := r.executor.Execute(ctx, args.Code, data)
	if result.Failed() {
		return nil, errors.New(result.Error)
	}
	return result, nil
}

type chartArgs struct {
	Data      json.RawMessage `json:"data"`
	ChartType string          `json:"chart_type"`
	Title     string          `json:"title"`
}

func (r *Registry) chart(ctx context.Context, raw json.RawMessage) (interface{}, error) {
	var args chartArgs
	if err := decodeArgs(raw, &args); err != nil {
		return nil, err
	}
	text, err := payloadText(args.Data)
	if err != nil {
		return nil, fmt.Errorf("invalid data JSON: %w", err)
	}
	if text == "" {
		return nil, fmt.Errorf("data JSON missing 'data' key")
	}

	var history models.HistoryResult
	if err := json.Unmarshal([]byte(text), &history); err != nil {
		return nil, fmt.Errorf("invalid data JSON: %w", err)
	}
	if len(history.Data) == 0 {
		return nil, fmt.Errorf("data JSON missing 'data' key")
	}

	path, err := r.charts.Render(ctx, &history, args.ChartType, args.Title)
	if err != nil {
		return nil, fmt.Errorf("chart generation failed: %w", err)
	}
	return models.ChartResult{ChartPath: path}, nil
}

type emailArgs struct {
	To        string `json:"to"`
	Subject   string `json:"subject"`
	Body      string `json:"body"`
	ChartPath string `json:"chart_path"`
}

func (r *Registry) sendEmail(ctx context.Context, raw json.RawMessage) (interface{}, error) {
	var args emailArgs
	if err := decodeArgs(raw, &args); err != nil {
		return nil, err
	}

	to := common.SplitList(args.To)
	if len(to) == 0 {
		to = r.recipients
	}
	if len(to) == 0 {
		return nil, fmt.Errorf("no recipients given and none configured")
	}

	attachment := args.ChartPath
	if attachment != "" {
		if _, err := os.Stat(attachment); err != nil {
			r.logger.Warn().Str("chart_path", attachment).Err(err).Msg("Chart not found, sending without attachment")
			attachment = ""
		}
	}

	if err := r.mailer.SendReport(ctx, to, args.Subject, args.Body, attachment); err != nil {
		return nil, err
	}
	return models.EmailResult{Result: "Email sent to " + strings.Join(to, ", ")}, nil
}

// decodeArgs unmarshals tool arguments; empty arguments decode as an empty object
func decodeArgs(raw json.RawMessage, v interface{}) error {
	if len(strings.TrimSpace(string(raw))) == 0 {
		return nil
	}
	if err := json.Unmarshal(raw, v); err != nil {
		return fmt.Errorf("invalid arguments: %w", err)
	}
	return nil
}

// payloadText accepts a JSON payload given either as a JSON string or inline as an object
func payloadText(raw json.RawMessage) (string, error) {
	trimmed := strings.TrimSpace(string(raw))
	if trimmed == "" || trimmed == "null" {
		return "", nil
	}
	if strings.HasPrefix(trimmed, `"`) {
		var s string
		if err := json.Unmarshal(raw, &s); err != nil {
			return "", err
		}
		return strings.TrimSpace(s), nil
	}
	return trimmed, nil
}

func errorJSON(err error) string {
	data, mErr := json.Marshal(models.NewToolError(err))
	if mErr != nil {
		return `{"error":"internal error"}`
	}
	return string(data)
}

func objectSchema(properties map[string]interface{}, required ...string) map[string]interface{} {
	schema := map[string]interface{}{
		"type":       "object",
		"properties": properties,
	}
	if len(required) > 0 {
		schema["required"] = required
	}
	return schema
}

func stringProp(description string) map[string]interface{} {
	return map[string]interface{}{
		"type":        "string",
		"description": description,
	}
}
