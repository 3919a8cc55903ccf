package main

import (
	"encoding/json"
	"fmt"
	"io"
	"math"
	"os"
	"path/filepath"
	"slices"
	"sync"
	"text/tabwriter"
	"time"

	"google.golang.org/grpc/codes"

	orderingv1 "github.com/vladislavdragonenkov/ordering/api/ordering/v1"
)

const scenarioMethod = "scenario"

type latencySummary struct {
	Min float64 `json:"min"`
	Max float64 `json:"max"`
	Avg float64 `json:"avg"`
	P50 float64 `json:"p50"`
	P95 float64 `json:"p95"`
	P99 float64 `json:"p99"`
}

type methodReport struct {
	Calls     int64            `json:"calls"`
	Success   int64            `json:"success"`
	Failed    int64            `json:"failed"`
	ErrorRate float64          `json:"error_rate"`
	Codes     map[string]int64 `json:"codes"`
	LatencyMs latencySummary   `json:"latency_ms"`
}

// stockReport сверяет остаток до и после прогона с числом оформленных единиц.
type stockReport struct {
	ProductID    string `json:"product_id"`
	Before       int64  `json:"before"`
	After        int64  `json:"after"`
	UnitsOrdered int64  `json:"units_ordered"`
	Consistent   bool   `json:"consistent"`
}

type report struct {
	StartedAt         time.Time               `json:"started_at"`
	DurationSeconds   float64                 `json:"duration_seconds"`
	TotalScenarios    int64                   `json:"total_scenarios"`
	SuccessScenarios  int64                   `json:"success_scenarios"`
	RejectedScenarios int64                   `json:"rejected_scenarios"`
	FailedScenarios   int64                   `json:"failed_scenarios"`
	ErrorRate         float64                 `json:"error_rate"`
	RPS               float64                 `json:"rps"`
	ScenarioLatencyMs latencySummary          `json:"scenario_latency_ms"`
	Methods           map[string]methodReport `json:"methods"`
	Stock             []stockReport           `json:"stock,omitempty"`
}

type methodStats struct {
	calls     int64
	success   int64
	failed    int64
	codes     map[string]int64
	latencies []time.Duration
}

// collector копит результаты вызовов. FailedPrecondition (нет остатка) —
// ожидаемый отказ, а не ошибка сервиса.
type collector struct {
	mu       sync.Mutex
	methods  map[string]*methodStats
	rejected int64
	units    map[string]int64
}

func newCollector() *collector {
	return &collector{
		methods: make(map[string]*methodStats),
		units:   make(map[string]int64),
	}
}

func (c *collector) record(method string, latency time.Duration, code codes.Code) {
	c.mu.Lock()
	defer c.mu.Unlock()

	stats, ok := c.methods[method]
	if !ok {
		stats = &methodStats{codes: make(map[string]int64)}
		c.methods[method] = stats
	}

	stats.calls++
	switch {
	case code == codes.OK:
		stats.success++
	case code == codes.FailedPrecondition:
		if method == scenarioMethod {
			c.rejected++
		}
	default:
		stats.failed++
	}
	stats.codes[code.String()]++
	stats.latencies = append(stats.latencies, latency)
}

func (c *collector) addUnits(products []orderingv1.RequestedProduct) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, product := range products {
		c.units[product.ProductID] += product.Quantity
	}
}

func (c *collector) orderedUnits(productID string) int64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.units[productID]
}

func (c *collector) buildReport(startedAt time.Time, duration time.Duration) report {
	c.mu.Lock()
	defer c.mu.Unlock()

	result := report{
		StartedAt:         startedAt.UTC(),
		DurationSeconds:   duration.Seconds(),
		RejectedScenarios: c.rejected,
		Methods:           make(map[string]methodReport, len(c.methods)),
	}

	if stats := c.methods[scenarioMethod]; stats != nil {
		result.TotalScenarios = stats.calls
		result.SuccessScenarios = stats.success
		result.FailedScenarios = stats.failed
		result.ErrorRate = ratio(stats.failed, stats.calls)
		result.ScenarioLatencyMs = buildLatencySummary(stats.latencies)
	}
	if duration > 0 {
		result.RPS = float64(result.TotalScenarios) / duration.Seconds()
	}

	for name, stats := range c.methods {
		codesCopy := make(map[string]int64, len(stats.codes))
		for code, count := range stats.codes {
			codesCopy[code] = count
		}
		result.Methods[name] = methodReport{
			Calls:     stats.calls,
			Success:   stats.success,
			Failed:    stats.failed,
			ErrorRate: ratio(stats.failed, stats.calls),
			Codes:     codesCopy,
			LatencyMs: buildLatencySummary(stats.latencies),
		}
	}

	return result
}

func writeJSONReport(path string, result report) error {
	if !filepath.IsLocal(path) {
		return fmt.Errorf("output path must be a file inside the current directory: %q", path)
	}

	data, err := json.MarshalIndent(result, "", "  ")
	if err != nil {
		return fmt.Errorf("encode report: %w", err)
	}
	return os.WriteFile(filepath.Clean(path), append(data, '\n'), 0o600)
}

func printReport(w io.Writer, result report, cfg config) {
	fmt.Fprintf(w, "Load test %s (%s): %d scenarios in %.2fs, %.2f rps\n",
		cfg.mode, runTarget(cfg), result.TotalScenarios, result.DurationSeconds, result.RPS)
	fmt.Fprintf(w, "success=%d rejected=%d failed=%d error_rate=%.4f\n",
		result.SuccessScenarios, result.RejectedScenarios, result.FailedScenarios, result.ErrorRate)

	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "method\tcalls\tok\tfailed\tp50 ms\tp95 ms\tp99 ms\tmax ms")
	printLatencyRow(tw, scenarioMethod, result.TotalScenarios, result.SuccessScenarios, result.FailedScenarios, result.ScenarioLatencyMs)

	names := make([]string, 0, len(result.Methods))
	for name := range result.Methods {
		if name != scenarioMethod {
			names = append(names, name)
		}
	}
	slices.Sort(names)
	for _, name := range names {
		m := result.Methods[name]
		printLatencyRow(tw, name, m.Calls, m.Success, m.Failed, m.LatencyMs)
	}
	_ = tw.Flush()

	for _, stock := range result.Stock {
		fmt.Fprintf(w, "stock %s: before=%d after=%d ordered=%d consistent=%t\n",
			stock.ProductID, stock.Before, stock.After, stock.UnitsOrdered, stock.Consistent)
	}
}

func printLatencyRow(w io.Writer, name string, calls, ok, failed int64, l latencySummary) {
	fmt.Fprintf(w, "%s\t%d\t%d\t%d\t%.2f\t%.2f\t%.2f\t%.2f\n", name, calls, ok, failed, l.P50, l.P95, l.P99, l.Max)
}

func runTarget(cfg config) string {
	switch {
	case cfg.duration <= 0:
		return fmt.Sprintf("count:%d", cfg.total)
	case cfg.totalSet:
		return fmt.Sprintf("duration:%s,max-total:%d", cfg.duration, cfg.total)
	default:
		return fmt.Sprintf("duration:%s", cfg.duration)
	}
}

// buildLatencySummary считает статистику в миллисекундах; перцентили
// интерполируются между соседними значениями.
func buildLatencySummary(values []time.Duration) latencySummary {
	if len(values) == 0 {
		return latencySummary{}
	}

	ms := make([]float64, len(values))
	var sum float64
	for i, v := range values {
		ms[i] = float64(v) / float64(time.Millisecond)
		sum += ms[i]
	}
	slices.Sort(ms)

	return latencySummary{
		Min: ms[0],
		Max: ms[len(ms)-1],
		Avg: sum / float64(len(ms)),
		P50: percentile(ms, 50),
		P95: percentile(ms, 95),
		P99: percentile(ms, 99),
	}
}

func percentile(sorted []float64, p float64) float64 {
	switch len(sorted) {
	case 0:
		return 0
	case 1:
		return sorted[0]
	}

	rank := p / 100 * float64(len(sorted)-1)
	lo := int(math.Floor(rank))
	hi := min(lo+1, len(sorted)-1)
	return sorted[lo] + (sorted[hi]-sorted[lo])*(rank-float64(lo))
}

func ratio(failed, total int64) float64 {
	if total <= 0 {
		return 0
	}
	return float64(failed) / float64(total)
}
