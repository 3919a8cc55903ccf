package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/status"
	"google.golang.org/grpc/test/bufconn"

	orderingv1 "github.com/vladislavdragonenkov/ordering/api/ordering/v1"
	"github.com/vladislavdragonenkov/ordering/internal/domain"
	grpcsvc "github.com/vladislavdragonenkov/ordering/internal/service/grpc"
	"github.com/vladislavdragonenkov/ordering/internal/service/ordering"
	"github.com/vladislavdragonenkov/ordering/internal/storage/memory"
)

// fakeOrderClient держит остаток одного склада и списывает его под мьютексом.
type fakeOrderClient struct {
	mu       sync.Mutex
	stock    map[string]int64
	createFn func(*orderingv1.CreateOrderRequest) error
	getFn    func(*orderingv1.GetOrderRequest) error
	created  int
	gets     int
}

func newFakeClient(stock map[string]int64) *fakeOrderClient {
	return &fakeOrderClient{stock: stock}
}

func (f *fakeOrderClient) CreateOrder(_ context.Context, req *orderingv1.CreateOrderRequest, _ ...grpc.CallOption) (*orderingv1.CreateOrderResponse, error) {
	if f.createFn != nil {
		if err := f.createFn(req); err != nil {
			return nil, err
		}
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	for _, product := range req.Products {
		if f.stock[product.ProductID] < product.Quantity {
			return nil, status.Error(codes.FailedPrecondition, "insufficient stock")
		}
	}
	for _, product := range req.Products {
		f.stock[product.ProductID] -= product.Quantity
	}
	f.created++
	return &orderingv1.CreateOrderResponse{Order: &orderingv1.Order{ID: "order-" + time.Now().Format("150405.000000000")}}, nil
}

func (f *fakeOrderClient) GetOrder(_ context.Context, req *orderingv1.GetOrderRequest, _ ...grpc.CallOption) (*orderingv1.GetOrderResponse, error) {
	f.mu.Lock()
	f.gets++
	f.mu.Unlock()
	if f.getFn != nil {
		if err := f.getFn(req); err != nil {
			return nil, err
		}
	}
	return &orderingv1.GetOrderResponse{Order: &orderingv1.Order{ID: req.OrderID}}, nil
}

func (f *fakeOrderClient) GetProduct(_ context.Context, req *orderingv1.GetProductRequest, _ ...grpc.CallOption) (*orderingv1.GetProductResponse, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	qty, ok := f.stock[req.ProductID]
	if !ok {
		return nil, status.Error(codes.NotFound, "product not found")
	}
	return &orderingv1.GetProductResponse{Product: &orderingv1.Product{ID: req.ProductID, Quantity: qty}}, nil
}

func TestParseMode(t *testing.T) {
	tests := []struct {
		in      string
		want    loadMode
		wantErr bool
	}{
		{in: "create", want: modeCreate},
		{in: " Create-Get ", want: modeCreateGet},
		{in: "create-pay", wantErr: true},
		{in: "", wantErr: true},
	}

	for _, tt := range tests {
		got, err := parseMode(tt.in)
		if tt.wantErr {
			if err == nil {
				t.Fatalf("parseMode(%q) expected error", tt.in)
			}
			continue
		}
		if err != nil {
			t.Fatalf("parseMode(%q) unexpected error: %v", tt.in, err)
		}
		if got != tt.want {
			t.Fatalf("parseMode(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestParseProducts(t *testing.T) {
	got, err := parseProducts("P1:2, P2 ,P1:1")
	if err != nil {
		t.Fatalf("parseProducts unexpected error: %v", err)
	}
	want := []orderingv1.RequestedProduct{
		{ProductID: "P1", Quantity: 2},
		{ProductID: "P2", Quantity: 1},
		{ProductID: "P1", Quantity: 1},
	}
	if len(got) != len(want) {
		t.Fatalf("parseProducts len = %d, want %d", len(got), len(want))
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("parseProducts[%d] = %+v, want %+v", i, got[i], want[i])
		}
	}

	for _, bad := range []string{"", " , ", ":2", "P1:0", "P1:-1", "P1:x"} {
		if _, err := parseProducts(bad); err == nil {
			t.Fatalf("parseProducts(%q) expected error", bad)
		}
	}
}

func TestParseConfig(t *testing.T) {
	cfg, err := parseConfig(nil)
	if err != nil {
		t.Fatalf("parseConfig defaults: %v", err)
	}
	if cfg.addr != "localhost:50051" || cfg.total != 400 || cfg.totalSet {
		t.Fatalf("unexpected defaults: %+v", cfg)
	}
	if cfg.mode != modeCreate || cfg.customerID != "C1" || !cfg.checkStock {
		t.Fatalf("unexpected defaults: %+v", cfg)
	}
	if len(cfg.products) != 1 || cfg.products[0].ProductID != "P1" {
		t.Fatalf("unexpected default products: %+v", cfg.products)
	}

	cfg, err = parseConfig([]string{
		"-duration", "2s", "-total", "10", "-mode", "create-get",
		"-customer", " C2 ", "-products", "P3:2", "-check-stock=false",
	})
	if err != nil {
		t.Fatalf("parseConfig: %v", err)
	}
	if !cfg.totalSet || cfg.duration != 2*time.Second || cfg.mode != modeCreateGet {
		t.Fatalf("unexpected config: %+v", cfg)
	}
	if cfg.customerID != "C2" || cfg.checkStock {
		t.Fatalf("unexpected config: %+v", cfg)
	}

	invalid := [][]string{
		{"-duration", "-1s"},
		{"-total", "0"},
		{"-duration", "1s", "-total", "0"},
		{"-concurrency", "0"},
		{"-connections", "0"},
		{"-timeout", "0s"},
		{"-customer", " "},
		{"-mode", "refund"},
		{"-products", "P1:0"},
		{"-unknown"},
	}
	for _, args := range invalid {
		if _, err := parseConfig(args); err == nil {
			t.Fatalf("parseConfig(%v) expected error", args)
		}
	}
}

func TestDispatchJobs(t *testing.T) {
	jobs := make(chan int, 10)
	dispatchJobs(jobs, config{total: 3})
	var got []int
	for id := range jobs {
		got = append(got, id)
	}
	if len(got) != 3 || got[0] != 0 || got[2] != 2 {
		t.Fatalf("count mode jobs = %v", got)
	}

	jobs = make(chan int, 10)
	dispatchJobs(jobs, config{duration: time.Second, total: 5, totalSet: true})
	count := 0
	for range jobs {
		count++
	}
	if count != 5 {
		t.Fatalf("duration mode with max total dispatched %d jobs, want 5", count)
	}

	jobs = make(chan int)
	done := make(chan struct{})
	go func() {
		dispatchJobs(jobs, config{duration: 20 * time.Millisecond})
		close(done)
	}()
	for range jobs {
	}
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("duration mode did not stop")
	}
}

func TestCollectorAndReport(t *testing.T) {
	col := newCollector()
	col.record(scenarioMethod, 10*time.Millisecond, codes.OK)
	col.record(scenarioMethod, 20*time.Millisecond, codes.FailedPrecondition)
	col.record(scenarioMethod, 30*time.Millisecond, codes.Unavailable)
	col.record("CreateOrder", 5*time.Millisecond, codes.OK)
	col.record("CreateOrder", 6*time.Millisecond, codes.FailedPrecondition)
	col.addUnits([]orderingv1.RequestedProduct{{ProductID: "P1", Quantity: 2}, {ProductID: "P1", Quantity: 1}})

	result := col.buildReport(time.Unix(0, 0), 2*time.Second)
	if result.TotalScenarios != 3 || result.SuccessScenarios != 1 {
		t.Fatalf("unexpected totals: %+v", result)
	}
	if result.RejectedScenarios != 1 || result.FailedScenarios != 1 {
		t.Fatalf("rejected=%d failed=%d", result.RejectedScenarios, result.FailedScenarios)
	}
	if result.RPS != 1.5 {
		t.Fatalf("rps = %v, want 1.5", result.RPS)
	}
	create := result.Methods["CreateOrder"]
	if create.Calls != 2 || create.Failed != 0 || create.Codes["FailedPrecondition"] != 1 {
		t.Fatalf("unexpected CreateOrder stats: %+v", create)
	}
	if result.ScenarioLatencyMs.Min != 10 || result.ScenarioLatencyMs.Max != 30 {
		t.Fatalf("unexpected latency summary: %+v", result.ScenarioLatencyMs)
	}
	if got := col.orderedUnits("P1"); got != 3 {
		t.Fatalf("ordered units = %d, want 3", got)
	}
}

func TestUtilityFunctions(t *testing.T) {
	if got := percentile(nil, 50); got != 0 {
		t.Fatalf("percentile(nil) = %v", got)
	}
	if got := percentile([]float64{7}, 99); got != 7 {
		t.Fatalf("percentile single = %v", got)
	}
	if got := percentile([]float64{1, 2, 3, 4}, 50); got != 2.5 {
		t.Fatalf("percentile interpolated = %v", got)
	}
	if got := ratio(1, 0); got != 0 {
		t.Fatalf("ratio zero total = %v", got)
	}
	if got := ratio(1, 4); got != 0.25 {
		t.Fatalf("ratio = %v", got)
	}
	if got := grpcCode(nil); got != codes.OK {
		t.Fatalf("grpcCode(nil) = %v", got)
	}
	if got := grpcCode(errors.New("plain")); got != codes.Unknown {
		t.Fatalf("grpcCode(plain) = %v", got)
	}
	if got := runTarget(config{total: 5}); got != "count:5" {
		t.Fatalf("runTarget count = %q", got)
	}
	if got := runTarget(config{duration: time.Minute, total: 5, totalSet: true}); got != "duration:1m0s,max-total:5" {
		t.Fatalf("runTarget duration = %q", got)
	}
	ids := uniqueProductIDs([]orderingv1.RequestedProduct{{ProductID: "P1"}, {ProductID: "P2"}, {ProductID: "P1"}})
	if len(ids) != 2 || ids[0] != "P1" || ids[1] != "P2" {
		t.Fatalf("uniqueProductIDs = %v", ids)
	}
	if !stockConsistent(nil) || stockConsistent([]stockReport{{Consistent: true}, {Consistent: false}}) {
		t.Fatal("stockConsistent returned unexpected value")
	}
}

func TestWriteJSONReport(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "report.json")
	result := report{TotalScenarios: 2, Stock: []stockReport{{ProductID: "P1", Before: 5, After: 3, UnitsOrdered: 2, Consistent: true}}}

	if err := writeJSONReport(path, result); err != nil {
		t.Fatalf("writeJSONReport: %v", err)
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read report: %v", err)
	}
	var decoded report
	if err := json.Unmarshal(raw, &decoded); err != nil {
		t.Fatalf("decode report: %v", err)
	}
	if decoded.TotalScenarios != 2 || len(decoded.Stock) != 1 || !decoded.Stock[0].Consistent {
		t.Fatalf("unexpected decoded report: %+v", decoded)
	}

	for _, bad := range []string{".", "/", "../report.json"} {
		if err := writeJSONReport(bad, result); err == nil {
			t.Fatalf("writeJSONReport(%q) expected error", bad)
		}
	}
}

func TestPrintReport(t *testing.T) {
	col := newCollector()
	col.record(scenarioMethod, time.Millisecond, codes.OK)
	col.record("CreateOrder", time.Millisecond, codes.OK)
	result := col.buildReport(time.Now(), time.Second)
	result.Stock = []stockReport{{ProductID: "P1", Before: 2, After: 1, UnitsOrdered: 1, Consistent: true}}

	var out bytes.Buffer
	printReport(&out, result, config{mode: modeCreate, total: 1})
	text := out.String()
	for _, want := range []string{"Load test create (count:1)", "success=1 rejected=0 failed=0", "stock P1: before=2 after=1 ordered=1 consistent=true"} {
		if !strings.Contains(text, want) {
			t.Fatalf("report output %q does not contain %q", text, want)
		}
	}

	var rows []string
	for _, line := range strings.Split(text, "\n") {
		fields := strings.Fields(line)
		if len(fields) == 8 && (fields[0] == scenarioMethod || fields[0] == "CreateOrder") {
			rows = append(rows, fields[0]+":"+fields[1])
		}
	}
	if len(rows) != 2 || rows[0] != "scenario:1" || rows[1] != "CreateOrder:1" {
		t.Fatalf("unexpected method rows %v in %q", rows, text)
	}
}

func TestRunScenario(t *testing.T) {
	client := newFakeClient(map[string]int64{"P1": 1})
	cfg := config{timeout: time.Second, mode: modeCreateGet, customerID: "C1", products: []orderingv1.RequestedProduct{{ProductID: "P1", Quantity: 1}}}
	col := newCollector()

	if got := runScenario(context.Background(), client, cfg, col); got != codes.OK {
		t.Fatalf("first scenario code = %v", got)
	}
	if got := runScenario(context.Background(), client, cfg, col); got != codes.FailedPrecondition {
		t.Fatalf("second scenario code = %v", got)
	}
	if client.gets != 1 {
		t.Fatalf("GetOrder calls = %d, want 1", client.gets)
	}

	client.getFn = func(*orderingv1.GetOrderRequest) error { return status.Error(codes.Unavailable, "down") }
	client.stock["P1"] = 1
	if got := runScenario(context.Background(), client, cfg, col); got != codes.Unavailable {
		t.Fatalf("scenario with failing GetOrder code = %v", got)
	}

	result := col.buildReport(time.Now(), time.Second)
	if result.SuccessScenarios != 1 || result.RejectedScenarios != 1 || result.FailedScenarios != 1 {
		t.Fatalf("unexpected report: %+v", result)
	}
	if got := col.orderedUnits("P1"); got != 2 {
		t.Fatalf("ordered units = %d, want 2", got)
	}
}

func TestRun_StockStaysConsistentUnderContention(t *testing.T) {
	client := newFakeClient(map[string]int64{"P1": 7, "P2": 100})
	cfg := config{
		total:       50,
		concurrency: 8,
		timeout:     time.Second,
		mode:        modeCreate,
		customerID:  "C1",
		products:    []orderingv1.RequestedProduct{{ProductID: "P1", Quantity: 1}, {ProductID: "P2", Quantity: 2}},
		checkStock:  true,
	}

	result, err := run(context.Background(), cfg, []orderClient{client, client})
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if result.SuccessScenarios != 7 || result.RejectedScenarios != 43 || result.FailedScenarios != 0 {
		t.Fatalf("unexpected scenario counts: %+v", result)
	}
	if len(result.Stock) != 2 {
		t.Fatalf("stock entries = %d, want 2", len(result.Stock))
	}
	for _, entry := range result.Stock {
		if !entry.Consistent {
			t.Fatalf("stock for %s is inconsistent: %+v", entry.ProductID, entry)
		}
	}
	if result.Stock[0].After != 0 || result.Stock[1].After != 86 {
		t.Fatalf("unexpected stock after run: %+v", result.Stock)
	}
}

func TestRun_Errors(t *testing.T) {
	if _, err := run(context.Background(), config{}, nil); err == nil {
		t.Fatal("expected error without clients")
	}

	cfg := config{total: 1, concurrency: 1, timeout: time.Second, customerID: "C1", mode: modeCreate,
		products: []orderingv1.RequestedProduct{{ProductID: "missing", Quantity: 1}}, checkStock: true}
	if _, err := run(context.Background(), cfg, []orderClient{newFakeClient(map[string]int64{})}); err == nil {
		t.Fatal("expected error when product is unknown")
	}
}

func TestRun_AgainstOrderService(t *testing.T) {
	ctx := context.Background()
	store := memory.NewStore()
	if err := store.Customers().Upsert(ctx, domain.Customer{ID: "C1", Name: "Alice"}); err != nil {
		t.Fatalf("seed customer: %v", err)
	}
	if err := store.Products().Upsert(ctx, domain.Product{ID: "P1", Name: "Pen", Quantity: 5, PriceMinor: 500, Currency: "USD"}); err != nil {
		t.Fatalf("seed product: %v", err)
	}

	logger := logrus.New()
	logger.SetOutput(os.Stderr)
	logger.SetLevel(logrus.WarnLevel)
	entry := logger.WithField("component", "loadtest-test")

	workflow := ordering.NewWorkflow(ordering.Deps{
		Customers: store.Customers(),
		Products:  store.Products(),
		Orders:    store.Orders(),
		Tx:        store,
		Outbox:    store.Outbox(),
		Timeline:  store.Timeline(),
		Logger:    entry,
	})

	listener := bufconn.Listen(1024 * 1024)
	server := grpc.NewServer(orderingv1.ServerOption())
	orderingv1.RegisterOrderServiceServer(server, grpcsvc.NewOrderService(workflow, store.Orders(), store.Products(), store.Timeline(), entry))
	go func() {
		_ = server.Serve(listener)
	}()
	defer server.Stop()

	conn, err := grpc.NewClient("passthrough:///bufnet",
		grpc.WithContextDialer(func(context.Context, string) (net.Conn, error) { return listener.Dial() }),
		grpc.WithTransportCredentials(insecure.NewCredentials()),
	)
	if err != nil {
		t.Fatalf("create client: %v", err)
	}
	defer conn.Close()

	cfg := config{
		total:       12,
		concurrency: 4,
		timeout:     5 * time.Second,
		mode:        modeCreateGet,
		customerID:  "C1",
		products:    []orderingv1.RequestedProduct{{ProductID: "P1", Quantity: 2}},
		checkStock:  true,
	}
	result, err := run(ctx, cfg, []orderClient{orderingv1.NewOrderServiceClient(conn)})
	if err != nil {
		t.Fatalf("run: %v", err)
	}

	if result.SuccessScenarios != 2 || result.RejectedScenarios != 10 || result.FailedScenarios != 0 {
		t.Fatalf("unexpected scenario counts: %+v", result)
	}
	if len(result.Stock) != 1 || result.Stock[0].After != 1 || !result.Stock[0].Consistent {
		t.Fatalf("unexpected stock report: %+v", result.Stock)
	}
}
