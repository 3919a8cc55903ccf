package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"sync"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/status"

	orderingv1 "github.com/vladislavdragonenkov/ordering/api/ordering/v1"
)

type loadMode string

const (
	modeCreate    loadMode = "create"
	modeCreateGet loadMode = "create-get"
)

// orderClient — подмножество OrderServiceClient, которое нужно нагрузочному прогону.
type orderClient interface {
	CreateOrder(ctx context.Context, in *orderingv1.CreateOrderRequest, opts ...grpc.CallOption) (*orderingv1.CreateOrderResponse, error)
	GetOrder(ctx context.Context, in *orderingv1.GetOrderRequest, opts ...grpc.CallOption) (*orderingv1.GetOrderResponse, error)
	GetProduct(ctx context.Context, in *orderingv1.GetProductRequest, opts ...grpc.CallOption) (*orderingv1.GetProductResponse, error)
}

type config struct {
	addr        string
	total       int
	totalSet    bool
	duration    time.Duration
	concurrency int
	connections int
	timeout     time.Duration
	mode        loadMode
	customerID  string
	products    []orderingv1.RequestedProduct
	checkStock  bool
	outputPath  string
}

func parseConfig(args []string) (config, error) {
	var cfg config
	var modeValue string
	var productsValue string

	fs := flag.NewFlagSet("loadtest", flag.ContinueOnError)
	fs.SetOutput(io.Discard)
	fs.StringVar(&cfg.addr, "addr", "localhost:50051", "gRPC target address")
	fs.IntVar(&cfg.total, "total", 400, "total scenarios to execute in count mode; in duration mode only used when explicitly set")
	fs.DurationVar(&cfg.duration, "duration", 0, "optional time-based run duration (e.g. 10m)")
	fs.IntVar(&cfg.concurrency, "concurrency", 40, "number of concurrent workers")
	fs.IntVar(&cfg.connections, "connections", 20, "number of gRPC client connections")
	fs.DurationVar(&cfg.timeout, "timeout", 5*time.Second, "per-RPC timeout")
	fs.StringVar(&modeValue, "mode", string(modeCreate), "load mode: create | create-get")
	fs.StringVar(&cfg.customerID, "customer", "C1", "customer id placing the orders")
	fs.StringVar(&productsValue, "products", "P1:1", "requested products as id:qty,id:qty")
	fs.BoolVar(&cfg.checkStock, "check-stock", true, "compare product stock before and after the run")
	fs.StringVar(&cfg.outputPath, "output", "", "optional JSON report output file path")
	if err := fs.Parse(args); err != nil {
		return cfg, err
	}

	fs.Visit(func(f *flag.Flag) {
		if f.Name == "total" {
			cfg.totalSet = true
		}
	})

	mode, err := parseMode(modeValue)
	if err != nil {
		return cfg, err
	}
	cfg.mode = mode

	products, err := parseProducts(productsValue)
	if err != nil {
		return cfg, err
	}
	cfg.products = products
	cfg.customerID = strings.TrimSpace(cfg.customerID)

	if cfg.duration < 0 {
		return cfg, errors.New("duration must be >= 0")
	}
	if cfg.duration == 0 && cfg.total <= 0 {
		return cfg, errors.New("total must be > 0 when duration is not set")
	}
	if cfg.duration > 0 && cfg.totalSet && cfg.total <= 0 {
		return cfg, errors.New("total must be > 0 when explicitly set with duration")
	}
	if cfg.concurrency <= 0 {
		return cfg, errors.New("concurrency must be > 0")
	}
	if cfg.connections <= 0 {
		return cfg, errors.New("connections must be > 0")
	}
	if cfg.timeout <= 0 {
		return cfg, errors.New("timeout must be > 0")
	}
	if cfg.customerID == "" {
		return cfg, errors.New("customer is required")
	}

	return cfg, nil
}

func parseMode(value string) (loadMode, error) {
	mode := loadMode(strings.ToLower(strings.TrimSpace(value)))
	switch mode {
	case modeCreate, modeCreateGet:
		return mode, nil
	default:
		return "", fmt.Errorf("unsupported mode %q", value)
	}
}

// parseProducts разбирает "P1:2,P2:1". Количество без двоеточия равно 1.
func parseProducts(value string) ([]orderingv1.RequestedProduct, error) {
	var products []orderingv1.RequestedProduct
	for _, part := range strings.Split(value, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}

		id, qtyValue, hasQty := strings.Cut(part, ":")
		id = strings.TrimSpace(id)
		if id == "" {
			return nil, fmt.Errorf("product id is empty in %q", part)
		}

		qty := int64(1)
		if hasQty {
			parsed, err := strconv.ParseInt(strings.TrimSpace(qtyValue), 10, 64)
			if err != nil || parsed <= 0 {
				return nil, fmt.Errorf("invalid quantity in %q", part)
			}
			qty = parsed
		}
		products = append(products, orderingv1.RequestedProduct{ProductID: id, Quantity: qty})
	}

	if len(products) == 0 {
		return nil, errors.New("at least one product is required")
	}
	return products, nil
}

func main() {
	cfg, err := parseConfig(os.Args[1:])
	if err != nil {
		_, _ = fmt.Fprintf(os.Stderr, "invalid config: %v\n", err)
		os.Exit(2)
	}

	conns := make([]*grpc.ClientConn, 0, cfg.connections)
	clients := make([]orderClient, 0, cfg.connections)
	for i := 0; i < cfg.connections; i++ {
		conn, dialErr := grpc.NewClient(cfg.addr, grpc.WithTransportCredentials(insecure.NewCredentials()))
		if dialErr != nil {
			_, _ = fmt.Fprintf(os.Stderr, "failed to create grpc client connection: %v\n", dialErr)
			os.Exit(1)
		}
		conns = append(conns, conn)
		clients = append(clients, orderingv1.NewOrderServiceClient(conn))
	}
	defer func() {
		for _, conn := range conns {
			_ = conn.Close()
		}
	}()

	result, err := run(context.Background(), cfg, clients)
	if err != nil {
		_, _ = fmt.Fprintf(os.Stderr, "load test failed: %v\n", err)
		os.Exit(1)
	}

	printReport(os.Stdout, result, cfg)
	if cfg.outputPath != "" {
		if err := writeJSONReport(cfg.outputPath, result); err != nil {
			_, _ = fmt.Fprintf(os.Stderr, "failed to write report: %v\n", err)
			os.Exit(1)
		}
	}

	if result.FailedScenarios > 0 || !stockConsistent(result.Stock) {
		os.Exit(1)
	}
}

// run прогоняет сценарии на clients и, если включено, сверяет остатки:
// до - заказано == после, после >= 0.
func run(ctx context.Context, cfg config, clients []orderClient) (report, error) {
	if len(clients) == 0 {
		return report{}, errors.New("no clients")
	}

	var before map[string]int64
	if cfg.checkStock {
		snapshot, err := stockSnapshot(ctx, clients[0], cfg)
		if err != nil {
			return report{}, fmt.Errorf("read stock before run: %w", err)
		}
		before = snapshot
	}

	startedAt := time.Now()
	col := newCollector()
	jobs := make(chan int, cfg.concurrency*2)
	var wg sync.WaitGroup

	for workerID := 0; workerID < cfg.concurrency; workerID++ {
		wg.Add(1)
		go func(cli orderClient) {
			defer wg.Done()
			for range jobs {
				runScenario(ctx, cli, cfg, col)
			}
		}(clients[workerID%len(clients)])
	}

	dispatchJobs(jobs, cfg)
	wg.Wait()

	result := col.buildReport(startedAt, time.Since(startedAt))
	if !cfg.checkStock {
		return result, nil
	}

	after, err := stockSnapshot(ctx, clients[0], cfg)
	if err != nil {
		return result, fmt.Errorf("read stock after run: %w", err)
	}
	for _, productID := range uniqueProductIDs(cfg.products) {
		ordered := col.orderedUnits(productID)
		result.Stock = append(result.Stock, stockReport{
			ProductID:    productID,
			Before:       before[productID],
			After:        after[productID],
			UnitsOrdered: ordered,
			Consistent:   after[productID] >= 0 && before[productID]-ordered == after[productID],
		})
	}

	return result, nil
}

func dispatchJobs(jobs chan<- int, cfg config) {
	defer close(jobs)

	if cfg.duration <= 0 {
		for i := 0; i < cfg.total; i++ {
			jobs <- i
		}
		return
	}

	timer := time.NewTimer(cfg.duration)
	defer timer.Stop()

	for i := 0; ; i++ {
		if cfg.totalSet && i >= cfg.total {
			return
		}

		select {
		case <-timer.C:
			return
		case jobs <- i:
		}
	}
}

// runScenario оформляет один заказ и в режиме create-get читает его обратно.
func runScenario(ctx context.Context, client orderClient, cfg config, col *collector) codes.Code {
	scenarioStart := time.Now()
	scenarioCode := codes.OK
	defer func() {
		col.record(scenarioMethod, time.Since(scenarioStart), scenarioCode)
	}()

	order, err := callCreateOrder(ctx, client, cfg, col)
	if err != nil {
		scenarioCode = grpcCode(err)
		return scenarioCode
	}
	col.addUnits(cfg.products)

	if order.ID == "" {
		scenarioCode = codes.Internal
		return scenarioCode
	}
	if cfg.mode == modeCreate {
		return scenarioCode
	}

	if err := callGetOrder(ctx, client, cfg.timeout, order.ID, col); err != nil {
		scenarioCode = grpcCode(err)
	}
	return scenarioCode
}

func callCreateOrder(ctx context.Context, client orderClient, cfg config, col *collector) (*orderingv1.Order, error) {
	callCtx, cancel := context.WithTimeout(ctx, cfg.timeout)
	defer cancel()

	products := make([]orderingv1.RequestedProduct, len(cfg.products))
	copy(products, cfg.products)

	start := time.Now()
	resp, err := client.CreateOrder(callCtx, &orderingv1.CreateOrderRequest{
		CustomerID: cfg.customerID,
		Products:   products,
	})
	col.record("CreateOrder", time.Since(start), grpcCode(err))
	if err != nil {
		return nil, err
	}
	if resp == nil || resp.Order == nil {
		return &orderingv1.Order{}, nil
	}
	return resp.Order, nil
}

func callGetOrder(ctx context.Context, client orderClient, timeout time.Duration, orderID string, col *collector) error {
	callCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	start := time.Now()
	_, err := client.GetOrder(callCtx, &orderingv1.GetOrderRequest{OrderID: orderID})
	col.record("GetOrder", time.Since(start), grpcCode(err))
	return err
}

func stockSnapshot(ctx context.Context, client orderClient, cfg config) (map[string]int64, error) {
	snapshot := make(map[string]int64)
	for _, productID := range uniqueProductIDs(cfg.products) {
		callCtx, cancel := context.WithTimeout(ctx, cfg.timeout)
		resp, err := client.GetProduct(callCtx, &orderingv1.GetProductRequest{ProductID: productID})
		cancel()
		if err != nil {
			return nil, fmt.Errorf("get product %s: %w", productID, err)
		}
		if resp == nil || resp.Product == nil {
			return nil, fmt.Errorf("get product %s: empty response", productID)
		}
		snapshot[productID] = resp.Product.Quantity
	}
	return snapshot, nil
}

func uniqueProductIDs(products []orderingv1.RequestedProduct) []string {
	seen := make(map[string]struct{}, len(products))
	ids := make([]string, 0, len(products))
	for _, product := range products {
		if _, ok := seen[product.ProductID]; ok {
			continue
		}
		seen[product.ProductID] = struct{}{}
		ids = append(ids, product.ProductID)
	}
	return ids
}

func stockConsistent(stock []stockReport) bool {
	for _, entry := range stock {
		if !entry.Consistent {
			return false
		}
	}
	return true
}

func grpcCode(err error) codes.Code {
	if err == nil {
		return codes.OK
	}
	return status.Code(err)
}
