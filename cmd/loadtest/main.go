// Команда loadtest нагружает gRPC API заказов и печатает сводку по задержкам.
package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"math"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"text/tabwriter"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/status"

	"github.com/vladislavdragonenkov/storefront/internal/api/orderv1"
)

const (
	demoCustomerID = "11111111-1111-4111-8111-111111111111"
	demoProductID  = "22222222-2222-4222-8222-222222222222"
	scenarioMethod = "scenario"
)

type loadMode string

const (
	modeCreate     loadMode = "create"
	modeCreateGet  loadMode = "create-get"
	modeCreateList loadMode = "create-list"
)

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
	productIDs  []string
	quantity    int
	outputPath  string
}

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
	Rejected  int64            `json:"rejected"`
	Failed    int64            `json:"failed"`
	ErrorRate float64          `json:"error_rate"`
	Codes     map[string]int64 `json:"codes"`
	LatencyMs latencySummary   `json:"latency_ms"`
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
}

// outcome делит ответы на успех, бизнес-отказ и сбой.
type outcome int

const (
	outcomeSuccess outcome = iota
	outcomeRejected
	outcomeFailed
)

// classify: FailedPrecondition означает нехватку товара на складе, это не сбой сервиса.
func classify(code codes.Code) outcome {
	switch code {
	case codes.OK:
		return outcomeSuccess
	case codes.FailedPrecondition:
		return outcomeRejected
	default:
		return outcomeFailed
	}
}

type callStats struct {
	outcomes  [3]int64
	codes     map[codes.Code]int64
	latencies []time.Duration
}

func (s *callStats) calls() int64 {
	return s.outcomes[outcomeSuccess] + s.outcomes[outcomeRejected] + s.outcomes[outcomeFailed]
}

func (s *callStats) report() methodReport {
	byName := make(map[string]int64, len(s.codes))
	for code, count := range s.codes {
		byName[code.String()] = count
	}
	return methodReport{
		Calls:     s.calls(),
		Success:   s.outcomes[outcomeSuccess],
		Rejected:  s.outcomes[outcomeRejected],
		Failed:    s.outcomes[outcomeFailed],
		ErrorRate: ratio(s.outcomes[outcomeFailed], s.calls()),
		Codes:     byName,
		LatencyMs: summarize(s.latencies),
	}
}

// recorder собирает статистику вызовов из нескольких воркеров.
type recorder struct {
	mu    sync.Mutex
	calls map[string]*callStats
}

func newRecorder() *recorder {
	return &recorder{calls: make(map[string]*callStats)}
}

func (r *recorder) observe(method string, latency time.Duration, code codes.Code) {
	r.mu.Lock()
	defer r.mu.Unlock()

	stats := r.calls[method]
	if stats == nil {
		stats = &callStats{codes: make(map[codes.Code]int64)}
		r.calls[method] = stats
	}
	stats.outcomes[classify(code)]++
	stats.codes[code]++
	stats.latencies = append(stats.latencies, latency)
}

func (r *recorder) method(name string) (methodReport, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	stats, ok := r.calls[name]
	if !ok {
		return methodReport{}, false
	}
	return stats.report(), true
}

func (r *recorder) report(startedAt time.Time, elapsed time.Duration) report {
	r.mu.Lock()
	defer r.mu.Unlock()

	result := report{
		StartedAt:       startedAt.UTC(),
		DurationSeconds: elapsed.Seconds(),
		Methods:         make(map[string]methodReport, len(r.calls)),
	}
	for name, stats := range r.calls {
		result.Methods[name] = stats.report()
	}

	if scenario, ok := result.Methods[scenarioMethod]; ok {
		result.TotalScenarios = scenario.Calls
		result.SuccessScenarios = scenario.Success
		result.RejectedScenarios = scenario.Rejected
		result.FailedScenarios = scenario.Failed
		result.ErrorRate = scenario.ErrorRate
		result.ScenarioLatencyMs = scenario.LatencyMs
	}
	if elapsed > 0 {
		result.RPS = float64(result.TotalScenarios) / elapsed.Seconds()
	}
	return result
}

func parseConfig(fs *flag.FlagSet, args []string) (config, error) {
	var (
		cfg        config
		modeValue  string
		productIDs string
	)

	fs.StringVar(&cfg.addr, "addr", "localhost:50051", "gRPC target address")
	fs.IntVar(&cfg.total, "total", 400, "total scenarios to execute in count mode; in duration mode only used when explicitly set")
	fs.DurationVar(&cfg.duration, "duration", 0, "optional time-based run duration (e.g. 10m, 15m)")
	fs.IntVar(&cfg.concurrency, "concurrency", 40, "number of concurrent workers")
	fs.IntVar(&cfg.connections, "connections", 20, "number of gRPC client connections")
	fs.DurationVar(&cfg.timeout, "timeout", 5*time.Second, "per-RPC timeout")
	fs.StringVar(&modeValue, "mode", string(modeCreate), "load mode: create | create-get | create-list")
	fs.StringVar(&cfg.customerID, "customer-id", demoCustomerID, "customer placing the orders")
	fs.StringVar(&productIDs, "products", demoProductID, "comma-separated product ids, one order line per product")
	fs.IntVar(&cfg.quantity, "quantity", 1, "quantity of every order line")
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
	cfg.productIDs = splitList(productIDs)

	switch {
	case cfg.duration < 0:
		return cfg, errors.New("duration must be >= 0")
	case cfg.duration == 0 && cfg.total <= 0:
		return cfg, errors.New("total must be > 0 when duration is not set")
	case cfg.duration > 0 && cfg.totalSet && cfg.total <= 0:
		return cfg, errors.New("total must be > 0 when explicitly set with duration")
	case cfg.concurrency <= 0:
		return cfg, errors.New("concurrency must be > 0")
	case cfg.connections <= 0:
		return cfg, errors.New("connections must be > 0")
	case cfg.timeout <= 0:
		return cfg, errors.New("timeout must be > 0")
	case cfg.quantity <= 0 || cfg.quantity > math.MaxInt32:
		return cfg, errors.New("quantity must be a positive int32")
	case strings.TrimSpace(cfg.customerID) == "":
		return cfg, errors.New("customer-id is required")
	case len(cfg.productIDs) == 0:
		return cfg, errors.New("at least one product id is required")
	}

	return cfg, nil
}

func parseMode(value string) (loadMode, error) {
	switch mode := loadMode(strings.TrimSpace(value)); mode {
	case modeCreate, modeCreateGet, modeCreateList:
		return mode, nil
	default:
		return "", fmt.Errorf("unsupported mode: %s", value)
	}
}

func splitList(raw string) []string {
	var items []string
	for _, chunk := range strings.Split(raw, ",") {
		if item := strings.TrimSpace(chunk); item != "" {
			items = append(items, item)
		}
	}
	return items
}

func main() {
	cfg, err := parseConfig(flag.CommandLine, os.Args[1:])
	if err != nil {
		_, _ = fmt.Fprintf(os.Stderr, "invalid config: %v\n", err)
		os.Exit(1)
	}

	conns := make([]*grpc.ClientConn, 0, cfg.connections)
	clients := make([]orderv1.OrderServiceClient, 0, cfg.connections)
	for i := 0; i < cfg.connections; i++ {
		conn, dialErr := grpc.NewClient(cfg.addr, grpc.WithTransportCredentials(insecure.NewCredentials()))
		if dialErr != nil {
			_, _ = fmt.Fprintf(os.Stderr, "failed to create grpc client connection: %v\n", dialErr)
			os.Exit(1)
		}
		conns = append(conns, conn)
		clients = append(clients, orderv1.NewOrderServiceClient(conn))
	}
	defer func() {
		for _, conn := range conns {
			_ = conn.Close()
		}
	}()

	result := runLoad(clients, cfg)

	printReport(os.Stdout, result, cfg)
	if cfg.outputPath != "" {
		if err := writeJSONReport(cfg.outputPath, result); err != nil {
			_, _ = fmt.Fprintf(os.Stderr, "failed to write report: %v\n", err)
			os.Exit(1)
		}
	}

	if result.FailedScenarios > 0 {
		os.Exit(1)
	}
}

func runLoad(clients []orderv1.OrderServiceClient, cfg config) report {
	startedAt := time.Now()
	rec := newRecorder()

	jobs := make(chan int, cfg.concurrency*2)
	var wg sync.WaitGroup
	for i := 0; i < cfg.concurrency; i++ {
		client := clients[i%len(clients)]
		wg.Add(1)
		go func() {
			defer wg.Done()
			for range jobs {
				_ = runScenario(client, cfg, rec)
			}
		}()
	}

	feed(jobs, cfg)
	wg.Wait()

	return rec.report(startedAt, time.Since(startedAt))
}

// feed раздаёт номера сценариев: ровно total в режиме счётчика, иначе до истечения
// duration (и не больше total, если он задан явно). Закрывает jobs по завершении.
func feed(jobs chan<- int, cfg config) {
	defer close(jobs)

	limit := cfg.total
	if cfg.duration > 0 && !cfg.totalSet {
		limit = math.MaxInt
	}

	var deadline <-chan time.Time
	if cfg.duration > 0 {
		timer := time.NewTimer(cfg.duration)
		defer timer.Stop()
		deadline = timer.C
	}

	for i := 0; i < limit; i++ {
		select {
		case <-deadline:
			return
		case jobs <- i:
		}
	}
}

func newCreateRequest(cfg config) *orderv1.CreateOrderRequest {
	req := &orderv1.CreateOrderRequest{
		CustomerID: cfg.customerID,
		Products:   make([]orderv1.ProductQuantity, 0, len(cfg.productIDs)),
	}
	for _, productID := range cfg.productIDs {
		req.Products = append(req.Products, orderv1.ProductQuantity{
			ProductID: productID,
			Quantity:  int32(cfg.quantity),
		})
	}
	return req
}

// runScenario создаёт заказ и, в зависимости от режима, читает его обратно.
// Итог сценария пишется отдельной строкой scenario.
func runScenario(client orderv1.OrderServiceClient, cfg config, rec *recorder) (err error) {
	start := time.Now()
	defer func() {
		rec.observe(scenarioMethod, time.Since(start), grpcCode(err))
	}()

	var created *orderv1.CreateOrderResponse
	if err := timed(rec, "CreateOrder", cfg.timeout, func(ctx context.Context) (err error) {
		created, err = client.CreateOrder(ctx, newCreateRequest(cfg))
		return err
	}); err != nil {
		return err
	}
	if created.Order == nil || created.Order.ID == "" {
		return status.Error(codes.Internal, "create response returned empty order id")
	}

	switch cfg.mode {
	case modeCreateGet:
		return timed(rec, "GetOrder", cfg.timeout, func(ctx context.Context) error {
			_, err := client.GetOrder(ctx, &orderv1.GetOrderRequest{OrderID: created.Order.ID})
			return err
		})
	case modeCreateList:
		return timed(rec, "ListCustomerOrders", cfg.timeout, func(ctx context.Context) error {
			_, err := client.ListCustomerOrders(ctx, &orderv1.ListCustomerOrdersRequest{CustomerID: cfg.customerID, Limit: 10})
			return err
		})
	default:
		return nil
	}
}

// timed выполняет один RPC с таймаутом и записывает его задержку и код.
func timed(rec *recorder, method string, timeout time.Duration, call func(ctx context.Context) error) error {
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	start := time.Now()
	err := call(ctx)
	rec.observe(method, time.Since(start), grpcCode(err))
	return err
}

func grpcCode(err error) codes.Code {
	if err == nil {
		return codes.OK
	}
	return status.Code(err)
}

func writeJSONReport(path string, result report) error {
	cleanPath := filepath.Clean(path)
	if cleanPath == "." || cleanPath == string(filepath.Separator) {
		return errors.New("output path must point to a file")
	}
	if cleanPath == ".." || strings.HasPrefix(cleanPath, ".."+string(filepath.Separator)) {
		return fmt.Errorf("output path must be inside current directory: %s", path)
	}

	// #nosec G304 -- путь задаётся явно флагом -output.
	file, err := os.Create(cleanPath)
	if err != nil {
		return err
	}
	defer file.Close()

	encoder := json.NewEncoder(file)
	encoder.SetIndent("", "  ")
	return encoder.Encode(result)
}

func printReport(w io.Writer, result report, cfg config) {
	_, _ = fmt.Fprintf(w, "Load test summary: mode=%s run=%s\n", cfg.mode, runTarget(cfg))
	_, _ = fmt.Fprintf(w, "scenarios total=%d success=%d rejected=%d failed=%d error_rate=%.4f rps=%.2f duration=%.2fs\n",
		result.TotalScenarios,
		result.SuccessScenarios,
		result.RejectedScenarios,
		result.FailedScenarios,
		result.ErrorRate,
		result.RPS,
		result.DurationSeconds,
	)

	names := make([]string, 0, len(result.Methods))
	for name := range result.Methods {
		names = append(names, name)
	}
	sort.Strings(names)

	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	_, _ = fmt.Fprintln(tw, "METHOD\tCALLS\tOK\tREJECTED\tFAILED\tP50 MS\tP95 MS\tP99 MS\tMAX MS")
	for _, name := range names {
		m := result.Methods[name]
		_, _ = fmt.Fprintf(tw, "%s\t%d\t%d\t%d\t%d\t%.2f\t%.2f\t%.2f\t%.2f\n",
			name, m.Calls, m.Success, m.Rejected, m.Failed,
			m.LatencyMs.P50, m.LatencyMs.P95, m.LatencyMs.P99, m.LatencyMs.Max)
	}
	_ = tw.Flush()
}

func runTarget(cfg config) string {
	if cfg.duration <= 0 {
		return fmt.Sprintf("count:%d", cfg.total)
	}
	if cfg.totalSet {
		return fmt.Sprintf("duration:%s,max-total:%d", cfg.duration, cfg.total)
	}
	return fmt.Sprintf("duration:%s", cfg.duration)
}

// summarize считает задержки в миллисекундах; перцентили по nearest-rank.
func summarize(latencies []time.Duration) latencySummary {
	if len(latencies) == 0 {
		return latencySummary{}
	}

	ms := make([]float64, len(latencies))
	var sum float64
	for i, latency := range latencies {
		ms[i] = float64(latency.Microseconds()) / 1000.0
		sum += ms[i]
	}
	sort.Float64s(ms)

	return latencySummary{
		Min: ms[0],
		Max: ms[len(ms)-1],
		Avg: sum / float64(len(ms)),
		P50: nearestRank(ms, 50),
		P95: nearestRank(ms, 95),
		P99: nearestRank(ms, 99),
	}
}

func nearestRank(sorted []float64, p float64) float64 {
	if len(sorted) == 0 {
		return 0
	}
	rank := int(math.Ceil(p / 100 * float64(len(sorted))))
	return sorted[min(max(rank, 1), len(sorted))-1]
}

func ratio(part, total int64) float64 {
	if total <= 0 {
		return 0
	}
	return float64(part) / float64(total)
}
