package aws

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/budgets"
	budgettypes "github.com/aws/aws-sdk-go-v2/service/budgets/types"
	"github.com/aws/aws-sdk-go-v2/service/cloudwatch"
	cwtypes "github.com/aws/aws-sdk-go-v2/service/cloudwatch/types"
	"github.com/aws/aws-sdk-go-v2/service/costexplorer"
	cetypes "github.com/aws/aws-sdk-go-v2/service/costexplorer/types"
	"github.com/aws/smithy-go"

	"github.com/zgpcy/aws-billing-exporter/internal/clock"
	"github.com/zgpcy/aws-billing-exporter/internal/config"
	"github.com/zgpcy/aws-billing-exporter/internal/logger"
)

// testLogger creates a logger for testing (error level to suppress test output)
func testLogger() *logger.Logger {
	return logger.New("error")
}

var testNow = time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)

func testConfig() *config.Config {
	suppress := true
	return &config.Config{
		AWS:        config.AWS{Region: "us-east-1", AccountID: "123456789012"},
		Collection: config.Collection{DaysBack: 2, SuppressNonPositiveCost: &suppress},
		APITimeout: 30,
	}
}

// mockCostExplorer returns canned pages in sequence
type mockCostExplorer struct {
	mu     sync.Mutex
	pages  []*costexplorer.GetCostAndUsageOutput
	err    error
	calls  int
	inputs []*costexplorer.GetCostAndUsageInput
}

func (m *mockCostExplorer) GetCostAndUsage(ctx context.Context, params *costexplorer.GetCostAndUsageInput, optFns ...func(*costexplorer.Options)) (*costexplorer.GetCostAndUsageOutput, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.inputs = append(m.inputs, params)
	if m.err != nil {
		return nil, m.err
	}
	if m.calls >= len(m.pages) {
		return nil, fmt.Errorf("unexpected call %d", m.calls)
	}
	out := m.pages[m.calls]
	m.calls++
	return out, nil
}

// mockCloudWatch serves ListMetrics pages and per-service statistics
type mockCloudWatch struct {
	mu         sync.Mutex
	listPages  []*cloudwatch.ListMetricsOutput
	listErr    error
	listCalls  int
	statsOut   map[string]*cloudwatch.GetMetricStatisticsOutput // key: service name, "" for account total
	statsErr   map[string]error
	statsCalls []*cloudwatch.GetMetricStatisticsInput
}

func statsKey(params *cloudwatch.GetMetricStatisticsInput) string {
	for _, dim := range params.Dimensions {
		if aws.ToString(dim.Name) == "ServiceName" {
			return aws.ToString(dim.Value)
		}
	}
	return ""
}

func (m *mockCloudWatch) GetMetricStatistics(ctx context.Context, params *cloudwatch.GetMetricStatisticsInput, optFns ...func(*cloudwatch.Options)) (*cloudwatch.GetMetricStatisticsOutput, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.statsCalls = append(m.statsCalls, params)

	key := statsKey(params)
	if err, ok := m.statsErr[key]; ok {
		return nil, err
	}
	if out, ok := m.statsOut[key]; ok {
		return out, nil
	}
	return &cloudwatch.GetMetricStatisticsOutput{}, nil
}

func (m *mockCloudWatch) ListMetrics(ctx context.Context, params *cloudwatch.ListMetricsInput, optFns ...func(*cloudwatch.Options)) (*cloudwatch.ListMetricsOutput, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.listErr != nil {
		return nil, m.listErr
	}
	if m.listCalls >= len(m.listPages) {
		return nil, fmt.Errorf("unexpected ListMetrics call %d", m.listCalls)
	}
	out := m.listPages[m.listCalls]
	m.listCalls++
	return out, nil
}

// mockBudgets serves budget lists and per-budget performance history
type mockBudgets struct {
	mu           sync.Mutex
	budgetsOut   *budgets.DescribeBudgetsOutput
	budgetsErr   error
	budgetsCalls int
	historyOut   map[string]*budgettypes.BudgetPerformanceHistory
	historyErr   map[string]error
	historyCalls []string
}

func (m *mockBudgets) DescribeBudgets(ctx context.Context, params *budgets.DescribeBudgetsInput, optFns ...func(*budgets.Options)) (*budgets.DescribeBudgetsOutput, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.budgetsCalls++
	if m.budgetsErr != nil {
		return nil, m.budgetsErr
	}
	return m.budgetsOut, nil
}

func (m *mockBudgets) DescribeBudgetPerformanceHistory(ctx context.Context, params *budgets.DescribeBudgetPerformanceHistoryInput, optFns ...func(*budgets.Options)) (*budgets.DescribeBudgetPerformanceHistoryOutput, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	name := aws.ToString(params.BudgetName)
	m.historyCalls = append(m.historyCalls, name)
	if err, ok := m.historyErr[name]; ok {
		return nil, err
	}
	return &budgets.DescribeBudgetPerformanceHistoryOutput{
		BudgetPerformanceHistory: m.historyOut[name],
	}, nil
}

func newTestCollector(ce CostExplorerAPI, cw CloudWatchAPI, b BudgetsAPI, cfg *config.Config) *Collector {
	return &Collector{
		costExplorer: ce,
		cloudWatch:   cw,
		budgets:      b,
		cfg:          cfg,
		logger:       testLogger(),
		clock:        clock.Fixed{Time: testNow},
	}
}

func costPage(nextToken *string, groups ...cetypes.Group) *costexplorer.GetCostAndUsageOutput {
	return &costexplorer.GetCostAndUsageOutput{
		ResultsByTime: []cetypes.ResultByTime{
			{
				TimePeriod: &cetypes.DateInterval{
					Start: aws.String("2024-05-30"),
					End:   aws.String("2024-05-31"),
				},
				Groups: groups,
			},
		},
		NextPageToken: nextToken,
	}
}

func costGroup(service, blended, unblended string) cetypes.Group {
	return cetypes.Group{
		Keys: []string{service},
		Metrics: map[string]cetypes.MetricValue{
			"BlendedCost":   {Amount: aws.String(blended), Unit: aws.String("USD")},
			"UnblendedCost": {Amount: aws.String(unblended), Unit: aws.String("USD")},
			"UsageQuantity": {Amount: aws.String("1"), Unit: aws.String("N/A")},
		},
	}
}

func TestCostByService_Success(t *testing.T) {
	ce := &mockCostExplorer{pages: []*costexplorer.GetCostAndUsageOutput{
		costPage(nil,
			costGroup("Amazon Elastic Compute Cloud - Compute", "12.34", "12.00"),
			costGroup("Amazon Simple Storage Service", "0.56", "0.55"),
		),
	}}
	c := newTestCollector(ce, &mockCloudWatch{}, &mockBudgets{}, testConfig())

	metrics, err := c.costByService(context.Background())
	if err != nil {
		t.Fatalf("costByService() error = %v", err)
	}

	if len(metrics) != 4 {
		t.Fatalf("got %d metrics, want 4 (blended+unblended for 2 services)", len(metrics))
	}

	first := metrics[0]
	if first.Name != MetricBlendedCost {
		t.Errorf("first metric name = %s, want %s", first.Name, MetricBlendedCost)
	}
	if first.Value != 12.34 {
		t.Errorf("first metric value = %v, want 12.34", first.Value)
	}
	if !first.Timestamp.Equal(testNow) {
		t.Errorf("timestamp = %v, want clock time %v", first.Timestamp, testNow)
	}

	wantLabels := map[string]string{
		"service":    "Amazon Elastic Compute Cloud - Compute",
		"account_id": "123456789012",
		"date":       "2024-05-30",
		"currency":   "USD",
	}
	for k, v := range wantLabels {
		if first.Labels[k] != v {
			t.Errorf("label %s = %q, want %q", k, first.Labels[k], v)
		}
	}

	if metrics[1].Name != MetricUnblendedCost || metrics[1].Value != 12.00 {
		t.Errorf("second metric = %s %v, want %s 12.00", metrics[1].Name, metrics[1].Value, MetricUnblendedCost)
	}
}

func TestCostByService_QueryWindow(t *testing.T) {
	ce := &mockCostExplorer{pages: []*costexplorer.GetCostAndUsageOutput{costPage(nil)}}
	c := newTestCollector(ce, &mockCloudWatch{}, &mockBudgets{}, testConfig())

	if _, err := c.costByService(context.Background()); err != nil {
		t.Fatalf("costByService() error = %v", err)
	}

	input := ce.inputs[0]
	if got := aws.ToString(input.TimePeriod.Start); got != "2024-05-30" {
		t.Errorf("start date = %s, want 2024-05-30 (today minus 2)", got)
	}
	if got := aws.ToString(input.TimePeriod.End); got != "2024-06-01" {
		t.Errorf("end date = %s, want 2024-06-01", got)
	}
	if input.Granularity != cetypes.GranularityDaily {
		t.Errorf("granularity = %s, want DAILY", input.Granularity)
	}
	if len(input.Metrics) != 3 {
		t.Errorf("metrics requested = %v, want BlendedCost, UnblendedCost, UsageQuantity", input.Metrics)
	}
	if len(input.GroupBy) != 1 || aws.ToString(input.GroupBy[0].Key) != "SERVICE" {
		t.Errorf("group by = %+v, want single SERVICE dimension", input.GroupBy)
	}
}

func TestCostByService_SuppressesNonPositive(t *testing.T) {
	page := costPage(nil,
		costGroup("AWS CloudTrail", "0.0000000", "0.0000000"),
		costGroup("AWS Cost Explorer", "-0.25", "-0.25"),
		costGroup("Amazon Route 53", "1.50", "1.50"),
	)

	t.Run("suppression on", func(t *testing.T) {
		ce := &mockCostExplorer{pages: []*costexplorer.GetCostAndUsageOutput{page}}
		c := newTestCollector(ce, &mockCloudWatch{}, &mockBudgets{}, testConfig())

		metrics, err := c.costByService(context.Background())
		if err != nil {
			t.Fatalf("costByService() error = %v", err)
		}
		if len(metrics) != 2 {
			t.Errorf("got %d metrics, want 2 (zero and negative suppressed)", len(metrics))
		}
		for _, m := range metrics {
			if m.Labels["service"] != "Amazon Route 53" {
				t.Errorf("unexpected surviving service %q", m.Labels["service"])
			}
		}
	})

	t.Run("suppression off", func(t *testing.T) {
		cfg := testConfig()
		suppress := false
		cfg.Collection.SuppressNonPositiveCost = &suppress

		ce := &mockCostExplorer{pages: []*costexplorer.GetCostAndUsageOutput{page}}
		c := newTestCollector(ce, &mockCloudWatch{}, &mockBudgets{}, cfg)

		metrics, err := c.costByService(context.Background())
		if err != nil {
			t.Fatalf("costByService() error = %v", err)
		}
		if len(metrics) != 6 {
			t.Errorf("got %d metrics, want 6 (nothing suppressed)", len(metrics))
		}
	})
}

func TestCostByService_Pagination(t *testing.T) {
	ce := &mockCostExplorer{pages: []*costexplorer.GetCostAndUsageOutput{
		costPage(aws.String("page-2"), costGroup("Amazon EC2", "1.00", "1.00")),
		costPage(nil, costGroup("Amazon S3", "2.00", "2.00")),
	}}
	c := newTestCollector(ce, &mockCloudWatch{}, &mockBudgets{}, testConfig())

	metrics, err := c.costByService(context.Background())
	if err != nil {
		t.Fatalf("costByService() error = %v", err)
	}

	if ce.calls != 2 {
		t.Errorf("Cost Explorer called %d times, want 2", ce.calls)
	}
	if got := aws.ToString(ce.inputs[1].NextPageToken); got != "page-2" {
		t.Errorf("second call token = %q, want page-2", got)
	}
	if len(metrics) != 4 {
		t.Errorf("got %d metrics, want 4 across both pages", len(metrics))
	}
}

func TestCostByService_EmptyKeysFallsBackToUnknown(t *testing.T) {
	page := costPage(nil, cetypes.Group{
		Keys: nil,
		Metrics: map[string]cetypes.MetricValue{
			"BlendedCost":   {Amount: aws.String("3.00"), Unit: aws.String("USD")},
			"UnblendedCost": {Amount: aws.String("3.00"), Unit: aws.String("USD")},
		},
	})
	ce := &mockCostExplorer{pages: []*costexplorer.GetCostAndUsageOutput{page}}
	c := newTestCollector(ce, &mockCloudWatch{}, &mockBudgets{}, testConfig())

	metrics, err := c.costByService(context.Background())
	if err != nil {
		t.Fatalf("costByService() error = %v", err)
	}
	if len(metrics) != 2 {
		t.Fatalf("got %d metrics, want 2", len(metrics))
	}
	if metrics[0].Labels["service"] != "Unknown" {
		t.Errorf("service label = %q, want Unknown", metrics[0].Labels["service"])
	}
}

func TestCostByService_SkipsUnparsableAmounts(t *testing.T) {
	page := costPage(nil,
		costGroup("Amazon EC2", "not-a-number", "4.00"),
	)
	ce := &mockCostExplorer{pages: []*costexplorer.GetCostAndUsageOutput{page}}
	c := newTestCollector(ce, &mockCloudWatch{}, &mockBudgets{}, testConfig())

	metrics, err := c.costByService(context.Background())
	if err != nil {
		t.Fatalf("costByService() error = %v", err)
	}
	if len(metrics) != 1 {
		t.Fatalf("got %d metrics, want 1 (bad amount skipped)", len(metrics))
	}
	if metrics[0].Name != MetricUnblendedCost {
		t.Errorf("surviving metric = %s, want %s", metrics[0].Name, MetricUnblendedCost)
	}
}

func TestEstimatedCharges_Success(t *testing.T) {
	cw := &mockCloudWatch{
		statsOut: map[string]*cloudwatch.GetMetricStatisticsOutput{
			"": {Datapoints: []cwtypes.Datapoint{
				{Maximum: aws.Float64(250.75), Timestamp: aws.Time(testNow)},
			}},
		},
	}
	c := newTestCollector(&mockCostExplorer{}, cw, &mockBudgets{}, testConfig())

	metrics, err := c.estimatedCharges(context.Background())
	if err != nil {
		t.Fatalf("estimatedCharges() error = %v", err)
	}

	if len(metrics) != 1 {
		t.Fatalf("got %d metrics, want 1", len(metrics))
	}
	m := metrics[0]
	if m.Name != MetricEstimatedTotal {
		t.Errorf("name = %s, want %s", m.Name, MetricEstimatedTotal)
	}
	if m.Value != 250.75 {
		t.Errorf("value = %v, want 250.75", m.Value)
	}
	if m.Labels["account_id"] != "123456789012" || m.Labels["currency"] != "USD" {
		t.Errorf("labels = %v, want account_id and currency", m.Labels)
	}
	if _, hasService := m.Labels["service"]; hasService {
		t.Error("account-total metric should not carry a service label")
	}

	input := cw.statsCalls[0]
	if aws.ToString(input.Namespace) != "AWS/Billing" {
		t.Errorf("namespace = %s, want AWS/Billing", aws.ToString(input.Namespace))
	}
	if aws.ToString(input.MetricName) != "EstimatedCharges" {
		t.Errorf("metric name = %s, want EstimatedCharges", aws.ToString(input.MetricName))
	}
	if aws.ToInt32(input.Period) != 86400 {
		t.Errorf("period = %d, want 86400", aws.ToInt32(input.Period))
	}
	if len(input.Statistics) != 1 || input.Statistics[0] != cwtypes.StatisticMaximum {
		t.Errorf("statistics = %v, want [Maximum]", input.Statistics)
	}
	if !input.StartTime.Equal(testNow.AddDate(0, 0, -1)) {
		t.Errorf("start time = %v, want trailing 24h", input.StartTime)
	}
	if !input.EndTime.Equal(testNow) {
		t.Errorf("end time = %v, want now", input.EndTime)
	}
}

func TestEstimatedCharges_KeepsZeroValues(t *testing.T) {
	// Estimated charges are never suppressed, even at zero
	cw := &mockCloudWatch{
		statsOut: map[string]*cloudwatch.GetMetricStatisticsOutput{
			"": {Datapoints: []cwtypes.Datapoint{{Maximum: aws.Float64(0)}}},
		},
	}
	c := newTestCollector(&mockCostExplorer{}, cw, &mockBudgets{}, testConfig())

	metrics, err := c.estimatedCharges(context.Background())
	if err != nil {
		t.Fatalf("estimatedCharges() error = %v", err)
	}
	if len(metrics) != 1 || metrics[0].Value != 0 {
		t.Errorf("got %v, want one zero-valued metric", metrics)
	}
}

func TestEstimatedChargesByService(t *testing.T) {
	cw := &mockCloudWatch{
		listPages: []*cloudwatch.ListMetricsOutput{
			{
				Metrics: []cwtypes.Metric{
					{Dimensions: []cwtypes.Dimension{
						{Name: aws.String("Currency"), Value: aws.String("USD")},
					}},
					{Dimensions: []cwtypes.Dimension{
						{Name: aws.String("Currency"), Value: aws.String("USD")},
						{Name: aws.String("ServiceName"), Value: aws.String("AmazonS3")},
					}},
				},
				NextToken: aws.String("next"),
			},
			{
				Metrics: []cwtypes.Metric{
					{Dimensions: []cwtypes.Dimension{
						{Name: aws.String("ServiceName"), Value: aws.String("AmazonEC2")},
					}},
					// duplicate service must not double-count
					{Dimensions: []cwtypes.Dimension{
						{Name: aws.String("ServiceName"), Value: aws.String("AmazonS3")},
					}},
				},
			},
		},
		statsOut: map[string]*cloudwatch.GetMetricStatisticsOutput{
			"AmazonEC2": {Datapoints: []cwtypes.Datapoint{{Maximum: aws.Float64(120.5)}}},
			"AmazonS3":  {Datapoints: []cwtypes.Datapoint{{Maximum: aws.Float64(30.25)}}},
		},
	}
	c := newTestCollector(&mockCostExplorer{}, cw, &mockBudgets{}, testConfig())

	metrics, err := c.estimatedChargesByService(context.Background())
	if err != nil {
		t.Fatalf("estimatedChargesByService() error = %v", err)
	}

	if len(metrics) != 2 {
		t.Fatalf("got %d metrics, want 2", len(metrics))
	}

	// Services are processed in sorted order
	if metrics[0].Labels["service"] != "AmazonEC2" || metrics[0].Value != 120.5 {
		t.Errorf("first = %s %v, want AmazonEC2 120.5", metrics[0].Labels["service"], metrics[0].Value)
	}
	if metrics[1].Labels["service"] != "AmazonS3" || metrics[1].Value != 30.25 {
		t.Errorf("second = %s %v, want AmazonS3 30.25", metrics[1].Labels["service"], metrics[1].Value)
	}
	if metrics[0].Name != MetricEstimatedByService {
		t.Errorf("name = %s, want %s", metrics[0].Name, MetricEstimatedByService)
	}
}

func TestEstimatedChargesByService_ServiceFailureSkipped(t *testing.T) {
	cw := &mockCloudWatch{
		listPages: []*cloudwatch.ListMetricsOutput{
			{Metrics: []cwtypes.Metric{
				{Dimensions: []cwtypes.Dimension{{Name: aws.String("ServiceName"), Value: aws.String("AmazonEC2")}}},
				{Dimensions: []cwtypes.Dimension{{Name: aws.String("ServiceName"), Value: aws.String("AmazonS3")}}},
			}},
		},
		statsOut: map[string]*cloudwatch.GetMetricStatisticsOutput{
			"AmazonS3": {Datapoints: []cwtypes.Datapoint{{Maximum: aws.Float64(5)}}},
		},
		statsErr: map[string]error{
			"AmazonEC2": errors.New("throttled"),
		},
	}
	c := newTestCollector(&mockCostExplorer{}, cw, &mockBudgets{}, testConfig())

	metrics, err := c.estimatedChargesByService(context.Background())
	if err != nil {
		t.Fatalf("estimatedChargesByService() error = %v, want nil (per-service failures skipped)", err)
	}
	if len(metrics) != 1 || metrics[0].Labels["service"] != "AmazonS3" {
		t.Errorf("got %v, want only AmazonS3", metrics)
	}
}

func TestEstimatedChargesByService_DiscoveryFailure(t *testing.T) {
	cw := &mockCloudWatch{listErr: errors.New("list failed")}
	c := newTestCollector(&mockCostExplorer{}, cw, &mockBudgets{}, testConfig())

	if _, err := c.estimatedChargesByService(context.Background()); err == nil {
		t.Error("estimatedChargesByService() error = nil, want discovery error")
	}
}

func testBudget(name, limit string) budgettypes.Budget {
	return budgettypes.Budget{
		BudgetName:  aws.String(name),
		BudgetLimit: &budgettypes.Spend{Amount: aws.String(limit), Unit: aws.String("USD")},
		BudgetType:  budgettypes.BudgetTypeCost,
		CalculatedSpend: &budgettypes.CalculatedSpend{
			ForecastedSpend: &budgettypes.Spend{Amount: aws.String("900"), Unit: aws.String("USD")},
		},
	}
}

func testHistory(actuals ...string) *budgettypes.BudgetPerformanceHistory {
	history := &budgettypes.BudgetPerformanceHistory{}
	for _, a := range actuals {
		history.BudgetedAndActualAmountsList = append(history.BudgetedAndActualAmountsList,
			budgettypes.BudgetedAndActualAmounts{
				ActualAmount: &budgettypes.Spend{Amount: aws.String(a), Unit: aws.String("USD")},
			})
	}
	return history
}

func TestBudgetMetrics_Success(t *testing.T) {
	b := &mockBudgets{
		budgetsOut: &budgets.DescribeBudgetsOutput{
			Budgets: []budgettypes.Budget{testBudget("monthly-budget", "1000")},
		},
		historyOut: map[string]*budgettypes.BudgetPerformanceHistory{
			// last entry is the current period
			"monthly-budget": testHistory("500", "750"),
		},
	}
	c := newTestCollector(&mockCostExplorer{}, &mockCloudWatch{}, b, testConfig())

	metrics, err := c.budgetMetrics(context.Background())
	if err != nil {
		t.Fatalf("budgetMetrics() error = %v", err)
	}

	if len(metrics) != 4 {
		t.Fatalf("got %d metrics, want 4", len(metrics))
	}

	wantValues := map[string]float64{
		MetricBudgetLimit:       1000,
		MetricBudgetActual:      750,
		MetricBudgetForecast:    900,
		MetricBudgetUtilization: 75,
	}
	for _, m := range metrics {
		want, ok := wantValues[m.Name]
		if !ok {
			t.Errorf("unexpected metric %s", m.Name)
			continue
		}
		if m.Value != want {
			t.Errorf("%s = %v, want %v", m.Name, m.Value, want)
		}
		if m.Labels["budget_name"] != "monthly-budget" {
			t.Errorf("%s budget_name = %q", m.Name, m.Labels["budget_name"])
		}
		if m.Labels["budget_type"] != "COST" {
			t.Errorf("%s budget_type = %q, want COST", m.Name, m.Labels["budget_type"])
		}
		if m.Labels["account_id"] != "123456789012" {
			t.Errorf("%s account_id = %q", m.Name, m.Labels["account_id"])
		}
	}
}

func TestBudgetMetrics_ZeroLimitUtilization(t *testing.T) {
	b := &mockBudgets{
		budgetsOut: &budgets.DescribeBudgetsOutput{
			Budgets: []budgettypes.Budget{testBudget("zero-budget", "0")},
		},
		historyOut: map[string]*budgettypes.BudgetPerformanceHistory{
			"zero-budget": testHistory("10"),
		},
	}
	c := newTestCollector(&mockCostExplorer{}, &mockCloudWatch{}, b, testConfig())

	metrics, err := c.budgetMetrics(context.Background())
	if err != nil {
		t.Fatalf("budgetMetrics() error = %v", err)
	}

	for _, m := range metrics {
		if m.Name == MetricBudgetUtilization && m.Value != 0 {
			t.Errorf("utilization = %v, want 0 for zero limit", m.Value)
		}
		// Budget metrics are exempt from zero suppression
		if m.Name == MetricBudgetLimit && m.Value != 0 {
			t.Errorf("limit = %v, want 0 emitted despite suppression config", m.Value)
		}
	}
	if len(metrics) != 4 {
		t.Errorf("got %d metrics, want all 4 despite zero values", len(metrics))
	}
}

func TestBudgetMetrics_NoHistorySkipped(t *testing.T) {
	b := &mockBudgets{
		budgetsOut: &budgets.DescribeBudgetsOutput{
			Budgets: []budgettypes.Budget{
				testBudget("stale-budget", "100"),
				testBudget("active-budget", "200"),
			},
		},
		historyOut: map[string]*budgettypes.BudgetPerformanceHistory{
			"stale-budget":  {},
			"active-budget": testHistory("50"),
		},
	}
	c := newTestCollector(&mockCostExplorer{}, &mockCloudWatch{}, b, testConfig())

	metrics, err := c.budgetMetrics(context.Background())
	if err != nil {
		t.Fatalf("budgetMetrics() error = %v", err)
	}

	if len(metrics) != 4 {
		t.Fatalf("got %d metrics, want 4 (only active-budget emits)", len(metrics))
	}
	for _, m := range metrics {
		if m.Labels["budget_name"] != "active-budget" {
			t.Errorf("unexpected budget %q in output", m.Labels["budget_name"])
		}
	}
}

func TestBudgetMetrics_HistoryErrorSkipsBudget(t *testing.T) {
	b := &mockBudgets{
		budgetsOut: &budgets.DescribeBudgetsOutput{
			Budgets: []budgettypes.Budget{
				testBudget("broken-budget", "100"),
				testBudget("healthy-budget", "200"),
			},
		},
		historyOut: map[string]*budgettypes.BudgetPerformanceHistory{
			"healthy-budget": testHistory("20"),
		},
		historyErr: map[string]error{
			"broken-budget": errors.New("history unavailable"),
		},
	}
	c := newTestCollector(&mockCostExplorer{}, &mockCloudWatch{}, b, testConfig())

	metrics, err := c.budgetMetrics(context.Background())
	if err != nil {
		t.Fatalf("budgetMetrics() error = %v, want nil (per-budget failure skipped)", err)
	}
	if len(metrics) != 4 {
		t.Errorf("got %d metrics, want 4 from healthy-budget", len(metrics))
	}
}

func TestBudgetMetrics_MissingLimitSkipped(t *testing.T) {
	b := &mockBudgets{
		budgetsOut: &budgets.DescribeBudgetsOutput{
			Budgets: []budgettypes.Budget{
				{BudgetName: aws.String("limitless"), BudgetType: budgettypes.BudgetTypeCost},
			},
		},
	}
	c := newTestCollector(&mockCostExplorer{}, &mockCloudWatch{}, b, testConfig())

	metrics, err := c.budgetMetrics(context.Background())
	if err != nil {
		t.Fatalf("budgetMetrics() error = %v", err)
	}
	if len(metrics) != 0 {
		t.Errorf("got %d metrics, want 0", len(metrics))
	}
	if len(b.historyCalls) != 0 {
		t.Errorf("history fetched for budget without limit")
	}
}

func TestCollect_GroupFailuresAreIsolated(t *testing.T) {
	// Cost Explorer and Budgets fail; CloudWatch works
	ce := &mockCostExplorer{err: errors.New("ce down")}
	cw := &mockCloudWatch{
		listPages: []*cloudwatch.ListMetricsOutput{
			{Metrics: []cwtypes.Metric{
				{Dimensions: []cwtypes.Dimension{{Name: aws.String("ServiceName"), Value: aws.String("AmazonEC2")}}},
			}},
		},
		statsOut: map[string]*cloudwatch.GetMetricStatisticsOutput{
			"":          {Datapoints: []cwtypes.Datapoint{{Maximum: aws.Float64(100)}}},
			"AmazonEC2": {Datapoints: []cwtypes.Datapoint{{Maximum: aws.Float64(60)}}},
		},
	}
	b := &mockBudgets{budgetsErr: errors.New("budgets down")}

	c := newTestCollector(ce, cw, b, testConfig())
	metrics := c.Collect(context.Background())

	if len(metrics) != 2 {
		t.Fatalf("got %d metrics, want 2 (CloudWatch groups only)", len(metrics))
	}
	names := map[string]bool{}
	for _, m := range metrics {
		names[m.Name] = true
	}
	if !names[MetricEstimatedTotal] || !names[MetricEstimatedByService] {
		t.Errorf("metrics = %v, want estimated total and by-service", names)
	}
}

func TestCollect_SkipsBudgetsWithoutAccountID(t *testing.T) {
	cfg := testConfig()
	cfg.AWS.AccountID = ""

	b := &mockBudgets{}
	c := newTestCollector(
		&mockCostExplorer{err: errors.New("skip")},
		&mockCloudWatch{listErr: errors.New("skip"), statsErr: map[string]error{"": errors.New("skip")}},
		b,
		cfg,
	)

	c.Collect(context.Background())

	if b.budgetsCalls != 0 {
		t.Errorf("DescribeBudgets called %d times, want 0 without account ID", b.budgetsCalls)
	}
}

func TestCollect_PreservesGroupOrder(t *testing.T) {
	ce := &mockCostExplorer{pages: []*costexplorer.GetCostAndUsageOutput{
		costPage(nil, costGroup("Amazon EC2", "1.00", "1.00")),
	}}
	cw := &mockCloudWatch{
		listPages: []*cloudwatch.ListMetricsOutput{{Metrics: []cwtypes.Metric{}}},
		statsOut: map[string]*cloudwatch.GetMetricStatisticsOutput{
			"": {Datapoints: []cwtypes.Datapoint{{Maximum: aws.Float64(10)}}},
		},
	}
	b := &mockBudgets{
		budgetsOut: &budgets.DescribeBudgetsOutput{
			Budgets: []budgettypes.Budget{testBudget("order-budget", "100")},
		},
		historyOut: map[string]*budgettypes.BudgetPerformanceHistory{
			"order-budget": testHistory("10"),
		},
	}

	c := newTestCollector(ce, cw, b, testConfig())
	metrics := c.Collect(context.Background())

	wantOrder := []string{
		MetricBlendedCost,
		MetricUnblendedCost,
		MetricEstimatedTotal,
		MetricBudgetLimit,
		MetricBudgetActual,
		MetricBudgetForecast,
		MetricBudgetUtilization,
	}
	if len(metrics) != len(wantOrder) {
		t.Fatalf("got %d metrics, want %d", len(metrics), len(wantOrder))
	}
	for i, want := range wantOrder {
		if metrics[i].Name != want {
			t.Errorf("metric[%d] = %s, want %s", i, metrics[i].Name, want)
		}
	}
}

func TestIsAuthError(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{"access denied", &smithy.GenericAPIError{Code: "AccessDenied"}, true},
		{"access denied exception", &smithy.GenericAPIError{Code: "AccessDeniedException"}, true},
		{"expired token", &smithy.GenericAPIError{Code: "ExpiredToken"}, true},
		{"wrapped auth error", fmt.Errorf("call failed: %w", &smithy.GenericAPIError{Code: "UnrecognizedClientException"}), true},
		{"throttling", &smithy.GenericAPIError{Code: "ThrottlingException"}, false},
		{"plain error", errors.New("boom"), false},
		{"nil", nil, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := IsAuthError(tt.err); got != tt.want {
				t.Errorf("IsAuthError() = %v, want %v", got, tt.want)
			}
		})
	}
}
