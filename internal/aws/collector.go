package aws

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strconv"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
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
	"github.com/zgpcy/aws-billing-exporter/internal/metric"
)

// Metric family names emitted by the collector
const (
	MetricBlendedCost        = "aws_billing_blended_cost_usd"
	MetricUnblendedCost      = "aws_billing_unblended_cost_usd"
	MetricEstimatedTotal     = "aws_billing_estimated_charges_total_usd"
	MetricEstimatedByService = "aws_billing_estimated_charges_by_service_usd"
	MetricBudgetLimit        = "aws_budget_limit_usd"
	MetricBudgetActual       = "aws_budget_actual_spend_usd"
	MetricBudgetForecast     = "aws_budget_forecasted_spend_usd"
	MetricBudgetUtilization  = "aws_budget_utilization_percentage"
)

// CloudWatch AWS/Billing namespace constants
const (
	billingNamespace       = "AWS/Billing"
	estimatedChargesMetric = "EstimatedCharges"
	currencyUSD            = "USD"

	// estimatedChargesPeriod is one day; AWS publishes estimated
	// charges a few times per day, Maximum over the window is the
	// freshest figure
	estimatedChargesPeriod = int32(86400)

	// budgetHistoryDays is the trailing window for budget performance
	budgetHistoryDays = 30
)

// CostExplorerAPI is the Cost Explorer surface the collector needs.
type CostExplorerAPI interface {
	GetCostAndUsage(ctx context.Context, params *costexplorer.GetCostAndUsageInput, optFns ...func(*costexplorer.Options)) (*costexplorer.GetCostAndUsageOutput, error)
}

// CloudWatchAPI is the CloudWatch surface the collector needs.
type CloudWatchAPI interface {
	GetMetricStatistics(ctx context.Context, params *cloudwatch.GetMetricStatisticsInput, optFns ...func(*cloudwatch.Options)) (*cloudwatch.GetMetricStatisticsOutput, error)
	ListMetrics(ctx context.Context, params *cloudwatch.ListMetricsInput, optFns ...func(*cloudwatch.Options)) (*cloudwatch.ListMetricsOutput, error)
}

// BudgetsAPI is the Budgets surface the collector needs.
type BudgetsAPI interface {
	DescribeBudgets(ctx context.Context, params *budgets.DescribeBudgetsInput, optFns ...func(*budgets.Options)) (*budgets.DescribeBudgetsOutput, error)
	DescribeBudgetPerformanceHistory(ctx context.Context, params *budgets.DescribeBudgetPerformanceHistoryInput, optFns ...func(*budgets.Options)) (*budgets.DescribeBudgetPerformanceHistoryOutput, error)
}

// Collector retrieves billing data from Cost Explorer, the CloudWatch
// AWS/Billing namespace and the Budgets API and converts it into metrics.
type Collector struct {
	costExplorer CostExplorerAPI
	cloudWatch   CloudWatchAPI
	budgets      BudgetsAPI
	cfg          *config.Config
	logger       *logger.Logger
	clock        clock.Clock // Time provider for testing
}

// NewCollector creates a collector backed by real AWS service clients,
// resolving credentials from the default chain.
func NewCollector(ctx context.Context, cfg *config.Config, log *logger.Logger) (*Collector, error) {
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(cfg.AWS.Region))
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS configuration: %w", err)
	}

	log.Info("Initialized AWS clients", "region", cfg.AWS.Region)

	return &Collector{
		costExplorer: costexplorer.NewFromConfig(awsCfg),
		cloudWatch:   cloudwatch.NewFromConfig(awsCfg),
		budgets:      budgets.NewFromConfig(awsCfg),
		cfg:          cfg,
		logger:       log,
		clock:        clock.RealClock{}, // Use real system time by default
	}, nil
}

// Collect runs the four collection groups sequentially and returns every
// metric they produced, in collection order. A failing group degrades to
// its partial result; one broken API never empties the whole run.
func (c *Collector) Collect(ctx context.Context) []metric.Metric {
	var all []metric.Metric

	c.logger.Info("Collecting current costs")
	costMetrics, err := c.costByService(ctx)
	if err != nil {
		c.logGroupFailure("cost data", err)
	}
	all = append(all, costMetrics...)

	c.logger.Info("Collecting estimated charges")
	totalMetrics, err := c.estimatedCharges(ctx)
	if err != nil {
		c.logGroupFailure("estimated charges", err)
	}
	all = append(all, totalMetrics...)

	c.logger.Info("Collecting estimated charges by service")
	serviceMetrics, err := c.estimatedChargesByService(ctx)
	if err != nil {
		c.logGroupFailure("estimated charges by service", err)
	}
	all = append(all, serviceMetrics...)

	if c.cfg.AWS.AccountID != "" {
		c.logger.Info("Collecting budget metrics")
		budgetMetrics, err := c.budgetMetrics(ctx)
		if err != nil {
			c.logGroupFailure("budget metrics", err)
		}
		all = append(all, budgetMetrics...)
	} else {
		c.logger.Warn("AWS_ACCOUNT_ID not provided, skipping budget metrics")
	}

	c.logger.Info("Collection complete", "total_metrics", len(all))
	c.logSummary(all)

	return all
}

// logGroupFailure logs a collection group failure, calling out credential
// problems separately so an operator sees them immediately.
func (c *Collector) logGroupFailure(group string, err error) {
	if IsAuthError(err) {
		c.logger.Error("Failed to collect "+group+" (check AWS credentials and permissions)", "error", err)
		return
	}
	c.logger.Error("Failed to collect "+group, "error", err)
}

// logSummary logs per-family data point counts in stable order.
func (c *Collector) logSummary(all []metric.Metric) {
	counts := metric.CountByName(all)
	names := make([]string, 0, len(counts))
	for name := range counts {
		names = append(names, name)
	}
	sort.Strings(names)

	for _, name := range names {
		c.logger.Info("Metric summary", "name", name, "data_points", counts[name])
	}
}

// costByService queries Cost Explorer for daily blended and unblended
// cost grouped by service over the configured trailing window. Returns
// whatever was parsed before an error, so pagination failures keep
// earlier pages.
func (c *Collector) costByService(ctx context.Context) ([]metric.Metric, error) {
	var metrics []metric.Metric

	now := c.clock.Now()
	endDate := now.Format("2006-01-02")
	startDate := now.AddDate(0, 0, -c.cfg.Collection.DaysBack).Format("2006-01-02")

	input := &costexplorer.GetCostAndUsageInput{
		TimePeriod: &cetypes.DateInterval{
			Start: aws.String(startDate),
			End:   aws.String(endDate),
		},
		Granularity: cetypes.GranularityDaily,
		Metrics:     []string{"BlendedCost", "UnblendedCost", "UsageQuantity"},
		GroupBy: []cetypes.GroupDefinition{
			{Type: cetypes.GroupDefinitionTypeDimension, Key: aws.String("SERVICE")},
		},
	}

	c.logger.Debug("Querying Cost Explorer",
		"start_date", startDate,
		"end_date", endDate,
		"days_back", c.cfg.Collection.DaysBack)

	for {
		out, err := c.getCostAndUsage(ctx, input)
		if err != nil {
			return metrics, fmt.Errorf("cost query failed for date range %s to %s: %w", startDate, endDate, err)
		}

		for _, result := range out.ResultsByTime {
			date := ""
			if result.TimePeriod != nil {
				date = aws.ToString(result.TimePeriod.Start)
			}

			for _, group := range result.Groups {
				service := "Unknown"
				if len(group.Keys) > 0 {
					service = group.Keys[0]
				}

				metrics = c.appendCostMetric(metrics, MetricBlendedCost,
					"AWS blended cost by service in USD",
					group.Metrics["BlendedCost"], service, date, now)
				metrics = c.appendCostMetric(metrics, MetricUnblendedCost,
					"AWS unblended cost by service in USD",
					group.Metrics["UnblendedCost"], service, date, now)
			}
		}

		if out.NextPageToken == nil {
			break
		}
		input.NextPageToken = out.NextPageToken
	}

	c.logger.Info("Collected cost metrics", "count", len(metrics))
	return metrics, nil
}

// appendCostMetric parses one Cost Explorer amount and appends the metric
// unless the value is suppressed or unparsable.
func (c *Collector) appendCostMetric(metrics []metric.Metric, name, help string, mv cetypes.MetricValue, service, date string, now time.Time) []metric.Metric {
	if mv.Amount == nil {
		return metrics
	}

	value, err := strconv.ParseFloat(aws.ToString(mv.Amount), 64)
	if err != nil {
		c.logger.Warn("Skipping unparsable cost amount",
			"name", name,
			"service", service,
			"amount", aws.ToString(mv.Amount))
		return metrics
	}

	if *c.cfg.Collection.SuppressNonPositiveCost && value <= 0 {
		return metrics
	}

	currency := currencyUSD
	if mv.Unit != nil {
		currency = aws.ToString(mv.Unit)
	}

	return append(metrics, metric.New(name, value, map[string]string{
		"service":    service,
		"account_id": c.cfg.AWS.AccountID,
		"date":       date,
		"currency":   currency,
	}, now, help))
}

// getCostAndUsage performs one Cost Explorer call under the API timeout.
func (c *Collector) getCostAndUsage(ctx context.Context, input *costexplorer.GetCostAndUsageInput) (*costexplorer.GetCostAndUsageOutput, error) {
	ctx, cancel := c.apiContext(ctx)
	defer cancel()
	return c.costExplorer.GetCostAndUsage(ctx, input)
}

// estimatedCharges reads the account-wide EstimatedCharges metric from
// the CloudWatch AWS/Billing namespace over the trailing 24 hours.
func (c *Collector) estimatedCharges(ctx context.Context) ([]metric.Metric, error) {
	now := c.clock.Now()

	out, err := c.getMetricStatistics(ctx, now, nil)
	if err != nil {
		return nil, fmt.Errorf("estimated charges query failed: %w", err)
	}

	var metrics []metric.Metric
	for _, dp := range out.Datapoints {
		if dp.Maximum == nil {
			continue
		}
		metrics = append(metrics, metric.New(MetricEstimatedTotal, *dp.Maximum, map[string]string{
			"account_id": c.cfg.AWS.AccountID,
			"currency":   currencyUSD,
		}, now, "AWS total estimated charges in USD"))
	}

	c.logger.Info("Collected estimated charge metrics", "count", len(metrics))
	return metrics, nil
}

// estimatedChargesByService discovers which services publish
// EstimatedCharges, then reads each service's figure sequentially. A
// single service failing is logged and skipped; only the discovery call
// itself can fail the group.
func (c *Collector) estimatedChargesByService(ctx context.Context) ([]metric.Metric, error) {
	services, err := c.listBillingServices(ctx)
	if err != nil {
		return nil, fmt.Errorf("service discovery failed: %w", err)
	}

	now := c.clock.Now()

	var metrics []metric.Metric
	for _, service := range services {
		out, err := c.getMetricStatistics(ctx, now, aws.String(service))
		if err != nil {
			c.logger.Warn("Failed to get estimated charges for service",
				"service", service,
				"error", err)
			continue
		}

		for _, dp := range out.Datapoints {
			if dp.Maximum == nil {
				continue
			}
			metrics = append(metrics, metric.New(MetricEstimatedByService, *dp.Maximum, map[string]string{
				"service":    service,
				"account_id": c.cfg.AWS.AccountID,
				"currency":   currencyUSD,
			}, now, "AWS estimated charges by service in USD"))
		}
	}

	c.logger.Info("Collected per-service estimated charge metrics",
		"count", len(metrics),
		"services", len(services))
	return metrics, nil
}

// listBillingServices harvests the distinct ServiceName dimension values
// publishing EstimatedCharges, sorted for a stable collection order.
func (c *Collector) listBillingServices(ctx context.Context) ([]string, error) {
	seen := make(map[string]struct{})

	input := &cloudwatch.ListMetricsInput{
		Namespace:  aws.String(billingNamespace),
		MetricName: aws.String(estimatedChargesMetric),
	}

	for {
		out, err := c.listMetrics(ctx, input)
		if err != nil {
			return nil, err
		}

		for _, m := range out.Metrics {
			for _, dim := range m.Dimensions {
				if aws.ToString(dim.Name) == "ServiceName" {
					seen[aws.ToString(dim.Value)] = struct{}{}
				}
			}
		}

		if out.NextToken == nil {
			break
		}
		input.NextToken = out.NextToken
	}

	services := make([]string, 0, len(seen))
	for service := range seen {
		services = append(services, service)
	}
	sort.Strings(services)
	return services, nil
}

// getMetricStatistics reads EstimatedCharges over the trailing day, for
// the whole account or for one service when serviceName is set.
func (c *Collector) getMetricStatistics(ctx context.Context, now time.Time, serviceName *string) (*cloudwatch.GetMetricStatisticsOutput, error) {
	dimensions := []cwtypes.Dimension{
		{Name: aws.String("Currency"), Value: aws.String(currencyUSD)},
	}
	if serviceName != nil {
		dimensions = append(dimensions, cwtypes.Dimension{
			Name:  aws.String("ServiceName"),
			Value: serviceName,
		})
	}

	ctx, cancel := c.apiContext(ctx)
	defer cancel()

	return c.cloudWatch.GetMetricStatistics(ctx, &cloudwatch.GetMetricStatisticsInput{
		Namespace:  aws.String(billingNamespace),
		MetricName: aws.String(estimatedChargesMetric),
		Dimensions: dimensions,
		StartTime:  aws.Time(now.AddDate(0, 0, -1)),
		EndTime:    aws.Time(now),
		Period:     aws.Int32(estimatedChargesPeriod),
		Statistics: []cwtypes.Statistic{cwtypes.StatisticMaximum},
	})
}

// listMetrics performs one ListMetrics call under the API timeout.
func (c *Collector) listMetrics(ctx context.Context, input *cloudwatch.ListMetricsInput) (*cloudwatch.ListMetricsOutput, error) {
	ctx, cancel := c.apiContext(ctx)
	defer cancel()
	return c.cloudWatch.ListMetrics(ctx, input)
}

// budgetMetrics emits limit, actual spend, forecasted spend and
// utilization for every budget with recent performance history. Budgets
// without history, or with no limit configured, are skipped.
func (c *Collector) budgetMetrics(ctx context.Context) ([]metric.Metric, error) {
	var metrics []metric.Metric

	now := c.clock.Now()

	input := &budgets.DescribeBudgetsInput{
		AccountId: aws.String(c.cfg.AWS.AccountID),
	}

	for {
		out, err := c.describeBudgets(ctx, input)
		if err != nil {
			return metrics, fmt.Errorf("listing budgets failed: %w", err)
		}

		for _, budget := range out.Budgets {
			metrics = append(metrics, c.collectBudget(ctx, budget, now)...)
		}

		if out.NextToken == nil {
			break
		}
		input.NextToken = out.NextToken
	}

	c.logger.Info("Collected budget metrics", "count", len(metrics))
	return metrics, nil
}

// collectBudget turns one budget into its four metrics, or nothing when
// the budget cannot be evaluated.
func (c *Collector) collectBudget(ctx context.Context, budget budgettypes.Budget, now time.Time) []metric.Metric {
	name := aws.ToString(budget.BudgetName)

	if budget.BudgetLimit == nil || budget.BudgetLimit.Amount == nil {
		c.logger.Warn("Skipping budget without a limit", "budget_name", name)
		return nil
	}
	limit, err := strconv.ParseFloat(aws.ToString(budget.BudgetLimit.Amount), 64)
	if err != nil {
		c.logger.Warn("Skipping budget with unparsable limit",
			"budget_name", name,
			"amount", aws.ToString(budget.BudgetLimit.Amount))
		return nil
	}

	history, err := c.describeBudgetPerformance(ctx, name, now)
	if err != nil {
		c.logger.Warn("Failed to get budget performance history",
			"budget_name", name,
			"error", err)
		return nil
	}
	if history == nil || len(history.BudgetedAndActualAmountsList) == 0 {
		c.logger.Debug("Budget has no performance history", "budget_name", name)
		return nil
	}

	// The last history entry is the current period
	latest := history.BudgetedAndActualAmountsList[len(history.BudgetedAndActualAmountsList)-1]
	actual := parseSpend(latest.ActualAmount)
	forecast := parseSpend(budgetForecast(budget))

	utilization := 0.0
	if limit > 0 {
		utilization = actual / limit * 100
	}

	budgetType := string(budget.BudgetType)
	if budgetType == "" {
		budgetType = "COST"
	}
	labels := map[string]string{
		"budget_name": name,
		"account_id":  c.cfg.AWS.AccountID,
		"budget_type": budgetType,
	}

	return []metric.Metric{
		metric.New(MetricBudgetLimit, limit, labels, now, "AWS budget limit in USD"),
		metric.New(MetricBudgetActual, actual, labels, now, "AWS budget actual spend in USD"),
		metric.New(MetricBudgetForecast, forecast, labels, now, "AWS budget forecasted spend in USD"),
		metric.New(MetricBudgetUtilization, utilization, labels, now, "AWS budget utilization as percentage"),
	}
}

// describeBudgets performs one DescribeBudgets call under the API timeout.
func (c *Collector) describeBudgets(ctx context.Context, input *budgets.DescribeBudgetsInput) (*budgets.DescribeBudgetsOutput, error) {
	ctx, cancel := c.apiContext(ctx)
	defer cancel()
	return c.budgets.DescribeBudgets(ctx, input)
}

// describeBudgetPerformance fetches the trailing-30-day performance
// history for one budget.
func (c *Collector) describeBudgetPerformance(ctx context.Context, budgetName string, now time.Time) (*budgettypes.BudgetPerformanceHistory, error) {
	ctx, cancel := c.apiContext(ctx)
	defer cancel()

	out, err := c.budgets.DescribeBudgetPerformanceHistory(ctx, &budgets.DescribeBudgetPerformanceHistoryInput{
		AccountId:  aws.String(c.cfg.AWS.AccountID),
		BudgetName: aws.String(budgetName),
		TimePeriod: &budgettypes.TimePeriod{
			Start: aws.Time(now.AddDate(0, 0, -budgetHistoryDays)),
			End:   aws.Time(now),
		},
	})
	if err != nil {
		return nil, err
	}
	return out.BudgetPerformanceHistory, nil
}

// budgetForecast returns the forecasted spend attached to the budget,
// or nil when AWS has not calculated one.
func budgetForecast(budget budgettypes.Budget) *budgettypes.Spend {
	if budget.CalculatedSpend == nil {
		return nil
	}
	return budget.CalculatedSpend.ForecastedSpend
}

// parseSpend converts an optional Spend into a float, defaulting to 0.
func parseSpend(spend *budgettypes.Spend) float64 {
	if spend == nil || spend.Amount == nil {
		return 0
	}
	value, err := strconv.ParseFloat(aws.ToString(spend.Amount), 64)
	if err != nil {
		return 0
	}
	return value
}

// apiContext derives the per-call timeout context from config.
func (c *Collector) apiContext(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(ctx, time.Duration(c.cfg.APITimeout)*time.Second)
}

// IsAuthError reports whether err is a credential or permission problem
// rather than a transient API failure.
func IsAuthError(err error) bool {
	var apiErr smithy.APIError
	if !errors.As(err, &apiErr) {
		return false
	}
	switch apiErr.ErrorCode() {
	case "AccessDenied", "AccessDeniedException", "UnauthorizedOperation",
		"UnrecognizedClientException", "ExpiredToken", "InvalidClientTokenId":
		return true
	}
	return false
}
