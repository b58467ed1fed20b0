package checkup

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"strings"
	"time"

	awssdk "github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/cloudwatch"
	"github.com/aws/aws-sdk-go-v2/service/costexplorer"
	cetypes "github.com/aws/aws-sdk-go-v2/service/costexplorer/types"
	"github.com/aws/aws-sdk-go-v2/service/sts"
	"github.com/cenkalti/backoff/v4"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/push"

	"github.com/zgpcy/aws-billing-exporter/internal/aws"
	"github.com/zgpcy/aws-billing-exporter/internal/clock"
	"github.com/zgpcy/aws-billing-exporter/internal/config"
	"github.com/zgpcy/aws-billing-exporter/internal/logger"
)

// Gateway probe constants
const (
	// CheckJobName groups the probe metric pushed during validation so it
	// never collides with real billing data
	CheckJobName = "billing-exporter-check"

	// HealthWaitElapsed bounds how long the health probe keeps retrying
	HealthWaitElapsed = 30 * time.Second

	// HealthRetryInterval is the initial backoff interval between probes
	HealthRetryInterval = 500 * time.Millisecond

	// HealthMaxInterval is the maximum backoff interval between probes
	HealthMaxInterval = 5 * time.Second

	healthProbeTimeout = 5 * time.Second
	pushProbeTimeout   = 10 * time.Second
)

// optionalEnvVars are reported but never fail the environment check.
var optionalEnvVars = []string{
	"AWS_ACCESS_KEY_ID",
	"AWS_SECRET_ACCESS_KEY",
	"AWS_ACCOUNT_ID",
	"PROMETHEUS_JOB_NAME",
}

// Result is the outcome of a single validation check.
type Result struct {
	Name   string
	OK     bool
	Detail string
}

// identityAPI is the STS surface the AWS check needs.
type identityAPI interface {
	GetCallerIdentity(ctx context.Context, params *sts.GetCallerIdentityInput, optFns ...func(*sts.Options)) (*sts.GetCallerIdentityOutput, error)
}

// billingMetricsAPI is the CloudWatch surface the AWS check needs.
type billingMetricsAPI interface {
	ListMetrics(ctx context.Context, params *cloudwatch.ListMetricsInput, optFns ...func(*cloudwatch.Options)) (*cloudwatch.ListMetricsOutput, error)
}

// costAPI is the Cost Explorer surface the AWS check needs.
type costAPI interface {
	GetCostAndUsage(ctx context.Context, params *costexplorer.GetCostAndUsageInput, optFns ...func(*costexplorer.Options)) (*costexplorer.GetCostAndUsageOutput, error)
}

// awsProbes bundles the clients the AWS connectivity check exercises.
type awsProbes struct {
	identity identityAPI
	billing  billingMetricsAPI
	costs    costAPI
}

// Runner executes the setup validation checks.
type Runner struct {
	cfg        *config.Config
	log        *logger.Logger
	clock      clock.Clock
	httpClient *http.Client

	loadAWS        func(ctx context.Context, region string) (awsProbes, error)
	healthWait     time.Duration
	healthInterval time.Duration
}

// NewRunner creates a validation runner for the given configuration.
func NewRunner(cfg *config.Config, log *logger.Logger) *Runner {
	return &Runner{
		cfg:            cfg,
		log:            log,
		clock:          clock.RealClock{},
		httpClient:     &http.Client{},
		loadAWS:        loadAWSProbes,
		healthWait:     HealthWaitElapsed,
		healthInterval: HealthRetryInterval,
	}
}

func loadAWSProbes(ctx context.Context, region string) (awsProbes, error) {
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(region))
	if err != nil {
		return awsProbes{}, err
	}
	return awsProbes{
		identity: sts.NewFromConfig(awsCfg),
		billing:  cloudwatch.NewFromConfig(awsCfg),
		costs:    costexplorer.NewFromConfig(awsCfg),
	}, nil
}

// RunAll executes every check and returns their results in run order.
// Checks are independent; a failing check never stops the rest.
func (r *Runner) RunAll(ctx context.Context) []Result {
	r.log.Info("Running setup validation")

	results := []Result{
		r.checkEnvironment(),
		r.checkDirectories(),
		r.checkAWS(ctx),
		r.checkGateway(ctx),
	}

	passed := 0
	for _, res := range results {
		if res.OK {
			passed++
		}
	}
	r.log.Info("Validation summary", "passed", passed, "total", len(results))

	return results
}

// AllPassed reports whether every check succeeded.
func AllPassed(results []Result) bool {
	for _, res := range results {
		if !res.OK {
			return false
		}
	}
	return true
}

// checkEnvironment verifies the required configuration is present,
// preferring environment variables but accepting config file values.
// Optional variables are reported with sensitive values masked.
func (r *Runner) checkEnvironment() Result {
	const name = "Environment Variables"

	required := []struct {
		env       string
		effective string
	}{
		{"AWS_REGION", r.cfg.AWS.Region},
		{"PROMETHEUS_PUSHGATEWAY_URL", r.cfg.Gateway.URL},
	}

	var missing []string
	for _, v := range required {
		if value := os.Getenv(v.env); value != "" {
			r.log.Info("Environment variable set", "name", v.env, "value", maskValue(v.env, value))
			continue
		}
		if v.effective != "" {
			r.log.Info("Environment variable not set, using config file value", "name", v.env)
			continue
		}
		r.log.Error("Required environment variable not set", "name", v.env)
		missing = append(missing, v.env)
	}

	for _, env := range optionalEnvVars {
		if value := os.Getenv(env); value != "" {
			r.log.Info("Environment variable set", "name", env, "value", maskValue(env, value))
		} else {
			r.log.Warn("Optional environment variable not set", "name", env)
		}
	}

	if len(missing) > 0 {
		return Result{Name: name, Detail: "missing required: " + strings.Join(missing, ", ")}
	}
	return Result{Name: name, OK: true, Detail: "required configuration present"}
}

// maskValue hides credentials when a variable name marks it sensitive.
func maskValue(name, value string) string {
	if strings.Contains(name, "SECRET") || strings.Contains(name, "KEY") {
		return strings.Repeat("*", len(value))
	}
	return value
}

// checkDirectories ensures the data and log directories exist, creating
// them when missing.
func (r *Runner) checkDirectories() Result {
	const name = "Data Directories"

	var unusable []string
	for _, dir := range []string{r.cfg.DataDir, r.cfg.LogDir} {
		info, err := os.Stat(dir)
		switch {
		case err == nil && info.IsDir():
			r.log.Info("Directory exists", "path", dir)
		case err == nil:
			r.log.Error("Path exists but is not a directory", "path", dir)
			unusable = append(unusable, dir)
		default:
			if mkErr := os.MkdirAll(dir, 0o755); mkErr != nil {
				r.log.Error("Cannot create directory", "path", dir, "error", mkErr)
				unusable = append(unusable, dir)
				continue
			}
			r.log.Info("Directory created", "path", dir)
		}
	}

	if len(unusable) > 0 {
		return Result{Name: name, Detail: "unusable: " + strings.Join(unusable, ", ")}
	}
	return Result{Name: name, OK: true, Detail: "data and log directories ready"}
}

// checkAWS verifies credentials resolve and that the caller can reach the
// three APIs the collector uses. Each probe exercises the same permission
// the collection run needs.
func (r *Runner) checkAWS(ctx context.Context) Result {
	const name = "AWS Connection"

	probes, err := r.loadAWS(ctx, r.cfg.AWS.Region)
	if err != nil {
		r.log.Error("Failed to load AWS configuration", "error", err)
		return Result{Name: name, Detail: fmt.Sprintf("loading AWS configuration failed: %v", err)}
	}

	apiCtx, cancel := r.apiContext(ctx)
	identity, err := probes.identity.GetCallerIdentity(apiCtx, &sts.GetCallerIdentityInput{})
	cancel()
	if err != nil {
		r.logAWSFailure("AWS connection failed", err)
		return Result{Name: name, Detail: fmt.Sprintf("caller identity: %v", err)}
	}
	account := awssdk.ToString(identity.Account)
	r.log.Info("AWS connection successful",
		"account_id", account,
		"arn", awssdk.ToString(identity.Arn))

	apiCtx, cancel = r.apiContext(ctx)
	_, err = probes.billing.ListMetrics(apiCtx, &cloudwatch.ListMetricsInput{
		Namespace:  awssdk.String("AWS/Billing"),
		MetricName: awssdk.String("EstimatedCharges"),
	})
	cancel()
	if err != nil {
		r.logAWSFailure("CloudWatch Billing access failed", err)
		return Result{Name: name, Detail: fmt.Sprintf("CloudWatch Billing: %v", err)}
	}
	r.log.Info("CloudWatch Billing access confirmed")

	now := r.clock.Now()
	apiCtx, cancel = r.apiContext(ctx)
	_, err = probes.costs.GetCostAndUsage(apiCtx, &costexplorer.GetCostAndUsageInput{
		TimePeriod: &cetypes.DateInterval{
			Start: awssdk.String(now.AddDate(0, 0, -1).Format("2006-01-02")),
			End:   awssdk.String(now.Format("2006-01-02")),
		},
		Granularity: cetypes.GranularityDaily,
		Metrics:     []string{"BlendedCost"},
	})
	cancel()
	if err != nil {
		r.logAWSFailure("Cost Explorer access failed", err)
		return Result{Name: name, Detail: fmt.Sprintf("Cost Explorer: %v", err)}
	}
	r.log.Info("Cost Explorer access confirmed")

	return Result{Name: name, OK: true, Detail: "account " + account + " verified"}
}

// logAWSFailure logs an AWS probe failure, adding the IAM permission list
// when the error is a credential or permission problem.
func (r *Runner) logAWSFailure(msg string, err error) {
	r.log.Error(msg, "error", err)
	if aws.IsAuthError(err) {
		r.log.Error("Grant cloudwatch:GetMetricStatistics, cloudwatch:ListMetrics, ce:GetCostAndUsage and budgets:DescribeBudgets to the caller")
	}
}

// checkGateway waits for the Pushgateway to report healthy, pushes a probe
// metric under a dedicated job and deletes it again.
func (r *Runner) checkGateway(ctx context.Context) Result {
	const name = "Prometheus Pushgateway"

	gatewayURL := strings.TrimRight(r.cfg.Gateway.URL, "/")
	if gatewayURL == "" {
		r.log.Error("PROMETHEUS_PUSHGATEWAY_URL not set")
		return Result{Name: name, Detail: "PROMETHEUS_PUSHGATEWAY_URL not set"}
	}

	if err := r.waitHealthy(ctx, gatewayURL); err != nil {
		r.log.Error("Pushgateway health check failed", "url", gatewayURL, "error", err)
		return Result{Name: name, Detail: fmt.Sprintf("health check failed: %v", err)}
	}
	r.log.Info("Pushgateway health check passed", "url", gatewayURL)

	probe := prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "billing_exporter_check",
		Help: "Probe metric pushed during setup validation.",
	})
	probe.Set(1)

	pusher := push.New(gatewayURL, CheckJobName).
		Collector(probe).
		Client(r.httpClient)

	pushCtx, cancel := context.WithTimeout(ctx, pushProbeTimeout)
	defer cancel()
	if err := pusher.PushContext(pushCtx); err != nil {
		r.log.Error("Pushgateway metric push test failed", "error", err)
		return Result{Name: name, Detail: fmt.Sprintf("test push failed: %v", err)}
	}
	r.log.Info("Pushgateway metric push test successful")

	// Best effort cleanup; a leftover probe metric is harmless
	if err := pusher.Delete(); err != nil {
		r.log.Warn("Failed to clean up probe metric", "error", err)
	}

	return Result{Name: name, OK: true, Detail: "healthy, test push accepted"}
}

// waitHealthy polls the health endpoint with exponential backoff until it
// answers 200 or the wait budget is spent.
func (r *Runner) waitHealthy(ctx context.Context, gatewayURL string) error {
	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = r.healthInterval
	bo.MaxInterval = HealthMaxInterval
	bo.MaxElapsedTime = r.healthWait

	operation := func() error {
		err := r.probeHealth(ctx, gatewayURL)
		if err != nil {
			r.log.Debug("Pushgateway not healthy yet, will retry", "error", err)
		}
		return err
	}

	return backoff.Retry(operation, backoff.WithContext(bo, ctx))
}

func (r *Runner) probeHealth(ctx context.Context, gatewayURL string) error {
	ctx, cancel := context.WithTimeout(ctx, healthProbeTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, gatewayURL+"/-/healthy", nil)
	if err != nil {
		return backoff.Permanent(err)
	}

	resp, err := r.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("health endpoint returned status %d", resp.StatusCode)
	}
	return nil
}

// apiContext derives the per-call timeout context from config.
func (r *Runner) apiContext(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(ctx, time.Duration(r.cfg.APITimeout)*time.Second)
}
