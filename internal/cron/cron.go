package cron

import (
	"context"
	"os"
	"sort"
	"sync"
	"time"

	cronv3 "github.com/robfig/cron/v3"
	"go.uber.org/zap"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/client-go/kubernetes"
	"k8s.io/client-go/tools/leaderelection"
	"k8s.io/client-go/tools/leaderelection/resourcelock"

	"github.com/customeros/mailarchive/interfaces"
	cron_config "github.com/customeros/mailarchive/internal/cron/config"
	"github.com/customeros/mailarchive/internal/enum"
	"github.com/customeros/mailarchive/internal/logger"
	"github.com/customeros/mailarchive/internal/tracing"
)

const (
	// GroupIngestion serializes jobs that run the pipeline
	GroupIngestion = "ingestion"
	// GroupIntegrity serializes integrity sweeps
	GroupIntegrity = "integrity"

	JobHeartbeat      = "heartbeat"
	JobPollAccounts   = "poll_accounts"
	JobIntegritySweep = "integrity_sweep"
	JobRetryFailed    = "retry_failed"

	// retryBatchSize caps how many emails one retry tick re-enters
	retryBatchSize = 100

	// LeaseDuration is how long a lease lasts before needing renewal
	LeaseDuration = 15 * time.Second
	// RenewDeadline is how long a leader has to renew its lease
	RenewDeadline = 10 * time.Second
	// RetryPeriod is how long to wait between leadership attempts
	RetryPeriod = 2 * time.Second
)

var jobLocks = struct {
	sync.Mutex
	locks map[string]*sync.Mutex
}{
	locks: map[string]*sync.Mutex{
		GroupIngestion: new(sync.Mutex),
		GroupIntegrity: new(sync.Mutex),
	},
}

// Jobs are the services the scheduled jobs drive.
type Jobs struct {
	Poller   interfaces.Poller
	Store    interfaces.DocumentStore
	Emails   interfaces.EmailRepository
	Pipeline interfaces.IngestionPipeline
}

// JobEntry describes one registered job for the status endpoint.
type JobEntry struct {
	Name string    `json:"name"`
	Next time.Time `json:"next"`
	Prev time.Time `json:"prev,omitempty"`
}

type CronManager struct {
	cfg      *cron_config.Config
	log      logger.Logger
	k8s      kubernetes.Interface
	jobs     Jobs
	mu       sync.Mutex
	cron     *cronv3.Cron
	jobIDs   map[string]cronv3.EntryID
	stopOnce sync.Once
	stopCh   chan struct{}
	leading  bool
}

func NewCronManager(cfg *cron_config.Config, log logger.Logger, k8s kubernetes.Interface, jobs Jobs) *CronManager {
	return &CronManager{
		cfg:    cfg,
		log:    log,
		k8s:    k8s,
		jobs:   jobs,
		stopCh: make(chan struct{}),
		jobIDs: make(map[string]cronv3.EntryID),
	}
}

// Start initializes and starts the cron manager with leader election
// If k8s is nil, it will start in local mode without leader election
func (cm *CronManager) Start(podName, namespace string) error {
	if cm.k8s == nil || os.Getenv("LOCAL_DEV") == "true" {
		cm.log.Info("Starting cron manager in local mode")
		cm.StartCron()
		return nil
	}

	lock := &resourcelock.LeaseLock{
		LeaseMeta: metav1.ObjectMeta{
			Name:      "mailarchive-cron-leader",
			Namespace: namespace,
		},
		Client: cm.k8s.CoordinationV1(),
		LockConfig: resourcelock.ResourceLockConfig{
			Identity: podName,
		},
	}

	errCh := make(chan error, 1)

	go func() {
		le, err := leaderelection.NewLeaderElector(leaderelection.LeaderElectionConfig{
			Lock:            lock,
			ReleaseOnCancel: true,
			LeaseDuration:   LeaseDuration,
			RenewDeadline:   RenewDeadline,
			RetryPeriod:     RetryPeriod,
			Callbacks: leaderelection.LeaderCallbacks{
				OnStartedLeading: func(ctx context.Context) {
					cm.StartCron()
				},
				OnStoppedLeading: func() {
					cm.log.Info("Leader lost - stopping crons")
					cm.Stop()
				},
				OnNewLeader: func(identity string) {
					cm.log.Infof("New leader elected: %s", identity)
				},
			},
		})
		if err != nil {
			errCh <- err
			return
		}

		ctx, cancel := context.WithCancel(context.Background())
		go func() {
			<-cm.stopCh
			cancel()
		}()
		le.Run(ctx)
	}()

	select {
	case err := <-errCh:
		cm.log.Warnf("Leader election failed, falling back to local mode: %v", err)
		cm.StartCron()
	case <-time.After(5 * time.Second):
	}

	return nil
}

// Stop gracefully stops the cron manager and waits for running jobs.
func (cm *CronManager) Stop() {
	cm.stopOnce.Do(func() {
		cm.mu.Lock()
		c := cm.cron
		cm.leading = false
		cm.mu.Unlock()
		if c != nil {
			cm.log.Info("Stopping cron manager")
			<-c.Stop().Done()
		}
		close(cm.stopCh)
	})
}

// StartCron initializes and starts the cron scheduler
func (cm *CronManager) StartCron() {
	cm.log.Info("Starting cron manager")
	cronOptions := []cronv3.Option{
		cronv3.WithSeconds(),
		cronv3.WithChain(
			cronv3.SkipIfStillRunning(cronv3.DefaultLogger),
			cronv3.Recover(cronv3.DefaultLogger),
		),
	}
	c := cronv3.New(cronOptions...)
	cm.registerJobs(c)
	c.Start()

	cm.mu.Lock()
	cm.cron = c
	cm.leading = true
	cm.mu.Unlock()
}

// Running reports whether this instance currently runs the schedule.
func (cm *CronManager) Running() bool {
	cm.mu.Lock()
	defer cm.mu.Unlock()
	return cm.leading
}

// Entries lists registered jobs with their next run time.
func (cm *CronManager) Entries() []JobEntry {
	cm.mu.Lock()
	defer cm.mu.Unlock()
	if cm.cron == nil {
		return nil
	}
	out := make([]JobEntry, 0, len(cm.jobIDs))
	for name, id := range cm.jobIDs {
		entry := cm.cron.Entry(id)
		out = append(out, JobEntry{Name: name, Next: entry.Next, Prev: entry.Prev})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// registerJobs adds all cron jobs to the scheduler. An empty schedule
// disables its job.
func (cm *CronManager) registerJobs(c *cronv3.Cron) {
	cm.mu.Lock()
	defer cm.mu.Unlock()

	podName := os.Getenv("POD_NAME")
	if podName == "" {
		podName = "local"
	}

	cm.addJob(c, JobHeartbeat, cm.cfg.CronScheduleHeartbeat, "", func() {
		cm.log.Infof("Cron heartbeat from pod: %s", podName)
	})
	if cm.jobs.Poller != nil {
		cm.addJob(c, JobPollAccounts, cm.cfg.CronSchedulePollAccounts, GroupIngestion, cm.pollAccounts)
	}
	if cm.jobs.Store != nil {
		cm.addJob(c, JobIntegritySweep, cm.cfg.CronScheduleIntegritySweep, GroupIntegrity, cm.integritySweep)
	}
	if cm.jobs.Emails != nil && cm.jobs.Pipeline != nil {
		cm.addJob(c, JobRetryFailed, cm.cfg.CronScheduleRetryFailed, GroupIngestion, cm.retryFailed)
	}
}

func (cm *CronManager) addJob(c *cronv3.Cron, name, schedule, group string, fn func()) {
	if schedule == "" {
		return
	}
	id, err := c.AddFunc(schedule, func() {
		defer tracing.RecoverAndLogToJaeger(cm.log)
		if group != "" {
			jobLocks.locks[group].Lock()
			defer jobLocks.locks[group].Unlock()
		}
		fn()
	})
	if err != nil {
		cm.log.Fatalf("Could not add %s cron job: %v", name, err)
	}
	cm.jobIDs[name] = id
	cm.log.Infof("Registered %s job with schedule: %s", name, schedule)
}

func (cm *CronManager) pollAccounts() {
	span, ctx := tracing.StartTracerSpan(context.Background(), "CronManager.pollAccounts")
	defer span.Finish()
	tracing.SetDefaultCronSpanTags(ctx, span)

	outcomes := cm.jobs.Poller.PollDue(ctx)
	for _, o := range outcomes {
		if o == nil {
			continue
		}
		if o.Error != "" {
			cm.log.Warn("Account poll finished with error", zap.String("accountId", o.AccountID), zap.String("error", o.Error))
			continue
		}
		cm.log.Info("Account polled", zap.String("accountId", o.AccountID), zap.Int("fetched", o.Fetched), zap.Int("new", o.New), zap.Bool("skipped", o.Skipped))
	}
	span.LogKV("accounts", len(outcomes))
}

func (cm *CronManager) integritySweep() {
	span, ctx := tracing.StartTracerSpan(context.Background(), "CronManager.integritySweep")
	defer span.Finish()
	tracing.SetDefaultCronSpanTags(ctx, span)

	outcome, err := cm.jobs.Store.VerifyAll(ctx)
	if err != nil {
		tracing.TraceErr(span, err)
		cm.log.Errorf("Integrity sweep failed: %v", err)
		return
	}
	cm.log.Info("Integrity sweep finished",
		zap.Int("checked", outcome.Checked),
		zap.Int("verified", outcome.Verified),
		zap.Int("mismatched", len(outcome.Mismatched)),
		zap.Int("missing", len(outcome.Missing)),
		zap.Int("unchecked", len(outcome.Unchecked)))
}

// retryFailed re-enters emails that ended in error or were left pending by
// an interrupted run.
func (cm *CronManager) retryFailed() {
	span, ctx := tracing.StartTracerSpan(context.Background(), "CronManager.retryFailed")
	defer span.Finish()
	tracing.SetDefaultCronSpanTags(ctx, span)

	retried := 0
	for _, status := range []enum.EmailStatus{enum.EmailStatusError, enum.EmailStatusPending} {
		ids, err := cm.jobs.Emails.ListIDsByStatus(ctx, status, retryBatchSize)
		if err != nil {
			tracing.TraceErr(span, err)
			cm.log.Errorf("Failed to list %s emails: %v", status, err)
			continue
		}
		for _, id := range ids {
			if _, err := cm.jobs.Pipeline.ProcessEmail(ctx, id); err != nil {
				cm.log.Warn("Retry failed", zap.String("emailId", id), zap.Error(err))
				continue
			}
			retried++
		}
	}
	span.LogKV("retried", retried)
}
