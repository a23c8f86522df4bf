package services

import (
	"context"
	"fmt"
	"log"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/poyrazK/cloudFleet/internal/core/domain"
	"github.com/poyrazK/cloudFleet/internal/core/ports"
	"github.com/poyrazK/cloudFleet/internal/infrastructure/metrics"
)

const (
	probeCommand        = "echo fleet-probe"
	defaultProbeTimeout = 5 * time.Second
	defaultExecTimeout  = 10 * time.Second
)

type dispatchService struct {
	repo        ports.FleetRepository
	executor    ports.CommandExecutor
	entitlement ports.EntitlementService
	cooldown    ports.CooldownTracker
	settings    ports.SettingsService
	notifier    ports.Notifier

	probeTimeout time.Duration
	execTimeout  time.Duration

	mu     sync.Mutex
	active map[string]domain.ActiveJob
}

// NewDispatchService builds the fleet dispatcher. notifier may be nil when no
// report sink is configured.
func NewDispatchService(repo ports.FleetRepository, executor ports.CommandExecutor, entitlement ports.EntitlementService, cooldown ports.CooldownTracker, settings ports.SettingsService, notifier ports.Notifier) ports.DispatchService {
	return &dispatchService{
		repo:         repo,
		executor:     executor,
		entitlement:  entitlement,
		cooldown:     cooldown,
		settings:     settings,
		notifier:     notifier,
		probeTimeout: defaultProbeTimeout,
		execTimeout:  defaultExecTimeout,
		active:       make(map[string]domain.ActiveJob),
	}
}

// Dispatch runs one job across every responsive node. The effective fleet is
// recomputed on each call; there is no health cache. Per-node failures are
// aggregated and never abort the batch.
func (s *dispatchService) Dispatch(ctx context.Context, req *domain.JobRequest) (*domain.DispatchResult, error) {
	start := time.Now()
	cfg := s.settings.Get()

	if !cfg.DispatcherEnabled {
		metrics.DispatchesTotal.WithLabelValues("disabled").Inc()
		return nil, fmt.Errorf("%w: dispatcher is disabled", domain.ErrPermissionDenied)
	}

	if err := domain.ValidateJobRequest(req, cfg.BlockedPorts); err != nil {
		metrics.DispatchesTotal.WithLabelValues("invalid").Inc()
		return nil, err
	}

	decision, err := s.entitlement.Authorize(ctx, req.Principal, req.Origin)
	if err != nil {
		return nil, err
	}
	if !decision.Allowed {
		metrics.DispatchesTotal.WithLabelValues("denied").Inc()
		if decision.Reason == domain.DenyCooldown {
			return nil, fmt.Errorf("%w: %ds remaining", domain.ErrCooldownActive, decision.CooldownRemaining)
		}
		return nil, fmt.Errorf("%w: %s", domain.ErrPermissionDenied, decision.Reason)
	}
	if req.DurationSeconds > decision.CeilingSeconds {
		metrics.DispatchesTotal.WithLabelValues("invalid").Inc()
		return nil, fmt.Errorf("%w: max allowed duration is %ds", domain.ErrInvalidInput, decision.CeilingSeconds)
	}

	fleet, err := s.effectiveFleet(ctx)
	if err != nil {
		return nil, err
	}
	if decision.FleetLimit > 0 && len(fleet) > decision.FleetLimit {
		fleet = fleet[:decision.FleetLimit]
	}
	if len(fleet) == 0 {
		metrics.DispatchesTotal.WithLabelValues("no_capacity").Inc()
		return nil, domain.ErrNoCapacity
	}

	jobID := fmt.Sprintf("%d_%d_%s", req.Principal, start.Unix(), uuid.NewString()[:8])
	if err := s.admit(jobID, req, start, cfg.MaxConcurrentJobs); err != nil {
		metrics.DispatchesTotal.WithLabelValues("rejected").Inc()
		return nil, err
	}
	// Slot release is unconditional: success, partial failure or panic.
	defer s.release(jobID)

	if cfg.CooldownSeconds > 0 {
		if err := s.cooldown.Mark(ctx, req.Principal, time.Duration(cfg.CooldownSeconds)*time.Second); err != nil {
			log.Printf("failed to mark cooldown for principal %d: %v", req.Principal, err)
		}
	}

	result := s.launchAll(ctx, fleet, req, &cfg, jobID)

	metrics.DispatchesTotal.WithLabelValues("completed").Inc()
	metrics.DispatchDuration.Observe(time.Since(start).Seconds())
	s.audit(ctx, req, result)

	if s.notifier != nil && req.Origin.ChannelID != 0 {
		s.notifier.Notify(ctx, req.Origin.ChannelID, result)
	}

	return result, nil
}

// effectiveFleet probes every registered node concurrently and keeps the
// responsive ones in registry order. Probe failures are excluded from the
// attempt count entirely.
func (s *dispatchService) effectiveFleet(ctx context.Context) ([]domain.Node, error) {
	nodes, err := s.repo.ListNodes(ctx)
	if err != nil {
		return nil, err
	}

	alive := make([]bool, len(nodes))
	var wg sync.WaitGroup
	for i := range nodes {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			ok, output, err := s.executor.Execute(ctx, &nodes[i], probeCommand, s.probeTimeout)
			if err != nil {
				log.Printf("probe contract error on %s: %v", nodes[i].Address, err)
			}
			if ok {
				metrics.NodeProbes.WithLabelValues("alive").Inc()
				alive[i] = true
			} else {
				metrics.NodeProbes.WithLabelValues("dead").Inc()
				log.Printf("node %s failed liveness probe: %s", nodes[i].Address, strings.TrimSpace(output))
			}
		}(i)
	}
	wg.Wait()

	var fleet []domain.Node
	for i, ok := range alive {
		if ok {
			fleet = append(fleet, nodes[i])
		}
	}
	return fleet, nil
}

func (s *dispatchService) admit(jobID string, req *domain.JobRequest, start time.Time, max int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.active) >= max {
		return domain.ErrTooManyConcurrentJobs
	}
	s.active[jobID] = domain.ActiveJob{
		JobID:     jobID,
		Principal: req.Principal,
		Target:    req.Target,
		StartedAt: start,
	}
	metrics.ActiveJobs.Set(float64(len(s.active)))
	return nil
}

func (s *dispatchService) release(jobID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.active, jobID)
	metrics.ActiveJobs.Set(float64(len(s.active)))
}

// launchAll verifies the job artifact and launches the backgrounded command
// on every fleet node concurrently. One node's failure never aborts the rest.
func (s *dispatchService) launchAll(ctx context.Context, fleet []domain.Node, req *domain.JobRequest, cfg *domain.Settings, jobID string) *domain.DispatchResult {
	results := make([]domain.NodeResult, len(fleet))
	command := renderLaunchCommand(cfg, req)
	checkCmd := fmt.Sprintf("test -x %s && echo present || echo missing", cfg.ArtifactPath)

	var wg sync.WaitGroup
	for i := range fleet {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			results[i] = s.launchOne(ctx, &fleet[i], checkCmd, command)
		}(i)
	}
	wg.Wait()

	result := &domain.DispatchResult{
		JobID:              jobID,
		CapacityPerNode:    cfg.CapacityPerNode,
		TotalCapacityUnits: cfg.CapacityPerNode * len(fleet),
		Nodes:              results,
	}
	for _, r := range results {
		result.NodesAttempted++
		if r.OK {
			result.NodesSucceeded++
			metrics.NodeLaunches.WithLabelValues("ok").Inc()
		} else {
			result.NodesFailed++
			metrics.NodeLaunches.WithLabelValues("failed").Inc()
		}
	}
	return result
}

func (s *dispatchService) launchOne(ctx context.Context, node *domain.Node, checkCmd, launchCmd string) domain.NodeResult {
	res := domain.NodeResult{
		Handle: domain.LaunchHandle{NodeAddress: node.Address, SubmittedAt: time.Now()},
	}

	ok, output, err := s.executor.Execute(ctx, node, checkCmd, s.execTimeout)
	if err != nil {
		res.Detail = fmt.Sprintf("artifact check error: %v", err)
		return res
	}
	if !ok || strings.Contains(output, "missing") {
		res.Detail = "job artifact missing or not executable"
		return res
	}

	ok, output, err = s.executor.Execute(ctx, node, launchCmd, s.execTimeout)
	if err != nil {
		res.Detail = fmt.Sprintf("launch error: %v", err)
		return res
	}
	if !ok {
		res.Detail = strings.TrimSpace(output)
		return res
	}

	res.OK = true
	return res
}

// renderLaunchCommand fills the opaque template from configuration. The
// launched process is backgrounded on the node; dispatch only waits for the
// launch command itself.
func renderLaunchCommand(cfg *domain.Settings, req *domain.JobRequest) string {
	return strings.NewReplacer(
		"{artifact}", cfg.ArtifactPath,
		"{target}", req.Target,
		"{port}", strconv.Itoa(req.Port),
		"{duration}", strconv.Itoa(req.DurationSeconds),
		"{capacity}", strconv.Itoa(cfg.CapacityPerNode),
	).Replace(cfg.LaunchTemplate)
}

func (s *dispatchService) audit(ctx context.Context, req *domain.JobRequest, result *domain.DispatchResult) {
	entry := &domain.AuditLog{
		ID:           uuid.New().String(),
		PrincipalID:  req.Principal,
		Action:       "dispatch",
		ResourceType: "job",
		ResourceID:   result.JobID,
		Details: fmt.Sprintf("target=%s:%d duration=%ds attempted=%d succeeded=%d failed=%d",
			req.Target, req.Port, req.DurationSeconds,
			result.NodesAttempted, result.NodesSucceeded, result.NodesFailed),
		CreatedAt: time.Now(),
	}
	if err := s.repo.SaveAuditLog(ctx, entry); err != nil {
		log.Printf("failed to save dispatch audit log: %v", err)
	}
}

// ActiveJobs returns a snapshot of dispatches currently holding a slot.
func (s *dispatchService) ActiveJobs() []domain.ActiveJob {
	s.mu.Lock()
	defer s.mu.Unlock()
	jobs := make([]domain.ActiveJob, 0, len(s.active))
	for _, j := range s.active {
		jobs = append(jobs, j)
	}
	return jobs
}
