package schedule

import (
	"context"
	"log"
	"sort"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
)

// RunFunc executes one scheduled resync job.
type RunFunc func(JobConfig) error

// job is one cron entry with its precomputed next fire time.
type job struct {
	cfg     JobConfig
	sched   cron.Schedule
	next    time.Time
	running bool
}

// Scheduler fires resync jobs at their cron times. Each job's next fire
// time is computed up front, and the loop sleeps until the earliest one
// instead of polling. A job that is still running when its time comes
// around again is skipped until it finishes.
type Scheduler struct {
	mu     sync.Mutex
	jobs   map[string]*job
	cancel context.CancelFunc
	done   chan struct{}
}

// NewScheduler creates a scheduler from validated job configs.
func NewScheduler(configs []JobConfig) (*Scheduler, error) {
	now := time.Now()
	jobs := make(map[string]*job, len(configs))
	for _, cfg := range configs {
		if err := cfg.Validate(); err != nil {
			return nil, err
		}
		sched, err := ParseCron(cfg.Cron)
		if err != nil {
			return nil, err
		}
		jobs[cfg.Name] = &job{cfg: cfg, sched: sched, next: sched.Next(now)}
	}
	return &Scheduler{jobs: jobs}, nil
}

// ParseCron parses a five-field cron expression
func ParseCron(expr string) (cron.Schedule, error) {
	parser := cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow)
	return parser.Parse(expr)
}

// NextRun returns the next scheduled fire time for a job
func (s *Scheduler) NextRun(name string) time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	if j, ok := s.jobs[name]; ok {
		return j.next
	}
	return time.Time{}
}

// ListJobs returns all job names in stable order
func (s *Scheduler) ListJobs() []string {
	s.mu.Lock()
	defer s.mu.Unlock()

	names := make([]string, 0, len(s.jobs))
	for name := range s.jobs {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// due returns the jobs whose fire time has passed and marks them running;
// each job's next fire time advances past now so it cannot double-fire.
func (s *Scheduler) due(now time.Time) []JobConfig {
	s.mu.Lock()
	defer s.mu.Unlock()

	var fired []JobConfig
	for _, j := range s.jobs {
		if j.next.After(now) {
			continue
		}
		j.next = j.sched.Next(now)
		if j.running {
			continue
		}
		j.running = true
		fired = append(fired, j.cfg)
	}
	return fired
}

// wake returns how long to sleep until the earliest pending fire time.
func (s *Scheduler) wake(now time.Time) time.Duration {
	s.mu.Lock()
	defer s.mu.Unlock()

	earliest := now.Add(time.Hour)
	for _, j := range s.jobs {
		if j.next.Before(earliest) {
			earliest = j.next
		}
	}
	if d := earliest.Sub(now); d > 0 {
		return d
	}
	return time.Second
}

func (s *Scheduler) finished(name string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if j, ok := s.jobs[name]; ok {
		j.running = false
	}
}

// Start launches the scheduler loop. It returns immediately; Stop halts
// the loop and waits for it to exit, not for in-flight jobs.
func (s *Scheduler) Start(run RunFunc) {
	ctx, cancel := context.WithCancel(context.Background())
	s.cancel = cancel
	s.done = make(chan struct{})

	go func() {
		defer close(s.done)
		for {
			timer := time.NewTimer(s.wake(time.Now()))
			select {
			case <-ctx.Done():
				timer.Stop()
				return
			case now := <-timer.C:
				for _, cfg := range s.due(now) {
					go func(c JobConfig) {
						defer s.finished(c.Name)
						if err := run(c); err != nil {
							log.Printf("Scheduled resync %s failed: %v", c.Name, err)
						}
					}(cfg)
				}
			}
		}
	}()
}

// Stop halts the scheduler loop
func (s *Scheduler) Stop() {
	if s.cancel != nil {
		s.cancel()
		<-s.done
	}
}
