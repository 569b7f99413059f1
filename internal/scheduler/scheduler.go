package scheduler

import (
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/go-co-op/gocron"
	"github.com/rs/zerolog"
)

// ErrDuplicateTag is returned by Add when a job with the same tag exists.
var ErrDuplicateTag = errors.New("scheduler: job tag already in use")

// Scheduler runs tagged periodic jobs on a gocron scheduler in UTC. It is
// safe for concurrent use; gocron's job builder is not.
type Scheduler struct {
	mu        sync.Mutex
	scheduler *gocron.Scheduler
	logger    zerolog.Logger
}

// New creates a stopped Scheduler.
func New(logger zerolog.Logger) *Scheduler {
	s := gocron.NewScheduler(time.UTC)
	s.TagsUnique()
	return &Scheduler{
		scheduler: s,
		logger:    logger.With().Str("component", "scheduler").Logger(),
	}
}

// Add schedules job every interval under tag. The first run happens one
// interval from now, never immediately.
func (s *Scheduler) Add(tag string, interval time.Duration, job func()) error {
	if interval <= 0 {
		return fmt.Errorf("scheduler: invalid interval %s for %q", interval, tag)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.has(tag) {
		return fmt.Errorf("%w: %q", ErrDuplicateTag, tag)
	}

	_, err := s.scheduler.Every(interval).Tag(tag).WaitForSchedule().Do(func() {
		s.logger.Debug().Str("job", tag).Msg("running job")
		job()
	})
	if err != nil {
		return fmt.Errorf("scheduler: add %q: %w", tag, err)
	}
	s.logger.Debug().Str("job", tag).Dur("interval", interval).Msg("job scheduled")
	return nil
}

// Remove unschedules the job tagged tag. Removing an unknown tag is a no-op.
func (s *Scheduler) Remove(tag string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	err := s.scheduler.RemoveByTag(tag)
	if err != nil && !errors.Is(err, gocron.ErrJobNotFoundWithTag) {
		return fmt.Errorf("scheduler: remove %q: %w", tag, err)
	}
	return nil
}

// Has reports whether a job with tag is scheduled.
func (s *Scheduler) Has(tag string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.has(tag)
}

func (s *Scheduler) has(tag string) bool {
	jobs, err := s.scheduler.FindJobsByTag(tag)
	return err == nil && len(jobs) > 0
}

// Tags lists the tags of every scheduled job.
func (s *Scheduler) Tags() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	var tags []string
	for _, j := range s.scheduler.Jobs() {
		tags = append(tags, j.Tags()...)
	}
	sort.Strings(tags)
	return tags
}

// Start starts the underlying scheduler without blocking.
func (s *Scheduler) Start() {
	s.scheduler.StartAsync()
}

// Stop stops the scheduler. Running jobs are not interrupted.
func (s *Scheduler) Stop() {
	if s.scheduler != nil && s.scheduler.IsRunning() {
		s.scheduler.Stop()
	}
}
