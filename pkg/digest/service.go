// Package digest posts the process status to a chat channel on a cron schedule.
package digest

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/adhocore/gronx"

	"github.com/sipeed/gamemanager/pkg/gamemanager"
	"github.com/sipeed/gamemanager/pkg/logger"
	"github.com/sipeed/gamemanager/pkg/supervisor"
)

// Lister is satisfied by *supervisor.Monitor.
type Lister interface {
	ListProcesses(ctx context.Context) ([]supervisor.ProcessInfo, error)
}

// Sender posts text to a channel.
type Sender interface {
	SendText(ctx context.Context, channelID, text string) error
}

type Config struct {
	// Schedule is a five-field cron expression, e.g. "0 */6 * * *".
	Schedule  string
	ChannelID string
	// Timeout bounds one digest run. Defaults to one minute.
	Timeout time.Duration
}

type Service struct {
	cfg    Config
	lister Lister
	sender Sender
	log    *logger.Logger
	now    func() time.Time

	mu       sync.Mutex
	stopChan chan struct{}
	done     chan struct{}
}

// ValidateSchedule reports whether expr is a cron expression gronx accepts.
func ValidateSchedule(expr string) error {
	g := gronx.New()
	if expr == "" || !g.IsValid(expr) {
		return fmt.Errorf("invalid digest schedule %q", expr)
	}
	return nil
}

func NewService(cfg Config, lister Lister, sender Sender, log *logger.Logger) (*Service, error) {
	if err := ValidateSchedule(cfg.Schedule); err != nil {
		return nil, err
	}
	if cfg.ChannelID == "" {
		return nil, errors.New("digest channel ID is required")
	}
	if lister == nil || sender == nil {
		return nil, errors.New("digest needs a process lister and a sender")
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = time.Minute
	}
	return &Service{
		cfg:    cfg,
		lister: lister,
		sender: sender,
		log:    log.Component("digest"),
		now:    time.Now,
	}, nil
}

// Next returns the first tick strictly after t.
func (s *Service) Next(t time.Time) (time.Time, error) {
	return gronx.NextTickAfter(s.cfg.Schedule, t, false)
}

// RunOnce lists the processes and posts the formatted status.
func (s *Service) RunOnce(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, s.cfg.Timeout)
	defer cancel()

	procs, err := s.lister.ListProcesses(ctx)
	if err != nil {
		return fmt.Errorf("listing processes: %w", err)
	}

	text := "Scheduled status report\n" + gamemanager.FormatStatus(procs)
	if err := s.sender.SendText(ctx, s.cfg.ChannelID, text); err != nil {
		return fmt.Errorf("posting digest: %w", err)
	}

	s.log.InfoF("Status digest posted", map[string]any{
		"channel_id": s.cfg.ChannelID,
		"processes":  len(procs),
	})
	return nil
}

// Start runs the schedule in a goroutine until Stop is called or ctx is done.
func (s *Service) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.stopChan != nil {
		return errors.New("digest already running")
	}
	s.stopChan = make(chan struct{})
	s.done = make(chan struct{})

	go s.loop(ctx, s.stopChan, s.done)

	s.log.InfoF("Status digest started", map[string]any{
		"schedule":   s.cfg.Schedule,
		"channel_id": s.cfg.ChannelID,
	})
	return nil
}

func (s *Service) Stop() {
	s.mu.Lock()
	stop, done := s.stopChan, s.done
	s.stopChan, s.done = nil, nil
	s.mu.Unlock()

	if stop == nil {
		return
	}
	close(stop)
	<-done
}

func (s *Service) loop(ctx context.Context, stop <-chan struct{}, done chan<- struct{}) {
	defer close(done)

	for {
		now := s.now()
		next, err := s.Next(now)
		if err != nil {
			s.log.ErrorF("Cannot compute next digest time", map[string]any{"error": err.Error()})
			return
		}

		timer := time.NewTimer(next.Sub(now))
		select {
		case <-ctx.Done():
			timer.Stop()
			return
		case <-stop:
			timer.Stop()
			return
		case <-timer.C:
		}

		if err := s.RunOnce(ctx); err != nil {
			s.log.ErrorF("Status digest failed", map[string]any{"error": err.Error()})
		}
	}
}
