package workflow

import (
	"context"
	"sync"
	"time"

	"github.com/harga-pangan/console/internal/apperr"
	"github.com/harga-pangan/console/internal/models"
)

// poller is the handle of the single status polling goroutine.
type poller struct {
	target string
	stop   chan struct{}
	done   chan struct{}
	once   sync.Once
}

func (p *poller) halt() {
	p.once.Do(func() { close(p.stop) })
}

// Polling reports whether a status poll is active.
func (c *Controller) Polling() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.poll != nil
}

// startPolling starts the poll goroutine unless one is already running.
func (c *Controller) startPolling(target string) {
	c.mu.Lock()
	if c.poll != nil || c.closed {
		c.mu.Unlock()
		return
	}
	p := &poller{
		target: target,
		stop:   make(chan struct{}),
		done:   make(chan struct{}),
	}
	c.poll = p
	c.mu.Unlock()

	go c.pollLoop(p, c.session.Done())
}

// StopPolling halts the poll goroutine and waits for it to exit.
func (c *Controller) StopPolling() {
	c.mu.RLock()
	p := c.poll
	c.mu.RUnlock()

	if p == nil {
		return
	}
	p.halt()
	<-p.done
}

func (c *Controller) pollLoop(p *poller, sessionDone <-chan struct{}) {
	defer close(p.done)
	defer c.releasePoller(p)

	ticker := time.NewTicker(c.cfg.PollInterval)
	defer ticker.Stop()

	c.logger.Debugf("[Run %s] Polling training status every %s", c.shortRun(), c.cfg.PollInterval)

	for {
		select {
		case <-p.stop:
			c.logger.Debugf("[Run %s] Polling stopped", c.shortRun())
			c.abandon(p, "Pemantauan training dihentikan")
			return
		case <-c.ctx.Done():
			return
		case <-sessionDone:
			c.logger.Infof("[Run %s] Session ended, polling stopped", c.shortRun())
			c.abandon(p, "Sesi berakhir, pemantauan training dihentikan")
			return
		case <-ticker.C:
			if c.pollOnce(p) {
				return
			}
		}
	}
}

// pollOnce fetches the status once and reports whether polling is over.
func (c *Controller) pollOnce(p *poller) bool {
	ctx, cancel := context.WithTimeout(c.ctx, c.cfg.RequestTimeout)
	defer cancel()

	job, err := c.backend.TrainingStatus(ctx)
	if err != nil {
		if apperr.IsAuth(err) {
			c.logger.Warnf("[Run %s] Status poll rejected, polling stopped: %v", c.shortRun(), err)
			c.abandon(p, apperr.UserMessage(err))
			return true
		}
		if c.ctx.Err() != nil {
			return true
		}
		// Transient failures keep the poll alive; the next tick retries.
		c.logger.Warnf("[Run %s] Status poll failed: %v", c.shortRun(), err)
		return false
	}

	return c.observe(p, job)
}

// observe records a status update and finishes the job on a terminal
// status.
func (c *Controller) observe(p *poller, job *models.TrainingJob) bool {
	c.mu.Lock()
	c.job = *job
	if job.Message != "" {
		c.message = job.Message
	}
	if !job.Status.Terminal() {
		snapshot := *job
		c.emitLocked(Event{Kind: EvProgress, From: c.state, To: c.state, Komoditas: p.target, Message: job.Message, Job: &snapshot})
		c.mu.Unlock()
		return false
	}
	// Released here so a completion handler can start a new poll.
	if c.poll == p {
		c.poll = nil
	}
	c.mu.Unlock()

	if job.Status == models.TrainingCompleted {
		c.logger.Infof("[Run %s] Training completed (%d%%)", c.shortRun(), job.Progress)
		c.refreshVisualizations(p.target)
		c.applyLogged(Input{Kind: EvTrainCompleted}, p.target, job.Message)
	} else {
		c.logger.Errorf("[Run %s] Training failed: %s", c.shortRun(), job.Message)
		c.applyLogged(Input{Kind: EvTrainFailed}, p.target, job.Message)
	}
	return true
}

// abandon ends the training step when polling stops without a terminal
// status. Refresh settles the real outcome once the backend is reachable.
func (c *Controller) abandon(p *poller, msg string) {
	if c.ctx.Err() != nil {
		return
	}
	c.setMessage(msg)
	c.releasePoller(p)
	c.applyLogged(Input{Kind: EvTrainAbandoned}, p.target, msg)
}

func (c *Controller) applyLogged(in Input, name, message string) {
	if err := c.apply(in, name, message); err != nil {
		c.logger.Warnf("[Run %s] %v", c.shortRun(), err)
	}
}

func (c *Controller) releasePoller(p *poller) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.poll == p {
		c.poll = nil
	}
}
