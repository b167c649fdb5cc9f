package pipeline

import "time"

// StartConfigReload launches the fifth worker stage (spec §6): every
// interval (the [params] observer_wait_time), call reload and log any
// error without stopping the loop. Grounded in the same stop-flag poll
// used by the other four workers.
func (p *Pipeline) StartConfigReload(interval time.Duration, reload func() error) {
	p.wg.Add(1)
	go func() {
		defer p.wg.Done()
		p.log.Debug("config reload thread started")

		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		for {
			select {
			case <-ticker.C:
				if err := reload(); err != nil {
					p.log.WithError(err).Warn("config reload failed")
				}
			case <-afterStopPoll():
				if p.stop.Load() {
					p.log.Debug("config reload thread stopped")
					return
				}
			}
		}
	}()
}
