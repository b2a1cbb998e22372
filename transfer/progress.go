package transfer

import (
	"io"
	"log"
	"sync"
	"time"

	"github.com/schollz/progressbar/v3"

	"github.com/ndlib/bagfetch/bagit"
	"github.com/ndlib/bagfetch/fetch"
)

// NewLogProgress returns a progress function which logs a line each time a
// file gets another step bytes further along, and when it finishes.
func NewLogProgress(step int64) fetch.ProgressFunc {
	var m sync.Mutex
	last := make(map[string]int64)
	return func(action, target string, count, total int64) {
		m.Lock()
		defer m.Unlock()
		if action == fetch.ActionDone {
			delete(last, target)
			return
		}
		prev, ok := last[target]
		done := total != bagit.UnknownSize && count >= total
		if ok && count > prev && count-prev < step && !done {
			return
		}
		last[target] = count
		if total == bagit.UnknownSize {
			log.Printf("%s: %s %d bytes", action, target, count)
		} else {
			log.Printf("%s: %s %d/%d bytes", action, target, count, total)
		}
		if done {
			delete(last, target)
		}
	}
}

// NewProgressBar returns a progress function drawing a bar for each file
// on w. Files of unknown size get a spinner.
func NewProgressBar(w io.Writer) fetch.ProgressFunc {
	return newProgressBars(w).report
}

type progressBars struct {
	w    io.Writer
	m    sync.Mutex
	bars map[string]*progressbar.ProgressBar
}

func newProgressBars(w io.Writer) *progressBars {
	return &progressBars{w: w, bars: make(map[string]*progressbar.ProgressBar)}
}

func (p *progressBars) report(action, target string, count, total int64) {
	p.m.Lock()
	defer p.m.Unlock()
	bar, ok := p.bars[target]
	if action == fetch.ActionDone {
		// a bar still here never reached its total
		if ok {
			bar.Exit()
			delete(p.bars, target)
		}
		return
	}
	if !ok {
		bar = progressbar.NewOptions64(total,
			progressbar.OptionSetWriter(p.w),
			progressbar.OptionSetWidth(30),
			progressbar.OptionShowBytes(true),
			progressbar.OptionSetDescription(action+" "+target),
			progressbar.OptionThrottle(100*time.Millisecond),
		)
		p.bars[target] = bar
	}
	bar.Set64(count)
	if total != bagit.UnknownSize && count >= total {
		bar.Finish()
		delete(p.bars, target)
	}
}
