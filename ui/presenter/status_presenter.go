package presenter

import "time"

// StatusView sets the status line in the view.
type StatusView interface{ SetStatus(string) }

// StatusPresenter collects worker status lines and shows the latest one.
type StatusPresenter struct {
	src     <-chan string
	model   StatusModel
	view    StatusView
	latest  string
	pending []string
}

// StatusModel stores the current status line.
type StatusModel interface{ SetStatus(string) }

func NewStatusPresenter(src <-chan string, model StatusModel, view StatusView) *StatusPresenter {
	return &StatusPresenter{src: src, model: model, view: view}
}

// OnStatus queues a status line. The latest queued line is reflected on the
// next Tick.
func (p *StatusPresenter) OnStatus(s string) {
	if p == nil {
		return
	}
	p.pending = append(p.pending, s)
}

// drain moves everything buffered on the source channel into pending
// without blocking.
func (p *StatusPresenter) drain() {
	if p.src == nil {
		return
	}
	for {
		select {
		case s, ok := <-p.src:
			if !ok {
				p.src = nil
				return
			}
			p.pending = append(p.pending, s)
		default:
			return
		}
	}
}

// Tick flushes queued lines and updates the view when the latest changed.
func (p *StatusPresenter) Tick(now time.Time) {
	if p == nil {
		return
	}
	p.drain()
	if len(p.pending) == 0 {
		return
	}
	last := p.pending[len(p.pending)-1]
	p.pending = p.pending[:0]
	if last == p.latest {
		return
	}
	p.latest = last
	if p.model != nil {
		p.model.SetStatus(last)
	}
	if p.view != nil {
		p.view.SetStatus(last)
	}
}
