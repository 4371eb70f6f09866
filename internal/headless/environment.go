package headless

import (
	"fmt"

	"go.uber.org/zap"

	"github.com/cryguy/webbridge/internal/bridge"
	"github.com/cryguy/webbridge/internal/core"
	"github.com/cryguy/webbridge/internal/eventloop"
)

// pageString is a script held for the duration of one evaluation.
type pageString struct {
	src string
}

// ownerHandle evaluates synchronously on the loop goroutine.
type ownerHandle struct {
	p *Page
}

// foreignHandle hands evaluations to the loop without waiting for them.
type foreignHandle struct {
	p *Page
}

var (
	_ bridge.Environment = (*Page)(nil)
	_ bridge.Handle      = ownerHandle{}
	_ bridge.Handle      = foreignHandle{}
)

// OnOwner reports whether the caller is the page loop.
func (p *Page) OnOwner() bool {
	return p.loop.OnLoop()
}

// Owner returns the handle used on the page loop.
func (p *Page) Owner() bridge.Handle {
	return ownerHandle{p}
}

// Attach registers the calling goroutine with the page. A goroutine that is
// already attached gets its existing attachment back.
func (p *Page) Attach() (bridge.Handle, bool, error) {
	id := eventloop.GoroutineID()
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.attached[id] > 0 {
		return foreignHandle{p}, false, nil
	}
	p.attached[id]++
	return foreignHandle{p}, true, nil
}

// Detach drops the calling goroutine's attachment.
func (p *Page) Detach() error {
	id := eventloop.GoroutineID()
	p.mu.Lock()
	defer p.mu.Unlock()
	delete(p.attached, id)
	return nil
}

// Attached returns the number of goroutines currently attached.
func (p *Page) Attached() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.attached)
}

// LiveStrings returns the number of script strings not yet released.
func (p *Page) LiveStrings() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.live
}

func (p *Page) newString(s string) *pageString {
	p.mu.Lock()
	p.live++
	p.mu.Unlock()
	return &pageString{src: s}
}

func (p *Page) releaseString() {
	p.mu.Lock()
	p.live--
	p.mu.Unlock()
}

func (h ownerHandle) NewString(s string) (bridge.StringRef, error) {
	return h.p.newString(s), nil
}

func (h ownerHandle) Evaluate(ref bridge.StringRef) error {
	return h.p.evaluate(ref.(*pageString).src)
}

func (h ownerHandle) ReleaseString(bridge.StringRef) {
	h.p.releaseString()
}

func (h foreignHandle) NewString(s string) (bridge.StringRef, error) {
	return h.p.newString(s), nil
}

// Evaluate submits the script to the loop. Script errors surface on the
// loop, after the caller has moved on. A loop that no longer takes work
// means the page is gone.
func (h foreignHandle) Evaluate(ref bridge.StringRef) error {
	src := ref.(*pageString).src
	p := h.p
	err := p.loop.Submit(func() {
		if err := p.EvaluateScript(src); err != nil {
			p.logger.Warn("script raised", zap.Error(err))
		}
	})
	if err != nil {
		return fmt.Errorf("%w: %w", core.ErrWindowClosed, err)
	}
	return nil
}

func (h foreignHandle) ReleaseString(bridge.StringRef) {
	h.p.releaseString()
}
