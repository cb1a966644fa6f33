package oracle

import (
	"context"
	"fmt"
	"sync"
)

// Scripted is a Provider that replays canned responses, or answers through
// a responder function. It backs offline runs and tests.
type Scripted struct {
	mu        sync.Mutex
	responses []string
	respond   func(req *Request) (string, error)
	requests  []*Request
}

// NewScripted returns a provider that answers with responses in order and
// fails once they run out.
func NewScripted(responses ...string) *Scripted {
	return &Scripted{responses: responses}
}

// NewResponder returns a provider that answers every request with fn.
func NewResponder(fn func(req *Request) (string, error)) *Scripted {
	return &Scripted{respond: fn}
}

// Name implements Provider.
func (p *Scripted) Name() string {
	return "scripted"
}

// Generate implements Provider.
func (p *Scripted) Generate(ctx context.Context, req *Request) (*Response, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	p.mu.Lock()
	p.requests = append(p.requests, cloneRequest(req))
	respond := p.respond
	var content string
	var err error
	if respond == nil {
		if len(p.responses) == 0 {
			err = fmt.Errorf("scripted provider: no responses left")
		} else {
			content = p.responses[0]
			p.responses = p.responses[1:]
		}
	}
	p.mu.Unlock()

	if respond != nil {
		content, err = respond(req)
	}
	if err != nil {
		return nil, err
	}
	return &Response{Content: content, Model: "scripted"}, nil
}

// Health implements Provider.
func (p *Scripted) Health(context.Context) error {
	return nil
}

// Requests returns every request received so far.
func (p *Scripted) Requests() []*Request {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]*Request(nil), p.requests...)
}

func cloneRequest(req *Request) *Request {
	c := *req
	c.Messages = append([]Message(nil), req.Messages...)
	return &c
}
