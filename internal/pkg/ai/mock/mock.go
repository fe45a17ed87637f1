package mock

import (
	"context"
	"strings"
	"sync"

	"github.com/qs3c/homework_helper/internal/pkg/ai"
)

const defaultReply = "Step 1: Read the question carefully and list what is given.\n\n" +
	"Step 2: Pick the method that connects the givens to what is asked.\n\n" +
	"Note: this is a practice answer because no AI key is configured."

// Provider 未配置 AI 密钥时和测试中使用的本地实现
type Provider struct {
	mu sync.Mutex

	Reply string
	Err   error

	Calls    int
	Requests []ai.Request
}

func New() *Provider {
	return &Provider{}
}

func (p *Provider) Name() string { return "mock" }

func (p *Provider) Generate(ctx context.Context, req ai.Request) (*ai.Response, error) {
	reply, err := p.record(req)
	if err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return &ai.Response{Text: reply, Model: "mock"}, nil
}

// Stream 按单词切分回复依次回调
func (p *Provider) Stream(ctx context.Context, req ai.Request, onChunk func(string) error) (*ai.Response, error) {
	reply, err := p.record(req)
	if err != nil {
		return nil, err
	}

	words := strings.SplitAfter(reply, " ")
	for _, w := range words {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if err := onChunk(w); err != nil {
			return nil, err
		}
	}
	return &ai.Response{Text: reply, Model: "mock"}, nil
}

func (p *Provider) record(req ai.Request) (string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.Calls++
	p.Requests = append(p.Requests, req)

	if p.Err != nil {
		return "", p.Err
	}
	if req.Image != nil {
		if err := ai.ValidateImage(req.Image); err != nil {
			return "", err
		}
	}
	if p.Reply != "" {
		return p.Reply, nil
	}
	return defaultReply, nil
}

// LastRequest 最近一次收到的请求
func (p *Provider) LastRequest() ai.Request {
	p.mu.Lock()
	defer p.mu.Unlock()
	if len(p.Requests) == 0 {
		return ai.Request{}
	}
	return p.Requests[len(p.Requests)-1]
}
