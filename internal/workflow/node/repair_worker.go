package node

import (
	"context"
	"fmt"
	"sync"

	"z-song-ai-api/pkg/logger"
)

// RepairOperation 修复请求类型
type RepairOperation string

const (
	RepairOpRepair      RepairOperation = "repair"
	RepairOpStrictParse RepairOperation = "strict-parse"
)

// RepairRequest 修复请求
type RepairRequest struct {
	Operation RepairOperation `json:"operation"`
	Payload   string          `json:"payload"`
}

// RepairResponse 修复响应；请求与响应通过每个请求独占的回复通道对应
type RepairResponse struct {
	Success bool           `json:"success"`
	Result  map[string]any `json:"result,omitempty"`
	Error   string         `json:"error,omitempty"`
}

// Repairer 片段修复执行器。调用方只能通过返回的通道拿到结果，
// 不能假设 Submit 返回时修复已经完成。
type Repairer interface {
	Submit(ctx context.Context, req RepairRequest) <-chan RepairResponse
}

// AwaitRepair 等待修复结果或 ctx 结束
func AwaitRepair(ctx context.Context, ch <-chan RepairResponse) (RepairResponse, error) {
	select {
	case <-ctx.Done():
		return RepairResponse{}, ctx.Err()
	case resp, ok := <-ch:
		if !ok {
			return RepairResponse{}, fmt.Errorf("repair channel closed without response")
		}
		return resp, nil
	}
}

// HandleRepair 同步处理单个请求
func HandleRepair(req RepairRequest) RepairResponse {
	switch req.Operation {
	case RepairOpRepair:
		return RepairResponse{Success: true, Result: RepairJSON(req.Payload)}
	case RepairOpStrictParse:
		out, err := StrictParseJSON(req.Payload)
		if err != nil {
			return RepairResponse{Success: false, Error: err.Error()}
		}
		return RepairResponse{Success: true, Result: out}
	default:
		return RepairResponse{Success: false, Error: fmt.Sprintf("unknown repair operation: %q", req.Operation)}
	}
}

// InlineRepairer 在调用方 goroutine 内同步完成修复
type InlineRepairer struct{}

func (InlineRepairer) Submit(_ context.Context, req RepairRequest) <-chan RepairResponse {
	ch := make(chan RepairResponse, 1)
	ch <- HandleRepair(req)
	close(ch)
	return ch
}

type repairJob struct {
	ctx   context.Context
	req   RepairRequest
	reply chan RepairResponse
}

// RepairWorker 独立 goroutine 池，经有界队列接收修复请求
type RepairWorker struct {
	queue chan repairJob
	wg    sync.WaitGroup

	mu     sync.RWMutex
	closed bool
}

// NewRepairWorker 启动 workers 个修复 goroutine，队列容量 queueSize
func NewRepairWorker(workers, queueSize int) *RepairWorker {
	if workers <= 0 {
		workers = 1
	}
	if queueSize < 0 {
		queueSize = 0
	}
	w := &RepairWorker{queue: make(chan repairJob, queueSize)}
	for i := 0; i < workers; i++ {
		w.wg.Add(1)
		go w.loop()
	}
	return w
}

func (w *RepairWorker) loop() {
	defer w.wg.Done()
	for job := range w.queue {
		w.handle(job)
	}
}

func (w *RepairWorker) handle(job repairJob) {
	defer close(job.reply)
	defer func() {
		if r := recover(); r != nil {
			logger.Error(job.ctx, "repair worker panic", fmt.Errorf("%v", r))
			job.reply <- RepairResponse{Success: false, Error: fmt.Sprintf("repair panic: %v", r)}
		}
	}()

	if err := job.ctx.Err(); err != nil {
		job.reply <- RepairResponse{Success: false, Error: err.Error()}
		return
	}
	job.reply <- HandleRepair(job.req)
}

// Submit 投递请求；队列满时阻塞直到有空位或 ctx 结束
func (w *RepairWorker) Submit(ctx context.Context, req RepairRequest) <-chan RepairResponse {
	reply := make(chan RepairResponse, 1)

	w.mu.RLock()
	defer w.mu.RUnlock()
	if w.closed {
		reply <- RepairResponse{Success: false, Error: "repair worker closed"}
		close(reply)
		return reply
	}

	select {
	case w.queue <- repairJob{ctx: ctx, req: req, reply: reply}:
	case <-ctx.Done():
		reply <- RepairResponse{Success: false, Error: ctx.Err().Error()}
		close(reply)
	}
	return reply
}

// Close 停止接收新请求，并等待已入队请求处理完毕
func (w *RepairWorker) Close() error {
	w.mu.Lock()
	if w.closed {
		w.mu.Unlock()
		return nil
	}
	w.closed = true
	close(w.queue)
	w.mu.Unlock()

	w.wg.Wait()
	return nil
}
