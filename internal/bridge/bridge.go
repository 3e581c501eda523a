package bridge

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/ethDreamer/lighthouse/config"
	"github.com/ethDreamer/lighthouse/internal/lifecycle"
	"github.com/ethDreamer/lighthouse/libs/log"
	"github.com/ethDreamer/lighthouse/libs/service"
)

const subsystemName = "bridge"

// maxConsecutiveFailures is the number of failed polls in a row after which
// the bridge reports itself dead instead of logging and retrying.
const maxConsecutiveFailures = 5

const requestTimeout = 10 * time.Second

// Status is a snapshot of the bridge's view of the execution layer.
type Status struct {
	BlockNumber uint64    `json:"block_number"`
	LastPoll    time.Time `json:"last_poll"`
	Healthy     bool      `json:"healthy"`
}

// Bridge polls an execution-layer client over JSON-RPC and caches the
// latest block number. Transient poll failures are logged; a run of
// consecutive failures marks the subsystem failed.
type Bridge struct {
	service.BaseService

	cfg     *config.BridgeConfig
	client  *http.Client
	failer  lifecycle.Failer
	metrics *Metrics

	mtx    sync.RWMutex
	status Status

	stopping chan struct{}
	done     chan struct{}
}

// New returns an unstarted execution-layer bridge.
func New(logger log.Logger, cfg *config.BridgeConfig, failer lifecycle.Failer, metrics *Metrics) *Bridge {
	b := &Bridge{
		cfg:      cfg,
		client:   &http.Client{Timeout: requestTimeout},
		failer:   failer,
		metrics:  metrics,
		stopping: make(chan struct{}),
		done:     make(chan struct{}),
	}
	b.BaseService = *service.NewBaseService(logger, "Bridge", b)
	return b
}

func (b *Bridge) OnStart(ctx context.Context) error {
	go b.pollRoutine(ctx)
	return nil
}

func (b *Bridge) OnStop() {
	close(b.stopping)
	<-b.done
}

// Status returns the latest snapshot of the execution layer.
func (b *Bridge) Status() Status {
	b.mtx.RLock()
	defer b.mtx.RUnlock()
	return b.status
}

func (b *Bridge) pollRoutine(ctx context.Context) {
	defer lifecycle.Trap(subsystemName, b.failer)
	defer close(b.done)

	ticker := time.NewTicker(b.cfg.PollInterval)
	defer ticker.Stop()

	failures := 0
	for {
		if err := b.poll(ctx); err != nil {
			if ctx.Err() != nil {
				return
			}
			failures++
			b.metrics.PollFailures.Add(1)
			b.Logger().Error("execution endpoint poll failed",
				"endpoint", b.cfg.Endpoint, "failures", failures, "err", err)
			if failures >= maxConsecutiveFailures {
				b.failer.Fail(subsystemName, fmt.Errorf("execution endpoint unreachable after %d polls: %w", failures, err))
				return
			}
			b.markUnhealthy()
		} else {
			failures = 0
		}

		select {
		case <-ticker.C:
		case <-b.stopping:
			return
		case <-ctx.Done():
			return
		}
	}
}

func (b *Bridge) poll(ctx context.Context) error {
	number, err := b.blockNumber(ctx)
	if err != nil {
		return err
	}

	b.mtx.Lock()
	b.status = Status{
		BlockNumber: number,
		LastPoll:    time.Now(),
		Healthy:     true,
	}
	b.mtx.Unlock()

	b.metrics.BlockNumber.Set(float64(number))
	b.Logger().Debug("execution head observed", "block_number", number)
	return nil
}

func (b *Bridge) markUnhealthy() {
	b.mtx.Lock()
	b.status.Healthy = false
	b.mtx.Unlock()
}

type rpcRequest struct {
	JSONRPC string `json:"jsonrpc"`
	ID      int    `json:"id"`
	Method  string `json:"method"`
	Params  []any  `json:"params"`
}

type rpcResponse struct {
	Result json.RawMessage `json:"result"`
	Error  *rpcError       `json:"error"`
}

type rpcError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

func (e *rpcError) Error() string {
	return fmt.Sprintf("rpc error %d: %s", e.Code, e.Message)
}

// blockNumber calls eth_blockNumber on the configured endpoint.
func (b *Bridge) blockNumber(ctx context.Context) (uint64, error) {
	req := rpcRequest{JSONRPC: "2.0", ID: 1, Method: "eth_blockNumber", Params: []any{}}
	bz, err := json.Marshal(req)
	if err != nil {
		return 0, err
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, b.cfg.Endpoint, bytes.NewReader(bz))
	if err != nil {
		return 0, err
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := b.client.Do(httpReq)
	if err != nil {
		return 0, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return 0, fmt.Errorf("unexpected status %s", resp.Status)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return 0, err
	}

	var rpcResp rpcResponse
	if err := json.Unmarshal(body, &rpcResp); err != nil {
		return 0, fmt.Errorf("malformed rpc response: %w", err)
	}
	if rpcResp.Error != nil {
		return 0, rpcResp.Error
	}

	var quantity string
	if err := json.Unmarshal(rpcResp.Result, &quantity); err != nil {
		return 0, fmt.Errorf("malformed rpc result: %w", err)
	}
	return parseHexQuantity(quantity)
}

// parseHexQuantity parses an execution-layer hex quantity like "0x4b7".
func parseHexQuantity(s string) (uint64, error) {
	trimmed := strings.TrimPrefix(s, "0x")
	if trimmed == "" || trimmed == s {
		return 0, fmt.Errorf("invalid hex quantity %q", s)
	}
	n, err := strconv.ParseUint(trimmed, 16, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid hex quantity %q: %w", s, err)
	}
	return n, nil
}
