// internal/poller/poller.go
package poller

import (
	"context"
	"errors"
	"log"
	"sync"
	"sync/atomic"
	"time"

	"github.com/sua-org/lux-bus/internal/core"
)

// State é o estado do ciclo corrente, exposto nos payloads de status.
type State string

const (
	StateIdle       State = "idle"
	StateFetching   State = "fetching"
	StateProcessing State = "processing"
	StatePublished  State = "published"
	StateFailed     State = "failed"
)

type FetchFunc func(ctx context.Context) ([]byte, error)
type ProcessFunc func(ctx context.Context, data []byte) (core.Analysis, error)

// Poller é a primitiva poll-cache-publish: um timer, um guard de voo
// único e uma célula de resultado trocada atomicamente. Sem herança,
// só composição sobre as duas funções injetadas (fetch e process).
type Poller struct {
	name     string
	interval time.Duration
	timeout  time.Duration

	fetch   FetchFunc
	process ProcessFunc

	// onResult é chamado fora do lock a cada publish bem-sucedido.
	onResult func(core.Analysis)

	inFlight atomic.Bool

	mu          sync.RWMutex
	last        *core.Analysis
	lastErr     error
	lastSuccess bool
	state       State
	lastCycleAt time.Time
}

// Snapshot é a visão consistente do cache para consumidores: ou o valor
// antigo ou o novo, nunca um resultado pela metade.
type Snapshot struct {
	Last        *core.Analysis
	LastErr     error
	LastSuccess bool
	State       State
	LastCycleAt time.Time
}

func New(name string, interval time.Duration, fetch FetchFunc, process ProcessFunc, onResult func(core.Analysis)) *Poller {
	return &Poller{
		name:     name,
		interval: interval,
		timeout:  defaultCycleTimeout,
		fetch:    fetch,
		process:  process,
		onResult: onResult,
		state:    StateIdle,
	}
}

// Teto por ciclo, cobrindo o fetch. O processamento não tem timeout
// próprio: é limitado naturalmente pelo tamanho da imagem.
const defaultCycleTimeout = 10 * time.Second

// Run roda o primeiro ciclo imediatamente e depois segue o timer até o
// ctx ser cancelado. Tick com ciclo ainda em voo é descartado — nunca
// existe mais de um fetch simultâneo por fonte.
func (p *Poller) Run(ctx context.Context) {
	p.tick(ctx)

	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			p.tick(ctx)
		}
	}
}

func (p *Poller) tick(ctx context.Context) {
	if !p.inFlight.CompareAndSwap(false, true) {
		log.Printf("[poller %s] ciclo anterior ainda em voo, tick descartado", p.name)
		return
	}
	// O ciclo roda fora do laço do timer: o decode-and-scan (dezenas de
	// ms) não pode segurar o scheduling dos outros ticks.
	go p.runCycle(ctx)
}

func (p *Poller) runCycle(ctx context.Context) {
	defer p.inFlight.Store(false)

	cctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	p.setState(StateFetching)
	data, err := p.fetch(cctx)
	if err != nil {
		p.fail(err)
		return
	}

	p.setState(StateProcessing)
	result, err := p.process(cctx, data)
	if err != nil {
		p.fail(err)
		return
	}

	p.publish(result)
}

func (p *Poller) setState(s State) {
	p.mu.Lock()
	p.state = s
	p.mu.Unlock()
}

// fail deixa o cache intacto: o último valor bom continua legível
// enquanto a fonte estiver indisponível.
func (p *Poller) fail(err error) {
	if ctxDone(err) {
		// teardown em andamento; não conta como falha da fonte
		return
	}

	p.mu.Lock()
	p.lastErr = err
	p.lastSuccess = false
	p.state = StateFailed
	p.lastCycleAt = time.Now().UTC()
	p.mu.Unlock()

	log.Printf("[poller %s] ciclo falhou: %v", p.name, err)
}

func (p *Poller) publish(result core.Analysis) {
	p.mu.Lock()
	p.last = &result
	p.lastErr = nil
	p.lastSuccess = true
	p.state = StatePublished
	p.lastCycleAt = time.Now().UTC()
	p.mu.Unlock()

	if p.onResult != nil {
		p.onResult(result)
	}
}

// Snapshot retorna a visão corrente do cache.
func (p *Poller) Snapshot() Snapshot {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return Snapshot{
		Last:        p.last,
		LastErr:     p.lastErr,
		LastSuccess: p.lastSuccess,
		State:       p.state,
		LastCycleAt: p.lastCycleAt,
	}
}

func ctxDone(err error) bool {
	return errors.Is(err, context.Canceled)
}
