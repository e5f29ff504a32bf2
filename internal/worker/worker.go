package worker

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"sync"

	json "github.com/goccy/go-json"
	nats "github.com/nats-io/nats.go"

	"github.com/flowmesh/dataflow/internal/checkpoint"
	"github.com/flowmesh/dataflow/internal/config"
	"github.com/flowmesh/dataflow/internal/dag"
	"github.com/flowmesh/dataflow/internal/element"
	"github.com/flowmesh/dataflow/internal/runnable"
	"github.com/flowmesh/dataflow/internal/transport"
	"github.com/flowmesh/dataflow/libs/go/core/natsctx"
)

// barrierMessage is published by the coordinator's checkpoint driver on a
// per-job NATS subject as a latency optimization over the worker's
// regular heartbeat poll.
type barrierMessage struct {
	CheckpointID element.CheckpointId `json:"checkpoint_id"`
}

// Worker hosts every task this process has been assigned for one job: it
// polls the coordinator for the ApplicationDescriptor, builds each local
// task's runnable chain via the supplied OperatorFactory, and runs them
// to completion while reporting heartbeats and relaying coordinator
// checkpoint barriers into its Source tasks.
type Worker struct {
	WorkerManagerID string
	JobID           string
	Cfg             *config.Descriptor
	Factory         OperatorFactory
	Registry        *transport.Registry
	Backend         checkpoint.Backend
	Logger          *slog.Logger

	poller    *MetadataPoller
	heartbeat *HeartbeatReporter
	nc        *nats.Conn

	mu           sync.Mutex
	runners      map[string]*TaskRunner
	lastInjected element.CheckpointId
}

// New builds a Worker for jobID against cfg.CoordinatorAddr. registry is
// the process-wide handover registry: its lifecycle is the worker
// process's lifecycle, so it is passed in explicitly rather than held as
// a package singleton.
func New(workerManagerID, jobID string, cfg *config.Descriptor, factory OperatorFactory, registry *transport.Registry, backend checkpoint.Backend, logger *slog.Logger) *Worker {
	if logger == nil {
		logger = slog.Default()
	}
	return &Worker{
		WorkerManagerID: workerManagerID,
		JobID:           jobID,
		Cfg:             cfg,
		Factory:         factory,
		Registry:        registry,
		Backend:         backend,
		Logger:          logger,
		poller:          NewMetadataPoller(cfg.CoordinatorAddr, jobID, logger),
		heartbeat:       NewHeartbeatReporter(cfg.CoordinatorAddr, logger),
		runners:         make(map[string]*TaskRunner),
	}
}

// Run fetches the job's ApplicationDescriptor, instantiates every task
// assigned to this worker (as chosen by the assignedTasks callback for
// workerManagerID), and runs them to
// completion. It blocks until ctx is cancelled or every task finishes.
func (w *Worker) Run(ctx context.Context, assignedTasks func(*dag.ApplicationDescriptor, string) []dag.TaskDescriptor) error {
	descriptor, err := w.poller.Fetch(ctx)
	if err != nil {
		return fmt.Errorf("worker: %w", err)
	}

	if nc, err := nats.Connect(natsURL()); err == nil {
		w.nc = nc
		if _, err := natsctx.Subscribe(nc, barrierSubject(w.JobID), w.onBarrier); err != nil {
			w.Logger.Warn("nats barrier subscribe failed, relying on heartbeat-only delivery", "error", err)
		}
	} else {
		w.Logger.Warn("nats connect failed, relying on heartbeat-only checkpoint delivery", "error", err)
	}
	if w.nc != nil {
		defer w.nc.Close()
	}

	nodes := make(map[string]dag.StreamNode, len(descriptor.StreamNodes))
	for _, n := range descriptor.StreamNodes {
		nodes[n.ID] = n
	}

	mine := assignedTasks(descriptor, w.WorkerManagerID)
	if len(mine) == 0 {
		w.Logger.Info("no tasks assigned to this worker", "worker_manager_id", w.WorkerManagerID)
		return nil
	}

	w.heartbeat.OnPendingCheckpoint = w.injectBarrier
	go w.heartbeat.Run(ctx)

	var wg sync.WaitGroup
	errs := make(chan error, len(mine))
	for _, desc := range mine {
		desc := desc
		chain, err := BuildChain(desc, nodes, w.Factory)
		if err != nil {
			return err
		}
		runCtx := runnable.NewContext(desc.TaskID.String(), w.Backend, w.Logger.With("task_id", desc.TaskID.String()))
		runCtx.ErrorPolicy = errorPolicyFrom(w.Cfg.UserErrorPolicy)

		inputs := w.resolveInputs(descriptor, desc.TaskID)
		runner := NewTaskRunner(desc.TaskID.String(), chain, runCtx, inputs, w.heartbeat, w.Logger)

		w.mu.Lock()
		w.runners[desc.TaskID.String()] = runner
		w.mu.Unlock()

		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := runner.Run(ctx); err != nil {
				errs <- err
			}
		}()
	}

	wg.Wait()
	w.heartbeat.Flush(ctx)
	close(errs)
	for err := range errs {
		if err != nil {
			return err
		}
	}
	return nil
}

// resolveInputs builds the Handover slice a non-Source task reads from: one
// handover per execution edge targeting this task, shared via Registry so
// multiple tasks on the same worker fed by the same in-process producer
// observe the identical queue.
func (w *Worker) resolveInputs(descriptor *dag.ApplicationDescriptor, taskID dag.TaskId) []*transport.Handover {
	var inputs []*transport.Handover
	for _, e := range descriptor.Edges {
		if e.To != taskID {
			continue
		}
		key := fmt.Sprintf("%s->%s", e.From, e.To)
		inputs = append(inputs, w.Registry.GetOrCreate(key, w.Cfg.PubSubChannelSize))
	}
	return inputs
}

// onBarrier relays a coordinator-issued barrier into every Source task
// runner this worker owns.
func (w *Worker) onBarrier(_ context.Context, msg *nats.Msg) {
	var bm barrierMessage
	if err := json.Unmarshal(msg.Data, &bm); err != nil {
		w.Logger.Warn("malformed barrier message", "error", err)
		return
	}
	w.injectBarrier(bm.CheckpointID)
}

// injectBarrier delivers epoch id into every Source task runner, once.
// Both delivery paths (NATS broadcast and heartbeat pending-epoch echo)
// funnel through here, so a barrier that arrives on both, or the same
// pending epoch echoed on consecutive ticks, is injected a single time.
func (w *Worker) injectBarrier(id element.CheckpointId) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if id <= w.lastInjected {
		return
	}
	w.lastInjected = id
	for _, r := range w.runners {
		if r.Source != nil {
			r.InjectBarrier(id)
		}
	}
}

func errorPolicyFrom(p config.UserErrorPolicy) runnable.ErrorPolicy {
	if p == config.UserErrorLogAndSkip {
		return runnable.ErrorPolicyLogAndSkip
	}
	return runnable.ErrorPolicyFailTask
}

func barrierSubject(jobID string) string {
	return fmt.Sprintf("flowmesh.job.%s.barrier", jobID)
}

func natsURL() string {
	if u := os.Getenv("NATS_URL"); u != "" {
		return u
	}
	return nats.DefaultURL
}
