package flow_test

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	. "github.com/onsi/ginkgo"
	. "github.com/onsi/gomega"
	"github.com/relloyd/forklift/errs"
	"github.com/relloyd/forklift/flow"
	"github.com/relloyd/forklift/logger"
	"github.com/relloyd/forklift/retry"
	"github.com/relloyd/forklift/runguard"
)

func constant(v interface{}) flow.TaskFunc {
	return func(ctx context.Context, in flow.Input) (interface{}, error) {
		return v, nil
	}
}

func failing(msg string) flow.TaskFunc {
	return func(ctx context.Context, in flow.Input) (interface{}, error) {
		return nil, errors.New(msg)
	}
}

var _ = Describe("Executor", func() {
	var (
		log  logger.Logger
		exec *flow.Executor
		ctx  context.Context
	)

	BeforeEach(func() {
		log = logger.NewLogger("forklift", "error", false)
		exec = flow.NewExecutor(log)
		exec.PoolSize = 2
		ctx = context.Background()
	})

	It("passes outputs downstream in dependency order", func() {
		g := flow.NewGraph("linear").
			Add(flow.Node{Name: "a", Task: constant(1)}).
			Add(flow.Node{Name: "b", Upstream: []string{"a"}, Task: func(ctx context.Context, in flow.Input) (interface{}, error) {
				return in.Value("a").(int) + 1, nil
			}}).
			Add(flow.Node{Name: "c", Upstream: []string{"b"}, Task: func(ctx context.Context, in flow.Input) (interface{}, error) {
				return fmt.Sprintf("%v-%v", in.Value("b"), in.Param("suffix")), nil
			}})
		res, err := exec.Run(ctx, g, map[string]string{"suffix": "x"})
		Expect(err).ToNot(HaveOccurred())
		Expect(res.Succeeded()).To(BeTrue())
		Expect(res.GuardedNoOp).To(BeFalse())
		Expect(res.Order).To(Equal([]string{"a", "b", "c"}))
		Expect(res.Nodes["c"].Output).To(Equal("2-x"))
		Expect(res.Stats.Nodes).To(HaveLen(3))
	})

	Context("with a gate", func() {
		var ran int32

		build := func(cond flow.TaskFunc) *flow.Graph {
			atomic.StoreInt32(&ran, 0)
			count := func(ctx context.Context, in flow.Input) (interface{}, error) {
				atomic.AddInt32(&ran, 1)
				return nil, nil
			}
			return flow.NewGraph("gated").
				Add(flow.Node{Name: "guard", Task: cond}).
				Add(flow.Node{Name: "work", Task: count}).
				Add(flow.Node{Name: "more", Upstream: []string{"work"}, Task: count}).
				Add(flow.Node{Name: "final", Upstream: []string{"more"}, Trigger: flow.AllFinished, Task: count}).
				AddGate(flow.Gate{Condition: "guard", Then: []string{"work"}})
		}

		It("runs everything when the condition is true", func() {
			res, err := exec.Run(ctx, build(constant(true)), nil)
			Expect(err).ToNot(HaveOccurred())
			Expect(atomic.LoadInt32(&ran)).To(Equal(int32(3)))
			Expect(res.GuardedNoOp).To(BeFalse())
		})

		It("skips the targets and everything downstream as a guarded no-op", func() {
			res, err := exec.Run(ctx, build(constant(false)), nil)
			Expect(err).ToNot(HaveOccurred())
			Expect(res.Status).To(Equal(flow.StatusSucceeded))
			Expect(res.GuardedNoOp).To(BeTrue())
			Expect(atomic.LoadInt32(&ran)).To(Equal(int32(0)))
			for _, n := range []string{"work", "more", "final"} {
				Expect(res.Nodes[n].State).To(Equal(flow.StateSkipped))
				Expect(errors.Is(res.Nodes[n].Err, errs.ErrGuardedNoOp)).To(BeTrue())
			}
		})

		It("fails the run when the condition fails", func() {
			res, err := exec.Run(ctx, build(failing("registry down")), nil)
			Expect(err).To(HaveOccurred())
			Expect(err.Error()).To(ContainSubstring("registry down"))
			Expect(res.Status).To(Equal(flow.StatusFailed))
			Expect(res.Nodes["work"].State).To(Equal(flow.StateSkipped))
			Expect(atomic.LoadInt32(&ran)).To(Equal(int32(0)))
		})

		It("fails the run when the condition is not a bool", func() {
			_, err := exec.Run(ctx, build(constant("yes")), nil)
			Expect(errors.Is(err, errs.ErrInvalidArgument)).To(BeTrue())
		})

		It("closes when the run guard finds another live run", func() {
			reg := runguard.NewMemoryRegistry()
			Expect(reg.RecordStart(ctx, runguard.Run{ID: "other", PipelineID: "gated", Start: time.Now()})).To(Succeed())
			exec.Recorder = reg
			guard := runguard.NewGuard(log, reg)
			res, err := exec.Run(ctx, build(flow.ConditionFunc(guard.Condition("gated"))), nil)
			Expect(err).ToNot(HaveOccurred())
			Expect(res.GuardedNoOp).To(BeTrue())
			r, ok := reg.Get(res.RunID)
			Expect(ok).To(BeTrue())
			Expect(r.State).To(Equal(runguard.StateSucceeded))

			Expect(reg.RecordEnd(ctx, "other", runguard.StateSucceeded, time.Now())).To(Succeed())
			res, err = exec.Run(ctx, build(flow.ConditionFunc(guard.Condition("gated"))), nil)
			Expect(err).ToNot(HaveOccurred())
			Expect(res.GuardedNoOp).To(BeFalse())
			Expect(atomic.LoadInt32(&ran)).To(Equal(int32(3)))
		})
	})

	Context("with mapped nodes", func() {
		It("fans out with broadcast values and keeps instance order", func() {
			g := flow.NewGraph("fanout").
				Add(flow.Node{Name: "keys", Task: constant([]string{"202412", "202501", "202502"})}).
				Add(flow.Node{Name: "table", Task: constant("catches")}).
				Add(flow.Node{
					Name:      "extract",
					Upstream:  []string{"keys", "table"},
					MapOver:   "keys",
					Broadcast: []string{"table", "$source"},
					Task: func(ctx context.Context, in flow.Input) (interface{}, error) {
						return fmt.Sprintf("%v:%v:%v:%v", in.Index, in.Item, in.Value("table"), in.Value("$source")), nil
					},
				}).
				Add(flow.Node{Name: "join", Upstream: []string{"extract"}, Task: func(ctx context.Context, in flow.Input) (interface{}, error) {
					results, err := flow.Instances(in.Value("extract"))
					if err != nil {
						return nil, err
					}
					values, err := flow.FailOnAny(results)
					if err != nil {
						return nil, err
					}
					s := make([]string, len(values))
					for idx, v := range values {
						s[idx] = v.(string)
					}
					return strings.Join(s, ","), nil
				}})
			res, err := exec.Run(ctx, g, map[string]string{"source": "db"})
			Expect(err).ToNot(HaveOccurred())
			Expect(res.Nodes["join"].Output).To(Equal("0:202412:catches:db,1:202501:catches:db,2:202502:catches:db"))
			Expect(res.Nodes["extract"].Instances).To(HaveLen(3))
		})

		It("succeeds with no instances for an empty list", func() {
			g := flow.NewGraph("empty").
				Add(flow.Node{Name: "keys", Task: constant([]int{})}).
				Add(flow.Node{Name: "each", Upstream: []string{"keys"}, MapOver: "keys", Task: failing("never")})
			res, err := exec.Run(ctx, g, nil)
			Expect(err).ToNot(HaveOccurred())
			Expect(res.Nodes["each"].Instances).To(BeEmpty())
		})

		It("fails a node mapped over something other than a slice", func() {
			g := flow.NewGraph("notslice").
				Add(flow.Node{Name: "keys", Task: constant(42)}).
				Add(flow.Node{Name: "each", Upstream: []string{"keys"}, MapOver: "keys", Task: constant(nil)})
			_, err := exec.Run(ctx, g, nil)
			Expect(errors.Is(err, errs.ErrInvalidArgument)).To(BeTrue())
		})

		batchGraph := func(trigger flow.TriggerRule) *flow.Graph {
			return flow.NewGraph("batches").
				Add(flow.Node{Name: "ranges", Task: constant([]int{1, 2, 3, 4})}).
				Add(flow.Node{Name: "extract", Upstream: []string{"ranges"}, MapOver: "ranges", Task: func(ctx context.Context, in flow.Input) (interface{}, error) {
					if in.Item.(int) == 3 {
						return nil, errors.New("batch exploded")
					}
					return in.Item.(int) * 10, nil
				}}).
				Add(flow.Node{Name: "converge", Upstream: []string{"extract"}, Trigger: trigger, Task: func(ctx context.Context, in flow.Input) (interface{}, error) {
					results, _ := flow.Instances(in.Value("extract"))
					return flow.Succeeded(results), nil
				}})
		}

		It("fails loudly by default, naming the failed instance", func() {
			res, err := exec.Run(ctx, batchGraph(flow.AllSucceeded), nil)
			Expect(err).To(HaveOccurred())
			Expect(err.Error()).To(ContainSubstring("node extract instance 2 (item 3): batch exploded"))
			Expect(res.Nodes["extract"].State).To(Equal(flow.StateFailed))
			Expect(res.Nodes["extract"].FailedInstances()).To(HaveLen(1))
			Expect(res.Nodes["converge"].State).To(Equal(flow.StateSkipped))
			Expect(errors.Is(res.Nodes["converge"].Err, errs.ErrUpstreamSkipped)).To(BeTrue())
		})

		It("lets an AllFinished convergence proceed with what succeeded", func() {
			res, err := exec.Run(ctx, batchGraph(flow.AllFinished), nil)
			Expect(err).ToNot(HaveOccurred())
			Expect(res.Nodes["converge"].Output).To(Equal([]interface{}{10, 20, 40}))
			Expect(res.Nodes["extract"].Absorbed).To(BeTrue())
		})

		It("skips an AllFinished node behind a node skipped by a failure", func() {
			g := flow.NewGraph("skipped").
				Add(flow.Node{Name: "ranges", Task: failing("no ranges")}).
				Add(flow.Node{Name: "extract", Upstream: []string{"ranges"}, MapOver: "ranges", Task: constant(1)}).
				Add(flow.Node{Name: "converge", Upstream: []string{"extract"}, Trigger: flow.AllFinished, Task: constant("empty")})
			res, err := exec.Run(ctx, g, nil)
			Expect(err).To(HaveOccurred())
			Expect(res.Nodes["extract"].State).To(Equal(flow.StateSkipped))
			Expect(res.Nodes["converge"].State).To(Equal(flow.StateSkipped))
			Expect(errors.Is(res.Nodes["converge"].Err, errs.ErrUpstreamSkipped)).To(BeTrue())
		})

		It("pairs instances of mapped nodes and skips partners of failures", func() {
			g := batchGraph(flow.AllSucceeded).
				Add(flow.Node{Name: "load", Upstream: []string{"extract"}, MapOver: "extract", Task: func(ctx context.Context, in flow.Input) (interface{}, error) {
					return fmt.Sprintf("%v<-%v", in.Item, in.Index), nil
				}})
			res, err := exec.Run(ctx, g, nil)
			Expect(err).To(HaveOccurred())
			load := res.Nodes["load"].Instances
			Expect(load).To(HaveLen(4))
			Expect(load[0].Value).To(Equal("10<-0"))
			Expect(load[0].Item).To(Equal(1))
			Expect(load[2].State).To(Equal(flow.StateSkipped))
			Expect(load[3].Value).To(Equal("40<-3"))
		})

		It("bounds the parallelism of task bodies", func() {
			var running, peak int32
			var mu sync.Mutex
			items := make([]int, 12)
			g := flow.NewGraph("pool").
				Add(flow.Node{Name: "items", Task: constant(items)}).
				Add(flow.Node{Name: "work", Upstream: []string{"items"}, MapOver: "items", Task: func(ctx context.Context, in flow.Input) (interface{}, error) {
					n := atomic.AddInt32(&running, 1)
					mu.Lock()
					if n > peak {
						peak = n
					}
					mu.Unlock()
					time.Sleep(5 * time.Millisecond)
					atomic.AddInt32(&running, -1)
					return nil, nil
				}})
			_, err := exec.Run(ctx, g, nil)
			Expect(err).ToNot(HaveOccurred())
			Expect(peak).To(BeNumerically("<=", 2))
			Expect(peak).To(BeNumerically(">=", 1))
		})
	})

	It("recovers panics into node failures", func() {
		g := flow.NewGraph("panic").Add(flow.Node{Name: "boom", Task: func(ctx context.Context, in flow.Input) (interface{}, error) {
			panic("kaboom")
		}})
		res, err := exec.Run(ctx, g, nil)
		Expect(err).To(HaveOccurred())
		Expect(res.Nodes["boom"].Error).To(ContainSubstring("panic: kaboom"))
	})

	It("retries transient failures with the node policy", func() {
		var calls int32
		g := flow.NewGraph("retry").Add(flow.Node{
			Name:  "flaky",
			Retry: &retry.Policy{Name: "flaky", MaxRetries: 2, Delay: time.Millisecond},
			Task: func(ctx context.Context, in flow.Input) (interface{}, error) {
				if atomic.AddInt32(&calls, 1) < 3 {
					return nil, errs.TransientRemote(errors.New("503"))
				}
				return "ok", nil
			},
		})
		res, err := exec.Run(ctx, g, nil)
		Expect(err).ToNot(HaveOccurred())
		Expect(res.Nodes["flaky"].Output).To(Equal("ok"))
		Expect(atomic.LoadInt32(&calls)).To(Equal(int32(3)))
	})

	It("fails nodes that outlive the run ceiling", func() {
		exec.MaxRunDuration = 20 * time.Millisecond
		g := flow.NewGraph("slow").
			Add(flow.Node{Name: "wait", Task: func(ctx context.Context, in flow.Input) (interface{}, error) {
				<-ctx.Done()
				return nil, ctx.Err()
			}}).
			Add(flow.Node{Name: "after", Upstream: []string{"wait"}, Trigger: flow.AllFinished, Task: func(ctx context.Context, in flow.Input) (interface{}, error) {
				return nil, ctx.Err()
			}})
		res, err := exec.Run(ctx, g, nil)
		Expect(errors.Is(err, context.DeadlineExceeded)).To(BeTrue())
		Expect(res.Status).To(Equal(flow.StatusFailed))
		Expect(res.Nodes["after"].State).To(Equal(flow.StateFailed))
	})

	It("rejects an invalid graph before running", func() {
		g := flow.NewGraph("bad").Add(flow.Node{Name: "a", Upstream: []string{"missing"}, Task: constant(1)})
		res, err := exec.Run(ctx, g, nil)
		Expect(res).To(BeNil())
		Expect(errors.Is(err, errs.ErrInvalidArgument)).To(BeTrue())
	})
})

var _ = Describe("LaunchRun", func() {
	var (
		log  logger.Logger
		exec *flow.Executor
		ri   *flow.SafeMapRunInfo
	)

	BeforeEach(func() {
		log = logger.NewLogger("forklift", "error", false)
		exec = flow.NewExecutor(log)
		ri = flow.NewSafeMapRunInfo()
	})

	It("stores the result of a blocking run", func() {
		g := flow.NewGraph("blocking").Add(flow.Node{Name: "a", Task: constant(1)})
		id, err := flow.LaunchRun(log, ri, exec, g, nil, true)
		Expect(err).ToNot(HaveOccurred())
		info, ok := ri.Load(id)
		Expect(ok).To(BeTrue())
		Expect(info.Status.Status).To(Equal(flow.StatusSucceeded))
		Expect(info.Status.RunIsFinished()).To(BeTrue())
		Expect(info.Result).ToNot(BeNil())
		Expect(info.Result.RunID).To(Equal(id))
		Expect(ri.Keys()).To(Equal([]string{id}))
	})

	It("stops a running run on request", func() {
		started := make(chan struct{})
		g := flow.NewGraph("stoppable").Add(flow.Node{Name: "wait", Task: func(ctx context.Context, in flow.Input) (interface{}, error) {
			close(started)
			<-ctx.Done()
			return nil, ctx.Err()
		}})
		id, err := flow.LaunchRun(log, ri, exec, g, nil, false)
		Expect(err).ToNot(HaveOccurred())
		Eventually(started).Should(BeClosed())
		info, _ := ri.Load(id)
		Expect(info.Closer.RequestStop(nil)).To(BeTrue())
		Eventually(func() flow.RunStatus {
			info, _ := ri.Load(id)
			return info.Status.Status
		}, time.Second).Should(Equal(flow.StatusShutdown))
		info, _ = ri.Load(id)
		Expect(info.Closer.RequestStop(nil)).To(BeFalse())
	})
})
