package mission_test

import (
	"bytes"
	"context"
	"math"
	"time"

	"github.com/benbjohnson/clock"
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"github.com/rs/zerolog"

	"github.com/san-kum/buoysim/internal/mission"
	"github.com/san-kum/buoysim/internal/sensor"
	"github.com/san-kum/buoysim/internal/telemetry"
)

// two simulated hours at the default 100ms period
const maxTicks = 72000

var _ = Describe("Mission", func() {
	var cfg mission.Config

	BeforeEach(func() {
		cfg = mission.DefaultConfig()
	})

	Describe("construction", func() {
		It("shares one engine bank between simulator and controller", func() {
			m, err := mission.New(cfg)
			Expect(err).NotTo(HaveOccurred())
			Expect(m.Engines()).To(HaveLen(3))

			m.Engines()[0].Sink()
			mass, err := m.Simulator().SystemMass()
			Expect(err).NotTo(HaveOccurred())

			fresh, _ := mission.New(cfg)
			freshMass, _ := fresh.Simulator().SystemMass()
			Expect(mass).To(BeNumerically(">", freshMass))
		})

		It("rejects an initial extension outside [0,1]", func() {
			cfg.InitialExtension = 1.2
			_, err := mission.New(cfg)
			Expect(err).To(HaveOccurred())
		})

		It("rejects an unknown sensor", func() {
			cfg.Sensor = sensor.Config{Kind: "sonar"}
			_, err := mission.New(cfg)
			Expect(err).To(HaveOccurred())
		})

		It("rejects an invalid controller config", func() {
			cfg.Control.CommandedEngines = 0
			_, err := mission.New(cfg)
			Expect(err).To(HaveOccurred())
		})
	})

	Describe("a descent to 60 m", func() {
		var (
			m        *mission.Mission
			peak     float64
			flips    int
			reachAt  int
			sumFirst float64
			samples  int
		)

		BeforeEach(func() {
			var err error
			m, err = mission.New(cfg)
			Expect(err).NotTo(HaveOccurred())

			peak, flips, reachAt, sumFirst, samples = 0, 0, -1, 0, 0
			reached := false
			for tick := 1; tick <= maxTicks && reachAt < 0; tick++ {
				sumFirst += m.Engines()[0].Extension()
				samples++

				st, err := m.Step()
				Expect(err).NotTo(HaveOccurred())
				peak = math.Max(peak, st.Depth)

				if m.Controller().DepthReached() != reached {
					reached = !reached
					flips++
					reachAt = tick
				}
			}
		})

		It("reaches the target depth", func() {
			Expect(reachAt).To(BeNumerically(">", 0))
			Expect(m.Controller().DepthReached()).To(BeTrue())
			Expect(m.Simulator().Snapshot().Depth).To(BeNumerically(">", 60))
		})

		It("floods only the first engine on the way down", func() {
			Expect(sumFirst / float64(samples)).To(BeNumerically("<", 0.5))
			Expect(m.Engines()[1].Extension()).To(Equal(0.5))
			Expect(m.Engines()[2].Extension()).To(Equal(0.5))
		})

		It("latches the depth-reached flag and turns for the surface", func() {
			for i := 0; i < 3000; i++ {
				st, err := m.Step()
				Expect(err).NotTo(HaveOccurred())
				peak = math.Max(peak, st.Depth)
				Expect(m.Controller().DepthReached()).To(BeTrue())
			}
			Expect(flips).To(Equal(1))
			Expect(m.Simulator().Snapshot().Depth).To(BeNumerically("<", peak))
		})

		It("tracks the mission in its metrics", func() {
			v := m.Metrics().Values()
			Expect(v["max_depth"]).To(BeNumerically(">", 60))
			Expect(v["time_to_target"]).To(BeNumerically(">", 0))
			Expect(v["engine_travel"]).To(BeNumerically(">", 0))
		})
	})

	Describe("RunFast", func() {
		It("refuses to run without a stop condition", func() {
			m, err := mission.New(cfg)
			Expect(err).NotTo(HaveOccurred())
			Expect(m.RunFast(context.Background())).To(MatchError(mission.ErrUnbounded))
		})

		It("stops at the time limit", func() {
			cfg.Duration = 30 * time.Second
			m, err := mission.New(cfg)
			Expect(err).NotTo(HaveOccurred())

			Expect(m.RunFast(context.Background())).To(Succeed())
			Expect(m.Result().Final.Elapsed).To(BeNumerically("~", 30, 0.15))
		})

		It("stops once the vehicle has surfaced after a shallow dive", func() {
			cfg.Control.TargetDepth = 10
			cfg.Duration = time.Hour
			cfg.StopOnSurface = true
			m, err := mission.New(cfg)
			Expect(err).NotTo(HaveOccurred())

			Expect(m.RunFast(context.Background())).To(Succeed())
			res := m.Result()
			Expect(res.Reached).To(BeTrue())
			Expect(res.Final.Depth).To(BeZero())
			Expect(res.Final.Elapsed).To(BeNumerically("<", 3600))
			Expect(res.Metrics["max_depth"]).To(BeNumerically(">", 10))
			Expect(res.Commands).To(BeNumerically(">", 0))
		})

		It("returns when the context is cancelled", func() {
			cfg.Duration = time.Hour
			m, err := mission.New(cfg)
			Expect(err).NotTo(HaveOccurred())

			ctx, cancel := context.WithCancel(context.Background())
			cancel()
			Expect(m.RunFast(ctx)).To(Succeed())
			Expect(m.Result().Final.Tick).To(BeZero())
		})
	})

	Describe("telemetry", func() {
		It("records simulator and controller columns", func() {
			var buf bytes.Buffer
			rec := telemetry.NewRecorder(&buf)
			m, err := mission.New(cfg, mission.WithSink(rec))
			Expect(err).NotTo(HaveOccurred())

			for i := 0; i < 100; i++ {
				_, err := m.Step()
				Expect(err).NotTo(HaveOccurred())
			}
			Expect(rec.Close()).To(Succeed())
			Expect(rec.Rows()).To(Equal(10))

			table, err := telemetry.Read(&buf)
			Expect(err).NotTo(HaveOccurred())
			Expect(table.Rows).To(HaveLen(10))

			for _, name := range []string{"time", "depth", "engine_0", "engine_2", "target_depth", "speed"} {
				_, ok := table.Column(name)
				Expect(ok).To(BeTrue(), name)
			}
			target, _ := table.Column("target_depth")
			Expect(target[0]).To(Equal(60.0))
			first, _ := table.Column("engine_0")
			Expect(first[len(first)-1]).To(BeNumerically("<", 0.5))
		})
	})

	Describe("Run", func() {
		var mock *clock.Mock

		BeforeEach(func() {
			mock = clock.NewMock()
		})

		It("ends at the time limit on the simulator's clock", func() {
			cfg.Duration = 2 * time.Second
			m, err := mission.New(cfg, mission.WithClock(mock))
			Expect(err).NotTo(HaveOccurred())

			done := make(chan error, 1)
			go func() { done <- m.Run(context.Background()) }()

			Eventually(func() bool {
				mock.Add(100 * time.Millisecond)
				select {
				case err := <-done:
					Expect(err).NotTo(HaveOccurred())
					return true
				default:
					return false
				}
			}, "5s", "5ms").Should(BeTrue())
			Expect(m.Simulator().Snapshot().Elapsed).To(BeNumerically(">=", 2))
		})

		It("treats cancellation as a clean stop", func() {
			m, err := mission.New(cfg, mission.WithClock(mock))
			Expect(err).NotTo(HaveOccurred())

			ctx, cancel := context.WithCancel(context.Background())
			done := make(chan error, 1)
			go func() { done <- m.Run(ctx) }()

			Eventually(func() uint64 {
				mock.Add(100 * time.Millisecond)
				return m.Simulator().Snapshot().Tick
			}, "5s", "5ms").Should(BeNumerically(">=", 3))

			cancel()
			Eventually(done, "2s").Should(Receive(BeNil()))
		})
	})

	Describe("Sweep", func() {
		It("runs one mission per target depth", func() {
			var cfgs []mission.Config
			for _, target := range []float64{5, 10} {
				c := mission.DefaultConfig()
				c.Control.TargetDepth = target
				c.Duration = time.Hour
				c.StopOnSurface = true
				cfgs = append(cfgs, c)
			}

			results, err := mission.Sweep(context.Background(), cfgs, zerolog.Nop())
			Expect(err).NotTo(HaveOccurred())
			Expect(results).To(HaveLen(2))
			for i, r := range results {
				Expect(r.Reached).To(BeTrue())
				Expect(r.Metrics["max_depth"]).To(BeNumerically(">", cfgs[i].Control.TargetDepth))
			}
		})

		It("fails when any mission is misconfigured", func() {
			bad := mission.DefaultConfig()
			bad.InitialExtension = -1
			_, err := mission.Sweep(context.Background(), []mission.Config{bad}, zerolog.Nop())
			Expect(err).To(HaveOccurred())
		})
	})
})
