package control_test

import (
	"context"
	"errors"
	"math"
	"sync/atomic"
	"time"

	"github.com/benbjohnson/clock"
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/san-kum/buoysim/internal/actuator"
	"github.com/san-kum/buoysim/internal/control"
	"github.com/san-kum/buoysim/internal/sensor"
	"github.com/san-kum/buoysim/internal/sim"
)

type fakeVehicle struct{ depth atomic.Uint64 }

func (f *fakeVehicle) set(d float64) { f.depth.Store(math.Float64bits(d)) }

func (f *fakeVehicle) Snapshot() sim.State {
	return sim.State{Depth: math.Float64frombits(f.depth.Load())}
}

type flakySensor struct {
	fail bool
}

func (f *flakySensor) Read(v sim.Vehicle) (float64, error) {
	if f.fail {
		return 0, errors.New("bus timeout")
	}
	return v.Snapshot().Depth, nil
}

const step = 500 * time.Millisecond

var _ = Describe("Controller", func() {
	var (
		cfg     control.Config
		engines actuator.Bank
		vehicle *fakeVehicle
		depth   sensor.Depth
		mock    *clock.Mock
		ctrl    *control.Controller
	)

	BeforeEach(func() {
		cfg = control.DefaultConfig()
		engines = actuator.NewBank(3, actuator.DefaultExtension)
		vehicle = &fakeVehicle{}
		depth = sensor.Ideal{}
		mock = clock.NewMock()
	})

	JustBeforeEach(func() {
		var err error
		ctrl, err = control.New(cfg, engines, depth, vehicle, control.WithClock(mock))
		Expect(err).NotTo(HaveOccurred())
	})

	extensions := func() []float64 { return engines.Extensions(nil) }

	Describe("construction", func() {
		It("rejects a missing engine bank", func() {
			_, err := control.New(cfg, nil, depth, vehicle)
			Expect(err).To(HaveOccurred())
		})

		It("rejects more commanded engines than fitted", func() {
			c := cfg
			c.CommandedEngines = 4
			_, err := control.New(c, engines, depth, vehicle)
			Expect(err).To(HaveOccurred())
		})

		It("rejects a sub-millisecond period", func() {
			c := cfg
			c.Period = 500 * time.Microsecond
			_, err := control.New(c, engines, depth, vehicle)
			Expect(err).To(HaveOccurred())
		})

		It("rejects a missing sensor", func() {
			_, err := control.New(cfg, engines, nil, vehicle)
			Expect(err).To(HaveOccurred())
		})

		It("starts at the configured target", func() {
			Expect(ctrl.TargetDepth()).To(Equal(60.0))
			Expect(ctrl.DepthReached()).To(BeFalse())
		})
	})

	Describe("descending", func() {
		It("sinks while slower than the descent rate", func() {
			vehicle.set(0.02)
			st := ctrl.Update(step)
			Expect(st.Command).To(Equal(control.Sink))
			Expect(st.Sinking).To(BeTrue())
			Expect(st.Speed).To(BeNumerically("~", 0.04, 1e-12))
			Expect(extensions()[0]).To(BeNumerically("~", 0.49, 1e-12))
		})

		It("commands only the first engine by default", func() {
			vehicle.set(0.02)
			ctrl.Update(step)
			Expect(extensions()[1]).To(Equal(0.5))
			Expect(extensions()[2]).To(Equal(0.5))
		})

		It("ascends when sinking too fast", func() {
			vehicle.set(1)
			st := ctrl.Update(step)
			Expect(st.OverspeedDescent).To(BeTrue())
			Expect(st.Command).To(Equal(control.Ascend))
			Expect(extensions()[0]).To(BeNumerically("~", 0.51, 1e-12))
		})

		It("ignores fast ascent before the target is reached", func() {
			vehicle.set(10)
			ctrl.Update(step)
			vehicle.set(5)
			st := ctrl.Update(step)
			Expect(st.Sinking).To(BeFalse())
			Expect(st.OverspeedAscent).To(BeTrue())
			Expect(st.Command).To(Equal(control.Sink))
		})
	})

	Describe("the depth-reached latch", func() {
		It("flips when depth exceeds the target and never resets", func() {
			vehicle.set(60)
			Expect(ctrl.Update(step).DepthReached).To(BeFalse())

			vehicle.set(60.01)
			Expect(ctrl.Update(step).DepthReached).To(BeTrue())

			vehicle.set(10)
			Expect(ctrl.Update(step).DepthReached).To(BeTrue())
			Expect(ctrl.DepthReached()).To(BeTrue())
		})

		It("survives a target change", func() {
			vehicle.set(61)
			ctrl.Update(step)
			Expect(ctrl.SetTargetDepth(100)).To(Succeed())
			Expect(ctrl.Update(step).DepthReached).To(BeTrue())
		})
	})

	Describe("ascending", func() {
		BeforeEach(func() {
			cfg.TargetDepth = 5
		})

		JustBeforeEach(func() {
			vehicle.set(6)
			ctrl.Update(step)
			Expect(ctrl.DepthReached()).To(BeTrue())
		})

		It("ascends while rising slower than the ascent rate", func() {
			before := extensions()[0]
			vehicle.set(5.99)
			st := ctrl.Update(step)
			Expect(st.Command).To(Equal(control.Ascend))
			Expect(extensions()[0]).To(BeNumerically("~", before+actuator.ExtensionDelta, 1e-12))
		})

		It("sinks when rising too fast", func() {
			before := extensions()[0]
			vehicle.set(4)
			st := ctrl.Update(step)
			Expect(st.OverspeedAscent).To(BeTrue())
			Expect(st.Command).To(Equal(control.Sink))
			Expect(extensions()[0]).To(BeNumerically("~", before-actuator.ExtensionDelta, 1e-12))
		})
	})

	Describe("engine update interval", func() {
		It("samples every tick but commands once the interval has accumulated", func() {
			vehicle.set(0.01)
			Expect(ctrl.Update(200 * time.Millisecond).Command).To(Equal(control.Hold))
			Expect(ctrl.Update(200 * time.Millisecond).Command).To(Equal(control.Hold))
			Expect(extensions()[0]).To(Equal(0.5))

			st := ctrl.Update(200 * time.Millisecond)
			Expect(st.Command).To(Equal(control.Sink))
			Expect(ctrl.Commands()).To(BeEquivalentTo(1))

			Expect(ctrl.Update(200 * time.Millisecond).Command).To(Equal(control.Hold))
		})

		It("measures elapsed time from the clock on Tick", func() {
			vehicle.set(0.3)
			mock.Add(step)
			st := ctrl.Tick()
			Expect(st.Speed).To(BeNumerically("~", 0.6, 1e-12))
			Expect(st.Command).To(Equal(control.Ascend))
		})
	})

	Context("with every engine commanded", func() {
		BeforeEach(func() {
			cfg.CommandedEngines = 3
		})

		It("moves all engines together", func() {
			vehicle.set(0.01)
			ctrl.Update(step)
			for _, e := range extensions() {
				Expect(e).To(BeNumerically("~", 0.49, 1e-12))
			}
		})
	})

	Context("with the legacy speed metric", func() {
		BeforeEach(func() {
			cfg.SpeedMetric = control.Legacy
		})

		It("multiplies the depth change by the interval", func() {
			vehicle.set(0.4)
			st := ctrl.Update(step)
			Expect(st.Speed).To(BeNumerically("~", 0.2, 1e-12))
			Expect(st.OverspeedDescent).To(BeTrue())
		})
	})

	Context("when the sensor fails", func() {
		var flaky *flakySensor

		BeforeEach(func() {
			flaky = &flakySensor{}
			depth = flaky
		})

		It("holds the engines and recovers on the next tick", func() {
			flaky.fail = true
			vehicle.set(0.05)
			st := ctrl.Update(step)
			Expect(st.Err).To(HaveOccurred())
			Expect(st.Command).To(Equal(control.Hold))
			Expect(extensions()[0]).To(Equal(0.5))

			flaky.fail = false
			st = ctrl.Update(step)
			Expect(st.Err).NotTo(HaveOccurred())
			// rate spans both intervals since the last good sample
			Expect(st.Speed).To(BeNumerically("~", 0.05, 1e-12))
			Expect(st.Command).To(Equal(control.Sink))
		})
	})

	Describe("SetTargetDepth", func() {
		It("rejects negative and non-finite targets", func() {
			Expect(ctrl.SetTargetDepth(-1)).To(MatchError(control.ErrInvalidTarget))
			Expect(ctrl.SetTargetDepth(math.NaN())).To(MatchError(control.ErrInvalidTarget))
			Expect(ctrl.SetTargetDepth(math.Inf(1))).To(MatchError(control.ErrInvalidTarget))
			Expect(ctrl.TargetDepth()).To(Equal(60.0))
		})

		It("moves the latch threshold", func() {
			Expect(ctrl.SetTargetDepth(2)).To(Succeed())
			vehicle.set(2.5)
			Expect(ctrl.Update(step).DepthReached).To(BeTrue())
		})
	})

	Describe("Run", func() {
		It("ticks on its clock until cancelled", func() {
			ctx, cancel := context.WithCancel(context.Background())
			done := make(chan error, 1)
			go func() { done <- ctrl.Run(ctx) }()

			vehicle.set(0.01)
			Eventually(func() int64 {
				mock.Add(step)
				return ctrl.Commands()
			}, "2s", "5ms").Should(BeNumerically(">=", 2))

			cancel()
			Eventually(done, "2s").Should(Receive(MatchError(context.Canceled)))
		})
	})
})
