package circuitbreaker_test

import (
	"sync"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/angeloszaimis/ehr-gateway/internal/circuitbreaker"
)

var _ = Describe("Breaker", func() {
	var cb *circuitbreaker.Breaker

	BeforeEach(func() {
		cb = circuitbreaker.New(3, 100*time.Millisecond)
	})

	trip := func() {
		cb.Failure()
		cb.Failure()
		Expect(cb.Failure()).To(BeTrue())
		Expect(cb.State()).To(Equal(circuitbreaker.StateOpen))
	}

	It("should start closed", func() {
		Expect(cb.State()).To(Equal(circuitbreaker.StateClosed))
		Expect(cb.Allow()).To(BeTrue())
	})

	Context("when CLOSED", func() {
		It("should stay closed below the threshold", func() {
			Expect(cb.Failure()).To(BeFalse())
			Expect(cb.Failure()).To(BeFalse())
			Expect(cb.State()).To(Equal(circuitbreaker.StateClosed))
			Expect(cb.Allow()).To(BeTrue())
		})

		It("should only count consecutive failures", func() {
			cb.Failure()
			cb.Failure()
			Expect(cb.Success()).To(BeFalse())
			cb.Failure()
			Expect(cb.State()).To(Equal(circuitbreaker.StateClosed))
		})

		It("should open at the threshold", func() {
			trip()
		})
	})

	Context("when OPEN", func() {
		BeforeEach(trip)

		It("should refuse requests during the cooldown", func() {
			Expect(cb.Allow()).To(BeFalse())
		})

		It("should let a single trial through after the cooldown", func() {
			Eventually(cb.Allow, time.Second, 10*time.Millisecond).Should(BeTrue())
			Expect(cb.State()).To(Equal(circuitbreaker.StateHalfOpen))
			Expect(cb.Allow()).To(BeFalse())
		})
	})

	Context("when HALF-OPEN", func() {
		BeforeEach(func() {
			trip()
			Eventually(cb.Allow, time.Second, 10*time.Millisecond).Should(BeTrue())
		})

		It("should close on success", func() {
			Expect(cb.Success()).To(BeTrue())
			Expect(cb.State()).To(Equal(circuitbreaker.StateClosed))
			Expect(cb.Allow()).To(BeTrue())
		})

		It("should allow another trial after a cancelled one", func() {
			Expect(cb.Allow()).To(BeFalse())
			cb.Cancel()
			Expect(cb.Allow()).To(BeTrue())
			Expect(cb.State()).To(Equal(circuitbreaker.StateHalfOpen))
		})

		It("should reopen on failure", func() {
			Expect(cb.Failure()).To(BeTrue())
			Expect(cb.State()).To(Equal(circuitbreaker.StateOpen))
			Expect(cb.Allow()).To(BeFalse())
		})
	})

	It("should treat a threshold below one as one", func() {
		cb = circuitbreaker.New(0, time.Second)
		Expect(cb.Failure()).To(BeTrue())
	})

	It("should be safe for concurrent use", func() {
		cb = circuitbreaker.New(501, time.Second)

		var wg sync.WaitGroup
		for i := 0; i < 50; i++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				for j := 0; j < 10; j++ {
					cb.Allow()
					cb.Failure()
				}
			}()
		}
		wg.Wait()

		Expect(cb.State()).To(Equal(circuitbreaker.StateClosed))
		Expect(cb.Failure()).To(BeTrue())
	})

	DescribeTable("State.String",
		func(s circuitbreaker.State, expected string) {
			Expect(s.String()).To(Equal(expected))
		},
		Entry("closed", circuitbreaker.StateClosed, "CLOSED"),
		Entry("open", circuitbreaker.StateOpen, "OPEN"),
		Entry("half-open", circuitbreaker.StateHalfOpen, "HALF-OPEN"),
		Entry("unknown", circuitbreaker.State(9), "UNKNOWN"),
	)
})
