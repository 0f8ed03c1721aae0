package ratelimit

import (
	"errors"
	"time"

	"devspace-backend/errs"
	. "github.com/onsi/ginkgo"
	. "github.com/onsi/gomega"
)

type fakeClock struct {
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.now = c.now.Add(d)
}

var _ = Describe("Cooldown", func() {
	var clock *fakeClock
	var limiter *Cooldown

	BeforeEach(func() {
		clock = &fakeClock{now: time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)}
		limiter = NewCooldown(20*time.Second, clock)
	})

	Specify("first action is allowed", func() {
		remaining, ok := limiter.Check("a")
		Expect(ok).To(BeTrue())
		Expect(remaining).To(BeZero())
	})

	Specify("second action inside the window is refused with the remaining time", func() {
		limiter.Check("a")
		clock.Advance(5 * time.Second)

		remaining, ok := limiter.Check("a")
		Expect(ok).To(BeFalse())
		Expect(remaining).To(Equal(15 * time.Second))
	})

	Specify("refused actions do not extend the window", func() {
		limiter.Check("a")
		clock.Advance(10 * time.Second)
		limiter.Check("a")
		clock.Advance(10 * time.Second)

		_, ok := limiter.Check("a")
		Expect(ok).To(BeTrue())
	})

	Specify("keys are independent", func() {
		limiter.Check("a")

		_, ok := limiter.Check("b")
		Expect(ok).To(BeTrue())
	})

	Specify("reset clears a key", func() {
		limiter.Check("a")
		limiter.Reset("a")

		_, ok := limiter.Check("a")
		Expect(ok).To(BeTrue())
	})

	Specify("prune removes only expired entries", func() {
		limiter.Check("a")
		clock.Advance(15 * time.Second)
		limiter.Check("b")
		clock.Advance(5 * time.Second)

		Expect(limiter.Prune()).To(Equal(1))
		Expect(limiter.Len()).To(Equal(1))
	})

	Specify("unlimited never refuses", func() {
		var l Limiter = Unlimited{}
		for i := 0; i < 3; i++ {
			_, ok := l.Check("a")
			Expect(ok).To(BeTrue())
		}
	})

	Specify("guard reports the remaining cooldown", func() {
		Expect(Guard(limiter, "a")).To(Succeed())
		clock.Advance(8 * time.Second)

		err := Guard(limiter, "a")
		Expect(errors.Is(err, errs.ErrCooldown)).To(BeTrue())

		var cerr *CooldownError
		Expect(errors.As(err, &cerr)).To(BeTrue())
		Expect(cerr.Remaining).To(Equal(12 * time.Second))
	})
})
