package scanning

import (
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
)

var _ = Describe("Progress", func() {
	var (
		seen []int
		p    *Progress
	)

	BeforeEach(func() {
		seen = nil
		p = NewProgress(func(percent int) { seen = append(seen, percent) })
	})

	It("forwards increasing values", func() {
		p.Report(0)
		p.Report(10)
		p.Report(55)
		p.Done()
		Expect(seen).To(Equal([]int{0, 10, 55, 100}))
	})

	It("drops values that do not advance", func() {
		p.Report(40)
		p.Report(20)
		p.Report(40)
		p.Report(41)
		Expect(seen).To(Equal([]int{40, 41}))
	})

	It("clamps to 0..100", func() {
		p.Report(-5)
		p.Report(250)
		Expect(seen).To(Equal([]int{0, 100}))
	})

	It("tolerates a nil callback", func() {
		Expect(func() {
			NewProgress(nil).Report(10)
			var nilProgress *Progress
			nilProgress.Report(10)
		}).NotTo(Panic())
	})

	It("converts to a ProgressFunc", func() {
		fn := p.Func()
		fn(5)
		Expect(seen).To(Equal([]int{5}))
	})
})

var _ = Describe("streamProgress", func() {
	It("stays between 30 and 95", func() {
		Expect(streamProgress(1)).To(Equal(35))
		Expect(streamProgress(1000)).To(Equal(95))
	})
})
