package expense

import (
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/zombor/expense-tracker/internal/category"
	"github.com/zombor/expense-tracker/internal/money"
)

var _ = Describe("Summarize", func() {
	var (
		expenses []*Expense
		summary  Summary
	)

	JustBeforeEach(func() {
		summary = Summarize(expenses)
	})

	valueOf := func(name string) float64 {
		for _, c := range summary.Categories {
			if c.Name == name {
				return c.Value
			}
		}
		Fail("category " + name + " missing")
		return 0
	}

	When("records are in one month", func() {
		BeforeEach(func() {
			expenses = []*Expense{
				{Amount: 10, Category: "food", Date: "2024-01-05"},
				{Amount: 5, Category: "Unknown", Date: "2024-01-20"},
			}
		})

		It("groups them under the first of the month", func() {
			Expect(summary.Monthly).To(Equal([]MonthTotal{{Month: "2024-01-01", Total: 15}}))
		})

		It("normalizes categories and zero-fills the rest", func() {
			Expect(summary.Categories).To(HaveLen(7))
			Expect(valueOf(category.Food)).To(Equal(10.0))
			Expect(valueOf(category.Other)).To(Equal(5.0))
			for _, name := range []string{category.Transport, category.Shopping, category.Bills, category.Health, category.Entertainment} {
				Expect(valueOf(name)).To(BeZero())
			}
		})

		It("totals everything", func() {
			Expect(summary.Total).To(Equal(15.0))
		})
	})

	When("there are no records", func() {
		BeforeEach(func() {
			expenses = nil
		})

		It("still lists every category in vocabulary order", func() {
			names := make([]string, 0, len(summary.Categories))
			for _, c := range summary.Categories {
				names = append(names, c.Name)
				Expect(c.Value).To(BeZero())
			}
			Expect(names).To(Equal(category.All()))
		})

		It("has no months and a zero total", func() {
			Expect(summary.Monthly).To(BeEmpty())
			Expect(summary.Total).To(BeZero())
		})
	})

	When("records span months and categories", func() {
		BeforeEach(func() {
			expenses = []*Expense{
				{Amount: 20, Category: "Bills", Date: "2024-03-01"},
				{Amount: 7.5, Category: "Transport", Date: "2024-01-31"},
				{Amount: 30, Category: "Health", Date: "2023-12-24T10:00:00Z"},
				{Amount: 2.5, Category: "transport", Date: "2024/01/02"},
				nil,
			}
		})

		It("sorts months ascending", func() {
			Expect(summary.Monthly).To(Equal([]MonthTotal{
				{Month: "2023-12-01", Total: 30},
				{Month: "2024-01-01", Total: 10},
				{Month: "2024-03-01", Total: 20},
			}))
		})

		It("sorts categories by spend keeping vocabulary order for ties", func() {
			Expect(summary.Categories[0]).To(Equal(CategoryTotal{Name: category.Health, Value: 30}))
			Expect(summary.Categories[1]).To(Equal(CategoryTotal{Name: category.Bills, Value: 20}))
			Expect(summary.Categories[2]).To(Equal(CategoryTotal{Name: category.Transport, Value: 10}))
			Expect(summary.Categories[3].Name).To(Equal(category.Food))
			Expect(summary.Categories[6].Name).To(Equal(category.Other))
		})
	})

	When("a record has a bad date or amount", func() {
		BeforeEach(func() {
			expenses = []*Expense{
				{Amount: 4, Category: "Food", Date: "sometime"},
				{Amount: 6, Category: "Food", Date: ""},
				{Amount: money.Amount(-3), Category: "Food", Date: "2024-02-10"},
				{Amount: 1, Category: "Food", Date: "2024-02-11"},
			}
		})

		It("keeps it under the unknown bucket, after real months", func() {
			Expect(summary.Monthly).To(Equal([]MonthTotal{
				{Month: "2024-02-01", Total: 1},
				{Month: UnknownMonth, Total: 10},
			}))
		})

		It("counts a negative amount as zero", func() {
			Expect(valueOf(category.Food)).To(Equal(11.0))
			Expect(summary.Total).To(Equal(11.0))
		})
	})

	It("keeps cent amounts exact", func() {
		var many []*Expense
		for i := 0; i < 10; i++ {
			many = append(many, &Expense{Amount: 0.1, Category: "Food", Date: "2024-05-05"})
		}
		summary := Summarize(many)
		Expect(summary.Total).To(Equal(1.0))
		Expect(summary.Monthly[0].Total).To(Equal(1.0))
	})
})

var _ = DescribeTable("MonthKey",
	func(date, want string) {
		Expect(MonthKey(date)).To(Equal(want))
	},
	Entry("ISO date", "2024-03-15", "2024-03-01"),
	Entry("timestamp", "2024-03-15T08:30:00Z", "2024-03-01"),
	Entry("local timestamp", "2024-03-15T08:30:00", "2024-03-01"),
	Entry("slashes", "2024/03/15", "2024-03-01"),
	Entry("US order", "03/15/2024", "2024-03-01"),
	Entry("month only", "2024-03", "2024-03-01"),
	Entry("padded", "  2024-03-15 ", "2024-03-01"),
	Entry("empty", "", UnknownMonth),
	Entry("garbage", "yesterday", UnknownMonth),
	Entry("impossible", "2024-13-01", UnknownMonth),
)
