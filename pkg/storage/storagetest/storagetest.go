// Package storagetest holds ginkgo specs shared by every storage.Driver.
package storagetest

import (
	"context"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/papercomputeco/lmgate/pkg/storage"
)

// NewRecord returns a completed record started at the given offset from a
// fixed instant.
func NewRecord(id string, offset time.Duration) *storage.Record {
	started := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC).Add(offset)
	return &storage.Record{
		ID:             id,
		Model:          "llama2",
		Prompt:         "why is the sky blue?",
		Response:       "Rayleigh scattering.",
		Status:         storage.StatusCompleted,
		UpstreamStatus: 200,
		Fragments:      3,
		Bytes:          20,
		StartedAt:      started,
		CompletedAt:    started.Add(1500 * time.Millisecond),
	}
}

// DescribeDriver registers the shared driver specs. newDriver is called
// before each test; the returned driver is closed after it.
func DescribeDriver(newDriver func() storage.Driver) {
	var (
		driver storage.Driver
		ctx    context.Context
	)

	BeforeEach(func() {
		ctx = context.Background()
		driver = newDriver()
	})

	AfterEach(func() {
		if driver != nil {
			Expect(driver.Close()).To(Succeed())
		}
	})

	Describe("Put", func() {
		It("inserts a new record", func() {
			inserted, err := driver.Put(ctx, NewRecord("a", 0))
			Expect(err).NotTo(HaveOccurred())
			Expect(inserted).To(BeTrue())
		})

		It("is a no-op for an existing id", func() {
			_, err := driver.Put(ctx, NewRecord("a", 0))
			Expect(err).NotTo(HaveOccurred())

			dup := NewRecord("a", time.Hour)
			dup.Model = "mistral"
			inserted, err := driver.Put(ctx, dup)
			Expect(err).NotTo(HaveOccurred())
			Expect(inserted).To(BeFalse())

			got, err := driver.Get(ctx, "a")
			Expect(err).NotTo(HaveOccurred())
			Expect(got.Model).To(Equal("llama2"))
		})

		It("rejects nil records and empty ids", func() {
			_, err := driver.Put(ctx, nil)
			Expect(err).To(HaveOccurred())

			_, err = driver.Put(ctx, &storage.Record{})
			Expect(err).To(HaveOccurred())
		})
	})

	Describe("Get", func() {
		It("round-trips every field", func() {
			want := NewRecord("a", 0)
			want.Streaming = true
			want.Response = ""
			want.Error = "upstream went away"
			want.Status = storage.StatusFailed
			_, err := driver.Put(ctx, want)
			Expect(err).NotTo(HaveOccurred())

			got, err := driver.Get(ctx, "a")
			Expect(err).NotTo(HaveOccurred())
			Expect(got.ID).To(Equal(want.ID))
			Expect(got.Model).To(Equal(want.Model))
			Expect(got.Prompt).To(Equal(want.Prompt))
			Expect(got.Response).To(BeEmpty())
			Expect(got.Streaming).To(BeTrue())
			Expect(got.Status).To(Equal(storage.StatusFailed))
			Expect(got.UpstreamStatus).To(Equal(200))
			Expect(got.Fragments).To(Equal(3))
			Expect(got.Bytes).To(Equal(20))
			Expect(got.Error).To(Equal("upstream went away"))
			Expect(got.StartedAt).To(BeTemporally("==", want.StartedAt))
			Expect(got.Duration()).To(Equal(1500 * time.Millisecond))
		})

		It("returns NotFoundError for unknown ids", func() {
			_, err := driver.Get(ctx, "missing")
			Expect(err).To(MatchError(storage.NotFoundError{ID: "missing"}))
		})
	})

	Describe("List", func() {
		BeforeEach(func() {
			for i, id := range []string{"first", "second", "third"} {
				_, err := driver.Put(ctx, NewRecord(id, time.Duration(i)*time.Minute))
				Expect(err).NotTo(HaveOccurred())
			}
		})

		It("returns records newest first", func() {
			records, err := driver.List(ctx, 10)
			Expect(err).NotTo(HaveOccurred())
			Expect(records).To(HaveLen(3))
			Expect(records[0].ID).To(Equal("third"))
			Expect(records[2].ID).To(Equal("first"))
		})

		It("honors the limit", func() {
			records, err := driver.List(ctx, 2)
			Expect(err).NotTo(HaveOccurred())
			Expect(records).To(HaveLen(2))
			Expect(records[1].ID).To(Equal("second"))
		})

		It("uses the default limit when not positive", func() {
			records, err := driver.List(ctx, 0)
			Expect(err).NotTo(HaveOccurred())
			Expect(records).To(HaveLen(3))
		})
	})
}
