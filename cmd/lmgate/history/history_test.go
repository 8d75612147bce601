package historycmder_test

import (
	"bytes"
	"context"
	"net"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"github.com/spf13/cobra"

	"github.com/papercomputeco/lmgate/api"
	historycmder "github.com/papercomputeco/lmgate/cmd/lmgate/history"
	"github.com/papercomputeco/lmgate/pkg/logger"
	"github.com/papercomputeco/lmgate/pkg/storage"
	"github.com/papercomputeco/lmgate/pkg/storage/inmemory"
)

var _ = Describe("NewHistoryCmd", func() {
	var (
		server  *api.Server
		driver  *inmemory.Driver
		baseURL string
		stdout  *bytes.Buffer
	)

	execute := func(args ...string) error {
		root := &cobra.Command{Use: "lmgate", SilenceUsage: true, SilenceErrors: true}
		root.PersistentFlags().String("config-dir", "", "")
		root.AddCommand(historycmder.NewHistoryCmd())

		full := append([]string{"history"}, args...)
		full = append(full, "--api-target", baseURL, "--config-dir", GinkgoT().TempDir())
		root.SetArgs(full)
		root.SetOut(stdout)
		return root.Execute()
	}

	BeforeEach(func() {
		stdout = &bytes.Buffer{}
		driver = inmemory.NewDriver()
		server = api.NewServer(api.Config{}, driver, logger.Nop())

		ln, err := net.Listen("tcp", "127.0.0.1:0")
		Expect(err).NotTo(HaveOccurred())
		go server.RunWithListener(ln)
		baseURL = "http://" + ln.Addr().String()

		started := time.Date(2026, 7, 8, 9, 10, 11, 0, time.UTC)
		_, err = driver.Put(context.Background(), &storage.Record{
			ID:          "gen-buffered",
			Model:       "llama2",
			Prompt:      "why is the sky blue?",
			Response:    "Rayleigh scattering.",
			Status:      storage.StatusCompleted,
			Fragments:   3,
			Bytes:       20,
			StartedAt:   started,
			CompletedAt: started.Add(2 * time.Second),
		})
		Expect(err).NotTo(HaveOccurred())
		_, err = driver.Put(context.Background(), &storage.Record{
			ID:          "gen-failed",
			Model:       "mistral",
			Prompt:      "hello",
			Streaming:   true,
			Status:      storage.StatusFailed,
			Error:       "unexpected EOF",
			StartedAt:   started.Add(time.Minute),
			CompletedAt: started.Add(time.Minute + 300*time.Millisecond),
		})
		Expect(err).NotTo(HaveOccurred())
	})

	AfterEach(func() {
		server.Shutdown()
	})

	It("lists recorded generations", func() {
		Expect(execute()).To(Succeed())
		Expect(stdout.String()).To(ContainSubstring("gen-buffered"))
		Expect(stdout.String()).To(ContainSubstring("gen-failed"))
		Expect(stdout.String()).To(ContainSubstring("why is the sky blue?"))
	})

	It("honors --limit", func() {
		Expect(execute("-n", "1")).To(Succeed())
		Expect(stdout.String()).To(ContainSubstring("gen-failed"))
		Expect(stdout.String()).NotTo(ContainSubstring("gen-buffered"))
	})

	It("shows one record", func() {
		Expect(execute("gen-buffered")).To(Succeed())
		Expect(stdout.String()).To(ContainSubstring("Rayleigh scattering."))
		Expect(stdout.String()).To(ContainSubstring("2.0s"))
	})

	It("shows the error of a failed record", func() {
		Expect(execute("gen-failed")).To(Succeed())
		Expect(stdout.String()).To(ContainSubstring("unexpected EOF"))
		Expect(stdout.String()).To(ContainSubstring("streaming"))
	})

	It("fails for an unknown id", func() {
		Expect(execute("missing")).To(MatchError(ContainSubstring("404")))
	})
})
