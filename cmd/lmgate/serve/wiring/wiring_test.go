package wiring_test

import (
	"context"
	"os"
	"path/filepath"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"github.com/spf13/viper"

	"github.com/papercomputeco/lmgate/cmd/lmgate/serve/wiring"
	"github.com/papercomputeco/lmgate/pkg/config"
	"github.com/papercomputeco/lmgate/pkg/eventstream/nop"
	"github.com/papercomputeco/lmgate/pkg/logger"
	"github.com/papercomputeco/lmgate/pkg/storage/inmemory"
	"github.com/papercomputeco/lmgate/pkg/storage/sqlite"
	"github.com/papercomputeco/lmgate/pkg/stream"
)

var _ = Describe("wiring", func() {
	var (
		v      *viper.Viper
		tmpDir string
	)

	BeforeEach(func() {
		tmpDir = GinkgoT().TempDir()
		var err error
		v, err = config.InitViper(tmpDir)
		Expect(err).NotTo(HaveOccurred())
	})

	Describe("GatewayConfig", func() {
		It("resolves defaults", func() {
			cfg, err := wiring.GatewayConfig(v, nil)
			Expect(err).NotTo(HaveOccurred())
			Expect(cfg.ListenAddr).To(Equal(":3335"))
			Expect(cfg.UpstreamURL).To(Equal("http://localhost:11434"))
			Expect(cfg.Delimiter).To(Equal(stream.DelimiterNewline))
			Expect(cfg.Field).To(Equal("response"))
			Expect(cfg.DefaultModel).To(Equal("llama2"))
			Expect(cfg.ConnectTimeout).To(Equal(60 * time.Second))
			Expect(cfg.Publisher).To(BeNil())
		})

		It("honors overrides", func() {
			v.Set("gateway.delimiter", "blank-line")
			v.Set("gateway.connect_timeout", "5s")

			cfg, err := wiring.GatewayConfig(v, nil)
			Expect(err).NotTo(HaveOccurred())
			Expect(cfg.Delimiter).To(Equal(stream.DelimiterBlankLine))
			Expect(cfg.ConnectTimeout).To(Equal(5 * time.Second))
		})

		It("rejects an unknown delimiter", func() {
			v.Set("gateway.delimiter", "comma")
			_, err := wiring.GatewayConfig(v, nil)
			Expect(err).To(HaveOccurred())
		})

		It("rejects a malformed timeout", func() {
			v.Set("gateway.connect_timeout", "soon")
			_, err := wiring.GatewayConfig(v, nil)
			Expect(err).To(MatchError(ContainSubstring("gateway.connect_timeout")))
		})
	})

	Describe("OpenStorage", func() {
		ctx := context.Background()

		It("defaults to memory", func() {
			driver, err := wiring.OpenStorage(ctx, v, logger.Nop())
			Expect(err).NotTo(HaveOccurred())
			defer driver.Close()
			Expect(driver).To(BeAssignableToTypeOf(&inmemory.Driver{}))
		})

		It("opens SQLite when a path is set", func() {
			v.Set("storage.sqlite_path", filepath.Join(tmpDir, "lmgate.db"))

			driver, err := wiring.OpenStorage(ctx, v, logger.Nop())
			Expect(err).NotTo(HaveOccurred())
			defer driver.Close()
			Expect(driver).To(BeAssignableToTypeOf(&sqlite.Driver{}))
		})

		It("refuses both backends at once", func() {
			v.Set("storage.sqlite_path", filepath.Join(tmpDir, "lmgate.db"))
			v.Set("storage.postgres_dsn", "postgres://localhost/lmgate")

			_, err := wiring.OpenStorage(ctx, v, logger.Nop())
			Expect(err).To(MatchError(ContainSubstring("mutually exclusive")))
		})
	})

	Describe("OpenPublisher", func() {
		It("falls back to a no-op publisher without brokers", func() {
			pub, err := wiring.OpenPublisher(v, logger.Nop())
			Expect(err).NotTo(HaveOccurred())
			Expect(pub).To(BeAssignableToTypeOf(&nop.Publisher{}))
			Expect(pub.Close()).To(Succeed())
		})

		It("creates a Kafka publisher when brokers are set", func() {
			v.Set("events.kafka_brokers", "localhost:9092, localhost:9093")

			pub, err := wiring.OpenPublisher(v, logger.Nop())
			Expect(err).NotTo(HaveOccurred())
			Expect(pub).NotTo(BeNil())
			Expect(pub.Close()).To(Succeed())
		})
	})

	Describe("NewLogger", func() {
		It("appends JSON records to the log file", func() {
			path := filepath.Join(tmpDir, "lmgate.log")
			log, closeFn, err := wiring.NewLogger(false, path)
			Expect(err).NotTo(HaveOccurred())

			log.Info("hello", "component", "test")
			Expect(closeFn()).To(Succeed())

			data, err := os.ReadFile(path)
			Expect(err).NotTo(HaveOccurred())
			Expect(string(data)).To(ContainSubstring(`"msg":"hello"`))
			Expect(string(data)).To(ContainSubstring(`"component":"test"`))
		})
	})

	Describe("MCPHandler", func() {
		It("builds a handler against the configured upstream", func() {
			handler, err := wiring.MCPHandler(v, inmemory.NewDriver(), logger.Nop())
			Expect(err).NotTo(HaveOccurred())
			Expect(handler).NotTo(BeNil())
		})
	})
})
