package client_test

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"net/http/httptest"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/papercomputeco/lmgate/api"
	"github.com/papercomputeco/lmgate/gateway"
	"github.com/papercomputeco/lmgate/pkg/client"
	"github.com/papercomputeco/lmgate/pkg/logger"
	"github.com/papercomputeco/lmgate/pkg/storage"
	"github.com/papercomputeco/lmgate/pkg/storage/inmemory"
)

// ollama is a minimal upstream for end-to-end runs.
func ollama() *httptest.Server {
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/api/generate":
			for _, frag := range []string{"The sky ", "is ", "blue."} {
				fmt.Fprintf(w, "{\"response\":%q}\n", frag)
			}
			fmt.Fprintln(w, `{"done":true}`)
		case "/api/tags":
			fmt.Fprint(w, `{"models":[{"name":"llama2:latest","size":3825819519}]}`)
		case "/api/pull":
			fmt.Fprintln(w, `{"status":"success"}`)
		case "/api/version":
			fmt.Fprint(w, `{"version":"0.5.7"}`)
		default:
			http.NotFound(w, r)
		}
	}))
}

func listen() net.Listener {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	Expect(err).NotTo(HaveOccurred())
	return ln
}

var _ = Describe("Client", func() {
	var (
		upstream  *httptest.Server
		gw        *gateway.Gateway
		apiServer *api.Server
		c         *client.Client
		ctx       context.Context
	)

	BeforeEach(func() {
		ctx = context.Background()
		upstream = ollama()
		driver := inmemory.NewDriver()

		var err error
		gw, err = gateway.New(gateway.Config{UpstreamURL: upstream.URL}, driver, logger.Nop())
		Expect(err).NotTo(HaveOccurred())
		apiServer = api.NewServer(api.Config{}, driver, logger.Nop())

		gwLn, apiLn := listen(), listen()
		go gw.RunWithListener(gwLn)
		go apiServer.RunWithListener(apiLn)

		c = client.New("http://"+gwLn.Addr().String()+"/", "http://"+apiLn.Addr().String())
	})

	AfterEach(func() {
		gw.Close()
		apiServer.Shutdown()
		upstream.Close()
	})

	It("streams a generation", func() {
		var buf bytes.Buffer
		n, err := c.Stream(ctx, gateway.GenerationRequest{Prompt: "why?"}, &buf)
		Expect(err).NotTo(HaveOccurred())
		Expect(buf.String()).To(Equal("The sky is blue."))
		Expect(n).To(Equal(int64(len("The sky is blue."))))
	})

	It("runs a buffered generation", func() {
		out, err := c.Generate(ctx, gateway.GenerationRequest{Prompt: "why?"})
		Expect(err).NotTo(HaveOccurred())
		Expect(out).To(Equal("The sky is blue."))
	})

	It("surfaces gateway errors", func() {
		_, err := c.Generate(ctx, gateway.GenerationRequest{})

		var serviceErr *client.ServiceError
		Expect(errors.As(err, &serviceErr)).To(BeTrue())
		Expect(serviceErr.Code).To(Equal(http.StatusBadRequest))
		Expect(serviceErr.Message).To(Equal("prompt is required"))
	})

	It("lists and pulls models", func() {
		models, err := c.ListModels(ctx)
		Expect(err).NotTo(HaveOccurred())
		Expect(models).To(HaveLen(1))

		var entry map[string]any
		Expect(json.Unmarshal(models[0], &entry)).To(Succeed())
		Expect(entry).To(HaveKeyWithValue("name", "llama2:latest"))

		msg, err := c.PullModel(ctx, "mistral")
		Expect(err).NotTo(HaveOccurred())
		Expect(msg).To(Equal("Model mistral downloaded successfully"))
	})

	It("pings the history API", func() {
		Expect(c.Ping(ctx)).To(Succeed())
	})

	It("reports health", func() {
		health, err := c.Health(ctx)
		Expect(err).NotTo(HaveOccurred())
		Expect(health.Status).To(Equal("ok"))
		Expect(health.Version).To(Equal("0.5.7"))
	})

	It("reads recorded generations back from the history API", func() {
		_, err := c.Generate(ctx, gateway.GenerationRequest{Prompt: "why?", Model: "mistral"})
		Expect(err).NotTo(HaveOccurred())

		var records []*storage.Record
		Eventually(func() ([]*storage.Record, error) {
			records, err = c.ListGenerations(ctx, 10)
			return records, err
		}).Should(HaveLen(1))

		rec, err := c.GetGeneration(ctx, records[0].ID)
		Expect(err).NotTo(HaveOccurred())
		Expect(rec.Model).To(Equal("mistral"))
		Expect(rec.Response).To(Equal("The sky is blue."))
		Expect(rec.Status).To(Equal(storage.StatusCompleted))
	})

	It("returns a 404 service error for an unknown generation", func() {
		_, err := c.GetGeneration(ctx, "nope")

		var serviceErr *client.ServiceError
		Expect(errors.As(err, &serviceErr)).To(BeTrue())
		Expect(serviceErr.Code).To(Equal(http.StatusNotFound))
	})
})
