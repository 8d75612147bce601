package mcp_test

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync"
	"time"

	sdk "github.com/modelcontextprotocol/go-sdk/mcp"
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/papercomputeco/lmgate/api/mcp"
	lmlogger "github.com/papercomputeco/lmgate/pkg/logger"
	"github.com/papercomputeco/lmgate/pkg/storage"
	"github.com/papercomputeco/lmgate/pkg/storage/inmemory"
	"github.com/papercomputeco/lmgate/pkg/stream"
	"github.com/papercomputeco/lmgate/pkg/upstream"
)

var _ = Describe("MCP Server", func() {
	var (
		fake     *httptest.Server
		client   *upstream.Client
		relay    *stream.Relay
		driver   *inmemory.Driver
		mu       sync.Mutex
		lastBody map[string]any
	)

	lastPrompt := func() any {
		mu.Lock()
		defer mu.Unlock()
		return lastBody["prompt"]
	}

	BeforeEach(func() {
		fake = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			switch r.URL.Path {
			case "/api/generate":
				var body map[string]any
				_ = json.NewDecoder(r.Body).Decode(&body)
				mu.Lock()
				lastBody = body
				mu.Unlock()
				if body["model"] == "missing" {
					w.WriteHeader(http.StatusNotFound)
					fmt.Fprint(w, `{"error":"model not found"}`)
					return
				}
				fmt.Fprintln(w, `{"response":"Hello"}`)
				fmt.Fprintln(w, `{"response":", world"}`)
				fmt.Fprintln(w, `{"done":true}`)
			case "/api/tags":
				fmt.Fprint(w, `{"models":[{"name":"llama2:latest"},{"name":"phi3:mini"}]}`)
			default:
				http.NotFound(w, r)
			}
		}))

		client = upstream.NewClient(upstream.Config{BaseURL: fake.URL})
		relay = stream.NewRelay()
		driver = inmemory.NewDriver()
	})

	AfterEach(func() {
		fake.Close()
	})

	Describe("NewServer", func() {
		It("returns an error when the upstream client is nil", func() {
			_, err := mcp.NewServer(mcp.Config{
				Relay:  relay,
				Logger: lmlogger.Nop(),
			})
			Expect(err).To(MatchError(ContainSubstring("upstream client is required")))
		})

		It("returns an error when the relay is nil", func() {
			_, err := mcp.NewServer(mcp.Config{
				Upstream: client,
				Logger:   lmlogger.Nop(),
			})
			Expect(err).To(MatchError(ContainSubstring("relay is required")))
		})

		It("returns an error when logger is nil", func() {
			_, err := mcp.NewServer(mcp.Config{
				Upstream: client,
				Relay:    relay,
			})
			Expect(err).To(MatchError(ContainSubstring("logger is required")))
		})

		It("allows an empty noop server", func() {
			server, err := mcp.NewServer(mcp.Config{Noop: true})
			Expect(err).NotTo(HaveOccurred())
			Expect(server.Handler()).NotTo(BeNil())
		})
	})

	Context("over streamable HTTP", func() {
		var (
			endpoint *httptest.Server
			session  *sdk.ClientSession
			ctx      context.Context
			cancel   context.CancelFunc
		)

		connect := func(cfg mcp.Config) {
			server, err := mcp.NewServer(cfg)
			Expect(err).NotTo(HaveOccurred())

			endpoint = httptest.NewServer(server.Handler())
			mcpClient := sdk.NewClient(&sdk.Implementation{Name: "lmgate-test", Version: "v0.0.1"}, nil)
			session, err = mcpClient.Connect(ctx, &sdk.StreamableClientTransport{Endpoint: endpoint.URL}, nil)
			Expect(err).NotTo(HaveOccurred())
		}

		callText := func(name string, args map[string]any) (string, bool) {
			res, err := session.CallTool(ctx, &sdk.CallToolParams{Name: name, Arguments: args})
			Expect(err).NotTo(HaveOccurred())
			Expect(res.Content).NotTo(BeEmpty())
			text, ok := res.Content[0].(*sdk.TextContent)
			Expect(ok).To(BeTrue())
			return text.Text, res.IsError
		}

		BeforeEach(func() {
			ctx, cancel = context.WithTimeout(context.Background(), 10*time.Second)
			connect(mcp.Config{
				Upstream:     client,
				Relay:        relay,
				DefaultModel: "llama2",
				Driver:       driver,
				Logger:       lmlogger.Nop(),
			})
		})

		AfterEach(func() {
			session.Close()
			endpoint.Close()
			cancel()
		})

		It("lists every tool when a driver is configured", func() {
			res, err := session.ListTools(ctx, nil)
			Expect(err).NotTo(HaveOccurred())

			names := make([]string, 0, len(res.Tools))
			for _, tool := range res.Tools {
				names = append(names, tool.Name)
			}
			Expect(names).To(ConsistOf("generate", "list_models", "recent_generations"))
		})

		It("generates with the default model", func() {
			text, isErr := callText("generate", map[string]any{"prompt": "greet"})
			Expect(isErr).To(BeFalse())

			var out mcp.GenerateOutput
			Expect(json.Unmarshal([]byte(text), &out)).To(Succeed())
			Expect(out.Response).To(Equal("Hello, world"))
			Expect(out.Model).To(Equal("llama2"))
			Expect(out.Fragments).To(Equal(2))
			Expect(lastPrompt()).To(Equal("greet"))
		})

		It("reports upstream rejections as tool errors", func() {
			text, isErr := callText("generate", map[string]any{"prompt": "greet", "model": "missing"})
			Expect(isErr).To(BeTrue())
			Expect(text).To(ContainSubstring("404"))
		})

		It("rejects an empty prompt", func() {
			text, isErr := callText("generate", map[string]any{"prompt": ""})
			Expect(isErr).To(BeTrue())
			Expect(text).To(Equal("prompt is required"))
		})

		It("lists upstream models", func() {
			text, isErr := callText("list_models", map[string]any{})
			Expect(isErr).To(BeFalse())

			var out mcp.ListModelsOutput
			Expect(json.Unmarshal([]byte(text), &out)).To(Succeed())
			Expect(out.Count).To(Equal(2))
			Expect(out.Models[1]).To(HaveKeyWithValue("name", "phi3:mini"))
		})

		It("summarizes recent generations", func() {
			started := time.Date(2026, 3, 4, 5, 6, 7, 0, time.UTC)
			_, err := driver.Put(ctx, &storage.Record{
				ID:          "gen-1",
				Model:       "llama2",
				Prompt:      "hello",
				Status:      storage.StatusCompleted,
				Fragments:   4,
				StartedAt:   started,
				CompletedAt: started.Add(250 * time.Millisecond),
			})
			Expect(err).NotTo(HaveOccurred())

			text, isErr := callText("recent_generations", map[string]any{"limit": 5})
			Expect(isErr).To(BeFalse())

			var out mcp.RecentOutput
			Expect(json.Unmarshal([]byte(text), &out)).To(Succeed())
			Expect(out.Count).To(Equal(1))
			Expect(out.Generations[0].ID).To(Equal("gen-1"))
			Expect(out.Generations[0].DurationMs).To(Equal(int64(250)))
			Expect(out.Generations[0].StartedAt).To(Equal("2026-03-04T05:06:07Z"))
		})
	})
})
