package translator_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"

	"github.com/epicwp/translation-orchestrator/internal/config"
	"github.com/epicwp/translation-orchestrator/internal/translator"
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
)

var _ = Describe("translator client", func() {
	var (
		srv      *httptest.Server
		status   int
		reply    string
		received map[string]any
		path     string
		auth     string
	)

	BeforeEach(func() {
		status = http.StatusOK
		received = nil
		srv = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			path = r.URL.Path
			auth = r.Header.Get("Authorization")
			_ = json.NewDecoder(r.Body).Decode(&received)
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(status)
			_, _ = w.Write([]byte(reply))
		}))
	})

	AfterEach(func() {
		srv.Close()
	})

	Context("openai", func() {
		It("returns the first choice", func() {
			reply = `{"choices":[{"message":{"role":"assistant","content":"  Bonjour le monde \n"}}]}`
			c := translator.NewClient("openai", srv.URL, "secret", "gpt-test", 0.2)

			out, err := c.Translate(context.TODO(), "Hello world", "en", "fr", translator.Context{Reference: "title", Instructions: "Be formal."})
			Expect(err).To(BeNil())
			Expect(out).To(Equal("Bonjour le monde"))
			Expect(path).To(Equal("/chat/completions"))
			Expect(auth).To(Equal("Bearer secret"))
			Expect(received["model"]).To(Equal("gpt-test"))

			messages := received["messages"].([]any)
			Expect(messages).To(HaveLen(2))
			system := messages[0].(map[string]any)["content"].(string)
			Expect(system).To(ContainSubstring("from en to fr"))
			Expect(system).To(ContainSubstring("Be formal."))
			Expect(system).To(ContainSubstring(`"title"`))
		})

		It("strips code fences", func() {
			reply = "{\"choices\":[{\"message\":{\"content\":\"```text\\nHallo\\n```\"}}]}"
			c := translator.NewClient("openai", srv.URL, "", "m", 0)

			out, err := c.Translate(context.TODO(), "Hello", "en", "de", translator.Context{})
			Expect(err).To(BeNil())
			Expect(out).To(Equal("Hallo"))
		})

		It("treats a bad request as permanent", func() {
			status = http.StatusBadRequest
			reply = `{"error":"bad"}`
			c := translator.NewClient("openai", srv.URL, "", "m", 0)

			_, err := c.Translate(context.TODO(), "Hello", "en", "de", translator.Context{})
			Expect(err).NotTo(BeNil())
			Expect(translator.IsPermanent(err)).To(BeTrue())
		})

		It("treats rate limiting and server errors as transient", func() {
			c := translator.NewClient("openai", srv.URL, "", "m", 0)
			for _, code := range []int{http.StatusTooManyRequests, http.StatusInternalServerError} {
				status = code
				reply = `{}`
				_, err := c.Translate(context.TODO(), "Hello", "en", "de", translator.Context{})
				Expect(err).NotTo(BeNil())
				Expect(translator.IsPermanent(err)).To(BeFalse())
			}
		})

		It("fails on an empty answer", func() {
			reply = `{"choices":[]}`
			c := translator.NewClient("openai", srv.URL, "", "m", 0)

			_, err := c.Translate(context.TODO(), "Hello", "en", "de", translator.Context{})
			Expect(err).NotTo(BeNil())
		})
	})

	Context("ollama", func() {
		It("calls the chat endpoint without streaming", func() {
			reply = `{"message":{"role":"assistant","content":"Hola"}}`
			c := translator.NewClient("ollama", srv.URL, "", "llama3", 0)

			out, err := c.Translate(context.TODO(), "Hello", "en", "es", translator.Context{})
			Expect(err).To(BeNil())
			Expect(out).To(Equal("Hola"))
			Expect(path).To(Equal("/api/chat"))
			Expect(received["stream"]).To(BeFalse())
		})
	})

	Context("factory", func() {
		It("defaults to echo", func() {
			t, err := translator.New(config.NewDefault())
			Expect(err).To(BeNil())

			out, err := t.Translate(context.TODO(), "Hello", "en", "fr", translator.Context{})
			Expect(err).To(BeNil())
			Expect(out).To(Equal("[fr] Hello"))
		})

		It("rejects unknown providers", func() {
			cfg := config.NewDefault()
			cfg.Translator.Provider = "babelfish"
			_, err := translator.New(cfg)
			Expect(err).NotTo(BeNil())
		})
	})
})
