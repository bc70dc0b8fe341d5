package config_test

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"go.uber.org/zap"

	"github.com/papercomputeco/callflow/pkg/config"
	"github.com/papercomputeco/callflow/pkg/prompt"
)

var _ = Describe("Config", func() {
	var (
		dir  string
		path string
	)

	BeforeEach(func() {
		dir = GinkgoT().TempDir()
		path = filepath.Join(dir, "callflow.toml")
	})

	write := func(body string) {
		Expect(os.WriteFile(path, []byte(body), 0o644)).To(Succeed())
	}

	Describe("Load", func() {
		It("returns defaults when the file is missing", func() {
			cfg, err := config.Load(path)
			Expect(err).NotTo(HaveOccurred())
			Expect(cfg).To(Equal(config.Default()))
			Expect(cfg.Listen).To(Equal(":8000"))
			Expect(cfg.Store.Driver).To(Equal(config.DriverJSONFile))
			Expect(cfg.Store.Path).To(Equal("messages.json"))
			Expect(cfg.Store.HistoryLimit).To(Equal(10))
			Expect(cfg.Completion.Provider).To(Equal(config.ProviderOpenAI))
			Expect(cfg.Completion.Model).To(Equal("gpt-4o-mini"))
			Expect(cfg.Persona.Prompt).To(Equal(prompt.DefaultPersona))
		})

		It("overlays file values on the defaults", func() {
			write(`
listen = ":9000"
debug = true

[store]
driver = "sqlite"
path = "/var/lib/callflow/turns.db"

[completion]
provider = "ollama"
model = "llama3.2"
base_url = "http://localhost:11434"
temperature = 0.2

[persona]
prompt = "You sell travel insurance."
`)

			cfg, err := config.Load(path)
			Expect(err).NotTo(HaveOccurred())
			Expect(cfg.Listen).To(Equal(":9000"))
			Expect(cfg.Debug).To(BeTrue())
			Expect(cfg.Store.Driver).To(Equal(config.DriverSQLite))
			Expect(cfg.Store.Path).To(Equal("/var/lib/callflow/turns.db"))
			Expect(cfg.Store.HistoryLimit).To(Equal(10))
			Expect(cfg.Completion.Provider).To(Equal(config.ProviderOllama))
			Expect(cfg.Completion.Temperature).To(BeNumerically("~", 0.2))
			Expect(cfg.Completion.APIKeyEnv).To(Equal("OPENAI_API_KEY"))
			Expect(cfg.Persona.Prompt).To(Equal("You sell travel insurance."))
		})

		It("rejects unknown keys", func() {
			write(`
[store]
drvier = "sqlite"
`)
			_, err := config.Load(path)
			Expect(err).To(MatchError(ContainSubstring("store.drvier")))
		})

		It("rejects malformed TOML", func() {
			write(`listen = `)
			_, err := config.Load(path)
			Expect(err).To(HaveOccurred())
		})

		It("rejects an unknown driver", func() {
			write(`
[store]
driver = "postgres"
`)
			_, err := config.Load(path)
			Expect(err).To(MatchError(ContainSubstring("postgres")))
		})

		It("requires a base_url for ollama", func() {
			write(`
[completion]
provider = "ollama"
`)
			_, err := config.Load(path)
			Expect(err).To(MatchError(ContainSubstring("base_url")))
		})

		It("rejects a non-positive history limit", func() {
			write(`
[store]
history_limit = 0
`)
			_, err := config.Load(path)
			Expect(err).To(MatchError(ContainSubstring("history_limit")))
		})
	})

	Describe("Watch", func() {
		It("delivers reloaded configuration on change", func() {
			write(`
[persona]
prompt = "first"
`)
			ctx, cancel := context.WithCancel(context.Background())
			defer cancel()

			var (
				mu      sync.Mutex
				persona string
			)
			err := config.Watch(ctx, path, zap.NewNop(), func(cfg *config.Config) {
				mu.Lock()
				defer mu.Unlock()
				persona = cfg.Persona.Prompt
			})
			Expect(err).NotTo(HaveOccurred())

			write(`
[persona]
prompt = "second"
`)

			Eventually(func() string {
				mu.Lock()
				defer mu.Unlock()
				return persona
			}, 5*time.Second, 20*time.Millisecond).Should(Equal("second"))
		})

		It("ignores other files in the directory", func() {
			write(`listen = ":8000"`)
			ctx, cancel := context.WithCancel(context.Background())
			defer cancel()

			called := make(chan struct{}, 1)
			err := config.Watch(ctx, path, zap.NewNop(), func(*config.Config) {
				select {
				case called <- struct{}{}:
				default:
				}
			})
			Expect(err).NotTo(HaveOccurred())

			Expect(os.WriteFile(filepath.Join(dir, "other.toml"), []byte("x = 1"), 0o644)).To(Succeed())
			Consistently(called, 300*time.Millisecond).ShouldNot(Receive())
		})

		It("fails for a directory that does not exist", func() {
			err := config.Watch(context.Background(), filepath.Join(dir, "missing", "callflow.toml"), zap.NewNop(), func(*config.Config) {})
			Expect(err).To(HaveOccurred())
		})
	})
})
