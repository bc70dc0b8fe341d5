package historycmder

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"path/filepath"
	"strings"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"go.uber.org/zap"

	"github.com/papercomputeco/callflow/pkg/llm"
	"github.com/papercomputeco/callflow/pkg/storage/jsonfile"
	"github.com/papercomputeco/callflow/pkg/storage/sqlite"
)

var _ = Describe("History Command", func() {
	var (
		ctx       context.Context
		storePath string
	)

	BeforeEach(func() {
		ctx = context.Background()
		storePath = filepath.Join(GinkgoT().TempDir(), "messages.json")
	})

	makeTurn := func(callID, request string, second int) llm.Turn {
		return llm.Turn{
			CallID:    &callID,
			Request:   request,
			Response:  "re: " + request,
			Timestamp: fmt.Sprintf("2025-01-01T00:00:%02d.000000", second),
		}
	}

	seed := func(turns ...llm.Turn) {
		d, err := jsonfile.NewDriver(storePath, zap.NewNop())
		Expect(err).NotTo(HaveOccurred())
		for _, t := range turns {
			Expect(d.Append(ctx, t)).To(BeTrue())
		}
	}

	execute := func(args ...string) (string, error) {
		var out bytes.Buffer
		cmd := NewHistoryCmd()
		cmd.SetOut(&out)
		cmd.SetErr(&out)
		cmd.SetArgs(append([]string{"--store", storePath}, args...))
		err := cmd.ExecuteContext(ctx)
		return out.String(), err
	}

	It("reports an empty log", func() {
		out, err := execute()
		Expect(err).NotTo(HaveOccurred())
		Expect(out).To(ContainSubstring("No turns found."))
	})

	It("prints recent turns as a table", func() {
		seed(makeTurn("A", "hello there", 1), makeTurn("B", "second caller", 2))

		out, err := execute()
		Expect(err).NotTo(HaveOccurred())
		Expect(out).To(ContainSubstring("TIMESTAMP"))
		Expect(out).To(ContainSubstring("hello there"))
		Expect(out).To(ContainSubstring("re: second caller"))
		Expect(strings.Index(out, "hello there")).To(BeNumerically("<", strings.Index(out, "second caller")))
	})

	It("prints a call's history as JSON", func() {
		seed(makeTurn("A", "a1", 1), makeTurn("B", "b1", 2), makeTurn("A", "a2", 3))

		out, err := execute("A", "--json")
		Expect(err).NotTo(HaveOccurred())

		var turns []llm.Turn
		Expect(json.Unmarshal([]byte(out), &turns)).To(Succeed())
		Expect(turns).To(HaveLen(2))
		Expect(turns[0].Request).To(Equal("a1"))
		Expect(turns[1].Request).To(Equal("a2"))
	})

	It("limits the window before filtering by call", func() {
		turns := []llm.Turn{makeTurn("A", "a1", 0)}
		for i := 1; i <= 3; i++ {
			turns = append(turns, makeTurn("B", fmt.Sprintf("b%d", i), i))
		}
		seed(turns...)

		out, err := execute("A", "--limit", "3", "--json")
		Expect(err).NotTo(HaveOccurred())
		Expect(strings.TrimSpace(out)).To(Equal("[]"))

		out, err = execute("A", "--limit", "0", "--json")
		Expect(err).NotTo(HaveOccurred())
		Expect(out).To(ContainSubstring(`"a1"`))
	})

	It("reads a SQLite turn log", func() {
		dbPath := filepath.Join(GinkgoT().TempDir(), "turns.db")
		d, err := sqlite.NewDriver(ctx, dbPath, 0, zap.NewNop())
		Expect(err).NotTo(HaveOccurred())
		Expect(d.Append(ctx, makeTurn("A", "from sqlite", 1))).To(BeTrue())
		Expect(d.Close()).To(Succeed())

		var out bytes.Buffer
		cmd := NewHistoryCmd()
		cmd.SetOut(&out)
		cmd.SetArgs([]string{"--driver", "sqlite", "--store", dbPath, "--json"})
		Expect(cmd.ExecuteContext(ctx)).To(Succeed())
		Expect(out.String()).To(ContainSubstring("from sqlite"))
	})

	It("rejects a negative limit", func() {
		_, err := execute("--limit", "-1")
		Expect(err).To(HaveOccurred())
	})

	Describe("renderTable", func() {
		It("truncates long text to fit the width", func() {
			long := strings.Repeat("insurance ", 50)
			out := renderTable([]llm.Turn{makeTurn("A", long, 1)}, 100)

			Expect(out).To(ContainSubstring("…"))
			for _, line := range strings.Split(out, "\n") {
				Expect(len([]rune(line))).To(BeNumerically("<=", 100))
			}
		})

		It("shows anonymous turns with a dash", func() {
			out := renderTable([]llm.Turn{{Request: "hi", Response: "hello", Timestamp: "t"}}, 100)
			Expect(out).To(ContainSubstring(" - "))
		})
	})
})
