package mergecmder

import (
	"bytes"
	"context"
	"os"
	"path/filepath"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"go.uber.org/zap"

	"github.com/papercomputeco/callflow/pkg/llm"
	"github.com/papercomputeco/callflow/pkg/storage"
	"github.com/papercomputeco/callflow/pkg/storage/jsonfile"
	"github.com/papercomputeco/callflow/pkg/storage/sqlite"
)

var _ = Describe("Merge Command", func() {
	var (
		ctx     context.Context
		tmpDir  string
		srcPath string
		dstPath string
	)

	BeforeEach(func() {
		ctx = context.Background()
		var err error
		tmpDir, err = os.MkdirTemp("", "callflow-merge-test-*")
		Expect(err).NotTo(HaveOccurred())
		srcPath = filepath.Join(tmpDir, "source.json")
		dstPath = filepath.Join(tmpDir, "target.json")
	})

	AfterEach(func() {
		os.RemoveAll(tmpDir)
	})

	makeTurn := func(callID, request, ts string) llm.Turn {
		t := llm.NewTurn(callID, request, "re: "+request)
		t.Timestamp = ts
		return t
	}

	seedJSON := func(path string, turns ...llm.Turn) {
		d, err := jsonfile.NewDriver(path, zap.NewNop())
		Expect(err).NotTo(HaveOccurred())
		for _, t := range turns {
			Expect(d.Append(ctx, t)).To(BeTrue())
		}
		Expect(d.Close()).To(Succeed())
	}

	loadJSON := func(path string) []llm.Turn {
		d, err := jsonfile.NewDriver(path, zap.NewNop())
		Expect(err).NotTo(HaveOccurred())
		defer d.Close()
		return d.Load(ctx, storage.Unbounded)
	}

	execute := func(args ...string) string {
		var out bytes.Buffer
		cmd := NewMergeCmd()
		cmd.SetOut(&out)
		cmd.SetArgs(args)
		Expect(cmd.ExecuteContext(ctx)).To(Succeed())
		return out.String()
	}

	It("merges turns from source into target", func() {
		seedJSON(srcPath,
			makeTurn("a", "hello from source", "2025-01-01T10:00:00.000000"),
			makeTurn("a", "second", "2025-01-01T10:00:01.000000"),
		)
		seedJSON(dstPath, makeTurn("b", "hello from target", "2025-01-01T09:00:00.000000"))

		out := execute("--store", dstPath, srcPath)
		Expect(out).To(ContainSubstring("2 new, 0 already existed"))

		turns := loadJSON(dstPath)
		Expect(turns).To(HaveLen(3))
		Expect(turns[0].Request).To(Equal("hello from target"))
		Expect(turns[2].Request).To(Equal("second"))
	})

	It("deduplicates when merging the same source twice", func() {
		seedJSON(srcPath, makeTurn("a", "dedup test", "2025-01-01T10:00:00.000000"))

		execute("--store", dstPath, srcPath)
		out := execute("--store", dstPath, srcPath)
		Expect(out).To(ContainSubstring("0 new, 1 already existed"))

		Expect(loadJSON(dstPath)).To(HaveLen(1))
	})

	It("deduplicates identical turns within a source", func() {
		seedJSON(srcPath,
			makeTurn("", "same", "2025-01-01T10:00:00.000000"),
			makeTurn("", "same", "2025-01-01T10:00:00.000000"),
		)
		seedJSON(dstPath)

		execute("--store", dstPath, srcPath)
		turns := loadJSON(dstPath)
		Expect(turns).To(HaveLen(1))
		Expect(turns[0].CallID).To(BeNil())
	})

	It("merges multiple sources", func() {
		src2Path := filepath.Join(tmpDir, "source2.json")
		seedJSON(srcPath, makeTurn("a", "from source 1", "2025-01-01T10:00:00.000000"))
		seedJSON(src2Path, makeTurn("b", "from source 2", "2025-01-01T11:00:00.000000"))

		out := execute("--store", dstPath, srcPath, src2Path)
		Expect(out).To(ContainSubstring("Merged 2 new turns from 2 sources"))

		Expect(loadJSON(dstPath)).To(HaveLen(2))
	})

	It("copies a flat file log into a sqlite database", func() {
		dbPath := filepath.Join(tmpDir, "turns.db")
		seedJSON(srcPath,
			makeTurn("a", "one", "2025-01-01T10:00:00.000000"),
			makeTurn("a", "two", "2025-01-01T10:00:01.000000"),
		)

		execute("--store", dbPath, srcPath)

		db, err := sqlite.NewDriver(ctx, dbPath, storage.DefaultLimit, zap.NewNop())
		Expect(err).NotTo(HaveOccurred())
		defer db.Close()

		history := db.HistoryFor(ctx, "a")
		Expect(history).To(HaveLen(2))
		Expect(history[0].Request).To(Equal("one"))
		Expect(history[1].Request).To(Equal("two"))
	})

	It("fails on a missing source without creating it", func() {
		missing := filepath.Join(tmpDir, "missing.json")

		cmd := NewMergeCmd()
		cmd.SetOut(&bytes.Buffer{})
		cmd.SetArgs([]string{"--store", dstPath, missing})
		Expect(cmd.ExecuteContext(ctx)).To(MatchError(ContainSubstring("could not read source")))

		_, err := os.Stat(missing)
		Expect(os.IsNotExist(err)).To(BeTrue())
	})

	Describe("driverFor", func() {
		It("infers the driver from the extension", func() {
			Expect(driverFor("", "turns.db")).To(Equal("sqlite"))
			Expect(driverFor("", "turns.SQLITE")).To(Equal("sqlite"))
			Expect(driverFor("", "messages.json")).To(Equal("jsonfile"))
			Expect(driverFor("sqlite", "messages.json")).To(Equal("sqlite"))
		})
	})
})
