package entstore

import (
	"context"
	"strings"
	"sync"
	"testing"
	"time"

	_ "github.com/ncruces/go-sqlite3/vfs/memdb"
	"go.uber.org/zap"

	"github.com/wilhg/reviewbench/pkg/store"
)

// memURL returns a private in-memory database URL for t.
func memURL(t *testing.T) string {
	name := strings.NewReplacer("/", "_", " ", "_").Replace(t.Name())
	return "sqlite:file:/" + name + ".db?vfs=memdb&_pragma=busy_timeout(5000)&_pragma=foreign_keys(ON)&_fk=1"
}

// stepClock returns a clock advancing one second per call from a fixed start.
func stepClock() func() time.Time {
	var (
		mu  sync.Mutex
		cur = time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	)
	return func() time.Time {
		mu.Lock()
		defer mu.Unlock()
		cur = cur.Add(time.Second)
		return cur
	}
}

func openTestStore(t *testing.T, opts ...Option) *Store {
	t.Helper()
	ctx := context.Background()
	opts = append([]Option{WithClock(stepClock()), WithLogger(zap.NewNop())}, opts...)
	st, err := Open(ctx, memURL(t), opts...)
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { _ = st.Close() })
	if err := st.Migrate(ctx); err != nil {
		t.Fatal(err)
	}
	return st
}

func record(t *testing.T, st store.Recorder, tool, caseName, model string, score int) int64 {
	t.Helper()
	id, err := st.RecordResult(context.Background(), store.RunInput{
		ToolName: tool,
		CaseName: caseName,
		Model:    model,
		Score:    score,
		Output:   "output of " + model,
	})
	if err != nil {
		t.Fatal(err)
	}
	return id
}
