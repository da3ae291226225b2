package jobstore

import (
	"context"
	"os"
	"testing"

	"github.com/google/uuid"

	logx "cronbot/pkg/logx"
)

func TestRedisContract(t *testing.T) {
	addr := os.Getenv("CRONBOT_TEST_REDIS_ADDR")
	if addr == "" {
		t.Skip("CRONBOT_TEST_REDIS_ADDR not set")
	}
	prefix := "cronbot-test:" + uuid.NewString() + ":"
	st, err := Open(context.Background(), Config{Driver: "redis", Addr: addr, Prefix: prefix}, logx.Nop())
	if err != nil {
		t.Fatalf("open redis: %v", err)
	}
	defer st.Close()
	runStoreContract(t, st)
}
