package cli

import (
	"context"
	"testing"

	"github.com/xraph/starledger"
	"github.com/xraph/starledger/config"
)

func memoryConfig() config.Config {
	cfg := config.Default()
	cfg.Store = config.StoreConfig{Driver: "memory"}
	return cfg
}

func TestBuildMemory(t *testing.T) {
	ctx := context.Background()
	a, err := build(ctx, memoryConfig())
	if err != nil {
		t.Fatal(err)
	}
	defer a.close()

	if err := a.ledger.Start(ctx); err != nil {
		t.Fatal(err)
	}
	if err := a.ledger.Ping(ctx); err != nil {
		t.Errorf("ping: %v", err)
	}
	if a.redis != nil {
		t.Error("redis client built without an address")
	}
}

func TestRunnerSettlesEveryFamily(t *testing.T) {
	ctx := context.Background()
	a, err := build(ctx, memoryConfig())
	if err != nil {
		t.Fatal(err)
	}
	defer a.close()
	if err := a.ledger.Start(ctx); err != nil {
		t.Fatal(err)
	}

	for _, name := range []string{"Adeyemi", "Lindqvist"} {
		if _, err := a.ledger.CreateFamily(ctx, starledger.FamilyInput{Name: name}); err != nil {
			t.Fatal(err)
		}
	}

	r, err := a.runner()
	if err != nil {
		t.Fatal(err)
	}
	rep, err := r.RunOnce(ctx)
	if err != nil {
		t.Fatal(err)
	}
	// No child has credit configured, so nothing settles and nothing fails.
	if rep.Settled != 0 || rep.Failed != 0 {
		t.Errorf("got settled=%d failed=%d, want 0 and 0", rep.Settled, rep.Failed)
	}
}

func TestRunnerRejectsBadFamilyID(t *testing.T) {
	cfg := memoryConfig()
	cfg.Settlement.Families = []string{"not-a-family"}
	a, err := build(context.Background(), cfg)
	if err != nil {
		t.Fatal(err)
	}
	defer a.close()

	if _, err := a.runner(); err == nil {
		t.Error("expected an error for a malformed family id")
	}
}

func TestOpenStoreUnknownDriver(t *testing.T) {
	if _, err := openStore(context.Background(), config.StoreConfig{Driver: "cassandra"}); err == nil {
		t.Error("expected an error for an unknown driver")
	}
}
